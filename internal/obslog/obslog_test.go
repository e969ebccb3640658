package obslog

import (
	"bytes"
	"context"
	"log"
	"os"
	"strings"
	"testing"
)

func TestLevelString(t *testing.T) {
	cases := []struct {
		level Level
		want  string
	}{
		{Debug, "DEBUG"},
		{Info, "INFO"},
		{Warn, "WARN"},
		{Error, "ERROR"},
	}

	for _, c := range cases {
		if got := c.level.String(); got != c.want {
			t.Errorf("Level(%d).String() = %q, want %q", c.level, got, c.want)
		}
	}
}

func TestStdoutFiltersBelowMin(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(orig)

	logger := Stdout(Warn)
	logger(context.Background(), Debug, "quiet message")
	logger(context.Background(), Warn, "loud message", "k", "v")

	out := buf.String()
	if strings.Contains(out, "quiet message") {
		t.Fatalf("expected Debug message to be filtered below Warn, got: %s", out)
	}
	if !strings.Contains(out, "loud message") {
		t.Fatalf("expected Warn message to be logged, got: %s", out)
	}
	if !strings.Contains(out, "k: v") {
		t.Fatalf("expected key/value pair rendered, got: %s", out)
	}
}

func TestNewHonorsLogLevelEnvVar(t *testing.T) {
	old, hadOld := os.LookupEnv("NOVELSEG_LOG_LEVEL")
	defer func() {
		if hadOld {
			os.Setenv("NOVELSEG_LOG_LEVEL", old)
		} else {
			os.Unsetenv("NOVELSEG_LOG_LEVEL")
		}
	}()

	os.Setenv("NOVELSEG_LOG_LEVEL", "debug")
	logger := New()
	if logger == nil {
		t.Fatalf("New() returned nil logger")
	}
}

func TestAsClientLoggerAdaptsShape(t *testing.T) {
	var gotMsg string
	var gotLevel Level
	inner := Logger(func(ctx context.Context, level Level, msg string, kv ...any) {
		gotLevel = level
		gotMsg = msg
	})

	adapted := AsClientLogger(inner)
	adapted(context.Background(), "hello", "k", "v")

	if gotMsg != "hello" {
		t.Fatalf("msg = %q, want %q", gotMsg, "hello")
	}
	if gotLevel != Info {
		t.Fatalf("level = %v, want Info", gotLevel)
	}
}
