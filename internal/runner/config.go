package runner

import (
	"time"

	"github.com/novelseg/novelseg/internal/obslog"
)

// Config tunes the escalation ladder and resource limits the Runner
// enforces. The stagnation tolerance and its window are observed
// corpus constants, not derived values, so they are exposed here
// rather than hardcoded.
type Config struct {
	// MaxRetries bounds GAP_REFINE iterations.
	MaxRetries int

	// StagnationWindow is how many trailing iteration counts are
	// compared for the stagnation check.
	StagnationWindow int

	// StagnationTolerance is the maximum spread (max-min) across the
	// stagnation window that still counts as stagnated.
	StagnationTolerance int

	// RejectionThreshold is the consecutive-rejection count at which
	// GAP_REFINE escalates immediately.
	RejectionThreshold int

	// WallClockBudget bounds the entire run.
	WallClockBudget time.Duration

	// TopicDetectCallBudget bounds oracle calls made by the Topic
	// Change Detector within one run.
	TopicDetectCallBudget int

	// Logger receives stage-transition chatter and degradation
	// warnings. Defaults to obslog.Noop.
	Logger obslog.Logger
}

// DefaultConfig returns the defaults tuned against the extant corpus.
func DefaultConfig() Config {
	return Config{
		MaxRetries:            5,
		StagnationWindow:      3,
		StagnationTolerance:   2,
		RejectionThreshold:    2,
		WallClockBudget:       15 * time.Minute,
		TopicDetectCallBudget: 50,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.StagnationWindow <= 0 {
		c.StagnationWindow = d.StagnationWindow
	}
	if c.StagnationTolerance <= 0 {
		c.StagnationTolerance = d.StagnationTolerance
	}
	if c.RejectionThreshold <= 0 {
		c.RejectionThreshold = d.RejectionThreshold
	}
	if c.WallClockBudget <= 0 {
		c.WallClockBudget = d.WallClockBudget
	}
	if c.TopicDetectCallBudget <= 0 {
		c.TopicDetectCallBudget = d.TopicDetectCallBudget
	}
	if c.Logger == nil {
		c.Logger = obslog.Noop
	}
	return c
}
