package client

import (
	"strconv"
	"strings"
	"time"
)

// D is a JSON request body builder; map order doesn't matter to the
// encoder, only the keys the oracle endpoint expects.
type D map[string]any

// =============================================================================

type Error struct {
	Err struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (err *Error) Error() string {
	return err.Err.Message
}

// =============================================================================

// Time decodes the unix-seconds timestamps chat completion responses use.
type Time struct {
	time.Time
}

func ToTime(sec int64) Time {
	return Time{
		Time: time.Unix(sec, 0),
	}
}

func (t *Time) UnmarshalJSON(data []byte) error {
	d := strings.Trim(string(data), "\"")

	num, err := strconv.Atoi(d)
	if err != nil {
		return err
	}

	t.Time = time.Unix(int64(num), 0)

	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	data := strconv.Itoa(int(t.Unix()))
	return []byte(data), nil
}

// =============================================================================

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatChoice struct {
	Index   int         `json:"index"`
	Message ChatMessage `json:"message"`
}

// Chat is an OpenAI-compatible chat completion response. The oracle
// only ever reads Choices[0].Message.Content; the rest of the envelope
// is kept so malformed-but-parseable responses still decode.
type Chat struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created Time         `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
}
