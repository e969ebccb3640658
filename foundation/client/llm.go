package client

import (
	"context"
	"fmt"
	"maps"
	"net/http"
)

// LLM is a single-endpoint OpenAI-compatible chat completion client.
// The oracle package wraps exactly one method of this type
// (ChatCompletions); segmentation never streams, embeds, or sends
// images, so this type exposes text completion only.
type LLM struct {
	cln   *Client
	url   string
	model string
}

func NewLLM(log Logger, url string, model string) *LLM {
	return &LLM{
		cln:   New(log),
		url:   url,
		model: model,
	}
}

type withParam struct {
	typ string
	d   D
}

func WithParams(temperature float32, topP float32, topK int) withParam {
	return withParam{
		typ: "params",
		d: D{
			"temperature": temperature,
			"top_p":       topP,
			"top_k":       topK,
		},
	}
}

// ChatCompletions issues a single, non-streaming chat completion and
// returns the first choice's message content.
func (llm *LLM) ChatCompletions(ctx context.Context, text string, options ...withParam) (string, error) {
	params := D{
		"temperature": 1.0,
		"top_p":       0.5,
		"top_k":       20,
	}

	for _, opt := range options {
		if opt.typ == "params" {
			params = opt.d
		}
	}

	d := D{
		"model": llm.model,
		"messages": []D{
			{
				"role":    "user",
				"content": text,
			},
		},
	}

	maps.Copy(d, params)

	var chat Chat
	if err := llm.cln.Do(ctx, http.MethodPost, llm.url, d, &chat); err != nil {
		return "", fmt.Errorf("do: %w", err)
	}

	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("no response")
	}

	return chat.Choices[0].Message.Content, nil
}
