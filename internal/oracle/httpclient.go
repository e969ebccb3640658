package oracle

import (
	"context"
	"fmt"

	"github.com/novelseg/novelseg/foundation/client"
)

// HTTPClient adapts foundation/client's OpenAI-compatible chat
// completion call to the Oracle interface. This is the default
// concrete oracle a driver wires in: it talks to any OpenAI-compatible
// chat endpoint, locally hosted or otherwise, so no provider SDK is
// needed for a plain prompt-in, completion-out call.
type HTTPClient struct {
	llm *client.LLM
}

// NewHTTPClient builds an Oracle that POSTs chat completions to url
// using the named model. log receives the transport's diagnostics.
func NewHTTPClient(log client.Logger, url, model string) *HTTPClient {
	return &HTTPClient{llm: client.NewLLM(log, url, model)}
}

// Complete implements Oracle.
func (h *HTTPClient) Complete(ctx context.Context, prompt string) (string, error) {
	out, err := h.llm.ChatCompletions(ctx, prompt, client.WithParams(0.2, 0.9, 40))
	if err != nil {
		return "", fmt.Errorf("httpclient: chat completion: %w", err)
	}
	return out, nil
}
