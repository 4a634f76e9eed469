package usecase

import (
	"context"
	"errors"
	"strings"

	"dm-relay/internal/domain"
)

const DefaultModel = "gpt-4o"

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// CompletionClient turns a conversation history into the persona's next reply.
type CompletionClient struct {
	llm   LLMClient
	model string
}

func NewCompletionClient(llm LLMClient, model string) (*CompletionClient, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	return &CompletionClient{llm: llm, model: model}, nil
}

// Complete makes exactly one completion attempt. Every failure comes back as
// an *Error with code COMPLETION_ERROR.
func (c *CompletionClient) Complete(ctx context.Context, history []domain.Turn) (string, error) {
	raw, err := c.llm.Chat(ctx, c.model, buildPromptMessages(history))
	if err != nil {
		return "", newError(ErrorCompletion, completionReason(ctx, err), err)
	}
	reply := strings.TrimSpace(raw)
	if reply == "" {
		return "", newError(ErrorCompletion, "openai_empty_reply", nil)
	}
	return reply, nil
}

func completionReason(ctx context.Context, err error) string {
	var timeout interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil || (errors.As(err, &timeout) && timeout.Timeout()) {
		return "openai_timeout"
	}
	var statusErr httpStatusCoder
	if errors.As(err, &statusErr) {
		if statusErr.HTTPStatusCode() == 429 {
			return "openai_rate_limited"
		}
		return "openai_http_error"
	}
	return "openai_error"
}
