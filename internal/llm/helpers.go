package llm

import (
	"context"
	"strings"
)

func chooseModel(requested, fallback string) string {
	if strings.TrimSpace(requested) != "" {
		return requested
	}
	return fallback
}

// WithSystemPrompt returns a provider that prepends a system message to
// every request. Requests that already start with a system message are
// passed through unchanged.
func WithSystemPrompt(p Provider, prompt string) Provider {
	if strings.TrimSpace(prompt) == "" {
		return p
	}
	return &systemPromptProvider{inner: p, prompt: prompt}
}

type systemPromptProvider struct {
	inner  Provider
	prompt string
}

func (p *systemPromptProvider) Name() string {
	return p.inner.Name()
}

func (p *systemPromptProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	if len(req.Messages) == 0 || req.Messages[0].Role != RoleSystem {
		messages := make([]Message, 0, len(req.Messages)+1)
		messages = append(messages, Message{Role: RoleSystem, Content: p.prompt})
		messages = append(messages, req.Messages...)
		req.Messages = messages
	}
	return p.inner.Stream(ctx, req)
}
