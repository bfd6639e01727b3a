// Package llm wraps the text-completion provider that writes persona replies.
package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/celerix-dev/celerix-companion/internal/history"
)

var (
	// ErrRateLimited marks a provider failure caused by throttling.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrEmptyReply is returned when the provider answers without content.
	ErrEmptyReply = errors.New("provider returned empty reply")
)

// Request is one generation call.
type Request struct {
	System  string
	History []history.Turn
	User    string
}

// Generator produces a reply for a conversation.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// IsRateLimited reports whether err looks like provider throttling.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit")
}
