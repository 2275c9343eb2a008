// Package model defines the uniform inference-adapter contract shared by the
// backend implementations (ollama, openai, anthropic). Backends expose three
// call shapes: one-shot completion, blocking chat, and streaming chat with
// incremental token delivery. Transient transport failures are retried under
// a fixed-delay policy; a successfully returned but empty response is not.
package model

import (
	"context"
	"fmt"
	"time"
)

// Message is one chat turn. A chat call is always led by a system-role turn
// carrying the agent's fixed instruction text.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System, User and Assistant construct single turns for the common roles.

// System returns a system-role turn.
func System(content string) Message { return Message{Role: "system", Content: content} }

// User returns a user-role turn.
func User(content string) Message { return Message{Role: "user", Content: content} }

// Assistant returns an assistant-role turn.
func Assistant(content string) Message { return Message{Role: "assistant", Content: content} }

// CallOptions are the sampling parameters of a single call. Backends seed
// them from their instance defaults and apply the caller's option functions
// on top, so a call only overrides what it sets.
type CallOptions struct {
	Model         string
	Temperature   float64
	TopP          float64
	TopK          int
	RepeatPenalty float64
	MaxTokens     int
}

// WithModel overrides the model name for one call.
func WithModel(name string) func(o *CallOptions) {
	return func(o *CallOptions) { o.Model = name }
}

// WithTemperature overrides the sampling temperature for one call.
func WithTemperature(t float64) func(o *CallOptions) {
	return func(o *CallOptions) { o.Temperature = t }
}

// WithMaxTokens overrides the completion token budget for one call.
func WithMaxTokens(n int) func(o *CallOptions) {
	return func(o *CallOptions) { o.MaxTokens = n }
}

// Backend is the minimal interface agents use to drive generation.
//
// ChatStream forwards each successfully parsed fragment with content to
// onChunk synchronously and in order, then resolves to the accumulated full
// text. A transport-level error fails the whole call; the entire attempt is
// retried, never resumed mid-stream.
type Backend interface {
	Generate(ctx context.Context, prompt string, optFns ...func(o *CallOptions)) (string, error)
	Chat(ctx context.Context, messages []Message, optFns ...func(o *CallOptions)) (string, error)
	ChatStream(ctx context.Context, messages []Message, onChunk func(chunk string), optFns ...func(o *CallOptions)) (string, error)
}

// Registry exposes the backend's model catalog. EnsureModelAvailable issues
// at most one pull request and does not wait for background completion.
type Registry interface {
	IsModelAvailable(ctx context.Context, model string) (bool, error)
	EnsureModelAvailable(ctx context.Context, model string) error
}

// RetryPolicy retries an operation a fixed number of attempts with a fixed
// delay between them. Only errors returned by the operation are retried;
// callers must not surface semantically-empty-but-successful responses as
// errors.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// Do runs fn up to p.Attempts times, waiting p.Delay between failed
// attempts. After exhausting attempts it returns a wrapped error reporting
// the attempt count and the last underlying failure.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}
