// Package openai adapts the OpenAI Chat Completions API to model.Backend.
// Useful for pointing the pipeline at a hosted model, or at any
// OpenAI-compatible endpoint via a custom base URL.
package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/devteam-ai/devteam/model"
)

// Options configure the OpenAI backend adapter.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
	Retries     int
	RetryDelay  time.Duration
}

func defaultOptions() Options {
	return Options{
		Model:       openai.ChatModelGPT4oMini,
		Temperature: 0.7,
		MaxTokens:   4096,
		Retries:     3,
		RetryDelay:  time.Second,
	}
}

// Backend wraps the OpenAI Chat Completions API behind model.Backend. All
// call shapes run under the shared fixed-delay retry policy; the SDK's own
// retry machinery is disabled so the configured attempt count governs.
type Backend struct {
	client *openai.Client
	opts   Options
	retry  model.RetryPolicy
}

// New creates a Backend using the official client. With no options the API
// key is read from the environment by the SDK.
func New(optFns ...func(o *Options)) *Backend {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(clientOpts...)
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a Backend from an existing client. Disable the
// client's internal retries so the backend's policy is the only one.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Backend {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{
		client: client,
		opts:   opts,
		retry:  model.RetryPolicy{Attempts: opts.Retries, Delay: opts.RetryDelay},
	}
}

func (b *Backend) params(messages []model.Message, callOpts model.CallOptions) openai.ChatCompletionNewParams {
	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			converted = append(converted, openai.SystemMessage(m.Content))
		case "assistant":
			converted = append(converted, openai.AssistantMessage(m.Content))
		default:
			converted = append(converted, openai.UserMessage(m.Content))
		}
	}
	return openai.ChatCompletionNewParams{
		Messages:            converted,
		Model:               callOpts.Model,
		Temperature:         openai.Float(callOpts.Temperature),
		MaxCompletionTokens: openai.Int(int64(callOpts.MaxTokens)),
	}
}

func (b *Backend) callOptions(optFns []func(o *model.CallOptions)) model.CallOptions {
	opts := model.CallOptions{
		Model:       b.opts.Model,
		Temperature: b.opts.Temperature,
		MaxTokens:   int(b.opts.MaxTokens),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

// Generate performs a one-shot completion by sending the prompt as a single
// user turn.
func (b *Backend) Generate(ctx context.Context, prompt string, optFns ...func(o *model.CallOptions)) (string, error) {
	return b.Chat(ctx, []model.Message{model.User(prompt)}, optFns...)
}

// Chat performs a blocking chat completion.
func (b *Backend) Chat(ctx context.Context, messages []model.Message, optFns ...func(o *model.CallOptions)) (string, error) {
	params := b.params(messages, b.callOptions(optFns))

	var out string
	err := b.retry.Do(ctx, "openai chat", func() error {
		resp, err := b.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return fmt.Errorf("openai api error: %w", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("openai: no choices returned")
		}
		out = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// ChatStream performs a streaming chat completion, forwarding each content
// delta to onChunk in arrival order. A mid-stream failure retries the whole
// attempt from scratch; the accumulator resets per attempt.
func (b *Backend) ChatStream(ctx context.Context, messages []model.Message, onChunk func(chunk string), optFns ...func(o *model.CallOptions)) (string, error) {
	params := b.params(messages, b.callOptions(optFns))

	var full string
	err := b.retry.Do(ctx, "openai chat stream", func() error {
		stream := b.client.Chat.Completions.NewStreaming(ctx, params)
		var sb strings.Builder
		for stream.Next() {
			ck := stream.Current()
			for _, ch := range ck.Choices {
				if ch.Delta.Content == "" {
					continue
				}
				sb.WriteString(ch.Delta.Content)
				if onChunk != nil {
					onChunk(ch.Delta.Content)
				}
			}
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("openai streaming error: %w", err)
		}
		full = sb.String()
		return nil
	})
	if err != nil {
		return "", err
	}
	return full, nil
}

var _ model.Backend = (*Backend)(nil)
