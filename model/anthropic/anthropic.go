// Package anthropic adapts the Anthropic Messages API to model.Backend.
package anthropic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/devteam-ai/devteam/model"
)

// Options configure the Anthropic backend adapter.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	Retries     int
	RetryDelay  time.Duration
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
		Retries:     3,
		RetryDelay:  time.Second,
	}
}

// Backend wraps the Anthropic Messages API behind model.Backend. All call
// shapes run under the shared fixed-delay retry policy; the SDK's own retry
// machinery is disabled so the configured attempt count governs.
type Backend struct {
	client *anthropic.Client
	opts   Options
	retry  model.RetryPolicy
}

// New creates a Backend using the official client.
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
	client := anthropic.NewClient(clientOpts...)
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a Backend from an existing client. Disable the
// client's internal retries so the backend's policy is the only one.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Backend {
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

func (b *Backend) callOptions(optFns []func(o *model.CallOptions)) model.CallOptions {
	opts := model.CallOptions{
		Model:       string(b.opts.Model),
		Temperature: b.opts.Temperature,
		MaxTokens:   int(b.opts.MaxTokens),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

// params converts chat turns into Messages API parameters. System turns are
// pulled out into the dedicated System field; the Messages list must not
// contain them.
func (b *Backend) params(messages []model.Message, callOpts model.CallOptions) anthropic.MessageNewParams {
	var systemBlocks []anthropic.TextBlockParam
	var converted []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case "system":
			if m.Content != "" {
				systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: m.Content})
			}
		case "assistant":
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(callOpts.Model),
		Messages:    converted,
		MaxTokens:   int64(callOpts.MaxTokens),
		Temperature: anthropic.Float(callOpts.Temperature),
	}
	if len(systemBlocks) > 0 {
		params.System = systemBlocks
	}
	return params
}

// Generate performs a one-shot completion by sending the prompt as a single
// user turn.
func (b *Backend) Generate(ctx context.Context, prompt string, optFns ...func(o *model.CallOptions)) (string, error) {
	return b.Chat(ctx, []model.Message{model.User(prompt)}, optFns...)
}

// Chat performs a blocking Messages API call and concatenates the text blocks
// of the response.
func (b *Backend) Chat(ctx context.Context, messages []model.Message, optFns ...func(o *model.CallOptions)) (string, error) {
	params := b.params(messages, b.callOptions(optFns))

	var out string
	err := b.retry.Do(ctx, "anthropic chat", func() error {
		resp, err := b.client.Messages.New(ctx, params)
		if err != nil {
			return fmt.Errorf("anthropic api error: %w", err)
		}
		var sb strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				sb.WriteString(block.AsText().Text)
			}
		}
		out = sb.String()
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// ChatStream performs a streaming Messages API call, forwarding each text
// delta to onChunk in arrival order. A mid-stream failure retries the whole
// attempt from scratch; the accumulator resets per attempt.
func (b *Backend) ChatStream(ctx context.Context, messages []model.Message, onChunk func(chunk string), optFns ...func(o *model.CallOptions)) (string, error) {
	params := b.params(messages, b.callOptions(optFns))

	var full string
	err := b.retry.Do(ctx, "anthropic chat stream", func() error {
		stream := b.client.Messages.NewStreaming(ctx, params)
		var sb strings.Builder
		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if delta.Text == "" {
						continue
					}
					sb.WriteString(delta.Text)
					if onChunk != nil {
						onChunk(delta.Text)
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("anthropic streaming error: %w", err)
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
