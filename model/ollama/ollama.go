// Package ollama implements model.Backend and model.Registry against the
// native Ollama REST API: /api/generate and /api/chat for inference (the
// latter in blocking and NDJSON-streaming form), /api/tags and /api/pull for
// the model catalog.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/devteam-ai/devteam/logging"
	"github.com/devteam-ai/devteam/model"
)

// Options configure the Ollama client.
type Options struct {
	BaseURL       string
	Model         string
	Temperature   float64
	TopP          float64
	TopK          int
	RepeatPenalty float64
	MaxTokens     int
	Timeout       time.Duration
	Retries       int
	RetryDelay    time.Duration
	HTTPClient    *http.Client
	Logger        logging.Logger
}

// Client talks to one Ollama server. It is safe for concurrent use.
type Client struct {
	baseURL  string
	http     *http.Client
	defaults model.CallOptions
	retry    model.RetryPolicy
	logger   logging.Logger
}

// New creates a Client with local-development defaults matching a stock
// Ollama install.
func New(optFns ...func(o *Options)) *Client {
	opts := Options{
		BaseURL:       "http://localhost:11434",
		Model:         "llama3.2:1b",
		Temperature:   0.7,
		TopP:          0.9,
		TopK:          40,
		RepeatPenalty: 1.1,
		MaxTokens:     2000,
		Timeout:       120 * time.Second,
		Retries:       3,
		RetryDelay:    time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		baseURL: opts.BaseURL,
		http:    httpClient,
		defaults: model.CallOptions{
			Model:         opts.Model,
			Temperature:   opts.Temperature,
			TopP:          opts.TopP,
			TopK:          opts.TopK,
			RepeatPenalty: opts.RepeatPenalty,
			MaxTokens:     opts.MaxTokens,
		},
		retry:  model.RetryPolicy{Attempts: opts.Retries, Delay: opts.RetryDelay},
		logger: logging.OrNoOp(opts.Logger),
	}
}

// samplingParams is the "options" object of the native API.
type samplingParams struct {
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"top_p"`
	TopK          int     `json:"top_k"`
	RepeatPenalty float64 `json:"repeat_penalty"`
	NumPredict    int     `json:"num_predict,omitempty"`
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options samplingParams `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type chatRequest struct {
	Model    string          `json:"model"`
	Messages []model.Message `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  samplingParams  `json:"options"`
}

type chatResponse struct {
	Message model.Message `json:"message"`
	Done    bool          `json:"done"`
}

func (c *Client) callOptions(optFns []func(o *model.CallOptions)) model.CallOptions {
	opts := c.defaults
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

func sampling(opts model.CallOptions) samplingParams {
	return samplingParams{
		Temperature:   opts.Temperature,
		TopP:          opts.TopP,
		TopK:          opts.TopK,
		RepeatPenalty: opts.RepeatPenalty,
		NumPredict:    opts.MaxTokens,
	}
}

// Generate performs a one-shot completion against /api/generate.
func (c *Client) Generate(ctx context.Context, prompt string, optFns ...func(o *model.CallOptions)) (string, error) {
	opts := c.callOptions(optFns)
	req := generateRequest{Model: opts.Model, Prompt: prompt, Options: sampling(opts)}

	var out generateResponse
	err := c.retry.Do(ctx, "ollama generate", func() error {
		return c.postJSON(ctx, "/api/generate", req, &out)
	})
	if err != nil {
		return "", err
	}
	return out.Response, nil
}

// Chat performs a blocking multi-turn call against /api/chat.
func (c *Client) Chat(ctx context.Context, messages []model.Message, optFns ...func(o *model.CallOptions)) (string, error) {
	opts := c.callOptions(optFns)
	req := chatRequest{Model: opts.Model, Messages: messages, Options: sampling(opts)}

	var out chatResponse
	err := c.retry.Do(ctx, "ollama chat", func() error {
		return c.postJSON(ctx, "/api/chat", req, &out)
	})
	if err != nil {
		return "", err
	}
	return out.Message.Content, nil
}

// ChatStream performs a streaming chat call. The backend answers with a
// sequence of independently parseable NDJSON fragments; each parsed fragment
// with content is appended to the accumulator and forwarded synchronously to
// onChunk. A fragment that fails to parse is logged and skipped. A transport
// error fails the attempt and the whole call is retried from scratch.
func (c *Client) ChatStream(ctx context.Context, messages []model.Message, onChunk func(chunk string), optFns ...func(o *model.CallOptions)) (string, error) {
	opts := c.callOptions(optFns)
	req := chatRequest{Model: opts.Model, Messages: messages, Stream: true, Options: sampling(opts)}

	var full string
	err := c.retry.Do(ctx, "ollama chat stream", func() error {
		resp, err := c.post(ctx, "/api/chat", req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var acc bytes.Buffer
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var fragment chatResponse
			if err := json.Unmarshal(line, &fragment); err != nil {
				c.logger.Warn("skipping malformed stream fragment", "error", err)
				continue
			}
			if fragment.Message.Content != "" {
				acc.WriteString(fragment.Message.Content)
				if onChunk != nil {
					onChunk(fragment.Message.Content)
				}
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
		full = acc.String()
		return nil
	})
	if err != nil {
		return "", err
	}
	return full, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// IsModelAvailable reports whether the named model exists in the server's
// catalog.
func (c *Client) IsModelAvailable(ctx context.Context, name string) (bool, error) {
	if name == "" {
		name = c.defaults.Model
	}
	var tags tagsResponse
	if err := c.getJSON(ctx, "/api/tags", &tags); err != nil {
		return false, err
	}
	for _, m := range tags.Models {
		if m.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// EnsureModelAvailable pulls the model when it is not already present. It
// issues at most one pull request and returns once the server acknowledges
// it, without waiting for the download to complete.
func (c *Client) EnsureModelAvailable(ctx context.Context, name string) error {
	if name == "" {
		name = c.defaults.Model
	}
	available, err := c.IsModelAvailable(ctx, name)
	if err != nil {
		return err
	}
	if available {
		c.logger.Debug("model already available", "model", name)
		return nil
	}
	c.logger.Info("pulling model", "model", name)
	resp, err := c.post(ctx, "/api/pull", map[string]string{"name": name})
	if err != nil {
		return fmt.Errorf("pull model %s: %w", name, err)
	}
	resp.Body.Close()
	return nil
}

// TestConnection pings the server's catalog endpoint.
func (c *Client) TestConnection(ctx context.Context) error {
	var tags tagsResponse
	return c.getJSON(ctx, "/api/tags", &tags)
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("post %s: unexpected status %d: %s", path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	resp, err := c.post(ctx, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("get %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Interface compliance (compile-time assertions)
var (
	_ model.Backend  = (*Client)(nil)
	_ model.Registry = (*Client)(nil)
)
