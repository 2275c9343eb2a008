package openai

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devteam-ai/devteam/model"
)

const completionJSON = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1,
	"model": "gpt-4o-mini",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "finally"}, "finish_reason": "stop"}]
}`

func newTestBackend(t *testing.T, handler http.Handler, optFns ...func(o *Options)) *Backend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	fns := append([]func(o *Options){func(o *Options) {
		o.APIKey = "test-key"
		o.BaseURL = srv.URL
		o.RetryDelay = time.Millisecond
	}}, optFns...)
	return New(fns...)
}

func TestChatRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	b := newTestBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionJSON))
	}), func(o *Options) { o.Retries = 3 })

	out, err := b.Chat(t.Context(), []model.Message{model.System("be brief"), model.User("hi")})
	require.NoError(t, err)
	assert.Equal(t, "finally", out)
	assert.EqualValues(t, 3, calls.Load())
}

func TestChatExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	b := newTestBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}), func(o *Options) { o.Retries = 2 })

	_, err := b.Chat(t.Context(), []model.Message{model.User("hi")})
	require.Error(t, err)
	assert.EqualValues(t, 2, calls.Load())
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestGenerateDelegatesToChat(t *testing.T) {
	b := newTestBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionJSON))
	}))

	out, err := b.Generate(t.Context(), "write a haiku")
	require.NoError(t, err)
	assert.Equal(t, "finally", out)
}
