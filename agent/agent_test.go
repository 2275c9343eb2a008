package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devteam-ai/devteam/core"
	"github.com/devteam-ai/devteam/model"
	"github.com/devteam-ai/devteam/store"
)

// fakeBackend records calls and plays back scripted replies.
type fakeBackend struct {
	reply    string
	chunks   []string
	chatErr  error
	messages []model.Message
	opts     model.CallOptions
}

func (f *fakeBackend) Generate(_ context.Context, prompt string, optFns ...func(o *model.CallOptions)) (string, error) {
	f.messages = []model.Message{model.User(prompt)}
	return f.reply, nil
}

func (f *fakeBackend) Chat(_ context.Context, messages []model.Message, optFns ...func(o *model.CallOptions)) (string, error) {
	f.messages = messages
	for _, fn := range optFns {
		fn(&f.opts)
	}
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return f.reply, nil
}

func (f *fakeBackend) ChatStream(ctx context.Context, messages []model.Message, onChunk func(chunk string), optFns ...func(o *model.CallOptions)) (string, error) {
	f.messages = messages
	for _, fn := range optFns {
		fn(&f.opts)
	}
	if f.chatErr != nil {
		return "", f.chatErr
	}
	var full string
	for _, c := range f.chunks {
		full += c
		if onChunk != nil {
			onChunk(c)
		}
	}
	return full, nil
}

func TestRespondPersistsReply(t *testing.T) {
	s := store.New()
	id := s.CreateProject("demo", nil)
	backend := &fakeBackend{reply: "the analysis"}
	a := New(core.RoleBA, backend, s)

	msg, err := a.Respond(context.Background(), id, "build a todo app", nil)
	require.NoError(t, err)
	assert.Equal(t, core.RoleBA, msg.Role)
	assert.Equal(t, "the analysis", msg.Content)

	conv := s.GetConversation(id, 0)
	require.Len(t, conv, 1)
	assert.Equal(t, msg.ID, conv[0].ID)
}

func TestRespondStreamsChunksInOrder(t *testing.T) {
	s := store.New()
	id := s.CreateProject("demo", nil)
	backend := &fakeBackend{chunks: []string{"He", "llo"}}
	a := New(core.RoleDev, backend, s)

	var got []string
	msg, err := a.Respond(context.Background(), id, "hi", func(chunk string) {
		got = append(got, chunk)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"He", "llo"}, got)
	assert.Equal(t, "Hello", msg.Content)
}

func TestRespondAppliesRoleTemperature(t *testing.T) {
	s := store.New()
	id := s.CreateProject("demo", nil)
	backend := &fakeBackend{reply: "ok"}
	a := New(core.RoleTester, backend, s)

	_, err := a.Respond(context.Background(), id, "verify", nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, backend.opts.Temperature, 1e-9)
}

func TestRespondLeadsWithInstruction(t *testing.T) {
	s := store.New()
	id := s.CreateProject("demo", nil)
	backend := &fakeBackend{reply: "ok"}
	a := New(core.RoleBA, backend, s)

	_, err := a.Respond(context.Background(), id, "build it", nil)
	require.NoError(t, err)
	require.NotEmpty(t, backend.messages)
	assert.Equal(t, "system", backend.messages[0].Role)
	assert.Equal(t, BAInstruction, backend.messages[0].Content)
	last := backend.messages[len(backend.messages)-1]
	assert.Equal(t, "user", last.Role)
	assert.Equal(t, "build it", last.Content)
}

func TestRespondMapsHistoryRoles(t *testing.T) {
	s := store.New()
	id := s.CreateProject("demo", nil)
	s.AddMessage(id, core.RoleUser, "request", nil)
	s.AddMessage(id, core.RoleBA, "analysis", nil)
	s.AddMessage(id, core.RoleDev, "code", nil)

	backend := &fakeBackend{reply: "ok"}
	a := New(core.RoleDev, backend, s)
	_, err := a.Respond(context.Background(), id, "revise", nil)
	require.NoError(t, err)

	var history []model.Message
	for _, m := range backend.messages {
		if m.Role != "system" {
			history = append(history, m)
		}
	}
	// request, analysis, code, current input
	require.Len(t, history, 4)
	assert.Equal(t, model.User("request"), history[0])
	assert.Equal(t, model.User("[Business Analyst] analysis"), history[1])
	// the agent's own prior turn replays as assistant
	assert.Equal(t, model.Assistant("code"), history[2])
}

func TestRespondFallsBackToGenerate(t *testing.T) {
	s := store.New()
	id := s.CreateProject("demo", nil)
	backend := &fakeBackend{reply: "fallback reply", chatErr: errors.New("chat unsupported")}
	a := New(core.RoleBA, backend, s)

	msg, err := a.Respond(context.Background(), id, "build it", nil)
	require.NoError(t, err)
	assert.Equal(t, "fallback reply", msg.Content)
}
