package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/devteam-ai/devteam/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(optFns ...func(o *Options)) *Store {
	return New(optFns...)
}

func TestCreateProjectAndContext(t *testing.T) {
	s := newTestStore()

	id := s.CreateProject("demo", map[string]any{"created_from": "test"})
	require.NotEmpty(t, id)
	assert.True(t, s.HasProject(id))

	ctx, ok := s.GetContext(id)
	require.True(t, ok)
	assert.Equal(t, "demo", ctx.Name)
	assert.Empty(t, ctx.Summary)
	assert.Empty(t, ctx.Artifacts)
	assert.Equal(t, "test", ctx.Metadata["created_from"])
}

func TestAddMessageAndGetConversation(t *testing.T) {
	s := newTestStore()
	id := s.CreateProject("demo", nil)

	msg := s.AddMessage(id, core.RoleUser, "hi", nil)
	got := s.GetConversation(id, 1)
	require.Len(t, got, 1)
	assert.Equal(t, msg.ID, got[0].ID)
	assert.Equal(t, "hi", got[0].Content)
	assert.Equal(t, core.RoleUser, got[0].Role)
}

func TestConversationFIFOBound(t *testing.T) {
	s := newTestStore(func(o *Options) { o.MaxMessages = 5 })
	id := s.CreateProject("demo", nil)

	for i := 0; i < 20; i++ {
		s.AddMessage(id, core.RoleUser, fmt.Sprintf("msg-%d", i), nil)
	}
	got := s.GetConversation(id, 0)
	require.Len(t, got, 5)
	// oldest evicted first; remaining window is the most recent five, in order
	assert.Equal(t, "msg-15", got[0].Content)
	assert.Equal(t, "msg-19", got[4].Content)
}

func TestGetConversationWindowOrder(t *testing.T) {
	s := newTestStore()
	id := s.CreateProject("demo", nil)
	s.AddMessage(id, core.RoleUser, "first", nil)
	s.AddMessage(id, core.RoleBA, "second", nil)
	s.AddMessage(id, core.RoleDev, "third", nil)

	got := s.GetConversation(id, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Content)
	assert.Equal(t, "third", got[1].Content)
}

func TestArtifactRoundTrip(t *testing.T) {
	s := newTestStore()
	id := s.CreateProject("demo", nil)

	artID, err := s.AddArtifact(id, core.ArtifactCode, "main.go", "package main", map[string]any{"source": "dev"})
	require.NoError(t, err)

	a, ok := s.GetArtifact(id, artID)
	require.True(t, ok)
	assert.Equal(t, core.ArtifactCode, a.Type)
	assert.Equal(t, "main.go", a.Name)
	assert.Equal(t, "package main", a.Content)
	assert.Equal(t, "dev", a.Metadata["source"])
	assert.False(t, a.UpdatedAt.Before(a.CreatedAt))
}

func TestAddArtifactUnknownProject(t *testing.T) {
	s := newTestStore()
	_, err := s.AddArtifact("nope", core.ArtifactCode, "x", "y", nil)
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestGetArtifactsByType(t *testing.T) {
	s := newTestStore()
	id := s.CreateProject("demo", nil)
	_, err := s.AddArtifact(id, core.ArtifactCode, "a.go", "a", nil)
	require.NoError(t, err)
	_, err = s.AddArtifact(id, core.ArtifactTestPlan, "plan", "{}", nil)
	require.NoError(t, err)
	_, err = s.AddArtifact(id, core.ArtifactCode, "b.go", "b", nil)
	require.NoError(t, err)

	code := s.GetArtifactsByType(id, core.ArtifactCode)
	require.Len(t, code, 2)
	assert.Equal(t, "a.go", code[0].Name)
	assert.Equal(t, "b.go", code[1].Name)
}

func TestUpdateArtifact(t *testing.T) {
	s := newTestStore()
	id := s.CreateProject("demo", nil)
	artID, err := s.AddArtifact(id, core.ArtifactCode, "main.go", "v1", nil)
	require.NoError(t, err)

	before, _ := s.GetArtifact(id, artID)
	content := "v2"
	ok := s.UpdateArtifact(id, artID, ArtifactUpdate{Content: &content})
	require.True(t, ok)

	after, _ := s.GetArtifact(id, artID)
	assert.Equal(t, "v2", after.Content)
	assert.Equal(t, before.ID, after.ID)
	assert.True(t, after.CreatedAt.Equal(before.CreatedAt))
	assert.False(t, after.UpdatedAt.Before(before.UpdatedAt))

	// unknown ids report false, no error
	assert.False(t, s.UpdateArtifact(id, "missing", ArtifactUpdate{Content: &content}))
	assert.False(t, s.UpdateArtifact("missing", artID, ArtifactUpdate{Content: &content}))
}

func TestUpdateContextSummary(t *testing.T) {
	s := newTestStore()
	id := s.CreateProject("demo", nil)

	summary := "## Analysis\n\ndone"
	require.True(t, s.UpdateContext(id, ContextUpdate{Summary: &summary}))

	ctx, _ := s.GetContext(id)
	assert.Equal(t, summary, ctx.Summary)

	assert.False(t, s.UpdateContext("missing", ContextUpdate{Summary: &summary}))
}

func TestDeleteProject(t *testing.T) {
	s := newTestStore()
	id := s.CreateProject("demo", nil)
	s.AddMessage(id, core.RoleUser, "hi", nil)

	assert.True(t, s.DeleteProject(id))
	assert.False(t, s.HasProject(id))
	assert.Empty(t, s.GetConversation(id, 0))
	assert.False(t, s.DeleteProject(id))
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s := newTestStore(func(o *Options) { o.PersistPath = dir })
	id := s.CreateProject("demo", map[string]any{"k": "v"})
	msg := s.AddMessage(id, core.RoleUser, "hello", nil)
	artID, err := s.AddArtifact(id, core.ArtifactRequirement, "analysis", "the requirements", nil)
	require.NoError(t, err)
	require.NoError(t, s.Save())

	// a fresh store pointed at the same path reloads the snapshot wholesale
	restored := newTestStore(func(o *Options) { o.PersistPath = dir })
	require.True(t, restored.HasProject(id))

	conv := restored.GetConversation(id, 0)
	require.Len(t, conv, 1)
	assert.Equal(t, msg.ID, conv[0].ID)
	assert.Equal(t, "hello", conv[0].Content)
	assert.True(t, msg.Timestamp.Equal(conv[0].Timestamp))

	a, ok := restored.GetArtifact(id, artID)
	require.True(t, ok)
	assert.Equal(t, "the requirements", a.Content)
}

func TestCloseWithoutStartReturnsAndFlushes(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(func(o *Options) { o.PersistPath = dir })
	id := s.CreateProject("demo", nil)

	// a deferred Close behind a failed startup must not hang
	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return without a prior Start")
	}

	restored := newTestStore(func(o *Options) { o.PersistPath = dir })
	assert.True(t, restored.HasProject(id))
}

func TestStartThenCloseStopsAutosave(t *testing.T) {
	s := newTestStore(func(o *Options) {
		o.PersistPath = t.TempDir()
		o.SaveInterval = time.Hour
	})
	s.Start(context.Background())
	// second Start is a no-op
	s.Start(context.Background())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestLoadMissingSnapshotStartsEmpty(t *testing.T) {
	s := newTestStore(func(o *Options) { o.PersistPath = t.TempDir() })
	assert.False(t, s.HasProject("anything"))
}
