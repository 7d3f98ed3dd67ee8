package conversation

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimessenger/aimessenger/internal/event"
	"github.com/aimessenger/aimessenger/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	require.NoError(t, storage.Init(filepath.Join(t.TempDir(), "test.db")))
	return NewStore(event.NewBus())
}

func TestCreateConversationReusesExisting(t *testing.T) {
	store := newTestStore(t)

	first, err := store.CreateConversation("nova")
	require.NoError(t, err)

	second, err := store.CreateConversation("nova")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	convs, err := store.List()
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestCreateConversationActivates(t *testing.T) {
	store := newTestStore(t)

	id, err := store.CreateConversation("sage")
	require.NoError(t, err)
	assert.Equal(t, id, store.ActiveConversation())
}

func TestRemoveConversationClearsActive(t *testing.T) {
	store := newTestStore(t)

	id, err := store.CreateConversation("echo")
	require.NoError(t, err)
	_, err = store.AppendMessage(id, storage.SenderUser, "hi")
	require.NoError(t, err)

	require.NoError(t, store.RemoveConversation(id))
	assert.Empty(t, store.ActiveConversation())

	_, err = store.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)

	// removing again is a no-op
	require.NoError(t, store.RemoveConversation(id))
}

func TestRecreateAfterRemovalStartsEmpty(t *testing.T) {
	store := newTestStore(t)

	first, err := store.CreateConversation("nova")
	require.NoError(t, err)
	_, err = store.AppendMessage(first, storage.SenderUser, "old history")
	require.NoError(t, err)
	require.NoError(t, store.RemoveConversation(first))

	second, err := store.CreateConversation("nova")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	msgs, err := store.Messages(second)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestAppendMessageOrdering(t *testing.T) {
	store := newTestStore(t)

	id, err := store.CreateConversation("nova")
	require.NoError(t, err)

	for _, content := range []string{"one", "two", "three"} {
		_, err := store.AppendMessage(id, storage.SenderUser, content)
		require.NoError(t, err)
	}

	msgs, err := store.Messages(id)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "two", msgs[1].Content)
	assert.Equal(t, "three", msgs[2].Content)
}

func TestAppendMessageMissingConversation(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AppendMessage("nope", storage.SenderUser, "hi")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTypingPlaceholderLifecycle(t *testing.T) {
	store := newTestStore(t)

	id, err := store.CreateConversation("nova")
	require.NoError(t, err)
	_, err = store.AppendMessage(id, storage.SenderUser, "question")
	require.NoError(t, err)

	placeholder, err := store.AppendTyping(id)
	require.NoError(t, err)
	assert.True(t, placeholder.IsTyping)

	// only one placeholder at a time
	_, err = store.AppendTyping(id)
	assert.Error(t, err)

	require.NoError(t, store.ResolveTyping(id, placeholder.ID, "answer"))

	msgs, err := store.Messages(id)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, placeholder.ID, msgs[1].ID)
	assert.Equal(t, "answer", msgs[1].Content)
	assert.False(t, msgs[1].IsTyping)

	conv, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "answer", conv.LastMessage)
}

func TestResolveTypingAfterRemovalIsNoop(t *testing.T) {
	store := newTestStore(t)

	id, err := store.CreateConversation("nova")
	require.NoError(t, err)
	placeholder, err := store.AppendTyping(id)
	require.NoError(t, err)

	require.NoError(t, store.RemoveConversation(id))

	// the completion landed after the conversation was torn down
	require.NoError(t, store.ResolveTyping(id, placeholder.ID, "late"))

	_, err = store.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnreadCounter(t *testing.T) {
	store := newTestStore(t)

	id, err := store.CreateConversation("nova")
	require.NoError(t, err)

	store.IncrementUnread(id)
	store.IncrementUnread(id)

	conv, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 2, conv.Unread)

	store.MarkRead(id)
	conv, err = store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 0, conv.Unread)
}
