package bus

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolewise/rolewise/pkg/models"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	b.Register("alice")
	b.Register("bob")

	require.NoError(t, b.Publish(models.AgentMessage{
		From: "alice", To: "bob", Kind: models.MessageRequest,
		Payload: map[string]any{"ask": "review"},
	}))

	msgs := b.Subscribe("bob")
	require.Len(t, msgs, 1)
	assert.Equal(t, "alice", msgs[0].From)
	assert.NotEmpty(t, msgs[0].ID)
	assert.False(t, msgs[0].Timestamp.IsZero())

	// Subscribe drains.
	assert.Empty(t, b.Subscribe("bob"))
}

func TestPublishUnknownRecipient(t *testing.T) {
	b := New()
	b.Register("alice")
	err := b.Publish(models.AgentMessage{From: "alice", To: "ghost"})
	require.Error(t, err)
}

func TestFIFOPerSenderRecipientPair(t *testing.T) {
	b := New()
	b.Register("alice")
	b.Register("bob")

	for i := 0; i < 20; i++ {
		require.NoError(t, b.Publish(models.AgentMessage{
			From: "alice", To: "bob",
			Payload: map[string]any{"seq": i},
		}))
	}

	msgs := b.Subscribe("bob")
	require.Len(t, msgs, 20)
	for i, msg := range msgs {
		assert.Equal(t, i, msg.Payload["seq"])
		if i > 0 {
			assert.True(t, msg.Timestamp.After(msgs[i-1].Timestamp))
		}
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	b := New()
	b.Register("alice")
	b.Register("bob")
	b.Register("carol")

	require.NoError(t, b.Publish(models.AgentMessage{
		From: "alice", To: models.BroadcastTarget, Kind: models.MessageNotification,
	}))

	assert.Empty(t, b.Peek("alice"))
	require.Len(t, b.Peek("bob"), 1)
	require.Len(t, b.Peek("carol"), 1)
	assert.Equal(t, "bob", b.Peek("bob")[0].To)
}

func TestPeekDoesNotDrain(t *testing.T) {
	b := New()
	b.Register("bob")
	require.NoError(t, b.Publish(models.AgentMessage{From: "x", To: "bob"}))

	assert.Len(t, b.Peek("bob"), 1)
	assert.Len(t, b.Peek("bob"), 1)
	assert.Len(t, b.Subscribe("bob"), 1)
}

func TestSharedContextLastWriterWins(t *testing.T) {
	b := New()

	b.ShareContext("design", "v1", "alice")
	b.ShareContext("design", "v2", "bob")

	entry, ok := b.GetContext("design")
	require.True(t, ok)
	assert.Equal(t, "v2", entry.Value)
	assert.Equal(t, "bob", entry.Owner)

	_, ok = b.GetContext("missing")
	assert.False(t, ok)
}

func TestSharedContextConcurrentWriters(t *testing.T) {
	b := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			b.ShareContext("key", n, fmt.Sprintf("agent-%d", n))
		}(i)
	}
	wg.Wait()

	snapshot := b.ContextSnapshot()
	require.Len(t, snapshot, 1)

	// Whatever won, the stored timestamp is the newest one issued.
	entry := snapshot["key"]
	latest, ok := b.GetContext("key")
	require.True(t, ok)
	assert.Equal(t, entry, latest)
}

func TestRestoreContext(t *testing.T) {
	b := New()
	b.ShareContext("a", 1, "alice")
	snapshot := b.ContextSnapshot()

	restored := New()
	restored.RestoreContext(snapshot)
	entry, ok := restored.GetContext("a")
	require.True(t, ok)
	assert.Equal(t, 1, entry.Value)

	// Writes after restore stay ahead of restored timestamps.
	restored.ShareContext("a", 2, "bob")
	newer, _ := restored.GetContext("a")
	assert.True(t, newer.Timestamp.After(entry.Timestamp))
}

func TestJournalReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.jsonl")

	j, err := OpenJournal(path)
	require.NoError(t, err)

	b := New(WithJournal(j))
	b.Register("alice")
	b.Register("bob")
	require.NoError(t, b.Publish(models.AgentMessage{
		From: "alice", To: "bob", Kind: models.MessageRequest,
		Payload: map[string]any{"ask": "review"},
	}))
	b.ShareContext("design", "v1", "alice")
	require.NoError(t, b.Close())

	replayed := New()
	applied, err := Replay(path, replayed)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	msgs := replayed.Subscribe("bob")
	require.Len(t, msgs, 1)
	assert.Equal(t, "review", msgs[0].Payload["ask"])

	entry, ok := replayed.GetContext("design")
	require.True(t, ok)
	assert.Equal(t, "v1", entry.Value)
	assert.Equal(t, "alice", entry.Owner)
}

func TestReplayMissingFile(t *testing.T) {
	_, err := Replay(filepath.Join(t.TempDir(), "nope.jsonl"), New())
	require.Error(t, err)
}
