package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherFanOut(t *testing.T) {
	sink := NewChanSink(16)
	pub := NewPublisher("wf-1", sink)

	err := pub.PublishStageStarted(context.Background(), StageStartedPayload{
		StageID: "design",
		RoleID:  "architect",
	})
	require.NoError(t, err)

	evs := sink.Drain()
	require.Len(t, evs, 1)
	assert.Equal(t, EventStageStarted, evs[0].Type)
	assert.Equal(t, "wf-1", evs[0].WorkflowID)
	assert.False(t, evs[0].Timestamp.IsZero())

	var payload StageStartedPayload
	require.NoError(t, json.Unmarshal(evs[0].Payload, &payload))
	assert.Equal(t, "design", payload.StageID)
	assert.Equal(t, "architect", payload.RoleID)
}

func TestNilPublisherIsSafe(t *testing.T) {
	var pub *Publisher
	assert.NoError(t, pub.PublishStageStarted(context.Background(), StageStartedPayload{StageID: "s"}))
	assert.NoError(t, pub.PublishSkillProgress(context.Background(), SkillProgressPayload{Chunk: "x"}))
	assert.False(t, pub.StreamingEnabled())
}

func TestNoStreamEnvSuppressesProgress(t *testing.T) {
	t.Setenv(NoStreamEnvVar, "1")
	sink := NewChanSink(16)
	pub := NewPublisher("wf-1", sink)

	require.NoError(t, pub.PublishSkillProgress(context.Background(), SkillProgressPayload{
		SkillID: "s1", Chunk: "tok",
	}))
	require.NoError(t, pub.PublishSkillCompleted(context.Background(), SkillCompletedPayload{
		SkillID: "s1", ExecutionID: "e1", Status: "success",
	}))

	evs := sink.Drain()
	require.Len(t, evs, 1)
	assert.Equal(t, EventSkillCompleted, evs[0].Type)
	assert.False(t, pub.StreamingEnabled())
}

func TestChanSinkDropsWhenFull(t *testing.T) {
	sink := NewChanSink(1)
	pub := NewPublisher("wf-1", sink)

	require.NoError(t, pub.PublishTaskCreated(context.Background(), TaskCreatedPayload{TaskID: "t1"}))
	// Second publish overflows the buffer; the publisher surfaces the
	// sink error but the engine treats emission as best-effort.
	err := pub.PublishTaskCreated(context.Background(), TaskCreatedPayload{TaskID: "t2"})
	assert.Error(t, err)

	evs := sink.Drain()
	require.Len(t, evs, 1)
}
