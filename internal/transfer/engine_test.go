package transfer

import (
	"context"
	"errors"
	"testing"

	"queue2blob/internal/event"
	"queue2blob/internal/queue"
	"queue2blob/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	bodyA        = `{"Records":[{"awsRegion":"us-east-1","s3":{"bucket":{"name":"b1"},"object":{"key":"k1.txt"}}}]}`
	bodyB        = `{"Records":[{"awsRegion":"us-east-1","s3":{"bucket":{"name":"b1"},"object":{"key":"dir/k2.csv"}}}]}`
	bodyEmpty    = `{}`
	bodyOther    = `{"foo":"bar"}`
	bodyNoRecord = `{"Records":[]}`
)

func msg(id, body string) queue.Message {
	return queue.Message{ID: id, ReceiptHandle: "rh-" + id, Body: body}
}

func entry(id string) queue.DeleteEntry {
	return queue.DeleteEntry{ID: id, ReceiptHandle: "rh-" + id}
}

func TestEngine_TransfersObjectCreationEvent(t *testing.T) {
	q := &fakeQueue{batches: [][]queue.Message{{msg("m1", bodyA)}}}
	store := newFakeStore()
	e, _ := newTestEngine(q, store)

	res := e.RunCycle(context.Background())

	require.NoError(t, res.Err)
	assert.True(t, res.OK())
	assert.Equal(t, []startCall{{
		container: "dest",
		name:      "k1.txt",
		sourceURL: "https://s3.amazonaws.com/b1/k1.txt",
	}}, store.starts)
	assert.Equal(t, [][]queue.DeleteEntry{{entry("m1")}}, q.deletes)
	assert.Equal(t, 1, res.Transferred)
	assert.Equal(t, 2, q.receives, "queue is drained until a batch has nothing to delete")
	assert.NotEmpty(t, res.ID)
}

func TestEngine_EmptyBodyIsLeftInQueue(t *testing.T) {
	q := &fakeQueue{batches: [][]queue.Message{{msg("m1", bodyEmpty)}}}
	store := newFakeStore()
	e, _ := newTestEngine(q, store)

	res := e.RunCycle(context.Background())

	assert.True(t, res.OK())
	assert.Empty(t, q.deletes)
	assert.Empty(t, store.starts)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, q.receives)
}

func TestEngine_NonTransferableIsDeletedWithoutCopy(t *testing.T) {
	q := &fakeQueue{batches: [][]queue.Message{{msg("m1", bodyOther)}}}
	store := newFakeStore()
	e, _ := newTestEngine(q, store)

	res := e.RunCycle(context.Background())

	assert.True(t, res.OK())
	assert.Empty(t, store.starts)
	assert.Equal(t, [][]queue.DeleteEntry{{entry("m1")}}, q.deletes)
	assert.Equal(t, 1, res.Discarded)
}

func TestEngine_EmptyRecordsAbortsCycle(t *testing.T) {
	q := &fakeQueue{batches: [][]queue.Message{{
		msg("m1", bodyOther),
		msg("m2", bodyNoRecord),
		msg("m3", bodyA),
	}}}
	store := newFakeStore()
	e, _ := newTestEngine(q, store)

	res := e.RunCycle(context.Background())

	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Err, ErrIndexMismatch)
	assert.Empty(t, store.starts, "messages after the mismatch are not processed")
	assert.Empty(t, q.deletes, "nothing from the aborted batch is acknowledged")
	assert.Equal(t, 1, q.receives)
}

func TestEngine_MalformedBodyAbortsCycle(t *testing.T) {
	q := &fakeQueue{batches: [][]queue.Message{{
		msg("m1", bodyA),
		msg("m2", "not json"),
		msg("m3", bodyB),
	}}}
	store := newFakeStore()
	e, _ := newTestEngine(q, store)

	res := e.RunCycle(context.Background())

	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Err, ErrMalformedMessage)
	require.Len(t, store.starts, 1)
	assert.Equal(t, "k1.txt", store.starts[0].name)
	assert.Empty(t, q.deletes)
}

func TestEngine_CopyTimeoutRetainsMessage(t *testing.T) {
	q := &fakeQueue{batches: [][]queue.Message{{msg("m1", bodyA)}}}
	store := newFakeStore()
	store.statuses["k1.txt"] = []storage.CopyStatus{storage.CopyPending}
	e, timer := newTestEngine(q, store)

	res := e.RunCycle(context.Background())

	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Err, ErrCopyTimeout)
	assert.Equal(t, 51, store.statusCalls["k1.txt"])
	assert.Len(t, timer.waits, 50)
	assert.Empty(t, q.deletes)
	assert.Equal(t, 1, res.Retained)
}

func TestEngine_CopyFailureContinuesBatch(t *testing.T) {
	q := &fakeQueue{batches: [][]queue.Message{{
		msg("m1", bodyA),
		msg("m2", bodyB),
		msg("m3", bodyOther),
	}}}
	store := newFakeStore()
	store.startErr["k1.txt"] = storage.ErrConnection
	e, _ := newTestEngine(q, store)

	res := e.RunCycle(context.Background())

	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Err, ErrCopyFailed)
	assert.ErrorIs(t, res.Err, storage.ErrConnection)
	assert.Len(t, store.starts, 2)
	assert.Equal(t, [][]queue.DeleteEntry{{entry("m2"), entry("m3")}}, q.deletes)
	assert.Equal(t, 1, res.Retained)
	assert.Equal(t, 1, res.Transferred)
	assert.Equal(t, 1, res.Discarded)
}

func TestEngine_TerminalCopyFailure(t *testing.T) {
	q := &fakeQueue{batches: [][]queue.Message{{msg("m1", bodyA)}}}
	store := newFakeStore()
	store.statuses["k1.txt"] = []storage.CopyStatus{storage.CopyPending, storage.CopyFailed}
	e, _ := newTestEngine(q, store)

	res := e.RunCycle(context.Background())

	assert.ErrorIs(t, res.Err, ErrCopyFailed)
	assert.Equal(t, 2, store.statusCalls["k1.txt"])
	assert.Empty(t, q.deletes)
}

func TestEngine_DeleteFailureFailsCycle(t *testing.T) {
	q := &fakeQueue{
		batches:   [][]queue.Message{{msg("m1", bodyA)}, {msg("m2", bodyB)}},
		deleteErr: &queue.PartialFailureError{Failed: []queue.FailedEntry{{ID: "m1", Code: "ReceiptHandleIsInvalid"}}},
	}
	store := newFakeStore()
	e, _ := newTestEngine(q, store)

	res := e.RunCycle(context.Background())

	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Err, ErrDeleteFailed)
	assert.ErrorIs(t, res.Err, queue.ErrPartialFailure)
	assert.Equal(t, 1, res.Transferred, "the copy itself happened")
	assert.Equal(t, 1, q.receives, "no further batches after a failed delete")
}

func TestEngine_ReceiveFailure(t *testing.T) {
	q := &fakeQueue{receiveErr: queue.ErrConnection}
	store := newFakeStore()
	e, _ := newTestEngine(q, store)

	res := e.RunCycle(context.Background())

	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Err, queue.ErrConnection)
	assert.Zero(t, res.Batches)
}

func TestEngine_DrainsQueue(t *testing.T) {
	q := &fakeQueue{batches: [][]queue.Message{
		{msg("m1", bodyA), msg("m2", bodyOther)},
		{msg("m3", bodyB)},
		{msg("m4", bodyEmpty)},
		{msg("m5", bodyA)},
	}}
	store := newFakeStore()
	e, _ := newTestEngine(q, store)

	res := e.RunCycle(context.Background())

	assert.True(t, res.OK())
	assert.Equal(t, [][]queue.DeleteEntry{
		{entry("m1"), entry("m2")},
		{entry("m3")},
	}, q.deletes)
	assert.Equal(t, 3, res.Batches, "batch with nothing to delete ends the cycle")
	assert.Equal(t, 4, res.Received)
	assert.Len(t, q.batches, 1)
}

func TestEngine_RedeliveredMessageIsCopiedAgain(t *testing.T) {
	store := newFakeStore()

	first := &fakeQueue{
		batches:   [][]queue.Message{{msg("m1", bodyA)}},
		deleteErr: queue.ErrConnection,
	}
	e, _ := newTestEngine(first, store)
	res := e.RunCycle(context.Background())
	require.ErrorIs(t, res.Err, ErrDeleteFailed)

	second := &fakeQueue{batches: [][]queue.Message{{msg("m1", bodyA)}}}
	e, _ = newTestEngine(second, store)
	res = e.RunCycle(context.Background())

	assert.True(t, res.OK())
	require.Len(t, store.starts, 2)
	assert.Equal(t, store.starts[0], store.starts[1])
	assert.Equal(t, [][]queue.DeleteEntry{{entry("m1")}}, second.deletes)
}

// Every message ends up deleted exactly when it was transferred or is not an object
// creation event.
func TestEngine_DeletesIffSuccessOrNonTransferable(t *testing.T) {
	store := newFakeStore()
	store.statuses["pending.txt"] = []storage.CopyStatus{storage.CopyPending}
	store.statuses["failed.txt"] = []storage.CopyStatus{storage.CopyFailed}
	store.startErr["nostart.txt"] = errors.New("boom")

	body := func(key string) string {
		return `{"Records":[{"awsRegion":"us-east-1","s3":{"bucket":{"name":"b1"},"object":{"key":"` + key + `"}}}]}`
	}
	messages := []queue.Message{
		msg("ok", body("ok.txt")),
		msg("pending", body("pending.txt")),
		msg("failed", body("failed.txt")),
		msg("nostart", body("nostart.txt")),
		msg("other", bodyOther),
		msg("empty", bodyEmpty),
	}
	q := &fakeQueue{batches: [][]queue.Message{messages}}
	e, _ := newTestEngine(q, store)

	res := e.RunCycle(context.Background())
	require.Len(t, q.deletes, 1)

	deleted := map[string]bool{}
	for _, d := range q.deletes[0] {
		assert.False(t, deleted[d.ID], "duplicate delete of %s", d.ID)
		deleted[d.ID] = true
	}

	for _, m := range messages {
		c := event.Classify(m.Body)
		want := m.ID == "ok" || c.Kind == event.KindNonTransferable
		assert.Equal(t, want, deleted[m.ID], m.ID)
	}
	assert.False(t, res.OK())
	assert.Equal(t, 3, res.Retained)
}

func TestNewRequest(t *testing.T) {
	req := NewRequest("s3-us-west-2.amazonaws.com", event.ObjectCreated{
		Region: "us-west-2",
		Bucket: "uploads",
		Key:    "2024/report+final.pdf",
	})

	assert.Equal(t, Request{
		Name:      "2024/report+final.pdf",
		SourceURL: "https://s3-us-west-2.amazonaws.com/uploads/2024/report+final.pdf",
		Bucket:    "uploads",
		Region:    "us-west-2",
	}, req)
}
