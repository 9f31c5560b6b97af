package transfer

import (
	"context"
	"time"

	"queue2blob/internal/metrics"
	"queue2blob/internal/queue"
	"queue2blob/internal/storage"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// fakeQueue hands out one batch per Receive and records every delete call
type fakeQueue struct {
	batches    [][]queue.Message
	receiveErr error
	deleteErr  error
	receives   int
	deletes    [][]queue.DeleteEntry
}

func (q *fakeQueue) Receive(ctx context.Context, max int) ([]queue.Message, error) {
	q.receives++
	if q.receiveErr != nil {
		return nil, q.receiveErr
	}
	if len(q.batches) == 0 {
		return nil, nil
	}
	batch := q.batches[0]
	q.batches = q.batches[1:]
	return batch, nil
}

func (q *fakeQueue) DeleteBatch(ctx context.Context, entries []queue.DeleteEntry) error {
	q.deletes = append(q.deletes, append([]queue.DeleteEntry(nil), entries...))
	return q.deleteErr
}

// fakeStore returns the configured status sequence per object; the last status repeats
type fakeStore struct {
	statuses    map[string][]storage.CopyStatus
	statusErr   map[string]error
	startErr    map[string]error
	starts      []startCall
	statusCalls map[string]int
}

type startCall struct {
	container string
	name      string
	sourceURL string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		statuses:    map[string][]storage.CopyStatus{},
		statusErr:   map[string]error{},
		startErr:    map[string]error{},
		statusCalls: map[string]int{},
	}
}

func (s *fakeStore) EnsureContainer(ctx context.Context, container string) error {
	return nil
}

func (s *fakeStore) StartCopy(ctx context.Context, container, name, sourceURL string) (storage.CopyHandle, error) {
	s.starts = append(s.starts, startCall{container: container, name: name, sourceURL: sourceURL})
	if err := s.startErr[name]; err != nil {
		return storage.CopyHandle{}, err
	}
	return storage.CopyHandle{ID: "copy-" + name, Status: storage.CopyPending}, nil
}

func (s *fakeStore) CopyStatus(ctx context.Context, container, name string) (storage.CopyState, error) {
	i := s.statusCalls[name]
	s.statusCalls[name]++
	if err := s.statusErr[name]; err != nil {
		return storage.CopyState{}, err
	}

	seq := s.statuses[name]
	if len(seq) == 0 {
		return storage.CopyState{Status: storage.CopySuccess, Size: 1024}, nil
	}
	if i >= len(seq) {
		i = len(seq) - 1
	}
	return storage.CopyState{Status: seq[i], Progress: "0/1024", Size: 1024}, nil
}

// instantTimer fires as soon as it is started and records the requested waits
type instantTimer struct {
	c     chan time.Time
	waits []time.Duration
}

func newInstantTimer() *instantTimer {
	return &instantTimer{c: make(chan time.Time, 1)}
}

func (t *instantTimer) Start(d time.Duration) {
	t.waits = append(t.waits, d)
	t.c <- time.Time{}
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time {
	return t.c
}

func newTestPoller(store storage.BlobStore, timer *instantTimer) *CopyPoller {
	p := NewCopyPoller(store, DefaultPollInterval, DefaultPollAttempts, zap.NewNop())
	p.NewTimer = func() backoff.Timer { return timer }
	return p
}

func newTestEngine(q queue.Queue, store *fakeStore) (*Engine, *instantTimer) {
	timer := newInstantTimer()
	e := NewEngine(Config{
		Container:   "dest",
		S3Region:    "s3.amazonaws.com",
		MaxMessages: 10,
	}, q, store, newTestPoller(store, timer), metrics.New(), zap.NewNop())
	return e, timer
}
