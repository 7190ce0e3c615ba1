package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingMirror struct {
	mu  sync.Mutex
	got []Message
}

func (r *recordingMirror) Offer(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, m)
}

func (r *recordingMirror) snapshot() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.got))
	copy(out, r.got)
	return out
}

func TestQueue_DispatchesByType(t *testing.T) {
	var got []MessageType
	var mu sync.Mutex
	record := func(m Message) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, m.Type)
	}

	q := New(zap.NewNop(), 16, Callbacks{
		OnResponse: record,
		OnBrowse:   record,
		OnReport:   record,
		OnError:    record,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	q.Enqueue(Message{Type: GeneralResponse})
	q.Enqueue(Message{Type: BrowseResponse})
	q.Enqueue(Message{Type: Report})
	q.Enqueue(Message{Type: Error})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 4
	}, time.Second, time.Millisecond)

	assert.Equal(t, []MessageType{GeneralResponse, BrowseResponse, Report, Error}, got)
}

func TestQueue_PreservesPerProducerOrder(t *testing.T) {
	var order []int
	var mu sync.Mutex

	q := New(zap.NewNop(), 256, Callbacks{
		OnReport: func(m Message) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, m.Payload.(int))
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	for i := 0; i < 50; i++ {
		q.Enqueue(Message{Type: Report, Payload: i})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 50
	}, time.Second, time.Millisecond)

	for i := 0; i < 50; i++ {
		assert.Equal(t, i, order[i])
	}
}

func TestQueue_MirrorReceivesCopy(t *testing.T) {
	mirror := &recordingMirror{}
	q := New(zap.NewNop(), 16, Callbacks{OnReport: func(Message) {}})
	q.AddMirror(mirror)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	q.Enqueue(Message{Type: Report, Payload: "tick"})

	require.Eventually(t, func() bool {
		return len(mirror.snapshot()) == 1
	}, time.Second, time.Millisecond)
}
