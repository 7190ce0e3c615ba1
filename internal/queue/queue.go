// Package queue implements the adapter's single-writer/many-producer
// receive queue and its dispatch loop (component B).
package queue

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// MessageType classifies a response message for dispatch.
type MessageType int

const (
	GeneralResponse MessageType = iota
	BrowseResponse
	Report
	Error
)

// Message is one outbound response. Exactly the fields relevant to Type
// are expected to be populated by the producer; the dispatcher does not
// interpret the payload, only routes it.
type Message struct {
	Type     MessageType
	Endpoint string
	Payload  any
}

// Callbacks are the application-facing handlers the dispatcher invokes,
// one per message type, per spec §4.2/§6.1.
type Callbacks struct {
	OnResponse func(Message)
	OnBrowse   func(Message)
	OnReport   func(Message)
	OnError    func(Message)
}

// Mirror receives a best-effort copy of every dispatched message, used by
// internal/eventbus and internal/wsmonitor. Offer must never block; a full
// sink should drop the message.
type Mirror interface {
	Offer(Message)
}

// Queue is a FIFO of response messages with a single consumer goroutine.
// Producers call Enqueue from any goroutine; delivery to callbacks happens
// in enqueue order per-producer (spec §5 ordering guarantee).
type Queue struct {
	logger    *zap.Logger
	callbacks Callbacks

	mu      sync.Mutex
	mirrors []Mirror

	ch     chan Message
	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a queue with the given buffer depth and callback set. Start
// must be called to begin dispatching.
func New(logger *zap.Logger, bufferSize int, callbacks Callbacks) *Queue {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Queue{
		logger:    logger,
		callbacks: callbacks,
		ch:        make(chan Message, bufferSize),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// AddMirror registers a best-effort mirror sink. Not safe to call
// concurrently with Offer from the dispatch loop's perspective — call
// before Start.
func (q *Queue) AddMirror(m Mirror) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.mirrors = append(q.mirrors, m)
}

// Enqueue hands ownership of msg to the queue. The producer must not
// reference msg's payload again; callbacks that want to retain data copy
// it themselves.
func (q *Queue) Enqueue(msg Message) {
	select {
	case q.ch <- msg:
	case <-q.stopCh:
	}
}

// Start launches the single dispatch goroutine. It returns immediately.
func (q *Queue) Start(ctx context.Context) {
	go q.run(ctx)
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.doneCh)
	for {
		select {
		case msg := <-q.ch:
			q.dispatch(msg)
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (q *Queue) dispatch(msg Message) {
	switch msg.Type {
	case GeneralResponse:
		if q.callbacks.OnResponse != nil {
			q.callbacks.OnResponse(msg)
		}
	case BrowseResponse:
		if q.callbacks.OnBrowse != nil {
			q.callbacks.OnBrowse(msg)
		}
	case Report:
		if q.callbacks.OnReport != nil {
			q.callbacks.OnReport(msg)
		}
	case Error:
		if q.callbacks.OnError != nil {
			q.callbacks.OnError(msg)
		}
	default:
		q.logger.Warn("dropping message with unknown type", zap.Int("type", int(msg.Type)))
		return
	}

	q.mu.Lock()
	mirrors := q.mirrors
	q.mu.Unlock()
	for _, m := range mirrors {
		m.Offer(msg)
	}
}

// Stop signals the dispatch goroutine to exit and waits for it to return.
// Messages still buffered in the queue are not guaranteed to be dispatched.
func (q *Queue) Stop() {
	select {
	case <-q.stopCh:
		// already stopped
	default:
		close(q.stopCh)
	}
	<-q.doneCh
}
