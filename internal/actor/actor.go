// Package actor provides a minimal single-threaded message-processing
// unit: a Mailbox runs every enqueued function on one goroutine, in
// the order it was submitted, so handlers never need a lock to guard
// their own state. The schema actor, metadata coordinator, and
// namespace data actors are all built on top of it.
package actor

import (
	"context"
	"sync"

	"github.com/aogier/nsdb/internal/errors"
)

// Mailbox is a FIFO queue of work items processed by a single
// consumer goroutine, started and stopped the way the core's
// background daemons are: an explicit Start/Stop pair guarded by a
// mutex, with Stop blocking until the consumer goroutine has drained.
type Mailbox struct {
	inbox chan func()

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMailbox creates a Mailbox with the given inbox buffer size. A
// buffer of 0 makes Tell/Ask block until the consumer goroutine is
// ready for the next message.
func NewMailbox(bufferSize int) *Mailbox {
	return &Mailbox{inbox: make(chan func(), bufferSize)}
}

// Start begins processing messages. Start is idempotent: calling it on
// an already-running Mailbox is a no-op.
func (m *Mailbox) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	go m.run(runCtx)
}

func (m *Mailbox) run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-m.inbox:
			task()
		}
	}
}

// Stop cancels the consumer goroutine and waits for it to exit.
// Messages still sitting in the inbox are dropped. Stop on a
// non-running Mailbox is a no-op.
func (m *Mailbox) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done
}

// Tell enqueues fn to run on the actor's goroutine without waiting for
// it to complete; this is fire-and-forget delivery.
func (m *Mailbox) Tell(fn func()) {
	m.inbox <- fn
}

// askResult carries a typed reply back out of the actor's goroutine.
type askResult[Resp any] struct {
	value Resp
	err   error
}

// Ask submits fn to run on the actor's goroutine and blocks for its
// result, or until ctx's deadline passes, in which case it returns an
// errors.NewTimedOut naming operation. Ask is the only way a caller
// outside the actor's own goroutine should read a response out of its
// state: fn runs with the same serialization guarantee as Tell.
func Ask[Resp any](ctx context.Context, m *Mailbox, operation string, fn func() (Resp, error)) (Resp, error) {
	reply := make(chan askResult[Resp], 1)

	task := func() {
		v, err := fn()
		reply <- askResult[Resp]{value: v, err: err}
	}

	select {
	case m.inbox <- task:
	case <-ctx.Done():
		var zero Resp
		return zero, errors.NewTimedOut(operation)
	}

	select {
	case r := <-reply:
		return r.value, r.err
	case <-ctx.Done():
		var zero Resp
		return zero, errors.NewTimedOut(operation)
	}
}
