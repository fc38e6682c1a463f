// Package ingest runs load operations: a background worker reads raw
// events channel by channel, renders and parses them, and delivers typed
// messages to the consumer over a bounded channel.
package ingest

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/coffersTech/eventscope/internal/model"
)

// Message is one item delivered from a load worker to the consumer.
type Message interface {
	message()
}

// Batch carries parsed records from one cursor page. Ownership of the
// records transfers to the consumer.
type Batch struct {
	Records []*model.Record
}

// Progress reports the cumulative record count after a channel finishes.
type Progress struct {
	Channel string
	Count   int
}

// Complete marks the end of the load. It is always the final message,
// including after cancellation.
type Complete struct {
	Total   int
	Elapsed time.Duration
}

// ChannelError reports a channel whose read failed; the load continues
// with the remaining channels.
type ChannelError struct {
	Channel string
	Err     string
}

func (Batch) message()        {}
func (Progress) message()     {}
func (Complete) message()     {}
func (ChannelError) message() {}

// sendCheckInterval is how often a blocked delivery re-checks
// cancellation so an abandoned consumer cannot strand the worker.
const sendCheckInterval = 50 * time.Millisecond

// Load is a handle to one running load operation. The consumer drains
// messages and may cancel; the worker goroutine owns the sending side.
type Load struct {
	// ID identifies the load in logs.
	ID uuid.UUID

	// Tail marks incremental tail loads, whose batches append to the
	// store instead of replacing it.
	Tail bool

	msgs      chan Message
	cancelled atomic.Bool
	done      chan struct{}
}

func newLoad(capacity int, tail bool) *Load {
	return &Load{
		ID:   uuid.New(),
		Tail: tail,
		msgs: make(chan Message, capacity),
		done: make(chan struct{}),
	}
}

// Cancel requests a cooperative stop. The worker notices at the next
// page boundary; already-delivered batches stay valid.
func (l *Load) Cancel() {
	l.cancelled.Store(true)
}

// Cancelled reports whether a stop has been requested.
func (l *Load) Cancelled() bool {
	return l.cancelled.Load()
}

// Drain returns all currently buffered messages without blocking.
func (l *Load) Drain() []Message {
	var out []Message
	for {
		select {
		case m := <-l.msgs:
			out = append(out, m)
		default:
			return out
		}
	}
}

// Done is closed when the worker goroutine has exited.
func (l *Load) Done() <-chan struct{} {
	return l.done
}

// send delivers m, blocking for back-pressure when the conduit is full.
// Returns false when the load was cancelled while blocked, so a consumer
// that cancelled and walked away does not strand the worker.
func (l *Load) send(m Message) bool {
	for {
		select {
		case l.msgs <- m:
			return true
		default:
		}
		select {
		case l.msgs <- m:
			return true
		case <-time.After(sendCheckInterval):
			if l.Cancelled() {
				return false
			}
		}
	}
}
