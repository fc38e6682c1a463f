// Package source abstracts where raw event records come from: a compressed
// offline archive, a live system event log, or an in-memory fixture in
// tests. Sources hand out opaque handles; rendering and message formatting
// are separate steps so the reader can reuse buffers and skip individual
// bad records without abandoning the channel.
package source

import (
	"time"

	"github.com/coffersTech/eventscope/internal/model"
)

// Handle is an opaque reference to one raw event held by a source. Only
// the source that produced it knows how to render or format it.
type Handle interface{}

// Predicate narrows a channel query to a time window. Zero bounds mean
// unbounded on that side; both bounds are inclusive.
type Predicate struct {
	From time.Time
	To   time.Time
}

// Contains reports whether ts falls inside the window.
func (p Predicate) Contains(ts time.Time) bool {
	if !p.From.IsZero() && ts.Before(p.From) {
		return false
	}
	if !p.To.IsZero() && ts.After(p.To) {
		return false
	}
	return true
}

// Unbounded reports whether the predicate matches everything.
func (p Predicate) Unbounded() bool {
	return p.From.IsZero() && p.To.IsZero()
}

// Cursor pages through the raw handles of one channel query, oldest
// first. Next blocks up to wait for results; implementations return
// ErrTimedOut when the wait elapses so callers can re-check cancellation.
type Cursor interface {
	// Next returns up to max handles. An empty batch with a nil error,
	// or ErrNoMoreItems, both end the stream.
	Next(max int, wait time.Duration) ([]Handle, error)

	Close() error
}

// Querier opens cursors over named channels.
type Querier interface {
	Query(channel string, pred Predicate) (Cursor, error)
}

// Renderer serializes a handle's raw payload into buf, returning the
// number of bytes written. When buf is too small it returns a
// *BufferSizeError carrying the required size; the caller grows the
// buffer and retries.
type Renderer interface {
	Render(h Handle, buf []byte) (int, error)
}

// MessageFormatter resolves the human-readable message for a record using
// provider metadata. A false return means no template was available and
// the caller should fall back to a synthesized message.
type MessageFormatter interface {
	Format(h Handle, rec *model.Record) (string, bool)
}

// Catalog enumerates the channels a source can serve.
type Catalog interface {
	Channels() ([]string, error)
}
