package engine

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/coffersTech/eventscope/internal/config"
	"github.com/coffersTech/eventscope/internal/ingest"
	"github.com/coffersTech/eventscope/internal/metrics"
	"github.com/coffersTech/eventscope/internal/model"
)

// SortKey selects the column the filtered projection is ordered by.
type SortKey int

const (
	SortByTimestamp SortKey = iota
	SortByLevel
	SortByID
	SortByProvider
	SortByMessage
)

func (k SortKey) String() string {
	switch k {
	case SortByTimestamp:
		return "timestamp"
	case SortByLevel:
		return "level"
	case SortByID:
		return "id"
	case SortByProvider:
		return "provider"
	case SortByMessage:
		return "message"
	}
	return "unknown"
}

// Phase is the load state machine. Cancelling is a sub-state of loading:
// a stop was requested but the worker has not yet confirmed with
// Complete.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseCancelling
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseCancelling:
		return "cancelling"
	}
	return "idle"
}

// Issue is one retained per-channel read failure.
type Issue struct {
	Channel string
	Message string
}

// Store owns all ingested records plus the filtered, sorted projection
// the consumer displays. Not safe for concurrent use; the consumer
// drains load messages and edits filters from a single goroutine.
type Store struct {
	criteria *Criteria

	records  []*model.Record
	filtered []int // indices into records, in display order
	selected int   // position in filtered, -1 for none

	sortKey   SortKey
	ascending bool

	maxRecords int
	phase      Phase
	issues     []Issue

	lastTotal   int
	lastElapsed time.Duration

	log zerolog.Logger
}

// NewStore builds an empty store. maxRecords bounds total retention;
// once exceeded the oldest records are evicted. The default sort is
// newest first.
func NewStore(criteria *Criteria, maxRecords int, log zerolog.Logger) *Store {
	if maxRecords <= 0 {
		maxRecords = config.MaxTotalRecordsCap
	}
	return &Store{
		criteria:   criteria,
		selected:   -1,
		sortKey:    SortByTimestamp,
		ascending:  false,
		maxRecords: maxRecords,
		log:        log,
	}
}

// Criteria returns the store's filter state for editing. Call Refilter
// after the relevant derive step to make edits visible.
func (s *Store) Criteria() *Criteria { return s.criteria }

// BeginLoad resets the store for a fresh full load.
func (s *Store) BeginLoad() {
	s.records = nil
	s.filtered = nil
	s.selected = -1
	s.issues = nil
	s.phase = PhaseLoading
	metrics.StoredRecords.Set(0)
}

// BeginTail marks an incremental load; existing records are kept.
func (s *Store) BeginTail() {
	s.phase = PhaseLoading
}

// RequestCancel moves a running load into the cancelling state. Returns
// false when no load is running.
func (s *Store) RequestCancel() bool {
	if s.phase != PhaseLoading {
		return false
	}
	s.phase = PhaseCancelling
	return true
}

// Apply folds one load message into the store. Returns true when the
// projection changed and callers should refresh their view. The
// projection itself is already recomputed here.
func (s *Store) Apply(m ingest.Message) bool {
	switch m := m.(type) {
	case ingest.Batch:
		s.append(m.Records)
		s.Refilter()
		return true
	case ingest.Progress:
		return false
	case ingest.ChannelError:
		s.addIssue(Issue{Channel: m.Channel, Message: m.Err})
		return false
	case ingest.Complete:
		s.lastTotal = m.Total
		s.lastElapsed = m.Elapsed
		s.phase = PhaseIdle
		s.log.Debug().Int("total", m.Total).Dur("elapsed", m.Elapsed).
			Int("issues", len(s.issues)).Msg("load complete")
		return false
	}
	return false
}

// ApplyAll folds a drained message slice, reporting whether any message
// changed the projection.
func (s *Store) ApplyAll(msgs []ingest.Message) bool {
	changed := false
	for _, m := range msgs {
		if s.Apply(m) {
			changed = true
		}
	}
	return changed
}

// append adds a batch and enforces the retention cap by evicting the
// oldest records. Eviction shifts every index, so the projection and
// selection are invalidated rather than patched.
func (s *Store) append(batch []*model.Record) {
	s.records = append(s.records, batch...)
	if over := len(s.records) - s.maxRecords; over > 0 {
		n := copy(s.records, s.records[over:])
		for i := n; i < len(s.records); i++ {
			s.records[i] = nil
		}
		s.records = s.records[:n]
		s.filtered = nil
		s.selected = -1
		s.log.Warn().Int("evicted", over).Int("cap", s.maxRecords).
			Msg("retention cap reached, dropping oldest records")
	}
	metrics.StoredRecords.Set(float64(len(s.records)))
}

func (s *Store) addIssue(issue Issue) {
	if len(s.issues) >= config.MaxErrors {
		s.issues = s.issues[1:]
	}
	s.issues = append(s.issues, issue)
}

// Refilter recomputes the projection from scratch: re-match every
// record, re-sort, then restore the selection by record identity. A
// vanished selection clamps to the last row; an empty projection clears
// it.
func (s *Store) Refilter() {
	prev := s.selectedRecord()

	s.filtered = s.filtered[:0]
	for i, r := range s.records {
		if s.criteria.Matches(r) {
			s.filtered = append(s.filtered, i)
		}
	}
	s.sortFiltered()
	s.restoreSelection(prev)
}

// Resort reorders the existing projection without re-matching, used
// when only the sort changed.
func (s *Store) Resort() {
	prev := s.selectedRecord()
	s.sortFiltered()
	s.restoreSelection(prev)
}

// SetSort changes the sort order. Selecting the same key again flips
// the direction.
func (s *Store) SetSort(key SortKey, ascending bool) {
	s.sortKey = key
	s.ascending = ascending
	s.Resort()
}

// Sort returns the current sort key and direction.
func (s *Store) Sort() (SortKey, bool) {
	return s.sortKey, s.ascending
}

func (s *Store) sortFiltered() {
	key, asc := s.sortKey, s.ascending
	recs := s.records
	sort.SliceStable(s.filtered, func(a, b int) bool {
		ra, rb := recs[s.filtered[a]], recs[s.filtered[b]]
		var less bool
		switch key {
		case SortByLevel:
			less = ra.Level < rb.Level
		case SortByID:
			less = ra.EventID < rb.EventID
		case SortByProvider:
			less = ra.Provider < rb.Provider
		case SortByMessage:
			less = ra.DisplayMessage() < rb.DisplayMessage()
		default:
			less = ra.Timestamp.Before(rb.Timestamp)
		}
		if !asc {
			return !less && !equalByKey(ra, rb, key)
		}
		return less
	})
}

func equalByKey(a, b *model.Record, key SortKey) bool {
	switch key {
	case SortByLevel:
		return a.Level == b.Level
	case SortByID:
		return a.EventID == b.EventID
	case SortByProvider:
		return a.Provider == b.Provider
	case SortByMessage:
		return a.DisplayMessage() == b.DisplayMessage()
	default:
		return a.Timestamp.Equal(b.Timestamp)
	}
}

func (s *Store) selectedRecord() *model.Record {
	if s.selected < 0 || s.selected >= len(s.filtered) {
		return nil
	}
	return s.records[s.filtered[s.selected]]
}

func (s *Store) restoreSelection(prev *model.Record) {
	if prev == nil {
		s.selected = -1
		return
	}
	for pos, idx := range s.filtered {
		if s.records[idx] == prev {
			s.selected = pos
			return
		}
	}
	// The selected record fell out of the projection; keep the cursor
	// usable by clamping to the last row.
	s.selected = len(s.filtered) - 1
}

// Select moves the selection to a position in the filtered projection.
func (s *Store) Select(pos int) bool {
	if pos < 0 || pos >= len(s.filtered) {
		return false
	}
	s.selected = pos
	return true
}

// ClearSelection drops the selection.
func (s *Store) ClearSelection() {
	s.selected = -1
}

// SelectedIndex returns the selection position in the projection, -1
// for none.
func (s *Store) SelectedIndex() int { return s.selected }

// Selected returns the selected record, nil for none.
func (s *Store) Selected() *model.Record {
	return s.selectedRecord()
}

// Len is the total number of records held.
func (s *Store) Len() int { return len(s.records) }

// FilteredLen is the size of the current projection.
func (s *Store) FilteredLen() int { return len(s.filtered) }

// At returns the record at a projection position, nil when out of range.
func (s *Store) At(pos int) *model.Record {
	if pos < 0 || pos >= len(s.filtered) {
		return nil
	}
	return s.records[s.filtered[pos]]
}

// Visible returns the projection in display order. The slice is fresh
// but the records are shared; clone before mutating.
func (s *Store) Visible() []*model.Record {
	out := make([]*model.Record, len(s.filtered))
	for i, idx := range s.filtered {
		out[i] = s.records[idx]
	}
	return out
}

// Phase returns the load state.
func (s *Store) Phase() Phase { return s.phase }

// Issues returns the retained per-channel errors, oldest first.
func (s *Store) Issues() []Issue { return s.issues }

// LastLoad reports the totals from the most recent Complete message.
func (s *Store) LastLoad() (total int, elapsed time.Duration) {
	return s.lastTotal, s.lastElapsed
}

// NewestTimestamp returns the newest record timestamp across all held
// records, for anchoring tail loads. ok is false when the store is
// empty.
func (s *Store) NewestTimestamp() (ts time.Time, ok bool) {
	for _, r := range s.records {
		if !ok || r.Timestamp.After(ts) {
			ts = r.Timestamp
			ok = true
		}
	}
	return ts, ok
}
