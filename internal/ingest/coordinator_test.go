package ingest

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/coffersTech/eventscope/internal/model"
	"github.com/coffersTech/eventscope/internal/source"
)

type lineHandle []byte

func payloadLine(id int) lineHandle {
	return lineHandle(fmt.Sprintf(
		`{"provider":"TestProv","event_id":%d,"level":4,"timestamp":"2024-06-15T10:%02d:00Z","message":"event %d"}`,
		id, id%60, id))
}

// step scripts one cursor call: either a page of handles or an error.
type step struct {
	handles []source.Handle
	err     error
}

func page(ids ...int) step {
	s := step{}
	for _, id := range ids {
		s.handles = append(s.handles, payloadLine(id))
	}
	return s
}

type scriptedCursor struct {
	mu     sync.Mutex
	steps  []step
	closed bool
}

func (c *scriptedCursor) Next(_ int, _ time.Duration) ([]source.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.steps) == 0 {
		return nil, source.ErrNoMoreItems
	}
	s := c.steps[0]
	c.steps = c.steps[1:]
	return s.handles, s.err
}

func (c *scriptedCursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type fakeQuerier struct {
	mu        sync.Mutex
	cursors   map[string]*scriptedCursor
	queryErrs map[string][]error
	calls     []string
	preds     []source.Predicate
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{
		cursors:   make(map[string]*scriptedCursor),
		queryErrs: make(map[string][]error),
	}
}

func (q *fakeQuerier) script(channel string, steps ...step) {
	q.cursors[channel] = &scriptedCursor{steps: steps}
}

func (q *fakeQuerier) Query(channel string, pred source.Predicate) (source.Cursor, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, channel)
	q.preds = append(q.preds, pred)
	if errs := q.queryErrs[channel]; len(errs) > 0 {
		err := errs[0]
		q.queryErrs[channel] = errs[1:]
		return nil, err
	}
	cur, ok := q.cursors[channel]
	if !ok {
		return nil, errors.New("channel not found")
	}
	return cur, nil
}

// fakeRenderer copies line handles, optionally demanding a larger buffer
// on its first call to exercise the grow-and-retry path.
type fakeRenderer struct {
	demand   int
	demanded bool
}

func (r *fakeRenderer) Render(h source.Handle, buf []byte) (int, error) {
	line, ok := h.(lineHandle)
	if !ok {
		return 0, errors.New("unrenderable handle")
	}
	if r.demand > 0 && !r.demanded {
		r.demanded = true
		return 0, &source.BufferSizeError{Needed: r.demand}
	}
	if len(buf) < len(line) {
		return 0, &source.BufferSizeError{Needed: len(line)}
	}
	return copy(buf, line), nil
}

func testCoordinator(q source.Querier, r source.Renderer, opts Options) *Coordinator {
	return NewCoordinator(q, r, source.NewTemplateFormatter(nil), opts, zerolog.Nop())
}

// collect waits for the worker to finish and returns every message it
// delivered. Complete is sent before the worker exits, so a drain after
// Done sees the full stream.
func collect(t *testing.T, load *Load) []Message {
	t.Helper()
	select {
	case <-load.Done():
		return load.Drain()
	case <-time.After(5 * time.Second):
		t.Fatal("load did not finish")
		return nil
	}
}

func batchSizes(msgs []Message) []int {
	var sizes []int
	for _, m := range msgs {
		if b, ok := m.(Batch); ok {
			sizes = append(sizes, len(b.Records))
		}
	}
	return sizes
}

func completeOf(t *testing.T, msgs []Message) Complete {
	t.Helper()
	last := msgs[len(msgs)-1]
	c, ok := last.(Complete)
	if !ok {
		t.Fatalf("last message is %T, want Complete", last)
	}
	return c
}

func TestLoadDeliversBatchesThenComplete(t *testing.T) {
	q := newFakeQuerier()
	q.script("System", page(1, 2), page(3, 4), page(5))
	c := testCoordinator(q, &fakeRenderer{}, Options{PageSize: 2})

	msgs := collect(t, c.Start([]string{"System"}, source.Predicate{}))

	sizes := batchSizes(msgs)
	if len(sizes) != 3 || sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("batch sizes = %v, want [2 2 1]", sizes)
	}
	if got := completeOf(t, msgs); got.Total != 5 {
		t.Errorf("Complete.Total = %d, want 5", got.Total)
	}

	var progress []Progress
	for _, m := range msgs {
		if p, ok := m.(Progress); ok {
			progress = append(progress, p)
		}
	}
	if len(progress) != 1 || progress[0].Count != 5 || progress[0].Channel != "System" {
		t.Errorf("progress = %+v", progress)
	}
}

func TestChannelsReadSequentiallyInCallerOrder(t *testing.T) {
	q := newFakeQuerier()
	q.script("Application", page(1))
	q.script("System", page(2))
	q.script("Security", page(3))
	c := testCoordinator(q, &fakeRenderer{}, Options{})

	msgs := collect(t, c.Start([]string{"System", "Application", "Security"}, source.Predicate{}))

	want := []string{"System", "Application", "Security"}
	if len(q.calls) != 3 {
		t.Fatalf("query calls = %v", q.calls)
	}
	for i := range want {
		if q.calls[i] != want[i] {
			t.Fatalf("query order = %v, want %v", q.calls, want)
		}
	}
	if got := completeOf(t, msgs); got.Total != 3 {
		t.Errorf("Complete.Total = %d, want 3", got.Total)
	}
}

func TestCancellationIsNotAnError(t *testing.T) {
	q := newFakeQuerier()
	var steps []step
	for i := 0; i < 50; i++ {
		steps = append(steps, page(i*2+1, i*2+2))
	}
	q.script("System", steps...)
	c := testCoordinator(q, &fakeRenderer{}, Options{PageSize: 2, ChannelCapacity: 1})

	load := c.Start([]string{"System"}, source.Predicate{})

	// Take one batch, then cancel mid-stream.
	select {
	case m := <-load.msgs:
		if _, ok := m.(Batch); !ok {
			t.Fatalf("first message is %T, want Batch", m)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no first batch")
	}
	load.Cancel()

	var msgs []Message
	deadline := time.After(5 * time.Second)
	for {
		select {
		case m := <-load.msgs:
			msgs = append(msgs, m)
			if _, done := m.(Complete); done {
				goto verify
			}
		case <-deadline:
			t.Fatal("no Complete after cancel")
		}
	}
verify:
	for _, m := range msgs {
		if ce, ok := m.(ChannelError); ok {
			t.Errorf("cancellation produced an error: %+v", ce)
		}
	}
	if got := completeOf(t, msgs); got.Total >= 100 {
		t.Errorf("Complete.Total = %d, expected a truncated load", got.Total)
	}
}

func TestTransientQueryErrorRetriesThenFails(t *testing.T) {
	q := newFakeQuerier()
	q.script("Application", page(9))
	q.queryErrs["System"] = []error{
		source.ErrUnavailable, source.ErrUnavailable, source.ErrUnavailable, source.ErrUnavailable,
	}
	c := testCoordinator(q, &fakeRenderer{}, Options{
		RetryAttempts:  3,
		RetryBaseDelay: time.Millisecond,
	})

	msgs := collect(t, c.Start([]string{"System", "Application"}, source.Predicate{}))

	attempts := 0
	for _, call := range q.calls {
		if call == "System" {
			attempts++
		}
	}
	if attempts != 3 {
		t.Errorf("query attempts = %d, want 3", attempts)
	}

	var chErrs []ChannelError
	for _, m := range msgs {
		if ce, ok := m.(ChannelError); ok {
			chErrs = append(chErrs, ce)
		}
	}
	if len(chErrs) != 1 || chErrs[0].Channel != "System" {
		t.Fatalf("channel errors = %+v", chErrs)
	}
	// The failed channel must not abort the rest of the load.
	if got := completeOf(t, msgs); got.Total != 1 {
		t.Errorf("Complete.Total = %d, want 1 from Application", got.Total)
	}
}

func TestTransientQueryErrorRecovers(t *testing.T) {
	q := newFakeQuerier()
	q.script("System", page(1, 2))
	q.queryErrs["System"] = []error{source.ErrUnavailable}
	c := testCoordinator(q, &fakeRenderer{}, Options{
		RetryAttempts:  3,
		RetryBaseDelay: time.Millisecond,
	})

	msgs := collect(t, c.Start([]string{"System"}, source.Predicate{}))
	if got := completeOf(t, msgs); got.Total != 2 {
		t.Errorf("Complete.Total = %d, want 2 after retry", got.Total)
	}
}

func TestPermanentErrorDoesNotRetry(t *testing.T) {
	q := newFakeQuerier()
	q.queryErrs["System"] = []error{errors.New("channel not found")}
	c := testCoordinator(q, &fakeRenderer{}, Options{
		RetryAttempts:  3,
		RetryBaseDelay: time.Millisecond,
	})

	msgs := collect(t, c.Start([]string{"System"}, source.Predicate{}))

	if len(q.calls) != 1 {
		t.Errorf("query attempts = %d, want 1 for a permanent error", len(q.calls))
	}
	found := false
	for _, m := range msgs {
		if _, ok := m.(ChannelError); ok {
			found = true
		}
	}
	if !found {
		t.Error("expected a ChannelError message")
	}
}

func TestTimedOutWaitContinues(t *testing.T) {
	q := newFakeQuerier()
	q.script("System",
		step{err: source.ErrTimedOut},
		page(1),
		step{err: source.ErrTimedOut},
		page(2),
	)
	c := testCoordinator(q, &fakeRenderer{}, Options{})

	msgs := collect(t, c.Start([]string{"System"}, source.Predicate{}))
	if got := completeOf(t, msgs); got.Total != 2 {
		t.Errorf("Complete.Total = %d, want 2", got.Total)
	}
	for _, m := range msgs {
		if ce, ok := m.(ChannelError); ok {
			t.Errorf("timeout produced an error: %+v", ce)
		}
	}
}

func TestMalformedRecordIsSkippedNotFatal(t *testing.T) {
	q := newFakeQuerier()
	bad := step{handles: []source.Handle{
		payloadLine(1),
		lineHandle(`{definitely not json`),
		payloadLine(2),
	}}
	q.script("System", bad)
	c := testCoordinator(q, &fakeRenderer{}, Options{})

	msgs := collect(t, c.Start([]string{"System"}, source.Predicate{}))

	if got := completeOf(t, msgs); got.Total != 2 {
		t.Errorf("Complete.Total = %d, want 2 with the bad record skipped", got.Total)
	}
	for _, m := range msgs {
		if ce, ok := m.(ChannelError); ok {
			t.Errorf("skip produced an error: %+v", ce)
		}
	}
}

func TestRenderBufferGrowAndRetry(t *testing.T) {
	q := newFakeQuerier()
	q.script("System", page(1))
	r := &fakeRenderer{demand: 64 * 1024}
	c := testCoordinator(q, r, Options{})

	msgs := collect(t, c.Start([]string{"System"}, source.Predicate{}))
	if got := completeOf(t, msgs); got.Total != 1 {
		t.Errorf("Complete.Total = %d, want 1 after buffer grow", got.Total)
	}
}

func TestPerChannelCapTruncates(t *testing.T) {
	q := newFakeQuerier()
	q.script("System", page(1, 2), page(3, 4), page(5, 6), page(7, 8))
	c := testCoordinator(q, &fakeRenderer{}, Options{
		PageSize:             2,
		MaxRecordsPerChannel: 3,
	})

	msgs := collect(t, c.Start([]string{"System"}, source.Predicate{}))

	// The cap is checked at page boundaries, so the load stops after the
	// first page that reaches it.
	if got := completeOf(t, msgs); got.Total != 4 {
		t.Errorf("Complete.Total = %d, want 4", got.Total)
	}
	for _, m := range msgs {
		if ce, ok := m.(ChannelError); ok {
			t.Errorf("truncation produced an error: %+v", ce)
		}
	}
}

func TestStartTailAdvancesLowerBound(t *testing.T) {
	q := newFakeQuerier()
	q.script("System", page(1))
	c := testCoordinator(q, &fakeRenderer{}, Options{})

	newest := time.Date(2024, 6, 15, 10, 5, 0, 0, time.UTC)
	load := c.StartTail([]string{"System"}, newest)
	collect(t, load)

	if !load.Tail {
		t.Error("tail load must be marked Tail")
	}
	if len(q.preds) != 1 {
		t.Fatalf("preds = %v", q.preds)
	}
	pred := q.preds[0]
	if want := newest.Add(time.Millisecond); !pred.From.Equal(want) {
		t.Errorf("pred.From = %v, want %v", pred.From, want)
	}
	if !pred.To.IsZero() {
		t.Errorf("tail upper bound must be unset, got %v", pred.To)
	}
}

func TestStartTailWithNoRecordsIsUnbounded(t *testing.T) {
	q := newFakeQuerier()
	q.script("System", page(1))
	c := testCoordinator(q, &fakeRenderer{}, Options{})

	collect(t, c.StartTail([]string{"System"}, time.Time{}))
	if len(q.preds) != 1 || !q.preds[0].Unbounded() {
		t.Errorf("empty-store tail must query unbounded, got %+v", q.preds)
	}
}

func TestFormatterOverridesPayloadMessage(t *testing.T) {
	q := newFakeQuerier()
	q.script("System", page(7))
	f := source.NewTemplateFormatter(map[string]string{"TestProv": "templated"})
	c := NewCoordinator(q, &fakeRenderer{}, f, Options{}, zerolog.Nop())

	msgs := collect(t, c.Start([]string{"System"}, source.Predicate{}))
	var recs []*model.Record
	for _, m := range msgs {
		if b, ok := m.(Batch); ok {
			recs = append(recs, b.Records...)
		}
	}
	if len(recs) != 1 || recs[0].Message != "templated" {
		t.Errorf("records = %+v", recs)
	}
}
