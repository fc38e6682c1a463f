package ingest

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/coffersTech/eventscope/internal/config"
	"github.com/coffersTech/eventscope/internal/metrics"
	"github.com/coffersTech/eventscope/internal/model"
	"github.com/coffersTech/eventscope/internal/source"
)

// channelReader drains one channel's cursor for one load. It owns a
// reusable render buffer and a payload parser, so per-record allocation
// stays bounded regardless of channel size.
type channelReader struct {
	querier   source.Querier
	renderer  source.Renderer
	formatter source.MessageFormatter
	opts      Options
	channel   string
	pred      source.Predicate
	load      *Load
	log       zerolog.Logger

	parser source.PayloadParser
	buf    []byte
}

func newChannelReader(c *Coordinator, channel string, pred source.Predicate, load *Load) *channelReader {
	return &channelReader{
		querier:   c.querier,
		renderer:  c.renderer,
		formatter: c.formatter,
		opts:      c.opts,
		channel:   channel,
		pred:      pred,
		load:      load,
		log:       c.log.With().Str("channel", channel).Logger(),
		buf:       make([]byte, config.RenderBufferSize),
	}
}

// run reads the channel to exhaustion, cancellation, or the per-channel
// cap, delivering parsed batches as it goes. Returns the number of
// records delivered. Cancellation is a clean stop, not an error.
func (r *channelReader) run() (int, error) {
	cur, err := r.openCursor()
	if err != nil {
		return 0, err
	}
	defer cur.Close()

	count := 0
	for {
		if r.load.Cancelled() {
			return count, nil
		}
		if count >= r.opts.MaxRecordsPerChannel {
			r.log.Warn().Int("max", r.opts.MaxRecordsPerChannel).
				Msg("per-channel cap reached, truncating")
			return count, nil
		}

		handles, err := r.nextPage(cur)
		switch {
		case errors.Is(err, source.ErrNoMoreItems):
			return count, nil
		case errors.Is(err, source.ErrTimedOut):
			// Bounded wait elapsed; loop to re-check cancellation.
			continue
		case err != nil:
			return count, err
		}
		if len(handles) == 0 {
			return count, nil
		}

		batch := make([]*model.Record, 0, len(handles))
		for _, h := range handles {
			if rec, ok := r.materialize(h); ok {
				batch = append(batch, rec)
			}
		}
		if len(batch) == 0 {
			continue
		}

		count += len(batch)
		if !r.load.send(Batch{Records: batch}) {
			return count, nil
		}
		metrics.BatchesDelivered.Inc()
		metrics.RecordsIngested.WithLabelValues(r.channel).Add(float64(len(batch)))
	}
}

func (r *channelReader) openCursor() (source.Cursor, error) {
	var cur source.Cursor
	err := r.withRetry(func() error {
		var e error
		cur, e = r.querier.Query(r.channel, r.pred)
		return e
	})
	return cur, err
}

// nextPage fetches one cursor page, retrying transient faults with
// backoff. Timeouts pass straight through: they mean "nothing yet",
// which the run loop handles by re-checking cancellation.
func (r *channelReader) nextPage(cur source.Cursor) ([]source.Handle, error) {
	for attempt := 1; ; attempt++ {
		handles, err := cur.Next(r.opts.PageSize, r.opts.CursorWait)
		if err == nil ||
			errors.Is(err, source.ErrNoMoreItems) ||
			errors.Is(err, source.ErrTimedOut) {
			return handles, err
		}
		if !source.IsTransient(err) || attempt >= r.opts.RetryAttempts {
			return nil, err
		}
		r.backoff(attempt, err)
	}
}

// withRetry runs op up to the retry budget, backing off exponentially on
// transient errors. Permanent errors return immediately.
func (r *channelReader) withRetry(op func() error) error {
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil || !source.IsTransient(err) {
			return err
		}
		if attempt >= r.opts.RetryAttempts {
			return err
		}
		r.backoff(attempt, err)
	}
}

func (r *channelReader) backoff(attempt int, err error) {
	delay := r.opts.RetryBaseDelay << (attempt - 1)
	metrics.Retries.WithLabelValues(r.channel).Inc()
	r.log.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).
		Msg("transient error, backing off")
	time.Sleep(delay)
}

// materialize renders, parses and formats one handle. A failure skips
// just that record; the rest of the page is unaffected.
func (r *channelReader) materialize(h source.Handle) (*model.Record, bool) {
	raw, err := r.render(h)
	if err != nil {
		metrics.RecordsSkipped.WithLabelValues("render").Inc()
		r.log.Debug().Err(err).Msg("skipping record, render failed")
		return nil, false
	}
	rec, err := r.parser.Parse(raw, r.channel)
	if err != nil {
		metrics.RecordsSkipped.WithLabelValues("parse").Inc()
		r.log.Debug().Err(err).Msg("skipping record, parse failed")
		return nil, false
	}
	if msg, ok := r.formatter.Format(h, rec); ok {
		rec.Message = msg
	}
	if rec.Message == "" {
		rec.Message = source.SynthesizeMessage(rec.EventData)
	}
	return rec, true
}

// render serializes the handle into the reader's reusable buffer,
// growing it once when the source reports the required size.
func (r *channelReader) render(h source.Handle) ([]byte, error) {
	n, err := r.renderer.Render(h, r.buf)
	var bse *source.BufferSizeError
	if errors.As(err, &bse) {
		r.buf = make([]byte, bse.Needed)
		n, err = r.renderer.Render(h, r.buf)
	}
	if err != nil {
		return nil, err
	}
	return r.buf[:n], nil
}
