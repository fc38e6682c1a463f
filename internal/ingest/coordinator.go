package ingest

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/coffersTech/eventscope/internal/config"
	"github.com/coffersTech/eventscope/internal/metrics"
	"github.com/coffersTech/eventscope/internal/source"
	"github.com/coffersTech/eventscope/internal/timeutil"
)

// Options tunes a coordinator. Zero values fall back to the config
// defaults.
type Options struct {
	PageSize             int
	MaxRecordsPerChannel int
	ChannelCapacity      int
	RetryAttempts        int
	RetryBaseDelay       time.Duration
	CursorWait           time.Duration
}

func (o *Options) fill() {
	if o.PageSize <= 0 {
		o.PageSize = config.DefaultPageSize
	}
	if o.MaxRecordsPerChannel <= 0 {
		o.MaxRecordsPerChannel = config.DefaultMaxRecordsPerChannel
	}
	if o.ChannelCapacity <= 0 {
		o.ChannelCapacity = config.DeliveryChannelCapacity
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = config.MaxRetryAttempts
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = config.RetryBaseDelay
	}
	if o.CursorWait <= 0 {
		o.CursorWait = config.CursorWaitTimeout
	}
}

// Coordinator starts load operations against a source. It is stateless
// across loads; each Start spawns one worker goroutine that owns all
// source interaction for that load.
type Coordinator struct {
	querier   source.Querier
	renderer  source.Renderer
	formatter source.MessageFormatter
	opts      Options
	log       zerolog.Logger
}

// NewCoordinator wires a coordinator to a source.
func NewCoordinator(q source.Querier, r source.Renderer, f source.MessageFormatter, opts Options, log zerolog.Logger) *Coordinator {
	opts.fill()
	return &Coordinator{querier: q, renderer: r, formatter: f, opts: opts, log: log}
}

// Start begins a full load over the given channels, read sequentially in
// caller order. The returned load delivers Batch/Progress/ChannelError
// messages and always ends with Complete.
func (c *Coordinator) Start(channels []string, pred source.Predicate) *Load {
	load := newLoad(c.opts.ChannelCapacity, false)
	go c.run(load, channels, pred)
	return load
}

// StartTail begins an incremental load for records newer than the newest
// already held. The lower bound advances one millisecond past newest,
// saturating at the representable maximum; the upper bound is left open
// so nothing that arrives mid-poll is missed.
func (c *Coordinator) StartTail(channels []string, newest time.Time) *Load {
	var pred source.Predicate
	if !newest.IsZero() {
		pred.From = timeutil.SaturatingAdd(newest, time.Millisecond)
	}
	load := newLoad(c.opts.ChannelCapacity, true)
	go c.run(load, channels, pred)
	return load
}

func (c *Coordinator) run(load *Load, channels []string, pred source.Predicate) {
	defer close(load.done)

	log := c.log.With().Stringer("load", load.ID).Bool("tail", load.Tail).Logger()
	log.Debug().Strs("channels", channels).Msg("load started")

	start := time.Now()
	total := 0
	for _, channel := range channels {
		if load.Cancelled() {
			break
		}
		reader := newChannelReader(c, channel, pred, load)
		n, err := reader.run()
		total += n
		if err != nil {
			metrics.ChannelErrors.WithLabelValues(channel).Inc()
			log.Warn().Err(err).Str("channel", channel).Msg("channel read failed")
			if !load.send(ChannelError{Channel: channel, Err: err.Error()}) {
				return
			}
			continue
		}
		if !load.send(Progress{Channel: channel, Count: total}) {
			return
		}
	}

	elapsed := time.Since(start)
	metrics.LoadDuration.Observe(elapsed.Seconds())
	log.Info().Int("total", total).Dur("elapsed", elapsed).
		Bool("cancelled", load.Cancelled()).Msg("load finished")
	load.send(Complete{Total: total, Elapsed: elapsed})
}
