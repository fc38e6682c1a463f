// Command eventscope loads, filters and exports event log records from a
// live system event log or an offline archive.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/coffersTech/eventscope/internal/config"
	"github.com/coffersTech/eventscope/internal/engine"
	"github.com/coffersTech/eventscope/internal/export"
	"github.com/coffersTech/eventscope/internal/ingest"
	"github.com/coffersTech/eventscope/internal/logging"
	"github.com/coffersTech/eventscope/internal/metrics"
	"github.com/coffersTech/eventscope/internal/model"
	"github.com/coffersTech/eventscope/internal/source"
	"github.com/coffersTech/eventscope/internal/timeutil"
)

type flags struct {
	configPath  string
	archive     string
	channels    string
	pageSize    int
	maxRecords  int
	templates   string
	metricsAddr string

	ids           string
	levels        string
	provider      string
	query         string
	regex         bool
	caseSensitive bool
	timeFrom      string
	timeTo        string

	presetPath string
	preset     string
	savePreset string

	follow       bool
	interval     time.Duration
	stats        bool
	listChannels bool

	exportCSV     string
	exportJSON    string
	exportArchive string

	verbose bool
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "path to JSON config file")
	flag.StringVar(&f.archive, "archive", "", "read from an offline .evtz archive instead of the live event log")
	flag.StringVar(&f.channels, "channels", "", "comma-separated channels to load (default from config)")
	flag.IntVar(&f.pageSize, "page-size", 0, "records per query page")
	flag.IntVar(&f.maxRecords, "max-records", 0, "per-channel record cap")
	flag.StringVar(&f.templates, "templates", "", "JSON file of provider message templates")
	flag.StringVar(&f.metricsAddr, "metrics", "", "serve prometheus metrics on this address (e.g. :9091)")

	flag.StringVar(&f.ids, "ids", "", `event ID filter, e.g. "7036, 100-200, !150"`)
	flag.StringVar(&f.levels, "levels", "", "comma-separated severities to keep (critical,error,warning,information,verbose,logalways)")
	flag.StringVar(&f.provider, "provider", "", "provider substring filter")
	flag.StringVar(&f.query, "query", "", "free-text search across all record fields")
	flag.BoolVar(&f.regex, "regex", false, "treat -query as a regular expression")
	flag.BoolVar(&f.caseSensitive, "case-sensitive", false, "match -query case-sensitively")
	flag.StringVar(&f.timeFrom, "from", "", `lower time bound, e.g. "2024-06-15 10:00"`)
	flag.StringVar(&f.timeTo, "to", "", "upper time bound")

	flag.StringVar(&f.presetPath, "presets", "", "path to the filter preset file")
	flag.StringVar(&f.preset, "preset", "", "apply a named filter preset; explicit filter flags override its fields")
	flag.StringVar(&f.savePreset, "save-preset", "", "save the active filter criteria under this preset name")

	flag.BoolVar(&f.follow, "follow", false, "keep polling for new records after the initial load")
	flag.DurationVar(&f.interval, "interval", config.TailInterval, "poll interval in follow mode")
	flag.BoolVar(&f.stats, "stats", false, "print severity and provider statistics")
	flag.BoolVar(&f.listChannels, "list-channels", false, "list the channels the source can serve, then exit")

	flag.StringVar(&f.exportCSV, "export-csv", "", "write filtered records to a CSV file")
	flag.StringVar(&f.exportJSON, "export-json", "", "write filtered records to a JSON file")
	flag.StringVar(&f.exportArchive, "export-archive", "", "write filtered records to a compressed archive")

	flag.BoolVar(&f.verbose, "v", false, "verbose logging")
	flag.Parse()

	log := logging.Setup(f.verbose)
	if err := run(f, log); err != nil {
		log.Fatal().Err(err).Msg("eventscope failed")
	}
}

func run(f flags, log zerolog.Logger) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlags(&cfg, f)

	criteria, err := buildCriteria(f, cfg.PresetPath)
	if err != nil {
		return err
	}
	if f.savePreset != "" {
		if err := savePreset(cfg.PresetPath, f.savePreset, criteria); err != nil {
			return fmt.Errorf("save preset: %w", err)
		}
		log.Info().Str("preset", f.savePreset).Str("path", cfg.PresetPath).Msg("preset saved")
	}

	querier, renderer, catalog, err := buildSource(cfg, log)
	if err != nil {
		return err
	}
	formatter, err := buildFormatter(f.templates)
	if err != nil {
		return err
	}

	if f.listChannels {
		chans, err := catalog.Channels()
		if err != nil {
			return fmt.Errorf("list channels: %w", err)
		}
		for _, ch := range chans {
			fmt.Println(ch)
		}
		return nil
	}

	// Configured channels win; an archive serves exactly one channel,
	// named after the file, so discovery takes over there.
	chanCat := source.Catalog(source.StaticCatalog(cfg.Channels))
	if cfg.ArchivePath != "" {
		chanCat = catalog
	}
	channels, err := chanCat.Channels()
	if err != nil {
		return fmt.Errorf("resolve channels: %w", err)
	}

	coord := ingest.NewCoordinator(querier, renderer, formatter, ingest.Options{
		PageSize:             cfg.PageSize,
		MaxRecordsPerChannel: cfg.MaxRecordsPerChannel,
	}, logging.Component(log, "ingest"))
	store := engine.NewStore(criteria, 0, logging.Component(log, "store"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(ctx, cfg.MetricsAddr, log) })
	}

	g.Go(func() error {
		defer stop()
		if err := runLoad(ctx, store, coord, channels, criteria, log); err != nil {
			return err
		}
		printSummary(store, f)
		if err := runExports(store, f, log); err != nil {
			return err
		}
		if f.follow {
			return followLoop(ctx, store, coord, channels, f.interval, log)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func applyFlags(cfg *config.Config, f flags) {
	if f.archive != "" {
		cfg.ArchivePath = f.archive
	}
	if f.channels != "" {
		cfg.Channels = splitList(f.channels)
	}
	if f.pageSize > 0 {
		cfg.PageSize = f.pageSize
	}
	if f.maxRecords > 0 {
		cfg.MaxRecordsPerChannel = f.maxRecords
	}
	if f.metricsAddr != "" {
		cfg.MetricsAddr = f.metricsAddr
	}
	if f.presetPath != "" {
		cfg.PresetPath = f.presetPath
	}
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// buildCriteria assembles the filter criteria. A named preset supplies
// the base; any filter flag set explicitly overrides the matching field.
func buildCriteria(f flags, presetPath string) (*engine.Criteria, error) {
	c := engine.NewCriteria()
	if f.preset != "" {
		p, err := findPreset(presetPath, f.preset)
		if err != nil {
			return nil, err
		}
		p.Apply(c)
	}

	if f.ids != "" {
		c.IDInput = f.ids
	}
	if f.provider != "" {
		c.Provider = f.provider
	}
	if f.query != "" {
		c.Query = f.query
	}
	if f.regex {
		c.UseRegex = true
	}
	if f.caseSensitive {
		c.CaseSensitive = true
	}
	if f.timeFrom != "" {
		c.TimeFromInput = f.timeFrom
	}
	if f.timeTo != "" {
		c.TimeToInput = f.timeTo
	}

	if f.levels != "" {
		for i := range c.Levels {
			c.Levels[i] = false
		}
		for _, name := range splitList(f.levels) {
			idx, err := levelIndex(name)
			if err != nil {
				return nil, err
			}
			c.Levels[idx] = true
		}
	}

	c.RecompileIDs()
	c.RecomputeTimeRange()
	if c.PatternInvalid() {
		return nil, fmt.Errorf("invalid regex: %q", c.Query)
	}
	if c.TimeFromInput != "" {
		if from, _ := c.TimeBounds(); from.IsZero() {
			return nil, fmt.Errorf("unparseable -from: %q", c.TimeFromInput)
		}
	}
	if c.TimeToInput != "" {
		if _, to := c.TimeBounds(); to.IsZero() {
			return nil, fmt.Errorf("unparseable -to: %q", c.TimeToInput)
		}
	}
	return c, nil
}

// findPreset loads the preset file and returns the named preset.
func findPreset(path, name string) (engine.Preset, error) {
	presets, err := engine.LoadPresets(path)
	if err != nil {
		return engine.Preset{}, fmt.Errorf("load presets: %w", err)
	}
	for _, p := range presets {
		if p.Name == name {
			return p, nil
		}
	}
	return engine.Preset{}, fmt.Errorf("no preset %q in %s", name, path)
}

// savePreset snapshots the criteria under name, replacing an existing
// preset with the same name.
func savePreset(path, name string, c *engine.Criteria) error {
	presets, err := engine.LoadPresets(path)
	if err != nil {
		return err
	}
	p := engine.NewPreset(name, c)
	replaced := false
	for i := range presets {
		if presets[i].Name == name {
			presets[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		presets = append(presets, p)
	}
	return engine.SavePresets(path, presets)
}

func levelIndex(name string) (int, error) {
	for i := 0; i < model.LevelCount; i++ {
		if strings.EqualFold(model.LevelName(uint8(i)), name) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown level %q", name)
}

func buildSource(cfg config.Config, log zerolog.Logger) (source.Querier, source.Renderer, source.Catalog, error) {
	if cfg.ArchivePath != "" {
		a, err := source.OpenArchive(cfg.ArchivePath)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info().Str("archive", cfg.ArchivePath).Msg("reading from archive")
		return a, source.ArchiveRenderer{}, a, nil
	}
	return liveSource(cfg, log)
}

func buildFormatter(path string) (source.MessageFormatter, error) {
	if path == "" {
		return source.NewTemplateFormatter(nil), nil
	}
	templates, err := source.LoadTemplates(path)
	if err != nil {
		return nil, err
	}
	return source.NewTemplateFormatter(templates), nil
}

// runLoad drives one full load to completion, draining messages into the
// store. Ctrl-C cancels cooperatively: the worker confirms with Complete
// and whatever was already loaded stays usable.
func runLoad(ctx context.Context, store *engine.Store, coord *ingest.Coordinator, channels []string, criteria *engine.Criteria, log zerolog.Logger) error {
	var pred source.Predicate
	pred.From, pred.To = criteria.TimeBounds()

	store.BeginLoad()
	load := coord.Start(channels, pred)

	spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	spin.Suffix = " loading records..."
	spin.Start()
	err := consume(ctx, store, load, spin)
	spin.Stop()
	if err != nil {
		return err
	}

	total, elapsed := store.LastLoad()
	log.Info().Int("records", total).Str("elapsed", timeutil.FormatDuration(elapsed)).
		Int("visible", store.FilteredLen()).Msg("load finished")
	for _, issue := range store.Issues() {
		log.Warn().Str("channel", issue.Channel).Msg(issue.Message)
	}
	return nil
}

// consume drains load messages into the store until the worker reports
// Complete. A cancelled context requests a cooperative stop and still
// waits for the confirmation.
func consume(ctx context.Context, store *engine.Store, load *ingest.Load, spin *spinner.Spinner) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	done := ctx.Done()
	cancelled := false
	for {
		select {
		case <-done:
			done = nil
			cancelled = true
			load.Cancel()
			store.RequestCancel()
			if spin != nil {
				spin.Suffix = " cancelling..."
			}
		case <-ticker.C:
		case <-load.Done():
			store.ApplyAll(load.Drain())
			return nil
		}

		store.ApplyAll(load.Drain())
		if store.Phase() == engine.PhaseIdle {
			return nil
		}
		if spin != nil && !cancelled {
			spin.Suffix = fmt.Sprintf(" loading records... %d", store.Len())
		}
	}
}

// followLoop polls for records newer than the newest held, appending
// them to the store until the context ends.
func followLoop(ctx context.Context, store *engine.Store, coord *ingest.Coordinator, channels []string, interval time.Duration, log zerolog.Logger) error {
	log.Info().Dur("interval", interval).Msg("following; Ctrl-C to stop")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		newest, _ := store.NewestTimestamp()
		before := store.Len()
		store.BeginTail()
		if err := consume(ctx, store, coord.StartTail(channels, newest), nil); err != nil {
			return err
		}
		if added := store.Len() - before; added > 0 {
			log.Info().Int("new", added).Int("total", store.Len()).Msg("tail picked up records")
		}
	}
}

func printSummary(store *engine.Store, f flags) {
	total, elapsed := store.LastLoad()
	fmt.Printf("%d records loaded in %s, %d match the active filters\n",
		total, timeutil.FormatDuration(elapsed), store.FilteredLen())

	if !f.stats {
		return
	}
	sum := engine.Summarize(store.Visible(), 5)
	fmt.Println("\nSeverity distribution:")
	for i, n := range sum.Levels {
		if n > 0 {
			fmt.Printf("  %-12s %d\n", model.LevelName(uint8(i)), n)
		}
	}
	if len(sum.TopProviders) > 0 {
		fmt.Println("\nTop providers:")
		for _, p := range sum.TopProviders {
			fmt.Printf("  %-40s %d\n", p.Provider, p.Count)
		}
	}
	if !sum.From.IsZero() {
		fmt.Printf("\nTime span: %s .. %s\n",
			timeutil.FormatTimestamp(sum.From), timeutil.FormatTimestamp(sum.To))
	}
	if rows := histogramRows(store.Visible(), time.Hour); len(rows) > 0 {
		fmt.Println("\nVolume by hour:")
		for _, row := range rows {
			fmt.Println("  " + row)
		}
	}
}

// histogramRows formats time-bucketed counts over the filtered
// projection, one row per bucket.
func histogramRows(records []*model.Record, interval time.Duration) []string {
	points := engine.Histogram(records, interval)
	rows := make([]string, 0, len(points))
	for _, p := range points {
		rows = append(rows, fmt.Sprintf("%s  %d", timeutil.FormatTimestamp(p.Bucket), p.Count))
	}
	return rows
}

func runExports(store *engine.Store, f flags, log zerolog.Logger) error {
	if f.exportCSV == "" && f.exportJSON == "" && f.exportArchive == "" {
		return nil
	}
	records := store.Visible()
	if f.exportCSV != "" {
		if err := export.CSVFile(f.exportCSV, records); err != nil {
			return err
		}
		log.Info().Str("path", f.exportCSV).Int("records", len(records)).Msg("exported CSV")
	}
	if f.exportJSON != "" {
		if err := export.JSONFile(f.exportJSON, records); err != nil {
			return err
		}
		log.Info().Str("path", f.exportJSON).Int("records", len(records)).Msg("exported JSON")
	}
	if f.exportArchive != "" {
		if err := export.ArchiveFile(f.exportArchive, records); err != nil {
			return err
		}
		log.Info().Str("path", f.exportArchive).Int("records", len(records)).Msg("exported archive")
	}
	return nil
}

// serveMetrics runs the prometheus endpoint until the context ends.
func serveMetrics(ctx context.Context, addr string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
