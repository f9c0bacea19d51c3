// Package cmd is the CLI front end: flags map onto internal/config.Config,
// InitConfig assembles it (from flags or --config-file), and rootCmd.Run
// wires every collaborator the orchestrator needs and calls Scheduler.Run.
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/whitehat-seo/hubspot-crawler/internal/blockdetect"
	"github.com/whitehat-seo/hubspot-crawler/internal/checkpoint"
	"github.com/whitehat-seo/hubspot-crawler/internal/config"
	"github.com/whitehat-seo/hubspot-crawler/internal/coordinator"
	"github.com/whitehat-seo/hubspot-crawler/internal/metadata"
	"github.com/whitehat-seo/hubspot-crawler/internal/obsmetrics"
	"github.com/whitehat-seo/hubspot-crawler/internal/progress"
	"github.com/whitehat-seo/hubspot-crawler/internal/scheduler"
	"github.com/whitehat-seo/hubspot-crawler/internal/urlsource"
	"github.com/whitehat-seo/hubspot-crawler/internal/writer"
	"github.com/whitehat-seo/hubspot-crawler/pkg/failure"
)

var (
	cfgFile          string
	inputPath        string
	preset           string
	concurrency      int
	maxPerDomain     int
	baseDelay        time.Duration
	jitter           time.Duration
	randomSeed       int64
	maxRetries       int
	variations       bool
	maxVariations    int
	timeout          time.Duration
	userAgent        string
	insecureTLS      bool
	render           bool
	outputPath       string
	outputFormat     string
	checkpointPath   string
	progressStyle    string
	progressInterval int
	quiet            bool
	blockThreshold   int
	blockWindowSize  int
	blockAction      string
	blockAutoResume  time.Duration
	blockQuiet       bool
	metricsAddr      string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "hubspot-crawler",
	Short: "A polite, high-volume HubSpot-detection web crawler.",
	Long: `hubspot-crawler fetches a list of URLs, classifies each one for
HubSpot usage (tracking script, CMS hosting, forms, chat, meetings,
video, legacy CTAs), and writes a result or failure record for every
input URL.

It is designed to run across many independent domains at once without
tripping rate limits or IP blocks: a domain-level concurrency gate, a
configurable politeness preset, retry with backoff, and a block
detector that can pause, warn, or abort the run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCrawl(cmd.Context())
	},
}

// SetVersion sets the version string cobra reports for --version. Called
// once from main with a value stamped at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd.SilenceUsage = true
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		exitCode := 1
		if _, ok := err.(*validationError); ok {
			exitCode = 2
		}
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(exitCode)
	}
}

// validationError marks a CLI-surface error (bad flags, bad input file)
// as distinct from a run-time crawl failure, so Execute can map it to
// exit code 2 rather than 1 (spec.md §6).
type validationError struct{ err error }

func (e *validationError) Error() string { return e.err.Error() }
func (e *validationError) Unwrap() error { return e.err }

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config-file", "", "load settings from a JSON config file instead of flags")
	rootCmd.Flags().StringVar(&inputPath, "input", "", "path to the newline-delimited URL list (required unless --config-file is set)")
	rootCmd.Flags().StringVar(&preset, "preset", "", "politeness preset: ultra-conservative (default), conservative, balanced, aggressive")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 0, "override the preset's number of concurrent fetch workers")
	rootCmd.Flags().IntVar(&maxPerDomain, "max-per-domain", 0, "override the preset's per-host concurrent-fetch cap")
	rootCmd.Flags().DurationVar(&baseDelay, "delay", 0, "override the preset's base delay between requests to the same host")
	rootCmd.Flags().DurationVar(&jitter, "jitter", 0, "override the preset's random jitter added to the delay")
	rootCmd.Flags().Int64Var(&randomSeed, "random-seed", 0, "seed for jitter/backoff randomness (0 for current time)")
	rootCmd.Flags().IntVar(&maxRetries, "max-retries", 0, "maximum attempts per URL before recording a failure")
	rootCmd.Flags().BoolVar(&variations, "variations", true, "try normalized URL variations after the primary URL fails")
	rootCmd.Flags().IntVar(&maxVariations, "max-variations", 0, "maximum URL variations to try")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 0, "stored in the run config; the fetch deadlines stay fixed at 20s per request and 30s per attempt and are not changed by this value")
	rootCmd.Flags().StringVar(&userAgent, "user-agent", "", "user agent string for HTTP requests")
	rootCmd.Flags().BoolVar(&insecureTLS, "insecure", false, "skip TLS certificate verification (logged once at warn level)")
	rootCmd.Flags().BoolVar(&render, "render", false, "accepted for interface parity; this build has no headless renderer wired in and always falls back to the static fetch path")
	rootCmd.Flags().StringVar(&outputPath, "output", "", "result output path")
	rootCmd.Flags().StringVar(&outputFormat, "output-format", "", "output format: jsonlines (default), tabular, spreadsheet")
	rootCmd.Flags().StringVar(&checkpointPath, "checkpoint", "", "checkpoint file path; already-visited URLs are skipped on resume")
	rootCmd.Flags().StringVar(&progressStyle, "progress-style", "", "progress rendering: compact (default), detailed, json")
	rootCmd.Flags().IntVar(&progressInterval, "progress-interval", 0, "stored in the run config; progress is rendered once, in the end-of-run summary, not every N completions")
	rootCmd.Flags().BoolVar(&quiet, "quiet", false, "skip the end-of-run summary and log with the production (JSON) logger instead of the development one")
	rootCmd.Flags().IntVar(&blockThreshold, "block-threshold", 0, "blocking failures required within the window to trip the block detector")
	rootCmd.Flags().IntVar(&blockWindowSize, "block-window", 0, "number of recent attempts the block detector considers")
	rootCmd.Flags().StringVar(&blockAction, "block-action", "", "response to a detected block: warn (default), abort, pause")
	rootCmd.Flags().DurationVar(&blockAutoResume, "block-auto-resume", 0, "auto-resume timeout for the interactive pause prompt (0 keeps the configured default of 30s)")
	rootCmd.Flags().BoolVar(&blockQuiet, "block-quiet", false, "auto-resume instead of showing the interactive pause prompt")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this loopback address (e.g. 127.0.0.1:9090); empty disables it")
}

// InitConfigWithError assembles a config.Config from --config-file, or
// from the flags above layered over the selected preset. Exposed
// separately from runCrawl so tests can exercise config assembly without
// running a crawl.
func InitConfigWithError() (config.Config, error) {
	if cfgFile != "" {
		cfg, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return config.Config{}, fmt.Errorf("error initializing config from file: %w", err)
		}
		return cfg, nil
	}

	if inputPath == "" {
		return config.Config{}, fmt.Errorf("%w: --input is required unless --config-file is set", config.ErrInvalidConfig)
	}

	builder := config.WithDefault(inputPath)
	if preset != "" {
		builder = builder.WithPreset(config.Preset(preset))
	}

	if concurrency > 0 {
		builder = builder.WithConcurrency(concurrency)
	}
	if maxPerDomain > 0 {
		builder = builder.WithMaxPerDomain(maxPerDomain)
	}
	if baseDelay > 0 {
		builder = builder.WithBaseDelay(baseDelay)
	}
	if jitter > 0 {
		builder = builder.WithJitter(jitter)
	}
	if randomSeed != 0 {
		builder = builder.WithRandomSeed(randomSeed)
	}
	if maxRetries > 0 {
		builder = builder.WithMaxRetries(maxRetries)
	}
	builder = builder.WithVariationsEnabled(variations)
	if maxVariations > 0 {
		builder = builder.WithMaxVariations(maxVariations)
	}
	if timeout > 0 {
		builder = builder.WithTimeout(timeout)
	}
	if userAgent != "" {
		builder = builder.WithUserAgent(userAgent)
	}
	builder = builder.WithInsecureTLS(insecureTLS).WithRender(render)
	if outputPath != "" {
		builder = builder.WithOutputPath(outputPath)
	}
	if outputFormat != "" {
		builder = builder.WithOutputFormat(config.OutputFormat(outputFormat))
	}
	if checkpointPath != "" {
		builder = builder.WithCheckpointPath(checkpointPath)
	}
	if progressStyle != "" {
		builder = builder.WithProgressStyle(progress.Style(progressStyle))
	}
	if progressInterval > 0 {
		builder = builder.WithProgressInterval(progressInterval)
	}
	builder = builder.WithQuiet(quiet)
	if blockThreshold > 0 {
		builder = builder.WithBlockThreshold(blockThreshold)
	}
	if blockWindowSize > 0 {
		builder = builder.WithBlockWindowSize(blockWindowSize)
	}
	if blockAction != "" {
		builder = builder.WithBlockAction(coordinator.BlockAction(blockAction))
	}
	if blockAutoResume > 0 {
		builder = builder.WithBlockAutoResume(blockAutoResume)
	}
	builder = builder.WithBlockQuiet(blockQuiet)
	if metricsAddr != "" {
		builder = builder.WithMetricsAddr(metricsAddr)
	}

	return builder.Build()
}

// ResetFlags restores every package-level flag variable to its zero
// value, for test isolation between cases that each call Execute/
// InitConfigWithError against a shared cobra command.
func ResetFlags() {
	cfgFile = ""
	inputPath = ""
	preset = ""
	concurrency = 0
	maxPerDomain = 0
	baseDelay = 0
	jitter = 0
	randomSeed = 0
	maxRetries = 0
	variations = true
	maxVariations = 0
	timeout = 0
	userAgent = ""
	insecureTLS = false
	render = false
	outputPath = ""
	outputFormat = ""
	checkpointPath = ""
	progressStyle = ""
	progressInterval = 0
	quiet = false
	blockThreshold = 0
	blockWindowSize = 0
	blockAction = ""
	blockAutoResume = 0
	blockQuiet = false
	metricsAddr = ""
}

// The SetXxxForTest helpers below let root_test.go drive InitConfigWithError
// without going through cobra's flag parser, mirroring how the flag
// variables are set at runtime.

func SetConfigFileForTest(v string)             { cfgFile = v }
func SetInputPathForTest(v string)              { inputPath = v }
func SetPresetForTest(v string)                 { preset = v }
func SetConcurrencyForTest(v int)               { concurrency = v }
func SetMaxPerDomainForTest(v int)              { maxPerDomain = v }
func SetBaseDelayForTest(v time.Duration)       { baseDelay = v }
func SetJitterForTest(v time.Duration)          { jitter = v }
func SetRandomSeedForTest(v int64)              { randomSeed = v }
func SetMaxRetriesForTest(v int)                { maxRetries = v }
func SetVariationsForTest(v bool)               { variations = v }
func SetMaxVariationsForTest(v int)             { maxVariations = v }
func SetTimeoutForTest(v time.Duration)         { timeout = v }
func SetUserAgentForTest(v string)              { userAgent = v }
func SetInsecureTLSForTest(v bool)              { insecureTLS = v }
func SetRenderForTest(v bool)                   { render = v }
func SetOutputPathForTest(v string)             { outputPath = v }
func SetOutputFormatForTest(v string)           { outputFormat = v }
func SetCheckpointPathForTest(v string)         { checkpointPath = v }
func SetProgressStyleForTest(v string)          { progressStyle = v }
func SetProgressIntervalForTest(v int)          { progressInterval = v }
func SetQuietForTest(v bool)                    { quiet = v }
func SetBlockThresholdForTest(v int)            { blockThreshold = v }
func SetBlockWindowSizeForTest(v int)           { blockWindowSize = v }
func SetBlockActionForTest(v string)            { blockAction = v }
func SetBlockAutoResumeForTest(v time.Duration) { blockAutoResume = v }
func SetBlockQuietForTest(v bool)               { blockQuiet = v }
func SetMetricsAddrForTest(v string)            { metricsAddr = v }

// runCrawl wires every collaborator InitConfigWithError's Config implies
// and runs the crawl to completion, returning a *validationError for a
// CLI-surface problem (exit 2) or a plain error for a run-time one
// (exit 1, including a block-action of abort).
func runCrawl(ctx context.Context) error {
	cfg, err := InitConfigWithError()
	if err != nil {
		return &validationError{err}
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	recorder := metadata.NewRecorder(logger)

	urls, classified := urlsource.Load(cfg.InputPath())
	if classified != nil {
		return &validationError{classified}
	}

	sink, classified := newSink(cfg, recorder)
	if classified != nil {
		return fmt.Errorf("failed to open output: %w", classified)
	}
	defer sink.Close()

	var store *checkpoint.Store
	if cfg.CheckpointPath() != "" {
		store, classified = checkpoint.Open(cfg.CheckpointPath())
		if classified != nil {
			return fmt.Errorf("failed to open checkpoint: %w", classified)
		}
		defer store.Close()
	}

	var metrics *obsmetrics.Collector
	if cfg.MetricsAddr() != "" {
		metrics = obsmetrics.NewCollector("hubspot_crawler")
		go serveMetrics(cfg.MetricsAddr(), metrics, logger)
	}

	detector := blockdetect.New(cfg.BlockThreshold(), cfg.BlockWindowSize())
	pauseGate := coordinator.NewPauseGate()
	coordOpts := []coordinator.Option{}
	if metrics != nil {
		coordOpts = append(coordOpts, coordinator.WithOnBlockTrip(metrics.RecordBlockTrip))
	}
	coord := coordinator.New(pauseGate, detector, cfg.BlockAction(), cfg.BlockAutoResume(), cfg.BlockQuiet(), coordOpts...)

	tracker := progress.New(len(urls))

	sched := scheduler.NewScheduler(scheduler.Options{
		Concurrency:       cfg.Concurrency(),
		MaxPerDomain:      cfg.MaxPerDomain(),
		MaxRetries:        cfg.MaxRetries(),
		VariationsEnabled: cfg.VariationsEnabled(),
		MaxVariations:     cfg.MaxVariations(),
		RandomSeed:        cfg.RandomSeed(),
		UserAgent:         cfg.UserAgent(),
		BaseDelay:         cfg.BaseDelay(),
		Jitter:            cfg.Jitter(),
		InsecureTLS:       cfg.InsecureTLS(),
	}, recorder, recorder, metrics)

	summary := sched.Run(ctx, scheduler.RunParams{
		URLs:          urls,
		Sink:          sink,
		Checkpoint:    store,
		Coordinator:   coord,
		Tracker:       tracker,
		ProgressStyle: cfg.ProgressStyle(),
	})

	if !cfg.Quiet() {
		fmt.Println(summary.Report)
	}

	if summary.Aborted {
		return fmt.Errorf("crawl aborted: block-action=abort")
	}
	return nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Quiet() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func newSink(cfg config.Config, recorder *metadata.Recorder) (writer.Sink, failure.ClassifiedError) {
	switch cfg.OutputFormat() {
	case config.OutputFormatTabular:
		tabular, err := writer.NewTabularWriter(cfg.OutputPath(), recorder)
		if err != nil {
			return nil, err
		}
		return tabular, nil
	case config.OutputFormatSpreadsheet:
		// SpreadsheetSink's WorkbookAppender is an external collaborator
		// (no .xlsx library is wired into this build); spreadsheet output
		// is accepted as a format name for interface parity but cannot be
		// produced without one.
		return nil, &writer.SinkError{
			Message: "spreadsheet output requires a WorkbookAppender, which this build does not wire in",
			Cause:   writer.ErrCauseInvalidDestination,
		}
	case config.OutputFormatJSONLines:
		fallthrough
	default:
		jsonl, err := writer.NewJSONLinesWriter(cfg.OutputPath(), false, recorder)
		if err != nil {
			return nil, err
		}
		return jsonl, nil
	}
}

func serveMetrics(addr string, metrics *obsmetrics.Collector, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics server exited", zap.Error(err))
	}
}
