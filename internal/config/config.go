// Package config builds the Config a run is driven by: crawl input, the
// politeness preset and its overrides, retry/variation policy, output
// destination and format, checkpoint path, progress rendering, and block
// detection response. Built through the same WithDefault(...).With...
// ().Build() chain as JSON-file loading via WithConfigFile.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/whitehat-seo/hubspot-crawler/internal/coordinator"
	"github.com/whitehat-seo/hubspot-crawler/internal/progress"
)

// Preset selects a bundle of concurrency/pacing defaults (spec.md §6's
// preset table). Any explicit With... override still wins over the
// preset's value for that one field.
type Preset string

const (
	PresetUltraConservative Preset = "ultra-conservative"
	PresetConservative      Preset = "conservative"
	PresetBalanced          Preset = "balanced"
	PresetAggressive        Preset = "aggressive"
)

type presetDefaults struct {
	concurrency  int
	baseDelay    time.Duration
	jitter       time.Duration
	maxPerDomain int
}

var presetTable = map[Preset]presetDefaults{
	PresetUltraConservative: {concurrency: 2, baseDelay: 3 * time.Second, jitter: 1 * time.Second, maxPerDomain: 1},
	PresetConservative:      {concurrency: 5, baseDelay: 1 * time.Second, jitter: 300 * time.Millisecond, maxPerDomain: 1},
	PresetBalanced:          {concurrency: 10, baseDelay: 500 * time.Millisecond, jitter: 200 * time.Millisecond, maxPerDomain: 2},
	PresetAggressive:        {concurrency: 20, baseDelay: 0, jitter: 0, maxPerDomain: 5},
}

// OutputFormat selects which internal/writer.Sink implementation a run's
// results are serialized through.
type OutputFormat string

const (
	OutputFormatJSONLines   OutputFormat = "jsonlines"
	OutputFormatTabular     OutputFormat = "tabular"
	OutputFormatSpreadsheet OutputFormat = "spreadsheet"
)

type Config struct {
	//===============
	// Crawl input
	//===============
	// Path to the newline-delimited URL list (spec.md §6 "Input file").
	inputPath string

	//===============
	// Preset + politeness
	//===============
	preset       Preset
	concurrency  int
	maxPerDomain int
	baseDelay    time.Duration
	jitter       time.Duration
	randomSeed   int64

	//===============
	// Retry + variation
	//===============
	maxRetries        int
	variationsEnabled bool
	maxVariations     int

	//===============
	// Fetch
	//===============
	timeout     time.Duration
	userAgent   string
	insecureTLS bool
	// render is accepted for CLI parity with the original's optional
	// headless-render path; this module has no renderer wired in, so it
	// is always a no-op (spec.md §7 renderFailed always falls back).
	render bool

	//===============
	// Output
	//===============
	outputPath   string
	outputFormat OutputFormat

	//===============
	// Checkpoint
	//===============
	checkpointPath string

	//===============
	// Progress
	//===============
	progressStyle    progress.Style
	progressInterval int
	quiet            bool

	//===============
	// Block detection
	//===============
	blockThreshold  int
	blockWindowSize int
	blockAction     coordinator.BlockAction
	blockAutoResume time.Duration
	blockQuiet      bool

	//===============
	// Metrics
	//===============
	metricsAddr string
}

type configDTO struct {
	InputPath string `json:"inputPath"`

	Preset       Preset        `json:"preset,omitempty"`
	Concurrency  int           `json:"concurrency,omitempty"`
	MaxPerDomain int           `json:"maxPerDomain,omitempty"`
	BaseDelay    time.Duration `json:"baseDelay,omitempty"`
	Jitter       time.Duration `json:"jitter,omitempty"`
	RandomSeed   int64         `json:"randomSeed,omitempty"`

	MaxRetries        int  `json:"maxRetries,omitempty"`
	VariationsEnabled bool `json:"variationsEnabled,omitempty"`
	MaxVariations     int  `json:"maxVariations,omitempty"`

	Timeout     time.Duration `json:"timeout,omitempty"`
	UserAgent   string        `json:"userAgent,omitempty"`
	InsecureTLS bool          `json:"insecureTls,omitempty"`
	Render      bool          `json:"render,omitempty"`

	OutputPath   string       `json:"outputPath,omitempty"`
	OutputFormat OutputFormat `json:"outputFormat,omitempty"`

	CheckpointPath string `json:"checkpointPath,omitempty"`

	ProgressStyle    progress.Style `json:"progressStyle,omitempty"`
	ProgressInterval int            `json:"progressInterval,omitempty"`
	Quiet            bool           `json:"quiet,omitempty"`

	BlockThreshold  int                     `json:"blockThreshold,omitempty"`
	BlockWindowSize int                     `json:"blockWindowSize,omitempty"`
	BlockAction     coordinator.BlockAction `json:"blockAction,omitempty"`
	BlockAutoResume time.Duration           `json:"blockAutoResume,omitempty"`
	BlockQuiet      bool                    `json:"blockQuiet,omitempty"`

	MetricsAddr string `json:"metricsAddr,omitempty"`
}

func newConfigFromDTO(dto configDTO) (Config, error) {
	cfg, err := WithDefault(dto.InputPath).Build()
	if err != nil {
		return Config{}, err
	}

	if dto.Preset != "" {
		cfg.WithPreset(dto.Preset)
	}
	if dto.Concurrency != 0 {
		cfg.concurrency = dto.Concurrency
	}
	if dto.MaxPerDomain != 0 {
		cfg.maxPerDomain = dto.MaxPerDomain
	}
	if dto.BaseDelay != 0 {
		cfg.baseDelay = dto.BaseDelay
	}
	if dto.Jitter != 0 {
		cfg.jitter = dto.Jitter
	}
	if dto.RandomSeed != 0 {
		cfg.randomSeed = dto.RandomSeed
	}

	if dto.MaxRetries != 0 {
		cfg.maxRetries = dto.MaxRetries
	}
	cfg.variationsEnabled = dto.VariationsEnabled
	if dto.MaxVariations != 0 {
		cfg.maxVariations = dto.MaxVariations
	}

	if dto.Timeout != 0 {
		cfg.timeout = dto.Timeout
	}
	if dto.UserAgent != "" {
		cfg.userAgent = dto.UserAgent
	}
	cfg.insecureTLS = dto.InsecureTLS
	cfg.render = dto.Render

	if dto.OutputPath != "" {
		cfg.outputPath = dto.OutputPath
	}
	if dto.OutputFormat != "" {
		cfg.outputFormat = dto.OutputFormat
	}

	if dto.CheckpointPath != "" {
		cfg.checkpointPath = dto.CheckpointPath
	}

	if dto.ProgressStyle != "" {
		cfg.progressStyle = dto.ProgressStyle
	}
	if dto.ProgressInterval != 0 {
		cfg.progressInterval = dto.ProgressInterval
	}
	cfg.quiet = dto.Quiet

	if dto.BlockThreshold != 0 {
		cfg.blockThreshold = dto.BlockThreshold
	}
	if dto.BlockWindowSize != 0 {
		cfg.blockWindowSize = dto.BlockWindowSize
	}
	if dto.BlockAction != "" {
		cfg.blockAction = dto.BlockAction
	}
	if dto.BlockAutoResume != 0 {
		cfg.blockAutoResume = dto.BlockAutoResume
	}
	cfg.blockQuiet = dto.BlockQuiet

	if dto.MetricsAddr != "" {
		cfg.metricsAddr = dto.MetricsAddr
	}

	return cfg, nil
}

func WithConfigFile(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	cfgDTO := configDTO{}

	err = json.Unmarshal(configContent, &cfgDTO)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	cfg, err := newConfigFromDTO(cfgDTO)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithDefault creates a new Config for inputPath with the
// ultra-conservative preset and the rest of spec.md's defaults applied.
// inputPath is mandatory; Build returns an error if it is empty.
func WithDefault(inputPath string) *Config {
	defaultConfig := Config{
		inputPath: inputPath,

		preset:       PresetUltraConservative,
		concurrency:  presetTable[PresetUltraConservative].concurrency,
		maxPerDomain: presetTable[PresetUltraConservative].maxPerDomain,
		baseDelay:    presetTable[PresetUltraConservative].baseDelay,
		jitter:       presetTable[PresetUltraConservative].jitter,
		randomSeed:   time.Now().UnixNano(),

		maxRetries:        3,
		variationsEnabled: true,
		maxVariations:     3,

		timeout:     10 * time.Second,
		userAgent:   "hubspot-crawler/1.0",
		insecureTLS: false,
		render:      false,

		outputPath:   "results.jsonl",
		outputFormat: OutputFormatJSONLines,

		checkpointPath: "checkpoint.txt",

		progressStyle:    progress.StyleCompact,
		progressInterval: 1,
		quiet:            false,

		blockThreshold:  5,
		blockWindowSize: 20,
		blockAction:     coordinator.ActionWarn,
		blockAutoResume: 30 * time.Second,
		blockQuiet:      false,
	}
	return &defaultConfig
}

// WithPreset applies a named preset's concurrency/delay/jitter/
// maxPerDomain bundle. Call before any individual With... override so the
// override wins, matching spec.md §6 "any individual flag overrides".
// An unrecognized preset is ignored.
func (c *Config) WithPreset(preset Preset) *Config {
	defaults, ok := presetTable[preset]
	if !ok {
		return c
	}
	c.preset = preset
	c.concurrency = defaults.concurrency
	c.baseDelay = defaults.baseDelay
	c.jitter = defaults.jitter
	c.maxPerDomain = defaults.maxPerDomain
	return c
}

func (c *Config) WithInputPath(path string) *Config {
	c.inputPath = path
	return c
}

func (c *Config) WithConcurrency(concurrency int) *Config {
	c.concurrency = concurrency
	return c
}

func (c *Config) WithMaxPerDomain(maxPerDomain int) *Config {
	c.maxPerDomain = maxPerDomain
	return c
}

func (c *Config) WithBaseDelay(delay time.Duration) *Config {
	c.baseDelay = delay
	return c
}

func (c *Config) WithJitter(jitter time.Duration) *Config {
	c.jitter = jitter
	return c
}

func (c *Config) WithRandomSeed(seed int64) *Config {
	c.randomSeed = seed
	return c
}

func (c *Config) WithMaxRetries(attempts int) *Config {
	c.maxRetries = attempts
	return c
}

func (c *Config) WithVariationsEnabled(enabled bool) *Config {
	c.variationsEnabled = enabled
	return c
}

func (c *Config) WithMaxVariations(max int) *Config {
	c.maxVariations = max
	return c
}

func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.timeout = timeout
	return c
}

func (c *Config) WithUserAgent(agent string) *Config {
	c.userAgent = agent
	return c
}

func (c *Config) WithInsecureTLS(insecure bool) *Config {
	c.insecureTLS = insecure
	return c
}

func (c *Config) WithRender(render bool) *Config {
	c.render = render
	return c
}

func (c *Config) WithOutputPath(path string) *Config {
	c.outputPath = path
	return c
}

func (c *Config) WithOutputFormat(format OutputFormat) *Config {
	c.outputFormat = format
	return c
}

func (c *Config) WithCheckpointPath(path string) *Config {
	c.checkpointPath = path
	return c
}

func (c *Config) WithProgressStyle(style progress.Style) *Config {
	c.progressStyle = style
	return c
}

func (c *Config) WithProgressInterval(interval int) *Config {
	c.progressInterval = interval
	return c
}

func (c *Config) WithQuiet(quiet bool) *Config {
	c.quiet = quiet
	return c
}

func (c *Config) WithBlockThreshold(threshold int) *Config {
	c.blockThreshold = threshold
	return c
}

func (c *Config) WithBlockWindowSize(size int) *Config {
	c.blockWindowSize = size
	return c
}

func (c *Config) WithBlockAction(action coordinator.BlockAction) *Config {
	c.blockAction = action
	return c
}

func (c *Config) WithBlockAutoResume(d time.Duration) *Config {
	c.blockAutoResume = d
	return c
}

func (c *Config) WithBlockQuiet(quiet bool) *Config {
	c.blockQuiet = quiet
	return c
}

func (c *Config) WithMetricsAddr(addr string) *Config {
	c.metricsAddr = addr
	return c
}

func (c *Config) Build() (Config, error) {
	if c.inputPath == "" {
		return Config{}, fmt.Errorf("%w: inputPath cannot be empty", ErrInvalidConfig)
	}
	return *c, nil
}

func (c Config) InputPath() string { return c.inputPath }

func (c Config) Preset() Preset { return c.preset }

func (c Config) Concurrency() int { return c.concurrency }

func (c Config) MaxPerDomain() int { return c.maxPerDomain }

func (c Config) BaseDelay() time.Duration { return c.baseDelay }

func (c Config) Jitter() time.Duration { return c.jitter }

func (c Config) RandomSeed() int64 { return c.randomSeed }

func (c Config) MaxRetries() int { return c.maxRetries }

func (c Config) VariationsEnabled() bool { return c.variationsEnabled }

func (c Config) MaxVariations() int { return c.maxVariations }

func (c Config) Timeout() time.Duration { return c.timeout }

func (c Config) UserAgent() string { return c.userAgent }

func (c Config) InsecureTLS() bool { return c.insecureTLS }

func (c Config) Render() bool { return c.render }

func (c Config) OutputPath() string { return c.outputPath }

func (c Config) OutputFormat() OutputFormat { return c.outputFormat }

func (c Config) CheckpointPath() string { return c.checkpointPath }

func (c Config) ProgressStyle() progress.Style { return c.progressStyle }

func (c Config) ProgressInterval() int { return c.progressInterval }

func (c Config) Quiet() bool { return c.quiet }

func (c Config) BlockThreshold() int { return c.blockThreshold }

func (c Config) BlockWindowSize() int { return c.blockWindowSize }

func (c Config) BlockAction() coordinator.BlockAction { return c.blockAction }

func (c Config) BlockAutoResume() time.Duration { return c.blockAutoResume }

func (c Config) BlockQuiet() bool { return c.blockQuiet }

func (c Config) MetricsAddr() string { return c.metricsAddr }
