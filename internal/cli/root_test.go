package cmd_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	cmd "github.com/whitehat-seo/hubspot-crawler/internal/cli"
	"github.com/whitehat-seo/hubspot-crawler/internal/config"
	"github.com/whitehat-seo/hubspot-crawler/internal/coordinator"
	"github.com/whitehat-seo/hubspot-crawler/internal/progress"
)

// TestInitConfigNoFlags tests that InitConfigWithError returns a Config
// with default values when only --input is provided.
func TestInitConfigNoFlags(t *testing.T) {
	cmd.ResetFlags()
	cmd.SetInputPathForTest("urls.txt")

	cfg, err := cmd.InitConfigWithError()
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	defaultCfg, err := config.WithDefault("urls.txt").Build()
	if err != nil {
		t.Errorf("should not have any error, got %v", err)
	}
	if cfg.Concurrency() != defaultCfg.Concurrency() {
		t.Errorf("Expected Concurrency %d, got %d", defaultCfg.Concurrency(), cfg.Concurrency())
	}
	if cfg.OutputPath() != defaultCfg.OutputPath() {
		t.Errorf("Expected OutputPath %s, got %s", defaultCfg.OutputPath(), cfg.OutputPath())
	}
	if cfg.Preset() != config.PresetUltraConservative {
		t.Errorf("Expected default preset ultra-conservative, got %s", cfg.Preset())
	}
	if cfg.InputPath() != "urls.txt" {
		t.Errorf("Expected InputPath 'urls.txt', got %s", cfg.InputPath())
	}
}

// TestInitConfigWithoutInputOrConfigFile tests that InitConfigWithError
// returns ErrInvalidConfig when neither --input nor --config-file is set.
func TestInitConfigWithoutInputOrConfigFile(t *testing.T) {
	cmd.ResetFlags()

	_, err := cmd.InitConfigWithError()
	if err == nil {
		t.Fatal("Expected error when --input is missing, got nil")
	}
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got: %v", err)
	}
}

// TestInitConfigWithPreset tests that the --preset flag applies the
// politeness bundle before any individual overrides are considered.
func TestInitConfigWithPreset(t *testing.T) {
	tests := []struct {
		name                 string
		preset               string
		expectedConcurrency  int
		expectedMaxPerDomain int
	}{
		{"Unset preset defaults to ultra-conservative", "", 2, 1},
		{"Conservative preset", "conservative", 5, 1},
		{"Balanced preset", "balanced", 10, 2},
		{"Aggressive preset", "aggressive", 20, 5},
		{"Unknown preset is ignored", "nonexistent", 2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd.ResetFlags()
			cmd.SetInputPathForTest("urls.txt")
			cmd.SetPresetForTest(tt.preset)

			cfg, err := cmd.InitConfigWithError()
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if cfg.Concurrency() != tt.expectedConcurrency {
				t.Errorf("Expected Concurrency %d, got %d", tt.expectedConcurrency, cfg.Concurrency())
			}
			if cfg.MaxPerDomain() != tt.expectedMaxPerDomain {
				t.Errorf("Expected MaxPerDomain %d, got %d", tt.expectedMaxPerDomain, cfg.MaxPerDomain())
			}
		})
	}
}

// TestInitConfigWithConcurrencyOverridesPreset tests that an explicit
// --concurrency flag wins over the selected preset's value.
func TestInitConfigWithConcurrencyOverridesPreset(t *testing.T) {
	cmd.ResetFlags()
	cmd.SetInputPathForTest("urls.txt")
	cmd.SetPresetForTest("aggressive")
	cmd.SetConcurrencyForTest(3)

	cfg, err := cmd.InitConfigWithError()
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if cfg.Concurrency() != 3 {
		t.Errorf("Expected explicit override Concurrency 3, got %d", cfg.Concurrency())
	}
	// MaxPerDomain wasn't overridden, so the aggressive preset's value stands.
	if cfg.MaxPerDomain() != 5 {
		t.Errorf("Expected aggressive preset's MaxPerDomain 5, got %d", cfg.MaxPerDomain())
	}
}

// TestInitConfigWithMaxRetries tests that --max-retries is properly applied.
func TestInitConfigWithMaxRetries(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
	}{
		{"Zero maxRetries", 0},
		{"Positive maxRetries", 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd.ResetFlags()
			cmd.SetInputPathForTest("urls.txt")
			cmd.SetMaxRetriesForTest(tt.maxRetries)

			cfg, err := cmd.InitConfigWithError()
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}

			expected := tt.maxRetries
			if tt.maxRetries <= 0 {
				def, err := config.WithDefault("urls.txt").Build()
				if err != nil {
					t.Errorf("should not have any error, got %v", err)
				}
				expected = def.MaxRetries()
			}
			if cfg.MaxRetries() != expected {
				t.Errorf("Expected MaxRetries %d, got %d", expected, cfg.MaxRetries())
			}
		})
	}
}

// TestInitConfigWithVariationsEnabled tests that --variations is always
// applied raw (it is a boolean flag valid at its zero value).
func TestInitConfigWithVariationsEnabled(t *testing.T) {
	tests := []struct {
		name       string
		variations bool
	}{
		{"Variations enabled", true},
		{"Variations disabled", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd.ResetFlags()
			cmd.SetInputPathForTest("urls.txt")
			cmd.SetVariationsForTest(tt.variations)

			cfg, err := cmd.InitConfigWithError()
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if cfg.VariationsEnabled() != tt.variations {
				t.Errorf("Expected VariationsEnabled %t, got %t", tt.variations, cfg.VariationsEnabled())
			}
		})
	}
}

// TestInitConfigWithOutputFormat tests that --output-format is properly applied.
func TestInitConfigWithOutputFormat(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		expected config.OutputFormat
	}{
		{"Empty format defaults to jsonlines", "", config.OutputFormatJSONLines},
		{"Tabular format", "tabular", config.OutputFormatTabular},
		{"Spreadsheet format", "spreadsheet", config.OutputFormatSpreadsheet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd.ResetFlags()
			cmd.SetInputPathForTest("urls.txt")
			cmd.SetOutputFormatForTest(tt.format)

			cfg, err := cmd.InitConfigWithError()
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if cfg.OutputFormat() != tt.expected {
				t.Errorf("Expected OutputFormat %s, got %s", tt.expected, cfg.OutputFormat())
			}
		})
	}
}

// TestInitConfigWithBlockAction tests that --block-action is properly applied.
func TestInitConfigWithBlockAction(t *testing.T) {
	cmd.ResetFlags()
	cmd.SetInputPathForTest("urls.txt")
	cmd.SetBlockActionForTest("abort")

	cfg, err := cmd.InitConfigWithError()
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if cfg.BlockAction() != coordinator.ActionAbort {
		t.Errorf("Expected BlockAction abort, got %s", cfg.BlockAction())
	}
}

// TestInitConfigWithProgressStyle tests that --progress-style is properly applied.
func TestInitConfigWithProgressStyle(t *testing.T) {
	cmd.ResetFlags()
	cmd.SetInputPathForTest("urls.txt")
	cmd.SetProgressStyleForTest("json")

	cfg, err := cmd.InitConfigWithError()
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if cfg.ProgressStyle() != progress.StyleJSON {
		t.Errorf("Expected ProgressStyle json, got %s", cfg.ProgressStyle())
	}
}

// TestInitConfigWithInsecureTLS tests that --insecure is always applied raw.
func TestInitConfigWithInsecureTLS(t *testing.T) {
	cmd.ResetFlags()
	cmd.SetInputPathForTest("urls.txt")
	cmd.SetInsecureTLSForTest(true)

	cfg, err := cmd.InitConfigWithError()
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if !cfg.InsecureTLS() {
		t.Error("Expected InsecureTLS true")
	}
}

// TestInitConfigWithConfigFile tests loading config from a JSON config file.
func TestInitConfigWithConfigFile(t *testing.T) {
	cmd.ResetFlags()

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.json")

	configContent := `{
		"inputPath": "seeds.txt",
		"preset": "balanced",
		"maxRetries": 5,
		"outputPath": "out.jsonl",
		"outputFormat": "tabular",
		"quiet": true
	}`

	if err := os.WriteFile(configFile, []byte(configContent), 0o644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	cmd.SetConfigFileForTest(configFile)

	cfg, err := cmd.InitConfigWithError()
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	if cfg.InputPath() != "seeds.txt" {
		t.Errorf("Expected InputPath 'seeds.txt', got %s", cfg.InputPath())
	}
	if cfg.Preset() != config.PresetBalanced {
		t.Errorf("Expected preset balanced, got %s", cfg.Preset())
	}
	if cfg.MaxRetries() != 5 {
		t.Errorf("Expected MaxRetries 5, got %d", cfg.MaxRetries())
	}
	if cfg.OutputFormat() != config.OutputFormatTabular {
		t.Errorf("Expected OutputFormat tabular, got %s", cfg.OutputFormat())
	}
	if !cfg.Quiet() {
		t.Error("Expected Quiet true")
	}

	// Unset fields in the config file still get the default preset's values.
	defaultCfg, err := config.WithDefault("urls.txt").Build()
	if err != nil {
		t.Errorf("should not have any error, got %v", err)
	}
	if cfg.BlockAction() != defaultCfg.BlockAction() {
		t.Errorf("Expected BlockAction to use default, got %s", cfg.BlockAction())
	}
}

// TestInitConfigWithNonExistentConfigFile tests behavior when --config-file
// points at a file that doesn't exist.
func TestInitConfigWithNonExistentConfigFile(t *testing.T) {
	cmd.ResetFlags()
	cmd.SetConfigFileForTest(filepath.Join(t.TempDir(), "missing.json"))

	_, err := cmd.InitConfigWithError()
	if !errors.Is(err, config.ErrFileDoesNotExist) {
		t.Errorf("Expected ErrFileDoesNotExist, got: %v", err)
	}
}

// TestInitConfigWithInvalidConfigFile tests behavior with invalid JSON.
func TestInitConfigWithInvalidConfigFile(t *testing.T) {
	cmd.ResetFlags()

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "invalid.json")
	if err := os.WriteFile(configFile, []byte("{invalid json"), 0o644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	cmd.SetConfigFileForTest(configFile)

	_, err := cmd.InitConfigWithError()
	if !errors.Is(err, config.ErrConfigParsingFail) {
		t.Errorf("Expected ErrConfigParsingFail, got: %v", err)
	}
}

// TestResetFlags tests that ResetFlags properly resets every flag variable,
// including restoring the --variations default of true.
func TestResetFlags(t *testing.T) {
	cmd.SetInputPathForTest("seeds.txt")
	cmd.SetConcurrencyForTest(9)
	cmd.SetVariationsForTest(false)
	cmd.SetQuietForTest(true)

	cmd.ResetFlags()
	cmd.SetInputPathForTest("urls.txt")

	cfg, err := cmd.InitConfigWithError()
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	defaultCfg, err := config.WithDefault("urls.txt").Build()
	if err != nil {
		t.Errorf("should not have any error, got %v", err)
	}
	if cfg.Concurrency() != defaultCfg.Concurrency() {
		t.Errorf("After ResetFlags, expected Concurrency %d, got %d", defaultCfg.Concurrency(), cfg.Concurrency())
	}
	if !cfg.VariationsEnabled() {
		t.Error("After ResetFlags, expected VariationsEnabled true")
	}
	if cfg.Quiet() {
		t.Error("After ResetFlags, expected Quiet false")
	}
}

// TestInitConfigCompleteIntegration exercises a realistic combination of
// flags together and asserts every resulting field.
func TestInitConfigCompleteIntegration(t *testing.T) {
	cmd.ResetFlags()
	cmd.SetInputPathForTest("seeds.txt")
	cmd.SetPresetForTest("conservative")
	cmd.SetConcurrencyForTest(7)
	cmd.SetMaxPerDomainForTest(3)
	cmd.SetMaxRetriesForTest(4)
	cmd.SetVariationsForTest(false)
	cmd.SetTimeoutForTest(15 * time.Second)
	cmd.SetUserAgentForTest("custom-crawler/2.0")
	cmd.SetOutputPathForTest("/tmp/results.jsonl")
	cmd.SetOutputFormatForTest("tabular")
	cmd.SetCheckpointPathForTest("/tmp/checkpoint.txt")
	cmd.SetBlockThresholdForTest(8)
	cmd.SetBlockWindowSizeForTest(40)
	cmd.SetBlockActionForTest("pause")
	cmd.SetMetricsAddrForTest("127.0.0.1:9100")

	cfg, err := cmd.InitConfigWithError()
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	if cfg.InputPath() != "seeds.txt" {
		t.Errorf("Expected InputPath 'seeds.txt', got %s", cfg.InputPath())
	}
	if cfg.Concurrency() != 7 {
		t.Errorf("Expected Concurrency 7, got %d", cfg.Concurrency())
	}
	if cfg.MaxPerDomain() != 3 {
		t.Errorf("Expected MaxPerDomain 3, got %d", cfg.MaxPerDomain())
	}
	if cfg.MaxRetries() != 4 {
		t.Errorf("Expected MaxRetries 4, got %d", cfg.MaxRetries())
	}
	if cfg.VariationsEnabled() {
		t.Error("Expected VariationsEnabled false")
	}
	if cfg.Timeout() != 15*time.Second {
		t.Errorf("Expected Timeout 15s, got %v", cfg.Timeout())
	}
	if cfg.UserAgent() != "custom-crawler/2.0" {
		t.Errorf("Expected UserAgent 'custom-crawler/2.0', got %s", cfg.UserAgent())
	}
	if cfg.OutputPath() != "/tmp/results.jsonl" {
		t.Errorf("Expected OutputPath '/tmp/results.jsonl', got %s", cfg.OutputPath())
	}
	if cfg.OutputFormat() != config.OutputFormatTabular {
		t.Errorf("Expected OutputFormat tabular, got %s", cfg.OutputFormat())
	}
	if cfg.CheckpointPath() != "/tmp/checkpoint.txt" {
		t.Errorf("Expected CheckpointPath '/tmp/checkpoint.txt', got %s", cfg.CheckpointPath())
	}
	if cfg.BlockThreshold() != 8 || cfg.BlockWindowSize() != 40 {
		t.Errorf("Expected block threshold/window 8/40, got %d/%d", cfg.BlockThreshold(), cfg.BlockWindowSize())
	}
	if cfg.BlockAction() != coordinator.ActionPause {
		t.Errorf("Expected BlockAction pause, got %s", cfg.BlockAction())
	}
	if cfg.MetricsAddr() != "127.0.0.1:9100" {
		t.Errorf("Expected MetricsAddr '127.0.0.1:9100', got %s", cfg.MetricsAddr())
	}
}
