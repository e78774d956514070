package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	// MaxPageCap bounds the page cap a caller may request.
	MaxPageCap = 200

	defaultModel       = "gemini-2.5-flash"
	defaultRenderDPI   = 300
	defaultMaxFileSize = 50 * 1024 * 1024 // 50MB source download limit
)

// Config holds all configuration for paperlens. It is immutable after load
// and passed explicitly into every component constructor.
type Config struct {
	// Model provider
	Provider     string // "gemini" or "openai"
	Model        string
	GeminiAPIKey string
	OpenAIAPIKey string

	// Output
	OutputRoot   string // per-run directories are created under this root
	DatabasePath string // analysis registry; defaults to <OutputRoot>/paperlens.db

	// Extraction
	RenderDPI float64
	MaxPages  int // default page cap when the caller supplies none; 0 means all pages

	// Figure detection
	LayoutServiceURL string  // optional layout-detection service; empty disables Tier 1
	LayoutConfidence float64 // minimum region confidence kept from the layout service

	// Conversation
	PageTextLimit        int           // per-turn page text cap, characters
	TemplatePath         string        // optional report template shown in the preamble
	TemplatePreviewLimit int           // characters of the template included in the preamble
	TurnDelay            time.Duration // pause after each successful turn
	CallTimeout          time.Duration // per model call
	RetryAttempts        int
	RetryBaseDelay       time.Duration
	TurnsPerMinute       int // shared pacing across concurrent runs

	// Document sources
	MaxFileSize     int64
	ZoteroAPIKey    string
	ZoteroLibraryID string

	// Logging
	LogLevel  string
	LogOutput string
	LogFile   string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Provider:             ProviderGemini,
		Model:                defaultModel,
		OutputRoot:           filepath.Join("data", "analyses"),
		RenderDPI:            defaultRenderDPI,
		MaxPages:             0,
		LayoutConfidence:     0.7,
		PageTextLimit:        3000,
		TemplatePreviewLimit: 2000,
		TurnDelay:            2 * time.Second,
		CallTimeout:          120 * time.Second,
		RetryAttempts:        3,
		RetryBaseDelay:       2 * time.Second,
		TurnsPerMinute:       30,
		MaxFileSize:          defaultMaxFileSize,
		LogLevel:             "info",
	}
}

// LoadFromFlags parses command line flags and environment variables
// (PAPERLENS_ prefix) and returns a validated configuration.
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()

	pflag.Parse()

	populateConfigFromViper(cfg)

	if cfg.OutputRoot != "" {
		if abs, err := filepath.Abs(cfg.OutputRoot); err == nil {
			cfg.OutputRoot = abs
		}
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.OutputRoot, "paperlens.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix("PAPERLENS")
	viper.AutomaticEnv()

	viper.SetDefault("provider", cfg.Provider)
	viper.SetDefault("model", cfg.Model)
	viper.SetDefault("gemini_api_key", "")
	viper.SetDefault("openai_api_key", "")
	viper.SetDefault("output_root", cfg.OutputRoot)
	viper.SetDefault("database", "")
	viper.SetDefault("render_dpi", cfg.RenderDPI)
	viper.SetDefault("max_pages", cfg.MaxPages)
	viper.SetDefault("layout_service_url", "")
	viper.SetDefault("layout_confidence", cfg.LayoutConfidence)
	viper.SetDefault("page_text_limit", cfg.PageTextLimit)
	viper.SetDefault("template_path", "")
	viper.SetDefault("template_preview_limit", cfg.TemplatePreviewLimit)
	viper.SetDefault("turn_delay", cfg.TurnDelay)
	viper.SetDefault("call_timeout", cfg.CallTimeout)
	viper.SetDefault("retry_attempts", cfg.RetryAttempts)
	viper.SetDefault("retry_base_delay", cfg.RetryBaseDelay)
	viper.SetDefault("turns_per_minute", cfg.TurnsPerMinute)
	viper.SetDefault("max_file_size", cfg.MaxFileSize)
	viper.SetDefault("zotero_api_key", "")
	viper.SetDefault("zotero_library_id", "")
	viper.SetDefault("log_level", cfg.LogLevel)
	viper.SetDefault("log_output", "")
	viper.SetDefault("log_file", "")
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("provider", cfg.Provider, "Model provider: 'gemini' or 'openai'")
	pflag.String("model", cfg.Model, "Model identifier sent to the provider")
	pflag.String("output-root", cfg.OutputRoot, "Directory holding per-run analysis output")
	pflag.String("database", "", "Path to the analysis registry database (default <output-root>/paperlens.db)")
	pflag.Int("max-pages", cfg.MaxPages, "Default page cap per analysis (0 = all pages)")
	pflag.String("layout-service-url", "", "Base URL of the optional layout-detection service")
	pflag.String("template-path", "", "Optional report template previewed in the instruction turn")
	pflag.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.String("log-output", "", "Log output: 'file' or 'stderr' (auto-detected when empty)")
	pflag.String("log-file", "", "Log file path when logging to file")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	_ = viper.BindPFlag("provider", pflag.Lookup("provider"))
	_ = viper.BindPFlag("model", pflag.Lookup("model"))
	_ = viper.BindPFlag("output_root", pflag.Lookup("output-root"))
	_ = viper.BindPFlag("database", pflag.Lookup("database"))
	_ = viper.BindPFlag("max_pages", pflag.Lookup("max-pages"))
	_ = viper.BindPFlag("layout_service_url", pflag.Lookup("layout-service-url"))
	_ = viper.BindPFlag("template_path", pflag.Lookup("template-path"))
	_ = viper.BindPFlag("log_level", pflag.Lookup("log-level"))
	_ = viper.BindPFlag("log_output", pflag.Lookup("log-output"))
	_ = viper.BindPFlag("log_file", pflag.Lookup("log-file"))
}

// populateConfigFromViper reads the final values back into the config
func populateConfigFromViper(cfg *Config) {
	cfg.Provider = viper.GetString("provider")
	cfg.Model = viper.GetString("model")
	cfg.GeminiAPIKey = viper.GetString("gemini_api_key")
	cfg.OpenAIAPIKey = viper.GetString("openai_api_key")
	cfg.OutputRoot = viper.GetString("output_root")
	cfg.DatabasePath = viper.GetString("database")
	cfg.RenderDPI = viper.GetFloat64("render_dpi")
	cfg.MaxPages = viper.GetInt("max_pages")
	cfg.LayoutServiceURL = viper.GetString("layout_service_url")
	cfg.LayoutConfidence = viper.GetFloat64("layout_confidence")
	cfg.PageTextLimit = viper.GetInt("page_text_limit")
	cfg.TemplatePath = viper.GetString("template_path")
	cfg.TemplatePreviewLimit = viper.GetInt("template_preview_limit")
	cfg.TurnDelay = viper.GetDuration("turn_delay")
	cfg.CallTimeout = viper.GetDuration("call_timeout")
	cfg.RetryAttempts = viper.GetInt("retry_attempts")
	cfg.RetryBaseDelay = viper.GetDuration("retry_base_delay")
	cfg.TurnsPerMinute = viper.GetInt("turns_per_minute")
	cfg.MaxFileSize = viper.GetInt64("max_file_size")
	cfg.ZoteroAPIKey = viper.GetString("zotero_api_key")
	cfg.ZoteroLibraryID = viper.GetString("zotero_library_id")
	cfg.LogLevel = viper.GetString("log_level")
	cfg.LogOutput = viper.GetString("log_output")
	cfg.LogFile = viper.GetString("log_file")

	// API keys also honored without the prefix, matching the vendor SDKs
	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Provider != ProviderGemini && c.Provider != ProviderOpenAI {
		return fmt.Errorf("unknown provider %q (expected %q or %q)", c.Provider, ProviderGemini, ProviderOpenAI)
	}
	if c.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	if c.OutputRoot == "" {
		return fmt.Errorf("output root must not be empty")
	}
	if c.RenderDPI <= 0 {
		return fmt.Errorf("render DPI must be positive, got %v", c.RenderDPI)
	}
	if c.MaxPages < 0 || c.MaxPages > MaxPageCap {
		return fmt.Errorf("max pages must be in 0..%d, got %d", MaxPageCap, c.MaxPages)
	}
	if c.LayoutConfidence < 0 || c.LayoutConfidence > 1 {
		return fmt.Errorf("layout confidence must be in 0..1, got %v", c.LayoutConfidence)
	}
	if c.PageTextLimit < 1 {
		return fmt.Errorf("page text limit must be positive, got %d", c.PageTextLimit)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1, got %d", c.RetryAttempts)
	}
	if c.TurnDelay < 0 || c.RetryBaseDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be positive, got %v", c.CallTimeout)
	}
	if c.MaxFileSize < 1 {
		return fmt.Errorf("max file size must be positive, got %d", c.MaxFileSize)
	}
	return nil
}
