// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Agent() AgentConfig
	Perception() PerceptionConfig
	LLM() LLMConfig
	Voice() VoiceConfig
	Files() FilesConfig
	Apps() AppsConfig
	Preferences() PreferencesConfig
	Journal() JournalConfig

	// Setters used by CLI flag overrides.
	SetPerceptionSnapshotPath(path string)
	SetPerceptionFullScan(b bool)
	SetJournalEnabled(b bool)
	SetAgentSubmitAfterType(b bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	AgentCfg       AgentConfig       `mapstructure:"agent" yaml:"agent"`
	PerceptionCfg  PerceptionConfig  `mapstructure:"perception" yaml:"perception"`
	LLMCfg         LLMConfig         `mapstructure:"llm" yaml:"llm"`
	VoiceCfg       VoiceConfig       `mapstructure:"voice" yaml:"voice"`
	FilesCfg       FilesConfig       `mapstructure:"files" yaml:"files"`
	AppsCfg        AppsConfig        `mapstructure:"apps" yaml:"apps"`
	PreferencesCfg PreferencesConfig `mapstructure:"preferences" yaml:"preferences"`
	JournalCfg     JournalConfig     `mapstructure:"journal" yaml:"journal"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig           { return c.LoggerCfg }
func (c *Config) Agent() AgentConfig             { return c.AgentCfg }
func (c *Config) Perception() PerceptionConfig   { return c.PerceptionCfg }
func (c *Config) LLM() LLMConfig                 { return c.LLMCfg }
func (c *Config) Voice() VoiceConfig             { return c.VoiceCfg }
func (c *Config) Files() FilesConfig             { return c.FilesCfg }
func (c *Config) Apps() AppsConfig               { return c.AppsCfg }
func (c *Config) Preferences() PreferencesConfig { return c.PreferencesCfg }
func (c *Config) Journal() JournalConfig         { return c.JournalCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetPerceptionSnapshotPath(path string) { c.PerceptionCfg.SnapshotPath = path }
func (c *Config) SetPerceptionFullScan(b bool)          { c.PerceptionCfg.FullScan = b }
func (c *Config) SetJournalEnabled(b bool)              { c.JournalCfg.Enabled = b }
func (c *Config) SetAgentSubmitAfterType(b bool)        { c.AgentCfg.SubmitAfterType = b }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// AgentConfig tunes the autonomous task loop.
type AgentConfig struct {
	Name                   string `mapstructure:"name" yaml:"name"`
	MaxActionsPerStep      int    `mapstructure:"max_actions_per_step" yaml:"max_actions_per_step"`
	StepCeilingMultiplier  int    `mapstructure:"step_ceiling_multiplier" yaml:"step_ceiling_multiplier"`
	MaxConsecutiveFailures int    `mapstructure:"max_consecutive_failures" yaml:"max_consecutive_failures"`
	HistoryMaxItems        int    `mapstructure:"history_max_items" yaml:"history_max_items"`
	MaxUILength            int    `mapstructure:"max_ui_length" yaml:"max_ui_length"`
	// SubmitAfterType presses Enter after every type action.
	SubmitAfterType bool          `mapstructure:"submit_after_type" yaml:"submit_after_type"`
	FailureBackoff  time.Duration `mapstructure:"failure_backoff" yaml:"failure_backoff"`
	StepDelay       time.Duration `mapstructure:"step_delay" yaml:"step_delay"`
}

// MaxSteps is the hard step ceiling for one task.
func (a AgentConfig) MaxSteps() int {
	return a.MaxActionsPerStep * a.StepCeilingMultiplier
}

// PerceptionConfig configures the accessibility tree reader.
type PerceptionConfig struct {
	MaxDepth        int    `mapstructure:"max_depth" yaml:"max_depth"`
	FullScan        bool   `mapstructure:"full_scan" yaml:"full_scan"`
	ScanConcurrency int    `mapstructure:"scan_concurrency" yaml:"scan_concurrency"`
	SnapshotPath    string `mapstructure:"snapshot_path" yaml:"snapshot_path"`
}

// LLMConfig configures the generation backends for both model tiers.
type LLMConfig struct {
	APIKeyEnv         string         `mapstructure:"api_key_env" yaml:"api_key_env"`
	BaseURL           string         `mapstructure:"base_url" yaml:"base_url"`
	RequestsPerMinute int            `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Agent             LLMModelConfig `mapstructure:"agent" yaml:"agent"`
	Voice             LLMModelConfig `mapstructure:"voice" yaml:"voice"`
}

// LLMModelConfig defines the configuration for a single model client.
type LLMModelConfig struct {
	Model           string        `mapstructure:"model" yaml:"model"`
	APITimeout      time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries"`
	InitialBackoff  time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff      time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	Temperature     float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
}

// VoiceConfig configures the conversational supervisor.
type VoiceConfig struct {
	SilenceDebounce time.Duration `mapstructure:"silence_debounce" yaml:"silence_debounce"`
	AssistantName   string        `mapstructure:"assistant_name" yaml:"assistant_name"`
	// DictationTail keeps recording briefly after the talk key is released
	// so the final words are transcribed.
	DictationTail time.Duration `mapstructure:"dictation_tail" yaml:"dictation_tail"`
}

// FilesConfig locates the per-task file store.
type FilesConfig struct {
	Root string `mapstructure:"root" yaml:"root"`
}

// AppsConfig lists where installed applications are discovered.
type AppsConfig struct {
	Dirs    []string `mapstructure:"dirs" yaml:"dirs"`
	Pattern string   `mapstructure:"pattern" yaml:"pattern"`
}

// PreferencesConfig configures the cross-task preferences file.
type PreferencesConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
	MaxSize int    `mapstructure:"max_size" yaml:"max_size"`
	Watch   bool   `mapstructure:"watch" yaml:"watch"`
}

// JournalConfig configures the run journal. The sqlite driver stores runs in
// the file at Path; the postgres driver connects to DSN.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Driver  string `mapstructure:"driver" yaml:"driver"`
	Path    string `mapstructure:"path" yaml:"path"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "deskpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Agent --
	v.SetDefault("agent.name", "Deskpilot")
	v.SetDefault("agent.max_actions_per_step", 10)
	v.SetDefault("agent.step_ceiling_multiplier", 10)
	v.SetDefault("agent.max_consecutive_failures", 3)
	v.SetDefault("agent.history_max_items", 10)
	v.SetDefault("agent.max_ui_length", 40000)
	v.SetDefault("agent.submit_after_type", true)
	v.SetDefault("agent.failure_backoff", "2s")
	v.SetDefault("agent.step_delay", "1s")

	// -- Perception --
	v.SetDefault("perception.max_depth", 50)
	v.SetDefault("perception.full_scan", false)
	v.SetDefault("perception.scan_concurrency", 4)
	v.SetDefault("perception.snapshot_path", "")

	// -- LLM --
	v.SetDefault("llm.api_key_env", "GEMINI_API_KEY")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.requests_per_minute", 60)
	v.SetDefault("llm.agent.model", "gemini-2.5-pro")
	v.SetDefault("llm.agent.api_timeout", "60s")
	v.SetDefault("llm.agent.max_retries", 3)
	v.SetDefault("llm.agent.initial_backoff", "1s")
	v.SetDefault("llm.agent.max_backoff", "16s")
	v.SetDefault("llm.agent.temperature", 0.2)
	v.SetDefault("llm.agent.max_output_tokens", 8192)
	v.SetDefault("llm.voice.model", "gemini-2.5-flash")
	v.SetDefault("llm.voice.api_timeout", "15s")
	v.SetDefault("llm.voice.max_retries", 2)
	v.SetDefault("llm.voice.initial_backoff", "500ms")
	v.SetDefault("llm.voice.max_backoff", "4s")
	v.SetDefault("llm.voice.temperature", 0.7)
	v.SetDefault("llm.voice.max_output_tokens", 1024)

	// -- Voice --
	v.SetDefault("voice.silence_debounce", "1.5s")
	v.SetDefault("voice.assistant_name", "Deskpilot")
	v.SetDefault("voice.dictation_tail", "300ms")

	// -- Files --
	v.SetDefault("files.root", "~/Documents/deskpilot")

	// -- Apps --
	v.SetDefault("apps.dirs", []string{
		"/Applications",
		"/System/Applications",
		"/System/Applications/Utilities",
		"~/Applications",
	})
	v.SetDefault("apps.pattern", "*.app")

	// -- Preferences --
	v.SetDefault("preferences.enabled", true)
	v.SetDefault("preferences.path", "~/.deskpilot/preferences.md")
	v.SetDefault("preferences.max_size", 8000)
	v.SetDefault("preferences.watch", true)

	// -- Journal --
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.driver", "sqlite")
	v.SetDefault("journal.path", "~/.deskpilot/journal.db")
	v.SetDefault("journal.dsn", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.AgentCfg.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if c.PerceptionCfg.MaxDepth <= 0 {
		return fmt.Errorf("perception.max_depth must be a positive integer")
	}
	if c.PerceptionCfg.ScanConcurrency <= 0 {
		return fmt.Errorf("perception.scan_concurrency must be a positive integer")
	}
	if err := c.LLMCfg.Agent.Validate(); err != nil {
		return fmt.Errorf("llm.agent configuration invalid: %w", err)
	}
	if err := c.LLMCfg.Voice.Validate(); err != nil {
		return fmt.Errorf("llm.voice configuration invalid: %w", err)
	}
	if c.LLMCfg.RequestsPerMinute < 0 {
		return fmt.Errorf("llm.requests_per_minute must not be negative")
	}
	if c.VoiceCfg.SilenceDebounce <= 0 {
		return fmt.Errorf("voice.silence_debounce must be a positive duration")
	}
	if c.VoiceCfg.DictationTail < 0 {
		return fmt.Errorf("voice.dictation_tail must not be negative")
	}
	if c.FilesCfg.Root == "" {
		return fmt.Errorf("files.root is a required configuration field")
	}
	if c.JournalCfg.Enabled {
		switch c.JournalCfg.Driver {
		case "sqlite":
			if c.JournalCfg.Path == "" {
				return fmt.Errorf("journal.path is required when the journal is enabled")
			}
		case "postgres":
			if c.JournalCfg.DSN == "" {
				return fmt.Errorf("journal.dsn is required for the postgres journal driver")
			}
		default:
			return fmt.Errorf("journal.driver must be 'sqlite' or 'postgres', got %q", c.JournalCfg.Driver)
		}
	}
	return nil
}

// Validate checks the agent loop bounds.
func (a *AgentConfig) Validate() error {
	if a.MaxActionsPerStep <= 0 {
		return fmt.Errorf("max_actions_per_step must be a positive integer")
	}
	if a.StepCeilingMultiplier <= 0 {
		return fmt.Errorf("step_ceiling_multiplier must be a positive integer")
	}
	if a.MaxConsecutiveFailures < 0 {
		return fmt.Errorf("max_consecutive_failures must not be negative")
	}
	if a.HistoryMaxItems < 2 {
		return fmt.Errorf("history_max_items must be at least 2")
	}
	if a.MaxUILength <= 0 {
		return fmt.Errorf("max_ui_length must be a positive integer")
	}
	if a.FailureBackoff < 0 || a.StepDelay < 0 {
		return fmt.Errorf("failure_backoff and step_delay must not be negative")
	}
	return nil
}

// Validate checks a single model client's settings.
func (m *LLMModelConfig) Validate() error {
	if m.Model == "" {
		return fmt.Errorf("model is required")
	}
	if m.MaxRetries <= 0 {
		return fmt.Errorf("max_retries must be a positive integer")
	}
	if m.InitialBackoff <= 0 || m.MaxBackoff < m.InitialBackoff {
		return fmt.Errorf("backoff must satisfy 0 < initial_backoff <= max_backoff")
	}
	if m.APITimeout <= 0 {
		return fmt.Errorf("api_timeout must be a positive duration")
	}
	return nil
}
