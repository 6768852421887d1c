// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. It is built once at
// process start and passed by reference into every component; no component
// performs its own environment lookups.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Safety    SafetyConfig    `mapstructure:"safety" yaml:"safety"`
	Collect   CollectConfig   `mapstructure:"collect" yaml:"collect"`
	CI        CIConfig        `mapstructure:"ci" yaml:"ci"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
}

// LoggerConfig controls the zap logger setup.
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

// LLMConfig holds the settings for the outbound analysis request.
type LLMConfig struct {
	// APIKey is required by any command that reaches the remote endpoint.
	// There is no sensible default. Bound to SUTURE_API_KEY.
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	Model       string        `mapstructure:"model" yaml:"model"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	// RequestsPerMinute throttles outbound calls. Zero disables the limiter.
	RequestsPerMinute float64 `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// SafetyConfig holds the patch application budgets.
type SafetyConfig struct {
	// MaxChangesPerFile caps the number of edits accepted for a single file.
	MaxChangesPerFile int `mapstructure:"max_changes_per_file" yaml:"max_changes_per_file"`
	// MaxChangePercentage caps the size delta a file may undergo, as a
	// percentage of its post-edit size.
	MaxChangePercentage float64 `mapstructure:"max_change_percentage" yaml:"max_change_percentage"`
}

// CollectConfig controls input gathering and prompt assembly.
type CollectConfig struct {
	LintResultsPath  string `mapstructure:"lint_results_path" yaml:"lint_results_path"`
	AuditResultsPath string `mapstructure:"audit_results_path" yaml:"audit_results_path"`
	ProjectInfoPath  string `mapstructure:"project_info_path" yaml:"project_info_path"`
	ManifestPath     string `mapstructure:"manifest_path" yaml:"manifest_path"`
	MaxSampleFiles   int    `mapstructure:"max_sample_files" yaml:"max_sample_files"`
	MaxSampleBytes   int64  `mapstructure:"max_sample_bytes" yaml:"max_sample_bytes"`
	SourceExtension  string `mapstructure:"source_extension" yaml:"source_extension"`
	ExcludeDir       string `mapstructure:"exclude_dir" yaml:"exclude_dir"`
}

// CIConfig carries the hosting-environment context used for changed-file
// discovery. Populated from the standard CI environment variables at load
// time so downstream code never touches the environment directly.
type CIConfig struct {
	EventName string `mapstructure:"event_name" yaml:"event_name"`
	PRNumber  int    `mapstructure:"pr_number" yaml:"pr_number"`
	RepoOwner string `mapstructure:"repo_owner" yaml:"repo_owner"`
	RepoName  string `mapstructure:"repo_name" yaml:"repo_name"`
	Token     string `mapstructure:"token" yaml:"token"`
	RepoPath  string `mapstructure:"repo_path" yaml:"repo_path"`
}

// ArtifactsConfig names the trace files a run leaves behind.
type ArtifactsConfig struct {
	ResponsePath   string `mapstructure:"response_path" yaml:"response_path"`
	FixesPath      string `mapstructure:"fixes_path" yaml:"fixes_path"`
	ReportPath     string `mapstructure:"report_path" yaml:"report_path"`
	RawPayloadPath string `mapstructure:"raw_payload_path" yaml:"raw_payload_path"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "suture-cli")
	v.SetDefault("logger.log_file", "suture.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- LLM --
	v.SetDefault("llm.endpoint", "https://api.anthropic.com/v1/messages")
	v.SetDefault("llm.model", "claude-3-7-sonnet-20250219")
	v.SetDefault("llm.max_tokens", 4000)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.api_timeout", 120*time.Second)
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.retry_delay", 2*time.Second)
	v.SetDefault("llm.requests_per_minute", 0)

	// -- Safety --
	v.SetDefault("safety.max_changes_per_file", 10)
	v.SetDefault("safety.max_change_percentage", 20.0)

	// -- Collect --
	v.SetDefault("collect.lint_results_path", "clippy_output.json")
	v.SetDefault("collect.audit_results_path", "audit_output.json")
	v.SetDefault("collect.project_info_path", "project_info.txt")
	v.SetDefault("collect.manifest_path", "Cargo.toml")
	v.SetDefault("collect.max_sample_files", 5)
	v.SetDefault("collect.max_sample_bytes", 50000)
	v.SetDefault("collect.source_extension", ".rs")
	v.SetDefault("collect.exclude_dir", "target")

	// -- CI --
	v.SetDefault("ci.repo_path", ".")

	// -- Artifacts --
	v.SetDefault("artifacts.response_path", "claude_response.json")
	v.SetDefault("artifacts.fixes_path", "claude_fixes.json")
	v.SetDefault("artifacts.report_path", "claude_analysis_report.md")
	v.SetDefault("artifacts.raw_payload_path", "claude_fixes_raw.txt")
}

// NewDefaultConfig creates a configuration struct populated with default
// values. Used in tests and as the fallback when no config file exists.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults alone.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive and CI-provided data.
	v.BindEnv("llm.api_key", "SUTURE_API_KEY", "CLAUDE_API_KEY")
	v.BindEnv("ci.event_name", "EVENT_NAME", "GITHUB_EVENT_NAME")
	v.BindEnv("ci.pr_number", "PR_NUMBER")
	v.BindEnv("ci.token", "GITHUB_TOKEN")
	v.BindEnv("ci.repo_name", "REPO_NAME")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// REPO_NAME arrives as "owner/name"; split it when the owner half was
	// not set explicitly.
	if cfg.CI.RepoOwner == "" && strings.Contains(cfg.CI.RepoName, "/") {
		parts := strings.SplitN(cfg.CI.RepoName, "/", 2)
		cfg.CI.RepoOwner, cfg.CI.RepoName = parts[0], parts[1]
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
// The API key is deliberately not checked here: only commands that reach
// the remote endpoint need it, and they enforce it via ValidateCredential
// so that apply-only runs work without a credential.
func (c *Config) Validate() error {
	if c.LLM.MaxAttempts <= 0 {
		return fmt.Errorf("llm.max_attempts must be a positive integer")
	}
	if c.LLM.APITimeout <= 0 {
		return fmt.Errorf("llm.api_timeout must be a positive duration")
	}
	if c.Safety.MaxChangesPerFile <= 0 {
		return fmt.Errorf("safety.max_changes_per_file must be a positive integer")
	}
	if c.Safety.MaxChangePercentage <= 0 || c.Safety.MaxChangePercentage > 100 {
		return fmt.Errorf("safety.max_change_percentage must be in (0, 100]")
	}
	return nil
}

// ValidateCredential enforces the presence of the API key.
func (c *Config) ValidateCredential() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("API key is required but not found. Ensure SUTURE_API_KEY is set")
	}
	return nil
}
