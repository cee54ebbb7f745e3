// Package config manages application configuration from environment variables,
// config files, and default values.
package config

import (
	"time"
)

// Config defines the application configuration. Values can be set via
// config.yaml or environment variables prefixed with WEBOT_
// (e.g., WEBOT_AI_API_KEY). A local .env file is loaded first if present.
type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	OneBot OneBotConfig `mapstructure:"onebot"`
	AI     AIConfig     `mapstructure:"ai"`
	Bot    BotConfig    `mapstructure:"bot"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// OneBotConfig holds settings for the OneBot HTTP action API, which acts as
// both the inbound event feed and the outbound message transport.
type OneBotConfig struct {
	APIURL         string        `mapstructure:"api_url"         validate:"required,url"`
	AccessToken    string        `mapstructure:"access_token"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"    validate:"required,min=1s,max=5m"`
	PollInterval   time.Duration `mapstructure:"poll_interval"   validate:"required,min=100ms,max=1m"`
	ErrorBackoff   time.Duration `mapstructure:"error_backoff"   validate:"required,min=1s,max=5m"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"required,min=1s,max=5m"`
}

// AIConfig holds settings for the DeepSeek chat completion API.
// The API is wire-compatible with the OpenAI chat completions endpoint.
type AIConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"       validate:"required,url"`
	Model         string        `mapstructure:"model"          validate:"required"`
	Temperature   float32       `mapstructure:"temperature"    validate:"min=0,max=2"`
	MaxTokens     int           `mapstructure:"max_tokens"     validate:"required,min=1,max=8192"`
	Timeout       time.Duration `mapstructure:"timeout"        validate:"required,min=1s,max=10m"`
	DefaultPrompt string        `mapstructure:"default_prompt" validate:"required"`
}

// BotConfig holds dispatch-pipeline settings: session limits, admin identity,
// policy persistence, and worker concurrency.
type BotConfig struct {
	AdminID        string        `mapstructure:"admin_id"`
	MaxHistory     int           `mapstructure:"max_history"     validate:"required,min=1,max=100"`
	SessionTimeout time.Duration `mapstructure:"session_timeout" validate:"required,min=1m,max=24h"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"  validate:"required,min=1m,max=24h"`
	MaxRoutines    int           `mapstructure:"max_routines"    validate:"required,min=1,max=1000"`
	BootstrapUsers string        `mapstructure:"bootstrap_users"`
	DataDir        string        `mapstructure:"data_dir"        validate:"required"`
	PolicyFile     string        `mapstructure:"policy_file"     validate:"required"`
}
