package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load loads and validates configuration from:
// 1. Default values
// 2. A local .env file, if present
// 3. The config file at configPath (optional)
// 4. WEBOT_* environment variables
func Load(configPath string) (*Config, error) {
	// .env is optional; ignore a missing file but surface parse errors
	// through viper's env layer by loading it into the process environment.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("WEBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow missing config file; defaults plus environment are enough.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for optional configuration parameters.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)

	// Key registration matters beyond defaults: viper only overlays
	// environment variables onto keys it knows about, so optional
	// string settings are registered with empty defaults.
	v.SetDefault("onebot.access_token", "")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("bot.admin_id", "")
	v.SetDefault("bot.bootstrap_users", "")

	// OneBot defaults
	v.SetDefault("onebot.api_url", DefaultOneBotAPIURL)
	v.SetDefault("onebot.poll_timeout", DefaultOneBotPollTimeout)
	v.SetDefault("onebot.poll_interval", DefaultOneBotPollInterval)
	v.SetDefault("onebot.error_backoff", DefaultOneBotErrorBackoff)
	v.SetDefault("onebot.request_timeout", DefaultOneBotRequestTimeout)

	// AI defaults
	v.SetDefault("ai.base_url", DefaultAIBaseURL)
	v.SetDefault("ai.model", DefaultAIModel)
	v.SetDefault("ai.temperature", DefaultAITemperature)
	v.SetDefault("ai.max_tokens", DefaultAIMaxTokens)
	v.SetDefault("ai.timeout", DefaultAITimeout)
	v.SetDefault("ai.default_prompt", DefaultAIPrompt)

	// Bot defaults
	v.SetDefault("bot.max_history", DefaultBotMaxHistory)
	v.SetDefault("bot.session_timeout", DefaultBotSessionTimeout)
	v.SetDefault("bot.sweep_interval", DefaultBotSweepInterval)
	v.SetDefault("bot.max_routines", DefaultBotMaxRoutines)
	v.SetDefault("bot.data_dir", DefaultBotDataDir)
	v.SetDefault("bot.policy_file", DefaultBotPolicyFile)
}
