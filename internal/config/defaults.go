package config

import "time"

// Default values for configuration
const (
	// Log defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	// OneBot defaults
	DefaultOneBotAPIURL         = "http://127.0.0.1:8000"
	DefaultOneBotPollTimeout    = 30 * time.Second // Long-poll timeout passed to get_latest_events
	DefaultOneBotPollInterval   = time.Second      // Pause between poll cycles
	DefaultOneBotErrorBackoff   = 5 * time.Second  // Pause after a failed poll
	DefaultOneBotRequestTimeout = 35 * time.Second // Must exceed the long-poll timeout

	// AI defaults
	DefaultAIBaseURL     = "https://api.deepseek.com/v1"
	DefaultAIModel       = "deepseek-chat"
	DefaultAITemperature = 0.7
	DefaultAIMaxTokens   = 1000
	DefaultAITimeout     = 30 * time.Second

	// Bot defaults
	DefaultBotMaxHistory     = 10               // Messages kept per user session
	DefaultBotSessionTimeout = 30 * time.Minute // Idle time before a session expires
	DefaultBotSweepInterval  = time.Hour        // How often expired sessions are reclaimed
	DefaultBotMaxRoutines    = 50               // Maximum concurrent event handlers
	DefaultBotDataDir        = "data"
	DefaultBotPolicyFile     = "data/user_config.json"
)

// DefaultAIPrompt is the system prompt used when a user has not configured
// a custom one.
const DefaultAIPrompt = "You are a friendly chat assistant. Reply to the user's messages in a concise, " +
	"friendly tone. If a question touches on sensitive content, decline politely. " +
	"Keep replies short, no more than 100 words."
