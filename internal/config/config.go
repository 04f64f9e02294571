package config

import (
	"os"
	"strconv"
)

// Config holds process bootstrap configuration.
// Runtime-tunable translation settings live in Settings and are managed by
// the SettingsStore; everything here is fixed for the process lifetime.
//
// Environment Variables:
// - LISTEN_ADDR: HTTP listen address (default: :8000)
// - DATA_DIR: directory for the SQLite database and settings file (default: ./data)
// - SETTINGS_FILE: path of the runtime settings JSON (default: DATA_DIR/settings.json)
// - LLM_API_URL: translation API base URL (default: Gemini generateContent endpoint)
// - LLM_TIMEOUT: request timeout in seconds (default: 120)
// - AUTOSAVE_CRON: autosave schedule (default: every minute)
// - LOG_LEVEL: debug|info|warn|error (default: info)
type Config struct {
	ListenAddr   string `json:"listen_addr"`
	DataDir      string `json:"data_dir"`
	SettingsFile string `json:"settings_file"`
	APIURL       string `json:"api_url"`
	APITimeout   int    `json:"api_timeout"`
	AutosaveCron string `json:"autosave_cron"`
	LogLevel     string `json:"log_level"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) *Config {
	dataDir := getEnvString("DATA_DIR", "./data")

	config := &Config{
		ListenAddr:   getEnvString("LISTEN_ADDR", ":8000"),
		DataDir:      dataDir,
		SettingsFile: getEnvString("SETTINGS_FILE", dataDir+"/settings.json"),
		APIURL:       getEnvString("LLM_API_URL", "https://generativelanguage.googleapis.com/v1beta/models"),
		APITimeout:   getEnvInt("LLM_TIMEOUT", 120),
		AutosaveCron: getEnvString("AUTOSAVE_CRON", "* * * * *"),
		LogLevel:     getEnvString("LOG_LEVEL", "info"),
	}

	for _, opt := range opts {
		opt(config)
	}
	return config
}

// DatabasePath returns the SQLite database location under the data dir.
func (c *Config) DatabasePath() string {
	return c.DataDir + "/workbench.db"
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
