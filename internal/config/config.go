// Package config loads service configuration from the environment, with
// an optional config file for local development. All keys can be set via
// CVEVAL_-prefixed environment variables, e.g. CVEVAL_GEMINI_API_KEY.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved service configuration.
type Config struct {
	ListenAddr     string        `mapstructure:"listen_addr"`
	LogLevel       string        `mapstructure:"log_level"`
	MaxConns       int           `mapstructure:"max_conns"`
	DataDir        string        `mapstructure:"data_dir"`
	GeminiAPIKey   string        `mapstructure:"gemini_api_key"`
	GeminiModel    string        `mapstructure:"gemini_model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Workers        int           `mapstructure:"workers"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RetrievalTopK  int           `mapstructure:"retrieval_top_k"`
	MCPEnabled     bool          `mapstructure:"mcp_enabled"`
}

// Load reads configuration from the environment and, if present, a
// cveval.yaml file in the working directory or under the data dir.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("max_conns", 256)
	v.SetDefault("data_dir", "./data")
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("gemini_model", "gemini-2.5-flash")
	v.SetDefault("embedding_model", "gemini-embedding-001")
	v.SetDefault("workers", 4)
	v.SetDefault("retry_attempts", 3)
	v.SetDefault("retry_base_delay", 500*time.Millisecond)
	v.SetDefault("retrieval_top_k", 3)
	v.SetDefault("mcp_enabled", false)

	v.SetEnvPrefix("CVEVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("cveval")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(v.GetString("data_dir"))
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be at least 1, got %d", c.RetryAttempts)
	}
	if c.RetrievalTopK < 1 {
		return fmt.Errorf("retrieval_top_k must be at least 1, got %d", c.RetrievalTopK)
	}
	return nil
}
