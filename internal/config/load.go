package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "RAG"

// GeminiModelPrefix is the prefix shared by every Gemini model id.
const GeminiModelPrefix = "gemini-"

// defaults holds the value of every configuration key. Registering every key with
// viper is what makes environment-only overrides visible to Unmarshal.
var defaults = map[string]any{
	"server.log_level":  "info",
	"server.admin_port": 8081,

	"queue.host":              "localhost",
	"queue.port":              5672,
	"queue.user":              "guest",
	"queue.password":          "guest",
	"queue.vhost":             "/",
	"queue.name":              "rag_queue",
	"queue.prefetch_count":    1,
	"queue.heartbeat_seconds": 60,

	"cache.driver":      "redis",
	"cache.host":        "localhost",
	"cache.port":        6379,
	"cache.db":          0,
	"cache.password":    "",
	"cache.ttl_seconds": 3600,
	"cache.channel":     "rag_results_channel",
	"cache.memory_size": 10000,

	"database.driver": "sqlite",
	"database.url":    "rag_results.db",

	"worker.batch_size":               5,
	"worker.pool_size":                4,
	"worker.max_pending_batches":      4,
	"worker.ack_mode":                 "receipt",
	"worker.reconnect_delay_seconds":  5,
	"worker.generate_timeout_seconds": 120,
	"worker.flush_interval_seconds":   0,

	"producer.max_attempts":        3,
	"producer.retry_delay_seconds": 2,

	"llm.provider":            "local",
	"llm.gemini_api_key":      "",
	"llm.long_model":          "GPT-4",
	"llm.short_model":         "GPT-3.5",
	"llm.long_question_chars": 250,
	"llm.retrieval_top_k":     3,
	"llm.max_retries":         2,
	"llm.retry_delay_seconds": 1,
}

// Load configuration from environment variables and optionally a config file.
// Environment variables (RAG_ prefix, dots replaced by underscores) take precedence
// over values from config.yaml in the working directory, which take precedence over
// the built-in defaults.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct tags and the rules that span several sections.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// A completion-acked batch holds its deliveries unacknowledged, so the broker must
	// be allowed to hand out at least a full batch.
	if cfg.Worker.AckMode == "completion" && cfg.Queue.PrefetchCount < cfg.Worker.BatchSize {
		return fmt.Errorf(
			"config validation failed: queue.prefetch_count (%d) must be >= worker.batch_size (%d) when worker.ack_mode is completion",
			cfg.Queue.PrefetchCount,
			cfg.Worker.BatchSize,
		)
	}

	if cfg.LLM.Provider == "gemini" {
		for key, model := range map[string]string{
			"llm.long_model":  cfg.LLM.LongModel,
			"llm.short_model": cfg.LLM.ShortModel,
		} {
			if !strings.HasPrefix(model, GeminiModelPrefix) {
				return fmt.Errorf(
					"config validation failed: %s (%q) must be a Gemini model id (%s*) when llm.provider is gemini",
					key, model, GeminiModelPrefix,
				)
			}
		}
	}

	return nil
}
