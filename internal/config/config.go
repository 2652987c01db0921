package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue" validate:"required"`
	Cache    CacheConfig    `mapstructure:"cache" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker" validate:"required"`
	Producer ProducerConfig `mapstructure:"producer" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
}

// ServerConfig contains process-level settings.
type ServerConfig struct {
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// AdminPort is the port of the health/stats listener. Zero disables it.
	AdminPort int `mapstructure:"admin_port" validate:"gte=0,lt=65536"`
}

// QueueConfig contains the durable queue (RabbitMQ) connection settings.
type QueueConfig struct {
	Host             string `mapstructure:"host" validate:"required"`
	Port             int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	User             string `mapstructure:"user" validate:"required"`
	Password         string `mapstructure:"password"`
	VHost            string `mapstructure:"vhost" validate:"required"`
	Name             string `mapstructure:"name" validate:"required"`
	PrefetchCount    int    `mapstructure:"prefetch_count" validate:"gte=1"`
	HeartbeatSeconds int    `mapstructure:"heartbeat_seconds" validate:"gte=0"`
}

// Heartbeat returns the AMQP heartbeat interval.
func (c QueueConfig) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// CacheConfig contains the answer cache and result broadcast settings.
type CacheConfig struct {
	Driver     string `mapstructure:"driver" validate:"required,oneof=redis memory"`
	Host       string `mapstructure:"host" validate:"required_if=Driver redis"`
	Port       int    `mapstructure:"port" validate:"required_if=Driver redis,gte=0,lt=65536"`
	DB         int    `mapstructure:"db" validate:"gte=0"`
	Password   string `mapstructure:"password"`
	TTLSeconds int    `mapstructure:"ttl_seconds" validate:"gt=0"`
	Channel    string `mapstructure:"channel" validate:"required"`
	MemorySize int    `mapstructure:"memory_size" validate:"gt=0"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// DatabaseConfig contains the result sink settings.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=sqlite pgx"`
	URL    string `mapstructure:"url" validate:"required"`
}

// WorkerConfig contains the batching dispatcher and worker pool settings.
type WorkerConfig struct {
	BatchSize              int    `mapstructure:"batch_size" validate:"gte=1"`
	PoolSize               int    `mapstructure:"pool_size" validate:"gte=1"`
	MaxPendingBatches      int    `mapstructure:"max_pending_batches" validate:"gte=1"`
	AckMode                string `mapstructure:"ack_mode" validate:"required,oneof=receipt completion"`
	ReconnectDelaySeconds  int    `mapstructure:"reconnect_delay_seconds" validate:"gte=1"`
	GenerateTimeoutSeconds int    `mapstructure:"generate_timeout_seconds" validate:"gte=0"`
	FlushIntervalSeconds   int    `mapstructure:"flush_interval_seconds" validate:"gte=0"`
}

// ReconnectDelay returns the wait between consumer reconnect attempts.
func (c WorkerConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelaySeconds) * time.Second
}

// GenerateTimeout returns the per-item answer generation deadline. Zero means none.
func (c WorkerConfig) GenerateTimeout() time.Duration {
	return time.Duration(c.GenerateTimeoutSeconds) * time.Second
}

// FlushInterval returns the partial batch flush interval. Zero means size-only flushing.
func (c WorkerConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

// ProducerConfig contains the task producer retry policy.
type ProducerConfig struct {
	MaxAttempts       int `mapstructure:"max_attempts" validate:"gte=1"`
	RetryDelaySeconds int `mapstructure:"retry_delay_seconds" validate:"gte=0"`
}

// RetryDelay returns the fixed delay between publish attempts.
func (c ProducerConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// LLMConfig contains answer generator settings.
type LLMConfig struct {
	Provider          string `mapstructure:"provider" validate:"required,oneof=local gemini"`
	GeminiAPIKey      string `mapstructure:"gemini_api_key" validate:"required_if=Provider gemini"`
	LongModel         string `mapstructure:"long_model" validate:"required"`
	ShortModel        string `mapstructure:"short_model" validate:"required"`
	LongQuestionChars int    `mapstructure:"long_question_chars" validate:"gt=0"`
	// RetrievalTopK is the number of document passages placed in each prompt.
	RetrievalTopK     int `mapstructure:"retrieval_top_k" validate:"gte=1"`
	MaxRetries        int `mapstructure:"max_retries" validate:"gte=0"`
	RetryDelaySeconds int `mapstructure:"retry_delay_seconds" validate:"gte=1"`
}

// RetryDelay returns the base delay between retries of transient model failures.
func (c LLMConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}
