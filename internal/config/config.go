package config

import "time"

// ReplicatorConfig is the root configuration for the replication engine.
type ReplicatorConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Database  DBConfig        `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Feed      FeedConfig      `yaml:"feed"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Planner   PlannerConfig   `yaml:"planner"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Engine    EngineConfig    `yaml:"engine"`
	Health    HealthConfig    `yaml:"health"`
}

// InstanceConfig identifies this replicator instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ExchangeConfig holds exchange endpoints and signing credentials.
type ExchangeConfig struct {
	RestURL    string        `yaml:"rest_url"`
	WSURL      string        `yaml:"ws_url"`
	Timeout    time.Duration `yaml:"timeout"`
	Address    string        `yaml:"address"`    // Signer address
	APIKey     string        `yaml:"api_key"`    // L2 API key
	APISecret  string        `yaml:"api_secret"` // L2 API secret (base64url)
	Passphrase string        `yaml:"passphrase"` // L2 passphrase
}

// DBConfig holds PostgreSQL connection parameters.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RedisConfig holds connection parameters for the subscription store.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// KafkaConfig holds the optional event sink for the statistics pipeline.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// FeedConfig controls the leader feed ingestor.
type FeedConfig struct {
	BufferSize         int           `yaml:"buffer_size"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	PingInterval       time.Duration `yaml:"ping_interval"`
}

// DedupConfig controls the fingerprint store and retention sweeper.
type DedupConfig struct {
	RetentionWindow time.Duration `yaml:"retention_window"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	CompositeBucket time.Duration `yaml:"composite_bucket"`
}

// PlannerConfig controls replica order planning.
type PlannerConfig struct {
	// DefaultMinSize is the exchange's minimum tradable unit when a market
	// has no explicit entry. Decimal string.
	DefaultMinSize string `yaml:"default_min_size"`

	// MarketMinSizes overrides the minimum per market. Decimal strings.
	MarketMinSizes map[string]string `yaml:"market_min_sizes"`
}

// ExecutorConfig controls order submission retries.
type ExecutorConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
}

// BroadcastConfig controls the observer push channel.
type BroadcastConfig struct {
	ListenAddr        string `yaml:"listen_addr"`
	ObserverQueueSize int    `yaml:"observer_queue_size"`
}

// EngineConfig controls pipeline parallelism.
type EngineConfig struct {
	Workers             int           `yaml:"workers"`
	DispatchDepth       int           `yaml:"dispatch_depth"`
	SubscriptionRefresh time.Duration `yaml:"subscription_refresh"`
	FailureThreshold    int           `yaml:"failure_threshold"`
}

// HealthConfig controls the health/stats HTTP endpoint.
type HealthConfig struct {
	Port int `yaml:"port"`
}
