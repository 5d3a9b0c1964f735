package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL             = "https://clob.polymarket.com"
	DefaultWSURL               = "wss://ws-subscriptions-clob.polymarket.com/ws"
	DefaultExchangeTimeout     = 10 * time.Second
	DefaultDBPort              = 5432
	DefaultDBSSLMode           = "prefer"
	DefaultMaxConns            = 10
	DefaultMinConns            = 2
	DefaultRedisAddr           = "localhost:6379"
	DefaultRedisKeyPrefix      = "replicator"
	DefaultFeedBufferSize      = 1000
	DefaultReconnectBaseDelay  = 1 * time.Second
	DefaultReconnectMaxDelay   = 30 * time.Second
	DefaultReadTimeout         = 30 * time.Second
	DefaultPingInterval        = 15 * time.Second
	DefaultRetentionWindow     = 10 * time.Minute
	DefaultSweepInterval       = 10 * time.Minute
	DefaultCompositeBucket     = 1 * time.Second
	DefaultMinSize             = "1"
	DefaultMaxAttempts         = 5
	DefaultBackoffBase         = 500 * time.Millisecond
	DefaultBackoffMax          = 10 * time.Second
	DefaultBroadcastListenAddr = ":8090"
	DefaultObserverQueueSize   = 256
	DefaultWorkers             = 8
	DefaultDispatchDepth       = 4096
	DefaultSubscriptionRefresh = 5 * time.Second
	DefaultFailureThreshold    = 5
	DefaultHealthPort          = 8080
)

func (c *ReplicatorConfig) applyDefaults() {
	// Exchange defaults
	if c.Exchange.RestURL == "" {
		c.Exchange.RestURL = DefaultRestURL
	}
	if c.Exchange.WSURL == "" {
		c.Exchange.WSURL = DefaultWSURL
	}
	if c.Exchange.Timeout == 0 {
		c.Exchange.Timeout = DefaultExchangeTimeout
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = DefaultRedisAddr
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// Feed defaults
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = DefaultFeedBufferSize
	}
	if c.Feed.ReconnectBaseDelay == 0 {
		c.Feed.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Feed.ReconnectMaxDelay == 0 {
		c.Feed.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Feed.ReadTimeout == 0 {
		c.Feed.ReadTimeout = DefaultReadTimeout
	}
	if c.Feed.PingInterval == 0 {
		c.Feed.PingInterval = DefaultPingInterval
	}

	// Dedup defaults
	if c.Dedup.RetentionWindow == 0 {
		c.Dedup.RetentionWindow = DefaultRetentionWindow
	}
	if c.Dedup.SweepInterval == 0 {
		c.Dedup.SweepInterval = DefaultSweepInterval
	}
	if c.Dedup.CompositeBucket == 0 {
		c.Dedup.CompositeBucket = DefaultCompositeBucket
	}

	// Planner defaults
	if c.Planner.DefaultMinSize == "" {
		c.Planner.DefaultMinSize = DefaultMinSize
	}

	// Executor defaults
	if c.Executor.MaxAttempts == 0 {
		c.Executor.MaxAttempts = DefaultMaxAttempts
	}
	if c.Executor.BackoffBase == 0 {
		c.Executor.BackoffBase = DefaultBackoffBase
	}
	if c.Executor.BackoffMax == 0 {
		c.Executor.BackoffMax = DefaultBackoffMax
	}

	// Broadcast defaults
	if c.Broadcast.ListenAddr == "" {
		c.Broadcast.ListenAddr = DefaultBroadcastListenAddr
	}
	if c.Broadcast.ObserverQueueSize == 0 {
		c.Broadcast.ObserverQueueSize = DefaultObserverQueueSize
	}

	// Engine defaults
	if c.Engine.Workers == 0 {
		c.Engine.Workers = DefaultWorkers
	}
	if c.Engine.DispatchDepth == 0 {
		c.Engine.DispatchDepth = DefaultDispatchDepth
	}
	if c.Engine.SubscriptionRefresh == 0 {
		c.Engine.SubscriptionRefresh = DefaultSubscriptionRefresh
	}
	if c.Engine.FailureThreshold == 0 {
		c.Engine.FailureThreshold = DefaultFailureThreshold
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}
