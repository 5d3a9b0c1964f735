package config

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Validate checks that all required fields are set and values are valid.
func (c *ReplicatorConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Exchange.Address == "" {
		return errors.New("exchange.address is required")
	}
	if c.Exchange.APIKey == "" {
		return errors.New("exchange.api_key is required")
	}
	if c.Exchange.APISecret == "" {
		return errors.New("exchange.api_secret is required")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Feed.BufferSize < 1 {
		return errors.New("feed.buffer_size must be >= 1")
	}
	if c.Feed.ReconnectBaseDelay > c.Feed.ReconnectMaxDelay {
		return fmt.Errorf("feed.reconnect_base_delay (%s) cannot exceed reconnect_max_delay (%s)",
			c.Feed.ReconnectBaseDelay, c.Feed.ReconnectMaxDelay)
	}

	if c.Dedup.RetentionWindow <= 0 {
		return errors.New("dedup.retention_window must be positive")
	}
	if c.Dedup.SweepInterval <= 0 {
		return errors.New("dedup.sweep_interval must be positive")
	}

	if _, err := decimal.NewFromString(c.Planner.DefaultMinSize); err != nil {
		return fmt.Errorf("planner.default_min_size %q is not a valid decimal", c.Planner.DefaultMinSize)
	}
	for market, s := range c.Planner.MarketMinSizes {
		if _, err := decimal.NewFromString(s); err != nil {
			return fmt.Errorf("planner.market_min_sizes[%s] %q is not a valid decimal", market, s)
		}
	}

	if c.Executor.MaxAttempts < 1 {
		return errors.New("executor.max_attempts must be >= 1")
	}
	if c.Executor.BackoffBase > c.Executor.BackoffMax {
		return fmt.Errorf("executor.backoff_base (%s) cannot exceed backoff_max (%s)",
			c.Executor.BackoffBase, c.Executor.BackoffMax)
	}

	if c.Broadcast.ObserverQueueSize < 1 {
		return errors.New("broadcast.observer_queue_size must be >= 1")
	}

	if c.Engine.Workers < 1 {
		return errors.New("engine.workers must be >= 1")
	}
	if c.Engine.DispatchDepth < 1 {
		return errors.New("engine.dispatch_depth must be >= 1")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka.enabled is true")
	}
	if c.Kafka.Enabled && c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required when kafka.enabled is true")
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

// MinSizeFor returns the minimum tradable unit for a market.
// Call only after Validate has confirmed the decimals parse.
func (p *PlannerConfig) MinSizeFor(market string) decimal.Decimal {
	if s, ok := p.MarketMinSizes[market]; ok {
		if d, err := decimal.NewFromString(s); err == nil {
			return d
		}
	}
	d, err := decimal.NewFromString(p.DefaultMinSize)
	if err != nil {
		return decimal.Zero
	}
	return d
}
