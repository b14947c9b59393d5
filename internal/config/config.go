package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

// RecoveryPolicy controls what the bootstrapper does with sessions left
// active by a previous process lifetime.
type RecoveryPolicy string

const (
	// RecoveryResume leaves stale active sessions in place; the first
	// sweep bills any elapsed whole intervals since lastBilledAt.
	RecoveryResume RecoveryPolicy = "resume"
	// RecoveryTerminate ends stale active sessions without billing the gap.
	RecoveryTerminate RecoveryPolicy = "terminate"
)

type Config struct {
	Port                   int    `env:"PORT" envDefault:"8080"`
	DatabaseURL            string `env:"DATABASE_URL,required"`
	RedisURL               string `env:"REDIS_URL,required"`
	LogLevel               string `env:"LOG_LEVEL" envDefault:"info"`
	SweepIntervalSeconds   int    `env:"SWEEP_INTERVAL_SECONDS" envDefault:"10"`
	BillingIntervalSeconds int    `env:"BILLING_INTERVAL_SECONDS" envDefault:"60"`
	RecoveryPolicy         string `env:"BILLING_RECOVERY_POLICY" envDefault:"resume"`
	RateLimitPerMin        int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c *Config) BillingInterval() time.Duration {
	return time.Duration(c.BillingIntervalSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Recovery() RecoveryPolicy {
	switch RecoveryPolicy(c.RecoveryPolicy) {
	case RecoveryResume, RecoveryTerminate:
		return RecoveryPolicy(c.RecoveryPolicy)
	default:
		log.Warn().Str("policy", c.RecoveryPolicy).Msg("unknown recovery policy, falling back to resume")
		return RecoveryResume
	}
}

func (c *Config) Validate() error {
	if c.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must be positive")
	}
	if c.BillingIntervalSeconds <= 0 {
		return fmt.Errorf("BILLING_INTERVAL_SECONDS must be positive")
	}
	if c.SweepIntervalSeconds > c.BillingIntervalSeconds {
		log.Warn().
			Int("sweepSeconds", c.SweepIntervalSeconds).
			Int("billingSeconds", c.BillingIntervalSeconds).
			Msg("sweep interval exceeds billing interval: billing will lag behind due intervals")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
