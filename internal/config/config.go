// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix, e.g. FEED_NODE_URL.
const Prefix = "FEED"

// Config holds all service configuration. Empty endpoints disable the
// component that would use them.
type Config struct {
	// Chain
	NodeURL       string `envconfig:"NODE_URL" default:"https://fullnode.mainnet.aptoslabs.com"`
	ModuleAddress string `envconfig:"MODULE_ADDRESS" default:"0xbd35135844473187163ca197ca93b2ab014370587bb0ed3befff9e902d6bb541"`

	// Pipelines
	Pipelines            string        `envconfig:"PIPELINES" default:"clob,amm"`
	ClobInterval         time.Duration `envconfig:"CLOB_INTERVAL" default:"1s"`
	AmmInterval          time.Duration `envconfig:"AMM_INTERVAL" default:"1s"`
	VenueRefreshInterval time.Duration `envconfig:"VENUE_REFRESH_INTERVAL" default:"1m"`
	PageLimit            int           `envconfig:"PAGE_LIMIT" default:"100"`

	// Storage
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	PostgresDSN   string `envconfig:"POSTGRES_DSN"`
	ClickhouseDSN string `envconfig:"CLICKHOUSE_DSN"`

	// Sinks
	RedisChannelPrefix string `envconfig:"REDIS_CHANNEL_PREFIX"`
	NATSURL            string `envconfig:"NATS_URL"`
	NATSStream         string `envconfig:"NATS_STREAM" default:"MARKET_FEED"`
	NATSSubjectPrefix  string `envconfig:"NATS_SUBJECT_PREFIX" default:"feed"`
	KafkaBrokers       string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic         string `envconfig:"KAFKA_TOPIC" default:"market-feed"`
	QueueSize          int    `envconfig:"QUEUE_SIZE" default:"1024"`

	// Service
	HTTPAddr     string `envconfig:"HTTP_ADDR" default:":8080"`
	PyroscopeURL string `envconfig:"PYROSCOPE_URL"`
	Debug        bool   `envconfig:"DEBUG" default:"false"`
}

// Load reads envFile (if it exists) into the environment, then fills Config.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.NodeURL == "" {
		return errors.New("node url is required")
	}
	if c.ModuleAddress == "" {
		return errors.New("module address is required")
	}
	if c.ClobInterval <= 0 || c.AmmInterval <= 0 || c.VenueRefreshInterval <= 0 {
		return errors.New("intervals must be positive")
	}
	if c.PageLimit <= 0 {
		return fmt.Errorf("page limit must be positive, got %d", c.PageLimit)
	}
	for _, p := range c.PipelineList() {
		if p != PipelineClob && p != PipelineAmm {
			return fmt.Errorf("unknown pipeline %q", p)
		}
	}
	return nil
}

// Pipeline names.
const (
	PipelineClob = "clob"
	PipelineAmm  = "amm"
)

// PipelineList returns the enabled pipelines.
func (c *Config) PipelineList() []string {
	list := splitList(c.Pipelines)
	for i, p := range list {
		list[i] = strings.ToLower(p)
	}
	return list
}

// HasPipeline reports whether name is enabled.
func (c *Config) HasPipeline(name string) bool {
	for _, p := range c.PipelineList() {
		if p == name {
			return true
		}
	}
	return false
}

// KafkaBrokerList splits the comma-separated broker list.
func (c *Config) KafkaBrokerList() []string {
	return splitList(c.KafkaBrokers)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
