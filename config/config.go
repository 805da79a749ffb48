package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/COAOX/timeline_wars/db"
	"github.com/caarlos0/env/v11"
)

const (
	ArenaRoomName = "arena"
)

type Config struct {
	Database     db.Config `json:"database"`
	FrontendType string    `json:"frontend_type" env:"TW_FRONTEND_TYPE"`
	WSAddr       string    `json:"ws_addr" env:"TW_WS_ADDR"`
	HTTPAddr     string    `json:"http_addr" env:"TW_HTTP_ADDR"`
	LogLevel     string    `json:"log_level" env:"TW_LOG_LEVEL"`

	RoundSeconds   int   `json:"round_seconds" env:"TW_ROUND_SECONDS"`
	DefaultRounds  int   `json:"default_rounds" env:"TW_DEFAULT_ROUNDS"`
	MaxRounds      int   `json:"max_rounds" env:"TW_MAX_ROUNDS"`
	OpeningBalance int64 `json:"opening_balance" env:"TW_OPENING_BALANCE"`
	RandSeed       int64 `json:"rand_seed" env:"TW_RAND_SEED"`

	PruneSeconds          int `json:"prune_seconds" env:"TW_PRUNE_SECONDS"`
	EventRetentionSeconds int `json:"event_retention_seconds" env:"TW_EVENT_RETENTION_SECONDS"`

	Kafka Kafka `json:"kafka"`
	Medal Medal `json:"medal"`
}

type Kafka struct {
	Enabled bool     `json:"enabled" env:"TW_KAFKA_ENABLED"`
	Brokers []string `json:"brokers" env:"TW_KAFKA_BROKERS" envSeparator:","`
	Topic   string   `json:"topic" env:"TW_KAFKA_TOPIC"`
}

// Medal configures victory medal minting on the zecrey marketplace.
type Medal struct {
	Enabled      bool   `json:"enabled" env:"TW_MEDAL_ENABLED"`
	AccountName  string `json:"account_name" env:"TW_MEDAL_ACCOUNT_NAME"`
	Seed         string `json:"seed" env:"TW_MEDAL_SEED"`
	NftPrefix    string `json:"nft_prefix" env:"TW_MEDAL_NFT_PREFIX"`
	CollectionId int64  `json:"collection_id" env:"TW_MEDAL_COLLECTION_ID"`
	Image        string `json:"image" env:"TW_MEDAL_IMAGE"`
}

func Default() Config {
	return Config{
		FrontendType:          "arena",
		WSAddr:                ":3250",
		HTTPAddr:              ":3251",
		LogLevel:              "info",
		RoundSeconds:          90,
		DefaultRounds:         3,
		MaxRounds:             20,
		OpeningBalance:        100,
		PruneSeconds:          60,
		EventRetentionSeconds: 3600,
		Kafka: Kafka{
			Topic: "timeline-wars.battles",
		},
		Medal: Medal{
			NftPrefix: "Timeline Wars Medal",
		},
	}
}

// Load reads the JSON file at path on top of the defaults, then applies TW_* environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Read(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) validate() error {
	switch {
	case c.RoundSeconds <= 0:
		return fmt.Errorf("round_seconds must be positive, got %d", c.RoundSeconds)
	case c.DefaultRounds <= 0 || c.DefaultRounds > c.MaxRounds:
		return fmt.Errorf("default_rounds must be within 1..%d, got %d", c.MaxRounds, c.DefaultRounds)
	case c.PruneSeconds <= 0:
		return fmt.Errorf("prune_seconds must be positive, got %d", c.PruneSeconds)
	case c.OpeningBalance < 0:
		return fmt.Errorf("opening_balance must not be negative")
	case c.Kafka.Enabled && len(c.Kafka.Brokers) == 0:
		return fmt.Errorf("kafka enabled without brokers")
	case c.Medal.Enabled && (c.Medal.AccountName == "" || c.Medal.Seed == ""):
		return fmt.Errorf("medal minting needs account_name and seed")
	}
	return nil
}

func (c *Config) RoundDuration() time.Duration {
	return time.Duration(c.RoundSeconds) * time.Second
}

func (c *Config) PruneInterval() time.Duration {
	return time.Duration(c.PruneSeconds) * time.Second
}

func (c *Config) EventRetention() time.Duration {
	return time.Duration(c.EventRetentionSeconds) * time.Second
}
