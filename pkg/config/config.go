package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"BinPull/pkg/util"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"20s"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"2s"`
		RateLimitEvery  time.Duration `yaml:"rate_limit_every" default:"500ms"`
		RateLimitBurst  int           `yaml:"rate_limit_burst" default:"5"`
		CORS            bool          `yaml:"cors" default:"true"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logger struct {
		Level      string `yaml:"level" default:"info"`
		Format     string `yaml:"format" default:"json"`
		Output     string `yaml:"output" default:"stdout"`
		MaxSizeMB  int    `yaml:"max_size_mb" default:"100"`
		MaxBackups int    `yaml:"max_backups" default:"5"`
		MaxAgeDays int    `yaml:"max_age_days" default:"14"`
		Compress   bool   `yaml:"compress"`
		Collector  struct {
			Enabled   bool          `yaml:"enabled"`
			Topic     string        `yaml:"topic" default:"binpull.logs"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"logger"`
	Venue struct {
		URL            string        `yaml:"url" default:"wss://ws.derivws.com/websockets/v3"`
		AppID          string        `yaml:"app_id"`
		Symbols        []string      `yaml:"symbols" default:"[\"R_100\"]"`
		ReconnectBase  time.Duration `yaml:"reconnect_base" default:"2s"`
		ReconnectCap   int           `yaml:"reconnect_cap" default:"5"`
		MaxAttempts    int           `yaml:"max_attempts" default:"10"`
		RequestTimeout time.Duration `yaml:"request_timeout" default:"60s"`
		HealthInterval time.Duration `yaml:"health_interval" default:"60s"`
		HealthJitter   time.Duration `yaml:"health_jitter" default:"15s"`
		AuthTimeout    time.Duration `yaml:"auth_timeout" default:"30s"`
		AuthRetries    int           `yaml:"auth_retries" default:"3"`
		HistoryCount   int           `yaml:"history_count" default:"200"`
	} `yaml:"venue"`
	Trading struct {
		BaseStake        float64       `yaml:"base_stake" default:"1"`
		Currency         string        `yaml:"currency" default:"USD"`
		Duration         int           `yaml:"duration" default:"5"`
		DurationUnit     string        `yaml:"duration_unit" default:"t"`
		Strategy         string        `yaml:"strategy" default:"MULTI_INDICATOR"`
		AccountType      string        `yaml:"account_type" default:"DEMO"`
		TargetTrades     int           `yaml:"target_trades" default:"0"`
		TradeCooldown    time.Duration `yaml:"trade_cooldown" default:"4s"`
		BuyTimeout       time.Duration `yaml:"buy_timeout" default:"30s"`
		OrderRetries     int           `yaml:"order_retries" default:"5"`
		OrderBackoffBase time.Duration `yaml:"order_backoff_base" default:"5s"`
		OrderBackoffMax  time.Duration `yaml:"order_backoff_max" default:"60s"`
		BreakerThreshold int           `yaml:"breaker_threshold" default:"3"`
		BreakerWindow    time.Duration `yaml:"breaker_window" default:"60s"`
		BreakerCooldown  time.Duration `yaml:"breaker_cooldown" default:"120s"`
		TickBuffer       int           `yaml:"tick_buffer" default:"1024"`
		CommandBuffer    int           `yaml:"command_buffer" default:"32"`
		TickPrune        int           `yaml:"tick_prune" default:"10000"`
		TickRetain       int           `yaml:"tick_retain" default:"500"`
	} `yaml:"trading"`
	Risk struct {
		MaxSessionLossPct    float64 `yaml:"max_session_loss_pct" default:"0.2"`
		MaxConsecutiveLosses int     `yaml:"max_consecutive_losses" default:"5"`
		DailyLossUSD         float64 `yaml:"daily_loss_usd" default:"50"`
		MinStake             float64 `yaml:"min_stake" default:"0.5"`
	} `yaml:"risk"`
	Confluence struct {
		MinScore      float64       `yaml:"min_score" default:"50"`
		MinConfidence float64       `yaml:"min_confidence" default:"0.5"`
		Cooldown      time.Duration `yaml:"cooldown" default:"12s"`
		MTFTimeframe  string        `yaml:"mtf_timeframe" default:"5m"`
		PredictorVeto bool          `yaml:"predictor_veto" default:"true"`
	} `yaml:"confluence"`
	Scanner struct {
		Enabled  bool          `yaml:"enabled"`
		Symbols  []string      `yaml:"symbols"`
		Strategy string        `yaml:"strategy" default:"MULTI_INDICATOR"`
		MinTicks int           `yaml:"min_ticks" default:"30"`
		Interval time.Duration `yaml:"interval" default:"15s"`
		Top      int           `yaml:"top" default:"3"`
	} `yaml:"scanner"`
	Session struct {
		SnapshotTTL    time.Duration `yaml:"snapshot_ttl" default:"24h"`
		SnapshotMaxAge time.Duration `yaml:"snapshot_max_age" default:"30m"`
		LockTTL        time.Duration `yaml:"lock_ttl" default:"12h"`
		EventBuffer    int           `yaml:"event_buffer" default:"256"`
	} `yaml:"session"`
	Kafka struct {
		Enabled       bool     `yaml:"enabled"`
		Brokers       []string `yaml:"brokers"`
		EventsTopic   string   `yaml:"events_topic" default:"binpull.events"`
		CommandsTopic string   `yaml:"commands_topic" default:"binpull.commands"`
		RequiredAcks  int      `yaml:"required_acks" default:"-1"`
		Compression   string   `yaml:"compression" default:"snappy"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"200ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"binpull-control"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"binpull.commands.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"1048576"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"binpull"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert" default:"true"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
		BatchSize        int           `yaml:"batch_size" default:"500"`
		BatchTimeout     time.Duration `yaml:"batch_timeout" default:"2s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"binpull"`
		Layered  bool   `yaml:"layered"`
		Pool     struct {
			Size    int           `yaml:"size" default:"10"`
			MinIdle int           `yaml:"min_idle" default:"2"`
			Timeout time.Duration `yaml:"timeout" default:"30s"`
		} `yaml:"pool"`
		L1 struct {
			Size int           `yaml:"size" default:"10000"`
			TTL  time.Duration `yaml:"ttl" default:"30s"`
		} `yaml:"l1"`
		Queue struct {
			Enabled    bool          `yaml:"enabled"`
			Workers    int           `yaml:"workers" default:"2"`
			RetryLimit int           `yaml:"retry_limit" default:"3"`
			RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
		} `yaml:"queue"`
	} `yaml:"redis"`
	Credentials struct {
		Source    string `yaml:"source" default:"env"`
		EnvPrefix string `yaml:"env_prefix" default:"VENUE_TOKEN"`
		SSMPrefix string `yaml:"ssm_prefix" default:"/binpull/tokens"`
	} `yaml:"credentials"`
}

// Load reads and parses a YAML configuration file over the defaults.
func Load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// defaults plus environment only
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads .env, then YAML, then applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("APP_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
	if v := os.Getenv("VENUE_URL"); v != "" {
		c.Venue.URL = v
	}
	if v := os.Getenv("VENUE_APP_ID"); v != "" {
		c.Venue.AppID = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Venue.Symbols = splitList(v)
	}
	if v := os.Getenv("BASE_STAKE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Trading.BaseStake = f
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("CREDENTIALS_SOURCE"); v != "" {
		c.Credentials.Source = v
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Venue.URL == "" {
		return fmt.Errorf("venue.url is required")
	}
	if len(c.Venue.Symbols) == 0 {
		return fmt.Errorf("venue.symbols cannot be empty")
	}
	if c.Venue.ReconnectCap <= 0 || c.Venue.MaxAttempts <= 0 {
		return fmt.Errorf("venue.reconnect_cap and venue.max_attempts must be positive")
	}
	if c.Trading.BaseStake < c.Risk.MinStake {
		return fmt.Errorf("trading.base_stake %.2f below risk.min_stake %.2f", c.Trading.BaseStake, c.Risk.MinStake)
	}
	if c.Trading.AccountType != "DEMO" && c.Trading.AccountType != "REAL" {
		return fmt.Errorf("trading.account_type must be DEMO or REAL, got %q", c.Trading.AccountType)
	}
	if c.Risk.MaxSessionLossPct <= 0 || c.Risk.MaxSessionLossPct > 1 {
		return fmt.Errorf("risk.max_session_loss_pct must be in (0,1]")
	}
	if c.Redis.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("redis.queue requires redis.enabled")
	}
	if c.Scanner.Enabled && (c.Scanner.Interval <= 0 || c.Scanner.MinTicks <= 0) {
		return fmt.Errorf("scanner.interval and scanner.min_ticks must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required when kafka is enabled")
	}
	switch c.Credentials.Source {
	case "env", "ssm", "chain":
	default:
		return fmt.Errorf("credentials.source must be env, ssm or chain, got %q", c.Credentials.Source)
	}
	return nil
}
