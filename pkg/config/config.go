package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"PriceCast/pkg/logger"
	"PriceCast/pkg/util"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

const (
	ModeAPI    = "api"
	ModeWorker = "worker"
	ModeAll    = "all"
)

type Config struct {
	Environment string        `yaml:"environment" default:"development"`
	Mode        string        `yaml:"mode" default:"all"`
	Log         logger.Config `yaml:"log"`
	Server      struct {
		Port            int           `yaml:"port" default:"8000"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"120s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Metrics struct {
		Enabled       bool          `yaml:"enabled"`
		Path          string        `yaml:"path" default:"/metrics"`
		SlowThreshold time.Duration `yaml:"slow_threshold" default:"5s"`
	} `yaml:"metrics"`
	RateLimit struct {
		Capacity     float64 `yaml:"capacity" default:"5"`
		RefillPerSec float64 `yaml:"refill_per_sec" default:"0.1"`
	} `yaml:"rate_limit"`
	Store struct {
		// Backend is "redis" or "memory". Memory only works with mode "all".
		Backend string `yaml:"backend" default:"redis"`
		Prefix  string `yaml:"prefix" default:"pricecast"`
	} `yaml:"store"`
	Redis struct {
		Host         string        `yaml:"host" default:"localhost"`
		Port         int           `yaml:"port" default:"6379"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		PoolSize     int           `yaml:"pool_size" default:"10"`
		MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
		PoolTimeout  time.Duration `yaml:"pool_timeout" default:"30s"`
	} `yaml:"redis"`
	Queue struct {
		Workers    int           `yaml:"workers" default:"1"`
		RetryLimit int           `yaml:"retry_limit"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
		KeyPrefix  string        `yaml:"key_prefix" default:"pricecast:queue"`
	} `yaml:"queue"`
	Jobs struct {
		StatusTTL      time.Duration `yaml:"status_ttl" default:"24h"`
		LockTTL        time.Duration `yaml:"lock_ttl" default:"2h"`
		StreamInterval time.Duration `yaml:"stream_interval" default:"1s"`
	} `yaml:"jobs"`
	Training struct {
		LookbackYears int     `yaml:"lookback_years" default:"4"`
		Epochs        int     `yaml:"epochs" default:"50"`
		BatchSize     int     `yaml:"batch_size" default:"16"`
		LearningRate  float64 `yaml:"learning_rate" default:"0.001"`
		Seed          int64   `yaml:"seed" default:"42"`
		LSTMUnits     []int   `yaml:"lstm_units"`
		DenseUnits    []int   `yaml:"dense_units"`
	} `yaml:"training"`
	Inference struct {
		LookbackYears     int     `yaml:"lookback_years" default:"10"`
		DefaultInvestment float64 `yaml:"default_investment" default:"1000"`
		TransactionCost   float64 `yaml:"transaction_cost" default:"0.001"`
		Slippage          float64 `yaml:"slippage" default:"0.0005"`
	} `yaml:"inference"`
	Models struct {
		Dir string `yaml:"dir" default:"trained_models"`
	} `yaml:"models"`
	Media struct {
		Dir       string `yaml:"dir" default:"media"`
		URLPrefix string `yaml:"url_prefix" default:"/media"`
	} `yaml:"media"`
	MarketData struct {
		BaseURL   string        `yaml:"base_url" default:"https://query1.finance.yahoo.com"`
		Timeout   time.Duration `yaml:"timeout" default:"20s"`
		UserAgent string        `yaml:"user_agent" default:"Mozilla/5.0 (PriceCast)"`
		// CacheTTL bounds how long ClickHouse-cached bars are served before refetching.
		CacheTTL time.Duration `yaml:"cache_ttl" default:"12h"`
	} `yaml:"market_data"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"pricecast.training-events"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"pricecast"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
}

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, fills defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("APP_MODE"); v != "" {
		c.Mode = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, err := net.SplitHostPort(v)
		if err == nil {
			c.Redis.Host = host
			c.Redis.Port = util.ParseIntDefault(port, c.Redis.Port)
		}
	}
	if v := getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := getenv("REDIS_PORT"); v != "" {
		c.Redis.Port = util.ParseIntDefault(v, c.Redis.Port)
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("QUEUE_WORKERS"); v != "" {
		c.Queue.Workers = util.ParseIntDefault(v, c.Queue.Workers)
	}
	if v := getenv("TRAIN_EPOCHS"); v != "" {
		c.Training.Epochs = util.ParseIntDefault(v, c.Training.Epochs)
	}
	if v := getenv("MODELS_DIR"); v != "" {
		c.Models.Dir = v
	}
	if v := getenv("MEDIA_DIR"); v != "" {
		c.Media.Dir = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeAPI, ModeWorker, ModeAll:
	default:
		return fmt.Errorf("mode must be 'api', 'worker' or 'all', got '%s'", c.Mode)
	}
	switch c.Store.Backend {
	case "redis":
	case "memory":
		if c.Mode != ModeAll {
			return fmt.Errorf("store.backend 'memory' requires mode 'all'")
		}
	default:
		return fmt.Errorf("store.backend must be 'redis' or 'memory', got '%s'", c.Store.Backend)
	}
	if c.Queue.Workers <= 0 {
		return fmt.Errorf("queue.workers must be positive")
	}
	if c.Training.Epochs <= 0 || c.Training.BatchSize <= 0 {
		return fmt.Errorf("training.epochs and training.batch_size must be positive")
	}
	if c.Training.LookbackYears <= 0 || c.Inference.LookbackYears <= 0 {
		return fmt.Errorf("lookback_years must be positive")
	}
	if c.Inference.DefaultInvestment <= 0 {
		return fmt.Errorf("inference.default_investment must be positive")
	}
	if c.Models.Dir == "" {
		return fmt.Errorf("models.dir is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}
