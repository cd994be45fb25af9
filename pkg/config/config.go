package config

import (
	"fmt"
	"os"
	"time"

	"PortfolioHistory/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Service     string           `yaml:"service" default:"portfolio-history"`
	Log         LogConfig        `yaml:"log"`
	Server      ServerConfig     `yaml:"server"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Redis       RedisConfig      `yaml:"redis"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	Queue       QueueConfig      `yaml:"queue"`
	Prices      PricesConfig     `yaml:"prices"`
	History     HistoryConfig    `yaml:"history"`
}

type LogConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output     string `yaml:"output" default:"stdout"`
	TimeFormat string `yaml:"time_format"`

	// Collector forwards aggregated warn/error logs to Kafka.
	Collector struct {
		Enabled        bool          `yaml:"enabled"`
		Level          string        `yaml:"level" default:"error" validate:"oneof=warn error"`
		Interval       time.Duration `yaml:"interval" default:"30s"`
		CountThreshold int           `yaml:"count_threshold" default:"100"`
	} `yaml:"collector"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	SlowThreshold   time.Duration `yaml:"slow_threshold" default:"2s"`
	CORS            bool          `yaml:"cors" default:"true"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host" default:"localhost" validate:"required"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"portfolio" validate:"required"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert" default:"true"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	Compression      string        `yaml:"compression" default:"lz4" validate:"oneof=none lz4 zstd"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	MaxOpenConns     int           `yaml:"max_open_conns" default:"10"`
	MaxIdleConns     int           `yaml:"max_idle_conns" default:"5"`
	InitSchema       bool          `yaml:"init_schema" default:"true"`
	WriteChunkDays   int           `yaml:"write_chunk_days" default:"31" validate:"gte=1"`
}

type RedisConfig struct {
	Addr         string        `yaml:"addr" default:"localhost:6379" validate:"required"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size" default:"20"`
	MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
	Timeout      time.Duration `yaml:"timeout" default:"3s"`
	Prefix       string        `yaml:"prefix" default:"portfolio_history"`
	// MemoryCacheSize enables an in-process layer in front of Redis when > 0.
	MemoryCacheSize int           `yaml:"memory_cache_size" default:"1000"`
	MemoryCacheTTL  time.Duration `yaml:"memory_cache_ttl" default:"1m"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers" validate:"required,min=1"`
	RequiredAcks int      `yaml:"required_acks" default:"-1"`
	Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	AutoCreate   bool     `yaml:"auto_create_topics"`
	Topics       struct {
		HistoryUpdated string `yaml:"history_updated" default:"portfolio.history.updated" validate:"required"`
		LedgerEvents   string `yaml:"ledger_events" default:"portfolio.ledger.events" validate:"required"`
		Logs           string `yaml:"logs" default:"portfolio.history.logs"`
	} `yaml:"topics"`
	Producer struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		Linger       time.Duration `yaml:"linger" default:"50ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		Enabled    bool          `yaml:"enabled" default:"true"`
		GroupID    string        `yaml:"group_id" default:"portfolio-history"`
		Workers    int           `yaml:"workers" default:"2"`
		BufferSize int           `yaml:"buffer_size" default:"64"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"portfolio.ledger.events.dlq"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
	} `yaml:"consumer"`
}

type QueueConfig struct {
	Workers    int           `yaml:"workers" default:"1"`
	QueueSize  int           `yaml:"queue_size" default:"100"`
	RetryLimit int           `yaml:"retry_limit" default:"5"`
	RetryDelay time.Duration `yaml:"retry_delay" default:"1m"`

	JobTimeout  time.Duration `yaml:"job_timeout" default:"30m"`
	DedupWindow time.Duration `yaml:"dedup_window" default:"10m"`
}

type PricesConfig struct {
	BaseURL           string        `yaml:"base_url" default:"https://eodhd.com/api" validate:"url"`
	APIKey            string        `yaml:"api_key"`
	Exchange          string        `yaml:"exchange" default:"US"`
	Timeout           time.Duration `yaml:"timeout" default:"15s"`
	RequestsPerSecond float64       `yaml:"requests_per_second" default:"5" validate:"gt=0"`
	Burst             float64       `yaml:"burst" default:"10"`
	Workers           int           `yaml:"workers" default:"4" validate:"gte=1"`
	DailyTTL          time.Duration `yaml:"daily_ttl" default:"12h"`
	CurrentTTL        time.Duration `yaml:"current_ttl" default:"1h"`
	RetryAttempts     int           `yaml:"retry_attempts" default:"4"`
	RetryBaseDelay    time.Duration `yaml:"retry_base_delay" default:"500ms"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay" default:"30s"`
}

type HistoryConfig struct {
	// StartDate is YYYY-MM-DD; an empty history begins here.
	StartDate       string        `yaml:"start_date" default:"2015-01-01" validate:"datetime=2006-01-02"`
	Workers         int           `yaml:"workers" default:"8" validate:"gte=1"`
	SyncWorkers     int           `yaml:"sync_workers" default:"7" validate:"gte=1"`
	CostBasisMethod string        `yaml:"cost_basis_method" default:"fifo" validate:"oneof=fifo average"`
	SyncInterval    time.Duration `yaml:"sync_interval" default:"1h"`
	LockTTL         time.Duration `yaml:"lock_ttl" default:"15m"`
	CacheTTL        time.Duration `yaml:"cache_ttl" default:"1h"`
	Blacklist       []string      `yaml:"blacklist"`
	// Holidays are exchange closures, YYYY-MM-DD.
	Holidays []string `yaml:"holidays"`
}

// Start parses StartDate as a UTC day.
func (h HistoryConfig) Start() time.Time {
	t, err := time.Parse("2006-01-02", h.StartDate)
	if err != nil {
		return time.Time{}
	}
	return t
}

// HolidayDates parses Holidays, skipping malformed entries.
func (h HistoryConfig) HolidayDates() []time.Time {
	out := make([]time.Time, 0, len(h.Holidays))
	for _, s := range h.Holidays {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			out = append(out, t)
		}
	}
	return out
}

var validate = validator.New()

// Load reads and parses a YAML configuration file. Missing fields take their
// default tags.
func Load(path string) (*Config, error) {
	return load(path, nil)
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parse(b, getenv)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	return parse(b, nil)
}

func parse(b []byte, getenv func(string) string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if getenv != nil {
		c.applyEnv(getenv)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	c.Server.Port = util.ParseIntDefault(getenv("HTTP_PORT"), c.Server.Port)
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
	}
	if v := getenv("PRICES_API_KEY"); v != "" {
		c.Prices.APIKey = v
	}
	if v := getenv("HISTORY_START_DATE"); v != "" {
		c.History.StartDate = v
	}
	if v := getenv("BLACKLIST"); v != "" {
		c.History.Blacklist = util.SplitList(v)
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Environment == "production" && c.Prices.APIKey == "" {
		return fmt.Errorf("prices.api_key is required in production")
	}
	return nil
}
