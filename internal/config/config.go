package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds runtime settings for the queue API and the worker dispatcher.
type Config struct {
	HTTPAddr            string   `yaml:"http_addr" validate:"required"`
	RedisURL            string   `yaml:"redis_url" validate:"required"`
	RedisDialTimeoutSec int      `yaml:"redis_dial_timeout_sec" validate:"gte=1"`
	Namespace           string   `yaml:"namespace" validate:"required,max=200,excludesall=*?[]"`
	CounterKey          string   `yaml:"counter_key" validate:"required"`
	RetentionSec        int      `yaml:"retention_sec" validate:"gte=-1,ne=0"`
	MaxPayloadBytes     int      `yaml:"max_payload_bytes" validate:"gte=1"`
	MaxRetries          int      `yaml:"max_retries" validate:"gte=1"`
	ScanBatch           int      `yaml:"scan_batch" validate:"gte=1"`
	ScanBatchAll        int      `yaml:"scan_batch_all" validate:"gte=1"`
	ClaimTTLSec         int      `yaml:"claim_ttl_sec" validate:"gte=0"`
	APIToken            string   `yaml:"api_token"`
	CORSOrigins         []string `yaml:"cors_origins"`
	LogLevel            string   `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat           string   `yaml:"log_format" validate:"oneof=json text"`

	KafkaBrokers string `yaml:"kafka_brokers"`
	KafkaTopic   string `yaml:"kafka_topic"`
	PostgresDSN  string `yaml:"postgres_dsn"`

	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Worker      WorkerConfig      `yaml:"worker"`
}

// ObjectStoreConfig configures the archive of dropped envelopes.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket" validate:"required_with=Endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
	// Prefix is prepended to every archived object key.
	Prefix string `yaml:"prefix"`
}

// WorkerConfig configures cmd/worker.
type WorkerConfig struct {
	Operation       string   `yaml:"operation"`
	URLs            []string `yaml:"urls" validate:"dive,url"`
	Token           string   `yaml:"token"`
	PollIntervalSec int      `yaml:"poll_interval_sec" validate:"gte=1"`
	Concurrency     int      `yaml:"concurrency" validate:"gte=1"`
	TimeoutSec      int      `yaml:"timeout_sec" validate:"gte=1"`
	Claim           bool     `yaml:"claim"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		HTTPAddr:            ":8080",
		RedisURL:            "redis://127.0.0.1:6379/0",
		RedisDialTimeoutSec: 5,
		Namespace:           "UsagiMQ",
		CounterKey:          "counterUsagiMQ",
		RetentionSec:        int((14 * 24 * time.Hour).Seconds()),
		MaxPayloadBytes:     20 << 20,
		MaxRetries:          20,
		ScanBatch:           1000,
		ScanBatchAll:        10000,
		ClaimTTLSec:         60,
		LogLevel:            "info",
		LogFormat:           "json",
		KafkaTopic:          "envq.events",
		ObjectStore: ObjectStoreConfig{
			Region: "us-east-1",
			Prefix: "dropped",
		},
		Worker: WorkerConfig{
			PollIntervalSec: 5,
			Concurrency:     4,
			TimeoutSec:      30,
		},
	}
}

// FromEnv loads configuration: built-in defaults, then the YAML file named by
// ENVQ_CONFIG_FILE if set, then environment overrides. The result is
// validated.
func FromEnv() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("ENVQ_CONFIG_FILE"); path != "" {
		var err error
		cfg, err = LoadFile(path, cfg)
		if err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPAddr = getenv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.RedisURL = getenv("REDIS_URL", cfg.RedisURL)
	cfg.RedisDialTimeoutSec = getenvInt("REDIS_DIAL_TIMEOUT_SEC", cfg.RedisDialTimeoutSec)
	cfg.Namespace = getenv("ENVQ_NAMESPACE", cfg.Namespace)
	cfg.CounterKey = getenv("ENVQ_COUNTER_KEY", cfg.CounterKey)
	cfg.RetentionSec = getenvInt("ENVQ_RETENTION_SEC", cfg.RetentionSec)
	cfg.MaxPayloadBytes = getenvInt("ENVQ_MAX_PAYLOAD_BYTES", cfg.MaxPayloadBytes)
	cfg.MaxRetries = getenvInt("ENVQ_MAX_RETRIES", cfg.MaxRetries)
	cfg.ScanBatch = getenvInt("ENVQ_SCAN_BATCH", cfg.ScanBatch)
	cfg.ScanBatchAll = getenvInt("ENVQ_SCAN_BATCH_ALL", cfg.ScanBatchAll)
	cfg.ClaimTTLSec = getenvInt("ENVQ_CLAIM_TTL_SEC", cfg.ClaimTTLSec)
	cfg.APIToken = getenv("API_TOKEN", cfg.APIToken)
	cfg.CORSOrigins = getenvList("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.LogLevel = strings.ToLower(getenv("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(getenv("LOG_FORMAT", cfg.LogFormat))
	cfg.KafkaBrokers = getenv("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = getenv("KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.PostgresDSN = getenv("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.ObjectStore.Endpoint = getenv("OBJECT_STORE_ENDPOINT", cfg.ObjectStore.Endpoint)
	cfg.ObjectStore.Bucket = getenv("OBJECT_STORE_BUCKET", cfg.ObjectStore.Bucket)
	cfg.ObjectStore.AccessKey = getenv("OBJECT_STORE_ACCESS_KEY", cfg.ObjectStore.AccessKey)
	cfg.ObjectStore.SecretKey = getenv("OBJECT_STORE_SECRET_KEY", cfg.ObjectStore.SecretKey)
	cfg.ObjectStore.UseSSL = getenvBool("OBJECT_STORE_USE_SSL", cfg.ObjectStore.UseSSL)
	cfg.ObjectStore.Region = getenv("OBJECT_STORE_REGION", cfg.ObjectStore.Region)
	cfg.ObjectStore.Prefix = getenv("OBJECT_STORE_PREFIX", cfg.ObjectStore.Prefix)
	cfg.Worker.Operation = getenv("WORKER_OPERATION", cfg.Worker.Operation)
	cfg.Worker.URLs = getenvList("WORKER_URLS", cfg.Worker.URLs)
	cfg.Worker.Token = getenv("WORKER_TOKEN", cfg.Worker.Token)
	cfg.Worker.PollIntervalSec = getenvInt("WORKER_POLL_INTERVAL_SEC", cfg.Worker.PollIntervalSec)
	cfg.Worker.Concurrency = getenvInt("WORKER_CONCURRENCY", cfg.Worker.Concurrency)
	cfg.Worker.TimeoutSec = getenvInt("WORKER_TIMEOUT_SEC", cfg.Worker.TimeoutSec)
	cfg.Worker.Claim = getenvBool("WORKER_CLAIM", cfg.Worker.Claim)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints. With claiming enabled the claim TTL has
// to outlast one worker call, or a slow delivery could lose its claim.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Worker.Claim && c.ClaimTTLSec <= c.Worker.TimeoutSec {
		return fmt.Errorf("invalid config: claim_ttl_sec (%d) must exceed worker.timeout_sec (%d)", c.ClaimTTLSec, c.Worker.TimeoutSec)
	}
	return nil
}

// Retention converts RetentionSec; -1 becomes a negative duration, which the
// queue treats as unlimited.
func (c Config) Retention() time.Duration {
	if c.RetentionSec < 0 {
		return -1
	}
	return time.Duration(c.RetentionSec) * time.Second
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getenvInt accepts any integer, including -1 for ENVQ_RETENTION_SEC.
func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "y":
			return true
		case "0", "false", "no", "n":
			return false
		}
	}
	return def
}

func getenvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
