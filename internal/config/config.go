// Package config handles configuration loading for the triage pipeline.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete configuration shared by all pipeline stages.
// Each binary picks the sections it needs.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Storage    StorageConfig    `yaml:"storage"`
	Redis      RedisConfig      `yaml:"redis"`
	Ingress    IngressConfig    `yaml:"ingress"`
	API        APIConfig        `yaml:"api"`
	Engine     EngineConfig     `yaml:"engine"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Notify     NotifyConfig     `yaml:"notify"`
	Validation ValidationConfig `yaml:"validation"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// KafkaConfig holds broker settings and the topic names connecting stages.
type KafkaConfig struct {
	Brokers []string     `yaml:"brokers"`
	Topics  TopicsConfig `yaml:"topics"`

	// SecurityProtocol: PLAINTEXT, SASL_PLAINTEXT, SASL_SSL.
	SecurityProtocol string `yaml:"security_protocol"`
	SASLMechanism    string `yaml:"sasl_mechanism,omitempty"`
	SASLUsername     string `yaml:"sasl_username,omitempty"`
	SASLPassword     string `yaml:"sasl_password,omitempty"`
}

// TopicsConfig names the queues between pipeline stages.
type TopicsConfig struct {
	Raw          string `yaml:"raw"`          // ingress -> parser
	Events       string `yaml:"events"`       // parser -> engine
	Remediation  string `yaml:"remediation"`  // engine -> remediator
	Notification string `yaml:"notification"` // engine -> notifier
}

// StorageConfig holds durable store settings.
type StorageConfig struct {
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Hosts           []string      `yaml:"hosts"`
	Database        string        `yaml:"database"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	TLSEnabled      bool          `yaml:"tls_enabled"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// RedisConfig holds settings for the blocklist and threat-intel sets.
type RedisConfig struct {
	Addr            string        `yaml:"addr"`
	Password        string        `yaml:"password"`
	DB              int           `yaml:"db"`
	BlocklistKey    string        `yaml:"blocklist_key"`
	MaliciousSetKey string        `yaml:"malicious_set_key"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	OpTimeout       time.Duration `yaml:"op_timeout"`
}

// IngressConfig holds HTTP intake settings.
type IngressConfig struct {
	HTTPPort       int             `yaml:"http_port"`
	ReadTimeout    time.Duration   `yaml:"read_timeout"`
	WriteTimeout   time.Duration   `yaml:"write_timeout"`
	MaxPayloadSize int             `yaml:"max_payload_size"`
	Auth           AuthConfig      `yaml:"auth"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// AuthConfig holds API key authentication settings.
type AuthConfig struct {
	Enabled      bool     `yaml:"enabled"`
	APIKeyHeader string   `yaml:"api_key_header"`
	APIKeys      []string `yaml:"api_keys"`
}

// RateLimitConfig holds per-IP rate limiting settings for the intake.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RequestsPerIP int           `yaml:"requests_per_ip"`
	WindowSize    time.Duration `yaml:"window_size"`
	CleanupPeriod time.Duration `yaml:"cleanup_period"`
	TrustProxy    bool          `yaml:"trust_proxy"`
}

// APIConfig holds read API settings.
type APIConfig struct {
	HTTPPort     int           `yaml:"http_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxPageSize  int           `yaml:"max_page_size"`
}

// EngineConfig holds risk engine settings. The scoring tiers and milestones
// are fixed policy; only the configured sets live here.
type EngineConfig struct {
	ConsumerGroup string `yaml:"consumer_group"`

	// CriticalActions are high-impact control-plane actions that earn a
	// flat score bonus. Empty means use the built-in set.
	CriticalActions []string `yaml:"critical_actions"`

	// MaliciousIPs statically seeds the deny-adjacent IP set; the Redis
	// set extends it at runtime.
	MaliciousIPs []string `yaml:"malicious_ips"`
}

// ArchiveConfig holds raw payload archival settings.
type ArchiveConfig struct {
	Enabled bool     `yaml:"enabled"`
	S3      S3Config `yaml:"s3"`
}

// S3Config holds S3 client settings for the archive.
type S3Config struct {
	Region          string        `yaml:"region"`
	Bucket          string        `yaml:"bucket"`
	Prefix          string        `yaml:"prefix"`
	Endpoint        string        `yaml:"endpoint,omitempty"`
	AccessKeyID     string        `yaml:"access_key_id,omitempty"`
	SecretAccessKey string        `yaml:"secret_access_key,omitempty"`
	UsePathStyle    bool          `yaml:"use_path_style"`
	Timeout         time.Duration `yaml:"timeout"`
}

// NotifyConfig holds notification delivery settings.
type NotifyConfig struct {
	ConsumerGroup string          `yaml:"consumer_group"`
	Channels      []ChannelConfig `yaml:"channels"`
}

// ChannelConfig describes one notification channel.
type ChannelConfig struct {
	Type     string            `yaml:"type"` // webhook, slack, log
	Name     string            `yaml:"name"`
	URL      string            `yaml:"url,omitempty"`
	Channel  string            `yaml:"channel,omitempty"`
	Username string            `yaml:"username,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
}

// ValidationConfig holds event validation settings.
type ValidationConfig struct {
	MaxEventAge time.Duration `yaml:"max_event_age"`
	MaxFuture   time.Duration `yaml:"max_future"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topics: TopicsConfig{
				Raw:          "soar.raw",
				Events:       "soar.events",
				Remediation:  "soar.remediation",
				Notification: "soar.notification",
			},
			SecurityProtocol: "PLAINTEXT",
		},
		Storage: StorageConfig{
			ClickHouse: ClickHouseConfig{
				Hosts:           []string{"localhost:9000"},
				Database:        "soar",
				Username:        "default",
				Password:        "",
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: time.Hour,
				DialTimeout:     10 * time.Second,
				QueryTimeout:    10 * time.Second,
			},
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			DB:              0,
			BlocklistKey:    "soar:blocklist",
			MaliciousSetKey: "soar:malicious_ips",
			RefreshInterval: time.Minute,
			DialTimeout:     5 * time.Second,
			OpTimeout:       3 * time.Second,
		},
		Ingress: IngressConfig{
			HTTPPort:       8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxPayloadSize: 1 << 20, // 1MB
			Auth: AuthConfig{
				Enabled:      false,
				APIKeyHeader: "X-API-Key",
			},
			RateLimit: RateLimitConfig{
				Enabled:       true,
				RequestsPerIP: 300,
				WindowSize:    time.Minute,
				CleanupPeriod: 5 * time.Minute,
				TrustProxy:    false,
			},
		},
		API: APIConfig{
			HTTPPort:     8081,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			MaxPageSize:  1000,
		},
		Engine: EngineConfig{
			ConsumerGroup: "soar-engine",
		},
		Archive: ArchiveConfig{
			Enabled: false,
			S3: S3Config{
				Region:  "eu-central-1",
				Bucket:  "soar-raw-events",
				Prefix:  "raw/",
				Timeout: 30 * time.Second,
			},
		},
		Notify: NotifyConfig{
			ConsumerGroup: "soar-notify",
			Channels: []ChannelConfig{
				{Type: "log", Name: "stdout"},
			},
		},
		Validation: ValidationConfig{
			MaxEventAge: 30 * 24 * time.Hour,
			MaxFuture:   5 * time.Minute,
		},
	}
}

// Load loads configuration from a file or returns defaults. The file path
// comes from SOAR_CONFIG_PATH, defaulting to configs/config.yaml; a missing
// file is not an error.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := os.Getenv("SOAR_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("SOAR_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitAndTrim(brokers, ",")
	}

	if host := os.Getenv("CLICKHOUSE_HOST"); host != "" {
		c.Storage.ClickHouse.Hosts = []string{host}
	}
	if db := os.Getenv("CLICKHOUSE_DATABASE"); db != "" {
		c.Storage.ClickHouse.Database = db
	}
	if user := os.Getenv("CLICKHOUSE_USER"); user != "" {
		c.Storage.ClickHouse.Username = user
	}
	if pass := os.Getenv("CLICKHOUSE_PASSWORD"); pass != "" {
		c.Storage.ClickHouse.Password = pass
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		c.Redis.Password = pass
	}

	if port := os.Getenv("SOAR_HTTP_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			c.Ingress.HTTPPort = n
		}
	}

	if apiKey := os.Getenv("SOAR_API_KEY"); apiKey != "" {
		c.Ingress.Auth.APIKeys = append(c.Ingress.Auth.APIKeys, apiKey)
		c.Ingress.Auth.Enabled = true
	}

	if bucket := os.Getenv("SOAR_ARCHIVE_BUCKET"); bucket != "" {
		c.Archive.S3.Bucket = bucket
		c.Archive.Enabled = true
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		c.Archive.S3.Region = region
	}
}

// splitAndTrim splits a string by separator and drops empty parts.
func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("at least one kafka broker is required")
	}

	for name, topic := range map[string]string{
		"raw":          c.Kafka.Topics.Raw,
		"events":       c.Kafka.Topics.Events,
		"remediation":  c.Kafka.Topics.Remediation,
		"notification": c.Kafka.Topics.Notification,
	} {
		if topic == "" {
			return fmt.Errorf("kafka topic %q must not be empty", name)
		}
	}

	if c.Ingress.HTTPPort <= 0 || c.Ingress.HTTPPort > 65535 {
		return fmt.Errorf("invalid ingress http_port: %d", c.Ingress.HTTPPort)
	}
	if c.API.HTTPPort <= 0 || c.API.HTTPPort > 65535 {
		return fmt.Errorf("invalid api http_port: %d", c.API.HTTPPort)
	}

	if len(c.Storage.ClickHouse.Hosts) == 0 {
		return fmt.Errorf("at least one clickhouse host is required")
	}

	if c.Ingress.Auth.Enabled && len(c.Ingress.Auth.APIKeys) == 0 {
		return fmt.Errorf("ingress auth enabled but no api keys configured")
	}

	for _, ch := range c.Notify.Channels {
		switch ch.Type {
		case "webhook", "slack":
			if ch.URL == "" {
				return fmt.Errorf("notify channel %q requires a url", ch.Name)
			}
		case "log":
		default:
			return fmt.Errorf("unknown notify channel type %q", ch.Type)
		}
	}

	return nil
}
