package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"timekeep/pkg/platform/resilience"
)

// Config is the full service configuration. Environment variables seed it and
// an optional YAML file (TIMEKEEP_CONFIG) overlays the tunables operators
// adjust per deployment.
type Config struct {
	Server   Server                            `yaml:"server"`
	Postgres PostgresConfig                    `yaml:"postgres"`
	Redis    RedisConfig                       `yaml:"redis"`
	Kafka    KafkaConfig                       `yaml:"kafka"`
	Ingest   IngestConfig                      `yaml:"ingest"`
	Queues   QueuesConfig                      `yaml:"queues"`
	Rules    RulesConfig                       `yaml:"rules"`
	Notify   NotifyConfig                      `yaml:"notify"`
	Devices  DevicesConfig                     `yaml:"devices"`
	Registry UpstreamConfig                    `yaml:"registry"`
	Shifts   UpstreamConfig                    `yaml:"shifts"`
	Stacks   map[string]resilience.StackConfig `yaml:"resilience"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr"`
	JWTSigningKey   string        `yaml:"-"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"-"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL          string        `yaml:"-"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"`
	TopicPrefix       string   `yaml:"topic_prefix"`
	Partitions        int32    `yaml:"partitions"`
	ReplicationFactor int16    `yaml:"replication_factor"`
}

// IngestConfig tunes dedup and resolution.
type IngestConfig struct {
	DedupTolerance   time.Duration `yaml:"dedup_tolerance"`
	FingerprintTTL   time.Duration `yaml:"fingerprint_ttl"`
	QualityThreshold int           `yaml:"quality_threshold"`
	LockShards       int           `yaml:"lock_shards"`
}

type QueueConfig struct {
	Capacity      int           `yaml:"capacity"`
	Workers       int           `yaml:"workers"`
	HandleTimeout time.Duration `yaml:"handle_timeout"`
	DrainTimeout  time.Duration `yaml:"drain_timeout"`
}

type QueuesConfig struct {
	Security QueueConfig `yaml:"security"`
	Anomaly  QueueConfig `yaml:"anomaly"`
	Notify   QueueConfig `yaml:"notify"`
}

// UpstreamConfig locates an external lookup service. With no URL the static
// file (YAML) is used; with neither the lookup reports every key as unknown.
type UpstreamConfig struct {
	URL        string        `yaml:"url"`
	Token      string        `yaml:"-"`
	StaticFile string        `yaml:"static_file"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

// RulesConfig holds anomaly rule thresholds.
type RulesConfig struct {
	FailedLoginThreshold  int           `yaml:"failed_login_threshold"`
	FailedLoginWindow     time.Duration `yaml:"failed_login_window"`
	MassExportRows        int           `yaml:"mass_export_rows"`
	ImpossibleTravelKmh   float64       `yaml:"impossible_travel_kmh"`
	MaxConcurrentSessions int           `yaml:"max_concurrent_sessions"`
	BusinessHoursStart    int           `yaml:"business_hours_start"`
	BusinessHoursEnd      int           `yaml:"business_hours_end"`
	BusinessHoursZone     string        `yaml:"business_hours_zone"`
	SalaryChangePercent   float64       `yaml:"salary_change_percent"`
	RapidActionThreshold  int           `yaml:"rapid_action_threshold"`
	RapidActionWindow     time.Duration `yaml:"rapid_action_window"`
	SessionTTL            time.Duration `yaml:"session_ttl"`
}

type NotifyConfig struct {
	SubscriberBuffer int      `yaml:"subscriber_buffer"`
	OriginPatterns   []string `yaml:"origin_patterns"`
}

type DevicesConfig struct {
	BridgeURL    string         `yaml:"bridge_url"`
	PollInterval time.Duration  `yaml:"poll_interval"`
	ClearAfter   bool           `yaml:"clear_after_fetch"`
	Devices      []DeviceConfig `yaml:"devices"`
}

// DeviceConfig names one polled terminal and the tenant it belongs to.
type DeviceConfig struct {
	Serial   string `yaml:"serial"`
	TenantID string `yaml:"tenant_id"`
}

// Default returns a development-ready configuration.
func Default() Config {
	stack := resilience.DefaultStackConfig()
	return Config{
		Server: Server{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
			LogLevel:        "info",
		},
		Postgres: PostgresConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     20,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
		Kafka: KafkaConfig{
			TopicPrefix:       "timekeep",
			Partitions:        3,
			ReplicationFactor: 1,
		},
		Ingest: IngestConfig{
			DedupTolerance:   60 * time.Second,
			FingerprintTTL:   24 * time.Hour,
			QualityThreshold: 40,
			LockShards:       64,
		},
		Queues: QueuesConfig{
			Security: QueueConfig{Capacity: 1024, Workers: 2, HandleTimeout: 5 * time.Second, DrainTimeout: 10 * time.Second},
			Anomaly:  QueueConfig{Capacity: 4096, Workers: 4, HandleTimeout: 5 * time.Second, DrainTimeout: 10 * time.Second},
			Notify:   QueueConfig{Capacity: 4096, Workers: 2, HandleTimeout: 5 * time.Second, DrainTimeout: 5 * time.Second},
		},
		Rules: RulesConfig{
			FailedLoginThreshold:  5,
			FailedLoginWindow:     15 * time.Minute,
			MassExportRows:        10000,
			ImpossibleTravelKmh:   900,
			MaxConcurrentSessions: 3,
			BusinessHoursStart:    7,
			BusinessHoursEnd:      20,
			BusinessHoursZone:     "UTC",
			SalaryChangePercent:   30,
			RapidActionThreshold:  100,
			RapidActionWindow:     time.Minute,
			SessionTTL:            12 * time.Hour,
		},
		Notify:   NotifyConfig{SubscriberBuffer: 64},
		Devices:  DevicesConfig{PollInterval: 30 * time.Second},
		Registry: UpstreamConfig{CacheTTL: 5 * time.Minute},
		Shifts:   UpstreamConfig{CacheTTL: 5 * time.Minute},
		Stacks: map[string]resilience.StackConfig{
			resilience.DependencyRegistry: stack,
			resilience.DependencyShift:    stack,
			resilience.DependencyCache:    stack,
			resilience.DependencyNotify:   stack,
			resilience.DependencyAudit:    stack,
			resilience.DependencyDevice:   stack,
		},
	}
}

// FromEnv builds the config from defaults, then the YAML overlay named by
// TIMEKEEP_CONFIG, then environment variables.
func FromEnv() (Config, error) {
	return Load(os.Getenv("TIMEKEEP_CONFIG"))
}

// Load is FromEnv with an explicit overlay path. An empty path skips the
// overlay.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Config{}, err
		}
	}

	if addr := os.Getenv("TIMEKEEP_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Server.LogLevel = level
	}
	cfg.Server.JWTSigningKey = os.Getenv("JWT_SIGNING_KEY")
	if cfg.Server.JWTSigningKey == "" {
		// Use a default for development - should be overridden in production
		cfg.Server.JWTSigningKey = "dev-secret-key-change-in-production"
	}
	cfg.Postgres.DSN = os.Getenv("DATABASE_URL")
	cfg.Redis.URL = os.Getenv("REDIS_URL")
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if v := os.Getenv("REGISTRY_URL"); v != "" {
		cfg.Registry.URL = v
	}
	cfg.Registry.Token = os.Getenv("REGISTRY_TOKEN")
	if v := os.Getenv("SHIFT_URL"); v != "" {
		cfg.Shifts.URL = v
	}
	cfg.Shifts.Token = os.Getenv("SHIFT_TOKEN")
	if v := os.Getenv("DEVICE_BRIDGE_URL"); v != "" {
		cfg.Devices.BridgeURL = v
	}

	if v := os.Getenv("DEDUP_TOLERANCE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse DEDUP_TOLERANCE: %w", err)
		}
		cfg.Ingest.DedupTolerance = d
	}
	if v := os.Getenv("QUALITY_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse QUALITY_THRESHOLD: %w", err)
		}
		cfg.Ingest.QualityThreshold = n
	}

	return cfg, cfg.Validate()
}

// LoadFile overlays YAML onto cfg. Keys absent from the file keep their value.
func (c *Config) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return c.Overlay(raw)
}

// Overlay decodes YAML onto cfg.
func (c *Config) Overlay(raw []byte) error {
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	// A resilience stanza replaces the whole stack entry; unset fields fall
	// back to the defaults rather than zero.
	def := resilience.DefaultStackConfig()
	for name, stack := range c.Stacks {
		if stack.Timeout == 0 {
			stack.Timeout = def.Timeout
		}
		if stack.Retry.MaxAttempts == 0 {
			stack.Retry = def.Retry
		}
		if stack.Breaker.MinThroughput == 0 && stack.Breaker.BreakDuration == 0 {
			stack.Breaker = def.Breaker
		}
		c.Stacks[name] = stack
	}
	return nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Ingest.DedupTolerance <= 0 {
		return fmt.Errorf("dedup tolerance must be positive, got %s", c.Ingest.DedupTolerance)
	}
	if c.Ingest.QualityThreshold < 0 || c.Ingest.QualityThreshold > 100 {
		return fmt.Errorf("quality threshold must be within 0-100, got %d", c.Ingest.QualityThreshold)
	}
	for name, q := range map[string]QueueConfig{"security": c.Queues.Security, "anomaly": c.Queues.Anomaly, "notify": c.Queues.Notify} {
		if q.Capacity <= 0 || q.Workers <= 0 {
			return fmt.Errorf("queue %s needs positive capacity and workers", name)
		}
	}
	if c.Rules.BusinessHoursStart < 0 || c.Rules.BusinessHoursEnd > 24 || c.Rules.BusinessHoursStart >= c.Rules.BusinessHoursEnd {
		return fmt.Errorf("business hours must satisfy 0 <= start < end <= 24")
	}
	if _, err := time.LoadLocation(c.Rules.BusinessHoursZone); err != nil {
		return fmt.Errorf("business hours zone: %w", err)
	}
	for _, d := range c.Devices.Devices {
		if d.Serial == "" || d.TenantID == "" {
			return fmt.Errorf("device entries need serial and tenant_id")
		}
	}
	if len(c.Devices.Devices) > 0 && c.Devices.BridgeURL == "" {
		return fmt.Errorf("devices.bridge_url is required when devices are polled")
	}
	return nil
}
