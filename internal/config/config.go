// Package config handles loading and validating netvault configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/darshan-rambhia/netvault/internal/alarms"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} placeholders in config values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ErrConfigFileNotFound is returned by Load when the specified config file does not exist.
var ErrConfigFileNotFound = errors.New("config file not found")

// MaxClaimBatch is the largest claim batch a worker may request.
const MaxClaimBatch = 25

// Config is the top-level netvault configuration.
type Config struct {
	Listen         string               `yaml:"listen"`
	LogLevel       string               `yaml:"log_level"`
	LogFormat      string               `yaml:"log_format"`
	WorkerPoolSize int                  `yaml:"worker_pool_size"`
	Database       DatabaseConfig       `yaml:"database"`
	Intervals      IntervalsConfig      `yaml:"intervals"`
	Queue          QueueConfig          `yaml:"queue"`
	SNMP           SNMPConfig           `yaml:"snmp"`
	Thresholds     ThresholdsConfig     `yaml:"thresholds"`
	Credentials    CredentialsConfig    `yaml:"credentials"`
	Auth           AuthConfig           `yaml:"auth"`
	Notifications  []NotificationConfig `yaml:"notifications"`
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`
}

// IntervalsConfig holds the periods of the background loops.
type IntervalsConfig struct {
	Metrics   Duration `yaml:"metrics"`
	AlarmScan Duration `yaml:"alarm_scan"`
	Reaper    Duration `yaml:"reaper"`
}

// QueueConfig tunes the backup work queue.
type QueueConfig struct {
	ClaimBatchSize int      `yaml:"claim_batch_size"`
	StaleThreshold Duration `yaml:"stale_threshold"`
}

// SNMPConfig tunes polling sessions.
type SNMPConfig struct {
	Timeout Duration `yaml:"timeout"`
	Retries int      `yaml:"retries"`
	Port    int      `yaml:"port"`
}

// ThresholdsConfig holds the resource alarm thresholds per signal.
type ThresholdsConfig struct {
	CPU    alarms.Thresholds `yaml:"cpu"`
	Memory alarms.Thresholds `yaml:"memory"`
}

// CredentialsConfig holds the key used to decrypt device secrets.
type CredentialsConfig struct {
	MasterKey string `yaml:"master_key"`
}

// AuthConfig configures user and worker authentication.
type AuthConfig struct {
	JWTSecret         string   `yaml:"jwt_secret"`
	JWTIssuer         string   `yaml:"jwt_issuer"`
	WorkerTokenHashes []string `yaml:"worker_token_hashes"`
}

// NotificationConfig describes a notification target.
type NotificationConfig struct {
	Type    string            `yaml:"type"` // "ntfy" or "webhook"
	URL     string            `yaml:"url"`
	Topic   string            `yaml:"topic,omitempty"`   // ntfy only
	Method  string            `yaml:"method,omitempty"`  // webhook only
	Headers map[string]string `yaml:"headers,omitempty"` // webhook only
}

// Duration wraps time.Duration with YAML string parsing support.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Load reads configuration from a YAML file. If no path is given, defaults
// and environment variables are used. If a path is given and the file does
// not exist, ErrConfigFileNotFound is returned.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(expandEnvVars(data), cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are skipped and variables that are already set
// are never overwritten. It returns the files that were loaded.
func LoadDotEnv(paths ...string) ([]string, error) {
	var loaded []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return loaded, fmt.Errorf("loading %s: %w", p, err)
		}
		loaded = append(loaded, p)
	}
	return loaded, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be one of: sqlite, postgres")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("log_format must be one of: text, json")
	}
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("worker_pool_size must be >= 1")
	}

	if c.Intervals.Metrics.Duration <= 0 {
		return fmt.Errorf("intervals.metrics must be > 0")
	}
	if c.Intervals.AlarmScan.Duration <= 0 {
		return fmt.Errorf("intervals.alarm_scan must be > 0")
	}
	if c.Intervals.Reaper.Duration <= 0 {
		return fmt.Errorf("intervals.reaper must be > 0")
	}

	if c.Queue.ClaimBatchSize < 1 || c.Queue.ClaimBatchSize > MaxClaimBatch {
		return fmt.Errorf("queue.claim_batch_size must be between 1 and %d", MaxClaimBatch)
	}
	if c.Queue.StaleThreshold.Duration <= 0 {
		return fmt.Errorf("queue.stale_threshold must be > 0")
	}

	if c.SNMP.Timeout.Duration <= 0 {
		return fmt.Errorf("snmp.timeout must be > 0")
	}
	if c.SNMP.Retries < 0 {
		return fmt.Errorf("snmp.retries must be >= 0")
	}
	if c.SNMP.Port < 1 || c.SNMP.Port > 65535 {
		return fmt.Errorf("snmp.port must be between 1 and 65535")
	}

	if err := c.Thresholds.CPU.Validate(); err != nil {
		return fmt.Errorf("thresholds.cpu: %w", err)
	}
	if err := c.Thresholds.Memory.Validate(); err != nil {
		return fmt.Errorf("thresholds.memory: %w", err)
	}

	if c.Credentials.MasterKey == "" {
		return fmt.Errorf("credentials.master_key is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}
	if len(c.Auth.WorkerTokenHashes) == 0 {
		return fmt.Errorf("auth.worker_token_hashes: at least one hash is required")
	}
	for i, h := range c.Auth.WorkerTokenHashes {
		if !strings.HasPrefix(h, "$2") {
			return fmt.Errorf("auth.worker_token_hashes[%d]: not a bcrypt hash", i)
		}
	}

	for i, n := range c.Notifications {
		switch n.Type {
		case "ntfy":
			if n.URL == "" {
				return fmt.Errorf("notifications[%d]: url is required for ntfy", i)
			}
			if n.Topic == "" {
				return fmt.Errorf("notifications[%d]: topic is required for ntfy", i)
			}
		case "webhook":
			if n.URL == "" {
				return fmt.Errorf("notifications[%d]: url is required for webhook", i)
			}
		default:
			return fmt.Errorf("notifications[%d]: unknown type %q (expected ntfy or webhook)", i, n.Type)
		}
		if _, err := url.ParseRequestURI(n.URL); err != nil {
			return fmt.Errorf("notifications[%d]: invalid url: %w", i, err)
		}
	}

	return nil
}

func defaults() *Config {
	return &Config{
		Listen:         ":3800",
		LogLevel:       "info",
		LogFormat:      "text",
		WorkerPoolSize: 8,
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "/data/netvault.db",
		},
		Intervals: IntervalsConfig{
			Metrics:   Duration{5 * time.Minute},
			AlarmScan: Duration{30 * time.Second},
			Reaper:    Duration{60 * time.Second},
		},
		Queue: QueueConfig{
			ClaimBatchSize: MaxClaimBatch,
			StaleThreshold: Duration{600 * time.Second},
		},
		SNMP: SNMPConfig{
			Timeout: Duration{2 * time.Second},
			Retries: 1,
			Port:    161,
		},
		Thresholds: ThresholdsConfig{
			CPU:    alarms.DefaultThresholds(),
			Memory: alarms.DefaultThresholds(),
		},
	}
}

// expandEnvVars replaces ${VAR_NAME} placeholders in raw YAML with the
// corresponding environment variable values. Unset variables are replaced
// with an empty string, which will then fail validation with a clear error.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		key := string(match[2 : len(match)-1]) // strip ${ and }
		return []byte(os.Getenv(key))
	})
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NETVAULT_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("NETVAULT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("NETVAULT_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("NETVAULT_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("NETVAULT_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("NETVAULT_MASTER_KEY"); v != "" {
		cfg.Credentials.MasterKey = v
	}
	if v := os.Getenv("NETVAULT_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("NETVAULT_JWT_ISSUER"); v != "" {
		cfg.Auth.JWTIssuer = v
	}

	// Worker token hashes from env (only if no YAML hashes configured).
	if len(cfg.Auth.WorkerTokenHashes) == 0 {
		if v := os.Getenv("NETVAULT_WORKER_TOKEN_HASHES"); v != "" {
			for _, h := range strings.Split(v, ",") {
				if h = strings.TrimSpace(h); h != "" {
					cfg.Auth.WorkerTokenHashes = append(cfg.Auth.WorkerTokenHashes, h)
				}
			}
		}
	}

	// Single ntfy target from env vars (only if no YAML notifications configured).
	if len(cfg.Notifications) == 0 {
		if ntfyURL := os.Getenv("NETVAULT_NTFY_URL"); ntfyURL != "" {
			topic := os.Getenv("NETVAULT_NTFY_TOPIC")
			if topic == "" {
				topic = "netvault-alarms"
			}
			cfg.Notifications = append(cfg.Notifications, NotificationConfig{
				Type:  "ntfy",
				URL:   ntfyURL,
				Topic: topic,
			})
		}
	}

	if v := os.Getenv("NETVAULT_WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("NETVAULT_CLAIM_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.ClaimBatchSize = n
		}
	}
	if v := os.Getenv("NETVAULT_STALE_THRESHOLD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Queue.StaleThreshold = Duration{d}
		}
	}
}
