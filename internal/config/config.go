package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hed1ad/energyguard/internal/logger"
	"github.com/hed1ad/energyguard/pkg/detectors"
)

// AllAlgorithms selects every registered algorithm in one detect command.
const AllAlgorithms = "all"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ENERGYGUARD_"

// Config holds the application configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Detection DetectionConfig `yaml:"detection"`
	MQTT      MQTTConfig      `yaml:"mqtt,omitempty"`
	Logging   logger.Config   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics,omitempty"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DetectionConfig holds detection defaults.
type DetectionConfig struct {
	Algorithm     string  `yaml:"algorithm"`     // density, cluster, reconstruction or all
	Contamination float64 `yaml:"contamination"` // expected anomaly fraction, in (0, 0.5]
	Seed          int64   `yaml:"seed"`
}

// MQTTConfig holds the broker used to publish run summaries.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`    // host:port
	ClientID    string `yaml:"client_id"` // defaults to energyguard
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix"` // defaults to energyguard
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := detectors.DefaultConfig()
	return &Config{
		Database: DatabaseConfig{Path: "energyguard.db"},
		Detection: DetectionConfig{
			Algorithm:     string(detectors.Density),
			Contamination: cfg.Contamination,
			Seed:          cfg.RandomSeed,
		},
		MQTT: MQTTConfig{
			ClientID:    "energyguard",
			TopicPrefix: "energyguard",
		},
		Logging: logger.Config{
			Level:  logger.DefaultLevel,
			Format: logger.FormatText,
		},
	}
}

// Load reads the config file over the defaults. A missing file yields the
// defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// LoadDotEnv loads variables from the given .env files, or ./.env when none
// are given. Missing files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from ENERGYGUARD_* environment variables.
// Unparseable numeric values leave the field unchanged.
func (c *Config) ApplyEnv() {
	c.Database.Path = getEnvOrDefault("DB_PATH", c.Database.Path)

	c.Detection.Algorithm = getEnvOrDefault("ALGORITHM", c.Detection.Algorithm)
	c.Detection.Contamination = getEnvFloat("CONTAMINATION", c.Detection.Contamination)
	c.Detection.Seed = getEnvInt64("SEED", c.Detection.Seed)

	c.MQTT.Enabled = getEnvBool("MQTT_ENABLED", c.MQTT.Enabled)
	c.MQTT.Broker = getEnvOrDefault("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.ClientID = getEnvOrDefault("MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.Username = getEnvOrDefault("MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = getEnvOrDefault("MQTT_PASSWORD", c.MQTT.Password)
	c.MQTT.TopicPrefix = getEnvOrDefault("MQTT_TOPIC_PREFIX", c.MQTT.TopicPrefix)

	c.Logging.Level = getEnvOrDefault("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnvOrDefault("LOG_FORMAT", c.Logging.Format)
	c.Logging.File = getEnvOrDefault("LOG_FILE", c.Logging.File)

	c.Metrics.Textfile = getEnvOrDefault("METRICS_TEXTFILE", c.Metrics.Textfile)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	if !strings.EqualFold(c.Detection.Algorithm, AllAlgorithms) {
		if _, err := detectors.ParseAlgorithm(c.Detection.Algorithm); err != nil {
			return fmt.Errorf("detection algorithm: %w", err)
		}
	}
	if err := detectors.ValidateContamination(c.Detection.Contamination); err != nil {
		return fmt.Errorf("detection contamination: %w", err)
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return errors.New("MQTT broker address is required when enabled")
	}

	if !logger.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", logger.FormatText, logger.FormatJSON:
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(EnvPrefix+key), 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getEnvInt64(key string, defaultValue int64) int64 {
	n, err := strconv.ParseInt(os.Getenv(EnvPrefix+key), 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(os.Getenv(EnvPrefix + key))
	if err != nil {
		return defaultValue
	}
	return b
}
