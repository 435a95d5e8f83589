// Initializing common application configuration
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const envPrefix = "SHORTLINK"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	App        AppConfig        `mapstructure:"app"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Clicks     ClicksConfig     `mapstructure:"clicks"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	Timeout        time.Duration `mapstructure:"timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Mode           string        `mapstructure:"mode"`
	LogLevel       string        `mapstructure:"log_level"`
	TrustedProxies []string      `mapstructure:"trusted_proxies"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	LinkTTL      time.Duration `mapstructure:"link_ttl"`
	IPTTL        time.Duration `mapstructure:"ip_ttl"`
}

type AppConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	ShortCodeLength int           `mapstructure:"short_code_length"`
	Timezone        string        `mapstructure:"timezone"`
	MaxLinkLifetime time.Duration `mapstructure:"max_link_lifetime"`
}

// Location resolves the timezone used for daily validity windows.
func (c AppConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

type EnrichmentConfig struct {
	Provider  string        `mapstructure:"provider"` // "proxycheck" or "geoip"
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	GeoIPPath string        `mapstructure:"geoip_path"`
}

type AuthConfig struct {
	APIKeyTTL  time.Duration `mapstructure:"api_key_ttl"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
}

type ClicksConfig struct {
	BufferSize   int           `mapstructure:"buffer_size"`
	Workers      int           `mapstructure:"workers"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// LoadConfig reads ./config/config.yaml. A missing file is not an error:
// defaults and SHORTLINK_* environment variables still apply.
func LoadConfig() (*viper.Viper, error) {
	return loadConfig("./config")
}

func loadConfig(paths ...string) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("failed to load .env file")
	}

	viperInstance := viper.New()
	setDefaults(viperInstance)

	for _, p := range paths {
		viperInstance.AddConfigPath(p)
	}
	viperInstance.SetConfigName("config")
	viperInstance.SetConfigType("yaml")

	viperInstance.SetEnvPrefix(envPrefix)
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperInstance.AutomaticEnv()

	if err := viperInstance.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		logrus.Warn("config file not found, using defaults and environment")
	}
	return viperInstance, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {
	var c Config

	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if _, err := c.App.Location(); err != nil {
		return fmt.Errorf("app.timezone: %w", err)
	}
	if c.App.ShortCodeLength < 3 || c.App.ShortCodeLength > 16 {
		return fmt.Errorf("app.short_code_length must be within [3, 16], got %d", c.App.ShortCodeLength)
	}
	switch c.Enrichment.Provider {
	case "proxycheck":
	case "geoip":
		if c.Enrichment.GeoIPPath == "" {
			return errors.New("enrichment.geoip_path is required for the geoip provider")
		}
	default:
		return fmt.Errorf("unknown enrichment.provider %q", c.Enrichment.Provider)
	}
	if c.Enrichment.Timeout <= 0 {
		return fmt.Errorf("enrichment.timeout must be positive, got %s", c.Enrichment.Timeout)
	}
	if c.Clicks.WriteTimeout <= 0 {
		return fmt.Errorf("clicks.write_timeout must be positive, got %s", c.Clicks.WriteTimeout)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.request_timeout", 15*time.Second)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "shortlink")
	v.SetDefault("database.password", "shortlink")
	v.SetDefault("database.dbname", "shortlink")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.link_ttl", 10*time.Minute)
	v.SetDefault("redis.ip_ttl", 24*time.Hour)

	v.SetDefault("app.base_url", "http://localhost:8080")
	v.SetDefault("app.short_code_length", 8)
	v.SetDefault("app.timezone", "UTC")
	v.SetDefault("app.max_link_lifetime", time.Duration(0))

	v.SetDefault("enrichment.provider", "proxycheck")
	v.SetDefault("enrichment.base_url", "https://proxycheck.io/v3")
	v.SetDefault("enrichment.timeout", 3*time.Second)

	v.SetDefault("auth.api_key_ttl", 30*24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("clicks.buffer_size", 1000)
	v.SetDefault("clicks.workers", 4)
	v.SetDefault("clicks.write_timeout", 5*time.Second)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "shortlink-clicks")
}
