package internal

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "APP"

type Config struct {
	Env           string              `mapstructure:"env" envconfig:"ENV" default:"development" validate:"required,oneof=development staging production test"`
	Server        ServerConfig        `mapstructure:"http_server" envconfig:"HTTP"`
	Database      DatabaseConfig      `mapstructure:"database" envconfig:"DB"`
	Security      SecurityConfig      `mapstructure:"security" envconfig:"SECURITY"`
	Observability ObservabilityConfig `mapstructure:"observability" envconfig:"OBSERVABILITY"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" envconfig:"PORT" default:"8080" validate:"required,min=1,max=65535"`
	BaseURL           string        `mapstructure:"base_url" envconfig:"BASE_URL"`
	AllowedHosts      string        `mapstructure:"allowed_hosts" envconfig:"ALLOWED_HOSTS"`
	TrustedProxies    string        `mapstructure:"trusted_proxies" envconfig:"TRUSTED_PROXIES"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

type DatabaseConfig struct {
	Source          string        `mapstructure:"source" envconfig:"SOURCE" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" envconfig:"MAX_OPEN_CONNS" default:"20" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" envconfig:"MAX_IDLE_CONNS" default:"5" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" envconfig:"CONN_MAX_LIFETIME" default:"30m" validate:"min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" envconfig:"CONN_MAX_IDLE_TIME" default:"5m" validate:"min=1m"`
}

type SecurityConfig struct {
	SessionTTL  time.Duration `mapstructure:"session_ttl" envconfig:"SESSION_TTL" default:"24h" validate:"min=1m"`
	BCryptCost  int           `mapstructure:"bcrypt_cost" envconfig:"BCRYPT_COST" default:"10" validate:"min=4,max=15"`
	DefaultRole string        `mapstructure:"default_role" envconfig:"DEFAULT_ROLE" default:"user" validate:"required"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics" envconfig:"METRICS"`
	Logging LoggingConfig `mapstructure:"logging" envconfig:"LOGGING"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" envconfig:"ENABLED" default:"true"`
	Path    string `mapstructure:"path" envconfig:"PATH" default:"/metrics" validate:"required_if=Enabled true"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" envconfig:"LEVEL" default:"info" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" envconfig:"FORMAT" default:"json" validate:"required,oneof=json text"`
}

// LoadConfigFromEnv reads APP_* variables, e.g. APP_DB_SOURCE or APP_SECURITY_SESSION_TTL.
func LoadConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills the zero values a partial config file leaves behind.
func (c *Config) ApplyDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Security.SessionTTL == 0 {
		c.Security.SessionTTL = 24 * time.Hour
	}
	if c.Security.BCryptCost == 0 {
		c.Security.BCryptCost = 10
	}
	if c.Security.DefaultRole == "" {
		c.Security.DefaultRole = "user"
	}
	if c.Observability.Metrics.Path == "" {
		c.Observability.Metrics.Path = "/metrics"
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "text"
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := validator.New().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs = append(errs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	for _, host := range c.AllowedHostList() {
		if _, err := url.Parse("//" + host); err != nil {
			return fmt.Errorf("invalid allowed host %s: %w", host, err)
		}
	}
	for _, proxy := range c.TrustedProxyList() {
		if _, err := netip.ParsePrefix(proxy); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(proxy); err != nil {
			return fmt.Errorf("invalid trusted proxy %s", proxy)
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *ServerConfig) AllowedHostList() []string {
	return splitList(c.AllowedHosts)
}

// TrustedProxyList returns the peers whose forwarded client address headers are honored.
func (c *ServerConfig) TrustedProxyList() []string {
	return splitList(c.TrustedProxies)
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}
