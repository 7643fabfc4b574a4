package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const defaultPath = "./config/config.yaml"

type HTTP struct {
	Addr           string   `yaml:"addr" env:"ADDR"`
	AllowedOrigins []string `yaml:"allowedOrigins" env:"ALLOWED_ORIGINS"`
}

type GRPC struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

type Logging struct {
	Env       string `yaml:"env" env:"ENV"`              // dev|stage|prod
	Service   string `yaml:"service" env:"SERVICE"`      // space-service
	Version   string `yaml:"version" env:"VERSION"`      // v0.1.0
	Backend   string `yaml:"backend" env:"BACKEND"`      // std|zap
	Level     string `yaml:"level" env:"LEVEL"`          // debug|info|warn|error
	AddSource bool   `yaml:"addSource" env:"ADD_SOURCE"` // false|true
	Debug     bool   `yaml:"debug" env:"DEBUG"`          // false|true
}

type Postgres struct {
	DSN             string        `yaml:"dsn" env:"DSN"`
	MaxConns        int32         `yaml:"maxConns" env:"MAX_CONNS"`
	MinConns        int32         `yaml:"minConns" env:"MIN_CONNS"`
	MaxConnLifetime time.Duration `yaml:"maxConnLifetime" env:"MAX_CONN_LIFETIME"`
	MaxConnIdleTime time.Duration `yaml:"maxConnIdleTime" env:"MAX_CONN_IDLE_TIME"`
	Migrate         bool          `yaml:"migrate" env:"MIGRATE"`
}

type SQLite struct {
	Path string `yaml:"path" env:"PATH"`
}

type Storage struct {
	Driver   string   `yaml:"driver" env:"DRIVER"` // memory|postgres|sqlite
	Postgres Postgres `yaml:"postgres" envPrefix:"POSTGRES_"`
	SQLite   SQLite   `yaml:"sqlite" envPrefix:"SQLITE_"`
}

type Auth struct {
	Secret    string        `yaml:"secret" env:"SECRET"`
	Issuer    string        `yaml:"issuer" env:"ISSUER"`
	Audience  string        `yaml:"audience" env:"AUDIENCE"`
	TTL       time.Duration `yaml:"ttl" env:"TTL"`
	ClockSkew time.Duration `yaml:"clockSkew" env:"CLOCK_SKEW"`
}

type Agent struct {
	BackendURL     string        `yaml:"backendURL" env:"BACKEND_URL"`
	HealthAddr     string        `yaml:"healthAddr" env:"HEALTH_ADDR"` // grpc health of the backend, optional
	MediaURL       string        `yaml:"mediaURL" env:"MEDIA_URL"`
	Token          string        `yaml:"token" env:"TOKEN"`
	SpaceID        string        `yaml:"spaceID" env:"SPACE_ID"`
	UserID         string        `yaml:"userID" env:"USER_ID"`
	DisplayName    string        `yaml:"displayName" env:"DISPLAY_NAME"`
	SyncInterval   time.Duration `yaml:"syncInterval" env:"SYNC_INTERVAL"`
	RequestTimeout time.Duration `yaml:"requestTimeout" env:"REQUEST_TIMEOUT"`
	Cameras        []string      `yaml:"cameras" env:"CAMERAS"`
	ICEServers     []string      `yaml:"iceServers" env:"ICE_SERVERS"`
}

type Tracing struct {
	Endpoint string  `yaml:"endpoint" env:"ENDPOINT"`
	Ratio    float64 `yaml:"ratio" env:"RATIO"`
}

type Config struct {
	HTTP    HTTP    `yaml:"http" envPrefix:"HTTP_"`
	GRPC    GRPC    `yaml:"grpc" envPrefix:"GRPC_"`
	Logging Logging `yaml:"logging" envPrefix:"LOG_"`
	Storage Storage `yaml:"storage" envPrefix:"STORAGE_"`
	Auth    Auth    `yaml:"auth" envPrefix:"AUTH_"`
	Agent   Agent   `yaml:"agent" envPrefix:"AGENT_"`
	Tracing Tracing `yaml:"tracing" envPrefix:"TRACING_"`
}

// LoadConfig reads the yaml file at CONFIG_PATH and applies SPACES_*
// environment overrides on top.
func LoadConfig() (*Config, error) {
	return Load(os.Getenv("CONFIG_PATH"))
}

// Load reads path (default ./config/config.yaml). A missing default file is
// not an error: env and defaults still apply.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultPath
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, err
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "SPACES_"}); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	cfg.defaults()
	return &cfg, nil
}

func (c *Config) defaults() {
	// установка дефолтов, если значения не указаны
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "spaces"
	}
	if c.Auth.Audience == "" {
		c.Auth.Audience = "spaces-api"
	}
	if c.Auth.TTL <= 0 {
		c.Auth.TTL = 12 * time.Hour
	}
	if c.Auth.ClockSkew <= 0 {
		c.Auth.ClockSkew = 30 * time.Second
	}
	if c.Agent.SyncInterval <= 0 {
		c.Agent.SyncInterval = 2 * time.Second
	}
	if c.Agent.RequestTimeout <= 0 {
		c.Agent.RequestTimeout = 10 * time.Second
	}
}

// ValidateService checks what space-service needs to start.
func (c *Config) ValidateService() error {
	if c.Logging.Service == "" {
		c.Logging.Service = "space-service"
	}
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.GRPC.Addr == "" {
		return errors.New("grpc.addr is required")
	}
	if c.Auth.Secret == "" {
		return errors.New("auth.secret is required")
	}
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return errors.New("storage.postgres.dsn is required")
		}
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return errors.New("storage.sqlite.path is required")
		}
	default:
		return fmt.Errorf("storage.driver %q: want memory|postgres|sqlite", c.Storage.Driver)
	}
	return nil
}

// ValidateAgent checks what space-agent needs after flags were applied.
func (c *Config) ValidateAgent() error {
	if c.Logging.Service == "" {
		c.Logging.Service = "space-agent"
	}
	a := c.Agent
	if a.BackendURL == "" {
		return errors.New("agent.backendURL is required")
	}
	if a.MediaURL == "" {
		return errors.New("agent.mediaURL is required")
	}
	if a.SpaceID == "" {
		return errors.New("agent.spaceID is required")
	}
	if a.UserID == "" {
		return errors.New("agent.userID is required")
	}
	if a.Token == "" && c.Auth.Secret == "" {
		return errors.New("agent.token or auth.secret is required")
	}
	return nil
}
