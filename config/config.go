// Package config loads service and CLI settings from an optional YAML file
// followed by environment overrides.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Config is the full hackboard configuration.
type Config struct {
	Debug bool `yaml:"debug"`

	Backend BackendConfig `yaml:"backend"`
	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
	Auth    AuthConfig    `yaml:"auth"`
	Publish PublishConfig `yaml:"publish"`
	Server  ServerConfig  `yaml:"server"`
}

// BackendConfig points at the remote task backend.
type BackendConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// StorageConfig enables the Azure Table backend and the board event queue.
type StorageConfig struct {
	ConnectionString string `yaml:"connection_string"`
	TasksTable       string `yaml:"tasks_table"`
	MembersTable     string `yaml:"members_table"`
	EventsQueue      string `yaml:"events_queue"`
}

// RedisConfig configures the task cache, generation flags and the stream relay.
type RedisConfig struct {
	ConnectionString string        `yaml:"connection_string"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	GenerationTTL    time.Duration `yaml:"generation_ttl"`
	Channel          string        `yaml:"channel"`
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	Domain   string `yaml:"domain"`
	Audience string `yaml:"audience"`
	TestMode bool   `yaml:"test_mode"`
}

// PublishConfig sizes the board event worker pool.
type PublishConfig struct {
	Workers        int           `yaml:"workers"`
	Buffer         int           `yaml:"buffer"`
	Timeout        time.Duration `yaml:"timeout"`
	HandoffTimeout time.Duration `yaml:"handoff_timeout"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port string `yaml:"port"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Redis: RedisConfig{
			CacheTTL: 30 * time.Second,
			Channel:  "board-updates",
		},
		Publish: PublishConfig{
			Workers:        8,
			Buffer:         1024,
			Timeout:        30 * time.Second,
			HandoffTimeout: 15 * time.Millisecond,
		},
		Server: ServerConfig{Port: "8080"},
	}
}

// Load reads path (when non-empty) over the defaults and then applies
// environment overrides. A missing file is an error only when path was given
// explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("BACKEND_URL", &c.Backend.URL)
	str("BACKEND_TOKEN", &c.Backend.Token)
	str("STORAGE_CONNECTION_STRING", &c.Storage.ConnectionString)
	str("TASKS_TABLE", &c.Storage.TasksTable)
	str("MEMBERS_TABLE", &c.Storage.MembersTable)
	str("BOARD_EVENTS_QUEUE", &c.Storage.EventsQueue)
	str("REDIS_CONNECTION_STRING", &c.Redis.ConnectionString)
	str("BOARD_UPDATES_CHANNEL", &c.Redis.Channel)
	str("AUTH0_DOMAIN", &c.Auth.Domain)
	str("AUTH0_AUDIENCE", &c.Auth.Audience)
	str("BOARD_API_PORT", &c.Server.Port)

	if v, ok := lookup("AUTH0_TEST_MODE"); ok {
		c.Auth.TestMode = v == "1"
	}
	if v, ok := lookup("DEBUG"); ok {
		if dbg, err := strconv.ParseBool(v); err == nil {
			c.Debug = dbg
		}
	}

	var errs []error
	intVar := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("invalid %s: must be a positive integer", key))
			return
		}
		*dst = n
	}
	durVar := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("invalid %s: %q", key, v))
			return
		}
		*dst = d
	}
	intVar("PUBLISH_WORKERS", &c.Publish.Workers)
	intVar("PUBLISH_BUFFER", &c.Publish.Buffer)
	durVar("PUBLISH_TIMEOUT", &c.Publish.Timeout)
	durVar("PUBLISH_HANDOFF_TIMEOUT", &c.Publish.HandoffTimeout)
	durVar("CACHE_TTL", &c.Redis.CacheTTL)
	durVar("GENERATION_TTL", &c.Redis.GenerationTTL)
	return errors.Join(errs...)
}

// ValidateService checks the settings the board API cannot start without.
func (c *Config) ValidateService() error {
	var errs []error
	if c.Backend.URL == "" && c.Storage.ConnectionString == "" {
		errs = append(errs, errors.New("missing task source: set BACKEND_URL or STORAGE_CONNECTION_STRING"))
	}
	if c.Storage.ConnectionString != "" && (c.Storage.TasksTable == "" || c.Storage.MembersTable == "") {
		errs = append(errs, errors.New("missing storage config: TASKS_TABLE and MEMBERS_TABLE are required"))
	}
	if c.Redis.ConnectionString == "" {
		errs = append(errs, errors.New("missing redis config"))
	}
	if !c.Auth.TestMode && (c.Auth.Domain == "" || c.Auth.Audience == "") {
		errs = append(errs, errors.New("missing Auth0 config"))
	}
	if c.Publish.Workers <= 0 || c.Publish.Buffer <= 0 {
		errs = append(errs, errors.New("publish workers and buffer must be greater than zero"))
	}
	return errors.Join(errs...)
}

// ValidateClient checks the settings boardctl needs.
func (c *Config) ValidateClient() error {
	if c.Backend.URL == "" {
		return errors.New("missing backend url: use --backend or BACKEND_URL")
	}
	return nil
}

// RedisOptions parses the Redis connection string. Both redis:// URLs and
// the Azure "host:port,password=...,ssl=True" form are accepted.
func (c *Config) RedisOptions() (*redis.Options, error) {
	return ParseRedis(c.Redis.ConnectionString)
}

// ParseRedis parses a Redis connection string.
func ParseRedis(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, errors.New("empty redis connection string")
	}
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts, nil
}
