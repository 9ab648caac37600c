// Package config loads service settings from defaults, an optional file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AppName    string
	Debug      bool
	ListenAddr string

	Postgres struct {
		DSN string
	}
	Mongo struct {
		URI      string
		Database string
	}
	Redis struct {
		URL string
	}
	Storage struct {
		ConnectionString string
		StateTable       string
	}
	EventSink struct {
		Driver string
		Queue  string
	}
	Kafka struct {
		Brokers []string
	}
	Rabbit struct {
		URL      string
		Exchange string
	}
	StateStore struct {
		Driver string
		TTL    time.Duration
	}
	SlowEventThreshold time.Duration
	Idempotency        struct {
		TTL time.Duration
	}
	Auth struct {
		Audience    string
		Domain      string
		TestSecret  string
		KeyCacheTTL time.Duration
	}
}

// env maps configuration keys to their environment variables.
var env = map[string]string{
	"AppName":                  "APP_NAME",
	"Debug":                    "DEBUG",
	"ListenAddr":               "LISTEN_ADDR",
	"Postgres.DSN":             "POSTGRES_DSN",
	"Mongo.URI":                "MONGO_URI",
	"Mongo.Database":           "MONGO_DATABASE",
	"Redis.URL":                "REDIS_CONNECTION_STRING",
	"Storage.ConnectionString": "STORAGE_CONNECTION_STRING",
	"Storage.StateTable":       "STATE_TABLE",
	"EventSink.Driver":         "EVENT_SINK",
	"EventSink.Queue":          "DOMAIN_EVENTS_QUEUE",
	"Kafka.Brokers":            "KAFKA_BROKERS",
	"Rabbit.URL":               "RABBITMQ_URL",
	"Rabbit.Exchange":          "RABBITMQ_EXCHANGE",
	"StateStore.Driver":        "STATE_STORE",
	"StateStore.TTL":           "STATE_STORE_TTL",
	"SlowEventThreshold":       "SLOW_EVENT_THRESHOLD",
	"Idempotency.TTL":          "DEDUPER_TTL",
	"Auth.Audience":            "AUTH0_AUDIENCE",
	"Auth.Domain":              "AUTH0_DOMAIN",
	"Auth.TestSecret":          "TEST_JWT_SECRET",
	"Auth.KeyCacheTTL":         "JWKS_CACHE_TTL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("AppName", "")
	v.SetDefault("Debug", false)
	v.SetDefault("ListenAddr", ":8080")
	v.SetDefault("Mongo.Database", "cleanarchitecture")
	v.SetDefault("Storage.StateTable", "state")
	v.SetDefault("EventSink.Driver", "log")
	v.SetDefault("EventSink.Queue", "domain-events")
	v.SetDefault("Rabbit.Exchange", "domain-events")
	v.SetDefault("StateStore.Driver", "memory")
	v.SetDefault("StateStore.TTL", 5*time.Minute)
	v.SetDefault("SlowEventThreshold", 500*time.Millisecond)
	v.SetDefault("Idempotency.TTL", 24*time.Hour)
	v.SetDefault("Auth.KeyCacheTTL", 15*time.Minute)
}

// Load reads config.yaml from the working directory, or the file named by
// CONFIG_FILE, and lets environment variables override it.
func Load() (*Config, error) {
	c, err := Read()
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Read loads the settings without validating them. Tools that need only a
// subset of the service settings use it.
func Read() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range env {
		if err := v.BindEnv(key, name); err != nil {
			return nil, err
		}
	}
	return decode(v), nil
}

func decode(v *viper.Viper) *Config {
	c := &Config{}
	c.AppName = v.GetString("AppName")
	c.Debug = v.GetBool("Debug")
	c.ListenAddr = v.GetString("ListenAddr")
	c.Postgres.DSN = v.GetString("Postgres.DSN")
	c.Mongo.URI = v.GetString("Mongo.URI")
	c.Mongo.Database = v.GetString("Mongo.Database")
	c.Redis.URL = v.GetString("Redis.URL")
	c.Storage.ConnectionString = v.GetString("Storage.ConnectionString")
	c.Storage.StateTable = v.GetString("Storage.StateTable")
	c.EventSink.Driver = strings.ToLower(v.GetString("EventSink.Driver"))
	c.EventSink.Queue = v.GetString("EventSink.Queue")
	c.Kafka.Brokers = splitList(v.GetStringSlice("Kafka.Brokers"))
	c.Rabbit.URL = v.GetString("Rabbit.URL")
	c.Rabbit.Exchange = v.GetString("Rabbit.Exchange")
	c.StateStore.Driver = strings.ToLower(v.GetString("StateStore.Driver"))
	c.StateStore.TTL = v.GetDuration("StateStore.TTL")
	c.SlowEventThreshold = v.GetDuration("SlowEventThreshold")
	c.Idempotency.TTL = v.GetDuration("Idempotency.TTL")
	c.Auth.Audience = v.GetString("Auth.Audience")
	c.Auth.Domain = v.GetString("Auth.Domain")
	c.Auth.TestSecret = v.GetString("Auth.TestSecret")
	c.Auth.KeyCacheTTL = v.GetDuration("Auth.KeyCacheTTL")
	return c
}

// splitList accepts both list values and a single comma separated string.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate reports the first missing or inconsistent setting.
func (c *Config) Validate() error {
	if c.Postgres.DSN == "" {
		return missing("Postgres.DSN")
	}
	if c.Mongo.URI == "" {
		return missing("Mongo.URI")
	}
	switch c.EventSink.Driver {
	case "log":
	case "queue":
		if c.Storage.ConnectionString == "" {
			return missing("Storage.ConnectionString")
		}
	case "redis":
		if c.Redis.URL == "" {
			return missing("Redis.URL")
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return missing("Kafka.Brokers")
		}
	case "rabbitmq":
		if c.Rabbit.URL == "" {
			return missing("Rabbit.URL")
		}
	default:
		return fmt.Errorf("config EventSink.Driver: unsupported value %q", c.EventSink.Driver)
	}
	switch c.StateStore.Driver {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return missing("Redis.URL")
		}
	case "table":
		if c.Storage.ConnectionString == "" {
			return missing("Storage.ConnectionString")
		}
	default:
		return fmt.Errorf("config StateStore.Driver: unsupported value %q", c.StateStore.Driver)
	}
	if c.SlowEventThreshold <= 0 {
		return fmt.Errorf("config SlowEventThreshold: must be greater than zero")
	}
	if c.Idempotency.TTL <= 0 {
		return fmt.Errorf("config Idempotency.TTL: must be greater than zero")
	}
	if c.Auth.TestSecret == "" && (c.Auth.Audience == "" || c.Auth.Domain == "") {
		return missing("Auth.Audience/Auth.Domain")
	}
	return nil
}

func missing(key string) error {
	return fmt.Errorf("config %s: required", key)
}
