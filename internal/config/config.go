// Package config provides Viper-based configuration loading for the effect engine.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds top-level service settings.
type ServerConfig struct {
	// Mode is "standalone" (single evaluator owns every subject) or "host" (presence-elected).
	Mode string `mapstructure:"mode"`
	// UserID identifies this evaluator in the presence registry.
	UserID string `mapstructure:"user_id"`
	// GameMasters evaluate subjects none of whose owners are connected.
	GameMasters []string `mapstructure:"game_masters"`
	// HeartbeatInterval is how often presence is refreshed in host mode.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// Standalone reports whether ownership election is bypassed.
func (s ServerConfig) Standalone() bool { return s.Mode == "standalone" }

// DatabaseConfig selects and configures the subject store.
type DatabaseConfig struct {
	// Driver is one of "memory", "postgres", "sqlite".
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// Path is the sqlite database file; ":memory:" keeps it in process.
	Path string `mapstructure:"path"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// RedisConfig holds presence registry and notification channel settings.
type RedisConfig struct {
	// Addr is "host:port"; empty disables redis and falls back to in-process presence.
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// PresenceTTL is how long a presence heartbeat stays valid.
	PresenceTTL time.Duration `mapstructure:"presence_ttl"`
	// Channel is the pub/sub channel notifications are published on.
	Channel string `mapstructure:"channel"`
}

// Enabled reports whether a redis server is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// Output is "stderr", "stdout" or a file path.
	Output string `mapstructure:"output"`
}

// TracingConfig holds OpenTelemetry exporter settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Insecure    bool   `mapstructure:"insecure"`
}

// EngineConfig tunes the clock and expiration engine.
type EngineConfig struct {
	SkipDefeated     bool   `mapstructure:"skip_defeated"`
	SkipActed        bool   `mapstructure:"skip_acted"`
	CatalogFile      string `mapstructure:"catalog_file"`
	ContentDir       string `mapstructure:"content_dir"`
	ScriptsDir       string `mapstructure:"scripts_dir"`
	InstructionLimit int    `mapstructure:"instruction_limit"`
	// Parallelism bounds concurrent per-subject commits; 0 means unbounded.
	Parallelism int `mapstructure:"parallelism"`
	// TickInterval is the real-time interval of the world clock; 0 disables it.
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	SecondsPerTick int64         `mapstructure:"seconds_per_tick"`
	TurnTimeout    time.Duration `mapstructure:"turn_timeout"`
}

// GRPCConfig holds the health endpoint listener settings.
type GRPCConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the "host:port" gRPC address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (g GRPCConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Engine   EngineConfig   `mapstructure:"engine"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string
	for _, err := range []error{
		validateServer(c.Server),
		validateDatabase(c.Database),
		validateRedis(c.Redis, c.Server),
		validateLogging(c.Logging),
		validateTracing(c.Tracing),
		validateEngine(c.Engine),
		validateGRPC(c.GRPC),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	validModes := map[string]bool{"standalone": true, "host": true}
	if !validModes[s.Mode] {
		return fmt.Errorf("server.mode must be one of [standalone, host], got %q", s.Mode)
	}
	if s.UserID == "" {
		return errors.New("server.user_id must not be empty")
	}
	if s.Mode == "host" && s.HeartbeatInterval <= 0 {
		return errors.New("server.heartbeat_interval must be positive in host mode")
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	switch d.Driver {
	case "memory":
		return nil
	case "sqlite":
		if d.Path == "" {
			return errors.New("database.path must not be empty for the sqlite driver")
		}
		return nil
	case "postgres":
	default:
		return fmt.Errorf("database.driver must be one of [memory, postgres, sqlite], got %q", d.Driver)
	}

	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateRedis(r RedisConfig, s ServerConfig) error {
	var errs []string
	if !r.Enabled() && s.Mode == "host" {
		errs = append(errs, "redis.addr must be set when server.mode is host")
	}
	if r.DB < 0 {
		errs = append(errs, fmt.Sprintf("redis.db must be >= 0, got %d", r.DB))
	}
	if r.Enabled() && r.PresenceTTL <= 0 {
		errs = append(errs, "redis.presence_ttl must be positive")
	}
	if r.Enabled() && r.Channel == "" {
		errs = append(errs, "redis.channel must not be empty")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateTracing(t TracingConfig) error {
	if !t.Enabled {
		return nil
	}
	if t.Endpoint == "" {
		return errors.New("tracing.endpoint must not be empty when tracing is enabled")
	}
	if t.ServiceName == "" {
		return errors.New("tracing.service_name must not be empty when tracing is enabled")
	}
	return nil
}

func validateEngine(e EngineConfig) error {
	var errs []string
	if e.InstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("engine.instruction_limit must be >= 0, got %d", e.InstructionLimit))
	}
	if e.Parallelism < 0 {
		errs = append(errs, fmt.Sprintf("engine.parallelism must be >= 0, got %d", e.Parallelism))
	}
	if e.TickInterval < 0 {
		errs = append(errs, "engine.tick_interval must not be negative")
	}
	if e.TickInterval > 0 && e.SecondsPerTick < 1 {
		errs = append(errs, fmt.Sprintf("engine.seconds_per_tick must be >= 1 when the world clock runs, got %d", e.SecondsPerTick))
	}
	if e.TurnTimeout < 0 {
		errs = append(errs, "engine.turn_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateGRPC(g GRPCConfig) error {
	var errs []string
	if g.Host == "" {
		errs = append(errs, "grpc.host must not be empty")
	}
	if g.Port < 1 || g.Port > 65535 {
		errs = append(errs, fmt.Sprintf("grpc.port must be 1-65535, got %d", g.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := NewViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// NewViper returns a Viper instance with defaults and DEMONLORD_ environment overrides.
//
// Postcondition: Returns a non-nil Viper with no config file attached.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("DEMONLORD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "standalone")
	v.SetDefault("server.user_id", "gm")
	v.SetDefault("server.game_masters", []string{"gm"})
	v.SetDefault("server.heartbeat_interval", "10s")

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "demonlord")
	v.SetDefault("database.password", "demonlord")
	v.SetDefault("database.name", "demonlord")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.path", "demonlord.db")

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.presence_ttl", "30s")
	v.SetDefault("redis.channel", "demonlord:notifications")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "demonlord-effectd")
	v.SetDefault("tracing.insecure", true)

	v.SetDefault("engine.skip_defeated", true)
	v.SetDefault("engine.skip_acted", false)
	v.SetDefault("engine.instruction_limit", 100000)
	v.SetDefault("engine.parallelism", 8)
	v.SetDefault("engine.tick_interval", "0s")
	v.SetDefault("engine.seconds_per_tick", 6)
	v.SetDefault("engine.turn_timeout", "0s")

	v.SetDefault("grpc.host", "127.0.0.1")
	v.SetDefault("grpc.port", 50051)
}
