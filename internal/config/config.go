// Package config provides Viper-based configuration loading for the bancho
// server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds top-level server settings.
type ServerConfig struct {
	// Mode is the server operation mode. Only "standalone" is supported.
	Mode string `mapstructure:"mode"`
	// Type names the server in logs.
	Type string `mapstructure:"type"`
}

// HTTPConfig holds the bancho HTTP listener settings.
type HTTPConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// MaxBodyBytes bounds a request body; larger bodies are refused.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfig holds account database settings. Path is used by the
// sqlite driver; the remaining fields by postgres.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
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

// Storage backends for mirrored session state.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// StorageConfig selects the key-value store that session, channel and match
// state is mirrored to.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// BanchoConfig holds protocol and login behaviour.
type BanchoConfig struct {
	// AutoRegister creates unknown accounts on their first login.
	AutoRegister bool `mapstructure:"auto_register"`
	// LoginMessage is the notification shown after a successful login.
	LoginMessage    string `mapstructure:"login_message"`
	MenuIconURL     string `mapstructure:"menu_icon_url"`
	MenuRedirectURL string `mapstructure:"menu_redirect_url"`
	ProtocolVersion int32  `mapstructure:"protocol_version"`
	// ChannelsFile is a YAML channel catalog. Empty uses the built-in one.
	ChannelsFile  string `mapstructure:"channels_file"`
	BotName       string `mapstructure:"bot_name"`
	CommandPrefix string `mapstructure:"command_prefix"`
	// ScriptsDir holds Lua command scripts. Empty disables scripting.
	ScriptsDir           string `mapstructure:"scripts_dir"`
	ScriptInstructionCap int    `mapstructure:"script_instruction_cap"`
	// LogoutDebounce ignores logouts this soon after login.
	LogoutDebounce time.Duration `mapstructure:"logout_debounce"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Bancho   BanchoConfig   `mapstructure:"bancho"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	for _, err := range []error{
		validateServer(c.Server),
		validateHTTP(c.HTTP),
		validateDatabase(c.Database),
		validateStorage(c.Storage),
		validateLogging(c.Logging),
		validateBancho(c.Bancho),
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
	if s.Mode != "standalone" {
		return fmt.Errorf("server.mode must be standalone, got %q", s.Mode)
	}
	if s.Type == "" {
		return errors.New("server.type must not be empty")
	}
	return nil
}

func validatePort(key string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be 1-65535, got %d", key, port)
	}
	return nil
}

func validateHTTP(h HTTPConfig) error {
	var errs []string
	if err := validatePort("http.port", h.Port); err != nil {
		errs = append(errs, err.Error())
	}
	if h.ReadTimeout < 0 {
		errs = append(errs, "http.read_timeout must not be negative")
	}
	if h.WriteTimeout < 0 {
		errs = append(errs, "http.write_timeout must not be negative")
	}
	if h.ShutdownTimeout < 0 {
		errs = append(errs, "http.shutdown_timeout must not be negative")
	}
	if h.MaxBodyBytes < 1 {
		errs = append(errs, fmt.Sprintf("http.max_body_bytes must be >= 1, got %d", h.MaxBodyBytes))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	switch d.Driver {
	case DriverSQLite:
		if d.Path == "" {
			return errors.New("database.path must not be empty for sqlite")
		}
		return nil
	case DriverPostgres:
	default:
		return fmt.Errorf("database.driver must be one of [sqlite, postgres], got %q", d.Driver)
	}

	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if err := validatePort("database.port", d.Port); err != nil {
		errs = append(errs, err.Error())
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

func validateStorage(s StorageConfig) error {
	switch s.Backend {
	case BackendMemory:
		return nil
	case BackendRedis:
		if s.RedisAddr == "" {
			return errors.New("storage.redis_addr must not be empty for redis")
		}
		if s.RedisDB < 0 {
			return fmt.Errorf("storage.redis_db must be >= 0, got %d", s.RedisDB)
		}
		return nil
	default:
		return fmt.Errorf("storage.backend must be one of [memory, redis], got %q", s.Backend)
	}
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

func validateBancho(b BanchoConfig) error {
	var errs []string
	if b.ProtocolVersion < 1 {
		errs = append(errs, fmt.Sprintf("bancho.protocol_version must be >= 1, got %d", b.ProtocolVersion))
	}
	if strings.TrimSpace(b.BotName) == "" {
		errs = append(errs, "bancho.bot_name must not be empty")
	}
	if b.CommandPrefix == "" || strings.ContainsAny(b.CommandPrefix, " \t") {
		errs = append(errs, fmt.Sprintf("bancho.command_prefix must be non-empty without spaces, got %q", b.CommandPrefix))
	}
	if b.ScriptInstructionCap < 0 {
		errs = append(errs, "bancho.script_instruction_cap must not be negative")
	}
	if b.LogoutDebounce < 0 {
		errs = append(errs, "bancho.logout_debounce must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path uses defaults and the
// environment only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with BANCHO_ prefix
	v.SetEnvPrefix("BANCHO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}
	return LoadFromViper(v)
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

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "standalone")
	v.SetDefault("server.type", "bancho")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 10000)
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.shutdown_timeout", "5s")
	v.SetDefault("http.max_body_bytes", 1<<20)

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "bancho.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "bancho")
	v.SetDefault("database.password", "bancho")
	v.SetDefault("database.name", "bancho")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.redis_db", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("bancho.auto_register", true)
	v.SetDefault("bancho.login_message", "Welcome to bancho!")
	v.SetDefault("bancho.menu_icon_url", "")
	v.SetDefault("bancho.menu_redirect_url", "")
	v.SetDefault("bancho.protocol_version", 19)
	v.SetDefault("bancho.channels_file", "")
	v.SetDefault("bancho.bot_name", "BanchoBot")
	v.SetDefault("bancho.command_prefix", "!")
	v.SetDefault("bancho.scripts_dir", "")
	v.SetDefault("bancho.script_instruction_cap", 100000)
	v.SetDefault("bancho.logout_debounce", "2s")
}
