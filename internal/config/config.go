// Package config loads server and client settings with viper. Values come
// from an optional YAML file, PARLEY_* environment variables and, for the
// client, command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dkeye/Parley/internal/domain"
)

const envPrefix = "PARLEY"

type RateLimit struct {
	Burst    int           `mapstructure:"burst"`
	Interval time.Duration `mapstructure:"interval"`
}

// UserEntry is one token issued by the external auth service.
type UserEntry struct {
	Token       string `mapstructure:"token"`
	ID          string `mapstructure:"id"`
	Name        string `mapstructure:"name"`
	DisplayName string `mapstructure:"display_name"`
}

type Config struct {
	Mode        string        `mapstructure:"mode"`
	Port        int           `mapstructure:"port"`
	LogLevel    string        `mapstructure:"log_level"`
	ReadLimit   int64         `mapstructure:"read_limit"`
	PingPeriod  time.Duration `mapstructure:"ping_period"`
	Secret      string        `mapstructure:"secret"`
	HistorySize int           `mapstructure:"history_size"`
	RateLimit   RateLimit     `mapstructure:"rate_limit"`

	// Backpressure is "kick" or "drop"; see app.PolicyByName.
	Backpressure string      `mapstructure:"backpressure"`
	Users        []UserEntry `mapstructure:"users"`
}

// Tokens maps every configured token to its user.
func (c *Config) Tokens() map[string]domain.User {
	out := make(map[string]domain.User, len(c.Users))
	for _, u := range c.Users {
		if u.Token == "" || u.ID == "" {
			continue
		}
		out[u.Token] = domain.User{ID: domain.UserID(u.ID), Username: u.Name, DisplayName: u.DisplayName}
	}
	return out
}

// Load reads config/config.<CONFIG_ENV>.yaml, dev by default.
func Load() (*Config, error) {
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", configEnv()))
}

// LoadFile is Load with an explicit file. A missing file is not an error.
func LoadFile(fileName string) (*Config, error) {
	v := newViper(fileName)

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "parley-dev-secret")
	v.SetDefault("history_size", 200)
	v.SetDefault("rate_limit.burst", 5)
	v.SetDefault("rate_limit.interval", "1s")
	v.SetDefault("backpressure", "kick")

	if err := read(v, fileName); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Int("users", len(cfg.Users)).Msg("server config")
	return &cfg, nil
}

type Reconnect struct {
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

type Typing struct {
	Debounce     time.Duration `mapstructure:"debounce"`
	RemoteExpiry time.Duration `mapstructure:"remote_expiry"`
}

type Notify struct {
	PreviewLen int `mapstructure:"preview_len"`
}

type ClientConfig struct {
	ServerURL   string        `mapstructure:"server_url"`
	APIURL      string        `mapstructure:"api_url"`
	UserID      string        `mapstructure:"user_id"`
	Token       string        `mapstructure:"token"`
	LogLevel    string        `mapstructure:"log_level"`
	PingTimeout time.Duration `mapstructure:"ping_timeout"`
	Reconnect   Reconnect     `mapstructure:"reconnect"`
	Typing      Typing        `mapstructure:"typing"`
	Notify      Notify        `mapstructure:"notify"`
}

var ErrMissingUser = errors.New("user_id and token are required")

// clientFlags maps flag names to config keys.
var clientFlags = []struct {
	flag, key, usage string
}{
	{"server", "server_url", "websocket endpoint"},
	{"api", "api_url", "REST base URL"},
	{"user", "user_id", "user id to sign in as"},
	{"token", "token", "bearer token"},
	{"log-level", "log_level", "log level"},
}

// ClientFlags registers the client's command line flags on fs.
func ClientFlags(fs *pflag.FlagSet) {
	for _, f := range clientFlags {
		fs.String(f.flag, "", f.usage)
	}
	fs.String("config", "", "config file (default config/client.<CONFIG_ENV>.yaml)")
}

// LoadClient resolves client settings. Flags win over the environment, which
// wins over the file.
func LoadClient(flags *pflag.FlagSet) (*ClientConfig, error) {
	fileName := fmt.Sprintf("config/client.%s.yaml", configEnv())
	if flags != nil {
		if f, err := flags.GetString("config"); err == nil && f != "" {
			fileName = f
		}
	}
	v := newViper(fileName)

	v.SetDefault("server_url", "ws://localhost:8080/api/ws")
	v.SetDefault("api_url", "http://localhost:8080")
	v.SetDefault("log_level", "warn")
	v.SetDefault("ping_timeout", "5s")
	v.SetDefault("reconnect.base_delay", "1s")
	v.SetDefault("reconnect.max_attempts", 5)
	v.SetDefault("typing.debounce", "2s")
	v.SetDefault("typing.remote_expiry", "5s")
	v.SetDefault("notify.preview_len", 100)

	if flags != nil {
		for _, f := range clientFlags {
			if fl := flags.Lookup(f.flag); fl != nil {
				if err := v.BindPFlag(f.key, fl); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", f.flag, err)
				}
			}
		}
	}

	if err := read(v, fileName); err != nil {
		return nil, err
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	if cfg.UserID == "" || cfg.Token == "" {
		return nil, ErrMissingUser
	}
	return &cfg, nil
}

// Level parses a zerolog level name, falling back to info.
func Level(name string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil || name == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func configEnv() string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return env
}

func newViper(fileName string) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func read(v *viper.Viper, fileName string) error {
	err := v.ReadInConfig()
	if err == nil {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
		return nil
	}
	return fmt.Errorf("read config %s: %w", fileName, err)
}
