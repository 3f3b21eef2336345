// Package config loads the settings of the sonosws command from flags,
// SONOSWS_* environment variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/EgorLis/sonosws/internal/sonosws"
)

const envPrefix = "SONOSWS"

type Config struct {
	Host        string `mapstructure:"ip_addr"`
	Port        int    `mapstructure:"port"`
	URI         string `mapstructure:"uri"`
	Volume      int    `mapstructure:"volume"`
	PlayerID    string `mapstructure:"player_id"`
	HouseholdID string `mapstructure:"household_id"`

	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	ResponseTimeout time.Duration `mapstructure:"response_timeout"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	Heartbeat       time.Duration `mapstructure:"heartbeat"`

	Groups bool   `mapstructure:"groups"`
	Listen string `mapstructure:"listen"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Flags declares the command line surface: -i, -u and -V plus long forms
// for everything else.
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "config file (json, yaml or toml)")
	fs.StringP("ip_addr", "i", "", "IP address of Sonos device")
	fs.Int("port", sonosws.DefaultPort, "websocket port of the device")
	fs.StringP("uri", "u", "", "URI to audio file to play as clip")
	fs.IntP("volume", "V", 0, "Volume level to play at [0-100]")
	fs.String("player_id", "", "known player identifier (skips group lookup)")
	fs.String("household_id", "", "known household identifier")
	fs.Duration("connect_timeout", sonosws.DefaultConnectTimeout, "websocket connect timeout")
	fs.Duration("response_timeout", sonosws.DefaultResponseTimeout, "timeout for each command attempt")
	fs.Int("max_attempts", sonosws.MaxAttempts, "attempts per command")
	fs.Duration("heartbeat", sonosws.DefaultHeartbeat, "keepalive ping interval, 0 disables")
	fs.Bool("groups", false, "print the group configuration and exit")
	fs.String("listen", "", "serve the HTTP bridge on this address instead of playing a clip")
	fs.String("log_level", "info", "debug, info, warn or error")
	fs.String("log_format", "auto", "console, json or auto")
	return fs
}

// Load parses args into fs and resolves the configuration. Precedence:
// flags, environment, config file, defaults.
func Load(fs *pflag.FlagSet, args []string) (*Config, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Host == "" {
		errs = append(errs, errors.New("ip_addr is required"))
	}
	if c.Listen == "" && !c.Groups && c.URI == "" {
		errs = append(errs, errors.New("uri is required unless --groups or --listen is set"))
	}
	if c.Volume < 0 || c.Volume > 100 {
		errs = append(errs, fmt.Errorf("volume %d out of range [0-100]", c.Volume))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts))
	}
	switch c.LogFormat {
	case "auto", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log_format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// ClientOptions maps the configuration onto client options.
func (c *Config) ClientOptions() []sonosws.Option {
	return []sonosws.Option{
		sonosws.WithPort(c.Port),
		sonosws.WithPlayerID(c.PlayerID),
		sonosws.WithHouseholdID(c.HouseholdID),
		sonosws.WithConnectTimeout(c.ConnectTimeout),
		sonosws.WithResponseTimeout(c.ResponseTimeout),
		sonosws.WithMaxAttempts(c.MaxAttempts),
		sonosws.WithHeartbeat(c.Heartbeat),
	}
}
