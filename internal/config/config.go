// ABOUTME: Configuration loading for the dialog output client
// ABOUTME: Viper defaults, optional dialog.yaml, DIALOG_ environment overrides and slog setup
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Devices   DevicesConfig   `mapstructure:"devices"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig locates the dialog backend
type ServerConfig struct {
	Addr  string `mapstructure:"addr"` // host:port; empty means discover via mDNS
	Path  string `mapstructure:"path"`
	Token string `mapstructure:"token"` // may be "${ENV_VAR}"
	Name  string `mapstructure:"name"`  // client name announced in client/hello
}

// DiscoveryConfig configures mDNS browsing
type DiscoveryConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Service string        `mapstructure:"service"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AudioConfig configures the output pipeline
type AudioConfig struct {
	Backend       string `mapstructure:"backend"`        // malgo, oto, portaudio, null
	Format        string `mapstructure:"format"`         // output catalog label (pcm only)
	RequestFormat string `mapstructure:"request_format"` // catalog label asked of the backend
	FrameSamples  int    `mapstructure:"frame_samples"`
	FramePolicy   string `mapstructure:"frame_policy"` // partial or fill
	Volume        int    `mapstructure:"volume"`
}

// DevicesConfig configures default-device tracking
type DevicesConfig struct {
	Watch        bool          `mapstructure:"watch"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// LoggingConfig holds structured logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
	File   string `mapstructure:"file"`
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is empty the search order is ./dialog.yaml, ./configs/dialog.yaml,
// /etc/dialog/dialog.yaml; a missing file is not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", "")
	v.SetDefault("server.path", "/dialog")
	v.SetDefault("server.token", "")
	v.SetDefault("server.name", defaultName())
	v.SetDefault("discovery.enabled", true)
	v.SetDefault("discovery.service", "_dialog._tcp")
	v.SetDefault("discovery.timeout", 10*time.Second)
	v.SetDefault("audio.backend", "malgo")
	v.SetDefault("audio.format", "raw-16khz-16bit-mono-pcm")
	v.SetDefault("audio.request_format", "raw-16khz-16bit-mono-pcm")
	v.SetDefault("audio.frame_samples", 320)
	v.SetDefault("audio.frame_policy", "partial")
	v.SetDefault("audio.volume", 100)
	v.SetDefault("devices.watch", true)
	v.SetDefault("devices.poll_interval", 2*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "dialog.log")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("dialog")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/dialog")
	}

	// DIALOG_SERVER_ADDR, DIALOG_AUDIO_BACKEND, ...
	v.SetEnvPrefix("DIALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Debug("no config file found, using defaults and environment variables")
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.Server.Token = resolveEnvRef(cfg.Server.Token)
	return &cfg, nil
}

func defaultName() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "dialog-output"
	}
	return hostname + "-dialog"
}

// resolveEnvRef replaces a "${VAR_NAME}" value with the env var's value
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		if envVal := os.Getenv(val[2 : len(val)-1]); envVal != "" {
			return envVal
		}
	}
	return val
}

// SetupLogging builds the slog logger writing to w and installs it as the default
func SetupLogging(cfg LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
