package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	cmdmessenger "github.com/pior/cmdmessenger"
	"github.com/pior/cmdmessenger/lighthub"
)

const (
	EnvConfig   = "LIGHTHUB_CONFIG"
	EnvPort     = "LIGHTHUB_PORT"
	EnvBaud     = "LIGHTHUB_BAUD"
	EnvLogLevel = "LIGHTHUB_LOG_LEVEL"
	EnvMetrics  = "LIGHTHUB_METRICS_ADDR"

	defaultPort = "/dev/ttyUSB0"
)

type appConfig struct {
	Port        string
	Baud        int
	ReadTimeout time.Duration
	AckTimeout  time.Duration
	LogLevel    zerolog.Level

	// MetricsAddr is the listen address of the Prometheus endpoint.
	// Empty disables it.
	MetricsAddr string
}

func defaultAppConfig() appConfig {
	return appConfig{
		Port:        defaultPort,
		Baud:        cmdmessenger.DefaultBaudRate,
		ReadTimeout: cmdmessenger.DefaultReadTimeout,
		AckTimeout:  lighthub.DefaultAckTimeout,
		LogLevel:    zerolog.InfoLevel,
	}
}

type fileConfig struct {
	Port       string `toml:"port"`
	Baud       int    `toml:"baud"`
	Timeout    string `toml:"timeout"`
	AckTimeout string `toml:"ack_timeout"`
	LogLevel   string `toml:"log_level"`
	Metrics    string `toml:"metrics_addr"`
}

// registerFlags defines the flags read by applyFlags.
func registerFlags(flags *pflag.FlagSet) {
	flags.String("port", defaultPort, "Serial port of the hub")
	flags.Int("baud", cmdmessenger.DefaultBaudRate, "Baud rate")
	flags.String("timeout", cmdmessenger.DefaultReadTimeout.String(), "Serial read timeout, a duration or seconds (0.5)")
	flags.String("ack-timeout", lighthub.DefaultAckTimeout.String(), "How long to wait for the hub to acknowledge a command, a duration or seconds")
	flags.String("log-level", "info", "Log level: trace, debug, info, warn, error, off")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (listen only), e.g. :9108")
}

// loadConfig builds the configuration from defaults, the optional TOML file
// at path, the environment and finally the flags set on the command line.
func loadConfig(path string, flags *pflag.FlagSet) (appConfig, error) {
	cfg := defaultAppConfig()

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return appConfig{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return appConfig{}, err
	}

	if flags != nil {
		if err := applyFlags(&cfg, flags); err != nil {
			return appConfig{}, err
		}
	}
	return cfg, nil
}

func applyFile(cfg *appConfig, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("port") {
		if port := strings.TrimSpace(raw.Port); port != "" {
			cfg.Port = port
		}
	}
	if meta.IsDefined("baud") {
		if raw.Baud <= 0 {
			return fmt.Errorf("load config: invalid baud %d", raw.Baud)
		}
		cfg.Baud = raw.Baud
	}
	if meta.IsDefined("timeout") {
		d, err := parseTimeout(raw.Timeout)
		if err != nil {
			return fmt.Errorf("parse timeout: %w", err)
		}
		cfg.ReadTimeout = d
	}
	if meta.IsDefined("ack_timeout") {
		d, err := parseTimeout(raw.AckTimeout)
		if err != nil {
			return fmt.Errorf("parse ack_timeout: %w", err)
		}
		cfg.AckTimeout = d
	}
	if meta.IsDefined("log_level") {
		lvl, ok := parseLevel(raw.LogLevel)
		if !ok {
			return fmt.Errorf("load config: unknown log level %q", raw.LogLevel)
		}
		cfg.LogLevel = lvl
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.Metrics)
	}
	return nil
}

func applyEnv(cfg *appConfig) error {
	if port := strings.TrimSpace(os.Getenv(EnvPort)); port != "" {
		cfg.Port = port
	}
	if raw := strings.TrimSpace(os.Getenv(EnvBaud)); raw != "" {
		baud, err := strconv.Atoi(raw)
		if err != nil || baud <= 0 {
			return fmt.Errorf("%s: invalid baud %q", EnvBaud, raw)
		}
		cfg.Baud = baud
	}
	if raw := strings.TrimSpace(os.Getenv(EnvLogLevel)); raw != "" {
		lvl, ok := parseLevel(raw)
		if !ok {
			return fmt.Errorf("%s: unknown log level %q", EnvLogLevel, raw)
		}
		cfg.LogLevel = lvl
	}
	if addr := strings.TrimSpace(os.Getenv(EnvMetrics)); addr != "" {
		cfg.MetricsAddr = addr
	}
	return nil
}

func applyFlags(cfg *appConfig, flags *pflag.FlagSet) error {
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetString("port")
	}
	if flags.Changed("baud") {
		baud, _ := flags.GetInt("baud")
		if baud <= 0 {
			return fmt.Errorf("invalid --baud %d", baud)
		}
		cfg.Baud = baud
	}
	if flags.Changed("timeout") {
		raw, _ := flags.GetString("timeout")
		d, err := parseTimeout(raw)
		if err != nil {
			return fmt.Errorf("--timeout: %w", err)
		}
		cfg.ReadTimeout = d
	}
	if flags.Changed("ack-timeout") {
		raw, _ := flags.GetString("ack-timeout")
		d, err := parseTimeout(raw)
		if err != nil {
			return fmt.Errorf("--ack-timeout: %w", err)
		}
		cfg.AckTimeout = d
	}
	if flags.Changed("log-level") {
		raw, _ := flags.GetString("log-level")
		lvl, ok := parseLevel(raw)
		if !ok {
			return fmt.Errorf("unknown --log-level %q", raw)
		}
		cfg.LogLevel = lvl
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	return nil
}

// parseTimeout accepts a Go duration ("500ms") or a number of seconds ("1.5").
func parseTimeout(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if d, err := time.ParseDuration(raw); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("invalid timeout %q", raw)
		}
		return d, nil
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("invalid timeout %q", raw)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func newLogger(out io.Writer, level zerolog.Level) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).Level(level).With().Timestamp().Str("app", "lighthub").Logger()
}

func (c appConfig) serial() cmdmessenger.SerialConfig {
	return cmdmessenger.SerialConfig{
		Port:        c.Port,
		BaudRate:    c.Baud,
		ReadTimeout: c.ReadTimeout,
	}
}
