package core

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gnucleus/gnucleus-mcp/internal/gnucleus"
)

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"

	DefaultHTTPListen  = "127.0.0.1:8090"
	DefaultToolTimeout = 300 * time.Second
	DefaultLogLevel    = "info"
	DefaultEnvFile     = ".env"
)

// Config holds the application configuration
type Config struct {
	Host        string        `yaml:"host"`
	APIKey      string        `yaml:"api_key"`
	OrgID       string        `yaml:"org_id"`
	Port        int           `yaml:"port"`
	Scheme      string        `yaml:"scheme"`
	Transport   string        `yaml:"transport"`
	HTTPListen  string        `yaml:"http_listen"`
	ToolTimeout time.Duration `yaml:"tool_timeout"`
	LogLevel    string        `yaml:"log_level"`
}

func DefaultConfig() *Config {
	return &Config{
		Port:        gnucleus.DefaultPort,
		Scheme:      gnucleus.DefaultScheme,
		Transport:   TransportStdio,
		HTTPListen:  DefaultHTTPListen,
		ToolTimeout: DefaultToolTimeout,
		LogLevel:    DefaultLogLevel,
	}
}

// LoadOptions selects the configuration sources. Zero values mean: no YAML
// file, ".env" in the working directory, and the process environment.
type LoadOptions struct {
	ConfigFile string
	EnvFile    string
	LookupEnv  func(key string) (string, bool)
}

// LoadConfig layers defaults, the optional YAML file, the .env file and the
// environment, in that order. Variables already present in the environment
// win over .env entries. Missing credentials are not an error here; the API
// client reports them per call.
func LoadConfig(opts LoadOptions) (*Config, error) {
	cfg := DefaultConfig()

	if opts.ConfigFile != "" {
		data, err := os.ReadFile(opts.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	dotenv, err := godotenv.Read(envFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read env file %s: %w", envFile, err)
		}
		dotenv = map[string]string{}
	}

	lookupEnv := opts.LookupEnv
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	lookup := func(key string) string {
		if v, ok := lookupEnv(key); ok && v != "" {
			return v
		}
		return dotenv[key]
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) string) error {
	if v := lookup("GNUCLEUS_HOST"); v != "" {
		c.Host = v
	}
	if v := lookup("GNUCLEUS_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := lookup("GNUCLEUS_ORG_ID"); v != "" {
		c.OrgID = v
	}
	if v := lookup("GNUCLEUS_SCHEME"); v != "" {
		c.Scheme = v
	}
	if v := lookup("GNUCLEUS_MCP_TRANSPORT"); v != "" {
		c.Transport = v
	}
	if v := lookup("GNUCLEUS_HTTP_LISTEN"); v != "" {
		c.HTTPListen = v
	}
	if v := lookup("GNUCLEUS_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if raw := strings.TrimSpace(lookup("GNUCLEUS_PORT")); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid GNUCLEUS_PORT %q: %w", raw, err)
		}
		c.Port = port
	}
	if raw := strings.TrimSpace(lookup("GNUCLEUS_TOOL_TIMEOUT_SECONDS")); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			return fmt.Errorf("invalid GNUCLEUS_TOOL_TIMEOUT_SECONDS %q", raw)
		}
		c.ToolTimeout = time.Duration(secs) * time.Second
	}
	return nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	switch c.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("unknown transport %q (valid: stdio, http)", c.Transport)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range 1..65535", c.Port)
	}
	if c.Scheme != "http" && c.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", c.Scheme)
	}
	if c.ToolTimeout <= 0 {
		return fmt.Errorf("tool timeout must be positive, got %s", c.ToolTimeout)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Upstream returns the API client settings.
func (c *Config) Upstream() gnucleus.Config {
	return gnucleus.Config{
		Host:   c.Host,
		APIKey: c.APIKey,
		OrgID:  c.OrgID,
		Port:   c.Port,
		Scheme: c.Scheme,
	}
}

// MaskedAPIKey shows only the ends of the key.
func (c *Config) MaskedAPIKey() string {
	switch {
	case c.APIKey == "":
		return "not set"
	case len(c.APIKey) > 8:
		return c.APIKey[:4] + "..." + c.APIKey[len(c.APIKey)-4:]
	default:
		return "set"
	}
}

func ParseLogLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", raw, err)
	}
	return level, nil
}

// NewLogger returns the JSON logger used by every component. Callers pass
// stderr: stdout belongs to the stdio transport.
func NewLogger(w io.Writer, level string) *slog.Logger {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
