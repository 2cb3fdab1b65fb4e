package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
)

const (
	HostModeRelay   = "relay"
	HostModeFixture = "fixture"
)

// Config represents the bridge configuration
type Config struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description"`
	Server      Server    `json:"server"`
	Host        Host      `json:"host"`
	Companion   Companion `json:"companion"`
	Logging     Logging   `json:"logging"`
}

// Server represents the bridge HTTP listener
type Server struct {
	Host  string `json:"host"`
	Port  int    `json:"port"`
	Debug bool   `json:"debug"`
}

// Host selects how scripts reach the host application.
//
// In relay mode scripts go through the CEP panel's event stream. In fixture
// mode they run against a composition loaded from FixturePath.
type Host struct {
	Mode               string `json:"mode"`
	FixturePath        string `json:"fixture_path"`
	WatchFixture       bool   `json:"watch_fixture"`
	ScriptPath         string `json:"script_path"`
	EvalTimeoutSeconds int    `json:"eval_timeout_seconds"`
}

// Companion configures the supervised agent protocol server.
type Companion struct {
	Enabled     bool   `json:"enabled"`
	Interpreter string `json:"interpreter"`
	Module      string `json:"module"`
	Port        int    `json:"port"`
	BridgeURL   string `json:"bridge_url"`
	ProjectDir  string `json:"project_dir"`
}

// Logging represents logging configuration
type Logging struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Path   string `json:"path"`
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return &Config{
		Name:        "ae-bridge-go",
		Version:     "0.1.0",
		Description: "HTTP bridge between After Effects scripting and agent tooling",
		Server: Server{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Host: Host{
			Mode: HostModeRelay,
		},
		Companion: Companion{
			Enabled: true,
			Module:  "server.fastmcp_server",
			Port:    8000,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
			Path:   filepath.Join(home, ".ae-bridge", "logs", "bridge.log"),
		},
	}
}

// LoadConfig loads the configuration from a file. A missing file leaves the
// defaults in place; comments and trailing commas are accepted.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		log.Printf("config file %s not found, using defaults", path)
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	// Override with environment variables (highest priority).
	applyEnvOverrides(cfg)
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if portStr := os.Getenv("AE_BRIDGE_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.Server.Port = port
		} else {
			log.Printf("warning: ignoring invalid AE_BRIDGE_PORT value %q: %v", portStr, err)
		}
	}

	if host := os.Getenv("AE_BRIDGE_HOST"); host != "" {
		cfg.Server.Host = host
	}

	if debug := os.Getenv("AE_BRIDGE_DEBUG"); debug != "" {
		if parsed, err := strconv.ParseBool(debug); err == nil {
			cfg.Server.Debug = parsed
		} else {
			log.Printf("warning: ignoring invalid AE_BRIDGE_DEBUG value %q: %v", debug, err)
		}
	}

	if logLevel := os.Getenv("AE_BRIDGE_LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if logPath := os.Getenv("AE_BRIDGE_LOG_PATH"); logPath != "" {
		cfg.Logging.Path = logPath
	}

	if fixture := os.Getenv("AE_BRIDGE_FIXTURE"); fixture != "" {
		cfg.Host.Mode = HostModeFixture
		cfg.Host.FixturePath = fixture
	}

	if enabled := os.Getenv("AE_MCP_ENABLED"); enabled != "" {
		if parsed, err := strconv.ParseBool(enabled); err == nil {
			cfg.Companion.Enabled = parsed
		} else {
			log.Printf("warning: ignoring invalid AE_MCP_ENABLED value %q: %v", enabled, err)
		}
	}

	if portStr := os.Getenv("AE_MCP_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.Companion.Port = port
		} else {
			log.Printf("warning: ignoring invalid AE_MCP_PORT value %q: %v", portStr, err)
		}
	}

	if bridgeURL := os.Getenv("AE_BRIDGE_URL"); bridgeURL != "" {
		cfg.Companion.BridgeURL = bridgeURL
	}

	if projectDir := os.Getenv("AE_MCP_PROJECT_DIR"); projectDir != "" {
		cfg.Companion.ProjectDir = projectDir
	}
}

// Normalize canonicalizes config values so downstream validation and runtime
// logic operate on stable representations.
func (c *Config) Normalize() {
	c.Server.Host = strings.TrimSpace(c.Server.Host)
	c.Host.Mode = strings.ToLower(strings.TrimSpace(c.Host.Mode))
	if c.Host.Mode == "" {
		c.Host.Mode = HostModeRelay
	}
	c.Host.FixturePath = strings.TrimSpace(c.Host.FixturePath)
	c.Host.ScriptPath = strings.TrimSpace(c.Host.ScriptPath)
	c.Companion.Interpreter = strings.TrimSpace(c.Companion.Interpreter)
	c.Companion.Module = strings.TrimSpace(c.Companion.Module)
	c.Companion.BridgeURL = strings.TrimRight(strings.TrimSpace(c.Companion.BridgeURL), "/")
	c.Companion.ProjectDir = strings.TrimSpace(c.Companion.ProjectDir)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Path = strings.TrimSpace(c.Logging.Path)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid port number")
	}

	if c.Server.Host == "" {
		return errors.New("host cannot be empty")
	}

	switch c.Host.Mode {
	case HostModeRelay:
	case HostModeFixture:
		if c.Host.FixturePath == "" {
			return errors.New("fixture mode requires host.fixture_path")
		}
	default:
		return fmt.Errorf("invalid host mode %q: expected one of [relay fixture]", c.Host.Mode)
	}

	if c.Host.EvalTimeoutSeconds < 0 {
		return errors.New("host.eval_timeout_seconds cannot be negative")
	}

	if c.Companion.Enabled && (c.Companion.Port <= 0 || c.Companion.Port > 65535) {
		return errors.New("invalid companion port number")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return errors.New("invalid log level")
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return errors.New("invalid log format")
	}

	if c.Logging.Path == "" {
		return errors.New("log path cannot be empty")
	}

	return nil
}

// Address is the bridge listen address.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// BridgeURL is the URL handed to the companion: the configured override, or
// the bridge's own loopback address.
func (c *Config) BridgeURL() string {
	if c.Companion.BridgeURL != "" {
		return c.Companion.BridgeURL
	}
	return "http://" + c.Address()
}

// EvalTimeout bounds one relayed host call; zero means no limit.
func (c *Config) EvalTimeout() time.Duration {
	return time.Duration(c.Host.EvalTimeoutSeconds) * time.Second
}

// ResolveConfigPath returns the path that should be used for configuration.
func ResolveConfigPath() (string, error) {
	if path := strings.TrimSpace(os.Getenv("AE_BRIDGE_CONFIG_PATH")); path != "" {
		return path, nil
	}

	if _, err := os.Stat("config/bridge_config.json"); err == nil {
		return "config/bridge_config.json", nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, ".ae-bridge", "config", "bridge_config.json"), nil
}
