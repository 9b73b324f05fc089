// Package config handles configuration for geminichat.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. GEMINICHAT_ENDPOINT
const EnvPrefix = "GEMINICHAT"

// DefaultEndpoint is the relay server address used when none is configured
const DefaultEndpoint = "http://127.0.0.1:5000"

// MarkdownConfig configures markdown rendering options
type MarkdownConfig struct {
	Style            string `json:"style" mapstructure:"style"`                           // "dark", "light", "dracula", "notty", "ascii" or path to JSON theme
	EnableEmoji      bool   `json:"enable_emoji" mapstructure:"enable_emoji"`             // Convert :emoji: to unicode
	PreserveNewLines bool   `json:"preserve_newlines" mapstructure:"preserve_newlines"`   // Preserve original line breaks
	TableWrap        bool   `json:"table_wrap" mapstructure:"table_wrap"`                 // Enable word wrap in table cells
	InlineTableLinks bool   `json:"inline_table_links" mapstructure:"inline_table_links"` // Render links inline in tables
}

// Config represents the user configuration
type Config struct {
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	Namespace string `json:"namespace" mapstructure:"namespace"`
	// Proxy is an http(s) or socks5 URL used to reach the endpoint.
	Proxy string `json:"proxy,omitempty" mapstructure:"proxy"`
	// DialTimeout bounds the WebSocket and Socket.IO handshake, in seconds.
	DialTimeout int `json:"dial_timeout" mapstructure:"dial_timeout"`
	// ResponseTimeout bounds how long a one-shot query waits for the final
	// model message, in seconds. 0 waits forever.
	ResponseTimeout int `json:"response_timeout" mapstructure:"response_timeout"`
	// SendRate caps outbound messages per second. 0 disables the limit.
	SendRate float64 `json:"send_rate" mapstructure:"send_rate"`
	// QueueSize bounds the outbound and inbound message buffers.
	QueueSize       int            `json:"queue_size" mapstructure:"queue_size"`
	Verbose         bool           `json:"verbose" mapstructure:"verbose"`
	CopyToClipboard bool           `json:"copy_to_clipboard" mapstructure:"copy_to_clipboard"`
	TUITheme        string         `json:"tui_theme,omitempty" mapstructure:"tui_theme"`
	Markdown        MarkdownConfig `json:"markdown" mapstructure:"markdown"`
}

// DefaultMarkdownConfig returns the default markdown configuration
func DefaultMarkdownConfig() MarkdownConfig {
	return MarkdownConfig{
		Style:            "dark",
		EnableEmoji:      true,
		PreserveNewLines: true,
		TableWrap:        true,
		InlineTableLinks: false,
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Endpoint:        DefaultEndpoint,
		Namespace:       "/",
		DialTimeout:     10,
		ResponseTimeout: 300, // 5 minutes
		SendRate:        0,
		QueueSize:       64,
		Verbose:         false,
		CopyToClipboard: false,
		TUITheme:        "tokyonight",
		Markdown:        DefaultMarkdownConfig(),
	}
}

// DialTimeoutDuration returns DialTimeout as a time.Duration
func (c Config) DialTimeoutDuration() time.Duration {
	return time.Duration(c.DialTimeout) * time.Second
}

// ResponseTimeoutDuration returns ResponseTimeout as a time.Duration
func (c Config) ResponseTimeoutDuration() time.Duration {
	return time.Duration(c.ResponseTimeout) * time.Second
}

// Validate checks values that would otherwise fail later at dial time
func (c Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", c.Endpoint, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("invalid endpoint %q: scheme must be http, https, ws or wss", c.Endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid endpoint %q: missing host", c.Endpoint)
	}
	if c.Namespace != "" && !strings.HasPrefix(c.Namespace, "/") {
		return fmt.Errorf("invalid namespace %q: must start with /", c.Namespace)
	}
	if c.DialTimeout < 0 || c.ResponseTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.SendRate < 0 {
		return fmt.Errorf("send_rate must not be negative")
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue_size must not be negative")
	}
	return nil
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".geminichat")
	return configDir, nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist
func EnsureConfigDir() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.json"), nil
}

// newViper returns a viper instance seeded with defaults and bound to the
// GEMINICHAT_ environment. Nested keys use underscores: GEMINICHAT_MARKDOWN_STYLE.
func newViper() *viper.Viper {
	v := viper.New()
	def := DefaultConfig()

	v.SetDefault("endpoint", def.Endpoint)
	v.SetDefault("namespace", def.Namespace)
	v.SetDefault("proxy", def.Proxy)
	v.SetDefault("dial_timeout", def.DialTimeout)
	v.SetDefault("response_timeout", def.ResponseTimeout)
	v.SetDefault("send_rate", def.SendRate)
	v.SetDefault("queue_size", def.QueueSize)
	v.SetDefault("verbose", def.Verbose)
	v.SetDefault("copy_to_clipboard", def.CopyToClipboard)
	v.SetDefault("tui_theme", def.TUITheme)
	v.SetDefault("markdown.style", def.Markdown.Style)
	v.SetDefault("markdown.enable_emoji", def.Markdown.EnableEmoji)
	v.SetDefault("markdown.preserve_newlines", def.Markdown.PreserveNewLines)
	v.SetDefault("markdown.table_wrap", def.Markdown.TableWrap)
	v.SetDefault("markdown.inline_table_links", def.Markdown.InlineTableLinks)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig loads the configuration from disk, applying environment
// overrides. A missing file yields the defaults.
func LoadConfig() (Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}
	return LoadConfigFile(configPath)
}

// LoadConfigFile loads the configuration from path
func LoadConfigFile(path string) (Config, error) {
	v := newViper()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return DefaultConfig(), fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to disk
func SaveConfig(cfg Config) error {
	configDir, err := EnsureConfigDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(configDir, "config.json")

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
