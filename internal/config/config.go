package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults for the dictionary store directories.
const (
	DefaultDictionaryDir = "/etc/phidgets/dictionary.d"
	DefaultDatabaseDir   = "/var/phidgets/dictionary.d"
	DefaultSyncInterval  = 5 * time.Second
)

// Config holds all server settings.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	WWW        WWWConfig        `toml:"www"`
	Dictionary DictionaryConfig `toml:"dictionary"`
	Logging    LoggingConfig    `toml:"logging"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Host           string        `toml:"host"`
	Port           int           `toml:"port"`
	ServerHost     string        `toml:"serverhost"` // host used in redirect Location headers
	Name           string        `toml:"name"`       // mDNS instance name
	MaxConnections int           `toml:"max_connections"`
	TLS            TLSConfig     `toml:"tls"`
	Publish        PublishConfig `toml:"publish"`
}

// TLSConfig enables TLS on the listener.
type TLSConfig struct {
	Enabled bool   `toml:"enabled"`
	Cert    string `toml:"cert"`
	Key     string `toml:"key"`
}

// PublishConfig controls mDNS publication.
type PublishConfig struct {
	Enabled bool `toml:"enabled"`
}

// WWWConfig holds static file and websocket settings.
type WWWConfig struct {
	DocRoot         string            `toml:"docroot"`
	CacheCtrl       string            `toml:"cachectrl"` // "" or "nocache"
	AccessLog       string            `toml:"access_log"`
	PhidgetsEnabled bool              `toml:"phidgets_enabled"`
	MimeTypes       map[string]string `toml:"mimetypes"`
}

// DictionaryConfig holds dictionary store settings.
type DictionaryConfig struct {
	Directory         string       `toml:"directory"`
	DatabaseDirectory string       `toml:"database_directory"`
	Sync              Duration     `toml:"sync"`
	WebAPI            WebAPIConfig `toml:"webapi"`
}

// WebAPIConfig gates the dictionary web API and each of its operations.
type WebAPIConfig struct {
	Enabled          bool `toml:"enabled"`
	AddDictionary    bool `toml:"add_dictionary"`
	ChangeDictionary bool `toml:"change_dictionary"`
	RemoveDictionary bool `toml:"remove_dictionary"`
	AddKey           bool `toml:"add_key"`
	RemoveKey        bool `toml:"remove_key"`
	ChangeKey        bool `toml:"change_key"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `toml:"level"` // "debug", "info", "warn", "error"
}

// Duration is a time.Duration that can be unmarshaled from TOML strings.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// MarshalText implements encoding.TextMarshaler for Duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// DefaultMimeTypes maps file extensions (without dot) to content types.
func DefaultMimeTypes() map[string]string {
	return map[string]string{
		"html": "text/html",
		"htm":  "text/html",
		"css":  "text/css",
		"js":   "application/javascript",
		"json": "application/json",
		"csv":  "text/csv",
		"txt":  "text/plain",
		"png":  "image/png",
		"jpg":  "image/jpeg",
		"jpeg": "image/jpeg",
		"gif":  "image/gif",
		"svg":  "image/svg+xml",
		"ico":  "image/x-icon",
	}
}

// DefaultConfig returns a Config with all default values.
func DefaultConfig() *Config {
	name := "Dictionary Server"
	if h, err := os.Hostname(); err == nil && h != "" {
		name = h + " " + name
	}
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			Name:           name,
			MaxConnections: 32,
		},
		WWW: WWWConfig{
			PhidgetsEnabled: true,
			MimeTypes:       DefaultMimeTypes(),
		},
		Dictionary: DictionaryConfig{
			Directory:         DefaultDictionaryDir,
			DatabaseDirectory: DefaultDatabaseDir,
			Sync:              Duration(DefaultSyncInterval),
			WebAPI: WebAPIConfig{
				AddDictionary:    true,
				ChangeDictionary: true,
				AddKey:           true,
				ChangeKey:        true,
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a TOML file over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode parses TOML text over the defaults.
func Decode(text string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.Decode(text, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("DICTSERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("DICTSERVER_DOCROOT"); v != "" {
		c.WWW.DocRoot = v
	}
	if v := os.Getenv("DICTSERVER_DICTIONARY_DIR"); v != "" {
		c.Dictionary.Directory = v
	}
	if v := os.Getenv("DICTSERVER_DATABASE_DIR"); v != "" {
		c.Dictionary.DatabaseDirectory = v
	}
	if v := os.Getenv("DICTSERVER_WEBAPI"); v != "" {
		c.Dictionary.WebAPI.Enabled = v == "true" || v == "1"
	}
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Dictionary.Sync.Duration() <= 0 {
		return fmt.Errorf("dictionary sync interval must be positive, got %s", c.Dictionary.Sync)
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.Cert == "" || c.Server.TLS.Key == "") {
		return fmt.Errorf("tls requires both cert and key")
	}
	switch c.WWW.CacheCtrl {
	case "", "nocache":
	default:
		return fmt.Errorf("unknown cachectrl %q", c.WWW.CacheCtrl)
	}
	return nil
}

// MimeType returns the content type for a file name, by extension.
func (c *WWWConfig) MimeType(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i >= 0 && c.MimeTypes != nil {
		if mt, ok := c.MimeTypes[strings.ToLower(name[i+1:])]; ok {
			return mt
		}
	}
	return "application/octet-stream"
}
