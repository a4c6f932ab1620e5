/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ssargent/recordkit/pkg/layout"
	"github.com/ssargent/recordkit/pkg/replace"
)

// LayoutExt is appended to layout names that carry no extension
const LayoutExt = ".fmt"

// Config represents the recordkit configuration
type Config struct {
	Layout      Layout      `yaml:"layout"`
	Replacement Replacement `yaml:"replacement"`
	Server      Server      `yaml:"server"`
	Archive     Archive     `yaml:"archive"`
	Logging     Logging     `yaml:"logging"`
}

// Layout configures where layout files live and how they are parsed
type Layout struct {
	Dir                     string   `yaml:"dir"`
	Cache                   bool     `yaml:"cache"`
	AllowedRecordSeparators []string `yaml:"allowed_record_separators"`
}

// Replacement lists the character replacement types
type Replacement struct {
	Types []replace.TypeConfig `yaml:"types"`
}

// Server contains the conversion service settings
type Server struct {
	Port        int      `yaml:"port"`
	Bind        string   `yaml:"bind"`
	APIKey      string   `yaml:"api_key"`
	CORSOrigins []string `yaml:"cors_origins,omitempty"`
}

// Archive contains the record archive settings
type Archive struct {
	DataDir string `yaml:"data_dir"`
	Sync    bool   `yaml:"sync"`
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Layout: Layout{
			Dir:                     "./layouts",
			Cache:                   true,
			AllowedRecordSeparators: append([]string(nil), layout.DefaultRecordSeparators...),
		},
		Server: Server{
			Port:   8080,
			Bind:   "127.0.0.1",
			APIKey: "auto",
		},
		Archive: Archive{
			DataDir: "./data/archive",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from the specified path. Relative layout,
// archive and mapping file paths are resolved against the config file's
// directory.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return config, nil
}

func (c *Config) resolvePaths(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Layout.Dir = abs(c.Layout.Dir)
	c.Archive.DataDir = abs(c.Archive.DataDir)
	for i := range c.Replacement.Types {
		c.Replacement.Types[i].File = abs(c.Replacement.Types[i].File)
	}
}

// Validate checks the values a service or command depends on
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format))
	}
	if len(c.Layout.AllowedRecordSeparators) == 0 {
		errs = append(errs, errors.New("layout.allowed_record_separators must not be empty"))
	}
	for _, sep := range c.Layout.AllowedRecordSeparators {
		if sep == "" {
			errs = append(errs, errors.New("layout.allowed_record_separators must not contain an empty separator"))
		}
	}
	seen := make(map[string]bool)
	for _, t := range c.Replacement.Types {
		if t.Name == "" {
			errs = append(errs, errors.New("replacement.types: name is required"))
			continue
		}
		if seen[t.Name] {
			errs = append(errs, fmt.Errorf("replacement.types: %q is declared twice", t.Name))
		}
		seen[t.Name] = true
	}
	return errors.Join(errs...)
}

// LayoutPath maps a layout name to a file under Layout.Dir
func (c *Config) LayoutPath(name string) (string, error) {
	return ResolveLayout(c.Layout.Dir, name)
}

// ResolveLayout maps a layout name to a file under dir. Names that would
// escape the directory are rejected.
func ResolveLayout(dir, name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid layout name %q", name)
	}
	if filepath.Ext(name) == "" {
		name += LayoutExt
	}
	return filepath.Join(dir, name), nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write with secure permissions (0600)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig writes a new configuration with a generated API key.
// layoutDir overrides the default layout directory when not empty.
func BootstrapConfig(configPath string, layoutDir string) (*Config, error) {
	config := DefaultConfig()
	if layoutDir != "" {
		config.Layout.Dir = layoutDir
	}

	apiKey, err := GenerateSecureKey(32) // 256 bits
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}
	config.Server.APIKey = apiKey

	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./recordkit.yaml"
	}

	// For Linux/macOS, use ~/.config/recordkit/config.yaml
	configDir := filepath.Join(homeDir, ".config", "recordkit")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
