package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/lc/rbl/internal/dnsbl"
	"github.com/lc/rbl/internal/filesys"
	"github.com/lc/rbl/internal/log"
)

var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNoConfig is returned when the configuration file is not found.
	ErrNoConfig = errors.New("configuration file not found")
)

const (
	// DefaultSocketPath is the default path for the Unix socket.
	DefaultSocketPath = "/var/run/rbld.socket"
	// DefaultConfigPath is the default path of the configuration file, relative to the home directory.
	DefaultConfigPath = ".rbl/config.yaml"
	// DefaultTimeout is the default reply timeout in seconds.
	DefaultTimeout = 10
)

// Config holds the application configuration.
type Config struct {
	Socket SocketConfig  `yaml:"socket"`
	Lookup LookupConfig  `yaml:"lookup"`
	Lists  []dnsbl.Check `yaml:"lists,omitempty"`
}

// SocketConfig holds socket-related configuration.
type SocketConfig struct {
	Path string `yaml:"path"`
}

// LookupConfig controls how lookups are performed.
type LookupConfig struct {
	// Timeout is the reply timeout in whole seconds.
	Timeout   int      `yaml:"timeout"`
	EarlyExit bool     `yaml:"early_exit"`
	Resolvers []string `yaml:"resolvers,omitempty"`
}

// Provider defines the interface for loading configuration.
type Provider interface {
	Load() (*Config, error)
	Save(*Config) error
}

// FSProvider implements Provider using the local filesystem.
type FSProvider struct {
	fs   filesys.ReadWriteFS
	path string
}

var _ Provider = (*FSProvider)(nil)

// New creates a provider reading DefaultConfigPath under the user's home
// directory, or under the current directory if the home directory is unknown.
func New() Provider {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Warn("could not determine home directory", "error", err)
		home = ""
	}
	return NewWithPath(filesys.OS(), filepath.Join(home, DefaultConfigPath))
}

// NewWithPath creates a provider reading path from fs.
func NewWithPath(fs filesys.ReadWriteFS, path string) Provider {
	return &FSProvider{
		fs:   fs,
		path: path,
	}
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Socket: SocketConfig{
			Path: DefaultSocketPath,
		},
		Lookup: LookupConfig{
			Timeout: DefaultTimeout,
		},
	}
}

// Load reads, decodes and validates the configuration. A missing file
// yields Default.
func (p *FSProvider) Load() (*Config, error) {
	cfg, err := p.loadAndParse()
	if err != nil {
		if errors.Is(err, ErrNoConfig) {
			log.Debug("no configuration file, using defaults", "path", p.path)
			return Default(), nil
		}
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return cfg, nil
}

// Save writes cfg to the provider's path, creating its directory if needed.
func (p *FSProvider) Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := p.ensureConfigDir(); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := p.fs.WriteFile(p.path, b, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var err error
	if strings.TrimSpace(c.Socket.Path) == "" {
		err = multierr.Append(err, errors.New("socket path cannot be empty"))
	}
	if c.Lookup.Timeout < 1 {
		err = multierr.Append(err, fmt.Errorf("lookup timeout must be at least 1 second, got %d", c.Lookup.Timeout))
	}
	for i, r := range c.Lookup.Resolvers {
		if strings.TrimSpace(r) == "" {
			err = multierr.Append(err, fmt.Errorf("resolver %d is empty", i))
		}
	}
	for i, check := range c.Lists {
		if cerr := check.Validate(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("list %d: %w", i, cerr))
		}
	}
	return err
}

func (p *FSProvider) ensureConfigDir() error {
	dir := filepath.Dir(p.path)
	if _, err := p.fs.Stat(dir); os.IsNotExist(err) {
		if err := p.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	return nil
}

func (p *FSProvider) loadAndParse() (*Config, error) {
	f, err := p.fs.Open(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoConfig
		}
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return nil, fmt.Errorf("%w: decoding config file: %v", ErrInvalidConfig, err)
	}

	return cfg, nil
}
