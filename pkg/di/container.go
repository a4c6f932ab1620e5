// Package di provides dependency injection container
package di

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ssargent/recordkit/pkg/api" //nolint:depguard
	"github.com/ssargent/recordkit/pkg/archive"
	"github.com/ssargent/recordkit/pkg/codec"
	"github.com/ssargent/recordkit/pkg/config"
	"github.com/ssargent/recordkit/pkg/datatype"
	"github.com/ssargent/recordkit/pkg/layout"
	"github.com/ssargent/recordkit/pkg/logger"
	"github.com/ssargent/recordkit/pkg/replace"
)

// Container holds all the dependencies for the application. Services are
// built lazily from the configuration on first use.
type Container struct {
	cfg       *config.Config
	logOutput io.Writer

	mu            sync.Mutex
	log           logger.Logger
	replacer      *replace.Registry
	registry      *datatype.Registry
	cache         *layout.Cache
	metrics       *api.Metrics
	formatters    *codec.Factory
	archive       *archive.Archive
	serverFactory api.ServerFactory
}

// NewContainer creates a new dependency injection container. A nil cfg
// uses config.DefaultConfig.
func NewContainer(cfg *config.Config) *Container {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Container{
		cfg:           cfg,
		logOutput:     os.Stderr,
		serverFactory: api.NewServerFactory(),
	}
}

// Config returns the configuration the container was built with
func (c *Container) Config() *config.Config { return c.cfg }

// SetLogOutput redirects log output. It must be called before Logger.
func (c *Container) SetLogOutput(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logOutput = w
	c.log = nil
}

// Logger returns the logger configured by logging.level and logging.format
func (c *Container) Logger() logger.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggerLocked()
}

func (c *Container) loggerLocked() logger.Logger {
	if c.log == nil {
		c.log = logger.FromConfig(c.logOutput, c.cfg.Logging.Level, c.cfg.Logging.Format)
	}
	return c.log
}

// Replacer returns the character replacement registry
func (c *Container) Replacer() (*replace.Registry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replacerLocked()
}

func (c *Container) replacerLocked() (*replace.Registry, error) {
	if c.replacer == nil {
		reg, err := replace.NewRegistry(c.cfg.Replacement.Types, c.loggerLocked().With("component", "replace"))
		if err != nil {
			return nil, fmt.Errorf("failed to build replacement types: %w", err)
		}
		c.replacer = reg
	}
	return c.replacer, nil
}

// Formatters returns the codec factory. Its layout cache and data-type
// registry are shared by every formatter it creates.
func (c *Container) Formatters() (*codec.Factory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.formatters != nil {
		return c.formatters, nil
	}
	rep, err := c.replacerLocked()
	if err != nil {
		return nil, err
	}
	if c.registry == nil {
		c.registry = datatype.NewRegistry(rep)
	}
	if c.cache == nil {
		c.cache = layout.NewCache(c.cfg.Layout.Cache,
			layout.WithRegistry(c.registry),
			layout.WithAllowedRecordSeparators(c.cfg.Layout.AllowedRecordSeparators),
		)
	}
	var observer codec.Observer
	if c.metrics != nil {
		observer = c.metrics
	}
	c.formatters = codec.NewFactory(c.cache, c.registry, c.loggerLocked().With("component", "codec"), observer)
	return c.formatters, nil
}

// EnableMetrics creates the metrics before the codec factory so formatters
// report to them
func (c *Container) EnableMetrics() *api.Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.metrics == nil {
		c.metrics = api.NewMetrics()
	}
	return c.metrics
}

// Archive opens the record archive under archive.data_dir
func (c *Container) Archive() (*archive.Archive, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.archive == nil {
		if c.cfg.Archive.DataDir == "" {
			return nil, errors.New("archive.data_dir is not configured")
		}
		a, err := archive.Open(c.cfg.Archive.DataDir,
			archive.WithLogger(c.loggerLocked().With("component", "archive")),
			archive.WithSync(c.cfg.Archive.Sync),
		)
		if err != nil {
			return nil, err
		}
		c.archive = a
	}
	return c.archive, nil
}

// ServerDependencies assembles the services the API handlers use. With
// withArchive false the archive endpoints answer 404.
func (c *Container) ServerDependencies(withArchive bool) (api.Dependencies, error) {
	metrics := c.EnableMetrics()
	formatters, err := c.Formatters()
	if err != nil {
		return api.Dependencies{}, err
	}
	rep, err := c.Replacer()
	if err != nil {
		return api.Dependencies{}, err
	}
	deps := api.Dependencies{
		Formatters: formatters,
		Replacer:   rep,
		Metrics:    metrics,
		Logger:     c.Logger().With("component", "api"),
	}
	if withArchive {
		a, err := c.Archive()
		if err != nil {
			return api.Dependencies{}, err
		}
		deps.Archive = a
	}
	return deps, nil
}

// ServerConfig maps the server and layout settings onto the API server
func (c *Container) ServerConfig() api.ServerConfig {
	return api.ServerConfig{
		Port:        c.cfg.Server.Port,
		Bind:        c.cfg.Server.Bind,
		APIKey:      c.cfg.Server.APIKey,
		CORSOrigins: c.cfg.Server.CORSOrigins,
		LayoutDir:   c.cfg.Layout.Dir,
	}
}

// GetServerFactory returns the server factory
func (c *Container) GetServerFactory() api.ServerFactory {
	return c.serverFactory
}

// SetServerFactory allows overriding the server factory (for testing)
func (c *Container) SetServerFactory(factory api.ServerFactory) {
	c.serverFactory = factory
}

// Close releases the archive if it was opened
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.archive == nil {
		return nil
	}
	err := c.archive.Close()
	c.archive = nil
	return err
}
