// Package config loads swarmkit client configuration from a YAML file and
// builds the configured components from it.
//
// A file only needs the values it changes; everything else keeps the
// defaults of DefaultConfig. Paths may reference environment variables as
// ${VAR}.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/WebFirstLanguage/swarmkit/pkg/constants"
	"github.com/WebFirstLanguage/swarmkit/pkg/feed"
	"github.com/WebFirstLanguage/swarmkit/pkg/file"
	"github.com/WebFirstLanguage/swarmkit/pkg/redundancy"
	"github.com/WebFirstLanguage/swarmkit/pkg/storage"
)

// Storage backends
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// Config is the client configuration
type Config struct {
	// Storage configures the local chunk store.
	Storage StorageConfig `yaml:"storage"`

	// Feed configures feed lookups.
	Feed FeedConfig `yaml:"feed"`

	// Postage configures stamp issuing.
	Postage PostageConfig `yaml:"postage"`

	// Redundancy is the level applied to uploads.
	// Values: none, medium, strong, insane, paranoid
	Redundancy redundancy.Level `yaml:"redundancy"`

	// Log configures the logger handed to every component.
	Log LogConfig `yaml:"log"`
}

// StorageConfig configures the chunk store
type StorageConfig struct {
	// Backend selects the store. Values: memory, badger
	Backend string `yaml:"backend"`

	// Path is the badger directory.
	// Default: ./chunks
	Path string `yaml:"path"`

	// InMemory runs badger without touching disk.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites fsyncs every badger write.
	SyncWrites bool `yaml:"sync_writes"`

	// CacheSize is the number of validated chunks kept in the read cache,
	// zero disables the cache.
	// Default: 4096
	CacheSize int `yaml:"cache_size"`
}

// FeedConfig configures feed lookups
type FeedConfig struct {
	// LookupTimeout bounds one lookup, "0" for none.
	// Default: 30s
	LookupTimeout string `yaml:"lookup_timeout"`

	// SequenceProbeLimit bounds the forward probes of a sequence lookup.
	SequenceProbeLimit uint64 `yaml:"sequence_probe_limit"`
}

// PostageConfig configures stamp issuing
type PostageConfig struct {
	// BatchDepth is the depth of the batch stamps are drawn from.
	// Default: 17
	BatchDepth uint8 `yaml:"batch_depth"`
}

// LogConfig configures logging
type LogConfig struct {
	// Level is a logrus level name.
	// Default: info
	Level string `yaml:"level"`

	// Format is text or json.
	// Default: text
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:   BackendMemory,
			Path:      constants.DefaultStorePath,
			CacheSize: constants.DefaultCacheSize,
		},
		Feed: FeedConfig{
			LookupTimeout:      constants.DefaultLookupTimeout.String(),
			SequenceProbeLimit: constants.DefaultSequenceProbeLimit,
		},
		Postage: PostageConfig{
			BatchDepth: constants.MinBatchDepth,
		},
		Redundancy: redundancy.NONE,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over the defaults and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Storage.Path = os.ExpandEnv(cfg.Storage.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendBadger:
		if c.Storage.Path == "" && !c.Storage.InMemory {
			errs = append(errs, errors.New("storage.path is required for the badger backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid storage.backend: %q", c.Storage.Backend))
	}
	if c.Storage.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("invalid storage.cache_size: %d", c.Storage.CacheSize))
	}

	if _, err := c.lookupTimeout(); err != nil {
		errs = append(errs, err)
	}
	if c.Feed.SequenceProbeLimit == 0 {
		errs = append(errs, errors.New("feed.sequence_probe_limit must be positive"))
	}

	if c.Postage.BatchDepth < constants.MinBatchDepth {
		errs = append(errs, fmt.Errorf("postage.batch_depth %d below minimum %d",
			c.Postage.BatchDepth, constants.MinBatchDepth))
	}

	if !c.Redundancy.Valid() {
		errs = append(errs, fmt.Errorf("invalid redundancy level %d", uint8(c.Redundancy)))
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("invalid log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("invalid log.format: %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

func (c *Config) lookupTimeout() (time.Duration, error) {
	if c.Feed.LookupTimeout == "" || c.Feed.LookupTimeout == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Feed.LookupTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid feed.lookup_timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid feed.lookup_timeout: %s is negative", d)
	}
	return d, nil
}

// NewLogger builds the logger described by the log section
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log.level: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)
	if c.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// FeedOptions returns the configuration for feed finders and updaters
func (c *Config) FeedOptions(logger *logrus.Logger) (*feed.Config, error) {
	timeout, err := c.lookupTimeout()
	if err != nil {
		return nil, err
	}
	return &feed.Config{
		LookupTimeout:      timeout,
		SequenceProbeLimit: c.Feed.SequenceProbeLimit,
		Logger:             logger,
	}, nil
}

// FileOptions returns the configuration for splitters and joiners
func (c *Config) FileOptions(logger *logrus.Logger) *file.Config {
	return &file.Config{
		Level:  c.Redundancy,
		Logger: logger,
	}
}

// OpenStore opens the configured chunk store. With a positive cache size
// the store is wrapped in a validating read cache whose metrics are
// registered with reg.
func (c *Config) OpenStore(logger *logrus.Logger, reg prometheus.Registerer) (storage.Store, error) {
	var (
		store storage.Store
		err   error
	)

	switch c.Storage.Backend {
	case BackendMemory:
		store = storage.NewMemStore()
	case BackendBadger:
		store, err = storage.NewBadgerStore(&storage.BadgerConfig{
			Path:       c.Storage.Path,
			InMemory:   c.Storage.InMemory,
			SyncWrites: c.Storage.SyncWrites,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("invalid storage.backend: %q", c.Storage.Backend)
	}

	if c.Storage.CacheSize == 0 {
		return store, nil
	}
	cached, err := storage.NewCachedStore(store, c.Storage.CacheSize, reg)
	if err != nil {
		store.Close()
		return nil, err
	}
	return cached, nil
}
