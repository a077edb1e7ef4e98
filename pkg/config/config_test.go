package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/WebFirstLanguage/swarmkit/pkg/cac"
	"github.com/WebFirstLanguage/swarmkit/pkg/redundancy"
	"github.com/WebFirstLanguage/swarmkit/pkg/storage"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config invalid: %v", err)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("Expected memory backend, got %s", cfg.Storage.Backend)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SWARMKIT_TEST_ROOT", dir)

	path := filepath.Join(dir, "swarmkit.yaml")
	content := `
storage:
  backend: badger
  path: ${SWARMKIT_TEST_ROOT}/chunks
  cache_size: 16
feed:
  lookup_timeout: 5s
postage:
  batch_depth: 20
redundancy: strong
log:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Storage.Path != filepath.Join(dir, "chunks") {
		t.Errorf("Path not expanded: %s", cfg.Storage.Path)
	}
	if cfg.Storage.CacheSize != 16 || cfg.Postage.BatchDepth != 20 {
		t.Errorf("Unexpected values: %+v", cfg)
	}
	if cfg.Redundancy != redundancy.STRONG {
		t.Errorf("Expected STRONG, got %s", cfg.Redundancy)
	}
	if opts := cfg.FileOptions(nil); opts.Level != redundancy.STRONG {
		t.Errorf("File options carry level %s", opts.Level)
	}
	// Unset values keep their defaults
	if cfg.Feed.SequenceProbeLimit != DefaultConfig().Feed.SequenceProbeLimit {
		t.Errorf("Default lost: sequence_probe_limit=%d", cfg.Feed.SequenceProbeLimit)
	}

	feedCfg, err := cfg.FeedOptions(nil)
	if err != nil {
		t.Fatalf("FeedOptions failed: %v", err)
	}
	if feedCfg.LookupTimeout != 5*time.Second {
		t.Errorf("Expected 5s lookup timeout, got %s", feedCfg.LookupTimeout)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("Expected debug level, got %s", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("Expected JSON formatter, got %T", logger.Formatter)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{"backend", "storage: {backend: s3}", "storage.backend"},
		{"cache size", "storage: {cache_size: -1}", "storage.cache_size"},
		{"timeout", "feed: {lookup_timeout: soon}", "feed.lookup_timeout"},
		{"negative timeout", "feed: {lookup_timeout: -1s}", "feed.lookup_timeout"},
		{"probe limit", "feed: {sequence_probe_limit: 0}", "feed.sequence_probe_limit"},
		{"batch depth", "postage: {batch_depth: 16}", "postage.batch_depth"},
		{"log level", "log: {level: chatty}", "log.level"},
		{"log format", "log: {format: xml}", "log.format"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("Error %q does not mention %s", err, tc.errMsg)
			}
		})
	}

	if _, err := Parse([]byte("redundancy: extreme")); err == nil {
		t.Error("Expected error for unknown redundancy level")
	}

	cfg, err := Parse([]byte("feed: {lookup_timeout: \"0\"}"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if opts, _ := cfg.FeedOptions(nil); opts.LookupTimeout != 0 {
		t.Errorf("Expected no timeout, got %s", opts.LookupTimeout)
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	ch, err := cac.New([]byte("configured"))
	if err != nil {
		t.Fatalf("cac.New failed: %v", err)
	}

	testCases := []struct {
		name   string
		yaml   string
		cached bool
	}{
		{"memory uncached", "storage: {backend: memory, cache_size: 0}", false},
		{"memory cached", "storage: {backend: memory, cache_size: 8}", true},
		{"badger in memory", "storage: {backend: badger, in_memory: true, cache_size: 8}", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tc.yaml))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}

			store, err := cfg.OpenStore(nil, prometheus.NewRegistry())
			if err != nil {
				t.Fatalf("OpenStore failed: %v", err)
			}
			defer store.Close()

			if _, ok := store.(*storage.CachedStore); ok != tc.cached {
				t.Errorf("Expected cached=%v, got %T", tc.cached, store)
			}

			if err := store.Put(ctx, ch); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			got, err := store.Get(ctx, ch.Address())
			if err != nil || !got.Equal(ch) {
				t.Errorf("Get failed: %v", err)
			}
		})
	}
}
