package patterns

import (
	"log/slog"
	"os"
	"time"

	"github.com/patrickmn/go-cache"
)

type snapshot struct {
	cfg     *Config
	modTime time.Time
	size    int64
}

// Cache hands out read-only Config snapshots keyed by file path. A snapshot is
// reloaded when the file changes on disk or when its TTL runs out, so edits made
// between runs are picked up without restarting long-lived callers.
type Cache struct {
	store  *cache.Cache
	logger *slog.Logger
}

// NewCache creates a config cache.
func NewCache(ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		store:  cache.New(ttl, 2*ttl),
		logger: logger,
	}
}

// Get returns the compiled config for path, loading it when needed.
func (c *Cache) Get(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	if v, ok := c.store.Get(path); ok {
		snap := v.(snapshot)
		if snap.modTime.Equal(info.ModTime()) && snap.size == info.Size() {
			return snap.cfg, nil
		}
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.store.SetDefault(path, snapshot{cfg: cfg, modTime: info.ModTime(), size: info.Size()})

	c.logger.Info("pattern config loaded",
		slog.String("path", path),
		slog.Int("types", len(cfg.Types)),
		slog.Int("categories", len(cfg.Categories)),
		slog.Int("special_conditions", len(cfg.SpecialConditions)),
	)
	return cfg, nil
}

// Invalidate drops the cached snapshot for path.
func (c *Cache) Invalidate(path string) {
	c.store.Delete(path)
}
