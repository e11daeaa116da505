package scenarios

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/twitter/groupcache"

	"github.com/testfarm/testfarm/common/stats"
)

// Note: groupcache group names are process-global, so CacheConfig.Name must be
// unique per constructed cache.
type CacheConfig struct {
	Name        string
	MemoryBytes int64
}

// MakeCachedCatalog adds in-memory caching to the given catalog. Scenario
// definitions change rarely and runs fetch the same handful of ids over and
// over, so a read-through cache keeps repeat fetches off the remote service.
// Listing is not cached.
func MakeCachedCatalog(underlying Catalog, cfg *CacheConfig, stat stats.StatsReceiver) Catalog {
	stat = stat.Scope("scenarioCache")

	cache := groupcache.NewGroup(
		cfg.Name,
		cfg.MemoryBytes,
		groupcache.GetterFunc(func(ctx groupcache.Context, id string, dest groupcache.Sink) (*time.Time, error) {
			stat.Counter(stats.CatalogReadUnderlyingCounter).Inc(1)
			sc, err := underlying.Scenario(context.Background(), id)
			if err != nil {
				return nil, err
			}
			data, err := json.Marshal(sc)
			if err != nil {
				return nil, err
			}
			return nil, dest.SetBytes(data)
		}),
		groupcache.ContainerFunc(func(ctx groupcache.Context, id string) (bool, error) {
			return underlying.Has(context.Background(), id)
		}),
		groupcache.PutterFunc(func(ctx groupcache.Context, id string, data []byte, ttl *time.Time) error {
			return errors.New("scenario cache is read-through only")
		}),
	)

	return &cachedCatalog{underlying: underlying, cache: cache, stat: stat}
}

type cachedCatalog struct {
	underlying Catalog
	cache      *groupcache.Group
	stat       stats.StatsReceiver
}

func (c *cachedCatalog) Scenario(ctx context.Context, id string) (Scenario, error) {
	defer c.stat.Latency(stats.CatalogFetchLatency_ms).Time().Stop()
	var data []byte
	_, err := c.cache.Get(nil, id, groupcache.AllocatingByteSliceSink(&data))
	c.updateStats()
	if err != nil {
		return Scenario{}, err
	}
	var sc Scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return Scenario{}, err
	}
	return sc, nil
}

func (c *cachedCatalog) Has(ctx context.Context, id string) (bool, error) {
	ok, err := c.cache.Contain(nil, id)
	c.updateStats()
	return ok, err
}

func (c *cachedCatalog) Scenarios(ctx context.Context) ([]Scenario, error) {
	return c.underlying.Scenarios(ctx)
}

// The groupcache lib updates its stats in the background - convert those to
// our own stat representation after each access.
func (c *cachedCatalog) updateStats() {
	c.stat.Counter(stats.CatalogCacheHitCounter).Update(c.cache.Stats.CacheHits.Get())
	c.stat.Counter(stats.CatalogCacheMissCounter).Update(c.cache.Stats.Loads.Get())
}
