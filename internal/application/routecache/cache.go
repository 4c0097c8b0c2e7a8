// Package routecache fetches and memoises the route lines between a hovered
// listing and every commute origin.
package routecache

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/singleflight"

	"github.com/rrweller/finn-apartment-finder/internal/domain/commute"
	"github.com/rrweller/finn-apartment-finder/internal/domain/listing"
	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/monitoring/logging"
	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/monitoring/prometheus"
	"github.com/rrweller/finn-apartment-finder/pkg/client"
)

// DefaultTimeout bounds one upstream route request.
const DefaultTimeout = 10 * time.Second

// Fetcher performs one route request. *client.Client satisfies it, as does
// the shared redis route store.
type Fetcher interface {
	Routes(ctx context.Context, req client.RouteRequest) ([]*geojson.Feature, error)
}

// Target is one commute origin seen as a route destination. LocID is the
// origin's index in the searched location list so route lines pick up the
// same palette colour as the origin's polygon.
type Target struct {
	LocID int
	Lat   float64
	Lon   float64
	Mode  commute.TravelMode
}

// Option configures a Cache.
type Option func(*Cache)

// WithTimeout overrides the per-request timeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger used for swallowed failures.
func WithLogger(l logging.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records hit, miss and shared lookups.
func WithMetrics(m *prometheus.AppMetrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// Cache maps listing URL to the route features for the current origin set.
//
// Concurrent lookups for the same URL share one upstream request. Invalidate
// bumps a generation counter: a request started under an older generation
// never writes into the cache, and the next lookup starts a fresh request.
// Upstream failures are logged and turn into an empty result that is not
// cached.
type Cache struct {
	fetcher Fetcher
	timeout time.Duration
	logger  logging.Logger
	metrics *prometheus.AppMetrics

	group singleflight.Group

	mu         sync.Mutex
	generation uint64
	entries    map[string][]*geojson.Feature
}

// New creates an empty cache in front of fetcher.
func New(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher: fetcher,
		timeout: DefaultTimeout,
		logger:  logging.NewNopLogger(),
		entries: make(map[string][]*geojson.Feature),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetRoutes returns the routes from l to every target. It never returns an
// error: with no targets, or when the upstream call fails, the result is an
// empty slice. If ctx ends first the caller gets an empty slice while the
// shared request runs on and may still fill the cache.
func (c *Cache) GetRoutes(ctx context.Context, l listing.Listing, targets []Target) []*geojson.Feature {
	return c.GetRoutesAt(ctx, c.Generation(), l, targets)
}

// GetRoutesAt is GetRoutes for targets computed while the cache was at
// generation gen. If the cache has been invalidated since, the targets are
// stale: nothing is fetched and the result is empty.
func (c *Cache) GetRoutesAt(ctx context.Context, gen uint64, l listing.Listing, targets []Target) []*geojson.Feature {
	if len(targets) == 0 {
		return []*geojson.Feature{}
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		prometheus.RecordRouteCache(c.metrics, prometheus.RouteCacheStale)
		return []*geojson.Feature{}
	}
	if cached, ok := c.entries[l.URL]; ok {
		c.mu.Unlock()
		prometheus.RecordRouteCache(c.metrics, prometheus.RouteCacheHit)
		return slices.Clone(cached)
	}
	c.mu.Unlock()

	req := buildRequest(l, targets)
	key := fmt.Sprintf("%d|%s", gen, l.URL)
	leader := false

	ch := c.group.DoChan(key, func() (interface{}, error) {
		leader = true
		return c.fetch(ctx, gen, l.URL, req)
	})

	select {
	case res := <-ch:
		switch {
		case res.Err != nil:
			prometheus.RecordRouteCache(c.metrics, prometheus.RouteCacheFailed)
			return []*geojson.Feature{}
		case leader:
			prometheus.RecordRouteCache(c.metrics, prometheus.RouteCacheMiss)
		default:
			prometheus.RecordRouteCache(c.metrics, prometheus.RouteCacheShared)
		}
		return slices.Clone(res.Val.([]*geojson.Feature))
	case <-ctx.Done():
		prometheus.RecordRouteCache(c.metrics, prometheus.RouteCacheStale)
		return []*geojson.Feature{}
	}
}

// fetch runs inside the singleflight group. It is detached from the first
// caller's cancellation so other waiters are not failed by it.
func (c *Cache) fetch(parent context.Context, gen uint64, url string, req client.RouteRequest) ([]*geojson.Feature, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.timeout)
	defer cancel()

	start := time.Now()
	features, err := c.fetcher.Routes(ctx, req)
	if err != nil {
		c.logger.WithContext(parent).Warn("route fetch failed",
			logging.String("listing_url", url),
			logging.Int("targets", len(req.Targets)),
			logging.Duration("elapsed", time.Since(start)),
			logging.Err(err),
		)
		return nil, err
	}
	if features == nil {
		features = []*geojson.Feature{}
	}

	c.mu.Lock()
	if c.generation == gen {
		c.entries[url] = features
	}
	c.mu.Unlock()
	return features, nil
}

// Invalidate drops every entry. Requests already in flight finish but their
// results are not stored.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.generation++
	c.entries = make(map[string][]*geojson.Feature)
	c.mu.Unlock()
	prometheus.RecordRouteCacheInvalidation(c.metrics)
}

// Peek returns the cached routes for url without fetching.
func (c *Cache) Peek(url string) ([]*geojson.Feature, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.entries[url]
	if !ok {
		return nil, false
	}
	return slices.Clone(f), true
}

// Len returns the number of cached listings.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Generation returns the current generation counter.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func buildRequest(l listing.Listing, targets []Target) client.RouteRequest {
	req := client.RouteRequest{
		Origin:  client.LatLon{Lat: l.Lat, Lon: l.Lon},
		Targets: make([]client.RouteTarget, len(targets)),
	}
	for i, t := range targets {
		req.Targets[i] = client.RouteTarget{
			Lat:   t.Lat,
			Lon:   t.Lon,
			Mode:  string(t.Mode),
			LocID: t.LocID,
		}
	}
	return req
}
