package redis

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/monitoring/logging"
	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/monitoring/prometheus"
	"github.com/rrweller/finn-apartment-finder/pkg/client"
)

// DefaultRouteTTL is how long one origin-to-target route stays shared.
const DefaultRouteTTL = 24 * time.Hour

const routeKeyPrefix = "route:"

// RouteFetcher asks the route service for lines.
type RouteFetcher interface {
	Routes(ctx context.Context, req client.RouteRequest) ([]*geojson.Feature, error)
}

// RouteStore shares route lines across sessions and restarts. Each
// origin/target/mode triple is stored on its own, so a request only goes
// upstream for the targets nobody has routed yet. Redis failures count as
// misses.
type RouteStore struct {
	cache    Cache
	upstream RouteFetcher
	ttl      time.Duration
	logger   logging.Logger
	metrics  *prometheus.AppMetrics
}

func NewRouteStore(cache Cache, upstream RouteFetcher, ttl time.Duration, log logging.Logger, metrics *prometheus.AppMetrics) *RouteStore {
	if ttl <= 0 {
		ttl = DefaultRouteTTL
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &RouteStore{
		cache:    cache,
		upstream: upstream,
		ttl:      ttl,
		logger:   log.Named("route-store"),
		metrics:  metrics,
	}
}

// RouteKey identifies one route independent of its locId.
func RouteKey(origin client.LatLon, t client.RouteTarget) string {
	raw := fmt.Sprintf("%.5f,%.5f->%.5f,%.5f@%s", origin.Lat, origin.Lon, t.Lat, t.Lon, t.Mode)
	sum := sha1.Sum([]byte(raw))
	return routeKeyPrefix + hex.EncodeToString(sum[:])
}

// Routes returns the stored lines for every known target and fetches the
// rest in a single upstream request. Each returned feature carries the
// locId of the target in req.
func (s *RouteStore) Routes(ctx context.Context, req client.RouteRequest) ([]*geojson.Feature, error) {
	if len(req.Targets) == 0 {
		return []*geojson.Feature{}, nil
	}

	keys := make([]string, len(req.Targets))
	for i, t := range req.Targets {
		keys[i] = RouteKey(req.Origin, t)
	}

	stored, err := s.cache.MGet(ctx, keys)
	if err != nil {
		s.logger.Warn("route store read failed", logging.Err(err))
		prometheus.RecordRouteStoreAccess(s.metrics, false, err)
		stored = nil
	}

	found := make([]*geojson.Feature, len(req.Targets))
	var missing []client.RouteTarget
	for i, t := range req.Targets {
		raw, ok := stored[keys[i]]
		if ok {
			f, derr := geojson.UnmarshalFeature(raw)
			if derr == nil && f != nil {
				found[i] = withLocID(f, t.LocID)
				prometheus.RecordRouteStoreAccess(s.metrics, true, nil)
				continue
			}
			s.logger.Warn("discarding unreadable stored route", logging.String("key", keys[i]), logging.Err(derr))
		}
		if err == nil {
			prometheus.RecordRouteStoreAccess(s.metrics, false, nil)
		}
		missing = append(missing, t)
	}

	if len(missing) > 0 {
		fetched, ferr := s.upstream.Routes(ctx, client.RouteRequest{Origin: req.Origin, Targets: missing})
		if ferr != nil {
			return nil, ferr
		}
		byLoc := indexByLocID(fetched)
		for i, t := range req.Targets {
			if found[i] != nil {
				continue
			}
			f, ok := byLoc[t.LocID]
			if !ok {
				continue
			}
			found[i] = f
			s.store(ctx, keys[i], f)
		}
	}

	out := make([]*geojson.Feature, 0, len(found))
	for _, f := range found {
		if f != nil {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *RouteStore) store(ctx context.Context, key string, f *geojson.Feature) {
	if err := s.cache.Set(ctx, key, f, s.ttl); err != nil {
		s.logger.Warn("route store write failed", logging.String("key", key), logging.Err(err))
		prometheus.RecordError(s.metrics, "route_store", "write")
	}
}

// Purge drops every stored route.
func (s *RouteStore) Purge(ctx context.Context) (int64, error) {
	return s.cache.DeleteByPrefix(ctx, routeKeyPrefix)
}

func (s *RouteStore) Ping(ctx context.Context) error {
	return s.cache.Ping(ctx)
}

func indexByLocID(features []*geojson.Feature) map[int]*geojson.Feature {
	out := make(map[int]*geojson.Feature, len(features))
	for _, f := range features {
		if f == nil || f.Properties == nil {
			continue
		}
		if id, ok := locID(f.Properties["locId"]); ok {
			if _, dup := out[id]; !dup {
				out[id] = f
			}
		}
	}
	return out
}

func locID(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func withLocID(f *geojson.Feature, id int) *geojson.Feature {
	if f.Properties == nil {
		f.Properties = geojson.Properties{}
	}
	f.Properties["locId"] = id
	return f
}
