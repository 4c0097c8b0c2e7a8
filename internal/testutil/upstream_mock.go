package testutil

import (
	"context"
	"net/url"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/rrweller/finn-apartment-finder/pkg/client"
)

// UpstreamMock stands in for every collaborator service. Each Func field
// overrides one call; unset fields fall back to small canned answers.
// Calls are counted and the last request of each kind is kept.
type UpstreamMock struct {
	IsolinesFunc       func(ctx context.Context, req client.IsolineRequest) (*client.IsolineResponse, error)
	ListingsFunc       func(ctx context.Context, query url.Values) ([]client.Listing, error)
	RoutesFunc         func(ctx context.Context, req client.RouteRequest) ([]*geojson.Feature, error)
	GeocodeFunc        func(ctx context.Context, query string) (*client.GeocodeResult, error)
	ReverseGeocodeFunc func(ctx context.Context, lat, lon float64) (string, error)

	mu             sync.Mutex
	calls          map[string]int
	LastIsolineReq client.IsolineRequest
	LastListingQ   url.Values
	LastRouteReq   client.RouteRequest
}

// NewUpstreamMock returns a mock with canned answers.
func NewUpstreamMock() *UpstreamMock {
	return &UpstreamMock{calls: map[string]int{}}
}

func (m *UpstreamMock) record(name string, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[name]++
	if fn != nil {
		fn()
	}
}

// Calls returns how often the named method ran.
func (m *UpstreamMock) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *UpstreamMock) Isolines(ctx context.Context, req client.IsolineRequest) (*client.IsolineResponse, error) {
	m.record("Isolines", func() { m.LastIsolineReq = req })
	if m.IsolinesFunc != nil {
		return m.IsolinesFunc(ctx, req)
	}
	return CannedIsolines(len(req.Locations)), nil
}

func (m *UpstreamMock) Listings(ctx context.Context, query url.Values) ([]client.Listing, error) {
	m.record("Listings", func() { m.LastListingQ = query })
	if m.ListingsFunc != nil {
		return m.ListingsFunc(ctx, query)
	}
	return []client.Listing{}, nil
}

func (m *UpstreamMock) Routes(ctx context.Context, req client.RouteRequest) ([]*geojson.Feature, error) {
	m.record("Routes", func() { m.LastRouteReq = req })
	if m.RoutesFunc != nil {
		return m.RoutesFunc(ctx, req)
	}
	return CannedRoutes(req), nil
}

func (m *UpstreamMock) Geocode(ctx context.Context, query string) (*client.GeocodeResult, error) {
	m.record("Geocode", nil)
	if m.GeocodeFunc != nil {
		return m.GeocodeFunc(ctx, query)
	}
	return &client.GeocodeResult{Lat: 59.9139, Lon: 10.7522, Address: query}, nil
}

func (m *UpstreamMock) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	m.record("ReverseGeocode", nil)
	if m.ReverseGeocodeFunc != nil {
		return m.ReverseGeocodeFunc(ctx, lat, lon)
	}
	return "Karl Johans gate 1, 0154 Oslo", nil
}

// CannedIsolines returns one square polygon per origin plus the
// intersection and query hull features, shaped like the isoline service's
// response.
func CannedIsolines(origins int) *client.IsolineResponse {
	features := make([]*geojson.Feature, 0, origins+2)
	for i := 0; i < origins; i++ {
		f := geojson.NewFeature(square(10.70+0.01*float64(i), 59.90, 0.05))
		f.Properties["locId"] = i
		f.Properties["mode"] = "drive"
		features = append(features, f)
	}
	inter := geojson.NewFeature(square(10.72, 59.91, 0.02))
	inter.Properties["intersection"] = true
	hull := geojson.NewFeature(square(10.72, 59.91, 0.025))
	hull.Properties["query"] = true
	features = append(features, inter, hull)
	return &client.IsolineResponse{Features: features, Token: "tok-123"}
}

// CannedRoutes returns a straight line per target carrying its locId.
func CannedRoutes(req client.RouteRequest) []*geojson.Feature {
	out := make([]*geojson.Feature, len(req.Targets))
	for i, t := range req.Targets {
		f := geojson.NewFeature(orb.LineString{{req.Origin.Lon, req.Origin.Lat}, {t.Lon, t.Lat}})
		f.Properties["locId"] = t.LocID
		out[i] = f
	}
	return out
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

func square(lon, lat, size float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{lon, lat}, {lon + size, lat}, {lon + size, lat + size}, {lon, lat + size}, {lon, lat},
	}}
}
