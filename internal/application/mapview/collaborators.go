package mapview

import (
	"context"
	"net/url"

	"github.com/paulmach/orb/geojson"

	"github.com/rrweller/finn-apartment-finder/pkg/client"
)

// IsolineService builds reachability polygons for a set of origins.
type IsolineService interface {
	Isolines(ctx context.Context, req client.IsolineRequest) (*client.IsolineResponse, error)
}

// ListingService returns the listings inside a commute area.
type ListingService interface {
	Listings(ctx context.Context, query url.Values) ([]client.Listing, error)
}

// Geocoder resolves addresses to coordinates and back.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*client.GeocodeResult, error)
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

// RouteService computes route lines from one point to many.
type RouteService interface {
	Routes(ctx context.Context, req client.RouteRequest) ([]*geojson.Feature, error)
}

// Upstream is every collaborator a session talks to. *client.Client
// implements it.
type Upstream interface {
	IsolineService
	ListingService
	Geocoder
	RouteService
}

var _ Upstream = (*client.Client)(nil)
