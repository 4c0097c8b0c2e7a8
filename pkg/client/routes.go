package client

import (
	"context"

	"github.com/paulmach/orb/geojson"
)

// LatLon is a bare coordinate pair.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// RouteTarget is one destination of a route request.  LocID is echoed back
// on the matching route feature.
type RouteTarget struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Mode  string  `json:"mode"`
	LocID int     `json:"locId"`
}

// RouteRequest is the body of POST /routes.
type RouteRequest struct {
	Origin  LatLon        `json:"origin"`
	Targets []RouteTarget `json:"targets"`
}

// Routes returns one route line per target that could be routed.  Features
// missing a locId get the id of the target at the same position when the
// response has one feature per target.
func (c *Client) Routes(ctx context.Context, req RouteRequest) ([]*geojson.Feature, error) {
	var out struct {
		Features []*geojson.Feature `json:"features"`
	}
	if err := c.post(ctx, "/routes", req, &out); err != nil {
		return nil, err
	}
	if out.Features == nil {
		return []*geojson.Feature{}, nil
	}
	if len(out.Features) == len(req.Targets) {
		for i, f := range out.Features {
			if f == nil {
				continue
			}
			if f.Properties == nil {
				f.Properties = geojson.Properties{}
			}
			if _, ok := f.Properties["locId"]; !ok {
				f.Properties["locId"] = req.Targets[i].LocID
			}
		}
	}
	return out.Features, nil
}
