package client

import (
	"context"

	"github.com/paulmach/orb/geojson"
)

// IsolineLocation is one origin in an isoline request.  Lat and Lon are
// optional; when set the service skips geocoding the address.
type IsolineLocation struct {
	Address string   `json:"address"`
	Time    int      `json:"time"`
	Mode    string   `json:"mode"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
}

// IsolineRequest is the body of POST /isolines.
type IsolineRequest struct {
	Locations []IsolineLocation `json:"locations"`
}

// IsolineResponse carries the reachability features and the token that
// scopes a subsequent listing search to their intersection.
type IsolineResponse struct {
	Features []*geojson.Feature `json:"features"`
	Token    string             `json:"token"`
}

// Isolines requests one reachability polygon per location plus the
// intersection and query hull features.
func (c *Client) Isolines(ctx context.Context, req IsolineRequest) (*IsolineResponse, error) {
	var out IsolineResponse
	if err := c.post(ctx, "/isolines", req, &out); err != nil {
		return nil, err
	}
	if out.Features == nil {
		out.Features = []*geojson.Feature{}
	}
	return &out, nil
}
