package client

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rrweller/finn-apartment-finder/pkg/errors"
)

// GeocodeResult is a resolved address.
type GeocodeResult struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Address string  `json:"address"`
}

// ReverseGeocode resolves a coordinate to a display address.  An empty
// address in a 2xx response is returned as-is.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))

	var out struct {
		Address string `json:"address"`
	}
	if err := c.get(ctx, "/reverse_geocode", q, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Address), nil
}

// Geocode resolves free text to a coordinate.
func (c *Client) Geocode(ctx context.Context, query string) (*GeocodeResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.InvalidParam("geocode query must not be empty")
	}
	q := url.Values{}
	q.Set("q", query)

	var out GeocodeResult
	if err := c.get(ctx, "/geocode", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
