package client

import (
	"context"
	"net/url"
)

// Listing is a listing as returned by the listing service.  Coordinates
// may be missing for ads that could not be geocoded.
type Listing struct {
	URL   string   `json:"url"`
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
	Price int      `json:"price"`
	Title string   `json:"title"`
	Thumb string   `json:"thumb,omitempty"`
}

// HasCoords reports whether both coordinates are present.
func (l Listing) HasCoords() bool {
	return l.Lat != nil && l.Lon != nil
}

// Listings fetches the listings matching query, which must include the
// isoline token.
func (c *Client) Listings(ctx context.Context, query url.Values) ([]Listing, error) {
	var out []Listing
	if err := c.get(ctx, "/listings", query, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Listing{}
	}
	return out, nil
}
