// Package listing holds the listing model and the deconfliction that keeps
// markers sharing a coordinate individually clickable.
package listing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rrweller/finn-apartment-finder/internal/domain/geo"
)

// DefaultSpreadRadius is the ring radius in metres for co-located markers.
const DefaultSpreadRadius = 24.0

// Listing is an apartment ad inside the commute area.  URL is its identity.
type Listing struct {
	URL   string  `json:"url"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Price int     `json:"price"`
	Title string  `json:"title"`
	Thumb string  `json:"thumb,omitempty"`
}

// DisplayListing is a Listing plus the coordinates it is drawn at.
type DisplayListing struct {
	Listing
	DisplayLat float64 `json:"display_lat"`
	DisplayLon float64 `json:"display_lon"`
}

// Displaced reports whether the marker was moved off its true position.
func (d DisplayListing) Displaced() bool {
	return d.DisplayLat != d.Lat || d.DisplayLon != d.Lon
}

// Key returns the grouping key: lat and lon rounded to six decimals.
func Key(lat, lon float64) string {
	return fmt.Sprintf("%.6f,%.6f", lat, lon)
}

// Spread places listings that share a rounded coordinate on a ring of
// DefaultSpreadRadius metres.  See SpreadRadius.
func Spread(listings []Listing) []DisplayListing {
	return SpreadRadius(listings, DefaultSpreadRadius)
}

// SpreadRadius returns one DisplayListing per input in input order.  A
// listing alone at its key keeps its coordinates.  A group of n > 1 gets
// RingPositions(n, radius); member i of the group (in input order) takes
// offset i, converted with the group's latitude as reference.
func SpreadRadius(listings []Listing, radius float64) []DisplayListing {
	out := make([]DisplayListing, len(listings))
	groups := make(map[string][]int, len(listings))
	order := make([]string, 0, len(listings))

	for i, l := range listings {
		out[i] = DisplayListing{Listing: l, DisplayLat: l.Lat, DisplayLon: l.Lon}
		k := Key(l.Lat, l.Lon)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}

	for _, k := range order {
		members := groups[k]
		if len(members) < 2 {
			continue
		}
		refLat := listings[members[0]].Lat
		for j, off := range geo.RingPositions(len(members), radius) {
			idx := members[j]
			dLat, dLon := off.Degrees(refLat)
			out[idx].DisplayLat = listings[idx].Lat + dLat
			out[idx].DisplayLon = listings[idx].Lon + dLon
		}
	}
	return out
}

// Groups returns the size of every collision group keyed by Key.
func Groups(listings []Listing) map[string]int {
	g := make(map[string]int, len(listings))
	for _, l := range listings {
		g[Key(l.Lat, l.Lon)]++
	}
	return g
}

// PriceLabel formats a price the way the marker shows it: thousands grouped
// with a no-break space and a "kr" suffix.
func PriceLabel(price int) string {
	neg := price < 0
	if neg {
		price = -price
	}
	digits := strconv.Itoa(price)
	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			sb.WriteRune('\u00a0')
		}
		sb.WriteRune(r)
	}
	sb.WriteString("\u00a0kr")
	return sb.String()
}
