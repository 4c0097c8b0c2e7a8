package mapview

import (
	"github.com/paulmach/orb/geojson"

	"github.com/rrweller/finn-apartment-finder/internal/application/pickmode"
	"github.com/rrweller/finn-apartment-finder/internal/domain/commute"
	"github.com/rrweller/finn-apartment-finder/internal/domain/geo"
	"github.com/rrweller/finn-apartment-finder/internal/domain/listing"
	"github.com/rrweller/finn-apartment-finder/internal/domain/overlay"
)

// Base map defaults.
const (
	TileURL         = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"
	TileAttribution = "&copy; OSM"
	DefaultZoom     = 11
)

// DefaultCenter is central Oslo as (lat, lon).
var DefaultCenter = [2]float64{59.9139, 10.7522}

// Layer ids in draw order, bottom first.
const (
	LayerBase         = "base"
	LayerReachability = "reachability"
	LayerOriginPins   = "origin-pins"
	LayerRoutes       = "routes"
	LayerListings     = "listings"
)

// CursorCrosshair is shown while a pick is armed.
const CursorCrosshair = "crosshair"

// TileLayer describes the raster base map.
type TileLayer struct {
	URL         string     `json:"url"`
	Attribution string     `json:"attribution"`
	Center      [2]float64 `json:"center"`
	Zoom        int        `json:"zoom"`
}

// Marker is one listing pin at its display position.
type Marker struct {
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Thumb     string  `json:"thumb,omitempty"`
	Price     int     `json:"price"`
	Label     string  `json:"label"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	TrueLat   float64 `json:"true_lat"`
	TrueLon   float64 `json:"true_lon"`
	Displaced bool    `json:"displaced,omitempty"`
	Hovered   bool    `json:"hovered,omitempty"`
}

// Layer is one entry of the render model. Only the fields relevant to the
// layer's kind are set.
type Layer struct {
	ID        string                     `json:"id"`
	Z         int                        `json:"z"`
	Key       string                     `json:"key,omitempty"`
	Tiles     *TileLayer                 `json:"tiles,omitempty"`
	Features  *geojson.FeatureCollection `json:"features,omitempty"`
	Markers   []Marker                   `json:"markers,omitempty"`
	Clustered bool                       `json:"clustered,omitempty"`
}

// RenderModel is everything the thin client needs to draw the map.
type RenderModel struct {
	SessionID   string           `json:"session_id"`
	Cursor      string           `json:"cursor"`
	Pick        pickmode.State   `json:"pick"`
	HullVisible bool             `json:"hull_visible"`
	Origins     []commute.Origin `json:"origins"`
	HoverURL    string           `json:"hover_url,omitempty"`
	Layers      []Layer          `json:"layers"`
}

// Layer returns the layer with the given id.
func (m RenderModel) Layer(id string) (Layer, bool) {
	for _, l := range m.Layers {
		if l.ID == id {
			return l, true
		}
	}
	return Layer{}, false
}

// Render snapshots the session into a RenderModel. Layers always appear in
// the same order: base, reachability, origin pins, routes, listings.
func (s *Session) Render() RenderModel {
	pick := s.pick.State()

	s.mu.Lock()
	features := s.features
	layerKey := s.layerKey
	hullVisible := s.hullVisible
	origins := commute.CloneOrigins(s.origins)
	routes := s.shownRoutes
	display := make([]listing.DisplayListing, len(s.display))
	copy(display, s.display)
	hover := s.hoverURL
	s.mu.Unlock()

	m := RenderModel{
		SessionID:   s.id,
		Pick:        pick,
		HullVisible: hullVisible,
		Origins:     origins,
		HoverURL:    hover,
	}
	if pick.Awaiting {
		m.Cursor = CursorCrosshair
	}

	m.Layers = []Layer{
		{
			ID: LayerBase,
			Tiles: &TileLayer{
				URL:         TileURL,
				Attribution: TileAttribution,
				Center:      DefaultCenter,
				Zoom:        DefaultZoom,
			},
		},
		{
			ID:       LayerReachability,
			Key:      layerKey,
			Features: overlay.Collection(s.styler.Apply(features, hullVisible)),
		},
		{
			ID:       LayerOriginPins,
			Features: s.originPins(origins),
		},
		{
			ID:       LayerRoutes,
			Features: routeCollection(routes),
		},
		{
			ID:        LayerListings,
			Markers:   markers(display, hover),
			Clustered: true,
		},
	}
	for i := range m.Layers {
		m.Layers[i].Z = i
	}
	return m
}

// originPins draws a pin for every searchable origin that has coordinates.
// The pin's locId is its index among searchable origins, which is also the
// locId the isoline service gives its polygon.
func (s *Session) originPins(origins []commute.Origin) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	locID := 0
	for _, o := range origins {
		if o.Blank() {
			continue
		}
		if o.HasCoords() {
			f := geojson.NewFeature(geo.Point(*o.Lat, *o.Lon))
			f.Properties["locId"] = locID
			f.Properties["address"] = o.Address
			f.Properties["mode"] = string(o.Mode)
			f.Properties["color"] = s.styler.PinColor(locID)
			fc.Append(f)
		}
		locID++
	}
	return fc
}

func routeCollection(routes []*geojson.Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	style := overlay.RouteStyle()
	for _, r := range routes {
		if r == nil {
			continue
		}
		f := geojson.NewFeature(r.Geometry)
		for k, v := range r.Properties {
			f.Properties[k] = v
		}
		f.Properties["style"] = style
		fc.Append(f)
	}
	return fc
}

func markers(display []listing.DisplayListing, hover string) []Marker {
	out := make([]Marker, len(display))
	for i, d := range display {
		out[i] = Marker{
			URL:       d.URL,
			Title:     d.Title,
			Thumb:     d.Thumb,
			Price:     d.Price,
			Label:     listing.PriceLabel(d.Price),
			Lat:       d.DisplayLat,
			Lon:       d.DisplayLon,
			TrueLat:   d.Lat,
			TrueLon:   d.Lon,
			Displaced: d.Displaced(),
			Hovered:   hover != "" && d.URL == hover,
		}
	}
	return out
}
