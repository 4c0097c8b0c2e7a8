// Package overlay decides how reachability features, origin pins and route
// lines are drawn.  Everything here is pure and index-based so colours stay
// stable across re-renders of the same origin set.
package overlay

import (
	"github.com/paulmach/orb/geojson"
)

// Fixed accents.
const (
	IntersectionColor = "#e11d48"
	HullColor         = "#f59e0b"
	RouteColor        = "#111827"

	IntersectionPattern        = "stripes-e11d48"
	IntersectionPatternOpacity = 0.35
)

// DefaultPalette is the categorical cycle for origins.
var DefaultPalette = Palette{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728",
	"#9467bd", "#8c564b", "#e377c2", "#17becf",
}

// Palette maps an origin index to a colour.
type Palette []string

// Color returns the colour for locID, cycling through the palette.  Negative
// ids wrap the same way.  An empty palette falls back to DefaultPalette.
func (p Palette) Color(locID int) string {
	if len(p) == 0 {
		p = DefaultPalette
	}
	i := locID % len(p)
	if i < 0 {
		i += len(p)
	}
	return p[i]
}

// Role is the semantic role of a reachability feature.
type Role string

const (
	RoleOrigin       Role = "origin"
	RoleIntersection Role = "intersection"
	RoleQueryHull    Role = "queryHull"
)

// Classify derives the role of f.  intersection wins over query; anything
// else is an origin area whose id comes from the "locId" property, or from
// index when the property is missing.
func Classify(f *geojson.Feature, index int) (Role, int) {
	if f == nil {
		return RoleOrigin, index
	}
	props := f.Properties
	if props.MustBool("intersection", false) {
		return RoleIntersection, -1
	}
	if props.MustBool("query", false) {
		return RoleQueryHull, -1
	}
	return RoleOrigin, props.MustInt("locId", index)
}

// Style is a Leaflet-compatible path style.
type Style struct {
	StrokeColor    string  `json:"color"`
	StrokeWeight   float64 `json:"weight"`
	DashPattern    string  `json:"dashArray,omitempty"`
	FillColor      string  `json:"fillColor,omitempty"`
	FillOpacity    float64 `json:"fillOpacity"`
	FillPattern    string  `json:"fillPattern,omitempty"`
	PatternOpacity float64 `json:"patternOpacity,omitempty"`
}

// Styler styles features against a palette.
type Styler struct {
	Palette Palette
}

// NewStyler returns a Styler; a nil or empty palette means DefaultPalette.
func NewStyler(p Palette) Styler {
	if len(p) == 0 {
		p = DefaultPalette
	}
	return Styler{Palette: p}
}

// StyleForRole returns the style for a role and origin id.
func (s Styler) StyleForRole(role Role, locID int) Style {
	switch role {
	case RoleIntersection:
		return Style{
			StrokeColor:    IntersectionColor,
			StrokeWeight:   1,
			DashPattern:    "4 4",
			FillColor:      IntersectionColor,
			FillOpacity:    1,
			FillPattern:    IntersectionPattern,
			PatternOpacity: IntersectionPatternOpacity,
		}
	case RoleQueryHull:
		return Style{
			StrokeColor:  HullColor,
			StrokeWeight: 2,
			DashPattern:  "6 6",
			FillColor:    HullColor,
			FillOpacity:  0.02,
		}
	default:
		c := s.Palette.Color(locID)
		return Style{
			StrokeColor:  c,
			StrokeWeight: 2,
			FillColor:    c,
			FillOpacity:  0.15,
		}
	}
}

// StyleFor classifies f (at position index) and returns its style.
func (s Styler) StyleFor(f *geojson.Feature, index int) Style {
	role, id := Classify(f, index)
	return s.StyleForRole(role, id)
}

// PinColor is the colour of origin locID's map pin; it matches the area.
func (s Styler) PinColor(locID int) string {
	return s.Palette.Color(locID)
}

// StyleFor styles f with the default palette.
func StyleFor(f *geojson.Feature, index int) Style {
	return NewStyler(nil).StyleFor(f, index)
}

// PinColor returns the default-palette pin colour for locID.
func PinColor(locID int) string {
	return DefaultPalette.Color(locID)
}

// RouteStyle is the style of the hovered listing's route lines.
func RouteStyle() Style {
	return Style{StrokeColor: RouteColor, StrokeWeight: 3, FillOpacity: 0}
}
