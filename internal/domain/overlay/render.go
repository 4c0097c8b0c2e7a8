package overlay

import (
	"github.com/paulmach/orb/geojson"
)

// Styled is a feature ready to draw.
type Styled struct {
	Feature *geojson.Feature
	Role    Role
	LocID   int
	Style   Style
}

// Renderable drops query-hull features unless hullVisible.  The input is not
// modified; the returned indexes refer to positions in features.
func Renderable(features []*geojson.Feature, hullVisible bool) ([]*geojson.Feature, []int) {
	out := make([]*geojson.Feature, 0, len(features))
	idx := make([]int, 0, len(features))
	for i, f := range features {
		if f == nil {
			continue
		}
		if role, _ := Classify(f, i); role == RoleQueryHull && !hullVisible {
			continue
		}
		out = append(out, f)
		idx = append(idx, i)
	}
	return out, idx
}

// Apply filters with Renderable and styles what remains.  Index fallback
// for a missing locId uses the feature's position in the original slice.
func (s Styler) Apply(features []*geojson.Feature, hullVisible bool) []Styled {
	kept, idx := Renderable(features, hullVisible)
	out := make([]Styled, len(kept))
	for i, f := range kept {
		role, id := Classify(f, idx[i])
		out[i] = Styled{Feature: f, Role: role, LocID: id, Style: s.StyleForRole(role, id)}
	}
	return out
}

// Collection builds a FeatureCollection whose features carry their role,
// locId and style as properties.  Source features are copied, not mutated.
func Collection(styled []Styled) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, s := range styled {
		f := geojson.NewFeature(s.Feature.Geometry)
		f.ID = s.Feature.ID
		for k, v := range s.Feature.Properties {
			f.Properties[k] = v
		}
		f.Properties["role"] = string(s.Role)
		if s.Role == RoleOrigin {
			f.Properties["locId"] = s.LocID
		}
		f.Properties["style"] = s.Style
		fc.Append(f)
	}
	return fc
}
