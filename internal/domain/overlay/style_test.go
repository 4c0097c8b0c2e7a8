package overlay

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square() orb.Polygon {
	return orb.Polygon{orb.Ring{{10.7, 59.9}, {10.8, 59.9}, {10.8, 60}, {10.7, 60}, {10.7, 59.9}}}
}

func feature(props map[string]interface{}) *geojson.Feature {
	f := geojson.NewFeature(square())
	for k, v := range props {
		f.Properties[k] = v
	}
	return f
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name  string
		props map[string]interface{}
		index int
		role  Role
		locID int
	}{
		{"intersection", map[string]interface{}{"intersection": true}, 3, RoleIntersection, -1},
		{"intersection wins over query", map[string]interface{}{"intersection": true, "query": true}, 0, RoleIntersection, -1},
		{"hull", map[string]interface{}{"query": true}, 4, RoleQueryHull, -1},
		{"origin int", map[string]interface{}{"locId": 2}, 0, RoleOrigin, 2},
		{"origin from json number", map[string]interface{}{"locId": float64(5)}, 0, RoleOrigin, 5},
		{"origin missing locId", map[string]interface{}{"mode": "drive"}, 7, RoleOrigin, 7},
		{"false flags", map[string]interface{}{"intersection": false, "query": false, "locId": 1}, 0, RoleOrigin, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			role, id := Classify(feature(tc.props), tc.index)
			assert.Equal(t, tc.role, role)
			assert.Equal(t, tc.locID, id)
		})
	}
}

func TestStyleFor_Intersection(t *testing.T) {
	s := StyleFor(feature(map[string]interface{}{"intersection": true}), 0)
	assert.Equal(t, "#e11d48", s.StrokeColor)
	assert.Equal(t, 1.0, s.StrokeWeight)
	assert.Equal(t, "4 4", s.DashPattern)
	assert.Equal(t, 1.0, s.FillOpacity)
	assert.Equal(t, IntersectionPattern, s.FillPattern)
	assert.Less(t, s.PatternOpacity, 1.0)
}

func TestStyleFor_Hull(t *testing.T) {
	s := StyleFor(feature(map[string]interface{}{"query": true}), 0)
	assert.Equal(t, "#f59e0b", s.StrokeColor)
	assert.Equal(t, "6 6", s.DashPattern)
	assert.InDelta(t, 0.02, s.FillOpacity, 1e-12)
}

func TestStyleFor_OriginPaletteCycles(t *testing.T) {
	for locID := 0; locID < 20; locID++ {
		s := StyleFor(feature(map[string]interface{}{"locId": locID}), 0)
		assert.Equal(t, DefaultPalette[locID%8], s.StrokeColor)
		assert.Empty(t, s.DashPattern, "origin strokes are solid")
		assert.Equal(t, 0.15, s.FillOpacity)
		assert.Equal(t, PinColor(locID), s.StrokeColor, "pin matches polygon")
	}
	assert.Equal(t, StyleFor(feature(map[string]interface{}{"locId": 0}), 0),
		StyleFor(feature(map[string]interface{}{"locId": 8}), 0))
}

func TestStyler_CustomPalette(t *testing.T) {
	s := NewStyler(Palette{"#000000", "#ffffff"})
	assert.Equal(t, "#ffffff", s.StyleFor(feature(map[string]interface{}{"locId": 3}), 0).StrokeColor)
	assert.Equal(t, "#000000", s.PinColor(4))
}

func TestPalette_NegativeAndEmpty(t *testing.T) {
	assert.Equal(t, DefaultPalette[7], DefaultPalette.Color(-1))
	assert.Equal(t, DefaultPalette[1], Palette(nil).Color(1))
}

func TestRouteStyle_NotInPalette(t *testing.T) {
	for _, c := range DefaultPalette {
		assert.NotEqual(t, c, RouteStyle().StrokeColor)
	}
}

func TestRenderable_HullToggle(t *testing.T) {
	features := []*geojson.Feature{
		feature(map[string]interface{}{"locId": 0}),
		feature(map[string]interface{}{"locId": 1}),
		feature(map[string]interface{}{"intersection": true}),
		feature(map[string]interface{}{"query": true}),
	}

	hidden, idx := Renderable(features, false)
	require.Len(t, hidden, 3)
	assert.Equal(t, []int{0, 1, 2}, idx)
	for _, f := range hidden {
		role, _ := Classify(f, 0)
		assert.NotEqual(t, RoleQueryHull, role)
	}

	shown, _ := Renderable(features, true)
	assert.Len(t, shown, 4)
	assert.Len(t, features, 4, "input untouched")
}

func TestApply_IndexFallbackUsesOriginalPosition(t *testing.T) {
	features := []*geojson.Feature{
		feature(map[string]interface{}{"query": true}),
		feature(map[string]interface{}{}),
	}
	styled := NewStyler(nil).Apply(features, false)
	require.Len(t, styled, 1)
	assert.Equal(t, 1, styled[0].LocID)
	assert.Equal(t, DefaultPalette[1], styled[0].Style.StrokeColor)
}

func TestCollection_DoesNotMutateSource(t *testing.T) {
	src := feature(map[string]interface{}{"locId": 1, "mode": "walk"})
	fc := Collection(NewStyler(nil).Apply([]*geojson.Feature{src}, false))
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "origin", fc.Features[0].Properties["role"])
	assert.Equal(t, "walk", fc.Features[0].Properties["mode"])
	assert.NotNil(t, fc.Features[0].Properties["style"])
	_, has := src.Properties["style"]
	assert.False(t, has)
}
