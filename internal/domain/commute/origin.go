// Package commute models the user's work addresses ("origins") and the
// filter that scopes a listing search.
package commute

import (
	"fmt"
	"strings"

	apperrors "github.com/rrweller/finn-apartment-finder/pkg/errors"
)

// TravelMode is the transport used to reach an origin.
type TravelMode string

const (
	ModeDrive   TravelMode = "drive"
	ModeTransit TravelMode = "transit"
	ModeBicycle TravelMode = "bicycle"
	ModeWalk    TravelMode = "walk"
)

// Defaults for a freshly added origin row.
const (
	DefaultMinutes = 20
	DefaultMode    = ModeDrive
)

// Valid reports whether m is one of the supported modes.
func (m TravelMode) Valid() bool {
	switch m {
	case ModeDrive, ModeTransit, ModeBicycle, ModeWalk:
		return true
	}
	return false
}

// ParseTravelMode parses a case-insensitive mode name.
func ParseTravelMode(s string) (TravelMode, error) {
	m := TravelMode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", apperrors.New(apperrors.ErrCodeInvalidTravelMode, "unsupported travel mode").WithDetail(s)
	}
	return m, nil
}

// Origin is one work address the user commutes to.  Lat and Lon are set
// when the address was picked on the map and are forwarded so the isoline
// service can skip geocoding.
type Origin struct {
	Address string     `json:"address"`
	Minutes int        `json:"time"`
	Mode    TravelMode `json:"mode"`
	Lat     *float64   `json:"lat,omitempty"`
	Lon     *float64   `json:"lon,omitempty"`
}

// NewOrigin returns an empty row with the default time budget and mode.
func NewOrigin() Origin {
	return Origin{Minutes: DefaultMinutes, Mode: DefaultMode}
}

// Blank reports whether the address is empty or whitespace only.
func (o Origin) Blank() bool {
	return strings.TrimSpace(o.Address) == ""
}

// HasCoords reports whether both coordinates are set.
func (o Origin) HasCoords() bool {
	return o.Lat != nil && o.Lon != nil
}

// WithPick returns a copy of o pointing at the picked address and coordinates.
func (o Origin) WithPick(address string, lat, lon float64) Origin {
	o.Address = address
	o.Lat = &lat
	o.Lon = &lon
	return o
}

// Clone returns a deep copy of o.
func (o Origin) Clone() Origin {
	if o.Lat != nil {
		lat := *o.Lat
		o.Lat = &lat
	}
	if o.Lon != nil {
		lon := *o.Lon
		o.Lon = &lon
	}
	return o
}

// Validate checks the row's own fields; a blank address is allowed here and
// only matters when building a search.
func (o Origin) Validate() error {
	if o.Minutes <= 0 {
		return apperrors.InvalidParam("commute time must be positive").WithDetail(fmt.Sprintf("time=%d", o.Minutes))
	}
	if !o.Mode.Valid() {
		return apperrors.New(apperrors.ErrCodeInvalidTravelMode, "unsupported travel mode").WithDetail(string(o.Mode))
	}
	return nil
}

// Patch is a partial update of an origin row.  Nil fields are left alone.
// Changing the address clears coordinates unless new ones are supplied.
type Patch struct {
	Address *string     `json:"address,omitempty"`
	Minutes *int        `json:"time,omitempty"`
	Mode    *TravelMode `json:"mode,omitempty"`
	Lat     *float64    `json:"lat,omitempty"`
	Lon     *float64    `json:"lon,omitempty"`
}

// Apply returns o with the patch applied.
func (p Patch) Apply(o Origin) Origin {
	if p.Address != nil && *p.Address != o.Address {
		o.Address = *p.Address
		o.Lat, o.Lon = nil, nil
	}
	if p.Minutes != nil {
		o.Minutes = *p.Minutes
	}
	if p.Mode != nil {
		o.Mode = *p.Mode
	}
	if p.Lat != nil && p.Lon != nil {
		lat, lon := *p.Lat, *p.Lon
		o.Lat, o.Lon = &lat, &lon
	}
	return o
}

// Location is the wire shape of an origin in an isoline request.
type Location struct {
	Address string     `json:"address"`
	Time    int        `json:"time"`
	Mode    TravelMode `json:"mode"`
	Lat     *float64   `json:"lat,omitempty"`
	Lon     *float64   `json:"lon,omitempty"`
}

// ErrNoOrigins is returned when a search has no non-blank origin.
var ErrNoOrigins = apperrors.New(apperrors.ErrCodeNoOrigins, "add at least one work address")

// SearchLocations keeps the non-blank origins, trims their addresses and
// returns them in request form.  It fails with ErrNoOrigins when nothing
// is left, and with a validation error for a bad time or mode.
func SearchLocations(origins []Origin) ([]Location, error) {
	out := make([]Location, 0, len(origins))
	for i, o := range origins {
		if o.Blank() {
			continue
		}
		if err := o.Validate(); err != nil {
			return nil, apperrors.Wrap(err, apperrors.GetCode(err), fmt.Sprintf("origin %d is invalid", i))
		}
		c := o.Clone()
		out = append(out, Location{
			Address: strings.TrimSpace(c.Address),
			Time:    c.Minutes,
			Mode:    c.Mode,
			Lat:     c.Lat,
			Lon:     c.Lon,
		})
	}
	if len(out) == 0 {
		return nil, ErrNoOrigins
	}
	return out, nil
}

// CloneOrigins deep-copies a slice of origins.
func CloneOrigins(in []Origin) []Origin {
	out := make([]Origin, len(in))
	for i, o := range in {
		out[i] = o.Clone()
	}
	return out
}
