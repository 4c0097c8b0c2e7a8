package commute

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/rrweller/finn-apartment-finder/pkg/errors"
)

// ListingMode selects rental or sale listings.
type ListingMode string

const (
	ListingRent ListingMode = "rent"
	ListingBuy  ListingMode = "buy"
)

// ListingFilter narrows a listing search inside the commute area.  Zero
// values mean "no bound".
type ListingFilter struct {
	RentMin     int         `json:"rent_min,omitempty"`
	RentMax     int         `json:"rent_max,omitempty"`
	SizeMin     int         `json:"size_min,omitempty"`
	SizeMax     int         `json:"size_max,omitempty"`
	MinBedrooms int         `json:"min_bedrooms,omitempty"`
	Mode        ListingMode `json:"mode,omitempty"`
	Types       []string    `json:"boligtype,omitempty"`
	Facilities  []string    `json:"facilities,omitempty"`
	Floors      []string    `json:"floor,omitempty"`
}

// Validate rejects negative or inverted bounds and unknown modes.
func (f ListingFilter) Validate() error {
	for name, v := range map[string]int{
		"rent_min": f.RentMin, "rent_max": f.RentMax,
		"size_min": f.SizeMin, "size_max": f.SizeMax,
		"min_bedrooms": f.MinBedrooms,
	} {
		if v < 0 {
			return apperrors.InvalidParam("filter bounds must not be negative").WithDetail(name)
		}
	}
	if f.RentMax > 0 && f.RentMin > f.RentMax {
		return apperrors.InvalidParam("rent_min exceeds rent_max")
	}
	if f.SizeMax > 0 && f.SizeMin > f.SizeMax {
		return apperrors.InvalidParam("size_min exceeds size_max")
	}
	switch f.Mode {
	case "", ListingRent, ListingBuy:
	default:
		return apperrors.InvalidParam("listing mode must be rent or buy").WithDetail(string(f.Mode))
	}
	return nil
}

// Query encodes the filter plus the isoline token as listing query
// parameters.  List values are lower-cased, de-duplicated, sorted and
// comma-joined.
func (f ListingFilter) Query(token string) url.Values {
	q := url.Values{}
	q.Set("token", token)
	setPositive(q, "rent_min", f.RentMin)
	setPositive(q, "rent_max", f.RentMax)
	setPositive(q, "size_min", f.SizeMin)
	setPositive(q, "size_max", f.SizeMax)
	setPositive(q, "min_bedrooms", f.MinBedrooms)

	mode := f.Mode
	if mode == "" {
		mode = ListingRent
	}
	q.Set("mode", string(mode))

	setList(q, "boligtype", f.Types)
	setList(q, "facilities", f.Facilities)
	setList(q, "floor", f.Floors)
	return q
}

func setPositive(q url.Values, key string, v int) {
	if v > 0 {
		q.Set(key, strconv.Itoa(v))
	}
}

func setList(q url.Values, key string, values []string) {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return
	}
	sort.Strings(out)
	q.Set(key, strings.Join(out, ","))
}
