// Package mapview owns the per-user map state: origin rows, reachability
// features, listings, hover routes and the pick state machine. Each Session
// is guarded by its own mutex and never holds it across a network call.
package mapview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	"github.com/rrweller/finn-apartment-finder/internal/application/pickmode"
	"github.com/rrweller/finn-apartment-finder/internal/application/routecache"
	"github.com/rrweller/finn-apartment-finder/internal/domain/commute"
	"github.com/rrweller/finn-apartment-finder/internal/domain/geo"
	"github.com/rrweller/finn-apartment-finder/internal/domain/listing"
	"github.com/rrweller/finn-apartment-finder/internal/domain/overlay"
	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/monitoring/logging"
	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/monitoring/prometheus"
	apperrors "github.com/rrweller/finn-apartment-finder/pkg/errors"
	"github.com/rrweller/finn-apartment-finder/pkg/client"
)

// DefaultTimeout bounds each collaborator call made by a session.
const DefaultTimeout = 10 * time.Second

// geocodeParallelism caps concurrent forward-geocode calls while resolving
// route targets.
const geocodeParallelism = 4

// ErrNoCommuteArea is returned when the isoline service produced nothing
// to draw. The listing service is not called in that case.
var ErrNoCommuteArea = apperrors.New(apperrors.ErrCodeNoCommuteArea, "could not build commute area")

// ErrListingNotFound is returned for a URL that is not in the current set.
var ErrListingNotFound = apperrors.New(apperrors.ErrCodeListingNotFound, "listing not found")

// Deps are the collaborators and settings shared by every session.
type Deps struct {
	Upstream Upstream
	// Routes overrides Upstream for route requests, e.g. with the shared
	// redis route store.
	Routes       routecache.Fetcher
	Palette      overlay.Palette
	SpreadRadius float64
	HullVisible  bool
	Timeout      time.Duration
	RouteTimeout time.Duration
	Logger       logging.Logger
	Metrics      *prometheus.AppMetrics
}

func (d Deps) withDefaults() Deps {
	if d.Routes == nil {
		d.Routes = d.Upstream
	}
	if d.SpreadRadius <= 0 {
		d.SpreadRadius = listing.DefaultSpreadRadius
	}
	if d.Timeout <= 0 {
		d.Timeout = DefaultTimeout
	}
	if d.RouteTimeout <= 0 {
		d.RouteTimeout = d.Timeout
	}
	if d.Logger == nil {
		d.Logger = logging.NewNopLogger()
	}
	return d
}

// SearchResult summarises an applied search.
type SearchResult struct {
	LayerKey  string `json:"layer_key"`
	Features  int    `json:"features"`
	Listings  int    `json:"listings"`
	Dropped   int    `json:"dropped"`
	Displaced int    `json:"displaced"`
	// Superseded is set when a later search finished first; this result
	// was then discarded.
	Superseded bool `json:"superseded,omitempty"`
}

// HoverResult is the outcome of a hover. Applied is false when the hover
// target moved on before the routes arrived.
type HoverResult struct {
	URL     string             `json:"url"`
	Routes  []*geojson.Feature `json:"-"`
	Count   int                `json:"routes"`
	Applied bool               `json:"applied"`
}

// ClickResult is the outcome of a map click.
type ClickResult struct {
	Handled bool            `json:"handled"`
	Index   int             `json:"index"`
	Origin  *commute.Origin `json:"origin,omitempty"`
}

type latLon struct{ lat, lon float64 }

// Session is one user's map.
type Session struct {
	id      string
	created time.Time
	// lastSeen holds unix nanoseconds; read by the store's sweeper.
	lastSeen atomic.Int64

	deps   Deps
	styler overlay.Styler
	routes *routecache.Cache
	pick   *pickmode.Controller
	logger logging.Logger

	mu          sync.Mutex
	origins     []commute.Origin
	features    []*geojson.Feature
	layerKey    string
	token       string
	listings    []listing.Listing
	byURL       map[string]int
	display     []listing.DisplayListing
	hullVisible bool
	hoverURL    string
	shownRoutes []*geojson.Feature
	searchSeq   uint64
	geocoded    map[string]latLon
}

// NewSession creates a session with one blank origin row.
func NewSession(id string, deps Deps) *Session {
	deps = deps.withDefaults()
	logger := deps.Logger.Named("mapview").With(logging.String("session_id", id))
	s := &Session{
		id:          id,
		created:     time.Now(),
		deps:        deps,
		styler:      overlay.NewStyler(deps.Palette),
		logger:      logger,
		origins:     []commute.Origin{commute.NewOrigin()},
		byURL:       map[string]int{},
		hullVisible: deps.HullVisible,
		geocoded:    map[string]latLon{},
	}
	s.routes = routecache.New(deps.Routes,
		routecache.WithTimeout(deps.RouteTimeout),
		routecache.WithLogger(logger.Named("routecache")),
		routecache.WithMetrics(deps.Metrics),
	)
	s.pick = pickmode.NewController(deps.Upstream, s,
		pickmode.WithTimeout(deps.Timeout),
		pickmode.WithLogger(logger.Named("pickmode")),
		pickmode.WithMetrics(deps.Metrics),
	)
	s.Touch(s.created)
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Created() time.Time { return s.created }

// Touch records activity at t.
func (s *Session) Touch(t time.Time) { s.lastSeen.Store(t.UnixNano()) }

// LastSeen returns the time of the last recorded activity.
func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

func (s *Session) ctx(ctx context.Context) context.Context {
	return logging.ContextWithSessionID(ctx, s.id)
}

// ─────────────────────────────────────────────────────────────────────────────
// Origins
// ─────────────────────────────────────────────────────────────────────────────

// Origins returns a copy of the origin rows.
func (s *Session) Origins() []commute.Origin {
	s.mu.Lock()
	defer s.mu.Unlock()
	return commute.CloneOrigins(s.origins)
}

// SetOrigins replaces every row. An armed pick is cancelled.
func (s *Session) SetOrigins(origins []commute.Origin) error {
	for i, o := range origins {
		if err := o.Validate(); err != nil {
			return apperrors.Wrap(err, apperrors.GetCode(err), fmt.Sprintf("origin %d is invalid", i))
		}
	}
	s.mu.Lock()
	s.origins = commute.CloneOrigins(origins)
	s.originsChangedLocked()
	s.mu.Unlock()

	s.pick.Cancel()
	return nil
}

// AddOrigin appends a row and returns its index.
func (s *Session) AddOrigin(o commute.Origin) (int, error) {
	if err := o.Validate(); err != nil {
		return -1, err
	}
	s.mu.Lock()
	s.origins = append(s.origins, o.Clone())
	i := len(s.origins) - 1
	s.originsChangedLocked()
	s.mu.Unlock()
	return i, nil
}

// UpdateOrigin applies patch to row i in place.
func (s *Session) UpdateOrigin(i int, patch commute.Patch) (commute.Origin, error) {
	s.mu.Lock()
	if err := s.checkIndexLocked(i); err != nil {
		s.mu.Unlock()
		return commute.Origin{}, err
	}
	updated := patch.Apply(s.origins[i].Clone())
	if err := updated.Validate(); err != nil {
		s.mu.Unlock()
		return commute.Origin{}, err
	}
	s.origins[i] = updated
	s.originsChangedLocked()
	s.mu.Unlock()
	return updated.Clone(), nil
}

// RemoveOrigin deletes row i. A pick armed for it is cancelled and a pick
// armed for a later row follows that row to its new index.
func (s *Session) RemoveOrigin(i int) error {
	s.mu.Lock()
	if err := s.checkIndexLocked(i); err != nil {
		s.mu.Unlock()
		return err
	}
	s.origins = append(s.origins[:i:i], s.origins[i+1:]...)
	s.originsChangedLocked()
	s.mu.Unlock()

	s.pick.CancelIf(i)
	s.pick.Shift(i)
	return nil
}

// originsChangedLocked drops every route computed for the previous origin
// set, cached or shown. The invalidation happens under s.mu so that a hover
// reading the origins also reads the matching cache generation.
func (s *Session) originsChangedLocked() {
	s.routes.Invalidate()
	s.shownRoutes = nil
}

func (s *Session) checkIndexLocked(i int) error {
	if i < 0 || i >= len(s.origins) {
		return apperrors.New(apperrors.ErrCodeOriginIndex, "origin index out of range").
			WithDetail(fmt.Sprintf("index=%d count=%d", i, len(s.origins)))
	}
	return nil
}

// OriginCount implements pickmode.OriginWriter.
func (s *Session) OriginCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.origins)
}

// ApplyPick implements pickmode.OriginWriter.
func (s *Session) ApplyPick(i int, address string, lat, lon float64) error {
	s.mu.Lock()
	if err := s.checkIndexLocked(i); err != nil {
		s.mu.Unlock()
		return err
	}
	s.origins[i] = s.origins[i].WithPick(address, lat, lon)
	s.originsChangedLocked()
	s.mu.Unlock()
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Search
// ─────────────────────────────────────────────────────────────────────────────

// Search fetches the commute area for the current origins and then the
// listings inside it. Input errors are returned before any call is made.
// An empty isoline response yields ErrNoCommuteArea without a listing call.
func (s *Session) Search(ctx context.Context, filter commute.ListingFilter) (SearchResult, error) {
	ctx = s.ctx(ctx)
	start := time.Now()
	log := s.logger.WithContext(ctx)

	s.mu.Lock()
	locations, err := commute.SearchLocations(s.origins)
	if err == nil {
		err = filter.Validate()
	}
	if err != nil {
		s.mu.Unlock()
		prometheus.RecordSearch(s.deps.Metrics, prometheus.SearchInvalidInput, time.Since(start), 0, 0)
		return SearchResult{}, err
	}
	s.searchSeq++
	seq := s.searchSeq
	s.mu.Unlock()

	iso, err := s.fetchIsolines(ctx, locations)
	if err != nil {
		outcome := prometheus.SearchUpstreamError
		if apperrors.IsCode(err, apperrors.ErrCodeNoCommuteArea) {
			outcome = prometheus.SearchNoCommuteArea
		}
		prometheus.RecordSearch(s.deps.Metrics, outcome, time.Since(start), 0, 0)
		log.Warn("isoline fetch failed", logging.Int("locations", len(locations)), logging.Err(err))
		return SearchResult{}, err
	}

	raw, err := s.fetchListings(ctx, filter, iso.Token)
	if err != nil {
		prometheus.RecordSearch(s.deps.Metrics, prometheus.SearchUpstreamError, time.Since(start), len(iso.Features), 0)
		log.Warn("listing fetch failed", logging.Err(err))
		return SearchResult{}, err
	}
	listings, dropped := convertListings(raw)
	display := listing.SpreadRadius(listings, s.deps.SpreadRadius)
	displaced := countDisplaced(display)

	result := SearchResult{
		LayerKey:  uuid.NewString(),
		Features:  len(iso.Features),
		Listings:  len(listings),
		Dropped:   dropped,
		Displaced: displaced,
	}

	s.mu.Lock()
	if seq != s.searchSeq {
		s.mu.Unlock()
		result.Superseded = true
		log.Info("search superseded by a newer one; result discarded")
		return result, nil
	}
	s.features = iso.Features
	s.layerKey = result.LayerKey
	s.token = iso.Token
	s.listings = listings
	s.byURL = make(map[string]int, len(listings))
	for i, l := range listings {
		s.byURL[l.URL] = i
	}
	s.display = display
	s.hoverURL = ""
	s.shownRoutes = nil
	s.routes.Invalidate()
	s.mu.Unlock()

	prometheus.RecordSearch(s.deps.Metrics, prometheus.SearchOK, time.Since(start), result.Features, result.Listings)
	prometheus.RecordListingsDisplaced(s.deps.Metrics, displaced)
	logging.LogOperationDuration(log.With(
		logging.Int("features", result.Features),
		logging.Int("listings", result.Listings),
		logging.Int("dropped", dropped),
		logging.Int("displaced", displaced),
	), "search", start)
	return result, nil
}

func (s *Session) fetchIsolines(ctx context.Context, locations []commute.Location) (*client.IsolineResponse, error) {
	req := client.IsolineRequest{Locations: make([]client.IsolineLocation, len(locations))}
	for i, l := range locations {
		req.Locations[i] = client.IsolineLocation{
			Address: l.Address,
			Time:    l.Time,
			Mode:    string(l.Mode),
			Lat:     l.Lat,
			Lon:     l.Lon,
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.deps.Timeout)
	defer cancel()
	resp, err := s.deps.Upstream.Isolines(callCtx, req)
	if err != nil {
		// The isoline service answers 400 when the areas do not intersect.
		if apiErr, ok := client.AsAPIError(err); ok && apiErr.IsBadRequest() &&
			strings.Contains(strings.ToLower(apiErr.Message), "commute area") {
			return nil, ErrNoCommuteArea.WithCause(err)
		}
		return nil, err
	}
	if resp == nil || len(resp.Features) == 0 {
		return nil, ErrNoCommuteArea
	}
	return resp, nil
}

func (s *Session) fetchListings(ctx context.Context, filter commute.ListingFilter, token string) ([]client.Listing, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.deps.Timeout)
	defer cancel()
	return s.deps.Upstream.Listings(callCtx, filter.Query(token))
}

// convertListings keeps listings with usable coordinates, in order.
func convertListings(raw []client.Listing) ([]listing.Listing, int) {
	out := make([]listing.Listing, 0, len(raw))
	for _, r := range raw {
		if !r.HasCoords() || !geo.ValidLatLon(*r.Lat, *r.Lon) || r.URL == "" {
			continue
		}
		out = append(out, listing.Listing{
			URL:   r.URL,
			Lat:   *r.Lat,
			Lon:   *r.Lon,
			Price: r.Price,
			Title: r.Title,
			Thumb: r.Thumb,
		})
	}
	return out, len(raw) - len(out)
}

func countDisplaced(display []listing.DisplayListing) int {
	n := 0
	for _, d := range display {
		if d.Displaced() {
			n++
		}
	}
	return n
}

// ─────────────────────────────────────────────────────────────────────────────
// Hover
// ─────────────────────────────────────────────────────────────────────────────

// Hover makes url the hover target and fetches its routes. The routes are
// shown only if url is still the hover target when they arrive and the
// origins have not changed in the meantime.
func (s *Session) Hover(ctx context.Context, url string) (HoverResult, error) {
	ctx = s.ctx(ctx)

	s.mu.Lock()
	i, ok := s.byURL[url]
	if !ok {
		s.mu.Unlock()
		return HoverResult{}, ErrListingNotFound.WithDetail(url)
	}
	target := s.listings[i]
	s.hoverURL = url
	s.shownRoutes = nil
	locations, err := commute.SearchLocations(s.origins)
	gen := s.routes.Generation()
	s.mu.Unlock()
	if err != nil {
		locations = nil
	}

	targets := s.resolveTargets(ctx, locations)
	routes := s.routes.GetRoutesAt(ctx, gen, target, targets)

	s.mu.Lock()
	applied := s.hoverURL == url && s.routes.Generation() == gen
	if applied {
		s.shownRoutes = routes
	}
	s.mu.Unlock()

	if !applied {
		s.logger.WithContext(ctx).Debug("discarding routes for stale hover", logging.String("listing_url", url))
	}
	return HoverResult{URL: url, Routes: routes, Count: len(routes), Applied: applied}, nil
}

// Unhover clears the shown routes if url is still the hover target.
func (s *Session) Unhover(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hoverURL != url {
		return false
	}
	s.hoverURL = ""
	s.shownRoutes = nil
	return true
}

// resolveTargets turns locations into route targets. LocID is the index in
// locations. Locations without coordinates are forward-geocoded once per
// address; ones that cannot be resolved are skipped.
func (s *Session) resolveTargets(ctx context.Context, locations []commute.Location) []routecache.Target {
	if len(locations) == 0 {
		return nil
	}
	resolved := make([]*latLon, len(locations))

	s.mu.Lock()
	var missing []int
	for i, l := range locations {
		switch {
		case l.Lat != nil && l.Lon != nil:
			resolved[i] = &latLon{*l.Lat, *l.Lon}
		default:
			if p, ok := s.geocoded[l.Address]; ok {
				p := p
				resolved[i] = &p
			} else {
				missing = append(missing, i)
			}
		}
	}
	s.mu.Unlock()

	if len(missing) > 0 {
		var g errgroup.Group
		g.SetLimit(geocodeParallelism)
		for _, i := range missing {
			i := i
			g.Go(func() error {
				callCtx, cancel := context.WithTimeout(ctx, s.deps.Timeout)
				defer cancel()
				res, err := s.deps.Upstream.Geocode(callCtx, locations[i].Address)
				if err != nil || res == nil || !geo.ValidLatLon(res.Lat, res.Lon) {
					s.logger.WithContext(ctx).Warn("could not geocode origin for routing",
						logging.String("address", locations[i].Address), logging.Err(err))
					return nil
				}
				resolved[i] = &latLon{res.Lat, res.Lon}
				return nil
			})
		}
		_ = g.Wait()

		s.mu.Lock()
		for _, i := range missing {
			if resolved[i] != nil {
				s.geocoded[locations[i].Address] = *resolved[i]
			}
		}
		s.mu.Unlock()
	}

	targets := make([]routecache.Target, 0, len(locations))
	for i, l := range locations {
		if resolved[i] == nil {
			continue
		}
		targets = append(targets, routecache.Target{
			LocID: i,
			Lat:   resolved[i].lat,
			Lon:   resolved[i].lon,
			Mode:  l.Mode,
		})
	}
	return targets
}

// ─────────────────────────────────────────────────────────────────────────────
// Pick, listings, hull
// ─────────────────────────────────────────────────────────────────────────────

// ArmPick awaits a map click for origin row i.
func (s *Session) ArmPick(i int) error { return s.pick.Arm(i) }

// CancelPick abandons an armed pick.
func (s *Session) CancelPick() { s.pick.Cancel() }

// PickState returns the pick controller's state.
func (s *Session) PickState() pickmode.State { return s.pick.State() }

// ClickMap routes a click to the pick controller while it awaits one and
// ignores it otherwise.
func (s *Session) ClickMap(ctx context.Context, lat, lon float64) (ClickResult, error) {
	if !geo.ValidLatLon(lat, lon) {
		return ClickResult{}, apperrors.InvalidParam("click coordinates out of range").
			WithDetail(fmt.Sprintf("lat=%g lon=%g", lat, lon))
	}
	i, err := s.pick.HandleClick(s.ctx(ctx), lat, lon)
	if errors.Is(err, pickmode.ErrNotAwaiting) {
		return ClickResult{Index: -1}, nil
	}
	if err != nil {
		return ClickResult{Handled: true, Index: i}, err
	}

	s.mu.Lock()
	var o *commute.Origin
	if i >= 0 && i < len(s.origins) {
		c := s.origins[i].Clone()
		o = &c
	}
	s.mu.Unlock()
	return ClickResult{Handled: true, Index: i, Origin: o}, nil
}

// OpenListing returns the detail URL for a listing in the current set.
func (s *Session) OpenListing(url string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byURL[url]
	if !ok {
		return "", ErrListingNotFound.WithDetail(url)
	}
	return s.listings[i].URL, nil
}

// SetHullVisible toggles the query hull layer.
func (s *Session) SetHullVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hullVisible = visible
}

// HoverTarget returns the URL currently hovered, or "".
func (s *Session) HoverTarget() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hoverURL
}

// Listings returns the current listings with their display coordinates.
func (s *Session) Listings() []listing.DisplayListing {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]listing.DisplayListing, len(s.display))
	copy(out, s.display)
	return out
}

// RouteCache exposes the session's route cache.
func (s *Session) RouteCache() *routecache.Cache { return s.routes }
