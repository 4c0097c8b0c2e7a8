// Package pickmode implements the single-slot "pick an origin on the map"
// state machine.
package pickmode

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/monitoring/logging"
	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/monitoring/prometheus"
	apperrors "github.com/rrweller/finn-apartment-finder/pkg/errors"
)

// DefaultTimeout bounds one reverse-geocode request.
const DefaultTimeout = 10 * time.Second

// Pick outcomes reported to metrics.
const (
	OutcomePicked  = "picked"
	OutcomeFailed  = "failed"
	OutcomeEmpty   = "empty"
	OutcomeDropped = "dropped"
	OutcomeIgnored = "ignored"
)

// ErrNotAwaiting is returned for a click while no row is armed.
var ErrNotAwaiting = apperrors.New(apperrors.ErrCodeNotAwaitingPick, "no origin is awaiting a map pick")

// ErrEmptyAddress is returned when the geocoder resolved the point to nothing.
var ErrEmptyAddress = apperrors.New(apperrors.ErrCodeReverseGeocode, "could not reverse-geocode that point")

// ReverseGeocoder resolves a coordinate to a display address.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

// OriginWriter is the view-side owner of the origin rows.
type OriginWriter interface {
	// OriginCount returns the current number of rows.
	OriginCount() int
	// ApplyPick sets row i's address and coordinates. It fails when i no
	// longer names a row.
	ApplyPick(i int, address string, lat, lon float64) error
}

// State is the controller's externally visible state. Resolving is set
// between a click being taken and its reverse geocode settling; Index then
// names the row the click will write to.
type State struct {
	Awaiting  bool `json:"awaiting"`
	Resolving bool `json:"resolving,omitempty"`
	Index     int  `json:"index"`
}

func (s State) active() bool { return s.Awaiting || s.Resolving }

// Idle is the zero state.
var Idle = State{Index: -1}

// String implements fmt.Stringer.
func (s State) String() string {
	switch {
	case s.Awaiting:
		return fmt.Sprintf("awaiting(%d)", s.Index)
	case s.Resolving:
		return fmt.Sprintf("resolving(%d)", s.Index)
	}
	return "idle"
}

// Option configures a Controller.
type Option func(*Controller)

func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *prometheus.AppMetrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller holds at most one armed origin row. Arming another row while
// one is armed retargets the slot. The first click takes the slot, so later
// clicks are refused until the controller is armed again. Every click
// resolution, successful or not, returns the controller to Idle.
type Controller struct {
	geocoder ReverseGeocoder
	origins  OriginWriter
	timeout  time.Duration
	logger   logging.Logger
	metrics  *prometheus.AppMetrics

	mu    sync.Mutex
	state State
	// epoch changes on every Arm, Cancel and accepted click so a click
	// resolving after the slot moved does not write to the wrong row.
	epoch uint64
}

// NewController creates an idle controller.
func NewController(geocoder ReverseGeocoder, origins OriginWriter, opts ...Option) *Controller {
	c := &Controller{
		geocoder: geocoder,
		origins:  origins,
		timeout:  DefaultTimeout,
		logger:   logging.NewNopLogger(),
		state:    Idle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Arm awaits a click for origin row i.
func (c *Controller) Arm(i int) error {
	if n := c.origins.OriginCount(); i < 0 || i >= n {
		return apperrors.New(apperrors.ErrCodeOriginIndex, "origin index out of range").
			WithDetail(fmt.Sprintf("index=%d count=%d", i, n))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = State{Awaiting: true, Index: i}
	c.epoch++
	return nil
}

// Cancel returns to Idle.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.active() {
		c.epoch++
	}
	c.state = Idle
}

// CancelIf returns to Idle when row i is the armed one.
func (c *Controller) CancelIf(i int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.active() || c.state.Index != i {
		return false
	}
	c.state = Idle
	c.epoch++
	return true
}

// Shift keeps the armed or resolving slot on the same row after row
// removed is deleted.
func (c *Controller) Shift(removed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.active() && c.state.Index > removed {
		c.state.Index--
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Awaiting() bool {
	return c.State().Awaiting
}

// HandleClick resolves the clicked point for the armed row. The click takes
// the slot before the geocoder is called; a second click arriving meanwhile
// gets ErrNotAwaiting. On success the row gets the returned address and the
// clicked coordinates. A geocoder error or an empty address leaves the row
// unchanged and is returned. Either way the controller is Idle afterwards
// unless it was re-armed meanwhile.
func (c *Controller) HandleClick(ctx context.Context, lat, lon float64) (int, error) {
	c.mu.Lock()
	if !c.state.Awaiting {
		c.mu.Unlock()
		prometheus.RecordPick(c.metrics, OutcomeIgnored)
		return -1, ErrNotAwaiting
	}
	index := c.state.Index
	c.state = State{Resolving: true, Index: index}
	c.epoch++
	epoch := c.epoch
	c.mu.Unlock()

	log := c.logger.WithContext(ctx).With(logging.Int("origin_index", index))

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	address, err := c.geocoder.ReverseGeocode(callCtx, lat, lon)
	cancel()
	address = strings.TrimSpace(address)

	c.mu.Lock()
	current := c.epoch == epoch
	if current {
		// Rows removed meanwhile may have moved the target.
		index = c.state.Index
		c.state = Idle
		c.epoch++
	}
	c.mu.Unlock()

	switch {
	case err != nil:
		log.Warn("reverse geocode failed", logging.Float64("lat", lat), logging.Float64("lon", lon), logging.Err(err))
		prometheus.RecordPick(c.metrics, OutcomeFailed)
		return index, apperrors.Wrap(err, apperrors.ErrCodeReverseGeocode, "could not reverse-geocode that point")
	case address == "":
		log.Warn("reverse geocode returned no address", logging.Float64("lat", lat), logging.Float64("lon", lon))
		prometheus.RecordPick(c.metrics, OutcomeEmpty)
		return index, ErrEmptyAddress
	case !current:
		log.Info("pick superseded before geocode resolved")
		prometheus.RecordPick(c.metrics, OutcomeDropped)
		return index, apperrors.InvalidState("pick was cancelled or retargeted")
	}

	if err := c.origins.ApplyPick(index, address, lat, lon); err != nil {
		prometheus.RecordPick(c.metrics, OutcomeDropped)
		return index, err
	}
	log.Info("origin picked on map", logging.String("address", address))
	prometheus.RecordPick(c.metrics, OutcomePicked)
	return index, nil
}
