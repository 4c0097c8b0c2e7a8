package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb/geojson"

	"github.com/rrweller/finn-apartment-finder/internal/application/mapview"
	"github.com/rrweller/finn-apartment-finder/internal/domain/commute"
	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/monitoring/logging"
	apperrors "github.com/rrweller/finn-apartment-finder/pkg/errors"
)

// SessionStore is the part of mapview.Store the handlers use.
type SessionStore interface {
	Create() (*mapview.Session, error)
	Get(id string) (*mapview.Session, error)
	Delete(id string) error
}

var _ SessionStore = (*mapview.Store)(nil)

const sessionKey = "session"

// SessionHandler exposes map sessions over HTTP.
type SessionHandler struct {
	store  SessionStore
	logger logging.Logger
}

func NewSessionHandler(store SessionStore, logger logging.Logger) *SessionHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &SessionHandler{store: store, logger: logger.Named("http.sessions")}
}

// RegisterRoutes mounts the session routes under rg.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sessions", h.Create)

	s := rg.Group("/sessions/:id", h.loadSession)
	s.GET("", h.Render)
	s.DELETE("", h.Delete)

	s.GET("/origins", h.ListOrigins)
	s.PUT("/origins", h.ReplaceOrigins)
	s.POST("/origins", h.AddOrigin)
	s.PATCH("/origins/:index", h.UpdateOrigin)
	s.DELETE("/origins/:index", h.RemoveOrigin)

	s.POST("/search", h.Search)
	s.PUT("/hull", h.SetHull)
	s.POST("/hover", h.Hover)
	s.DELETE("/hover", h.Unhover)
	s.POST("/pick/:index", h.ArmPick)
	s.DELETE("/pick", h.CancelPick)
	s.POST("/click", h.Click)
	s.POST("/listings/open", h.OpenListing)
}

func (h *SessionHandler) loadSession(c *gin.Context) {
	s, err := h.store.Get(c.Param("id"))
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.Request = c.Request.WithContext(logging.ContextWithSessionID(c.Request.Context(), s.ID()))
	c.Set(sessionKey, s)
	c.Next()
}

func session(c *gin.Context) *mapview.Session {
	return c.MustGet(sessionKey).(*mapview.Session)
}

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────────────────────

// CreateSessionResponse is returned by POST /sessions.
type CreateSessionResponse struct {
	ID string `json:"id"`
}

func (h *SessionHandler) Create(c *gin.Context) {
	s, err := h.store.Create()
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.Header("Location", c.Request.URL.Path+"/"+s.ID())
	c.JSON(http.StatusCreated, CreateSessionResponse{ID: s.ID()})
}

// Render returns the full render model.
func (h *SessionHandler) Render(c *gin.Context) {
	c.JSON(http.StatusOK, session(c).Render())
}

func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.store.Delete(c.Param("id")); err != nil {
		writeAppError(c, err)
		return
	}
	noContent(c)
}

// ─────────────────────────────────────────────────────────────────────────────
// Origins
// ─────────────────────────────────────────────────────────────────────────────

// OriginsBody wraps the origin list in requests and responses.
type OriginsBody struct {
	Origins []commute.Origin `json:"origins"`
}

// OriginResponse is one row and its position.
type OriginResponse struct {
	Index  int            `json:"index"`
	Origin commute.Origin `json:"origin"`
}

func (h *SessionHandler) ListOrigins(c *gin.Context) {
	c.JSON(http.StatusOK, OriginsBody{Origins: session(c).Origins()})
}

func (h *SessionHandler) ReplaceOrigins(c *gin.Context) {
	var body OriginsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid origins body", err)
		return
	}
	s := session(c)
	if err := s.SetOrigins(body.Origins); err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, OriginsBody{Origins: s.Origins()})
}

// AddOrigin appends a row; an empty body appends a default row.
func (h *SessionHandler) AddOrigin(c *gin.Context) {
	o := commute.NewOrigin()
	if err := bindOptionalJSON(c, &o); err != nil {
		badRequest(c, "invalid origin body", err)
		return
	}
	i, err := session(c).AddOrigin(o)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, OriginResponse{Index: i, Origin: o})
}

func (h *SessionHandler) UpdateOrigin(c *gin.Context) {
	i, ok := indexParam(c, "index")
	if !ok {
		return
	}
	var patch commute.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid origin patch", err)
		return
	}
	o, err := session(c).UpdateOrigin(i, patch)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, OriginResponse{Index: i, Origin: o})
}

func (h *SessionHandler) RemoveOrigin(c *gin.Context) {
	i, ok := indexParam(c, "index")
	if !ok {
		return
	}
	if err := session(c).RemoveOrigin(i); err != nil {
		writeAppError(c, err)
		return
	}
	noContent(c)
}

// ─────────────────────────────────────────────────────────────────────────────
// Search and overlay
// ─────────────────────────────────────────────────────────────────────────────

// Search runs a commute search; the body is an optional listing filter.
func (h *SessionHandler) Search(c *gin.Context) {
	var filter commute.ListingFilter
	if err := bindOptionalJSON(c, &filter); err != nil {
		badRequest(c, "invalid listing filter", err)
		return
	}
	res, err := session(c).Search(c.Request.Context(), filter)
	if err != nil {
		if apperrors.IsServerError(apperrors.GetCode(err)) {
			requestLogger(c, h.logger).Error("search failed", logging.Err(err))
		}
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HullBody toggles the query hull.
type HullBody struct {
	Visible *bool `json:"visible" binding:"required"`
}

func (h *SessionHandler) SetHull(c *gin.Context) {
	var body HullBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "visible is required", err)
		return
	}
	session(c).SetHullVisible(*body.Visible)
	c.JSON(http.StatusOK, gin.H{"visible": *body.Visible})
}

// URLBody names a listing.
type URLBody struct {
	URL string `json:"url" binding:"required"`
}

// HoverResponse carries the route lines of a hovered listing.
type HoverResponse struct {
	URL      string                     `json:"url"`
	Applied  bool                       `json:"applied"`
	Count    int                        `json:"count"`
	Features *geojson.FeatureCollection `json:"features"`
}

func (h *SessionHandler) Hover(c *gin.Context) {
	var body URLBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "url is required", err)
		return
	}
	res, err := session(c).Hover(c.Request.Context(), body.URL)
	if err != nil {
		writeAppError(c, err)
		return
	}
	fc := geojson.NewFeatureCollection()
	for _, f := range res.Routes {
		fc.Append(f)
	}
	c.JSON(http.StatusOK, HoverResponse{URL: res.URL, Applied: res.Applied, Count: res.Count, Features: fc})
}

// Unhover clears the routes of ?url= if it is still the hover target.
func (h *SessionHandler) Unhover(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		badRequest(c, "url is required", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": session(c).Unhover(url)})
}

// ─────────────────────────────────────────────────────────────────────────────
// Pick mode
// ─────────────────────────────────────────────────────────────────────────────

func (h *SessionHandler) ArmPick(c *gin.Context) {
	i, ok := indexParam(c, "index")
	if !ok {
		return
	}
	s := session(c)
	if err := s.ArmPick(i); err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.PickState())
}

func (h *SessionHandler) CancelPick(c *gin.Context) {
	s := session(c)
	s.CancelPick()
	c.JSON(http.StatusOK, s.PickState())
}

// ClickBody is a map click.
type ClickBody struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lon *float64 `json:"lon" binding:"required"`
}

func (h *SessionHandler) Click(c *gin.Context) {
	var body ClickBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "lat and lon are required", err)
		return
	}
	res, err := session(c).ClickMap(c.Request.Context(), *body.Lat, *body.Lon)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ─────────────────────────────────────────────────────────────────────────────
// Listings
// ─────────────────────────────────────────────────────────────────────────────

func (h *SessionHandler) OpenListing(c *gin.Context) {
	var body URLBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "url is required", err)
		return
	}
	url, err := session(c).OpenListing(body.URL)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, URLBody{URL: url})
}
