package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rrweller/finn-apartment-finder/pkg/client"
)

// Geocoder resolves a free-text address.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*client.GeocodeResult, error)
}

// GeocodeHandler proxies address lookups for the address input.
type GeocodeHandler struct {
	geocoder Geocoder
}

func NewGeocodeHandler(g Geocoder) *GeocodeHandler {
	return &GeocodeHandler{geocoder: g}
}

func (h *GeocodeHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/geocode", h.Geocode)
}

func (h *GeocodeHandler) Geocode(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		badRequest(c, "q is required", nil)
		return
	}
	res, err := h.geocoder.Geocode(c.Request.Context(), q)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
