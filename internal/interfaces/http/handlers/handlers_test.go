package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/rrweller/finn-apartment-finder/internal/application/mapview"
	"github.com/rrweller/finn-apartment-finder/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	router *gin.Engine
	store  *mapview.Store
	up     *testutil.UpstreamMock
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	up := testutil.NewUpstreamMock()
	store := mapview.NewStore(mapview.StoreConfig{}, mapview.Deps{Upstream: up, Logger: testutil.NewMockLogger()})

	r := gin.New()
	api := r.Group("/api/v1")
	NewSessionHandler(store, testutil.NewMockLogger()).RegisterRoutes(api)
	NewGeocodeHandler(up).RegisterRoutes(api)
	return &testAPI{router: r, store: store, up: up}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

// newSession creates a session over HTTP and returns its base path.
func (a *testAPI) newSession(t *testing.T) string {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var resp CreateSessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return "/api/v1/sessions/" + resp.ID
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
