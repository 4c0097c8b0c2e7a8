package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rrweller/finn-apartment-finder/internal/config"
	"github.com/rrweller/finn-apartment-finder/internal/domain/listing"
	"github.com/rrweller/finn-apartment-finder/internal/domain/overlay"
	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/cache/redis"
	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/monitoring/logging"
	"github.com/rrweller/finn-apartment-finder/internal/testutil"
)

// writeFile writes content into a temp dir and returns its path.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func quietConfig(t *testing.T) string {
	return writeFile(t, "commutemap.yaml", "log:\n  level: error\n  output_paths: [stderr]\n")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", quietConfig(t)}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand_Structure(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "commutemap", cmd.Use)
	assert.NotEmpty(t, cmd.Short)

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"serve", "routes", "spread", "style", "version"} {
		assert.True(t, names[want], want)
	}
	for _, flag := range []string{"config", "log-level", "output"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestRootCommand_RejectsUnknownOutput(t *testing.T) {
	_, err := run(t, "--output", "yaml", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestRootCommand_MissingConfigFile(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "version"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config initialization failed")
}

func TestVersion_JSON(t *testing.T) {
	out, err := run(t, "-o", "json", "version")
	require.NoError(t, err)

	var info BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

const colocated = `[
  {"url": "a", "lat": 59.91, "lon": 10.75, "price": 1000000, "title": "A"},
  {"url": "b", "lat": 59.91, "lon": 10.75, "price": 2000000, "title": "B"},
  {"url": "c", "lat": 59.95, "lon": 10.70, "price": 3000000, "title": "C"}
]`

func TestSpread_JSON(t *testing.T) {
	path := writeFile(t, "listings.json", colocated)
	out, err := run(t, "-o", "json", "spread", path)
	require.NoError(t, err)

	var res SpreadResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, listing.DefaultSpreadRadius, res.Radius)
	assert.Equal(t, 1, res.Groups)
	assert.Equal(t, 2, res.Displaced)
	require.Len(t, res.Listings, 3)
	assert.NotEqual(t, res.Listings[0].DisplayLat, res.Listings[1].DisplayLat)
	assert.Equal(t, 59.95, res.Listings[2].DisplayLat)
}

func TestSpread_TableFromStdin(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(colocated))
	cmd.SetArgs([]string{"--config", quietConfig(t), "-o", "table", "spread", "--radius", "50", "-"})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "URL"))
	assert.Contains(t, lines[4], "3 000 000 kr")
}

func TestSpread_Errors(t *testing.T) {
	_, err := run(t, "spread", filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)

	_, err = run(t, "spread", writeFile(t, "bad.json", `{"url": "x"}`))
	assert.Error(t, err)

	_, err = run(t, "spread", "--radius", "0", writeFile(t, "ok.json", colocated))
	assert.Error(t, err)
}

func TestStyle_Table(t *testing.T) {
	out, err := run(t, "-o", "table", "style", "--origins", "2", "--palette", "#000000,#ffffff")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2+2+3)
	assert.Contains(t, lines[2], "#000000")
	assert.Contains(t, lines[3], "#ffffff")
	assert.Contains(t, lines[4], string(overlay.RoleIntersection))
	assert.Contains(t, lines[5], string(overlay.RoleQueryHull))
	assert.Contains(t, lines[6], "route")
}

func TestStyle_PaletteCycles(t *testing.T) {
	table := styleTable(overlay.Palette{"#111111", "#222222"}, 3)
	assert.Equal(t, "#111111", table.Rows[2].Style.StrokeColor)
	assert.Equal(t, "#111111", table.Rows[2].Style.FillColor)
}

func TestStyle_RejectsBadPalette(t *testing.T) {
	_, err := run(t, "style", "--palette", "red")
	assert.Error(t, err)
}

func TestFormatTable(t *testing.T) {
	got := FormatTable([]string{"A", "BB"}, [][]string{{"xxx", "y"}})
	assert.Equal(t, "A    BB\n---  --\nxxx  y\n", got)
	assert.Empty(t, FormatTable(nil, nil))
}

func TestBuildApp_ServesHealthAndSessions(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()

	cfg := config.NewDefault()
	cfg.Upstream.BaseURL = upstream.URL
	cfg.Server.Mode = "test"

	app, err := BuildApp(context.Background(), cfg, testutil.NewMockLogger())
	require.NoError(t, err)
	defer app.Close(context.Background())

	h := app.Server.Handler()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, app.Store.Len())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "commutemap_sessions_created_total 1")
}

func TestBuildApp_RedisDownStillStarts(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Server.Mode = "test"
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = "127.0.0.1:1"
	cfg.Redis.DialTimeout = 100 * time.Millisecond

	logger := testutil.NewMockLogger()
	app, err := BuildApp(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer app.Close(context.Background())
	assert.True(t, logger.HasMessage("warn", "redis unavailable, sharing routes per session only"))
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Server.Mode = "test"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0

	app, err := BuildApp(context.Background(), cfg, testutil.NewMockLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}

func TestRoutesPurge_RedisDisabled(t *testing.T) {
	_, err := run(t, "routes", "purge")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis is disabled")
}

func TestRoutesPurge_DeletesSharedRoutes(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectScan(0, "cm:route:*", 100).SetVal([]string{"cm:route:a", "cm:route:b"}, 0)
	mock.ExpectDel("cm:route:a", "cm:route:b").SetVal(2)

	var gotAddr string
	orig := connectRedis
	connectRedis = func(cfg config.RedisConfig, log logging.Logger) (*redis.Client, error) {
		gotAddr = cfg.Addr
		return redis.NewClientFromRDB(db, log), nil
	}
	t.Cleanup(func() { connectRedis = orig })

	path := writeFile(t, "commutemap.yaml",
		"log:\n  level: error\n  output_paths: [stderr]\n"+
			"redis:\n  enabled: true\n  addr: cache:6379\n  key_prefix: \"cm:\"\n")
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", path, "-o", "json", "routes", "purge"})
	require.NoError(t, cmd.Execute())

	var res PurgeResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, PurgeResult{Addr: "cache:6379", Prefix: "cm:", Deleted: 2}, res)
	assert.Equal(t, "cache:6379", gotAddr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoutesPurge_ConnectFailure(t *testing.T) {
	orig := connectRedis
	connectRedis = func(config.RedisConfig, logging.Logger) (*redis.Client, error) {
		return nil, redis.ErrConnectionFailed
	}
	t.Cleanup(func() { connectRedis = orig })

	path := writeFile(t, "commutemap.yaml",
		"log:\n  level: error\n  output_paths: [stderr]\nredis:\n  enabled: true\n  addr: cache:6379\n")
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", path, "routes", "purge"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis connection failed")
}
