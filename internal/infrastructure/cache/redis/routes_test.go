package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rrweller/finn-apartment-finder/internal/testutil"
	"github.com/rrweller/finn-apartment-finder/pkg/client"
)

var (
	testOrigin = client.LatLon{Lat: 59.92, Lon: 10.75}
	targetA    = client.RouteTarget{Lat: 59.91, Lon: 10.73, Mode: "drive", LocID: 0}
	targetB    = client.RouteTarget{Lat: 59.95, Lon: 10.80, Mode: "transit", LocID: 1}
)

func newRouteStore(t *testing.T, up RouteFetcher) (*RouteStore, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	c := NewClientFromRDB(db, nil)
	cache := NewRedisCache(c, nil, WithPrefix("cm:"), WithJitter(0))
	return NewRouteStore(cache, up, time.Hour, testutil.NewMockLogger(), nil), mock
}

func routeLine(locID int) *geojson.Feature {
	f := geojson.NewFeature(orb.LineString{{10.75, 59.92}, {10.73, 59.91}})
	f.Properties["locId"] = locID
	return f
}

func TestRouteKey(t *testing.T) {
	k1 := RouteKey(testOrigin, targetA)
	assert.Regexp(t, `^route:[0-9a-f]{40}$`, k1)

	// locId does not take part in the key
	moved := targetA
	moved.LocID = 5
	assert.Equal(t, k1, RouteKey(testOrigin, moved))

	// neither do differences past the fifth decimal
	jitter := targetA
	jitter.Lat += 0.000001
	assert.Equal(t, k1, RouteKey(testOrigin, jitter))

	other := targetA
	other.Mode = "walk"
	assert.NotEqual(t, k1, RouteKey(testOrigin, other))
}

func TestRouteStore_AllStored(t *testing.T) {
	up := testutil.NewUpstreamMock()
	store, mock := newRouteStore(t, up)

	storedA, _ := json.Marshal(routeLine(9))
	storedB, _ := json.Marshal(routeLine(9))
	mock.ExpectMGet("cm:"+RouteKey(testOrigin, targetA), "cm:"+RouteKey(testOrigin, targetB)).
		SetVal([]interface{}{string(storedA), string(storedB)})

	got, err := store.Routes(context.Background(), client.RouteRequest{Origin: testOrigin, Targets: []client.RouteTarget{targetA, targetB}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Properties["locId"])
	assert.Equal(t, 1, got[1].Properties["locId"])
	assert.Equal(t, 0, up.Calls("Routes"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRouteStore_FetchesOnlyMissing(t *testing.T) {
	up := testutil.NewUpstreamMock()
	fetchedB := routeLine(1)
	up.RoutesFunc = func(ctx context.Context, req client.RouteRequest) ([]*geojson.Feature, error) {
		return []*geojson.Feature{fetchedB}, nil
	}
	store, mock := newRouteStore(t, up)

	keyA := "cm:" + RouteKey(testOrigin, targetA)
	keyB := "cm:" + RouteKey(testOrigin, targetB)
	storedA, _ := json.Marshal(routeLine(0))
	mock.ExpectMGet(keyA, keyB).SetVal([]interface{}{string(storedA), nil})
	wantB, _ := json.Marshal(fetchedB)
	mock.ExpectSet(keyB, wantB, time.Hour).SetVal("OK")

	got, err := store.Routes(context.Background(), client.RouteRequest{Origin: testOrigin, Targets: []client.RouteTarget{targetA, targetB}})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, up.Calls("Routes"))
	assert.Equal(t, []client.RouteTarget{targetB}, up.LastRouteReq.Targets)
	assert.Equal(t, testOrigin, up.LastRouteReq.Origin)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRouteStore_UnroutedTargetIsSkippedAndNotStored(t *testing.T) {
	up := testutil.NewUpstreamMock()
	up.RoutesFunc = func(ctx context.Context, req client.RouteRequest) ([]*geojson.Feature, error) {
		return []*geojson.Feature{}, nil
	}
	store, mock := newRouteStore(t, up)
	mock.ExpectMGet("cm:" + RouteKey(testOrigin, targetA)).SetVal([]interface{}{nil})

	got, err := store.Routes(context.Background(), client.RouteRequest{Origin: testOrigin, Targets: []client.RouteTarget{targetA}})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRouteStore_RedisDownFallsBackToUpstream(t *testing.T) {
	up := testutil.NewUpstreamMock()
	store, mock := newRouteStore(t, up)
	key := "cm:" + RouteKey(testOrigin, targetA)
	mock.ExpectMGet(key).SetErr(errors.New("connection refused"))
	mock.ExpectSet(key, mustJSON(t, testutil.CannedRoutes(client.RouteRequest{Origin: testOrigin, Targets: []client.RouteTarget{targetA}})[0]), time.Hour).
		SetErr(errors.New("connection refused"))

	got, err := store.Routes(context.Background(), client.RouteRequest{Origin: testOrigin, Targets: []client.RouteTarget{targetA}})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, up.Calls("Routes"))

	logs := store.logger.(*testutil.MockLogger)
	assert.True(t, logs.HasMessage("warn", "route store read failed"))
	assert.True(t, logs.HasMessage("warn", "route store write failed"))
}

func TestRouteStore_UpstreamErrorPropagates(t *testing.T) {
	up := testutil.NewUpstreamMock()
	boom := errors.New("boom")
	up.RoutesFunc = func(ctx context.Context, req client.RouteRequest) ([]*geojson.Feature, error) {
		return nil, boom
	}
	store, mock := newRouteStore(t, up)
	mock.ExpectMGet("cm:" + RouteKey(testOrigin, targetA)).SetVal([]interface{}{nil})

	_, err := store.Routes(context.Background(), client.RouteRequest{Origin: testOrigin, Targets: []client.RouteTarget{targetA}})
	assert.ErrorIs(t, err, boom)
}

func TestRouteStore_NoTargets(t *testing.T) {
	up := testutil.NewUpstreamMock()
	store, mock := newRouteStore(t, up)

	got, err := store.Routes(context.Background(), client.RouteRequest{Origin: testOrigin})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, 0, up.Calls("Routes"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRouteStore_Purge(t *testing.T) {
	store, mock := newRouteStore(t, testutil.NewUpstreamMock())
	mock.ExpectScan(0, "cm:route:*", 100).SetVal([]string{"cm:route:x"}, 0)
	mock.ExpectDel("cm:route:x").SetVal(1)

	n, err := store.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
