package pickmode

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/rrweller/finn-apartment-finder/pkg/errors"
)

type pick struct {
	index    int
	address  string
	lat, lon float64
}

type fakeOrigins struct {
	mu    sync.Mutex
	count int
	picks []pick
	err   error
}

func (f *fakeOrigins) OriginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func (f *fakeOrigins) ApplyPick(i int, address string, lat, lon float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.picks = append(f.picks, pick{i, address, lat, lon})
	return nil
}

type geocoderFunc func(ctx context.Context, lat, lon float64) (string, error)

func (g geocoderFunc) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	return g(ctx, lat, lon)
}

func fixedAddress(addr string) geocoderFunc {
	return func(context.Context, float64, float64) (string, error) { return addr, nil }
}

func TestController_StartsIdle(t *testing.T) {
	c := NewController(fixedAddress("x"), &fakeOrigins{count: 1})
	assert.Equal(t, Idle, c.State())
	assert.False(t, c.Awaiting())
	assert.Equal(t, "idle", c.State().String())
}

func TestArm_ValidatesIndex(t *testing.T) {
	c := NewController(fixedAddress("x"), &fakeOrigins{count: 2})

	err := c.Arm(2)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeOriginIndex))
	assert.False(t, c.Awaiting())

	require.NoError(t, c.Arm(1))
	assert.Equal(t, State{Awaiting: true, Index: 1}, c.State())
	assert.Equal(t, "awaiting(1)", c.State().String())
}

func TestArm_RetargetsSingleSlot(t *testing.T) {
	origins := &fakeOrigins{count: 3}
	c := NewController(fixedAddress("Karl Johans gate 1, Oslo"), origins)

	require.NoError(t, c.Arm(0))
	require.NoError(t, c.Arm(2))

	idx, err := c.HandleClick(context.Background(), 59.91, 10.74)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
	require.Len(t, origins.picks, 1)
	assert.Equal(t, pick{2, "Karl Johans gate 1, Oslo", 59.91, 10.74}, origins.picks[0])
}

func TestHandleClick_WhileIdle(t *testing.T) {
	called := false
	c := NewController(geocoderFunc(func(context.Context, float64, float64) (string, error) {
		called = true
		return "x", nil
	}), &fakeOrigins{count: 1})

	_, err := c.HandleClick(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrNotAwaiting)
	assert.False(t, called)
}

func TestHandleClick_SuccessReturnsToIdle(t *testing.T) {
	origins := &fakeOrigins{count: 1}
	c := NewController(fixedAddress("  Storgata 5, Oslo "), origins)
	require.NoError(t, c.Arm(0))

	_, err := c.HandleClick(context.Background(), 59.9, 10.7)
	require.NoError(t, err)
	assert.False(t, c.Awaiting())
	assert.Equal(t, "Storgata 5, Oslo", origins.picks[0].address)
}

func TestHandleClick_GeocodeErrorLeavesOriginAndReturnsToIdle(t *testing.T) {
	origins := &fakeOrigins{count: 1}
	c := NewController(geocoderFunc(func(context.Context, float64, float64) (string, error) {
		return "", apperrors.Upstream("reverse geocode returned 404")
	}), origins)
	require.NoError(t, c.Arm(0))

	_, err := c.HandleClick(context.Background(), 59.9, 10.7)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeReverseGeocode))
	assert.Empty(t, origins.picks)
	assert.False(t, c.Awaiting())
}

func TestHandleClick_EmptyAddressIsFailure(t *testing.T) {
	origins := &fakeOrigins{count: 1}
	c := NewController(fixedAddress("   "), origins)
	require.NoError(t, c.Arm(0))

	_, err := c.HandleClick(context.Background(), 59.9, 10.7)
	assert.ErrorIs(t, err, ErrEmptyAddress)
	assert.Empty(t, origins.picks)
	assert.False(t, c.Awaiting())
}

func TestHandleClick_CancelledWhileResolving(t *testing.T) {
	origins := &fakeOrigins{count: 2}
	release := make(chan struct{})
	started := make(chan struct{})
	c := NewController(geocoderFunc(func(context.Context, float64, float64) (string, error) {
		close(started)
		<-release
		return "Somewhere 1", nil
	}), origins)
	require.NoError(t, c.Arm(0))

	errCh := make(chan error, 1)
	go func() {
		_, err := c.HandleClick(context.Background(), 59.9, 10.7)
		errCh <- err
	}()
	<-started
	require.NoError(t, c.Arm(1))
	close(release)

	err := <-errCh
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConflict))
	assert.Empty(t, origins.picks)
	assert.Equal(t, State{Awaiting: true, Index: 1}, c.State())
}

func TestHandleClick_WriterError(t *testing.T) {
	origins := &fakeOrigins{count: 1, err: errors.New("row gone")}
	c := NewController(fixedAddress("x"), origins)
	require.NoError(t, c.Arm(0))

	_, err := c.HandleClick(context.Background(), 1, 2)
	assert.EqualError(t, err, "row gone")
	assert.False(t, c.Awaiting())
}

func TestCancelIfAndShift(t *testing.T) {
	c := NewController(fixedAddress("x"), &fakeOrigins{count: 4})
	require.NoError(t, c.Arm(2))

	assert.False(t, c.CancelIf(1))
	c.Shift(0)
	assert.Equal(t, 1, c.State().Index)
	c.Shift(3)
	assert.Equal(t, 1, c.State().Index)

	assert.True(t, c.CancelIf(1))
	assert.False(t, c.Awaiting())

	require.NoError(t, c.Arm(0))
	c.Cancel()
	assert.Equal(t, Idle, c.State())
}

func TestHandleClick_SecondClickWhileResolvingRefused(t *testing.T) {
	origins := &fakeOrigins{count: 1}
	release := make(chan struct{})
	started := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	c := NewController(geocoderFunc(func(context.Context, float64, float64) (string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		close(started)
		<-release
		return "Storgata 1, Oslo", nil
	}), origins)
	require.NoError(t, c.Arm(0))

	errCh := make(chan error, 1)
	go func() {
		_, err := c.HandleClick(context.Background(), 59.91, 10.75)
		errCh <- err
	}()
	<-started

	assert.False(t, c.Awaiting())
	assert.Equal(t, State{Resolving: true, Index: 0}, c.State())
	assert.Equal(t, "resolving(0)", c.State().String())

	_, err := c.HandleClick(context.Background(), 60.39, 5.32)
	assert.ErrorIs(t, err, ErrNotAwaiting)

	close(release)
	require.NoError(t, <-errCh)

	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
	require.Len(t, origins.picks, 1)
	assert.Equal(t, pick{0, "Storgata 1, Oslo", 59.91, 10.75}, origins.picks[0])
	assert.Equal(t, Idle, c.State())
}

func TestHandleClick_FollowsRowShiftedWhileResolving(t *testing.T) {
	origins := &fakeOrigins{count: 3}
	release := make(chan struct{})
	started := make(chan struct{})
	c := NewController(geocoderFunc(func(context.Context, float64, float64) (string, error) {
		close(started)
		<-release
		return "Bygdøy allé 2", nil
	}), origins)
	require.NoError(t, c.Arm(2))

	type result struct {
		index int
		err   error
	}
	done := make(chan result, 1)
	go func() {
		i, err := c.HandleClick(context.Background(), 59.92, 10.71)
		done <- result{i, err}
	}()
	<-started

	assert.False(t, c.CancelIf(0))
	c.Shift(0)
	close(release)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, 1, res.index)
	require.Len(t, origins.picks, 1)
	assert.Equal(t, 1, origins.picks[0].index)
}

func TestCancel_WhileResolvingDropsResult(t *testing.T) {
	origins := &fakeOrigins{count: 1}
	release := make(chan struct{})
	started := make(chan struct{})
	c := NewController(geocoderFunc(func(context.Context, float64, float64) (string, error) {
		close(started)
		<-release
		return "Somewhere 1", nil
	}), origins)
	require.NoError(t, c.Arm(0))

	errCh := make(chan error, 1)
	go func() {
		_, err := c.HandleClick(context.Background(), 59.9, 10.7)
		errCh <- err
	}()
	<-started
	c.Cancel()
	close(release)

	err := <-errCh
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConflict))
	assert.Empty(t, origins.picks)
	assert.Equal(t, Idle, c.State())
}
