package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jo-hoe/travelgallery/internal/model"
)

type fakeGeocoder struct {
	mu     sync.Mutex
	starts []time.Time
	fail   map[float64]bool
}

func (f *fakeGeocoder) ReverseGeocode(_ context.Context, lat, lon float64) (*model.LocationInfo, error) {
	f.mu.Lock()
	f.starts = append(f.starts, time.Now())
	f.mu.Unlock()
	if f.fail[lat] {
		return nil, errors.New("provider down")
	}
	return &model.LocationInfo{LocationName: "place", City: "city"}, nil
}

type fakeDirections struct {
	res *Result
	err error
	got Request
}

func (f *fakeDirections) GetDirections(_ context.Context, req Request) (*Result, error) {
	f.got = req
	return f.res, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGateway_ReverseGeocodeRespectsMinDelay(t *testing.T) {
	geo := &fakeGeocoder{}
	const minDelay = 150 * time.Millisecond
	g := New(quietLogger(), geo, nil, Options{GeocodeDelay: minDelay}, nil)
	defer g.Close()

	ctx := context.Background()
	require.NotNil(t, g.ReverseGeocode(ctx, 1, 1))
	require.NotNil(t, g.ReverseGeocode(ctx, 2, 2))

	require.Len(t, geo.starts, 2)
	gap := geo.starts[1].Sub(geo.starts[0])
	// The fake records its start a few microseconds after the permit.
	assert.GreaterOrEqual(t, gap, minDelay-time.Millisecond, "calls started %v apart", gap)
}

func TestGateway_ConcurrentCallersAreSpaced(t *testing.T) {
	geo := &fakeGeocoder{}
	const minDelay = 50 * time.Millisecond
	g := New(quietLogger(), geo, nil, Options{GeocodeDelay: minDelay}, nil)
	defer g.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g.ReverseGeocode(context.Background(), float64(i), 0)
		}(i)
	}
	wg.Wait()

	require.Len(t, geo.starts, 4)
	// Goroutines may append out of order, so compare the overall span.
	first, last := geo.starts[0], geo.starts[0]
	for _, s := range geo.starts {
		if s.Before(first) {
			first = s
		}
		if s.After(last) {
			last = s
		}
	}
	assert.GreaterOrEqual(t, last.Sub(first), 3*minDelay-time.Millisecond)
}

func TestGateway_ReverseGeocodeSoftFails(t *testing.T) {
	geo := &fakeGeocoder{fail: map[float64]bool{5: true}}
	g := New(quietLogger(), geo, nil, Options{}, nil)
	defer g.Close()

	assert.Nil(t, g.ReverseGeocode(context.Background(), 5, 5))
	assert.Nil(t, g.ReverseGeocode(context.Background(), 95, 5), "invalid latitude")

	disabled := New(quietLogger(), nil, nil, Options{}, nil)
	defer disabled.Close()
	assert.Nil(t, disabled.ReverseGeocode(context.Background(), 1, 1))
}

func TestGateway_BulkReverseGeocodeKeepsOrder(t *testing.T) {
	geo := &fakeGeocoder{fail: map[float64]bool{2: true}}
	g := New(quietLogger(), geo, nil, Options{}, nil)
	defer g.Close()

	out := g.BulkReverseGeocode(context.Background(), []model.Coordinates{
		{Latitude: 1, Longitude: 1},
		{Latitude: 2, Longitude: 2},
		{Latitude: 3, Longitude: 3},
	})
	require.Len(t, out, 3)
	assert.NotNil(t, out[0])
	assert.Nil(t, out[1])
	assert.NotNil(t, out[2])
	assert.Len(t, geo.starts, 3, "a failed element must not short-circuit")
}

func TestGateway_GetDirections(t *testing.T) {
	two := []model.Coordinates{{Latitude: 0, Longitude: 0}, {Latitude: 1, Longitude: 1}}

	t.Run("not configured", func(t *testing.T) {
		g := New(quietLogger(), nil, nil, Options{}, nil)
		defer g.Close()
		_, err := g.GetDirections(context.Background(), Request{Coordinates: two})
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("too few coordinates", func(t *testing.T) {
		g := New(quietLogger(), nil, &fakeDirections{}, Options{}, nil)
		defer g.Close()
		_, err := g.GetDirections(context.Background(), Request{Coordinates: two[:1]})
		assert.ErrorIs(t, err, ErrTooFewCoordinates)
	})

	t.Run("empty routes", func(t *testing.T) {
		g := New(quietLogger(), nil, &fakeDirections{res: &Result{}}, Options{}, nil)
		defer g.Close()
		_, err := g.GetDirections(context.Background(), Request{Coordinates: two})
		assert.ErrorIs(t, err, ErrNoRoute)
	})

	t.Run("provider error propagates", func(t *testing.T) {
		boom := errors.New("boom")
		g := New(quietLogger(), nil, &fakeDirections{err: boom}, Options{}, nil)
		defer g.Close()
		_, err := g.GetDirections(context.Background(), Request{Coordinates: two})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("success", func(t *testing.T) {
		dir := &fakeDirections{res: &Result{Routes: []Route{{Summary: Summary{Distance: 10, Duration: 2}, Geometry: "abc"}}}}
		g := New(quietLogger(), nil, dir, Options{}, nil)
		defer g.Close()
		res, err := g.GetDirections(context.Background(), Request{Coordinates: two, Profile: "foot-walking", Geometry: true})
		require.NoError(t, err)
		assert.Equal(t, "abc", res.Routes[0].Geometry)
		assert.Equal(t, "foot-walking", dir.got.Profile)
	})
}

func TestThrottle_CancelledWaitDoesNotConsumeSlot(t *testing.T) {
	th := NewThrottle(time.Hour)
	defer th.Close()

	require.NoError(t, th.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := th.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestThrottle_Closed(t *testing.T) {
	th := NewThrottle(0)
	th.Close()
	th.Close()
	assert.ErrorIs(t, th.Wait(context.Background()), ErrThrottleClosed)
}
