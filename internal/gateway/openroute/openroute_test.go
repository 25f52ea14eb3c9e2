package openroute

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jo-hoe/travelgallery/internal/config"
	"github.com/jo-hoe/travelgallery/internal/gateway"
	"github.com/jo-hoe/travelgallery/internal/model"
)

var twoStops = []model.Coordinates{{Latitude: 49.41, Longitude: 8.68}, {Latitude: 49.42, Longitude: 8.69}}

func TestClient_GetDirections(t *testing.T) {
	var seenAuth, seenPath string
	var seenBody directionsRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = r.Header.Get("Authorization")
		seenPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&seenBody); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"routes":[{"summary":{"distance":1530.2,"duration":310.5},"geometry":"ghrlHkr~s@","segments":[{"distance":1530.2,"duration":310.5,"steps":[{"distance":10,"duration":2,"instruction":"Head north","name":"Hauptstraße"}]}]}]}`))
	}))
	defer ts.Close()

	c := New(config.DirectionsConfig{BaseURL: ts.URL, APIKey: "secret", DefaultProfile: "driving-car"})
	res, err := c.GetDirections(context.Background(), gateway.Request{
		Coordinates: twoStops, Profile: "foot-walking", Geometry: true, Instructions: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "secret", seenAuth)
	assert.Equal(t, "/v2/directions/foot-walking", seenPath)
	require.Len(t, seenBody.Coordinates, 2)
	assert.Equal(t, [2]float64{8.68, 49.41}, seenBody.Coordinates[0], "coordinates are sent lon,lat")
	assert.True(t, seenBody.Geometry)

	require.Len(t, res.Routes, 1)
	assert.InDelta(t, 1530.2, res.Routes[0].Summary.Distance, 1e-9)
	assert.Equal(t, "ghrlHkr~s@", res.Routes[0].Geometry)
	assert.Equal(t, "Head north", res.Routes[0].Segments[0].Steps[0].Instruction)
}

func TestClient_DefaultProfile(t *testing.T) {
	var seenPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenPath = r.URL.Path
		_, _ = w.Write([]byte(`{"routes":[{"summary":{"distance":1,"duration":1}}]}`))
	}))
	defer ts.Close()

	_, err := New(config.DirectionsConfig{BaseURL: ts.URL, APIKey: "k"}).GetDirections(context.Background(), gateway.Request{Coordinates: twoStops})
	require.NoError(t, err)
	assert.Equal(t, "/v2/directions/driving-car", seenPath)
}

func TestClient_Errors(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		_, err := New(config.DirectionsConfig{BaseURL: "http://unused"}).GetDirections(context.Background(), gateway.Request{Coordinates: twoStops})
		assert.ErrorIs(t, err, gateway.ErrNotConfigured)
	})

	t.Run("too few coordinates", func(t *testing.T) {
		_, err := New(config.DirectionsConfig{BaseURL: "http://unused", APIKey: "k"}).GetDirections(context.Background(), gateway.Request{Coordinates: twoStops[:1]})
		assert.ErrorIs(t, err, gateway.ErrTooFewCoordinates)
	})

	t.Run("route not found", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":2009,"message":"Route could not be found"}}`))
		}))
		defer ts.Close()
		_, err := New(config.DirectionsConfig{BaseURL: ts.URL, APIKey: "k"}).GetDirections(context.Background(), gateway.Request{Coordinates: twoStops})
		assert.ErrorIs(t, err, gateway.ErrNoRoute)
	})

	t.Run("empty routes", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"routes":[]}`))
		}))
		defer ts.Close()
		_, err := New(config.DirectionsConfig{BaseURL: ts.URL, APIKey: "k"}).GetDirections(context.Background(), gateway.Request{Coordinates: twoStops})
		assert.ErrorIs(t, err, gateway.ErrNoRoute)
	})

	t.Run("server error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusForbidden)
		}))
		defer ts.Close()
		_, err := New(config.DirectionsConfig{BaseURL: ts.URL, APIKey: "k"}).GetDirections(context.Background(), gateway.Request{Coordinates: twoStops})
		require.Error(t, err)
		assert.NotErrorIs(t, err, gateway.ErrNoRoute)
		assert.Contains(t, err.Error(), "403")
	})
}
