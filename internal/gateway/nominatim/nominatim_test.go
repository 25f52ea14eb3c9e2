package nominatim

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jo-hoe/travelgallery/internal/config"
)

const sampleResponse = `{
  "name": "Kapellbrücke",
  "display_name": "Kapellbrücke, Altstadt, Luzern, Schweiz",
  "category": "tourism",
  "type": "attraction",
  "address": {
    "tourism": "Kapellbrücke",
    "town": "Luzern",
    "state": "Luzern",
    "country": "Switzerland",
    "country_code": "ch"
  }
}`

func TestClient_ReverseGeocode(t *testing.T) {
	var seenUA, seenQuery, seenPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUA = r.Header.Get("User-Agent")
		seenQuery = r.URL.RawQuery
		seenPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer ts.Close()

	c := New(config.GeocodingConfig{BaseURL: ts.URL, UserAgent: "gallery-test", Email: "me@example.com"})
	info, err := c.ReverseGeocode(context.Background(), 47.0517, 8.3078)
	require.NoError(t, err)

	assert.Equal(t, "/reverse", seenPath)
	assert.Equal(t, "gallery-test", seenUA)
	assert.Contains(t, seenQuery, "format=jsonv2")
	assert.Contains(t, seenQuery, "addressdetails=1")
	assert.Contains(t, seenQuery, "lat=47.0517")
	assert.Contains(t, seenQuery, "email=me%40example.com")

	assert.Equal(t, "Kapellbrücke", info.LocationName)
	assert.Equal(t, "Luzern", info.City)
	assert.Equal(t, "Luzern", info.State)
	assert.Equal(t, "Switzerland", info.Country)
	assert.Equal(t, "CH", info.CountryCode)
	assert.Equal(t, "Kapellbrücke", info.Landmark)
}

func TestClient_ReverseGeocode_FallbackName(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"display_name":"12, Main Street, Springfield","address":{"village":"Springfield","country_code":"us"}}`))
	}))
	defer ts.Close()

	info, err := New(config.GeocodingConfig{BaseURL: ts.URL}).ReverseGeocode(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "12", info.LocationName)
	assert.Equal(t, "Springfield", info.City)
	assert.Empty(t, info.Landmark)
}

func TestClient_ReverseGeocode_Errors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "slow down", http.StatusTooManyRequests)
		},
		"provider error": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
		},
		"bad json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			ts := httptest.NewServer(h)
			defer ts.Close()
			info, err := New(config.GeocodingConfig{BaseURL: ts.URL}).ReverseGeocode(context.Background(), 0, 0)
			assert.Error(t, err)
			assert.Nil(t, info)
		})
	}
}
