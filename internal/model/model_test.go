package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrichment_ApplyLocationIsAtomic(t *testing.T) {
	var e Enrichment
	e.ApplyLocation(&LocationInfo{LocationName: "Tower", City: "Paris", Country: "France", CountryCode: "fr"})
	require.NotNil(t, e.LocationName)
	assert.Equal(t, "Paris", *e.City)
	assert.Equal(t, "fr", *e.CountryCode)
	assert.Nil(t, e.State, "empty state should stay nil")

	e.ApplyLocation(nil)
	assert.False(t, e.HasLocation(), "nil lookup must clear every field: %+v", e)
}

func TestCoordinates_Valid(t *testing.T) {
	cases := []struct {
		c    Coordinates
		want bool
	}{
		{Coordinates{Latitude: 0, Longitude: 0}, true},
		{Coordinates{Latitude: 91, Longitude: 0}, false},
		{Coordinates{Latitude: 0, Longitude: -181}, false},
		{Coordinates{Latitude: -90, Longitude: 180}, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.c.Valid(), "Valid(%+v)", c.c)
	}
}

func TestPhoto_Coordinates(t *testing.T) {
	var p Photo
	_, ok := p.Coordinates()
	assert.False(t, ok, "photo without gps should report no coordinates")

	lat, lon := 48.8, 2.3
	p.Latitude, p.Longitude = &lat, &lon
	c, ok := p.Coordinates()
	require.True(t, ok)
	assert.Equal(t, Coordinates{Latitude: lat, Longitude: lon}, c)
}
