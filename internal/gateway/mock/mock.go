package mock

import (
	"context"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/twpayne/go-polyline"

	"github.com/jo-hoe/travelgallery/internal/gateway"
)

var _ gateway.Directions = (*Client)(nil)

// Average speeds in meters per second by profile prefix.
var speeds = map[string]float64{
	"driving":    13.9,
	"cycling":    4.2,
	"foot":       1.4,
	"wheelchair": 1.0,
}

const defaultSpeed = 13.9

// Client is an offline directions provider. It connects the coordinates with
// straight lines and derives duration from a per-profile speed.
type Client struct {
	delay time.Duration
}

// New creates a mock directions provider that sleeps delay per call.
func New(delay time.Duration) *Client {
	return &Client{delay: delay}
}

func (c *Client) GetDirections(ctx context.Context, req gateway.Request) (*gateway.Result, error) {
	if len(req.Coordinates) < 2 {
		return nil, gateway.ErrTooFewCoordinates
	}
	if c.delay > 0 {
		t := time.NewTimer(c.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	speed := speedFor(req.Profile)
	route := gateway.Route{}
	coords := make([][]float64, 0, len(req.Coordinates))
	for i, co := range req.Coordinates {
		coords = append(coords, []float64{co.Latitude, co.Longitude})
		if i == 0 {
			continue
		}
		prev := req.Coordinates[i-1]
		d := geo.Distance(orb.Point{prev.Longitude, prev.Latitude}, orb.Point{co.Longitude, co.Latitude})
		seg := gateway.Segment{Distance: d, Duration: d / speed}
		if req.Instructions {
			seg.Steps = []gateway.Step{{Distance: d, Duration: seg.Duration, Instruction: "Continue straight"}}
		}
		route.Segments = append(route.Segments, seg)
		route.Summary.Distance += d
		route.Summary.Duration += seg.Duration
	}
	if req.Geometry {
		route.Geometry = string(polyline.EncodeCoords(coords))
	}
	return &gateway.Result{Routes: []gateway.Route{route}}, nil
}

func speedFor(profile string) float64 {
	prefix, _, _ := strings.Cut(profile, "-")
	if s, ok := speeds[prefix]; ok {
		return s
	}
	return defaultSpeed
}
