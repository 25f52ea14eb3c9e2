package openroute

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jo-hoe/travelgallery/internal/common"
	"github.com/jo-hoe/travelgallery/internal/config"
	"github.com/jo-hoe/travelgallery/internal/gateway"
)

var _ gateway.Directions = (*Client)(nil)

const (
	headerContentType   = "Content-Type"
	headerAuthorization = "Authorization"
	headerAccept        = "Accept"

	endpointDirections = "v2/directions"

	defaultTimeout    = 30 * time.Second
	defaultProfile    = "driving-car"
	errorSnippetLimit = 400
)

// Client implements gateway.Directions against OpenRouteService.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	profile    string
}

// New creates an OpenRouteService client from config.
func New(cfg config.DirectionsConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	profile := strings.TrimSpace(cfg.DefaultProfile)
	if profile == "" {
		profile = defaultProfile
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		profile:    profile,
	}
}

// GetDirections posts the ordered coordinates and returns the provider's routes.
func (c *Client) GetDirections(ctx context.Context, req gateway.Request) (*gateway.Result, error) {
	if c.apiKey == "" {
		return nil, gateway.ErrNotConfigured
	}
	if len(req.Coordinates) < 2 {
		return nil, gateway.ErrTooFewCoordinates
	}
	profile := strings.TrimSpace(req.Profile)
	if profile == "" {
		profile = c.profile
	}

	u, err := url.JoinPath(c.baseURL, endpointDirections, profile)
	if err != nil {
		return nil, fmt.Errorf("join url: %w", err)
	}

	body := directionsRequest{
		Coordinates:  make([][2]float64, len(req.Coordinates)),
		Geometry:     req.Geometry,
		Instructions: req.Instructions,
	}
	for i, co := range req.Coordinates {
		// ORS expects [lon, lat].
		body.Coordinates[i] = [2]float64{co.Longitude, co.Latitude}
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set(headerContentType, common.ContentTypeJSON)
	httpReq.Header.Set(headerAccept, common.ContentTypeJSON)
	httpReq.Header.Set(headerAuthorization, c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var pe providerError
		if json.Unmarshal(respBytes, &pe) == nil && pe.Error.Code == codeRouteNotFound {
			return nil, fmt.Errorf("%w: %s", gateway.ErrNoRoute, pe.Error.Message)
		}
		return nil, fmt.Errorf("openroute status %d: %s", resp.StatusCode, truncate(string(respBytes), errorSnippetLimit))
	}

	var res gateway.Result
	if err := json.Unmarshal(respBytes, &res); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(res.Routes) == 0 {
		return nil, gateway.ErrNoRoute
	}
	return &res, nil
}

type directionsRequest struct {
	Coordinates  [][2]float64 `json:"coordinates"`
	Geometry     bool         `json:"geometry"`
	Instructions bool         `json:"instructions"`
}

// ORS error 2009: route could not be found between the given points.
const codeRouteNotFound = 2009

type providerError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
