package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jo-hoe/travelgallery/internal/config"
	"github.com/jo-hoe/travelgallery/internal/gateway"
	"github.com/jo-hoe/travelgallery/internal/model"
)

var _ gateway.Geocoder = (*Client)(nil)

const (
	headerUserAgent      = "User-Agent"
	headerAcceptLanguage = "Accept-Language"

	endpointReverse = "reverse"

	defaultUserAgent  = "travelgallery/1.0"
	defaultTimeout    = 10 * time.Second
	errorSnippetLimit = 300
)

// Address keys checked in order when picking a landmark or a city.
var (
	landmarkKeys = []string{"tourism", "historic", "attraction", "amenity", "leisure", "natural", "building"}
	cityKeys     = []string{"city", "town", "village", "hamlet", "municipality"}
)

// Client implements gateway.Geocoder against a Nominatim-compatible API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	email      string
	language   string
}

// New creates a Nominatim client from config.
func New(cfg config.GeocodingConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  ua,
		email:      strings.TrimSpace(cfg.Email),
		language:   "en",
	}
}

// ReverseGeocode looks up the place at lat/lon.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (*model.LocationInfo, error) {
	u, err := url.JoinPath(c.baseURL, endpointReverse)
	if err != nil {
		return nil, fmt.Errorf("join url: %w", err)
	}
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("addressdetails", "1")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	if c.email != "" {
		q.Set("email", c.email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set(headerUserAgent, c.userAgent)
	req.Header.Set(headerAcceptLanguage, c.language)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("nominatim status %d: %s", resp.StatusCode, truncate(string(body), errorSnippetLimit))
	}

	var rr reverseResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if rr.Error != "" {
		return nil, fmt.Errorf("nominatim: %s", rr.Error)
	}
	return rr.toLocation(), nil
}

type reverseResponse struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	Category    string            `json:"category"`
	Type        string            `json:"type"`
	Address     map[string]string `json:"address"`
	Error       string            `json:"error"`
}

func (r reverseResponse) toLocation() *model.LocationInfo {
	info := &model.LocationInfo{
		City:        firstOf(r.Address, cityKeys),
		State:       r.Address["state"],
		Country:     r.Address["country"],
		CountryCode: strings.ToUpper(r.Address["country_code"]),
		Landmark:    firstOf(r.Address, landmarkKeys),
	}
	if info.Landmark == "" && (r.Category == "tourism" || r.Category == "historic") {
		info.Landmark = r.Name
	}

	switch {
	case r.Name != "":
		info.LocationName = r.Name
	case r.DisplayName != "":
		info.LocationName = strings.TrimSpace(strings.SplitN(r.DisplayName, ",", 2)[0])
	default:
		info.LocationName = info.City
	}
	return info
}

func firstOf(m map[string]string, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(m[k]); v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
