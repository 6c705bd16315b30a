// Package geo resolves report coordinates to a city name.
package geo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-civic-go/pkg/utilities"
)

// UnknownCity is returned whenever a city cannot be resolved.
const UnknownCity = "Unknown City"

// Geocoder never fails; lookups that go wrong yield UnknownCity.
type Geocoder interface {
	City(ctx context.Context, lat, lng float64) string
}

// Static always answers with the same city.
type Static string

func (s Static) City(context.Context, float64, float64) string { return string(s) }

type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL:   utilities.GetEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org"),
		UserAgent: utilities.GetEnv("GEOCODER_USER_AGENT", "civic-api/1.0"),
		Timeout:   utilities.GetEnvDuration("GEOCODER_TIMEOUT", 5*time.Second),
	}
}

// addressPaths are tried in order against the reverse lookup response.
var addressPaths = []string{
	"address.city",
	"address.town",
	"address.village",
	"address.suburb",
	"address.state_district",
	"address.county",
}

// Nominatim queries an OpenStreetMap Nominatim reverse endpoint.
type Nominatim struct {
	cfg    Config
	client *http.Client
	logger *zap.SugaredLogger
}

func NewNominatim(cfg Config, logger *zap.SugaredLogger) *Nominatim {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Nominatim{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

func (n *Nominatim) City(ctx context.Context, lat, lng float64) string {
	city, err := n.lookup(ctx, lat, lng)
	if err != nil {
		n.logger.Warnw("reverse geocoding failed", "lat", lat, "lng", lng, "err", err)
		return UnknownCity
	}
	return city
}

func (n *Nominatim) lookup(ctx context.Context, lat, lng float64) (string, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("zoom", "10")
	q.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.cfg.BaseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", n.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("malformed response")
	}
	for _, p := range addressPaths {
		if v := gjson.GetBytes(body, p).String(); v != "" {
			return v, nil
		}
	}
	return UnknownCity, nil
}
