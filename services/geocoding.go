package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"go-pinmap/models"
	"go-pinmap/utils/errors"
)

const (
	AddressLoading     = "Loading address..."
	AddressNotFound    = "Address not found"
	AddressUnavailable = "Could not retrieve address"
)

// Geocoder converts between coordinates and human-readable addresses.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
	// ForwardGeocode reports found=false when nothing matches the query.
	ForwardGeocode(ctx context.Context, query string) (pos models.LatLng, found bool, err error)
}

type NominatimConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// Rate is requests per second; the public Nominatim instance allows one.
	Rate float64
}

type NominatimClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	logger    *zap.Logger
}

func NewNominatimClient(cfg NominatimConfig, logger *zap.Logger) *NominatimClient {
	if cfg.Rate <= 0 {
		cfg.Rate = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &NominatimClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(cfg.Rate), 1),
		logger:    logger,
	}
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (c *NominatimClient) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("format", "json")

	var resp reverseResponse
	if err := c.get(ctx, "/reverse", q, &resp); err != nil {
		return "", errors.NewRemoteError("reverse geocode", err)
	}
	if resp.DisplayName == "" {
		return AddressNotFound, nil
	}
	return resp.DisplayName, nil
}

func (c *NominatimClient) ForwardGeocode(ctx context.Context, query string) (models.LatLng, bool, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("limit", "1")

	var results []searchResult
	if err := c.get(ctx, "/search", q, &results); err != nil {
		return models.LatLng{}, false, errors.NewRemoteError("address search", err)
	}
	if len(results) == 0 {
		return models.LatLng{}, false, nil
	}
	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return models.LatLng{}, false, errors.NewRemoteError("address search", fmt.Errorf("bad latitude %q", results[0].Lat))
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return models.LatLng{}, false, errors.NewRemoteError("address search", fmt.Errorf("bad longitude %q", results[0].Lon))
	}
	return models.LatLng{Lat: lat, Lng: lng}, true, nil
}

func (c *NominatimClient) get(ctx context.Context, path string, query url.Values, dest any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("Geocoder request failed", zap.String("path", path), zap.Error(err))
		return err
	}
	defer resp.Body.Close()
	c.logger.Debug("Geocoder request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("geocoder returned HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode geocoder response: %w", err)
	}
	return nil
}

// DescribeLocation resolves an address for display. It never fails: lookup
// errors become AddressUnavailable.
func DescribeLocation(ctx context.Context, g Geocoder, p models.LatLng, logger *zap.Logger) string {
	address, err := g.ReverseGeocode(ctx, p.Lat, p.Lng)
	if err != nil {
		logger.Warn("Address lookup failed",
			zap.Float64("lat", p.Lat),
			zap.Float64("lng", p.Lng),
			zap.Error(err))
		return AddressUnavailable
	}
	if address == "" {
		return AddressNotFound
	}
	return address
}
