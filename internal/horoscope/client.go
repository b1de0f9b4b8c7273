// Package horoscope is the client side of the relay: location search, the
// remote compatibility scorer, and the nakshatra/rasi lookup.
package horoscope

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/horomatch/internal/extract"
	"github.com/hyperjump/horomatch/internal/models"
)

// MinQueryLength is the shortest location query sent to the relay.
const MinQueryLength = 3

const (
	defaultTimeout   = 30 * time.Second
	maxResponseBytes = 8 << 20
)

// Relay route names, appended to the base URL.
const (
	RouteSearch    = "search"
	RouteMatch     = "match"
	RouteNakshatra = "nakshatra"
)

// StatusError is returned when the relay answers with a non-2xx status.
type StatusError struct {
	Route      string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay %s returned %d: %s", e.Route, e.StatusCode, e.Body)
}

// Options configures a Client.
type Options struct {
	// BaseURL is the relay function URL, e.g. http://localhost:8090/functions/v1/horoscope.
	BaseURL   string
	AuthToken string
	// Timeout bounds each relay call.
	Timeout       time.Duration
	CacheSize     int
	Counterpart   Counterpart
	SubjectGender string
	Extractor     extract.Extractor
	HTTPClient    *http.Client
	Logger        *zap.Logger
}

// Client talks to the relay. Safe for concurrent use.
type Client struct {
	baseURL     string
	authToken   string
	timeout     time.Duration
	counterpart Counterpart
	gender      string
	httpClient  *http.Client
	cache       *LocationCache
	logger      *zap.Logger

	mu        sync.RWMutex
	extractor extract.Extractor
}

// NewClient creates a relay client. Zero-valued options take defaults.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Counterpart == (Counterpart{}) {
		opts.Counterpart = DefaultCounterpart()
	}
	if opts.SubjectGender == "" {
		opts.SubjectGender = DefaultSubjectGender
	}
	if opts.Extractor == nil {
		opts.Extractor = extract.NewDefaultExtractor()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		authToken:   opts.AuthToken,
		timeout:     opts.Timeout,
		counterpart: opts.Counterpart,
		gender:      opts.SubjectGender,
		httpClient:  opts.HTTPClient,
		cache:       NewLocationCache(opts.CacheSize),
		logger:      opts.Logger,
		extractor:   opts.Extractor,
	}
}

// SetExtractor swaps the extractor used by later calls.
func (c *Client) SetExtractor(e extract.Extractor) {
	c.mu.Lock()
	c.extractor = e
	c.mu.Unlock()
}

func (c *Client) currentExtractor() extract.Extractor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.extractor
}

// Counterpart returns the fixed counterpart identity.
func (c *Client) Counterpart() Counterpart {
	return c.counterpart
}

// SubjectGender returns the gender sent for the subject.
func (c *Client) SubjectGender() string {
	return c.gender
}

// SearchLocations returns matching places. Queries shorter than
// MinQueryLength return an empty list without calling the relay, and an
// unparsable payload yields an empty list.
func (c *Client) SearchLocations(ctx context.Context, query string) ([]models.Location, error) {
	if len([]rune(query)) < MinQueryLength {
		return []models.Location{}, nil
	}
	if cached, ok := c.cache.Get(query); ok {
		return cached, nil
	}

	body, err := c.do(ctx, http.MethodGet, RouteSearch+"?q="+url.QueryEscape(query), nil, "")
	if err != nil {
		return nil, err
	}
	locations, err := extract.ParseLocations(body)
	if err != nil {
		c.logger.Warn("failed to parse location data", zap.String("query", query), zap.Error(err))
		return []models.Location{}, nil
	}
	c.cache.Set(query, locations)
	return locations, nil
}

// Score submits one candidate against the subject and extracts the total
// points. A missing score pattern yields 0 points and a warning.
func (c *Client) Score(ctx context.Context, candidate models.CandidateDate, subject Subject) (models.Score, error) {
	body, contentType, err := encodeMultipart(matchFields(subject, c.counterpart, candidate))
	if err != nil {
		return models.Score{}, err
	}
	html, err := c.do(ctx, http.MethodPost, RouteMatch, body, contentType)
	if err != nil {
		return models.Score{}, err
	}
	points, ok := c.currentExtractor().Score(html)
	if !ok {
		c.logger.Warn("score pattern not found",
			zap.Int("day", candidate.Day), zap.Int("month", candidate.Month))
	}
	return models.Score{Candidate: candidate, Points: points, HTML: html}, nil
}

// Lookup fetches the nakshatra and rasi of the counterpart born on the
// candidate date. Missing labels are models.UnknownLabel.
func (c *Client) Lookup(ctx context.Context, candidate models.CandidateDate) (models.Labels, error) {
	body, contentType, err := encodeMultipart(nakshatraFields(c.counterpart, candidate))
	if err != nil {
		return models.Labels{}, err
	}
	html, err := c.do(ctx, http.MethodPost, RouteNakshatra, body, contentType)
	if err != nil {
		return models.Labels{}, err
	}
	labels, hits := c.currentExtractor().Labels(html)
	if !hits.All() {
		c.logger.Warn("label pattern not found",
			zap.Int("day", candidate.Day), zap.Int("month", candidate.Month),
			zap.Bool("nakshatra", hits.Nakshatra), zap.Bool("rasi", hits.Rasi))
	}
	return labels, nil
}

func (c *Client) do(ctx context.Context, method, route string, body io.Reader, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+route, body)
	if err != nil {
		return "", fmt.Errorf("failed to build %s request: %w", route, err)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("relay %s request failed: %w", routeName(route), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read relay %s response: %w", routeName(route), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Route: routeName(route), StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return extract.DecodeRelayBody(raw), nil
}

func routeName(route string) string {
	name, _, _ := strings.Cut(route, "?")
	return name
}
