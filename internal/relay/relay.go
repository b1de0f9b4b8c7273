// Package relay is the stateless proxy between clients and the third-party
// astrology site. It forwards location search, match and nakshatra requests
// and returns each upstream body JSON-encoded as a string.
package relay

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Upstream defaults.
const (
	DefaultSearchURL    = "https://www.prokerala.com/astrology/search.php"
	DefaultMatchURL     = "https://www.prokerala.com/astrology/jathagam-porutham-tamil.php"
	DefaultNakshatraURL = "https://www.prokerala.com/astrology/nakshatra-finder/"
	DefaultOrigin       = "https://www.prokerala.com"
	DefaultUserAgent    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"
	DefaultBasePath     = "/functions/v1/horoscope"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 1 << 20
	maxUpstreamBytes    = 16 << 20
)

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "authorization, x-client-info, apikey, content-type",
	"Access-Control-Allow-Methods": "POST, GET, OPTIONS",
}

// Options configures the relay.
type Options struct {
	Listen       string
	BasePath     string
	AuthToken    string
	SearchURL    string
	MatchURL     string
	NakshatraURL string
	Origin       string
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
	HTTPClient   *http.Client
}

func (o *Options) applyDefaults() {
	if o.BasePath == "" {
		o.BasePath = DefaultBasePath
	}
	if o.SearchURL == "" {
		o.SearchURL = DefaultSearchURL
	}
	if o.MatchURL == "" {
		o.MatchURL = DefaultMatchURL
	}
	if o.NakshatraURL == "" {
		o.NakshatraURL = DefaultNakshatraURL
	}
	if o.Origin == "" {
		o.Origin = DefaultOrigin
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = defaultMaxBodyBytes
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
}

// Server is the relay HTTP server.
type Server struct {
	opts   Options
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a relay. Zero-valued options take defaults.
func NewServer(opts Options, logger *zap.Logger) *Server {
	opts.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{opts: opts, logger: logger}
}

// Handler returns the relay's routes. Each route answers both under the base
// path and at the root.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors)
	r.Use(s.authorize)

	r.HandleFunc("/{route}", s.dispatch)
	if base := strings.TrimRight(s.opts.BasePath, "/"); base != "" {
		r.HandleFunc(base+"/{route}", s.dispatch)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting relay", zap.String("addr", s.opts.Listen), zap.String("base_path", s.opts.BasePath))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range corsHeaders {
			w.Header().Set(k, v)
		}
		if r.Method == http.MethodOptions {
			_, _ = io.WriteString(w, "ok")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AuthToken != "" && r.Header.Get("Authorization") != "Bearer "+s.opts.AuthToken {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	var (
		body string
		err  error
	)
	route := chi.URLParam(r, "route")
	switch route {
	case "search":
		body, err = s.search(r)
	case "match":
		body, err = s.forwardForm(w, r, s.opts.MatchURL)
	case "nakshatra":
		body, err = s.forwardForm(w, r, s.opts.NakshatraURL)
	default:
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("relay request failed", zap.String("route", route), zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) search(r *http.Request) (string, error) {
	target := s.opts.SearchURL + "?q=" + url.QueryEscape(r.URL.Query().Get("q"))
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	return s.fetch(req)
}

// forwardForm re-encodes the incoming form, preserving field order, and
// posts it upstream with the site's own Origin and Referer.
func (s *Server) forwardForm(w http.ResponseWriter, r *http.Request, target string) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	body, contentType, err := reencodeForm(r)
	if err != nil {
		return "", fmt.Errorf("failed to read form data: %w", err)
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Origin", s.opts.Origin)
	req.Header.Set("Referer", target)
	req.Header.Set("User-Agent", s.opts.UserAgent)
	return s.fetch(req)
}

// fetch returns the upstream body as text regardless of its status, the way
// the site's error pages are passed through to the client.
func (s *Server) fetch(req *http.Request) (string, error) {
	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read upstream response: %w", err)
	}
	s.logger.Debug("upstream response",
		zap.String("url", req.URL.String()),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)))
	return string(data), nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(bytes.TrimRight(buf.Bytes(), "\n"))
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func isURLEncoded(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "application/x-www-form-urlencoded")
}
