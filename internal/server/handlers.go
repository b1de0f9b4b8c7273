package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/horomatch/internal/horoscope"
	"github.com/hyperjump/horomatch/internal/models"
	"github.com/hyperjump/horomatch/internal/search"
	"github.com/hyperjump/horomatch/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	if s.databasePath != "" {
		if size, err := storage.DatabaseSize(s.databasePath); err == nil {
			resp["database_bytes"] = size
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	locations, err := s.locator.SearchLocations(r.Context(), query)
	if err != nil {
		s.logger.Error("location search failed", zap.String("query", query), zap.Error(err))
		s.respondFailure(w, err)
		return
	}
	if locations == nil {
		locations = []models.Location{}
	}
	s.respondJSON(w, http.StatusOK, locations)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.orch.State())
}

func (s *Server) handleSetInputs(w http.ResponseWriter, r *http.Request) {
	var in models.Inputs
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	clock, err := models.NormalizeTime(in.Time)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.Time = clock
	cleared, err := s.orch.SetInputs(r.Context(), in)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"inputs":  s.orch.Inputs(),
		"cleared": cleared,
	})
}

type matchRequest struct {
	Retry bool `json:"retry"`
}

func (s *Server) handleFindMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("match request", zap.Bool("retry", req.Retry))
	// A search outlives the caller hanging up; its result and
	// ignore-list change still land in state.
	result, err := s.orch.FindMatch(context.WithoutCancel(r.Context()), req.Retry)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleCheckOriginal(w http.ResponseWriter, r *http.Request) {
	result, err := s.orch.CheckOriginal(context.WithoutCancel(r.Context()))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	html, err := s.orch.Details()
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, s.policy.Sanitize(html))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.orch.History(r.URL.Query().Get("q")))
}

func (s *Server) handleApplyHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, err := s.orch.ApplyHistory(r.Context(), id)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, entry)
}

func (s *Server) handleIgnored(w http.ResponseWriter, r *http.Request) {
	ignored := s.orch.Ignored()
	if ignored == nil {
		ignored = []models.IgnoredDate{}
	}
	s.respondJSON(w, http.StatusOK, ignored)
}

func (s *Server) handleRemoveIgnored(w http.ResponseWriter, r *http.Request) {
	day, err := strconv.Atoi(chi.URLParam(r, "day"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid day")
		return
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid month")
		return
	}
	removed, err := s.orch.RemoveIgnored(r.Context(), day, month)
	if err != nil {
		s.logger.Error("remove ignored date failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		s.respondError(w, http.StatusNotFound, "ignored date not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// respondFailure maps orchestrator and relay errors to status codes.
func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	var statusErr *horoscope.StatusError
	var urlErr *url.Error
	switch {
	case errors.Is(err, search.ErrInvalidInput):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, search.ErrNoMatch),
		errors.Is(err, search.ErrNoResult),
		errors.Is(err, search.ErrHistoryNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, search.ErrSearchInProgress):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &statusErr), errors.As(err, &urlErr):
		s.respondError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
