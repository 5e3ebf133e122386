package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"alertdash/internal/alerts"
	apperrors "alertdash/internal/errors"
	"alertdash/internal/logging"
	"alertdash/internal/models"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListAlerts(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var in models.CreateAlertInput
	if !s.decode(w, r, &in) {
		return
	}

	in = alerts.NormalizeCreate(in)
	if err := alerts.ValidateCreate(in); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	alert := models.Alert{
		ID:             uuid.NewString(),
		Ticker:         in.Ticker,
		AlertType:      in.AlertType,
		ThresholdValue: in.ThresholdValue,
		Message:        in.Message,
		IsActive:       true,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.InsertAlert(r.Context(), alert); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	logger := logging.FromContext(r.Context())
	logger.Info().
		Str("alert_id", alert.ID).
		Str("ticker", alert.Ticker).
		Str("alert_type", string(alert.AlertType)).
		Msg("Alert created")
	s.writeJSON(w, http.StatusCreated, alert)
}

func (s *Server) handleUpdateAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var patch models.AlertPatch
	if !s.decode(w, r, &patch) {
		return
	}

	updated, err := s.store.UpdateAlert(r.Context(), id, patch)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteAlert(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAllAlerts(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAllAlerts(r.Context()); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	logger := logging.FromContext(r.Context())
	logger.Info().Msg("All alerts deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := s.store.ListHoldings(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, holdings)
}

func (s *Server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	watchlist, err := s.store.ListWatchlist(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, watchlist)
}

// decode reads a JSON body into dest, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	if err := json.Unmarshal(body, dest); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case apperrors.Is(err, apperrors.ErrAlertNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case apperrors.Is(err, apperrors.ErrInvalidAlert):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Msg("Store operation failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
