package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/Kinis2025/sebelo/internal/readings"
	"github.com/Kinis2025/sebelo/internal/sensor"
	"github.com/Kinis2025/sebelo/internal/store"
	"github.com/Kinis2025/sebelo/internal/weather"
)

// maxUplinkBytes caps one webhook body.
const maxUplinkBytes = 1 << 20

// locationRequest is the PUT /locations/{device_id} body.
type locationRequest struct {
	Label     *string  `json:"label" validate:"omitempty,max=255"`
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
}

// handleIngest accepts one uplink envelope.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	env, err := sensor.ParseEnvelope(http.MaxBytesReader(w, r.Body, maxUplinkBytes))
	if err != nil {
		s.readings.RecordMalformed(readings.SourceWebhook)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reading, err := s.readings.Ingest(r.Context(), env)
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "OK")
	case errors.Is(err, sensor.ErrMissingIdentity):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, sensor.ErrNoMeasurements):
		w.WriteHeader(http.StatusNoContent)
	default:
		s.logger.Error("failed to ingest uplink", "device_id", reading.DeviceID, "error", err)
		s.writeFailure(w, err)
	}
}

// handleLatest returns the newest reading of every device keyed by id.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	latest, err := s.readings.Latest(r.Context())
	if err != nil {
		s.logger.Error("failed to fetch latest readings", "error", err)
		s.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, latest)
}

// handleHistory returns recent readings of one device, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}

	history, err := s.readings.History(r.Context(), deviceID, limit)
	if err != nil {
		s.logger.Error("failed to fetch reading history", "device_id", deviceID, "error", err)
		s.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, history)
}

// parseLimit reads ?limit, clamping it to [1, MaxHistoryLimit].
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return readings.DefaultHistoryLimit, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	return min(max(n, 1), readings.MaxHistoryLimit), nil
}

func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := s.locations.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list locations", "error", err)
		s.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, locs)
}

func (s *Server) handleGetLocation(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")

	loc, err := s.locations.Get(r.Context(), deviceID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("failed to fetch location", "device_id", deviceID, "error", err)
		}
		s.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loc)
}

// handlePutLocation creates or replaces a device location.
func (s *Server) handlePutLocation(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")

	var req locationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUplinkBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	loc, err := s.locations.Upsert(r.Context(), store.Location{
		DeviceID:  deviceID,
		Label:     req.Label,
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
	})
	if err != nil {
		s.logger.Error("failed to upsert location", "device_id", deviceID, "error", err)
		s.writeFailure(w, err)
		return
	}

	s.logger.Info("location updated", "device_id", deviceID)
	writeJSON(w, http.StatusOK, loc)
}

// handleWind returns current wind at the device's location.
// An unknown device is reported as such even when no provider is configured.
func (s *Server) handleWind(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")
	if s.wind == nil {
		_, err := s.locations.Get(r.Context(), deviceID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			s.writeFailure(w, fmt.Errorf("%w: %s", weather.ErrLocationUnknown, deviceID))
		case err != nil:
			s.writeFailure(w, err)
		default:
			writeError(w, http.StatusServiceUnavailable, "wind lookup is not configured")
		}
		return
	}

	wind, err := s.wind.Lookup(r.Context(), deviceID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, wind)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := s.health.State()
	if state != store.StateHealthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"store":  state.String(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"store":  state.String(),
	})
}
