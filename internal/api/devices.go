package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/arenalink/arena-core/internal/device"
	"github.com/arenalink/arena-core/internal/infrastructure/mqtt"
)

// handleListDevices returns every known device. ?status=online filters to
// currently online devices.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("status") == "online" {
		writeJSON(w, http.StatusOK, map[string]any{"devices": s.registry.ListOnline()})
		return
	}

	devices, err := s.registry.List(r.Context())
	if err != nil {
		s.logger.Error("listing devices", "error", err)
		writeInternalError(w, "listing devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := s.registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("getting device", "device_id", id, "error", err)
		writeInternalError(w, "getting device")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// defaultLogLimit bounds device log responses when no limit is given.
const defaultLogLimit = 50

// handleDeviceLogs returns recent lifecycle and fault records for a device.
func (s *Server) handleDeviceLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	logs, err := s.logs.ListLogsByDevice(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("listing device logs", "device_id", id, "error", err)
		writeInternalError(w, "listing device logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

type controlRequest struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params"`
}

// handleDeviceControl publishes a control command to the device.
func (s *Server) handleDeviceControl(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}

	s.publishCommand(w, func() error {
		return s.commands.SendControl(id, req.Command, req.Params)
	})
}

type ledRequest struct {
	Color string `json:"color"`
	Mode  string `json:"mode"`
}

// handleDeviceLED publishes an LED command to the device.
func (s *Server) handleDeviceLED(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Color == "" {
		writeBadRequest(w, "color is required")
		return
	}

	s.publishCommand(w, func() error {
		return s.commands.SetLED(id, req.Color, req.Mode)
	})
}

// handleDeviceConfig publishes a configuration document to the device.
func (s *Server) handleDeviceConfig(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var cfg map[string]any
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil || len(cfg) == 0 {
		writeBadRequest(w, "config document is required")
		return
	}

	s.publishCommand(w, func() error {
		return s.commands.UpdateConfig(id, cfg)
	})
}

// publishCommand runs a command publish and maps transport failures to a
// 503. Commands are fire and forget; 202 means published, not delivered.
func (s *Server) publishCommand(w http.ResponseWriter, publish func() error) {
	if s.commands == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "command transport not configured")
		return
	}

	if err := publish(); err != nil {
		if errors.Is(err, mqtt.ErrNotConnected) {
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "command transport unavailable")
			return
		}
		writeBadRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"published": true})
}
