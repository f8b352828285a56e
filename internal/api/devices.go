package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/graymesh/zigbee-core/internal/device"
)

// handleListDevices returns all devices, with optional query filters.
//
// Query parameters:
//   - coordinator_id: filter by owning coordinator
//   - type: filter by device archetype (outlet, dimmer, etc.)
//   - enabled: filter by enabled flag (true/false)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var devices []*device.Device
	var err error

	if coordStr := r.URL.Query().Get("coordinator_id"); coordStr != "" {
		coordID, convErr := strconv.Atoi(coordStr)
		if convErr != nil {
			writeBadRequest(w, "coordinator_id must be an integer")
			return
		}
		devices, err = s.registry.ListByCoordinator(ctx, coordID)
	} else {
		devices, err = s.registry.List(ctx)
	}
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}

	if typeStr := r.URL.Query().Get("type"); typeStr != "" {
		devices = filterDevices(devices, func(d *device.Device) bool {
			return d.Type == device.Archetype(typeStr)
		})
	}
	if enabledStr := r.URL.Query().Get("enabled"); enabledStr != "" {
		enabled, convErr := strconv.ParseBool(enabledStr)
		if convErr != nil {
			writeBadRequest(w, "enabled must be true or false")
			return
		}
		devices = filterDevices(devices, func(d *device.Device) bool {
			return d.Enabled == enabled
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by platform id.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceIDParam(w, r)
	if !ok {
		return
	}

	d, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleGetDeviceState returns only the state map of a device.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceIDParam(w, r)
	if !ok {
		return
	}

	d, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":          d.ID,
		"states":      d.States,
		"error_state": d.ErrorState,
		"state_image": d.StateImage,
		"last_seen":   d.LastSeen,
	})
}

// handleDeviceStats returns directory cache counters.
func (s *Server) handleDeviceStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Stats())
}

// deviceIDParam parses the {id} URL parameter, writing a 400 on failure.
func deviceIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeBadRequest(w, "device id must be a positive integer")
		return 0, false
	}
	return id, true
}

func filterDevices(devices []*device.Device, keep func(*device.Device) bool) []*device.Device {
	out := devices[:0]
	for _, d := range devices {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}
