package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-intercom/internal/camera"
	"github.com/nerrad567/gray-logic-intercom/internal/intercom"
)

// relayRequest is the body of POST /devices/{id}/relay.
type relayRequest struct {
	// Relay selects the relay to open (0 or 1).
	Relay int `json:"relay"`

	// TimeoutMs is the optional pulse duration in milliseconds (250-30000).
	TimeoutMs int `json:"timeout_ms,omitempty"`

	// Wait requests device confirmation instead of fire-and-forget.
	Wait bool `json:"wait,omitempty"`
}

// handleListDevices returns a snapshot of every configured device,
// sorted by device ID.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	snaps := s.manager.Snapshots()

	ids := make([]string, 0, len(snaps))
	for id := range snaps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]intercom.Snapshot, 0, len(ids))
	for _, id := range ids {
		out = append(out, snaps[id])
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": out})
}

// handleGetDevice returns one device's snapshot.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	session, ok := s.manager.Get(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "unknown device")
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// handleOpenRelay opens a relay on a device. With "wait": true the
// response carries the device's confirmation; otherwise the command is
// fire-and-forget and success means it was handed to the device.
func (s *Server) handleOpenRelay(w http.ResponseWriter, r *http.Request) {
	session, ok := s.manager.Get(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "unknown device")
		return
	}

	var req relayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	var err error
	confirmed := false
	if req.Wait {
		confirmed, err = session.OpenRelayWait(r.Context(), req.Relay, req.TimeoutMs)
	} else {
		err = session.OpenRelay(r.Context(), req.Relay, req.TimeoutMs)
	}
	if err != nil {
		writeSessionError(w, err)
		return
	}
	if req.Wait && !confirmed {
		writeError(w, http.StatusBadGateway, ErrCodeDeviceUnreachable, "device rejected relay open")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"confirmed": confirmed,
	})
}

// handleTestConnection probes the device with a one-shot login.
func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	session, ok := s.manager.Get(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "unknown device")
		return
	}

	if err := session.TestConnection(r.Context()); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleCameraSnapshot proxies a single JPEG frame from the device camera.
func (s *Server) handleCameraSnapshot(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.cameras[chi.URLParam(r, "id")]
	if !ok {
		writeNotFound(w, "no camera for device")
		return
	}

	data, contentType, err := cam.Still(r.Context())
	if err != nil {
		writeCameraError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // best-effort write to response
	w.Write(data)
}

// handleCameraStream proxies the device camera's MJPEG stream until the
// client disconnects.
func (s *Server) handleCameraStream(w http.ResponseWriter, r *http.Request) {
	cam, ok := s.cameras[chi.URLParam(r, "id")]
	if !ok {
		writeNotFound(w, "no camera for device")
		return
	}

	body, contentType, err := cam.Stream(r.Context())
	if err != nil {
		writeCameraError(w, err)
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = "multipart/x-mixed-replace"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)

	// Forward frames as they arrive; the multipart stream never ends on
	// its own, so each chunk is flushed immediately.
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			return
		}
	}
}

// writeSessionError maps session errors to HTTP responses.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, intercom.ErrInvalidRelay), errors.Is(err, intercom.ErrInvalidTimeout):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, intercom.ErrAuthFailed):
		writeError(w, http.StatusBadGateway, ErrCodeAuthFailed, err.Error())
	case errors.Is(err, intercom.ErrNotConnected),
		errors.Is(err, intercom.ErrConnectionFailed),
		errors.Is(err, intercom.ErrRequestTimeout):
		writeError(w, http.StatusBadGateway, ErrCodeDeviceUnreachable, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}

// writeCameraError maps camera errors to HTTP responses.
func writeCameraError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, camera.ErrUnauthorized):
		writeError(w, http.StatusBadGateway, ErrCodeAuthFailed, err.Error())
	case errors.Is(err, camera.ErrUnavailable):
		writeError(w, http.StatusBadGateway, ErrCodeDeviceUnreachable, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
