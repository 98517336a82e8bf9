package handler

import (
	"context"
	"net/http"

	"gpsgateway/internal/core/model"
	"gpsgateway/internal/session"
)

type DeviceStore interface {
	ListDevices(ctx context.Context) ([]*model.Device, error)
}

type SessionLister interface {
	Online() []session.Session
}

type DeviceHandler struct {
	devices  DeviceStore
	sessions SessionLister
}

func NewDeviceHandler(devices DeviceStore, sessions SessionLister) *DeviceHandler {
	return &DeviceHandler{
		devices:  devices,
		sessions: sessions,
	}
}

type deviceResponse struct {
	*model.Device
	Online bool `json:"online"`
}

// GetDevices lists every device that has reported, flagging those with a
// live TCP session on this gateway.
func (h *DeviceHandler) GetDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.devices.ListDevices(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	online := make(map[string]bool)
	for _, s := range h.sessions.Online() {
		online[s.DeviceID] = true
	}

	resp := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		resp = append(resp, deviceResponse{Device: d, Online: online[d.ID]})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *DeviceHandler) GetOnline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.Online())
}
