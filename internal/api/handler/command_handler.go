package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"gpsgateway/internal/command"
	"gpsgateway/internal/core/model"
)

type CommandService interface {
	Enqueue(ctx context.Context, deviceID, text string) (*model.Command, error)
	List(ctx context.Context, deviceID string) ([]*model.Command, error)
}

type CommandHandler struct {
	commands CommandService
}

func NewCommandHandler(commands CommandService) *CommandHandler {
	return &CommandHandler{
		commands: commands,
	}
}

type createCommandRequest struct {
	IMEI    string `json:"imei"`
	Command string `json:"command"`
}

// Create queues a command. If the device is online it is pushed before the
// response is written.
func (h *CommandHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cmd, err := h.commands.Enqueue(r.Context(), req.IMEI, req.Command)
	if errors.Is(err, command.ErrInvalidCommand) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, cmd)
}

func (h *CommandHandler) List(w http.ResponseWriter, r *http.Request) {
	imei := r.URL.Query().Get("imei")
	if imei == "" {
		http.Error(w, "imei required", http.StatusBadRequest)
		return
	}

	cmds, err := h.commands.List(r.Context(), imei)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if cmds == nil {
		cmds = []*model.Command{}
	}
	writeJSON(w, http.StatusOK, cmds)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
