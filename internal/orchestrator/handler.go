package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"rl-replay/internal/obs"
)

const (
	startTimeout = 15 * time.Second
	stopTimeout  = 10 * time.Second
	playTimeout  = 10 * time.Second
)

// Handler exposes session control endpoints using go-chi.
type Handler struct {
	orch *Orchestrator
	log  *slog.Logger
}

// NewHandler returns a Handler driving orch.
func NewHandler(orch *Orchestrator, log *slog.Logger) *Handler {
	return &Handler{orch: orch, log: log}
}

type startRequest struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
}

type playRequest struct {
	Clips []string `json:"clips"`
}

type delayBody struct {
	DelaySeconds *int `json:"delay_seconds"`
}

type messageResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, messageResponse{Error: err.Error()})
}

// StartSession handles POST /session.
// Body: { "host": "127.0.0.1", "port": 4455, "password": "" }.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid session body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if req.Host == "" || req.Port <= 0 || req.Port > 65535 {
		writeError(w, http.StatusBadRequest, errors.New("host and port (1-65535) are required"))
		return
	}
	ep := obs.Endpoint{Host: req.Host, Port: req.Port, Password: req.Password}

	ctx, cancel := context.WithTimeout(r.Context(), startTimeout)
	defer cancel()
	if err := h.orch.Start(ctx, ep); err != nil {
		switch {
		case errors.Is(err, ErrAlreadyRunning):
			writeError(w, http.StatusConflict, err)
		case errors.Is(err, ErrBackendConnect),
			errors.Is(err, ErrConfigureReplayBuffer),
			errors.Is(err, ErrInitVideoSource):
			h.log.Info("session start failed", slog.String("endpoint", ep.Addr()), slog.String("error", err.Error()))
			writeError(w, http.StatusBadGateway, err)
		default:
			h.log.Error("session start failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("Connected to OBS at %s, watching for highlights", ep.Addr()),
	})
}

// StopSession handles DELETE /session.
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), stopTimeout)
	defer cancel()
	if err := h.orch.Stop(ctx); err != nil {
		if errors.Is(err, ErrNotRunning) {
			writeError(w, http.StatusConflict, err)
			return
		}
		h.log.Error("session stop failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Capture session stopped"})
}

// GetStatus handles GET /session.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.Status())
}

// Replay handles POST /session/replay.
func (h *Handler) Replay(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.Trigger(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, messageResponse{
		Message: fmt.Sprintf("Saving replay in %d seconds", h.orch.Delay()),
	})
}

// Play handles POST /playback.
// Body: { "clips": ["C:/Videos/Replay 1.mkv", ...] }.
func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid playback body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), playTimeout)
	defer cancel()
	if err := h.orch.Play(ctx, req.Clips); err != nil {
		switch {
		case errors.Is(err, ErrNoConnectionInfo):
			writeError(w, http.StatusPreconditionFailed, err)
		case errors.Is(err, ErrBackendConnect), errors.Is(err, ErrPlayback):
			h.log.Info("playback failed", slog.String("error", err.Error()))
			writeError(w, http.StatusBadGateway, err)
		default:
			h.log.Error("playback failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	msg := "Nothing to play"
	if n := len(req.Clips); n > 0 {
		msg = fmt.Sprintf("Playing %d clip(s)", n)
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

// GetDelay handles GET /config/delay.
func (h *Handler) GetDelay(w http.ResponseWriter, r *http.Request) {
	d := h.orch.Delay()
	writeJSON(w, http.StatusOK, delayBody{DelaySeconds: &d})
}

// SetDelay handles PUT /config/delay. Body: { "delay_seconds": 5 }.
// Out of range values are clamped and the stored value is echoed back.
func (h *Handler) SetDelay(w http.ResponseWriter, r *http.Request) {
	var req delayBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DelaySeconds == nil {
		writeError(w, http.StatusBadRequest, errors.New("delay_seconds is required"))
		return
	}
	stored := h.orch.SetDelay(*req.DelaySeconds)
	writeJSON(w, http.StatusOK, struct {
		DelaySeconds int    `json:"delay_seconds"`
		Message      string `json:"message"`
	}{stored, fmt.Sprintf("Replay delay set to %d seconds", stored)})
}
