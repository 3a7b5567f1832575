package playlist

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// Handler exposes the clip window over HTTP.
type Handler struct {
	mgr *Manager
	log *slog.Logger
}

func NewHandler(mgr *Manager, log *slog.Logger) *Handler {
	return &Handler{mgr: mgr, log: log}
}

type clipView struct {
	Clip
	Size string `json:"size"`
	Age  string `json:"age"`
}

type clipsResponse struct {
	Clips []clipView `json:"clips"`
	Total int        `json:"total"`
}

// ListClips handles GET /clips.
func (h *Handler) ListClips(w http.ResponseWriter, r *http.Request) {
	clips, err := h.mgr.Clips()
	if err != nil {
		h.log.Error("list clips failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	total, err := h.mgr.Count()
	if err != nil {
		h.log.Error("count clips failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	now := time.Now()
	resp := clipsResponse{Clips: make([]clipView, 0, len(clips)), Total: total}
	for _, c := range clips {
		resp.Clips = append(resp.Clips, clipView{
			Clip: c,
			Size: humanize.Bytes(uint64(c.SizeBytes)),
			Age:  humanize.RelTime(c.SavedAt, now, "ago", "from now"),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// GetPlaylist handles GET /clips/playlist.m3u8.
func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	m3u, err := h.mgr.Playlist()
	if err != nil {
		h.log.Error("build playlist failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", playlistContentType)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(m3u))
}
