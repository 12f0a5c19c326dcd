package playout

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"tv-playout/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

var allowedMediaExts = map[string]struct{}{
	".mp4":  {},
	".mov":  {},
	".mkv":  {},
	".avi":  {},
	".webm": {},
}

// Handler exposes the playout control surface over HTTP using go-chi. Each
// endpoint is a thin translation onto one orchestrator operation.
type Handler struct {
	orch     *Orchestrator
	overlays *OverlayManager
	settings Settings
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewHandler returns a Handler. Metrics may be nil to disable metric
// recording (e.g. in tests).
func NewHandler(orch *Orchestrator, overlays *OverlayManager, settings Settings, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{orch: orch, overlays: overlays, settings: settings, log: log, metrics: m}
}

// Routes mounts the control endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/status", h.Status)
	r.Post("/queue", h.Enqueue)
	r.Post("/broadcast/start", h.StartBroadcast)
	r.Post("/broadcast/stop", h.StopBroadcast)
	r.Post("/live/start", h.GoLive)
	r.Post("/live/end", h.EndLive)
	r.Get("/overlays", h.OverlayStatus)
	r.Post("/overlays/toggle", h.ToggleOverlay)
	r.Post("/overlays/{kind}", h.UploadOverlay)
	r.Delete("/overlays/{kind}", h.DeleteOverlay)
	r.Post("/program-name", h.SetProgramName)
}

// Status handles GET /status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.Status())
}

// Enqueue handles POST /queue: a multipart upload under the "file" field.
// The file is stored in the upload directory and appended to the queue.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.settings.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := allowedMediaExts[ext]; !ok {
		h.log.Info("upload rejected", slog.String("name", name), slog.String("error", ErrUnsupportedMedia.Error()))
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s: %s", ErrUnsupportedMedia, ext))
		return
	}
	if header.Size > h.settings.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, ErrMediaTooLarge.Error())
		return
	}

	if err := os.MkdirAll(h.settings.UploadDir, 0o755); err != nil {
		h.log.Error("create upload dir", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	// Stored under a unique name so repeated uploads of the same file never
	// collide; the queue keeps the original name for display.
	stored := filepath.Join(h.settings.UploadDir, uuid.NewString()+ext)
	dst, err := os.Create(stored)
	if err != nil {
		h.log.Error("store upload", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(stored)
		h.log.Error("store upload", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	dst.Close()

	item := NewMediaItem(name, stored)
	length := h.orch.Enqueue(item)

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":           item.ID,
		"name":         item.Name,
		"queue_length": length,
	})
}

// StartBroadcast handles POST /broadcast/start.
func (h *Handler) StartBroadcast(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.StartBroadcast(); err != nil {
		h.log.Error("start broadcast", slog.String("error", err.Error()))
		status := http.StatusConflict
		if errors.Is(err, ErrEngineMissing) {
			status = http.StatusInternalServerError
		}
		writeError(w, status, err.Error())
		return
	}
	h.log.Info("broadcast start requested")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// StopBroadcast handles POST /broadcast/stop.
func (h *Handler) StopBroadcast(w http.ResponseWriter, r *http.Request) {
	h.orch.StopBroadcast()
	h.log.Info("broadcast stop requested")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// GoLive handles POST /live/start.
func (h *Handler) GoLive(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.GoLive(); err != nil {
		status := http.StatusConflict
		if errors.Is(err, ErrEngineMissing) {
			status = http.StatusInternalServerError
		}
		writeError(w, status, err.Error())
		return
	}
	h.log.Info("live mode requested")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// EndLive handles POST /live/end.
func (h *Handler) EndLive(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.EndLive(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	h.log.Info("live mode ended")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// OverlayStatus handles GET /overlays.
func (h *Handler) OverlayStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.overlays.Status())
}

// UploadOverlay handles POST /overlays/{kind} for kind "logo" or "banner".
func (h *Handler) UploadOverlay(w http.ResponseWriter, r *http.Request) {
	kind, ok := overlayKind(chi.URLParam(r, "kind"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown overlay kind")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBannerBytes+(1<<20))
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	info, err := h.overlays.Save(kind, header.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnsupportedFormat):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrAssetTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		default:
			h.log.Error("save overlay", slog.String("kind", string(kind)), slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	h.log.Info("overlay staged", slog.String("kind", string(kind)), slog.Int("width", info.Width), slog.Int("height", info.Height))
	writeJSON(w, http.StatusOK, info)
}

// DeleteOverlay handles DELETE /overlays/{kind}.
func (h *Handler) DeleteOverlay(w http.ResponseWriter, r *http.Request) {
	kind, ok := overlayKind(chi.URLParam(r, "kind"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown overlay kind")
		return
	}
	if err := h.overlays.Delete(kind); err != nil {
		h.log.Error("delete overlay", slog.String("kind", string(kind)), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ToggleOverlay handles POST /overlays/toggle.
// Body: { "type": "logo"|"banner"|"all", "enabled": true }.
func (h *Handler) ToggleOverlay(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type    string `json:"type"`
		Enabled bool   `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.overlays.Toggle(body.Type, body.Enabled); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.overlays.Status())
}

// SetProgramName handles POST /program-name.
// Body: { "program_name": "Evening Show" }; empty clears the layer.
func (h *Handler) SetProgramName(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProgramName string `json:"program_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	h.overlays.SetProgramName(body.ProgramName)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "program_name": body.ProgramName})
}

func overlayKind(s string) (AssetKind, bool) {
	switch s {
	case string(AssetLogo):
		return AssetLogo, true
	case string(AssetBanner):
		return AssetBanner, true
	}
	return "", false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
