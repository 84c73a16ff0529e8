package collector

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/blockedby/tg-archive/internal/settings"
	"github.com/blockedby/tg-archive/internal/telegram"
)

// ChannelSource provides the channels and options of an archive run
type ChannelSource interface {
	EnabledChannels() ([]settings.Channel, error)
	ArchiveSettings() (settings.ArchiveSettings, error)
}

// StatusProvider reports whether telegram is usable
type StatusProvider interface {
	GetStatus() telegram.Status
}

// Handler handles HTTP requests for archiving control
type Handler struct {
	manager    *ArchiveManager
	source     ChannelSource
	tgStatus   StatusProvider
	archiveDir string
}

// NewHandler creates a new handler. tgStatus may be nil to skip the
// readiness check.
func NewHandler(manager *ArchiveManager, source ChannelSource, tgStatus StatusProvider, archiveDir string) *Handler {
	return &Handler{
		manager:    manager,
		source:     source,
		tgStatus:   tgStatus,
		archiveDir: archiveDir,
	}
}

// Start handles POST /api/archiving/start
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.tgStatus != nil {
		if st := h.tgStatus.GetStatus(); st != telegram.StatusReady {
			respondError(w, http.StatusServiceUnavailable, "telegram client is not ready: "+string(st))
			return
		}
	}

	channels, err := h.source.EnabledChannels()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	as, err := h.source.ArchiveSettings()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	identifiers := make([]string, 0, len(channels))
	for _, ch := range channels {
		identifiers = append(identifiers, ch.Identifier)
	}

	job, err := h.manager.Start(r.Context(), identifiers, req.Options(as, h.archiveDir))
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyRunning):
			respondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, ErrNoChannels):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, StartResponse{
		Success:  true,
		Message:  "Archiving started successfully",
		JobID:    job.ID.String(),
		Channels: len(job.Channels),
	})
}

// Stop handles POST /api/archiving/stop
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Stop(); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Archiving stopped",
	})
}

// Status handles GET /api/archiving/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.manager.Status())
}

// helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
