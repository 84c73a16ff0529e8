package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/blockedby/tg-archive/internal/settings"
)

// ChannelsHandler handles CRUD over the configured channel list
type ChannelsHandler struct {
	store SettingsStore
}

// NewChannelsHandler creates a new channels handler
func NewChannelsHandler(store SettingsStore) *ChannelsHandler {
	return &ChannelsHandler{store: store}
}

// List handles GET /api/channels
func (h *ChannelsHandler) List(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Load()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	channels := st.Channels
	if channels == nil {
		channels = []settings.Channel{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"channels":         channels,
		"archive_settings": st.ArchiveSettings,
	})
}

// Create handles POST /api/channels
func (h *ChannelsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var ch settings.Channel
	if err := json.NewDecoder(r.Body).Decode(&ch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.store.AddChannel(ch)
	if err != nil {
		respondSettingsError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Channel added successfully",
		"channel": created,
	})
}

// Update handles PUT /api/channels/{index}
func (h *ChannelsHandler) Update(w http.ResponseWriter, r *http.Request) {
	index, ok := channelIndex(w, r)
	if !ok {
		return
	}

	var patch settings.ChannelPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.store.UpdateChannel(index, patch)
	if err != nil {
		respondSettingsError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Channel updated successfully",
		"channel": updated,
	})
}

// Delete handles DELETE /api/channels/{index}
func (h *ChannelsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	index, ok := channelIndex(w, r)
	if !ok {
		return
	}

	deleted, err := h.store.DeleteChannel(index)
	if err != nil {
		respondSettingsError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"message":         "Channel deleted successfully",
		"deleted_channel": deleted,
	})
}

func channelIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid channel index")
		return 0, false
	}
	return index, true
}

// respondSettingsError maps settings sentinels to HTTP statuses
func respondSettingsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, settings.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, settings.ErrDuplicate):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, settings.ErrRequired),
		errors.Is(err, settings.ErrInvalidIdentifier),
		errors.Is(err, settings.ErrInvalidSettings):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
