package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/blockedby/tg-archive/internal/settings"
)

// SettingsHandler handles the archive options
type SettingsHandler struct {
	store SettingsStore
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(store SettingsStore) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// Get handles GET /api/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	as, err := h.store.ArchiveSettings()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"settings": as,
	})
}

// Update handles POST /api/settings. Only the fields present in the body change.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch settings.ArchiveSettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	as, err := h.store.UpdateArchiveSettings(patch)
	if err != nil {
		respondSettingsError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  "Settings updated successfully",
		"settings": as,
	})
}
