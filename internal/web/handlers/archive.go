package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/blockedby/tg-archive/internal/repository"
)

// defaultAPISearchLimit applies to /api/search when limit is omitted
const defaultAPISearchLimit = 20

// ArchiveHandler serves archive data as JSON and media files
type ArchiveHandler struct {
	index ArchiveIndex
}

// NewArchiveHandler creates a new archive handler
func NewArchiveHandler(index ArchiveIndex) *ArchiveHandler {
	return &ArchiveHandler{index: index}
}

// Search handles GET /api/search?q=&channel=&limit=
func (h *ArchiveHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Query parameter 'q' is required"})
		return
	}

	limit := defaultAPISearchLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	results := h.index.Search(query, q.Get("channel"), limit)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}

// Stats handles GET /api/stats
func (h *ArchiveHandler) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.index.Stats())
}

// Channels handles GET /api/archive/channels
func (h *ArchiveHandler) Channels(w http.ResponseWriter, r *http.Request) {
	channels := h.index.Channels()
	if channels == nil {
		channels = []repository.ChannelSummary{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"channels": channels,
		"count":    len(channels),
	})
}

// Files handles GET /api/archive/channels/{name}/files
func (h *ArchiveHandler) Files(w http.ResponseWriter, r *http.Request) {
	name := urlParam(r, "name")

	files, err := h.index.Files(name)
	if err != nil {
		respondArchiveError(w, err)
		return
	}
	if files == nil {
		files = []repository.FileInfo{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"channel": name,
		"files":   files,
		"count":   len(files),
	})
}

// Media handles GET /media/{channel}/{file}
func (h *ArchiveHandler) Media(w http.ResponseWriter, r *http.Request) {
	path, err := h.index.MediaPath(urlParam(r, "channel"), urlParam(r, "file"))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, "Media file not found", http.StatusNotFound)
		return
	case errors.Is(err, repository.ErrInvalidPath):
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.ServeFile(w, r, path)
}

func respondArchiveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrInvalidPath):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
