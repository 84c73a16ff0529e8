package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/blockedby/tg-archive/internal/repository"
	"github.com/blockedby/tg-archive/internal/web"
)

// PagesHandler handles HTML page requests
type PagesHandler struct {
	templates   *web.TemplateEngine
	index       ArchiveIndex
	store       SettingsStore
	searchLimit int
}

// NewPagesHandler creates a new pages handler
func NewPagesHandler(templates *web.TemplateEngine, index ArchiveIndex, store SettingsStore, searchLimit int) *PagesHandler {
	if searchLimit <= 0 {
		searchLimit = repository.DefaultSearchLimit
	}
	return &PagesHandler{
		templates:   templates,
		index:       index,
		store:       store,
		searchLimit: searchLimit,
	}
}

// Dashboard renders the archived channels with overall stats
func (h *PagesHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "dashboard", map[string]interface{}{
		"Title":      "Dashboard",
		"ActivePage": "dashboard",
		"Channels":   h.index.Channels(),
		"Stats":      h.index.Stats(),
	})
}

// Channel renders the archive files of one channel
func (h *PagesHandler) Channel(w http.ResponseWriter, r *http.Request) {
	name := urlParam(r, "name")

	files, err := h.index.Files(name)
	if err != nil {
		h.renderError(w, err)
		return
	}

	h.render(w, r, "channel", map[string]interface{}{
		"Title":      name,
		"ActivePage": "dashboard",
		"Channel":    name,
		"Files":      files,
	})
}

// View renders one archive file as HTML
func (h *PagesHandler) View(w http.ResponseWriter, r *http.Request) {
	channel := urlParam(r, "channel")
	file := urlParam(r, "file")

	content, err := h.index.ReadFile(channel, file)
	if err != nil {
		h.renderError(w, err)
		return
	}

	body, err := RenderMarkdown(channel, content)
	if err != nil {
		http.Error(w, "Markdown error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.render(w, r, "view", map[string]interface{}{
		"Title":      file,
		"ActivePage": "dashboard",
		"Channel":    channel,
		"File":       file,
		"Content":    body,
	})
}

// Search renders the search form and, when q is set, its results
func (h *PagesHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	channel := r.URL.Query().Get("channel")

	var results []repository.SearchResult
	if query != "" {
		results = h.index.Search(query, channel, h.searchLimit)
	}

	h.render(w, r, "search", map[string]interface{}{
		"Title":      "Search",
		"ActivePage": "search",
		"Query":      query,
		"Channel":    channel,
		"Channels":   h.index.Channels(),
		"Results":    results,
	})
}

// Settings renders the channel list and archive options
func (h *PagesHandler) Settings(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Load()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.render(w, r, "settings", map[string]interface{}{
		"Title":           "Settings",
		"ActivePage":      "settings",
		"Channels":        st.Channels,
		"ArchiveSettings": st.ArchiveSettings,
		"Configured":      st.APICredentials.Configured(),
	})
}

func (h *PagesHandler) render(w http.ResponseWriter, r *http.Request, page string, data map[string]interface{}) {
	if r.Header.Get("HX-Request") == "true" {
		if err := h.templates.RenderContent(w, page, data); err != nil {
			http.Error(w, "Template error: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	if err := h.templates.Render(w, page, data); err != nil {
		http.Error(w, "Template error: "+err.Error(), http.StatusInternalServerError)
	}
}

func (h *PagesHandler) renderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, "File not found", http.StatusNotFound)
	case errors.Is(err, repository.ErrInvalidPath):
		http.Error(w, "Invalid path", http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// urlParam returns the decoded route parameter key.
func urlParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
