package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/tg-archive/internal/archive"
	"github.com/blockedby/tg-archive/internal/repository"
	"github.com/blockedby/tg-archive/internal/telegram"
)

// newArchiveFixture writes one batch archive for "Go News" with a photo
func newArchiveFixture(t *testing.T) (*repository.ArchiveIndex, string) {
	t.Helper()
	root := t.TempDir()
	date := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	content := "# Go News\n\n**Date Range:** 2024-03-08 to 2024-03-15\n\n---\n\n" +
		archive.RenderMessage(telegram.Message{ID: 1, Date: date, Sender: "Alice", Text: "Go 1.22 released"}, "Go News", "") +
		archive.RenderMessage(telegram.Message{ID: 2, Date: date, Sender: "Bob", Text: "gopher photo",
			Media: &telegram.Media{Kind: telegram.MediaPhoto}}, "Go News", archive.MediaRef("msg_2.jpg")) +
		archive.RenderMessage(telegram.Message{ID: 3, Date: date, Sender: "Carol", Text: "go vet tips"}, "Go News", "")

	dir := filepath.Join(root, "Go News")
	require.NoError(t, os.MkdirAll(archive.MediaDir(root, "Go News"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Go News_2024-03-15_12-00-00.md"), []byte(content), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(archive.MediaDir(root, "Go News"), "msg_2.jpg"), []byte("jpeg-bytes"), 0644))

	return repository.NewArchiveIndex(root), root
}

func newArchiveRouter(index ArchiveIndex) http.Handler {
	h := NewArchiveHandler(index)
	r := chi.NewRouter()
	r.Get("/api/search", h.Search)
	r.Get("/api/stats", h.Stats)
	r.Get("/api/archive/channels", h.Channels)
	r.Get("/api/archive/channels/{name}/files", h.Files)
	r.Get("/media/{channel}/{file}", h.Media)
	return r
}

func serve(t *testing.T, h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestArchiveHandler_Search(t *testing.T) {
	index, _ := newArchiveFixture(t)
	h := newArchiveRouter(index)

	t.Run("requires q", func(t *testing.T) {
		rr := serve(t, h, http.MethodGet, "/api/search", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.JSONEq(t, `{"error":"Query parameter 'q' is required"}`, rr.Body.String())
	})

	t.Run("bad limit", func(t *testing.T) {
		rr := serve(t, h, http.MethodGet, "/api/search?q=go&limit=abc", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("results and count", func(t *testing.T) {
		rr := serve(t, h, http.MethodGet, "/api/search?q=GO&channel=Go+News", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp struct {
			Results []repository.SearchResult `json:"results"`
			Count   int                       `json:"count"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.Count)
		assert.Len(t, resp.Results, 3)
		assert.Equal(t, "Go News", resp.Results[0].Channel)
	})

	t.Run("limit caps results", func(t *testing.T) {
		rr := serve(t, h, http.MethodGet, "/api/search?q=go&limit=2", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Count)
	})

	t.Run("no match is an empty list", func(t *testing.T) {
		rr := serve(t, h, http.MethodGet, "/api/search?q=kotlin", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"results":[],"count":0}`, rr.Body.String())
	})
}

func TestArchiveHandler_Stats(t *testing.T) {
	index, _ := newArchiveFixture(t)

	rr := serve(t, newArchiveRouter(index), http.MethodGet, "/api/stats", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"total_channels":1,"total_files":1,"total_messages":3,"total_media":1}`, rr.Body.String())
}

func TestArchiveHandler_Channels(t *testing.T) {
	index, _ := newArchiveFixture(t)

	rr := serve(t, newArchiveRouter(index), http.MethodGet, "/api/archive/channels", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Channels []repository.ChannelSummary `json:"channels"`
		Count    int                         `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "Go News", resp.Channels[0].Name)
	assert.Equal(t, 3, resp.Channels[0].MessageCount)
}

func TestArchiveHandler_Channels_EmptyIndex(t *testing.T) {
	rr := serve(t, newArchiveRouter(repository.NewArchiveIndex(t.TempDir())), http.MethodGet, "/api/archive/channels", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"channels":[],"count":0}`, rr.Body.String())
}

func TestArchiveHandler_Files(t *testing.T) {
	index, _ := newArchiveFixture(t)
	h := newArchiveRouter(index)

	rr := serve(t, h, http.MethodGet, "/api/archive/channels/Go%20News/files", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Channel string                `json:"channel"`
		Files   []repository.FileInfo `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Go News", resp.Channel)
	require.Len(t, resp.Files, 1)
	assert.Equal(t, "2024-03-08 to 2024-03-15", resp.Files[0].DateRange)

	rr = serve(t, h, http.MethodGet, "/api/archive/channels/..%2Fetc/files", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestArchiveHandler_Media(t *testing.T) {
	index, _ := newArchiveFixture(t)
	h := newArchiveRouter(index)

	rr := serve(t, h, http.MethodGet, "/media/Go%20News/msg_2.jpg", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "jpeg-bytes", rr.Body.String())

	rr = serve(t, h, http.MethodGet, "/media/Go%20News/msg_9.jpg", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(t, h, http.MethodGet, "/media/Go%20News/..%2FGo%20News_2024-03-15_12-00-00.md", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
