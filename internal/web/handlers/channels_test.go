package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/tg-archive/internal/settings"
)

const testConfig = `{
  "api_credentials": {"api_id": 12345, "api_hash": "abc"},
  "channels": [
    {"identifier": "@golang", "name": "Go News", "enabled": true},
    {"identifier": "https://t.me/rustlang", "name": "Rust", "enabled": false}
  ],
  "archive_settings": {"messages_per_channel": 50, "days_back": 3, "output_directory": "out", "download_media": false}
}`

func newTestStore(t *testing.T) *settings.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0644))
	return settings.NewStore(path)
}

func newChannelsRouter(store SettingsStore) http.Handler {
	h := NewChannelsHandler(store)
	r := chi.NewRouter()
	r.Get("/api/channels", h.List)
	r.Post("/api/channels", h.Create)
	r.Put("/api/channels/{index}", h.Update)
	r.Delete("/api/channels/{index}", h.Delete)
	return r
}

// reloaded reads the settings file back from disk
func reloaded(t *testing.T, store *settings.Store) *settings.Settings {
	t.Helper()
	st, err := settings.NewStore(store.Path()).Load()
	require.NoError(t, err)
	return st
}

func TestChannelsHandler_List(t *testing.T) {
	store := newTestStore(t)

	rr := serve(t, newChannelsRouter(store), http.MethodGet, "/api/channels", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Success         bool                     `json:"success"`
		Channels        []settings.Channel       `json:"channels"`
		ArchiveSettings settings.ArchiveSettings `json:"archive_settings"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Channels, 2)
	assert.Equal(t, "Rust", resp.Channels[1].Name)
	assert.Equal(t, 50, resp.ArchiveSettings.MessagesPerChannel)
}

func TestChannelsHandler_Create(t *testing.T) {
	store := newTestStore(t)
	h := newChannelsRouter(store)

	rr := serve(t, h, http.MethodPost, "/api/channels", strings.NewReader(`{"identifier":" @python ","name":"Python"}`))
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"success":true,"message":"Channel added successfully",
		"channel":{"identifier":"@python","name":"Python","enabled":true}}`, rr.Body.String())

	st := reloaded(t, store)
	require.Len(t, st.Channels, 3)
	assert.Equal(t, settings.Channel{Identifier: "@python", Name: "Python", Enabled: true}, st.Channels[2])
}

func TestChannelsHandler_Create_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		err    string
	}{
		{"malformed json", `{`, http.StatusBadRequest, "invalid request body"},
		{"missing name", `{"identifier":"@python"}`, http.StatusBadRequest, settings.ErrRequired.Error()},
		{"bad identifier", `{"identifier":"python","name":"Python"}`, http.StatusBadRequest, settings.ErrInvalidIdentifier.Error()},
		{"duplicate identifier", `{"identifier":"@golang","name":"Other"}`, http.StatusConflict, settings.ErrDuplicate.Error()},
		{"duplicate name", `{"identifier":"@other","name":"Rust"}`, http.StatusConflict, settings.ErrDuplicate.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)

			rr := serve(t, newChannelsRouter(store), http.MethodPost, "/api/channels", strings.NewReader(tt.body))

			assert.Equal(t, tt.status, rr.Code)
			var resp map[string]interface{}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, false, resp["success"])
			assert.Equal(t, tt.err, resp["error"])
			assert.Len(t, reloaded(t, store).Channels, 2, "nothing written")
		})
	}
}

func TestChannelsHandler_Update(t *testing.T) {
	store := newTestStore(t)
	h := newChannelsRouter(store)

	rr := serve(t, h, http.MethodPut, "/api/channels/1", strings.NewReader(`{"enabled":true,"name":"Rust Lang"}`))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"message":"Channel updated successfully",
		"channel":{"identifier":"https://t.me/rustlang","name":"Rust Lang","enabled":true}}`, rr.Body.String())

	st := reloaded(t, store)
	assert.Equal(t, "Rust Lang", st.Channels[1].Name)
	assert.True(t, st.Channels[1].Enabled)
	assert.Equal(t, "Go News", st.Channels[0].Name, "other entries untouched")
}

func TestChannelsHandler_Update_Errors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"index out of range", "/api/channels/5", `{"enabled":true}`, http.StatusNotFound},
		{"negative index", "/api/channels/-1", `{"enabled":true}`, http.StatusNotFound},
		{"index not a number", "/api/channels/abc", `{"enabled":true}`, http.StatusBadRequest},
		{"malformed json", "/api/channels/0", `nope`, http.StatusBadRequest},
		{"invalid identifier", "/api/channels/0", `{"identifier":"golang"}`, http.StatusBadRequest},
		{"name taken", "/api/channels/0", `{"name":"Rust"}`, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(t, newChannelsRouter(newTestStore(t)), http.MethodPut, tt.path, strings.NewReader(tt.body))
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}

func TestChannelsHandler_Delete(t *testing.T) {
	store := newTestStore(t)
	h := newChannelsRouter(store)

	rr := serve(t, h, http.MethodDelete, "/api/channels/0", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"message":"Channel deleted successfully",
		"deleted_channel":{"identifier":"@golang","name":"Go News","enabled":true}}`, rr.Body.String())

	// later entries shift down
	st := reloaded(t, store)
	require.Len(t, st.Channels, 1)
	assert.Equal(t, "Rust", st.Channels[0].Name)

	rr = serve(t, h, http.MethodDelete, "/api/channels/1", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// failingStore fails every call
type failingStore struct{ SettingsStore }

var errDisk = errors.New("disk full")

func (failingStore) Load() (*settings.Settings, error) { return nil, errDisk }
func (failingStore) AddChannel(settings.Channel) (settings.Channel, error) {
	return settings.Channel{}, errDisk
}

func TestChannelsHandler_StoreFailure(t *testing.T) {
	h := newChannelsRouter(failingStore{})

	rr := serve(t, h, http.MethodGet, "/api/channels", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"success":false,"error":"disk full"}`, rr.Body.String())

	rr = serve(t, h, http.MethodPost, "/api/channels", strings.NewReader(`{"identifier":"@x","name":"X"}`))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
