package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/blockedby/tg-archive/internal/telegram"
	"github.com/blockedby/tg-archive/internal/web"
)

// AuthHandler handles Telegram login requests
type AuthHandler struct {
	client TelegramClient
	hub    HubBroadcaster
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(client TelegramClient, hub HubBroadcaster) *AuthHandler {
	return &AuthHandler{
		client: client,
		hub:    hub,
	}
}

// GetStatus returns the current Telegram authentication status
func (h *AuthHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := h.client.GetStatus()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         string(status),
		"is_ready":       status == telegram.StatusReady,
		"qr_in_progress": h.client.IsQRInProgress(),
	})
}

// StartQR initiates the QR code login flow. Codes and the outcome are pushed
// over the websocket.
func (h *AuthHandler) StartQR(w http.ResponseWriter, r *http.Request) {
	if h.client.GetStatus() == telegram.StatusReady {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "already logged in"})
		return
	}

	if h.client.IsQRInProgress() {
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "already in progress"})
		return
	}

	go func() {
		err := h.client.StartQR(context.Background(), func(url string) {
			h.broadcast(web.EventQRCode, web.QRCodePayload{URL: url})
		})
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				h.broadcast(web.EventError, web.ErrorPayload{Message: err.Error()})
			}
			return
		}
		h.broadcast(web.EventAuthSuccess, nil)
	}()

	respondJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (h *AuthHandler) broadcast(eventType string, payload any) {
	if h.hub != nil {
		h.hub.BroadcastEvent(eventType, payload)
	}
}
