package web

import (
	"encoding/json"

	"github.com/blockedby/tg-archive/internal/nats"
)

var relayedSubjects = map[string]string{
	nats.SubjectMessageSaved:   EventArchiveMessage,
	nats.SubjectBatchCompleted: EventArchiveBatch,
}

// RelayHandler returns a NATS message handler that forwards archive events
// to websocket clients. Unknown subjects and malformed payloads are dropped.
func (h *Hub) RelayHandler() func(subject string, data []byte) error {
	return func(subject string, data []byte) error {
		eventType, ok := relayedSubjects[subject]
		if !ok {
			return nil
		}
		if !json.Valid(data) {
			h.log.Warn().Str("subject", subject).Msg("dropping malformed event")
			return nil
		}
		h.BroadcastEvent(eventType, json.RawMessage(data))
		return nil
	}
}
