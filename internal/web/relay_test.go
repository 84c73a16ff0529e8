package web

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/tg-archive/internal/nats"
)

func TestHub_RelayHandler(t *testing.T) {
	hub := NewHub()
	relay := hub.RelayHandler()

	tests := []struct {
		name    string
		subject string
		data    string
		want    string
	}{
		{
			name:    "message saved",
			subject: nats.SubjectMessageSaved,
			data:    `{"channel":"Go News","message_id":7}`,
			want:    `{"type":"archive.message","payload":{"channel":"Go News","message_id":7}}`,
		},
		{
			name:    "batch completed",
			subject: nats.SubjectBatchCompleted,
			data:    `{"channel":"Go News","message_count":3}`,
			want:    `{"type":"archive.batch","payload":{"channel":"Go News","message_count":3}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, relay(tt.subject, []byte(tt.data)))

			select {
			case msg := <-hub.broadcast:
				assert.JSONEq(t, tt.want, string(msg))
			case <-time.After(time.Second):
				t.Fatal("event was not broadcast")
			}
		})
	}
}

func TestHub_RelayHandler_Drops(t *testing.T) {
	hub := NewHub()
	relay := hub.RelayHandler()

	assert.NoError(t, relay("archive.unknown", []byte(`{}`)))
	assert.NoError(t, relay(nats.SubjectMessageSaved, []byte(`{not json`)))

	assert.Empty(t, hub.broadcast)
}
