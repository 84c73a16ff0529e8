package collector

import (
	"context"
	"time"
)

// EventKind identifies an archive progress event
type EventKind string

const (
	EventRunStarted      EventKind = "run_started"
	EventChannelStarted  EventKind = "channel_started"
	EventChannelResolved EventKind = "channel_resolved"
	EventChannelDone     EventKind = "channel_done"
	EventChannelFailed   EventKind = "channel_failed"
	EventMediaDownloaded EventKind = "media_downloaded"
	EventMediaSkipped    EventKind = "media_skipped"
	EventLog             EventKind = "log"
	EventRunFinished     EventKind = "run_finished"
)

// Event is one step of archive progress
type Event struct {
	Kind    EventKind      `json:"kind"`
	Time    time.Time      `json:"time"`
	Channel string         `json:"channel,omitempty"`
	Index   int            `json:"index,omitempty"` // 1-based channel position
	Total   int            `json:"total,omitempty"`
	Message string         `json:"message"`
	Result  *ChannelResult `json:"result,omitempty"`
}

// emit sends ev unless events is nil or ctx is done.
func emit(ctx context.Context, events chan<- Event, ev Event) {
	if events == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}
