package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blockedby/tg-archive/internal/logger"
)

// errors
var (
	ErrAlreadyRunning = errors.New("archiving is already running")
	ErrNotRunning     = errors.New("no archiving process is running")
	ErrNoChannels     = errors.New("no enabled channels to archive")
)

// EventArchiveProgress is the websocket event type carrying a Status snapshot
const EventArchiveProgress = "archive.progress"

// maxStatusLogs bounds the log tail kept in Status
const maxStatusLogs = 100

// log lines shown on the dashboard
const (
	logStarting  = "🚀 Starting archiving process..."
	logStopped   = "🛑 Archiving stopped by user"
	logCompleted = "✅ Archiving completed successfully!"
)

// Archiver runs a multi-channel archive
type Archiver interface {
	ArchiveChannels(ctx context.Context, identifiers []string, opts Options, events chan<- Event) *Summary
}

// Broadcaster pushes progress to connected clients
type Broadcaster interface {
	BroadcastEvent(eventType string, payload any)
}

// ArchiveJob represents an active archive run
type ArchiveJob struct {
	ID        uuid.UUID
	StartedAt time.Time
	Channels  []string
	Options   Options
}

// Status is a point-in-time view of archiving progress
type Status struct {
	Running           bool       `json:"running"`
	JobID             string     `json:"job_id,omitempty"`
	Progress          int        `json:"progress"`
	CurrentChannel    string     `json:"current_channel"`
	TotalChannels     int        `json:"total_channels"`
	ProcessedChannels int        `json:"processed_channels"`
	StartTime         *time.Time `json:"start_time"`
	Logs              []string   `json:"logs"`
	Error             string     `json:"error"`
}

// ArchiveManager manages archive runs
// ensures only one run is active at a time
// thread-safe
type ArchiveManager struct {
	mu          sync.Mutex
	current     *ArchiveJob
	cancelFn    context.CancelFunc
	done        chan struct{} // closed when the last run goroutine exits
	status      Status
	archiver    Archiver
	broadcaster Broadcaster
	log         *logger.Logger
}

// NewArchiveManager creates a new archive manager. broadcaster may be nil.
func NewArchiveManager(archiver Archiver, broadcaster Broadcaster, log *logger.Logger) *ArchiveManager {
	return &ArchiveManager{
		archiver:    archiver,
		broadcaster: broadcaster,
		log:         log,
		status:      Status{Logs: []string{}},
	}
}

// Start starts a new archive run over the given channels
// returns ErrAlreadyRunning if a run is active. A stopped run that has not
// exited yet is waited for until ctx is done.
func (m *ArchiveManager) Start(ctx context.Context, channels []string, opts Options) (*ArchiveJob, error) {
	for {
		m.mu.Lock()
		if m.current != nil {
			m.mu.Unlock()
			return nil, ErrAlreadyRunning
		}
		if len(channels) == 0 {
			m.mu.Unlock()
			return nil, ErrNoChannels
		}

		prev := m.done
		if prev == nil || isClosed(prev) {
			break // m.mu stays locked
		}
		m.mu.Unlock()

		select {
		case <-prev:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// the run outlives the request that started it
	runCtx, cancel := context.WithCancel(context.Background())
	m.cancelFn = cancel

	job := &ArchiveJob{
		ID:        uuid.New(),
		StartedAt: time.Now(),
		Channels:  append([]string(nil), channels...),
		Options:   opts,
	}
	m.current = job
	done := make(chan struct{})
	m.done = done

	started := job.StartedAt
	m.status = Status{
		Running:       true,
		JobID:         job.ID.String(),
		TotalChannels: len(channels),
		StartTime:     &started,
		Logs:          []string{logStarting},
	}
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.log.Info().Str("job_id", job.ID.String()).Int("channels", len(channels)).Msg("archive job started")
	m.broadcast(snapshot)

	go func() {
		defer close(done)
		m.run(runCtx, job)
	}()

	return job, nil
}

// Stop cancels the active run
// returns ErrNotRunning when nothing is running
func (m *ArchiveManager) Stop() error {
	m.mu.Lock()

	if m.current == nil {
		m.mu.Unlock()
		return ErrNotRunning
	}

	if m.cancelFn != nil {
		m.cancelFn()
		m.cancelFn = nil
	}
	m.log.Info().Str("job_id", m.current.ID.String()).Msg("archive job stopped")
	m.current = nil

	m.status.Running = false
	m.appendLogLocked(logStopped)
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.broadcast(snapshot)
	return nil
}

// Current returns the active job, nil when idle
func (m *ArchiveManager) Current() *ArchiveJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Status returns a copy of the current progress
func (m *ArchiveManager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// run executes the job
// this is called in a goroutine
func (m *ArchiveManager) run(ctx context.Context, job *ArchiveJob) {
	events := make(chan Event, 32)
	done := make(chan *Summary, 1)

	go func() {
		done <- m.archiver.ArchiveChannels(ctx, job.Channels, job.Options, events)
		close(events)
	}()

	for ev := range events {
		m.apply(job.ID, ev)
	}

	m.finish(job, <-done)
}

// apply folds one event into the status of job
func (m *ArchiveManager) apply(jobID uuid.UUID, ev Event) {
	m.mu.Lock()
	if m.current == nil || m.current.ID != jobID {
		m.mu.Unlock()
		return
	}

	switch ev.Kind {
	case EventChannelStarted:
		m.status.CurrentChannel = ev.Channel
		m.status.Progress = percent(ev.Index-1, ev.Total)
	case EventChannelDone, EventChannelFailed:
		m.status.ProcessedChannels = ev.Index
		m.status.Progress = percent(ev.Index, ev.Total)
	}
	if ev.Message != "" {
		m.appendLogLocked(ev.Message)
	}
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.broadcast(snapshot)
}

// finish records the outcome of job unless it was stopped or replaced
func (m *ArchiveManager) finish(job *ArchiveJob, summary *Summary) {
	m.mu.Lock()
	if m.current == nil || m.current.ID != job.ID {
		m.mu.Unlock()
		return
	}

	m.current = nil
	m.cancelFn = nil
	m.status.Running = false

	if summary.Succeeded == 0 && summary.Total > 0 {
		m.status.Error = fmt.Sprintf("all %d channels failed", summary.Total)
		m.appendLogLocked("❌ Archiving failed: " + m.status.Error)
	} else {
		m.status.Progress = 100
		m.status.CurrentChannel = "Completed"
		m.appendLogLocked(logCompleted)
	}
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.log.Info().
		Str("job_id", job.ID.String()).
		Int("succeeded", summary.Succeeded).
		Int("total", summary.Total).
		Msg("archive job finished")
	m.broadcast(snapshot)
}

func (m *ArchiveManager) appendLogLocked(line string) {
	m.status.Logs = append(m.status.Logs, line)
	if n := len(m.status.Logs); n > maxStatusLogs {
		m.status.Logs = append([]string(nil), m.status.Logs[n-maxStatusLogs:]...)
	}
}

func (m *ArchiveManager) snapshotLocked() Status {
	s := m.status
	s.Logs = append([]string{}, m.status.Logs...)
	if m.status.StartTime != nil {
		t := *m.status.StartTime
		s.StartTime = &t
	}
	return s
}

func (m *ArchiveManager) broadcast(s Status) {
	if m.broadcaster != nil {
		m.broadcaster.BroadcastEvent(EventArchiveProgress, s)
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return done * 100 / total
}
