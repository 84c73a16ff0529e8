package collector

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/tg-archive/internal/logger"
)

// fakeArchiver runs fn as the archive run
type fakeArchiver struct {
	fn func(ctx context.Context, ids []string, opts Options, events chan<- Event) *Summary
}

func (f *fakeArchiver) ArchiveChannels(ctx context.Context, ids []string, opts Options, events chan<- Event) *Summary {
	return f.fn(ctx, ids, opts, events)
}

// succeeds for every channel, emitting the same events the service does
func instantArchiver() *fakeArchiver {
	return &fakeArchiver{fn: func(ctx context.Context, ids []string, _ Options, events chan<- Event) *Summary {
		s := &Summary{Total: len(ids)}
		for i, id := range ids {
			emit(ctx, events, Event{Kind: EventChannelStarted, Channel: id, Index: i + 1, Total: len(ids), Message: "start " + id})
			emit(ctx, events, Event{Kind: EventChannelDone, Channel: id, Index: i + 1, Total: len(ids), Message: "done " + id})
			s.Succeeded++
		}
		return s
	}}
}

// blocks until canceled
func blockingArchiver(started chan<- struct{}) *fakeArchiver {
	return &fakeArchiver{fn: func(ctx context.Context, ids []string, _ Options, _ chan<- Event) *Summary {
		close(started)
		<-ctx.Done()
		return &Summary{Total: len(ids), Canceled: true}
	}}
}

// recordingBroadcaster keeps every broadcast
type recordingBroadcaster struct {
	mu     sync.Mutex
	types  []string
	states []Status
}

func (b *recordingBroadcaster) BroadcastEvent(eventType string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.types = append(b.types, eventType)
	if s, ok := payload.(Status); ok {
		b.states = append(b.states, s)
	}
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.types)
}

func idle(m *ArchiveManager) func() bool {
	return func() bool { return !m.Status().Running }
}

func TestArchiveManager_Start(t *testing.T) {
	t.Run("runs to completion", func(t *testing.T) {
		b := &recordingBroadcaster{}
		m := NewArchiveManager(instantArchiver(), b, logger.Get())

		job, err := m.Start(context.Background(), []string{"@a", "@b"}, Options{})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, job.ID)
		assert.Equal(t, []string{"@a", "@b"}, job.Channels)

		require.Eventually(t, idle(m), time.Second, 5*time.Millisecond)

		st := m.Status()
		assert.Equal(t, 100, st.Progress)
		assert.Equal(t, "Completed", st.CurrentChannel)
		assert.Equal(t, 2, st.TotalChannels)
		assert.Equal(t, 2, st.ProcessedChannels)
		assert.Empty(t, st.Error)
		require.NotNil(t, st.StartTime)
		assert.Equal(t, logStarting, st.Logs[0])
		assert.Equal(t, logCompleted, st.Logs[len(st.Logs)-1])
		assert.Contains(t, st.Logs, "done @b")
		assert.Nil(t, m.Current())

		assert.Greater(t, b.count(), 1)
		b.mu.Lock()
		for _, typ := range b.types {
			assert.Equal(t, EventArchiveProgress, typ)
		}
		b.mu.Unlock()
	})

	t.Run("returns error when already running", func(t *testing.T) {
		started := make(chan struct{})
		m := NewArchiveManager(blockingArchiver(started), nil, logger.Get())

		_, err := m.Start(context.Background(), []string{"@a"}, Options{})
		require.NoError(t, err)
		<-started

		_, err = m.Start(context.Background(), []string{"@a"}, Options{})
		assert.ErrorIs(t, err, ErrAlreadyRunning)

		require.NoError(t, m.Stop())
	})

	t.Run("requires channels", func(t *testing.T) {
		m := NewArchiveManager(instantArchiver(), nil, logger.Get())
		_, err := m.Start(context.Background(), nil, Options{})
		assert.ErrorIs(t, err, ErrNoChannels)
		assert.False(t, m.Status().Running)
	})

	t.Run("survives request context cancellation", func(t *testing.T) {
		started := make(chan struct{})
		m := NewArchiveManager(blockingArchiver(started), nil, logger.Get())

		reqCtx, cancel := context.WithCancel(context.Background())
		_, err := m.Start(reqCtx, []string{"@a"}, Options{})
		require.NoError(t, err)
		<-started
		cancel()

		time.Sleep(20 * time.Millisecond)
		assert.True(t, m.Status().Running)
		require.NoError(t, m.Stop())
	})
}

func TestArchiveManager_Stop(t *testing.T) {
	t.Run("errors when idle", func(t *testing.T) {
		m := NewArchiveManager(instantArchiver(), nil, logger.Get())
		assert.ErrorIs(t, m.Stop(), ErrNotRunning)
	})

	t.Run("cancels the run", func(t *testing.T) {
		started := make(chan struct{})
		m := NewArchiveManager(blockingArchiver(started), nil, logger.Get())

		_, err := m.Start(context.Background(), []string{"@a"}, Options{})
		require.NoError(t, err)
		<-started

		require.NoError(t, m.Stop())

		st := m.Status()
		assert.False(t, st.Running)
		assert.Equal(t, logStopped, st.Logs[len(st.Logs)-1])
		assert.Nil(t, m.Current())

		// the canceled run finishing later must not overwrite the stop
		time.Sleep(20 * time.Millisecond)
		st = m.Status()
		assert.Equal(t, logStopped, st.Logs[len(st.Logs)-1])
		assert.NotEqual(t, "Completed", st.CurrentChannel)

		// a new run can start right away
		m2started := make(chan struct{})
		m.archiver = blockingArchiver(m2started)
		_, err = m.Start(context.Background(), []string{"@b"}, Options{})
		require.NoError(t, err)
		<-m2started
		require.NoError(t, m.Stop())
	})
}

// slowExitArchiver keeps running after cancellation until release is closed
// and records how many runs were active at once
type slowExitArchiver struct {
	release chan struct{}
	calls   chan string

	mu        sync.Mutex
	active    int
	maxActive int
}

func newSlowExitArchiver() *slowExitArchiver {
	return &slowExitArchiver{release: make(chan struct{}), calls: make(chan string, 4)}
}

func (a *slowExitArchiver) ArchiveChannels(ctx context.Context, ids []string, _ Options, _ chan<- Event) *Summary {
	a.mu.Lock()
	a.active++
	a.maxActive = max(a.maxActive, a.active)
	a.mu.Unlock()

	a.calls <- ids[0]
	<-ctx.Done()
	<-a.release

	a.mu.Lock()
	a.active--
	a.mu.Unlock()
	return &Summary{Total: len(ids), Canceled: true}
}

func TestArchiveManager_StartWaitsForStoppedRun(t *testing.T) {
	arch := newSlowExitArchiver()
	m := NewArchiveManager(arch, nil, logger.Get())

	_, err := m.Start(context.Background(), []string{"@a"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "@a", <-arch.calls)

	require.NoError(t, m.Stop())

	result := make(chan error, 1)
	go func() {
		_, err := m.Start(context.Background(), []string{"@b"}, Options{})
		result <- err
	}()

	select {
	case err := <-result:
		t.Fatalf("second run started while the first was still exiting: %v", err)
	case <-time.After(30 * time.Millisecond):
	}

	close(arch.release)
	require.NoError(t, <-result)
	assert.Equal(t, "@b", <-arch.calls)
	require.NoError(t, m.Stop())

	arch.mu.Lock()
	assert.Equal(t, 1, arch.maxActive)
	arch.mu.Unlock()
}

func TestArchiveManager_StartGivesUpWithContext(t *testing.T) {
	arch := newSlowExitArchiver()
	m := NewArchiveManager(arch, nil, logger.Get())
	defer close(arch.release)

	_, err := m.Start(context.Background(), []string{"@a"}, Options{})
	require.NoError(t, err)
	<-arch.calls
	require.NoError(t, m.Stop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = m.Start(ctx, []string{"@b"}, Options{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, m.Current())
}

func TestArchiveManager_AllChannelsFailed(t *testing.T) {
	archiver := &fakeArchiver{fn: func(ctx context.Context, ids []string, _ Options, events chan<- Event) *Summary {
		emit(ctx, events, Event{Kind: EventChannelFailed, Index: 1, Total: 1, Message: "boom"})
		return &Summary{Total: 1, Results: []ChannelResult{{Identifier: ids[0], Error: "boom"}}}
	}}
	m := NewArchiveManager(archiver, nil, logger.Get())

	_, err := m.Start(context.Background(), []string{"@a"}, Options{})
	require.NoError(t, err)
	require.Eventually(t, idle(m), time.Second, 5*time.Millisecond)

	st := m.Status()
	assert.Equal(t, "all 1 channels failed", st.Error)
	assert.Equal(t, 1, st.ProcessedChannels)
}

func TestArchiveManager_LogsAreBounded(t *testing.T) {
	archiver := &fakeArchiver{fn: func(ctx context.Context, ids []string, _ Options, events chan<- Event) *Summary {
		for i := 0; i < 250; i++ {
			emit(ctx, events, Event{Kind: EventLog, Message: fmt.Sprintf("line %d", i)})
		}
		return &Summary{Total: len(ids), Succeeded: len(ids)}
	}}
	m := NewArchiveManager(archiver, nil, logger.Get())

	_, err := m.Start(context.Background(), []string{"@a"}, Options{})
	require.NoError(t, err)
	require.Eventually(t, idle(m), time.Second, 5*time.Millisecond)

	st := m.Status()
	require.Len(t, st.Logs, maxStatusLogs)
	assert.Equal(t, logCompleted, st.Logs[maxStatusLogs-1])
	assert.Equal(t, "line 249", st.Logs[maxStatusLogs-2])
}

func TestArchiveManager_StatusIsACopy(t *testing.T) {
	m := NewArchiveManager(instantArchiver(), nil, logger.Get())
	_, err := m.Start(context.Background(), []string{"@a"}, Options{})
	require.NoError(t, err)
	require.Eventually(t, idle(m), time.Second, 5*time.Millisecond)

	st := m.Status()
	st.Logs[0] = "changed"
	assert.Equal(t, logStarting, m.Status().Logs[0])
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, percent(0, 0))
	assert.Equal(t, 50, percent(1, 2))
	assert.Equal(t, 33, percent(1, 3))
	assert.Equal(t, 100, percent(3, 3))
}
