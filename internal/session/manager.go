package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/classwatcher/classwatcher/internal/domain"
	"github.com/classwatcher/classwatcher/internal/domain/events"
	"github.com/classwatcher/classwatcher/internal/domain/ports"
	"github.com/classwatcher/classwatcher/internal/sync"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultStopWait bounds how long Stop waits for a worker to finish.
const DefaultStopWait = time.Second

// TriggerFactory builds a change trigger for a session's folder.
type TriggerFactory func(folder, sessionID string) ports.FileWatcher

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Notifier   ports.Notifier
	Signer     ports.URLSigner
	Uploader   ports.Uploader
	Interval   time.Duration
	StopWait   time.Duration
	Extensions []string

	// SinceSession starts each session from the moment Start is called.
	// Otherwise every session uses the time the manager was created.
	SinceSession bool

	// NewTrigger is optional. When set, each session gets a trigger whose
	// changes end the wait between scans early.
	NewTrigger TriggerFactory
}

// Status is a snapshot of the manager state.
type Status struct {
	Watching  bool               `json:"watching"`
	State     events.WatchStatus `json:"status"`
	Label     string             `json:"label"`
	Folder    string             `json:"folder,omitempty"`
	SessionID string             `json:"session_id,omitempty"`
	StartedAt *time.Time         `json:"started_at,omitempty"`
	Since     *time.Time         `json:"since,omitempty"`
	Scans     int64              `json:"scans"`
	Processed int                `json:"processed"`
	Uploaded  int64              `json:"uploaded"`
	Failed    int64              `json:"failed"`
}

// worker is one running session and the means to stop it.
type worker struct {
	session   *Session
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
	trigger   ports.FileWatcher
}

// Manager starts and stops watch sessions. At most one session runs at a time.
type Manager struct {
	opts      ManagerOptions
	createdAt time.Time

	mu       sync.Mutex
	current  *worker
	starting bool
}

// NewManager creates a session manager. Its creation time is the default
// start timestamp for every session.
func NewManager(opts ManagerOptions) *Manager {
	if opts.StopWait <= 0 {
		opts.StopWait = DefaultStopWait
	}
	return &Manager{
		opts:      opts,
		createdAt: time.Now(),
	}
}

// CreatedAt returns when the manager was created.
func (m *Manager) CreatedAt() time.Time {
	return m.createdAt
}

// Start begins watching folder on a new goroutine. The change trigger is
// set up without holding the manager lock, so Status stays responsive while
// a large tree is being registered.
func (m *Manager) Start(folder string) (Status, error) {
	if err := checkFolder(folder); err != nil {
		return Status{}, err
	}

	m.mu.Lock()
	if m.current != nil || m.starting {
		m.mu.Unlock()
		return Status{}, domain.ErrAlreadyWatching
	}
	m.starting = true
	m.mu.Unlock()

	w, ctx, err := m.prepare(folder)

	m.mu.Lock()
	m.starting = false
	if err != nil {
		m.mu.Unlock()
		return Status{}, err
	}
	m.current = w
	m.mu.Unlock()

	m.publish(events.NewStatusChangedEvent(events.StatusWatching))
	m.publish(events.NewWatchStartedEvent(w.session.ID(), w.session.Folder(), w.session.Since()))

	go func() {
		defer close(w.done)
		w.session.Run(ctx)
	}()

	return w.status(), nil
}

// prepare builds the session and its trigger for folder.
func (m *Manager) prepare(folder string) (*worker, context.Context, error) {
	since := m.createdAt
	if m.opts.SinceSession {
		since = time.Now()
	}
	id := uuid.New().String()

	ctx, cancel := context.WithCancel(context.Background())

	var (
		trigger ports.FileWatcher
		wake    <-chan struct{}
	)
	if m.opts.NewTrigger != nil {
		trigger = m.opts.NewTrigger(folder, id)
		if err := trigger.Start(ctx); err != nil {
			log.Warn().Err(err).Str("folder", folder).Msg("change trigger unavailable, polling only")
			trigger = nil
		} else {
			wake = trigger.Changes()
		}
	}

	sess, err := New(Options{
		ID:         id,
		Folder:     folder,
		Since:      since,
		Interval:   m.opts.Interval,
		Extensions: m.opts.Extensions,
		Notifier:   m.opts.Notifier,
		Signer:     m.opts.Signer,
		Uploader:   m.opts.Uploader,
		Wake:       wake,
	})
	if err != nil {
		cancel()
		if trigger != nil {
			_ = trigger.Stop()
		}
		return nil, nil, err
	}

	return &worker{
		session:   sess,
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
		trigger:   trigger,
	}, ctx, nil
}

// Stop cancels the running session and waits up to the stop wait for it
// to finish. A worker still busy after that is left to finish on its own.
func (m *Manager) Stop() (Status, error) {
	m.mu.Lock()
	w := m.current
	m.current = nil
	m.mu.Unlock()

	if w == nil {
		return Status{}, domain.ErrNotWatching
	}

	id := w.session.ID()
	m.publish(events.NewStatusChangedEvent(events.StatusNotWatching))
	m.publish(events.NewLogEvent(id, "Stopping listening..."))

	w.cancel()

	abandoned := false
	timer := time.NewTimer(m.opts.StopWait)
	select {
	case <-w.done:
	case <-timer.C:
		abandoned = true
		log.Warn().
			Str("session_id", id).
			Dur("waited", m.opts.StopWait).
			Msg("watch worker still busy, leaving it to finish")
		m.publish(events.NewLogEvent(id, "Stopping listening..."))
	}
	timer.Stop()

	if w.trigger != nil {
		if err := w.trigger.Stop(); err != nil {
			log.Debug().Err(err).Msg("failed to stop change trigger")
		}
	}

	m.publish(events.NewWatchStoppedEvent(id, w.session.Folder(), w.session.Processed(), abandoned))

	st := w.status()
	st.Watching = false
	st.State = events.StatusNotWatching
	st.Label = events.StatusNotWatching.Label()
	return st, nil
}

// Close stops the running session, if any.
func (m *Manager) Close() {
	if _, err := m.Stop(); err != nil && !errors.Is(err, domain.ErrNotWatching) {
		log.Warn().Err(err).Msg("failed to stop watch session")
	}
}

// IsWatching reports whether a session is running.
func (m *Manager) IsWatching() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// Status returns a snapshot of the current session, or an idle status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	w := m.current
	m.mu.Unlock()

	if w == nil {
		return Status{
			State: events.StatusNotWatching,
			Label: events.StatusNotWatching.Label(),
		}
	}
	return w.status()
}

func (m *Manager) publish(e events.Event) {
	if m.opts.Notifier != nil {
		m.opts.Notifier.Publish(e)
	}
}

func (w *worker) status() Status {
	started := w.startedAt
	since := w.session.Since()
	return Status{
		Watching:  true,
		State:     events.StatusWatching,
		Label:     events.StatusWatching.Label(),
		Folder:    w.session.Folder(),
		SessionID: w.session.ID(),
		StartedAt: &started,
		Since:     &since,
		Scans:     w.session.Scans(),
		Processed: w.session.Processed(),
		Uploaded:  w.session.Uploaded(),
		Failed:    w.session.Failed(),
	}
}

// checkFolder rejects an empty path or anything that is not a directory.
func checkFolder(folder string) error {
	if folder == "" {
		return domain.ErrNoFolder
	}
	info, err := os.Stat(folder)
	if err != nil {
		return domain.NewValidationError("folder_path", err.Error())
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", domain.ErrFolderNotDirectory, folder)
	}
	return nil
}
