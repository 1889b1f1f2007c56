// Package app orchestrates all components of classwatcher.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/classwatcher/classwatcher/internal/adapters/history"
	"github.com/classwatcher/classwatcher/internal/adapters/presign"
	"github.com/classwatcher/classwatcher/internal/adapters/upload"
	"github.com/classwatcher/classwatcher/internal/adapters/watcher"
	"github.com/classwatcher/classwatcher/internal/config"
	"github.com/classwatcher/classwatcher/internal/domain"
	"github.com/classwatcher/classwatcher/internal/domain/events"
	"github.com/classwatcher/classwatcher/internal/domain/ports"
	"github.com/classwatcher/classwatcher/internal/hub"
	httpserver "github.com/classwatcher/classwatcher/internal/server/http"
	"github.com/classwatcher/classwatcher/internal/server/http/middleware"
	"github.com/classwatcher/classwatcher/internal/server/websocket"
	"github.com/classwatcher/classwatcher/internal/session"
	"github.com/classwatcher/classwatcher/internal/sync"
	"github.com/rs/zerolog/log"
)

// shutdownTimeout bounds each server shutdown.
const shutdownTimeout = 5 * time.Second

// recorderQueueSize is how many upload results wait for the history writer.
const recorderQueueSize = 256

// App is the main application struct that orchestrates all components.
type App struct {
	cfg     *config.Config
	version string

	hub        *hub.Hub
	manager    *session.Manager
	history    *history.Store
	recorded   chan struct{}
	wsHandler  *websocket.Handler
	httpServer *httpserver.Server

	folderMu sync.RWMutex
	folder   string

	startTime time.Time

	// Lifecycle
	mu      sync.RWMutex
	running bool
}

// New creates a new App instance. The session manager is created here,
// so its creation time is the default start timestamp for every session.
func New(cfg *config.Config, version string) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	a := &App{
		cfg:       cfg,
		version:   version,
		hub:       hub.New(),
		folder:    cfg.FolderPath,
		startTime: time.Now(),
	}

	signer := presign.NewClient(
		cfg.API.BaseURL,
		time.Duration(cfg.API.TimeoutSecs)*time.Second,
		presign.WithRateLimit(cfg.API.RateLimit),
	)
	uploader := upload.NewUploader(time.Duration(cfg.API.UploadTimeoutSecs) * time.Second)

	opts := session.ManagerOptions{
		Notifier:     a.hub,
		Signer:       signer,
		Uploader:     uploader,
		Interval:     cfg.Watch.Interval(),
		StopWait:     cfg.Watch.StopWait(),
		Extensions:   cfg.Watch.Extensions,
		SinceSession: cfg.Watch.Since == config.SinceSession,
	}
	if cfg.Watch.Trigger {
		opts.NewTrigger = a.newTrigger
	}
	a.manager = session.NewManager(opts)

	return a, nil
}

// newTrigger builds the fsnotify trigger for one session.
func (a *App) newTrigger(folder, sessionID string) ports.FileWatcher {
	return watcher.NewWatcher(watcher.Config{
		Root:           folder,
		SessionID:      sessionID,
		DebounceMS:     a.cfg.Watch.DebounceMS,
		IgnorePatterns: a.cfg.Watch.IgnorePatterns,
		Extensions:     a.cfg.Watch.Extensions,
	}, a.hub)
}

// Start starts the application and blocks until ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("application is already running")
	}
	a.running = true
	a.startTime = time.Now()
	a.mu.Unlock()

	if err := a.hub.Start(); err != nil {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
		return fmt.Errorf("failed to start event hub: %w", err)
	}

	// Every notification becomes a log line.
	a.hub.Subscribe(hub.NewFuncSubscriber("event-logger", logEvent))

	if a.cfg.History.Enabled {
		store, err := history.Open(a.cfg.History.Path)
		if err != nil {
			log.Warn().Err(err).Str("path", a.cfg.History.Path).Msg("upload history disabled")
		} else {
			a.history = store
			rec := history.NewRecorder(store)
			queue := hub.NewQueueSubscriber("history-recorder", recorderQueueSize)
			a.recorded = make(chan struct{})
			go func() {
				defer close(a.recorded)
				rec.Run(queue.Events(), queue.Done())
			}()
			a.hub.Subscribe(hub.NewFilteredSubscriber(queue, history.RecordedEvents...))
			log.Info().Str("path", store.Path()).Msg("upload history enabled")
		}
	}

	if a.cfg.API.BaseURL == "" {
		log.Warn().Msg("api.base_url is not set (API_BASE_URL); uploads will fail until it is configured")
	}

	if a.cfg.Server.Enabled {
		a.wsHandler = websocket.NewHandler(a.hub, a, time.Duration(a.cfg.Server.HeartbeatSecs)*time.Second)
		a.wsHandler.Start()

		opts := httpserver.Options{
			Host:        a.cfg.Server.Host,
			Port:        a.cfg.Server.Port,
			Version:     a.version,
			Watch:       a.manager,
			Folders:     a,
			WebSocket:   a.wsHandler,
			RateLimiter: middleware.NewRateLimiter(),
		}
		// Leave the interface nil rather than holding a nil *Store.
		if a.history != nil {
			opts.History = a.history
		}
		srv := httpserver.New(opts)
		if err := srv.Start(); err != nil {
			_ = a.shutdown()
			return fmt.Errorf("failed to start control API: %w", err)
		}
		a.mu.Lock()
		a.httpServer = srv
		a.mu.Unlock()
	}

	a.autostart()

	<-ctx.Done()

	return a.shutdown()
}

// autostart begins watching the configured folder when enabled.
func (a *App) autostart() {
	folder := a.Folder()
	if folder == "" {
		log.Info().Msg("no folder selected; set folder_path in the config file or call PUT /api/folder")
		return
	}

	a.hub.Publish(events.NewLogEvent("", "Loaded folder: "+folder))

	if !a.cfg.Watch.Autostart {
		return
	}
	if _, err := a.manager.Start(folder); err != nil {
		log.Warn().Err(err).Str("folder", folder).Msg("failed to start watching")
	}
}

// shutdown performs graceful shutdown of all components.
func (a *App) shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}
	a.running = false

	log.Info().Msg("shutting down...")

	a.manager.Close()

	// Give websocket clients time to receive the final events
	time.Sleep(100 * time.Millisecond)

	if a.wsHandler != nil {
		a.wsHandler.Stop()
	}

	if a.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error stopping control API")
		}
		cancel()
	}

	if err := a.hub.Stop(); err != nil {
		log.Error().Err(err).Msg("error stopping event hub")
	}

	// The hub closed the recorder's queue; let it write what is left.
	if a.recorded != nil {
		<-a.recorded
	}

	if a.history != nil {
		if err := a.history.Close(); err != nil {
			log.Error().Err(err).Msg("error closing upload history")
		}
	}

	return nil
}

// Folder returns the selected folder.
func (a *App) Folder() string {
	a.folderMu.RLock()
	defer a.folderMu.RUnlock()
	return a.folder
}

// SetFolder validates folder, writes it to the config file and makes it
// the selected folder. A running session keeps its own folder.
func (a *App) SetFolder(folder string) (string, error) {
	folder = strings.TrimSpace(folder)
	if folder == "" {
		return "", domain.ErrNoFolder
	}
	abs, err := config.ExpandPath(folder)
	if err != nil {
		return "", domain.NewValidationError("folder_path", err.Error())
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", domain.NewValidationError("folder_path", err.Error())
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", domain.ErrFolderNotDirectory, abs)
	}

	a.folderMu.Lock()
	file, err := config.SaveFolderPath(a.cfg.File, abs)
	if err != nil {
		a.folderMu.Unlock()
		return "", err
	}
	a.cfg.File = file
	a.folder = abs
	a.folderMu.Unlock()

	log.Info().Str("folder", abs).Str("config", file).Msg("selected folder saved")
	a.hub.Publish(events.NewLogEvent("", "Selected folder: "+abs))
	return abs, nil
}

// WatchStatus returns the indicator state for heartbeats.
func (a *App) WatchStatus() events.WatchStatus {
	if a.manager.IsWatching() {
		return events.StatusWatching
	}
	return events.StatusNotWatching
}

// UptimeSeconds returns how long the app has been running.
// startTime is written before any reader starts.
func (a *App) UptimeSeconds() int64 {
	return int64(time.Since(a.startTime).Seconds())
}

// Manager returns the session manager.
func (a *App) Manager() *session.Manager {
	return a.manager
}

// Hub returns the event hub.
func (a *App) Hub() *hub.Hub {
	return a.hub
}

// Config returns the configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Addr returns the control API address, or "" when it is not serving.
func (a *App) Addr() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.httpServer == nil {
		return ""
	}
	return a.httpServer.Addr()
}

// logEvent renders an event as the user-facing log line.
func logEvent(e events.Event) {
	msg := events.Describe(e)
	if msg == "" {
		log.Trace().
			Str("event_type", string(e.Type())).
			Time("timestamp", e.Timestamp()).
			Msg("event broadcast")
		return
	}

	entry := log.Info()
	if e.Type() == events.EventTypeUploadFailed {
		entry = log.Warn()
	}
	if id := e.GetSessionID(); id != "" {
		entry = entry.Str("session_id", id)
	}
	entry.Str("event", string(e.Type())).Msg(msg)
}
