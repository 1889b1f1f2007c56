// Package session runs the folder watch loop and manages its lifecycle.
package session

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/classwatcher/classwatcher/internal/domain"
	"github.com/classwatcher/classwatcher/internal/domain/events"
	"github.com/classwatcher/classwatcher/internal/domain/ports"
	"github.com/classwatcher/classwatcher/internal/sync"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is the wait between two scans of the folder.
const DefaultInterval = 5 * time.Second

// DefaultExtensions are the audio file types a scan picks up.
var DefaultExtensions = []string{".mp3", ".wav", ".m4a"}

// Options configures a Session.
type Options struct {
	ID         string // generated when empty
	Folder     string
	Since      time.Time
	Interval   time.Duration
	Extensions []string

	Notifier ports.Notifier
	Signer   ports.URLSigner
	Uploader ports.Uploader

	// Wake ends the current wait early when it fires. May be nil.
	Wake <-chan struct{}
}

// Session is one watch run over a folder. It remembers every path it has
// handed to the uploader, so each file is attempted at most once.
type Session struct {
	id       string
	folder   string
	since    time.Time
	interval time.Duration
	exts     map[string]bool

	notifier ports.Notifier
	signer   ports.URLSigner
	uploader ports.Uploader
	wake     <-chan struct{}

	mu        sync.Mutex
	processed map[string]struct{}

	scans    atomic.Int64
	uploaded atomic.Int64
	failed   atomic.Int64
}

// New validates options and creates a session.
func New(opts Options) (*Session, error) {
	if opts.Folder == "" {
		return nil, domain.ErrNoFolder
	}
	if opts.Notifier == nil || opts.Signer == nil || opts.Uploader == nil {
		return nil, errors.New("session: notifier, signer and uploader are required")
	}

	folder, err := filepath.Abs(opts.Folder)
	if err != nil {
		return nil, err
	}

	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	extSet := make(map[string]bool, len(exts))
	for _, e := range exts {
		extSet[strings.ToLower(e)] = true
	}

	return &Session{
		id:        id,
		folder:    folder,
		since:     opts.Since,
		interval:  interval,
		exts:      extSet,
		notifier:  opts.Notifier,
		signer:    opts.Signer,
		uploader:  opts.Uploader,
		wake:      opts.Wake,
		processed: make(map[string]struct{}),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Folder returns the absolute folder being watched.
func (s *Session) Folder() string { return s.folder }

// Since returns the start timestamp; older files are ignored.
func (s *Session) Since() time.Time { return s.since }

// Scans returns how many scans have completed.
func (s *Session) Scans() int64 { return s.scans.Load() }

// Uploaded returns how many files were uploaded.
func (s *Session) Uploaded() int64 { return s.uploaded.Load() }

// Failed returns how many files failed.
func (s *Session) Failed() int64 { return s.failed.Load() }

// Processed returns how many paths have been handed to the uploader.
func (s *Session) Processed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processed)
}

// Run scans the folder until ctx is cancelled. A scan that has begun
// finishes, including its uploads, before Run returns.
func (s *Session) Run(ctx context.Context) {
	log.Info().
		Str("session_id", s.id).
		Str("folder", s.folder).
		Time("since", s.since).
		Dur("interval", s.interval).
		Msg("watch loop started")

	for {
		if ctx.Err() != nil {
			break
		}

		s.Scan(ctx)

		if !s.wait(ctx) {
			break
		}
	}

	log.Info().
		Str("session_id", s.id).
		Int64("scans", s.scans.Load()).
		Int("processed", s.Processed()).
		Msg("watch loop stopped")
}

// Scan walks the folder once and handles every qualifying file. The walk
// always completes; per-file work ignores ctx cancellation so an upload
// is never cut off. Run checks ctx between scans.
func (s *Session) Scan(ctx context.Context) {
	work := context.WithoutCancel(ctx)

	err := filepath.WalkDir(s.folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Debug().Err(err).Str("path", path).Msg("skipping unreadable entry")
			return nil
		}
		if d.IsDir() || !s.matches(path) {
			return nil
		}

		// Stat follows symlinks, so a link is judged by its target.
		info, err := os.Stat(path)
		if err != nil {
			log.Debug().Err(err).Str("path", path).Msg("skipping entry without info")
			return nil
		}
		if info.IsDir() || info.ModTime().Before(s.since) {
			return nil
		}
		if !s.claim(path) {
			return nil
		}

		s.handle(work, path, info.Size())
		return nil
	})
	if err != nil {
		log.Debug().Err(err).Str("folder", s.folder).Msg("scan ended early")
	}

	s.scans.Add(1)
}

// matches reports whether the file extension is watched.
func (s *Session) matches(path string) bool {
	return s.exts[strings.ToLower(filepath.Ext(path))]
}

// claim marks path as processed. It returns false if it already was.
func (s *Session) claim(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[path]; ok {
		return false
	}
	s.processed[path] = struct{}{}
	return true
}

// handle requests a URL for one file and uploads it. Failures become a
// single upload_failed event.
func (s *Session) handle(ctx context.Context, path string, size int64) {
	name := filepath.Base(path)
	s.notifier.Publish(events.NewFileDetectedEvent(s.id, path, name, size))

	target, err := s.signer.PresignedURL(ctx, name)
	if err != nil {
		s.fail(path, name, size, err)
		return
	}

	s.notifier.Publish(events.NewUploadStartedEvent(s.id, path, name, target.URL))

	if err := s.uploader.Upload(ctx, path, target.URL); err != nil {
		s.fail(path, name, size, err)
		return
	}

	s.uploaded.Add(1)
	s.notifier.Publish(events.NewUploadCompletedEvent(s.id, path, name, size))

	log.Info().
		Str("session_id", s.id).
		Str("path", path).
		Int64("size", size).
		Msg("audio uploaded")
}

func (s *Session) fail(path, name string, size int64, err error) {
	s.failed.Add(1)
	kind := domain.KindOf(err)
	s.notifier.Publish(events.NewUploadFailedEvent(s.id, path, name, size, err.Error(), string(kind)))

	log.Warn().
		Err(err).
		Str("session_id", s.id).
		Str("path", path).
		Str("kind", string(kind)).
		Msg("audio upload failed")
}

// wait blocks for the interval, a wake signal, or cancellation.
// It returns false when ctx is done.
func (s *Session) wait(ctx context.Context) bool {
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-s.wake:
		return true
	}
}
