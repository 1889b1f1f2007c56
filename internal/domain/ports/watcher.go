package ports

import "context"

// FileWatcher defines the contract for filesystem change notification.
type FileWatcher interface {
	// Start begins watching the root directory.
	Start(ctx context.Context) error

	// Stop terminates file watching.
	Stop() error

	// IsRunning returns true if the watcher is active.
	IsRunning() bool

	// Changes signals that something worth scanning may have appeared.
	Changes() <-chan struct{}
}
