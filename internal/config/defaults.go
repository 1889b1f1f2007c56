package config

// Start timestamp policies for watch.since.
const (
	// SinceProcess uses the moment the process created its session manager.
	SinceProcess = "process"
	// SinceSession uses the moment each watch session starts.
	SinceSession = "session"
)

const (
	DefaultIntervalMS     = 5000
	DefaultStopWaitMS     = 1000
	DefaultAPITimeoutSecs = 30
	DefaultServerPort     = 8767

	DefaultConfigFileName  = "config.json"
	DefaultHistoryFileName = "history.db"
)

// DefaultExtensions are the audio file types picked up by a scan.
var DefaultExtensions = []string{".mp3", ".wav", ".m4a"}

// DefaultTriggerIgnorePatterns are names the filesystem trigger never reacts to.
// Scans are unaffected.
var DefaultTriggerIgnorePatterns = []string{
	".git",
	".DS_Store",
	"Thumbs.db",
	"*.tmp",
	"*.part",
	"*.crdownload",
	"*.swp",
	"*~",
}
