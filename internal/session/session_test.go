package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/classwatcher/classwatcher/internal/domain"
	"github.com/classwatcher/classwatcher/internal/domain/events"
	"github.com/classwatcher/classwatcher/internal/hub"
	"github.com/classwatcher/classwatcher/internal/testutil"
)

type fixture struct {
	dir      string
	hub      *testutil.MockEventHub
	signer   *testutil.FakeSigner
	uploader *testutil.FakeUploader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		dir:      t.TempDir(),
		hub:      testutil.NewMockEventHub(),
		signer:   testutil.NewFakeSigner(),
		uploader: testutil.NewFakeUploader(),
	}
}

func (f *fixture) session(t *testing.T, since time.Time) *Session {
	t.Helper()
	s, err := New(Options{
		Folder:   f.dir,
		Since:    since,
		Interval: 20 * time.Millisecond,
		Notifier: f.hub,
		Signer:   f.signer,
		Uploader: f.uploader,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func writeFile(t *testing.T, path string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func writeOldFile(t *testing.T, path string, age time.Duration) string {
	t.Helper()
	writeFile(t, path)
	old := time.Now().Add(-age)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	return path
}

func TestNew_Validation(t *testing.T) {
	f := newFixture(t)

	if _, err := New(Options{Notifier: f.hub, Signer: f.signer, Uploader: f.uploader}); !errors.Is(err, domain.ErrNoFolder) {
		t.Errorf("New() without folder error = %v, want ErrNoFolder", err)
	}
	if _, err := New(Options{Folder: f.dir}); err == nil {
		t.Error("New() without collaborators should fail")
	}

	s := f.session(t, time.Time{})
	if s.ID() == "" {
		t.Error("ID() should be generated")
	}
	if !filepath.IsAbs(s.Folder()) {
		t.Errorf("Folder() = %q, want absolute", s.Folder())
	}
	if s.interval != 20*time.Millisecond {
		t.Errorf("interval = %v", s.interval)
	}
}

func TestNew_Defaults(t *testing.T) {
	f := newFixture(t)
	s, err := New(Options{Folder: f.dir, Notifier: f.hub, Signer: f.signer, Uploader: f.uploader})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", s.interval, DefaultInterval)
	}
	for _, ext := range []string{".mp3", ".wav", ".m4a"} {
		if !s.exts[ext] {
			t.Errorf("default extensions missing %s", ext)
		}
	}
}

func TestScan_UploadsNewFilesOnceAcrossScans(t *testing.T) {
	f := newFixture(t)
	since := time.Now().Add(-time.Minute)
	a := writeFile(t, filepath.Join(f.dir, "a.mp3"))
	b := writeFile(t, filepath.Join(f.dir, "week1", "b.wav"))
	c := writeFile(t, filepath.Join(f.dir, "week1", "deep", "C.M4A"))

	s := f.session(t, since)
	for i := 0; i < 3; i++ {
		s.Scan(context.Background())
	}

	if f.uploader.Count() != 3 {
		t.Fatalf("upload count = %d, want 3", f.uploader.Count())
	}
	seen := map[string]int{}
	for _, u := range f.uploader.Uploads() {
		seen[u.Path]++
	}
	for _, p := range []string{a, b, c} {
		if seen[p] != 1 {
			t.Errorf("%s uploaded %d times, want 1", p, seen[p])
		}
	}
	if s.Processed() != 3 {
		t.Errorf("Processed() = %d, want 3", s.Processed())
	}
	if s.Scans() != 3 {
		t.Errorf("Scans() = %d, want 3", s.Scans())
	}
	if s.Uploaded() != 3 {
		t.Errorf("Uploaded() = %d, want 3", s.Uploaded())
	}
}

func TestScan_FileAppearingLaterIsPickedUp(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, time.Now().Add(-time.Minute))

	writeFile(t, filepath.Join(f.dir, "first.mp3"))
	s.Scan(context.Background())
	writeFile(t, filepath.Join(f.dir, "second.mp3"))
	s.Scan(context.Background())
	s.Scan(context.Background())

	if f.uploader.Count() != 2 {
		t.Errorf("upload count = %d, want 2", f.uploader.Count())
	}
}

func TestScan_SkipsOldAndNonAudioFiles(t *testing.T) {
	f := newFixture(t)
	writeOldFile(t, filepath.Join(f.dir, "old.mp3"), time.Hour)
	writeFile(t, filepath.Join(f.dir, "notes.txt"))
	writeFile(t, filepath.Join(f.dir, "song.mp3.part"))
	writeFile(t, filepath.Join(f.dir, "noext"))
	if err := os.Mkdir(filepath.Join(f.dir, "folder.mp3"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	s := f.session(t, time.Now().Add(-time.Minute))
	s.Scan(context.Background())

	if f.uploader.Count() != 0 {
		t.Errorf("upload count = %d, want 0: %+v", f.uploader.Count(), f.uploader.Uploads())
	}
	if len(f.signer.Calls()) != 0 {
		t.Errorf("presign calls = %v, want none", f.signer.Calls())
	}
	if n := len(f.hub.PublishedEvents()); n != 0 {
		t.Errorf("published %d events, want 0", n)
	}
}

func TestScan_EventSequenceAndPayloads(t *testing.T) {
	f := newFixture(t)
	path := writeFile(t, filepath.Join(f.dir, "lecture.mp3"))

	s := f.session(t, time.Now().Add(-time.Minute))
	s.Scan(context.Background())

	got := f.hub.PublishedTypes()
	want := []events.EventType{
		events.EventTypeFileDetected,
		events.EventTypeUploadStarted,
		events.EventTypeUploadCompleted,
	}
	if len(got) != len(want) {
		t.Fatalf("event types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	evts := f.hub.PublishedEvents()
	if msg := events.Describe(evts[0]); msg != "New audio detected: "+path {
		t.Errorf("detected message = %q", msg)
	}
	if msg := events.Describe(evts[1]); msg != "Uploading audio to: https://upload.test/lecture.mp3" {
		t.Errorf("uploading message = %q", msg)
	}
	if msg := events.Describe(evts[2]); msg != "Audio uploaded: "+path {
		t.Errorf("uploaded message = %q", msg)
	}
	if evts[0].GetSessionID() != s.ID() {
		t.Errorf("session id = %q, want %q", evts[0].GetSessionID(), s.ID())
	}
}

func TestScan_PresignsWithBaseName(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.dir, "sub", "talk.wav"))

	f.session(t, time.Now().Add(-time.Minute)).Scan(context.Background())

	calls := f.signer.Calls()
	if len(calls) != 1 || calls[0] != "talk.wav" {
		t.Errorf("presign calls = %v, want [talk.wav]", calls)
	}
}

func TestScan_PresignFailureSkipsUpload(t *testing.T) {
	f := newFixture(t)
	f.signer.SetError(domain.NewTransferError(domain.OpPresign, domain.KindTransport, errors.New("connection refused")))
	writeFile(t, filepath.Join(f.dir, "a.mp3"))

	s := f.session(t, time.Now().Add(-time.Minute))
	s.Scan(context.Background())
	s.Scan(context.Background())

	if f.uploader.Count() != 0 {
		t.Errorf("upload count = %d, want 0", f.uploader.Count())
	}
	if len(f.signer.Calls()) != 1 {
		t.Errorf("presign calls = %d, want 1", len(f.signer.Calls()))
	}
	if n := f.hub.CountType(events.EventTypeUploadFailed); n != 1 {
		t.Fatalf("upload_failed count = %d, want 1", n)
	}
	if n := f.hub.CountType(events.EventTypeUploadStarted); n != 0 {
		t.Errorf("upload_started count = %d, want 0", n)
	}

	failed := f.hub.PublishedEvents()[1].(*events.BaseEvent)
	payload := failed.Payload.(events.UploadPayload)
	if payload.Error != "failed to get presigned URL: connection refused" {
		t.Errorf("error message = %q", payload.Error)
	}
	if payload.ErrorKind != string(domain.KindTransport) {
		t.Errorf("error kind = %q", payload.ErrorKind)
	}
	if s.Failed() != 1 {
		t.Errorf("Failed() = %d, want 1", s.Failed())
	}
}

func TestScan_UploadFailureIsNotRetried(t *testing.T) {
	f := newFixture(t)
	f.uploader.SetError(domain.NewTransferError(domain.OpUpload, domain.KindLocalIO, os.ErrPermission))
	writeFile(t, filepath.Join(f.dir, "a.mp3"))
	writeFile(t, filepath.Join(f.dir, "b.mp3"))

	s := f.session(t, time.Now().Add(-time.Minute))
	for i := 0; i < 3; i++ {
		s.Scan(context.Background())
	}

	if f.uploader.Count() != 2 {
		t.Errorf("upload attempts = %d, want 2 (one per file)", f.uploader.Count())
	}
	if n := f.hub.CountType(events.EventTypeUploadFailed); n != 2 {
		t.Errorf("upload_failed count = %d, want 2", n)
	}
	if n := f.hub.CountType(events.EventTypeUploadCompleted); n != 0 {
		t.Errorf("upload_completed count = %d, want 0", n)
	}
}

func TestScan_FailureDoesNotStopOtherFiles(t *testing.T) {
	f := newFixture(t)
	f.uploader.SetFunc(func(ctx context.Context, path, url string) error {
		if filepath.Base(path) == "bad.mp3" {
			return errors.New("boom")
		}
		return nil
	})
	writeFile(t, filepath.Join(f.dir, "bad.mp3"))
	writeFile(t, filepath.Join(f.dir, "good.mp3"))

	f.session(t, time.Now().Add(-time.Minute)).Scan(context.Background())

	if n := f.hub.CountType(events.EventTypeUploadCompleted); n != 1 {
		t.Errorf("upload_completed count = %d, want 1", n)
	}
	if n := f.hub.CountType(events.EventTypeUploadFailed); n != 1 {
		t.Errorf("upload_failed count = %d, want 1", n)
	}
}

func TestScan_MissingFolderIsNotFatal(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, time.Time{})
	if err := os.RemoveAll(f.dir); err != nil {
		t.Fatalf("remove: %v", err)
	}

	s.Scan(context.Background())

	if s.Scans() != 1 {
		t.Errorf("Scans() = %d, want 1", s.Scans())
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	testutil.WaitFor(t, time.Second, func() bool { return s.Scans() >= 2 }, "at least two scans")
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	scans := s.Scans()
	time.Sleep(60 * time.Millisecond)
	if s.Scans() != scans {
		t.Errorf("scans continued after Run returned: %d -> %d", scans, s.Scans())
	}
}

func TestRun_CancelledBeforeStartDoesNotScan(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Run(ctx)

	if s.Scans() != 0 {
		t.Errorf("Scans() = %d, want 0", s.Scans())
	}
}

func TestRun_InFlightUploadSurvivesCancel(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.dir, "a.mp3"))

	entered := make(chan struct{})
	release := make(chan struct{})
	var (
		mu     sync.Mutex
		ctxErr error
	)
	f.uploader.SetFunc(func(ctx context.Context, path, url string) error {
		close(entered)
		<-release
		mu.Lock()
		ctxErr = ctx.Err()
		mu.Unlock()
		return nil
	})

	s := f.session(t, time.Now().Add(-time.Minute))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	<-entered
	cancel()

	select {
	case <-done:
		t.Fatal("Run() returned while an upload was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after the upload finished")
	}

	mu.Lock()
	defer mu.Unlock()
	if ctxErr != nil {
		t.Errorf("upload context error = %v, want nil", ctxErr)
	}
	if n := f.hub.CountType(events.EventTypeUploadCompleted); n != 1 {
		t.Errorf("upload_completed count = %d, want 1", n)
	}
}

func TestRun_WakeShortensWait(t *testing.T) {
	f := newFixture(t)
	wake := make(chan struct{}, 1)
	s, err := New(Options{
		Folder:   f.dir,
		Since:    time.Now().Add(-time.Minute),
		Interval: time.Hour,
		Notifier: f.hub,
		Signer:   f.signer,
		Uploader: f.uploader,
		Wake:     wake,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	testutil.WaitFor(t, time.Second, func() bool { return s.Scans() == 1 }, "first scan")

	writeFile(t, filepath.Join(f.dir, "a.mp3"))
	wake <- struct{}{}

	testutil.WaitFor(t, time.Second, func() bool { return f.uploader.Count() == 1 }, "upload after wake")
}

func TestScan_FailureBurstReachesSubscribers(t *testing.T) {
	const files = 2 * hub.DefaultBufferSize
	f := newFixture(t)
	f.signer.SetError(domain.NewTransferError(domain.OpPresign, domain.KindTransport, errors.New("no backend")))
	for i := 0; i < files; i++ {
		writeFile(t, filepath.Join(f.dir, fmt.Sprintf("take-%03d.mp3", i)))
	}

	h := hub.New()
	if err := h.Start(); err != nil {
		t.Fatalf("hub Start() error = %v", err)
	}
	t.Cleanup(func() { _ = h.Stop() })

	var failed atomic.Int64
	h.Subscribe(hub.NewFuncSubscriber("slow-sink", func(e events.Event) {
		time.Sleep(50 * time.Microsecond)
		if e.Type() == events.EventTypeUploadFailed {
			failed.Add(1)
		}
	}))
	testutil.WaitFor(t, time.Second, func() bool { return h.SubscriberCount() == 1 }, "sink registered")

	s, err := New(Options{
		Folder:   f.dir,
		Since:    time.Now().Add(-time.Minute),
		Notifier: h,
		Signer:   f.signer,
		Uploader: f.uploader,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.Scan(context.Background())

	if s.Failed() != files {
		t.Fatalf("Failed() = %d, want %d", s.Failed(), files)
	}
	testutil.WaitFor(t, 5*time.Second, func() bool { return failed.Load() == files }, "every failure delivered")
	if h.Dropped() != 0 {
		t.Errorf("hub dropped %d events", h.Dropped())
	}
}

func TestScan_CancelledContextStillCompletesWalk(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"a.mp3", "b.wav", "sub/c.m4a"} {
		writeFile(t, filepath.Join(f.dir, name))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := f.session(t, time.Now().Add(-time.Minute))
	s.Scan(ctx)

	if f.uploader.Count() != 3 {
		t.Errorf("upload count = %d, want 3", f.uploader.Count())
	}
	if s.Scans() != 1 {
		t.Errorf("Scans() = %d, want 1", s.Scans())
	}
}

func TestScan_SymlinkJudgedByTarget(t *testing.T) {
	f := newFixture(t)
	outside := t.TempDir()

	oldTarget := writeOldFile(t, filepath.Join(outside, "old.mp3"), time.Hour)
	newTarget := writeFile(t, filepath.Join(outside, "new.mp3"))
	if err := os.Symlink(oldTarget, filepath.Join(f.dir, "old-link.mp3")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := os.Symlink(newTarget, filepath.Join(f.dir, "new-link.mp3")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(f.dir, "dir-link.mp3")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	s := f.session(t, time.Now().Add(-time.Minute))
	s.Scan(context.Background())

	uploads := f.uploader.Uploads()
	if len(uploads) != 1 {
		t.Fatalf("uploads = %+v, want only new-link.mp3", uploads)
	}
	if filepath.Base(uploads[0].Path) != "new-link.mp3" {
		t.Errorf("uploaded %q, want new-link.mp3", uploads[0].Path)
	}

	detected := f.hub.PublishedEvents()[0].(*events.BaseEvent).Payload.(events.UploadPayload)
	if detected.Size != int64(len("audio")) {
		t.Errorf("detected size = %d, want the target's size", detected.Size)
	}
}
