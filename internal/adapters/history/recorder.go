package history

import (
	"context"
	"time"

	"github.com/classwatcher/classwatcher/internal/domain"
	"github.com/classwatcher/classwatcher/internal/domain/events"
	"github.com/classwatcher/classwatcher/internal/domain/ports"
	"github.com/rs/zerolog/log"
)

// RecordedEvents are the event types that produce a history row.
var RecordedEvents = []events.EventType{
	events.EventTypeUploadCompleted,
	events.EventTypeUploadFailed,
}

// RecordFromEvent converts a terminal upload event into a history record.
// It returns false for any other event.
func RecordFromEvent(e events.Event) (domain.UploadRecord, bool) {
	base, ok := e.(*events.BaseEvent)
	if !ok {
		return domain.UploadRecord{}, false
	}
	p, ok := base.Payload.(events.UploadPayload)
	if !ok {
		return domain.UploadRecord{}, false
	}

	rec := domain.UploadRecord{
		SessionID:  base.GetSessionID(),
		Path:       p.Path,
		FileName:   p.FileName,
		Size:       p.Size,
		FinishedAt: base.Timestamp(),
	}
	switch base.EventType {
	case events.EventTypeUploadCompleted:
		rec.Outcome = domain.OutcomeUploaded
	case events.EventTypeUploadFailed:
		rec.Outcome = domain.OutcomeFailed
		rec.Error = p.Error
		rec.ErrorKind = domain.ErrorKind(p.ErrorKind)
	default:
		return domain.UploadRecord{}, false
	}
	return rec, true
}

// Recorder writes upload events to a history store.
type Recorder struct {
	store   ports.HistoryStore
	timeout time.Duration
}

// NewRecorder creates a recorder for store.
func NewRecorder(store ports.HistoryStore) *Recorder {
	return &Recorder{store: store, timeout: 5 * time.Second}
}

// Handle records e if it is a terminal upload event. Store errors are
// logged and otherwise ignored.
func (r *Recorder) Handle(e events.Event) {
	rec, ok := RecordFromEvent(e)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.Record(ctx, rec); err != nil {
		log.Warn().Err(err).Str("path", rec.Path).Msg("failed to record upload history")
	}
}

// Run records events from queue until done is closed, then records
// whatever is still queued and returns.
func (r *Recorder) Run(queue <-chan events.Event, done <-chan struct{}) {
	for {
		select {
		case e := <-queue:
			r.Handle(e)
		case <-done:
			for {
				select {
				case e := <-queue:
					r.Handle(e)
				default:
					return
				}
			}
		}
	}
}
