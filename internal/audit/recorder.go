package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"alwr.org/internal/ids"
)

// Recorder is the write path. A failed audit write is surfaced to
// operators through the operational log but never propagated to the
// caller: the security decision it describes has already been made.
type Recorder struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the time source. Test helper.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder constructs a Recorder around the store.
func NewRecorder(store Store, log *zap.Logger, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, log: log, now: time.Now}
	if log == nil {
		r.log = zap.NewNop()
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends one entry. The entry's timestamp and id are filled in if
// absent; an empty actor becomes the unknown placeholder.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = r.now().UTC()
	}
	if entry.ActorID == "" {
		entry.ActorID = ActorUnknown
	}
	if err := r.store.Append(ctx, &entry); err != nil {
		r.log.Error("audit append failed",
			zap.String("action", entry.Action),
			zap.String("actor_id", entry.ActorID),
			zap.Error(err),
		)
	}
}

// List returns entries matching the filter for operator review.
func (r *Recorder) List(ctx context.Context, filter Filter) ([]Entry, error) {
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 100
	}
	return r.store.List(ctx, filter)
}
