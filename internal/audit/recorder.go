package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"keyward.io/internal/auth"
	"keyward.io/internal/stream"
)

// Entry carries the optional fields of an audit event. Zero values mean
// "not applicable": a failed login for an unknown email has no UserID.
type Entry struct {
	UserID       *int64
	CredentialID *int64
	IP           string
	UserAgent    string
	Detail       string
}

// Recorder appends audit events through the caller's transaction and
// mirrors them to the structured log.
type Recorder struct {
	log  *zap.Logger
	now  func() time.Time
	feed *stream.Stream
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the event timestamp source.
func WithClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// WithFeed mirrors recorded events onto the live stream. The feed sees
// events before the surrounding transaction commits, so subscribers may
// observe an event whose operation later rolled back; the table is the
// source of truth.
func WithFeed(feed *stream.Stream) RecorderOption {
	return func(r *Recorder) {
		r.feed = feed
	}
}

// NewRecorder builds a Recorder. A nil logger disables the log mirror.
func NewRecorder(log *zap.Logger, opts ...RecorderOption) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Recorder{log: log, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends one event via tx. The event shares the caller's
// transaction: if the surrounding work rolls back, so does the event.
func (r *Recorder) Record(ctx context.Context, tx auth.Tx, eventType string, entry Entry) error {
	ev := &auth.AuditEvent{
		UserID:       entry.UserID,
		CredentialID: entry.CredentialID,
		EventType:    eventType,
		OccurredAt:   r.now().UTC(),
		IP:           entry.IP,
		UserAgent:    entry.UserAgent,
		Detail:       entry.Detail,
	}
	if err := tx.Audit().Append(ctx, ev); err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("event", eventType),
		zap.Time("occurred_at", ev.OccurredAt),
	}
	if entry.UserID != nil {
		fields = append(fields, zap.Int64("user_id", *entry.UserID))
	}
	if entry.CredentialID != nil {
		fields = append(fields, zap.Int64("credential_id", *entry.CredentialID))
	}
	if entry.IP != "" {
		fields = append(fields, zap.String("ip", entry.IP))
	}
	if entry.Detail != "" {
		fields = append(fields, zap.String("detail", entry.Detail))
	}
	r.log.Info("audit", fields...)
	if r.feed != nil {
		r.feed.Publish(*ev)
	}
	return nil
}
