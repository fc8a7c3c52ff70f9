package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"authority/internal/domain"
	"authority/internal/observability/logging"

	"github.com/google/uuid"
)

// LogPublisher writes every event as one structured log line.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(ctx context.Context, e Event) {
	logging.FromContext(ctx, p.Logger).Info("audit event",
		"action", e.Action(),
		"user_id", e.Subject(),
		"event", e,
	)
}

// AuditWriter persists audit rows. store.AuditStore satisfies it.
type AuditWriter interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

// StorePublisher appends events to the audit_logs table.
type StorePublisher struct {
	Writer AuditWriter
	Logger *slog.Logger
}

func (p StorePublisher) Publish(ctx context.Context, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		logging.FromContext(ctx, p.Logger).Error("marshal audit event", "action", e.Action(), "err", err)
		return
	}
	entry := &domain.AuditLog{Action: e.Action(), Metadata: payload}
	if id, err := uuid.Parse(e.Subject()); err == nil {
		entry.UserID = &id
	}
	if m, ok := metaOf(e); ok {
		entry.IP = m.IP
		entry.UserAgent = m.UserAgent
	}
	if err := p.Writer.Create(context.WithoutCancel(ctx), entry); err != nil {
		logging.FromContext(ctx, p.Logger).Error("persist audit event", "action", e.Action(), "err", err)
	}
}

func metaOf(e Event) (Meta, bool) {
	switch v := e.(type) {
	case UserRegistered:
		return v.Meta, true
	case LoginSucceeded:
		return v.Meta, true
	case LoginFailed:
		return v.Meta, true
	case AccountLocked:
		return v.Meta, true
	}
	return Meta{}, false
}

type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Multi fans an event out to several publishers.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) {
	for _, p := range m {
		p.Publish(ctx, e)
	}
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, e)
}

// Actions lists the recorded actions in order.
func (r *Recorder) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Action()
	}
	return out
}
