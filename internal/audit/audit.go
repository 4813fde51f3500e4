// Package audit пишет журнал действий над записями и расписанием.
package audit

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/Leganyst/appointment-booking/internal/logger"
	"github.com/Leganyst/appointment-booking/internal/model"
	"github.com/Leganyst/appointment-booking/internal/repository"
)

type Entry struct {
	Action   model.AuditAction
	Entity   string
	EntityID uuid.UUID
	// nil: клиент по временному токену.
	ActorUserID *uuid.UUID
	Details     map[string]any
}

// Sink: best-effort: ошибка записи только логируется.
type Sink interface {
	Record(ctx context.Context, e Entry)
}

type Recorder struct {
	repo repository.AuditRepository
}

func NewRecorder(repo repository.AuditRepository) *Recorder {
	return &Recorder{repo: repo}
}

func (r *Recorder) Record(ctx context.Context, e Entry) {
	ev := &model.AuditEvent{
		Action:      e.Action,
		Entity:      e.Entity,
		EntityID:    e.EntityID,
		ActorUserID: e.ActorUserID,
	}
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			logger.WarnContext(ctx, "audit details not serialisable", "action", e.Action, "error", err)
		} else {
			ev.Details = datatypes.JSON(raw)
		}
	}
	if err := r.repo.Create(ctx, ev); err != nil {
		logger.ErrorContext(ctx, "audit record failed",
			"action", e.Action,
			"entity", e.Entity,
			"entity_id", e.EntityID,
			"error", err,
		)
	}
}

// Memory: Sink для тестов.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *Memory) Record(_ context.Context, e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Nop: журнал выключен.
type Nop struct{}

func (Nop) Record(context.Context, Entry) {}
