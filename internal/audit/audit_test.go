package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/Leganyst/appointment-booking/internal/model"
	"github.com/Leganyst/appointment-booking/internal/repository"
	"github.com/Leganyst/appointment-booking/internal/testutil"
)

func TestRecorderPersistsEvent(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := repository.NewGormAuditRepository(db)
	rec := NewRecorder(repo)

	id, actor := uuid.New(), uuid.New()
	rec.Record(context.Background(), Entry{
		Action:      model.AuditActionAppointmentConfirmed,
		Entity:      "appointment",
		EntityID:    id,
		ActorUserID: &actor,
		Details:     map[string]any{"from": "pending", "to": "confirmed"},
	})

	events, err := repo.ListByEntity(context.Background(), id)
	if err != nil {
		t.Fatalf("ListByEntity: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(events))
	}
	ev := events[0]
	if ev.Action != model.AuditActionAppointmentConfirmed || ev.ActorUserID == nil || *ev.ActorUserID != actor {
		t.Fatalf("unexpected event: %+v", ev)
	}
	var details map[string]string
	if err := json.Unmarshal(ev.Details, &details); err != nil {
		t.Fatalf("details: %v", err)
	}
	if details["to"] != "confirmed" {
		t.Fatalf("unexpected details %v", details)
	}
}

type failingRepo struct{ repository.AuditRepository }

func (failingRepo) Create(context.Context, *model.AuditEvent) error { return errors.New("db down") }

func TestRecorderSwallowsErrors(t *testing.T) {
	// Не должно паниковать и не должно ничего возвращать.
	NewRecorder(failingRepo{}).Record(context.Background(), Entry{
		Action:   model.AuditActionAppointmentCreated,
		Entity:   "appointment",
		EntityID: uuid.New(),
	})
}
