package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Действие аудита.
type AuditAction string

const (
	AuditActionAppointmentCreated     AuditAction = "appointment_created"
	AuditActionAppointmentConfirmed   AuditAction = "appointment_confirmed"
	AuditActionAppointmentCancelled   AuditAction = "appointment_cancelled"
	AuditActionAppointmentRescheduled AuditAction = "appointment_rescheduled"
	AuditActionScheduleChanged        AuditAction = "schedule_changed"
	AuditActionExceptionChanged       AuditAction = "exception_changed"
)

// audit_events: журнал действий над сущностями.
type AuditEvent struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	Action AuditAction `gorm:"type:varchar(64);not null;index"`

	Entity   string    `gorm:"type:varchar(64);not null"`
	EntityID uuid.UUID `gorm:"type:uuid;not null;index"`

	// nil: действие клиента по токену.
	ActorUserID *uuid.UUID `gorm:"type:uuid;index"`

	Details datatypes.JSON

	CreatedAt time.Time `gorm:"index"`
}

func (e *AuditEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
