package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusPending, AppointmentStatusConfirmed, AppointmentStatusCancelled:
		return true
	}
	return false
}

// appointments: источник истины о занятости ресурса.
type Appointment struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	BusinessID uuid.UUID  `gorm:"type:uuid;not null;index"`
	BranchID   *uuid.UUID `gorm:"type:uuid"`
	WorkerID   *uuid.UUID `gorm:"type:uuid"`
	ScopeKey   string     `gorm:"type:varchar(120);not null;index:idx_appointment_scope_start"`

	ClientName  string `gorm:"type:varchar(255);not null"`
	ClientEmail string `gorm:"type:varchar(255);not null;index"`
	ClientPhone string `gorm:"type:varchar(64)"`

	// UTC.
	StartTime time.Time `gorm:"not null;index:idx_appointment_scope_start"`
	EndTime   time.Time `gorm:"not null"`

	Status AppointmentStatus `gorm:"type:varchar(32);not null;index"`

	CancelledAt    *time.Time
	ReminderSentAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	Business *Business `gorm:"foreignKey:BusinessID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (a *Appointment) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (a *Appointment) BeforeSave(*gorm.DB) error {
	a.ScopeKey = a.Scope().Key()
	a.StartTime = a.StartTime.UTC()
	a.EndTime = a.EndTime.UTC()
	return nil
}

func (a *Appointment) Scope() Scope {
	return Scope{BusinessID: a.BusinessID, BranchID: a.BranchID, WorkerID: a.WorkerID}
}
