package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// precomputed_slots: кэш свободных слотов. Не источник истины:
// при бронировании всё перепроверяется по appointments.
type PrecomputedSlot struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	BusinessID uuid.UUID  `gorm:"type:uuid;not null;index:idx_precomputed_business_date"`
	BranchID   *uuid.UUID `gorm:"type:uuid"`
	WorkerID   *uuid.UUID `gorm:"type:uuid"`
	ScopeKey   string     `gorm:"type:varchar(120);not null"`

	Date datatypes.Date `gorm:"type:date;not null;index:idx_precomputed_business_date"`

	StartTime time.Time `gorm:"not null"`
	EndTime   time.Time `gorm:"not null"`

	WorkerName string `gorm:"type:varchar(255)"`

	CreatedAt time.Time
}

func (s *PrecomputedSlot) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.ScopeKey = s.Scope().Key()
	return nil
}

func (s *PrecomputedSlot) Scope() Scope {
	return Scope{BusinessID: s.BusinessID, BranchID: s.BranchID, WorkerID: s.WorkerID}
}

// precomputed_days: отметка, что набор слотов бизнеса на дату посчитан целиком.
// Без отметки кэш за этот день не используется.
type PrecomputedDay struct {
	BusinessID uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Date       datatypes.Date `gorm:"type:date;primaryKey"`
	ComputedAt time.Time      `gorm:"not null"`
}

// resource_locks: строки-замки для сериализации бронирований ресурса на дату.
type ResourceLock struct {
	LockKey   string         `gorm:"type:varchar(160);primaryKey"`
	Date      datatypes.Date `gorm:"type:date;not null;index"`
	CreatedAt time.Time
}
