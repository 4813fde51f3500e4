package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// businesses
type Business struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name string `gorm:"type:varchar(255);not null"`
	Slug string `gorm:"type:varchar(128);not null;uniqueIndex"`

	// IANA-таймзона, в ней считаются границы дня и время правил.
	Timezone string `gorm:"type:varchar(64);not null"`

	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (b *Business) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Location возвращает таймзону бизнеса; при ошибке: UTC.
func (b *Business) Location() *time.Location {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// branches
type Branch struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	BusinessID uuid.UUID `gorm:"type:uuid;not null;index"`
	Name       string    `gorm:"type:varchar(255);not null"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Business *Business `gorm:"foreignKey:BusinessID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (b *Branch) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// workers
type Worker struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	BusinessID uuid.UUID  `gorm:"type:uuid;not null;index"`
	BranchID   *uuid.UUID `gorm:"type:uuid;index"`
	Name       string     `gorm:"type:varchar(255);not null"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Business *Business `gorm:"foreignKey:BusinessID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Branch   *Branch   `gorm:"foreignKey:BranchID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

func (w *Worker) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
