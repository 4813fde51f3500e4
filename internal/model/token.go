package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// temporary_tokens: одноразовые токены клиента для переноса/отмены.
// Сам токен не хранится, только sha256 от него.
type TemporaryToken struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	TokenHash string `gorm:"type:varchar(64);not null;uniqueIndex"`

	AppointmentID uuid.UUID `gorm:"type:uuid;not null;index"`
	ClientEmail   string    `gorm:"type:varchar(255);not null"`

	ExpiresAt time.Time `gorm:"not null;index"`
	Used      bool      `gorm:"not null;default:false"`
	UsedAt    *time.Time

	CreatedAt time.Time

	Appointment *Appointment `gorm:"foreignKey:AppointmentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (t *TemporaryToken) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
