package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/appointment-booking/internal/db"
	"github.com/Leganyst/appointment-booking/internal/model"
)

type TokenRepository interface {
	Create(ctx context.Context, tok *model.TemporaryToken) error
	GetByHash(ctx context.Context, hash string) (*model.TemporaryToken, error)
	// Consume атомарно помечает токен использованным. false: кто-то успел раньше.
	Consume(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// InvalidateForAppointment гасит все неиспользованные токены записи.
	InvalidateForAppointment(ctx context.Context, appointmentID uuid.UUID, at time.Time) error
	// DeleteStale удаляет использованные и истёкшие токены старше before.
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

type GormTokenRepository struct {
	db *gorm.DB
}

func NewGormTokenRepository(db *gorm.DB) *GormTokenRepository {
	return &GormTokenRepository{db: db}
}

func (r *GormTokenRepository) Create(ctx context.Context, tok *model.TemporaryToken) error {
	return db.Conn(ctx, r.db).Create(tok).Error
}

func (r *GormTokenRepository) GetByHash(ctx context.Context, hash string) (*model.TemporaryToken, error) {
	var tok model.TemporaryToken
	if err := db.Conn(ctx, r.db).First(&tok, "token_hash = ?", hash).Error; err != nil {
		return nil, err
	}
	return &tok, nil
}

func (r *GormTokenRepository) Consume(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := db.Conn(ctx, r.db).
		Model(&model.TemporaryToken{}).
		Where("id = ? AND used = ?", id, false).
		Updates(map[string]any{
			"used":    true,
			"used_at": at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormTokenRepository) InvalidateForAppointment(ctx context.Context, appointmentID uuid.UUID, at time.Time) error {
	return db.Conn(ctx, r.db).
		Model(&model.TemporaryToken{}).
		Where("appointment_id = ? AND used = ?", appointmentID, false).
		Updates(map[string]any{
			"used":    true,
			"used_at": at.UTC(),
		}).Error
}

func (r *GormTokenRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	res := db.Conn(ctx, r.db).
		Where("expires_at < ? OR (used = ? AND used_at < ?)", before.UTC(), true, before.UTC()).
		Delete(&model.TemporaryToken{})
	return res.RowsAffected, res.Error
}
