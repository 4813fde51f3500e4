package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leganyst/appointment-booking/internal/db"
	"github.com/Leganyst/appointment-booking/internal/model"
)

// SlotCacheRepository: хранилище предрассчитанных слотов.
type SlotCacheRepository interface {
	// ReplaceDay заменяет слоты бизнеса на дату и ставит отметку дня.
	// Вызывать внутри транзакции.
	ReplaceDay(ctx context.Context, businessID uuid.UUID, date datatypes.Date, slots []model.PrecomputedSlot, computedAt time.Time) error
	GetDay(ctx context.Context, businessID uuid.UUID, date datatypes.Date) (*model.PrecomputedDay, error)
	ListSlots(ctx context.Context, filter model.Scope, date datatypes.Date) ([]model.PrecomputedSlot, error)
	DeleteOverlapping(ctx context.Context, resource model.Scope, start, end time.Time) error
	// InvalidateDay сбрасывает кэш бизнеса за один день.
	InvalidateDay(ctx context.Context, businessID uuid.UUID, date datatypes.Date) error
	// InvalidateFrom сбрасывает кэш бизнеса начиная с даты.
	InvalidateFrom(ctx context.Context, businessID uuid.UUID, from datatypes.Date) error
	// PurgeBefore удаляет прошедшие дни у всех бизнесов.
	PurgeBefore(ctx context.Context, before datatypes.Date) (int64, error)
}

type GormSlotCacheRepository struct {
	db *gorm.DB
}

func NewGormSlotCacheRepository(db *gorm.DB) *GormSlotCacheRepository {
	return &GormSlotCacheRepository{db: db}
}

func (r *GormSlotCacheRepository) ReplaceDay(
	ctx context.Context,
	businessID uuid.UUID,
	date datatypes.Date,
	slots []model.PrecomputedSlot,
	computedAt time.Time,
) error {
	conn := db.Conn(ctx, r.db)

	if err := conn.
		Where("business_id = ? AND date = ?", businessID, date).
		Delete(&model.PrecomputedSlot{}).Error; err != nil {
		return err
	}

	if len(slots) > 0 {
		if err := conn.CreateInBatches(slots, 200).Error; err != nil {
			return err
		}
	}

	day := model.PrecomputedDay{BusinessID: businessID, Date: date, ComputedAt: computedAt.UTC()}
	return conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "business_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"computed_at"}),
	}).Create(&day).Error
}

func (r *GormSlotCacheRepository) GetDay(ctx context.Context, businessID uuid.UUID, date datatypes.Date) (*model.PrecomputedDay, error) {
	var day model.PrecomputedDay
	if err := db.Conn(ctx, r.db).
		First(&day, "business_id = ? AND date = ?", businessID, date).Error; err != nil {
		return nil, err
	}
	return &day, nil
}

func (r *GormSlotCacheRepository) ListSlots(ctx context.Context, filter model.Scope, date datatypes.Date) ([]model.PrecomputedSlot, error) {
	var out []model.PrecomputedSlot
	q := whereScopeFilter(db.Conn(ctx, r.db).Model(&model.PrecomputedSlot{}), filter).
		Where("date = ?", date)
	if err := q.Order("start_time ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormSlotCacheRepository) DeleteOverlapping(ctx context.Context, resource model.Scope, start, end time.Time) error {
	return whereResource(db.Conn(ctx, r.db), resource).
		Where("start_time < ? AND end_time > ?", end.UTC(), start.UTC()).
		Delete(&model.PrecomputedSlot{}).Error
}

func (r *GormSlotCacheRepository) InvalidateDay(ctx context.Context, businessID uuid.UUID, date datatypes.Date) error {
	conn := db.Conn(ctx, r.db)
	if err := conn.
		Where("business_id = ? AND date = ?", businessID, date).
		Delete(&model.PrecomputedDay{}).Error; err != nil {
		return err
	}
	return conn.
		Where("business_id = ? AND date = ?", businessID, date).
		Delete(&model.PrecomputedSlot{}).Error
}

func (r *GormSlotCacheRepository) InvalidateFrom(ctx context.Context, businessID uuid.UUID, from datatypes.Date) error {
	conn := db.Conn(ctx, r.db)
	if err := conn.
		Where("business_id = ? AND date >= ?", businessID, from).
		Delete(&model.PrecomputedDay{}).Error; err != nil {
		return err
	}
	return conn.
		Where("business_id = ? AND date >= ?", businessID, from).
		Delete(&model.PrecomputedSlot{}).Error
}

func (r *GormSlotCacheRepository) PurgeBefore(ctx context.Context, before datatypes.Date) (int64, error) {
	conn := db.Conn(ctx, r.db)
	if err := conn.Where("date < ?", before).Delete(&model.PrecomputedDay{}).Error; err != nil {
		return 0, err
	}
	res := conn.Where("date < ?", before).Delete(&model.PrecomputedSlot{})
	return res.RowsAffected, res.Error
}

// LockRepository: строки-замки ресурсов.
type LockRepository interface {
	// Acquire создаёт (если нужно) и блокирует строку key до конца транзакции.
	Acquire(ctx context.Context, key string, date datatypes.Date) error
	PurgeBefore(ctx context.Context, before datatypes.Date) (int64, error)
}

type GormLockRepository struct {
	db *gorm.DB
}

func NewGormLockRepository(db *gorm.DB) *GormLockRepository {
	return &GormLockRepository{db: db}
}

func (r *GormLockRepository) Acquire(ctx context.Context, key string, date datatypes.Date) error {
	conn := db.Conn(ctx, r.db)

	lock := model.ResourceLock{LockKey: key, Date: date}
	if err := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(&lock).Error; err != nil {
		return err
	}

	var held model.ResourceLock
	return conn.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&held, "lock_key = ?", key).Error
}

func (r *GormLockRepository) PurgeBefore(ctx context.Context, before datatypes.Date) (int64, error) {
	res := db.Conn(ctx, r.db).Where("date < ?", before).Delete(&model.ResourceLock{})
	return res.RowsAffected, res.Error
}

type AuditRepository interface {
	Create(ctx context.Context, ev *model.AuditEvent) error
	ListByEntity(ctx context.Context, entityID uuid.UUID) ([]model.AuditEvent, error)
}

type GormAuditRepository struct {
	db *gorm.DB
}

func NewGormAuditRepository(db *gorm.DB) *GormAuditRepository {
	return &GormAuditRepository{db: db}
}

func (r *GormAuditRepository) Create(ctx context.Context, ev *model.AuditEvent) error {
	return db.Conn(ctx, r.db).Create(ev).Error
}

func (r *GormAuditRepository) ListByEntity(ctx context.Context, entityID uuid.UUID) ([]model.AuditEvent, error) {
	var out []model.AuditEvent
	if err := db.Conn(ctx, r.db).
		Where("entity_id = ?", entityID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
