package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Leganyst/appointment-booking/internal/db"
	"github.com/Leganyst/appointment-booking/internal/model"
)

type ScheduleRepository interface {
	Create(ctx context.Context, rule *model.ScheduleRule) error
	Update(ctx context.Context, rule *model.ScheduleRule) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ScheduleRule, error)
	// Все правила бизнеса.
	ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]model.ScheduleRule, error)
	// Правила, подходящие под фильтр scope на день недели.
	ListForDay(ctx context.Context, filter model.Scope, day int) ([]model.ScheduleRule, error)
	// Правила ровно этого ресурса на день недели (для проверки пересечений).
	ListByResourceDay(ctx context.Context, resource model.Scope, day int) ([]model.ScheduleRule, error)
}

type GormScheduleRepository struct {
	db *gorm.DB
}

func NewGormScheduleRepository(db *gorm.DB) *GormScheduleRepository {
	return &GormScheduleRepository{db: db}
}

func (r *GormScheduleRepository) Create(ctx context.Context, rule *model.ScheduleRule) error {
	return db.Conn(ctx, r.db).Create(rule).Error
}

func (r *GormScheduleRepository) Update(ctx context.Context, rule *model.ScheduleRule) error {
	return db.Conn(ctx, r.db).Save(rule).Error
}

func (r *GormScheduleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return db.Conn(ctx, r.db).Delete(&model.ScheduleRule{}, "id = ?", id).Error
}

func (r *GormScheduleRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ScheduleRule, error) {
	var rule model.ScheduleRule
	if err := db.Conn(ctx, r.db).First(&rule, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *GormScheduleRepository) ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]model.ScheduleRule, error) {
	var rules []model.ScheduleRule
	if err := db.Conn(ctx, r.db).
		Where("business_id = ?", businessID).
		Order("day_of_week ASC, start_time ASC").
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *GormScheduleRepository) ListForDay(ctx context.Context, filter model.Scope, day int) ([]model.ScheduleRule, error) {
	var rules []model.ScheduleRule
	q := whereScopeFilter(db.Conn(ctx, r.db).Model(&model.ScheduleRule{}), filter).
		Where("day_of_week = ?", day)
	if err := q.Order("start_time ASC").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *GormScheduleRepository) ListByResourceDay(ctx context.Context, resource model.Scope, day int) ([]model.ScheduleRule, error) {
	var rules []model.ScheduleRule
	q := whereResource(db.Conn(ctx, r.db).Model(&model.ScheduleRule{}), resource).
		Where("day_of_week = ?", day)
	if err := q.Order("start_time ASC").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

type ExceptionRepository interface {
	Create(ctx context.Context, ex *model.ExceptionRule) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExceptionRule, error)
	// Все исключения бизнеса на дату, любого уровня.
	ListByBusinessDate(ctx context.Context, businessID uuid.UUID, date datatypes.Date) ([]model.ExceptionRule, error)
	ListByBusinessFrom(ctx context.Context, businessID uuid.UUID, from datatypes.Date) ([]model.ExceptionRule, error)
	GetByResourceDate(ctx context.Context, resource model.Scope, date datatypes.Date) (*model.ExceptionRule, error)
}

type GormExceptionRepository struct {
	db *gorm.DB
}

func NewGormExceptionRepository(db *gorm.DB) *GormExceptionRepository {
	return &GormExceptionRepository{db: db}
}

func (r *GormExceptionRepository) Create(ctx context.Context, ex *model.ExceptionRule) error {
	return db.Conn(ctx, r.db).Create(ex).Error
}

func (r *GormExceptionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return db.Conn(ctx, r.db).Delete(&model.ExceptionRule{}, "id = ?", id).Error
}

func (r *GormExceptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExceptionRule, error) {
	var ex model.ExceptionRule
	if err := db.Conn(ctx, r.db).First(&ex, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ex, nil
}

func (r *GormExceptionRepository) ListByBusinessDate(
	ctx context.Context,
	businessID uuid.UUID,
	date datatypes.Date,
) ([]model.ExceptionRule, error) {
	var out []model.ExceptionRule
	if err := db.Conn(ctx, r.db).
		Where("business_id = ? AND date = ?", businessID, date).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormExceptionRepository) ListByBusinessFrom(
	ctx context.Context,
	businessID uuid.UUID,
	from datatypes.Date,
) ([]model.ExceptionRule, error) {
	var out []model.ExceptionRule
	if err := db.Conn(ctx, r.db).
		Where("business_id = ? AND date >= ?", businessID, from).
		Order("date ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormExceptionRepository) GetByResourceDate(
	ctx context.Context,
	resource model.Scope,
	date datatypes.Date,
) (*model.ExceptionRule, error) {
	var ex model.ExceptionRule
	if err := whereResource(db.Conn(ctx, r.db), resource).
		Where("date = ?", date).
		First(&ex).Error; err != nil {
		return nil, err
	}
	return &ex, nil
}
