package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/appointment-booking/internal/db"
	"github.com/Leganyst/appointment-booking/internal/model"
)

type BusinessRepository interface {
	Create(ctx context.Context, b *model.Business) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Business, error)
	// Все бизнесы, для фонового пересчёта кэша.
	List(ctx context.Context) ([]model.Business, error)

	CreateBranch(ctx context.Context, b *model.Branch) error
	GetBranch(ctx context.Context, businessID, branchID uuid.UUID) (*model.Branch, error)

	CreateWorker(ctx context.Context, w *model.Worker) error
	GetWorker(ctx context.Context, businessID, workerID uuid.UUID) (*model.Worker, error)
	ListWorkers(ctx context.Context, businessID uuid.UUID) ([]model.Worker, error)
}

type GormBusinessRepository struct {
	db *gorm.DB
}

func NewGormBusinessRepository(db *gorm.DB) *GormBusinessRepository {
	return &GormBusinessRepository{db: db}
}

func (r *GormBusinessRepository) Create(ctx context.Context, b *model.Business) error {
	return db.Conn(ctx, r.db).Create(b).Error
}

func (r *GormBusinessRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Business, error) {
	var b model.Business
	if err := db.Conn(ctx, r.db).First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *GormBusinessRepository) List(ctx context.Context) ([]model.Business, error) {
	var out []model.Business
	if err := db.Conn(ctx, r.db).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormBusinessRepository) CreateBranch(ctx context.Context, b *model.Branch) error {
	return db.Conn(ctx, r.db).Create(b).Error
}

func (r *GormBusinessRepository) GetBranch(ctx context.Context, businessID, branchID uuid.UUID) (*model.Branch, error) {
	var b model.Branch
	if err := db.Conn(ctx, r.db).
		First(&b, "id = ? AND business_id = ?", branchID, businessID).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *GormBusinessRepository) CreateWorker(ctx context.Context, w *model.Worker) error {
	return db.Conn(ctx, r.db).Create(w).Error
}

func (r *GormBusinessRepository) GetWorker(ctx context.Context, businessID, workerID uuid.UUID) (*model.Worker, error) {
	var w model.Worker
	if err := db.Conn(ctx, r.db).
		First(&w, "id = ? AND business_id = ?", workerID, businessID).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *GormBusinessRepository) ListWorkers(ctx context.Context, businessID uuid.UUID) ([]model.Worker, error) {
	var out []model.Worker
	if err := db.Conn(ctx, r.db).
		Where("business_id = ?", businessID).
		Order("name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
