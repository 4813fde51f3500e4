package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leganyst/appointment-booking/internal/db"
	"github.com/Leganyst/appointment-booking/internal/model"
)

type AppointmentRepository interface {
	Create(ctx context.Context, appt *model.Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	// GetByIDForUpdate берёт строку под SELECT ... FOR UPDATE; вызывать внутри транзакции.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	Save(ctx context.Context, appt *model.Appointment) error
	// Неотменённые записи ровно этого ресурса, пересекающие [from, to).
	ListActiveOverlapping(ctx context.Context, resource model.Scope, from, to time.Time, excludeID *uuid.UUID) ([]model.Appointment, error)
	// Неотменённые записи бизнеса в интервале, по всем ресурсам.
	ListActiveByBusinessRange(ctx context.Context, businessID uuid.UUID, from, to time.Time) ([]model.Appointment, error)
	// Список для владельца с пагинацией.
	ListByBusinessRange(
		ctx context.Context,
		businessID uuid.UUID,
		from, to time.Time,
		status model.AppointmentStatus,
		limit, offset int,
	) ([]model.Appointment, int64, error)
	// Записи, начинающиеся в [from, to), без отправленного напоминания.
	ListDueForReminder(ctx context.Context, from, to time.Time, limit int) ([]model.Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type GormAppointmentRepository struct {
	db *gorm.DB
}

func NewGormAppointmentRepository(db *gorm.DB) *GormAppointmentRepository {
	return &GormAppointmentRepository{db: db}
}

func (r *GormAppointmentRepository) Create(ctx context.Context, appt *model.Appointment) error {
	return db.Conn(ctx, r.db).Create(appt).Error
}

func (r *GormAppointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var a model.Appointment
	if err := db.Conn(ctx, r.db).First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *GormAppointmentRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var a model.Appointment
	if err := db.Conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *GormAppointmentRepository) Save(ctx context.Context, appt *model.Appointment) error {
	return db.Conn(ctx, r.db).Save(appt).Error
}

func (r *GormAppointmentRepository) ListActiveOverlapping(
	ctx context.Context,
	resource model.Scope,
	from, to time.Time,
	excludeID *uuid.UUID,
) ([]model.Appointment, error) {
	var out []model.Appointment
	q := whereResource(db.Conn(ctx, r.db).Model(&model.Appointment{}), resource).
		Where("status <> ?", model.AppointmentStatusCancelled).
		// полуоткрытые интервалы: start < to AND end > from
		Where("start_time < ? AND end_time > ?", to.UTC(), from.UTC())
	if excludeID != nil {
		q = q.Where("id <> ?", *excludeID)
	}
	if err := q.Order("start_time ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormAppointmentRepository) ListActiveByBusinessRange(
	ctx context.Context,
	businessID uuid.UUID,
	from, to time.Time,
) ([]model.Appointment, error) {
	var out []model.Appointment
	if err := db.Conn(ctx, r.db).
		Where("business_id = ?", businessID).
		Where("status <> ?", model.AppointmentStatusCancelled).
		Where("start_time < ? AND end_time > ?", to.UTC(), from.UTC()).
		Order("start_time ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormAppointmentRepository) ListByBusinessRange(
	ctx context.Context,
	businessID uuid.UUID,
	from, to time.Time,
	status model.AppointmentStatus,
	limit, offset int,
) ([]model.Appointment, int64, error) {
	var (
		appts []model.Appointment
		total int64
	)

	q := db.Conn(ctx, r.db).
		Model(&model.Appointment{}).
		Where("business_id = ?", businessID).
		Where("start_time >= ? AND start_time < ?", from.UTC(), to.UTC())
	if status != "" {
		q = q.Where("status = ?", status)
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	if err := q.Order("start_time ASC").Find(&appts).Error; err != nil {
		return nil, 0, err
	}

	return appts, total, nil
}

func (r *GormAppointmentRepository) ListDueForReminder(ctx context.Context, from, to time.Time, limit int) ([]model.Appointment, error) {
	var out []model.Appointment
	q := db.Conn(ctx, r.db).
		Where("status <> ?", model.AppointmentStatusCancelled).
		Where("reminder_sent_at IS NULL").
		Where("start_time >= ? AND start_time < ?", from.UTC(), to.UTC()).
		Order("start_time ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// MarkReminderSent ставит отметку только один раз; false: уже отмечено другим воркером.
func (r *GormAppointmentRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := db.Conn(ctx, r.db).
		Model(&model.Appointment{}).
		Where("id = ? AND reminder_sent_at IS NULL", id).
		Update("reminder_sent_at", at.UTC())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
