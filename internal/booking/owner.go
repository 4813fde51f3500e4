package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/appointment-booking/internal/apperror"
	"github.com/Leganyst/appointment-booking/internal/auth"
	"github.com/Leganyst/appointment-booking/internal/calendar"
	"github.com/Leganyst/appointment-booking/internal/model"
)

const (
	maxPageSize = 100
	// Длиннее диапазон обрезается по To.
	maxListRange = 92 * 24 * time.Hour
)

type ListQuery struct {
	BusinessID uuid.UUID
	From       time.Time
	To         time.Time
	// Пусто: все статусы.
	Status   model.AppointmentStatus
	Page     int
	PageSize int
}

// List: записи бизнеса для владельца, постранично.
func (s *Service) List(ctx context.Context, ac *auth.Context, q ListQuery) (calendar.Page[model.Appointment], error) {
	var empty calendar.Page[model.Appointment]
	if err := auth.RequireOwner(ac, q.BusinessID); err != nil {
		return empty, err
	}

	fields := map[string]string{}
	if q.From.IsZero() || q.To.IsZero() {
		fields["from"] = "from and to are required"
	} else if !q.To.After(q.From) {
		fields["to"] = "must be after from"
	}
	if q.Status != "" && !q.Status.Valid() {
		fields["status"] = "unknown status"
	}
	if len(fields) > 0 {
		return empty, apperror.Validation("invalid list request", fields)
	}

	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = 20
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	tr, err := calendar.NormalizeTimeRange(q.From, q.To, time.UTC, maxListRange)
	if err != nil {
		return empty, apperror.Validation("invalid list request", map[string]string{"from": "invalid range"})
	}

	items, total, err := s.appointments.ListByBusinessRange(ctx, q.BusinessID, tr.Start, tr.End, q.Status,
		q.PageSize, calendar.Offset(q.Page, q.PageSize))
	if err != nil {
		return empty, apperror.Transient("list appointments", err)
	}

	return calendar.Page[model.Appointment]{
		Items:    items,
		Page:     q.Page,
		PageSize: q.PageSize,
		HasPrev:  q.Page > 1,
		HasNext:  int64(q.Page*q.PageSize) < total,
		Total:    int(total),
	}, nil
}

// Get: запись для владельца её бизнеса.
func (s *Service) Get(ctx context.Context, ac *auth.Context, id uuid.UUID) (*model.Appointment, error) {
	if ac == nil {
		return nil, apperror.ErrUnauthorized
	}
	appt, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("appointment")
		}
		return nil, apperror.Transient("load appointment", err)
	}
	if err := auth.RequireOwner(ac, appt.BusinessID); err != nil {
		return nil, err
	}
	return appt, nil
}
