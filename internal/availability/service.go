package availability

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Leganyst/appointment-booking/internal/apperror"
	"github.com/Leganyst/appointment-booking/internal/logger"
	"github.com/Leganyst/appointment-booking/internal/model"
	"github.com/Leganyst/appointment-booking/internal/repository"
)

// Service: путь чтения доступности: свежий кэш, иначе живой расчёт.
type Service struct {
	engine *Engine
	cache  repository.SlotCacheRepository
	maxAge time.Duration
	now    func() time.Time
}

func NewService(engine *Engine, cache repository.SlotCacheRepository, maxAge time.Duration, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{engine: engine, cache: cache, maxAge: maxAge, now: now}
}

func (s *Service) Engine() *Engine { return s.engine }

// Availability возвращает будущие свободные слоты на дату.
func (s *Service) Availability(ctx context.Context, scope model.Scope, date datatypes.Date) ([]Slot, error) {
	biz, err := s.engine.ResolveScope(ctx, scope)
	if err != nil {
		return nil, err
	}

	slots, ok := s.fromCache(ctx, scope, date)
	if !ok {
		slots, err = s.engine.computeForBusiness(ctx, biz, Query{Scope: scope, Date: date})
		if err != nil {
			return nil, err
		}
	}

	now := s.now()
	out := slots[:0]
	for _, sl := range slots {
		if sl.StartTime.After(now) {
			out = append(out, sl)
		}
	}
	return out, nil
}

// fromCache отдаёт слоты из кэша, если день посчитан и отметка не старше maxAge.
func (s *Service) fromCache(ctx context.Context, scope model.Scope, date datatypes.Date) ([]Slot, bool) {
	if s.cache == nil {
		return nil, false
	}
	day, err := s.cache.GetDay(ctx, scope.BusinessID, date)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WarnContext(ctx, "slot cache lookup failed", "business_id", scope.BusinessID, "error", err)
		}
		return nil, false
	}
	if s.maxAge > 0 && s.now().Sub(day.ComputedAt) > s.maxAge {
		return nil, false
	}

	rows, err := s.cache.ListSlots(ctx, scope, date)
	if err != nil {
		logger.WarnContext(ctx, "slot cache read failed", "business_id", scope.BusinessID, "error", err)
		return nil, false
	}
	slots := make([]Slot, 0, len(rows))
	for _, r := range rows {
		slots = append(slots, Slot{
			BusinessID: r.BusinessID,
			BranchID:   r.BranchID,
			WorkerID:   r.WorkerID,
			WorkerName: r.WorkerName,
			StartTime:  r.StartTime.UTC(),
			EndTime:    r.EndTime.UTC(),
		})
	}
	SortSlots(slots)
	return slots, true
}

// IsBookable проверяет по живому расписанию, что [start, end): слот ресурса.
// Кэш не читается, он может отставать от исключений.
// Занятость проверяет вызывающий под блокировкой.
func (s *Service) IsBookable(ctx context.Context, biz *model.Business, resource model.Scope, start, end time.Time) (bool, error) {
	date := model.CivilDate(start.In(biz.Location()))
	slots, err := s.engine.computeForBusiness(ctx, biz, Query{
		Scope:         resource,
		Date:          date,
		IncludeBooked: true,
	})
	if err != nil {
		return false, apperror.Wrap("compute slots", err)
	}
	for _, sl := range slots {
		if sl.Scope().SameResource(resource) && sl.StartTime.Equal(start.UTC()) && sl.EndTime.Equal(end.UTC()) {
			return true, nil
		}
	}
	return false, nil
}
