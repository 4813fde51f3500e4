package availability

import (
	"context"
	"time"

	"gorm.io/datatypes"

	"github.com/Leganyst/appointment-booking/internal/apperror"
	"github.com/Leganyst/appointment-booking/internal/db"
	"github.com/Leganyst/appointment-booking/internal/logger"
	"github.com/Leganyst/appointment-booking/internal/model"
	"github.com/Leganyst/appointment-booking/internal/repository"
)

// RefreshStats: итог одного прохода пересчёта кэша.
type RefreshStats struct {
	Businesses int
	Days       int
	Slots      int
	Failed     int
	Purged     int64
}

// Refresher пересчитывает кэш слотов на горизонт вперёд.
// Каждый (бизнес, дата) пишется в своей короткой транзакции.
type Refresher struct {
	businesses repository.BusinessRepository
	engine     *Engine
	cache      repository.SlotCacheRepository
	tx         db.TxRunner

	horizonDays int
	now         func() time.Time
}

func NewRefresher(
	businesses repository.BusinessRepository,
	engine *Engine,
	cache repository.SlotCacheRepository,
	tx db.TxRunner,
	horizonDays int,
	now func() time.Time,
) *Refresher {
	if now == nil {
		now = time.Now
	}
	if horizonDays <= 0 {
		horizonDays = 30
	}
	return &Refresher{
		businesses:  businesses,
		engine:      engine,
		cache:       cache,
		tx:          tx,
		horizonDays: horizonDays,
		now:         now,
	}
}

// RefreshAll обходит все бизнесы. Ошибка одного дня не останавливает проход.
func (r *Refresher) RefreshAll(ctx context.Context) (RefreshStats, error) {
	var stats RefreshStats

	businesses, err := r.businesses.List(ctx)
	if err != nil {
		return stats, apperror.Transient("list businesses", err)
	}

	for i := range businesses {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		st := r.RefreshBusiness(ctx, &businesses[i])
		stats.Businesses++
		stats.Days += st.Days
		stats.Slots += st.Slots
		stats.Failed += st.Failed
	}

	// Вчерашний день по UTC оставляем: в западных таймзонах он ещё "сегодня".
	cutoff := model.CivilDate(r.now().UTC().AddDate(0, 0, -1))
	purged, err := r.cache.PurgeBefore(ctx, cutoff)
	if err != nil {
		logger.WarnContext(ctx, "purge old precomputed slots failed", "error", err)
	}
	stats.Purged = purged

	logger.InfoContext(ctx, "slot cache refreshed",
		"businesses", stats.Businesses,
		"days", stats.Days,
		"slots", stats.Slots,
		"failed", stats.Failed,
		"purged", stats.Purged,
	)
	return stats, nil
}

// RefreshBusiness пересчитывает [сегодня, сегодня+горизонт) в таймзоне бизнеса.
func (r *Refresher) RefreshBusiness(ctx context.Context, biz *model.Business) RefreshStats {
	var stats RefreshStats
	today := time.Time(model.CivilDate(r.now().In(biz.Location())))

	for i := 0; i < r.horizonDays; i++ {
		date := datatypes.Date(today.AddDate(0, 0, i))
		n, err := r.RefreshDay(ctx, biz, date)
		if err != nil {
			stats.Failed++
			logger.ErrorContext(ctx, "refresh slots for day failed",
				"business_id", biz.ID,
				"date", model.FormatDate(date),
				"error", err,
			)
			continue
		}
		stats.Days++
		stats.Slots += n
	}
	return stats
}

// RefreshDay заменяет кэш бизнеса на дату. Повторный вызов на неизменных данных
// даёт тот же набор слотов.
func (r *Refresher) RefreshDay(ctx context.Context, biz *model.Business, date datatypes.Date) (int, error) {
	var count int
	err := r.tx.RunInTx(ctx, func(ctx context.Context) error {
		slots, err := r.engine.computeForBusiness(ctx, biz, Query{
			Scope: model.Scope{BusinessID: biz.ID},
			Date:  date,
		})
		if err != nil {
			return err
		}

		rows := make([]model.PrecomputedSlot, 0, len(slots))
		for _, s := range slots {
			rows = append(rows, model.PrecomputedSlot{
				BusinessID: s.BusinessID,
				BranchID:   s.BranchID,
				WorkerID:   s.WorkerID,
				Date:       date,
				StartTime:  s.StartTime,
				EndTime:    s.EndTime,
				WorkerName: s.WorkerName,
			})
		}
		count = len(rows)
		return r.cache.ReplaceDay(ctx, biz.ID, date, rows, r.now())
	})
	return count, err
}
