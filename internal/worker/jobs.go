package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/appointment-booking/internal/availability"
	"github.com/Leganyst/appointment-booking/internal/config"
	"github.com/Leganyst/appointment-booking/internal/logger"
	"github.com/Leganyst/appointment-booking/internal/model"
	"github.com/Leganyst/appointment-booking/internal/notify"
	"github.com/Leganyst/appointment-booking/internal/repository"
)

const reminderBatch = 100

type JobsDeps struct {
	Refresher    *availability.Refresher
	Businesses   repository.BusinessRepository
	Appointments repository.AppointmentRepository
	Tokens       repository.TokenRepository
	Locks        repository.LockRepository
	Notifier     notify.Notifier
}

// Jobs: тела периодических задач.
type Jobs struct {
	refresher    *availability.Refresher
	businesses   repository.BusinessRepository
	appointments repository.AppointmentRepository
	tokens       repository.TokenRepository
	locks        repository.LockRepository
	notifier     notify.Notifier

	tokenRetention time.Duration
	reminderLead   time.Duration
	now            func() time.Time
}

func NewJobs(d JobsDeps, cfg config.JobsConfig, now func() time.Time) *Jobs {
	if now == nil {
		now = time.Now
	}
	n := d.Notifier
	if n == nil {
		n = notify.Noop{}
	}
	return &Jobs{
		refresher:      d.Refresher,
		businesses:     d.Businesses,
		appointments:   d.Appointments,
		tokens:         d.Tokens,
		locks:          d.Locks,
		notifier:       n,
		tokenRetention: cfg.TokenRetention,
		reminderLead:   cfg.ReminderLead,
		now:            now,
	}
}

func (j *Jobs) RefreshSlots(ctx context.Context) error {
	_, err := j.refresher.RefreshAll(ctx)
	return err
}

// SweepTokens удаляет использованные и истёкшие токены старше tokenRetention
// и строки блокировок за прошедшие даты.
func (j *Jobs) SweepTokens(ctx context.Context) error {
	now := j.now().UTC()

	tokens, err := j.tokens.DeleteStale(ctx, now.Add(-j.tokenRetention))
	if err != nil {
		return fmt.Errorf("delete stale tokens: %w", err)
	}
	locks, err := j.locks.PurgeBefore(ctx, model.CivilDate(now.AddDate(0, 0, -1)))
	if err != nil {
		return fmt.Errorf("purge slot locks: %w", err)
	}

	if tokens > 0 || locks > 0 {
		logger.InfoContext(ctx, "sweep done", "tokens_deleted", tokens, "locks_deleted", locks)
	}
	return nil
}

// SendReminders шлёт напоминание о записях, начинающихся в ближайшие reminderLead.
// Отметка ставится до отправки: повторного напоминания не будет даже при сбое доставки.
func (j *Jobs) SendReminders(ctx context.Context) (int, error) {
	now := j.now().UTC()
	due, err := j.appointments.ListDueForReminder(ctx, now, now.Add(j.reminderLead), reminderBatch)
	if err != nil {
		return 0, fmt.Errorf("list due reminders: %w", err)
	}

	businesses := map[uuid.UUID]*model.Business{}
	sent := 0
	for i := range due {
		appt := &due[i]

		marked, err := j.appointments.MarkReminderSent(ctx, appt.ID, now)
		if err != nil {
			logger.WarnContext(ctx, "mark reminder failed", "appointment_id", appt.ID, "error", err)
			continue
		}
		if !marked {
			continue
		}

		biz, ok := businesses[appt.BusinessID]
		if !ok {
			biz, err = j.businesses.GetByID(ctx, appt.BusinessID)
			if err != nil {
				logger.WarnContext(ctx, "load business for reminder failed", "business_id", appt.BusinessID, "error", err)
			}
			businesses[appt.BusinessID] = biz
		}

		if err := j.notifier.Notify(ctx, notify.New(notify.KindReminder, appt, biz, "", now)); err != nil {
			logger.WarnContext(ctx, "reminder notify failed", "appointment_id", appt.ID, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}

// Tasks: стандартный набор задач воркера.
func (j *Jobs) Tasks(slots config.SlotsConfig, jobs config.JobsConfig) []Task {
	return []Task{
		{
			Name:     "refresh-slots",
			Interval: slots.RefreshInterval,
			LeaseTTL: slots.LeaseTTL,
			Run:      j.RefreshSlots,
		},
		{
			Name:     "sweep-tokens",
			Interval: jobs.TokenSweepInterval,
			LeaseTTL: jobs.TokenSweepInterval,
			Run:      j.SweepTokens,
		},
		{
			Name:     "reminders",
			Interval: jobs.ReminderInterval,
			LeaseTTL: jobs.ReminderInterval,
			Run: func(ctx context.Context) error {
				_, err := j.SendReminders(ctx)
				return err
			},
		},
	}
}
