// Package booking: машина состояний записи: захват слота под блокировкой,
// смена статуса и перенос владельцем или клиентом по временному токену.
package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Leganyst/appointment-booking/internal/apperror"
	"github.com/Leganyst/appointment-booking/internal/audit"
	"github.com/Leganyst/appointment-booking/internal/availability"
	"github.com/Leganyst/appointment-booking/internal/db"
	"github.com/Leganyst/appointment-booking/internal/logger"
	"github.com/Leganyst/appointment-booking/internal/model"
	"github.com/Leganyst/appointment-booking/internal/notify"
	"github.com/Leganyst/appointment-booking/internal/repository"
)

// Result: запись после операции и новый сырой токен, если он выпущен.
type Result struct {
	Appointment *model.Appointment
	Token       string
}

type Deps struct {
	Tx           db.TxRunner
	Availability *availability.Service
	Businesses   repository.BusinessRepository
	Appointments repository.AppointmentRepository
	Tokens       repository.TokenRepository
	Locks        repository.LockRepository
	Cache        repository.SlotCacheRepository
	Notifier     notify.Notifier
	Audit        audit.Sink
}

type Options struct {
	TokenTTL           time.Duration
	ClientCancelCutoff time.Duration
	Now                func() time.Time
}

type Service struct {
	tx           db.TxRunner
	availability *availability.Service
	businesses   repository.BusinessRepository
	appointments repository.AppointmentRepository
	tokens       repository.TokenRepository
	locks        repository.LockRepository
	cache        repository.SlotCacheRepository
	notifier     notify.Notifier
	audit        audit.Sink

	tokenTTL     time.Duration
	cancelCutoff time.Duration
	now          func() time.Time
}

func NewService(d Deps, opts Options) *Service {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 10 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if d.Notifier == nil {
		d.Notifier = notify.Noop{}
	}
	return &Service{
		tx:           d.Tx,
		availability: d.Availability,
		businesses:   d.Businesses,
		appointments: d.Appointments,
		tokens:       d.Tokens,
		locks:        d.Locks,
		cache:        d.Cache,
		notifier:     d.Notifier,
		audit:        d.Audit,
		tokenTTL:     opts.TokenTTL,
		cancelCutoff: opts.ClientCancelCutoff,
		now:          opts.Now,
	}
}

// Claim создаёт запись pending на свободный слот и выдаёт клиенту токен.
// Из двух одновременных заявок на один слот успешна ровно одна,
// вторая получает ErrSlotAlreadyBooked.
func (s *Service) Claim(ctx context.Context, cmd ClaimCommand) (*Result, error) {
	cmd.normalize()
	now := s.now()
	if err := cmd.validate(now); err != nil {
		return nil, err
	}

	scope, biz, err := s.availability.Engine().CanonicalScope(ctx, cmd.Scope)
	if err != nil {
		return nil, err
	}
	cmd.Scope = scope
	ok, err := s.availability.IsBookable(ctx, biz, cmd.Scope, cmd.StartTime, cmd.EndTime)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.ErrSlotUnavailable
	}

	date := model.CivilDate(cmd.StartTime.In(biz.Location()))
	appt := &model.Appointment{
		BusinessID:  cmd.Scope.BusinessID,
		BranchID:    cmd.Scope.BranchID,
		WorkerID:    cmd.Scope.WorkerID,
		ClientName:  cmd.Client.Name,
		ClientEmail: cmd.Client.Email,
		ClientPhone: cmd.Client.Phone,
		StartTime:   cmd.StartTime,
		EndTime:     cmd.EndTime,
		Status:      model.AppointmentStatusPending,
	}

	var raw string
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.locks.Acquire(ctx, lockKey(cmd.Scope, date), date); err != nil {
			return apperror.Transient("acquire resource lock", err)
		}
		busy, err := s.appointments.ListActiveOverlapping(ctx, cmd.Scope, cmd.StartTime, cmd.EndTime, nil)
		if err != nil {
			return apperror.Transient("check overlapping appointments", err)
		}
		if len(busy) > 0 {
			return apperror.ErrSlotAlreadyBooked
		}
		if err := s.appointments.Create(ctx, appt); err != nil {
			return apperror.Transient("create appointment", err)
		}
		raw, err = s.issueToken(ctx, appt, now)
		if err != nil {
			return apperror.Transient("issue token", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperror.ErrSlotAlreadyBooked) {
			logger.InfoContext(ctx, "slot already booked",
				"business_id", cmd.Scope.BusinessID,
				"scope", cmd.Scope.Key(),
				"start", cmd.StartTime,
			)
		}
		return nil, apperror.Wrap("claim slot", err)
	}

	logger.InfoContext(ctx, "appointment created",
		"appointment_id", appt.ID,
		"business_id", appt.BusinessID,
		"scope", appt.ScopeKey,
		"start", appt.StartTime,
	)

	if s.cache != nil {
		if err := s.cache.DeleteOverlapping(ctx, cmd.Scope, cmd.StartTime, cmd.EndTime); err != nil {
			logger.WarnContext(ctx, "drop claimed slot from cache failed", "appointment_id", appt.ID, "error", err)
		}
	}
	s.record(ctx, model.AuditActionAppointmentCreated, appt, nil, map[string]any{
		"start_time": appt.StartTime,
		"end_time":   appt.EndTime,
	})
	s.publish(ctx, notify.KindCreated, appt, biz, raw)

	return &Result{Appointment: appt, Token: raw}, nil
}

// Transition меняет статус или время записи.
func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (*Result, error) {
	now := s.now()
	if err := cmd.validate(now); err != nil {
		return nil, err
	}
	if cmd.Actor.IsClient() && cmd.Actor.Token == "" {
		return nil, apperror.ErrUnauthorized
	}

	current, err := s.appointments.GetByID(ctx, cmd.AppointmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if cmd.Actor.IsClient() {
				return nil, apperror.ErrInvalidOrExpiredToken
			}
			return nil, apperror.NotFound("appointment")
		}
		return nil, apperror.Transient("load appointment", err)
	}
	if cmd.Actor.IsClient() {
		// Ранняя проверка, чтобы по ответу нельзя было судить о слотах чужой записи.
		// Окончательная проверка и погашение: в транзакции.
		tok, err := s.tokens.GetByHash(ctx, HashToken(cmd.Actor.Token))
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Transient("load token", err)
		}
		if !tokenValid(tok, current, now) {
			return nil, apperror.ErrInvalidOrExpiredToken
		}
	} else if !cmd.Actor.Auth.Owns(current.BusinessID) {
		return nil, apperror.ErrForbidden
	}

	biz, err := s.businesses.GetByID(ctx, current.BusinessID)
	if err != nil {
		return nil, apperror.Transient("load business", err)
	}

	var newStart, newEnd time.Time
	if cmd.isReschedule() {
		if current.Status == model.AppointmentStatusCancelled {
			return nil, apperror.ErrInvalidStatusTransition
		}
		newStart, newEnd = cmd.StartTime.UTC(), cmd.EndTime.UTC()
		ok, err := s.availability.IsBookable(ctx, biz, current.Scope(), newStart, newEnd)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperror.ErrSlotUnavailable
		}
	}

	var (
		appt       *model.Appointment
		fromStatus model.AppointmentStatus
		oldStart   time.Time
		raw        string
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		appt, err = s.appointments.GetByIDForUpdate(ctx, cmd.AppointmentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("appointment")
			}
			return apperror.Transient("lock appointment", err)
		}
		fromStatus, oldStart = appt.Status, appt.StartTime

		var tok *model.TemporaryToken
		if cmd.Actor.IsClient() {
			tok, err = s.tokens.GetByHash(ctx, HashToken(cmd.Actor.Token))
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.Transient("load token", err)
			}
			if !tokenValid(tok, appt, now) {
				return apperror.ErrInvalidOrExpiredToken
			}
		}

		if cmd.isReschedule() {
			if err := s.reschedule(ctx, biz, appt, newStart, newEnd); err != nil {
				return err
			}
		} else {
			if err := s.checkStatusChange(appt, *cmd.Status, cmd.Actor, now); err != nil {
				return err
			}
			appt.Status = *cmd.Status
			if appt.Status == model.AppointmentStatusCancelled {
				at := now.UTC()
				appt.CancelledAt = &at
			}
		}

		if tok != nil {
			consumed, err := s.tokens.Consume(ctx, tok.ID, now)
			if err != nil {
				return apperror.Transient("consume token", err)
			}
			if !consumed {
				return apperror.ErrInvalidOrExpiredToken
			}
		}

		if err := s.appointments.Save(ctx, appt); err != nil {
			return apperror.Transient("save appointment", err)
		}

		if cmd.isReschedule() {
			if err := s.tokens.InvalidateForAppointment(ctx, appt.ID, now); err != nil {
				return apperror.Transient("invalidate tokens", err)
			}
			raw, err = s.issueToken(ctx, appt, now)
			if err != nil {
				return apperror.Transient("issue token", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperror.Wrap("transition appointment", err)
	}

	s.afterTransition(ctx, biz, appt, fromStatus, oldStart, cmd, raw)
	return &Result{Appointment: appt, Token: raw}, nil
}

// reschedule перепроверяет новый интервал под блокировкой ресурса.
func (s *Service) reschedule(ctx context.Context, biz *model.Business, appt *model.Appointment, start, end time.Time) error {
	if appt.Status == model.AppointmentStatusCancelled {
		return apperror.ErrInvalidStatusTransition
	}
	if appt.StartTime.Equal(start) && appt.EndTime.Equal(end) {
		return apperror.Validation("invalid transition request", map[string]string{
			"start_time": "appointment is already at this time",
		})
	}

	date := model.CivilDate(start.In(biz.Location()))
	if err := s.locks.Acquire(ctx, lockKey(appt.Scope(), date), date); err != nil {
		return apperror.Transient("acquire resource lock", err)
	}
	busy, err := s.appointments.ListActiveOverlapping(ctx, appt.Scope(), start, end, &appt.ID)
	if err != nil {
		return apperror.Transient("check overlapping appointments", err)
	}
	if len(busy) > 0 {
		return apperror.ErrSlotAlreadyBooked
	}

	appt.StartTime, appt.EndTime = start, end
	appt.Status = model.AppointmentStatusPending
	appt.ReminderSentAt = nil
	return nil
}

// checkStatusChange: таблица допустимых переходов.
func (s *Service) checkStatusChange(appt *model.Appointment, to model.AppointmentStatus, actor Actor, now time.Time) error {
	from := appt.Status
	if from == to || from == model.AppointmentStatusCancelled {
		return apperror.ErrInvalidStatusTransition
	}

	switch to {
	case model.AppointmentStatusConfirmed:
		if from != model.AppointmentStatusPending || actor.IsClient() {
			return apperror.ErrInvalidStatusTransition
		}
	case model.AppointmentStatusCancelled:
		if actor.IsClient() && from == model.AppointmentStatusConfirmed &&
			appt.StartTime.Sub(now) < s.cancelCutoff {
			return apperror.ErrInvalidStatusTransition
		}
	default:
		// назад в pending статусом не переводят, только переносом
		return apperror.ErrInvalidStatusTransition
	}
	return nil
}

func (s *Service) afterTransition(
	ctx context.Context,
	biz *model.Business,
	appt *model.Appointment,
	fromStatus model.AppointmentStatus,
	oldStart time.Time,
	cmd TransitionCommand,
	raw string,
) {
	details := map[string]any{
		"actor":       cmd.Actor.label(),
		"from_status": fromStatus,
		"to_status":   appt.Status,
	}

	var (
		action model.AuditAction
		kind   notify.Kind
	)
	switch {
	case cmd.isReschedule():
		action, kind = model.AuditActionAppointmentRescheduled, notify.KindRescheduled
		details["old_start_time"] = oldStart
		details["new_start_time"] = appt.StartTime
		s.invalidateDay(ctx, biz, oldStart)
		s.invalidateDay(ctx, biz, appt.StartTime)
	case appt.Status == model.AppointmentStatusCancelled:
		action, kind = model.AuditActionAppointmentCancelled, notify.KindCancelled
		s.invalidateDay(ctx, biz, appt.StartTime)
	default:
		action, kind = model.AuditActionAppointmentConfirmed, notify.KindConfirmed
	}

	logger.InfoContext(ctx, "appointment transitioned",
		"appointment_id", appt.ID,
		"action", action,
		"actor", cmd.Actor.label(),
		"status", appt.Status,
	)
	s.record(ctx, action, appt, cmd.Actor.userID(), details)
	s.publish(ctx, kind, appt, biz, raw)
}

// invalidateDay сбрасывает кэш дня, чтобы освободившиеся слоты появились сразу.
func (s *Service) invalidateDay(ctx context.Context, biz *model.Business, at time.Time) {
	if s.cache == nil {
		return
	}
	date := model.CivilDate(at.In(biz.Location()))
	if err := s.cache.InvalidateDay(ctx, biz.ID, date); err != nil {
		logger.WarnContext(ctx, "slot cache invalidation failed",
			"business_id", biz.ID,
			"date", model.FormatDate(date),
			"error", err,
		)
	}
}

func (s *Service) record(ctx context.Context, action model.AuditAction, appt *model.Appointment, actor *uuid.UUID, details map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, audit.Entry{
		Action:      action,
		Entity:      "appointment",
		EntityID:    appt.ID,
		ActorUserID: actor,
		Details:     details,
	})
}

func (s *Service) publish(ctx context.Context, kind notify.Kind, appt *model.Appointment, biz *model.Business, raw string) {
	n := notify.New(kind, appt, biz, raw, s.now())
	if raw != "" {
		n.TokenExpiresAt = n.OccurredAt.Add(s.tokenTTL)
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		logger.ErrorContext(ctx, "notification enqueue failed",
			"kind", kind,
			"appointment_id", appt.ID,
			"error", err,
		)
	}
}

// lockKey: строка-замок ресурса на дату.
func lockKey(scope model.Scope, date datatypes.Date) string {
	return scope.Key() + "|" + model.FormatDate(date)
}
