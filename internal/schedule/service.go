// Package schedule: управление недельным расписанием и исключениями владельцем бизнеса.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Leganyst/appointment-booking/internal/apperror"
	"github.com/Leganyst/appointment-booking/internal/audit"
	"github.com/Leganyst/appointment-booking/internal/auth"
	"github.com/Leganyst/appointment-booking/internal/availability"
	"github.com/Leganyst/appointment-booking/internal/db"
	"github.com/Leganyst/appointment-booking/internal/logger"
	"github.com/Leganyst/appointment-booking/internal/model"
	"github.com/Leganyst/appointment-booking/internal/repository"
)

const (
	minSlotMinutes  = 5
	maxSlotMinutes  = 120
	slotStepMinutes = 5
)

var slugRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}$`)

// RuleInput: окно работы ресурса в день недели.
type RuleInput struct {
	Scope               model.Scope
	DayOfWeek           int
	StartTime           datatypes.Time
	EndTime             datatypes.Time
	SlotDurationMinutes int
}

// ExceptionInput: закрытие (IsClosed) или особое окно на дату.
type ExceptionInput struct {
	Scope     model.Scope
	Date      datatypes.Date
	IsClosed  bool
	StartTime *datatypes.Time
	EndTime   *datatypes.Time
}

// BusinessInput: данные для онбординга.
type BusinessInput struct {
	Name        string
	Slug        string
	Timezone    string
	OwnerUserID uuid.UUID
}

type Deps struct {
	Tx         db.TxRunner
	Engine     *availability.Engine
	Businesses repository.BusinessRepository
	Rules      repository.ScheduleRepository
	Exceptions repository.ExceptionRepository
	Cache      repository.SlotCacheRepository
	Audit      audit.Sink
}

type Service struct {
	tx         db.TxRunner
	engine     *availability.Engine
	businesses repository.BusinessRepository
	rules      repository.ScheduleRepository
	exceptions repository.ExceptionRepository
	cache      repository.SlotCacheRepository
	audit      audit.Sink

	defaultSlotMinutes int
	now                func() time.Time
}

func NewService(d Deps, defaultSlotMinutes int, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	if defaultSlotMinutes <= 0 {
		defaultSlotMinutes = 30
	}
	sink := d.Audit
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Service{
		tx:                 d.Tx,
		engine:             d.Engine,
		businesses:         d.Businesses,
		rules:              d.Rules,
		exceptions:         d.Exceptions,
		cache:              d.Cache,
		audit:              sink,
		defaultSlotMinutes: defaultSlotMinutes,
		now:                now,
	}
}

// ParseTimeOfDay разбирает "HH:MM".
func ParseTimeOfDay(s string) (datatypes.Time, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q, expected HH:MM", s)
	}
	return model.TimeOfDay(t.Hour(), t.Minute()), nil
}

// FormatTimeOfDay: обратное к ParseTimeOfDay.
func FormatTimeOfDay(t datatypes.Time) string {
	d := time.Duration(t)
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

// Onboard создаёт бизнес и заполняет дефолтное расписание Пн–Пт 09:00–17:00.
func (s *Service) Onboard(ctx context.Context, in BusinessInput) (*model.Business, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	in.Timezone = strings.TrimSpace(in.Timezone)
	if in.Timezone == "" {
		in.Timezone = "UTC"
	}

	fields := map[string]string{}
	if in.Name == "" {
		fields["name"] = "required"
	}
	if !slugRe.MatchString(in.Slug) {
		fields["slug"] = "lowercase letters, digits and dashes"
	}
	if _, err := time.LoadLocation(in.Timezone); err != nil {
		fields["timezone"] = "unknown IANA timezone"
	}
	if in.OwnerUserID == uuid.Nil {
		fields["owner_user_id"] = "required"
	}
	if len(fields) > 0 {
		return nil, apperror.Validation("invalid business", fields)
	}

	biz := &model.Business{
		Name:        in.Name,
		Slug:        in.Slug,
		Timezone:    in.Timezone,
		OwnerUserID: in.OwnerUserID,
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.businesses.Create(ctx, biz); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperror.Validation("invalid business", map[string]string{"slug": "already taken"})
			}
			return apperror.Transient("create business", err)
		}
		return s.SeedDefaults(ctx, biz)
	})
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "business onboarded", "business_id", biz.ID, "slug", biz.Slug)
	return biz, nil
}

// SeedDefaults добавляет правила Пн–Пт 09:00–17:00 уровня бизнеса.
func (s *Service) SeedDefaults(ctx context.Context, biz *model.Business) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		for day := time.Monday; day <= time.Friday; day++ {
			rule := &model.ScheduleRule{
				BusinessID:          biz.ID,
				DayOfWeek:           int(day),
				StartTime:           model.TimeOfDay(9, 0),
				EndTime:             model.TimeOfDay(17, 0),
				SlotDurationMinutes: s.defaultSlotMinutes,
			}
			if err := s.rules.Create(ctx, rule); err != nil {
				return apperror.Transient("seed schedule", err)
			}
		}
		return nil
	})
}

func (s *Service) ListRules(ctx context.Context, ac *auth.Context, businessID uuid.UUID) ([]model.ScheduleRule, error) {
	if err := auth.RequireOwner(ac, businessID); err != nil {
		return nil, err
	}
	rules, err := s.rules.ListByBusiness(ctx, businessID)
	if err != nil {
		return nil, apperror.Transient("list schedule rules", err)
	}
	return rules, nil
}

func (s *Service) CreateRule(ctx context.Context, ac *auth.Context, in RuleInput) (*model.ScheduleRule, error) {
	if err := auth.RequireOwner(ac, in.Scope.BusinessID); err != nil {
		return nil, err
	}
	if err := validateRule(in); err != nil {
		return nil, err
	}
	scope, biz, err := s.engine.CanonicalScope(ctx, in.Scope)
	if err != nil {
		return nil, err
	}
	in.Scope = scope

	rule := &model.ScheduleRule{
		BusinessID:          in.Scope.BusinessID,
		BranchID:            in.Scope.BranchID,
		WorkerID:            in.Scope.WorkerID,
		DayOfWeek:           in.DayOfWeek,
		StartTime:           in.StartTime,
		EndTime:             in.EndTime,
		SlotDurationMinutes: in.SlotDurationMinutes,
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.checkOverlap(ctx, rule); err != nil {
			return err
		}
		if err := s.rules.Create(ctx, rule); err != nil {
			return apperror.Transient("create schedule rule", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterRuleChange(ctx, ac, biz, rule, "created")
	return rule, nil
}

// UpdateRule меняет день, окно и длительность. Ресурс правила не меняется.
func (s *Service) UpdateRule(ctx context.Context, ac *auth.Context, id uuid.UUID, in RuleInput) (*model.ScheduleRule, error) {
	if ac == nil {
		return nil, apperror.ErrUnauthorized
	}
	current, err := s.loadRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireOwner(ac, current.BusinessID); err != nil {
		return nil, err
	}
	in.Scope = current.Scope()
	if err := validateRule(in); err != nil {
		return nil, err
	}
	biz, err := s.businesses.GetByID(ctx, current.BusinessID)
	if err != nil {
		return nil, apperror.Transient("load business", err)
	}

	var rule *model.ScheduleRule
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		r, err := s.loadRule(ctx, id)
		if err != nil {
			return err
		}
		r.DayOfWeek = in.DayOfWeek
		r.StartTime = in.StartTime
		r.EndTime = in.EndTime
		r.SlotDurationMinutes = in.SlotDurationMinutes
		if err := s.checkOverlap(ctx, r); err != nil {
			return err
		}
		if err := s.rules.Update(ctx, r); err != nil {
			return apperror.Transient("update schedule rule", err)
		}
		rule = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterRuleChange(ctx, ac, biz, rule, "updated")
	return rule, nil
}

func (s *Service) DeleteRule(ctx context.Context, ac *auth.Context, id uuid.UUID) error {
	if ac == nil {
		return apperror.ErrUnauthorized
	}
	rule, err := s.loadRule(ctx, id)
	if err != nil {
		return err
	}
	if err := auth.RequireOwner(ac, rule.BusinessID); err != nil {
		return err
	}
	biz, err := s.businesses.GetByID(ctx, rule.BusinessID)
	if err != nil {
		return apperror.Transient("load business", err)
	}
	if err := s.rules.Delete(ctx, id); err != nil {
		return apperror.Transient("delete schedule rule", err)
	}

	s.afterRuleChange(ctx, ac, biz, rule, "deleted")
	return nil
}

// ListExceptions: исключения бизнеса начиная с from.
func (s *Service) ListExceptions(
	ctx context.Context,
	ac *auth.Context,
	businessID uuid.UUID,
	from datatypes.Date,
) ([]model.ExceptionRule, error) {
	if err := auth.RequireOwner(ac, businessID); err != nil {
		return nil, err
	}
	out, err := s.exceptions.ListByBusinessFrom(ctx, businessID, from)
	if err != nil {
		return nil, apperror.Transient("list exceptions", err)
	}
	return out, nil
}

// CreateException: на один ресурс и дату допускается одно исключение.
func (s *Service) CreateException(ctx context.Context, ac *auth.Context, in ExceptionInput) (*model.ExceptionRule, error) {
	if err := auth.RequireOwner(ac, in.Scope.BusinessID); err != nil {
		return nil, err
	}
	if err := validateException(in); err != nil {
		return nil, err
	}
	scope, biz, err := s.engine.CanonicalScope(ctx, in.Scope)
	if err != nil {
		return nil, err
	}
	in.Scope = scope

	ex := &model.ExceptionRule{
		BusinessID: in.Scope.BusinessID,
		BranchID:   in.Scope.BranchID,
		WorkerID:   in.Scope.WorkerID,
		Date:       in.Date,
		IsClosed:   in.IsClosed,
	}
	if !in.IsClosed {
		ex.StartTime = in.StartTime
		ex.EndTime = in.EndTime
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		_, err := s.exceptions.GetByResourceDate(ctx, in.Scope, in.Date)
		switch {
		case err == nil:
			return apperror.ErrExceptionExists
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return apperror.Transient("check exception", err)
		}
		if err := s.exceptions.Create(ctx, ex); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperror.ErrExceptionExists
			}
			return apperror.Transient("create exception", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterExceptionChange(ctx, ac, biz, ex, "created")
	return ex, nil
}

func (s *Service) DeleteException(ctx context.Context, ac *auth.Context, id uuid.UUID) error {
	if ac == nil {
		return apperror.ErrUnauthorized
	}
	ex, err := s.exceptions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("exception")
		}
		return apperror.Transient("load exception", err)
	}
	if err := auth.RequireOwner(ac, ex.BusinessID); err != nil {
		return err
	}
	biz, err := s.businesses.GetByID(ctx, ex.BusinessID)
	if err != nil {
		return apperror.Transient("load business", err)
	}
	if err := s.exceptions.Delete(ctx, id); err != nil {
		return apperror.Transient("delete exception", err)
	}

	s.afterExceptionChange(ctx, ac, biz, ex, "deleted")
	return nil
}

func (s *Service) loadRule(ctx context.Context, id uuid.UUID) (*model.ScheduleRule, error) {
	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("schedule rule")
		}
		return nil, apperror.Transient("load schedule rule", err)
	}
	return rule, nil
}

// checkOverlap: окна одного ресурса в один день недели не пересекаются.
// Смежные окна (10:00–12:00 и 12:00–14:00) допустимы.
func (s *Service) checkOverlap(ctx context.Context, rule *model.ScheduleRule) error {
	existing, err := s.rules.ListByResourceDay(ctx, rule.Scope(), rule.DayOfWeek)
	if err != nil {
		return apperror.Transient("list schedule rules", err)
	}
	for _, other := range existing {
		if other.ID == rule.ID {
			continue
		}
		if rule.StartTime < other.EndTime && other.StartTime < rule.EndTime {
			return apperror.ErrOverlappingSchedule
		}
	}
	return nil
}

func (s *Service) afterRuleChange(ctx context.Context, ac *auth.Context, biz *model.Business, rule *model.ScheduleRule, op string) {
	s.invalidateFromToday(ctx, biz)
	actor := ac.UserID
	s.audit.Record(ctx, audit.Entry{
		Action:      model.AuditActionScheduleChanged,
		Entity:      "schedule_rule",
		EntityID:    rule.ID,
		ActorUserID: &actor,
		Details: map[string]any{
			"op":          op,
			"scope":       rule.ScopeKey,
			"day_of_week": rule.DayOfWeek,
			"start":       FormatTimeOfDay(rule.StartTime),
			"end":         FormatTimeOfDay(rule.EndTime),
			"minutes":     rule.SlotDurationMinutes,
		},
	})
	logger.InfoContext(ctx, "schedule rule changed", "op", op, "rule_id", rule.ID, "business_id", biz.ID)
}

func (s *Service) afterExceptionChange(ctx context.Context, ac *auth.Context, biz *model.Business, ex *model.ExceptionRule, op string) {
	if err := s.cache.InvalidateDay(ctx, biz.ID, ex.Date); err != nil {
		logger.WarnContext(ctx, "invalidate slot cache failed",
			"business_id", biz.ID,
			"date", model.FormatDate(ex.Date),
			"error", err,
		)
	}
	actor := ac.UserID
	s.audit.Record(ctx, audit.Entry{
		Action:      model.AuditActionExceptionChanged,
		Entity:      "exception_rule",
		EntityID:    ex.ID,
		ActorUserID: &actor,
		Details: map[string]any{
			"op":        op,
			"scope":     ex.ScopeKey,
			"date":      model.FormatDate(ex.Date),
			"is_closed": ex.IsClosed,
		},
	})
	logger.InfoContext(ctx, "exception changed", "op", op, "exception_id", ex.ID, "business_id", biz.ID)
}

// Недельное правило влияет на все будущие даты.
func (s *Service) invalidateFromToday(ctx context.Context, biz *model.Business) {
	today := model.CivilDate(s.now().In(biz.Location()))
	if err := s.cache.InvalidateFrom(ctx, biz.ID, today); err != nil {
		logger.WarnContext(ctx, "invalidate slot cache failed", "business_id", biz.ID, "error", err)
	}
}

func validateRule(in RuleInput) error {
	fields := map[string]string{}
	if in.Scope.BusinessID == uuid.Nil {
		fields["business_id"] = "required"
	}
	if in.DayOfWeek < 0 || in.DayOfWeek > 6 {
		fields["day_of_week"] = "must be 0..6 (0 = Sunday)"
	}
	if in.StartTime < 0 || in.EndTime > model.TimeOfDay(24, 0) {
		fields["start_time"] = "must be within the day"
	}
	if in.StartTime >= in.EndTime {
		fields["end_time"] = "must be after start_time"
	}
	m := in.SlotDurationMinutes
	if m < minSlotMinutes || m > maxSlotMinutes || m%slotStepMinutes != 0 {
		fields["slot_duration_minutes"] = fmt.Sprintf("must be %d..%d in steps of %d", minSlotMinutes, maxSlotMinutes, slotStepMinutes)
	} else if in.StartTime < in.EndTime && time.Duration(in.EndTime-in.StartTime) < time.Duration(m)*time.Minute {
		fields["slot_duration_minutes"] = "longer than the window"
	}
	if len(fields) > 0 {
		return apperror.Validation("invalid schedule rule", fields)
	}
	return nil
}

func validateException(in ExceptionInput) error {
	fields := map[string]string{}
	if in.Scope.BusinessID == uuid.Nil {
		fields["business_id"] = "required"
	}
	if time.Time(in.Date).IsZero() {
		fields["date"] = "required"
	}
	if !in.IsClosed {
		switch {
		case in.StartTime == nil || in.EndTime == nil:
			fields["start_time"] = "custom window requires start_time and end_time"
		case *in.StartTime >= *in.EndTime:
			fields["end_time"] = "must be after start_time"
		}
	}
	if len(fields) > 0 {
		return apperror.Validation("invalid exception", fields)
	}
	return nil
}
