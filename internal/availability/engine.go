// Package availability превращает недельное расписание, исключения и записи
// в упорядоченный список свободных слотов и поддерживает кэш этих слотов.
package availability

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Leganyst/appointment-booking/internal/apperror"
	"github.com/Leganyst/appointment-booking/internal/calendar"
	"github.com/Leganyst/appointment-booking/internal/logger"
	"github.com/Leganyst/appointment-booking/internal/model"
	"github.com/Leganyst/appointment-booking/internal/repository"
)

// Slot: свободный интервал конкретного ресурса. Время в UTC.
type Slot struct {
	BusinessID uuid.UUID
	BranchID   *uuid.UUID
	WorkerID   *uuid.UUID
	WorkerName string
	StartTime  time.Time
	EndTime    time.Time
}

func (s Slot) Scope() model.Scope {
	return model.Scope{BusinessID: s.BusinessID, BranchID: s.BranchID, WorkerID: s.WorkerID}
}

// Query: параметры расчёта слотов.
type Query struct {
	// Фильтр ресурсов; пустые branch/worker: любые.
	Scope model.Scope
	// Календарная дата в таймзоне бизнеса.
	Date datatypes.Date
	// Запись, которую не считать занятостью (перенос самой себя).
	ExcludeAppointmentID *uuid.UUID
	// IncludeBooked: не вычитать записи. Так проверяется, что интервал вообще
	// является слотом расписания, а занятость проверяется уже под блокировкой.
	IncludeBooked bool
}

type Engine struct {
	businesses   repository.BusinessRepository
	schedules    repository.ScheduleRepository
	exceptions   repository.ExceptionRepository
	appointments repository.AppointmentRepository

	defaultSlot time.Duration
}

func NewEngine(
	businesses repository.BusinessRepository,
	schedules repository.ScheduleRepository,
	exceptions repository.ExceptionRepository,
	appointments repository.AppointmentRepository,
	defaultSlotMinutes int,
) *Engine {
	if defaultSlotMinutes <= 0 {
		defaultSlotMinutes = 30
	}
	return &Engine{
		businesses:   businesses,
		schedules:    schedules,
		exceptions:   exceptions,
		appointments: appointments,
		defaultSlot:  time.Duration(defaultSlotMinutes) * time.Minute,
	}
}

// resource: один бронируемый ресурс дня и его правила.
type resource struct {
	scope model.Scope
	rules []model.ScheduleRule
}

// ResolveScope проверяет, что бизнес, филиал и сотрудник существуют и связаны.
func (e *Engine) ResolveScope(ctx context.Context, scope model.Scope) (*model.Business, error) {
	_, biz, err := e.CanonicalScope(ctx, scope)
	return biz, err
}

// CanonicalScope проверяет ресурс как ResolveScope и дополняет сотрудника
// его филиалом: у одного сотрудника ровно один scope_key.
func (e *Engine) CanonicalScope(ctx context.Context, scope model.Scope) (model.Scope, *model.Business, error) {
	biz, err := e.businesses.GetByID(ctx, scope.BusinessID)
	if err != nil {
		return model.Scope{}, nil, notFoundOr(err, "business", "load business")
	}
	if scope.BranchID != nil {
		if _, err := e.businesses.GetBranch(ctx, biz.ID, *scope.BranchID); err != nil {
			return model.Scope{}, nil, notFoundOr(err, "branch", "load branch")
		}
	}
	if scope.WorkerID != nil {
		w, err := e.businesses.GetWorker(ctx, biz.ID, *scope.WorkerID)
		if err != nil {
			return model.Scope{}, nil, notFoundOr(err, "worker", "load worker")
		}
		if scope.BranchID != nil && (w.BranchID == nil || *w.BranchID != *scope.BranchID) {
			return model.Scope{}, nil, apperror.NotFound("worker")
		}
		scope.BranchID = nil
		if w.BranchID != nil {
			branch := *w.BranchID
			scope.BranchID = &branch
		}
	}
	return scope, biz, nil
}

// ComputeSlots считает слоты на дату для всех ресурсов, подходящих под q.Scope.
func (e *Engine) ComputeSlots(ctx context.Context, q Query) ([]Slot, error) {
	biz, err := e.ResolveScope(ctx, q.Scope)
	if err != nil {
		return nil, err
	}
	return e.computeForBusiness(ctx, biz, q)
}

func (e *Engine) computeForBusiness(ctx context.Context, biz *model.Business, q Query) ([]Slot, error) {
	loc := biz.Location()
	weekday := int(time.Time(q.Date).Weekday())

	rules, err := e.schedules.ListForDay(ctx, q.Scope, weekday)
	if err != nil {
		return nil, apperror.Transient("load schedule rules", err)
	}
	exceptions, err := e.exceptions.ListByBusinessDate(ctx, biz.ID, q.Date)
	if err != nil {
		return nil, apperror.Transient("load exception rules", err)
	}

	resources := collectResources(q.Scope, rules, exceptions)
	if len(resources) == 0 {
		return []Slot{}, nil
	}

	var busy []model.Appointment
	if !q.IncludeBooked {
		day := calendar.DayBounds(q.Date, loc)
		busy, err = e.appointments.ListActiveByBusinessRange(ctx, biz.ID, day.Start, day.End)
		if err != nil {
			return nil, apperror.Transient("load appointments", err)
		}
	}

	names, err := e.workerNames(ctx, biz.ID, resources)
	if err != nil {
		return nil, err
	}

	var out []Slot
	seen := make(map[string]struct{})
	for _, res := range resources {
		windows := e.windowsFor(ctx, res, exceptions, q.Date, loc)

		var taken []calendar.TimeRange
		for _, a := range busy {
			if !a.Scope().SameResource(res.scope) {
				continue
			}
			if q.ExcludeAppointmentID != nil && a.ID == *q.ExcludeAppointmentID {
				continue
			}
			taken = append(taken, calendar.TimeRange{Start: a.StartTime, End: a.EndTime})
		}

		for _, w := range windows {
			parts, err := calendar.SplitToTimeSlots(w.rng, w.step)
			if err != nil {
				continue
			}
			for _, p := range parts {
				if has, _ := calendar.HasOverlap(p, taken, false); has {
					continue
				}
				key := res.scope.Key() + "|" + p.Start.UTC().Format(time.RFC3339) + "|" + p.End.UTC().Format(time.RFC3339)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}

				s := Slot{
					BusinessID: biz.ID,
					BranchID:   res.scope.BranchID,
					WorkerID:   res.scope.WorkerID,
					StartTime:  p.Start.UTC(),
					EndTime:    p.End.UTC(),
				}
				if s.WorkerID != nil {
					s.WorkerName = names[*s.WorkerID]
				}
				out = append(out, s)
			}
		}
	}

	SortSlots(out)
	if out == nil {
		out = []Slot{}
	}
	return out, nil
}

type window struct {
	rng  calendar.TimeRange
	step time.Duration
}

// windowsFor возвращает рабочие окна ресурса на дату с учётом исключения.
func (e *Engine) windowsFor(
	ctx context.Context,
	res resource,
	exceptions []model.ExceptionRule,
	date datatypes.Date,
	loc *time.Location,
) []window {
	ex := pickException(res.scope, exceptions)

	if ex != nil && ex.IsClosed {
		return nil
	}

	if ex != nil {
		// Особое окно заменяет расписание дня целиком.
		if ex.StartTime == nil || ex.EndTime == nil || *ex.StartTime >= *ex.EndTime {
			logger.WarnContext(ctx, "skipping malformed exception rule",
				"exception_id", ex.ID,
				"scope", ex.ScopeKey,
			)
			return nil
		}
		step := e.defaultSlot
		if d := shortestDuration(res.rules); d > 0 {
			step = d
		}
		return []window{{rng: calendar.WindowOn(date, loc, *ex.StartTime, *ex.EndTime), step: step}}
	}

	var out []window
	for _, r := range res.rules {
		if !validRule(r) {
			logger.WarnContext(ctx, "skipping malformed schedule rule",
				"rule_id", r.ID,
				"scope", r.ScopeKey,
				"start", r.StartTime.String(),
				"end", r.EndTime.String(),
				"slot_minutes", r.SlotDurationMinutes,
			)
			continue
		}
		out = append(out, window{
			rng:  calendar.WindowOn(date, loc, r.StartTime, r.EndTime),
			step: r.SlotDuration(),
		})
	}
	return out
}

func (e *Engine) workerNames(ctx context.Context, businessID uuid.UUID, resources []resource) (map[uuid.UUID]string, error) {
	names := make(map[uuid.UUID]string)
	needed := false
	for _, r := range resources {
		if r.scope.WorkerID != nil {
			needed = true
			break
		}
	}
	if !needed {
		return names, nil
	}
	workers, err := e.businesses.ListWorkers(ctx, businessID)
	if err != nil {
		return nil, apperror.Transient("load workers", err)
	}
	for _, w := range workers {
		names[w.ID] = w.Name
	}
	return names, nil
}

// collectResources: ресурсы дня: скоупы правил плюс скоупы особых окон,
// которые не накрывают ни один ресурс из правил (например, работа в выходной).
func collectResources(filter model.Scope, rules []model.ScheduleRule, exceptions []model.ExceptionRule) []resource {
	byKey := make(map[string]*resource)
	var order []string

	for _, r := range rules {
		key := r.Scope().Key()
		res, ok := byKey[key]
		if !ok {
			res = &resource{scope: r.Scope()}
			byKey[key] = res
			order = append(order, key)
		}
		res.rules = append(res.rules, r)
	}

	custom := make([]model.ExceptionRule, 0, len(exceptions))
	for _, ex := range exceptions {
		if !ex.IsClosed && filter.Matches(ex.Scope()) {
			custom = append(custom, ex)
		}
	}
	// Сначала самые узкие: иначе широкое окно породит лишний ресурс уровня бизнеса.
	sort.SliceStable(custom, func(i, j int) bool {
		return custom[i].Scope().Specificity() > custom[j].Scope().Specificity()
	})
	for _, ex := range custom {
		scope := ex.Scope()
		covered := false
		for _, key := range order {
			if scope.AppliesTo(byKey[key].scope) {
				covered = true
				break
			}
		}
		if covered {
			continue
		}
		key := scope.Key()
		byKey[key] = &resource{scope: scope}
		order = append(order, key)
	}

	out := make([]resource, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	return out
}

// pickException выбирает самое узкое исключение, действующее на ресурс.
func pickException(res model.Scope, exceptions []model.ExceptionRule) *model.ExceptionRule {
	var best *model.ExceptionRule
	for i := range exceptions {
		ex := &exceptions[i]
		if !ex.Scope().AppliesTo(res) {
			continue
		}
		if best == nil || ex.Scope().Specificity() > best.Scope().Specificity() {
			best = ex
		}
	}
	return best
}

func validRule(r model.ScheduleRule) bool {
	return r.StartTime < r.EndTime && r.SlotDurationMinutes > 0
}

func shortestDuration(rules []model.ScheduleRule) time.Duration {
	var min time.Duration
	for _, r := range rules {
		if !validRule(r) {
			continue
		}
		if d := r.SlotDuration(); min == 0 || d < min {
			min = d
		}
	}
	return min
}

// SortSlots: по началу, затем по сотруднику (без сотрудника: первыми).
func SortSlots(slots []Slot) {
	sort.SliceStable(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		if c := compareOptID(a.WorkerID, b.WorkerID); c != 0 {
			return c < 0
		}
		if c := compareOptID(a.BranchID, b.BranchID); c != 0 {
			return c < 0
		}
		return a.EndTime.Before(b.EndTime)
	})
}

func compareOptID(a, b *uuid.UUID) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return strings.Compare(a.String(), b.String())
	}
}

func notFoundOr(err error, entity, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound(entity)
	}
	return apperror.Transient(op, err)
}
