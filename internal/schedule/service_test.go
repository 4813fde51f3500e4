package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Leganyst/appointment-booking/internal/apperror"
	"github.com/Leganyst/appointment-booking/internal/audit"
	"github.com/Leganyst/appointment-booking/internal/auth"
	"github.com/Leganyst/appointment-booking/internal/availability"
	"github.com/Leganyst/appointment-booking/internal/db"
	"github.com/Leganyst/appointment-booking/internal/model"
	"github.com/Leganyst/appointment-booking/internal/repository"
	"github.com/Leganyst/appointment-booking/internal/testutil"
)

// 2025-07-07: понедельник.
var monday = datatypes.Date(time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC))

type harness struct {
	db        *gorm.DB
	fx        testutil.Fixture
	owner     *auth.Context
	engine    *availability.Engine
	cache     *repository.GormSlotCacheRepository
	refresher *availability.Refresher
	audit     *audit.Memory
	svc       *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	gdb := testutil.OpenDB(t)
	clock := testutil.NewClock(time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC))
	fx := testutil.SeedBusiness(t, gdb, "acme", "UTC")

	businesses := repository.NewGormBusinessRepository(gdb)
	rules := repository.NewGormScheduleRepository(gdb)
	exceptions := repository.NewGormExceptionRepository(gdb)
	cache := repository.NewGormSlotCacheRepository(gdb)
	tx := db.NewTxRunner(gdb)
	engine := availability.NewEngine(businesses, rules, exceptions, repository.NewGormAppointmentRepository(gdb), 30)
	sink := &audit.Memory{}

	return &harness{
		db:        gdb,
		fx:        fx,
		owner:     &auth.Context{UserID: fx.OwnerID, BusinessID: fx.Business.ID, IsBusinessOwner: true},
		engine:    engine,
		cache:     cache,
		refresher: availability.NewRefresher(businesses, engine, cache, tx, 14, clock.Now),
		audit:     sink,
		svc: NewService(Deps{
			Tx:         tx,
			Engine:     engine,
			Businesses: businesses,
			Rules:      rules,
			Exceptions: exceptions,
			Cache:      cache,
			Audit:      sink,
		}, 30, clock.Now),
	}
}

func tod(t *testing.T, s string) datatypes.Time {
	t.Helper()
	v, err := ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("ParseTimeOfDay(%q): %v", s, err)
	}
	return v
}

func (h *harness) rule(t *testing.T, scope model.Scope, day time.Weekday, from, to string, minutes int) RuleInput {
	return RuleInput{
		Scope:               scope,
		DayOfWeek:           int(day),
		StartTime:           tod(t, from),
		EndTime:             tod(t, to),
		SlotDurationMinutes: minutes,
	}
}

func (h *harness) countSlots(t *testing.T, scope model.Scope) int {
	t.Helper()
	slots, err := h.engine.ComputeSlots(testutil.Ctx(t), availability.Query{Scope: scope, Date: monday})
	if err != nil {
		t.Fatalf("ComputeSlots: %v", err)
	}
	return len(slots)
}

func TestTimeOfDay_RoundTrip(t *testing.T) {
	for _, s := range []string{"00:00", "09:05", "17:30", "23:55"} {
		v, err := ParseTimeOfDay(s)
		if err != nil {
			t.Fatalf("ParseTimeOfDay(%q): %v", s, err)
		}
		if got := FormatTimeOfDay(v); got != s {
			t.Fatalf("FormatTimeOfDay = %q, want %q", got, s)
		}
	}
	for _, s := range []string{"", "9", "25:00", "09:60", "nine"} {
		if _, err := ParseTimeOfDay(s); err == nil {
			t.Fatalf("expected error for %q", s)
		}
	}
}

func TestOnboard_SeedsDefaultWeek(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.Ctx(t)

	biz, err := h.svc.Onboard(ctx, BusinessInput{Name: "Barber", Slug: "Barber-Shop", Timezone: "UTC", OwnerUserID: uuid.New()})
	if err != nil {
		t.Fatalf("Onboard: %v", err)
	}
	if biz.Slug != "barber-shop" {
		t.Fatalf("slug must be normalised, got %q", biz.Slug)
	}

	ac := &auth.Context{UserID: biz.OwnerUserID, BusinessID: biz.ID, IsBusinessOwner: true}
	rules, err := h.svc.ListRules(ctx, ac, biz.ID)
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(rules) != 5 {
		t.Fatalf("expected 5 default rules, got %d", len(rules))
	}
	if n := h.countSlots(t, model.Scope{BusinessID: biz.ID}); n != 16 {
		t.Fatalf("expected 16 slots on Monday, got %d", n)
	}
}

func TestOnboard_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.Ctx(t)

	cases := []struct {
		name  string
		in    BusinessInput
		field string
	}{
		{"no name", BusinessInput{Slug: "x-shop", OwnerUserID: uuid.New()}, "name"},
		{"bad slug", BusinessInput{Name: "X", Slug: "no spaces", OwnerUserID: uuid.New()}, "slug"},
		{"bad timezone", BusinessInput{Name: "X", Slug: "x-shop", Timezone: "Mars/Olympus", OwnerUserID: uuid.New()}, "timezone"},
		{"no owner", BusinessInput{Name: "X", Slug: "x-shop"}, "owner_user_id"},
		{"taken slug", BusinessInput{Name: "X", Slug: "acme", OwnerUserID: uuid.New()}, "slug"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.Onboard(ctx, tc.in)
			var ae *apperror.Error
			if !errors.As(err, &ae) || ae.Code != apperror.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if _, ok := ae.Fields[tc.field]; !ok {
				t.Fatalf("expected field %q in %v", tc.field, ae.Fields)
			}
		})
	}
}

func TestCreateRule_Overlap(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.Ctx(t)
	biz := model.Scope{BusinessID: h.fx.Business.ID}

	// Пересекается с 09:00–17:00 из фикстуры.
	if _, err := h.svc.CreateRule(ctx, h.owner, h.rule(t, biz, time.Monday, "16:00", "18:00", 30)); !errors.Is(err, apperror.ErrOverlappingSchedule) {
		t.Fatalf("expected ErrOverlappingSchedule, got %v", err)
	}
	if _, err := h.svc.CreateRule(ctx, h.owner, h.rule(t, biz, time.Monday, "08:00", "20:00", 30)); !errors.Is(err, apperror.ErrOverlappingSchedule) {
		t.Fatalf("enclosing window: expected ErrOverlappingSchedule, got %v", err)
	}

	// Смежное окно допустимо.
	if _, err := h.svc.CreateRule(ctx, h.owner, h.rule(t, biz, time.Monday, "17:00", "19:00", 60)); err != nil {
		t.Fatalf("adjacent window: %v", err)
	}
	if n := h.countSlots(t, biz); n != 18 {
		t.Fatalf("expected 16+2 slots, got %d", n)
	}

	// У сотрудника своё расписание, пересечение с бизнесом не считается.
	w := testutil.SeedWorker(t, h.db, h.fx.Business.ID, "Ann")
	ws := model.Scope{BusinessID: h.fx.Business.ID, WorkerID: &w.ID}
	if _, err := h.svc.CreateRule(ctx, h.owner, h.rule(t, ws, time.Monday, "09:00", "17:00", 60)); err != nil {
		t.Fatalf("worker rule: %v", err)
	}
	if _, err := h.svc.CreateRule(ctx, h.owner, h.rule(t, ws, time.Monday, "12:00", "13:00", 60)); !errors.Is(err, apperror.ErrOverlappingSchedule) {
		t.Fatalf("worker overlap: expected ErrOverlappingSchedule, got %v", err)
	}
}

func TestCreateRule_WorkerScopeIncludesBranch(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.Ctx(t)
	branch, w := testutil.SeedBranchWorker(t, h.db, h.fx.Business.ID, "Center", "Ann")

	workerOnly := model.Scope{BusinessID: h.fx.Business.ID, WorkerID: &w.ID}
	rule, err := h.svc.CreateRule(ctx, h.owner, h.rule(t, workerOnly, time.Monday, "09:00", "17:00", 30))
	if err != nil {
		t.Fatalf("worker rule: %v", err)
	}
	if rule.BranchID == nil || *rule.BranchID != branch.ID {
		t.Fatalf("rule must be stored with the worker's branch, got %v", rule.BranchID)
	}

	// Тот же сотрудник, адресованный вместе с филиалом, это тот же ресурс.
	full := model.Scope{BusinessID: h.fx.Business.ID, BranchID: &branch.ID, WorkerID: &w.ID}
	if _, err := h.svc.CreateRule(ctx, h.owner, h.rule(t, full, time.Monday, "09:00", "17:00", 30)); !errors.Is(err, apperror.ErrOverlappingSchedule) {
		t.Fatalf("branch+worker alias: expected ErrOverlappingSchedule, got %v", err)
	}
	if n := h.countSlots(t, workerOnly); n != 16 {
		t.Fatalf("worker must have 16 slots, got %d", n)
	}

	// Закрытие филиала закрывает и сотрудника.
	if _, err := h.svc.CreateException(ctx, h.owner, ExceptionInput{
		Scope:    model.Scope{BusinessID: h.fx.Business.ID, BranchID: &branch.ID},
		Date:     monday,
		IsClosed: true,
	}); err != nil {
		t.Fatalf("branch closure: %v", err)
	}
	if n := h.countSlots(t, workerOnly); n != 0 {
		t.Fatalf("branch closure must close the worker, got %d slots", n)
	}

	// Исключение сотрудника без филиала совпадает с исключением с филиалом.
	if _, err := h.svc.CreateException(ctx, h.owner, ExceptionInput{Scope: workerOnly, Date: monday, IsClosed: true}); err != nil {
		t.Fatalf("worker exception: %v", err)
	}
	if _, err := h.svc.CreateException(ctx, h.owner, ExceptionInput{Scope: full, Date: monday, IsClosed: true}); !errors.Is(err, apperror.ErrExceptionExists) {
		t.Fatalf("alias exception: expected ErrExceptionExists, got %v", err)
	}
}

func TestCreateRule_UnknownWorker(t *testing.T) {
	h := newHarness(t)
	missing := uuid.New()
	in := h.rule(t, model.Scope{BusinessID: h.fx.Business.ID, WorkerID: &missing}, time.Monday, "09:00", "10:00", 30)

	_, err := h.svc.CreateRule(testutil.Ctx(t), h.owner, in)
	if apperror.From(err).Kind != apperror.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateRule_Validation(t *testing.T) {
	h := newHarness(t)
	biz := model.Scope{BusinessID: h.fx.Business.ID}

	cases := []struct {
		name  string
		in    RuleInput
		field string
	}{
		{"day out of range", h.rule(t, biz, 7, "09:00", "10:00", 30), "day_of_week"},
		{"end before start", h.rule(t, biz, time.Saturday, "12:00", "10:00", 30), "end_time"},
		{"empty window", h.rule(t, biz, time.Saturday, "10:00", "10:00", 30), "end_time"},
		{"too short slot", h.rule(t, biz, time.Saturday, "10:00", "12:00", 0), "slot_duration_minutes"},
		{"too long slot", h.rule(t, biz, time.Saturday, "08:00", "18:00", 125), "slot_duration_minutes"},
		{"not a step of five", h.rule(t, biz, time.Saturday, "10:00", "12:00", 33), "slot_duration_minutes"},
		{"slot longer than window", h.rule(t, biz, time.Saturday, "10:00", "10:30", 60), "slot_duration_minutes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.CreateRule(testutil.Ctx(t), h.owner, tc.in)
			var ae *apperror.Error
			if !errors.As(err, &ae) || ae.Code != apperror.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if _, ok := ae.Fields[tc.field]; !ok {
				t.Fatalf("expected field %q in %v", tc.field, ae.Fields)
			}
		})
	}
}

func TestRules_Authorization(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.Ctx(t)
	in := h.rule(t, model.Scope{BusinessID: h.fx.Business.ID}, time.Saturday, "10:00", "12:00", 30)

	if _, err := h.svc.CreateRule(ctx, nil, in); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Fatalf("anonymous: expected ErrUnauthorized, got %v", err)
	}
	stranger := &auth.Context{UserID: uuid.New(), BusinessID: uuid.New(), IsBusinessOwner: true}
	if _, err := h.svc.CreateRule(ctx, stranger, in); !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("stranger: expected ErrForbidden, got %v", err)
	}
	if _, err := h.svc.ListRules(ctx, stranger, h.fx.Business.ID); !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("stranger list: expected ErrForbidden, got %v", err)
	}

	rules, err := h.svc.ListRules(ctx, h.owner, h.fx.Business.ID)
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if err := h.svc.DeleteRule(ctx, stranger, rules[0].ID); !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("stranger delete: expected ErrForbidden, got %v", err)
	}
}

func TestUpdateRule(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.Ctx(t)
	biz := model.Scope{BusinessID: h.fx.Business.ID}

	rules, err := h.svc.ListRules(ctx, h.owner, h.fx.Business.ID)
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	var mon, tue model.ScheduleRule
	for _, r := range rules {
		switch time.Weekday(r.DayOfWeek) {
		case time.Monday:
			mon = r
		case time.Tuesday:
			tue = r
		}
	}

	// Сдвиг внутри своего же окна не считается пересечением с самим собой.
	updated, err := h.svc.UpdateRule(ctx, h.owner, mon.ID, h.rule(t, biz, time.Monday, "10:00", "14:00", 60))
	if err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
	if updated.SlotDurationMinutes != 60 || FormatTimeOfDay(updated.StartTime) != "10:00" {
		t.Fatalf("unexpected rule after update: %+v", updated)
	}
	if n := h.countSlots(t, biz); n != 4 {
		t.Fatalf("expected 4 hourly slots, got %d", n)
	}

	// Перенос вторника на понедельник упирается в понедельничное окно.
	if _, err := h.svc.UpdateRule(ctx, h.owner, tue.ID, h.rule(t, biz, time.Monday, "13:00", "15:00", 30)); !errors.Is(err, apperror.ErrOverlappingSchedule) {
		t.Fatalf("expected ErrOverlappingSchedule, got %v", err)
	}

	if _, err := h.svc.UpdateRule(ctx, h.owner, uuid.New(), h.rule(t, biz, time.Monday, "10:00", "11:00", 30)); apperror.From(err).Kind != apperror.KindNotFound {
		t.Fatalf("unknown rule: expected not found, got %v", err)
	}
}

func TestDeleteRule_InvalidatesCache(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.Ctx(t)

	if _, err := h.refresher.RefreshDay(ctx, h.fx.Business, monday); err != nil {
		t.Fatalf("RefreshDay: %v", err)
	}
	if _, err := h.cache.GetDay(ctx, h.fx.Business.ID, monday); err != nil {
		t.Fatalf("expected cached day: %v", err)
	}

	rules, err := h.svc.ListRules(ctx, h.owner, h.fx.Business.ID)
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	for _, r := range rules {
		if time.Weekday(r.DayOfWeek) == time.Monday {
			if err := h.svc.DeleteRule(ctx, h.owner, r.ID); err != nil {
				t.Fatalf("DeleteRule: %v", err)
			}
		}
	}

	if _, err := h.cache.GetDay(ctx, h.fx.Business.ID, monday); err == nil {
		t.Fatalf("cached day must be invalidated after a rule change")
	}
	if n := h.countSlots(t, model.Scope{BusinessID: h.fx.Business.ID}); n != 0 {
		t.Fatalf("expected no Monday slots, got %d", n)
	}

	entries := h.audit.Entries()
	if len(entries) != 1 || entries[0].Action != model.AuditActionScheduleChanged || entries[0].Details["op"] != "deleted" {
		t.Fatalf("unexpected audit entries: %+v", entries)
	}
}

func TestExceptions(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.Ctx(t)
	biz := model.Scope{BusinessID: h.fx.Business.ID}

	if _, err := h.refresher.RefreshDay(ctx, h.fx.Business, monday); err != nil {
		t.Fatalf("RefreshDay: %v", err)
	}

	from, to := tod(t, "10:00"), tod(t, "12:00")
	ex, err := h.svc.CreateException(ctx, h.owner, ExceptionInput{Scope: biz, Date: monday, StartTime: &from, EndTime: &to})
	if err != nil {
		t.Fatalf("CreateException: %v", err)
	}
	if _, err := h.cache.GetDay(ctx, h.fx.Business.ID, monday); err == nil {
		t.Fatalf("cached day must be invalidated after an exception")
	}
	if n := h.countSlots(t, biz); n != 4 {
		t.Fatalf("custom window 10–12 must give 4 slots, got %d", n)
	}

	if _, err := h.svc.CreateException(ctx, h.owner, ExceptionInput{Scope: biz, Date: monday, IsClosed: true}); !errors.Is(err, apperror.ErrExceptionExists) {
		t.Fatalf("expected ErrExceptionExists, got %v", err)
	}

	// Исключение сотрудника на ту же дату: другой ресурс.
	w := testutil.SeedWorker(t, h.db, h.fx.Business.ID, "Ann")
	if _, err := h.svc.CreateException(ctx, h.owner, ExceptionInput{
		Scope:    model.Scope{BusinessID: h.fx.Business.ID, WorkerID: &w.ID},
		Date:     monday,
		IsClosed: true,
	}); err != nil {
		t.Fatalf("worker exception: %v", err)
	}

	list, err := h.svc.ListExceptions(ctx, h.owner, h.fx.Business.ID, monday)
	if err != nil {
		t.Fatalf("ListExceptions: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 exceptions, got %d", len(list))
	}

	if err := h.svc.DeleteException(ctx, h.owner, ex.ID); err != nil {
		t.Fatalf("DeleteException: %v", err)
	}
	if n := h.countSlots(t, biz); n != 16 {
		t.Fatalf("expected regular 16 slots after delete, got %d", n)
	}
	if err := h.svc.DeleteException(ctx, h.owner, ex.ID); apperror.From(err).Kind != apperror.KindNotFound {
		t.Fatalf("second delete: expected not found, got %v", err)
	}
}

func TestCreateException_Validation(t *testing.T) {
	h := newHarness(t)
	biz := model.Scope{BusinessID: h.fx.Business.ID}
	from, to := tod(t, "12:00"), tod(t, "10:00")

	cases := []struct {
		name  string
		in    ExceptionInput
		field string
	}{
		{"no date", ExceptionInput{Scope: biz, IsClosed: true}, "date"},
		{"window without bounds", ExceptionInput{Scope: biz, Date: monday}, "start_time"},
		{"inverted window", ExceptionInput{Scope: biz, Date: monday, StartTime: &from, EndTime: &to}, "end_time"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.CreateException(testutil.Ctx(t), h.owner, tc.in)
			var ae *apperror.Error
			if !errors.As(err, &ae) || ae.Code != apperror.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if _, ok := ae.Fields[tc.field]; !ok {
				t.Fatalf("expected field %q in %v", tc.field, ae.Fields)
			}
		})
	}
}
