package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/Leganyst/appointment-booking/internal/availability"
	"github.com/Leganyst/appointment-booking/internal/config"
	"github.com/Leganyst/appointment-booking/internal/db"
	"github.com/Leganyst/appointment-booking/internal/lease"
	"github.com/Leganyst/appointment-booking/internal/model"
	"github.com/Leganyst/appointment-booking/internal/notify"
	"github.com/Leganyst/appointment-booking/internal/repository"
	"github.com/Leganyst/appointment-booking/internal/testutil"
)

type harness struct {
	db       *gorm.DB
	clock    *testutil.Clock
	fx       testutil.Fixture
	notifier *notify.Memory
	jobs     *Jobs
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	gdb := testutil.OpenDB(t)
	// воскресенье, 10:00
	clock := testutil.NewClock(time.Date(2025, 7, 6, 10, 0, 0, 0, time.UTC))
	fx := testutil.SeedBusiness(t, gdb, "acme", "UTC")

	businesses := repository.NewGormBusinessRepository(gdb)
	appointments := repository.NewGormAppointmentRepository(gdb)
	cache := repository.NewGormSlotCacheRepository(gdb)
	engine := availability.NewEngine(businesses,
		repository.NewGormScheduleRepository(gdb),
		repository.NewGormExceptionRepository(gdb),
		appointments, 30)
	notifier := &notify.Memory{}

	jobs := NewJobs(JobsDeps{
		Refresher:    availability.NewRefresher(businesses, engine, cache, db.NewTxRunner(gdb), 7, clock.Now),
		Businesses:   businesses,
		Appointments: appointments,
		Tokens:       repository.NewGormTokenRepository(gdb),
		Locks:        repository.NewGormLockRepository(gdb),
		Notifier:     notifier,
	}, config.JobsConfig{TokenRetention: time.Hour, ReminderLead: 24 * time.Hour}, clock.Now)

	return &harness{db: gdb, clock: clock, fx: fx, notifier: notifier, jobs: jobs}
}

func (h *harness) appointment(t *testing.T, start time.Time, status model.AppointmentStatus) *model.Appointment {
	t.Helper()
	a := &model.Appointment{
		BusinessID:  h.fx.Business.ID,
		ClientName:  "Client",
		ClientEmail: "client@example.com",
		StartTime:   start,
		EndTime:     start.Add(30 * time.Minute),
		Status:      status,
	}
	if err := h.db.Create(a).Error; err != nil {
		t.Fatalf("seed appointment: %v", err)
	}
	return a
}

func TestSendReminders(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.Ctx(t)

	due := h.appointment(t, time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC), model.AppointmentStatusConfirmed)
	h.appointment(t, time.Date(2025, 7, 7, 9, 30, 0, 0, time.UTC), model.AppointmentStatusCancelled)
	h.appointment(t, time.Date(2025, 7, 8, 9, 0, 0, 0, time.UTC), model.AppointmentStatusPending)

	sent, err := h.jobs.SendReminders(ctx)
	if err != nil {
		t.Fatalf("SendReminders: %v", err)
	}
	if sent != 1 {
		t.Fatalf("expected 1 reminder, got %d", sent)
	}
	n, ok := h.notifier.Last()
	if !ok || n.Kind != notify.KindReminder || n.AppointmentID != due.ID || n.BusinessName != "acme" {
		t.Fatalf("unexpected notification: %+v", n)
	}
	if n.Token != "" {
		t.Fatalf("reminder must not carry a token")
	}

	var stored model.Appointment
	if err := h.db.First(&stored, "id = ?", due.ID).Error; err != nil {
		t.Fatalf("load appointment: %v", err)
	}
	if stored.ReminderSentAt == nil {
		t.Fatalf("reminder_sent_at must be stamped")
	}

	sent, err = h.jobs.SendReminders(ctx)
	if err != nil {
		t.Fatalf("SendReminders again: %v", err)
	}
	if sent != 0 || len(h.notifier.Sent()) != 1 {
		t.Fatalf("reminder must be sent once, got %d more", sent)
	}
}

func TestSweepTokens(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.Ctx(t)
	appt := h.appointment(t, time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC), model.AppointmentStatusPending)
	now := h.clock.Now()

	usedAt := now.Add(-2 * time.Hour)
	tokens := []*model.TemporaryToken{
		{TokenHash: "expired-long-ago", ExpiresAt: now.Add(-3 * time.Hour)},
		{TokenHash: "used-long-ago", ExpiresAt: now.Add(time.Hour), Used: true, UsedAt: &usedAt},
		{TokenHash: "fresh", ExpiresAt: now.Add(5 * time.Minute)},
	}
	for _, tok := range tokens {
		tok.AppointmentID = appt.ID
		tok.ClientEmail = appt.ClientEmail
		if err := h.db.Create(tok).Error; err != nil {
			t.Fatalf("seed token: %v", err)
		}
	}
	lockRepo := repository.NewGormLockRepository(h.db)
	if err := db.NewTxRunner(h.db).RunInTx(ctx, func(ctx context.Context) error {
		return lockRepo.Acquire(ctx, "old-lock", model.CivilDate(now.AddDate(0, 0, -3)))
	}); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	if err := h.jobs.SweepTokens(ctx); err != nil {
		t.Fatalf("SweepTokens: %v", err)
	}

	var left []model.TemporaryToken
	if err := h.db.Find(&left).Error; err != nil {
		t.Fatalf("list tokens: %v", err)
	}
	if len(left) != 1 || left[0].TokenHash != "fresh" {
		t.Fatalf("expected only the fresh token to survive, got %+v", left)
	}
	var locks int64
	if err := h.db.Model(&model.ResourceLock{}).Count(&locks).Error; err != nil {
		t.Fatalf("count locks: %v", err)
	}
	if locks != 0 {
		t.Fatalf("expected past lock rows purged, got %d", locks)
	}
}

func TestRefreshSlots(t *testing.T) {
	h := newHarness(t)
	if err := h.jobs.RefreshSlots(testutil.Ctx(t)); err != nil {
		t.Fatalf("RefreshSlots: %v", err)
	}
	var days int64
	if err := h.db.Model(&model.PrecomputedDay{}).Count(&days).Error; err != nil {
		t.Fatalf("count days: %v", err)
	}
	if days != 7 {
		t.Fatalf("expected 7 cached days, got %d", days)
	}
}

func TestRunner_RunOnceRespectsLease(t *testing.T) {
	ctx := context.Background()
	locker := lease.NewLocalLocker(nil)
	var calls atomic.Int32
	task := Task{Name: "job", Interval: time.Minute, LeaseTTL: time.Minute, Run: func(context.Context) error {
		calls.Add(1)
		return nil
	}}
	r := NewRunner(locker, task)

	held, ok, _ := locker.TryAcquire(ctx, "job", time.Minute)
	if !ok {
		t.Fatalf("acquire: lease unexpectedly busy")
	}
	if r.RunOnce(ctx, task) {
		t.Fatalf("run must be skipped while another holder has the lease")
	}
	_ = held.Release(ctx)

	if !r.RunOnce(ctx, task) {
		t.Fatalf("run must proceed once the lease is free")
	}
	// Аренда отпущена после прогона.
	if !r.RunOnce(ctx, task) {
		t.Fatalf("lease must be released after a run")
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 runs, got %d", calls.Load())
	}
}

func TestRunner_FailingTaskKeepsLoop(t *testing.T) {
	ran := make(chan struct{}, 8)
	r := NewRunner(nil, Task{Name: "flaky", Interval: 10 * time.Millisecond, Run: func(context.Context) error {
		ran <- struct{}{}
		return errors.New("boom")
	}})

	r.Start(context.Background())
	for i := 0; i < 2; i++ {
		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			r.Stop()
			t.Fatalf("task did not run %d times", i+1)
		}
	}
	r.Stop()
	r.Stop()
}
