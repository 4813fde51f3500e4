// Package testutil содержит общие помощники для тестов: sqlite в памяти,
// управляемые часы и сидирование бизнеса.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Leganyst/appointment-booking/internal/model"
)

// OpenDB открывает sqlite в памяти и мигрирует схему.
// Соединение одно: иначе у каждого соединения своя пустая база.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := model.AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

// Clock: управляемый источник времени.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{current: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Fixture: бизнес с владельцем и правилами Пн–Пт 09:00–17:00 по 30 минут.
type Fixture struct {
	Business *model.Business
	OwnerID  uuid.UUID
}

// SeedBusiness создаёт бизнес в таймзоне tz с дефолтным расписанием.
func SeedBusiness(t *testing.T, db *gorm.DB, slug, tz string) Fixture {
	t.Helper()

	owner := uuid.New()
	biz := &model.Business{Name: slug, Slug: slug, Timezone: tz, OwnerUserID: owner}
	if err := db.Create(biz).Error; err != nil {
		t.Fatalf("seed business: %v", err)
	}
	for day := time.Monday; day <= time.Friday; day++ {
		SeedRule(t, db, model.Scope{BusinessID: biz.ID}, day, 9, 17, 30)
	}
	return Fixture{Business: biz, OwnerID: owner}
}

// SeedRule добавляет правило расписания [fromHour:00, toHour:00).
func SeedRule(t *testing.T, db *gorm.DB, scope model.Scope, day time.Weekday, fromHour, toHour, minutes int) *model.ScheduleRule {
	t.Helper()

	rule := &model.ScheduleRule{
		BusinessID:          scope.BusinessID,
		BranchID:            scope.BranchID,
		WorkerID:            scope.WorkerID,
		DayOfWeek:           int(day),
		StartTime:           model.TimeOfDay(fromHour, 0),
		EndTime:             model.TimeOfDay(toHour, 0),
		SlotDurationMinutes: minutes,
	}
	if err := db.Create(rule).Error; err != nil {
		t.Fatalf("seed rule: %v", err)
	}
	return rule
}

// SeedWorker создаёт сотрудника бизнеса.
func SeedWorker(t *testing.T, db *gorm.DB, businessID uuid.UUID, name string) *model.Worker {
	t.Helper()

	w := &model.Worker{BusinessID: businessID, Name: name}
	if err := db.Create(w).Error; err != nil {
		t.Fatalf("seed worker: %v", err)
	}
	return w
}

// SeedBranchWorker создаёт филиал и сотрудника, закреплённого за ним.
func SeedBranchWorker(t *testing.T, db *gorm.DB, businessID uuid.UUID, branchName, workerName string) (*model.Branch, *model.Worker) {
	t.Helper()

	b := &model.Branch{BusinessID: businessID, Name: branchName}
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("seed branch: %v", err)
	}
	w := &model.Worker{BusinessID: businessID, BranchID: &b.ID, Name: workerName}
	if err := db.Create(w).Error; err != nil {
		t.Fatalf("seed worker: %v", err)
	}
	return b, w
}

// Ctx: контекст теста с отменой при завершении.
func Ctx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
