// Package worker крутит периодические задачи: пересчёт кэша слотов,
// напоминания и чистку токенов.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/Leganyst/appointment-booking/internal/lease"
	"github.com/Leganyst/appointment-booking/internal/logger"
)

// Task: периодическая задача. LeaseTTL > 0: задача выполняется
// не более чем одной репликой за раз.
type Task struct {
	Name     string
	Interval time.Duration
	LeaseTTL time.Duration
	Run      func(ctx context.Context) error
}

type Runner struct {
	tasks  []Task
	locker lease.Locker

	wg       sync.WaitGroup
	stopChan chan struct{}
	running  bool
	mu       sync.Mutex
}

func NewRunner(locker lease.Locker, tasks ...Task) *Runner {
	if locker == nil {
		locker = lease.NewLocalLocker(nil)
	}
	return &Runner{
		tasks:    tasks,
		locker:   locker,
		stopChan: make(chan struct{}),
	}
}

// Start запускает по горутине на задачу; первый прогон сразу.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stopChan = make(chan struct{})
	stop := r.stopChan
	r.mu.Unlock()

	for _, t := range r.tasks {
		if t.Interval <= 0 {
			logger.Warn("task disabled: non-positive interval", "task", t.Name)
			continue
		}
		r.wg.Add(1)
		go r.loop(ctx, t, stop)
	}
	logger.Info("worker started", "tasks", len(r.tasks))
}

// Stop ждёт завершения текущих прогонов.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopChan)
	r.mu.Unlock()

	r.wg.Wait()
	logger.Info("worker stopped")
}

func (r *Runner) loop(ctx context.Context, t Task, stop <-chan struct{}) {
	defer r.wg.Done()

	r.RunOnce(ctx, t)

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			r.RunOnce(ctx, t)
		}
	}
}

// RunOnce выполняет задачу под арендой. Возвращает false, если прогон пропущен.
func (r *Runner) RunOnce(ctx context.Context, t Task) bool {
	ctx = logger.WithComponent(ctx, "worker")
	log := logger.WithContext(ctx).With("task", t.Name)

	if t.LeaseTTL > 0 {
		l, ok, err := r.locker.TryAcquire(ctx, t.Name, t.LeaseTTL)
		if err != nil {
			log.WarnContext(ctx, "lease acquire failed", "error", err)
			return false
		}
		if !ok {
			log.DebugContext(ctx, "lease held elsewhere, skipping run")
			return false
		}
		defer func() {
			// контекст мог быть отменён, а аренду всё равно надо отдать
			if err := l.Release(context.WithoutCancel(ctx)); err != nil {
				log.WarnContext(ctx, "lease release failed", "error", err)
			}
		}()
	}

	started := time.Now()
	if err := t.Run(ctx); err != nil {
		log.ErrorContext(ctx, "task failed", "error", err, "duration", time.Since(started))
		return true
	}
	log.DebugContext(ctx, "task done", "duration", time.Since(started))
	return true
}
