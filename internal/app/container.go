// Package app собирает зависимости процесса: БД, Redis, NATS, почту и сервисы ядра.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"gorm.io/gorm"

	"github.com/Leganyst/appointment-booking/internal/audit"
	"github.com/Leganyst/appointment-booking/internal/auth"
	"github.com/Leganyst/appointment-booking/internal/availability"
	"github.com/Leganyst/appointment-booking/internal/booking"
	"github.com/Leganyst/appointment-booking/internal/config"
	"github.com/Leganyst/appointment-booking/internal/db"
	"github.com/Leganyst/appointment-booking/internal/httpapi"
	"github.com/Leganyst/appointment-booking/internal/lease"
	"github.com/Leganyst/appointment-booking/internal/logger"
	"github.com/Leganyst/appointment-booking/internal/model"
	"github.com/Leganyst/appointment-booking/internal/notify"
	"github.com/Leganyst/appointment-booking/internal/notify/mailer"
	"github.com/Leganyst/appointment-booking/internal/repository"
	"github.com/Leganyst/appointment-booking/internal/schedule"
	"github.com/Leganyst/appointment-booking/internal/service"
	"github.com/Leganyst/appointment-booking/internal/worker"
)

type Container struct {
	Config *config.Config
	DB     *gorm.DB

	// nil, если REDIS_URL не задан.
	Redis *redis.Client
	// nil, если NATS_URL не задан: тогда уведомления уходят через Async.
	Bus   *notify.NATSBus
	async *notify.Async

	Dispatcher *notify.Dispatcher
	Notifier   notify.Notifier
	Locker     lease.Locker
	Tokens     *auth.Manager

	Engine       *availability.Engine
	Availability *availability.Service
	Refresher    *availability.Refresher
	Booking      *booking.Service
	Schedule     *schedule.Service
	Jobs         *worker.Jobs
}

// NewContainer подключается к хранилищам и собирает сервисы.
// Redis и NATS необязательны: без них остаются локальная аренда и in-process доставка.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{Config: cfg}

	gdb, err := db.NewGormDB(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}
	c.DB = gdb
	logger.Info("connected to database", "driver", cfg.DB.Driver)

	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			c.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		c.Redis = client
		c.Locker = lease.NewRedisLocker(client, "booking:lease")
		logger.Info("connected to redis")
	} else {
		c.Locker = lease.NewLocalLocker(nil)
		logger.Warn("REDIS_URL is empty: using process-local leases and no rate limit")
	}

	m, err := mailer.New(cfg.Mail)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Dispatcher = notify.NewDispatcher(m, notify.Renderer{PublicBaseURL: cfg.Mail.PublicBaseURL}, notify.RetryPolicy{
		MaxAttempts: cfg.Notify.MaxAttempts,
		Base:        cfg.Notify.BackoffBase,
		Max:         cfg.Notify.BackoffMax,
	})

	if cfg.NATS.URL != "" {
		bus, err := notify.NewNATSBus(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Bus = bus
		c.Notifier = bus
		logger.Info("connected to nats", "subject_prefix", cfg.NATS.SubjectPrefix)
	} else {
		c.async = notify.NewAsync(c.Dispatcher.Handle)
		c.Notifier = c.async
	}

	c.Tokens = auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL)
	c.build()
	return c, nil
}

func (c *Container) build() {
	cfg := c.Config
	tx := db.NewTxRunner(c.DB)

	businesses := repository.NewGormBusinessRepository(c.DB)
	rules := repository.NewGormScheduleRepository(c.DB)
	exceptions := repository.NewGormExceptionRepository(c.DB)
	appointments := repository.NewGormAppointmentRepository(c.DB)
	tokens := repository.NewGormTokenRepository(c.DB)
	locks := repository.NewGormLockRepository(c.DB)
	cache := repository.NewGormSlotCacheRepository(c.DB)
	recorder := audit.NewRecorder(repository.NewGormAuditRepository(c.DB))

	c.Engine = availability.NewEngine(businesses, rules, exceptions, appointments, cfg.Booking.DefaultSlotMinutes)
	c.Availability = availability.NewService(c.Engine, cache, cfg.Slots.CacheMaxAge, nil)
	c.Refresher = availability.NewRefresher(businesses, c.Engine, cache, tx, cfg.Slots.HorizonDays, nil)

	c.Booking = booking.NewService(booking.Deps{
		Tx:           tx,
		Availability: c.Availability,
		Businesses:   businesses,
		Appointments: appointments,
		Tokens:       tokens,
		Locks:        locks,
		Cache:        cache,
		Notifier:     c.Notifier,
		Audit:        recorder,
	}, booking.Options{
		TokenTTL:           cfg.Booking.TokenTTL,
		ClientCancelCutoff: cfg.Booking.ClientCancelCutoff,
	})

	c.Schedule = schedule.NewService(schedule.Deps{
		Tx:         tx,
		Engine:     c.Engine,
		Businesses: businesses,
		Rules:      rules,
		Exceptions: exceptions,
		Cache:      cache,
		Audit:      recorder,
	}, cfg.Booking.DefaultSlotMinutes, nil)

	c.Jobs = worker.NewJobs(worker.JobsDeps{
		Refresher:    c.Refresher,
		Businesses:   businesses,
		Appointments: appointments,
		Tokens:       tokens,
		Locks:        locks,
		Notifier:     c.Notifier,
	}, cfg.Jobs, nil)
}

// Migrate создаёт и обновляет схему.
func (c *Container) Migrate() error {
	return model.AutoMigrate(c.DB)
}

// HTTPHandler: публичный REST API.
func (c *Container) HTTPHandler() http.Handler {
	var limiter *httpapi.RateLimiter
	if c.Redis != nil && c.Config.Server.RateLimitRequests > 0 {
		limiter = httpapi.NewRateLimiter(httpapi.NewRedisCounter(c.Redis),
			c.Config.Server.RateLimitRequests, c.Config.Server.RateLimitWindow)
	}
	return httpapi.NewRouter(httpapi.Deps{
		Availability:   c.Availability,
		Booking:        c.Booking,
		Schedule:       c.Schedule,
		Tokens:         c.Tokens,
		Limiter:        limiter,
		AllowedOrigins: c.Config.Server.AllowedOrigins,
	})
}

// GRPCServer: внутренний gRPC API.
func (c *Container) GRPCServer() (*grpc.Server, *health.Server) {
	return service.NewGRPCServer(service.NewCalendarService(c.Availability, c.Booking), c.Tokens)
}

// Runner: периодические задачи воркера.
func (c *Container) Runner() *worker.Runner {
	return worker.NewRunner(c.Locker, c.Jobs.Tasks(c.Config.Slots, c.Config.Jobs)...)
}

// SubscribeNotifications подписывает диспетчер писем на NATS.
// Без NATS письма и так отправляются в процессе, который их породил.
func (c *Container) SubscribeNotifications() error {
	if c.Bus == nil {
		logger.Warn("NATS_URL is empty: notifications are delivered in-process")
		return nil
	}
	return c.Bus.QueueSubscribe(c.Config.NATS.QueueGroup, c.Dispatcher.Handle)
}

// Close дожидается отложенных писем и закрывает соединения.
func (c *Container) Close() {
	if c.async != nil {
		c.async.Wait()
	}
	if c.Bus != nil {
		if err := c.Bus.Close(); err != nil {
			logger.Warn("error closing nats", "error", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logger.Warn("error closing redis", "error", err)
		}
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
