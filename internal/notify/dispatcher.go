package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/Leganyst/appointment-booking/internal/logger"
	"github.com/Leganyst/appointment-booking/internal/notify/mailer"
)

// Dispatcher превращает уведомление в письмо и отправляет его с повторами.
// Перед почтовым провайдером стоит circuit breaker.
type Dispatcher struct {
	mailer   mailer.Mailer
	renderer Renderer
	policy   RetryPolicy
	breaker  *gobreaker.CircuitBreaker[string]
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(m mailer.Mailer, r Renderer, policy RetryPolicy) *Dispatcher {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	settings := gobreaker.Settings{
		Name:        "mailer",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &Dispatcher{
		mailer:   m,
		renderer: r,
		policy:   policy,
		breaker:  gobreaker.NewCircuitBreaker[string](settings),
		sleep:    sleepContext,
	}
}

// Handle отправляет письмо. После MaxAttempts неудач возвращает последнюю ошибку.
func (d *Dispatcher) Handle(ctx context.Context, n Notification) error {
	if n.ClientEmail == "" {
		return fmt.Errorf("notification %s has no recipient", n.ID)
	}
	email := d.renderer.Render(n)

	var lastErr error
	for attempt := 1; attempt <= d.policy.MaxAttempts; attempt++ {
		if wait := d.policy.Backoff(attempt); wait > 0 {
			if err := d.sleep(ctx, wait); err != nil {
				return err
			}
		}

		msgID, err := d.breaker.Execute(func() (string, error) {
			return d.mailer.Send(ctx, email)
		})
		if err == nil {
			logger.InfoContext(ctx, "notification sent",
				"kind", n.Kind,
				"appointment_id", n.AppointmentID,
				"message_id", msgID,
				"attempt", attempt,
			)
			return nil
		}
		lastErr = err

		logger.WarnContext(ctx, "notification send failed",
			"kind", n.Kind,
			"appointment_id", n.AppointmentID,
			"attempt", attempt,
			"breaker_open", errors.Is(err, gobreaker.ErrOpenState),
			"error", err,
		)
	}

	logger.ErrorContext(ctx, "notification dropped after retries",
		"kind", n.Kind,
		"appointment_id", n.AppointmentID,
		"attempts", d.policy.MaxAttempts,
		"error", lastErr,
	)
	return lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
