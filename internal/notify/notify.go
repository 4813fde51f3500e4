// Package notify публикует события о записях и рассылает по ним письма.
// Доставка best-effort: ошибка уведомления никогда не откатывает запись.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/appointment-booking/internal/model"
)

type Kind string

const (
	KindCreated     Kind = "created"
	KindConfirmed   Kind = "confirmed"
	KindRescheduled Kind = "rescheduled"
	KindCancelled   Kind = "cancelled"
	KindReminder    Kind = "reminder"
)

// Notification: полезная нагрузка события. Идёт в NATS как JSON.
type Notification struct {
	ID            uuid.UUID               `json:"id"`
	Kind          Kind                    `json:"kind"`
	AppointmentID uuid.UUID               `json:"appointment_id"`
	BusinessID    uuid.UUID               `json:"business_id"`
	BusinessName  string                  `json:"business_name"`
	Timezone      string                  `json:"timezone"`
	ClientName    string                  `json:"client_name"`
	ClientEmail   string                  `json:"client_email"`
	StartTime     time.Time               `json:"start_time"`
	EndTime       time.Time               `json:"end_time"`
	Status        model.AppointmentStatus `json:"status"`
	// Сырой временный токен для ссылки в письме; только created/rescheduled.
	Token string `json:"token,omitempty"`
	// Срок действия Token; нулевой, если токена нет.
	TokenExpiresAt time.Time `json:"token_expires_at,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func New(kind Kind, appt *model.Appointment, biz *model.Business, token string, at time.Time) Notification {
	n := Notification{
		ID:            uuid.New(),
		Kind:          kind,
		AppointmentID: appt.ID,
		BusinessID:    appt.BusinessID,
		ClientName:    appt.ClientName,
		ClientEmail:   appt.ClientEmail,
		StartTime:     appt.StartTime.UTC(),
		EndTime:       appt.EndTime.UTC(),
		Status:        appt.Status,
		Token:         token,
		OccurredAt:    at.UTC(),
	}
	if biz != nil {
		n.BusinessName = biz.Name
		n.Timezone = biz.Timezone
	}
	return n
}

// Notifier не должен вызываться внутри транзакции.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type Noop struct{}

func (Noop) Notify(context.Context, Notification) error { return nil }

// Handler обрабатывает одно уведомление на стороне получателя.
type Handler func(ctx context.Context, n Notification) error

// Async вызывает обработчик в отдельной горутине. Используется, когда NATS
// не настроен и диспетчер живёт в том же процессе.
type Async struct {
	handle Handler
	wg     sync.WaitGroup
}

func NewAsync(h Handler) *Async {
	return &Async{handle: h}
}

func (a *Async) Notify(ctx context.Context, n Notification) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		// Запрос уже мог завершиться: контекст не наследуем, только значения.
		_ = a.handle(context.WithoutCancel(ctx), n)
	}()
	return nil
}

// Wait дожидается отправки всех поставленных уведомлений.
func (a *Async) Wait() {
	a.wg.Wait()
}

// Memory запоминает уведомления. Для тестов.
type Memory struct {
	mu   sync.Mutex
	sent []Notification
	Err  error
}

func (m *Memory) Notify(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, n)
	return nil
}

func (m *Memory) Sent() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *Memory) Last() (Notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return Notification{}, false
	}
	return m.sent[len(m.sent)-1], true
}
