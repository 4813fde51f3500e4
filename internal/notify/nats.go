package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/Leganyst/appointment-booking/internal/logger"
)

// Subject: тема события: <prefix>.<kind>.
func Subject(prefix string, kind Kind) string {
	return strings.TrimSuffix(prefix, ".") + "." + string(kind)
}

// NATSBus публикует уведомления и раздаёт их подписчикам очереди.
type NATSBus struct {
	conn   *nats.Conn
	prefix string
	subs   []*nats.Subscription
}

func NewNATSBus(url, prefix string) (*NATSBus, error) {
	conn, err := nats.Connect(url, nats.Name("appointment-booking"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return NewNATSBusFromConn(conn, prefix), nil
}

func NewNATSBusFromConn(conn *nats.Conn, prefix string) *NATSBus {
	return &NATSBus{conn: conn, prefix: prefix}
}

func (b *NATSBus) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	subject := Subject(b.prefix, n.Kind)
	logger.DebugContext(ctx, "publishing notification", "subject", subject, "appointment_id", n.AppointmentID)
	return b.conn.Publish(subject, payload)
}

// QueueSubscribe подписывает группу на все виды уведомлений. Каждое
// сообщение получает ровно один участник группы.
func (b *NATSBus) QueueSubscribe(queue string, h Handler) error {
	sub, err := b.conn.QueueSubscribe(b.prefix+".>", queue, func(msg *nats.Msg) {
		ctx := logger.WithComponent(context.Background(), "notify-subscriber")

		var n Notification
		if err := json.Unmarshal(msg.Data, &n); err != nil {
			logger.ErrorContext(ctx, "dropping malformed notification", "subject", msg.Subject, "error", err)
			return
		}
		if err := h(ctx, n); err != nil {
			logger.ErrorContext(ctx, "notification handler failed",
				"subject", msg.Subject,
				"notification_id", n.ID,
				"appointment_id", n.AppointmentID,
				"error", err,
			)
		}
	})
	if err != nil {
		return err
	}
	b.subs = append(b.subs, sub)
	return nil
}

// Close дочитывает подписки и закрывает соединение.
func (b *NATSBus) Close() error {
	for _, s := range b.subs {
		_ = s.Drain()
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return err
	}
	return nil
}
