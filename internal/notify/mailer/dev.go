package mailer

import (
	"context"

	"github.com/google/uuid"

	"github.com/Leganyst/appointment-booking/internal/logger"
)

// DevMailer ничего не отправляет, только пишет письмо в лог.
type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) Send(ctx context.Context, e Email) (string, error) {
	id := "dev-" + uuid.NewString()
	logger.InfoContext(ctx, "[DEV MAIL] email",
		"message_id", id,
		"to", e.ToEmail,
		"name", e.ToName,
		"subject", e.Subject,
		"text", e.Text,
	)
	return id, nil
}
