// Package mailer отправляет письма клиентам: MailerSend, SMTP или лог (dev).
package mailer

import (
	"context"
	"fmt"

	"github.com/Leganyst/appointment-booking/internal/config"
)

type Email struct {
	ToEmail string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Mailer отправляет одно письмо и возвращает id сообщения провайдера, если он есть.
type Mailer interface {
	Send(ctx context.Context, e Email) (string, error)
}

// New выбирает реализацию по MAIL_PROVIDER.
func New(cfg config.MailConfig) (Mailer, error) {
	switch cfg.Provider {
	case "mailersend":
		return NewMailerSend(cfg.MailerSendAPIKey, cfg.FromName, cfg.FromEmail), nil
	case "smtp":
		return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.FromEmail, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPUseTLS), nil
	case "dev", "":
		return NewDevMailer(), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}
