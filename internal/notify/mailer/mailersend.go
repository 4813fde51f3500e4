package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
)

var ErrNotConfigured = errors.New("mailersend is not configured")

type MailerSend struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	timeout time.Duration
}

func NewMailerSend(apiKey, fromName, fromEmail string) *MailerSend {
	m := &MailerSend{
		from:    mailersend.From{Name: fromName, Email: fromEmail},
		timeout: 10 * time.Second,
	}
	if apiKey != "" && fromEmail != "" {
		m.client = mailersend.NewMailersend(apiKey)
	}
	return m
}

func (m *MailerSend) Send(ctx context.Context, e Email) (string, error) {
	if m.client == nil {
		return "", ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Name: e.ToName, Email: e.ToEmail}})
	msg.SetSubject(e.Subject)
	if strings.TrimSpace(e.Text) != "" {
		msg.SetText(e.Text)
	}
	if strings.TrimSpace(e.HTML) != "" {
		msg.SetHTML(e.HTML)
	}

	res, err := m.client.Email.Send(ctx, msg)
	if err != nil {
		return "", err
	}
	if res != nil && res.StatusCode >= 300 {
		return "", fmt.Errorf("mailersend: unexpected status %d", res.StatusCode)
	}
	if res != nil {
		return res.Header.Get("X-Message-Id"), nil
	}
	return "", nil
}
