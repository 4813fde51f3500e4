package notify

import (
	"fmt"
	"html"
	"net/url"
	"time"

	"github.com/Leganyst/appointment-booking/internal/calendar"
	"github.com/Leganyst/appointment-booking/internal/notify/mailer"
)

// Renderer собирает письмо по уведомлению.
type Renderer struct {
	PublicBaseURL string
}

func (r Renderer) Render(n Notification) mailer.Email {
	loc := time.UTC
	if n.Timezone != "" {
		if l, err := time.LoadLocation(n.Timezone); err == nil {
			loc = l
		}
	}
	when := calendar.FormatSlot(calendar.TimeRange{Start: n.StartTime, End: n.EndTime}, loc)

	var subject, lead string
	switch n.Kind {
	case KindCreated:
		subject = fmt.Sprintf("Your booking at %s", n.BusinessName)
		lead = "We have received your booking. It is pending confirmation."
	case KindConfirmed:
		subject = fmt.Sprintf("Booking confirmed at %s", n.BusinessName)
		lead = "Your booking has been confirmed."
	case KindRescheduled:
		subject = fmt.Sprintf("Booking rescheduled at %s", n.BusinessName)
		lead = "Your booking has been moved to a new time."
	case KindCancelled:
		subject = fmt.Sprintf("Booking cancelled at %s", n.BusinessName)
		lead = "Your booking has been cancelled."
	case KindReminder:
		subject = fmt.Sprintf("Reminder: upcoming visit to %s", n.BusinessName)
		lead = "This is a reminder about your upcoming booking."
	default:
		subject = fmt.Sprintf("Booking update from %s", n.BusinessName)
		lead = "Your booking has been updated."
	}

	text := fmt.Sprintf("Hi %s,\n\n%s\n\n%s\n", n.ClientName, lead, when)
	body := fmt.Sprintf("<p>Hi %s,</p><p>%s</p><p><strong>%s</strong></p>",
		html.EscapeString(n.ClientName), html.EscapeString(lead), html.EscapeString(when))

	if link := r.manageLink(n); link != "" {
		if n.TokenExpiresAt.IsZero() {
			text += fmt.Sprintf("\nTo cancel, use this link: %s\n", link)
			body += fmt.Sprintf(`<p><a href="%s">Manage booking</a></p>`, html.EscapeString(link))
		} else {
			until := n.TokenExpiresAt.In(loc).Format("02 Jan 2006 15:04 MST")
			text += fmt.Sprintf("\nTo cancel, use this link until %s: %s\n", until, link)
			body += fmt.Sprintf(`<p><a href="%s">Manage booking</a> (valid until %s)</p>`,
				html.EscapeString(link), html.EscapeString(until))
		}
	}

	return mailer.Email{
		ToEmail: n.ClientEmail,
		ToName:  n.ClientName,
		Subject: subject,
		Text:    text,
		HTML:    body,
	}
}

func (r Renderer) manageLink(n Notification) string {
	if n.Token == "" || r.PublicBaseURL == "" {
		return ""
	}
	q := url.Values{}
	q.Set("token", n.Token)
	return fmt.Sprintf("%s/appointments/%s?%s", r.PublicBaseURL, n.AppointmentID, q.Encode())
}
