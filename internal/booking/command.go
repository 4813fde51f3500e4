package booking

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/appointment-booking/internal/apperror"
	"github.com/Leganyst/appointment-booking/internal/auth"
	"github.com/Leganyst/appointment-booking/internal/calendar"
	"github.com/Leganyst/appointment-booking/internal/model"
)

type Client struct {
	Name  string
	Email string
	Phone string
}

type ClaimCommand struct {
	// Ресурс слота ровно в том виде, в каком его вернула доступность.
	Scope     model.Scope
	StartTime time.Time
	EndTime   time.Time
	Client    Client
}

func (c *ClaimCommand) normalize() {
	c.Client.Name = strings.TrimSpace(c.Client.Name)
	c.Client.Email = strings.TrimSpace(c.Client.Email)
	c.Client.Phone = strings.TrimSpace(c.Client.Phone)
	c.StartTime = c.StartTime.UTC()
	c.EndTime = c.EndTime.UTC()
}

func (c ClaimCommand) validate(now time.Time) error {
	fields := map[string]string{}
	if c.Scope.BusinessID == uuid.Nil {
		fields["business_id"] = "required"
	}
	if c.Client.Name == "" {
		fields["client_name"] = "required"
	} else if len(c.Client.Name) > 255 {
		fields["client_name"] = "too long"
	}
	if !validEmail(c.Client.Email) {
		fields["client_email"] = "invalid email"
	}
	if len(c.Client.Phone) > 64 {
		fields["client_phone"] = "too long"
	}
	validateTimes(fields, c.StartTime, c.EndTime, now)

	if len(fields) > 0 {
		return apperror.Validation("invalid booking request", fields)
	}
	return nil
}

// Actor: кто меняет запись: владелец бизнеса (Auth) или клиент (Token).
type Actor struct {
	Auth  *auth.Context
	Token string
}

func (a Actor) IsClient() bool { return a.Auth == nil }

func (a Actor) userID() *uuid.UUID {
	if a.Auth == nil {
		return nil
	}
	id := a.Auth.UserID
	return &id
}

func (a Actor) label() string {
	if a.IsClient() {
		return "client"
	}
	return "business"
}

// TransitionCommand: либо Status, либо пара StartTime/EndTime (перенос).
type TransitionCommand struct {
	AppointmentID uuid.UUID
	Status        *model.AppointmentStatus
	StartTime     *time.Time
	EndTime       *time.Time
	Actor         Actor
}

func (c TransitionCommand) isReschedule() bool {
	return c.StartTime != nil || c.EndTime != nil
}

func (c TransitionCommand) validate(now time.Time) error {
	fields := map[string]string{}
	if c.AppointmentID == uuid.Nil {
		fields["appointment_id"] = "required"
	}

	switch {
	case c.Status != nil && c.isReschedule():
		fields["status"] = "cannot change status and time in one request"
	case c.Status != nil:
		if !c.Status.Valid() {
			fields["status"] = "unknown status"
		}
	case c.isReschedule():
		if c.StartTime == nil || c.EndTime == nil {
			fields["start_time"] = "start_time and end_time are required together"
		} else {
			validateTimes(fields, c.StartTime.UTC(), c.EndTime.UTC(), now)
		}
	default:
		fields["status"] = "status or new time is required"
	}

	if len(fields) > 0 {
		return apperror.Validation("invalid transition request", fields)
	}
	return nil
}

func validateTimes(fields map[string]string, start, end time.Time, now time.Time) {
	switch {
	case start.IsZero():
		fields["start_time"] = "required"
		return
	case end.IsZero():
		fields["end_time"] = "required"
		return
	}
	if _, err := calendar.NewTimeRange(start, end); err != nil {
		fields["end_time"] = "must be after start_time"
		return
	}
	if !start.After(now) {
		fields["start_time"] = "must be in the future"
	}
}

func validEmail(s string) bool {
	if s == "" || len(s) > 255 {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
