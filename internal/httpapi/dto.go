package httpapi

import (
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/appointment-booking/internal/availability"
	"github.com/Leganyst/appointment-booking/internal/model"
	"github.com/Leganyst/appointment-booking/internal/schedule"
)

type slotDTO struct {
	StartTime  time.Time  `json:"start_time"`
	EndTime    time.Time  `json:"end_time"`
	BranchID   *uuid.UUID `json:"branch_id,omitempty"`
	WorkerID   *uuid.UUID `json:"worker_id,omitempty"`
	WorkerName string     `json:"worker_name,omitempty"`
}

type availabilityResponse struct {
	BusinessID uuid.UUID `json:"business_id"`
	Date       string    `json:"date"`
	Slots      []slotDTO `json:"slots"`
}

func toSlots(in []availability.Slot) []slotDTO {
	out := make([]slotDTO, 0, len(in))
	for _, s := range in {
		out = append(out, slotDTO{
			StartTime:  s.StartTime.UTC(),
			EndTime:    s.EndTime.UTC(),
			BranchID:   s.BranchID,
			WorkerID:   s.WorkerID,
			WorkerName: s.WorkerName,
		})
	}
	return out
}

type claimRequest struct {
	BranchID    *uuid.UUID `json:"branch_id"`
	WorkerID    *uuid.UUID `json:"worker_id"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time"`
	ClientName  string     `json:"client_name"`
	ClientEmail string     `json:"client_email"`
	ClientPhone string     `json:"client_phone"`
}

// transitionRequest: либо status, либо start_time+end_time.
type transitionRequest struct {
	Status    *model.AppointmentStatus `json:"status"`
	StartTime *time.Time               `json:"start_time"`
	EndTime   *time.Time               `json:"end_time"`
	Token     string                   `json:"token"`
}

type appointmentDTO struct {
	ID          uuid.UUID               `json:"id"`
	BusinessID  uuid.UUID               `json:"business_id"`
	BranchID    *uuid.UUID              `json:"branch_id,omitempty"`
	WorkerID    *uuid.UUID              `json:"worker_id,omitempty"`
	ClientName  string                  `json:"client_name"`
	ClientEmail string                  `json:"client_email"`
	ClientPhone string                  `json:"client_phone,omitempty"`
	StartTime   time.Time               `json:"start_time"`
	EndTime     time.Time               `json:"end_time"`
	Status      model.AppointmentStatus `json:"status"`
	CancelledAt *time.Time              `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
}

func toAppointment(a *model.Appointment) appointmentDTO {
	return appointmentDTO{
		ID:          a.ID,
		BusinessID:  a.BusinessID,
		BranchID:    a.BranchID,
		WorkerID:    a.WorkerID,
		ClientName:  a.ClientName,
		ClientEmail: a.ClientEmail,
		ClientPhone: a.ClientPhone,
		StartTime:   a.StartTime.UTC(),
		EndTime:     a.EndTime.UTC(),
		Status:      a.Status,
		CancelledAt: a.CancelledAt,
		CreatedAt:   a.CreatedAt.UTC(),
	}
}

// appointmentResponse: manage_token есть только после брони и переноса.
type appointmentResponse struct {
	Appointment appointmentDTO `json:"appointment"`
	ManageToken string         `json:"manage_token,omitempty"`
}

type appointmentPage struct {
	Items    []appointmentDTO `json:"items"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Total    int              `json:"total"`
	HasNext  bool             `json:"has_next"`
	HasPrev  bool             `json:"has_prev"`
}

type ruleRequest struct {
	BranchID            *uuid.UUID `json:"branch_id"`
	WorkerID            *uuid.UUID `json:"worker_id"`
	DayOfWeek           int        `json:"day_of_week"`
	StartTime           string     `json:"start_time"`
	EndTime             string     `json:"end_time"`
	SlotDurationMinutes int        `json:"slot_duration_minutes"`
}

type ruleDTO struct {
	ID                  uuid.UUID  `json:"id"`
	BusinessID          uuid.UUID  `json:"business_id"`
	BranchID            *uuid.UUID `json:"branch_id,omitempty"`
	WorkerID            *uuid.UUID `json:"worker_id,omitempty"`
	DayOfWeek           int        `json:"day_of_week"`
	StartTime           string     `json:"start_time"`
	EndTime             string     `json:"end_time"`
	SlotDurationMinutes int        `json:"slot_duration_minutes"`
}

func toRule(r *model.ScheduleRule) ruleDTO {
	return ruleDTO{
		ID:                  r.ID,
		BusinessID:          r.BusinessID,
		BranchID:            r.BranchID,
		WorkerID:            r.WorkerID,
		DayOfWeek:           r.DayOfWeek,
		StartTime:           schedule.FormatTimeOfDay(r.StartTime),
		EndTime:             schedule.FormatTimeOfDay(r.EndTime),
		SlotDurationMinutes: r.SlotDurationMinutes,
	}
}

type exceptionRequest struct {
	BranchID  *uuid.UUID `json:"branch_id"`
	WorkerID  *uuid.UUID `json:"worker_id"`
	Date      string     `json:"date"`
	IsClosed  bool       `json:"is_closed"`
	StartTime *string    `json:"start_time"`
	EndTime   *string    `json:"end_time"`
}

type exceptionDTO struct {
	ID         uuid.UUID  `json:"id"`
	BusinessID uuid.UUID  `json:"business_id"`
	BranchID   *uuid.UUID `json:"branch_id,omitempty"`
	WorkerID   *uuid.UUID `json:"worker_id,omitempty"`
	Date       string     `json:"date"`
	IsClosed   bool       `json:"is_closed"`
	StartTime  *string    `json:"start_time,omitempty"`
	EndTime    *string    `json:"end_time,omitempty"`
}

func toException(e *model.ExceptionRule) exceptionDTO {
	out := exceptionDTO{
		ID:         e.ID,
		BusinessID: e.BusinessID,
		BranchID:   e.BranchID,
		WorkerID:   e.WorkerID,
		Date:       model.FormatDate(e.Date),
		IsClosed:   e.IsClosed,
	}
	if e.StartTime != nil && e.EndTime != nil {
		from, to := schedule.FormatTimeOfDay(*e.StartTime), schedule.FormatTimeOfDay(*e.EndTime)
		out.StartTime, out.EndTime = &from, &to
	}
	return out
}
