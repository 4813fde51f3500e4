package httpapi

import (
	"net/http"
	"strings"

	"github.com/Leganyst/appointment-booking/internal/auth"
	"github.com/Leganyst/appointment-booking/internal/booking"
	"github.com/Leganyst/appointment-booking/internal/model"
)

const tokenHeader = "X-Appointment-Token"

// GET /v1/businesses/{businessID}/availability?date=YYYY-MM-DD&branch_id=&worker_id=
func (h *Handler) getAvailability(w http.ResponseWriter, r *http.Request) {
	businessID, ok := uuidParam(r, "businessID")
	if !ok {
		badRequest(w, r, "invalid business id", map[string]string{"business_id": "must be a uuid"})
		return
	}

	fields := map[string]string{}
	q := r.URL.Query()
	date, err := model.ParseDate(q.Get("date"))
	if err != nil {
		fields["date"] = "must be YYYY-MM-DD"
	}
	scope := model.Scope{
		BusinessID: businessID,
		BranchID:   optionalUUID(q.Get("branch_id"), "branch_id", fields),
		WorkerID:   optionalUUID(q.Get("worker_id"), "worker_id", fields),
	}
	if len(fields) > 0 {
		badRequest(w, r, "invalid availability request", fields)
		return
	}

	slots, err := h.availability.Availability(r.Context(), scope, date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{
		BusinessID: businessID,
		Date:       model.FormatDate(date),
		Slots:      toSlots(slots),
	})
}

// POST /v1/businesses/{businessID}/appointments
func (h *Handler) claimSlot(w http.ResponseWriter, r *http.Request) {
	businessID, ok := uuidParam(r, "businessID")
	if !ok {
		badRequest(w, r, "invalid business id", map[string]string{"business_id": "must be a uuid"})
		return
	}
	var in claimRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	res, err := h.booking.Claim(r.Context(), booking.ClaimCommand{
		Scope:     model.Scope{BusinessID: businessID, BranchID: in.BranchID, WorkerID: in.WorkerID},
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		Client: booking.Client{
			Name:  in.ClientName,
			Email: in.ClientEmail,
			Phone: in.ClientPhone,
		},
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appointmentResponse{
		Appointment: toAppointment(res.Appointment),
		ManageToken: res.Token,
	})
}

// PUT /v1/appointments/{appointmentID}
// Владелец: по Bearer-токену; клиент: по одноразовому токену из тела или заголовка.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "appointmentID")
	if !ok {
		badRequest(w, r, "invalid appointment id", map[string]string{"appointment_id": "must be a uuid"})
		return
	}
	var in transitionRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	actor := booking.Actor{Token: strings.TrimSpace(in.Token)}
	if actor.Token == "" {
		actor.Token = strings.TrimSpace(r.Header.Get(tokenHeader))
	}
	if ac, ok := auth.FromContext(r.Context()); ok {
		actor = booking.Actor{Auth: ac}
	}

	res, err := h.booking.Transition(r.Context(), booking.TransitionCommand{
		AppointmentID: id,
		Status:        in.Status,
		StartTime:     in.StartTime,
		EndTime:       in.EndTime,
		Actor:         actor,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentResponse{
		Appointment: toAppointment(res.Appointment),
		ManageToken: res.Token,
	})
}

// GET /v1/businesses/{businessID}/appointments?from=&to=&status=&page=&page_size=
func (h *Handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	businessID, ok := uuidParam(r, "businessID")
	if !ok {
		badRequest(w, r, "invalid business id", map[string]string{"business_id": "must be a uuid"})
		return
	}
	fields := map[string]string{}
	q := booking.ListQuery{
		BusinessID: businessID,
		From:       timeQuery(r, "from", fields),
		To:         timeQuery(r, "to", fields),
		Status:     model.AppointmentStatus(r.URL.Query().Get("status")),
		Page:       intQuery(r, "page", 1, fields),
		PageSize:   intQuery(r, "page_size", 20, fields),
	}
	if len(fields) > 0 {
		badRequest(w, r, "invalid list request", fields)
		return
	}

	ac, _ := auth.FromContext(r.Context())
	page, err := h.booking.List(r.Context(), ac, q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]appointmentDTO, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, toAppointment(&page.Items[i]))
	}
	writeJSON(w, http.StatusOK, appointmentPage{
		Items:    items,
		Page:     page.Page,
		PageSize: page.PageSize,
		Total:    page.Total,
		HasNext:  page.HasNext,
		HasPrev:  page.HasPrev,
	})
}

// GET /v1/appointments/{appointmentID}
func (h *Handler) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "appointmentID")
	if !ok {
		badRequest(w, r, "invalid appointment id", map[string]string{"appointment_id": "must be a uuid"})
		return
	}
	ac, _ := auth.FromContext(r.Context())
	appt, err := h.booking.Get(r.Context(), ac, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentResponse{Appointment: toAppointment(appt)})
}
