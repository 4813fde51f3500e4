package httpapi

import (
	"net/http"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/Leganyst/appointment-booking/internal/auth"
	"github.com/Leganyst/appointment-booking/internal/model"
	"github.com/Leganyst/appointment-booking/internal/schedule"
)

func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	businessID, ok := uuidParam(r, "businessID")
	if !ok {
		badRequest(w, r, "invalid business id", map[string]string{"business_id": "must be a uuid"})
		return
	}
	ac, _ := auth.FromContext(r.Context())
	rules, err := h.schedule.ListRules(r.Context(), ac, businessID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]ruleDTO, 0, len(rules))
	for i := range rules {
		out = append(out, toRule(&rules[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": out})
}

func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	businessID, ok := uuidParam(r, "businessID")
	if !ok {
		badRequest(w, r, "invalid business id", map[string]string{"business_id": "must be a uuid"})
		return
	}
	in, ok := h.decodeRule(w, r, businessID)
	if !ok {
		return
	}
	ac, _ := auth.FromContext(r.Context())
	rule, err := h.schedule.CreateRule(r.Context(), ac, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRule(rule))
}

func (h *Handler) updateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "ruleID")
	if !ok {
		badRequest(w, r, "invalid rule id", map[string]string{"rule_id": "must be a uuid"})
		return
	}
	// Ресурс правила берётся из базы, поэтому business_id тут не нужен.
	in, ok := h.decodeRule(w, r, uuid.Nil)
	if !ok {
		return
	}
	ac, _ := auth.FromContext(r.Context())
	rule, err := h.schedule.UpdateRule(r.Context(), ac, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRule(rule))
}

func (h *Handler) deleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "ruleID")
	if !ok {
		badRequest(w, r, "invalid rule id", map[string]string{"rule_id": "must be a uuid"})
		return
	}
	ac, _ := auth.FromContext(r.Context())
	if err := h.schedule.DeleteRule(r.Context(), ac, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeRule(w http.ResponseWriter, r *http.Request, businessID uuid.UUID) (schedule.RuleInput, bool) {
	var in ruleRequest
	if !decodeJSON(w, r, &in) {
		return schedule.RuleInput{}, false
	}
	fields := map[string]string{}
	start, err := schedule.ParseTimeOfDay(in.StartTime)
	if err != nil {
		fields["start_time"] = "must be HH:MM"
	}
	end, err := schedule.ParseTimeOfDay(in.EndTime)
	if err != nil {
		fields["end_time"] = "must be HH:MM"
	}
	if len(fields) > 0 {
		badRequest(w, r, "invalid schedule rule", fields)
		return schedule.RuleInput{}, false
	}
	return schedule.RuleInput{
		Scope:               model.Scope{BusinessID: businessID, BranchID: in.BranchID, WorkerID: in.WorkerID},
		DayOfWeek:           in.DayOfWeek,
		StartTime:           start,
		EndTime:             end,
		SlotDurationMinutes: in.SlotDurationMinutes,
	}, true
}

// GET /v1/businesses/{businessID}/schedule/exceptions?from=YYYY-MM-DD (по умолчанию сегодня по UTC)
func (h *Handler) listExceptions(w http.ResponseWriter, r *http.Request) {
	businessID, ok := uuidParam(r, "businessID")
	if !ok {
		badRequest(w, r, "invalid business id", map[string]string{"business_id": "must be a uuid"})
		return
	}
	from := model.CivilDate(h.now().UTC())
	if raw := r.URL.Query().Get("from"); raw != "" {
		d, err := model.ParseDate(raw)
		if err != nil {
			badRequest(w, r, "invalid list request", map[string]string{"from": "must be YYYY-MM-DD"})
			return
		}
		from = d
	}

	ac, _ := auth.FromContext(r.Context())
	list, err := h.schedule.ListExceptions(r.Context(), ac, businessID, from)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]exceptionDTO, 0, len(list))
	for i := range list {
		out = append(out, toException(&list[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"exceptions": out})
}

func (h *Handler) createException(w http.ResponseWriter, r *http.Request) {
	businessID, ok := uuidParam(r, "businessID")
	if !ok {
		badRequest(w, r, "invalid business id", map[string]string{"business_id": "must be a uuid"})
		return
	}
	var in exceptionRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	fields := map[string]string{}
	date, err := model.ParseDate(in.Date)
	if err != nil {
		fields["date"] = "must be YYYY-MM-DD"
	}
	start := parseOptionalTime(in.StartTime, "start_time", fields)
	end := parseOptionalTime(in.EndTime, "end_time", fields)
	if len(fields) > 0 {
		badRequest(w, r, "invalid exception", fields)
		return
	}

	ac, _ := auth.FromContext(r.Context())
	ex, err := h.schedule.CreateException(r.Context(), ac, schedule.ExceptionInput{
		Scope:     model.Scope{BusinessID: businessID, BranchID: in.BranchID, WorkerID: in.WorkerID},
		Date:      date,
		IsClosed:  in.IsClosed,
		StartTime: start,
		EndTime:   end,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toException(ex))
}

func (h *Handler) deleteException(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "exceptionID")
	if !ok {
		badRequest(w, r, "invalid exception id", map[string]string{"exception_id": "must be a uuid"})
		return
	}
	ac, _ := auth.FromContext(r.Context())
	if err := h.schedule.DeleteException(r.Context(), ac, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseOptionalTime(raw *string, field string, fields map[string]string) *datatypes.Time {
	if raw == nil || *raw == "" {
		return nil
	}
	t, err := schedule.ParseTimeOfDay(*raw)
	if err != nil {
		fields[field] = "must be HH:MM"
		return nil
	}
	return &t
}
