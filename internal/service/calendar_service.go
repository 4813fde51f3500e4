// Package service: gRPC-фасад ядра бронирования для внутренних клиентов (бот, админка).
// Сообщения: google.protobuf.Struct, поэтому кодогенерация не нужна.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Leganyst/appointment-booking/internal/auth"
	"github.com/Leganyst/appointment-booking/internal/availability"
	"github.com/Leganyst/appointment-booking/internal/booking"
	"github.com/Leganyst/appointment-booking/internal/calendar"
	"github.com/Leganyst/appointment-booking/internal/model"
)

const (
	CalendarServiceName = "appointment.calendar.v1.CalendarService"
	maxSlotPageSize     = 200
)

// CalendarServer: методы сервиса календаря.
type CalendarServer interface {
	ListFreeSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ClaimSlot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	TransitionAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type CalendarService struct {
	availability *availability.Service
	booking      *booking.Service
}

func NewCalendarService(avail *availability.Service, bookings *booking.Service) *CalendarService {
	return &CalendarService{availability: avail, booking: bookings}
}

// ListFreeSlots: {business_id, date, branch_id?, worker_id?, page?, page_size?} →
// {slots: [...], total_count, page, has_next}. Без page_size отдаются все слоты дня.
func (s *CalendarService) ListFreeSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := reader{fields: req.GetFields()}
	businessID := r.uuid("business_id", true)
	dateRaw := r.str("date")
	scope := model.Scope{
		BusinessID: businessID,
		BranchID:   r.optUUID("branch_id"),
		WorkerID:   r.optUUID("worker_id"),
	}
	date, err := model.ParseDate(dateRaw)
	if err != nil {
		r.bad("date", "must be YYYY-MM-DD")
	}
	page, pageSize := r.int("page"), r.int("page_size")
	if pageSize > maxSlotPageSize {
		pageSize = maxSlotPageSize
	}
	if err := r.err(); err != nil {
		return nil, err
	}

	slots, err := s.availability.Availability(ctx, scope, date)
	if err != nil {
		return nil, toStatus(err)
	}

	if pageSize <= 0 {
		pageSize = max(len(slots), 1)
	}
	p := calendar.Paginate(slots, page, pageSize)

	list := make([]any, 0, len(p.Items))
	for _, sl := range p.Items {
		item := map[string]any{
			"start_time": sl.StartTime.UTC().Format(time.RFC3339),
			"end_time":   sl.EndTime.UTC().Format(time.RFC3339),
		}
		if sl.BranchID != nil {
			item["branch_id"] = sl.BranchID.String()
		}
		if sl.WorkerID != nil {
			item["worker_id"] = sl.WorkerID.String()
			item["worker_name"] = sl.WorkerName
		}
		list = append(list, item)
	}
	return newStruct(map[string]any{
		"slots":       list,
		"total_count": p.Total,
		"page":        p.Page,
		"has_next":    p.HasNext,
	})
}

// ClaimSlot: {business_id, branch_id?, worker_id?, start_time, end_time, client_name, client_email, client_phone?}.
func (s *CalendarService) ClaimSlot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := reader{fields: req.GetFields()}
	cmd := booking.ClaimCommand{
		Scope: model.Scope{
			BusinessID: r.uuid("business_id", true),
			BranchID:   r.optUUID("branch_id"),
			WorkerID:   r.optUUID("worker_id"),
		},
		StartTime: r.time("start_time"),
		EndTime:   r.time("end_time"),
		Client: booking.Client{
			Name:  r.str("client_name"),
			Email: r.str("client_email"),
			Phone: r.str("client_phone"),
		},
	}
	if err := r.err(); err != nil {
		return nil, err
	}

	res, err := s.booking.Claim(ctx, cmd)
	if err != nil {
		return nil, toStatus(err)
	}
	return resultStruct(res)
}

// TransitionAppointment: {appointment_id, status? | start_time+end_time, token?}.
// Владелец передаёт JWT в metadata authorization.
func (s *CalendarService) TransitionAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := reader{fields: req.GetFields()}
	cmd := booking.TransitionCommand{
		AppointmentID: r.uuid("appointment_id", true),
		Actor:         booking.Actor{Token: r.str("token")},
	}
	if st := r.str("status"); st != "" {
		v := model.AppointmentStatus(st)
		cmd.Status = &v
	}
	if r.has("start_time") || r.has("end_time") {
		start, end := r.time("start_time"), r.time("end_time")
		cmd.StartTime, cmd.EndTime = &start, &end
	}
	if err := r.err(); err != nil {
		return nil, err
	}
	if ac, ok := auth.FromContext(ctx); ok {
		cmd.Actor = booking.Actor{Auth: ac}
	}

	res, err := s.booking.Transition(ctx, cmd)
	if err != nil {
		return nil, toStatus(err)
	}
	return resultStruct(res)
}

func resultStruct(res *booking.Result) (*structpb.Struct, error) {
	a := res.Appointment
	appt := map[string]any{
		"id":           a.ID.String(),
		"business_id":  a.BusinessID.String(),
		"client_name":  a.ClientName,
		"client_email": a.ClientEmail,
		"start_time":   a.StartTime.UTC().Format(time.RFC3339),
		"end_time":     a.EndTime.UTC().Format(time.RFC3339),
		"status":       string(a.Status),
	}
	if a.BranchID != nil {
		appt["branch_id"] = a.BranchID.String()
	}
	if a.WorkerID != nil {
		appt["worker_id"] = a.WorkerID.String()
	}
	out := map[string]any{"appointment": appt}
	if res.Token != "" {
		out["manage_token"] = res.Token
	}
	return newStruct(out)
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return st, nil
}

// reader копит ошибки полей, чтобы вернуть их одним InvalidArgument.
type reader struct {
	fields   map[string]*structpb.Value
	problems []string
}

func (r *reader) has(name string) bool {
	_, ok := r.fields[name]
	return ok
}

func (r *reader) str(name string) string {
	return strings.TrimSpace(r.fields[name].GetStringValue())
}

func (r *reader) bad(name, msg string) {
	r.problems = append(r.problems, name+": "+msg)
}

func (r *reader) uuid(name string, required bool) uuid.UUID {
	raw := r.str(name)
	if raw == "" {
		if required {
			r.bad(name, "required")
		}
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		r.bad(name, "must be a uuid")
		return uuid.Nil
	}
	return id
}

func (r *reader) optUUID(name string) *uuid.UUID {
	id := r.uuid(name, false)
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// int: неотрицательное целое; отсутствие поля даёт 0.
func (r *reader) int(name string) int {
	v, ok := r.fields[name]
	if !ok {
		return 0
	}
	n, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum || n.NumberValue < 0 || n.NumberValue != float64(int(n.NumberValue)) {
		r.bad(name, "must be a non-negative integer")
		return 0
	}
	return int(n.NumberValue)
}

func (r *reader) time(name string) time.Time {
	raw := r.str(name)
	if raw == "" {
		r.bad(name, "required")
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		r.bad(name, "must be RFC3339")
		return time.Time{}
	}
	return t
}

func (r *reader) err() error {
	if len(r.problems) == 0 {
		return nil
	}
	return status.Error(codes.InvalidArgument, strings.Join(r.problems, "; "))
}

// RegisterCalendarServiceServer регистрирует сервис на сервере.
func RegisterCalendarServiceServer(s grpc.ServiceRegistrar, srv CalendarServer) {
	s.RegisterService(&calendarServiceDesc, srv)
}

var calendarServiceDesc = grpc.ServiceDesc{
	ServiceName: CalendarServiceName,
	HandlerType: (*CalendarServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListFreeSlots", Handler: unary("ListFreeSlots", CalendarServer.ListFreeSlots)},
		{MethodName: "ClaimSlot", Handler: unary("ClaimSlot", CalendarServer.ClaimSlot)},
		{MethodName: "TransitionAppointment", Handler: unary("TransitionAppointment", CalendarServer.TransitionAppointment)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "appointment/calendar/v1/calendar.proto",
}

type calendarMethod func(CalendarServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call calendarMethod) grpc.MethodHandler {
	fullMethod := "/" + CalendarServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CalendarServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CalendarServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}
