// Package apperror описывает типизированные ошибки ядра бронирования.
// Транспортный слой маппит их на HTTP- и gRPC-коды, сырые ошибки БД наружу не уходят.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind: класс ошибки.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
	KindAuthorization
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindAuthorization:
		return "authorization"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Code: стабильный машинный код ошибки, уходит клиенту.
type Code string

const (
	CodeValidation              Code = "VALIDATION_FAILED"
	CodeNotFound                Code = "NOT_FOUND"
	CodeSlotUnavailable         Code = "SLOT_UNAVAILABLE"
	CodeSlotAlreadyBooked       Code = "SLOT_ALREADY_BOOKED"
	CodeOverlappingSchedule     Code = "OVERLAPPING_SCHEDULE"
	CodeExceptionExists         Code = "EXCEPTION_EXISTS"
	CodeInvalidOrExpiredToken   Code = "INVALID_OR_EXPIRED_TOKEN"
	CodeInvalidStatusTransition Code = "INVALID_STATUS_TRANSITION"
	CodeUnauthorized            Code = "UNAUTHORIZED"
	CodeForbidden               Code = "FORBIDDEN"
	CodeStoreUnavailable        Code = "STORE_UNAVAILABLE"
)

type Error struct {
	Kind    Kind
	Code    Code
	Message string
	// Fields: ошибки по полям для KindValidation.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is сравнивает по коду, чтобы работал errors.Is(err, apperror.ErrSlotAlreadyBooked).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinel-значения для errors.Is.
var (
	ErrSlotUnavailable         = &Error{Kind: KindValidation, Code: CodeSlotUnavailable, Message: "requested slot is not available"}
	ErrSlotAlreadyBooked       = &Error{Kind: KindConflict, Code: CodeSlotAlreadyBooked, Message: "slot is already booked"}
	ErrOverlappingSchedule     = &Error{Kind: KindConflict, Code: CodeOverlappingSchedule, Message: "schedule rule overlaps an existing rule"}
	ErrExceptionExists         = &Error{Kind: KindConflict, Code: CodeExceptionExists, Message: "exception already exists for this date"}
	ErrInvalidOrExpiredToken   = &Error{Kind: KindAuthorization, Code: CodeInvalidOrExpiredToken, Message: "invalid or expired token"}
	ErrInvalidStatusTransition = &Error{Kind: KindValidation, Code: CodeInvalidStatusTransition, Message: "invalid status transition"}
	ErrUnauthorized            = &Error{Kind: KindAuthorization, Code: CodeUnauthorized, Message: "authentication required"}
	ErrForbidden               = &Error{Kind: KindAuthorization, Code: CodeForbidden, Message: "not allowed for this business"}
)

func Validation(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: msg, Fields: fields}
}

func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: entity + " not found"}
}

// Transient заворачивает ошибку хранилища; текст исходной ошибки клиенту не отдаётся.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Code: CodeStoreUnavailable, Message: op, Err: err}
}

// Wrap возвращает err как есть, если это уже *Error, иначе Transient.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return Transient(op, err)
}

// From извлекает *Error; для прочих ошибок возвращает Transient.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Transient("internal error", err)
}

// HTTPStatus маппит ошибку на HTTP-код.
func HTTPStatus(err error) int {
	ae := From(err)
	switch ae.Code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeOverlappingSchedule, CodeExceptionExists:
		return http.StatusConflict
	}
	switch ae.Kind {
	case KindValidation, KindConflict, KindAuthorization:
		// SlotAlreadyBooked и InvalidOrExpiredToken тоже отдаются как 400.
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

// PublicMessage: текст, который можно показать клиенту.
func PublicMessage(err error) string {
	ae := From(err)
	if ae.Kind == KindTransient {
		return "service temporarily unavailable"
	}
	return ae.Message
}
