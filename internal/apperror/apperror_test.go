package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"slot unavailable", ErrSlotUnavailable, http.StatusBadRequest},
		{"slot booked", ErrSlotAlreadyBooked, http.StatusBadRequest},
		{"token", ErrInvalidOrExpiredToken, http.StatusBadRequest},
		{"transition", ErrInvalidStatusTransition, http.StatusBadRequest},
		{"validation", Validation("bad", nil), http.StatusBadRequest},
		{"not found", NotFound("appointment"), http.StatusNotFound},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"overlap", ErrOverlappingSchedule, http.StatusConflict},
		{"raw", errors.New("connection reset"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("%s: HTTPStatus = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestIs_MatchesByCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("claim: %w", ErrSlotAlreadyBooked)
	if !errors.Is(err, ErrSlotAlreadyBooked) {
		t.Fatalf("expected errors.Is to match wrapped sentinel")
	}
	if errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("different codes must not match")
	}
}

func TestWrap_HidesStoreErrors(t *testing.T) {
	raw := errors.New("pq: relation does not exist")
	err := Wrap("load appointment", raw)

	if !errors.Is(err, raw) {
		t.Fatalf("wrapped error must keep the cause for logs")
	}
	if msg := PublicMessage(err); msg != "service temporarily unavailable" {
		t.Fatalf("PublicMessage = %q", msg)
	}
	if Wrap("x", ErrForbidden) != ErrForbidden {
		t.Fatalf("typed errors must pass through Wrap unchanged")
	}
}
