package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&ValidationError{Field: "origin", Reason: "required"}, http.StatusBadRequest},
		{&AuthorizationError{CallerID: "u1", Action: "cancel"}, http.StatusForbidden},
		{&StateError{Entity: "listing", Status: "booked", Op: "cancel"}, http.StatusConflict},
		{&InvalidTransitionError{From: "in_transit", To: "cancelled"}, http.StatusConflict},
		{&PaymentRequiredError{BookingID: "bk1"}, http.StatusPaymentRequired},
		{&NotFoundError{Kind: "booking", ID: "bk1"}, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
		// wrapped errors still map
		{fmt.Errorf("confirm: %w", &NotFoundError{Kind: "booking", ID: "bk1"}), http.StatusNotFound},
	}
	for _, c := range cases {
		if got := HTTPStatus(c.err); got != c.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
