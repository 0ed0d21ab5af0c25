package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorCarriesContext(t *testing.T) {
	err := Conflict(CodeStaleQuotation, "quotation was modified concurrently",
		"quotation_id", "q-1", "attempts", 3)

	e, ok := As(err)
	if !ok {
		t.Fatal("expected typed error")
	}
	if e.Kind != KindConflict || e.Code != CodeStaleQuotation {
		t.Errorf("unexpected kind/code: %s/%s", e.Kind, e.Code)
	}
	if e.Context["quotation_id"] != "q-1" || e.Context["attempts"] != 3 {
		t.Errorf("context not captured: %v", e.Context)
	}
}

func TestAsUnwrapsWrappedErrors(t *testing.T) {
	inner := NotFound(CodeRoundNotFound, "round not found", "round_id", "r-1")
	wrapped := fmt.Errorf("loading negotiation state: %w", inner)

	if !IsCode(wrapped, CodeRoundNotFound) {
		t.Error("expected code to survive wrapping")
	}
	if !IsKind(wrapped, KindNotFound) {
		t.Error("expected kind to survive wrapping")
	}
	if IsCode(wrapped, CodeOutOfTurn) {
		t.Error("unexpected code match")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NotFound(CodeQuotationNotFound, "missing"), http.StatusNotFound},
		{Conflict(CodeRoundAlreadyOpen, "open"), http.StatusConflict},
		{Finalized(CodeQuotationFinalized, "done"), http.StatusConflict},
		{Validation(CodeEmptyMessage, "empty"), http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestOddContextPairsAreDropped(t *testing.T) {
	err := Validation(CodeInvalidID, "bad id", "field", "quotation_id", "dangling")
	e, _ := As(err)
	if len(e.Context) != 1 {
		t.Errorf("expected 1 context entry, got %d", len(e.Context))
	}
}
