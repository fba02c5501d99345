package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"conflict", Conflict("equipment %s already has a pending transfer", "EQ-1"), KindConflict},
		{"wrapped", fmt.Errorf("creating: %w", NotFound("transfer request not found")), KindNotFound},
		{"store", Store(sql.ErrConnDone, "inserting"), KindStore},
		{"raw", errors.New("boom"), KindStore},
		{"unauthenticated", Unauthenticated(), KindUnauthenticated},
	}

	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("%s: KindOf = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestErrorsIsSentinel(t *testing.T) {
	err := fmt.Errorf("approving: %w", InvalidState("transfer request is %s", "cancelled"))

	if !errors.Is(err, ErrInvalidState) {
		t.Error("expected errors.Is to match ErrInvalidState")
	}
	if errors.Is(err, ErrConflict) {
		t.Error("did not expect errors.Is to match ErrConflict")
	}
}

func TestStoreKeepsClassifiedErrors(t *testing.T) {
	orig := Forbidden("only the recipient may approve")
	if got := Store(orig, "approving"); got != orig {
		t.Errorf("Store re-wrapped a classified error: %v", got)
	}
	if Store(nil, "noop") != nil {
		t.Error("Store(nil) should be nil")
	}

	wrapped := Store(sql.ErrTxDone, "committing")
	if !errors.Is(wrapped, sql.ErrTxDone) {
		t.Error("Store should unwrap to the driver error")
	}
	if wrapped.Error() != "committing: "+sql.ErrTxDone.Error() {
		t.Errorf("unexpected message %q", wrapped.Error())
	}
}
