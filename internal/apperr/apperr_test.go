package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/agentcontrol/hub/internal/apperr"
	"github.com/agentcontrol/hub/internal/store"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"not found", &store.ErrNotFound{Entity: "escalation", Key: "9"}, apperr.NotFound},
		{"wrapped not found", fmt.Errorf("get: %w", &store.ErrNotFound{Entity: "escalation", Key: "9"}), apperr.NotFound},
		{"conflict", &store.ErrConflict{Entity: "agent session", Key: "s"}, apperr.Validation},
		{"validation", apperr.Validationf("bad %s", "input"), apperr.Validation},
		{"plain", errors.New("disk on fire"), apperr.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := apperr.KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMessage_HidesInternalCause(t *testing.T) {
	err := apperr.Wrap(errors.New("pq: password authentication failed"), "create escalation")
	if got := apperr.Message(err); got != "internal server error" {
		t.Errorf("Message() = %q, want generic message", got)
	}
	if got := apperr.Message(apperr.NotFoundf("escalation %d not found", 3)); got != "escalation 3 not found" {
		t.Errorf("Message() = %q", got)
	}
}

func TestKind_String(t *testing.T) {
	if apperr.NotFound.String() != "not_found" || apperr.Validation.String() != "validation_error" || apperr.Internal.String() != "internal_error" {
		t.Error("Kind.String() wire names changed")
	}
}
