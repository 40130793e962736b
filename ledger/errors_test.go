package ledger

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		client   bool
		notFound bool
		conflict bool
	}{
		{"validation", &ValidationError{Field: "amount", Message: "must be positive"}, true, false, false},
		{"wrapped reason", fmt.Errorf("fix: %w", ErrReasonRequired), true, false, false},
		{"nothing to correct", ErrNothingToCorrect, true, false, false},
		{"student", ErrStudentNotFound, false, true, false},
		{"wrapped payment", fmt.Errorf("load: %w", ErrPaymentNotFound), false, true, false},
		{"duplicate", ErrDuplicateID, false, false, true},
		{"other", fmt.Errorf("disk full"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.client, IsClientError(tt.err))
			assert.Equal(t, tt.notFound, IsNotFound(tt.err))
			assert.Equal(t, tt.conflict, IsConflict(tt.err))
		})
	}
}

func TestValidationError_UnwrapsToErrValidation(t *testing.T) {
	err := &ValidationError{Field: "target_balance", Message: "not a number"}
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "target_balance: not a number", err.Error())
}
