package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColorFor(t *testing.T) {
	threshold := DefaultProbationThreshold

	tests := []struct {
		name   string
		status AccountStatus
		pct    string
		want   StatusColor
	}{
		{"explicit clearance ignores percentage", StatusClearance, "0", ColorGreen},
		{"explicit probation", StatusProbation, "100", ColorPurple},
		{"explicit defaulter ignores full payment", StatusDefaulter, "100", ColorRed},
		{"unset fully cleared", StatusUnset, "100", ColorGreen},
		{"unset at threshold", StatusUnset, "80", ColorPurple},
		{"unset below threshold", StatusUnset, "79.99", ColorRed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ColorFor(tt.status, money(tt.pct), threshold))
		})
	}
}

func TestTransitionStatus(t *testing.T) {
	// GIVEN: a student already on probation
	s := Student{ID: "s1", AccountStatus: StatusProbation}
	s.ClearanceHistory = []StatusChange{{Status: StatusProbation, Reason: "late", User: "bursar", IsManual: true}}

	// WHEN
	next, change, err := TransitionStatus(s, StatusDefaulter, " unpaid ", "bursar", feb5)

	// THEN: the copy carries the new entry, the input is untouched
	require.NoError(t, err)
	assert.Equal(t, StatusDefaulter, next.AccountStatus)
	require.Len(t, next.ClearanceHistory, 2)
	assert.Equal(t, change, next.ClearanceHistory[1])
	assert.Equal(t, "unpaid", change.Reason)
	assert.True(t, change.IsManual)
	assert.Equal(t, feb5, change.Date)
	assert.Equal(t, StatusProbation, s.AccountStatus)
	assert.Len(t, s.ClearanceHistory, 1)
}

func TestTransitionStatus_SameStatusStillRecorded(t *testing.T) {
	s := Student{ID: "s1", AccountStatus: StatusClearance}
	next, _, err := TransitionStatus(s, StatusClearance, "re-confirmed", "bursar", feb5)
	require.NoError(t, err)
	assert.Len(t, next.ClearanceHistory, 1)
}

func TestTransitionStatus_Rejections(t *testing.T) {
	s := Student{ID: "s1"}

	_, _, err := TransitionStatus(s, "suspended", "why not", "bursar", feb5)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.True(t, IsClientError(err))

	_, _, err = TransitionStatus(s, StatusUnset, "clear it", "bursar", feb5)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, _, err = TransitionStatus(s, StatusDefaulter, "", "bursar", feb5)
	assert.ErrorIs(t, err, ErrReasonRequired)
}
