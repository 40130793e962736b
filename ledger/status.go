package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCOUNT STATUS - Manual transitions, fallback coloring
// =============================================================================

type StatusColor string

const (
	ColorGreen  StatusColor = "green"
	ColorPurple StatusColor = "purple"
	ColorRed    StatusColor = "red"
)

// DefaultProbationThreshold is the clearance % at which an unset status
// renders as probation.
var DefaultProbationThreshold = decimal.NewFromInt(80)

// ColorFor returns the explicit status color. Only when status is unset does
// the clearance percentage decide.
func ColorFor(status AccountStatus, percentage, probationThreshold decimal.Decimal) StatusColor {
	switch status {
	case StatusClearance:
		return ColorGreen
	case StatusProbation:
		return ColorPurple
	case StatusDefaulter:
		return ColorRed
	}
	switch {
	case percentage.GreaterThanOrEqual(hundred):
		return ColorGreen
	case percentage.GreaterThanOrEqual(probationThreshold):
		return ColorPurple
	default:
		return ColorRed
	}
}

// TransitionStatus moves the student to a new status. Any status may move to
// any other, but only with a reason. The returned student is a copy with the
// change appended to ClearanceHistory.
func TransitionStatus(s Student, to AccountStatus, reason, user string, at time.Time) (Student, StatusChange, error) {
	if !to.Valid() {
		return s, StatusChange{}, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	if strings.TrimSpace(reason) == "" {
		return s, StatusChange{}, ErrReasonRequired
	}

	change := StatusChange{
		Date:     at,
		Status:   to,
		Reason:   strings.TrimSpace(reason),
		User:     user,
		IsManual: true,
	}
	next := s.Clone()
	next.AccountStatus = to
	next.ClearanceHistory = append(next.ClearanceHistory, change)
	return next, change, nil
}
