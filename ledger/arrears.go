/*
arrears.go - Brought-forward / arrears detection

PURPOSE:
  A student's starting balance for a term can reach the ledger two ways:
    1. an explicit billing line ("Balance B/F", "Arrears 2024", ...)
    2. the promotion-derived or manual previous balance
  It must be counted exactly once. This file is the single place that
  decides whether a billing already carries it.

RULES:
  Text classification is a case-insensitive match of
      brought\s*forward | bf | arrears | prev | balance\s*b/f
  The "bf" alternative matches as a bare substring, so "Lab fees" does not
  match but "SubFund" does.

  A billing is brought-forward when:
    - IsBroughtForward is set: the flag decides
    - IsBroughtForward is nil: Type or Description matches the text pattern

  Both the balance calculator and the clearance calculator call
  IsBroughtForwardBilling; they must never use their own heuristics.
*/
package ledger

import "regexp"

var arrearsPattern = regexp.MustCompile(`(?i)brought\s*forward|bf|arrears|prev|balance\s*b/f`)

// IsArrearsItem reports whether text names a brought-forward / arrears item.
func IsArrearsItem(text string) bool {
	return arrearsPattern.MatchString(text)
}

// IsBroughtForwardBilling applies the structured check to a single billing.
func IsBroughtForwardBilling(b Billing) bool {
	if b.IsBroughtForward != nil {
		return *b.IsBroughtForward
	}
	return IsArrearsItem(string(b.Type)) || IsArrearsItem(b.Description)
}

// HasBroughtForwardBill reports whether any billing carries the starting balance.
func HasBroughtForwardBill(billings []Billing) bool {
	for _, b := range billings {
		if IsBroughtForwardBilling(b) {
			return true
		}
	}
	return false
}
