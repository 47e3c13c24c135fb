// Package fees holds the service-fee schedule for loan applications.
// The bracket boundaries and amounts encode the platform's pricing
// contract and must match the backend exactly.
package fees

import (
	"errors"
	"fmt"
)

const (
	// MinAmount and MaxAmount bound the loanable range in KES.
	MinAmount = 1000
	MaxAmount = 60000
)

var (
	ErrBelowMinimum      = fmt.Errorf("loan amount must be at least %d KES", MinAmount)
	ErrAboveMaximum      = fmt.Errorf("loan amount must not exceed %d KES", MaxAmount)
	ErrUnsupportedAmount = errors.New("service fee not configured for this amount")
)

// Bracket is one tier of the fee schedule. Min and Max are inclusive.
type Bracket struct {
	Min   int64
	Max   int64
	Fee   int64
	Label string
}

// brackets is ordered and non-overlapping. The first two tiers are exact
// amounts, so 1001-1999 and 2001-2999 deliberately have no fee and are
// rejected.
var brackets = []Bracket{
	{Min: 1000, Max: 1000, Fee: 200, Label: "KES 1,000"},
	{Min: 2000, Max: 2000, Fee: 290, Label: "KES 2,000"},
	{Min: 3000, Max: 5000, Fee: 680, Label: "KES 3,000 - 5,000"},
	{Min: 6000, Max: 11000, Fee: 1200, Label: "KES 6,000 - 11,000"},
	{Min: 12000, Max: 22000, Fee: 2200, Label: "KES 12,000 - 22,000"},
	{Min: 23000, Max: 32000, Fee: 3200, Label: "KES 23,000 - 32,000"},
	{Min: 33000, Max: 42000, Fee: 4200, Label: "KES 33,000 - 42,000"},
	{Min: 43000, Max: 52000, Fee: 5200, Label: "KES 43,000 - 52,000"},
	{Min: 53000, Max: 60000, Fee: 6000, Label: "KES 53,000 - 60,000"},
}

// Brackets returns a copy of the fee schedule.
func Brackets() []Bracket {
	out := make([]Bracket, len(brackets))
	copy(out, brackets)
	return out
}

// FeeFor returns the flat service fee bracket for a loan amount.
// Amounts outside [MinAmount, MaxAmount] fail with a boundary-specific
// error; in-range amounts that fall between tiers fail with
// ErrUnsupportedAmount.
func FeeFor(amount int64) (Bracket, error) {
	if amount < MinAmount {
		return Bracket{}, ErrBelowMinimum
	}
	if amount > MaxAmount {
		return Bracket{}, ErrAboveMaximum
	}
	for _, b := range brackets {
		if amount >= b.Min && amount <= b.Max {
			return b, nil
		}
	}
	return Bracket{}, ErrUnsupportedAmount
}
