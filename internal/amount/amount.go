// Package amount implements the deterministic unique-amount scheme used to
// match an out-of-band bank transfer back to one pending booking. The base
// deposit is perturbed by a cents offset derived from the payment reference,
// so a transfer of exactly that amount fingerprints the booking attempt.
package amount

import (
	"math"
	"strings"

	"github.com/google/uuid"
)

const (
	offsetModulus = 90
	offsetFloor   = 10
)

// Offset folds the UTF-8 bytes of ref + "|" + salt into a sub-unit offset
// in [10,99]. The offset is never zero, so every generated amount has a
// fractional part that distinguishes it from a round-number human payment.
func Offset(refCode, salt string) int {
	seed := refCode + "|" + salt
	acc := 0
	for i := 0; i < len(seed); i++ {
		acc = (acc + int(seed[i])*(i+11)) % offsetModulus
	}
	return acc + offsetFloor
}

// Unique returns base plus the cents offset for the reference, rounded to
// two decimals. Deterministic: the same refCode always yields the same
// amount. Not collision-free across refCodes; callers disambiguate further
// with the booking's date/time/provider window.
func Unique(base float64, refCode, salt string) float64 {
	return Round2(base + float64(Offset(refCode, salt))/100)
}

// Round2 rounds to the cent.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// EqualCents compares two currency amounts to the cent.
func EqualCents(a, b float64) bool {
	return math.Round(a*100) == math.Round(b*100)
}

// NewPaymentRef generates a short upper-case payment reference for one
// booking attempt.
func NewPaymentRef() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "R" + raw[:9]
}
