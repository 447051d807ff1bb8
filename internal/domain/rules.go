package domain

import (
	"fmt"
	"strings"
	"time"
)

// Rule helpers used by the per-entity validation tables. Each returns nil
// when the rule holds, or a single Violation describing the breach. Rules
// only read the proposed post-change state and have no side effects.

// CheckTemporalOrder requires end to be strictly after start.
func CheckTemporalOrder(field string, start, end time.Time) *Violation {
	if !end.After(start) {
		return &Violation{
			Code:    CodeTemporalOrder,
			Field:   field,
			Message: fmt.Sprintf("%s must be after %s", field, "departure time"),
			Value:   end,
		}
	}
	return nil
}

// NormalizeAirportCode upper-cases an IATA code. Callers normalize before
// validating so stored codes are always canonical.
func NormalizeAirportCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CheckAirportCode requires a 3-letter alphabetic IATA code. The code is
// expected to be normalized already.
func CheckAirportCode(field, code string) *Violation {
	if len(code) != 3 || !isAlpha(code) {
		return &Violation{
			Code:    CodeCodeFormat,
			Field:   field,
			Message: fmt.Sprintf("%s must be a 3-letter IATA code (e.g. HAN, SGN)", field),
			Value:   code,
		}
	}
	return nil
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

// CheckDistinct requires two designated fields to hold different values.
func CheckDistinct(fieldA, fieldB, a, b string) *Violation {
	if a == b {
		return &Violation{
			Code:    CodeDistinctFields,
			Field:   fieldB,
			Message: fmt.Sprintf("%s and %s cannot be the same", fieldA, fieldB),
			Value:   b,
		}
	}
	return nil
}

// CheckPositive requires v > 0. The bound is exclusive: zero fails.
func CheckPositive(field string, v float64) *Violation {
	if v <= 0 {
		return &Violation{
			Code:    CodeNotPositive,
			Field:   field,
			Message: fmt.Sprintf("%s must be positive", field),
			Value:   v,
		}
	}
	return nil
}

// CheckNonNegative requires v >= 0. The bound is inclusive: zero passes.
func CheckNonNegative(field string, v float64) *Violation {
	if v < 0 {
		return &Violation{
			Code:    CodeNegative,
			Field:   field,
			Message: fmt.Sprintf("%s cannot be negative", field),
			Value:   v,
		}
	}
	return nil
}

// CheckPercentRange requires 0 <= v <= 100, both bounds inclusive.
func CheckPercentRange(field string, v float64) *Violation {
	if v < 0 || v > 100 {
		return &Violation{
			Code:    CodeOutOfRange,
			Field:   field,
			Message: fmt.Sprintf("%s must be between 0 and 100", field),
			Value:   v,
		}
	}
	return nil
}

// CheckRequired requires a non-empty string.
func CheckRequired(field, v string) *Violation {
	if strings.TrimSpace(v) == "" {
		return &Violation{
			Code:    CodeRequired,
			Field:   field,
			Message: fmt.Sprintf("%s is required", field),
		}
	}
	return nil
}

// DuplicateViolation builds the violation reported when a composite-key
// uniqueness check finds a conflicting row. The uniqueness query itself runs
// at the repository layer against a consistent snapshot and must exclude the
// entity's own prior version.
func DuplicateViolation(field, value, scope string) *Violation {
	return &Violation{
		Code:    CodeDuplicate,
		Field:   field,
		Message: fmt.Sprintf("%s %q already exists for %s", field, value, scope),
		Value:   value,
	}
}

// Percentage computes v/max*100 with the division-by-zero policy from the
// derived-attribute contract: a zero or absent denominator yields 0.
func Percentage(v, max float64) float64 {
	if max == 0 {
		return 0
	}
	return v / max * 100
}
