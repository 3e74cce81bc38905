// Package paycode validates payer-submitted payment evidence: proof-of-payment
// codes per wallet family, declared amounts against expected amounts, and
// buyer phone numbers. Every function is pure and total.
package paycode

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Family selects the proof-code rules for a mobile-money provider family.
type Family string

const (
	// FamilyMpesa codes are short alphanumeric references, conventionally
	// starting with a letter (e.g. "SJK7Y6H4TQ").
	FamilyMpesa Family = "mpesa"

	// FamilyAirtel codes are purely numeric references.
	FamilyAirtel Family = "airtel"
)

const (
	ReasonRequired    = "required"
	ReasonTooShort    = "too short"
	ReasonTooLong     = "too long"
	ReasonBadChars    = "must contain only letters and digits"
	ReasonNotNumeric  = "must contain only digits"
	ReasonBadPhone    = "must be 10-15 digits, optionally prefixed with +"
	WarningNoLetter   = "code does not start with a letter"
	reasonNonPositive = "amount must be greater than zero"
)

var (
	alphanumericRe = regexp.MustCompile(`^[A-Z0-9]+$`)
	numericRe      = regexp.MustCompile(`^[0-9]+$`)
	phoneRe        = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
)

// CodeResult is the outcome of validating a proof-of-payment code. A result
// can be valid and still carry a warning for the reviewer.
type CodeResult struct {
	Valid bool
	// Code is the normalized (trimmed, upper-cased) form; set on success.
	Code    string
	Reason  string
	Warning string
}

// ValidateCode checks a buyer-entered proof code against the rules of the
// given wallet family. Unknown families fall back to the M-PESA rules.
func ValidateCode(code string, family Family) CodeResult {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return CodeResult{Reason: ReasonRequired}
	}

	switch family {
	case FamilyAirtel:
		return validateNumericCode(normalized, 10, 13)
	case FamilyMpesa:
		return validateAlphanumericCode(normalized, 8, 12)
	default:
		return validateAlphanumericCode(normalized, 8, 12)
	}
}

func validateAlphanumericCode(code string, minLen, maxLen int) CodeResult {
	if len(code) < minLen {
		return CodeResult{Reason: ReasonTooShort}
	}
	if len(code) > maxLen {
		return CodeResult{Reason: ReasonTooLong}
	}
	if !alphanumericRe.MatchString(code) {
		return CodeResult{Reason: ReasonBadChars}
	}

	result := CodeResult{Valid: true, Code: code}
	if code[0] < 'A' || code[0] > 'Z' {
		result.Warning = WarningNoLetter
	}
	return result
}

func validateNumericCode(code string, minLen, maxLen int) CodeResult {
	if !numericRe.MatchString(code) {
		return CodeResult{Reason: ReasonNotNumeric}
	}
	if len(code) < minLen {
		return CodeResult{Reason: ReasonTooShort}
	}
	if len(code) > maxLen {
		return CodeResult{Reason: ReasonTooLong}
	}
	return CodeResult{Valid: true, Code: code}
}

// AmountResult is the outcome of comparing a paid amount against the expected
// amount.
type AmountResult struct {
	Valid  bool
	Reason string
}

// ValidateAmount compares paid against expected within tolerance. Exact
// decimal comparison; the shortfall or excess is reported to two decimals.
func ValidateAmount(paid, expected, tolerance decimal.Decimal) AmountResult {
	if paid.LessThanOrEqual(decimal.Zero) || expected.LessThanOrEqual(decimal.Zero) {
		return AmountResult{Reason: reasonNonPositive}
	}

	diff := paid.Sub(expected)
	if diff.Abs().LessThanOrEqual(tolerance) {
		return AmountResult{Valid: true}
	}

	if diff.IsNegative() {
		return AmountResult{Reason: fmt.Sprintf("Short by %s", diff.Neg().StringFixed(2))}
	}
	return AmountResult{Reason: fmt.Sprintf("Over by %s", diff.StringFixed(2))}
}

// PhoneResult is the outcome of validating a phone number.
type PhoneResult struct {
	Valid bool
	// Normalized has whitespace and hyphens stripped; set on success.
	Normalized string
	Reason     string
}

// ValidatePhone strips whitespace and hyphens, then requires an optional
// leading + followed by 10-15 digits.
func ValidatePhone(phone string) PhoneResult {
	normalized := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-':
			return -1
		default:
			return r
		}
	}, strings.TrimSpace(phone))

	if normalized == "" {
		return PhoneResult{Reason: ReasonRequired}
	}
	if !phoneRe.MatchString(normalized) {
		return PhoneResult{Reason: ReasonBadPhone}
	}
	return PhoneResult{Valid: true, Normalized: normalized}
}
