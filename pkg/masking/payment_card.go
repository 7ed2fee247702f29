package masking

import (
	"regexp"
	"strings"
)

// MaskedCardValue is the replacement string for masked payment card numbers.
// The last four digits are appended so an operator can still match the card
// against an order record.
const MaskedCardValue = "__MASKED_CARD_"

// candidateCardPattern matches digit runs that could be a card number:
// 13-19 digits, optionally grouped by single spaces or dashes.
var candidateCardPattern = regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`)

// PaymentCardMasker masks payment card numbers in tool result text. A bare
// regex would also swallow order ids and tracking numbers, so every
// candidate digit run is Luhn-checked before replacement.
type PaymentCardMasker struct{}

// Name returns the unique identifier for this masker.
func (m *PaymentCardMasker) Name() string { return "payment_card" }

// AppliesTo performs a lightweight check on whether this masker should
// process the data.
func (m *PaymentCardMasker) AppliesTo(data string) bool {
	return candidateCardPattern.MatchString(data)
}

// Mask replaces Luhn-valid candidate digit runs, keeping the last four
// digits. Runs that fail the checksum pass through untouched.
func (m *PaymentCardMasker) Mask(data string) string {
	return candidateCardPattern.ReplaceAllStringFunc(data, func(candidate string) string {
		digits := stripSeparators(candidate)
		if len(digits) < 13 || len(digits) > 19 || !luhnValid(digits) {
			return candidate
		}
		return MaskedCardValue + digits[len(digits)-4:] + "__"
	})
}

func stripSeparators(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// luhnValid reports whether a digit string passes the Luhn checksum.
func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
