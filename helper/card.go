package helper

import (
	"fmt"
	"strconv"
	"strings"
)

// NormalizeCardNumber drops every non-digit, so "4111 1111-1111 1111" becomes "4111111111111111".
func NormalizeCardNumber(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseCardExpiry turns MM/YY into a month and a four digit year (2000+YY).
func ParseCardExpiry(raw string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(raw), "/")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expiry %q is not in MM/YY format", raw)
	}

	month, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("expiry month %q is invalid", parts[0])
	}

	yearPart := strings.TrimSpace(parts[1])
	if len(yearPart) != 2 {
		return 0, 0, fmt.Errorf("expiry year %q must have two digits", parts[1])
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil || year < 0 {
		return 0, 0, fmt.Errorf("expiry year %q is invalid", parts[1])
	}

	return month, 2000 + year, nil
}

// MaskCardNumber keeps the BIN and the last four digits.
func MaskCardNumber(number string) string {
	digits := NormalizeCardNumber(number)
	if len(digits) < 10 {
		return strings.Repeat("*", len(digits))
	}
	return digits[:6] + strings.Repeat("*", len(digits)-10) + digits[len(digits)-4:]
}

func CardBIN(number string) string {
	if len(number) < 6 {
		return number
	}
	return number[:6]
}

func CardLast4(number string) string {
	if len(number) < 4 {
		return number
	}
	return number[len(number)-4:]
}
