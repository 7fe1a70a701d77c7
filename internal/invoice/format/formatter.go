package format

import (
	"fmt"
	"strings"
)

// NumberWidth is the zero-padded width used for legal invoice numbers.
// Downstream verification tooling parses this exact width; do not change it.
const NumberWidth = 6

// FormatNumber formats the human-readable legal invoice number for a
// series and monotonic sequence, e.g. ("F", 7) -> "F-000007".
//
// This function is PURE:
// - No side effects
// - No DB access
// - Fully deterministic
func FormatNumber(series string, number int64) (string, error) {
	series = strings.TrimSpace(series)
	if series == "" {
		return "", fmt.Errorf("invoice series is empty")
	}
	if number <= 0 {
		return "", fmt.Errorf("invalid invoice number: %d", number)
	}
	return fmt.Sprintf("%s-%0*d", series, NumberWidth, number), nil
}
