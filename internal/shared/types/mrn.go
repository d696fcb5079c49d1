package types

import (
	"fmt"
	"regexp"
	"strings"
)

// MRN is a medical record number, the patient's stable identifier
// across admissions. Format: 2-16 characters, uppercase letters,
// digits and hyphens, containing at least one digit (e.g. "A100",
// "IMD-2024-0042").
type MRN string

var mrnRegex = regexp.MustCompile(`^[A-Z0-9][A-Z0-9-]{1,15}$`)

// ParseMRN normalizes and validates a medical record number.
func ParseMRN(s string) (MRN, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	if !mrnRegex.MatchString(normalized) {
		return "", fmt.Errorf("MRN must be 2-16 characters of letters, digits or hyphens")
	}
	if !strings.ContainsAny(normalized, "0123456789") {
		return "", fmt.Errorf("MRN must contain at least one digit")
	}
	return MRN(normalized), nil
}

// String returns the string representation
func (m MRN) String() string {
	return string(m)
}

// Masked returns a masked version for display in logs and exports
// outside the clinical context (first 2 characters visible).
func (m MRN) Masked() string {
	if len(m) <= 2 {
		return "****"
	}
	return string(m)[:2] + strings.Repeat("*", len(m)-2)
}

// IsZero checks if the MRN is empty
func (m MRN) IsZero() bool {
	return m == ""
}
