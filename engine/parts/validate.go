package parts

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Part numbers: manufacturer alphanumerics with the usual separators,
// 2 to 40 characters after normalization.
var partNumberRegex = regexp.MustCompile(`^[A-Z0-9][A-Z0-9./-]{1,39}$`)

const maxDescriptionRunes = 2000

// NormalizePartNumber upper-cases and trims a part number so the same part
// always maps to the same catalog identity.
func NormalizePartNumber(pn string) string {
	return strings.ToUpper(strings.TrimSpace(pn))
}

// ValidatePart checks a catalog record before ingestion. Match queries are
// deliberately not validated here; free-form technician text passes through
// to the embedder untouched.
func ValidatePart(p Part) error {
	pn := NormalizePartNumber(p.PartNumber)
	if pn == "" {
		return NewValidationError("part_number", p.PartNumber, ErrMissingPartNumber)
	}
	if !partNumberRegex.MatchString(pn) {
		return NewValidationError("part_number", p.PartNumber, ErrInvalidPartNumber)
	}

	desc := strings.TrimSpace(p.Description)
	if desc == "" {
		return NewValidationError("description", p.Description, ErrMissingDescription)
	}
	if utf8.RuneCountInString(desc) > maxDescriptionRunes {
		return NewValidationError("description", desc[:32]+"...", ErrDescriptionTooLong)
	}

	if p.Category != "" && !ValidCategories[p.Category] {
		return NewValidationError("category", p.Category, ErrInvalidCategory)
	}
	return nil
}
