package quality

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"masterdata/internal/domain"
)

var (
	arabicRe    = regexp.MustCompile(`[\x{0600}-\x{06FF}]`)
	emailRe     = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe     = regexp.MustCompile(`^\+?[\d\s\-()]{7,15}$`)
	latinNameRe = regexp.MustCompile(`[^a-zA-Z\s&.-]`)
)

// FieldScore rates one field value on a 0..100 scale. Empty values score
// zero; present values start at 50 and earn bonuses for plausible shape.
// Field-specific checks apply only to the fields they validate.
func FieldScore(key domain.FieldKey, value string) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	score := 50
	// Length is counted in characters, not bytes, so Arabic values are not
	// penalized for their multi-byte encoding.
	if n := utf8.RuneCountInString(value); n > 3 && n < 100 {
		score += 20
	}
	switch key {
	case domain.FieldCompanyNameAr:
		if arabicRe.MatchString(value) {
			score += 30
		}
	case domain.FieldEmailAddress:
		if emailRe.MatchString(value) {
			score += 30
		}
	case domain.FieldMobileNumber, domain.FieldLandline:
		if phoneRe.MatchString(value) {
			score += 20
		}
	case domain.FieldTaxNumber:
		if len(value) >= 10 {
			score += 25
		}
	case domain.FieldCompanyName:
		if !latinNameRe.MatchString(value) {
			score += 15
		}
	}
	if score > 100 {
		score = 100
	}
	return score
}

// RecordScore averages the field scores of every populated tracked field.
// Used to rank whole records when no per-field selection is in play.
func RecordScore(f *domain.CompanyFields) int {
	var total, populated int
	for _, key := range domain.TrackedFields {
		value := f.Get(key)
		if strings.TrimSpace(value) == "" {
			continue
		}
		total += FieldScore(key, value)
		populated++
	}
	if populated == 0 {
		return 0
	}
	return total / populated
}
