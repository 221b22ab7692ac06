package constants

import (
	"strings"
)

// DeductionCategory classifies a paystub deduction line.
type DeductionCategory string

const (
	DeductionTax        DeductionCategory = "tax"
	DeductionBenefit    DeductionCategory = "benefit"
	DeductionRetirement DeductionCategory = "retirement"
	DeductionOther      DeductionCategory = "other"
)

// keyword -> category, checked in order; the generic "tax" keyword goes last so
// "Dental Pre-Tax" is a benefit.
var deductionKeywords = []struct {
	keyword  string
	category DeductionCategory
}{
	{"federal", DeductionTax},
	{"fed ", DeductionTax},
	{"fit", DeductionTax},
	{"state", DeductionTax},
	{"social security", DeductionTax},
	{"oasdi", DeductionTax},
	{"fica", DeductionTax},
	{"medicare", DeductionTax},
	{"withholding", DeductionTax},
	{"sdi", DeductionTax},
	{"local", DeductionTax},
	{"city", DeductionTax},
	{"401k", DeductionRetirement},
	{"401(k)", DeductionRetirement},
	{"403b", DeductionRetirement},
	{"403(b)", DeductionRetirement},
	{"roth", DeductionRetirement},
	{"pension", DeductionRetirement},
	{"retirement", DeductionRetirement},
	{"medical", DeductionBenefit},
	{"dental", DeductionBenefit},
	{"vision", DeductionBenefit},
	{"health", DeductionBenefit},
	{"hsa", DeductionBenefit},
	{"fsa", DeductionBenefit},
	{"life", DeductionBenefit},
	{"disability", DeductionBenefit},
	{"insurance", DeductionBenefit},
	{"tax", DeductionTax},
}

// CategorizeDeduction maps a deduction label to its category.
// Returns DeductionOther and false when nothing matched.
func CategorizeDeduction(label string) (DeductionCategory, bool) {
	normalized := " " + strings.ToLower(strings.TrimSpace(label)) + " "
	if strings.TrimSpace(normalized) == "" {
		return DeductionOther, false
	}

	// retirement first: "401k" labels often contain "tax deferred"
	for _, kw := range deductionKeywords {
		if kw.category == DeductionRetirement && strings.Contains(normalized, kw.keyword) {
			return kw.category, true
		}
	}
	for _, kw := range deductionKeywords {
		if kw.category == DeductionRetirement {
			continue
		}
		if containsWord(normalized, kw.keyword) {
			return kw.category, true
		}
	}
	return DeductionOther, false
}

// containsWord is a loose word-boundary check so "fit" does not match "benefit".
func containsWord(haystack, word string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		if !isLetter(haystack, start-1) && !isLetter(haystack, end) {
			return true
		}
		idx = start + 1
	}
}

func isLetter(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return false
	}
	c := s[i]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// PayFrequency is how often the employee is paid.
type PayFrequency string

const (
	PayWeekly      PayFrequency = "weekly"
	PayBiweekly    PayFrequency = "biweekly"
	PaySemiMonthly PayFrequency = "semi_monthly"
	PayMonthly     PayFrequency = "monthly"
	PayUnknown     PayFrequency = "unknown"
)

// AllPayFrequencies lists every frequency value, used by the candidate schema.
func AllPayFrequencies() []string {
	return []string{string(PayWeekly), string(PayBiweekly), string(PaySemiMonthly), string(PayMonthly), string(PayUnknown)}
}

// FieldSource is the extraction technique that produced a field value.
type FieldSource string

const (
	SourceOCR     FieldSource = "ocr"
	SourcePDFText FieldSource = "pdf_text"
	SourcePattern FieldSource = "pattern"
)

// AllFieldSources lists every source value, used by the candidate schema.
func AllFieldSources() []string {
	return []string{string(SourceOCR), string(SourcePDFText), string(SourcePattern)}
}

// GenericProvider is reported when no payroll vendor layout was recognized.
const GenericProvider = "Generic"
