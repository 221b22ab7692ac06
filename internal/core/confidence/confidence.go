// Package confidence turns extraction signals into scores in [0,1].
package confidence

import (
	"regexp"
	"strings"

	"github.com/Volpestyle/basic-budget-sub003/constants"
)

const (
	baseText    = 0.85
	basePattern = 0.80
	baseOCR     = 0.70
	baseOther   = 0.50

	numericBonus    = 0.10
	formattedBonus  = 0.05
	perPatternBonus = 0.05

	matchBase        = 0.70
	earlyMatchBonus  = 0.10
	earlyMatchCutoff = 100
	literalBonus     = 0.05
	delimiterBonus   = 0.10
	lookbehind       = 10
	lookahead        = 50

	genericProviderScore = 0.50
	providerBase         = 0.60
	providerPerMatch     = 0.10
	providerNamedBonus   = 0.20
	providerCap          = 0.95

	// leading weight applies to gross and net pay.
	leadingWeight = 2.0
	leadingFields = 2
)

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`),
	regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`),
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
}

// Score rates a single extracted value.
func Score(value string, source constants.FieldSource, patternCount int) float64 {
	score := baseFor(source)
	if isNumeric(value) {
		score += numericBonus
	}
	if isWellFormatted(value) {
		score += formattedBonus
	}
	if patternCount > 1 {
		score += perPatternBonus * float64(patternCount)
	}
	return clamp(score, 1.0)
}

func baseFor(source constants.FieldSource) float64 {
	switch source {
	case constants.SourcePDFText:
		return baseText
	case constants.SourcePattern:
		return basePattern
	case constants.SourceOCR:
		return baseOCR
	default:
		return baseOther
	}
}

// Overall fuses field scores. The first two scores weigh double; an empty
// input scores 0.
func Overall(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum, weights float64
	for i, s := range scores {
		w := 1.0
		if i < leadingFields {
			w = leadingWeight
		}
		sum += s * w
		weights += w
	}
	return sum / weights
}

// Weighted is the weighted mean of scores. Missing or non-positive weights
// count as 1; an empty input scores 0.
func Weighted(scores, weights []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum, total float64
	for i, s := range scores {
		w := 1.0
		if i < len(weights) && weights[i] > 0 {
			w = weights[i]
		}
		sum += s * w
		total += w
	}
	return sum / total
}

// LeadingWeight is the weight gross and net pay carry in the overall score.
const LeadingWeight = leadingWeight

// Match rates a label pattern hit at byte offset position in text.
func Match(text, pattern string, position int) float64 {
	score := matchBase
	if position < earlyMatchCutoff {
		score += earlyMatchBonus
	}
	if pattern != "" && strings.Contains(text, pattern) {
		score += literalBonus
	}
	if hasDelimiterNear(text, position) {
		score += delimiterBonus
	}
	return clamp(score, 1.0)
}

// Provider rates a payroll provider detection. The generic fallback is
// always 0.5 and named providers never exceed 0.95.
func Provider(text, provider string, matchCount int) float64 {
	if provider == constants.GenericProvider {
		return genericProviderScore
	}
	score := providerBase + providerPerMatch*float64(matchCount)
	if provider != "" && strings.Contains(strings.ToLower(text), strings.ToLower(provider)) {
		score += providerNamedBonus
	}
	return clamp(score, providerCap)
}

func hasDelimiterNear(text string, position int) bool {
	start := max(position-lookbehind, 0)
	end := min(position+lookahead, len(text))
	if start >= end {
		return false
	}
	window := text[start:end]
	return strings.ContainsAny(window, ":|\t") || strings.Contains(window, "  ")
}

func isNumeric(value string) bool {
	s := strings.NewReplacer(",", "", "$", "", " ", "").Replace(value)
	if s == "" {
		return false
	}
	digits, dots := 0, 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}

func isWellFormatted(value string) bool {
	if strings.HasPrefix(value, "$") || strings.HasSuffix(value, "%") {
		return true
	}
	for _, re := range datePatterns {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}

func clamp(v, hi float64) float64 {
	if v > hi {
		return hi
	}
	if v < 0 {
		return 0
	}
	return v
}
