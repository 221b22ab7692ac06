package confidence

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Volpestyle/basic-budget-sub003/constants"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		source constants.FieldSource
		count  int
		want   float64
	}{
		{"pdf text numeric", "5000.00", constants.SourcePDFText, 0, 0.95},
		{"pdf text dollar amount", "$5,000.00", constants.SourcePDFText, 1, 1.0},
		{"pattern plain text", "ACME Corp", constants.SourcePattern, 0, 0.80},
		{"ocr slash date", "01/15/2024", constants.SourceOCR, 0, 0.75},
		{"ocr iso date", "2024-01-15", constants.SourceOCR, 0, 0.75},
		{"ocr dash date", "01-15-2024", constants.SourceOCR, 1, 0.75},
		{"unknown source", "hello", constants.FieldSource("manual"), 0, 0.50},
		{"percentage", "7.65%", constants.SourceOCR, 0, 0.75},
		{"two dots not numeric", "1.2.3", constants.SourceOCR, 0, 0.70},
		{"only symbols not numeric", "$", constants.SourceOCR, 0, 0.75},
		{"empty", "", constants.SourceOCR, 0, 0.70},
		{"corroborated ocr text", "Jane Doe", constants.SourceOCR, 3, 0.85},
		{"single pattern gets no bonus", "Jane Doe", constants.SourceOCR, 1, 0.70},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.value, tt.source, tt.count), 1e-9)
		})
	}
}

func TestScoreBounded(t *testing.T) {
	values := []string{"", "$1", "12/31/2024", "abc", "99%", "1,000,000.00", "$ 4 2"}
	sources := []constants.FieldSource{constants.SourceOCR, constants.SourcePDFText, constants.SourcePattern, ""}
	for _, v := range values {
		for _, s := range sources {
			for n := 0; n < 30; n++ {
				got := Score(v, s, n)
				assert.GreaterOrEqual(t, got, 0.0)
				assert.LessOrEqual(t, got, 1.0)
			}
		}
	}
}

func TestOverall(t *testing.T) {
	assert.Equal(t, 0.0, Overall(nil))
	assert.Equal(t, 0.0, Overall([]float64{}))
	assert.InDelta(t, 0.78, Overall([]float64{0.9, 0.8, 0.5}), 1e-9)
	assert.InDelta(t, 0.95, Overall([]float64{0.95, 0.95}), 1e-9)
	assert.InDelta(t, 0.6, Overall([]float64{0.6}), 1e-9)
	// weights 2,2,1,1
	assert.InDelta(t, (2*1.0+2*0.5+0.5+0.0)/6, Overall([]float64{1.0, 0.5, 0.5, 0.0}), 1e-9)
}

func TestWeighted(t *testing.T) {
	assert.Equal(t, 0.0, Weighted(nil, nil))
	assert.InDelta(t, (2*0.95+0.70)/3, Weighted([]float64{0.95, 0.70}, []float64{LeadingWeight, 1}), 1e-9)
	// pay amounts need not lead the slice
	assert.InDelta(t, (0.70+2*0.95)/3, Weighted([]float64{0.70, 0.95}, []float64{1, LeadingWeight}), 1e-9)
	// missing weights count as 1
	assert.InDelta(t, 0.75, Weighted([]float64{0.5, 1.0}, nil), 1e-9)
}

func TestMatch(t *testing.T) {
	t.Run("early with delimiter and literal", func(t *testing.T) {
		text := "Gross Pay: 5,000.00"
		assert.InDelta(t, 0.95, Match(text, "Gross Pay", 0), 1e-9)
	})
	t.Run("late without delimiter", func(t *testing.T) {
		text := strings.Repeat("x", 200) + "Gross Pay 5000"
		assert.InDelta(t, 0.75, Match(text, "Gross Pay", 200), 1e-9)
	})
	t.Run("pattern absent", func(t *testing.T) {
		text := strings.Repeat("y", 150)
		assert.InDelta(t, 0.70, Match(text, "Net Pay", 120), 1e-9)
	})
	t.Run("double space counts as delimiter", func(t *testing.T) {
		text := strings.Repeat("z", 200) + "Net Pay  3750.00"
		assert.InDelta(t, 0.85, Match(text, "Net Pay", 200), 1e-9)
	})
	t.Run("delimiter outside window ignored", func(t *testing.T) {
		text := "a:" + strings.Repeat("b", 200)
		assert.InDelta(t, 0.70, Match(text, "", 150), 1e-9)
	})
	t.Run("position past end", func(t *testing.T) {
		assert.InDelta(t, 0.80, Match("abc", "", 0), 1e-9)
		assert.InDelta(t, 0.70, Match("abc", "", 500), 1e-9)
	})
}

func TestProvider(t *testing.T) {
	assert.Equal(t, 0.5, Provider("adp payroll", constants.GenericProvider, 0))
	assert.Equal(t, 0.5, Provider("", constants.GenericProvider, 12))
	assert.InDelta(t, 0.95, Provider("Earnings Statement ... adp ...", "ADP", 3), 1e-9)
	assert.InDelta(t, 0.70, Provider("nothing here", "Paychex", 1), 1e-9)
	assert.InDelta(t, 0.90, Provider("PAYCHEX INC", "Paychex", 1), 1e-9)
	assert.InDelta(t, 0.95, Provider("", "Workday", 10), 1e-9)
}
