package extract

import (
	"github.com/Volpestyle/basic-budget-sub003/constants"
	"github.com/Volpestyle/basic-budget-sub003/internal/entity"
)

// BuildPaystubJSONSchema returns the JSON Schema a candidate document must satisfy.
func BuildPaystubJSONSchema() map[string]any {
	sources := constants.AllFieldSources()
	field := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"value":         map[string]any{"type": []string{"string", "number"}},
			"kind":          map[string]any{"enum": []string{string(entity.KindMoney), string(entity.KindDate), string(entity.KindString), string(entity.KindPercentage)}},
			"raw":           map[string]any{"type": "string", "minLength": 1},
			"confidence":    confidenceProp(),
			"source":        map[string]any{"enum": sources},
			"pattern_count": map[string]any{"type": "integer", "minimum": 0},
			"location": map[string]any{
				"type":     "object",
				"required": []string{"page"},
				"properties": map[string]any{
					"page": map[string]any{"type": "integer", "minimum": 1},
				},
			},
		},
		"required": []string{"value", "kind", "raw", "confidence", "source"},
	}
	deduction := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":       map[string]any{"type": "string", "minLength": 1},
			"amount":     map[string]any{"type": "number"},
			"ytd_amount": map[string]any{"type": "number"},
			"category": map[string]any{"enum": []string{
				string(constants.DeductionTax),
				string(constants.DeductionBenefit),
				string(constants.DeductionRetirement),
				string(constants.DeductionOther),
			}},
			"confidence": confidenceProp(),
			"source":     map[string]any{"enum": sources},
		},
		"required": []string{"name", "amount", "category", "confidence"},
	}
	fieldRef := map[string]any{"$ref": "#/$defs/field"}
	deductions := map[string]any{"type": "array", "items": map[string]any{"$ref": "#/$defs/deduction"}}

	return map[string]any{
		"$defs": map[string]any{
			"field":     field,
			"deduction": deduction,
		},
		"type": "object",
		"properties": map[string]any{
			"gross_pay":          fieldRef,
			"net_pay":            fieldRef,
			"pay_period_start":   fieldRef,
			"pay_period_end":     fieldRef,
			"pay_date":           fieldRef,
			"employee_name":      fieldRef,
			"employer_name":      fieldRef,
			"pay_frequency":      map[string]any{"enum": constants.AllPayFrequencies()},
			"tax_deductions":     deductions,
			"benefit_deductions": deductions,
			"other_deductions":   deductions,
			"ytd": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"gross_pay": fieldRef,
					"net_pay":   fieldRef,
				},
			},
			"provider":             map[string]any{"type": "string", "minLength": 1},
			"provider_match_count": map[string]any{"type": "integer", "minimum": 0},
		},
		"required": []string{"pay_frequency", "provider", "tax_deductions", "benefit_deductions", "other_deductions"},
		"anyOf": []any{
			map[string]any{"required": []string{"gross_pay"}},
			map[string]any{"required": []string{"net_pay"}},
		},
	}
}

func confidenceProp() map[string]any {
	return map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0}
}
