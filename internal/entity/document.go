package entity

import (
	"encoding/json"
	"time"

	"github.com/Volpestyle/basic-budget-sub003/constants"
)

// Location is where a value was found. Coordinates are in page pixels.
type Location struct {
	Page   int     `json:"page"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ExtractedField is one extracted value with its provenance.
type ExtractedField struct {
	Value      FieldValue
	Confidence float64
	Source     constants.FieldSource
	Location   *Location
	// PatternCount is how many distinct label patterns agreed on Value.
	PatternCount int
}

type extractedFieldJSON struct {
	Value        FieldValue            `json:"value"`
	Kind         ValueKind             `json:"kind"`
	Raw          string                `json:"raw"`
	Confidence   float64               `json:"confidence"`
	Source       constants.FieldSource `json:"source"`
	Location     *Location             `json:"location,omitempty"`
	PatternCount int                   `json:"pattern_count,omitempty"`
}

func (f ExtractedField) MarshalJSON() ([]byte, error) {
	return json.Marshal(extractedFieldJSON{
		Value:        f.Value,
		Kind:         f.Value.Kind(),
		Raw:          f.Value.Raw(),
		Confidence:   f.Confidence,
		Source:       f.Source,
		Location:     f.Location,
		PatternCount: f.PatternCount,
	})
}

// UnmarshalJSON rebuilds the typed value from kind and raw; the scalar value is
// derived data and is ignored.
func (f *ExtractedField) UnmarshalJSON(data []byte) error {
	var aux struct {
		Kind         ValueKind             `json:"kind"`
		Raw          string                `json:"raw"`
		Confidence   float64               `json:"confidence"`
		Source       constants.FieldSource `json:"source"`
		Location     *Location             `json:"location,omitempty"`
		PatternCount int                   `json:"pattern_count,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	v, err := ParseFieldValue(aux.Kind, aux.Raw)
	if err != nil {
		return err
	}
	*f = ExtractedField{
		Value:        v,
		Confidence:   aux.Confidence,
		Source:       aux.Source,
		Location:     aux.Location,
		PatternCount: aux.PatternCount,
	}
	return nil
}

// Deduction is one line of the deductions table.
type Deduction struct {
	Name       string                      `json:"name"`
	Amount     float64                     `json:"amount"`
	YTDAmount  *float64                    `json:"ytd_amount,omitempty"`
	Category   constants.DeductionCategory `json:"category"`
	Confidence float64                     `json:"confidence"`
	Source     constants.FieldSource       `json:"source"`
	// Raw is the amount text as printed.
	Raw          string `json:"raw"`
	PatternCount int    `json:"pattern_count,omitempty"`
}

// YearToDate holds the YTD totals block.
type YearToDate struct {
	GrossPay        *ExtractedField `json:"gross_pay,omitempty"`
	NetPay          *ExtractedField `json:"net_pay,omitempty"`
	TotalTaxes      *float64        `json:"total_taxes,omitempty"`
	TotalDeductions *float64        `json:"total_deductions,omitempty"`
}

// ExtractedDocument is the scored result of one paystub.
type ExtractedDocument struct {
	GrossPay          *ExtractedField        `json:"gross_pay,omitempty"`
	NetPay            *ExtractedField        `json:"net_pay,omitempty"`
	PayPeriodStart    *ExtractedField        `json:"pay_period_start,omitempty"`
	PayPeriodEnd      *ExtractedField        `json:"pay_period_end,omitempty"`
	PayDate           *ExtractedField        `json:"pay_date,omitempty"`
	PayFrequency      constants.PayFrequency `json:"pay_frequency"`
	EmployeeName      *ExtractedField        `json:"employee_name,omitempty"`
	EmployerName      *ExtractedField        `json:"employer_name,omitempty"`
	TaxDeductions     []Deduction            `json:"tax_deductions"`
	BenefitDeductions []Deduction            `json:"benefit_deductions"`
	OtherDeductions   []Deduction            `json:"other_deductions"`
	YTD               YearToDate             `json:"ytd"`

	Provider           string  `json:"provider"`
	ProviderMatchCount int     `json:"provider_match_count"`
	ProviderConfidence float64 `json:"provider_confidence"`

	OverallConfidence float64       `json:"overall_confidence"`
	ProcessedAt       time.Time     `json:"processed_at"`
	ProcessingTime    time.Duration `json:"processing_time_ns"`
	RawText           string        `json:"raw_text,omitempty"`
}

// Fields returns the scalar fields present, in scoring order: gross pay and
// net pay first, then period, pay date, names and YTD totals.
func (d *ExtractedDocument) Fields() []*ExtractedField {
	candidates := []*ExtractedField{
		d.GrossPay,
		d.NetPay,
		d.PayPeriodStart,
		d.PayPeriodEnd,
		d.PayDate,
		d.EmployeeName,
		d.EmployerName,
		d.YTD.GrossPay,
		d.YTD.NetPay,
	}
	out := make([]*ExtractedField, 0, len(candidates))
	for _, f := range candidates {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

// Deductions returns every deduction across the three lists.
func (d *ExtractedDocument) Deductions() []*Deduction {
	out := make([]*Deduction, 0, len(d.TaxDeductions)+len(d.BenefitDeductions)+len(d.OtherDeductions))
	for _, list := range [][]Deduction{d.TaxDeductions, d.BenefitDeductions, d.OtherDeductions} {
		for i := range list {
			out = append(out, &list[i])
		}
	}
	return out
}

// TotalDeductions sums amounts per list.
func (d *ExtractedDocument) TotalDeductions() (tax, benefit, other float64) {
	for _, x := range d.TaxDeductions {
		tax += x.Amount
	}
	for _, x := range d.BenefitDeductions {
		benefit += x.Amount
	}
	for _, x := range d.OtherDeductions {
		other += x.Amount
	}
	return tax, benefit, other
}

// Clone returns a deep copy so stored results never alias caller memory.
func (d *ExtractedDocument) Clone() *ExtractedDocument {
	if d == nil {
		return nil
	}
	out := *d
	cloneField := func(f *ExtractedField) *ExtractedField {
		if f == nil {
			return nil
		}
		c := *f
		if f.Location != nil {
			loc := *f.Location
			c.Location = &loc
		}
		return &c
	}
	out.GrossPay = cloneField(d.GrossPay)
	out.NetPay = cloneField(d.NetPay)
	out.PayPeriodStart = cloneField(d.PayPeriodStart)
	out.PayPeriodEnd = cloneField(d.PayPeriodEnd)
	out.PayDate = cloneField(d.PayDate)
	out.EmployeeName = cloneField(d.EmployeeName)
	out.EmployerName = cloneField(d.EmployerName)
	out.YTD.GrossPay = cloneField(d.YTD.GrossPay)
	out.YTD.NetPay = cloneField(d.YTD.NetPay)
	out.YTD.TotalTaxes = cloneFloat(d.YTD.TotalTaxes)
	out.YTD.TotalDeductions = cloneFloat(d.YTD.TotalDeductions)
	out.TaxDeductions = cloneDeductions(d.TaxDeductions)
	out.BenefitDeductions = cloneDeductions(d.BenefitDeductions)
	out.OtherDeductions = cloneDeductions(d.OtherDeductions)
	return &out
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneDeductions(in []Deduction) []Deduction {
	if in == nil {
		return nil
	}
	out := make([]Deduction, len(in))
	for i, d := range in {
		d.YTDAmount = cloneFloat(d.YTDAmount)
		out[i] = d
	}
	return out
}
