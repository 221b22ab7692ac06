package extract

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/Volpestyle/basic-budget-sub003/constants"
	"github.com/Volpestyle/basic-budget-sub003/internal/common"
	"github.com/Volpestyle/basic-budget-sub003/internal/core/confidence"
	"github.com/Volpestyle/basic-budget-sub003/internal/entity"
)

// PatternEngine extracts paystub fields from document text with label patterns.
type PatternEngine struct {
	text   TextExtractor
	logger *slog.Logger
}

func NewPatternEngine(text TextExtractor, logger *slog.Logger) *PatternEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &PatternEngine{text: text, logger: logger}
}

// Extract recovers the document text and parses it into candidate fields.
func (e *PatternEngine) Extract(ctx context.Context, payload []byte, contentType string) (*entity.ExtractedDocument, error) {
	res, err := e.text.ExtractBytes(ctx, payload, contentType)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(res.Text) == "" {
		return nil, common.NewExtractionError(common.CodeNoFields, "no text recovered from document", nil)
	}

	doc := Parse(res.Text, res.Source)
	if doc.GrossPay == nil && doc.NetPay == nil {
		e.logger.Warn("no pay amounts found", "method", res.Method, "chars", len(res.Text))
		return nil, common.NewExtractionError(common.CodeNoFields, "neither gross nor net pay found", nil)
	}
	e.logger.Debug("fields extracted",
		"provider", doc.Provider,
		"fields", len(doc.Fields()),
		"deductions", len(doc.Deductions()),
	)
	return doc, nil
}

// Parse turns normalized paystub text into an unscored candidate document.
// Fields found by a label carry source; fallback values carry SourcePattern.
func Parse(text string, source constants.FieldSource) *entity.ExtractedDocument {
	doc := &entity.ExtractedDocument{
		PayFrequency:      constants.PayUnknown,
		TaxDeductions:     []entity.Deduction{},
		BenefitDeductions: []entity.Deduction{},
		OtherDeductions:   []entity.Deduction{},
		RawText:           text,
	}

	doc.GrossPay = findField(text, grossPayRule, source)
	if doc.GrossPay == nil {
		doc.GrossPay = largestDollarAmount(text)
	}
	doc.NetPay = findField(text, netPayRule, source)
	doc.PayPeriodStart = findField(text, periodStartRule, source)
	doc.PayPeriodEnd = findField(text, periodEndRule, source)
	doc.PayDate = findField(text, payDateRule, source)
	doc.EmployeeName = findField(text, employeeRule, source)
	doc.EmployerName = findField(text, employerRule, source)
	doc.YTD.GrossPay = findField(text, ytdGrossRule, source)
	doc.YTD.NetPay = findField(text, ytdNetRule, source)

	for _, d := range findDeductions(text, source) {
		switch d.Category {
		case constants.DeductionTax:
			doc.TaxDeductions = append(doc.TaxDeductions, d)
		case constants.DeductionBenefit:
			doc.BenefitDeductions = append(doc.BenefitDeductions, d)
		default:
			doc.OtherDeductions = append(doc.OtherDeductions, d)
		}
	}
	all := doc.Deductions()
	doc.YTD.TotalTaxes = sumYTD(all, func(d *entity.Deduction) bool { return d.Category == constants.DeductionTax })
	doc.YTD.TotalDeductions = sumYTD(all, nil)

	doc.PayFrequency = detectFrequency(text, doc.PayPeriodStart, doc.PayPeriodEnd)
	doc.Provider, doc.ProviderMatchCount = detectProvider(text)
	return doc
}

type candidate struct {
	value entity.FieldValue
	label string
	pos   int // offset of the value in text
	score float64
}

func findField(text string, rule fieldRule, source constants.FieldSource) *entity.ExtractedField {
	var cands []candidate
	for _, p := range rule.patterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[2*p.group], m[2*p.group+1]
			if start < 0 {
				continue
			}
			if rule.skipYTD && onYTDLine(text, start) {
				continue
			}
			raw := strings.TrimSpace(text[start:end])
			if rule.kind == entity.KindString {
				raw = strings.TrimRight(raw, " ,.-")
			}
			v, err := entity.ParseFieldValue(rule.kind, raw)
			if err != nil || raw == "" {
				continue
			}
			cands = append(cands, candidate{
				value: v,
				label: p.label,
				pos:   start,
				score: confidence.Match(text, p.label, m[0]),
			})
		}
	}
	if len(cands) == 0 {
		return nil
	}

	best := cands[0]
	for _, c := range cands[1:] {
		if c.score > best.score || (c.score == best.score && c.pos < best.pos) {
			best = c
		}
	}
	// several labels can hit the same printed value; count it once
	agree := map[int]struct{}{}
	for _, c := range cands {
		if sameValue(c.value, best.value) {
			agree[c.pos] = struct{}{}
		}
	}
	return &entity.ExtractedField{
		Value:        best.value,
		Source:       source,
		PatternCount: len(agree),
	}
}

func onYTDLine(text string, pos int) bool {
	lineStart := strings.LastIndexByte(text[:pos], '\n') + 1
	return reYTDPrefix.MatchString(text[lineStart:pos])
}

func sameValue(a, b entity.FieldValue) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case entity.KindMoney:
		x, _ := a.Amount()
		y, _ := b.Amount()
		return x == y
	case entity.KindDate:
		x, _ := a.Time()
		y, _ := b.Time()
		return x.Equal(y)
	default:
		return strings.EqualFold(a.Raw(), b.Raw())
	}
}

// largestDollarAmount is the gross pay fallback when no label matched.
func largestDollarAmount(text string) *entity.ExtractedField {
	var best *entity.FieldValue
	var bestAmount float64
	for _, raw := range reDollarAmount.FindAllString(text, -1) {
		v, err := entity.Money(raw)
		if err != nil {
			continue
		}
		if amt, _ := v.Amount(); best == nil || amt > bestAmount {
			best, bestAmount = &v, amt
		}
	}
	if best == nil {
		return nil
	}
	return &entity.ExtractedField{Value: *best, Source: constants.SourcePattern, PatternCount: 1}
}

func findDeductions(text string, source constants.FieldSource) []entity.Deduction {
	var out []entity.Deduction
	inSection := false
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			inSection = false
			continue
		}
		if reDeductionTitle.MatchString(line) {
			inSection = true
			continue
		}
		m := reDeductionLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		label := strings.TrimSpace(m[1])
		if !strings.ContainsFunc(label, unicode.IsLetter) || reNotDeduction.MatchString(label) {
			continue
		}
		category, known := constants.CategorizeDeduction(label)
		if !known && !inSection {
			continue
		}
		amount, err := entity.ParseAmount(m[2])
		if err != nil {
			continue
		}
		d := entity.Deduction{
			Name:         label,
			Amount:       amount,
			Category:     category,
			Source:       source,
			Raw:          m[2],
			PatternCount: 1,
		}
		if m[3] != "" {
			if ytd, err := entity.ParseAmount(m[3]); err == nil {
				d.YTDAmount = &ytd
			}
		}
		out = append(out, d)
	}
	return out
}

func sumYTD(ds []*entity.Deduction, keep func(*entity.Deduction) bool) *float64 {
	var total float64
	found := false
	for _, d := range ds {
		if d.YTDAmount == nil || (keep != nil && !keep(d)) {
			continue
		}
		total += *d.YTDAmount
		found = true
	}
	if !found {
		return nil
	}
	return &total
}

func detectFrequency(text string, start, end *entity.ExtractedField) constants.PayFrequency {
	for _, kw := range frequencyKeywords {
		if kw.re.MatchString(text) {
			return kw.freq
		}
	}
	if start == nil || end == nil {
		return constants.PayUnknown
	}
	s, ok1 := start.Value.Time()
	e, ok2 := end.Value.Time()
	if !ok1 || !ok2 || e.Before(s) {
		return constants.PayUnknown
	}
	days := int(e.Sub(s) / (24 * time.Hour))
	switch {
	case days <= 7:
		return constants.PayWeekly
	case days <= 13:
		return constants.PayBiweekly
	case days <= 16:
		return constants.PaySemiMonthly
	case days <= 31:
		return constants.PayMonthly
	default:
		return constants.PayUnknown
	}
}

// detectProvider returns the provider with the most marker hits, or Generic.
func detectProvider(text string) (string, int) {
	bestName, bestCount := constants.GenericProvider, 0
	for _, p := range providerMarkers {
		count := 0
		for _, re := range p.markers {
			count += len(re.FindAllStringIndex(text, -1))
		}
		if count > bestCount {
			bestName, bestCount = p.name, count
		}
	}
	return bestName, bestCount
}
