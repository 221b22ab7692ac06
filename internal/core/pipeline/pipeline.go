package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/Volpestyle/basic-budget-sub003/constants"
	"github.com/Volpestyle/basic-budget-sub003/internal/common"
	"github.com/Volpestyle/basic-budget-sub003/internal/core/confidence"
	"github.com/Volpestyle/basic-budget-sub003/internal/core/extract"
	"github.com/Volpestyle/basic-budget-sub003/internal/entity"
)

// Pipeline runs the extraction engine once per document and scores its output.
// It never retries and never touches job state.
type Pipeline struct {
	engine    extract.Engine
	validator *extract.CandidateValidator
	logger    *slog.Logger
}

// New builds a pipeline. A nil validator skips schema checks.
func New(engine extract.Engine, validator *extract.CandidateValidator, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{engine: engine, validator: validator, logger: logger}
}

// Run extracts, scores and stamps a document. Every error it returns is a
// typed extraction failure.
func (p *Pipeline) Run(ctx context.Context, payload []byte, contentType string) (*entity.ExtractedDocument, error) {
	start := time.Now()
	doc, err := p.engine.Extract(ctx, payload, contentType)
	elapsed := time.Since(start)
	if err != nil {
		p.logger.Debug("engine failed",
			"job_id", common.JobIDFromContext(ctx),
			"worker_id", common.WorkerIDFromContext(ctx),
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		if common.IsExtractionError(err) {
			return nil, err
		}
		return nil, common.NewExtractionError(common.CodeExtractionFailed, "extraction engine failed", err)
	}
	if doc == nil {
		return nil, common.NewExtractionError(common.CodeNoFields, "extraction engine returned no document", nil)
	}

	fillDefaults(doc)
	Score(doc)
	if p.validator != nil {
		if err := p.validator.Validate(doc); err != nil {
			return nil, err
		}
	}

	doc.ProcessedAt = time.Now().UTC()
	doc.ProcessingTime = elapsed
	return doc, nil
}

// Score sets every field and deduction confidence, the overall confidence and
// the provider confidence. Gross and net pay, when present, weigh double in
// the overall score; every other field and deduction weighs 1.
func Score(doc *entity.ExtractedDocument) {
	scores := make([]float64, 0, 16)
	weights := make([]float64, 0, 16)
	for _, f := range doc.Fields() {
		f.Confidence = confidence.Score(f.Value.Raw(), f.Source, f.PatternCount)
		w := 1.0
		if f == doc.GrossPay || f == doc.NetPay {
			w = confidence.LeadingWeight
		}
		scores = append(scores, f.Confidence)
		weights = append(weights, w)
	}
	for _, d := range doc.Deductions() {
		d.Confidence = confidence.Score(d.Raw, d.Source, d.PatternCount)
		scores = append(scores, d.Confidence)
		weights = append(weights, 1)
	}
	doc.OverallConfidence = confidence.Weighted(scores, weights)
	doc.ProviderConfidence = confidence.Provider(doc.RawText, doc.Provider, doc.ProviderMatchCount)
}

func fillDefaults(doc *entity.ExtractedDocument) {
	if doc.Provider == "" {
		doc.Provider = constants.GenericProvider
	}
	if doc.PayFrequency == "" {
		doc.PayFrequency = constants.PayUnknown
	}
	if doc.TaxDeductions == nil {
		doc.TaxDeductions = []entity.Deduction{}
	}
	if doc.BenefitDeductions == nil {
		doc.BenefitDeductions = []entity.Deduction{}
	}
	if doc.OtherDeductions == nil {
		doc.OtherDeductions = []entity.Deduction{}
	}
}
