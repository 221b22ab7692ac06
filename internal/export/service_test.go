package export

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Volpestyle/basic-budget-sub003/constants"
	"github.com/Volpestyle/basic-budget-sub003/internal/entity"
)

func field(t *testing.T, v entity.FieldValue, err error) *entity.ExtractedField {
	t.Helper()
	require.NoError(t, err)
	return &entity.ExtractedField{Value: v, Confidence: 0.9, Source: constants.SourcePDFText}
}

func TestExportXLSX(t *testing.T) {
	now := time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC)
	gross, gerr := entity.Money("$5,000.00")
	net, nerr := entity.Money("3,750.00")
	payDate, derr := entity.Date("01/19/2024")

	done := entity.NewProcessingRequest(entity.Job{
		ID: "job-1", Payload: []byte("x"), ContentType: "application/pdf",
		Metadata: map[string]any{"source_path": "/stubs/jan.pdf"}, SubmittedAt: now,
	}, now)
	require.NoError(t, done.Advance(constants.JobStatusProcessing, now))
	require.NoError(t, done.Complete(&entity.ExtractedDocument{
		GrossPay:          field(t, gross, gerr),
		NetPay:            field(t, net, nerr),
		PayDate:           field(t, payDate, derr),
		PayFrequency:      constants.PayBiweekly,
		TaxDeductions:     []entity.Deduction{{Name: "Federal", Amount: 600}, {Name: "Medicare", Amount: 72.5}},
		BenefitDeductions: []entity.Deduction{{Name: "Dental", Amount: 15}},
		Provider:          "ADP",
		OverallConfidence: 0.91,
		ProcessingTime:    1500 * time.Millisecond,
	}, now))

	failed := entity.NewProcessingRequest(entity.Job{ID: "job-2", Payload: []byte("x"), SubmittedAt: now}, now)
	require.NoError(t, failed.Advance(constants.JobStatusProcessing, now))
	require.NoError(t, failed.Fail("boom", now))

	b, err := NewService(nil).ExportXLSX(context.Background(), []entity.ProcessingRequest{done, failed})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, headers, rows[0])

	r := rows[1]
	assert.Equal(t, "job-1", r[0])
	assert.Equal(t, "ADP", r[1])
	assert.Equal(t, "2024-01-19", r[2])
	assert.Equal(t, "", r[3])
	assert.Equal(t, "biweekly", r[5])
	assert.Equal(t, "5000", r[6])
	assert.Equal(t, "3750", r[7])
	assert.Equal(t, "672.5", r[8])
	assert.Equal(t, "15", r[9])
	assert.Equal(t, "0", r[10])
	assert.Equal(t, "0.91", r[11])
	assert.Equal(t, "1500", r[12])
	assert.Equal(t, "jan.pdf", r[13])
}

func TestExportXLSXEmpty(t *testing.T) {
	b, err := NewService(nil).ExportXLSX(context.Background(), nil)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
