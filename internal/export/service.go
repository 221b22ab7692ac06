package export

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/xuri/excelize/v2"

	"github.com/Volpestyle/basic-budget-sub003/constants"
	"github.com/Volpestyle/basic-budget-sub003/internal/entity"
)

// SheetName is the worksheet holding exported results.
const SheetName = "Paystubs"

var headers = []string{
	"Job ID",
	"Provider",
	"Pay Date",
	"Period Start",
	"Period End",
	"Frequency",
	"Gross Pay",
	"Net Pay",
	"Tax Deductions",
	"Benefit Deductions",
	"Other Deductions",
	"Confidence",
	"Processing (ms)",
	"Source File",
}

// Service produces XLSX workbooks from processing records.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// ExportXLSX returns a workbook (as bytes) with one row per completed record.
// Pending, processing and failed records are skipped.
func (s *Service) ExportXLSX(ctx context.Context, records []entity.ProcessingRequest) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("failed to close workbook", "error", err)
		}
	}()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, errors.Wrap(err, "name sheet")
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}

	row := 2
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.Status != constants.JobStatusCompleted || r.Result == nil {
			continue
		}
		doc := r.Result

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(SheetName, cell, v)
		}

		write(1, r.ID)
		write(2, doc.Provider)
		write(3, fieldText(doc.PayDate))
		write(4, fieldText(doc.PayPeriodStart))
		write(5, fieldText(doc.PayPeriodEnd))
		write(6, string(doc.PayFrequency))
		write(7, fieldAmount(doc.GrossPay))
		write(8, fieldAmount(doc.NetPay))
		write(9, sum(doc.TaxDeductions))
		write(10, sum(doc.BenefitDeductions))
		write(11, sum(doc.OtherDeductions))
		write(12, doc.OverallConfidence)
		write(13, doc.ProcessingTime.Milliseconds())
		if p, ok := r.Metadata["source_path"].(string); ok {
			write(14, filepath.Base(p))
		}

		row++
	}

	_ = f.SetColWidth(SheetName, "A", "A", 38) // job id
	_ = f.SetColWidth(SheetName, "B", "B", 14) // provider
	_ = f.SetColWidth(SheetName, "C", "F", 14) // dates, frequency
	_ = f.SetColWidth(SheetName, "G", "K", 16) // amounts
	_ = f.SetColWidth(SheetName, "L", "M", 14)
	_ = f.SetColWidth(SheetName, "N", "N", 40) // source

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "xlsx write")
	}

	s.logger.Info("export.xlsx.ok",
		"rows", row-2,
		"records", len(records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func fieldText(f *entity.ExtractedField) string {
	if f == nil {
		return ""
	}
	return f.Value.String()
}

// fieldAmount returns the parsed amount, or an empty cell when absent.
func fieldAmount(f *entity.ExtractedField) any {
	if f == nil {
		return ""
	}
	if amt, ok := f.Value.Amount(); ok {
		return amt
	}
	return f.Value.Raw()
}

func sum(ds []entity.Deduction) float64 {
	var total float64
	for _, d := range ds {
		total += d.Amount
	}
	return total
}
