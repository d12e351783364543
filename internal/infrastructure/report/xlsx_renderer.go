package report

import (
	"context"
	"fmt"

	"github.com/garyjia/deed-approval/internal/domain/entity"
	"github.com/garyjia/deed-approval/pkg/utils"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	summarySheet = "Report"
	fieldsSheet  = "Fields"

	reportTimeLayout = "2006-01-02 15:04:05"
)

// XLSXRenderer implements port.ReportRenderer with an Excel workbook: one
// sheet for the decision and stage outcomes, one for the field snapshot
type XLSXRenderer struct {
	logger *zap.Logger
}

// NewXLSXRenderer creates a new XLSXRenderer
func NewXLSXRenderer(logger *zap.Logger) *XLSXRenderer {
	return &XLSXRenderer{logger: logger}
}

// ContentType returns the MIME type of rendered documents
func (r *XLSXRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Extension returns the file extension of rendered documents
func (r *XLSXRenderer) Extension() string {
	return ".xlsx"
}

// Render writes the report into a workbook and returns its bytes
func (r *XLSXRenderer) Render(ctx context.Context, report *entity.ReportArtifact) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("report cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("failed to name summary sheet: %w", err)
	}
	if _, err := f.NewSheet(fieldsSheet); err != nil {
		return nil, fmt.Errorf("failed to create fields sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	w := &sheetWriter{f: f, logger: r.logger}
	r.writeSummary(w, report, bold)
	r.writeFields(w, report, bold)
	if w.err != nil {
		return nil, w.err
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   report.FormTitle,
		Subject: "Final report " + report.FormID,
		Creator: report.GeneratedBy,
	}); err != nil {
		r.logger.Warn("Failed to set document properties", zap.String("form_id", report.FormID), zap.Error(err))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	r.logger.Debug("Final report rendered",
		zap.String("form_id", report.FormID),
		zap.Int("size", buf.Len()))
	return buf.Bytes(), nil
}

func (r *XLSXRenderer) writeSummary(w *sheetWriter, report *entity.ReportArtifact, header int) {
	rows := [][]any{
		{"Final Report"},
		{"Form ID", report.FormID},
		{"Title", report.FormTitle},
		{"Service Type", report.ServiceType.Title()},
		{"Submitter", report.SubmitterID},
		{"Form Version", report.FormVersion},
		{"Final Decision", report.FinalDecision},
		{"Final Remarks", report.FinalRemarks},
		{"Locked By", report.LockedBy},
		{"Locked At", formatTime(report.LockedAt)},
		{"Report ID", report.ID},
		{"Content Hash", report.ContentHash},
		{},
		{"Stage", "Label", "Approved", "By", "At", "Notes"},
	}
	for i, row := range rows {
		w.row(summarySheet, i+1, row)
	}
	w.style(summarySheet, 1, 1, header)
	w.style(summarySheet, len(rows), 6, header)

	for i, s := range report.Stages {
		at := ""
		if s.ApprovedAt != nil {
			at = formatTime(*s.ApprovedAt)
		}
		w.row(summarySheet, len(rows)+1+i, []any{string(s.Stage), s.Label, s.Approved, s.ApprovedBy, at, s.Notes})
	}

	w.width(summarySheet, "A", "A", 18)
	w.width(summarySheet, "B", "B", 40)
	w.width(summarySheet, "F", "F", 40)
}

func (r *XLSXRenderer) writeFields(w *sheetWriter, report *entity.ReportArtifact, header int) {
	w.row(fieldsSheet, 1, []any{"Field", "Value"})
	w.style(fieldsSheet, 1, 2, header)
	for i, field := range report.Fields {
		w.row(fieldsSheet, i+2, []any{field.Key, field.Value})
	}
	w.width(fieldsSheet, "A", "A", 28)
	w.width(fieldsSheet, "B", "B", 60)
}

// sheetWriter keeps the first error so cell writes read as a flat list
type sheetWriter struct {
	f      *excelize.File
	logger *zap.Logger
	err    error
}

func (w *sheetWriter) row(sheet string, row int, values []any) {
	for col, v := range values {
		if w.err != nil {
			return
		}
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			w.err = fmt.Errorf("invalid cell at column %d row %d: %w", col+1, row, err)
			return
		}
		// control characters would corrupt the sheet XML
		if str, ok := v.(string); ok {
			v = utils.SanitizeString(str)
		}
		if err := w.f.SetCellValue(sheet, cell, v); err != nil {
			w.err = fmt.Errorf("failed to set cell %s!%s: %w", sheet, cell, err)
		}
	}
}

func (w *sheetWriter) style(sheet string, row, cols, styleID int) {
	if w.err != nil {
		return
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(cols, row)
	if err := w.f.SetCellStyle(sheet, first, last, styleID); err != nil {
		w.logger.Warn("Failed to set cell style", zap.String("sheet", sheet), zap.Int("row", row), zap.Error(err))
	}
}

func (w *sheetWriter) width(sheet, startCol, endCol string, width float64) {
	if w.err != nil {
		return
	}
	if err := w.f.SetColWidth(sheet, startCol, endCol, width); err != nil {
		w.logger.Warn("Failed to set column width", zap.String("sheet", sheet), zap.Error(err))
	}
}
