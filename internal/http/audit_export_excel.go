package httpapi

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/seahkrah/SmartAttend-sub012/internal/domain"
)

// AuditExportHeader column order of the compliance export.
var AuditExportHeader = []string{
	"Record ID",
	"Tenant ID",
	"Actor ID",
	"Actor Role",
	"Action Type",
	"Action Scope",
	"Resource Type",
	"Resource ID",
	"Justification",
	"IP Address",
	"Request ID",
	"Checksum",
	"Created At",
}

// GenerateAuditExport renders audit records to an xlsx workbook for
// compliance review. Before/after snapshots are deliberately excluded:
// the export is a trail summary, not a data dump.
func GenerateAuditExport(records []*domain.AuditRecord) ([]byte, error) {
	f := excelize.NewFile()
	// Close via WriteTo path; keep the file open until then.

	sheetName := "Audit Trail"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, h := range AuditExportHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header: %w", err)
		}
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for rowIdx, rec := range records {
		values := []any{
			rec.RecordID,
			rec.TenantID,
			rec.ActorID,
			rec.ActorRole,
			rec.ActionType,
			string(rec.ActionScope),
			rec.ResourceType,
			rec.ResourceID,
			rec.Justification,
			rec.IPAddress,
			rec.RequestID,
			rec.Checksum,
			rec.CreatedAt.Format("2006-01-02 15:04:05 MST"),
		}
		for colIdx, v := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell: %w", err)
			}
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
