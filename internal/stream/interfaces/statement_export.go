package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"cascade/internal/stream/application"
)

// Statement is the exported view of one stream and its history.
type Statement struct {
	View       application.StreamView
	Activity   []application.ActivityEntry
	ExportedAt time.Time
}

func formatLedgerTime(seconds int64) string {
	return time.Unix(seconds, 0).UTC().Format(time.RFC3339)
}

func cliffLabel(stmt Statement) string {
	if stmt.View.Stream.CliffTime == nil {
		return "none"
	}
	return formatLedgerTime(*stmt.View.Stream.CliffTime)
}

// BuildStatementPDF renders a minimal PDF for a stream statement.
func BuildStatementPDF(stmt Statement) ([]byte, error) {
	if stmt.View.Stream == nil {
		return nil, fmt.Errorf("statement export: nil stream")
	}
	s := stmt.View.Stream
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Payroll Stream Statement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	lines := []string{
		fmt.Sprintf("Stream: %s", s.ID),
		fmt.Sprintf("Employer: %s", s.Employer),
		fmt.Sprintf("Employee: %s", s.Employee),
		fmt.Sprintf("Status: %s", s.Status),
		fmt.Sprintf("Start: %s", formatLedgerTime(s.StartTime)),
		fmt.Sprintf("End: %s", formatLedgerTime(s.EndTime)),
		fmt.Sprintf("Cliff: %s", cliffLabel(stmt)),
		fmt.Sprintf("Last activity: %s", formatLedgerTime(s.LastActivityTime)),
		fmt.Sprintf("Generated: %s", stmt.ExportedAt.UTC().Format(time.RFC3339)),
	}
	for _, line := range lines {
		pdf.Cell(0, 6, line)
		pdf.Ln(5)
	}

	pdf.Ln(4)
	pdf.Cell(0, 6, fmt.Sprintf("Deposited: %d", s.DepositedTotal))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Withdrawn: %d", s.WithdrawnTotal))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Vested at %s: %d", formatLedgerTime(stmt.View.Now), stmt.View.Vested))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Withdrawable: %d", stmt.View.Withdrawable))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Escrow: %d", stmt.View.Escrow))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(45, 6, "Time", "1", 0, "C", false, 0, "")
	pdf.CellFormat(55, 6, "Operation", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Actor", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, entry := range stmt.Activity {
		pdf.CellFormat(45, 6, formatLedgerTime(entry.LedgerTime), "1", 0, "C", false, 0, "")
		pdf.CellFormat(55, 6, string(entry.Kind), "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 6, string(entry.Actor), "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%d", entry.Amount), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildStatementXLSX renders a minimal XLSX for a stream statement.
func BuildStatementXLSX(stmt Statement) ([]byte, error) {
	if stmt.View.Stream == nil {
		return nil, fmt.Errorf("statement export: nil stream")
	}
	s := stmt.View.Stream
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	activitySheet := "activity"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(activitySheet); err != nil {
		return nil, err
	}

	summary := [][2]any{
		{"Stream", string(s.ID)},
		{"Employer", string(s.Employer)},
		{"Employee", string(s.Employee)},
		{"Status", s.Status.String()},
		{"Start", formatLedgerTime(s.StartTime)},
		{"End", formatLedgerTime(s.EndTime)},
		{"Cliff", cliffLabel(stmt)},
		{"Last Activity", formatLedgerTime(s.LastActivityTime)},
		{"Deposited", s.DepositedTotal},
		{"Withdrawn", s.WithdrawnTotal},
		{"Vested", stmt.View.Vested},
		{"Withdrawable", stmt.View.Withdrawable},
		{"Escrow", stmt.View.Escrow},
		{"Ledger Time", formatLedgerTime(stmt.View.Now)},
	}
	_ = f.SetCellValue(summarySheet, "A1", "Payroll Stream Statement")
	for i, row := range summary {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+3), row[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+3), row[1])
	}

	_ = f.SetCellValue(activitySheet, "A1", "Time")
	_ = f.SetCellValue(activitySheet, "B1", "Operation")
	_ = f.SetCellValue(activitySheet, "C1", "Actor")
	_ = f.SetCellValue(activitySheet, "D1", "Amount")
	for i, entry := range stmt.Activity {
		row := i + 2
		_ = f.SetCellValue(activitySheet, fmt.Sprintf("A%d", row), formatLedgerTime(entry.LedgerTime))
		_ = f.SetCellValue(activitySheet, fmt.Sprintf("B%d", row), string(entry.Kind))
		_ = f.SetCellValue(activitySheet, fmt.Sprintf("C%d", row), string(entry.Actor))
		_ = f.SetCellValue(activitySheet, fmt.Sprintf("D%d", row), entry.Amount)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
