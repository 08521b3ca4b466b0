package report

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"
)

const (
	transactionsSheet = "Transactions"
	summarySheet      = "Summary"
)

var xlsxHeader = []any{
	"Date", "Amount", "Currency", "Cash source", "Category", "Description", "Counterparty",
	"Check", "Type", "Class", "Target amount", "Target cash source", "Statement", "Import",
}

func writeCSV(w io.Writer, rows []Row) error {
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}

func writeXLSX(w io.Writer, rows []Row, summary Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", transactionsSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	if err := f.SetSheetRow(transactionsSheet, "A1", &xlsxHeader); err != nil {
		return err
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := []any{
			r.Date, r.money.Decimal().InexactFloat64(), r.Currency, r.CashSource, r.Category,
			r.Description, r.Counterparty, r.CheckNum, r.Type, r.Class, r.TargetAmount,
			r.TargetCashSource, r.PDFType, r.ImportID,
		}
		if err := f.SetSheetRow(transactionsSheet, cell, &values); err != nil {
			return err
		}
	}
	last, _ := excelize.ColumnNumberToName(len(xlsxHeader))
	if err := f.SetCellStyle(transactionsSheet, "A1", last+"1", bold); err != nil {
		return err
	}
	if err := f.SetColWidth(transactionsSheet, "A", last, 18); err != nil {
		return err
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to add summary sheet: %w", err)
	}
	if err := f.SetSheetRow(summarySheet, "A1", &[]any{"Category", "Currency", "Total"}); err != nil {
		return err
	}
	row := 2
	for _, ct := range summary.ByCategory {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(summarySheet, cell, &[]any{ct.Category, ct.Total.Currency(), ct.Total.String()}); err != nil {
			return err
		}
		row++
	}
	for _, code := range summary.Totals.Codes() {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(summarySheet, cell, &[]any{"Total", code, summary.Totals[code].String()}); err != nil {
			return err
		}
		if err := f.SetCellStyle(summarySheet, cell, cell, bold); err != nil {
			return err
		}
		row++
	}
	if err := f.SetCellStyle(summarySheet, "A1", "C1", bold); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write XLSX: %w", err)
	}
	return nil
}
