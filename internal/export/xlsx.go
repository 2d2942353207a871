package export

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/zombor/billscan/internal/bill"
	"github.com/zombor/billscan/internal/ledger"
)

// SheetName is the worksheet that holds the exported bills
const SheetName = "Bills"

var headers = []string{
	"Vendor",
	"Bill Number",
	"Category",
	"Issue Date",
	"Due Date",
	"Amount",
	"Status",
	"Line Items",
}

// XLSX renders bills, in the order given, as a workbook with a single sheet.
// The last row totals the amounts.
func XLSX(bills []bill.Bill) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}

	money, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return nil, fmt.Errorf("creating amount style: %w", err)
	}

	row := 2
	for _, b := range bills {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(SheetName, cell, v)
		}
		write(1, b.Vendor)
		write(2, b.BillNumber)
		write(3, string(b.Category))
		write(4, bill.FormatDate(b.IssueDate))
		write(5, bill.FormatDate(b.DueDate))
		write(6, b.Amount.InexactFloat64())
		write(7, string(b.Status))
		write(8, len(b.LineItems))
		row++
	}

	totalLabel, _ := excelize.CoordinatesToCellName(5, row)
	totalCell, _ := excelize.CoordinatesToCellName(6, row)
	_ = f.SetCellValue(SheetName, totalLabel, "Total")
	_ = f.SetCellValue(SheetName, totalCell, ledger.Sum(bills).InexactFloat64())

	first, _ := excelize.CoordinatesToCellName(6, 2)
	if err := f.SetCellStyle(SheetName, first, totalCell, money); err != nil {
		return nil, fmt.Errorf("styling amounts: %w", err)
	}

	_ = f.SetColWidth(SheetName, "A", "A", 32) // vendor
	_ = f.SetColWidth(SheetName, "B", "C", 18)
	_ = f.SetColWidth(SheetName, "D", "E", 12) // dates
	_ = f.SetColWidth(SheetName, "F", "H", 12)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing xlsx: %w", err)
	}

	slog.Info("Exported bills", "rows", len(bills), "elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}
