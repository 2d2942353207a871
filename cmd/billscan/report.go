package main

import (
	"fmt"
	"strings"

	"github.com/zombor/billscan/internal/bill"
	"github.com/zombor/billscan/internal/ledger"
)

// renderBills lays out a query result with a total footer
func renderBills(bills []bill.Bill) string {
	headers := []string{"ID", "Vendor", "Bill #", "Category", "Issued", "Due", "Amount", "Status"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft}

	rows := make([][]string, 0, len(bills))
	for _, b := range bills {
		rows = append(rows, []string{
			shortID(b.ID),
			b.Vendor,
			b.BillNumber,
			string(b.Category),
			bill.FormatDate(b.IssueDate),
			bill.FormatDate(b.DueDate),
			b.Amount.StringFixed(2),
			string(b.Status),
		})
	}
	footer := []string{"", fmt.Sprintf("%d bills", len(bills)), "", "", "", "Total", ledger.Sum(bills).StringFixed(2), ""}
	return renderTable(headers, rows, aligns, footer)
}

// renderSummary lays out the dashboard aggregates of the whole ledger
func renderSummary(l *ledger.Ledger) string {
	var out strings.Builder

	counts := l.CountByStatus()
	statusRows := make([][]string, 0, len(counts))
	for _, s := range bill.Statuses() {
		statusRows = append(statusRows, []string{string(s), fmt.Sprint(counts[s])})
	}
	out.WriteString(renderTable([]string{"Status", "Bills"}, statusRows, []columnAlignment{alignLeft, alignRight},
		[]string{"All", fmt.Sprint(l.Count())}))
	out.WriteString("\n")

	var categoryRows [][]string
	for _, c := range l.TotalsByCategory() {
		categoryRows = append(categoryRows, []string{string(c.Category), fmt.Sprint(c.Count), c.Total.StringFixed(2)})
	}
	out.WriteString(renderTable([]string{"Category", "Bills", "Amount"}, categoryRows,
		[]columnAlignment{alignLeft, alignRight, alignRight},
		[]string{"All", fmt.Sprint(l.Count()), l.Total().StringFixed(2)}))
	out.WriteString("\n")

	var monthRows [][]string
	for _, m := range l.MonthlyTotals() {
		monthRows = append(monthRows, []string{m.Month.Format("2006-01"), fmt.Sprint(m.Count), m.Total.StringFixed(2)})
	}
	if len(monthRows) > 0 {
		out.WriteString(renderTable([]string{"Month", "Bills", "Amount"}, monthRows,
			[]columnAlignment{alignLeft, alignRight, alignRight}, nil))
		out.WriteString("\n")
	}
	return out.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
