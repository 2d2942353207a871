package ledger

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/billscan/internal/bill"
)

// CategoryTotal is the number and sum of bills in one category
type CategoryTotal struct {
	Category bill.Category
	Count    int
	Total    decimal.Decimal
}

// MonthTotal is the number and sum of bills issued in one calendar month
type MonthTotal struct {
	Month time.Time // first day of the month, UTC
	Count int
	Total decimal.Decimal
}

// Count returns the number of stored bills
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.bills)
}

// Total returns the sum of every stored amount
func (l *Ledger) Total() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Sum(l.bills)
}

// CountByStatus counts the stored bills per status. Every known status is present.
func (l *Ledger) CountByStatus() map[bill.Status]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return StatusCounts(l.bills)
}

// TotalsByCategory groups the stored bills by category in first-seen order
func (l *Ledger) TotalsByCategory() []CategoryTotal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return CategoryTotals(l.bills)
}

// MonthlyTotals groups the stored bills by issue month, oldest first.
// Bills without an issue date are left out.
func (l *Ledger) MonthlyTotals() []MonthTotal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return MonthTotals(l.bills)
}

// Sum adds up the amounts of bills
func Sum(bills []bill.Bill) decimal.Decimal {
	total := decimal.Zero
	for _, b := range bills {
		total = total.Add(b.Amount)
	}
	return total
}

// StatusCounts counts bills per status
func StatusCounts(bills []bill.Bill) map[bill.Status]int {
	counts := make(map[bill.Status]int)
	for _, s := range bill.Statuses() {
		counts[s] = 0
	}
	for _, b := range bills {
		counts[b.Status]++
	}
	return counts
}

// CategoryTotals groups bills by category in first-seen order
func CategoryTotals(bills []bill.Bill) []CategoryTotal {
	index := make(map[bill.Category]int)
	var totals []CategoryTotal
	for _, b := range bills {
		i, ok := index[b.Category]
		if !ok {
			i = len(totals)
			index[b.Category] = i
			totals = append(totals, CategoryTotal{Category: b.Category, Total: decimal.Zero})
		}
		totals[i].Count++
		totals[i].Total = totals[i].Total.Add(b.Amount)
	}
	return totals
}

// MonthTotals groups bills by issue month, oldest first
func MonthTotals(bills []bill.Bill) []MonthTotal {
	index := make(map[time.Time]int)
	var totals []MonthTotal
	for _, b := range bills {
		if b.IssueDate.IsZero() {
			continue
		}
		month := time.Date(b.IssueDate.Year(), b.IssueDate.Month(), 1, 0, 0, 0, 0, time.UTC)
		i, ok := index[month]
		if !ok {
			i = len(totals)
			index[month] = i
			totals = append(totals, MonthTotal{Month: month, Total: decimal.Zero})
		}
		totals[i].Count++
		totals[i].Total = totals[i].Total.Add(b.Amount)
	}
	slices.SortFunc(totals, func(a, b MonthTotal) int {
		return a.Month.Compare(b.Month)
	})
	return totals
}
