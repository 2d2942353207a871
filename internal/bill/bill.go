package bill

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used for bill dates
const DateLayout = "2006-01-02"

// Status is the lifecycle tag of a committed bill
type Status string

const (
	StatusPending Status = "Pending"
	StatusPaid    Status = "Paid"
	StatusOverdue Status = "Overdue"
)

var allStatuses = []Status{StatusPending, StatusPaid, StatusOverdue}

// Statuses returns every known status in display order
func Statuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// LineItem is a single charge printed on a bill
type LineItem struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// Bill is a validated extraction result as stored in the ledger
type Bill struct {
	ID         string          `json:"id"`
	Vendor     string          `json:"vendor"`
	BillNumber string          `json:"bill_number,omitempty"`
	IssueDate  time.Time       `json:"issue_date"` // zero when unknown
	DueDate    time.Time       `json:"due_date"`   // zero when unknown
	Amount     decimal.Decimal `json:"amount"`
	Category   Category        `json:"category"`
	Status     Status          `json:"status"`
	LineItems  []LineItem      `json:"line_items,omitempty"`
}

type billAlias Bill

// MarshalJSON writes dates as calendar dates and leaves unknown dates out
func (b Bill) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		billAlias
		IssueDate string `json:"issue_date,omitempty"`
		DueDate   string `json:"due_date,omitempty"`
	}{
		billAlias: billAlias(b),
		IssueDate: FormatDate(b.IssueDate),
		DueDate:   FormatDate(b.DueDate),
	})
}

// UnmarshalJSON reads the form written by MarshalJSON. A missing or empty date stays zero.
func (b *Bill) UnmarshalJSON(data []byte) error {
	aux := struct {
		*billAlias
		IssueDate string `json:"issue_date"`
		DueDate   string `json:"due_date"`
	}{billAlias: (*billAlias)(b)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	b.IssueDate, b.DueDate = time.Time{}, time.Time{}
	if aux.IssueDate != "" {
		if b.IssueDate, err = ParseDate(aux.IssueDate); err != nil {
			return fmt.Errorf("issue_date: %w", err)
		}
	}
	if aux.DueDate != "" {
		if b.DueDate, err = ParseDate(aux.DueDate); err != nil {
			return fmt.Errorf("due_date: %w", err)
		}
	}
	return nil
}

// Clone returns a copy of b that shares no line item storage with it
func (b Bill) Clone() Bill {
	if b.LineItems != nil {
		b.LineItems = append([]LineItem(nil), b.LineItems...)
	}
	return b
}

// Reconcile compares the line item total against Amount.
// The result is advisory: a mismatch never invalidates a bill.
func (b Bill) Reconcile() []string {
	if len(b.LineItems) == 0 {
		return nil
	}
	sum := decimal.Zero
	for _, item := range b.LineItems {
		sum = sum.Add(item.Amount)
	}
	if sum.Round(2).Equal(b.Amount.Round(2)) {
		return nil
	}
	return []string{fmt.Sprintf("line items total %s but bill amount is %s", sum.StringFixed(2), b.Amount.StringFixed(2))}
}

// FormatDate renders a bill date, or an empty string when the date is unknown
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// ParseDate parses the layouts recognizers commonly return and truncates to a calendar date
func ParseDate(s string) (time.Time, error) {
	layouts := []string{DateLayout, "2006/01/02", "01/02/2006", "02-01-2006", "Jan 2, 2006", "January 2, 2006"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
