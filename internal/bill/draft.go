package bill

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Draft is a best-effort recognizer result. Fields the recognizer
// could not determine stay nil or empty.
type Draft struct {
	Vendor     string
	BillNumber string
	IssueDate  *time.Time
	DueDate    *time.Time
	Amount     *decimal.Decimal
	Category   *Category
	LineItems  []LineItem
}

// Finalize turns the draft into a pending bill, or returns a *ValidationError.
// An absent category becomes Other; nothing else is filled in.
func (d *Draft) Finalize() (Bill, error) {
	v := &validator{}
	b := Bill{
		Vendor:     strings.TrimSpace(d.Vendor),
		BillNumber: strings.TrimSpace(d.BillNumber),
		Category:   CategoryOther,
		Status:     StatusPending,
		LineItems:  append([]LineItem(nil), d.LineItems...),
	}
	if b.Vendor == "" {
		v.required("vendor")
	}
	if d.Amount == nil {
		v.required("amount")
	} else {
		b.Amount = d.Amount.Round(2)
	}
	if d.IssueDate != nil {
		b.IssueDate = *d.IssueDate
	}
	if d.DueDate != nil {
		b.DueDate = *d.DueDate
	}
	if d.Category != nil {
		b.Category = *d.Category
	}
	for i := range b.LineItems {
		b.LineItems[i].Amount = b.LineItems[i].Amount.Round(2)
	}
	checkCommon(v, b)
	if err := v.err(); err != nil {
		return Bill{}, err
	}
	return b, nil
}
