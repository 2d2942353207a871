package ledger

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/zombor/billscan/internal/bill"
)

// AllCategories is the category filter that passes every bill
const AllCategories bill.Category = "all"

// SortKey names the field a query sorts by
type SortKey string

const (
	SortVendor     SortKey = "vendor"
	SortBillNumber SortKey = "billNumber"
	SortCategory   SortKey = "category"
	SortStatus     SortKey = "status"
	SortIssueDate  SortKey = "issueDate"
	SortDueDate    SortKey = "dueDate"
	SortAmount     SortKey = "amount"
)

var sortKeys = []SortKey{SortVendor, SortBillNumber, SortCategory, SortStatus, SortIssueDate, SortDueDate, SortAmount}

// SortKeys returns every supported sort key
func SortKeys() []SortKey {
	return append([]SortKey(nil), sortKeys...)
}

// ParseSortKey matches s against the sort keys, ignoring case and underscores
func ParseSortKey(s string) (SortKey, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	for _, key := range sortKeys {
		if strings.EqualFold(normalized, string(key)) {
			return key, nil
		}
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}

// Direction orders a sort
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "descending"
	}
	return "ascending"
}

// ParseDirection accepts asc, ascending, desc and descending in any case
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	}
	return Ascending, fmt.Errorf("unknown sort direction %q", s)
}

// Query describes a ledger read. The zero Query returns every bill in insertion order.
type Query struct {
	// Search matches vendor and category case-insensitively. Empty passes all.
	Search string
	// Category is an exact category, or AllCategories. Empty also passes all.
	Category bill.Category
	// Sort is the field to sort by. Empty keeps insertion order.
	Sort      SortKey
	Direction Direction
}

// apply runs search, then the category filter, then the sort
func (q Query) apply(bills []bill.Bill, locale language.Tag) []bill.Bill {
	if term := strings.TrimSpace(q.Search); term != "" {
		fold := cases.Fold()
		needle := fold.String(term)
		bills = slices.DeleteFunc(bills, func(b bill.Bill) bool {
			return !strings.Contains(fold.String(b.Vendor), needle) &&
				!strings.Contains(fold.String(string(b.Category)), needle)
		})
	}

	if q.Category != "" && q.Category != AllCategories {
		bills = slices.DeleteFunc(bills, func(b bill.Bill) bool {
			return b.Category != q.Category
		})
	}

	if q.Sort != "" {
		cmp := comparator(q.Sort, collate.New(locale))
		if q.Direction == Descending {
			asc := cmp
			cmp = func(a, b bill.Bill) int { return -asc(a, b) }
		}
		slices.SortStableFunc(bills, cmp)
	}
	return bills
}

// comparator returns the ascending order for key
func comparator(key SortKey, col *collate.Collator) func(a, b bill.Bill) int {
	text := func(field func(bill.Bill) string) func(a, b bill.Bill) int {
		return func(a, b bill.Bill) int {
			return col.CompareString(field(a), field(b))
		}
	}

	switch key {
	case SortVendor:
		return text(func(b bill.Bill) string { return b.Vendor })
	case SortBillNumber:
		return text(func(b bill.Bill) string { return b.BillNumber })
	case SortCategory:
		return text(func(b bill.Bill) string { return string(b.Category) })
	case SortStatus:
		return text(func(b bill.Bill) string { return string(b.Status) })
	case SortIssueDate:
		return func(a, b bill.Bill) int { return compareDates(a.IssueDate, b.IssueDate) }
	case SortDueDate:
		return func(a, b bill.Bill) int { return compareDates(a.DueDate, b.DueDate) }
	case SortAmount:
		return func(a, b bill.Bill) int { return a.Amount.Cmp(b.Amount) }
	}
	panic(fmt.Sprintf("ledger: unknown sort key %q", key))
}

// compareDates orders chronologically with unknown dates first
func compareDates(a, b time.Time) int {
	switch {
	case a.IsZero() && b.IsZero():
		return 0
	case a.IsZero():
		return -1
	case b.IsZero():
		return 1
	}
	return a.Compare(b)
}
