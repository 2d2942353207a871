package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/zombor/billscan/internal/bill"
)

// ErrDuplicateID is returned when a bill with the same ID is already stored
var ErrDuplicateID = errors.New("duplicate bill id")

// Ledger is the in-memory collection of committed bills.
// Insert is the only mutator; queries never see a partial insert.
type Ledger struct {
	mu     sync.RWMutex
	bills  []bill.Bill
	byID   map[string]int
	locale language.Tag
}

// Option configures a Ledger
type Option func(*Ledger)

// WithLocale sets the collation used when sorting text fields
func WithLocale(tag language.Tag) Option {
	return func(l *Ledger) {
		l.locale = tag
	}
}

// New creates an empty Ledger. Text sorts use English collation unless WithLocale is given.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		byID:   make(map[string]int),
		locale: language.English,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Insert trims and validates b and appends it. A bill without an ID gets a new one.
// The stored bill is returned.
func (l *Ledger) Insert(b bill.Bill) (bill.Bill, error) {
	b = b.Clone()
	b.Vendor = strings.TrimSpace(b.Vendor)
	b.BillNumber = strings.TrimSpace(b.BillNumber)
	if err := bill.Validate(b); err != nil {
		return bill.Bill{}, err
	}
	if b.ID == "" {
		b.ID = uuid.New().String()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.byID[b.ID]; exists {
		return bill.Bill{}, fmt.Errorf("%w: %s", ErrDuplicateID, b.ID)
	}
	l.byID[b.ID] = len(l.bills)
	l.bills = append(l.bills, b)
	slog.Debug("Bill inserted", "id", b.ID, "vendor", b.Vendor, "count", len(l.bills))
	return b.Clone(), nil
}

// Get returns the bill with the given ID
func (l *Ledger) Get(id string) (bill.Bill, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.byID[id]
	if !ok {
		return bill.Bill{}, false
	}
	return l.bills[i].Clone(), true
}

// Query searches, filters and sorts the stored bills. The result is a new
// slice of copies; stored bills and their insertion order are untouched.
// Query panics on an unknown sort key.
func (l *Ledger) Query(q Query) []bill.Bill {
	l.mu.RLock()
	snapshot := make([]bill.Bill, len(l.bills))
	for i, b := range l.bills {
		snapshot[i] = b.Clone()
	}
	l.mu.RUnlock()

	return q.apply(snapshot, l.locale)
}

// DistinctCategories returns the categories present in the ledger in first-seen order
func (l *Ledger) DistinctCategories() []bill.Category {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[bill.Category]bool)
	var categories []bill.Category
	for _, b := range l.bills {
		if !seen[b.Category] {
			seen[b.Category] = true
			categories = append(categories, b.Category)
		}
	}
	return categories
}
