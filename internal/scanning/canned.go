package scanning

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/billscan/internal/bill"
)

// Canned is a stand-in recognizer. It ticks progress on a timer and
// returns a fixed draft, which keeps the pipeline usable without a model.
type Canned struct {
	Draft    bill.Draft
	Interval time.Duration
	Step     int
}

// NewCanned returns a Canned extractor that reports progress in steps of 10 every interval
func NewCanned(interval time.Duration) *Canned {
	issued := time.Date(2023, 11, 15, 0, 0, 0, 0, time.UTC)
	due := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	amount := decimal.RequireFromString("149.87")
	category := bill.CategoryUtility
	return &Canned{
		Draft: bill.Draft{
			Vendor:     "Electric Company Inc.",
			BillNumber: "INV-2023-04851",
			IssueDate:  &issued,
			DueDate:    &due,
			Amount:     &amount,
			Category:   &category,
			LineItems: []bill.LineItem{
				{Description: "Electricity usage", Amount: decimal.RequireFromString("142.50")},
				{Description: "Service fee", Amount: decimal.RequireFromString("7.37")},
			},
		},
		Interval: interval,
		Step:     10,
	}
}

// Extract ticks progress to 100 and returns a copy of the canned draft
func (c *Canned) Extract(ctx context.Context, data []byte, contentType string, progress ProgressFunc) (*bill.Draft, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrUnreadable)
	}
	step := c.Step
	if step <= 0 {
		step = 10
	}
	interval := c.Interval
	if interval <= 0 {
		interval = time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	report(progress, 0)
	for percent := 0; percent < 100; {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			percent = min(percent+step, 100)
			report(progress, percent)
		}
	}

	draft := c.Draft
	draft.LineItems = append([]bill.LineItem(nil), c.Draft.LineItems...)
	return &draft, nil
}

// Close is a no-op
func (c *Canned) Close() error {
	return nil
}
