package scanning

import (
	"context"
	"errors"

	"github.com/zombor/billscan/internal/bill"
)

// ErrUnreadable marks a document the recognizer could not make sense of.
// Other extractor errors are treated as internal failures.
var ErrUnreadable = errors.New("document unreadable")

// ProgressFunc receives a completion percentage in [0, 100].
// Calls may arrive at irregular intervals and may repeat values.
type ProgressFunc func(percent int)

// Extractor turns raw document bytes into a bill draft
type Extractor interface {
	// Extract recognizes a bill in data. Fields it cannot determine are left
	// absent in the draft. It must return promptly once ctx is done.
	Extract(ctx context.Context, data []byte, contentType string, progress ProgressFunc) (*bill.Draft, error)
	// Close releases the extractor's resources
	Close() error
}

// report calls fn when it is set
func report(fn ProgressFunc, percent int) {
	if fn != nil {
		fn(percent)
	}
}
