package pipeline

import (
	"log/slog"

	"github.com/zombor/billscan/internal/bill"
)

// Event reports one state transition of a session
type Event struct {
	SessionID uint64
	State     State
}

// Terminal reports whether the event ends its session: a completed or
// failed extraction, or a failed acquisition. Each session emits at most one.
func (e Event) Terminal() bool {
	switch st := e.State.(type) {
	case Completed, Failed:
		return true
	case Idle:
		return st.Err != nil
	}
	return false
}

// Listener receives events in transition order. Listeners run outside the
// pipeline lock and may call back into the pipeline.
type Listener func(Event)

type listenerEntry struct {
	id int
	fn Listener
}

// Subscribe registers fn for every future event and returns a function that removes it
func (p *Pipeline) Subscribe(fn Listener) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.listeners = append(p.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, l := range p.listeners {
			if l.id == id {
				p.listeners = append(p.listeners[:i:i], p.listeners[i+1:]...)
				return
			}
		}
	}
}

// flush delivers queued events. Only one goroutine delivers at a time; a
// caller that finds delivery in progress leaves its events to that goroutine.
func (p *Pipeline) flush() {
	for {
		if !p.dispatch.TryLock() {
			return
		}
		for {
			p.mu.Lock()
			if len(p.pending) == 0 {
				p.mu.Unlock()
				break
			}
			ev := p.pending[0]
			p.pending = p.pending[1:]
			listeners := append([]listenerEntry(nil), p.listeners...)
			p.mu.Unlock()

			for _, l := range listeners {
				l.fn(ev)
			}
		}
		p.dispatch.Unlock()

		p.mu.Lock()
		more := len(p.pending) > 0
		p.mu.Unlock()
		if !more {
			return
		}
	}
}

// Inserter stores completed bills
type Inserter interface {
	Insert(b bill.Bill) (bill.Bill, error)
}

// AutoCommit returns a listener that inserts every completed bill into dst.
// onCommit, when set, receives the stored bill or the insert error.
func AutoCommit(dst Inserter, onCommit func(bill.Bill, error)) Listener {
	return func(ev Event) {
		done, ok := ev.State.(Completed)
		if !ok {
			return
		}
		stored, err := dst.Insert(done.Bill)
		if err != nil {
			slog.Error("Failed to commit bill", "session", ev.SessionID, "vendor", done.Bill.Vendor, "error", err)
		} else {
			slog.Info("Bill committed", "session", ev.SessionID, "id", stored.ID)
		}
		if onCommit != nil {
			onCommit(stored, err)
		}
	}
}
