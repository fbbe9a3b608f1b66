package ledger

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/ftledger/internal/storage"
	"github.com/Klingon-tech/ftledger/pkg/types"
)

const testFee = 125

func amt(v uint64) types.Amount {
	return types.NewAmount(v)
}

func acct(s string) types.AccountID {
	return types.MustAccountID(s)
}

// recordingSink keeps every emitted event.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recordingSink) Last() Event {
	evs := r.Events()
	if len(evs) == 0 {
		return Event{}
	}
	return evs[len(evs)-1]
}

func testOptions(opts ...Option) []Option {
	base := []Option{WithStorageFee(amt(testFee)), WithLogger(zerolog.Nop())}
	return append(base, opts...)
}

// newTestLedger creates a ledger on a fresh memory store with alice as
// genesis owner.
func newTestLedger(t *testing.T, supply types.Amount, opts ...Option) *Ledger {
	t.Helper()
	l, err := New(storage.NewMemory(), Genesis{Owner: acct("alice"), TotalSupply: supply}, testOptions(opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func mustRegister(t *testing.T, l *Ledger, names ...string) {
	t.Helper()
	for _, name := range names {
		if _, err := l.Register(acct(name), amt(testFee)); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}
}

func mustTransfer(t *testing.T, l *Ledger, from, to string, v uint64) {
	t.Helper()
	if err := l.Transfer(acct(from), acct(to), amt(v), ""); err != nil {
		t.Fatalf("Transfer(%s -> %s, %d): %v", from, to, v, err)
	}
}

func wantBalance(t *testing.T, l *Ledger, name string, want uint64) {
	t.Helper()
	if got := l.BalanceOf(acct(name)); !got.Equal(amt(want)) {
		t.Errorf("BalanceOf(%s) = %s, want %d", name, got, want)
	}
}

func wantSupply(t *testing.T, l *Ledger, want uint64) {
	t.Helper()
	if got := l.TotalSupply(); !got.Equal(amt(want)) {
		t.Errorf("TotalSupply = %s, want %d", got, want)
	}
}

func mustAudit(t *testing.T, l *Ledger) {
	t.Helper()
	if _, err := l.Audit(); err != nil {
		t.Fatalf("Audit: %v", err)
	}
}
