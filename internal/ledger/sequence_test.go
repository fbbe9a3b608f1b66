package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/Klingon-tech/ftledger/pkg/types"
)

var seqAccounts = []string{"alice", "bob", "carol", "dave", "erin", "frank"}

// ledgerModel mirrors the ledger with plain integers.
type ledgerModel struct {
	balances map[string]uint64
	supply   uint64
}

func (m *ledgerModel) check(t *testing.T, l *Ledger, step int, op string) {
	t.Helper()
	for _, name := range seqAccounts {
		want, registered := m.balances[name]
		if got := l.IsRegistered(acct(name)); got != registered {
			t.Fatalf("step %d (%s): IsRegistered(%s) = %v, want %v", step, op, name, got, registered)
		}
		if got := l.BalanceOf(acct(name)); !got.Equal(amt(want)) {
			t.Fatalf("step %d (%s): BalanceOf(%s) = %s, want %d", step, op, name, got, want)
		}
	}
	if got := l.TotalSupply(); !got.Equal(amt(m.supply)) {
		t.Fatalf("step %d (%s): TotalSupply = %s, want %d", step, op, got, m.supply)
	}
	if _, err := l.Audit(); err != nil {
		t.Fatalf("step %d (%s): Audit: %v", step, op, err)
	}
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func TestRandomOperationSequence(t *testing.T) {
	for seed := uint64(1); seed <= 8; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(seed, seed*7919))

			// The hook answer for the next TransferAndNotify call.
			var (
				hookUnused uint64
				hookFails  bool
			)
			hook := ReceiverFunc(func(context.Context, Notice) (types.Amount, error) {
				if hookFails {
					return types.ZeroAmount, errors.New("receiver rejected notice")
				}
				return amt(hookUnused), nil
			})

			l := newTestLedger(t, amt(10_000), WithReceiver(hook))
			m := &ledgerModel{balances: map[string]uint64{"alice": 10_000}, supply: 10_000}

			pick := func() string { return seqAccounts[rng.IntN(len(seqAccounts))] }

			for step := 0; step < 400; step++ {
				var op string
				switch rng.IntN(6) {
				case 0:
					op = "register"
					name := pick()
					attached := uint64(testFee - 2 + rng.IntN(10))
					res, err := l.Register(acct(name), amt(attached))
					if err == nil && !res.AlreadyRegistered {
						m.balances[name] = 0
					}

				case 1:
					force := rng.IntN(2) == 0
					op = fmt.Sprintf("unregister force=%v", force)
					name := pick()
					res, err := l.Unregister(acct(name), force)
					if err == nil {
						bal := m.balances[name]
						if !res.Burned.Equal(amt(bal)) {
							t.Fatalf("step %d: Unregister(%s) burned %s, want %d", step, name, res.Burned, bal)
						}
						m.supply -= bal
						delete(m.balances, name)
					}

				case 2, 3:
					op = "transfer"
					from, to := pick(), pick()
					v := uint64(rng.IntN(400))
					if err := l.Transfer(acct(from), acct(to), amt(v), ""); err == nil {
						m.balances[from] -= v
						m.balances[to] += v
					}

				case 4:
					op = "transfer_call"
					from, to := pick(), pick()
					v := uint64(rng.IntN(400))
					hookFails = rng.IntN(5) == 0
					hookUnused = uint64(rng.IntN(500))

					s, err := l.TransferAndNotify(context.Background(), acct(from), acct(to), amt(v), "", "")
					if err == nil {
						m.balances[from] -= v
						m.balances[to] += v

						unused := minU64(hookUnused, v)
						if hookFails {
							unused = v
						}
						refund := minU64(unused, m.balances[to])
						if !s.Refunded.Equal(amt(refund)) || !s.Burned.IsZero() {
							t.Fatalf("step %d: settlement refunded=%s burned=%s, want %d, 0", step, s.Refunded, s.Burned, refund)
						}
						m.balances[to] -= refund
						m.balances[from] += refund
					}

				case 5:
					op = "burn"
					name := pick()
					v := uint64(rng.IntN(300))
					if err := l.Burn(acct(name), amt(v), ""); err == nil {
						m.balances[name] -= v
						m.supply -= v
					}
				}
				m.check(t, l, step, op)
			}
		})
	}
}

func TestConcurrentOperationsKeepSupply(t *testing.T) {
	var l *Ledger
	hook := ReceiverFunc(func(_ context.Context, n Notice) (types.Amount, error) {
		// Spend part of the notice before answering.
		_ = l.Transfer(n.Receiver, n.Sender, amt(1), "")
		return amt(n.Amount.Uint128().Lo / 2), nil
	})
	l = newTestLedger(t, amt(100_000), WithReceiver(hook))
	mustRegister(t, l, seqAccounts[1:]...)
	for _, name := range seqAccounts[1:] {
		mustTransfer(t, l, "alice", name, 10_000)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(seqAccounts))
	for w := range len(seqAccounts) {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(w), 42))
			pick := func() types.AccountID { return acct(seqAccounts[rng.IntN(len(seqAccounts))]) }
			for range 200 {
				switch rng.IntN(5) {
				case 0:
					_, _ = l.Register(pick(), amt(testFee))
				case 1:
					_, _ = l.Unregister(pick(), rng.IntN(2) == 0)
				case 2:
					_ = l.Transfer(pick(), pick(), amt(uint64(rng.IntN(500))), "")
				case 3:
					_, _ = l.TransferAndNotify(context.Background(), pick(), pick(), amt(uint64(rng.IntN(500))), "", "")
				case 4:
					_ = l.Burn(pick(), amt(uint64(rng.IntN(100))), "")
				}
				if _, err := l.Audit(); err != nil {
					errCh <- fmt.Errorf("worker %d: %w", w, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}
	mustAudit(t, l)
}
