package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/Klingon-tech/ftledger/internal/ledger"
	"github.com/Klingon-tech/ftledger/pkg/types"
)

// Router dispatches notices to a per-account receiver, falling back to a
// default receiver for accounts without one.
type Router struct {
	mu       sync.RWMutex
	hooks    map[types.AccountID]ledger.Receiver
	fallback ledger.Receiver
}

// NewRouter creates a router. fallback may be nil.
func NewRouter(fallback ledger.Receiver) *Router {
	return &Router{
		hooks:    make(map[types.AccountID]ledger.Receiver),
		fallback: fallback,
	}
}

// Handle installs r for account, replacing any previous hook.
func (rt *Router) Handle(account types.AccountID, r ledger.Receiver) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.hooks[account] = r
}

// Remove uninstalls the hook for account.
func (rt *Router) Remove(account types.AccountID) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.hooks, account)
}

// OnTransfer implements ledger.Receiver.
func (rt *Router) OnTransfer(ctx context.Context, n ledger.Notice) (types.Amount, error) {
	rt.mu.RLock()
	r, ok := rt.hooks[n.Receiver]
	if !ok {
		r = rt.fallback
	}
	rt.mu.RUnlock()

	if r == nil {
		return types.Amount{}, fmt.Errorf("%s: %w", n.Receiver, ledger.ErrNoReceiver)
	}
	return r.OnTransfer(ctx, n)
}
