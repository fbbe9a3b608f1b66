package ledger

import (
	"errors"

	"github.com/Klingon-tech/ftledger/pkg/types"
)

// BalanceOf returns the balance of account, or zero if it is not
// registered.
func (l *Ledger) BalanceOf(account types.AccountID) types.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := newTxn(l.db)
	reg, err := t.registration(account)
	if err != nil {
		if !errors.Is(err, ErrAccountNotRegistered) {
			l.logger.Warn().Err(err).Str("account", account.String()).Msg("Registry lookup failed")
		}
		return types.ZeroAmount
	}
	bal, err := t.balance(reg)
	if err != nil {
		l.logger.Warn().Err(err).Str("account", account.String()).Msg("Balance lookup failed")
		return types.ZeroAmount
	}
	return bal
}

// TotalSupply returns the sum of all balances.
func (l *Ledger) TotalSupply() types.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, err := newTxn(l.db).totalSupply()
	if err != nil {
		l.logger.Warn().Err(err).Msg("Supply lookup failed")
		return types.ZeroAmount
	}
	return s
}

// deposit credits a registered account and the supply in one committed
// step. Only genesis and tests reach it; nothing exported mints tokens.
func (l *Ledger) deposit(account types.AccountID, amount types.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.run("deposit", func(t *txn) error {
		reg, err := t.registration(account)
		if err != nil {
			return err
		}
		return t.deposit(reg, amount)
	})
}

// withdraw debits a registered account and the supply in one committed
// step.
func (l *Ledger) withdraw(account types.AccountID, amount types.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.run("withdraw", func(t *txn) error {
		reg, err := t.registration(account)
		if err != nil {
			return err
		}
		return t.withdraw(reg, amount)
	})
}
