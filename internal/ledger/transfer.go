package ledger

import (
	"fmt"

	"github.com/Klingon-tech/ftledger/pkg/types"
)

// Transfer moves amount from sender to receiver. Both accounts must be
// registered and distinct, and amount must be positive. The supply does
// not change.
func (l *Ledger) Transfer(sender, receiver types.AccountID, amount types.Amount, memo string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.run("transfer", func(t *txn) error {
		return t.transfer(sender, receiver, amount, memo)
	})
	if err != nil {
		return err
	}
	l.logger.Debug().
		Str("sender", sender.String()).
		Str("receiver", receiver.String()).
		Str("amount", amount.String()).
		Msg("Transfer")
	return nil
}

// transfer stages a balance move. Every precondition is checked before
// the first write is staged.
func (t *txn) transfer(sender, receiver types.AccountID, amount types.Amount, memo string) error {
	if sender == receiver {
		return fmt.Errorf("%s: %w", sender, ErrSelfTransfer)
	}
	if amount.IsZero() {
		return ErrZeroAmount
	}
	from, err := t.registration(sender)
	if err != nil {
		return err
	}
	to, err := t.registration(receiver)
	if err != nil {
		return err
	}

	fromBal, err := t.balance(from)
	if err != nil {
		return err
	}
	if fromBal.LessThan(amount) {
		return fmt.Errorf("transfer %s from %s (balance %s): %w", amount, sender, fromBal, ErrInsufficientBalance)
	}
	toBal, err := t.balance(to)
	if err != nil {
		return err
	}
	if _, ok := toBal.CheckedAdd(amount); !ok {
		return fmt.Errorf("transfer %s to %s: %w", amount, receiver, ErrBalanceOverflow)
	}

	if err := t.withdraw(from, amount); err != nil {
		return err
	}
	if err := t.deposit(to, amount); err != nil {
		return err
	}
	t.emit(Event{Kind: EventTransfer, OldOwner: sender, NewOwner: receiver, Amount: amount, Memo: memo})
	return nil
}
