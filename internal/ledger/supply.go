package ledger

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/ftledger/pkg/types"
)

const genesisMemo = "new tokens are minted"

// MintGenesis registers owner, without charging a storage fee, and
// credits it the whole initial supply. It runs once per namespace; any
// later call fails with ErrAlreadyInitialized.
func (l *Ledger) MintGenesis(owner types.AccountID, amount types.Amount) error {
	if err := owner.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.run("mint_genesis", func(t *txn) error {
		done, err := t.initialized()
		if err != nil {
			return err
		}
		if done {
			return ErrAlreadyInitialized
		}
		reg, err := t.registration(owner)
		if errors.Is(err, ErrAccountNotRegistered) {
			reg = t.open(owner, types.ZeroAmount)
		} else if err != nil {
			return err
		}
		if err := t.deposit(reg, amount); err != nil {
			return err
		}
		t.genesis = &genesisRecord{Owner: owner, Amount: amount}
		t.emit(Event{Kind: EventMint, Owner: owner, Amount: amount, Memo: genesisMemo})
		return nil
	})
	if err != nil {
		return err
	}
	l.logger.Info().
		Str("owner", owner.String()).
		Str("supply", amount.String()).
		Msg("Genesis minted")
	return nil
}

// Burn destroys amount from account and reduces the supply by the same
// amount.
func (l *Ledger) Burn(account types.AccountID, amount types.Amount, memo string) error {
	if amount.IsZero() {
		return ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.run("burn", func(t *txn) error {
		reg, err := t.registration(account)
		if err != nil {
			return err
		}
		if err := t.withdraw(reg, amount); err != nil {
			return fmt.Errorf("burn: %w", err)
		}
		t.emit(Event{Kind: EventBurn, Owner: account, Amount: amount, Memo: memo})
		return nil
	})
	if err != nil {
		return err
	}
	l.logger.Info().
		Str("account", account.String()).
		Str("amount", amount.String()).
		Msg("Tokens burned")
	return nil
}
