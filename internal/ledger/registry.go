package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Klingon-tech/ftledger/pkg/types"
)

// RegisterResult reports the outcome of Register.
type RegisterResult struct {
	Account           types.AccountID `json:"account"`
	FeeHeld           types.Amount    `json:"fee_held"`
	Refund            types.Amount    `json:"refund"`
	AlreadyRegistered bool            `json:"already_registered"`
}

// UnregisterResult reports the outcome of Unregister. Forced is set when
// a positive balance was burned to close the account.
type UnregisterResult struct {
	Account types.AccountID `json:"account"`
	Refund  types.Amount    `json:"refund"`
	Burned  types.Amount    `json:"burned"`
	Forced  bool            `json:"forced"`
}

// StorageBalance is the storage deposit held for an account. Nothing of
// it is ever available for withdrawal while the account is registered.
type StorageBalance struct {
	Total     types.Amount `json:"total"`
	Available types.Amount `json:"available"`
}

// StorageBounds are the minimum and maximum storage deposit. Both equal
// the storage fee.
type StorageBounds struct {
	Min types.Amount `json:"min"`
	Max types.Amount `json:"max"`
}

// AccountEntry is one row of the account listing.
type AccountEntry struct {
	Account    types.AccountID `json:"account"`
	Balance    types.Amount    `json:"balance"`
	StorageFee types.Amount    `json:"storage_fee"`
}

// Register opens a balance slot for account. The storage fee is kept out
// of attached and the excess is refunded. Registering an account that
// already exists refunds attached in full and changes nothing.
func (l *Ledger) Register(account types.AccountID, attached types.Amount) (RegisterResult, error) {
	if err := account.Validate(); err != nil {
		return RegisterResult{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var res RegisterResult
	err := l.run("register", func(t *txn) error {
		_, err := t.registration(account)
		if err == nil {
			res = RegisterResult{Account: account, Refund: attached, AlreadyRegistered: true}
			return nil
		}
		if !errors.Is(err, ErrAccountNotRegistered) {
			return err
		}
		refund, ok := attached.CheckedSub(l.storageFee)
		if !ok {
			return &DepositError{Account: account, Required: l.storageFee, Attached: attached}
		}
		t.open(account, l.storageFee)
		res = RegisterResult{Account: account, FeeHeld: l.storageFee, Refund: refund}
		return nil
	})
	if err != nil {
		return RegisterResult{}, err
	}

	if res.AlreadyRegistered {
		l.logger.Debug().Str("account", account.String()).Msg("Account already registered, refunding deposit")
	} else {
		l.logger.Info().
			Str("account", account.String()).
			Str("fee", res.FeeHeld.String()).
			Str("refund", res.Refund.String()).
			Msg("Account registered")
	}
	return res, nil
}

// Unregister closes account and returns its storage fee. A positive
// balance is rejected with ErrNonZeroBalance unless force is set, in which
// case the balance is burned and the supply reduced by the same amount.
func (l *Ledger) Unregister(account types.AccountID, force bool) (UnregisterResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var res UnregisterResult
	err := l.run("unregister", func(t *txn) error {
		reg, err := t.registration(account)
		if err != nil {
			return err
		}
		bal, err := t.balance(reg)
		if err != nil {
			return err
		}
		if !bal.IsZero() {
			if !force {
				return fmt.Errorf("account %s holds %s: %w", account, bal, ErrNonZeroBalance)
			}
			if err := t.withdraw(reg, bal); err != nil {
				return err
			}
			t.emit(Event{Kind: EventBurn, Owner: account, Amount: bal})
		}
		t.close(reg, !bal.IsZero())
		t.emit(Event{Kind: EventAccountClosed, Owner: account, Amount: bal})
		res = UnregisterResult{
			Account: account,
			Refund:  reg.fee,
			Burned:  bal,
			Forced:  !bal.IsZero(),
		}
		return nil
	})
	if err != nil {
		return UnregisterResult{}, err
	}

	ev := l.logger.Info().Str("account", account.String()).Str("refund", res.Refund.String())
	if res.Forced {
		ev = ev.Str("burned", res.Burned.String())
	}
	ev.Msg("Account unregistered")
	return res, nil
}

// IsRegistered reports whether account currently holds a registry entry.
func (l *Ledger) IsRegistered(account types.AccountID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := newTxn(l.db).registration(account)
	if err != nil && !errors.Is(err, ErrAccountNotRegistered) {
		l.logger.Warn().Err(err).Str("account", account.String()).Msg("Registry lookup failed")
	}
	return err == nil
}

// StorageBalanceOf returns the storage deposit held for account. The
// boolean is false for unregistered accounts.
func (l *Ledger) StorageBalanceOf(account types.AccountID) (StorageBalance, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	reg, err := newTxn(l.db).registration(account)
	if err != nil {
		return StorageBalance{}, false
	}
	return StorageBalance{Total: reg.fee, Available: types.ZeroAmount}, true
}

// StorageBalanceBounds returns the required storage deposit range.
func (l *Ledger) StorageBalanceBounds() StorageBounds {
	return StorageBounds{Min: l.storageFee, Max: l.storageFee}
}

// Accounts lists every registered account ordered by account ID.
func (l *Ledger) Accounts() ([]AccountEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts()
}

func (l *Ledger) accounts() ([]AccountEntry, error) {
	var entries []AccountEntry
	err := l.db.ForEach(prefixRegistry, func(key, value []byte) error {
		id := types.AccountID(key[len(prefixRegistry):])
		fee, err := decodeAmountRecord(kindRegistration, value)
		if err != nil {
			return fmt.Errorf("decode registry %s: %w", id, err)
		}
		entries = append(entries, AccountEntry{Account: id, StorageFee: fee})
		return nil
	})
	if err != nil {
		return nil, err
	}

	t := newTxn(l.db)
	for i := range entries {
		reg := Registration{account: entries[i].Account, fee: entries[i].StorageFee, tx: t}
		bal, err := t.balance(reg)
		if err != nil {
			return nil, err
		}
		entries[i].Balance = bal
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Account < entries[j].Account
	})
	return entries, nil
}
