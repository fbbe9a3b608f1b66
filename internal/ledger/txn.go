package ledger

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/ftledger/internal/storage"
	"github.com/Klingon-tech/ftledger/pkg/types"
)

// Registration proves that an account has paid for its balance slot.
// Only the registry hands them out, and each one is bound to the
// changeset it was looked up in: deposit and withdraw refuse registrations
// from any other changeset, including the zero value.
type Registration struct {
	account types.AccountID
	fee     types.Amount
	tx      *txn
}

// Account returns the registered account.
func (r Registration) Account() types.AccountID {
	return r.account
}

// StorageFee returns the storage fee held for the account.
func (r Registration) StorageFee() types.Amount {
	return r.fee
}

// txn stages every write of one ledger operation. Reads fall through to
// the store; nothing reaches the store until commit writes all staged
// records in a single batch.
type txn struct {
	db storage.DB

	regs     map[types.AccountID]*types.Amount // nil value: unregistered in this txn
	balances map[types.AccountID]types.Amount
	removed  map[types.AccountID]bool
	supply   *types.Amount
	genesis  *genesisRecord
	events   []Event

	opened int
	closed []bool // forced flag per closed account
}

func newTxn(db storage.DB) *txn {
	return &txn{
		db:       db,
		regs:     make(map[types.AccountID]*types.Amount),
		balances: make(map[types.AccountID]types.Amount),
		removed:  make(map[types.AccountID]bool),
	}
}

// registration looks up the registry entry for id.
func (t *txn) registration(id types.AccountID) (Registration, error) {
	if fee, ok := t.regs[id]; ok {
		if fee == nil {
			return Registration{}, fmt.Errorf("account %s: %w", id, ErrAccountNotRegistered)
		}
		return Registration{account: id, fee: *fee, tx: t}, nil
	}

	data, err := t.db.Get(registryKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return Registration{}, fmt.Errorf("account %s: %w", id, ErrAccountNotRegistered)
	}
	if err != nil {
		return Registration{}, fmt.Errorf("read registry %s: %w", id, err)
	}
	fee, err := decodeAmountRecord(kindRegistration, data)
	if err != nil {
		return Registration{}, fmt.Errorf("decode registry %s: %w", id, err)
	}
	return Registration{account: id, fee: fee, tx: t}, nil
}

// open creates the registry entry and the zero balance slot together.
func (t *txn) open(id types.AccountID, fee types.Amount) Registration {
	f := fee
	t.regs[id] = &f
	t.balances[id] = types.ZeroAmount
	delete(t.removed, id)
	t.opened++
	return Registration{account: id, fee: fee, tx: t}
}

// close removes the registry entry and the balance slot together.
// The balance must already be zero.
func (t *txn) close(reg Registration, forced bool) {
	t.regs[reg.account] = nil
	delete(t.balances, reg.account)
	t.removed[reg.account] = true
	t.closed = append(t.closed, forced)
}

func (t *txn) verify(reg Registration) error {
	if reg.tx != t || reg.account == "" {
		return fmt.Errorf("account %q: %w", reg.account, ErrAccountNotRegistered)
	}
	return nil
}

// balance returns the staged or stored balance of a registered account.
func (t *txn) balance(reg Registration) (types.Amount, error) {
	if err := t.verify(reg); err != nil {
		return types.Amount{}, err
	}
	if b, ok := t.balances[reg.account]; ok {
		return b, nil
	}
	data, err := t.db.Get(balanceKey(reg.account))
	if errors.Is(err, storage.ErrNotFound) {
		return types.Amount{}, fmt.Errorf("account %s has no balance slot: %w", reg.account, ErrInconsistentState)
	}
	if err != nil {
		return types.Amount{}, fmt.Errorf("read balance %s: %w", reg.account, err)
	}
	b, err := decodeAmountRecord(kindBalance, data)
	if err != nil {
		return types.Amount{}, fmt.Errorf("decode balance %s: %w", reg.account, err)
	}
	return b, nil
}

// totalSupply returns the staged or stored supply. An uninitialized
// namespace has zero supply.
func (t *txn) totalSupply() (types.Amount, error) {
	if t.supply != nil {
		return *t.supply, nil
	}
	data, err := t.db.Get(keySupply)
	if errors.Is(err, storage.ErrNotFound) {
		return types.ZeroAmount, nil
	}
	if err != nil {
		return types.Amount{}, fmt.Errorf("read supply: %w", err)
	}
	s, err := decodeAmountRecord(kindSupply, data)
	if err != nil {
		return types.Amount{}, fmt.Errorf("decode supply: %w", err)
	}
	return s, nil
}

func (t *txn) initialized() (bool, error) {
	if t.genesis != nil {
		return true, nil
	}
	ok, err := t.db.Has(keyGenesis)
	if err != nil {
		return false, fmt.Errorf("read genesis: %w", err)
	}
	return ok, nil
}

// deposit credits amount to reg and to the supply. Nothing is staged if
// either would overflow.
func (t *txn) deposit(reg Registration, amount types.Amount) error {
	bal, err := t.balance(reg)
	if err != nil {
		return err
	}
	newBal, ok := bal.CheckedAdd(amount)
	if !ok {
		return fmt.Errorf("deposit %s to %s: %w", amount, reg.account, ErrBalanceOverflow)
	}
	supply, err := t.totalSupply()
	if err != nil {
		return err
	}
	newSupply, ok := supply.CheckedAdd(amount)
	if !ok {
		return fmt.Errorf("deposit %s to %s: total supply: %w", amount, reg.account, ErrBalanceOverflow)
	}
	t.balances[reg.account] = newBal
	t.supply = &newSupply
	return nil
}

// withdraw debits amount from reg and from the supply. Nothing is staged
// if the balance is short.
func (t *txn) withdraw(reg Registration, amount types.Amount) error {
	bal, err := t.balance(reg)
	if err != nil {
		return err
	}
	newBal, ok := bal.CheckedSub(amount)
	if !ok {
		return fmt.Errorf("withdraw %s from %s (balance %s): %w", amount, reg.account, bal, ErrInsufficientBalance)
	}
	supply, err := t.totalSupply()
	if err != nil {
		return err
	}
	newSupply, ok := supply.CheckedSub(amount)
	if !ok {
		return fmt.Errorf("withdraw %s from %s: supply %s: %w", amount, reg.account, supply, ErrInconsistentState)
	}
	t.balances[reg.account] = newBal
	t.supply = &newSupply
	return nil
}

func (t *txn) emit(ev Event) {
	t.events = append(t.events, ev)
}

// commit writes all staged records in one batch.
func (t *txn) commit() error {
	b := storage.NewBatch(t.db)
	for id, fee := range t.regs {
		if fee == nil {
			if err := b.Delete(registryKey(id)); err != nil {
				return err
			}
			if err := b.Delete(balanceKey(id)); err != nil {
				return err
			}
			continue
		}
		if err := b.Put(registryKey(id), encodeAmountRecord(kindRegistration, *fee)); err != nil {
			return err
		}
	}
	for id, bal := range t.balances {
		if t.removed[id] {
			continue
		}
		if err := b.Put(balanceKey(id), encodeAmountRecord(kindBalance, bal)); err != nil {
			return err
		}
	}
	if t.supply != nil {
		if err := b.Put(keySupply, encodeAmountRecord(kindSupply, *t.supply)); err != nil {
			return err
		}
	}
	if t.genesis != nil {
		if err := b.Put(keyGenesis, encodeGenesis(*t.genesis)); err != nil {
			return err
		}
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
