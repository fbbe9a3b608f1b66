package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/ftledger/pkg/crypto"
	"github.com/Klingon-tech/ftledger/pkg/types"
)

// AuditReport summarizes a successful Audit.
type AuditReport struct {
	Accounts    int          `json:"accounts"`
	Balances    types.Amount `json:"balances"`
	TotalSupply types.Amount `json:"total_supply"`
	StorageHeld types.Amount `json:"storage_held"`
}

// Audit checks that the registry and the balance slots hold exactly the
// same accounts and that the balances sum to the total supply.
func (l *Ledger) Audit() (AuditReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.accounts()
	if err != nil {
		return AuditReport{}, err
	}

	var report AuditReport
	report.Accounts = len(entries)
	registered := make(map[types.AccountID]bool, len(entries))
	for _, e := range entries {
		registered[e.Account] = true
		sum, ok := report.Balances.CheckedAdd(e.Balance)
		if !ok {
			return AuditReport{}, fmt.Errorf("sum of balances: %w", ErrBalanceOverflow)
		}
		report.Balances = sum
		held, ok := report.StorageHeld.CheckedAdd(e.StorageFee)
		if !ok {
			return AuditReport{}, fmt.Errorf("sum of storage fees: %w", ErrBalanceOverflow)
		}
		report.StorageHeld = held
	}

	slots := 0
	err = l.db.ForEach(prefixBalance, func(key, _ []byte) error {
		id := types.AccountID(key[len(prefixBalance):])
		if !registered[id] {
			return fmt.Errorf("balance slot %s has no registry entry: %w", id, ErrInconsistentState)
		}
		slots++
		return nil
	})
	if err != nil {
		return AuditReport{}, err
	}
	if slots != len(entries) {
		return AuditReport{}, fmt.Errorf("%d registry entries, %d balance slots: %w", len(entries), slots, ErrInconsistentState)
	}

	supply, err := newTxn(l.db).totalSupply()
	if err != nil {
		return AuditReport{}, err
	}
	report.TotalSupply = supply
	if !supply.Equal(report.Balances) {
		return AuditReport{}, fmt.Errorf("supply %s, balances %s: %w", supply, report.Balances, ErrSupplyMismatch)
	}
	return report, nil
}

// StateRoot commits to every balance and to the total supply. Leaves are
// hashed in account order and combined into a BLAKE3 merkle root, which is
// then hashed together with the supply. Equal states yield equal roots.
func (l *Ledger) StateRoot() (types.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.accounts()
	if err != nil {
		return types.Hash{}, fmt.Errorf("state root: %w", err)
	}
	leaves := make([]types.Hash, len(entries))
	for i, e := range entries {
		leaves[i] = hashBalance(e.Account, e.Balance)
	}
	supply, err := newTxn(l.db).totalSupply()
	if err != nil {
		return types.Hash{}, fmt.Errorf("state root: %w", err)
	}
	return crypto.HashConcat(crypto.MerkleRoot(leaves), crypto.Hash(supply.Bytes())), nil
}

// hashBalance hashes one leaf.
// Format: len(account)(2) | account | balance(16)
func hashBalance(id types.AccountID, bal types.Amount) types.Hash {
	buf := make([]byte, 0, 2+len(id)+types.AmountSize)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(id)))
	buf = append(buf, id...)
	buf = append(buf, bal.Bytes()...)
	return crypto.Hash(buf)
}
