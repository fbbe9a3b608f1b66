package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/Klingon-tech/ftledger/pkg/crypto"
	"github.com/Klingon-tech/ftledger/pkg/types"
)

// =============================================================================
// Token Rules (defined in genesis, applied once when the ledger is created)
// =============================================================================

// MetadataSpec is the fungible-token metadata version.
const MetadataSpec = "ft-1.0.0"

// MaxDecimals bounds Metadata.Decimals; 10^38 is the largest power of ten
// below 2^128.
const MaxDecimals = 38

// Default token parameters. Amounts are in base units.
const (
	DefaultOwner       = "owner"
	DefaultTotalSupply = "1000000000000000000000000" // 10^6 tokens at 18 decimals
	DefaultStorageFee  = "1250000000000000000000"    // 125 bytes at 10^19 per byte
	DefaultName        = "Crow Token"
	DefaultSymbol      = "CROW"
	DefaultDecimals    = 18
)

// DefaultIcon is the data URL served as the default token icon.
const DefaultIcon = "data:image/svg+xml,%3Csvg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 288 288'%3E%3Cg id='l' data-name='l'%3E%3Cpath d='M187.58,79.81l-30.1,44.69a3.2,3.2,0,0,0,4.75,4.2L191.86,103a1.2,1.2,0,0,1,2,.91v80.46a1.2,1.2,0,0,1-2.12.77L102.18,77.93A15.35,15.35,0,0,0,90.47,72.5H87.34A15.34,15.34,0,0,0,72,87.84V201.16A15.34,15.34,0,0,0,87.34,216.5h0a15.35,15.35,0,0,0,13.08-7.31l30.1-44.69a3.2,3.2,0,0,0-4.75-4.2L96.14,186a1.2,1.2,0,0,1-2-.91V104.61a1.2,1.2,0,0,1,2.12-.77l89.55,107.23a15.35,15.35,0,0,0,11.71,5.43h3.13A15.34,15.34,0,0,0,216,201.16V87.84A15.34,15.34,0,0,0,200.66,72.5h0A15.35,15.35,0,0,0,187.58,79.81Z'/%3E%3C/g%3E%3C/svg%3E"

// ReferenceHashSize is the decoded length of Metadata.ReferenceHash.
const ReferenceHashSize = 32

// Genesis holds the initial mint and the storage fee.
type Genesis struct {
	Owner       types.AccountID `json:"owner"`
	TotalSupply types.Amount    `json:"total_supply"`
	StorageFee  types.Amount    `json:"storage_fee"`
	Metadata    Metadata        `json:"metadata"`
}

// Metadata describes the token for wallets and explorers. The ledger does
// not interpret it.
type Metadata struct {
	Spec     string `json:"spec"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Icon     string `json:"icon,omitempty"`
	// Reference points to an off-ledger JSON document; ReferenceHash is the
	// base64 SHA-256 of that document. Both are set or both are empty.
	Reference     string `json:"reference,omitempty"`
	ReferenceHash string `json:"reference_hash,omitempty"`
	Decimals      uint8  `json:"decimals"`
}

// DefaultGenesis returns the genesis written on first start.
func DefaultGenesis() *Genesis {
	return &Genesis{
		Owner:       types.MustAccountID(DefaultOwner),
		TotalSupply: types.MustParseAmount(DefaultTotalSupply),
		StorageFee:  types.MustParseAmount(DefaultStorageFee),
		Metadata: Metadata{
			Spec:     MetadataSpec,
			Name:     DefaultName,
			Symbol:   DefaultSymbol,
			Icon:     DefaultIcon,
			Decimals: DefaultDecimals,
		},
	}
}

// =============================================================================
// Genesis file I/O
// =============================================================================

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// LoadOrInitGenesis loads path, writing DefaultGenesis there first if the
// file does not exist. The boolean reports whether the file was created.
func LoadOrInitGenesis(path string) (*Genesis, bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		g := DefaultGenesis()
		if err := g.Save(path); err != nil {
			return nil, false, err
		}
		return g, true, nil
	}
	g, err := LoadGenesis(path)
	return g, false, err
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}

	return nil
}

// Validate checks that the genesis configuration is valid.
func (g *Genesis) Validate() error {
	if err := g.Owner.Validate(); err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	if g.Metadata.Spec != MetadataSpec {
		return fmt.Errorf("metadata.spec must be %q", MetadataSpec)
	}
	if g.Metadata.Name == "" {
		return fmt.Errorf("metadata.name is required")
	}
	if g.Metadata.Symbol == "" {
		return fmt.Errorf("metadata.symbol is required")
	}
	if g.Metadata.Decimals > MaxDecimals {
		return fmt.Errorf("metadata.decimals must be at most %d", MaxDecimals)
	}
	return g.Metadata.validateReference()
}

func (m *Metadata) validateReference() error {
	if (m.Reference == "") != (m.ReferenceHash == "") {
		return fmt.Errorf("metadata.reference and metadata.reference_hash must be set together")
	}
	if m.ReferenceHash == "" {
		return nil
	}
	h, err := base64.StdEncoding.DecodeString(m.ReferenceHash)
	if err != nil {
		return fmt.Errorf("metadata.reference_hash: %w", err)
	}
	if len(h) != ReferenceHashSize {
		return fmt.Errorf("metadata.reference_hash must decode to %d bytes, got %d", ReferenceHashSize, len(h))
	}
	return nil
}

// Hash returns a BLAKE3 hash of the genesis configuration.
// Used to detect a genesis file that changed after the ledger was created.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
