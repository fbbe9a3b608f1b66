package node

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/ftledger/config"
	"github.com/Klingon-tech/ftledger/internal/ledger"
	"github.com/Klingon-tech/ftledger/internal/storage"
)

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// openStore opens the configured key-value backend.
func openStore(cfg *config.Config) (storage.DB, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return storage.NewMemory(), nil
	case config.BackendBadger, "":
		dir := expandHome(cfg.LedgerDir())
		db, err := storage.NewBadger(dir)
		if err != nil {
			return nil, fmt.Errorf("open database at %s: %w", dir, err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}

// checkGenesis compares the genesis recorded in l with gen.
func checkGenesis(l *ledger.Ledger, gen *config.Genesis) error {
	stored, err := l.Genesis()
	if err != nil {
		return fmt.Errorf("read ledger genesis: %w", err)
	}
	if stored.Owner != gen.Owner {
		return fmt.Errorf("%w: owner %s, ledger has %s", ErrGenesisMismatch, gen.Owner, stored.Owner)
	}
	if !stored.TotalSupply.Equal(gen.TotalSupply) {
		return fmt.Errorf("%w: total_supply %s, ledger has %s", ErrGenesisMismatch, gen.TotalSupply, stored.TotalSupply)
	}
	return nil
}
