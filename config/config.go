// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Token rules: defined in genesis.json, fixed once the ledger is created
//   - Node settings: runtime configuration, can change between restarts
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Storage backends.
const (
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// =============================================================================
// Node Configuration (runtime settings)
// =============================================================================

// Config holds daemon runtime configuration.
type Config struct {
	// Core
	DataDir string `conf:"datadir"`
	Genesis string `conf:"genesis"` // Path to genesis.json (default: <datadir>/genesis.json)

	// Storage
	Storage StorageConfig

	// Ledger engine
	Ledger LedgerConfig

	// RPC server
	RPC RPCConfig

	// NATS transport for receiver hooks and events
	NATS NATSConfig

	// Prometheus metrics
	Metrics MetricsConfig

	// Logging
	Log LogConfig
}

// StorageConfig selects the key-value backend.
type StorageConfig struct {
	Backend string `conf:"storage.backend"` // badger or memory
}

// LedgerConfig holds ledger engine settings.
type LedgerConfig struct {
	Namespace     string        `conf:"ledger.namespace"`      // Key prefix inside the store
	NotifyTimeout time.Duration `conf:"ledger.notify_timeout"` // Receiver hook deadline
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// NATSConfig holds NATS settings. Receiver hooks are requested on
// "<ReceiverSubject>.<account>" and events are published on
// "<EventSubject>.<event>".
type NATSConfig struct {
	Enabled         bool   `conf:"nats.enabled"`
	URL             string `conf:"nats.url"`
	EventSubject    string `conf:"nats.event_subject"`
	ReceiverSubject string `conf:"nats.receiver_subject"`
	Stream          string `conf:"nats.stream"`
	EventBuffer     int    `conf:"nats.event_buffer"`
}

// MetricsConfig controls the Prometheus endpoint served next to RPC.
type MetricsConfig struct {
	Enabled bool `conf:"metrics.enabled"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.ftledger
//	macOS:   ~/Library/Application Support/FTLedger
//	Windows: %APPDATA%\FTLedger
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ftledger"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "FTLedger")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "FTLedger")
		}
		return filepath.Join(home, "AppData", "Roaming", "FTLedger")
	default:
		return filepath.Join(home, ".ftledger")
	}
}

// LedgerDir returns the badger database directory.
func (c *Config) LedgerDir() string {
	return filepath.Join(c.DataDir, "ledger")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "ftledgerd.conf")
}

// GenesisFile returns the genesis file path.
func (c *Config) GenesisFile() string {
	if c.Genesis != "" {
		return c.Genesis
	}
	return filepath.Join(c.DataDir, "genesis.json")
}
