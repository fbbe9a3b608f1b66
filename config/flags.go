package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Version is the daemon version reported by --version.
const Version = "0.1.0"

// ErrVersion is returned by ParseFlags when --version was requested.
var ErrVersion = errors.New("version requested")

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	DataDir string
	Config  string
	Genesis string

	// Storage
	Backend string

	// Ledger
	Namespace     string
	NotifyTimeout time.Duration

	// RPC
	RPC        bool
	RPCAddr    string
	RPCPort    int
	RPCAllowed string
	RPCCORS    string

	// NATS
	NATS            bool
	NATSURL         string
	EventSubject    string
	ReceiverSubject string

	// Metrics
	Metrics bool

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetRPC     bool
	SetNATS    bool
	SetMetrics bool
	SetLogJSON bool
}

// ParseFlags parses command-line flags. It returns flag.ErrHelp for
// --help and ErrVersion for --version.
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("ftledgerd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")
	fs.StringVar(&f.Genesis, "genesis", "", "Genesis file path")

	// Storage and ledger
	fs.StringVar(&f.Backend, "storage", "", "Storage backend (badger or memory)")
	fs.StringVar(&f.Namespace, "namespace", "", "Ledger key namespace")
	fs.DurationVar(&f.NotifyTimeout, "notify-timeout", 0, "Receiver hook timeout")

	// RPC
	fs.BoolVar(&f.RPC, "rpc", true, "Enable RPC server")
	fs.StringVar(&f.RPCAddr, "rpc-addr", "", "RPC listen address")
	fs.IntVar(&f.RPCPort, "rpc-port", 0, "RPC listen port")
	fs.StringVar(&f.RPCAllowed, "rpc-allowed", "", "Allowed IPs for RPC")
	fs.StringVar(&f.RPCCORS, "rpc-cors", "", "Allowed CORS origins for RPC (comma-separated)")

	// NATS
	fs.BoolVar(&f.NATS, "nats", false, "Enable NATS receiver hooks and event stream")
	fs.StringVar(&f.NATSURL, "nats-url", "", "NATS server URL")
	fs.StringVar(&f.EventSubject, "event-subject", "", "Subject prefix for published events")
	fs.StringVar(&f.ReceiverSubject, "receiver-subject", "", "Subject prefix for receiver hooks")

	// Metrics
	fs.BoolVar(&f.Metrics, "metrics", true, "Serve Prometheus metrics at /metrics")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if f.Help {
		return f, flag.ErrHelp
	}
	if f.Version {
		return f, ErrVersion
	}

	f.SetRPC = isFlagSet(fs, "rpc")
	f.SetNATS = isFlagSet(fs, "nats")
	f.SetMetrics = isFlagSet(fs, "metrics")
	f.SetLogJSON = isFlagSet(fs, "log-json")

	f.Args = fs.Args()

	// A positional argument stops the parser; anything flag-like after it
	// would be silently ignored.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q was not parsed (positional argument stopped parsing)", arg)
		}
	}

	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.Genesis != "" {
		cfg.Genesis = f.Genesis
	}

	// Storage and ledger
	if f.Backend != "" {
		cfg.Storage.Backend = strings.ToLower(f.Backend)
	}
	if f.Namespace != "" {
		cfg.Ledger.Namespace = f.Namespace
	}
	if f.NotifyTimeout != 0 {
		cfg.Ledger.NotifyTimeout = f.NotifyTimeout
	}

	// RPC
	if f.SetRPC {
		cfg.RPC.Enabled = f.RPC
	}
	if f.RPCAddr != "" {
		cfg.RPC.Addr = f.RPCAddr
	}
	if f.RPCPort != 0 {
		cfg.RPC.Port = f.RPCPort
	}
	if f.RPCAllowed != "" {
		cfg.RPC.AllowedIPs = parseStringList(f.RPCAllowed)
	}
	if f.RPCCORS != "" {
		cfg.RPC.CORSOrigins = parseStringList(f.RPCCORS)
	}

	// NATS
	if f.SetNATS {
		cfg.NATS.Enabled = f.NATS
	}
	if f.NATSURL != "" {
		cfg.NATS.URL = f.NATSURL
	}
	if f.EventSubject != "" {
		cfg.NATS.EventSubject = f.EventSubject
	}
	if f.ReceiverSubject != "" {
		cfg.NATS.ReceiverSubject = f.ReceiverSubject
	}

	// Metrics
	if f.SetMetrics {
		cfg.Metrics.Enabled = f.Metrics
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// PrintUsage writes the daemon help text to w.
func PrintUsage(w io.Writer) {
	usage := `ftledgerd - fungible-token ledger daemon

Usage:
  ftledgerd [options]
  ftledgerd --help

Commands:
  --help, -h          Show this help message
  --version, -v       Show version information

Core Options:
  --datadir           Data directory (default: ~/.ftledger)
  --config, -c        Config file path (default: <datadir>/ftledgerd.conf)
  --genesis           Genesis file (default: <datadir>/genesis.json)

Ledger Options:
  --storage           Storage backend: badger (default) or memory
  --namespace         Key namespace inside the store (default: ft)
  --notify-timeout    Receiver hook timeout, e.g. 30s (default: 30s)

RPC Options:
  --rpc               Enable RPC server (default: true)
  --rpc-addr          RPC listen address (default: 127.0.0.1)
  --rpc-port          RPC port (default: 8650)
  --rpc-allowed       Allowed IPs for RPC (comma-separated)
  --rpc-cors          Allowed CORS origins for RPC (comma-separated)

NATS Options:
  --nats              Deliver receiver hooks and events over NATS
  --nats-url          NATS server URL (default: nats://127.0.0.1:4222)
  --event-subject     Event subject prefix (default: ftledger.events)
  --receiver-subject  Receiver hook subject prefix (default: ftledger.notify)

Metrics Options:
  --metrics           Serve Prometheus metrics at /metrics (default: true)

Logging Options:
  --log-level         Log level: debug, info, warn, error (default: info)
  --log-file          Log file path (default: stdout)
  --log-json          Output logs as JSON

Examples:
  # Start with the default data directory
  ftledgerd

  # Throwaway in-memory ledger with verbose logs
  ftledgerd --storage=memory --log-level=debug

  # Publish events and route transfer-call hooks through NATS
  ftledgerd --nats --nats-url=nats://10.0.0.5:4222

Note:
  The token owner, total supply and storage fee come from genesis.json and
  are applied only when the ledger is first created.
`
	fmt.Fprint(w, usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load(args []string) (*Config, *Flags, error) {
	flags, err := ParseFlags(args)
	if err != nil {
		return nil, flags, err
	}

	cfg := Default()
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	// Flags take precedence over the file.
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Safe to call on every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.LedgerDir(),
		cfg.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}
	return nil
}
