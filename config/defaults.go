package config

import "time"

// Default ports and subjects.
const (
	DefaultRPCPort         = 8650
	DefaultNamespace       = "ft"
	DefaultNotifyTimeout   = 30 * time.Second
	DefaultNATSURL         = "nats://127.0.0.1:4222"
	DefaultEventSubject    = "ftledger.events"
	DefaultReceiverSubject = "ftledger.notify"
	DefaultStream          = "FTLEDGER_EVENTS"
	DefaultEventBuffer     = 1024
)

// Default returns the default daemon configuration.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Storage: StorageConfig{
			Backend: BackendBadger,
		},
		Ledger: LedgerConfig{
			Namespace:     DefaultNamespace,
			NotifyTimeout: DefaultNotifyTimeout,
		},
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       DefaultRPCPort,
			AllowedIPs: []string{"127.0.0.1"},
		},
		NATS: NATSConfig{
			Enabled:         false,
			URL:             DefaultNATSURL,
			EventSubject:    DefaultEventSubject,
			ReceiverSubject: DefaultReceiverSubject,
			Stream:          DefaultStream,
			EventBuffer:     DefaultEventBuffer,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}
