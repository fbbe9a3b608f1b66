package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("datadir must be set")
	}

	switch cfg.Storage.Backend {
	case BackendBadger, BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be %q or %q", BackendBadger, BackendMemory)
	}

	if cfg.Ledger.Namespace == "" {
		return fmt.Errorf("ledger.namespace must be set")
	}
	if strings.ContainsAny(cfg.Ledger.Namespace, "/ \t") {
		return fmt.Errorf("ledger.namespace %q must not contain '/' or whitespace", cfg.Ledger.Namespace)
	}
	if cfg.Ledger.NotifyTimeout <= 0 {
		return fmt.Errorf("ledger.notify_timeout must be positive")
	}

	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	for i, ip := range cfg.RPC.AllowedIPs {
		if net.ParseIP(ip) == nil {
			if _, _, err := net.ParseCIDR(ip); err != nil {
				return fmt.Errorf("rpc.allowed[%d] %q is not an IP or CIDR", i, ip)
			}
		}
	}

	if cfg.NATS.Enabled {
		if cfg.NATS.URL == "" {
			return fmt.Errorf("nats.url must be set when nats is enabled")
		}
		if err := validateSubject(cfg.NATS.EventSubject, "nats.event_subject"); err != nil {
			return err
		}
		if err := validateSubject(cfg.NATS.ReceiverSubject, "nats.receiver_subject"); err != nil {
			return err
		}
		if cfg.NATS.Stream == "" {
			return fmt.Errorf("nats.stream must be set when nats is enabled")
		}
		if cfg.NATS.EventBuffer <= 0 {
			return fmt.Errorf("nats.event_buffer must be positive")
		}
	}

	return nil
}

// validateSubject rejects empty subjects and wildcards; the ledger appends
// its own tokens.
func validateSubject(s, field string) error {
	if s == "" {
		return fmt.Errorf("%s must be set", field)
	}
	if strings.ContainsAny(s, "*> \t") {
		return fmt.Errorf("%s %q must not contain wildcards or whitespace", field, s)
	}
	if strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") || strings.Contains(s, "..") {
		return fmt.Errorf("%s %q has an empty token", field, s)
	}
	return nil
}
