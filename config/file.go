package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads node configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key = value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a node config value by key.
// Token rules live in genesis.json and are not settable here.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "datadir":
		cfg.DataDir = value
	case "genesis":
		cfg.Genesis = value

	// Storage
	case "storage.backend":
		cfg.Storage.Backend = strings.ToLower(value)

	// Ledger
	case "ledger.namespace":
		cfg.Ledger.Namespace = value
	case "ledger.notify_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Ledger.NotifyTimeout = d

	// RPC
	case "rpc.enabled", "rpc":
		cfg.RPC.Enabled = parseBool(value)
	case "rpc.addr":
		cfg.RPC.Addr = value
	case "rpc.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.RPC.Port = port
	case "rpc.allowed":
		cfg.RPC.AllowedIPs = parseStringList(value)
	case "rpc.cors":
		cfg.RPC.CORSOrigins = parseStringList(value)

	// NATS
	case "nats.enabled", "nats":
		cfg.NATS.Enabled = parseBool(value)
	case "nats.url":
		cfg.NATS.URL = value
	case "nats.event_subject":
		cfg.NATS.EventSubject = value
	case "nats.receiver_subject":
		cfg.NATS.ReceiverSubject = value
	case "nats.stream":
		cfg.NATS.Stream = value
	case "nats.event_buffer":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.NATS.EventBuffer = n

	// Metrics
	case "metrics.enabled", "metrics":
		cfg.Metrics.Enabled = parseBool(value)

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default node configuration file.
func WriteDefaultConfig(path string) error {
	content := `# ftledgerd configuration
#
# This file contains NODE settings only.
# Token rules (owner, total supply, storage fee) live in genesis.json and
# are fixed once the ledger has been created.

# Data directory (default: ~/.ftledger)
# datadir = ~/.ftledger

# Genesis file (default: <datadir>/genesis.json)
# genesis = /etc/ftledger/genesis.json

# ============================================================================
# Storage
# ============================================================================

# Backend: badger (persistent) or memory (lost on exit)
storage.backend = badger

# ============================================================================
# Ledger
# ============================================================================

ledger.namespace = ` + DefaultNamespace + `

# How long transfer-call waits for the receiver before refunding
ledger.notify_timeout = ` + DefaultNotifyTimeout.String() + `

# ============================================================================
# RPC Server
# ============================================================================

rpc.enabled = true
rpc.addr = 127.0.0.1
rpc.port = ` + strconv.Itoa(DefaultRPCPort) + `
rpc.allowed = 127.0.0.1
# CORS allowed origins ("*" for all)
# rpc.cors = http://localhost:3000

# ============================================================================
# NATS
# ============================================================================

nats.enabled = false
# nats.url = ` + DefaultNATSURL + `
# nats.event_subject = ` + DefaultEventSubject + `
# nats.receiver_subject = ` + DefaultReceiverSubject + `
# nats.stream = ` + DefaultStream + `

# ============================================================================
# Metrics (served on the RPC port at /metrics)
# ============================================================================

metrics.enabled = true

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
