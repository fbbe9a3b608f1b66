package rpc

import (
	"github.com/Klingon-tech/ftledger/config"
	"github.com/Klingon-tech/ftledger/pkg/types"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Ledger error codes.
const (
	CodeNotRegistered       = -32010
	CodeInsufficientDeposit = -32011
	CodeNonZeroBalance      = -32012
	CodeInsufficientBalance = -32013
	CodeBalanceOverflow     = -32014
	CodeSelfTransfer        = -32015
	CodeZeroAmount          = -32016
	CodeInvalidAccount      = -32017
	CodeLedgerCorrupt       = -32018
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// AccountParam is used by endpoints that take a single account.
type AccountParam struct {
	Account types.AccountID `json:"account"`
}

// TransferParam is used by ft_transfer.
type TransferParam struct {
	Sender   types.AccountID `json:"sender"`
	Receiver types.AccountID `json:"receiver"`
	Amount   types.Amount    `json:"amount"`
	Memo     string          `json:"memo,omitempty"`
}

// TransferCallParam is used by ft_transferCall.
type TransferCallParam struct {
	Sender   types.AccountID `json:"sender"`
	Receiver types.AccountID `json:"receiver"`
	Amount   types.Amount    `json:"amount"`
	Memo     string          `json:"memo,omitempty"`
	Msg      string          `json:"msg"`
}

// BurnParam is used by ft_burn.
type BurnParam struct {
	Account types.AccountID `json:"account"`
	Amount  types.Amount    `json:"amount"`
	Memo    string          `json:"memo,omitempty"`
}

// StorageDepositParam is used by storage_deposit. Account defaults to
// Caller.
type StorageDepositParam struct {
	Caller   types.AccountID `json:"caller"`
	Account  types.AccountID `json:"account,omitempty"`
	Attached types.Amount    `json:"attached"`
}

// UnregisterParam is used by storage_unregister.
type UnregisterParam struct {
	Account types.AccountID `json:"account"`
	Force   bool            `json:"force"`
}

// ── Result types ────────────────────────────────────────────────────────

// BalanceResult is returned by ft_balanceOf.
type BalanceResult struct {
	Account types.AccountID `json:"account"`
	Balance types.Amount    `json:"balance"`
}

// SupplyResult is returned by ft_totalSupply and ft_burn.
type SupplyResult struct {
	TotalSupply types.Amount `json:"total_supply"`
}

// TransferResult is returned by ft_transfer.
type TransferResult struct {
	OK bool `json:"ok"`
}

// InfoResult is returned by ledger_info.
type InfoResult struct {
	Owner       types.AccountID  `json:"owner"`
	TotalSupply types.Amount     `json:"total_supply"`
	StorageFee  types.Amount     `json:"storage_fee"`
	Accounts    int              `json:"accounts"`
	StateRoot   string           `json:"state_root"`
	Metadata    *config.Metadata `json:"metadata,omitempty"`
}

// AuditResult is returned by ledger_audit.
type AuditResult struct {
	OK          bool         `json:"ok"`
	Accounts    int          `json:"accounts"`
	TotalSupply types.Amount `json:"total_supply"`
	StorageHeld types.Amount `json:"storage_held"`
}

// RefundData is attached to CodeInsufficientDeposit errors.
type RefundData struct {
	Required types.Amount `json:"required"`
	Refund   types.Amount `json:"refund"`
}
