package rpc

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Klingon-tech/ftledger/internal/ledger"
	"github.com/Klingon-tech/ftledger/pkg/types"
)

// ── Token endpoints ─────────────────────────────────────────────────────

func (s *Server) handleBalanceOf(req *Request) (interface{}, *Error) {
	var params AccountParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Account.IsZero() {
		return nil, &Error{Code: CodeInvalidParams, Message: "account is required"}
	}
	return &BalanceResult{
		Account: params.Account,
		Balance: s.ledger.BalanceOf(params.Account),
	}, nil
}

func (s *Server) handleTotalSupply(_ *Request) (interface{}, *Error) {
	return &SupplyResult{TotalSupply: s.ledger.TotalSupply()}, nil
}

func (s *Server) handleTransfer(req *Request) (interface{}, *Error) {
	var params TransferParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Sender.IsZero() || params.Receiver.IsZero() {
		return nil, &Error{Code: CodeInvalidParams, Message: "sender and receiver are required"}
	}
	if err := s.ledger.Transfer(params.Sender, params.Receiver, params.Amount, params.Memo); err != nil {
		return nil, ledgerError(err)
	}
	return &TransferResult{OK: true}, nil
}

func (s *Server) handleTransferCall(ctx context.Context, req *Request) (interface{}, *Error) {
	var params TransferCallParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Sender.IsZero() || params.Receiver.IsZero() {
		return nil, &Error{Code: CodeInvalidParams, Message: "sender and receiver are required"}
	}
	st, err := s.ledger.TransferAndNotify(ctx, params.Sender, params.Receiver, params.Amount, params.Memo, params.Msg)
	if err != nil {
		// A failed resolve still reports what the transfer did.
		if st.NoticeID != uuid.Nil {
			rpcErr := ledgerError(err)
			rpcErr.Data = st
			return nil, rpcErr
		}
		return nil, ledgerError(err)
	}
	return st, nil
}

func (s *Server) handleBurn(req *Request) (interface{}, *Error) {
	var params BurnParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Account.IsZero() {
		return nil, &Error{Code: CodeInvalidParams, Message: "account is required"}
	}
	if err := s.ledger.Burn(params.Account, params.Amount, params.Memo); err != nil {
		return nil, ledgerError(err)
	}
	return &SupplyResult{TotalSupply: s.ledger.TotalSupply()}, nil
}

func (s *Server) handleMetadata(_ *Request) (interface{}, *Error) {
	if s.genesis == nil {
		return nil, &Error{Code: CodeInternalError, Message: "metadata not configured"}
	}
	md := s.genesis.Metadata
	return &md, nil
}

// ── Storage endpoints ───────────────────────────────────────────────────

func (s *Server) handleStorageDeposit(req *Request) (interface{}, *Error) {
	var params StorageDepositParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	account := params.Account
	if account.IsZero() {
		account = params.Caller
	}
	if account.IsZero() {
		return nil, &Error{Code: CodeInvalidParams, Message: "caller or account is required"}
	}
	res, err := s.ledger.Register(account, params.Attached)
	if err != nil {
		return nil, ledgerError(err)
	}
	return &res, nil
}

func (s *Server) handleStorageUnregister(req *Request) (interface{}, *Error) {
	var params UnregisterParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Account.IsZero() {
		return nil, &Error{Code: CodeInvalidParams, Message: "account is required"}
	}
	res, err := s.ledger.Unregister(params.Account, params.Force)
	if err != nil {
		return nil, ledgerError(err)
	}
	return &res, nil
}

// handleStorageBalanceOf returns null for an unregistered account.
func (s *Server) handleStorageBalanceOf(req *Request) (interface{}, *Error) {
	var params AccountParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Account.IsZero() {
		return nil, &Error{Code: CodeInvalidParams, Message: "account is required"}
	}
	bal, ok := s.ledger.StorageBalanceOf(params.Account)
	if !ok {
		return nil, nil
	}
	return &bal, nil
}

func (s *Server) handleStorageBalanceBounds(_ *Request) (interface{}, *Error) {
	bounds := s.ledger.StorageBalanceBounds()
	return &bounds, nil
}

// ── Ledger endpoints ────────────────────────────────────────────────────

func (s *Server) handleLedgerInfo(_ *Request) (interface{}, *Error) {
	gen, err := s.ledger.Genesis()
	if err != nil {
		return nil, ledgerError(err)
	}
	entries, err := s.ledger.Accounts()
	if err != nil {
		return nil, ledgerError(err)
	}
	root, err := s.ledger.StateRoot()
	if err != nil {
		return nil, ledgerError(err)
	}
	info := &InfoResult{
		Owner:       gen.Owner,
		TotalSupply: s.ledger.TotalSupply(),
		StorageFee:  s.ledger.StorageFee(),
		Accounts:    len(entries),
		StateRoot:   root.String(),
	}
	if s.genesis != nil {
		md := s.genesis.Metadata
		info.Metadata = &md
	}
	return info, nil
}

func (s *Server) handleLedgerAudit(_ *Request) (interface{}, *Error) {
	report, err := s.ledger.Audit()
	if err != nil {
		return nil, ledgerError(err)
	}
	return &AuditResult{
		OK:          true,
		Accounts:    report.Accounts,
		TotalSupply: report.TotalSupply,
		StorageHeld: report.StorageHeld,
	}, nil
}

func (s *Server) handleLedgerAccounts(_ *Request) (interface{}, *Error) {
	entries, err := s.ledger.Accounts()
	if err != nil {
		return nil, ledgerError(err)
	}
	if entries == nil {
		entries = []ledger.AccountEntry{}
	}
	return entries, nil
}

// ledgerError maps a ledger error to a JSON-RPC error.
func ledgerError(err error) *Error {
	var depErr *ledger.DepositError
	if errors.As(err, &depErr) {
		return &Error{
			Code:    CodeInsufficientDeposit,
			Message: err.Error(),
			Data:    &RefundData{Required: depErr.Required, Refund: depErr.Refund()},
		}
	}

	code := CodeInternalError
	switch {
	case errors.Is(err, types.ErrInvalidAccountID):
		code = CodeInvalidAccount
	case errors.Is(err, ledger.ErrAccountNotRegistered):
		code = CodeNotRegistered
	case errors.Is(err, ledger.ErrNonZeroBalance):
		code = CodeNonZeroBalance
	case errors.Is(err, ledger.ErrInsufficientBalance):
		code = CodeInsufficientBalance
	case errors.Is(err, ledger.ErrBalanceOverflow):
		code = CodeBalanceOverflow
	case errors.Is(err, ledger.ErrSelfTransfer):
		code = CodeSelfTransfer
	case errors.Is(err, ledger.ErrZeroAmount):
		code = CodeZeroAmount
	case errors.Is(err, ledger.ErrInconsistentState),
		errors.Is(err, ledger.ErrSupplyMismatch),
		errors.Is(err, ledger.ErrUnknownEncoding):
		code = CodeLedgerCorrupt
	}
	return &Error{Code: code, Message: err.Error()}
}
