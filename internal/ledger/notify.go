package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Klingon-tech/ftledger/internal/metrics"
	"github.com/Klingon-tech/ftledger/pkg/types"
)

const refundMemo = "refund"

// Notice is delivered to the receiving account's hook after the transfer
// phase of TransferAndNotify has committed.
type Notice struct {
	ID       uuid.UUID       `json:"id"`
	Sender   types.AccountID `json:"sender_id"`
	Receiver types.AccountID `json:"receiver_id"`
	Amount   types.Amount    `json:"amount"`
	Memo     string          `json:"memo,omitempty"`
	Payload  string          `json:"msg"`
}

// Receiver is the hook a receiving account exposes. It returns how much of
// the transferred amount it did not use; that part is returned to the
// sender. An error hands back the whole amount.
//
// OnTransfer runs without the ledger lock held and may call back into the
// ledger.
type Receiver interface {
	OnTransfer(ctx context.Context, n Notice) (unused types.Amount, err error)
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(ctx context.Context, n Notice) (types.Amount, error)

// OnTransfer implements Receiver.
func (f ReceiverFunc) OnTransfer(ctx context.Context, n Notice) (types.Amount, error) {
	return f(ctx, n)
}

// Outcome is how the receiver hook ended.
type Outcome string

const (
	OutcomeResolved Outcome = metrics.OutcomeResolved
	OutcomeFailed   Outcome = metrics.OutcomeFailed
	OutcomeTimeout  Outcome = metrics.OutcomeTimeout
)

// Settlement reports how a TransferAndNotify call was settled. Used is
// the part of Amount that did not go back to the sender; it includes
// anything burned because the sender had unregistered.
type Settlement struct {
	NoticeID uuid.UUID       `json:"notice_id"`
	Sender   types.AccountID `json:"sender_id"`
	Receiver types.AccountID `json:"receiver_id"`
	Amount   types.Amount    `json:"amount"`
	Unused   types.Amount    `json:"unused"`
	Used     types.Amount    `json:"used"`
	Refunded types.Amount    `json:"refunded"`
	Burned   types.Amount    `json:"burned"`
	Outcome  Outcome         `json:"outcome"`
	Reason   string          `json:"reason,omitempty"`
}

// TransferAndNotify transfers amount to receiver, invokes the receiver's
// hook with payload, and returns whatever the hook reports unused.
//
// The call runs in three phases. The transfer commits first, exactly as
// Transfer would; a rejected transfer returns its error and nothing else
// happens. The hook then runs with the ledger unlocked, bounded only by
// the notify timeout; cancelling ctx after the transfer has no effect.
// Finally the unused amount, capped at amount and at the receiver's
// current balance, moves back to the sender. If the sender has
// unregistered in the meantime that refund is burned instead.
func (l *Ledger) TransferAndNotify(ctx context.Context, sender, receiver types.AccountID, amount types.Amount, memo, payload string) (Settlement, error) {
	l.mu.Lock()
	err := l.run("transfer_call", func(t *txn) error {
		return t.transfer(sender, receiver, amount, memo)
	})
	l.mu.Unlock()
	if err != nil {
		return Settlement{}, err
	}

	n := Notice{
		ID:       uuid.New(),
		Sender:   sender,
		Receiver: receiver,
		Amount:   amount,
		Memo:     memo,
		Payload:  payload,
	}
	unused, outcome, hookErr := l.dispatch(ctx, n)

	s := Settlement{
		NoticeID: n.ID,
		Sender:   sender,
		Receiver: receiver,
		Amount:   amount,
		Unused:   unused,
		Outcome:  outcome,
	}
	if hookErr != nil {
		s.Reason = hookErr.Error()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	err = l.run("transfer_resolve", func(t *txn) error {
		refunded, burned, err := t.resolve(sender, receiver, unused)
		if err != nil {
			return err
		}
		s.Refunded = refunded
		s.Burned = burned
		return nil
	})
	if err != nil {
		l.logger.Error().Err(err).
			Str("notice", n.ID.String()).
			Str("unused", unused.String()).
			Msg("Resolve transfer failed")
		s.Used = amount
		return s, fmt.Errorf("resolve transfer %s: %w", n.ID, err)
	}
	s.Used, _ = amount.CheckedSub(s.Refunded)

	if !s.Refunded.IsZero() {
		l.metrics.ObserveRefund("returned")
	}
	if !s.Burned.IsZero() {
		l.metrics.ObserveRefund("burned")
	}
	l.logger.Debug().
		Str("notice", n.ID.String()).
		Str("outcome", string(outcome)).
		Str("used", s.Used.String()).
		Str("refunded", s.Refunded.String()).
		Str("burned", s.Burned.String()).
		Msg("Transfer settled")
	return s, nil
}

type hookResult struct {
	unused types.Amount
	err    error
}

// dispatch runs the receiver hook and returns the unused amount capped at
// n.Amount. Any failure, including a missing hook, reports the whole
// amount unused.
func (l *Ledger) dispatch(ctx context.Context, n Notice) (types.Amount, Outcome, error) {
	start := time.Now()
	unused, outcome, err := l.callReceiver(ctx, n)
	l.metrics.ObserveNotify(time.Since(start).Seconds(), string(outcome))
	if err != nil {
		l.logger.Warn().Err(err).
			Str("notice", n.ID.String()).
			Str("receiver", n.Receiver.String()).
			Str("outcome", string(outcome)).
			Msg("Receiver hook failed, refunding")
	}
	return unused, outcome, err
}

func (l *Ledger) callReceiver(ctx context.Context, n Notice) (types.Amount, Outcome, error) {
	if l.receiver == nil {
		return n.Amount, OutcomeFailed, fmt.Errorf("%s: %w", n.Receiver, ErrNoReceiver)
	}

	// Once the transfer has committed the caller can no longer cancel the
	// notice; only the notify timeout cuts the hook short.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.notifyTimeout)
	defer cancel()

	done := make(chan hookResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- hookResult{err: fmt.Errorf("receiver hook panicked: %v", r)}
			}
		}()
		unused, err := l.receiver.OnTransfer(ctx, n)
		done <- hookResult{unused: unused, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return n.Amount, OutcomeFailed, r.err
		}
		if n.Amount.LessThan(r.unused) {
			return n.Amount, OutcomeResolved, fmt.Errorf("%s reported %s unused of %s: %w",
				n.Receiver, r.unused, n.Amount, ErrReceiverOverclaims)
		}
		return r.unused, OutcomeResolved, nil
	case <-ctx.Done():
		return n.Amount, OutcomeTimeout, ctx.Err()
	}
}

// resolve stages the return of unused tokens from receiver to sender.
// The refund is capped at the receiver's current balance, which may have
// dropped while the hook ran. If the sender is gone the refund is burned.
func (t *txn) resolve(sender, receiver types.AccountID, unused types.Amount) (refunded, burned types.Amount, err error) {
	if unused.IsZero() {
		return types.ZeroAmount, types.ZeroAmount, nil
	}

	to, err := t.registration(receiver)
	if errors.Is(err, ErrAccountNotRegistered) {
		return types.ZeroAmount, types.ZeroAmount, nil
	}
	if err != nil {
		return types.Amount{}, types.Amount{}, err
	}
	toBal, err := t.balance(to)
	if err != nil {
		return types.Amount{}, types.Amount{}, err
	}
	refund := unused.Min(toBal)
	if refund.IsZero() {
		return types.ZeroAmount, types.ZeroAmount, nil
	}

	from, err := t.registration(sender)
	if errors.Is(err, ErrAccountNotRegistered) {
		if err := t.withdraw(to, refund); err != nil {
			return types.Amount{}, types.Amount{}, err
		}
		t.emit(Event{Kind: EventBurn, Owner: receiver, Amount: refund, Memo: refundMemo})
		return types.ZeroAmount, refund, nil
	}
	if err != nil {
		return types.Amount{}, types.Amount{}, err
	}

	if err := t.withdraw(to, refund); err != nil {
		return types.Amount{}, types.Amount{}, err
	}
	if err := t.deposit(from, refund); err != nil {
		return types.Amount{}, types.Amount{}, err
	}
	t.emit(Event{Kind: EventTransfer, OldOwner: receiver, NewOwner: sender, Amount: refund, Memo: refundMemo})
	return refund, types.ZeroAmount, nil
}
