package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/ftledger/internal/ledger"
	"github.com/Klingon-tech/ftledger/internal/log"
	"github.com/Klingon-tech/ftledger/pkg/types"
)

// Reply is the response a receiver sends back over NATS.
type Reply struct {
	Unused types.Amount `json:"unused"`
	Error  string       `json:"error,omitempty"`
}

// Requester is the request side of a NATS connection.
type Requester interface {
	RequestWithContext(ctx context.Context, subject string, data []byte) (*nats.Msg, error)
}

// NATSReceiver delivers notices as NATS requests on
// "<prefix>.<receiver account>" and waits for a Reply.
type NATSReceiver struct {
	conn   Requester
	prefix string
}

// NewNATSReceiver creates a receiver publishing under prefix.
func NewNATSReceiver(conn Requester, prefix string) *NATSReceiver {
	return &NATSReceiver{conn: conn, prefix: prefix}
}

// Subject returns the request subject for account.
func (r *NATSReceiver) Subject(account types.AccountID) string {
	return r.prefix + "." + account.String()
}

// OnTransfer implements ledger.Receiver. A subject with no subscriber is
// reported as ledger.ErrNoReceiver.
func (r *NATSReceiver) OnTransfer(ctx context.Context, n ledger.Notice) (types.Amount, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return types.Amount{}, fmt.Errorf("encode notice: %w", err)
	}

	msg, err := r.conn.RequestWithContext(ctx, r.Subject(n.Receiver), data)
	if errors.Is(err, nats.ErrNoResponders) {
		return types.Amount{}, fmt.Errorf("%s: %w", n.Receiver, ledger.ErrNoReceiver)
	}
	if err != nil {
		return types.Amount{}, fmt.Errorf("request %s: %w", r.Subject(n.Receiver), err)
	}
	return decodeReply(msg.Data)
}

func decodeReply(data []byte) (types.Amount, error) {
	var rep Reply
	if err := json.Unmarshal(data, &rep); err != nil {
		return types.Amount{}, fmt.Errorf("decode reply: %w", err)
	}
	if rep.Error != "" {
		return types.Amount{}, fmt.Errorf("receiver: %s", rep.Error)
	}
	return rep.Unused, nil
}

// Serve answers notices for one account on subject by calling r. It is
// the counterpart of NATSReceiver for receivers written in Go.
func Serve(nc *nats.Conn, subject string, r ledger.Receiver, timeout time.Duration) (*nats.Subscription, error) {
	logger := log.Notify.With().Str("subject", subject).Logger()
	sub, err := nc.Subscribe(subject, func(m *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := m.Respond(handle(ctx, r, m.Data, logger)); err != nil {
			logger.Warn().Err(err).Msg("Respond failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// handle decodes a notice, runs r and encodes its Reply.
func handle(ctx context.Context, r ledger.Receiver, data []byte, logger zerolog.Logger) []byte {
	var rep Reply
	var n ledger.Notice
	if err := json.Unmarshal(data, &n); err != nil {
		rep.Error = fmt.Sprintf("decode notice: %v", err)
	} else if unused, err := r.OnTransfer(ctx, n); err != nil {
		rep.Error = err.Error()
	} else {
		rep.Unused = unused
	}
	if rep.Error != "" {
		logger.Debug().Str("error", rep.Error).Msg("Notice rejected")
	}

	out, err := json.Marshal(rep)
	if err != nil {
		logger.Error().Err(err).Msg("Encode reply")
		return []byte(`{"unused":"0","error":"encode reply"}`)
	}
	return out
}
