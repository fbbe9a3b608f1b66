package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/ftledger/pkg/types"
)

// EventKind names a ledger event.
type EventKind string

// Event kinds. Mint, transfer and burn follow the NEP-141 event names.
const (
	EventMint          EventKind = "ft_mint"
	EventTransfer      EventKind = "ft_transfer"
	EventBurn          EventKind = "ft_burn"
	EventAccountClosed EventKind = "account_closed"
)

const (
	eventStandard        = "nep141"
	eventStandardVersion = "1.0.0"
	ledgerStandard       = "ftledger"

	// EventLogPrefix precedes the JSON envelope in text logs.
	EventLogPrefix = "EVENT_JSON:"
)

// Event is a committed state change. Transfers set OldOwner and NewOwner;
// every other kind sets Owner.
type Event struct {
	Kind     EventKind
	OldOwner types.AccountID
	NewOwner types.AccountID
	Owner    types.AccountID
	Amount   types.Amount
	Memo     string
}

// Message is the human-readable log line for the event.
func (e Event) Message() string {
	switch e.Kind {
	case EventMint:
		return fmt.Sprintf("Minted %s tokens to @%s", e.Amount, e.Owner)
	case EventTransfer:
		return fmt.Sprintf("Transfer %s from @%s to @%s", e.Amount, e.OldOwner, e.NewOwner)
	case EventBurn:
		return fmt.Sprintf("Account @%s burned %s tokens", e.Owner, e.Amount)
	case EventAccountClosed:
		return fmt.Sprintf("Closed @%s with balance %s", e.Owner, e.Amount)
	default:
		return string(e.Kind)
	}
}

type eventEnvelope struct {
	Standard string      `json:"standard"`
	Version  string      `json:"version"`
	Event    EventKind   `json:"event"`
	Data     []eventData `json:"data"`
}

type eventData struct {
	OwnerID    types.AccountID `json:"owner_id,omitempty"`
	OldOwnerID types.AccountID `json:"old_owner_id,omitempty"`
	NewOwnerID types.AccountID `json:"new_owner_id,omitempty"`
	Amount     types.Amount    `json:"amount"`
	Memo       string          `json:"memo,omitempty"`
}

// MarshalJSON encodes the event as a NEP-297 envelope.
func (e Event) MarshalJSON() ([]byte, error) {
	env := eventEnvelope{
		Standard: eventStandard,
		Version:  eventStandardVersion,
		Event:    e.Kind,
		Data: []eventData{{
			OwnerID:    e.Owner,
			OldOwnerID: e.OldOwner,
			NewOwnerID: e.NewOwner,
			Amount:     e.Amount,
			Memo:       e.Memo,
		}},
	}
	if e.Kind == EventAccountClosed {
		env.Standard = ledgerStandard
	}
	return json.Marshal(env)
}

// String renders the event as a prefixed JSON log line.
func (e Event) String() string {
	data, err := json.Marshal(e)
	if err != nil {
		return e.Message()
	}
	return EventLogPrefix + string(data)
}

// UnmarshalJSON decodes a single-entry envelope produced by MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if len(env.Data) != 1 {
		return fmt.Errorf("event %s: want 1 data entry, got %d", env.Event, len(env.Data))
	}
	d := env.Data[0]
	*e = Event{
		Kind:     env.Event,
		OldOwner: d.OldOwnerID,
		NewOwner: d.NewOwnerID,
		Owner:    d.OwnerID,
		Amount:   d.Amount,
		Memo:     d.Memo,
	}
	return nil
}

// EventSink receives events after the changeset that produced them has
// been committed. Emit is called with the ledger lock held and must not
// block or call back into the ledger.
type EventSink interface {
	Emit(Event)
}

type nopSink struct{}

func (nopSink) Emit(Event) {}

// LogSink writes every event to a zerolog logger.
type LogSink struct {
	Logger zerolog.Logger
}

// Emit implements EventSink.
func (s LogSink) Emit(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.Logger.Error().Err(err).Str("event", string(ev.Kind)).Msg("Encode event")
		return
	}
	s.Logger.Info().
		Str("event", string(ev.Kind)).
		RawJSON("payload", data).
		Msg(ev.Message())
}

// MultiSink fans each event out to every sink in order.
type MultiSink []EventSink

// Emit implements EventSink.
func (m MultiSink) Emit(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ev)
		}
	}
}
