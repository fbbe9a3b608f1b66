// Package ledger implements a fungible-token ledger with explicit account
// registration.
//
// An account must be registered, paying a fixed storage fee, before it can
// hold a balance. Balances move between registered accounts by plain
// transfer or by transfer-and-notify, where the receiver's hook may hand
// back part of the amount. The total supply is fixed at genesis and only
// ever decreases through burns and forced unregistration.
//
// Every mutating operation validates all of its preconditions before it
// writes anything, and persists all of its writes in one storage batch.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/ftledger/internal/log"
	"github.com/Klingon-tech/ftledger/internal/metrics"
	"github.com/Klingon-tech/ftledger/internal/storage"
	"github.com/Klingon-tech/ftledger/pkg/types"
)

// DefaultNotifyTimeout bounds how long TransferAndNotify waits for the
// receiver hook before settling as a failure.
const DefaultNotifyTimeout = 30 * time.Second

// Genesis describes the one-time initial mint.
type Genesis struct {
	Owner       types.AccountID `json:"owner"`
	TotalSupply types.Amount    `json:"total_supply"`
}

// Ledger is the token ledger. It is safe for concurrent use; operations
// are serialized so each one observes and produces a consistent state.
type Ledger struct {
	mu sync.Mutex
	db storage.DB

	storageFee    types.Amount
	receiver      Receiver
	notifyTimeout time.Duration
	sink          EventSink
	metrics       *metrics.Metrics
	logger        zerolog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithStorageFee sets the fee an account must attach to register.
func WithStorageFee(fee types.Amount) Option {
	return func(l *Ledger) { l.storageFee = fee }
}

// WithReceiver sets the hook invoked by TransferAndNotify.
func WithReceiver(r Receiver) Option {
	return func(l *Ledger) { l.receiver = r }
}

// WithNotifyTimeout bounds the receiver hook. Non-positive values keep
// the default.
func WithNotifyTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.notifyTimeout = d
		}
	}
}

// WithEventSink sets where committed events are delivered.
func WithEventSink(s EventSink) Option {
	return func(l *Ledger) {
		if s != nil {
			l.sink = s
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithLogger overrides the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func newLedger(db storage.DB, opts []Option) *Ledger {
	l := &Ledger{
		db:            db,
		notifyTimeout: DefaultNotifyTimeout,
		sink:          nopSink{},
		logger:        log.Ledger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// New initializes an empty namespace: it registers gen.Owner and mints
// gen.TotalSupply to it. It fails with ErrAlreadyInitialized if db already
// holds a ledger.
func New(db storage.DB, gen Genesis, opts ...Option) (*Ledger, error) {
	l := newLedger(db, opts)
	if err := l.MintGenesis(gen.Owner, gen.TotalSupply); err != nil {
		return nil, err
	}
	if err := l.refreshGauges(); err != nil {
		return nil, err
	}
	return l, nil
}

// Open loads a ledger previously created with New.
func Open(db storage.DB, opts ...Option) (*Ledger, error) {
	l := newLedger(db, opts)
	ok, err := newTxn(db).initialized()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	if err := l.refreshGauges(); err != nil {
		return nil, err
	}
	return l, nil
}

// OpenOrCreate opens the ledger in db, creating it from gen when the
// namespace is empty. The boolean reports whether genesis ran.
func OpenOrCreate(db storage.DB, gen Genesis, opts ...Option) (*Ledger, bool, error) {
	ok, err := newTxn(db).initialized()
	if err != nil {
		return nil, false, err
	}
	if ok {
		l, err := Open(db, opts...)
		return l, false, err
	}
	l, err := New(db, gen, opts...)
	return l, err == nil, err
}

// StorageFee returns the fee charged for registration.
func (l *Ledger) StorageFee() types.Amount {
	return l.storageFee
}

// Genesis returns the recorded genesis parameters.
func (l *Ledger) Genesis() (Genesis, error) {
	data, err := l.db.Get(keyGenesis)
	if err != nil {
		return Genesis{}, fmt.Errorf("read genesis: %w", err)
	}
	g, err := decodeGenesis(data)
	if err != nil {
		return Genesis{}, err
	}
	return Genesis{Owner: g.Owner, TotalSupply: g.Amount}, nil
}

// run executes fn against a fresh changeset and commits it if fn succeeds.
// The caller must hold l.mu.
func (l *Ledger) run(op string, fn func(t *txn) error) error {
	t := newTxn(l.db)
	err := fn(t)
	if err == nil {
		err = t.commit()
	}
	l.metrics.ObserveOp(op, resultLabel(err))
	if err != nil {
		l.logger.Debug().Str("op", op).Err(err).Msg("Operation rejected")
		return err
	}
	l.publish(t)
	return nil
}

// publish delivers the events and gauge updates of a committed changeset.
func (l *Ledger) publish(t *txn) {
	for _, ev := range t.events {
		l.sink.Emit(ev)
		if ev.Kind == EventBurn {
			l.metrics.Burned()
		}
	}
	for i := 0; i < t.opened; i++ {
		l.metrics.AccountOpened()
	}
	for _, forced := range t.closed {
		l.metrics.AccountClosed(forced)
	}
	if t.supply != nil {
		l.metrics.SetSupply(t.supply.Uint128())
	}
}

func (l *Ledger) refreshGauges() error {
	if l.metrics == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	if err := l.db.ForEach(prefixRegistry, func(_, _ []byte) error {
		n++
		return nil
	}); err != nil {
		return fmt.Errorf("count accounts: %w", err)
	}
	supply, err := newTxn(l.db).totalSupply()
	if err != nil {
		return err
	}
	l.metrics.SetAccounts(n)
	l.metrics.SetSupply(supply.Uint128())
	return nil
}
