package ledger

import (
	"fmt"

	"github.com/Klingon-tech/ftledger/pkg/types"
)

// Key layout within the ledger namespace:
//
//	b/<account>  -> balance record
//	r/<account>  -> registration record (storage fee held)
//	s/supply     -> supply record
//	s/genesis    -> genesis record
var (
	prefixBalance  = []byte("b/")
	prefixRegistry = []byte("r/")
	keySupply      = []byte("s/supply")
	keyGenesis     = []byte("s/genesis")
)

// Record encoding: [version(1)][kind(1)][payload]. Amounts are 16-byte
// big-endian. Decoders reject versions and kinds they do not know.
const codecVersion byte = 1

type recordKind byte

const (
	kindBalance      recordKind = 1
	kindRegistration recordKind = 2
	kindSupply       recordKind = 3
	kindGenesis      recordKind = 4
)

const recordHeaderSize = 2

func balanceKey(id types.AccountID) []byte {
	return accountKey(prefixBalance, id)
}

func registryKey(id types.AccountID) []byte {
	return accountKey(prefixRegistry, id)
}

func accountKey(prefix []byte, id types.AccountID) []byte {
	key := make([]byte, len(prefix)+len(id))
	copy(key, prefix)
	copy(key[len(prefix):], id)
	return key
}

func encodeAmountRecord(kind recordKind, a types.Amount) []byte {
	buf := make([]byte, 0, recordHeaderSize+types.AmountSize)
	buf = append(buf, codecVersion, byte(kind))
	return append(buf, a.Bytes()...)
}

func decodeAmountRecord(kind recordKind, data []byte) (types.Amount, error) {
	payload, err := checkHeader(kind, data)
	if err != nil {
		return types.Amount{}, err
	}
	if len(payload) != types.AmountSize {
		return types.Amount{}, fmt.Errorf("%w: kind %d payload is %d bytes", ErrUnknownEncoding, kind, len(payload))
	}
	return types.AmountFromBytes(payload)
}

// genesisRecord marks a namespace as initialized.
type genesisRecord struct {
	Owner  types.AccountID
	Amount types.Amount
}

func encodeGenesis(g genesisRecord) []byte {
	buf := make([]byte, 0, recordHeaderSize+types.AmountSize+len(g.Owner))
	buf = append(buf, codecVersion, byte(kindGenesis))
	buf = append(buf, g.Amount.Bytes()...)
	return append(buf, g.Owner...)
}

func decodeGenesis(data []byte) (genesisRecord, error) {
	payload, err := checkHeader(kindGenesis, data)
	if err != nil {
		return genesisRecord{}, err
	}
	if len(payload) < types.AmountSize {
		return genesisRecord{}, fmt.Errorf("%w: genesis payload is %d bytes", ErrUnknownEncoding, len(payload))
	}
	amount, err := types.AmountFromBytes(payload[:types.AmountSize])
	if err != nil {
		return genesisRecord{}, err
	}
	return genesisRecord{
		Owner:  types.AccountID(payload[types.AmountSize:]),
		Amount: amount,
	}, nil
}

func checkHeader(kind recordKind, data []byte) ([]byte, error) {
	if len(data) < recordHeaderSize {
		return nil, fmt.Errorf("%w: record is %d bytes", ErrUnknownEncoding, len(data))
	}
	if data[0] != codecVersion {
		return nil, fmt.Errorf("%w: version %d", ErrUnknownEncoding, data[0])
	}
	if recordKind(data[1]) != kind {
		return nil, fmt.Errorf("%w: kind %d, want %d", ErrUnknownEncoding, data[1], kind)
	}
	return data[recordHeaderSize:], nil
}
