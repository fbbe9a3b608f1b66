package rpcclient

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/ftledger/config"
	"github.com/Klingon-tech/ftledger/internal/ledger"
	"github.com/Klingon-tech/ftledger/internal/rpc"
	"github.com/Klingon-tech/ftledger/internal/storage"
	"github.com/Klingon-tech/ftledger/pkg/types"
)

const testFee = 125

type testEnv struct {
	client *Client
	ledger *ledger.Ledger
}

func setupTestEnv(t *testing.T, opts ...ledger.Option) *testEnv {
	t.Helper()

	gen := config.DefaultGenesis()
	gen.Owner = types.MustAccountID("alice")
	gen.TotalSupply = types.NewAmount(1000)
	gen.StorageFee = types.NewAmount(testFee)

	opts = append([]ledger.Option{
		ledger.WithStorageFee(gen.StorageFee),
		ledger.WithLogger(zerolog.Nop()),
	}, opts...)
	l, err := ledger.New(storage.NewMemory(), ledger.Genesis{Owner: gen.Owner, TotalSupply: gen.TotalSupply}, opts...)
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}

	// Create and start RPC server on random port.
	srv := rpc.New("127.0.0.1:0", l, gen, config.RPCConfig{})
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return &testEnv{
		client: New("http://" + srv.Addr() + "/"),
		ledger: l,
	}
}

func TestClient_BalanceAndSupply(t *testing.T) {
	env := setupTestEnv(t)

	bal, err := env.client.BalanceOf("alice")
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	if !bal.Equal(types.NewAmount(1000)) {
		t.Errorf("balance = %s, want 1000", bal)
	}

	supply, err := env.client.TotalSupply()
	if err != nil {
		t.Fatalf("TotalSupply: %v", err)
	}
	if !supply.Equal(types.NewAmount(1000)) {
		t.Errorf("supply = %s, want 1000", supply)
	}
}

func TestClient_RegisterTransferUnregister(t *testing.T) {
	env := setupTestEnv(t)

	reg, err := env.client.Register("bob", "", types.NewAmount(testFee+5))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.Account != "bob" || !reg.Refund.Equal(types.NewAmount(5)) {
		t.Errorf("register = %+v", reg)
	}

	sb, err := env.client.StorageBalanceOf("bob")
	if err != nil {
		t.Fatalf("StorageBalanceOf: %v", err)
	}
	if sb == nil || !sb.Total.Equal(types.NewAmount(testFee)) {
		t.Errorf("storage balance = %+v", sb)
	}

	if err := env.client.Transfer("alice", "bob", types.NewAmount(10), "hi"); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if got := env.ledger.BalanceOf("bob"); !got.Equal(types.NewAmount(10)) {
		t.Errorf("bob balance = %s, want 10", got)
	}

	_, err = env.client.Unregister("bob", false)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != rpc.CodeNonZeroBalance {
		t.Fatalf("Unregister without force: %v", err)
	}

	res, err := env.client.Unregister("bob", true)
	if err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if !res.Forced || !res.Burned.Equal(types.NewAmount(10)) {
		t.Errorf("unregister = %+v", res)
	}

	sb, err = env.client.StorageBalanceOf("bob")
	if err != nil {
		t.Fatalf("StorageBalanceOf: %v", err)
	}
	if sb != nil {
		t.Errorf("storage balance after unregister = %+v, want nil", sb)
	}
}

func TestClient_InsufficientDepositData(t *testing.T) {
	env := setupTestEnv(t)

	_, err := env.client.Register("bob", "", types.NewAmount(1))
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != rpc.CodeInsufficientDeposit {
		t.Errorf("error code = %d, want %d", rpcErr.Code, rpc.CodeInsufficientDeposit)
	}
	var refund rpc.RefundData
	if err := rpcErr.DecodeData(&refund); err != nil {
		t.Fatalf("DecodeData: %v", err)
	}
	if !refund.Refund.Equal(types.NewAmount(1)) {
		t.Errorf("refund = %s, want 1", refund.Refund)
	}
}

func TestClient_TransferCall(t *testing.T) {
	hook := ledger.ReceiverFunc(func(context.Context, ledger.Notice) (types.Amount, error) {
		return types.NewAmount(0), nil
	})
	env := setupTestEnv(t, ledger.WithReceiver(hook))
	if _, err := env.client.Register("pool", "", types.NewAmount(testFee)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	st, err := env.client.TransferCall(context.Background(), rpc.TransferCallParam{
		Sender:   "alice",
		Receiver: "pool",
		Amount:   types.NewAmount(50),
		Msg:      "deposit",
	})
	if err != nil {
		t.Fatalf("TransferCall: %v", err)
	}
	if !st.Used.Equal(types.NewAmount(50)) || !st.Refunded.IsZero() {
		t.Errorf("settlement = %+v", st)
	}
}

func TestClient_Call_InvalidEndpoint(t *testing.T) {
	client := New("http://127.0.0.1:1/") // nothing listens on port 1

	if _, err := client.TotalSupply(); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestClient_Call_MethodNotFound(t *testing.T) {
	env := setupTestEnv(t)

	err := env.client.Call("nonexistent_method", nil, nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != rpc.CodeMethodNotFound {
		t.Errorf("error code = %d, want %d", rpcErr.Code, rpc.CodeMethodNotFound)
	}
}
