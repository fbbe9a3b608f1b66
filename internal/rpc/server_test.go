package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/ftledger/config"
	"github.com/Klingon-tech/ftledger/internal/ledger"
	"github.com/Klingon-tech/ftledger/internal/metrics"
	"github.com/Klingon-tech/ftledger/internal/storage"
	"github.com/Klingon-tech/ftledger/pkg/types"
)

const testFee = 125

// testEnv holds all components for an RPC test.
type testEnv struct {
	server  *Server
	ledger  *ledger.Ledger
	genesis *config.Genesis
	url     string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return setupTestEnvWithConfig(t, config.RPCConfig{})
}

func setupTestEnvWithConfig(t *testing.T, rpcCfg config.RPCConfig, opts ...ledger.Option) *testEnv {
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

	srv := New("127.0.0.1:0", l, gen, rpcCfg)
	srv.logger = zerolog.Nop()
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return &testEnv{
		server:  srv,
		ledger:  l,
		genesis: gen,
		url:     "http://" + srv.Addr(),
	}
}

func rpcCall(t *testing.T, url, method string, params interface{}) Response {
	t.Helper()
	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", method, err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rpcResp
}

// callResult performs the call, fails on an RPC error and decodes the
// result into out.
func callResult(t *testing.T, url, method string, params, out interface{}) {
	t.Helper()
	resp := rpcCall(t, url, method, params)
	if resp.Error != nil {
		t.Fatalf("%s: rpc error %d: %s", method, resp.Error.Code, resp.Error.Message)
	}
	data, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decode %s result: %v", method, err)
	}
}

func expectCode(t *testing.T, resp Response, code int) {
	t.Helper()
	if resp.Error == nil {
		t.Fatalf("expected error code %d, got result %v", code, resp.Result)
	}
	if resp.Error.Code != code {
		t.Errorf("error code = %d, want %d (%s)", resp.Error.Code, code, resp.Error.Message)
	}
}

func register(t *testing.T, env *testEnv, name string) {
	t.Helper()
	var res ledger.RegisterResult
	callResult(t, env.url, "storage_deposit", StorageDepositParam{
		Caller:   types.MustAccountID(name),
		Attached: types.NewAmount(testFee),
	}, &res)
}

func balanceOf(t *testing.T, env *testEnv, name string) types.Amount {
	t.Helper()
	var res BalanceResult
	callResult(t, env.url, "ft_balanceOf", AccountParam{Account: types.MustAccountID(name)}, &res)
	return res.Balance
}

// ── Tests ───────────────────────────────────────────────────────────────

func TestRPC_BalanceAndSupply(t *testing.T) {
	env := setupTestEnv(t)

	if got := balanceOf(t, env, "alice"); !got.Equal(types.NewAmount(1000)) {
		t.Errorf("alice balance = %s, want 1000", got)
	}
	if got := balanceOf(t, env, "nobody"); !got.IsZero() {
		t.Errorf("unknown balance = %s, want 0", got)
	}

	var supply SupplyResult
	callResult(t, env.url, "ft_totalSupply", nil, &supply)
	if !supply.TotalSupply.Equal(types.NewAmount(1000)) {
		t.Errorf("total supply = %s, want 1000", supply.TotalSupply)
	}
}

func TestRPC_StorageDeposit(t *testing.T) {
	env := setupTestEnv(t)

	var res ledger.RegisterResult
	callResult(t, env.url, "storage_deposit", StorageDepositParam{
		Caller:   types.MustAccountID("alice"),
		Account:  types.MustAccountID("bob"),
		Attached: types.NewAmount(200),
	}, &res)
	if res.Account != "bob" {
		t.Errorf("registered %q, want bob", res.Account)
	}
	if !res.Refund.Equal(types.NewAmount(75)) {
		t.Errorf("refund = %s, want 75", res.Refund)
	}
	if !env.ledger.IsRegistered("bob") {
		t.Error("bob should be registered")
	}

	// Second deposit refunds everything.
	callResult(t, env.url, "storage_deposit", StorageDepositParam{
		Caller:   types.MustAccountID("bob"),
		Attached: types.NewAmount(200),
	}, &res)
	if !res.AlreadyRegistered || !res.Refund.Equal(types.NewAmount(200)) {
		t.Errorf("repeat deposit = %+v, want full refund", res)
	}
}

func TestRPC_StorageDeposit_Insufficient(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "storage_deposit", StorageDepositParam{
		Caller:   types.MustAccountID("bob"),
		Attached: types.NewAmount(testFee - 1),
	})
	expectCode(t, resp, CodeInsufficientDeposit)

	data, _ := json.Marshal(resp.Error.Data)
	var refund RefundData
	if err := json.Unmarshal(data, &refund); err != nil {
		t.Fatalf("decode refund data: %v", err)
	}
	if !refund.Required.Equal(types.NewAmount(testFee)) || !refund.Refund.Equal(types.NewAmount(testFee-1)) {
		t.Errorf("refund data = %+v", refund)
	}
	if env.ledger.IsRegistered("bob") {
		t.Error("bob should not be registered")
	}
}

func TestRPC_Transfer(t *testing.T) {
	env := setupTestEnv(t)
	register(t, env, "bob")

	var res TransferResult
	callResult(t, env.url, "ft_transfer", TransferParam{
		Sender:   "alice",
		Receiver: "bob",
		Amount:   types.NewAmount(300),
		Memo:     "rent",
	}, &res)
	if !res.OK {
		t.Error("transfer should report ok")
	}
	if got := balanceOf(t, env, "bob"); !got.Equal(types.NewAmount(300)) {
		t.Errorf("bob balance = %s, want 300", got)
	}
	if got := balanceOf(t, env, "alice"); !got.Equal(types.NewAmount(700)) {
		t.Errorf("alice balance = %s, want 700", got)
	}
}

func TestRPC_Transfer_Errors(t *testing.T) {
	env := setupTestEnv(t)
	register(t, env, "bob")

	tests := []struct {
		name   string
		params TransferParam
		code   int
	}{
		{"self", TransferParam{Sender: "alice", Receiver: "alice", Amount: types.NewAmount(1)}, CodeSelfTransfer},
		{"zero", TransferParam{Sender: "alice", Receiver: "bob"}, CodeZeroAmount},
		{"unregistered receiver", TransferParam{Sender: "alice", Receiver: "carol", Amount: types.NewAmount(1)}, CodeNotRegistered},
		{"insufficient", TransferParam{Sender: "bob", Receiver: "alice", Amount: types.NewAmount(1)}, CodeInsufficientBalance},
		{"missing receiver", TransferParam{Sender: "alice", Amount: types.NewAmount(1)}, CodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectCode(t, rpcCall(t, env.url, "ft_transfer", tt.params), tt.code)
		})
	}

	if got := balanceOf(t, env, "alice"); !got.Equal(types.NewAmount(1000)) {
		t.Errorf("alice balance = %s after rejected transfers, want 1000", got)
	}
}

func TestRPC_InvalidAccount(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "ft_balanceOf", map[string]string{"account": "Not Valid"})
	expectCode(t, resp, CodeInvalidParams)
}

func TestRPC_TransferCall(t *testing.T) {
	hook := ledger.ReceiverFunc(func(_ context.Context, n ledger.Notice) (types.Amount, error) {
		if n.Payload != "stake" {
			return n.Amount, nil
		}
		return types.NewAmount(40), nil
	})
	env := setupTestEnvWithConfig(t, config.RPCConfig{}, ledger.WithReceiver(hook))
	register(t, env, "pool")

	var st ledger.Settlement
	callResult(t, env.url, "ft_transferCall", TransferCallParam{
		Sender:   "alice",
		Receiver: "pool",
		Amount:   types.NewAmount(100),
		Msg:      "stake",
	}, &st)
	if st.Outcome != ledger.OutcomeResolved {
		t.Errorf("outcome = %s, want %s", st.Outcome, ledger.OutcomeResolved)
	}
	if !st.Used.Equal(types.NewAmount(60)) || !st.Refunded.Equal(types.NewAmount(40)) {
		t.Errorf("used/refunded = %s/%s, want 60/40", st.Used, st.Refunded)
	}
	if got := balanceOf(t, env, "pool"); !got.Equal(types.NewAmount(60)) {
		t.Errorf("pool balance = %s, want 60", got)
	}
}

func TestRPC_TransferCall_ClientGoneKeepsReceiverAnswer(t *testing.T) {
	hook := ledger.ReceiverFunc(func(context.Context, ledger.Notice) (types.Amount, error) {
		time.Sleep(300 * time.Millisecond)
		return types.NewAmount(10), nil
	})
	env := setupTestEnvWithConfig(t, config.RPCConfig{}, ledger.WithReceiver(hook))
	register(t, env, "pool")

	body, err := json.Marshal(Request{
		JSONRPC: "2.0",
		Method:  "ft_transferCall",
		Params:  TransferCallParam{Sender: "alice", Receiver: "pool", Amount: types.NewAmount(100)},
		ID:      1,
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	client := &http.Client{Timeout: 50 * time.Millisecond}
	if resp, err := client.Post(env.url, "application/json", bytes.NewReader(body)); err == nil {
		resp.Body.Close()
		t.Fatal("expected client timeout")
	}

	// The transfer phase leaves alice at 900 until the hook's answer settles.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && env.ledger.BalanceOf("alice").Equal(types.NewAmount(900)) {
		time.Sleep(20 * time.Millisecond)
	}
	if got := env.ledger.BalanceOf("alice"); !got.Equal(types.NewAmount(910)) {
		t.Errorf("alice balance = %s, want 910", got)
	}
	if got := env.ledger.BalanceOf("pool"); !got.Equal(types.NewAmount(90)) {
		t.Errorf("pool balance = %s, want 90", got)
	}
	if _, err := env.ledger.Audit(); err != nil {
		t.Errorf("Audit: %v", err)
	}
}

func TestRPC_TransferCall_Rejected(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "ft_transferCall", TransferCallParam{
		Sender:   "alice",
		Receiver: "pool",
		Amount:   types.NewAmount(100),
	})
	expectCode(t, resp, CodeNotRegistered)
}

func TestRPC_Burn(t *testing.T) {
	env := setupTestEnv(t)

	var supply SupplyResult
	callResult(t, env.url, "ft_burn", BurnParam{Account: "alice", Amount: types.NewAmount(250)}, &supply)
	if !supply.TotalSupply.Equal(types.NewAmount(750)) {
		t.Errorf("supply after burn = %s, want 750", supply.TotalSupply)
	}

	expectCode(t, rpcCall(t, env.url, "ft_burn", BurnParam{Account: "alice"}), CodeZeroAmount)
	expectCode(t, rpcCall(t, env.url, "ft_burn", BurnParam{Account: "alice", Amount: types.NewAmount(751)}), CodeInsufficientBalance)
}

func TestRPC_StorageUnregister(t *testing.T) {
	env := setupTestEnv(t)
	register(t, env, "bob")
	if err := env.ledger.Transfer("alice", "bob", types.NewAmount(10), ""); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	expectCode(t, rpcCall(t, env.url, "storage_unregister", UnregisterParam{Account: "bob"}), CodeNonZeroBalance)

	var res ledger.UnregisterResult
	callResult(t, env.url, "storage_unregister", UnregisterParam{Account: "bob", Force: true}, &res)
	if !res.Forced || !res.Burned.Equal(types.NewAmount(10)) || !res.Refund.Equal(types.NewAmount(testFee)) {
		t.Errorf("unregister = %+v", res)
	}

	var supply SupplyResult
	callResult(t, env.url, "ft_totalSupply", nil, &supply)
	if !supply.TotalSupply.Equal(types.NewAmount(990)) {
		t.Errorf("supply = %s, want 990", supply.TotalSupply)
	}
}

func TestRPC_StorageBalanceOf(t *testing.T) {
	env := setupTestEnv(t)
	register(t, env, "bob")

	var bal ledger.StorageBalance
	callResult(t, env.url, "storage_balanceOf", AccountParam{Account: "bob"}, &bal)
	if !bal.Total.Equal(types.NewAmount(testFee)) || !bal.Available.IsZero() {
		t.Errorf("storage balance = %+v", bal)
	}

	body, _ := json.Marshal(Request{JSONRPC: "2.0", Method: "storage_balanceOf", Params: AccountParam{Account: "carol"}, ID: 1})
	httpResp, err := http.Post(env.url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer httpResp.Body.Close()
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(httpResp.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, hasErr := raw["error"]; hasErr {
		t.Errorf("unregistered storage balance returned error %s", raw["error"])
	}
	if res, ok := raw["result"]; !ok || string(res) != "null" {
		t.Errorf("result = %q (present %v), want explicit null", res, ok)
	}

	var bounds ledger.StorageBounds
	callResult(t, env.url, "storage_balanceBounds", nil, &bounds)
	if !bounds.Min.Equal(types.NewAmount(testFee)) || !bounds.Max.Equal(bounds.Min) {
		t.Errorf("bounds = %+v", bounds)
	}
}

func TestRPC_Metadata(t *testing.T) {
	env := setupTestEnv(t)

	var md config.Metadata
	callResult(t, env.url, "ft_metadata", nil, &md)
	if md != env.genesis.Metadata {
		t.Errorf("metadata = %+v, want %+v", md, env.genesis.Metadata)
	}
}

func TestRPC_LedgerInfoAndAudit(t *testing.T) {
	env := setupTestEnv(t)
	register(t, env, "bob")

	var info InfoResult
	callResult(t, env.url, "ledger_info", nil, &info)
	if info.Owner != "alice" || info.Accounts != 2 {
		t.Errorf("info = %+v", info)
	}
	root, err := env.ledger.StateRoot()
	if err != nil {
		t.Fatalf("StateRoot: %v", err)
	}
	if info.StateRoot != root.String() {
		t.Errorf("state root = %s, want %s", info.StateRoot, root)
	}
	if info.Metadata == nil || info.Metadata.Symbol != env.genesis.Metadata.Symbol {
		t.Errorf("info metadata = %+v", info.Metadata)
	}

	var audit AuditResult
	callResult(t, env.url, "ledger_audit", nil, &audit)
	if !audit.OK || audit.Accounts != 2 || !audit.TotalSupply.Equal(types.NewAmount(1000)) {
		t.Errorf("audit = %+v", audit)
	}
	// Genesis owner holds no fee.
	if !audit.StorageHeld.Equal(types.NewAmount(testFee)) {
		t.Errorf("storage held = %s, want %d", audit.StorageHeld, testFee)
	}

	var accounts []ledger.AccountEntry
	callResult(t, env.url, "ledger_accounts", nil, &accounts)
	if len(accounts) != 2 || accounts[0].Account != "alice" || accounts[1].Account != "bob" {
		t.Errorf("accounts = %+v", accounts)
	}
}

func TestRPC_MethodNotFound(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "nonexistent_method", nil)
	expectCode(t, resp, CodeMethodNotFound)
}

func TestRPC_InvalidParams(t *testing.T) {
	env := setupTestEnv(t)

	// ft_transfer requires params.
	resp := rpcCall(t, env.url, "ft_transfer", nil)
	expectCode(t, resp, CodeInvalidParams)
}

func TestRPC_InvalidJSON(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Post(env.url, "application/json", bytes.NewReader([]byte("not json")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)
	expectCode(t, rpcResp, CodeParseError)
}

func TestRPC_WrongVersion(t *testing.T) {
	env := setupTestEnv(t)

	body := []byte(`{"jsonrpc":"1.0","method":"ft_totalSupply","id":7}`)
	resp, err := http.Post(env.url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)
	expectCode(t, rpcResp, CodeInvalidRequest)
}

func TestRPC_GetMethodNotAllowed(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Get(env.url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)
	expectCode(t, rpcResp, CodeInvalidRequest)
}

func TestRPC_BodySizeLimit(t *testing.T) {
	env := setupTestEnv(t)

	bigPayload := bytes.Repeat([]byte{'A'}, maxBodySize+1024)
	resp, err := http.Post(env.url, "application/json", bytes.NewReader(bigPayload))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)
	expectCode(t, rpcResp, CodeInvalidRequest)
}

// --- IP Filtering ---

func TestRPC_IPFilter_Allowed(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		AllowedIPs: []string{"127.0.0.1"},
	})

	resp := rpcCall(t, env.url, "ft_totalSupply", nil)
	if resp.Error != nil {
		t.Errorf("expected success for 127.0.0.1, got error: %s", resp.Error.Message)
	}
}

func TestRPC_IPFilter_Blocked(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		AllowedIPs: []string{"10.0.0.0/8"},
	})

	body, _ := json.Marshal(Request{JSONRPC: "2.0", Method: "ft_totalSupply", ID: 1})
	resp, err := http.Post(env.url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}
}

func TestParseAllowedIPs(t *testing.T) {
	nets := parseAllowedIPs([]string{"10.0.0.0/8", "192.168.1.7", "::1", "garbage"})
	if len(nets) != 3 {
		t.Fatalf("parsed %d networks, want 3", len(nets))
	}
	if ones, bits := nets[1].Mask.Size(); ones != 32 || bits != 32 {
		t.Errorf("single IPv4 mask = /%d of %d, want /32", ones, bits)
	}
	if ones, bits := nets[2].Mask.Size(); ones != 128 || bits != 128 {
		t.Errorf("single IPv6 mask = /%d of %d, want /128", ones, bits)
	}
}

// --- CORS ---

func TestRPC_CORS_SpecificOrigin(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		CORSOrigins: []string{"http://myapp.com"},
	})

	body, _ := json.Marshal(Request{JSONRPC: "2.0", Method: "ft_totalSupply", ID: 1})
	for origin, want := range map[string]string{
		"http://myapp.com": "http://myapp.com",
		"http://evil.com":  "",
	} {
		httpReq, _ := http.NewRequest("POST", env.url, bytes.NewReader(body))
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Origin", origin)

		resp, err := http.DefaultClient.Do(httpReq)
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		resp.Body.Close()

		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != want {
			t.Errorf("origin %s: CORS header = %q, want %q", origin, got, want)
		}
	}
}

func TestRPC_CORS_Preflight(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		CORSOrigins: []string{"*"},
	})

	httpReq, _ := http.NewRequest("OPTIONS", env.url, nil)
	httpReq.Header.Set("Origin", "http://example.com")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("preflight should allow any origin")
	}
}

// --- Metrics ---

func TestRPC_MetricsEndpoint(t *testing.T) {
	m := metrics.New()
	env := setupTestEnvWithConfig(t, config.RPCConfig{}, ledger.WithMetrics(m))
	env.server.EnableMetrics(m)
	_ = rpcCall(t, env.url, "ft_burn", BurnParam{Account: "alice", Amount: types.NewAmount(1)})

	resp, err := http.Get(env.url + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), metrics.Namespace+"_") {
		t.Errorf("metrics output missing %s_ series", metrics.Namespace)
	}
}
