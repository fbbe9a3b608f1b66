// Package rpcclient provides a JSON-RPC 2.0 client for ftledgerd.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Klingon-tech/ftledger/internal/ledger"
	"github.com/Klingon-tech/ftledger/internal/rpc"
	"github.com/Klingon-tech/ftledger/pkg/types"
)

// DefaultTimeout bounds a single call.
const DefaultTimeout = 10 * time.Second

// Client is a JSON-RPC 2.0 HTTP client.
type Client struct {
	endpoint string
	http     *http.Client
	nextID   atomic.Int64
}

// New creates a new RPC client targeting the given endpoint URL.
func New(endpoint string) *Client {
	return NewWithTimeout(endpoint, DefaultTimeout)
}

// NewWithTimeout creates a new RPC client with a custom HTTP timeout.
func NewWithTimeout(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// request is a JSON-RPC 2.0 request.
type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int64       `json:"id"`
}

// response is a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      int64           `json:"id"`
}

// RPCError is returned when the server responds with an error.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// DecodeData unmarshals the error's data member into v.
func (e *RPCError) DecodeData(v interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("rpc error %d has no data", e.Code)
	}
	return json.Unmarshal(e.Data, v)
}

// Call invokes a JSON-RPC method and unmarshals the result into the provided pointer.
// If result is nil, the response result is discarded.
func (c *Client) Call(method string, params, result interface{}) error {
	return c.CallContext(context.Background(), method, params, result)
}

// CallContext is Call bounded by ctx as well as the client timeout.
func (c *Client) CallContext(ctx context.Context, method string, params, result interface{}) error {
	req := request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("http request: %s", resp.Status)
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}

	return nil
}

// BalanceOf returns the token balance of account.
func (c *Client) BalanceOf(account types.AccountID) (types.Amount, error) {
	var res rpc.BalanceResult
	if err := c.Call("ft_balanceOf", rpc.AccountParam{Account: account}, &res); err != nil {
		return types.Amount{}, err
	}
	return res.Balance, nil
}

// TotalSupply returns the token total supply.
func (c *Client) TotalSupply() (types.Amount, error) {
	var res rpc.SupplyResult
	if err := c.Call("ft_totalSupply", nil, &res); err != nil {
		return types.Amount{}, err
	}
	return res.TotalSupply, nil
}

// Transfer moves amount from sender to receiver.
func (c *Client) Transfer(sender, receiver types.AccountID, amount types.Amount, memo string) error {
	return c.Call("ft_transfer", rpc.TransferParam{
		Sender:   sender,
		Receiver: receiver,
		Amount:   amount,
		Memo:     memo,
	}, nil)
}

// TransferCall transfers amount and waits for the receiver hook to settle.
// A failed resolve returns the partial settlement together with the error.
func (c *Client) TransferCall(ctx context.Context, p rpc.TransferCallParam) (ledger.Settlement, error) {
	var st ledger.Settlement
	err := c.CallContext(ctx, "ft_transferCall", p, &st)
	if rpcErr, ok := err.(*RPCError); ok && len(rpcErr.Data) > 0 {
		rpcErr.DecodeData(&st)
	}
	return st, err
}

// Register opens a balance slot for account, paying attached.
func (c *Client) Register(caller, account types.AccountID, attached types.Amount) (ledger.RegisterResult, error) {
	var res ledger.RegisterResult
	err := c.Call("storage_deposit", rpc.StorageDepositParam{
		Caller:   caller,
		Account:  account,
		Attached: attached,
	}, &res)
	return res, err
}

// Unregister closes account, burning its balance when force is set.
func (c *Client) Unregister(account types.AccountID, force bool) (ledger.UnregisterResult, error) {
	var res ledger.UnregisterResult
	err := c.Call("storage_unregister", rpc.UnregisterParam{Account: account, Force: force}, &res)
	return res, err
}

// StorageBalanceOf returns nil when account is not registered.
func (c *Client) StorageBalanceOf(account types.AccountID) (*ledger.StorageBalance, error) {
	var res *ledger.StorageBalance
	if err := c.Call("storage_balanceOf", rpc.AccountParam{Account: account}, &res); err != nil {
		return nil, err
	}
	return res, nil
}
