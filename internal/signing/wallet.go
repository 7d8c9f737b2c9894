package signing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
)

// Wallet is the subset of an EIP-1193 provider the signing flow needs.
type Wallet interface {
	// Accounts lists connected accounts without prompting.
	Accounts(ctx context.Context) ([]string, error)
	// Connect asks the user to connect an account.
	Connect(ctx context.Context) ([]string, error)
	// PersonalSign signs message with address.
	PersonalSign(ctx context.Context, message, address string) (string, error)
}

// RPCError is an error object returned by the wallet endpoint.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("wallet rpc error %d: %s", e.Code, e.Message)
}

// RPCWallet talks JSON-RPC 2.0 over HTTP to a wallet or signer endpoint.
type RPCWallet struct {
	endpoint string
	client   *http.Client
	nextID   atomic.Int64
}

// NewRPCWallet constructs an RPCWallet. client may be nil.
func NewRPCWallet(endpoint string, client *http.Client) *RPCWallet {
	if client == nil {
		client = http.DefaultClient
	}
	return &RPCWallet{endpoint: endpoint, client: client}
}

func (w *RPCWallet) Accounts(ctx context.Context) ([]string, error) {
	var accounts []string
	err := w.call(ctx, "eth_accounts", []any{}, &accounts)
	return accounts, err
}

func (w *RPCWallet) Connect(ctx context.Context) ([]string, error) {
	var accounts []string
	err := w.call(ctx, "eth_requestAccounts", []any{}, &accounts)
	return accounts, err
}

func (w *RPCWallet) PersonalSign(ctx context.Context, message, address string) (string, error) {
	var signature string
	err := w.call(ctx, "personal_sign", []any{message, address}, &signature)
	return signature, err
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func (w *RPCWallet) call(ctx context.Context, method string, params []any, result any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: w.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: wallet responded %s", method, resp.Status)
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("%s: decode: %w", method, err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if len(decoded.Result) == 0 {
		return errors.New(method + ": empty result")
	}
	return json.Unmarshal(decoded.Result, result)
}
