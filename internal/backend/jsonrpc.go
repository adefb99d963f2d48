package backend

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/marswap-exchange/marswapd/pkg/helpers"
)

// JSONRPCClient implements Client against a bitcoind-compatible node
// (Bitcoin Core, Marscoin Core). Address lookups prefer the addressindex
// RPC (getaddressutxos) and fall back to scantxoutset on nodes without it.
type JSONRPCClient struct {
	rpcURL     string
	rpcUser    string
	rpcPass    string
	httpClient *http.Client
	requestID  atomic.Uint64

	// hasAddressIndex caches whether getaddressutxos is available.
	// 0 = unknown, 1 = yes, 2 = no.
	hasAddressIndex atomic.Int32
}

// NewJSONRPCClient creates a JSON-RPC client for a node endpoint.
func NewJSONRPCClient(rpcURL, user, pass string, timeout time.Duration) *JSONRPCClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &JSONRPCClient{
		rpcURL:  rpcURL,
		rpcUser: user,
		rpcPass: pass,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Close releases idle connections.
func (c *JSONRPCClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// call performs a single JSON-RPC request. Transport failures and node
// unavailability wrap ErrChainUnavailable; context cancellation wraps
// ErrAborted so callers can tell an operator abort from a flaky node.
func (c *JSONRPCClient) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "1.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChainUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.rpcUser != "" {
		req.SetBasicAuth(c.rpcUser, c.rpcPass)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", ErrChainUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChainUnavailable, err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return nil, fmt.Errorf("%w: bad response from node: %v", ErrChainUnavailable, err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// GetAddressUTXOs returns the unspent outputs at an address.
func (c *JSONRPCClient) GetAddressUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	if c.hasAddressIndex.Load() != 2 {
		utxos, err := c.addressIndexUTXOs(ctx, address)
		if err == nil {
			c.hasAddressIndex.Store(1)
			return utxos, nil
		}
		var rpcErr *rpcError
		if !asRPCError(err, &rpcErr) {
			return nil, err
		}
		// Method not found: remember and fall through to scantxoutset.
		if rpcErr.Code != -32601 {
			return nil, wrapNodeErr("getaddressutxos", rpcErr)
		}
		c.hasAddressIndex.Store(2)
	}
	return c.scanUTXOs(ctx, address)
}

// addressIndexUTXOs uses the addressindex RPC found on insight-style nodes.
func (c *JSONRPCClient) addressIndexUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	result, err := c.call(ctx, "getaddressutxos", []interface{}{
		map[string]interface{}{"addresses": []string{address}},
	})
	if err != nil {
		return nil, err
	}

	var entries []struct {
		TxID        string `json:"txid"`
		OutputIndex uint32 `json:"outputIndex"`
		Satoshis    uint64 `json:"satoshis"`
		Height      int64  `json:"height"`
	}
	if err := json.Unmarshal(result, &entries); err != nil {
		return nil, fmt.Errorf("%w: bad getaddressutxos result: %v", ErrChainUnavailable, err)
	}

	tip, err := c.blockCount(ctx)
	if err != nil {
		return nil, err
	}

	utxos := make([]UTXO, 0, len(entries))
	for _, e := range entries {
		utxos = append(utxos, UTXO{
			TxID:          e.TxID,
			Vout:          e.OutputIndex,
			Amount:        e.Satoshis,
			Confirmations: confirmationsAt(tip, e.Height),
			BlockHeight:   e.Height,
		})
	}
	return utxos, nil
}

// scanUTXOs uses scantxoutset, available on stock Bitcoin Core. The scan
// only sees confirmed outputs, so mempool funding reports 0 entries rather
// than 0 confirmations.
func (c *JSONRPCClient) scanUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	result, err := c.call(ctx, "scantxoutset", []interface{}{
		"start",
		[]string{"addr(" + address + ")"},
	})
	if err != nil {
		return nil, wrapNodeErr("scantxoutset", err)
	}

	var scan struct {
		Success bool  `json:"success"`
		Height  int64 `json:"height"`
		Unspent []struct {
			TxID   string      `json:"txid"`
			Vout   uint32      `json:"vout"`
			Amount json.Number `json:"amount"`
			Height int64       `json:"height"`
		} `json:"unspents"`
	}
	if err := json.Unmarshal(result, &scan); err != nil {
		return nil, fmt.Errorf("%w: bad scantxoutset result: %v", ErrChainUnavailable, err)
	}
	if !scan.Success {
		return nil, fmt.Errorf("%w: scantxoutset scan did not complete", ErrChainUnavailable)
	}

	utxos := make([]UTXO, 0, len(scan.Unspent))
	for _, u := range scan.Unspent {
		// The node reports whole-coin decimals; convert to minor units
		// without going through floating point.
		amount, err := helpers.ParseAmount(u.Amount.String(), 8)
		if err != nil {
			return nil, fmt.Errorf("%w: bad utxo amount %q: %v", ErrChainUnavailable, u.Amount, err)
		}
		utxos = append(utxos, UTXO{
			TxID:          u.TxID,
			Vout:          u.Vout,
			Amount:        amount,
			Confirmations: confirmationsAt(scan.Height, u.Height),
			BlockHeight:   u.Height,
		})
	}
	return utxos, nil
}

// GetRawTransaction returns the serialized transaction bytes.
func (c *JSONRPCClient) GetRawTransaction(ctx context.Context, txID string) ([]byte, error) {
	result, err := c.call(ctx, "getrawtransaction", []interface{}{txID, false})
	if err != nil {
		var rpcErr *rpcError
		if asRPCError(err, &rpcErr) && rpcErr.Code == -5 {
			return nil, fmt.Errorf("%w: %s", ErrTxNotFound, txID)
		}
		return nil, wrapNodeErr("getrawtransaction", err)
	}

	var txHex string
	if err := json.Unmarshal(result, &txHex); err != nil {
		return nil, fmt.Errorf("%w: bad getrawtransaction result: %v", ErrChainUnavailable, err)
	}
	raw, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, fmt.Errorf("%w: node returned invalid hex: %v", ErrChainUnavailable, err)
	}
	return raw, nil
}

// BroadcastTransaction submits a raw transaction. A node that already knows
// the transaction is treated as success, keeping broadcast idempotent on txid.
func (c *JSONRPCClient) BroadcastTransaction(ctx context.Context, rawTxHex string) (string, error) {
	result, err := c.call(ctx, "sendrawtransaction", []interface{}{rawTxHex})
	if err != nil {
		var rpcErr *rpcError
		if asRPCError(err, &rpcErr) {
			if isAlreadyKnown(rpcErr) {
				return txidOf(rawTxHex)
			}
			return "", fmt.Errorf("%w: %s", ErrBroadcastRejected, rpcErr.Message)
		}
		return "", err
	}

	var txid string
	if err := json.Unmarshal(result, &txid); err != nil {
		return "", fmt.Errorf("%w: bad sendrawtransaction result: %v", ErrChainUnavailable, err)
	}
	return txid, nil
}

// GetTransaction returns the confirmation status of a transaction.
func (c *JSONRPCClient) GetTransaction(ctx context.Context, txID string) (*TxStatus, error) {
	result, err := c.call(ctx, "getrawtransaction", []interface{}{txID, true})
	if err != nil {
		var rpcErr *rpcError
		if asRPCError(err, &rpcErr) && rpcErr.Code == -5 {
			return nil, fmt.Errorf("%w: %s", ErrTxNotFound, txID)
		}
		return nil, wrapNodeErr("getrawtransaction", err)
	}

	var verbose struct {
		TxID          string `json:"txid"`
		Confirmations int64  `json:"confirmations"`
		BlockHeight   int64  `json:"blockheight"` // insight-style nodes
		Height        int64  `json:"height"`
	}
	if err := json.Unmarshal(result, &verbose); err != nil {
		return nil, fmt.Errorf("%w: bad transaction result: %v", ErrChainUnavailable, err)
	}

	height := verbose.BlockHeight
	if height == 0 {
		height = verbose.Height
	}
	return &TxStatus{
		TxID:          verbose.TxID,
		Confirmations: verbose.Confirmations,
		BlockHeight:   height,
	}, nil
}

// CurrentTime returns median-time-past from the node, falling back to the
// local wall clock if the node does not report it.
func (c *JSONRPCClient) CurrentTime(ctx context.Context) (uint64, error) {
	result, err := c.call(ctx, "getblockchaininfo", []interface{}{})
	if err != nil {
		return 0, wrapNodeErr("getblockchaininfo", err)
	}

	var info struct {
		MedianTime uint64 `json:"mediantime"`
	}
	if err := json.Unmarshal(result, &info); err != nil {
		return 0, fmt.Errorf("%w: bad getblockchaininfo result: %v", ErrChainUnavailable, err)
	}
	if info.MedianTime == 0 {
		return uint64(time.Now().Unix()), nil
	}
	return info.MedianTime, nil
}

func (c *JSONRPCClient) blockCount(ctx context.Context) (int64, error) {
	result, err := c.call(ctx, "getblockcount", []interface{}{})
	if err != nil {
		return 0, wrapNodeErr("getblockcount", err)
	}
	var height int64
	if err := json.Unmarshal(result, &height); err != nil {
		return 0, fmt.Errorf("%w: bad getblockcount result: %v", ErrChainUnavailable, err)
	}
	return height, nil
}

// FindSpendingTransaction locates the transaction spending (txid, vout) in
// the address's history. Requires the addressindex RPC; plain Bitcoin Core
// nodes report ErrNotSupported.
func (c *JSONRPCClient) FindSpendingTransaction(ctx context.Context, address, txid string, vout uint32) ([]byte, error) {
	result, err := c.call(ctx, "getaddresstxids", []interface{}{
		map[string]interface{}{"addresses": []string{address}},
	})
	if err != nil {
		var rpcErr *rpcError
		if asRPCError(err, &rpcErr) && rpcErr.Code == -32601 {
			return nil, ErrNotSupported
		}
		return nil, wrapNodeErr("getaddresstxids", err)
	}

	var txids []string
	if err := json.Unmarshal(result, &txids); err != nil {
		return nil, fmt.Errorf("%w: bad getaddresstxids result: %v", ErrChainUnavailable, err)
	}

	for _, candidate := range txids {
		if candidate == txid {
			continue
		}
		raw, err := c.GetRawTransaction(ctx, candidate)
		if err != nil {
			if errors.Is(err, ErrTxNotFound) {
				continue
			}
			return nil, err
		}
		var tx wire.MsgTx
		if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
			continue
		}
		for _, txIn := range tx.TxIn {
			if txIn.PreviousOutPoint.Index == vout &&
				txIn.PreviousOutPoint.Hash.String() == txid {
				return raw, nil
			}
		}
	}
	return nil, nil
}

// wrapNodeErr folds a node-side error into ErrChainUnavailable unless it is
// already one of the package sentinels.
func wrapNodeErr(method string, err error) error {
	if errors.Is(err, ErrAborted) || errors.Is(err, ErrChainUnavailable) || errors.Is(err, ErrTxNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrChainUnavailable, method, err)
}

// confirmationsAt computes confirmations for an output mined at height,
// given the current tip. Height <= 0 means mempool.
func confirmationsAt(tip, height int64) int64 {
	if height <= 0 || tip < height {
		return 0
	}
	return tip - height + 1
}

// asRPCError reports whether err (or its chain) is a node-side RPC error.
func asRPCError(err error, target **rpcError) bool {
	return errors.As(err, target)
}

// isAlreadyKnown reports whether a sendrawtransaction error means the
// transaction is already in the mempool or the chain.
func isAlreadyKnown(err *rpcError) bool {
	// -27 = RPC_VERIFY_ALREADY_IN_CHAIN
	if err.Code == -27 {
		return true
	}
	msg := strings.ToLower(err.Message)
	return strings.Contains(msg, "already in block chain") ||
		strings.Contains(msg, "txn-already-in-mempool") ||
		strings.Contains(msg, "txn-already-known")
}

// txidOf computes the display txid of a raw transaction hex.
func txidOf(rawTxHex string) (string, error) {
	raw, err := hex.DecodeString(rawTxHex)
	if err != nil {
		return "", fmt.Errorf("%w: invalid raw transaction hex", ErrBroadcastRejected)
	}
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return "", fmt.Errorf("%w: undecodable raw transaction", ErrBroadcastRejected)
	}
	return tx.TxHash().String(), nil
}
