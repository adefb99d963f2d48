// Package backend provides chain client interfaces for fetching UTXO data and
// broadcasting transactions. This package never handles private keys - all
// signing happens in the swap package.
package backend

import (
	"context"
	"errors"
)

// Common errors
var (
	// ErrChainUnavailable covers any transport or node failure. Transient;
	// callers decide retry and backoff.
	ErrChainUnavailable = errors.New("chain unavailable")

	// ErrTxNotFound is returned when the node does not know the transaction.
	ErrTxNotFound = errors.New("transaction not found")

	// ErrBroadcastRejected is returned when the node rejects a transaction
	// for a reason other than it already being known (spent input, bad
	// script, premature locktime).
	ErrBroadcastRejected = errors.New("broadcast rejected")

	// ErrAborted is returned when the caller's context is cancelled while a
	// call is in flight. The swap record is never mutated in that case.
	ErrAborted = errors.New("aborted")
)

// UTXO represents an unspent transaction output at an address.
type UTXO struct {
	TxID          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	Amount        uint64 `json:"value"` // minor units
	Confirmations int64  `json:"confirmations"`
	BlockHeight   int64  `json:"block_height,omitempty"`
}

// TxStatus describes the confirmation state of a transaction.
type TxStatus struct {
	TxID          string `json:"txid"`
	Confirmations int64  `json:"confirmations"`
	BlockHeight   int64  `json:"block_height,omitempty"`
}

// Client is the per-chain interface the swap coordinator drives.
// One instance per chain. All methods honor context cancellation and
// deadlines; exceeding a deadline surfaces as ErrChainUnavailable.
type Client interface {
	// GetAddressUTXOs returns the outputs currently unspent at an address
	// in the node's view. Confirmations is 0 for mempool entries.
	GetAddressUTXOs(ctx context.Context, address string) ([]UTXO, error)

	// GetRawTransaction returns the serialized transaction bytes.
	GetRawTransaction(ctx context.Context, txID string) ([]byte, error)

	// BroadcastTransaction submits a raw transaction, returning its txid.
	// Idempotent on txid: rebroadcasting an already-accepted transaction
	// returns its txid without error.
	BroadcastTransaction(ctx context.Context, rawTxHex string) (string, error)

	// GetTransaction returns the confirmation status of a transaction.
	GetTransaction(ctx context.Context, txID string) (*TxStatus, error)

	// CurrentTime returns the chain's notion of now in unix seconds
	// (median-time-past where available, wall clock otherwise).
	CurrentTime(ctx context.Context) (uint64, error)

	// Close releases any held connections.
	Close() error
}

// ErrNotSupported is returned by optional capabilities the node cannot
// serve (e.g. spend lookups on a node without an address index).
var ErrNotSupported = errors.New("operation not supported by this client")

// SpendFinder is an optional capability for locating the transaction that
// spent a given outpoint. Clients backed by address-indexed nodes implement
// it; the coordinator falls back to recorded txids when it is absent.
type SpendFinder interface {
	// FindSpendingTransaction returns the raw transaction that spends
	// (txid, vout), searching the history of address. Returns
	// (nil, nil) while the outpoint is unspent.
	FindSpendingTransaction(ctx context.Context, address, txid string, vout uint32) ([]byte, error)
}
