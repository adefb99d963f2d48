// Package swap implements the cross-chain atomic swap engine: HTLC scripts,
// claim/refund transactions, preimage extraction, and the coordinator that
// drives a swap from initiation to completion or refund.
package swap

import "errors"

// Input errors - malformed inputs to pure functions. No retry.
var (
	ErrRNGUnavailable = errors.New("system RNG unavailable")
	ErrBadHash        = errors.New("hash must be 32 bytes")
	ErrBadPreimage    = errors.New("preimage must be 32 bytes")
	ErrBadPublicKey   = errors.New("public key must be 33 or 65 bytes")
	ErrBadTimelock    = errors.New("timelock must be in [1, 2^31-1]")
	ErrBadKey         = errors.New("invalid private key")
	ErrBadTxID        = errors.New("invalid transaction id")
	ErrBadAddress     = errors.New("invalid address")
	ErrBadAmount      = errors.New("invalid amount")
	ErrUnderfunded    = errors.New("value does not cover fee plus dust")
)

// Crypto errors - signing primitive failures. Fatal for the operation.
var (
	ErrSigningFailed = errors.New("signing failed")
)

// Protocol and state errors.
var (
	// ErrMalformedTransaction means a transaction or its input scripts
	// could not be decoded.
	ErrMalformedTransaction = errors.New("malformed transaction")

	// ErrProtocolViolation means a broadcast was rejected by the chain:
	// the UTXO is already spent, the script is wrong, or the timelock has
	// not elapsed. Inspect the swap state before retrying.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrInvalidState means an operation was attempted from a swap state
	// that disallows it. Programmer error.
	ErrInvalidState = errors.New("operation not allowed in current swap state")

	// ErrUnsupportedChain means no parameters or client are registered for
	// the requested chain.
	ErrUnsupportedChain = errors.New("unsupported chain")
)
