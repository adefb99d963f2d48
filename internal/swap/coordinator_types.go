// Package swap - type definitions for the Coordinator.
package swap

import (
	"errors"
	"sync"

	"github.com/marswap-exchange/marswapd/internal/backend"
	"github.com/marswap-exchange/marswapd/internal/chain"
	"github.com/marswap-exchange/marswapd/pkg/logging"
)

// Coordinator errors
var (
	ErrSwapNotFound = errors.New("swap not found")
	ErrNoClient     = errors.New("no chain client configured for chain")
	ErrNoPreimage   = errors.New("preimage not known for this swap")
)

// Journal persists swap records. The coordinator calls it after every state
// mutation; it is the single writer of durable state. A nil journal is
// valid - records then live only in memory.
type Journal interface {
	SaveSwap(rec *Record) error
}

// ClaimKeys authorizes claim transactions. Either side may be empty; the
// coordinator claims only the sides it holds keys for.
type ClaimKeys struct {
	PrimaryWIF string // initiator's primary-chain key
	AltWIF     string // participant's alt-chain key
}

// RefundKeys authorizes refund transactions.
type RefundKeys struct {
	PrimaryWIF string // participant's primary-chain key
	AltWIF     string // initiator's alt-chain key
}

// Fees are flat per-transaction fees in minor units, one per chain.
type Fees struct {
	Primary uint64
	Alt     uint64
}

// ChainFunding is one chain's half of a funding report.
type ChainFunding struct {
	Funded        bool
	TxID          string
	Vout          uint32
	Amount        uint64
	Confirmations int64
	Required      uint32
}

// FundingReport is the result of VerifyFunding.
type FundingReport struct {
	Primary    ChainFunding
	Alt        ChainFunding
	BothFunded bool
}

// ClaimReport is the result of CompleteSwap.
type ClaimReport struct {
	PrimaryTxID string
	AltTxID     string
	Completed   bool
}

// RefundReport is the result of HandleTimeout.
type RefundReport struct {
	PrimaryTxID     string
	AltTxID         string
	PrimaryEligible bool // primary timelock has expired
	AltEligible     bool // alt timelock has expired
	Refunded        bool
}

// Coordinator drives swaps through the state machine. All pure logic lives
// in the script/tx/extract files; the coordinator sequences it against the
// chain clients and owns record mutation.
type Coordinator struct {
	mu sync.Mutex

	primary *chain.Params
	alt     *chain.Params

	clients map[string]backend.Client // chain symbol -> client
	journal Journal
	log     *logging.Logger

	// Per-swap locks: operations on one record never interleave.
	swapLocks map[string]*sync.Mutex

	// Tracked records by id, for watchers and recovery.
	swaps map[string]*Record
}

// Config holds the Coordinator's dependencies.
type Config struct {
	PrimaryChain *chain.Params
	AltChain     *chain.Params
	Clients      map[string]backend.Client
	Journal      Journal
	Log          *logging.Logger
}
