// Package swap - the swap record: the single mutable object a swap owns. Only the
// coordinator's transition methods mutate it; everything else receives
// snapshots or the serialized form.
package swap

import (
	"encoding/json"
	"fmt"

	"github.com/marswap-exchange/marswapd/internal/chain"
	"github.com/marswap-exchange/marswapd/pkg/helpers"
)

// Status represents the current state of a swap.
type Status string

const (
	StatusInitialized Status = "initialized"
	StatusFunded      Status = "funded"
	StatusCompleted   Status = "completed"
	StatusRefunded    Status = "refunded"
	StatusFailed      Status = "failed"
)

// PartyAddresses holds the four payout addresses of a swap.
type PartyAddresses struct {
	InitiatorPrimary   string `json:"initiator_primary"`
	InitiatorAlt       string `json:"initiator_alt"`
	ParticipantPrimary string `json:"participant_primary"`
	ParticipantAlt     string `json:"participant_alt"`
}

// ChainTxIDs holds one txid per chain.
type ChainTxIDs struct {
	Primary string `json:"primary,omitempty"`
	Alt     string `json:"alt,omitempty"`
}

// Outpoint identifies a funding output and the value it carries.
type Outpoint struct {
	TxID   string
	Vout   uint32
	Amount uint64 // minor units
}

// Record is the full state of one swap.
type Record struct {
	ID string

	// Preimage is the hashlock secret. Held only by the initiator until
	// revealed on-chain; zeroed after a refund that never exposed it.
	Preimage []byte
	Hash     []byte

	Addresses PartyAddresses

	PrimaryHTLC *HTLC
	AltHTLC     *HTLC

	// Amounts in minor units.
	PrimaryAmount uint64
	AltAmount     uint64

	// Absolute expiries in unix seconds. PrimaryTimeout is strictly later
	// than AltTimeout; the gap is what makes the swap atomic.
	PrimaryTimeout uint32
	AltTimeout     uint32

	// Funding outpoints recorded by VerifyFunding.
	PrimaryFunding *Outpoint
	AltFunding     *Outpoint

	ClaimTx  ChainTxIDs
	RefundTx ChainTxIDs

	// Signed transaction hex cached before broadcast so a retry after a
	// node outage rebroadcasts the identical bytes.
	PendingClaimHex  ChainTxIDs
	PendingRefundHex ChainTxIDs

	Status Status

	CreatedAt   uint64
	CompletedAt uint64 // 0 until completed
	RefundedAt  uint64 // 0 until refunded

	FailureReason string
}

// validTransitions is the status DAG. Failed is reachable from any
// non-terminal state.
var validTransitions = map[Status][]Status{
	StatusInitialized: {StatusFunded, StatusFailed},
	StatusFunded:      {StatusCompleted, StatusRefunded, StatusFailed},
	StatusCompleted:   {},
	StatusRefunded:    {},
	StatusFailed:      {},
}

func (r *Record) transitionTo(next Status) error {
	for _, allowed := range validTransitions[r.Status] {
		if allowed == next {
			r.Status = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidState, r.Status, next)
}

// MarkFunded records both funding outpoints and advances to Funded.
func (r *Record) MarkFunded(primary, alt Outpoint) error {
	if r.Status == StatusFunded {
		return nil // idempotent
	}
	if err := r.transitionTo(StatusFunded); err != nil {
		return err
	}
	r.PrimaryFunding = &primary
	r.AltFunding = &alt
	return nil
}

// MarkCompleted advances to Completed. The primary-side claim must have
// been broadcast: completion is defined by the primary claim alone.
func (r *Record) MarkCompleted(now uint64) error {
	if r.ClaimTx.Primary == "" {
		return fmt.Errorf("%w: completed requires a primary claim txid", ErrInvalidState)
	}
	if err := r.transitionTo(StatusCompleted); err != nil {
		return err
	}
	r.CompletedAt = now
	return nil
}

// MarkRefunded advances to Refunded. A refund must have been broadcast on
// at least one funded chain.
func (r *Record) MarkRefunded(now uint64) error {
	if r.RefundTx.Primary == "" && r.RefundTx.Alt == "" {
		return fmt.Errorf("%w: refunded requires a broadcast refund", ErrInvalidState)
	}
	if err := r.transitionTo(StatusRefunded); err != nil {
		return err
	}
	r.RefundedAt = now
	// A swap refunded without any claim never exposed the preimage;
	// scrub it so the serialized record cannot leak it either.
	if r.ClaimTx.Primary == "" && r.ClaimTx.Alt == "" {
		helpers.Zero(r.Preimage)
		r.Preimage = nil
	}
	return nil
}

// MarkFailed moves the swap to Failed from any non-terminal state.
func (r *Record) MarkFailed(reason string) error {
	if err := r.transitionTo(StatusFailed); err != nil {
		return err
	}
	r.FailureReason = reason
	return nil
}

// IsTerminal reports whether the swap can no longer change state.
func (r *Record) IsTerminal() bool {
	switch r.Status {
	case StatusCompleted, StatusRefunded, StatusFailed:
		return true
	default:
		return false
	}
}

// =============================================================================
// Serialization
// =============================================================================

// HTLCJSON is the serialized form of one contract.
type HTLCJSON struct {
	Address      string `json:"address"`
	RedeemScript string `json:"redeem_script"`
	ScriptPubKey string `json:"script_pubkey"`
	Timelock     uint32 `json:"timelock"`
}

// RecordJSON is the flat serialized swap record consumed by the journal and
// any external tooling. Byte buffers are lowercase hex.
type RecordJSON struct {
	ID           string         `json:"id"`
	Preimage     string         `json:"preimage,omitempty"`
	Hash         string         `json:"hash"`
	PrimaryChain string         `json:"primary_chain"`
	AltChain     string         `json:"alt_chain"`
	Network      string         `json:"network"`
	Addresses    PartyAddresses `json:"addresses"`
	HTLCPrimary  HTLCJSON       `json:"htlc_primary"`
	HTLCAlt      HTLCJSON       `json:"htlc_alt"`
	Amounts      struct {
		Primary uint64 `json:"primary"`
		Alt     uint64 `json:"alt"`
	} `json:"amounts"`
	// Timeouts are unix seconds. Parsed wide so that legacy records that
	// stored milliseconds are detected instead of silently truncated.
	Timeouts struct {
		Primary uint64 `json:"primary"`
		Alt     uint64 `json:"alt"`
	} `json:"timeouts"`
	FundingTx struct {
		Primary       string `json:"primary,omitempty"`
		PrimaryVout   uint32 `json:"primary_vout,omitempty"`
		PrimaryAmount uint64 `json:"primary_amount,omitempty"`
		Alt           string `json:"alt,omitempty"`
		AltVout       uint32 `json:"alt_vout,omitempty"`
		AltAmount     uint64 `json:"alt_amount,omitempty"`
	} `json:"funding_tx"`
	ClaimTx     ChainTxIDs `json:"claim_tx"`
	RefundTx    ChainTxIDs `json:"refund_tx"`
	Status      Status     `json:"status"`
	CreatedAt   uint64     `json:"created_at"`
	CompletedAt uint64     `json:"completed_at,omitempty"`
	RefundedAt  uint64     `json:"refunded_at,omitempty"`
}

// Serialize converts the record to its flat journal form. The preimage is
// included only while the record legitimately holds one.
func (r *Record) Serialize() *RecordJSON {
	out := &RecordJSON{
		ID:           r.ID,
		Hash:         helpers.BytesToHex(r.Hash),
		PrimaryChain: r.PrimaryHTLC.Chain.Symbol,
		AltChain:     r.AltHTLC.Chain.Symbol,
		Network:      string(r.PrimaryHTLC.Chain.Network),
		Addresses:    r.Addresses,
		HTLCPrimary: HTLCJSON{
			Address:      r.PrimaryHTLC.Address,
			RedeemScript: r.PrimaryHTLC.RedeemScriptHex(),
			ScriptPubKey: r.PrimaryHTLC.ScriptPubKeyHex(),
			Timelock:     r.PrimaryHTLC.Timelock,
		},
		HTLCAlt: HTLCJSON{
			Address:      r.AltHTLC.Address,
			RedeemScript: r.AltHTLC.RedeemScriptHex(),
			ScriptPubKey: r.AltHTLC.ScriptPubKeyHex(),
			Timelock:     r.AltHTLC.Timelock,
		},
		ClaimTx:     r.ClaimTx,
		RefundTx:    r.RefundTx,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		CompletedAt: r.CompletedAt,
		RefundedAt:  r.RefundedAt,
	}
	if len(r.Preimage) == PreimageSize {
		out.Preimage = helpers.BytesToHex(r.Preimage)
	}
	out.Amounts.Primary = r.PrimaryAmount
	out.Amounts.Alt = r.AltAmount
	out.Timeouts.Primary = uint64(r.PrimaryTimeout)
	out.Timeouts.Alt = uint64(r.AltTimeout)
	if r.PrimaryFunding != nil {
		out.FundingTx.Primary = r.PrimaryFunding.TxID
		out.FundingTx.PrimaryVout = r.PrimaryFunding.Vout
		out.FundingTx.PrimaryAmount = r.PrimaryFunding.Amount
	}
	if r.AltFunding != nil {
		out.FundingTx.Alt = r.AltFunding.TxID
		out.FundingTx.AltVout = r.AltFunding.Vout
		out.FundingTx.AltAmount = r.AltFunding.Amount
	}
	return out
}

// MarshalRecord serializes a record to JSON bytes.
func MarshalRecord(r *Record) ([]byte, error) {
	return json.Marshal(r.Serialize())
}

// ParseRecord rebuilds a record from its serialized form, re-deriving both
// HTLC descriptors from the stored redeem scripts.
func ParseRecord(data []byte) (*Record, error) {
	var rj RecordJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return nil, fmt.Errorf("failed to parse swap record: %w", err)
	}

	network := chain.Network(rj.Network)
	primaryParams, ok := chain.Get(rj.PrimaryChain, network)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedChain, rj.PrimaryChain, rj.Network)
	}
	// The alt chain has no regtest deployment; regtest swaps pair a
	// regtest primary with an alt testnet.
	altNetwork := network
	if altNetwork == chain.Regtest {
		altNetwork = chain.Testnet
	}
	altParams, ok := chain.Get(rj.AltChain, altNetwork)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedChain, rj.AltChain, altNetwork)
	}

	if rj.Timeouts.Primary > maxCLTVValue || rj.Timeouts.Alt > maxCLTVValue {
		return nil, fmt.Errorf("timeouts exceed the CLTV range; legacy record with millisecond timestamps?")
	}

	hash, err := helpers.HexToBytes(rj.Hash)
	if err != nil || len(hash) != 32 {
		return nil, fmt.Errorf("%w: record hash", ErrBadHash)
	}

	var preimage []byte
	if rj.Preimage != "" {
		preimage, err = helpers.HexToBytes(rj.Preimage)
		if err != nil || len(preimage) != PreimageSize {
			return nil, fmt.Errorf("%w: record preimage", ErrBadPreimage)
		}
		if !VerifyPreimage(preimage, hash) {
			return nil, fmt.Errorf("%w: record preimage does not match hash", ErrBadPreimage)
		}
	}

	primaryScript, err := helpers.HexToBytes(rj.HTLCPrimary.RedeemScript)
	if err != nil {
		return nil, fmt.Errorf("%w: primary redeem script hex", ErrMalformedTransaction)
	}
	primaryHTLC, err := HTLCFromRedeemScript(primaryScript, primaryParams)
	if err != nil {
		return nil, fmt.Errorf("primary contract: %w", err)
	}
	altScript, err := helpers.HexToBytes(rj.HTLCAlt.RedeemScript)
	if err != nil {
		return nil, fmt.Errorf("%w: alt redeem script hex", ErrMalformedTransaction)
	}
	altHTLC, err := HTLCFromRedeemScript(altScript, altParams)
	if err != nil {
		return nil, fmt.Errorf("alt contract: %w", err)
	}

	rec := &Record{
		ID:             rj.ID,
		Preimage:       preimage,
		Hash:           hash,
		Addresses:      rj.Addresses,
		PrimaryHTLC:    primaryHTLC,
		AltHTLC:        altHTLC,
		PrimaryAmount:  rj.Amounts.Primary,
		AltAmount:      rj.Amounts.Alt,
		PrimaryTimeout: uint32(rj.Timeouts.Primary),
		AltTimeout:     uint32(rj.Timeouts.Alt),
		ClaimTx:        rj.ClaimTx,
		RefundTx:       rj.RefundTx,
		Status:         rj.Status,
		CreatedAt:      rj.CreatedAt,
		CompletedAt:    rj.CompletedAt,
		RefundedAt:     rj.RefundedAt,
	}
	if rj.FundingTx.Primary != "" {
		rec.PrimaryFunding = &Outpoint{TxID: rj.FundingTx.Primary, Vout: rj.FundingTx.PrimaryVout, Amount: rj.FundingTx.PrimaryAmount}
	}
	if rj.FundingTx.Alt != "" {
		rec.AltFunding = &Outpoint{TxID: rj.FundingTx.Alt, Vout: rj.FundingTx.AltVout, Amount: rj.FundingTx.AltAmount}
	}
	return rec, nil
}
