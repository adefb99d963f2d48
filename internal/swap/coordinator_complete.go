// Package swap - claim execution: the Funded -> Completed transition.
package swap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marswap-exchange/marswapd/internal/backend"
	"github.com/marswap-exchange/marswapd/internal/chain"
)

// CompleteSwap builds and broadcasts claim transactions on whichever sides
// the supplied keys authorize. Completion is defined by the primary-side
// claim alone; the alt side can be swept later or by the counterparty.
//
// A signed claim is cached on the record before broadcast, so a retry after
// a node outage rebroadcasts identical bytes.
func (c *Coordinator) CompleteSwap(ctx context.Context, rec *Record, keys ClaimKeys, fees Fees) (*ClaimReport, error) {
	unlock := c.lockSwap(rec.ID)
	defer unlock()

	switch rec.Status {
	case StatusFunded:
	case StatusCompleted:
		// Allowed for sweeping the alt side after primary completion.
		if keys.AltWIF == "" || rec.ClaimTx.Alt != "" {
			return nil, fmt.Errorf("%w: swap already completed", ErrInvalidState)
		}
	default:
		return nil, fmt.Errorf("%w: complete on %s swap", ErrInvalidState, rec.Status)
	}
	if keys.PrimaryWIF == "" && keys.AltWIF == "" {
		return nil, fmt.Errorf("%w: no claim keys supplied", ErrBadKey)
	}
	if len(rec.Preimage) != PreimageSize {
		return nil, ErrNoPreimage
	}

	report := &ClaimReport{
		PrimaryTxID: rec.ClaimTx.Primary,
		AltTxID:     rec.ClaimTx.Alt,
		Completed:   rec.Status == StatusCompleted,
	}

	if keys.PrimaryWIF != "" && rec.ClaimTx.Primary == "" {
		txid, err := c.claimChain(ctx, rec, claimSide{
			params:     c.primary,
			funding:    rec.PrimaryFunding,
			htlc:       rec.PrimaryHTLC,
			wif:        keys.PrimaryWIF,
			dest:       rec.Addresses.InitiatorPrimary,
			fee:        fees.Primary,
			pendingHex: &rec.PendingClaimHex.Primary,
		})
		if err != nil {
			return report, err
		}
		rec.ClaimTx.Primary = txid
		report.PrimaryTxID = txid

		if err := rec.MarkCompleted(uint64(time.Now().Unix())); err != nil {
			return report, err
		}
		report.Completed = true
		c.persist(rec)
		c.log.Info("primary claim broadcast", "swap_id", rec.ID, "txid", txid)
	}

	if keys.AltWIF != "" && rec.ClaimTx.Alt == "" {
		txid, err := c.claimChain(ctx, rec, claimSide{
			params:     c.alt,
			funding:    rec.AltFunding,
			htlc:       rec.AltHTLC,
			wif:        keys.AltWIF,
			dest:       rec.Addresses.ParticipantAlt,
			fee:        fees.Alt,
			pendingHex: &rec.PendingClaimHex.Alt,
		})
		if err != nil {
			return report, err
		}
		rec.ClaimTx.Alt = txid
		report.AltTxID = txid
		c.persist(rec)
		c.log.Info("alt claim broadcast", "swap_id", rec.ID, "txid", txid)
	}

	return report, nil
}

// claimSide bundles the chain-dependent inputs of one claim.
type claimSide struct {
	params     *chain.Params
	funding    *Outpoint
	htlc       *HTLC
	wif        string
	dest       string
	fee        uint64
	pendingHex *string
}

// claimChain signs (or reuses a cached signature) and broadcasts one claim.
func (c *Coordinator) claimChain(ctx context.Context, rec *Record, side claimSide) (string, error) {
	if side.funding == nil {
		return "", fmt.Errorf("%w: no funding recorded for %s", ErrInvalidState, side.params.Symbol)
	}
	client, err := c.clientFor(side.params.Symbol)
	if err != nil {
		return "", err
	}

	txHex := *side.pendingHex
	if txHex == "" {
		signed, err := BuildClaimTx(&ClaimTxParams{
			FundingTxID:  side.funding.TxID,
			FundingVout:  side.funding.Vout,
			RedeemScript: side.htlc.RedeemScript,
			Preimage:     rec.Preimage,
			PrivKeyWIF:   side.wif,
			DestAddress:  side.dest,
			InputValue:   side.funding.Amount,
			Fee:          side.fee,
			Chain:        side.params,
		})
		if err != nil {
			return "", err
		}
		txHex = signed.Hex
		*side.pendingHex = txHex
		c.persist(rec)
	}

	txid, err := client.BroadcastTransaction(ctx, txHex)
	if err != nil {
		if errors.Is(err, backend.ErrBroadcastRejected) {
			// The UTXO may already be spent - possibly by the
			// counterparty's claim. WatchForPreimage tells them apart.
			return "", fmt.Errorf("%w: %v", ErrProtocolViolation, err)
		}
		// Transient: the signed hex stays cached for retry.
		return "", err
	}

	if status, err := client.GetTransaction(ctx, txid); err == nil {
		c.log.Debug("claim accepted by node",
			"swap_id", rec.ID,
			"txid", txid,
			"confirmations", status.Confirmations,
		)
	}
	return txid, nil
}
