// Package swap - refund execution: the Funded -> Refunded transition after timelock expiry.
package swap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marswap-exchange/marswapd/internal/backend"
	"github.com/marswap-exchange/marswapd/internal/chain"
)

// HandleTimeout refunds whichever chain's timelock has expired and for
// which a refund key is supplied. The alt contract expires first, so a
// well-behaved initiator refunds alt without waiting for primary expiry.
//
// Eligibility is judged against the chain's own clock (median-time-past),
// not the local wall clock: a refund the chain would reject is never
// broadcast from here.
func (c *Coordinator) HandleTimeout(ctx context.Context, rec *Record, keys RefundKeys, fees Fees) (*RefundReport, error) {
	unlock := c.lockSwap(rec.ID)
	defer unlock()

	switch rec.Status {
	case StatusFunded:
	case StatusRefunded:
		// Allowed: the second side refunds after its later expiry.
	default:
		return nil, fmt.Errorf("%w: refund on %s swap", ErrInvalidState, rec.Status)
	}
	if keys.PrimaryWIF == "" && keys.AltWIF == "" {
		return nil, fmt.Errorf("%w: no refund keys supplied", ErrBadKey)
	}

	report := &RefundReport{
		PrimaryTxID: rec.RefundTx.Primary,
		AltTxID:     rec.RefundTx.Alt,
		Refunded:    rec.Status == StatusRefunded,
	}

	if keys.AltWIF != "" && rec.RefundTx.Alt == "" {
		txid, eligible, err := c.refundChain(ctx, rec, refundSide{
			params:     c.alt,
			funding:    rec.AltFunding,
			htlc:       rec.AltHTLC,
			wif:        keys.AltWIF,
			dest:       rec.Addresses.InitiatorAlt,
			fee:        fees.Alt,
			timeout:    rec.AltTimeout,
			pendingHex: &rec.PendingRefundHex.Alt,
		})
		if err != nil {
			return report, err
		}
		report.AltEligible = eligible
		if txid != "" {
			rec.RefundTx.Alt = txid
			report.AltTxID = txid
			if rec.Status != StatusRefunded {
				if err := rec.MarkRefunded(uint64(time.Now().Unix())); err != nil {
					return report, err
				}
				report.Refunded = true
			}
			c.persist(rec)
			c.log.Info("alt refund broadcast", "swap_id", rec.ID, "txid", txid)
		}
	}

	if keys.PrimaryWIF != "" && rec.RefundTx.Primary == "" {
		txid, eligible, err := c.refundChain(ctx, rec, refundSide{
			params:     c.primary,
			funding:    rec.PrimaryFunding,
			htlc:       rec.PrimaryHTLC,
			wif:        keys.PrimaryWIF,
			dest:       rec.Addresses.ParticipantPrimary,
			fee:        fees.Primary,
			timeout:    rec.PrimaryTimeout,
			pendingHex: &rec.PendingRefundHex.Primary,
		})
		if err != nil {
			return report, err
		}
		report.PrimaryEligible = eligible
		if txid != "" {
			rec.RefundTx.Primary = txid
			report.PrimaryTxID = txid
			if rec.Status != StatusRefunded {
				if err := rec.MarkRefunded(uint64(time.Now().Unix())); err != nil {
					return report, err
				}
				report.Refunded = true
			}
			c.persist(rec)
			c.log.Info("primary refund broadcast", "swap_id", rec.ID, "txid", txid)
		}
	}

	return report, nil
}

// refundSide bundles the chain-dependent inputs of one refund.
type refundSide struct {
	params     *chain.Params
	funding    *Outpoint
	htlc       *HTLC
	wif        string
	dest       string
	fee        uint64
	timeout    uint32
	pendingHex *string
}

// refundChain checks expiry, then signs (or reuses) and broadcasts one
// refund. Returns an empty txid with eligible=false when the timelock has
// not yet passed.
func (c *Coordinator) refundChain(ctx context.Context, rec *Record, side refundSide) (txid string, eligible bool, err error) {
	if side.funding == nil {
		return "", false, fmt.Errorf("%w: no funding recorded for %s", ErrInvalidState, side.params.Symbol)
	}
	client, err := c.clientFor(side.params.Symbol)
	if err != nil {
		return "", false, err
	}

	now, err := client.CurrentTime(ctx)
	if err != nil {
		return "", false, err
	}
	if now <= uint64(side.timeout) {
		c.log.Debug("refund not yet eligible",
			"swap_id", rec.ID,
			"chain", side.params.Symbol,
			"expiry", side.timeout,
			"chain_time", now,
		)
		return "", false, nil
	}

	txHex := *side.pendingHex
	if txHex == "" {
		signed, err := BuildRefundTx(&RefundTxParams{
			FundingTxID:  side.funding.TxID,
			FundingVout:  side.funding.Vout,
			RedeemScript: side.htlc.RedeemScript,
			PrivKeyWIF:   side.wif,
			DestAddress:  side.dest,
			InputValue:   side.funding.Amount,
			Fee:          side.fee,
			Locktime:     side.timeout,
			Chain:        side.params,
		})
		if err != nil {
			return "", true, err
		}
		txHex = signed.Hex
		*side.pendingHex = txHex
		c.persist(rec)
	}

	id, err := client.BroadcastTransaction(ctx, txHex)
	if err != nil {
		if errors.Is(err, backend.ErrBroadcastRejected) {
			return "", true, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
		}
		return "", true, err
	}

	if status, err := client.GetTransaction(ctx, id); err == nil {
		c.log.Debug("refund accepted by node",
			"swap_id", rec.ID,
			"txid", id,
			"confirmations", status.Confirmations,
		)
	}
	return id, true, nil
}
