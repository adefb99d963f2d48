// Package swap - funding verification: the Initialized -> Funded transition.
package swap

import (
	"context"
	"fmt"

	"github.com/marswap-exchange/marswapd/internal/backend"
	"github.com/marswap-exchange/marswapd/internal/chain"
)

// VerifyFunding queries both chains for contract funding and transitions
// the record to Funded iff both sides hold a sufficiently large output with
// the required confirmations simultaneously.
//
// Idempotent and monotonic: repeated calls only ever advance
// Initialized -> Funded. Chain errors leave the record untouched.
func (c *Coordinator) VerifyFunding(ctx context.Context, rec *Record) (*FundingReport, error) {
	unlock := c.lockSwap(rec.ID)
	defer unlock()

	switch rec.Status {
	case StatusInitialized, StatusFunded:
	default:
		return nil, fmt.Errorf("%w: verify funding on %s swap", ErrInvalidState, rec.Status)
	}

	report := &FundingReport{}

	// Already funded: report from the record, never regress.
	if rec.Status == StatusFunded {
		report.Primary = fundingFromOutpoint(rec.PrimaryFunding, c.primary)
		report.Alt = fundingFromOutpoint(rec.AltFunding, c.alt)
		report.BothFunded = true
		return report, nil
	}

	primaryStatus, err := c.checkChainFunding(ctx, c.primary, rec.PrimaryHTLC.Address, rec.PrimaryAmount)
	if err != nil {
		return nil, err
	}
	altStatus, err := c.checkChainFunding(ctx, c.alt, rec.AltHTLC.Address, rec.AltAmount)
	if err != nil {
		return nil, err
	}

	report.Primary = primaryStatus
	report.Alt = altStatus
	report.BothFunded = primaryStatus.Funded && altStatus.Funded

	if report.BothFunded {
		err := rec.MarkFunded(
			Outpoint{TxID: primaryStatus.TxID, Vout: primaryStatus.Vout, Amount: primaryStatus.Amount},
			Outpoint{TxID: altStatus.TxID, Vout: altStatus.Vout, Amount: altStatus.Amount},
		)
		if err != nil {
			return nil, err
		}
		c.persist(rec)
		c.log.Info("swap funded on both chains",
			"swap_id", rec.ID,
			"primary_txid", primaryStatus.TxID,
			"alt_txid", altStatus.TxID,
		)
	}
	return report, nil
}

// checkChainFunding looks for a qualifying UTXO at the contract address.
func (c *Coordinator) checkChainFunding(ctx context.Context, params *chain.Params, address string, required uint64) (ChainFunding, error) {
	status := ChainFunding{Required: params.Confirmations}

	client, err := c.clientFor(params.Symbol)
	if err != nil {
		return status, err
	}

	utxos, err := client.GetAddressUTXOs(ctx, address)
	if err != nil {
		return status, err
	}

	// Track the best candidate so the report shows progress even before
	// the confirmation requirement is met.
	var best *backend.UTXO
	for i := range utxos {
		u := &utxos[i]
		if u.Amount < required {
			continue
		}
		if best == nil || u.Confirmations > best.Confirmations {
			best = u
		}
	}
	if best == nil {
		return status, nil
	}

	status.TxID = best.TxID
	status.Vout = best.Vout
	status.Amount = best.Amount
	status.Confirmations = best.Confirmations
	status.Funded = best.Confirmations >= int64(params.Confirmations)
	return status, nil
}

func fundingFromOutpoint(op *Outpoint, params *chain.Params) ChainFunding {
	status := ChainFunding{Required: params.Confirmations}
	if op == nil {
		return status
	}
	status.Funded = true
	status.TxID = op.TxID
	status.Vout = op.Vout
	status.Amount = op.Amount
	status.Confirmations = int64(params.Confirmations)
	return status
}
