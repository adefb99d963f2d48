// Package swap - preimage observation: recovering the hashlock secret from the
// counterparty's claim on the primary chain.
package swap

import (
	"context"
	"errors"
	"fmt"

	"github.com/marswap-exchange/marswapd/internal/backend"
)

// WatchForPreimage checks primary-chain activity at the contract address
// and extracts the preimage from a spending claim if one exists. Idempotent:
// once the preimage is known it is returned without any network call.
//
// Returns (nil, nil) when the contract is unspent or was spent by a refund.
func (c *Coordinator) WatchForPreimage(ctx context.Context, rec *Record) ([]byte, error) {
	unlock := c.lockSwap(rec.ID)
	defer unlock()

	if len(rec.Preimage) == PreimageSize {
		out := make([]byte, PreimageSize)
		copy(out, rec.Preimage)
		return out, nil
	}

	client, err := c.clientFor(c.primary.Symbol)
	if err != nil {
		return nil, err
	}

	spendBytes, err := c.findPrimarySpend(ctx, rec, client)
	if err != nil {
		return nil, err
	}
	if spendBytes == nil {
		return nil, nil
	}

	preimage, err := ExtractPreimage(spendBytes, rec.Hash)
	if err != nil {
		return nil, err
	}
	if preimage == nil {
		// The spend was a refund: no secret was revealed.
		return nil, nil
	}

	rec.Preimage = preimage
	c.persist(rec)
	c.log.Info("preimage recovered from primary claim", "swap_id", rec.ID)

	out := make([]byte, PreimageSize)
	copy(out, preimage)
	return out, nil
}

// findPrimarySpend returns the raw transaction spending the primary funding
// output, or nil while it is unspent.
func (c *Coordinator) findPrimarySpend(ctx context.Context, rec *Record, client backend.Client) ([]byte, error) {
	// A claim txid this coordinator broadcast itself is authoritative.
	if rec.ClaimTx.Primary != "" {
		return client.GetRawTransaction(ctx, rec.ClaimTx.Primary)
	}

	if rec.PrimaryFunding == nil {
		return nil, fmt.Errorf("%w: no primary funding recorded", ErrInvalidState)
	}

	finder, ok := client.(backend.SpendFinder)
	if !ok {
		return nil, fmt.Errorf("%w: primary client cannot locate spends", backend.ErrNotSupported)
	}
	raw, err := finder.FindSpendingTransaction(ctx, rec.PrimaryHTLC.Address,
		rec.PrimaryFunding.TxID, rec.PrimaryFunding.Vout)
	if err != nil {
		if errors.Is(err, backend.ErrNotSupported) {
			return nil, fmt.Errorf("%w: primary node lacks an address index", backend.ErrNotSupported)
		}
		return nil, err
	}
	return raw, nil
}
