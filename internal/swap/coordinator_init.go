// Package swap - swap initiation: secret generation, timelock policy, and contract
// construction for both chains. Pure with respect to the chain clients.
package swap

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marswap-exchange/marswapd/pkg/helpers"
)

// InitParams are the inputs to InitiateSwap.
//
// Key roles follow the protocol: the initiator claims the primary chain and
// refunds the alt chain; the participant claims alt and refunds primary.
type InitParams struct {
	InitiatorPrimaryPubKey   []byte // claim key of the primary contract
	InitiatorAltPubKey       []byte // refund key of the alt contract
	ParticipantPrimaryPubKey []byte // refund key of the primary contract
	ParticipantAltPubKey     []byte // claim key of the alt contract

	// Payout addresses for claims and refunds on both chains.
	Addresses PartyAddresses

	// Amounts in minor units.
	PrimaryAmount uint64
	AltAmount     uint64

	// Duration is the nominal swap duration D in seconds. The alt contract
	// expires at created+D, the primary contract at created+2D.
	Duration uint32

	// Now overrides the creation timestamp; zero means wall clock.
	Now uint64
}

// InitiateSwap draws the hashlock, computes the asymmetric timelocks, and
// builds both contracts. The returned record is at StatusInitialized and is
// tracked by the coordinator. No network calls are made.
func (c *Coordinator) InitiateSwap(p *InitParams) (*Record, error) {
	if p.PrimaryAmount == 0 || p.AltAmount == 0 {
		return nil, fmt.Errorf("%w: amounts must be positive", ErrBadAmount)
	}
	if p.Duration == 0 {
		return nil, fmt.Errorf("%w: zero duration", ErrBadTimelock)
	}

	now := p.Now
	if now == 0 {
		now = uint64(time.Now().Unix())
	}

	altTimeout := now + uint64(p.Duration)
	primaryTimeout := now + 2*uint64(p.Duration)
	if primaryTimeout > maxCLTVValue {
		return nil, fmt.Errorf("%w: expiry %d exceeds CLTV range", ErrBadTimelock, primaryTimeout)
	}
	if err := checkTimelockPolicy(now, primaryTimeout, altTimeout); err != nil {
		return nil, err
	}

	preimage, hash, err := GenerateHashLock()
	if err != nil {
		return nil, err
	}

	primaryHTLC, err := BuildHTLC(&HTLCParams{
		Hash:         hash,
		Timelock:     uint32(primaryTimeout),
		ClaimPubKey:  p.InitiatorPrimaryPubKey,
		RefundPubKey: p.ParticipantPrimaryPubKey,
		Chain:        c.primary,
	})
	if err != nil {
		return nil, fmt.Errorf("primary contract: %w", err)
	}

	altHTLC, err := BuildHTLC(&HTLCParams{
		Hash:         hash,
		Timelock:     uint32(altTimeout),
		ClaimPubKey:  p.ParticipantAltPubKey,
		RefundPubKey: p.InitiatorAltPubKey,
		Chain:        c.alt,
	})
	if err != nil {
		return nil, fmt.Errorf("alt contract: %w", err)
	}

	id := uuid.New()
	rec := &Record{
		ID:             hex.EncodeToString(id[:]),
		Preimage:       preimage,
		Hash:           hash,
		Addresses:      p.Addresses,
		PrimaryHTLC:    primaryHTLC,
		AltHTLC:        altHTLC,
		PrimaryAmount:  p.PrimaryAmount,
		AltAmount:      p.AltAmount,
		PrimaryTimeout: uint32(primaryTimeout),
		AltTimeout:     uint32(altTimeout),
		Status:         StatusInitialized,
		CreatedAt:      now,
	}

	c.Track(rec)
	c.persist(rec)

	c.log.Info("swap initiated",
		"swap_id", rec.ID,
		"primary_address", primaryHTLC.Address,
		"primary_amount", helpers.FormatAmount(rec.PrimaryAmount, c.primary.Decimals),
		"alt_address", altHTLC.Address,
		"alt_amount", helpers.FormatAmount(rec.AltAmount, c.alt.Decimals),
		"primary_expiry", rec.PrimaryTimeout,
		"alt_expiry", rec.AltTimeout,
	)
	return rec, nil
}

// checkTimelockPolicy enforces the atomicity invariant: the primary expiry
// must trail the alt expiry by at least the alt contract's own nominal
// duration. Equal timelocks would let the counterparty race the refund
// window, so they are rejected outright.
func checkTimelockPolicy(created, primaryTimeout, altTimeout uint64) error {
	if altTimeout <= created {
		return fmt.Errorf("%w: alt expiry before creation", ErrBadTimelock)
	}
	margin := altTimeout - created
	if primaryTimeout < altTimeout+margin {
		return fmt.Errorf("%w: primary expiry %d too close to alt expiry %d",
			ErrBadTimelock, primaryTimeout, altTimeout)
	}
	return nil
}
