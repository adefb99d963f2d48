package swap

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/marswap-exchange/marswapd/internal/chain"
)

func testRecord(t *testing.T) *Record {
	t.Helper()

	primary := newTestContract(t, chain.MustGet("BTC", chain.Regtest), 1700007200)
	alt := newTestContract(t, chain.MustGet("MARS", chain.Testnet), 1700003600)

	// Both contracts must share one hashlock.
	preimage := primary.preimage
	altHTLC, err := BuildHTLC(&HTLCParams{
		Hash:         HashPreimage(preimage),
		Timelock:     1700003600,
		ClaimPubKey:  bytes.Repeat([]byte{0x02}, 33),
		RefundPubKey: bytes.Repeat([]byte{0x03}, 33),
		Chain:        alt.htlc.Chain,
	})
	if err != nil {
		t.Fatal(err)
	}

	return &Record{
		ID:       strings.Repeat("ab", 16),
		Preimage: append([]byte(nil), preimage...),
		Hash:     HashPreimage(preimage),
		Addresses: PartyAddresses{
			InitiatorPrimary:   "addr-ip",
			InitiatorAlt:       "addr-ia",
			ParticipantPrimary: "addr-pp",
			ParticipantAlt:     "addr-pa",
		},
		PrimaryHTLC:    primary.htlc,
		AltHTLC:        altHTLC,
		PrimaryAmount:  100_000,
		AltAmount:      10_000_000,
		PrimaryTimeout: 1700007200,
		AltTimeout:     1700003600,
		Status:         StatusInitialized,
		CreatedAt:      1700000000,
	}
}

func TestRecordTransitions(t *testing.T) {
	rec := testRecord(t)

	// Completed is unreachable from Initialized.
	rec.ClaimTx.Primary = "aa"
	if err := rec.MarkCompleted(1700000100); !errors.Is(err, ErrInvalidState) {
		t.Errorf("MarkCompleted from initialized: error = %v, want %v", err, ErrInvalidState)
	}
	rec.ClaimTx.Primary = ""

	if err := rec.MarkFunded(Outpoint{TxID: "f1", Amount: 100_000}, Outpoint{TxID: "f2", Amount: 10_000_000}); err != nil {
		t.Fatalf("MarkFunded() failed: %v", err)
	}
	if rec.Status != StatusFunded {
		t.Fatalf("status = %s, want funded", rec.Status)
	}

	// Idempotent.
	if err := rec.MarkFunded(Outpoint{}, Outpoint{}); err != nil {
		t.Errorf("repeated MarkFunded() failed: %v", err)
	}
	if rec.PrimaryFunding.TxID != "f1" {
		t.Error("repeated MarkFunded overwrote funding outpoint")
	}

	// Completed requires the primary claim txid.
	if err := rec.MarkCompleted(1700000200); !errors.Is(err, ErrInvalidState) {
		t.Errorf("MarkCompleted without claim: error = %v, want %v", err, ErrInvalidState)
	}
	rec.ClaimTx.Primary = "c1"
	if err := rec.MarkCompleted(1700000200); err != nil {
		t.Fatalf("MarkCompleted() failed: %v", err)
	}
	if rec.CompletedAt != 1700000200 {
		t.Errorf("completed_at = %d, want 1700000200", rec.CompletedAt)
	}

	// Terminal: no further transitions.
	if err := rec.MarkFailed("oops"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("MarkFailed from completed: error = %v, want %v", err, ErrInvalidState)
	}
}

func TestRecordFailedFromAnyActiveState(t *testing.T) {
	rec := testRecord(t)
	if err := rec.MarkFailed("user abort"); err != nil {
		t.Fatalf("MarkFailed from initialized: %v", err)
	}
	if rec.Status != StatusFailed || rec.FailureReason != "user abort" {
		t.Errorf("status/reason = %s/%q", rec.Status, rec.FailureReason)
	}

	rec = testRecord(t)
	if err := rec.MarkFunded(Outpoint{TxID: "f1"}, Outpoint{TxID: "f2"}); err != nil {
		t.Fatal(err)
	}
	if err := rec.MarkFailed("node gone"); err != nil {
		t.Fatalf("MarkFailed from funded: %v", err)
	}
}

func TestRecordRefundScrubsPreimage(t *testing.T) {
	rec := testRecord(t)
	if err := rec.MarkFunded(Outpoint{TxID: "f1"}, Outpoint{TxID: "f2"}); err != nil {
		t.Fatal(err)
	}

	if err := rec.MarkRefunded(1700003700); !errors.Is(err, ErrInvalidState) {
		t.Errorf("MarkRefunded without broadcast: error = %v, want %v", err, ErrInvalidState)
	}

	rec.RefundTx.Alt = "r1"
	if err := rec.MarkRefunded(1700003700); err != nil {
		t.Fatalf("MarkRefunded() failed: %v", err)
	}
	if rec.Preimage != nil {
		t.Error("preimage survived a claim-free refund")
	}
	if rec.Serialize().Preimage != "" {
		t.Error("serialized record leaks a scrubbed preimage")
	}
}

func TestRecordSerializeRoundTrip(t *testing.T) {
	rec := testRecord(t)
	if err := rec.MarkFunded(
		Outpoint{TxID: "f1", Vout: 0, Amount: 100_000},
		Outpoint{TxID: "f2", Vout: 1, Amount: 10_000_000},
	); err != nil {
		t.Fatal(err)
	}

	data, err := MarshalRecord(rec)
	if err != nil {
		t.Fatal(err)
	}
	restored, err := ParseRecord(data)
	if err != nil {
		t.Fatalf("ParseRecord() failed: %v", err)
	}

	if restored.ID != rec.ID {
		t.Errorf("id = %s, want %s", restored.ID, rec.ID)
	}
	if !bytes.Equal(restored.Preimage, rec.Preimage) {
		t.Error("preimage did not round-trip")
	}
	if !bytes.Equal(restored.Hash, rec.Hash) {
		t.Error("hash did not round-trip")
	}
	if restored.Status != StatusFunded {
		t.Errorf("status = %s, want funded", restored.Status)
	}
	if restored.PrimaryHTLC.Address != rec.PrimaryHTLC.Address {
		t.Error("primary address did not round-trip")
	}
	if !bytes.Equal(restored.AltHTLC.RedeemScript, rec.AltHTLC.RedeemScript) {
		t.Error("alt redeem script did not round-trip")
	}
	if restored.PrimaryTimeout != rec.PrimaryTimeout || restored.AltTimeout != rec.AltTimeout {
		t.Error("timeouts did not round-trip")
	}
	if restored.PrimaryFunding == nil || restored.PrimaryFunding.Amount != 100_000 {
		t.Error("primary funding did not round-trip")
	}
	if restored.AltFunding == nil || restored.AltFunding.Vout != 1 {
		t.Error("alt funding did not round-trip")
	}
}

func TestParseRecordRejectsBadData(t *testing.T) {
	rec := testRecord(t)
	good, err := MarshalRecord(rec)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(s string) string
	}{
		{
			// Legacy records stored millisecond timestamps; seconds
			// past year 3000 are assumed to be that bug.
			name: "millisecond timeouts",
			mutate: func(s string) string {
				return strings.Replace(s, `"primary":1700007200`, `"primary":1700007200000`, 1)
			},
		},
		{
			name: "preimage hash mismatch",
			mutate: func(s string) string {
				return strings.Replace(s, rec.Serialize().Preimage[:8], "00000000", 1)
			},
		},
		{
			name:   "not json",
			mutate: func(s string) string { return "{" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRecord([]byte(tt.mutate(string(good)))); err == nil {
				t.Error("expected error for corrupted record")
			}
		})
	}
}
