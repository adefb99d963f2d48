package swap

import (
	"bytes"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/marswap-exchange/marswapd/internal/chain"
)

func testPubKeys(t *testing.T) (claim, refund []byte) {
	t.Helper()
	k1, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	k2, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	return k1.PubKey().SerializeCompressed(), k2.PubKey().SerializeCompressed()
}

func TestBuildHTLC(t *testing.T) {
	claimPub, refundPub := testPubKeys(t)
	hash := make([]byte, 32)
	hash[0] = 0xAA
	params := chain.MustGet("BTC", chain.Regtest)

	tests := []struct {
		name    string
		p       HTLCParams
		wantErr error
	}{
		{
			name: "valid",
			p:    HTLCParams{Hash: hash, Timelock: 1700003600, ClaimPubKey: claimPub, RefundPubKey: refundPub, Chain: params},
		},
		{
			name:    "short hash",
			p:       HTLCParams{Hash: hash[:31], Timelock: 1700003600, ClaimPubKey: claimPub, RefundPubKey: refundPub, Chain: params},
			wantErr: ErrBadHash,
		},
		{
			name:    "bad claim key length",
			p:       HTLCParams{Hash: hash, Timelock: 1700003600, ClaimPubKey: claimPub[:20], RefundPubKey: refundPub, Chain: params},
			wantErr: ErrBadPublicKey,
		},
		{
			name:    "bad refund key length",
			p:       HTLCParams{Hash: hash, Timelock: 1700003600, ClaimPubKey: claimPub, RefundPubKey: append(refundPub, 0x00), Chain: params},
			wantErr: ErrBadPublicKey,
		},
		{
			name:    "zero timelock",
			p:       HTLCParams{Hash: hash, Timelock: 0, ClaimPubKey: claimPub, RefundPubKey: refundPub, Chain: params},
			wantErr: ErrBadTimelock,
		},
		{
			name:    "timelock beyond CLTV range",
			p:       HTLCParams{Hash: hash, Timelock: 1 << 31, ClaimPubKey: claimPub, RefundPubKey: refundPub, Chain: params},
			wantErr: ErrBadTimelock,
		},
		{
			name:    "no chain params",
			p:       HTLCParams{Hash: hash, Timelock: 1700003600, ClaimPubKey: claimPub, RefundPubKey: refundPub},
			wantErr: ErrUnsupportedChain,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			htlc, err := BuildHTLC(&tt.p)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("BuildHTLC() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("BuildHTLC() failed: %v", err)
			}
			if len(htlc.RedeemScript) == 0 {
				t.Error("empty redeem script")
			}
			if htlc.Address == "" {
				t.Error("empty address")
			}
			if htlc.Timelock != tt.p.Timelock {
				t.Errorf("timelock = %d, want %d", htlc.Timelock, tt.p.Timelock)
			}
		})
	}
}

func TestBuildHTLCTimelockBoundary(t *testing.T) {
	claimPub, refundPub := testPubKeys(t)
	hash := make([]byte, 32)
	params := chain.MustGet("BTC", chain.Regtest)

	htlc, err := BuildHTLC(&HTLCParams{
		Hash: hash, Timelock: maxCLTVValue,
		ClaimPubKey: claimPub, RefundPubKey: refundPub, Chain: params,
	})
	if err != nil {
		t.Fatalf("max CLTV timelock rejected: %v", err)
	}
	details, err := ParseHTLCScript(htlc.RedeemScript)
	if err != nil {
		t.Fatal(err)
	}
	if details.Timelock != maxCLTVValue {
		t.Errorf("round-tripped timelock = %d, want %d", details.Timelock, uint32(maxCLTVValue))
	}
}

func TestParseHTLCScriptRoundTrip(t *testing.T) {
	claimPub, refundPub := testPubKeys(t)
	hash := HashPreimage(make([]byte, 32))
	params := chain.MustGet("BTC", chain.Testnet)

	htlc, err := BuildHTLC(&HTLCParams{
		Hash: hash, Timelock: 1700007200,
		ClaimPubKey: claimPub, RefundPubKey: refundPub, Chain: params,
	})
	if err != nil {
		t.Fatal(err)
	}

	details, err := ParseHTLCScript(htlc.RedeemScript)
	if err != nil {
		t.Fatalf("ParseHTLCScript() failed: %v", err)
	}
	if !bytes.Equal(details.Hash, hash) {
		t.Errorf("hash mismatch: got %x", details.Hash)
	}
	if !bytes.Equal(details.ClaimKeyHash, btcutil.Hash160(claimPub)) {
		t.Error("claim key hash mismatch")
	}
	if !bytes.Equal(details.RefundKeyHash, btcutil.Hash160(refundPub)) {
		t.Error("refund key hash mismatch")
	}
	if details.Timelock != 1700007200 {
		t.Errorf("timelock = %d, want 1700007200", details.Timelock)
	}
}

func TestParseHTLCScriptRejectsForeignScripts(t *testing.T) {
	tests := []struct {
		name   string
		script []byte
	}{
		{"empty", nil},
		{"p2pkh", append([]byte{0x76, 0xa9, 0x14}, make([]byte, 22)...)},
		{"truncated", []byte{0x63, 0xa8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseHTLCScript(tt.script); err == nil {
				t.Error("expected error for non-HTLC script")
			}
		})
	}
}

// TestRedeemScriptDeterminism pins the exact byte layout of the contract.
// The expected script is assembled by hand, opcode by opcode, so a change
// in the builder's encoding cannot slip through.
func TestRedeemScriptDeterminism(t *testing.T) {
	hash := make([]byte, 32) // all zeros
	claimPub := bytes.Repeat([]byte{0x02}, 33)
	refundPub := bytes.Repeat([]byte{0x03}, 33)
	params := chain.MustGet("BTC", chain.Mainnet)

	htlc, err := BuildHTLC(&HTLCParams{
		Hash: hash, Timelock: 500000,
		ClaimPubKey: claimPub, RefundPubKey: refundPub, Chain: params,
	})
	if err != nil {
		t.Fatal(err)
	}

	var expected []byte
	expected = append(expected, 0x63)       // OP_IF
	expected = append(expected, 0xa8)       // OP_SHA256
	expected = append(expected, 0x20)       // push 32
	expected = append(expected, hash...)
	expected = append(expected, 0x88)       // OP_EQUALVERIFY
	expected = append(expected, 0x76, 0xa9) // OP_DUP OP_HASH160
	expected = append(expected, 0x14)       // push 20
	expected = append(expected, btcutil.Hash160(claimPub)...)
	expected = append(expected, 0x88, 0xac) // OP_EQUALVERIFY OP_CHECKSIG
	expected = append(expected, 0x67)       // OP_ELSE
	// 500000 = 0x07a120, minimal little-endian script number
	expected = append(expected, 0x03, 0x20, 0xa1, 0x07)
	expected = append(expected, 0xb1, 0x75) // OP_CHECKLOCKTIMEVERIFY OP_DROP
	expected = append(expected, 0x76, 0xa9, 0x14)
	expected = append(expected, btcutil.Hash160(refundPub)...)
	expected = append(expected, 0x88, 0xac)
	expected = append(expected, 0x68) // OP_ENDIF

	if !bytes.Equal(htlc.RedeemScript, expected) {
		t.Errorf("redeem script mismatch:\n got %x\nwant %x", htlc.RedeemScript, expected)
	}

	// Building again must reproduce the identical bytes.
	again, err := BuildHTLC(&HTLCParams{
		Hash: hash, Timelock: 500000,
		ClaimPubKey: claimPub, RefundPubKey: refundPub, Chain: params,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(htlc.RedeemScript, again.RedeemScript) {
		t.Error("redeem script is not deterministic")
	}
}

// TestAddressDerivation checks address = Base58Check(version || HASH160(script))
// against an independent base58check computation.
func TestAddressDerivation(t *testing.T) {
	claimPub, refundPub := testPubKeys(t)
	hash := HashPreimage(bytes.Repeat([]byte{0x07}, 32))

	for _, tc := range []struct {
		symbol  string
		network chain.Network
	}{
		{"BTC", chain.Mainnet},
		{"BTC", chain.Testnet},
		{"BTC", chain.Regtest},
		{"MARS", chain.Mainnet},
		{"MARS", chain.Testnet},
	} {
		t.Run(tc.symbol+"/"+string(tc.network), func(t *testing.T) {
			params := chain.MustGet(tc.symbol, tc.network)
			htlc, err := BuildHTLC(&HTLCParams{
				Hash: hash, Timelock: 1700000000,
				ClaimPubKey: claimPub, RefundPubKey: refundPub, Chain: params,
			})
			if err != nil {
				t.Fatal(err)
			}

			want := base58.CheckEncode(btcutil.Hash160(htlc.RedeemScript), params.ScriptHashAddrID)
			if htlc.Address != want {
				t.Errorf("address = %s, want %s", htlc.Address, want)
			}

			// scriptPubKey: OP_HASH160 <20-byte hash> OP_EQUAL
			wantScript := append([]byte{0xa9, 0x14}, btcutil.Hash160(htlc.RedeemScript)...)
			wantScript = append(wantScript, 0x87)
			if !bytes.Equal(htlc.ScriptPubKey, wantScript) {
				t.Errorf("scriptPubKey = %x, want %x", htlc.ScriptPubKey, wantScript)
			}
		})
	}
}

func TestHTLCFromRedeemScript(t *testing.T) {
	claimPub, refundPub := testPubKeys(t)
	hash := HashPreimage(bytes.Repeat([]byte{0x01}, 32))
	params := chain.MustGet("MARS", chain.Testnet)

	built, err := BuildHTLC(&HTLCParams{
		Hash: hash, Timelock: 1700003600,
		ClaimPubKey: claimPub, RefundPubKey: refundPub, Chain: params,
	})
	if err != nil {
		t.Fatal(err)
	}

	restored, err := HTLCFromRedeemScript(built.RedeemScript, params)
	if err != nil {
		t.Fatalf("HTLCFromRedeemScript() failed: %v", err)
	}
	if restored.Address != built.Address {
		t.Errorf("address = %s, want %s", restored.Address, built.Address)
	}
	if !bytes.Equal(restored.ScriptPubKey, built.ScriptPubKey) {
		t.Error("scriptPubKey mismatch")
	}
	if restored.Timelock != built.Timelock {
		t.Errorf("timelock = %d, want %d", restored.Timelock, built.Timelock)
	}
}
