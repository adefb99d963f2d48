// Package swap - HTLC script building. The contract pays to a hash of the redeem script
// (legacy P2SH); the script itself releases funds either to the claim key
// with the hashlock preimage, or to the refund key after an absolute
// CHECKLOCKTIMEVERIFY expiry.
package swap

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/marswap-exchange/marswapd/internal/chain"
)

// HTLCParams are the inputs to BuildHTLC.
type HTLCParams struct {
	// Hash is the 32-byte SHA-256 hashlock.
	Hash []byte

	// Timelock is the absolute refund expiry in unix seconds.
	Timelock uint32

	// ClaimPubKey can spend the claim branch with the preimage.
	// Compressed (33 bytes) or uncompressed (65 bytes).
	ClaimPubKey []byte

	// RefundPubKey can spend the refund branch after Timelock.
	RefundPubKey []byte

	// Chain selects the network whose version bytes derive the address.
	Chain *chain.Params
}

// HTLC describes a built contract. Immutable once constructed.
type HTLC struct {
	RedeemScript  []byte
	Address       string
	ScriptPubKey  []byte // P2SH output script
	Hash          []byte
	Timelock      uint32
	ClaimKeyHash  []byte // HASH160 of claim pubkey
	RefundKeyHash []byte // HASH160 of refund pubkey
	Chain         *chain.Params
}

// maxCLTVValue is the largest locktime CHECKLOCKTIMEVERIFY accepts.
const maxCLTVValue = 1<<31 - 1

// BuildHTLC constructs the redeem script and derives the P2SH address.
//
// Redeem script layout:
//
//	OP_IF
//	    OP_SHA256 <hash> OP_EQUALVERIFY
//	    OP_DUP OP_HASH160 <hash160(claim_pubkey)> OP_EQUALVERIFY OP_CHECKSIG
//	OP_ELSE
//	    <timelock> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	    OP_DUP OP_HASH160 <hash160(refund_pubkey)> OP_EQUALVERIFY OP_CHECKSIG
//	OP_ENDIF
//
// The script is network-independent; only the derived address and output
// script depend on params.
func BuildHTLC(p *HTLCParams) (*HTLC, error) {
	if len(p.Hash) != 32 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrBadHash, len(p.Hash))
	}
	if err := checkPubKeyLen(p.ClaimPubKey); err != nil {
		return nil, fmt.Errorf("claim key: %w", err)
	}
	if err := checkPubKeyLen(p.RefundPubKey); err != nil {
		return nil, fmt.Errorf("refund key: %w", err)
	}
	// Zero encodes as an empty push, which CLTV rejects outright.
	if p.Timelock == 0 || p.Timelock > maxCLTVValue {
		return nil, fmt.Errorf("%w: got %d", ErrBadTimelock, p.Timelock)
	}
	if p.Chain == nil {
		return nil, fmt.Errorf("%w: no chain params", ErrUnsupportedChain)
	}

	claimKeyHash := btcutil.Hash160(p.ClaimPubKey)
	refundKeyHash := btcutil.Hash160(p.RefundPubKey)

	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(p.Hash)
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_DUP)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(claimKeyHash)
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_CHECKSIG)

	builder.AddOp(txscript.OP_ELSE)
	builder.AddInt64(int64(p.Timelock))
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddOp(txscript.OP_DUP)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(refundKeyHash)
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_CHECKSIG)

	builder.AddOp(txscript.OP_ENDIF)

	redeemScript, err := builder.Script()
	if err != nil {
		return nil, fmt.Errorf("failed to build redeem script: %w", err)
	}

	return htlcFromScript(redeemScript, p.Hash, p.Timelock, claimKeyHash, refundKeyHash, p.Chain)
}

// HTLCFromRedeemScript reconstructs a descriptor from stored script bytes,
// re-deriving the address for the given chain.
func HTLCFromRedeemScript(redeemScript []byte, params *chain.Params) (*HTLC, error) {
	details, err := ParseHTLCScript(redeemScript)
	if err != nil {
		return nil, err
	}
	return htlcFromScript(redeemScript, details.Hash, details.Timelock,
		details.ClaimKeyHash, details.RefundKeyHash, params)
}

func htlcFromScript(redeemScript, hash []byte, timelock uint32, claimKeyHash, refundKeyHash []byte, params *chain.Params) (*HTLC, error) {
	addr, err := btcutil.NewAddressScriptHash(redeemScript, params.ChaincfgParams())
	if err != nil {
		return nil, fmt.Errorf("failed to derive P2SH address: %w", err)
	}

	scriptPubKey, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to build output script: %w", err)
	}

	return &HTLC{
		RedeemScript:  redeemScript,
		Address:       addr.EncodeAddress(),
		ScriptPubKey:  scriptPubKey,
		Hash:          hash,
		Timelock:      timelock,
		ClaimKeyHash:  claimKeyHash,
		RefundKeyHash: refundKeyHash,
		Chain:         params,
	}, nil
}

// RedeemScriptHex returns the redeem script as a hex string.
func (h *HTLC) RedeemScriptHex() string {
	return hex.EncodeToString(h.RedeemScript)
}

// ScriptPubKeyHex returns the P2SH output script as a hex string.
func (h *HTLC) ScriptPubKeyHex() string {
	return hex.EncodeToString(h.ScriptPubKey)
}

// HTLCScriptDetails are the components recovered from a redeem script.
type HTLCScriptDetails struct {
	Hash          []byte
	ClaimKeyHash  []byte
	RefundKeyHash []byte
	Timelock      uint32
}

// ParseHTLCScript walks a redeem script and extracts its components,
// rejecting anything that deviates from the canonical layout.
func ParseHTLCScript(script []byte) (*HTLCScriptDetails, error) {
	tokenizer := txscript.MakeScriptTokenizer(0, script)

	expectOp := func(op byte, name string) error {
		if !tokenizer.Next() || tokenizer.Opcode() != op {
			return fmt.Errorf("%w: expected %s", ErrMalformedTransaction, name)
		}
		return nil
	}
	expectData := func(size int, name string) ([]byte, error) {
		if !tokenizer.Next() {
			return nil, fmt.Errorf("%w: expected %s", ErrMalformedTransaction, name)
		}
		data := tokenizer.Data()
		if len(data) != size {
			return nil, fmt.Errorf("%w: %s must be %d bytes, got %d",
				ErrMalformedTransaction, name, size, len(data))
		}
		return data, nil
	}

	if err := expectOp(txscript.OP_IF, "OP_IF"); err != nil {
		return nil, err
	}
	if err := expectOp(txscript.OP_SHA256, "OP_SHA256"); err != nil {
		return nil, err
	}
	hash, err := expectData(32, "hashlock")
	if err != nil {
		return nil, err
	}
	if err := expectOp(txscript.OP_EQUALVERIFY, "OP_EQUALVERIFY"); err != nil {
		return nil, err
	}
	if err := expectOp(txscript.OP_DUP, "OP_DUP"); err != nil {
		return nil, err
	}
	if err := expectOp(txscript.OP_HASH160, "OP_HASH160"); err != nil {
		return nil, err
	}
	claimKeyHash, err := expectData(20, "claim key hash")
	if err != nil {
		return nil, err
	}
	if err := expectOp(txscript.OP_EQUALVERIFY, "OP_EQUALVERIFY"); err != nil {
		return nil, err
	}
	if err := expectOp(txscript.OP_CHECKSIG, "OP_CHECKSIG"); err != nil {
		return nil, err
	}
	if err := expectOp(txscript.OP_ELSE, "OP_ELSE"); err != nil {
		return nil, err
	}

	if !tokenizer.Next() {
		return nil, fmt.Errorf("%w: expected timelock", ErrMalformedTransaction)
	}
	timelock, err := parseScriptTimelock(&tokenizer)
	if err != nil {
		return nil, err
	}

	if err := expectOp(txscript.OP_CHECKLOCKTIMEVERIFY, "OP_CHECKLOCKTIMEVERIFY"); err != nil {
		return nil, err
	}
	if err := expectOp(txscript.OP_DROP, "OP_DROP"); err != nil {
		return nil, err
	}
	if err := expectOp(txscript.OP_DUP, "OP_DUP"); err != nil {
		return nil, err
	}
	if err := expectOp(txscript.OP_HASH160, "OP_HASH160"); err != nil {
		return nil, err
	}
	refundKeyHash, err := expectData(20, "refund key hash")
	if err != nil {
		return nil, err
	}
	if err := expectOp(txscript.OP_EQUALVERIFY, "OP_EQUALVERIFY"); err != nil {
		return nil, err
	}
	if err := expectOp(txscript.OP_CHECKSIG, "OP_CHECKSIG"); err != nil {
		return nil, err
	}
	if err := expectOp(txscript.OP_ENDIF, "OP_ENDIF"); err != nil {
		return nil, err
	}
	if tokenizer.Next() {
		return nil, fmt.Errorf("%w: trailing script bytes", ErrMalformedTransaction)
	}
	if err := tokenizer.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}

	return &HTLCScriptDetails{
		Hash:          hash,
		ClaimKeyHash:  claimKeyHash,
		RefundKeyHash: refundKeyHash,
		Timelock:      timelock,
	}, nil
}

// parseScriptTimelock decodes the CLTV operand at the tokenizer's current
// position. Accepts small-int opcodes and minimally-encoded script numbers.
func parseScriptTimelock(tokenizer *txscript.ScriptTokenizer) (uint32, error) {
	op := tokenizer.Opcode()
	if txscript.IsSmallInt(op) {
		v := txscript.AsSmallInt(op)
		if v == 0 {
			return 0, fmt.Errorf("%w: zero timelock", ErrBadTimelock)
		}
		return uint32(v), nil
	}

	data := tokenizer.Data()
	if len(data) == 0 || len(data) > 5 {
		return 0, fmt.Errorf("%w: bad timelock push length %d", ErrMalformedTransaction, len(data))
	}
	// Script numbers are little-endian with the sign bit on the top byte.
	if data[len(data)-1]&0x80 != 0 {
		return 0, fmt.Errorf("%w: negative timelock", ErrBadTimelock)
	}
	var v int64
	for i, b := range data {
		v |= int64(b) << (8 * uint(i))
	}
	if v == 0 || v > maxCLTVValue {
		return 0, fmt.Errorf("%w: got %d", ErrBadTimelock, v)
	}
	return uint32(v), nil
}

func checkPubKeyLen(pubKey []byte) error {
	if len(pubKey) != 33 && len(pubKey) != 65 {
		return fmt.Errorf("%w: got %d bytes", ErrBadPublicKey, len(pubKey))
	}
	return nil
}
