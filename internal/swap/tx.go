// Package swap - spending transaction construction for HTLC outputs. Both paths produce a
// fully signed legacy transaction: one input consuming the contract UTXO,
// one P2PKH output paying value minus fee.
package swap

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/marswap-exchange/marswapd/internal/chain"
)

// refundSequence enables nLockTime: any value below the max sequence does.
const refundSequence = wire.MaxTxInSequenceNum - 1

// SignedTx is a serialized, signed transaction ready for broadcast.
type SignedTx struct {
	Hex  string // legacy wire serialization
	TxID string // display (big-endian) txid
}

// ClaimTxParams are the inputs for building a claim transaction.
type ClaimTxParams struct {
	FundingTxID  string // display order hex
	FundingVout  uint32
	RedeemScript []byte
	Preimage     []byte
	PrivKeyWIF   string // claim key
	DestAddress  string // P2PKH payout address
	InputValue   uint64 // minor units held by the contract output
	Fee          uint64 // minor units
	Chain        *chain.Params
}

// BuildClaimTx builds and signs the transaction that sweeps an HTLC output
// by revealing the preimage.
//
// scriptSig: <sig> <pubkey> <preimage> OP_TRUE <redeem_script>
func BuildClaimTx(p *ClaimTxParams) (*SignedTx, error) {
	details, err := ParseHTLCScript(p.RedeemScript)
	if err != nil {
		return nil, err
	}
	if len(p.Preimage) != PreimageSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrBadPreimage, len(p.Preimage))
	}
	if !VerifyPreimage(p.Preimage, details.Hash) {
		return nil, fmt.Errorf("%w: preimage does not match contract hashlock", ErrBadPreimage)
	}

	wif, pubKey, err := decodeSigningKey(p.PrivKeyWIF, p.Chain)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(btcutil.Hash160(pubKey), details.ClaimKeyHash) {
		return nil, fmt.Errorf("%w: key does not match contract claim key", ErrBadKey)
	}

	tx, err := spendingTxSkeleton(p.FundingTxID, p.FundingVout, p.DestAddress,
		p.InputValue, p.Fee, p.Chain)
	if err != nil {
		return nil, err
	}
	tx.TxIn[0].Sequence = wire.MaxTxInSequenceNum

	sig, err := txscript.RawTxInSignature(tx, 0, p.RedeemScript, txscript.SigHashAll, wif.PrivKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	builder := txscript.NewScriptBuilder()
	builder.AddData(sig)
	builder.AddData(pubKey)
	builder.AddData(p.Preimage)
	builder.AddOp(txscript.OP_TRUE)
	builder.AddData(p.RedeemScript)
	sigScript, err := builder.Script()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	tx.TxIn[0].SignatureScript = sigScript

	return serializeSignedTx(tx)
}

// RefundTxParams are the inputs for building a refund transaction.
type RefundTxParams struct {
	FundingTxID  string
	FundingVout  uint32
	RedeemScript []byte
	PrivKeyWIF   string // refund key
	DestAddress  string // P2PKH refund address
	InputValue   uint64
	Fee          uint64
	Locktime     uint32 // must equal the contract's timelock
	Chain        *chain.Params
}

// BuildRefundTx builds and signs the transaction that reclaims an HTLC
// output after the absolute timelock. The result is structurally valid
// regardless of the current time; broadcasting before expiry is the
// coordinator's responsibility to prevent.
//
// scriptSig: <sig> <pubkey> OP_FALSE <redeem_script>
func BuildRefundTx(p *RefundTxParams) (*SignedTx, error) {
	details, err := ParseHTLCScript(p.RedeemScript)
	if err != nil {
		return nil, err
	}
	if p.Locktime != details.Timelock {
		return nil, fmt.Errorf("%w: locktime %d does not match contract timelock %d",
			ErrBadTimelock, p.Locktime, details.Timelock)
	}

	wif, pubKey, err := decodeSigningKey(p.PrivKeyWIF, p.Chain)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(btcutil.Hash160(pubKey), details.RefundKeyHash) {
		return nil, fmt.Errorf("%w: key does not match contract refund key", ErrBadKey)
	}

	tx, err := spendingTxSkeleton(p.FundingTxID, p.FundingVout, p.DestAddress,
		p.InputValue, p.Fee, p.Chain)
	if err != nil {
		return nil, err
	}
	tx.LockTime = p.Locktime
	tx.TxIn[0].Sequence = refundSequence

	sig, err := txscript.RawTxInSignature(tx, 0, p.RedeemScript, txscript.SigHashAll, wif.PrivKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	builder := txscript.NewScriptBuilder()
	builder.AddData(sig)
	builder.AddData(pubKey)
	builder.AddOp(txscript.OP_FALSE)
	builder.AddData(p.RedeemScript)
	sigScript, err := builder.Script()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	tx.TxIn[0].SignatureScript = sigScript

	return serializeSignedTx(tx)
}

// spendingTxSkeleton builds the shared unsigned shape: version 1, one input
// referencing the contract outpoint, one P2PKH output of value minus fee.
func spendingTxSkeleton(fundingTxID string, fundingVout uint32, destAddress string, inputValue, fee uint64, params *chain.Params) (*wire.MsgTx, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: no chain params", ErrUnsupportedChain)
	}
	if inputValue == 0 {
		return nil, fmt.Errorf("%w: zero input value", ErrBadAmount)
	}
	if fee >= inputValue {
		return nil, fmt.Errorf("%w: fee %d >= input %d", ErrUnderfunded, fee, inputValue)
	}
	outValue := inputValue - fee

	netParams := params.ChaincfgParams()
	addr, err := btcutil.DecodeAddress(destAddress, netParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadAddress, err)
	}
	if _, ok := addr.(*btcutil.AddressPubKeyHash); !ok {
		return nil, fmt.Errorf("%w: destination must be P2PKH", ErrBadAddress)
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadAddress, err)
	}

	if txrules.IsDustOutput(wire.NewTxOut(int64(outValue), pkScript), txrules.DefaultRelayFeePerKb) {
		return nil, fmt.Errorf("%w: output %d below dust threshold", ErrUnderfunded, outValue)
	}

	// NewHashFromStr reverses the display hex into internal byte order.
	fundingHash, err := chainhash.NewHashFromStr(fundingTxID)
	if err != nil {
		return nil, fmt.Errorf("%w: funding txid: %v", ErrBadTxID, err)
	}

	tx := wire.NewMsgTx(1)
	outpoint := wire.NewOutPoint(fundingHash, fundingVout)
	tx.AddTxIn(wire.NewTxIn(outpoint, nil, nil))
	tx.AddTxOut(wire.NewTxOut(int64(outValue), pkScript))
	return tx, nil
}

// decodeSigningKey decodes a WIF and checks it belongs to the chain.
func decodeSigningKey(wifStr string, params *chain.Params) (*btcutil.WIF, []byte, error) {
	wif, err := btcutil.DecodeWIF(wifStr)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadKey, err)
	}
	if !wif.IsForNet(params.ChaincfgParams()) {
		return nil, nil, fmt.Errorf("%w: WIF is for a different network", ErrBadKey)
	}
	return wif, wif.SerializePubKey(), nil
}

// serializeSignedTx produces the broadcast hex and display txid.
func serializeSignedTx(tx *wire.MsgTx) (*SignedTx, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return &SignedTx{
		Hex:  hex.EncodeToString(buf.Bytes()),
		TxID: tx.TxHash().String(),
	}, nil
}
