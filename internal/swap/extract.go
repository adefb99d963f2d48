// Package swap - preimage recovery from broadcast claim transactions. The counterparty
// learns the hashlock preimage by decompiling the claim's input script,
// which necessarily reveals it.
package swap

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// ExtractPreimage parses a serialized transaction and returns the 32-byte
// input-script push whose SHA-256 equals expectedHash. Returns (nil, nil)
// when no such push exists - a refund spend or an unrelated transaction,
// not an error.
func ExtractPreimage(txBytes, expectedHash []byte) ([]byte, error) {
	if len(expectedHash) != 32 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrBadHash, len(expectedHash))
	}

	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(txBytes)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}

	for _, txIn := range tx.TxIn {
		preimage, err := preimageFromScript(txIn.SignatureScript, expectedHash)
		if err != nil {
			return nil, err
		}
		if preimage != nil {
			return preimage, nil
		}
	}
	return nil, nil
}

// preimageFromScript scans one scriptSig's data pushes, ignoring opcodes.
func preimageFromScript(script, expectedHash []byte) ([]byte, error) {
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		data := tokenizer.Data()
		if len(data) != PreimageSize {
			continue
		}
		if VerifyPreimage(data, expectedHash) {
			preimage := make([]byte, PreimageSize)
			copy(preimage, data)
			return preimage, nil
		}
	}
	if err := tokenizer.Err(); err != nil {
		return nil, fmt.Errorf("%w: undecodable input script: %v", ErrMalformedTransaction, err)
	}
	return nil, nil
}
