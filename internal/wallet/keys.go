// Package wallet provides the minimal key handling the swap daemon needs:
// parsing operator-supplied keys and deriving per-swap keypairs from a
// BIP39 mnemonic. UTXO management and balances live in external tooling.
package wallet

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/marswap-exchange/marswapd/internal/chain"
	"github.com/marswap-exchange/marswapd/pkg/helpers"
	"github.com/tyler-smith/go-bip39"
)

// Key errors
var (
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	ErrInvalidKey      = errors.New("invalid private key")
)

// KeyPair holds one signing key and its derived artifacts.
type KeyPair struct {
	priv   *secp256k1.PrivateKey
	params *chain.Params
}

// NewKeyPairFromBytes builds a keypair from 32 raw private key bytes.
func NewKeyPairFromBytes(keyBytes []byte, params *chain.Params) (*KeyPair, error) {
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("%w: need 32 bytes, got %d", ErrInvalidKey, len(keyBytes))
	}
	priv := secp256k1.PrivKeyFromBytes(keyBytes)
	if priv.Key.IsZero() {
		return nil, fmt.Errorf("%w: zero scalar", ErrInvalidKey)
	}
	return &KeyPair{priv: priv, params: params}, nil
}

// NewKeyPairFromWIF decodes a WIF private key for the given chain.
func NewKeyPairFromWIF(wifStr string, params *chain.Params) (*KeyPair, error) {
	wif, err := btcutil.DecodeWIF(wifStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if !wif.IsForNet(params.ChaincfgParams()) {
		return nil, fmt.Errorf("%w: WIF is for a different network", ErrInvalidKey)
	}
	return &KeyPair{priv: wif.PrivKey, params: params}, nil
}

// DeriveSwapKey deterministically derives a swap keypair from a BIP39
// mnemonic. Index separates keys for concurrent swaps; the same
// (mnemonic, passphrase, chain, index) always yields the same key, so a
// restarted daemon can re-derive refund keys for journaled swaps.
func DeriveSwapKey(mnemonic, passphrase string, params *chain.Params, index uint32) (*KeyPair, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	defer helpers.Zero(seed)

	// Domain-separated scalar: H(seed || symbol || index).
	h := sha256.New()
	h.Write(seed)
	h.Write([]byte(params.Symbol))
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], index)
	h.Write(idx[:])
	keyBytes := h.Sum(nil)
	defer helpers.Zero(keyBytes)

	return NewKeyPairFromBytes(keyBytes, params)
}

// PubKey returns the compressed public key.
func (k *KeyPair) PubKey() []byte {
	return k.priv.PubKey().SerializeCompressed()
}

// WIF returns the private key encoded for this chain. Always compressed.
func (k *KeyPair) WIF() (string, error) {
	wif, err := btcutil.NewWIF(k.priv, k.params.ChaincfgParams(), true)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return wif.String(), nil
}

// Address returns the P2PKH address of the compressed public key.
func (k *KeyPair) Address() (string, error) {
	pubKeyHash := btcutil.Hash160(k.PubKey())
	addr, err := btcutil.NewAddressPubKeyHash(pubKeyHash, k.params.ChaincfgParams())
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

// Chain returns the chain this key is bound to.
func (k *KeyPair) Chain() *chain.Params {
	return k.params
}

// Zero scrubs the private key material.
func (k *KeyPair) Zero() {
	k.priv.Zero()
}
