// Package chain defines network parameters for the supported UTXO chains.
// All chain-specific values are hardcoded here - no external configuration needed.
package chain

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// Network represents a chain network.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
	Regtest Network = "regtest"
)

// Params contains all network parameters for a blockchain.
// The HTLC redeem script is network-independent; only derived addresses and
// WIF keys depend on these version bytes.
type Params struct {
	// Identity
	Symbol   string // BTC, MARS
	Name     string // Bitcoin, Marscoin
	Network  Network
	Decimals uint8 // minor units exponent (8 for both chains)

	// Base58Check version bytes
	PubKeyHashAddrID byte // P2PKH address prefix
	ScriptHashAddrID byte // P2SH address prefix
	WIF              byte // private key prefix

	// Signed message prefix
	MessagePrefix string

	// BIP32 HD key magic bytes (xpub/xprv serialization)
	HDPrivateKeyID [4]byte
	HDPublicKeyID  [4]byte

	// Bech32 human-readable prefix, where the chain defines one.
	// Display only - the swap engine spends legacy P2SH exclusively.
	Bech32HRP string

	// Swap policy
	Confirmations uint32 // required funding confirmations
}

// ChaincfgParams returns btcd chaincfg params for address encoding/decoding
// and WIF checks on this chain. Non-Bitcoin chains get a cloned parameter set
// with their own version bytes.
func (p *Params) ChaincfgParams() *chaincfg.Params {
	switch {
	case p.Symbol == "BTC" && p.Network == Mainnet:
		return &chaincfg.MainNetParams
	case p.Symbol == "BTC" && p.Network == Testnet:
		return &chaincfg.TestNet3Params
	case p.Symbol == "BTC" && p.Network == Regtest:
		return &chaincfg.RegressionNetParams
	}

	cloned := chaincfg.MainNetParams
	cloned.Name = p.Name + "-" + string(p.Network)
	cloned.PubKeyHashAddrID = p.PubKeyHashAddrID
	cloned.ScriptHashAddrID = p.ScriptHashAddrID
	cloned.PrivateKeyID = p.WIF
	cloned.Bech32HRPSegwit = p.Bech32HRP
	cloned.HDPrivateKeyID = p.HDPrivateKeyID
	cloned.HDPublicKeyID = p.HDPublicKeyID
	return &cloned
}

// Registry holds all chain parameters indexed by symbol and network.
var registry = make(map[string]map[Network]*Params)

// Register adds chain params to the registry.
func Register(symbol string, network Network, params *Params) {
	if registry[symbol] == nil {
		registry[symbol] = make(map[Network]*Params)
	}
	registry[symbol][network] = params
}

// Get returns chain params for a symbol and network.
func Get(symbol string, network Network) (*Params, bool) {
	nets, ok := registry[symbol]
	if !ok {
		return nil, false
	}
	params, ok := nets[network]
	return params, ok
}

// MustGet returns chain params or panics. For wiring code that registers
// its chains at init time.
func MustGet(symbol string, network Network) *Params {
	params, ok := Get(symbol, network)
	if !ok {
		panic(fmt.Sprintf("chain: %s/%s not registered", symbol, network))
	}
	return params
}

// IsSupported returns true if the chain is registered.
func IsSupported(symbol string) bool {
	_, ok := registry[symbol]
	return ok
}
