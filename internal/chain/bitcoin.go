package chain

func init() {
	// Bitcoin Mainnet
	Register("BTC", Mainnet, &Params{
		Symbol:   "BTC",
		Name:     "Bitcoin",
		Network:  Mainnet,
		Decimals: 8,

		PubKeyHashAddrID: 0x00, // 1...
		ScriptHashAddrID: 0x05, // 3...
		WIF:              0x80,

		MessagePrefix: "\x18Bitcoin Signed Message:\n",

		HDPrivateKeyID: [4]byte{0x04, 0x88, 0xad, 0xe4}, // xprv
		HDPublicKeyID:  [4]byte{0x04, 0x88, 0xb2, 0x1e}, // xpub

		Bech32HRP: "bc",

		Confirmations: 3,
	})

	// Bitcoin Testnet (testnet3)
	Register("BTC", Testnet, &Params{
		Symbol:   "BTC",
		Name:     "Bitcoin Testnet",
		Network:  Testnet,
		Decimals: 8,

		PubKeyHashAddrID: 0x6F, // m or n
		ScriptHashAddrID: 0xC4, // 2...
		WIF:              0xEF,

		MessagePrefix: "\x18Bitcoin Signed Message:\n",

		HDPrivateKeyID: [4]byte{0x04, 0x35, 0x83, 0x94}, // tprv
		HDPublicKeyID:  [4]byte{0x04, 0x35, 0x87, 0xcf}, // tpub

		Bech32HRP: "tb",

		Confirmations: 1,
	})

	// Bitcoin Regtest
	Register("BTC", Regtest, &Params{
		Symbol:   "BTC",
		Name:     "Bitcoin Regtest",
		Network:  Regtest,
		Decimals: 8,

		PubKeyHashAddrID: 0x6F,
		ScriptHashAddrID: 0xC4,
		WIF:              0xEF,

		MessagePrefix: "\x18Bitcoin Signed Message:\n",

		HDPrivateKeyID: [4]byte{0x04, 0x35, 0x83, 0x94},
		HDPublicKeyID:  [4]byte{0x04, 0x35, 0x87, 0xcf},

		Bech32HRP: "bcrt",

		Confirmations: 1,
	})
}
