package chain

func init() {
	// Marscoin Mainnet
	Register("MARS", Mainnet, &Params{
		Symbol:   "MARS",
		Name:     "Marscoin",
		Network:  Mainnet,
		Decimals: 8,

		PubKeyHashAddrID: 0x32, // M...
		ScriptHashAddrID: 0x05,
		WIF:              0xB2,

		MessagePrefix: "\x19Marscoin Signed Message:\n",

		HDPrivateKeyID: [4]byte{0x04, 0x88, 0xad, 0xe4},
		HDPublicKeyID:  [4]byte{0x04, 0x88, 0xb2, 0x1e},

		Confirmations: 6,
	})

	// Marscoin Testnet
	Register("MARS", Testnet, &Params{
		Symbol:   "MARS",
		Name:     "Marscoin Testnet",
		Network:  Testnet,
		Decimals: 8,

		PubKeyHashAddrID: 0x6F,
		ScriptHashAddrID: 0xC4,
		WIF:              0xEF,

		MessagePrefix: "\x19Marscoin Signed Message:\n",

		HDPrivateKeyID: [4]byte{0x04, 0x35, 0x83, 0x94},
		HDPublicKeyID:  [4]byte{0x04, 0x35, 0x87, 0xcf},

		Confirmations: 1,
	})
}
