package chain

import "testing"

func TestRegistry(t *testing.T) {
	tests := []struct {
		symbol  string
		network Network
		p2sh    byte
		p2pkh   byte
		wif     byte
	}{
		{"BTC", Mainnet, 0x05, 0x00, 0x80},
		{"BTC", Testnet, 0xC4, 0x6F, 0xEF},
		{"BTC", Regtest, 0xC4, 0x6F, 0xEF},
		{"MARS", Mainnet, 0x05, 0x32, 0xB2},
		{"MARS", Testnet, 0xC4, 0x6F, 0xEF},
	}

	for _, tt := range tests {
		t.Run(tt.symbol+"/"+string(tt.network), func(t *testing.T) {
			params, ok := Get(tt.symbol, tt.network)
			if !ok {
				t.Fatalf("chain %s/%s not registered", tt.symbol, tt.network)
			}
			if params.ScriptHashAddrID != tt.p2sh {
				t.Errorf("p2sh version = %#x, want %#x", params.ScriptHashAddrID, tt.p2sh)
			}
			if params.PubKeyHashAddrID != tt.p2pkh {
				t.Errorf("p2pkh version = %#x, want %#x", params.PubKeyHashAddrID, tt.p2pkh)
			}
			if params.WIF != tt.wif {
				t.Errorf("wif version = %#x, want %#x", params.WIF, tt.wif)
			}
			if params.Decimals != 8 {
				t.Errorf("decimals = %d, want 8", params.Decimals)
			}
		})
	}
}

func TestGetUnknownChain(t *testing.T) {
	if _, ok := Get("DOGE", Mainnet); ok {
		t.Error("unregistered chain returned params")
	}
	if _, ok := Get("MARS", Regtest); ok {
		t.Error("MARS has no regtest params")
	}
}

func TestChaincfgParams(t *testing.T) {
	btc, _ := Get("BTC", Mainnet)
	if btc.ChaincfgParams().ScriptHashAddrID != 0x05 {
		t.Error("BTC mainnet chaincfg params mismatch")
	}

	mars, _ := Get("MARS", Mainnet)
	cfg := mars.ChaincfgParams()
	if cfg.PubKeyHashAddrID != 0x32 {
		t.Errorf("MARS p2pkh version = %#x, want 0x32", cfg.PubKeyHashAddrID)
	}
	if cfg.PrivateKeyID != 0xB2 {
		t.Errorf("MARS wif version = %#x, want 0xb2", cfg.PrivateKeyID)
	}
	// Cloning must not mutate the shared Bitcoin params.
	if mainnet := (&Params{Symbol: "BTC", Network: Mainnet}).ChaincfgParams(); mainnet.PubKeyHashAddrID != 0x00 {
		t.Error("bitcoin mainnet params were mutated by a clone")
	}
}

func TestIsSupported(t *testing.T) {
	if !IsSupported("BTC") || !IsSupported("MARS") {
		t.Error("registered chains not reported as supported")
	}
	if IsSupported("LTC") {
		t.Error("unregistered chain reported as supported")
	}
}
