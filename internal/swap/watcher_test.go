package swap

import (
	"bytes"
	"encoding/hex"
	"testing"
	"time"

	"github.com/marswap-exchange/marswapd/internal/backend"
)

func TestWatcherFunding(t *testing.T) {
	env := newSwapEnv(t)

	env.primary.utxos[env.rec.PrimaryHTLC.Address] = []backend.UTXO{
		{TxID: testFundingTxID, Vout: 0, Amount: 100_000, Confirmations: 1},
	}
	env.alt.utxos[env.rec.AltHTLC.Address] = []backend.UTXO{
		{TxID: testFundingTxID, Vout: 1, Amount: 10_000_000, Confirmations: 1},
	}

	watcher := NewWatcher(env.coordinator, 10*time.Millisecond)
	defer watcher.Stop()
	watcher.WatchFunding(env.rec)

	deadline := time.Now().Add(2 * time.Second)
	for env.rec.Status != StatusFunded {
		if time.Now().After(deadline) {
			t.Fatal("watcher did not advance the swap to funded")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatcherPreimage(t *testing.T) {
	env := newSwapEnv(t)
	env.fund(t)

	secret := append([]byte(nil), env.rec.Preimage...)
	claim, err := BuildClaimTx(&ClaimTxParams{
		FundingTxID:  testFundingTxID,
		FundingVout:  0,
		RedeemScript: env.rec.PrimaryHTLC.RedeemScript,
		Preimage:     secret,
		PrivKeyWIF:   env.initiatorPrimary.wif,
		DestAddress:  env.initiatorPrimary.addr,
		InputValue:   100_000,
		Fee:          1_000,
		Chain:        env.rec.PrimaryHTLC.Chain,
	})
	if err != nil {
		t.Fatal(err)
	}
	claimRaw, _ := hex.DecodeString(claim.Hex)
	env.primary.spends[env.rec.PrimaryHTLC.Address] = claimRaw
	env.rec.Preimage = nil

	watcher := NewWatcher(env.coordinator, 10*time.Millisecond)
	defer watcher.Stop()
	watcher.WatchPreimage(env.rec)

	select {
	case event := <-watcher.Events():
		if event.SwapID != env.rec.ID {
			t.Errorf("event swap id = %s, want %s", event.SwapID, env.rec.ID)
		}
		if !bytes.Equal(event.Preimage, secret) {
			t.Error("event carries the wrong preimage")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not report the revealed preimage")
	}
}
