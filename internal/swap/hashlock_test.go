package swap

import (
	"bytes"
	"crypto/sha256"
	"testing"
)

func TestGenerateHashLock(t *testing.T) {
	preimage, hash, err := GenerateHashLock()
	if err != nil {
		t.Fatalf("GenerateHashLock() failed: %v", err)
	}
	if len(preimage) != 32 {
		t.Errorf("preimage length = %d, want 32", len(preimage))
	}
	if len(hash) != 32 {
		t.Errorf("hash length = %d, want 32", len(hash))
	}

	want := sha256.Sum256(preimage)
	if !bytes.Equal(hash, want[:]) {
		t.Errorf("hash does not bind preimage: got %x, want %x", hash, want)
	}
}

func TestGenerateHashLockUnique(t *testing.T) {
	p1, _, err := GenerateHashLock()
	if err != nil {
		t.Fatal(err)
	}
	p2, _, err := GenerateHashLock()
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(p1, p2) {
		t.Error("two generated preimages are identical")
	}
}

func TestVerifyPreimage(t *testing.T) {
	preimage := make([]byte, 32)
	preimage[31] = 1
	hash := HashPreimage(preimage)

	tests := []struct {
		name     string
		preimage []byte
		hash     []byte
		want     bool
	}{
		{"matching", preimage, hash, true},
		{"wrong preimage", make([]byte, 32), hash, false},
		{"short preimage", preimage[:31], hash, false},
		{"short hash", preimage, hash[:31], false},
		{"nil preimage", nil, hash, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifyPreimage(tt.preimage, tt.hash); got != tt.want {
				t.Errorf("VerifyPreimage() = %v, want %v", got, tt.want)
			}
		})
	}
}
