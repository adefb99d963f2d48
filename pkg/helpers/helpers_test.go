package helpers

import (
	"bytes"
	"testing"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     uint64
		wantErr  bool
	}{
		{"1", 8, 100000000, false},
		{"0.001", 8, 100000, false},
		{"0.00000546", 8, 546, false},
		{"21000000", 8, 2100000000000000, false},
		{"0.1", 0, 0, true}, // no fractional units on a 0-decimal chain
		{"", 8, 0, true},
		{"1.2.3", 8, 0, true},
		{"abc", 8, 0, true},
		{"0.123456789", 8, 0, true}, // too many decimal places
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in, tt.decimals)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAmount(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseAmount(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount   uint64
		decimals uint8
		want     string
	}{
		{100000000, 8, "1"},
		{100000, 8, "0.001"},
		{546, 8, "0.00000546"},
		{0, 8, "0"},
		{42, 0, "42"},
	}
	for _, tt := range tests {
		if got := FormatAmount(tt.amount, tt.decimals); got != tt.want {
			t.Errorf("FormatAmount(%d, %d) = %q, want %q", tt.amount, tt.decimals, got, tt.want)
		}
	}
}

func TestAmountRoundTrip(t *testing.T) {
	for _, amount := range []uint64{1, 546, 100000, 99999999, 2100000000000000} {
		s := FormatAmount(amount, 8)
		back, err := ParseAmount(s, 8)
		if err != nil {
			t.Fatalf("ParseAmount(%q) failed: %v", s, err)
		}
		if back != amount {
			t.Errorf("round trip %d -> %q -> %d", amount, s, back)
		}
	}
}

func TestHexRoundTrip(t *testing.T) {
	in := []byte{0xde, 0xad, 0xbe, 0xef}
	s := BytesToHex(in)
	if s != "deadbeef" {
		t.Errorf("BytesToHex = %q", s)
	}
	out, err := HexToBytes(s)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, in) {
		t.Error("hex round trip changed bytes")
	}
	if out, err := HexToBytes("0xff"); err != nil || !bytes.Equal(out, []byte{0xff}) {
		t.Error("0x prefix not accepted")
	}
	if _, err := HexToBytes("zz"); err == nil {
		t.Error("invalid hex accepted")
	}
}

func TestZero(t *testing.T) {
	secret := []byte{0xde, 0xad, 0xbe, 0xef}
	Zero(secret)
	for _, b := range secret {
		if b != 0 {
			t.Fatal("Zero left residue")
		}
	}
}

func TestGenerateSecureRandom(t *testing.T) {
	a, err := GenerateSecureRandom(32)
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateSecureRandom(32)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 32 || len(b) != 32 {
		t.Fatal("wrong length")
	}
	if bytes.Equal(a, b) {
		t.Error("two random draws are identical")
	}
}

func TestConstantTimeCompare(t *testing.T) {
	if !ConstantTimeCompare([]byte{1, 2}, []byte{1, 2}) {
		t.Error("equal slices compared unequal")
	}
	if ConstantTimeCompare([]byte{1, 2}, []byte{1, 3}) {
		t.Error("unequal slices compared equal")
	}
	if ConstantTimeCompare([]byte{1}, []byte{1, 2}) {
		t.Error("different lengths compared equal")
	}
}
