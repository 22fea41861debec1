package crypto

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func TestParseAddress(t *testing.T) {
	cases := []string{
		"0xa5f7e0bd63AD2749D66380f36Eb33Fe0ba50A27D",
		"0xb3cbca0e64aeb4b5b861047fe1db5a1bec1c241f",
		"a5f7e0bd63AD2749D66380f36Eb33Fe0ba50A27D",
		"b3cbca0e64aeb4b5b861047fe1db5a1bec1c241f",
	}
	for _, input := range cases {
		addr, err := ParseAddress(input)
		if err != nil {
			t.Fatalf("parse %s: %v", input, err)
		}
		if len(addr.Bytes()) != AddressLength {
			t.Fatalf("expected %d raw bytes, got %d", AddressLength, len(addr.Bytes()))
		}
		short := strings.TrimPrefix(input, "0x")
		raw, _ := hex.DecodeString(short)
		if string(addr.Bytes()) != string(raw) {
			t.Fatalf("raw mismatch for %s", input)
		}
		if addr.Short() != strings.ToLower(short) {
			t.Fatalf("short form: got %s", addr.Short())
		}
		if addr.Long() != "0x"+strings.ToLower(short) {
			t.Fatalf("long form: got %s", addr.Long())
		}
		again, err := ParseAddress(addr.Long())
		if err != nil || again != addr {
			t.Fatalf("round trip through long form failed for %s", input)
		}
	}
}

func TestParseAddressRejectsMalformed(t *testing.T) {
	cases := []string{
		"0xa5f7e0bd63AD2749D66380f36Eb33Fe0ba50A27X",
		"a5f7e0bd63AD2749D66380f36Eb33Fe0ba50A27X",
		"0xa5f7e0bd63AD2749D66380f36Eb33Fe0ba50A2",
		"a5f7e0bd63AD2749D66380f36Eb33Fe0ba50A2",
		"",
		"0x",
	}
	for _, input := range cases {
		if _, err := ParseAddress(input); !errors.Is(err, ErrInvalidFormat) {
			t.Fatalf("expected ErrInvalidFormat for %q, got %v", input, err)
		}
	}
}

func TestAddressFromBytes(t *testing.T) {
	if _, err := AddressFromBytes(make([]byte, 19)); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
	addr := MustParseAddress("b3cbca0e64aeb4b5b861047fe1db5a1bec1c241f")
	copyAddr, err := AddressFromBytes(addr.Bytes())
	if err != nil || copyAddr != addr {
		t.Fatalf("unexpected copy result %v %v", copyAddr, err)
	}
}

func TestAddressDerive(t *testing.T) {
	base := MustParseAddress("0xa5f7e0bd63AD2749D66380f36Eb33Fe0ba50A27D")
	cases := map[string]string{
		"key1": "0x518c0044a81c7d3747Ad416Df7227e53233F2e10",
		"key2": "0xEb5cC07Eb104B082C1ae82E018340e989700ca31",
	}
	for key, want := range cases {
		got := base.Derive(key)
		if got != MustParseAddress(want) {
			t.Fatalf("derive(%s): got %s want %s", key, got.Long(), strings.ToLower(want))
		}
		if got.Checksum() != want {
			t.Fatalf("checksum(%s): got %s want %s", key, got.Checksum(), want)
		}
		if base.Derive(key) != got {
			t.Fatalf("derive(%s) is not deterministic", key)
		}
	}
	if base.Derive("key1") == base.Derive("key2") {
		t.Fatalf("distinct keys derived the same address")
	}
}

func TestAddressTextMarshalling(t *testing.T) {
	addr := MustParseAddress("B3CBCA0E64AEB4B5B861047FE1DB5A1BEC1C241F")
	text, err := addr.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(text) != "0xb3cbca0e64aeb4b5b861047fe1db5a1bec1c241f" {
		t.Fatalf("unexpected text %s", text)
	}
	var decoded Address
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != addr {
		t.Fatalf("decoded address mismatch")
	}
	if err := decoded.UnmarshalText([]byte("nope")); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}
