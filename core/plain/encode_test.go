package plain

import (
	"math/big"
	"testing"
)

func TestMarshalPrimitives(t *testing.T) {
	huge, _ := new(big.Int).SetString("-1000000000000000000000000000000000000000", 10)
	cases := []struct {
		name  string
		value Value
		want  string
	}{
		{"null", Null, "n"},
		{"nil interface", nil, "n"},
		{"true", Bool(true), "t"},
		{"false", Bool(false), "f"},
		{"zero", NewInt(0), "i0e"},
		{"negative", NewInt(-42), "i-42e"},
		{"huge", BigInt(huge), "i-1000000000000000000000000000000000000000e"},
		{"bytes", Bytes{0x00, 0xff}, "2:\x00\xff"},
		{"empty bytes", Bytes{}, "0:"},
		{"text", Text("héllo"), "u6:héllo"},
		{"list", List{NewInt(1), Null, Text("a")}, "li1enu1:ae"},
		{"empty list", List{}, "le"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := string(Marshal(tc.value)); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestMarshalDictPreservesInsertionOrder(t *testing.T) {
	d := Dict{KV("ticker", Text("NCG")), KV("decimalPlaces", Bytes{2}), KV("minters", Null)}
	want := "du6:tickeru3:NCGu13:decimalPlaces1:\x02u7:mintersne"
	if got := string(Marshal(d)); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	reordered := Dict{KV("minters", Null), KV("ticker", Text("NCG")), KV("decimalPlaces", Bytes{2})}
	if Equal(d, reordered) {
		t.Fatalf("key order must be significant")
	}
	if keys := d.Keys(); keys[0] != "ticker" || keys[2] != "minters" {
		t.Fatalf("unexpected key order %v", keys)
	}
}

func TestTextAndBytesAreDistinct(t *testing.T) {
	if Equal(Text("ab"), Bytes("ab")) {
		t.Fatalf("text and bytes must encode differently")
	}
}

func TestBigIntIsCopied(t *testing.T) {
	n := big.NewInt(7)
	v := BigInt(n)
	n.SetInt64(8)
	if v.Big().Int64() != 7 {
		t.Fatalf("Int must not alias its source")
	}
	if BigInt(nil).Big().Sign() != 0 {
		t.Fatalf("nil big int should wrap zero")
	}
}

func TestDictGet(t *testing.T) {
	d := Dict{KV("a", NewInt(1))}
	if _, ok := d.Get("b"); ok {
		t.Fatalf("unexpected key")
	}
	v, ok := d.Get("a")
	if !ok || !Equal(v, NewInt(1)) {
		t.Fatalf("lookup failed")
	}
	if !IsNull(Null) || !IsNull(nil) || IsNull(Bool(false)) {
		t.Fatalf("IsNull misbehaves")
	}
}
