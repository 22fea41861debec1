// Package plain defines the canonical value tree that settlement actions compile
// into, and the deterministic binary encoding of that tree.
//
// A tree is built from seven kinds only: Null, Bool, Int, Bytes, Text, List and
// Dict. Dict keeps the insertion order of its keys; the encoder never sorts them.
package plain

import (
	"math/big"
)

// Value is a node of the canonical tree. The set of implementations is closed.
type Value interface {
	plainValue()
}

type null struct{}

// Null is the absent value.
var Null Value = null{}

// Bool is a boolean leaf.
type Bool bool

// Text is a UTF-8 string leaf.
type Text string

// Bytes is a raw byte string leaf.
type Bytes []byte

// Int is an arbitrary-precision signed integer leaf.
type Int struct {
	v *big.Int
}

// NewInt wraps a machine integer.
func NewInt(n int64) Int {
	return Int{v: big.NewInt(n)}
}

// BigInt wraps a copy of n. A nil n is treated as zero.
func BigInt(n *big.Int) Int {
	if n == nil {
		return Int{v: new(big.Int)}
	}
	return Int{v: new(big.Int).Set(n)}
}

// Big returns a copy of the wrapped integer.
func (i Int) Big() *big.Int {
	if i.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(i.v)
}

// List is an ordered sequence of values.
type List []Value

// Entry is a single key/value pair of a Dict.
type Entry struct {
	Key   string
	Value Value
}

// KV builds a Dict entry.
func KV(key string, value Value) Entry {
	return Entry{Key: key, Value: value}
}

// Dict is a mapping whose keys serialize in the order they were added.
type Dict []Entry

// Get returns the value stored under key.
func (d Dict) Get(key string) (Value, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Keys lists the keys in encoding order.
func (d Dict) Keys() []string {
	keys := make([]string, len(d))
	for i, e := range d {
		keys[i] = e.Key
	}
	return keys
}

func (null) plainValue()  {}
func (Bool) plainValue()  {}
func (Text) plainValue()  {}
func (Bytes) plainValue() {}
func (Int) plainValue()   {}
func (List) plainValue()  {}
func (Dict) plainValue()  {}

// IsNull reports whether v is the Null value (or a nil interface).
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(null)
	return ok
}
