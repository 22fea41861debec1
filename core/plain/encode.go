package plain

import (
	"bytes"
	"fmt"
	"strconv"
)

// Marshal encodes a tree into its canonical binary form.
//
//	null  n
//	bool  t | f
//	int   i<decimal>e
//	bytes <len>:<raw>
//	text  u<len>:<utf-8>
//	list  l<items>e
//	dict  d(<text key><value>)*e   keys in insertion order
//
// The same tree always produces the same bytes. A nil interface encodes as null.
func Marshal(v Value) []byte {
	var buf bytes.Buffer
	encode(&buf, v)
	return buf.Bytes()
}

// Equal reports whether two trees have identical encodings.
func Equal(a, b Value) bool {
	return bytes.Equal(Marshal(a), Marshal(b))
}

func encode(buf *bytes.Buffer, v Value) {
	switch val := v.(type) {
	case nil, null:
		buf.WriteByte('n')
	case Bool:
		if val {
			buf.WriteByte('t')
		} else {
			buf.WriteByte('f')
		}
	case Int:
		buf.WriteByte('i')
		buf.WriteString(val.Big().String())
		buf.WriteByte('e')
	case Bytes:
		buf.WriteString(strconv.Itoa(len(val)))
		buf.WriteByte(':')
		buf.Write(val)
	case Text:
		encodeText(buf, string(val))
	case List:
		buf.WriteByte('l')
		for _, item := range val {
			encode(buf, item)
		}
		buf.WriteByte('e')
	case Dict:
		buf.WriteByte('d')
		for _, e := range val {
			encodeText(buf, e.Key)
			encode(buf, e.Value)
		}
		buf.WriteByte('e')
	default:
		// Value is sealed; reaching here means a new kind was added without an encoder.
		panic(fmt.Sprintf("plain: unsupported value %T", v))
	}
}

func encodeText(buf *bytes.Buffer, s string) {
	buf.WriteByte('u')
	buf.WriteString(strconv.Itoa(len(s)))
	buf.WriteByte(':')
	buf.WriteString(s)
}
