package transfer

import (
	"bytes"
	"math/big"
	"strings"
	"testing"
)

func TestCardNumber_Encoding(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		typ    numberType
		zeros  int
		header byte
		size   int // encoded bytes including the header
	}{
		{"plain int", "123", numberInt, 0, 0x00, 5},
		{"zero padded int", "000123", numberInt, 3, 0x18, 5},
		{"only zeros", "000", numberInt, 2, 0x10, 5},
		{"single zero", "0", numberInt, 0, 0x00, 5},
		{"EAN-13 with padding", "0000690101612", numberInt, 4, 0x20, 5},
		{"long", "12345678901", numberLong, 0, 0x01, 9},
		{"negative int", "-42", numberInt, 0, 0x00, 5},
		{"big integer", "123456789012345678901234567890", numberBigInt, 0, 0x02, 1 + 2 + 13},
		{"alphanumeric", "AB-123", numberString, 0, 0x03, 1 + 2 + 6},
		{"plus sign is not canonical", "+5", numberString, 0, 0x03, 1 + 2 + 2},
		{"negative zero padded", "-007", numberString, 0, 0x03, 1 + 2 + 4},
		{"empty", "", numberString, 0, 0x03, 1 + 2},
		{"31 leading zeros", strings.Repeat("0", 31) + "7", numberInt, 31, 0xF8, 5},
		{"32 leading zeros overflow to string", strings.Repeat("0", 32) + "7", numberString, 0, 0x03, 1 + 2 + 33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := compactCardNumber(tt.in)
			if n.typ != tt.typ || n.zeros != tt.zeros {
				t.Fatalf("compactCardNumber(%q) = %s/%d, want %s/%d", tt.in, n.typ, n.zeros, tt.typ, tt.zeros)
			}

			var w Writer
			writeCardNumber(&w, tt.in)
			if err := w.Err(); err != nil {
				t.Fatalf("write: %v", err)
			}
			if w.Bytes()[0] != tt.header {
				t.Errorf("header = 0x%02X, want 0x%02X", w.Bytes()[0], tt.header)
			}
			if w.Len() != tt.size {
				t.Errorf("encoded size = %d, want %d", w.Len(), tt.size)
			}

			r := NewReader(w.Bytes())
			got, err := readCardNumber(r)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if got != tt.in {
				t.Errorf("round trip = %q, want %q", got, tt.in)
			}
			if r.Remaining() != 0 {
				t.Errorf("%d bytes left unread", r.Remaining())
			}
		})
	}
}

func TestCardNumber_WireFixture(t *testing.T) {
	var w Writer
	writeCardNumber(&w, "0000690101612")
	want := []byte{0x20, 0x29, 0x22, 0x1D, 0x6C}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("encoded % X, want % X", w.Bytes(), want)
	}
}

func TestBigIntTwosComplement(t *testing.T) {
	for _, s := range []string{
		"0", "127", "128", "255", "-1", "-128", "-129", "-256",
		"99999999999999999999999", "-99999999999999999999999",
	} {
		n, ok := tryBigInt(s)
		if !ok {
			t.Fatalf("tryBigInt(%q) failed", s)
		}
		raw := bigIntBytes(n.big)
		if got := bigIntFromBytes(raw).String(); got != s {
			t.Errorf("%s -> % X -> %s", s, raw, got)
		}
	}

	if raw := bigIntBytes(mustBig(t, "128")); !bytes.Equal(raw, []byte{0x00, 0x80}) {
		t.Errorf("128 = % X, want 00 80", raw)
	}
	if raw := bigIntBytes(mustBig(t, "-129")); !bytes.Equal(raw, []byte{0xFF, 0x7F}) {
		t.Errorf("-129 = % X, want FF 7F", raw)
	}
}

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	n, ok := tryBigInt(s)
	if !ok {
		t.Fatalf("bad fixture %q", s)
	}
	return n.big
}

func TestCardNumber_DecodeErrors(t *testing.T) {
	tests := map[string][]byte{
		"unknown type":      {0x05, 0x00},
		"empty big integer": {0x02, 0x00, 0x00},
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := readCardNumber(NewReader(raw))
			if kind, _ := KindOf(err); kind != InvalidData {
				t.Errorf("err = %v, want InvalidData", err)
			}
		})
	}

	if _, err := readCardNumber(NewReader([]byte{0x00, 0x00, 0x01})); err == nil {
		t.Error("truncated int must fail")
	} else if kind, _ := KindOf(err); kind != NotEnoughData {
		t.Errorf("truncated int: %v, want NotEnoughData", err)
	}
}
