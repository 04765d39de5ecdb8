package transfer

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestUTF_ModifiedEncoding(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []byte
	}{
		{"ascii", "Acme", []byte{0x00, 0x04, 'A', 'c', 'm', 'e'}},
		{"empty", "", []byte{0x00, 0x00}},
		{"nul is two bytes", "a\x00", []byte{0x00, 0x03, 'a', 0xC0, 0x80}},
		{"two byte rune", "é", []byte{0x00, 0x02, 0xC3, 0xA9}},
		{"supplementary rune as surrogates", "😀", []byte{0x00, 0x06, 0xED, 0xA0, 0xBD, 0xED, 0xB8, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w Writer
			w.UTF(tt.in)
			if !bytes.Equal(w.Bytes(), tt.want) {
				t.Fatalf("UTF(%q) = % X, want % X", tt.in, w.Bytes(), tt.want)
			}
			got, err := NewReader(w.Bytes()).UTF()
			if err != nil {
				t.Fatalf("read back: %v", err)
			}
			if got != tt.in {
				t.Errorf("read back %q, want %q", got, tt.in)
			}
		})
	}
}

func TestUTF_ReplacementCharacterSurvives(t *testing.T) {
	var w Writer
	w.UTF("�")
	got, err := NewReader(w.Bytes()).UTF()
	if err != nil || got != "�" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestUTF_Malformed(t *testing.T) {
	tests := map[string][]byte{
		"truncated two byte":  {0x00, 0x01, 0xC3},
		"bad continuation":    {0x00, 0x02, 0xC3, 0x41},
		"four byte form":      {0x00, 0x04, 0xF0, 0x9F, 0x98, 0x80},
		"lone high surrogate": {0x00, 0x03, 0xED, 0xA0, 0xBD},
		"lone low surrogate":  {0x00, 0x03, 0xED, 0xB8, 0x80},
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewReader(raw).UTF()
			if !errors.Is(err, ErrInvalidData) {
				t.Errorf("err = %v, want InvalidData", err)
			}
		})
	}
}

func TestUTF_TooLong(t *testing.T) {
	var w Writer
	w.UTF(strings.Repeat("x", maxUTFLen+1))
	if !errors.Is(w.Err(), ErrInvalidData) {
		t.Errorf("err = %v, want InvalidData", w.Err())
	}
	w.Uint8(1)
	if w.Len() != 0 {
		t.Error("writes after an error must be dropped")
	}
}

func TestReader_ShortReads(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03})
	if _, err := r.Uint32(); !errors.Is(err, ErrNotEnoughData) {
		t.Errorf("Uint32 on 3 bytes: %v", err)
	}
	if r.Offset() != 0 {
		t.Error("failed read must not consume")
	}
	if v, err := r.Uint16(); err != nil || v != 0x0102 {
		t.Errorf("Uint16 = %04X, %v", v, err)
	}
	if _, err := r.UTF(); !errors.Is(err, ErrNotEnoughData) {
		t.Errorf("UTF with missing length: %v", err)
	}
	if _, err := NewReader([]byte{0x00, 0x05, 'a'}).UTF(); !errors.Is(err, ErrNotEnoughData) {
		t.Errorf("UTF with short body: %v", err)
	}
}
