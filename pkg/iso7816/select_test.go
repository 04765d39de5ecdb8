package iso7816

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"
)

// hexBytes joins space separated hex chunks into raw bytes.
func hexBytes(t *testing.T, parts ...string) []byte {
	t.Helper()
	raw, err := hex.DecodeString(strings.ReplaceAll(strings.Join(parts, ""), " ", ""))
	if err != nil {
		t.Fatalf("bad hex fixture: %v", err)
	}
	return raw
}

func TestNewSelectCommand(t *testing.T) {
	cls := BasicClass()

	tests := []struct {
		name     string
		cmd      *CommandAPDU
		expected []string
	}{
		{
			name: "Select by AID (F0 LOYALTY)",
			cmd:  SelectByAID(cls, []byte("\xF0LOYALTY")),
			expected: []string{
				"00 A4 04 00",             // Header: CLA=00, INS=A4, P1=04 (AID), P2=00
				"08",                      // Lc=8
				"F0 4C 4F 59 41 4C 54 59", // Data
				// NO Le "00" here due to T=0 compatibility
			},
		},
		{
			name: "Select Master File by ID, no data",
			cmd:  NewSelectCommand(cls, SelectByFileID, FirstOrOnlyOccurrence, ReturnFCI, nil),
			expected: []string{
				"00 A4 00 00", // Header
				"00",          // Le=256 (Allowed because no data sent)
			},
		},
		{
			name: "Select Next Occurrence FCP",
			cmd:  NewSelectCommand(cls, SelectByFileID, NextOccurrence, ReturnFCP, []byte{0x3F, 0x00}),
			expected: []string{
				"00 A4 00 06", // Header: P2=06 (ReturnFCP 04 | Next 02)
				"02",          // Lc=2
				"3F 00",       // Data: File ID 3F00
			},
		},
		{
			name: "Select No Data",
			cmd:  NewSelectCommand(cls, SelectByFileID, FirstOrOnlyOccurrence, ReturnNoData, []byte{0x3F, 0x00}),
			expected: []string{
				"00 A4 00 0C", // Header: P2=0C (ReturnNoData 0C | First 00)
				"02",          // Lc=2
				"3F 00",       // Data
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.Bytes()
			if err != nil {
				t.Fatalf("Failed to encode bytes: %v", err)
			}

			expected := hexBytes(t, tt.expected...)
			if !bytes.Equal(got, expected) {
				t.Errorf("Mismatch:\nExpected: %s\nGot:      %s",
					hex.EncodeToString(expected),
					hex.EncodeToString(got))
			}
		})
	}
}

func TestIsSelectOf(t *testing.T) {
	aid := []byte("\xF0LOYALTY")
	raw, err := SelectByAID(BasicClass(), aid).Bytes()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if !IsSelectOf(raw, aid) {
		t.Error("SELECT of the AID should match")
	}
	if IsSelectOf(raw, []byte{0xA0, 0x00}) {
		t.Error("SELECT of another AID should not match")
	}
	if IsSelectOf(hexBytes(t, "00 B0 00 00 00"), aid) {
		t.Error("READ BINARY is not a SELECT")
	}
	if IsSelectOf([]byte{0x00, 0xA4}, aid) {
		t.Error("truncated frame should not match")
	}
}
