package hce

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/gregLibert/cardshare/pkg/iso7816"
	"github.com/gregLibert/cardshare/pkg/transfer"
)

func TestStatusMapping_Bijection(t *testing.T) {
	seen := make(map[iso7816.StatusWord]transfer.Kind)

	for _, kind := range transfer.Kinds {
		sw := StatusFor(transfer.NewError(kind, "test", nil))
		if sw == iso7816.SW_ERR_UNKNOWN || sw == iso7816.SW_NO_ERROR {
			t.Errorf("%s mapped to reserved word %s", kind, sw)
		}
		if prev, dup := seen[sw]; dup {
			t.Errorf("%s and %s share status word %s", prev, kind, sw)
		}
		seen[sw] = kind

		back, ok := KindFor(sw)
		if !ok || back != kind {
			t.Errorf("KindFor(%s) = %s, %v; want %s", sw, back, ok, kind)
		}

		_, _, err := UnwrapResponse(sw.Bytes())
		if got, ok := transfer.KindOf(err); !ok || got != kind {
			t.Errorf("UnwrapResponse(%s) = %v, want kind %s", sw, err, kind)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want iso7816.StatusWord
	}{
		{"invalid magic", transfer.ErrInvalidMagic, 0x6E00},
		{"unknown command", transfer.ErrUnknownCommand, 0x6986},
		{"not enough data", transfer.ErrNotEnoughData, 0x6310},
		{"invalid data", transfer.ErrInvalidData, 0x6984},
		{"unsupported version", transfer.ErrUnsupportedProtocolVersion, 0x6A80},
		{"wrong checksum", transfer.ErrWrongChecksum, 0x6281},
		{"security violation", transfer.ErrSecurityViolation, 0x6982},
		{"foreign error", errors.New("disk on fire"), 0x6F00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.want {
				t.Errorf("StatusFor = %04X, want %04X", uint16(got), uint16(tt.want))
			}
		})
	}
}

func TestUnwrapResponse_UnknownStatus(t *testing.T) {
	_, _, err := UnwrapResponse([]byte{0x6A, 0x82})

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if !strings.Contains(err.Error(), "6A82") {
		t.Errorf("message %q does not carry the status word", err.Error())
	}
	if _, ok := transfer.KindOf(err); ok {
		t.Error("unknown status word was classified")
	}
}

func TestUnwrapResponse_Truncated(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"empty", ""},
		{"one byte", "90"},
		{"status only", "9000"},
		{"partial header", "00000001" + "9000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, _ := hex.DecodeString(tt.frame)
			if _, _, err := UnwrapResponse(frame); !errors.Is(err, transfer.ErrNotEnoughData) {
				t.Errorf("err = %v, want NotEnoughData", err)
			}
		})
	}
}

func TestUnwrapResponse_SplitsHeader(t *testing.T) {
	frame, _ := hex.DecodeString("00000001" + "0000002A" + "CAFE" + "9000")

	hdr, packet, err := UnwrapResponse(frame)
	if err != nil {
		t.Fatalf("UnwrapResponse: %v", err)
	}
	if hdr != (Header{Version: 1, TransactionID: 42}) {
		t.Errorf("header = %+v", hdr)
	}
	if !bytes.Equal(packet, []byte{0xCA, 0xFE}) {
		t.Errorf("packet = %X", packet)
	}
}

func TestWrapRequest(t *testing.T) {
	frame := WrapRequest(Header{Version: 1, TransactionID: 7}, transfer.NewRequest(transfer.CommandGetPersonalCards, 1))

	want, _ := hex.DecodeString("00000001" + "00000007" + "CA4DDA7A" + "00000001" + "11")
	if !bytes.Equal(frame, want) {
		t.Fatalf("frame = %X, want %X", frame, want)
	}

	hdr, packet, err := ParseRequest(frame)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if hdr.TransactionID != 7 || len(packet) != transfer.RequestHeaderLen {
		t.Errorf("got %+v, %X", hdr, packet)
	}
}

func TestNegotiateVersion(t *testing.T) {
	if v, err := NegotiateVersion(9); err != nil || v != CurrentTransportVersion {
		t.Errorf("NegotiateVersion(9) = %d, %v", v, err)
	}
	if _, err := NegotiateVersion(0); !errors.Is(err, transfer.ErrUnsupportedProtocolVersion) {
		t.Errorf("NegotiateVersion(0) err = %v", err)
	}
}

func TestFCI(t *testing.T) {
	raw, err := FCI{DFName: DefaultAID, Label: "abc"}.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	want, _ := hex.DecodeString("6F11" + "8408F04C4F59414C5459" + "A505" + "5003616263")
	if !bytes.Equal(raw, want) {
		t.Errorf("FCI = %X, want %X", raw, want)
	}

	fci, err := ParseFCI(raw)
	if err != nil {
		t.Fatalf("ParseFCI: %v", err)
	}
	if !fci.Matches(DefaultAID) || fci.Label != "abc" {
		t.Errorf("parsed %+v", fci)
	}
}

func TestParseFCI_Errors(t *testing.T) {
	for _, in := range []string{"", "8400", "6F"} {
		raw, _ := hex.DecodeString(in)
		if _, err := ParseFCI(raw); err == nil {
			t.Errorf("ParseFCI(%q) succeeded", in)
		}
	}
}
