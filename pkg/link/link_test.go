package link

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/cardshare/pkg/card"
	"github.com/gregLibert/cardshare/pkg/transfer"
)

const base = "https://cards.example/share"

func TestEncode_EmptyPacketFixture(t *testing.T) {
	packet := []byte{
		0xCA, 0x4D, 0xDA, 0x7A, 0x00, 0x00, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x00, 0xCC, 0x44, 0xDD, 0x8D,
	}

	got, err := Encode(base, packet)
	if err != nil {
		t.Fatal(err)
	}
	want := base + "?data=yk3aegAAAAEAAAAAzETdjQ&type=card"
	if got != want {
		t.Errorf("Encode = %q, want %q", got, want)
	}

	exported, err := Export(base, transfer.NewCodec(nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	if exported != want {
		t.Errorf("Export = %q, want %q", exported, want)
	}
}

func TestRoundTrip(t *testing.T) {
	cards := []card.PersonalCard{
		{ID: card.TemporaryID, Provider: card.CustomProvider, CardNumber: "000123",
			CustomProperties: &card.CustomProperties{DisplayName: "Café", BarcodeFormat: card.Code39, Color: -1}},
	}

	raw, err := Export(base, transfer.NewCodec(nil), cards)
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if data := u.Query().Get(DataParam); strings.ContainsAny(data, "=+/") {
		t.Errorf("data %q is not unpadded base64url", data)
	}

	got, err := DecodeString(raw, transfer.NewCodec(nil))
	if err != nil {
		t.Fatalf("DecodeString: %v", err)
	}
	if diff := cmp.Diff(cards, got); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestDecode_Errors(t *testing.T) {
	valid, err := Export(base, transfer.NewCodec(nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	// Flip one payload character to corrupt the checksum.
	corrupted := strings.Replace(valid, "data=yk3a", "data=yk3b", 1)

	tests := []struct {
		name string
		raw  string
		want error
		kind error
	}{
		{"no type", base + "?data=AAAA", ErrNotALink, nil},
		{"other type", base + "?type=provider&data=AAAA", ErrNotALink, nil},
		{"bad base64", base + "?type=card&data=!!!", ErrIncompatible, transfer.ErrInvalidData},
		{"padded base64", base + "?type=card&data=AA%3D%3D", ErrIncompatible, transfer.ErrInvalidData},
		{"too short", base + "?type=card&data=AAA", ErrIncompatible, transfer.ErrNotEnoughData},
		{"corrupted", corrupted, ErrIncompatible, transfer.ErrWrongChecksum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			if err != nil {
				t.Fatal(err)
			}
			_, err = Decode(u, transfer.NewCodec(nil))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if tt.kind != nil && !errors.Is(err, tt.kind) {
				t.Errorf("err = %v, want kind %v", err, tt.kind)
			}
		})
	}
}
