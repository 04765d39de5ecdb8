package card

import "testing"

type mapCatalog map[string]Provider

func (m mapCatalog) ProviderInfo(id string) (Provider, bool) {
	p, ok := m[id]
	return p, ok
}

func strPtr(s string) *string { return &s }

func TestSameCard(t *testing.T) {
	acme := PersonalCard{Provider: "acme", CardNumber: "123"}
	custom := func(name string, f BarcodeFormat) PersonalCard {
		return PersonalCard{
			Provider:         CustomProvider,
			CardNumber:       "123",
			CustomProperties: &CustomProperties{DisplayName: name, BarcodeFormat: f},
		}
	}

	tests := []struct {
		name string
		a, b PersonalCard
		want bool
	}{
		{"same provider and number", acme, acme, true},
		{"different number", acme, PersonalCard{Provider: "acme", CardNumber: "124"}, false},
		{"different provider", acme, PersonalCard{Provider: "other", CardNumber: "123"}, false},
		{"catalog card ignores fallback", acme, PersonalCard{Provider: "acme", CardNumber: "123", CustomProperties: &CustomProperties{DisplayName: "x"}}, true},
		{"custom same name and format", custom("Gym", QRCode), custom("Gym", QRCode), true},
		{"custom different name", custom("Gym", QRCode), custom("Pool", QRCode), false},
		{"custom different format", custom("Gym", QRCode), custom("Gym", EAN13), false},
		{"explicit name does not matter", acme, PersonalCard{Provider: "acme", CardNumber: "123", Name: strPtr("Mine")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SameCard(tt.a, tt.b); got != tt.want {
				t.Errorf("SameCard() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	catalog := mapCatalog{"acme": {ID: "acme", DisplayName: "Acme"}}

	tests := []struct {
		name string
		card PersonalCard
		want string
	}{
		{"explicit name", PersonalCard{Name: strPtr("Groceries"), Provider: "acme", CardNumber: "1"}, "Groceries"},
		{"catalog provider", PersonalCard{Provider: "acme", CardNumber: "0000690101612"}, "Acme ·1612"},
		{"custom", PersonalCard{Provider: CustomProvider, CardNumber: "77", CustomProperties: &CustomProperties{DisplayName: "Gym"}}, "Gym ·77"},
		{"unknown provider", PersonalCard{Provider: "zeta", CardNumber: "12345"}, "zeta ·2345"},
		{"blank name falls back", PersonalCard{Name: strPtr("  "), Provider: "zeta"}, "zeta"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DisplayName(tt.card, catalog); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBarcodeFormat(t *testing.T) {
	if EAN13.Code() != 7 || QRCode.Code() != 11 || UPCEANExtension.Code() != 16 {
		t.Error("wire codes changed")
	}
	if _, ok := BarcodeFormatFromCode(17); ok {
		t.Error("code 17 should be unknown")
	}

	for _, name := range []string{"EAN_13", "ean-13", "Ean 13"} {
		f, err := ParseBarcodeFormat(name)
		if err != nil || f != EAN13 {
			t.Errorf("ParseBarcodeFormat(%q) = %v, %v", name, f, err)
		}
	}
	if _, err := ParseBarcodeFormat("EAN_14"); err == nil {
		t.Error("expected error for unknown name")
	}

	var f BarcodeFormat
	if err := f.UnmarshalText([]byte("qr_code")); err != nil || f != QRCode {
		t.Errorf("UnmarshalText = %v, %v", f, err)
	}
	if _, err := BarcodeFormat(40).MarshalText(); err == nil {
		t.Error("MarshalText should reject unknown formats")
	}
}
