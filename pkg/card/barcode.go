package card

import (
	"fmt"
	"strings"
)

// BarcodeFormat is the symbology used to render a card number.
type BarcodeFormat uint8

// The numeric values are the wire codes of the transfer format and must not
// be reordered.
const (
	Aztec BarcodeFormat = iota
	Codabar
	Code39
	Code93
	Code128
	DataMatrix
	EAN8
	EAN13
	ITF
	MaxiCode
	PDF417
	QRCode
	RSS14
	RSSExpanded
	UPCA
	UPCE
	UPCEANExtension

	barcodeFormatCount
)

var barcodeNames = [barcodeFormatCount]string{
	Aztec:           "AZTEC",
	Codabar:         "CODABAR",
	Code39:          "CODE_39",
	Code93:          "CODE_93",
	Code128:         "CODE_128",
	DataMatrix:      "DATA_MATRIX",
	EAN8:            "EAN_8",
	EAN13:           "EAN_13",
	ITF:             "ITF",
	MaxiCode:        "MAXICODE",
	PDF417:          "PDF_417",
	QRCode:          "QR_CODE",
	RSS14:           "RSS_14",
	RSSExpanded:     "RSS_EXPANDED",
	UPCA:            "UPC_A",
	UPCE:            "UPC_E",
	UPCEANExtension: "UPC_EAN_EXTENSION",
}

func (f BarcodeFormat) String() string {
	if f.Valid() {
		return barcodeNames[f]
	}
	return fmt.Sprintf("BarcodeFormat(%d)", uint8(f))
}

// Valid reports whether f is a known format.
func (f BarcodeFormat) Valid() bool {
	return f < barcodeFormatCount
}

// Code returns the wire code of f.
func (f BarcodeFormat) Code() uint8 {
	return uint8(f)
}

// BarcodeFormatFromCode maps a wire code back to a format.
func BarcodeFormatFromCode(code uint8) (BarcodeFormat, bool) {
	f := BarcodeFormat(code)
	return f, f.Valid()
}

// ParseBarcodeFormat accepts the canonical names ("EAN_13") case-insensitively,
// with '-' or ' ' in place of '_'.
func ParseBarcodeFormat(name string) (BarcodeFormat, error) {
	norm := strings.ToUpper(strings.NewReplacer("-", "_", " ", "_").Replace(strings.TrimSpace(name)))
	for i, n := range barcodeNames {
		if n == norm {
			return BarcodeFormat(i), nil
		}
	}
	return 0, fmt.Errorf("unknown barcode format %q", name)
}

// MarshalText encodes f by name.
func (f BarcodeFormat) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid barcode format %d", uint8(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText decodes a format name.
func (f *BarcodeFormat) UnmarshalText(text []byte) error {
	parsed, err := ParseBarcodeFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
