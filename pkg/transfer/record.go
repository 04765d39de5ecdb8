package transfer

import (
	"github.com/gregLibert/cardshare/pkg/bits"
	"github.com/gregLibert/cardshare/pkg/card"
)

// Record flag bits (ISO numbering, bit 1 = LSB).
const (
	flagHasName     uint = 1
	flagWasCustom   uint = 2
	flagHasFallback uint = 3
)

// Record is one card entry of a personal-card packet.
type Record struct {
	Name       *string
	CardNumber string
	Provider   string
	// WasCustom is set when the sender held the card with its own
	// rendering properties rather than a catalog reference.
	WasCustom bool
	// Fallback lets a receiver without the provider render the card.
	Fallback *card.CustomProperties
}

func (rec Record) flags() byte {
	var f byte
	f = bits.SetIf(f, flagHasName, rec.Name != nil)
	f = bits.SetIf(f, flagWasCustom, rec.WasCustom)
	f = bits.SetIf(f, flagHasFallback, rec.Fallback != nil)
	return f
}

// Encode appends the record to w.
func (rec Record) Encode(w *Writer) {
	w.Uint8(rec.flags())
	if rec.Name != nil {
		w.UTF(*rec.Name)
	}
	writeCardNumber(w, rec.CardNumber)
	w.UTF(rec.Provider)
	if fb := rec.Fallback; fb != nil {
		if !fb.BarcodeFormat.Valid() {
			w.fail(errorf(InvalidData, "write record", "barcode format %d has no wire code", uint8(fb.BarcodeFormat)))
			return
		}
		w.UTF(fb.DisplayName)
		w.Uint8(fb.BarcodeFormat.Code())
		w.Int32(fb.Color)
	}
}

// ReadRecord decodes one record. Unknown flag bits are ignored.
func ReadRecord(r *Reader) (Record, error) {
	var rec Record

	flags, err := r.Uint8()
	if err != nil {
		return rec, err
	}
	rec.WasCustom = bits.IsSet(flags, flagWasCustom)

	if bits.IsSet(flags, flagHasName) {
		name, err := r.UTF()
		if err != nil {
			return rec, err
		}
		rec.Name = &name
	}

	if rec.CardNumber, err = readCardNumber(r); err != nil {
		return rec, err
	}
	if rec.Provider, err = r.UTF(); err != nil {
		return rec, err
	}

	if bits.IsSet(flags, flagHasFallback) {
		var fb card.CustomProperties
		if fb.DisplayName, err = r.UTF(); err != nil {
			return rec, err
		}
		code, err := r.Uint8()
		if err != nil {
			return rec, err
		}
		format, ok := card.BarcodeFormatFromCode(code)
		if !ok {
			return rec, errorf(InvalidData, "read record", "unknown barcode format code %d", code)
		}
		fb.BarcodeFormat = format
		if fb.Color, err = r.Int32(); err != nil {
			return rec, err
		}
		rec.Fallback = &fb
	}

	return rec, nil
}
