package transfer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

// maxUTFLen is the largest encoded string a u16 length prefix can describe.
const maxUTFLen = 0xFFFF

// Writer accumulates big-endian fields. The first encoding error is sticky:
// later writes are dropped and Err reports it.
type Writer struct {
	buf bytes.Buffer
	err error
}

// Err returns the first error raised while writing.
func (w *Writer) Err() error { return w.err }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return w.buf.Len() }

// Bytes returns the accumulated bytes.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

func (w *Writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *Writer) Uint8(v uint8) {
	if w.err == nil {
		w.buf.WriteByte(v)
	}
}

func (w *Writer) Uint16(v uint16) {
	if w.err == nil {
		w.buf.Write(binary.BigEndian.AppendUint16(nil, v))
	}
}

func (w *Writer) Uint32(v uint32) {
	if w.err == nil {
		w.buf.Write(binary.BigEndian.AppendUint32(nil, v))
	}
}

func (w *Writer) Int32(v int32) { w.Uint32(uint32(v)) }

func (w *Writer) Int64(v int64) {
	if w.err == nil {
		w.buf.Write(binary.BigEndian.AppendUint64(nil, uint64(v)))
	}
}

// Raw appends b verbatim.
func (w *Writer) Raw(b []byte) {
	if w.err == nil {
		w.buf.Write(b)
	}
}

// UTF writes s as modified UTF-8 behind a u16 byte-length prefix: NUL becomes
// C0 80 and runes outside the BMP are written as two 3-byte surrogates.
func (w *Writer) UTF(s string) {
	enc := encodeModifiedUTF8(s)
	if len(enc) > maxUTFLen {
		w.fail(errorf(InvalidData, "write string", "encoded length %d exceeds %d", len(enc), maxUTFLen))
		return
	}
	w.Uint16(uint16(len(enc)))
	w.Raw(enc)
}

// Reader consumes big-endian fields from a byte slice. Reading past the end
// fails with NotEnoughData.
type Reader struct {
	data []byte
	off  int
}

// NewReader wraps data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.off }

// Offset returns the number of bytes consumed.
func (r *Reader) Offset() int { return r.off }

// Rest returns the unread bytes without consuming them.
func (r *Reader) Rest() []byte { return r.data[r.off:] }

func (r *Reader) take(n int, what string) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, errorf(NotEnoughData, "read "+what, "need %d bytes at offset %d, have %d", n, r.off, r.Remaining())
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) Uint8() (uint8, error) {
	b, err := r.take(1, "u8")
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Uint16() (uint16, error) {
	b, err := r.take(2, "u16")
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) Uint32() (uint32, error) {
	b, err := r.take(4, "u32")
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) Int32() (int32, error) {
	v, err := r.Uint32()
	return int32(v), err
}

func (r *Reader) Int64() (int64, error) {
	b, err := r.take(8, "i64")
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// Raw consumes n bytes.
func (r *Reader) Raw(n int) ([]byte, error) {
	return r.take(n, "bytes")
}

// UTF reads a string written by Writer.UTF.
func (r *Reader) UTF() (string, error) {
	n, err := r.Uint16()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n), "string")
	if err != nil {
		return "", err
	}
	return decodeModifiedUTF8(b)
}

func encodeModifiedUTF8(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r == 0:
			out = append(out, 0xC0, 0x80)
		case r < 0x80:
			out = append(out, byte(r))
		case r < 0x800:
			out = append(out, 0xC0|byte(r>>6), 0x80|byte(r&0x3F))
		case r < 0x10000:
			out = appendUnit3(out, r)
		default:
			hi, lo := utf16.EncodeRune(r)
			out = appendUnit3(appendUnit3(out, hi), lo)
		}
	}
	return out
}

func appendUnit3(out []byte, u rune) []byte {
	return append(out, 0xE0|byte(u>>12), 0x80|byte((u>>6)&0x3F), 0x80|byte(u&0x3F))
}

func decodeModifiedUTF8(b []byte) (string, error) {
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", malformedUTF(i)
			}
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", malformedUTF(i)
			}
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			return "", malformedUTF(i)
		}
	}

	for i := 0; i < len(units); i++ {
		switch u := rune(units[i]); {
		case u >= 0xD800 && u < 0xDC00:
			if i+1 >= len(units) || !isLowSurrogate(rune(units[i+1])) {
				return "", errorf(InvalidData, "read string", "unpaired high surrogate")
			}
			i++
		case isLowSurrogate(u):
			return "", errorf(InvalidData, "read string", "unpaired low surrogate")
		}
	}
	return string(utf16.Decode(units)), nil
}

func isLowSurrogate(u rune) bool {
	return u >= 0xDC00 && u < 0xE000
}

func malformedUTF(at int) *Error {
	return &Error{Kind: InvalidData, Op: "read string", Err: fmt.Errorf("malformed modified UTF-8 at byte %d", at)}
}
