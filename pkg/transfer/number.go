package transfer

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/gregLibert/cardshare/pkg/bits"
)

// Card numbers are written with a one byte header followed by the value:
//
//	bits 8-4  leading zero count (0-31), re-prepended on decode
//	bits 3-1  value type
//
//	INT     big-endian int32
//	LONG    big-endian int64
//	BIGINT  u16 length + two's-complement big-endian magnitude
//	STRING  modified UTF-8, verbatim (zero count is always 0)
//
// The numeric forms are only used when formatting the value back (after the
// stripped zeros) reproduces the input exactly, so "+5" or "-007" travel as
// strings.

type numberType uint8

const (
	numberInt numberType = iota
	numberLong
	numberBigInt
	numberString
)

const maxLeadingZeros = 31

func (t numberType) String() string {
	switch t {
	case numberInt:
		return "INT"
	case numberLong:
		return "LONG"
	case numberBigInt:
		return "BIGINT"
	case numberString:
		return "STRING"
	default:
		return "numberType(" + strconv.Itoa(int(t)) + ")"
	}
}

// compactNumber is one candidate encoding of a card number.
type compactNumber struct {
	typ   numberType
	zeros int
	i32   int32
	i64   int64
	big   *big.Int
	str   string
}

// encoders are tried in order; the first that accepts the digits wins.
var encoders = []func(digits string) (compactNumber, bool){
	tryInt,
	tryLong,
	tryBigInt,
}

func compactCardNumber(number string) compactNumber {
	zeros, digits := splitLeadingZeros(number)
	if bits.Fits(zeros, 8, 4) {
		for _, try := range encoders {
			if n, ok := try(digits); ok {
				n.zeros = zeros
				return n
			}
		}
	}
	return compactNumber{typ: numberString, str: number}
}

// splitLeadingZeros strips the zeros in front of a decimal number, always
// leaving at least one digit.
func splitLeadingZeros(s string) (int, string) {
	n := 0
	for n < len(s)-1 && s[n] == '0' {
		n++
	}
	return n, s[n:]
}

func tryInt(digits string) (compactNumber, bool) {
	v, err := strconv.ParseInt(digits, 10, 32)
	if err != nil || strconv.FormatInt(v, 10) != digits {
		return compactNumber{}, false
	}
	return compactNumber{typ: numberInt, i32: int32(v)}, true
}

func tryLong(digits string) (compactNumber, bool) {
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || strconv.FormatInt(v, 10) != digits {
		return compactNumber{}, false
	}
	return compactNumber{typ: numberLong, i64: v}, true
}

func tryBigInt(digits string) (compactNumber, bool) {
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok || v.String() != digits {
		return compactNumber{}, false
	}
	return compactNumber{typ: numberBigInt, big: v}, true
}

func writeCardNumber(w *Writer, number string) {
	n := compactCardNumber(number)

	var header byte
	header = bits.PutRange(header, 3, 1, byte(n.typ))
	header = bits.PutRange(header, 8, 4, byte(n.zeros))
	w.Uint8(header)

	switch n.typ {
	case numberInt:
		w.Int32(n.i32)
	case numberLong:
		w.Int64(n.i64)
	case numberBigInt:
		raw := bigIntBytes(n.big)
		if len(raw) > maxUTFLen {
			w.fail(errorf(InvalidData, "write card number", "big integer of %d bytes", len(raw)))
			return
		}
		w.Uint16(uint16(len(raw)))
		w.Raw(raw)
	case numberString:
		w.UTF(n.str)
	default:
		panic("transfer: unhandled number type " + n.typ.String())
	}
}

func readCardNumber(r *Reader) (string, error) {
	header, err := r.Uint8()
	if err != nil {
		return "", err
	}
	zeros := strings.Repeat("0", int(bits.GetRange(header, 8, 4)))

	switch typ := numberType(bits.GetRange(header, 3, 1)); typ {
	case numberInt:
		v, err := r.Int32()
		if err != nil {
			return "", err
		}
		return zeros + strconv.FormatInt(int64(v), 10), nil
	case numberLong:
		v, err := r.Int64()
		if err != nil {
			return "", err
		}
		return zeros + strconv.FormatInt(v, 10), nil
	case numberBigInt:
		n, err := r.Uint16()
		if err != nil {
			return "", err
		}
		if n == 0 {
			return "", errorf(InvalidData, "read card number", "empty big integer")
		}
		raw, err := r.Raw(int(n))
		if err != nil {
			return "", err
		}
		return zeros + bigIntFromBytes(raw).String(), nil
	case numberString:
		s, err := r.UTF()
		if err != nil {
			return "", err
		}
		return zeros + s, nil
	default:
		return "", errorf(InvalidData, "read card number", "unknown number type %d", uint8(typ))
	}
}

// bigIntBytes returns the minimal two's-complement big-endian form of v.
func bigIntBytes(v *big.Int) []byte {
	if v.Sign() >= 0 {
		b := v.Bytes()
		if len(b) == 0 || b[0]&0x80 != 0 {
			b = append([]byte{0}, b...)
		}
		return b
	}

	// For negative v, the byte length is derived from -v-1 (= ^v).
	n := new(big.Int).Not(v).BitLen()/8 + 1
	mod := new(big.Int).Lsh(big.NewInt(1), uint(8*n))
	b := new(big.Int).Add(mod, v).Bytes()
	if len(b) < n {
		pad := make([]byte, n-len(b))
		for i := range pad {
			pad[i] = 0xFF
		}
		b = append(pad, b...)
	}
	return b
}

func bigIntFromBytes(b []byte) *big.Int {
	v := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), uint(8*len(b))))
	}
	return v
}
