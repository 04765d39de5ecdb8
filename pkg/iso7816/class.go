package iso7816

import (
	"fmt"

	"github.com/gregLibert/cardshare/pkg/bits"
)

// Class Byte (CLA) Structure according to ISO/IEC 7816-4.
//
// Bit 8: Proprietary (1) or Interindustry (0).
// Bit 7: Type of Interindustry (0=First, 1=Further).
// Bit 5: Command Chaining (0=Last/Only, 1=More follow).
//
// First Interindustry (00xx xxxx): SM on bits 4-3, logical channel on bits 2-1.
// Further Interindustry (01xx xxxx): SM on bit 6, channel-4 on bits 4-1.
//
// Card transfer only ever talks on the basic channel without secure messaging,
// but inbound frames are decoded fully so a stray proprietary command is
// recognised as such instead of being mistaken for a SELECT.

// SecureMessaging defines the security level applied to the APDU.
type SecureMessaging int

const (
	SMNone         SecureMessaging = 0
	SMProprietary  SecureMessaging = 1
	SMHeaderNoProc SecureMessaging = 2
	SMHeaderAuth   SecureMessaging = 3
)

// Class represents the parsed ISO 7816-4 Class byte (CLA).
type Class struct {
	Raw             byte
	IsProprietary   bool
	IsChained       bool
	SecureMessaging SecureMessaging
	Channel         uint8 // Logical channel number (0-19)
}

// BasicClass is CLA 0x00: interindustry, basic channel, no SM, no chaining.
func BasicClass() Class {
	return Class{Raw: 0x00}
}

// NewClass creates a Class object by decoding a raw CLA byte.
func NewClass(cla byte) (Class, error) {
	if cla == 0xFF {
		return Class{}, fmt.Errorf("invalid CLA value: 0xFF is reserved")
	}

	c := Class{Raw: cla}

	if bits.IsSet(cla, 8) {
		c.IsProprietary = true
		return c, nil
	}

	c.IsChained = bits.IsSet(cla, 5)

	if !bits.IsSet(cla, 7) {
		c.SecureMessaging = SecureMessaging(bits.GetRange(cla, 4, 3))
		c.Channel = bits.GetRange(cla, 2, 1)
	} else {
		if bits.IsSet(cla, 6) {
			c.SecureMessaging = SMHeaderNoProc
		}
		c.Channel = bits.GetRange(cla, 4, 1) + 4
	}

	return c, nil
}

// Encode converts the Class object back to its byte representation.
func (c *Class) Encode() (byte, error) {
	if c.IsProprietary {
		return c.Raw, nil
	}
	if c.Channel > 19 {
		return 0, fmt.Errorf("channel %d out of range (max 19)", c.Channel)
	}

	var res byte
	res = bits.SetIf(res, 5, c.IsChained)

	if c.Channel <= 3 {
		res = bits.PutRange(res, 4, 3, byte(c.SecureMessaging))
		res = bits.PutRange(res, 2, 1, c.Channel)
		return res, nil
	}

	if c.SecureMessaging == SMProprietary || c.SecureMessaging == SMHeaderAuth {
		return 0, fmt.Errorf("SM indicator %d not supported for further interindustry range (ch 4-19)", c.SecureMessaging)
	}
	res = bits.Set(res, 7)
	res = bits.SetIf(res, 6, c.SecureMessaging != SMNone)
	res = bits.PutRange(res, 4, 1, c.Channel-4)
	return res, nil
}
