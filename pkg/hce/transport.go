// Package hce carries transfer packets over an ISO 7816-4 contactless link:
// one side emulates a card (Responder), the other reads it (Initiator).
//
// After the application is selected, the initiator sends a single request
// frame and the responder answers with a single response frame:
//
//	request:  TRANSPORT_VERSION:u32 | TRANSACTION_ID:u32 | request packet
//	response: TRANSPORT_VERSION:u32 | TRANSACTION_ID:u32 | response packet | 90 00
//	failure:  SW1 SW2
package hce

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gregLibert/cardshare/pkg/iso7816"
	"github.com/gregLibert/cardshare/pkg/transfer"
)

// CurrentTransportVersion is the newest frame layout this side speaks.
const CurrentTransportVersion uint32 = 1

const headerLen = 8

// ErrTagLost is returned by a Tag when the peer left the field mid-exchange.
var ErrTagLost = errors.New("hce: tag lost")

// StatusError is a failure frame whose status word maps to no error kind.
type StatusError struct {
	SW iso7816.StatusWord
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hce: unexpected status word %02X%02X", e.SW.SW1(), e.SW.SW2())
}

var statusByKind = map[transfer.Kind]iso7816.StatusWord{
	transfer.InvalidMagic:               iso7816.SW_ERR_CLA_NOT_SUPPORTED,
	transfer.UnknownCommand:             iso7816.SW_ERR_CMD_NOT_ALLOWED_NO_EF,
	transfer.NotEnoughData:              iso7816.SW_WARN_MORE_DATA,
	transfer.InvalidData:                iso7816.SW_ERR_REF_DATA_NOT_USABLE,
	transfer.UnsupportedProtocolVersion: iso7816.SW_ERR_INCORRECT_PARAMS_DATA,
	transfer.WrongChecksum:              iso7816.SW_WARN_DATA_CORRUPTED,
	transfer.SecurityViolation:          iso7816.SW_ERR_SECURITY_STATUS,
}

var kindByStatus = func() map[iso7816.StatusWord]transfer.Kind {
	m := make(map[iso7816.StatusWord]transfer.Kind, len(statusByKind))
	for k, sw := range statusByKind {
		m[sw] = k
	}
	return m
}()

// StatusFor maps err to the status word sent back to the initiator. Errors
// outside the taxonomy become COMMAND_ABORTED (6F00).
func StatusFor(err error) iso7816.StatusWord {
	if kind, ok := transfer.KindOf(err); ok {
		if sw, ok := statusByKind[kind]; ok {
			return sw
		}
	}
	return iso7816.SW_ERR_UNKNOWN
}

// KindFor is the inverse of StatusFor over the taxonomy.
func KindFor(sw iso7816.StatusWord) (transfer.Kind, bool) {
	k, ok := kindByStatus[sw]
	return k, ok
}

// Header is the transaction header in front of every request and response.
type Header struct {
	Version       uint32
	TransactionID uint32
}

func (h Header) append(b []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, h.Version)
	return binary.BigEndian.AppendUint32(b, h.TransactionID)
}

func parseHeader(b []byte, op string) (Header, []byte, error) {
	if len(b) < headerLen {
		return Header{}, nil, transfer.NewError(transfer.NotEnoughData, op,
			fmt.Errorf("frame of %d bytes has no transaction header", len(b)))
	}
	h := Header{
		Version:       binary.BigEndian.Uint32(b[0:4]),
		TransactionID: binary.BigEndian.Uint32(b[4:8]),
	}
	return h, b[headerLen:], nil
}

// NegotiateVersion returns min(peer, CurrentTransportVersion). A peer that
// declares version 0 is not speaking this protocol.
func NegotiateVersion(peer uint32) (uint32, error) {
	if peer == 0 {
		return 0, transfer.NewError(transfer.UnsupportedProtocolVersion, "negotiate transport", errors.New("peer declared version 0"))
	}
	return min(peer, CurrentTransportVersion), nil
}

// WrapRequest prefixes a request packet with its transaction header.
func WrapRequest(h Header, packet []byte) []byte {
	return append(h.append(make([]byte, 0, headerLen+len(packet))), packet...)
}

// ParseRequest splits a request frame into its header and packet.
func ParseRequest(frame []byte) (Header, []byte, error) {
	return parseHeader(frame, "parse request")
}

// responseFraming writes the transaction header as the packet prologue and
// the OK status word as its epilogue.
type responseFraming struct {
	header Header
}

func (f responseFraming) Prologue(w *transfer.Writer) {
	w.Uint32(f.header.Version)
	w.Uint32(f.header.TransactionID)
}

func (f responseFraming) Epilogue(w *transfer.Writer) {
	w.Raw(iso7816.SW_NO_ERROR.Bytes())
}

// ErrorFrame is the failure answer for err: its status word alone.
func ErrorFrame(err error) []byte {
	return StatusFor(err).Bytes()
}

// UnwrapResponse checks the trailing status word of a response frame and
// splits off the transaction header. A mapped failure status comes back as
// the matching *transfer.Error, any other one as a *StatusError.
func UnwrapResponse(frame []byte) (Header, []byte, error) {
	const op = "unwrap response"

	resp, err := iso7816.ParseResponseAPDU(frame)
	if err != nil {
		return Header{}, nil, transfer.NewError(transfer.NotEnoughData, op, err)
	}
	if resp.Status != iso7816.SW_NO_ERROR {
		if kind, ok := KindFor(resp.Status); ok {
			return Header{}, nil, transfer.NewError(kind, op, fmt.Errorf("peer answered %s", resp.Status))
		}
		return Header{}, nil, &StatusError{SW: resp.Status}
	}
	return parseHeader(resp.Data, op)
}
