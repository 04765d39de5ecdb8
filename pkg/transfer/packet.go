// Package transfer implements the card transfer packet format: a versioned,
// checksummed envelope around a list of personal cards.
//
// Request:
//
//	MAGIC:u32 | FORMAT_VERSION:u32 | COMMAND:u8 | body
//
// Response:
//
//	[prologue] MAGIC:u32 | FORMAT_VERSION:u32 | body | CRC32:u32 [epilogue]
//
// All integers are big-endian. The CRC-32 (IEEE) covers MAGIC through the end
// of the body. Prologue and epilogue belong to the transport and are supplied
// through Framing.
//
// Every error returned by this package is a *Error carrying one Kind.
package transfer

import (
	"fmt"
	"hash/crc32"
)

const (
	// Magic opens every packet.
	Magic uint32 = 0xCA4DDA7A
	// CurrentFormatVersion is the newest format this side speaks.
	CurrentFormatVersion uint32 = 1

	// RequestHeaderLen is MAGIC + FORMAT_VERSION + COMMAND.
	RequestHeaderLen = 9
	checksumLen      = 4
)

// Command selects the operation a request asks for.
type Command uint8

const (
	CommandGetPersonalCards Command = 0x11
)

func (c Command) String() string {
	switch c {
	case CommandGetPersonalCards:
		return "GET_PERSONAL_CARDS"
	default:
		return fmt.Sprintf("Command(0x%02X)", uint8(c))
	}
}

// ParseCommand accepts only the commands this side implements.
func ParseCommand(b uint8) (Command, error) {
	switch c := Command(b); c {
	case CommandGetPersonalCards:
		return c, nil
	default:
		return 0, errorf(UnknownCommand, "parse command", "command 0x%02X", b)
	}
}

// NewRequest builds a request packet. Requests carry no checksum.
func NewRequest(cmd Command, version uint32) []byte {
	var w Writer
	w.Uint32(Magic)
	w.Uint32(version)
	w.Uint8(uint8(cmd))
	return w.Bytes()
}

// Framing lets a transport wrap a response packet.
type Framing interface {
	Prologue(w *Writer)
	Epilogue(w *Writer)
}

// NoFraming is used when the packet travels on its own.
type NoFraming struct{}

func (NoFraming) Prologue(*Writer) {}
func (NoFraming) Epilogue(*Writer) {}

// Session carries the format version negotiated for one exchange. It starts
// at the local maximum and is lowered to what the peer declares.
type Session struct {
	max     uint32
	version uint32
}

// NewSession starts an exchange that speaks at most maxVersion. Zero means
// CurrentFormatVersion.
func NewSession(maxVersion uint32) *Session {
	if maxVersion == 0 {
		maxVersion = CurrentFormatVersion
	}
	return &Session{max: maxVersion, version: maxVersion}
}

// Version returns the version stamped on outgoing responses.
func (s *Session) Version() uint32 { return s.version }

// MaxVersion returns the highest version this side accepts.
func (s *Session) MaxVersion() uint32 { return s.max }

// Request builds a request at the session's current version.
func (s *Session) Request(cmd Command) []byte {
	return NewRequest(cmd, s.version)
}

// Dispatcher answers one parsed request. r is positioned after the header.
type Dispatcher func(cmd Command, r *Reader) ([]byte, error)

// RespondToRequest parses a request header, negotiates the version as
// min(local, peer) and hands the body to dispatch.
func (s *Session) RespondToRequest(payload []byte, dispatch Dispatcher) ([]byte, error) {
	const op = "respond to request"

	r := NewReader(payload)
	magic, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, errorf(InvalidMagic, op, "got 0x%08X", magic)
	}
	peer, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	if peer == 0 {
		return nil, errorf(UnsupportedProtocolVersion, op, "peer declared version 0")
	}
	raw, err := r.Uint8()
	if err != nil {
		return nil, err
	}

	s.version = min(s.max, peer)

	cmd, err := ParseCommand(raw)
	if err != nil {
		return nil, err
	}

	resp, err := dispatch(cmd, r)
	if err != nil {
		return nil, Classify(err, op, InvalidData)
	}
	return resp, nil
}

// CreateResponsePacket writes prologue, header, body, checksum and epilogue.
func (s *Session) CreateResponsePacket(framing Framing, body func(w *Writer) error) ([]byte, error) {
	if framing == nil {
		framing = NoFraming{}
	}

	var w Writer
	framing.Prologue(&w)
	start := w.Len()

	w.Uint32(Magic)
	w.Uint32(s.version)
	if err := body(&w); err != nil {
		return nil, Classify(err, "create response", InvalidData)
	}
	if err := w.Err(); err != nil {
		return nil, Classify(err, "create response", InvalidData)
	}

	w.Uint32(crc32.ChecksumIEEE(w.Bytes()[start:]))
	framing.Epilogue(&w)

	if err := w.Err(); err != nil {
		return nil, Classify(err, "create response", InvalidData)
	}
	return append([]byte(nil), w.Bytes()...), nil
}

// ReceivePacketData verifies a response packet and hands its body to read.
// The checksum is always checked before anything else is parsed.
func (s *Session) ReceivePacketData(packet []byte, read func(r *Reader) error) error {
	const op = "receive packet"

	if len(packet) < checksumLen {
		return errorf(NotEnoughData, op, "packet of %d bytes has no checksum", len(packet))
	}
	content := packet[:len(packet)-checksumLen]
	want := NewReader(packet[len(content):])
	sum, _ := want.Uint32()
	if got := crc32.ChecksumIEEE(content); got != sum {
		return errorf(WrongChecksum, op, "computed 0x%08X, trailer 0x%08X", got, sum)
	}

	r := NewReader(content)
	magic, err := r.Uint32()
	if err != nil {
		return err
	}
	if magic != Magic {
		return errorf(InvalidMagic, op, "got 0x%08X", magic)
	}
	version, err := r.Uint32()
	if err != nil {
		return err
	}
	if version == 0 || version > s.max {
		return errorf(UnsupportedProtocolVersion, op, "peer version %d, supported up to %d", version, s.max)
	}
	s.version = version

	if err := read(r); err != nil {
		return Classify(err, op, InvalidData)
	}
	if r.Remaining() > 0 {
		return errorf(InvalidData, op, "%d trailing bytes after body", r.Remaining())
	}
	return nil
}
