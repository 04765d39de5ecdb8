package iso7816

import (
	"bytes"
	"fmt"
)

// SELECT COMMAND LOGIC (ISO 7816-4):
// The SELECT command (INS 'A4') opens a file or an application.
//
// P1 (Selection Method): how the target is named (file ID, DF name/AID, path).
// P2 (Selection Control): bits 4-3 pick the response template (FCI, FCP, FMD,
// none) and bits 2-1 the occurrence (first, last, next, previous).
//
// An emulated card is reached by SELECT with P1=04 and the application
// identifier as data; the platform routes every following command frame to the
// application that answered the SELECT.

// SelectionMethod defines how the file is targeted (P1).
type SelectionMethod byte

const (
	SelectByFileID   SelectionMethod = 0x00
	SelectByDFName   SelectionMethod = 0x04 // Select by AID
	SelectPathFromMF SelectionMethod = 0x08
)

func (s SelectionMethod) String() string {
	switch s {
	case SelectByFileID:
		return "Select by File ID"
	case SelectByDFName:
		return "Select by DF Name (AID)"
	case SelectPathFromMF:
		return "Select Path from MF"
	default:
		return fmt.Sprintf("Unknown Method (0x%02X)", byte(s))
	}
}

// FileOccurrence defines which instance of the file to select (Bits 1-2 of P2).
type FileOccurrence byte

const (
	FirstOrOnlyOccurrence FileOccurrence = 0b0000_00_00
	NextOccurrence        FileOccurrence = 0b0000_00_10
)

// SelectionControl defines what data to return (Bits 3-4 of P2).
type SelectionControl byte

const (
	ReturnFCI    SelectionControl = 0b0000_00_00
	ReturnFCP    SelectionControl = 0b0000_01_00
	ReturnNoData SelectionControl = 0b0000_11_00
)

// NewSelectCommand creates a generic SELECT command.
func NewSelectCommand(
	cla Class,
	method SelectionMethod,
	occurrence FileOccurrence,
	ctrl SelectionControl,
	data []byte,
) *CommandAPDU {
	p2 := byte(ctrl) | byte(occurrence)

	ins, _ := NewInstruction(INS_SELECT)

	// T=0: a case 3 command cannot carry Le; the card answers 61XX and the
	// Client fetches the data with GET RESPONSE.
	ne := 0
	if len(data) == 0 && ctrl != ReturnNoData {
		ne = MaxShortLe
	}

	return NewCommandAPDU(cla, ins, byte(method), p2, data, ne)
}

// SelectByAID creates a simplified SELECT command to select an application by its name (AID).
func SelectByAID(cla Class, aid []byte) *CommandAPDU {
	return NewSelectCommand(cla, SelectByDFName, FirstOrOnlyOccurrence, ReturnFCI, aid)
}

// SelectedAID returns the application identifier carried by cmd when it is a
// SELECT by DF name.
func SelectedAID(cmd *CommandAPDU) ([]byte, bool) {
	if cmd == nil || cmd.Instruction.Raw != INS_SELECT || SelectionMethod(cmd.P1) != SelectByDFName {
		return nil, false
	}
	return cmd.Data, len(cmd.Data) > 0
}

// IsSelectOf reports whether raw is a SELECT by DF name targeting aid.
func IsSelectOf(raw, aid []byte) bool {
	cmd, err := ParseCommandAPDU(raw)
	if err != nil {
		return false
	}
	selected, ok := SelectedAID(cmd)
	return ok && bytes.Equal(selected, aid)
}
