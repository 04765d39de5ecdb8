package hce

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"
)

// DefaultAID is the application identifier both sides use unless configured
// otherwise: a proprietary (F0) RID followed by "LOYALTY".
var DefaultAID = []byte{0xF0, 'L', 'O', 'Y', 'A', 'L', 'T', 'Y'}

// DefaultLabel is the application label put in the FCI.
const DefaultLabel = "cardshare"

// FCI is the File Control Information returned when the application is
// selected.
type FCI struct {
	DFName []byte // tag 84
	Label  string // tag 50, inside A5
}

// Bytes encodes the FCI template 6F{84 DFName, A5{50 Label}}.
func (f FCI) Bytes() ([]byte, error) {
	return bertlv.Encode([]bertlv.TLV{
		{Tag: "6F", TLVs: []bertlv.TLV{
			{Tag: "84", Value: f.DFName},
			{Tag: "A5", TLVs: []bertlv.TLV{
				{Tag: "50", Value: []byte(f.Label)},
			}},
		}},
	})
}

// ParseFCI reads an FCI template. Unknown tags are ignored.
func ParseFCI(data []byte) (*FCI, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data cannot be parsed")
	}

	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("BER-TLV decode failed: %w", err)
	}
	if len(packets) == 0 || !strings.EqualFold(packets[0].Tag, "6F") {
		return nil, fmt.Errorf("missing FCI template (6F)")
	}

	fci := &FCI{}
	for _, p := range packets[0].TLVs {
		switch strings.ToUpper(p.Tag) {
		case "84":
			fci.DFName = p.Value
		case "A5":
			for _, q := range p.TLVs {
				if strings.EqualFold(q.Tag, "50") {
					fci.Label = string(q.Value)
				}
			}
		}
	}
	return fci, nil
}

// Matches reports whether the FCI names aid.
func (f *FCI) Matches(aid []byte) bool {
	return bytes.Equal(f.DFName, aid)
}
