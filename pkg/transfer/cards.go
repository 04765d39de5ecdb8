package transfer

import (
	"math"

	"github.com/gregLibert/cardshare/pkg/card"
)

// Codec converts personal cards to and from packet bodies, resolving
// providers against the local catalog on both ends.
type Codec struct {
	catalog card.Catalog
}

// NewCodec returns a codec backed by catalog. A nil catalog knows no provider.
func NewCodec(catalog card.Catalog) *Codec {
	return &Codec{catalog: catalog}
}

func (c *Codec) provider(id string) (card.Provider, bool) {
	if c.catalog == nil || id == card.CustomProvider {
		return card.Provider{}, false
	}
	return c.catalog.ProviderInfo(id)
}

// Record converts an outgoing card. Cards without custom properties get a
// fallback synthesized from the local catalog when the provider is known, so
// a receiver lacking that provider can still render them.
func (c *Codec) Record(pc card.PersonalCard) Record {
	rec := Record{
		Name:       pc.Name,
		CardNumber: pc.CardNumber,
		Provider:   pc.Provider,
		WasCustom:  pc.CustomProperties != nil,
	}

	switch {
	case pc.CustomProperties != nil:
		fb := *pc.CustomProperties
		rec.Fallback = &fb
	default:
		if p, ok := c.provider(pc.Provider); ok {
			rec.Fallback = &card.CustomProperties{
				DisplayName:   p.DisplayName,
				BarcodeFormat: p.BarcodeFormat,
				Color:         p.Color(),
			}
		}
	}
	return rec
}

// Card resolves an incoming record against the local catalog. A known
// provider always wins, even over properties the sender marked custom; the
// fallback is used only when the provider is unknown here.
func (c *Codec) Card(rec Record) (card.PersonalCard, error) {
	pc := card.PersonalCard{
		ID:         card.TemporaryID,
		Name:       rec.Name,
		Provider:   rec.Provider,
		CardNumber: rec.CardNumber,
	}

	if _, ok := c.provider(rec.Provider); ok {
		return pc, nil
	}
	if rec.Fallback != nil {
		fb := *rec.Fallback
		pc.CustomProperties = &fb
		return pc, nil
	}
	if rec.WasCustom {
		return pc, errorf(InvalidData, "resolve card", "custom card %q carries no properties", rec.Provider)
	}
	return pc, nil
}

// WriteCards writes COUNT:u32 followed by one record per card.
func (c *Codec) WriteCards(w *Writer, cards []card.PersonalCard) error {
	if uint64(len(cards)) > math.MaxUint32 {
		return errorf(InvalidData, "write cards", "%d cards", len(cards))
	}
	w.Uint32(uint32(len(cards)))
	for _, pc := range cards {
		c.Record(pc).Encode(w)
	}
	return w.Err()
}

// ReadCards is the inverse of WriteCards. Every card gets card.TemporaryID.
func (c *Codec) ReadCards(r *Reader) ([]card.PersonalCard, error) {
	count, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	// Each record needs at least flags, number header and provider length.
	if uint64(count)*4 > uint64(r.Remaining()) {
		return nil, errorf(NotEnoughData, "read cards", "%d records cannot fit in %d bytes", count, r.Remaining())
	}

	cards := make([]card.PersonalCard, 0, count)
	for i := uint32(0); i < count; i++ {
		rec, err := ReadRecord(r)
		if err != nil {
			return nil, err
		}
		pc, err := c.Card(rec)
		if err != nil {
			return nil, err
		}
		cards = append(cards, pc)
	}
	return cards, nil
}

// PersonalCardPacket builds a complete response packet carrying cards.
func (c *Codec) PersonalCardPacket(s *Session, framing Framing, cards []card.PersonalCard) ([]byte, error) {
	return s.CreateResponsePacket(framing, func(w *Writer) error {
		return c.WriteCards(w, cards)
	})
}

// ReceivePersonalCardPacket verifies packet and decodes its cards.
func (c *Codec) ReceivePersonalCardPacket(s *Session, packet []byte) ([]card.PersonalCard, error) {
	var cards []card.PersonalCard
	err := s.ReceivePacketData(packet, func(r *Reader) error {
		var err error
		cards, err = c.ReadCards(r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cards, nil
}
