// Package link carries a personal-card packet inside a share URL:
//
//	<base>?type=card&data=<base64url, no padding>
//
// The packet is a plain response packet with no transport framing.
package link

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"

	"github.com/gregLibert/cardshare/pkg/card"
	"github.com/gregLibert/cardshare/pkg/transfer"
)

// Query parameters of a share link.
const (
	TypeParam = "type"
	DataParam = "data"
	TypeCard  = "card"
)

var (
	// ErrNotALink means the URL is not a card share link at all.
	ErrNotALink = errors.New("link: not a card link")
	// ErrIncompatible means the URL is a card link whose payload cannot be
	// read by this version. The taxonomy error is wrapped alongside it.
	ErrIncompatible = errors.New("link: incompatible card link")
)

var encoding = base64.RawURLEncoding

// Encode appends packet to base as a card link.
func Encode(base string, packet []byte) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set(TypeParam, TypeCard)
	q.Set(DataParam, encoding.EncodeToString(packet))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Export builds the packet for cards and encodes it as a link.
func Export(base string, codec *transfer.Codec, cards []card.PersonalCard) (string, error) {
	packet, err := codec.PersonalCardPacket(transfer.NewSession(0), transfer.NoFraming{}, cards)
	if err != nil {
		return "", err
	}
	return Encode(base, packet)
}

// Payload returns the raw packet carried by u. The type parameter is checked
// before the data is looked at.
func Payload(u *url.URL) ([]byte, error) {
	q := u.Query()
	if q.Get(TypeParam) != TypeCard {
		return nil, ErrNotALink
	}
	packet, err := encoding.DecodeString(q.Get(DataParam))
	if err != nil {
		return nil, incompatible(transfer.NewError(transfer.InvalidData, "decode link", err))
	}
	return packet, nil
}

// Decode reads the cards carried by u.
func Decode(u *url.URL, codec *transfer.Codec) ([]card.PersonalCard, error) {
	packet, err := Payload(u)
	if err != nil {
		return nil, err
	}
	cards, err := codec.ReceivePersonalCardPacket(transfer.NewSession(0), packet)
	if err != nil {
		return nil, incompatible(err)
	}
	return cards, nil
}

// DecodeString parses raw and decodes it.
func DecodeString(raw string, codec *transfer.Codec) ([]card.PersonalCard, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotALink, err)
	}
	return Decode(u, codec)
}

func incompatible(err error) error {
	return fmt.Errorf("%w: %w", ErrIncompatible, err)
}
