// Package card holds the loyalty-card data model shared by the transfer codec,
// both transports and the local catalog and store.
package card

import (
	"fmt"
	"strings"
)

// Reserved identifiers.
const (
	// InvalidID marks a card that has not been given any identity.
	InvalidID int64 = -1
	// TemporaryID marks a card decoded from a transfer; the store assigns a
	// real identifier when the card is merged.
	TemporaryID int64 = -2
)

// CustomProvider is the provider key of cards that have no catalog entry.
const CustomProvider = "custom"

// CustomProperties describe how to render a card without a catalog entry.
type CustomProperties struct {
	DisplayName   string        `json:"displayName"`
	BarcodeFormat BarcodeFormat `json:"barcodeFormat"`
	Color         int32         `json:"color"` // ARGB
}

// PersonalCard is one card the user owns.
type PersonalCard struct {
	ID               int64             `json:"id"`
	Name             *string           `json:"name,omitempty"`
	Provider         string            `json:"provider"`
	CustomProperties *CustomProperties `json:"customProperties,omitempty"`
	CardNumber       string            `json:"cardNumber"`
}

// IsCustom reports whether the card is fully user defined.
func (c PersonalCard) IsCustom() bool {
	return c.Provider == CustomProvider
}

// Provider is the catalog entry for a card issuer.
type Provider struct {
	ID            string
	DisplayName   string
	BarcodeFormat BarcodeFormat
	BrandColor    *int32
}

// Color returns the brand color, or 0 when the catalog has none.
func (p Provider) Color() int32 {
	if p.BrandColor == nil {
		return 0
	}
	return *p.BrandColor
}

// Catalog resolves provider keys against the shared card catalog.
type Catalog interface {
	ProviderInfo(id string) (Provider, bool)
}

// Store is the local personal-card collection.
type Store interface {
	List() []PersonalCard
	MintID() int64
	// Merge appends cards, skipping any for which SameCard matches an
	// existing entry. It reports how many were added and skipped.
	Merge(cards []PersonalCard) (added, skipped int, err error)
}

// SameCard implements the duplicate rule applied on import: same provider and
// number, and for custom cards also the same display name and format.
func SameCard(a, b PersonalCard) bool {
	if a.Provider != b.Provider || a.CardNumber != b.CardNumber {
		return false
	}
	if !a.IsCustom() {
		return true
	}
	if a.CustomProperties == nil || b.CustomProperties == nil {
		return a.CustomProperties == b.CustomProperties
	}
	return a.CustomProperties.DisplayName == b.CustomProperties.DisplayName &&
		a.CustomProperties.BarcodeFormat == b.CustomProperties.BarcodeFormat
}

// DisplayName returns the label shown for c. An explicit name wins; otherwise
// the provider (or custom) name is combined with the tail of the number.
func DisplayName(c PersonalCard, catalog Catalog) string {
	if c.Name != nil && strings.TrimSpace(*c.Name) != "" {
		return *c.Name
	}

	base := c.Provider
	if c.CustomProperties != nil {
		base = c.CustomProperties.DisplayName
	}
	if catalog != nil {
		if p, ok := catalog.ProviderInfo(c.Provider); ok {
			base = p.DisplayName
		}
	}

	number := c.CardNumber
	if len(number) > 4 {
		number = number[len(number)-4:]
	}
	if number == "" {
		return base
	}
	return fmt.Sprintf("%s ·%s", base, number)
}
