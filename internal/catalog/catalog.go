// Package catalog holds the shared provider catalog, loaded from TOML:
//
//	[[provider]]
//	id     = "acme"
//	name   = "Acme Stores"
//	format = "EAN_13"
//	color  = "#FF8800"
package catalog

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/gregLibert/cardshare/pkg/card"
)

type fileConfig struct {
	Providers []providerEntry `toml:"provider"`
}

type providerEntry struct {
	ID     string `toml:"id"`
	Name   string `toml:"name"`
	Format string `toml:"format"`
	Color  string `toml:"color"`
}

// Catalog is an immutable set of providers. It implements card.Catalog.
type Catalog struct {
	providers map[string]card.Provider
}

var _ card.Catalog = (*Catalog)(nil)

// New builds a catalog from already-validated providers.
func New(providers ...card.Provider) *Catalog {
	c := &Catalog{providers: make(map[string]card.Provider, len(providers))}
	for _, p := range providers {
		c.providers[p.ID] = p
	}
	return c
}

// Load reads the catalog file at path.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog load failed (%s): %w", path, err)
	}
	defer f.Close()

	c, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("catalog load failed (%s): %w", path, err)
	}
	return c, nil
}

// Decode parses a TOML catalog.
func Decode(r io.Reader) (*Catalog, error) {
	var raw fileConfig
	meta, err := toml.NewDecoder(r).Decode(&raw)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %s", undecoded[0])
	}

	c := &Catalog{providers: make(map[string]card.Provider, len(raw.Providers))}
	for i, e := range raw.Providers {
		p, err := e.provider()
		if err != nil {
			return nil, fmt.Errorf("provider[%d] %q: %w", i, e.ID, err)
		}
		if _, dup := c.providers[p.ID]; dup {
			return nil, fmt.Errorf("provider[%d] %q: duplicate id", i, p.ID)
		}
		c.providers[p.ID] = p
	}
	return c, nil
}

func (e providerEntry) provider() (card.Provider, error) {
	id := strings.TrimSpace(e.ID)
	switch id {
	case "":
		return card.Provider{}, fmt.Errorf("id is required")
	case card.CustomProvider:
		return card.Provider{}, fmt.Errorf("id %q is reserved", card.CustomProvider)
	}
	if strings.TrimSpace(e.Name) == "" {
		return card.Provider{}, fmt.Errorf("name is required")
	}
	format, err := card.ParseBarcodeFormat(e.Format)
	if err != nil {
		return card.Provider{}, err
	}

	p := card.Provider{ID: id, DisplayName: strings.TrimSpace(e.Name), BarcodeFormat: format}
	if strings.TrimSpace(e.Color) != "" {
		color, err := ParseColor(e.Color)
		if err != nil {
			return card.Provider{}, err
		}
		p.BrandColor = &color
	}
	return p, nil
}

// ParseColor reads "#RRGGBB" (opaque) or "#AARRGGBB" into ARGB.
func ParseColor(s string) (int32, error) {
	hexDigits := strings.TrimPrefix(strings.TrimSpace(s), "#")
	v, err := strconv.ParseUint(hexDigits, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("color %q: %w", s, err)
	}
	switch len(hexDigits) {
	case 6:
		v |= 0xFF000000
	case 8:
	default:
		return 0, fmt.Errorf("color %q: want #RRGGBB or #AARRGGBB", s)
	}
	return int32(uint32(v)), nil
}

// ProviderInfo implements card.Catalog.
func (c *Catalog) ProviderInfo(id string) (card.Provider, bool) {
	if c == nil {
		return card.Provider{}, false
	}
	p, ok := c.providers[id]
	return p, ok
}

// Providers returns every provider sorted by id.
func (c *Catalog) Providers() []card.Provider {
	out := make([]card.Provider, 0, len(c.providers))
	for _, p := range c.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of providers.
func (c *Catalog) Len() int {
	return len(c.providers)
}
