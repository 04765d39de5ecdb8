// Package config loads cardshare settings from a TOML file, an optional .env
// file and environment variables, in that order of precedence.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	EnvStore    = "CARDSHARE_STORE"
	EnvCatalog  = "CARDSHARE_CATALOG"
	EnvListen   = "CARDSHARE_LISTEN"
	EnvLinkBase = "CARDSHARE_LINK_BASE"
)

type Config struct {
	Store   StoreConfig   `toml:"store"`
	Catalog CatalogConfig `toml:"catalog"`
	Link    LinkConfig    `toml:"link"`
	HCE     HCEConfig     `toml:"hce"`
	Bridge  BridgeConfig  `toml:"bridge"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type CatalogConfig struct {
	Path string `toml:"path"`
}

type LinkConfig struct {
	Base              string   `toml:"base"`
	Listen            string   `toml:"listen"`
	CorsOrigins       []string `toml:"cors_origins"`
	RequestsPerMinute int      `toml:"requests_per_minute"`
}

type HCEConfig struct {
	AID              string   `toml:"aid"`
	Label            string   `toml:"label"`
	Timeout          Duration `toml:"timeout"`
	MaxFormatVersion uint32   `toml:"max_format_version"`
}

type BridgeConfig struct {
	Listen    string `toml:"listen"`
	Instance  string `toml:"instance"`
	Advertise bool   `toml:"advertise"`
}

// Duration reads values such as "5s" or "750ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func Default() Config {
	return Config{
		Store:   StoreConfig{Path: "cards.json"},
		Catalog: CatalogConfig{Path: "catalog.toml"},
		Link: LinkConfig{
			Base:              "https://cardshare.app/share",
			Listen:            ":8080",
			CorsOrigins:       []string{"*"},
			RequestsPerMinute: 60,
		},
		HCE: HCEConfig{
			AID:              "F04C4F59414C5459",
			Label:            "cardshare",
			Timeout:          Duration{5 * time.Second},
			MaxFormatVersion: 1,
		},
		Bridge: BridgeConfig{
			Listen:    ":7341",
			Instance:  "cardshare",
			Advertise: true,
		},
	}
}

// LoadEnv reads .env style files into the process environment. Missing files
// are skipped; variables already set win.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("env load failed (%s): %w", p, err)
		}
	}
	return nil
}

// Load starts from Default, applies the TOML file at path (if any) and then
// the environment, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			sort.Strings(keys)
			return Config{}, fmt.Errorf("config parse failed (%s): unknown keys %s", path, strings.Join(keys, ", "))
		}
	}

	applyEnvOverrides(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvStore)); v != "" {
		cfg.Store.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvCatalog)); v != "" {
		cfg.Catalog.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvListen)); v != "" {
		cfg.Link.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLinkBase)); v != "" {
		cfg.Link.Base = v
	}
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Store.Path) == "" {
		return fmt.Errorf("store config missing path")
	}
	if strings.TrimSpace(cfg.Catalog.Path) == "" {
		return fmt.Errorf("catalog config missing path")
	}
	if u, err := url.Parse(cfg.Link.Base); err != nil || u.Scheme == "" {
		return fmt.Errorf("link config base %q is not an absolute url", cfg.Link.Base)
	}
	if cfg.Link.RequestsPerMinute <= 0 {
		return fmt.Errorf("link config requests_per_minute must be positive")
	}
	if _, err := cfg.HCE.AIDBytes(); err != nil {
		return err
	}
	if cfg.HCE.Timeout.Duration <= 0 {
		return fmt.Errorf("hce config timeout must be positive")
	}
	if strings.TrimSpace(cfg.Bridge.Listen) == "" {
		return fmt.Errorf("bridge config missing listen")
	}
	return nil
}

// AIDBytes decodes the hex application identifier. ISO 7816-4 allows 5 to 16
// bytes.
func (c HCEConfig) AIDBytes() ([]byte, error) {
	aid, err := hex.DecodeString(strings.TrimSpace(c.AID))
	if err != nil {
		return nil, fmt.Errorf("hce config aid: %w", err)
	}
	if len(aid) < 5 || len(aid) > 16 {
		return nil, fmt.Errorf("hce config aid must be 5 to 16 bytes, got %d", len(aid))
	}
	return aid, nil
}
