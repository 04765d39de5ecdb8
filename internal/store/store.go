// Package store keeps the user's personal cards in a JSON file.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gregLibert/cardshare/pkg/card"
)

type fileFormat struct {
	NextID int64               `json:"nextId"`
	Cards  []card.PersonalCard `json:"cards"`
}

// Store implements card.Store. A Store without a path lives in memory only.
type Store struct {
	path string
	log  zerolog.Logger

	mu     sync.RWMutex
	cards  []card.PersonalCard
	nextID int64
}

var _ card.Store = (*Store)(nil)

type Option func(*Store)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l.With().Str("component", "store").Logger() }
}

// NewMemory returns an empty store that is never persisted.
func NewMemory(cards ...card.PersonalCard) *Store {
	s := &Store{log: zerolog.Nop(), nextID: 1}
	for _, c := range cards {
		if c.ID >= s.nextID {
			s.nextID = c.ID + 1
		}
		s.cards = append(s.cards, c)
	}
	return s
}

// Open loads the store at path. A missing file is an empty store.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path, log: zerolog.Nop(), nextID: 1}
	for _, opt := range opts {
		opt(s)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.log.Debug().Str("path", path).Msg("starting empty store")
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("store load failed (%s): %w", path, err)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("store parse failed (%s): %w", path, err)
	}
	s.cards = f.Cards
	s.nextID = f.NextID
	for _, c := range s.cards {
		if c.ID >= s.nextID {
			s.nextID = c.ID + 1
		}
	}
	if s.nextID < 1 {
		s.nextID = 1
	}
	return s, nil
}

// List returns a copy of every card.
func (s *Store) List() []card.PersonalCard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]card.PersonalCard(nil), s.cards...)
}

// Filter returns the cards whose id is in ids, in store order.
func (s *Store) Filter(ids []int64) []card.PersonalCard {
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []card.PersonalCard
	for _, c := range s.cards {
		if _, ok := want[c.ID]; ok {
			out = append(out, c)
		}
	}
	return out
}

// MintID reserves a fresh identifier.
func (s *Store) MintID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mintLocked()
}

func (s *Store) mintLocked() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// Merge adds cards that card.SameCard does not match against the store or
// against an earlier card of the same batch. New cards get a minted id.
func (s *Store) Merge(cards []card.PersonalCard) (added, skipped int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := append([]card.PersonalCard(nil), s.cards...)
	nextID := s.nextID

next:
	for _, c := range cards {
		for _, have := range merged {
			if card.SameCard(have, c) {
				skipped++
				continue next
			}
		}
		c.ID = s.mintLocked()
		merged = append(merged, c)
		added++
	}

	if added == 0 {
		return 0, skipped, nil
	}
	if err := s.saveLocked(merged); err != nil {
		s.nextID = nextID
		return 0, 0, err
	}
	s.cards = merged
	s.log.Info().Int("added", added).Int("skipped", skipped).Msg("merged cards")
	return added, skipped, nil
}

// saveLocked writes next to the target and renames over it.
func (s *Store) saveLocked(cards []card.PersonalCard) error {
	if s.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(fileFormat{NextID: s.nextID, Cards: cards}, "", "  ")
	if err != nil {
		return fmt.Errorf("store encode failed: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".cards-*.json")
	if err != nil {
		return fmt.Errorf("store save failed (%s): %w", s.path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store save failed (%s): %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store save failed (%s): %w", s.path, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("store save failed (%s): %w", s.path, err)
	}
	return nil
}
