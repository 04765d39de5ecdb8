package hce

import (
	"context"

	"github.com/gregLibert/cardshare/pkg/card"
)

type catalogStub map[string]card.Provider

func (c catalogStub) ProviderInfo(id string) (card.Provider, bool) {
	p, ok := c[id]
	return p, ok
}

type memStore struct {
	cards []card.PersonalCard
	next  int64
}

func (m *memStore) List() []card.PersonalCard { return m.cards }

func (m *memStore) MintID() int64 {
	m.next++
	return m.next
}

func (m *memStore) Merge(in []card.PersonalCard) (added, skipped int, err error) {
next:
	for _, c := range in {
		for _, have := range m.cards {
			if card.SameCard(have, c) {
				skipped++
				continue next
			}
		}
		c.ID = m.MintID()
		m.cards = append(m.cards, c)
		added++
	}
	return added, skipped, nil
}

type fakeTag struct {
	connectErr error
	transceive func(n int, frame []byte) ([]byte, error)

	calls  int
	closed bool
}

func (f *fakeTag) Connect(context.Context) error { return f.connectErr }

func (f *fakeTag) Transceive(_ context.Context, frame []byte) ([]byte, error) {
	f.calls++
	return f.transceive(f.calls, frame)
}

func (f *fakeTag) Close() error {
	f.closed = true
	return nil
}

// loopback routes every frame to r, the way the platform would.
func loopback(r *Responder) *fakeTag {
	return &fakeTag{transceive: func(_ int, frame []byte) ([]byte, error) {
		return r.ProcessCommand(frame), nil
	}}
}
