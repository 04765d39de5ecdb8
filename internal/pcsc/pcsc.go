// Package pcsc drives the initiator role from a PC/SC contactless reader.
//
// A phone running the cardshare responder looks like an ISO-DEP card to the
// reader, so the exchange is plain APDU transmission through scard.
package pcsc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ebfe/scard"
	"github.com/rs/zerolog"

	"github.com/gregLibert/cardshare/pkg/hce"
)

// pollInterval bounds each GetStatusChange wait so cancellation is noticed.
const pollInterval = 500 * time.Millisecond

// ErrNoReader is returned when PC/SC reports no usable reader.
var ErrNoReader = errors.New("pcsc: no reader found")

// card is the part of *scard.Card the tag needs.
type card interface {
	Transmit(cmd []byte) ([]byte, error)
	Disconnect(d scard.Disposition) error
}

// scardContext is the part of *scard.Context the poller needs.
type scardContext interface {
	ListReaders() ([]string, error)
	GetStatusChange(states []scard.ReaderState, timeout time.Duration) error
	Connect(reader string, mode scard.ShareMode, proto scard.Protocol) (card, error)
	Release() error
}

type liveContext struct{ *scard.Context }

func (c liveContext) Connect(reader string, mode scard.ShareMode, proto scard.Protocol) (card, error) {
	return c.Context.Connect(reader, mode, proto)
}

// Tag adapts a card presented on a reader to hce.Tag.
type Tag struct {
	ctx    scardContext
	reader string

	mu   sync.Mutex
	card card
}

func (t *Tag) Reader() string { return t.reader }

func (t *Tag) Connect(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, err := t.ctx.Connect(t.reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		return linkError(err)
	}
	t.card = c
	return nil
}

// Transceive transmits one APDU. PC/SC calls cannot be interrupted, so ctx is
// only checked before the call.
func (t *Tag) Transceive(ctx context.Context, frame []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.card == nil {
		return nil, hce.ErrTagLost
	}

	resp, err := t.card.Transmit(frame)
	if err != nil {
		return nil, linkError(err)
	}
	return resp, nil
}

func (t *Tag) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.card == nil {
		return nil
	}
	err := t.card.Disconnect(scard.LeaveCard)
	t.card = nil
	if err != nil && !cardRemoved(err) {
		return err
	}
	return nil
}

// linkError maps reader errors meaning the card left the field onto
// hce.ErrTagLost.
func linkError(err error) error {
	if cardRemoved(err) {
		return fmt.Errorf("%w: %v", hce.ErrTagLost, err)
	}
	return fmt.Errorf("pcsc: %w", err)
}

func cardRemoved(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, scard.ErrRemovedCard),
		errors.Is(err, scard.ErrResetCard),
		errors.Is(err, scard.ErrNoSmartcard),
		errors.Is(err, scard.ErrUnpoweredCard):
		return true
	}
	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, scard.ErrTimeout) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

// Handler is called once per card arrival.
type Handler func(ctx context.Context, tag *Tag)

// Poller waits for cards on one reader and hands each arrival to a Handler.
type Poller struct {
	ctx    scardContext
	reader string
	log    zerolog.Logger
}

// Open establishes a PC/SC context. An empty reader selects the first
// contactless reader, or the first reader when none look contactless.
func Open(reader string, log zerolog.Logger) (*Poller, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("pcsc: establish context: %w", err)
	}
	p, err := newPoller(liveContext{ctx}, reader, log)
	if err != nil {
		_ = ctx.Release()
		return nil, err
	}
	return p, nil
}

func newPoller(ctx scardContext, reader string, log zerolog.Logger) (*Poller, error) {
	if reader == "" {
		readers, err := ctx.ListReaders()
		if err != nil {
			return nil, fmt.Errorf("pcsc: list readers: %w", err)
		}
		if reader = pickReader(readers); reader == "" {
			return nil, ErrNoReader
		}
	}
	return &Poller{
		ctx:    ctx,
		reader: reader,
		log:    log.With().Str("reader", reader).Logger(),
	}, nil
}

func pickReader(readers []string) string {
	for _, r := range readers {
		l := strings.ToLower(r)
		if strings.Contains(l, "picc") || strings.Contains(l, "contactless") || strings.Contains(l, "nfc") {
			return r
		}
	}
	if len(readers) > 0 {
		return readers[0]
	}
	return ""
}

func (p *Poller) Reader() string { return p.reader }

func (p *Poller) Close() error { return p.ctx.Release() }

// Run calls h for every card presented until ctx is done. A card must leave
// the field before it is handed over again.
func (p *Poller) Run(ctx context.Context, h Handler) error {
	states := []scard.ReaderState{{Reader: p.reader, CurrentState: scard.StateUnaware}}
	handled := false

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		err := p.ctx.GetStatusChange(states, pollInterval)
		switch {
		case err == nil:
		case isTimeout(err):
			continue
		case errors.Is(err, scard.ErrCancelled):
			return nil
		default:
			return fmt.Errorf("pcsc: status change on %s: %w", p.reader, err)
		}

		event := states[0].EventState
		states[0].CurrentState = event &^ scard.StateChanged

		switch {
		case event&scard.StateEmpty != 0:
			if handled {
				p.log.Debug().Msg("card left the field")
			}
			handled = false
		case event&scard.StatePresent != 0 && !handled:
			handled = true
			p.log.Debug().Msg("card presented")
			h(ctx, &Tag{ctx: p.ctx, reader: p.reader})
		}
	}
}
