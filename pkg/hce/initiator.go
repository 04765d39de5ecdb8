package hce

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/gregLibert/cardshare/pkg/card"
	"github.com/gregLibert/cardshare/pkg/iso7816"
	"github.com/gregLibert/cardshare/pkg/transfer"
)

// Initiator errors that do not come from the peer.
var (
	ErrBusy     = errors.New("hce: exchange already in flight")
	ErrDisabled = errors.New("hce: initiator is not listening")
	ErrClosed   = errors.New("hce: initiator closed")
)

// Tag is a card-emulating peer in the field.
type Tag interface {
	Connect(ctx context.Context) error
	Transceive(ctx context.Context, frame []byte) ([]byte, error)
	Close() error
}

// State of an Initiator.
type State int32

const (
	Disabled State = iota
	Listening
	TagConnected
	Selected
	AwaitingResponse
	Settled
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "DISABLED"
	case Listening:
		return "LISTENING"
	case TagConnected:
		return "TAG_CONNECTED"
	case Selected:
		return "SELECTED"
	case AwaitingResponse:
		return "AWAITING_RESPONSE"
	case Settled:
		return "SETTLED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Result is the outcome of one tap exchange.
type Result struct {
	Imported      int
	Skipped       int
	TransactionID uint32
	Err           error
	// Recoverable is set when the user can simply tap again.
	Recoverable bool
}

// Recoverable reports whether another tap may succeed after err. Tag loss
// and timeouts always qualify; protocol errors defer to Kind.Recoverable.
func Recoverable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrTagLost), errors.Is(err, context.DeadlineExceeded):
		return true
	}
	if kind, ok := transfer.KindOf(err); ok {
		return kind.Recoverable()
	}
	return false
}

// Initiator reads cards from a Responder and merges them into a store.
type Initiator struct {
	opts  options
	store card.Store
	codec *transfer.Codec
	log   zerolog.Logger

	busy atomic.Bool

	mu     sync.Mutex
	state  State
	txid   uint32
	closed bool
}

// NewInitiator returns a disabled initiator importing into store.
func NewInitiator(store card.Store, catalog card.Catalog, opts ...Option) *Initiator {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Initiator{
		opts:  o,
		store: store,
		codec: transfer.NewCodec(catalog),
		log:   o.log.With().Str("component", "hce.initiator").Logger(),
	}
}

// Enable starts listening for tags.
func (i *Initiator) Enable() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	if i.state == Disabled {
		i.state = Listening
	}
}

// Disable stops accepting new tags. An exchange in flight still completes.
func (i *Initiator) Disable() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = Disabled
}

// Close disables the initiator for good. An exchange in flight completes but
// its cards are not merged and OnSettled is not called.
func (i *Initiator) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
	i.state = Disabled
}

// State returns the current state.
func (i *Initiator) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// TransactionID returns the id the next exchange will use.
func (i *Initiator) TransactionID() uint32 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.txid
}

func (i *Initiator) advance(to State) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != Disabled {
		i.state = to
	}
}

// Discovered runs one exchange with a tag that entered the field. A second
// discovery while an exchange is in flight returns ErrBusy and leaves the
// tag alone.
func (i *Initiator) Discovered(ctx context.Context, tag Tag) (Result, error) {
	if !i.busy.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	defer i.busy.Store(false)

	i.mu.Lock()
	if i.state != Listening {
		closed := i.closed
		i.mu.Unlock()
		if closed {
			return Result{}, ErrClosed
		}
		return Result{}, ErrDisabled
	}
	txid := i.txid
	i.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, i.opts.timeout)
	defer cancel()

	res := Result{TransactionID: txid}
	res.Imported, res.Skipped, res.Err = i.exchange(ctx, tag, txid)
	res.Recoverable = Recoverable(res.Err)
	return i.settle(res), nil
}

func (i *Initiator) exchange(ctx context.Context, tag Tag, txid uint32) (added, skipped int, err error) {
	if err := tag.Connect(ctx); err != nil {
		return 0, 0, fmt.Errorf("connect: %w", err)
	}
	defer func() {
		if cerr := tag.Close(); cerr != nil {
			i.log.Debug().Err(cerr).Msg("close tag")
		}
	}()
	i.advance(TagConnected)

	if err := i.selectApp(ctx, tag); err != nil {
		return 0, 0, err
	}
	i.advance(Selected)

	session := transfer.NewSession(i.opts.maxVersion)
	frame := WrapRequest(Header{Version: CurrentTransportVersion, TransactionID: txid}, session.Request(transfer.CommandGetPersonalCards))

	i.advance(AwaitingResponse)
	reply, err := tag.Transceive(ctx, frame)
	if err != nil {
		return 0, 0, fmt.Errorf("transceive request: %w", err)
	}

	cards, err := i.decode(session, reply, txid)
	if err != nil {
		return 0, 0, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return 0, 0, ErrClosed
	}
	return i.store.Merge(cards)
}

func (i *Initiator) selectApp(ctx context.Context, tag Tag) error {
	client := iso7816.NewClient(iso7816.TransmitterFunc(func(cmd []byte) ([]byte, error) {
		return tag.Transceive(ctx, cmd)
	}))

	trace, err := client.Send(iso7816.SelectByAID(iso7816.BasicClass(), i.opts.aid))
	if err != nil {
		return fmt.Errorf("select: %w", err)
	}
	i.log.Debug().Array("apdus", trace).Msg("select")
	if !trace.IsSuccess() {
		return transfer.NewError(transfer.UnknownCommand, "select", fmt.Errorf("peer answered %s", trace.Status()))
	}

	if data := trace.Data(); len(data) > 0 {
		fci, err := ParseFCI(data)
		if err != nil {
			i.log.Debug().Err(err).Msg("unparsable FCI")
		} else if !fci.Matches(i.opts.aid) {
			return transfer.NewError(transfer.UnknownCommand, "select", fmt.Errorf("peer selected %X", fci.DFName))
		}
	}
	return nil
}

func (i *Initiator) decode(session *transfer.Session, reply []byte, txid uint32) ([]card.PersonalCard, error) {
	const op = "decode response"

	hdr, packet, err := UnwrapResponse(reply)
	if err != nil {
		return nil, err
	}
	if hdr.Version == 0 || hdr.Version > CurrentTransportVersion {
		return nil, transfer.NewError(transfer.UnsupportedProtocolVersion, op,
			fmt.Errorf("transport version %d", hdr.Version))
	}
	if hdr.TransactionID != txid {
		return nil, transfer.NewError(transfer.InvalidData, op,
			fmt.Errorf("reply for transaction %d, expected %d", hdr.TransactionID, txid))
	}
	return i.codec.ReceivePersonalCardPacket(session, packet)
}

func (i *Initiator) settle(res Result) Result {
	i.mu.Lock()
	i.txid++
	closed := i.closed
	if i.state != Disabled {
		i.state = Settled
	}
	i.mu.Unlock()

	ev := i.log.Debug()
	if res.Err != nil {
		ev = i.log.Warn().Err(res.Err).Bool("recoverable", res.Recoverable)
		if kind, ok := transfer.KindOf(res.Err); ok {
			ev = ev.Stringer("kind", kind).Stringer("sw", StatusFor(res.Err))
		}
	}
	ev.Uint32("txid", res.TransactionID).Int("imported", res.Imported).Int("skipped", res.Skipped).Msg("exchange settled")

	if !closed && i.opts.onSettled != nil {
		i.opts.onSettled(res)
	}

	i.mu.Lock()
	if i.state == Settled {
		i.state = Listening
	}
	i.mu.Unlock()
	return res
}
