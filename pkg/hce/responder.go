package hce

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/gregLibert/cardshare/pkg/card"
	"github.com/gregLibert/cardshare/pkg/iso7816"
	"github.com/gregLibert/cardshare/pkg/transfer"
)

// minFrameLen is the shortest frame worth parsing.
const minFrameLen = 5

// CardSource lists the cards the responder may share.
type CardSource interface {
	List() []card.PersonalCard
}

// Liveness reports whether the hosting application is in the foreground.
type Liveness interface {
	Foreground() bool
}

// LivenessFunc adapts a function to Liveness.
type LivenessFunc func() bool

func (f LivenessFunc) Foreground() bool { return f() }

// AlwaysForeground is the Liveness of a headless responder.
var AlwaysForeground Liveness = LivenessFunc(func() bool { return true })

// DeactivationReason tells why the platform stopped routing frames to us.
type DeactivationReason int

const (
	LinkLoss DeactivationReason = iota
	Deselected
)

func (r DeactivationReason) String() string {
	switch r {
	case LinkLoss:
		return "link loss"
	case Deselected:
		return "deselected"
	default:
		return fmt.Sprintf("DeactivationReason(%d)", int(r))
	}
}

// shareState is replaced as a whole, never mutated.
type shareState struct {
	armed bool
	ids   map[int64]struct{} // nil shares everything
}

func (s *shareState) filter(cards []card.PersonalCard) []card.PersonalCard {
	if s.ids == nil {
		return cards
	}
	out := make([]card.PersonalCard, 0, len(s.ids))
	for _, c := range cards {
		if _, ok := s.ids[c.ID]; ok {
			out = append(out, c)
		}
	}
	return out
}

var disarmed = &shareState{}

// Responder answers the command frames routed to the emulated application.
// Frames are handled one at a time.
type Responder struct {
	opts  options
	cards CardSource
	codec *transfer.Codec
	live  Liveness

	state atomic.Pointer[shareState]
	mu    sync.Mutex
	log   zerolog.Logger
}

// NewResponder returns a disarmed responder exporting cards from src.
func NewResponder(src CardSource, catalog card.Catalog, live Liveness, opts ...Option) *Responder {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if live == nil {
		live = AlwaysForeground
	}

	r := &Responder{
		opts:  o,
		cards: src,
		codec: transfer.NewCodec(catalog),
		live:  live,
		log:   o.log.With().Str("component", "hce.responder").Logger(),
	}
	r.state.Store(disarmed)
	return r
}

// Arm starts sharing. With no ids every card is shared, otherwise only the
// listed ones.
func (r *Responder) Arm(ids ...int64) {
	st := &shareState{armed: true}
	if len(ids) > 0 {
		st.ids = make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			st.ids[id] = struct{}{}
		}
	}
	r.state.Store(st)
	r.log.Debug().Int("ids", len(ids)).Msg("sharing armed")
}

// Disarm stops sharing. Frames processed after Disarm returns are refused.
func (r *Responder) Disarm() {
	r.state.Store(disarmed)
	r.log.Debug().Msg("sharing disarmed")
}

// Armed reports whether sharing is currently armed.
func (r *Responder) Armed() bool {
	return r.state.Load().armed
}

// Deactivated is called by the platform when the link goes away.
func (r *Responder) Deactivated(reason DeactivationReason) {
	r.log.Debug().Stringer("reason", reason).Msg("deactivated")
}

// ProcessCommand answers one inbound command frame. It never fails: every
// problem is reported to the peer as a status word.
func (r *Responder) ProcessCommand(frame []byte) (resp []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Interface("panic", p).Msg("aborted command")
			resp = iso7816.SW_ERR_UNKNOWN.Bytes()
		}
	}()

	if iso7816.IsSelectOf(frame, r.opts.aid) {
		return r.selected()
	}

	st := r.state.Load()
	if !st.armed || !r.live.Foreground() {
		r.log.Warn().Bool("armed", st.armed).Msg("refused frame")
		return ErrorFrame(transfer.ErrSecurityViolation)
	}

	if len(frame) < minFrameLen {
		return r.fail(Header{}, transfer.NewError(transfer.NotEnoughData, "process command",
			fmt.Errorf("frame of %d bytes", len(frame))))
	}

	hdr, out, err := r.respond(frame, st)
	if err != nil {
		return r.fail(hdr, err)
	}
	r.log.Debug().Uint32("txid", hdr.TransactionID).Int("bytes", len(out)).Msg("answered request")
	return out
}

func (r *Responder) selected() []byte {
	fci, err := FCI{DFName: r.opts.aid, Label: r.opts.label}.Bytes()
	if err != nil {
		r.log.Warn().Err(err).Msg("encode FCI")
		fci = nil
	}
	r.log.Debug().Msg("application selected")
	return iso7816.NewResponseAPDU(fci, iso7816.SW_NO_ERROR).Bytes()
}

func (r *Responder) fail(hdr Header, err error) []byte {
	sw := StatusFor(err)
	r.log.Warn().Err(err).Uint32("txid", hdr.TransactionID).Stringer("sw", sw).Msg("request failed")
	return sw.Bytes()
}

func (r *Responder) respond(frame []byte, st *shareState) (Header, []byte, error) {
	hdr, payload, err := ParseRequest(frame)
	if err != nil {
		return hdr, nil, err
	}
	version, err := NegotiateVersion(hdr.Version)
	if err != nil {
		return hdr, nil, err
	}
	framing := responseFraming{header: Header{Version: version, TransactionID: hdr.TransactionID}}

	session := transfer.NewSession(r.opts.maxVersion)
	resp, err := session.RespondToRequest(payload, func(cmd transfer.Command, _ *transfer.Reader) ([]byte, error) {
		switch cmd {
		case transfer.CommandGetPersonalCards:
			return r.codec.PersonalCardPacket(session, framing, st.filter(r.cards.List()))
		default:
			return nil, transfer.NewError(transfer.UnknownCommand, "dispatch", fmt.Errorf("no handler for %s", cmd))
		}
	})
	return hdr, resp, err
}
