package hce

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/gregLibert/cardshare/pkg/transfer"
)

// DefaultTimeout bounds one complete tap exchange on the initiator side.
const DefaultTimeout = 5 * time.Second

type options struct {
	log        zerolog.Logger
	aid        []byte
	label      string
	maxVersion uint32
	timeout    time.Duration
	onSettled  func(Result)
}

func defaultOptions() options {
	return options{
		log:        zerolog.Nop(),
		aid:        DefaultAID,
		label:      DefaultLabel,
		maxVersion: transfer.CurrentFormatVersion,
		timeout:    DefaultTimeout,
	}
}

// Option configures a Responder or an Initiator.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithAID overrides DefaultAID.
func WithAID(aid []byte) Option {
	return func(o *options) { o.aid = append([]byte(nil), aid...) }
}

// WithLabel overrides the application label returned on SELECT.
func WithLabel(label string) Option {
	return func(o *options) { o.label = label }
}

// WithMaxFormatVersion caps the packet format version. Zero keeps the default.
func WithMaxFormatVersion(v uint32) Option {
	return func(o *options) {
		if v != 0 {
			o.maxVersion = v
		}
	}
}

// WithTimeout bounds one initiator exchange, from connect to reply.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// OnSettled registers a callback run after every initiator exchange, unless
// the initiator was closed meanwhile.
func OnSettled(fn func(Result)) Option {
	return func(o *options) { o.onSettled = fn }
}
