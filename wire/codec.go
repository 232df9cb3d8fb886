package wire

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync/atomic"
)

const (
	tagKind    = 0x08 // field 1, wire type 0
	tagPayload = 0x12 // field 2, wire type 2
)

// EncodeFunc encodes an envelope.
type EncodeFunc func(Envelope) ([]byte, error)

// Option configures a Codec.
type Option func(*Codec)

// WithPrimary replaces the primary envelope encoder.
func WithPrimary(fn EncodeFunc) Option {
	return func(c *Codec) { c.primary = fn }
}

// WithLogger sets the logger used to report encoder fallbacks.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Codec) { c.logger = logger }
}

// Codec encodes outbound envelopes with defect detection and decodes inbound
// ones. It is safe for concurrent use.
type Codec struct {
	primary   EncodeFunc
	logger    *slog.Logger
	fallbacks atomic.Int64
}

// NewCodec creates a Codec using Envelope.MarshalWire as the primary encoder.
func NewCodec(opts ...Option) *Codec {
	c := &Codec{
		primary: Envelope.MarshalWire,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encode encodes p and wraps it in an envelope of the given kind.
func (c *Codec) Encode(kind Kind, p Payload) ([]byte, error) {
	payload, err := p.AppendWire(nil)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return c.EncodeEnvelope(Envelope{Kind: kind, Payload: payload}), nil
}

// EncodeEnvelope runs the primary encoder and checks that its first byte is
// the varint tag of field 1. Output that fails the check, or a primary error,
// is discarded in favour of AppendManual.
func (c *Codec) EncodeEnvelope(env Envelope) []byte {
	b, err := c.primary(env)
	switch {
	case err != nil:
		c.logger.Warn(
			"primary encoder failed, using manual encoding",
			slog.String("kind", env.Kind.String()),
			slog.String("error", err.Error()),
		)
	case len(b) == 0 || b[0] != tagKind:
		c.logger.Warn(
			"primary encoder mis-framed kind field, using manual encoding",
			slog.String("kind", env.Kind.String()),
			slog.String("head", fmt.Sprintf("% x", Head(b))),
		)
	default:
		return b
	}

	c.fallbacks.Add(1)
	return AppendManual(nil, env)
}

// Fallbacks returns how many envelopes were produced by the manual encoder.
func (c *Codec) Fallbacks() int64 {
	return c.fallbacks.Load()
}

// DecodeEnvelope parses b. On failure the returned error is a *DecodeError
// holding a copy of b.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if err := env.UnmarshalWire(b); err != nil {
		return Envelope{}, &DecodeError{Raw: bytes.Clone(b), Err: err}
	}
	return env, nil
}

// DecodePayload decodes the envelope payload into p.
func DecodePayload(env Envelope, p Payload) error {
	if err := p.UnmarshalWire(env.Payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Kind, err)
	}
	return nil
}

// AppendManual appends the canonical envelope encoding to b, built byte by
// byte: tag 0x08, kind varint, tag 0x12, payload length varint, payload.
func AppendManual(b []byte, env Envelope) []byte {
	b = append(b, tagKind)
	b = appendUvarint(b, uint64(int64(env.Kind)))
	b = append(b, tagPayload)
	b = appendUvarint(b, uint64(len(env.Payload)))
	return append(b, env.Payload...)
}

func appendUvarint(b []byte, v uint64) []byte {
	for v >= 0x80 {
		b = append(b, byte(v)|0x80)
		v >>= 7
	}
	return append(b, byte(v))
}
