package wire

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

// Payload is a message body carried inside an Envelope.
type Payload interface {
	// AppendWire appends the encoded payload to b.
	AppendWire(b []byte) ([]byte, error)
	// UnmarshalWire replaces the receiver's contents with the decoded b.
	UnmarshalWire(b []byte) error
}

// Envelope is the outer (kind, payload) wrapper common to every message.
type Envelope struct {
	Kind    Kind
	Payload []byte
}

// MarshalWire is the primary envelope encoder. Kinds outside the closed
// enumeration are rejected; Codec recovers from that through the manual encoder.
func (e Envelope) MarshalWire() ([]byte, error) {
	if !e.Kind.Valid() {
		return nil, fmt.Errorf("%w: kind %d out of range", ErrEncode, int32(e.Kind))
	}
	b := make([]byte, 0, envelopeSize(e))
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(e.Kind)))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, e.Payload)
	return b, nil
}

func (e *Envelope) UnmarshalWire(b []byte) error {
	*e = Envelope{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			if typ != protowire.VarintType {
				return 0, fmt.Errorf("%w: envelope field 1 framed as wire type %d", ErrDecode, typ)
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, parseError(n)
			}
			e.Kind = Kind(int32(v))
			return n, nil
		case 2:
			if typ != protowire.BytesType {
				return 0, fmt.Errorf("%w: envelope field 2 framed as wire type %d", ErrDecode, typ)
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, parseError(n)
			}
			e.Payload = bytes.Clone(v)
			return n, nil
		}
		return 0, nil
	})
}

// StringList carries keys for ADD_STRINGS and REMOVE_STRINGS.
type StringList struct {
	Strings []string
}

func (m *StringList) AppendWire(b []byte) ([]byte, error) {
	var err error
	for _, s := range m.Strings {
		if b, err = appendString(b, 1, s, true); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (m *StringList) UnmarshalWire(b []byte) error {
	*m = StringList{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return 0, nil
		}
		var s string
		n, err := consumeString(typ, b, &s)
		if err == nil {
			m.Strings = append(m.Strings, s)
		}
		return n, err
	})
}

// SearchRequest asks the engine for keys containing Query.
type SearchRequest struct {
	Query    string
	SearchID string
}

func (m *SearchRequest) AppendWire(b []byte) ([]byte, error) {
	b, err := appendString(b, 1, m.Query, false)
	if err != nil {
		return nil, err
	}
	return appendString(b, 2, m.SearchID, false)
}

func (m *SearchRequest) UnmarshalWire(b []byte) error {
	*m = SearchRequest{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &m.Query)
		case 2:
			return consumeString(typ, b, &m.SearchID)
		}
		return 0, nil
	})
}

// SearchResults answers the SearchRequest whose id is SearchID.
type SearchResults struct {
	Results  []string
	SearchID string
}

func (m *SearchResults) AppendWire(b []byte) ([]byte, error) {
	var err error
	for _, s := range m.Results {
		if b, err = appendString(b, 1, s, true); err != nil {
			return nil, err
		}
	}
	return appendString(b, 2, m.SearchID, false)
}

func (m *SearchResults) UnmarshalWire(b []byte) error {
	*m = SearchResults{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			var s string
			n, err := consumeString(typ, b, &s)
			if err == nil {
				m.Results = append(m.Results, s)
			}
			return n, err
		case 2:
			return consumeString(typ, b, &m.SearchID)
		}
		return 0, nil
	})
}

// ErrorMessage reports a failure inside the engine.
type ErrorMessage struct {
	Message string
}

func (m *ErrorMessage) AppendWire(b []byte) ([]byte, error) {
	return appendString(b, 1, m.Message, false)
}

func (m *ErrorMessage) UnmarshalWire(b []byte) error {
	*m = ErrorMessage{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeString(typ, b, &m.Message)
		}
		return 0, nil
	})
}

// LogMessage is free-form engine diagnostics.
type LogMessage struct {
	Message string
}

func (m *LogMessage) AppendWire(b []byte) ([]byte, error) {
	return appendString(b, 1, m.Message, false)
}

func (m *LogMessage) UnmarshalWire(b []byte) error {
	*m = LogMessage{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeString(typ, b, &m.Message)
		}
		return 0, nil
	})
}

// CountResponse confirms an add or remove with the engine's total key count.
type CountResponse struct {
	Count uint32
}

func (m *CountResponse) AppendWire(b []byte) ([]byte, error) {
	if m.Count == 0 {
		return b, nil
	}
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(m.Count)), nil
}

func (m *CountResponse) UnmarshalWire(b []byte) error {
	*m = CountResponse{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return 0, nil
		}
		if typ != protowire.VarintType {
			return 0, fmt.Errorf("%w: count framed as wire type %d", ErrDecode, typ)
		}
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return 0, parseError(n)
		}
		m.Count = uint32(v)
		return n, nil
	})
}

// Empty is the payload of CANCEL_SEARCH, SEARCH_CANCELLED and CLEAR.
type Empty struct{}

func (Empty) AppendWire(b []byte) ([]byte, error) {
	return b, nil
}

func (Empty) UnmarshalWire(b []byte) error {
	return consumeFields(b, func(protowire.Number, protowire.Type, []byte) (int, error) {
		return 0, nil
	})
}

// consumeFields walks b field by field. fn returns the number of bytes it
// consumed for the field value, or 0 to have the field skipped.
func consumeFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseError(n)
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return parseError(m)
			}
		}
		b = b[m:]
	}
	return nil
}

func consumeString(typ protowire.Type, b []byte, dst *string) (int, error) {
	if typ != protowire.BytesType {
		return 0, fmt.Errorf("%w: string framed as wire type %d", ErrDecode, typ)
	}
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return 0, parseError(n)
	}
	if !utf8.ValidString(v) {
		return 0, fmt.Errorf("%w: invalid UTF-8 in string field", ErrDecode)
	}
	*dst = v
	return n, nil
}

// appendString encodes a string field. Singular empty strings are omitted;
// repeated elements are always written so empty entries survive.
func appendString(b []byte, num protowire.Number, s string, repeated bool) ([]byte, error) {
	if !utf8.ValidString(s) {
		return nil, fmt.Errorf("%w: field %d: invalid UTF-8", ErrEncode, num)
	}
	if s == "" && !repeated {
		return b, nil
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s), nil
}

func parseError(n int) error {
	return fmt.Errorf("%w: %v", ErrDecode, protowire.ParseError(n))
}

func envelopeSize(e Envelope) int {
	return 1 + protowire.SizeVarint(uint64(int64(e.Kind))) +
		1 + protowire.SizeBytes(len(e.Payload))
}
