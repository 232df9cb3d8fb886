package wire

import (
	"errors"
	"fmt"
)

// Sentinel errors for codec operations.
var (
	ErrEncode = errors.New("encode failed")
	ErrDecode = errors.New("decode failed")
)

const previewLen = 10

// DecodeError reports bytes that did not parse as an Envelope. Raw holds the
// complete input so callers can forward it for inspection.
type DecodeError struct {
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v: %d bytes, head [% x]", e.Err, len(e.Raw), e.Head())
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Head returns up to the first ten raw bytes.
func (e *DecodeError) Head() []byte {
	return Head(e.Raw)
}

// Head returns up to the first ten bytes of b for diagnostics.
func Head(b []byte) []byte {
	if len(b) > previewLen {
		return b[:previewLen]
	}
	return b
}
