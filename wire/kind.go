// Package wire encodes and decodes the messages exchanged with the index engine.
//
// Every message is an Envelope carrying a Kind and an encoded payload. Framing is
// the protobuf wire format: each field is prefixed by a tag byte combining the
// field number and wire type, integers are varints, and strings and bytes are
// length-prefixed. The engine on the other side is compiled against this exact
// layout, so the envelope tags are fixed:
//
//	0x08  field 1, varint          kind
//	0x12  field 2, length-delimited payload
//
// Codec wraps the primary encoder with a manual fallback that always produces the
// canonical framing, and reports undecodable input as a *DecodeError holding the
// raw bytes instead of dropping it.
package wire

import "fmt"

// Kind enumerates the message kinds understood by the engine.
type Kind int32

const (
	KindUnknown         Kind = 0
	KindAddStrings      Kind = 1
	KindRemoveStrings   Kind = 2
	KindSearch          Kind = 3
	KindCancelSearch    Kind = 4
	KindSearchResults   Kind = 5
	KindSearchCancelled Kind = 6
	KindStringsAdded    Kind = 7
	KindStringsRemoved  Kind = 8
	KindError           Kind = 9
	KindLog             Kind = 10
	KindClear           Kind = 11
)

// KindCount is the number of defined kinds. Dispatchers that switch over Kind
// pin this value at compile time so a new kind cannot go unhandled.
const KindCount = 12

var kindNames = [KindCount]string{
	"UNKNOWN",
	"ADD_STRINGS",
	"REMOVE_STRINGS",
	"SEARCH",
	"CANCEL_SEARCH",
	"SEARCH_RESULTS",
	"SEARCH_CANCELLED",
	"STRINGS_ADDED",
	"STRINGS_REMOVED",
	"ERROR",
	"LOG",
	"CLEAR",
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	return k >= 0 && k < KindCount
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("KIND(%d)", int32(k))
	}
	return kindNames[k]
}

// Outbound reports whether k is sent by the client to the engine.
func (k Kind) Outbound() bool {
	switch k {
	case KindAddStrings, KindRemoveStrings, KindSearch, KindCancelSearch, KindClear:
		return true
	}
	return false
}
