package wire_test

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/tailored-agentic-units/searchmap/wire"
)

func roundTrip(t *testing.T, in, out wire.Payload) {
	t.Helper()
	b, err := in.AppendWire(nil)
	if err != nil {
		t.Fatalf("AppendWire() error = %v", err)
	}
	if err := out.UnmarshalWire(b); err != nil {
		t.Fatalf("UnmarshalWire() error = %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestStringList_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   []string
	}{
		{"empty", nil},
		{"single empty string", []string{""}},
		{"several", []string{"apple", "", "banana", "ünïcödé"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roundTrip(t, &wire.StringList{Strings: tt.in}, &wire.StringList{})
		})
	}
}

func TestSearchRequest_RoundTrip(t *testing.T) {
	tests := []wire.SearchRequest{
		{},
		{Query: "a"},
		{Query: "app", SearchID: "0192f0c4-7d1e-7000-8000-000000000001"},
		{SearchID: "only-id"},
	}
	for _, tt := range tests {
		in := tt
		roundTrip(t, &in, &wire.SearchRequest{})
	}
}

func TestSearchResults_RoundTrip(t *testing.T) {
	tests := []wire.SearchResults{
		{},
		{SearchID: "a"},
		{Results: []string{"apple", "banana"}, SearchID: "a"},
		{Results: []string{""}},
	}
	for _, tt := range tests {
		in := tt
		roundTrip(t, &in, &wire.SearchResults{})
	}
}

func TestMessagePayloads_RoundTrip(t *testing.T) {
	roundTrip(t, &wire.ErrorMessage{}, &wire.ErrorMessage{})
	roundTrip(t, &wire.ErrorMessage{Message: "failed"}, &wire.ErrorMessage{})
	roundTrip(t, &wire.LogMessage{}, &wire.LogMessage{})
	roundTrip(t, &wire.LogMessage{Message: "booted"}, &wire.LogMessage{})
	roundTrip(t, &wire.CountResponse{}, &wire.CountResponse{})
	roundTrip(t, &wire.CountResponse{Count: 3}, &wire.CountResponse{})
	roundTrip(t, &wire.CountResponse{Count: 1<<32 - 1}, &wire.CountResponse{})
}

func TestSearchResults_FieldBytes(t *testing.T) {
	b, err := (&wire.SearchResults{Results: []string{"ab"}, SearchID: "q"}).AppendWire(nil)
	if err != nil {
		t.Fatalf("AppendWire() error = %v", err)
	}
	want := []byte{0x0a, 0x02, 'a', 'b', 0x12, 0x01, 'q'}
	if !bytes.Equal(b, want) {
		t.Errorf("AppendWire() = % x, want % x", b, want)
	}
}

func TestSearchRequest_SkipsUnknownFields(t *testing.T) {
	b := []byte{0x0a, 0x01, 'q', 0x28, 0x07, 0x12, 0x02, 'i', 'd'}

	var req wire.SearchRequest
	if err := req.UnmarshalWire(b); err != nil {
		t.Fatalf("UnmarshalWire() error = %v", err)
	}
	if req.Query != "q" || req.SearchID != "id" {
		t.Errorf("UnmarshalWire() = %+v", req)
	}
}

func TestSearchRequest_LastValueWins(t *testing.T) {
	b := []byte{0x0a, 0x01, 'a', 0x0a, 0x01, 'b'}

	var req wire.SearchRequest
	if err := req.UnmarshalWire(b); err != nil {
		t.Fatalf("UnmarshalWire() error = %v", err)
	}
	if req.Query != "b" {
		t.Errorf("Query = %q, want %q", req.Query, "b")
	}
}

func TestUnmarshal_Errors(t *testing.T) {
	tests := []struct {
		name string
		msg  wire.Payload
		in   []byte
	}{
		{"string list invalid utf8", &wire.StringList{}, []byte{0x0a, 0x01, 0xff}},
		{"string list wrong wire type", &wire.StringList{}, []byte{0x08, 0x01}},
		{"count wrong wire type", &wire.CountResponse{}, []byte{0x0a, 0x00}},
		{"truncated string", &wire.ErrorMessage{}, []byte{0x0a, 0x05, 'x'}},
		{"bad tag", &wire.LogMessage{}, []byte{0x80}},
		{"empty payload garbage", wire.Empty{}, []byte{0x0a, 0x05}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.msg.UnmarshalWire(tt.in); !errors.Is(err, wire.ErrDecode) {
				t.Errorf("UnmarshalWire() error = %v, want ErrDecode", err)
			}
		})
	}
}

func TestDecodePayload(t *testing.T) {
	env := wire.Envelope{Kind: wire.KindStringsAdded, Payload: []byte{0x08, 0x03}}

	var count wire.CountResponse
	if err := wire.DecodePayload(env, &count); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if count.Count != 3 {
		t.Errorf("Count = %d, want 3", count.Count)
	}
}
