package index

import "github.com/tailored-agentic-units/searchmap/observability"

// Index client event types.
const (
	EventStringsAdded     observability.EventType = "index.strings.added"
	EventStringsRemoved   observability.EventType = "index.strings.removed"
	EventEngineError      observability.EventType = "index.engine.error"
	EventEngineLog        observability.EventType = "index.engine.log"
	EventSearchCancelled  observability.EventType = "index.search.cancelled"
	EventSearchTimeout    observability.EventType = "index.search.timeout"
	EventSearchSuperseded observability.EventType = "index.search.superseded"
	EventStaleResponse    observability.EventType = "index.response.stale"
	EventUndecodable      observability.EventType = "index.response.undecodable"
	EventUnexpectedKind   observability.EventType = "index.response.unexpected_kind"
	EventEncodeFailed     observability.EventType = "index.request.encode_failed"
)

const source = "index.Client"
