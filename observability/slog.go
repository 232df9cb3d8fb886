package observability

import (
	"context"
	"encoding/hex"
	"log/slog"
	"maps"
	"slices"
)

// SlogObserver writes events to a slog.Logger. The event type is the message
// and Data keys become attributes in sorted order. Byte slices, such as the
// raw frame of an undecodable message, are logged as hex.
type SlogObserver struct {
	logger *slog.Logger
}

// NewSlogObserver logs to logger, or to whatever slog.Default is at the time
// of each event when logger is nil.
func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	return &SlogObserver{logger: logger}
}

func (o *SlogObserver) OnEvent(ctx context.Context, event Event) {
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	level := event.Level.SlogLevel()
	if !logger.Enabled(ctx, level) {
		return
	}

	attrs := make([]slog.Attr, 0, len(event.Data)+1)
	attrs = append(attrs, slog.String("source", event.Source))
	for _, k := range slices.Sorted(maps.Keys(event.Data)) {
		attrs = append(attrs, dataAttr(k, event.Data[k]))
	}

	logger.LogAttrs(ctx, level, string(event.Type), attrs...)
}

func dataAttr(key string, value any) slog.Attr {
	switch v := value.(type) {
	case []byte:
		return slog.String(key, hex.EncodeToString(v))
	case error:
		return slog.String(key, v.Error())
	default:
		return slog.Any(key, v)
	}
}
