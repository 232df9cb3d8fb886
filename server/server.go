// Package server exposes a searchmap.Map over connect unary procedures and
// publishes its statistics to Prometheus.
//
// Procedures live under /searchmap.v1.StoreService/ and exchange JSON bodies:
//
//	Set     SetRequest     → SetResponse
//	Get     GetRequest     → GetResponse
//	Remove  RemoveRequest  → RemoveResponse
//	Search  SearchRequest  → SearchResponse
//	Clear   ClearRequest   → ClearResponse
//	Stats   StatsRequest   → StatsResponse
//
// Metrics are served at /metrics.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tailored-agentic-units/searchmap/index"
	"github.com/tailored-agentic-units/searchmap/searchmap"
	"github.com/tailored-agentic-units/searchmap/transport"
)

const ServiceName = "searchmap.v1.StoreService"

const (
	SetProcedure    = "/" + ServiceName + "/Set"
	GetProcedure    = "/" + ServiceName + "/Get"
	RemoveProcedure = "/" + ServiceName + "/Remove"
	SearchProcedure = "/" + ServiceName + "/Search"
	ClearProcedure  = "/" + ServiceName + "/Clear"
	StatsProcedure  = "/" + ServiceName + "/Stats"
)

type Service struct {
	store    *searchmap.Map[string]
	logger   *slog.Logger
	registry *prometheus.Registry
}

func New(store *searchmap.Map[string], cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(store))

	return &Service{
		store:    store,
		logger:   logger,
		registry: registry,
	}
}

// Handler routes every procedure and /metrics.
func (s *Service) Handler() http.Handler {
	opts := []connect.HandlerOption{connect.WithCodec(jsonCodec{})}

	mux := http.NewServeMux()
	mux.Handle(SetProcedure, connect.NewUnaryHandler(SetProcedure, s.set, opts...))
	mux.Handle(GetProcedure, connect.NewUnaryHandler(GetProcedure, s.get, opts...))
	mux.Handle(RemoveProcedure, connect.NewUnaryHandler(RemoveProcedure, s.remove, opts...))
	mux.Handle(SearchProcedure, connect.NewUnaryHandler(SearchProcedure, s.search, opts...))
	mux.Handle(ClearProcedure, connect.NewUnaryHandler(ClearProcedure, s.clear, opts...))
	mux.Handle(StatsProcedure, connect.NewUnaryHandler(StatsProcedure, s.stats, opts...))
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

func (s *Service) set(ctx context.Context, req *connect.Request[SetRequest]) (*connect.Response[SetResponse], error) {
	if req.Msg.Key == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("key is required"))
	}
	if err := s.store.Set(ctx, req.Msg.Key, req.Msg.Value); err != nil {
		return nil, s.toConnect(ctx, "set", err)
	}
	return connect.NewResponse(&SetResponse{Size: s.store.Size()}), nil
}

func (s *Service) get(_ context.Context, req *connect.Request[GetRequest]) (*connect.Response[GetResponse], error) {
	value, found := s.store.Get(req.Msg.Key)
	return connect.NewResponse(&GetResponse{Value: value, Found: found}), nil
}

func (s *Service) remove(ctx context.Context, req *connect.Request[RemoveRequest]) (*connect.Response[RemoveResponse], error) {
	removed, err := s.store.RemoveMultiple(ctx, req.Msg.Keys)
	if err != nil {
		return nil, s.toConnect(ctx, "remove", err)
	}
	return connect.NewResponse(&RemoveResponse{Removed: removed}), nil
}

func (s *Service) search(ctx context.Context, req *connect.Request[SearchRequest]) (*connect.Response[SearchResponse], error) {
	keys, err := s.store.KeysFor(ctx, req.Msg.Query)
	if err != nil {
		return nil, s.toConnect(ctx, "search", err)
	}
	if req.Msg.KeysOnly {
		return connect.NewResponse(&SearchResponse{Keys: keys}), nil
	}
	return connect.NewResponse(&SearchResponse{Values: s.store.Resolve(keys)}), nil
}

func (s *Service) clear(ctx context.Context, _ *connect.Request[ClearRequest]) (*connect.Response[ClearResponse], error) {
	if err := s.store.Clear(ctx); err != nil {
		return nil, s.toConnect(ctx, "clear", err)
	}
	return connect.NewResponse(&ClearResponse{}), nil
}

func (s *Service) stats(_ context.Context, _ *connect.Request[StatsRequest]) (*connect.Response[StatsResponse], error) {
	st := s.store.Stats()
	return connect.NewResponse(&StatsResponse{
		Size:      st.Size,
		CacheSize: st.CacheSize,
		Pending:   st.Index.Pending,
		Stale:     st.Index.Stale,
		State:     st.Index.State.String(),
		Sent:      st.Index.Transport.MessagesSent,
		Received:  st.Index.Transport.MessagesRecv,
		Queued:    st.Index.Transport.MessagesQueue,
	}), nil
}

func (s *Service) toConnect(ctx context.Context, op string, err error) error {
	code := connect.CodeInternal
	switch {
	case errors.Is(err, searchmap.ErrInvalidKey):
		code = connect.CodeInvalidArgument
	case errors.Is(err, index.ErrCancelled):
		code = connect.CodeCanceled
	case errors.Is(err, index.ErrTimeout):
		code = connect.CodeDeadlineExceeded
	case errors.Is(err, index.ErrSuperseded):
		code = connect.CodeAborted
	case errors.Is(err, index.ErrTerminated), errors.Is(err, transport.ErrEngineFailed):
		code = connect.CodeUnavailable
	}

	s.logger.WarnContext(
		ctx,
		"request failed",
		slog.String("op", op),
		slog.String("code", code.String()),
		slog.String("error", err.Error()),
	)
	return connect.NewError(code, err)
}
