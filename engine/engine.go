// Package engine is an in-process index engine that speaks the wire protocol.
//
// The engine runs on its own goroutine and shares no memory with its client:
// requests arrive as encoded envelopes through Post and responses leave
// through Receive. It answers:
//
//	ADD_STRINGS     STRINGS_ADDED{count: total indexed}
//	REMOVE_STRINGS  STRINGS_REMOVED{count: total indexed}
//	CLEAR           STRINGS_REMOVED{count: 0}
//	SEARCH          SEARCH_RESULTS{results, search_id}
//	CANCEL_SEARCH   SEARCH_CANCELLED, only if a delayed search was stopped
//
// CANCEL_SEARCH carries no id and stops every delayed search.
// Undecodable input is answered with ERROR and any other kind with LOG.
// Searches are matched case-insensitively. With a search delay, each search
// is answered after the delay from a snapshot taken when it arrived, and
// concurrent searches do not replace one another.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tailored-agentic-units/searchmap/transport"
	"github.com/tailored-agentic-units/searchmap/wire"
)

// ErrBootFailed is reported through Err when FailBoot is set.
var ErrBootFailed = errors.New("engine boot failed")

type Engine struct {
	logger      *slog.Logger
	codec       *wire.Codec
	matcherName string
	bootDelay   time.Duration
	searchDelay time.Duration
	failBoot    bool

	matcher Matcher
	in      *transport.MessageChannel[[]byte]
	out     *transport.MessageChannel[[]byte]

	loaded  chan struct{}
	bootErr error

	timersMu sync.Mutex
	timers   map[*time.Timer]struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Launcher returns a transport.Launcher that starts an engine with cfg.
func Launcher(cfg Config) transport.Launcher {
	return func(ctx context.Context) (transport.Remote, error) {
		return Start(ctx, cfg)
	}
}

// Start boots an engine in the background. Loaded is closed once the
// engine can serve requests or has failed to boot.
func Start(ctx context.Context, cfg Config) (*Engine, error) {
	base := DefaultConfig()
	base.Merge(&cfg)

	ectx, cancel := context.WithCancel(ctx)
	logger := base.logger()

	e := &Engine{
		logger:      logger,
		codec:       wire.NewCodec(wire.WithLogger(logger)),
		matcherName: base.Matcher,
		bootDelay:   base.duration("boot_delay", base.BootDelay),
		searchDelay: base.duration("search_delay", base.SearchDelay),
		failBoot:    base.FailBoot,
		in:          transport.NewMessageChannel[[]byte](ectx, base.BufferSize),
		out:         transport.NewMessageChannel[[]byte](ectx, base.BufferSize),
		loaded:      make(chan struct{}),
		timers:      make(map[*time.Timer]struct{}),
		ctx:         ectx,
		cancel:      cancel,
	}

	e.wg.Add(1)
	go e.run()

	return e, nil
}

func (e *Engine) Post(ctx context.Context, msg []byte) error {
	return e.in.Send(ctx, msg)
}

func (e *Engine) Receive(ctx context.Context) ([]byte, error) {
	return e.out.Receive(ctx)
}

func (e *Engine) Loaded() <-chan struct{} {
	return e.loaded
}

func (e *Engine) Err() error {
	select {
	case <-e.loaded:
		return e.bootErr
	default:
		return nil
	}
}

// Terminate stops the engine goroutine and any delayed searches.
func (e *Engine) Terminate() error {
	var err error
	e.stopOnce.Do(func() {
		e.cancel()
		e.stopTimers()
		e.wg.Wait()
		if e.matcher != nil {
			err = e.matcher.Close()
		}
	})
	return err
}

func (e *Engine) run() {
	defer e.wg.Done()

	if !e.boot() {
		return
	}

	for {
		msg, err := e.in.Receive(e.ctx)
		if err != nil {
			return
		}
		e.handle(msg)
	}
}

func (e *Engine) boot() bool {
	if e.bootDelay > 0 {
		select {
		case <-time.After(e.bootDelay):
		case <-e.ctx.Done():
			e.bootErr = e.ctx.Err()
			close(e.loaded)
			return false
		}
	}

	if e.failBoot {
		e.bootErr = ErrBootFailed
		close(e.loaded)
		return false
	}

	matcher, err := NewMatcher(e.matcherName)
	if err != nil {
		e.bootErr = err
		close(e.loaded)
		return false
	}
	e.matcher = matcher

	e.logger.Debug("engine initialized", slog.String("matcher", e.matcherName))
	close(e.loaded)
	return true
}

func (e *Engine) handle(msg []byte) {
	env, err := wire.DecodeEnvelope(msg)
	if err != nil {
		e.fail(fmt.Sprintf("failed to decode message: %v", err))
		return
	}

	switch env.Kind {
	case wire.KindAddStrings:
		var list wire.StringList
		if err := wire.DecodePayload(env, &list); err != nil {
			e.fail(err.Error())
			return
		}
		total, err := e.matcher.Add(list.Strings)
		if err != nil {
			e.fail(err.Error())
			return
		}
		e.emit(wire.KindStringsAdded, &wire.CountResponse{Count: uint32(total)})

	case wire.KindRemoveStrings:
		var list wire.StringList
		if err := wire.DecodePayload(env, &list); err != nil {
			e.fail(err.Error())
			return
		}
		total, err := e.matcher.Remove(list.Strings)
		if err != nil {
			e.fail(err.Error())
			return
		}
		e.emit(wire.KindStringsRemoved, &wire.CountResponse{Count: uint32(total)})

	case wire.KindClear:
		if err := e.matcher.Clear(); err != nil {
			e.fail(err.Error())
			return
		}
		e.emit(wire.KindStringsRemoved, &wire.CountResponse{})

	case wire.KindSearch:
		var req wire.SearchRequest
		if err := wire.DecodePayload(env, &req); err != nil {
			e.fail(err.Error())
			return
		}
		e.search(req)

	case wire.KindCancelSearch:
		if e.stopTimers() > 0 {
			e.emit(wire.KindSearchCancelled, wire.Empty{})
		}

	default:
		e.emit(wire.KindLog, &wire.LogMessage{Message: fmt.Sprintf("unknown message type: %s", env.Kind)})
	}
}

func (e *Engine) search(req wire.SearchRequest) {
	id := req.SearchID
	if id == "" {
		id = req.Query
	}

	results, err := e.matcher.Match(req.Query)
	if err != nil {
		e.fail(err.Error())
		return
	}
	response := &wire.SearchResults{Results: results, SearchID: id}

	if e.searchDelay <= 0 {
		e.emit(wire.KindSearchResults, response)
		return
	}

	e.timersMu.Lock()
	defer e.timersMu.Unlock()

	var timer *time.Timer
	e.wg.Add(1)
	timer = time.AfterFunc(e.searchDelay, func() {
		defer e.wg.Done()

		e.timersMu.Lock()
		_, live := e.timers[timer]
		delete(e.timers, timer)
		e.timersMu.Unlock()

		if live {
			e.emit(wire.KindSearchResults, response)
		}
	})
	e.timers[timer] = struct{}{}
}

// stopTimers stops every delayed search that has not fired and reports how
// many were stopped.
func (e *Engine) stopTimers() int {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()

	stopped := 0
	for timer := range e.timers {
		if timer.Stop() {
			stopped++
			e.wg.Done()
		}
		delete(e.timers, timer)
	}
	return stopped
}

func (e *Engine) fail(message string) {
	e.logger.Warn("engine request failed", slog.String("error", message))
	e.emit(wire.KindError, &wire.ErrorMessage{Message: message})
}

func (e *Engine) emit(kind wire.Kind, p wire.Payload) {
	msg, err := e.codec.Encode(kind, p)
	if err != nil {
		e.logger.Error("failed to encode response", slog.String("kind", kind.String()), slog.String("error", err.Error()))
		return
	}
	if err := e.out.Send(e.ctx, msg); err != nil {
		e.logger.Debug("dropping response", slog.String("kind", kind.String()), slog.String("error", err.Error()))
	}
}
