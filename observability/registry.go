package observability

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var ErrUnknownObserver = errors.New("unknown observer")

// Config files select observers by name. "noop" and "slog" always exist;
// the REPL adds its event recorder and tests add their own.
var (
	registryMu sync.RWMutex
	registry   = map[string]Observer{
		"noop": NoOpObserver{},
		"slog": NewSlogObserver(nil),
	}
)

// Register adds or replaces the observer called name.
func Register(name string, obs Observer) {
	registryMu.Lock()
	defer registryMu.Unlock()

	registry[name] = obs
}

func Lookup(name string) (Observer, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	obs, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownObserver, name)
	}
	return obs, nil
}

// Resolve looks up name for a component config. An unknown name is logged
// on logger and resolves to NoOpObserver, so a typo never stops the store.
func Resolve(name string, logger *slog.Logger) Observer {
	obs, err := Lookup(name)
	if err == nil {
		return obs
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("falling back to noop observer", slog.String("error", err.Error()))
	return NoOpObserver{}
}
