package index

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Pending is an in-flight search. It settles exactly once: with the engine's
// results, or with ErrCancelled, ErrTimeout or ErrSuperseded.
type Pending struct {
	client  *Client
	id      string
	query   string
	created time.Time

	once    sync.Once
	done    chan struct{}
	results []string
	err     error
}

func newPending(c *Client, id, query string) *Pending {
	return &Pending{
		client:  c,
		id:      id,
		query:   query,
		created: time.Now(),
		done:    make(chan struct{}),
	}
}

// ID returns the correlation id carried on the request and its response.
func (p *Pending) ID() string { return p.id }

func (p *Pending) Query() string { return p.query }

// Done is closed once the search settles. A search detached by Destroy never
// settles, so Done stays open forever; select on it together with a context
// or use Wait, which reports ErrTerminated.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the search settles, ctx ends, the search timeout elapses
// or the client is destroyed. Only the calling goroutine blocks. After
// Destroy it returns ErrTerminated without settling the search.
func (p *Pending) Wait(ctx context.Context) ([]string, error) {
	var expired <-chan time.Time
	if timeout := p.client.timeout; timeout > 0 {
		timer := time.NewTimer(time.Until(p.created.Add(timeout)))
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-p.done:
		return p.results, p.err
	case <-ctx.Done():
		return p.client.abandon(p, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err()), EventSearchCancelled)
	case <-expired:
		return p.client.abandon(p, ErrTimeout, EventSearchTimeout)
	case <-p.client.terminated:
		select {
		case <-p.done:
			return p.results, p.err
		default:
			return nil, ErrTerminated
		}
	}
}

// settle records the outcome. It reports false if the search had already
// settled.
func (p *Pending) settle(results []string, err error) bool {
	settled := false
	p.once.Do(func() {
		p.results = results
		p.err = err
		settled = true
		close(p.done)
	})
	return settled
}
