package dnsresolver

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// Poller is a readiness set over outstanding queries. It is owned by a single
// goroutine: Add, Remove, Len, Wait and Close must not be called concurrently.
type Poller struct {
	pending map[*Query]struct{}
	ready   chan *Query
	stop    chan struct{}
	once    sync.Once
}

// NewPoller returns an empty readiness set.
func NewPoller() *Poller {
	return &Poller{
		pending: make(map[*Query]struct{}),
		ready:   make(chan *Query),
		stop:    make(chan struct{}),
	}
}

// Add starts watching q.
func (p *Poller) Add(q *Query) {
	if _, ok := p.pending[q]; ok {
		return
	}
	p.pending[q] = struct{}{}

	go func() {
		select {
		case <-q.Done():
		case <-p.stop:
			return
		}
		select {
		case p.ready <- q:
		case <-p.stop:
		}
	}()
}

// Remove stops tracking q. The query itself is left untouched.
func (p *Poller) Remove(q *Query) {
	delete(p.pending, q)
}

// Len returns the number of queries still tracked.
func (p *Poller) Len() int { return len(p.pending) }

// Wait blocks until at least one tracked query is ready to be read, d elapses
// or ctx is done. Once one query is ready, every other query that is already
// ready is collected without further blocking. An empty result means nothing
// became ready in time.
func (p *Poller) Wait(ctx context.Context, d time.Duration) []*Query {
	if len(p.pending) == 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	var ready []*Query
	for len(ready) == 0 {
		select {
		case q := <-p.ready:
			if _, ok := p.pending[q]; ok {
				ready = append(ready, q)
			}
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return nil
		}
	}

	for {
		select {
		case q := <-p.ready:
			if _, ok := p.pending[q]; ok {
				ready = append(ready, q)
			}
		default:
			return ready
		}
	}
}

// Close stops watching and closes every query still tracked.
func (p *Poller) Close() error {
	var err error
	p.once.Do(func() {
		close(p.stop)
		for q := range p.pending {
			err = multierr.Append(err, q.Close())
			delete(p.pending, q)
		}
	})
	return err
}
