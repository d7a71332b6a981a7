// Package engine runs lookups for the rbl daemon. A dnsbl.Client serves one
// lookup cycle at a time, so every request is queued on a command channel
// and executed in order by a single goroutine that owns the client. The same
// goroutine periodically tests the configured zones for health.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/lc/rbl/internal/dnsbl"
	"github.com/lc/rbl/internal/log"
)

const (
	// DefaultHealthInterval is how often configured zones are health checked.
	DefaultHealthInterval = 10 * time.Minute
	// Small buffer so callers rarely block while a lookup is running.
	_commandBufferSize = 10
)

var (
	// ErrStopped is returned for requests made after the engine stopped.
	ErrStopped = errors.New("engine: stopped")
	// ErrNoLists is returned when a lookup is requested with no lists configured.
	ErrNoLists = errors.New("engine: no lists configured")
)

// Result is the outcome of one lookup.
type Result struct {
	ID       string        `json:"id"`
	Address  string        `json:"address"`
	Hits     []dnsbl.Hit   `json:"hits"`
	Duration time.Duration `json:"duration"`
}

// ZoneHealth is the last health check result for one zone.
type ZoneHealth struct {
	Zone      string    `json:"zone"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Stats summarizes the engine's activity since it started.
type Stats struct {
	StartedAt time.Time    `json:"started_at"`
	Lookups   int64        `json:"lookups"`
	Listed    int64        `json:"listed"`
	Hits      int64        `json:"hits"`
	Failures  int64        `json:"failures"`
	Lists     int          `json:"lists"`
	Zones     []ZoneHealth `json:"zones,omitempty"`
}

// Engine serializes lookups over one dnsbl.Client.
type Engine struct {
	client         *dnsbl.Client
	lists          []dnsbl.Check
	earlyExit      bool
	healthInterval time.Duration

	cmdChan  chan command
	stopped  chan struct{}
	wg       sync.WaitGroup
	cancelFn context.CancelFunc

	startedAt time.Time
	lookups   atomic.Int64
	listed    atomic.Int64
	hits      atomic.Int64
	failures  atomic.Int64

	mu     sync.RWMutex
	health map[string]ZoneHealth
}

// Opt configures an Engine.
type Opt func(*Engine)

// WithHealthInterval sets how often zones are health checked. Zero disables
// periodic checks.
func WithHealthInterval(d time.Duration) Opt {
	return func(e *Engine) {
		e.healthInterval = d
	}
}

// New creates an Engine checking addresses against lists. earlyExit is the
// default for lookups that do not choose for themselves.
func New(client *dnsbl.Client, lists []dnsbl.Check, earlyExit bool, opts ...Opt) *Engine {
	e := &Engine{
		client:         client,
		lists:          append([]dnsbl.Check(nil), lists...),
		earlyExit:      earlyExit,
		healthInterval: DefaultHealthInterval,
		cmdChan:        make(chan command, _commandBufferSize),
		stopped:        make(chan struct{}),
		health:         make(map[string]ZoneHealth),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run starts the command loop and, if enabled, the health ticker. They run
// until ctx is done or Close is called.
func (e *Engine) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancelFn = cancel
	e.startedAt = time.Now()

	e.wg.Add(1)
	go e.runLoop(runCtx)

	if e.healthInterval > 0 && len(e.lists) > 0 {
		e.wg.Add(1)
		go e.runTicker(runCtx)
	}

	log.Info("engine: started", "lists", len(e.lists), "early_exit", e.earlyExit)
}

// Close stops the engine and waits for its goroutines to finish.
func (e *Engine) Close() {
	if e.cancelFn != nil {
		e.cancelFn()
	}
	e.wg.Wait()
	log.Info("engine: stopped")
}

// LookupOpt configures one lookup.
type LookupOpt func(*lookupCmd)

// WithEarlyExit overrides the engine's early exit default.
func WithEarlyExit(enabled bool) LookupOpt {
	return func(c *lookupCmd) {
		c.earlyExit = enabled
	}
}

// Lookup checks addr against the configured lists. The request waits its
// turn behind lookups already queued; ctx bounds both the wait and the
// lookup itself.
func (e *Engine) Lookup(ctx context.Context, addr string, opts ...LookupOpt) (Result, error) {
	if len(e.lists) == 0 {
		return Result{}, ErrNoLists
	}

	cmd := lookupCmd{
		ctx:       ctx,
		id:        uuid.NewString(),
		address:   addr,
		earlyExit: e.earlyExit,
		reply:     make(chan lookupReply, 1),
	}
	for _, o := range opts {
		o(&cmd)
	}

	select {
	case e.cmdChan <- cmd:
	case <-e.stopped:
		return Result{}, ErrStopped
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case r := <-cmd.reply:
		return r.result, r.err
	case <-e.stopped:
		return Result{}, ErrStopped
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Lists returns a copy of the configured checks.
func (e *Engine) Lists() []dnsbl.Check {
	return append([]dnsbl.Check(nil), e.lists...)
}

// Stats returns the engine counters and the last zone health results,
// sorted by zone.
func (e *Engine) Stats() Stats {
	s := Stats{
		StartedAt: e.startedAt,
		Lookups:   e.lookups.Load(),
		Listed:    e.listed.Load(),
		Hits:      e.hits.Load(),
		Failures:  e.failures.Load(),
		Lists:     len(e.lists),
	}

	e.mu.RLock()
	for _, h := range e.health {
		s.Zones = append(s.Zones, h)
	}
	e.mu.RUnlock()

	sort.Slice(s.Zones, func(i, j int) bool { return s.Zones[i].Zone < s.Zones[j].Zone })
	return s
}

// runLoop owns the client: every lookup cycle runs here.
func (e *Engine) runLoop(ctx context.Context) {
	defer e.wg.Done()
	defer close(e.stopped)
	defer log.Debug("engine: runLoop stopping")

	log.Debug("engine: runLoop starting")

	for {
		select {
		case cmd := <-e.cmdChan:
			switch c := cmd.(type) {
			case lookupCmd:
				c.reply <- e.handleLookup(ctx, c)
			case healthCmd:
				e.handleHealth(ctx)
			default:
				log.Warnf("engine: received unknown command type: %T", cmd)
			}
		case <-ctx.Done():
			return
		}
	}
}

// runTicker periodically asks runLoop to health check the zones.
func (e *Engine) runTicker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			select {
			case e.cmdChan <- healthCmd{}:
			case <-ctx.Done():
				return
			default:
				log.Warn("engine: command channel full, skipping health check")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) handleLookup(runCtx context.Context, cmd lookupCmd) lookupReply {
	if err := cmd.ctx.Err(); err != nil {
		return lookupReply{err: err}
	}

	ctx, cancel := mergeCancel(cmd.ctx, runCtx)
	defer cancel()

	var opts []dnsbl.QueryOpt
	if cmd.earlyExit {
		opts = append(opts, dnsbl.WithEarlyExit())
	}

	start := time.Now()
	hits, err := e.client.Lookup(ctx, cmd.address, e.lists, opts...)
	elapsed := time.Since(start)
	e.lookups.Inc()

	if err != nil {
		e.failures.Inc()
		log.Warn("engine: lookup failed", "id", cmd.id, "address", cmd.address, "error", err)
		return lookupReply{err: fmt.Errorf("lookup %s: %w", cmd.address, err)}
	}

	if hits == nil {
		hits = []dnsbl.Hit{}
	}
	if len(hits) > 0 {
		e.listed.Inc()
		e.hits.Add(int64(len(hits)))
	}
	log.Info("engine: lookup done", "id", cmd.id, "address", cmd.address, "hits", len(hits), "duration", elapsed)

	return lookupReply{result: Result{
		ID:       cmd.id,
		Address:  cmd.address,
		Hits:     hits,
		Duration: elapsed,
	}}
}

func (e *Engine) handleHealth(ctx context.Context) {
	for _, zone := range e.zones() {
		if ctx.Err() != nil {
			return
		}
		h := ZoneHealth{Zone: zone, Healthy: true, CheckedAt: time.Now()}
		if err := dnsbl.CheckHealth(ctx, e.client, zone); err != nil {
			h.Healthy = false
			h.Error = err.Error()
			log.Warn("engine: zone unhealthy", "zone", zone, "error", err)
		} else {
			log.Debug("engine: zone healthy", "zone", zone)
		}

		e.mu.Lock()
		e.health[zone] = h
		e.mu.Unlock()
	}
}

// zones returns the distinct list domains in configuration order.
func (e *Engine) zones() []string {
	seen := make(map[string]struct{}, len(e.lists))
	var out []string
	for _, c := range e.lists {
		if _, ok := seen[c.Domain]; ok {
			continue
		}
		seen[c.Domain] = struct{}{}
		out = append(out, c.Domain)
	}
	return out
}

// mergeCancel returns a context carrying a's values that is also cancelled
// when b is done.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

type command interface {
	isCommand()
}

type lookupCmd struct {
	ctx       context.Context
	id        string
	address   string
	earlyExit bool
	reply     chan lookupReply
}

func (lookupCmd) isCommand() {}

type lookupReply struct {
	result Result
	err    error
}

type healthCmd struct{}

func (healthCmd) isCommand() {}
