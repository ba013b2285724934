// Package shell keeps the terminal usable while the network is down. It
// fronts the web app network-first with a local response cache, and owns the
// background triggers that drain the sync queue.
//
// The shell is a small state machine (installing → installed → active) driven
// by events. Lifecycle and sync events are handled by one goroutine (Run);
// fetch events are dispatched inline from ServeHTTP.
package shell

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/JKKN-Institutions/JKKNPOS/internal/localdb"
	"github.com/JKKN-Institutions/JKKNPOS/internal/metrics"
	"github.com/JKKN-Institutions/JKKNPOS/internal/remote"
	"github.com/JKKN-Institutions/JKKNPOS/internal/syncqueue"

	"github.com/rs/zerolog/log"
)

type State string

const (
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActive     State = "active"
)

type EventType string

const (
	EventInstall   EventType = "install"
	EventActivate  EventType = "activate"
	EventFetch     EventType = "fetch"
	EventSync      EventType = "sync"
	EventReconnect EventType = "reconnect"
	EventPeriodic  EventType = "periodic"
)

// Event is one input to the state machine. W and R are set for fetch events
// only.
type Event struct {
	Type EventType
	W    http.ResponseWriter
	R    *http.Request
}

type handler func(ctx context.Context, ev Event) error

// ErrUnknownEvent is returned by Dispatch for event types with no handler.
var ErrUnknownEvent = errors.New("shell: unknown event")

// Remote is the connectivity side of *remote.Client.
type Remote interface {
	Ping(ctx context.Context) error
	Breaker() *remote.CircuitBreaker
}

// Drainer runs a queue pass; *syncqueue.Queue implements it.
type Drainer interface {
	Drain(ctx context.Context, sender syncqueue.Sender) (syncqueue.DrainReport, error)
}

type Config struct {
	UpstreamURL     string
	UpstreamTimeout time.Duration
	CacheVersion    string
	Precache        []string
	OfflinePath     string
	SyncInterval    time.Duration
	ProbeInterval   time.Duration
}

const (
	stateKey       = "shell"
	eventBuffer    = 16
	defaultVersion = "pos-shell-v1"
)

// persisted is what survives a restart.
type persisted struct {
	State        State                  `json:"state"`
	CacheVersion string                 `json:"cache_version"`
	Online       bool                   `json:"online"`
	LastSync     *time.Time             `json:"last_sync,omitempty"`
	LastReport   *syncqueue.DrainReport `json:"last_report,omitempty"`
}

// Status is a snapshot for status screens.
type Status struct {
	State        State                  `json:"state"`
	CacheVersion string                 `json:"cache_version"`
	Online       bool                   `json:"online"`
	BreakerState string                 `json:"breaker_state"`
	LastSync     *time.Time             `json:"last_sync,omitempty"`
	LastReport   *syncqueue.DrainReport `json:"last_report,omitempty"`
}

type Shell struct {
	cfg      Config
	state    *localdb.JSONState[persisted]
	store    ResponseStore
	upstream *upstream
	strategy *NetworkFirst
	remote   Remote
	queue    Drainer
	sender   syncqueue.Sender
	handlers map[EventType]handler
	events   chan Event
	now      func() time.Time

	mu  sync.RWMutex
	cur persisted
}

// New loads the persisted lifecycle state. Call Start to (re)install when the
// cache version changed, then Run.
func New(ctx context.Context, cfg Config, store *localdb.Store, rc Remote, q Drainer, sender syncqueue.Sender) *Shell {
	if cfg.CacheVersion == "" {
		cfg.CacheVersion = defaultVersion
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 15 * time.Second
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = time.Minute
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 15 * time.Second
	}

	s := &Shell{
		cfg:      cfg,
		state:    localdb.NewJSONState[persisted](store, stateKey),
		store:    store,
		upstream: newUpstream(cfg.UpstreamURL, cfg.UpstreamTimeout),
		remote:   rc,
		queue:    q,
		sender:   sender,
		events:   make(chan Event, eventBuffer),
		now:      time.Now,
	}
	cache := &versionedCache{store: store, name: cfg.CacheVersion, now: func() time.Time { return s.now() }}
	s.strategy = NewNetworkFirst(s.upstream.fetch, cache, cfg.OfflinePath)
	s.handlers = map[EventType]handler{
		EventInstall:   s.onInstall,
		EventActivate:  s.onActivate,
		EventFetch:     s.onFetch,
		EventSync:      s.onSync,
		EventReconnect: s.onReconnect,
		EventPeriodic:  s.onPeriodic,
	}

	cur, ok, err := s.state.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("shell: persisted state unreadable, reinstalling")
	}
	if !ok || err != nil {
		cur = persisted{State: StateInstalling}
	}
	// Connectivity is re-learned by the first probe, so a restart while
	// queued entries exist drains as soon as the remote answers.
	cur.Online = false
	s.cur = cur
	return s
}

// Start brings the shell to active: a new cache version installs then
// activates; an installed shell only activates. Install failure leaves the
// shell in installing and is returned; fetches still work network-first.
func (s *Shell) Start(ctx context.Context) error {
	s.mu.RLock()
	cur := s.cur
	s.mu.RUnlock()

	if cur.CacheVersion != s.cfg.CacheVersion || cur.State == StateInstalling {
		if err := s.Dispatch(ctx, Event{Type: EventInstall}); err != nil {
			return err
		}
	} else if cur.State == StateActive {
		return nil
	}
	return s.Dispatch(ctx, Event{Type: EventActivate})
}

// Run handles posted events and the probe and periodic sync tickers until ctx
// is cancelled.
func (s *Shell) Run(ctx context.Context) {
	syncTicker := time.NewTicker(s.cfg.SyncInterval)
	defer syncTicker.Stop()
	probeTicker := time.NewTicker(s.cfg.ProbeInterval)
	defer probeTicker.Stop()

	log.Info().
		Dur("sync_interval", s.cfg.SyncInterval).
		Dur("probe_interval", s.cfg.ProbeInterval).
		Msg("shell: started")

	s.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shell: shutting down")
			return
		case ev := <-s.events:
			if err := s.Dispatch(ctx, ev); err != nil {
				log.Warn().Err(err).Str("event", string(ev.Type)).Msg("shell: event failed")
			}
		case <-syncTicker.C:
			if err := s.Dispatch(ctx, Event{Type: EventPeriodic}); err != nil {
				log.Warn().Err(err).Msg("shell: periodic sync failed")
			}
		case <-probeTicker.C:
			s.probe(ctx)
		}
	}
}

// Post queues ev for the Run goroutine. It never blocks; false means the
// buffer was full and the event was dropped.
func (s *Shell) Post(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	default:
		log.Warn().Str("event", string(ev.Type)).Msg("shell: event buffer full, dropping")
		return false
	}
}

// Dispatch runs the handler for ev on the calling goroutine.
func (s *Shell) Dispatch(ctx context.Context, ev Event) error {
	h, ok := s.handlers[ev.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
	return h(ctx, ev)
}

// ServeHTTP answers r through the fetch handler.
func (s *Shell) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = s.Dispatch(r.Context(), Event{Type: EventFetch, W: w, R: r})
}

// SyncNow drains the queue on the caller's goroutine. It joins a pass that is
// already running instead of starting a second one.
func (s *Shell) SyncNow(ctx context.Context) (syncqueue.DrainReport, error) {
	return s.drain(ctx, "manual")
}

func (s *Shell) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		State:        s.cur.State,
		CacheVersion: s.cur.CacheVersion,
		Online:       s.cur.Online,
		BreakerState: s.remote.Breaker().State().String(),
		LastSync:     s.cur.LastSync,
		LastReport:   s.cur.LastReport,
	}
}

// ── Handlers ──────────────────────────────────────────────────────────────────

func (s *Shell) onInstall(ctx context.Context, _ Event) error {
	s.update(ctx, func(p *persisted) { p.State = StateInstalling })

	fetched := make(map[string]*Response, len(s.cfg.Precache))
	for _, route := range s.cfg.Precache {
		resp, err := s.upstream.get(ctx, route)
		if err != nil {
			log.Error().Err(err).Str("route", route).Msg("shell: precache failed, install aborted")
			return fmt.Errorf("shell: precache %s: %w", route, err)
		}
		fetched[route] = resp
	}

	for route, resp := range fetched {
		rec := &localdb.CachedResponse{
			CacheName: s.cfg.CacheVersion,
			Key:       CacheKey(http.MethodGet, route),
			Status:    resp.Status,
			Header:    resp.Header,
			Body:      resp.Body,
			StoredAt:  s.now().UTC(),
		}
		if err := s.store.PutResponse(ctx, rec); err != nil {
			return fmt.Errorf("shell: precache %s: %w", route, err)
		}
	}

	s.update(ctx, func(p *persisted) {
		p.State = StateInstalled
		p.CacheVersion = s.cfg.CacheVersion
	})
	log.Info().
		Str("cache", s.cfg.CacheVersion).
		Int("routes", len(fetched)).
		Msg("shell: installed")
	return nil
}

func (s *Shell) onActivate(ctx context.Context, _ Event) error {
	s.mu.RLock()
	st := s.cur.State
	s.mu.RUnlock()
	if st == StateInstalling {
		return errors.New("shell: cannot activate before install completes")
	}

	names, err := s.store.CacheNames(ctx)
	if err != nil {
		return fmt.Errorf("shell: list caches: %w", err)
	}
	for _, name := range names {
		if name == s.cfg.CacheVersion {
			continue
		}
		if err := s.store.DeleteCache(ctx, name); err != nil {
			return fmt.Errorf("shell: delete cache %s: %w", name, err)
		}
		log.Info().Str("cache", name).Msg("shell: deleted old cache")
	}

	s.update(ctx, func(p *persisted) { p.State = StateActive })
	log.Info().Str("cache", s.cfg.CacheVersion).Msg("shell: active")
	return nil
}

func (s *Shell) onFetch(_ context.Context, ev Event) error {
	if ev.W == nil || ev.R == nil {
		return errors.New("shell: fetch event without request")
	}
	resp, src := s.strategy.Fetch(ev.R)
	metrics.ShellFetches.WithLabelValues(string(src)).Inc()
	if src != FromNetwork {
		log.Debug().
			Str("method", ev.R.Method).
			Str("path", ev.R.URL.Path).
			Str("source", string(src)).
			Msg("shell: served without network")
	}
	resp.WriteTo(ev.W)
	return nil
}

func (s *Shell) onSync(ctx context.Context, _ Event) error {
	_, err := s.drain(ctx, "sync")
	return err
}

func (s *Shell) onReconnect(ctx context.Context, _ Event) error {
	_, err := s.drain(ctx, "reconnect")
	return err
}

func (s *Shell) onPeriodic(ctx context.Context, _ Event) error {
	if s.remote.Breaker().State() == remote.CBOpen {
		log.Debug().Msg("shell: circuit breaker is open, skipping periodic sync")
		return nil
	}
	_, err := s.drain(ctx, "periodic")
	return err
}

// ── Internals ─────────────────────────────────────────────────────────────────

func (s *Shell) drain(ctx context.Context, trigger string) (syncqueue.DrainReport, error) {
	rep, err := s.queue.Drain(ctx, s.sender)
	if err != nil {
		log.Error().Err(err).Str("trigger", trigger).Msg("shell: drain failed")
		return rep, err
	}
	now := s.now().UTC()
	s.update(ctx, func(p *persisted) {
		p.LastSync = &now
		p.LastReport = &rep
	})
	if rep.Sent > 0 || rep.DeadLettered > 0 {
		log.Info().
			Str("trigger", trigger).
			Int("sent", rep.Sent).
			Int("dead_lettered", rep.DeadLettered).
			Int64("remaining", rep.Remaining).
			Msg("shell: sync pass done")
	}
	return rep, nil
}

// probe checks the remote and posts reconnect on an offline→online edge.
func (s *Shell) probe(ctx context.Context) {
	online := s.remote.Ping(ctx) == nil

	s.mu.RLock()
	was := s.cur.Online
	s.mu.RUnlock()
	if online == was {
		return
	}
	s.update(ctx, func(p *persisted) { p.Online = online })
	if online {
		log.Info().Msg("shell: remote reachable again")
		s.Post(Event{Type: EventReconnect})
	} else {
		log.Warn().Msg("shell: remote unreachable, working offline")
	}
}

func (s *Shell) update(ctx context.Context, fn func(*persisted)) {
	s.mu.Lock()
	fn(&s.cur)
	snap := s.cur
	s.mu.Unlock()
	if err := s.state.Save(ctx, snap); err != nil {
		log.Error().Err(err).Msg("shell: persist state failed")
	}
}
