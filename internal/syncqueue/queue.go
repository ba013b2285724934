// Package syncqueue replays locally recorded mutations against the remote
// service once it is reachable, in FIFO order with per-entry attempt
// accounting.
//
// Drain policy:
//   - success: entry removed (and its offline sale marked synced) atomically
//   - connectivity failure: attempts++, drain stops; later entries wait
//   - validation failure: attempts++, dead-lettered once attempts reach the
//     limit; drain continues
//   - conflict: attempts++, dead-lettered immediately; drain continues
package syncqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/JKKN-Institutions/JKKNPOS/internal/localdb"
	"github.com/JKKN-Institutions/JKKNPOS/internal/metrics"
	"github.com/JKKN-Institutions/JKKNPOS/internal/remote"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxAttempts = 3
	defaultSendTimeout = 20 * time.Second

	ReasonValidation = "validation"
	ReasonConflict   = "conflict"
)

// Store is the persistence the queue needs; *localdb.Store implements it.
type Store interface {
	Append(ctx context.Context, e localdb.QueueEntry) error
	ListQueue(ctx context.Context) ([]localdb.QueueEntry, error)
	QueueDepth(ctx context.Context) (int64, error)
	Complete(ctx context.Context, id, syncedSaleID string) error
	RecordFailure(ctx context.Context, id, msg string) (int, error)
	MoveToDeadLetter(ctx context.Context, id, reason string) error
	DeadLetters(ctx context.Context) ([]localdb.DeadLetter, error)
	Requeue(ctx context.Context, id string) error
}

type Config struct {
	MaxAttempts int           // validation failures before dead-lettering (default 3)
	SendTimeout time.Duration // per entry (default 20s)
}

type Queue struct {
	store       Store
	maxAttempts int
	sendTimeout time.Duration
	group       singleflight.Group
	now         func() time.Time

	// life bounds drain passes. A pass is shared by every caller, so no
	// single caller's context may stop it.
	life context.Context
	stop context.CancelFunc
}

func New(store Store, cfg Config) *Queue {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	life, stop := context.WithCancel(context.Background())
	return &Queue{
		store:       store,
		maxAttempts: cfg.MaxAttempts,
		sendTimeout: cfg.SendTimeout,
		now:         time.Now,
		life:        life,
		stop:        stop,
	}
}

// Close stops a running pass between entries. Drains started afterwards
// return at once with StopReason "cancelled".
func (q *Queue) Close() { q.stop() }

// NewEntry builds an unsaved entry for p. ref links it to a local record
// (the offline sale id for sales).
func (q *Queue) NewEntry(action Action, p Payload, ref string) (localdb.QueueEntry, error) {
	if !action.Valid() {
		return localdb.QueueEntry{}, fmt.Errorf("sync_queue: invalid action %q", action)
	}
	if _, ok := Operation(p.EntityType(), action); !ok {
		return localdb.QueueEntry{}, fmt.Errorf("sync_queue: %s/%s is not replayable", p.EntityType(), action)
	}
	raw, err := Encode(p)
	if err != nil {
		return localdb.QueueEntry{}, err
	}
	return localdb.QueueEntry{
		ID:         uuid.NewString(),
		EntityType: string(p.EntityType()),
		Action:     string(action),
		Payload:    raw,
		Ref:        ref,
		Timestamp:  q.now().UTC(),
	}, nil
}

// Enqueue appends a new entry with attempts=0.
func (q *Queue) Enqueue(ctx context.Context, action Action, p Payload, ref string) (localdb.QueueEntry, error) {
	e, err := q.NewEntry(action, p, ref)
	if err != nil {
		return e, err
	}
	if err := q.store.Append(ctx, e); err != nil {
		return e, err
	}
	q.refreshDepth(ctx)
	log.Debug().
		Str("entry_id", e.ID).
		Str("entity_type", e.EntityType).
		Str("action", e.Action).
		Msg("sync_queue: entry enqueued")
	return e, nil
}

// DrainReport summarises one pass.
type DrainReport struct {
	Sent         int    `json:"sent"`
	Failed       int    `json:"failed"`
	DeadLettered int    `json:"dead_lettered"`
	Stopped      bool   `json:"stopped"`
	StopReason   string `json:"stop_reason,omitempty"`
	Remaining    int64  `json:"remaining"`
	// Shared is true when this caller joined a pass already in progress.
	Shared bool `json:"shared"`
}

// Drain runs one pass over the queue. Concurrent callers share a single pass.
// Cancelling ctx only stops this caller from waiting; the pass carries on for
// the others until it finishes or the queue is closed. Close stops the pass
// between entries; an in-flight send and the bookkeeping for it always
// complete.
func (q *Queue) Drain(ctx context.Context, sender Sender) (DrainReport, error) {
	ch := q.group.DoChan("drain", func() (interface{}, error) {
		return q.drain(q.life, sender)
	})
	select {
	case res := <-ch:
		rep, _ := res.Val.(DrainReport)
		rep.Shared = res.Shared
		return rep, res.Err
	case <-ctx.Done():
		return DrainReport{Stopped: true, StopReason: "cancelled"}, ctx.Err()
	}
}

func (q *Queue) drain(ctx context.Context, sender Sender) (DrainReport, error) {
	var rep DrainReport
	entries, err := q.store.ListQueue(ctx)
	if err != nil {
		return rep, err
	}
	if len(entries) == 0 {
		return rep, nil
	}
	log.Info().Int("count", len(entries)).Msg("sync_queue: drain started")

	// Bookkeeping for a send that already happened must not be lost to
	// cancellation.
	bg := context.WithoutCancel(ctx)

loop:
	for _, e := range entries {
		if ctx.Err() != nil {
			rep.Stopped = true
			rep.StopReason = "cancelled"
			break
		}

		sendCtx, cancel := context.WithTimeout(bg, q.sendTimeout)
		sendErr := sender.Send(sendCtx, e)
		cancel()

		if sendErr == nil {
			syncedSale := ""
			if EntityType(e.EntityType) == EntitySale {
				syncedSale = e.Ref
			}
			if err := q.store.Complete(bg, e.ID, syncedSale); err != nil {
				metrics.SyncDrainEntries.WithLabelValues(metrics.OutcomeStoreFailed).Inc()
				return q.finish(bg, rep), fmt.Errorf("sync_queue: complete %s: %w", e.ID, err)
			}
			rep.Sent++
			metrics.SyncDrainEntries.WithLabelValues(metrics.OutcomeSent).Inc()
			log.Info().
				Str("entry_id", e.ID).
				Str("entity_type", e.EntityType).
				Msg("sync_queue: entry synced")
			continue
		}

		attempts, err := q.store.RecordFailure(bg, e.ID, sendErr.Error())
		if err != nil {
			metrics.SyncDrainEntries.WithLabelValues(metrics.OutcomeStoreFailed).Inc()
			return q.finish(bg, rep), fmt.Errorf("sync_queue: record failure %s: %w", e.ID, err)
		}

		switch remote.KindOf(sendErr) {
		case remote.KindConflict:
			if err := q.deadLetter(bg, e, attempts, ReasonConflict, sendErr); err != nil {
				return q.finish(bg, rep), err
			}
			rep.DeadLettered++

		case remote.KindValidation:
			if attempts >= q.maxAttempts {
				if err := q.deadLetter(bg, e, attempts, ReasonValidation, sendErr); err != nil {
					return q.finish(bg, rep), err
				}
				rep.DeadLettered++
				continue
			}
			rep.Failed++
			metrics.SyncDrainEntries.WithLabelValues(metrics.OutcomeRetry).Inc()
			log.Warn().
				Err(sendErr).
				Str("entry_id", e.ID).
				Int("attempts", attempts).
				Msg("sync_queue: entry rejected, will retry")

		default:
			rep.Failed++
			rep.Stopped = true
			rep.StopReason = "connectivity"
			metrics.SyncDrainEntries.WithLabelValues(metrics.OutcomeRetry).Inc()
			log.Warn().
				Err(sendErr).
				Str("entry_id", e.ID).
				Int("attempts", attempts).
				Msg("sync_queue: service unreachable, stopping drain")
			break loop
		}
	}

	rep = q.finish(bg, rep)
	log.Info().
		Int("sent", rep.Sent).
		Int("failed", rep.Failed).
		Int("dead_lettered", rep.DeadLettered).
		Int64("remaining", rep.Remaining).
		Msg("sync_queue: drain finished")
	return rep, nil
}

func (q *Queue) deadLetter(ctx context.Context, e localdb.QueueEntry, attempts int, reason string, cause error) error {
	if err := q.store.MoveToDeadLetter(ctx, e.ID, reason); err != nil {
		metrics.SyncDrainEntries.WithLabelValues(metrics.OutcomeStoreFailed).Inc()
		return fmt.Errorf("sync_queue: dead-letter %s: %w", e.ID, err)
	}
	metrics.SyncDrainEntries.WithLabelValues(metrics.OutcomeDeadLetter).Inc()
	log.Error().
		Err(cause).
		Str("entry_id", e.ID).
		Str("entity_type", e.EntityType).
		Str("reason", reason).
		Int("attempts", attempts).
		Msg("sync_queue: entry moved to dead letters")
	return nil
}

func (q *Queue) finish(ctx context.Context, rep DrainReport) DrainReport {
	if n, err := q.store.QueueDepth(ctx); err == nil {
		rep.Remaining = n
		metrics.SyncQueueDepth.Set(float64(n))
	}
	return rep
}

func (q *Queue) refreshDepth(ctx context.Context) {
	if n, err := q.store.QueueDepth(ctx); err == nil {
		metrics.SyncQueueDepth.Set(float64(n))
	}
}

// Stats describes the queue for status screens.
type Stats struct {
	Depth       int        `json:"depth"`
	Failing     int        `json:"failing"`
	DeadLetters int        `json:"dead_letters"`
	Oldest      *time.Time `json:"oldest,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	entries, err := q.store.ListQueue(ctx)
	if err != nil {
		return Stats{}, err
	}
	dls, err := q.store.DeadLetters(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Depth: len(entries), DeadLetters: len(dls)}
	for i, e := range entries {
		if i == 0 {
			ts := e.Timestamp
			st.Oldest = &ts
		}
		if e.Attempts > 0 {
			st.Failing++
			if st.LastError == "" {
				st.LastError = e.LastError
			}
		}
	}
	metrics.SyncQueueDepth.Set(float64(st.Depth))
	return st, nil
}

// Entries lists pending entries in replay order.
func (q *Queue) Entries(ctx context.Context) ([]localdb.QueueEntry, error) {
	return q.store.ListQueue(ctx)
}

func (q *Queue) DeadLetters(ctx context.Context) ([]localdb.DeadLetter, error) {
	return q.store.DeadLetters(ctx)
}

// Requeue puts a dead letter back into the live queue with attempts reset.
func (q *Queue) Requeue(ctx context.Context, id string) error {
	if err := q.store.Requeue(ctx, id); err != nil {
		return err
	}
	log.Info().Str("entry_id", id).Msg("sync_queue: dead letter requeued")
	q.refreshDepth(ctx)
	return nil
}
