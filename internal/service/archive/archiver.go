// Package archive writes session snapshots to the durable store in the
// background. Submit never waits and never reports write errors; Flush is
// the synchronous path for snapshots that must land before the caller moves on.
package archive

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/helpbyexperts/ava/backend/internal/logging"
	"github.com/helpbyexperts/ava/backend/internal/model/chat"
	"github.com/helpbyexperts/ava/backend/internal/observability"
)

// Saver is the persistence boundary the archiver writes to.
type Saver interface {
	SaveSession(ctx context.Context, session chat.Session) error
}

// Options tune the worker pool.
type Options struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// Archiver fans snapshots out to a fixed set of shards. A session always
// hashes to the same shard and each shard has a single worker, so writes for
// one session land in submission order.
type Archiver struct {
	saver   Saver
	timeout time.Duration
	log     *logging.Logger

	mu     sync.RWMutex
	closed bool
	shards []*shard
	group  errgroup.Group
}

type shard struct {
	mu      sync.Mutex
	pending map[string]chat.Session
	queue   chan string
	// writing serializes the worker's saves with Flush.
	writing sync.Mutex
}

// New starts the workers.
func New(saver Saver, opts Options, log *logging.Logger) (*Archiver, error) {
	if saver == nil {
		return nil, errors.New("archive saver is required")
	}
	if log == nil {
		log = logging.Nop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	a := &Archiver{
		saver:   saver,
		timeout: opts.Timeout,
		log:     log.Sub("archive"),
		shards:  make([]*shard, opts.Workers),
	}
	for i := range a.shards {
		sh := &shard{
			pending: make(map[string]chat.Session),
			queue:   make(chan string, opts.QueueSize),
		}
		a.shards[i] = sh
		a.group.Go(func() error {
			a.run(sh)
			return nil
		})
	}
	return a, nil
}

// Submit schedules a snapshot for writing. When a snapshot of the same
// session is still waiting, it is replaced by this newer one. It reports
// false when the snapshot was dropped.
func (a *Archiver) Submit(session chat.Session) bool {
	if session.ID == "" {
		return false
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		observability.RecordArchive("dropped")
		return false
	}

	sh := a.shardFor(session.ID)
	snapshot := session.Clone()

	sh.mu.Lock()
	if _, waiting := sh.pending[session.ID]; waiting {
		sh.pending[session.ID] = snapshot
		sh.mu.Unlock()
		observability.RecordArchive("coalesced")
		return true
	}
	sh.pending[session.ID] = snapshot
	sh.mu.Unlock()

	select {
	case sh.queue <- session.ID:
		return true
	default:
		sh.mu.Lock()
		delete(sh.pending, session.ID)
		sh.mu.Unlock()
		observability.RecordArchive("dropped")
		a.log.Warn().Str("session_id", session.ID).Msg("archive queue full, snapshot dropped")
		return false
	}
}

// Shutdown stops accepting snapshots and waits for queued ones to be written.
func (a *Archiver) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		for _, sh := range a.shards {
			close(sh.queue)
		}
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = a.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush writes session synchronously, bounded by ctx and the write timeout.
// A snapshot of the same session still waiting in the queue is discarded and
// a write already in progress finishes first, so the flushed snapshot is the
// last one stored.
func (a *Archiver) Flush(ctx context.Context, session chat.Session) error {
	if session.ID == "" {
		return errors.New("session id is required")
	}

	sh := a.shardFor(session.ID)
	sh.discard(session.ID)
	sh.writing.Lock()
	defer sh.writing.Unlock()
	sh.discard(session.ID)

	return a.save(ctx, session.Clone())
}

func (sh *shard) discard(id string) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, waiting := sh.pending[id]; waiting {
		delete(sh.pending, id)
		observability.RecordArchive("coalesced")
	}
}

func (a *Archiver) run(sh *shard) {
	for id := range sh.queue {
		sh.writing.Lock()
		sh.mu.Lock()
		snapshot, ok := sh.pending[id]
		delete(sh.pending, id)
		sh.mu.Unlock()
		if ok {
			_ = a.save(context.Background(), snapshot)
		}
		sh.writing.Unlock()
	}
}

func (a *Archiver) save(ctx context.Context, session chat.Session) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.saver.SaveSession(ctx, session); err != nil {
		observability.RecordArchive("error")
		a.log.Error().Err(err).Str("session_id", session.ID).Msg("archive write failed")
		return err
	}
	observability.RecordArchive("ok")
	a.log.Debug().Str("session_id", session.ID).Int("turns", len(session.Turns)).Msg("session archived")
	return nil
}

func (a *Archiver) shardFor(sessionID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return a.shards[h.Sum32()%uint32(len(a.shards))]
}
