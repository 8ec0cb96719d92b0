package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/afikyefet/sudoku-live/internal/live"
	pkglog "github.com/afikyefet/sudoku-live/pkg/log"
)

const (
	queueSize    = 256
	writeTimeout = 5 * time.Second
)

type job func(ctx context.Context) error

// Recorder writes live sessions in the background so the realtime path never
// waits on the database. A nil *Recorder records nothing.
type Recorder struct {
	repo       Repository
	archive    *Archive
	instanceID string
	jobs       chan job
	doneCh     chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewRecorder creates a recorder. Call Run to start writing.
func NewRecorder(repo Repository, instanceID string) *Recorder {
	return &Recorder{
		repo:       repo,
		instanceID: instanceID,
		jobs:       make(chan job, queueSize),
		doneCh:     make(chan struct{}),
	}
}

// WithArchive makes the recorder keep the final board of every local session.
func (r *Recorder) WithArchive(a *Archive) *Recorder {
	r.archive = a
	return r
}

// Run writes queued records until Close is called, then drains the queue.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.doneCh)
	l := pkglog.L()

	for j := range r.jobs {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		if err := j(wctx); err != nil && !errors.Is(err, ErrSessionNotFound) {
			l.Warn().Err(err).Msg("live history write failed")
		}
		cancel()
	}
}

// Close stops accepting records and waits for Run to drain the queue.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.jobs)
	}
	r.mu.Unlock()
	<-r.doneCh
}

// Started queues the start of a local live session.
func (r *Recorder) Started(b live.Broadcast) {
	if r == nil || b.Remote {
		return
	}
	session := &LiveSession{
		PuzzleID:      b.PuzzleID,
		BroadcasterID: b.ClientID,
		Broadcaster:   b.Name,
		UserID:        b.UserID,
		InstanceID:    r.instanceID,
		StartedAt:     b.StartedAt.UTC(),
		Updates:       b.Updates,
	}
	r.enqueue(func(ctx context.Context) error { return r.repo.Start(ctx, session) })
}

// Ended queues the end of a local live session.
func (r *Recorder) Ended(b live.Broadcast, reason string, at time.Time) {
	if r == nil || b.Remote {
		return
	}
	r.enqueue(func(ctx context.Context) error {
		return r.repo.End(ctx, b.PuzzleID, b.ClientID, at.UTC(), reason, b.Updates)
	})

	if r.archive == nil {
		return
	}
	key, data, err := encode(b, reason, at)
	if err != nil {
		l := pkglog.L()
		l.Warn().Err(err).Str(pkglog.FieldPuzzleID, b.PuzzleID).Msg("board snapshot skipped")
		return
	}
	if data != nil {
		r.enqueue(func(ctx context.Context) error { return r.archive.put(ctx, key, data) })
	}
}

// List returns the latest sessions of a room.
func (r *Recorder) List(ctx context.Context, puzzleID string, limit int) ([]LiveSession, error) {
	if r == nil {
		return nil, ErrDisabled
	}
	return r.repo.ListByPuzzle(ctx, puzzleID, limit)
}

// Snapshots lists the archived final boards of a room.
func (r *Recorder) Snapshots(ctx context.Context, puzzleID string) ([]SnapshotInfo, error) {
	if r == nil || r.archive == nil {
		return nil, ErrArchiveDisabled
	}
	return r.archive.List(ctx, puzzleID)
}

// Snapshot loads one archived final board.
func (r *Recorder) Snapshot(ctx context.Context, puzzleID, name string) (*BoardSnapshot, error) {
	if r == nil || r.archive == nil {
		return nil, ErrArchiveDisabled
	}
	return r.archive.Load(ctx, puzzleID, name)
}

func (r *Recorder) enqueue(j job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	select {
	case r.jobs <- j:
	default:
		l := pkglog.L()
		l.Warn().Msg("live history queue full, record dropped")
	}
}
