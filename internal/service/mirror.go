package service

import (
	"context"
	"sync"
	"time"

	"github.com/afikyefet/sudoku-live/internal/domain"
	"github.com/afikyefet/sudoku-live/internal/store"
	pkglog "github.com/afikyefet/sudoku-live/pkg/log"
)

const mirrorWriteTimeout = 3 * time.Second

// PresenceMirror copies room counts and live status to the shared store in
// the background. Pending writes for a room are coalesced so only the latest
// state is written. A nil *PresenceMirror ignores everything.
type PresenceMirror struct {
	store store.PresenceStore

	mu     sync.Mutex
	counts map[string]int
	live   map[string]*domain.LiveStatus // nil value marks the room offline

	wake   chan struct{}
	doneCh chan struct{}
}

// NewPresenceMirror returns nil when st is nil.
func NewPresenceMirror(st store.PresenceStore) *PresenceMirror {
	if st == nil {
		return nil
	}
	return &PresenceMirror{
		store:  st,
		counts: make(map[string]int),
		live:   make(map[string]*domain.LiveStatus),
		wake:   make(chan struct{}, 1),
		doneCh: make(chan struct{}),
	}
}

// ObserveCount matches hub.PresenceFunc. It never blocks.
func (m *PresenceMirror) ObserveCount(puzzleID string, count int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.counts[puzzleID] = count
	m.mu.Unlock()
	m.signal()
}

// SetLive queues a live status write.
func (m *PresenceMirror) SetLive(status domain.LiveStatus) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.live[status.PuzzleID] = &status
	m.mu.Unlock()
	m.signal()
}

// SetOffline queues an offline write.
func (m *PresenceMirror) SetOffline(puzzleID string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.live[puzzleID] = nil
	m.mu.Unlock()
	m.signal()
}

// Done returns a channel that is closed when Run() exits.
func (m *PresenceMirror) Done() <-chan struct{} { return m.doneCh }

// Run writes pending state until ctx is done, then flushes once more and
// removes this instance's counts.
func (m *PresenceMirror) Run(ctx context.Context) {
	defer close(m.doneCh)

	for {
		select {
		case <-ctx.Done():
			final := context.WithoutCancel(ctx)
			m.flush(final)
			cctx, cancel := context.WithTimeout(final, mirrorWriteTimeout)
			if err := m.store.ClearInstance(cctx); err != nil {
				l := pkglog.L()
				l.Warn().Err(err).Msg("presence mirror: failed to clear instance counts")
			}
			cancel()
			return
		case <-m.wake:
			m.flush(ctx)
		}
	}
}

func (m *PresenceMirror) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *PresenceMirror) flush(ctx context.Context) {
	m.mu.Lock()
	counts, live := m.counts, m.live
	m.counts = make(map[string]int)
	m.live = make(map[string]*domain.LiveStatus)
	m.mu.Unlock()

	l := pkglog.L()
	for puzzleID, count := range counts {
		wctx, cancel := context.WithTimeout(ctx, mirrorWriteTimeout)
		if err := m.store.SetRoomCount(wctx, puzzleID, count); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldPuzzleID, puzzleID).Msg("presence mirror: count write failed")
		}
		cancel()
	}
	for puzzleID, status := range live {
		wctx, cancel := context.WithTimeout(ctx, mirrorWriteTimeout)
		var err error
		if status == nil {
			err = m.store.SetRoomOffline(wctx, puzzleID)
		} else {
			err = m.store.SetRoomLive(wctx, *status)
		}
		cancel()
		if err != nil {
			l.Warn().Err(err).Str(pkglog.FieldPuzzleID, puzzleID).Msg("presence mirror: live status write failed")
		}
	}
}
