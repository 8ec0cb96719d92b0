// Package live decides which connection of a puzzle room is the broadcaster.
//
// The first connection to push a board for a room without a broadcaster takes
// the room. It keeps it as long as it keeps pushing boards or heartbeats within
// the timeout, and loses it by releasing, leaving or timing out.
package live

import (
	"sort"
	"sync"
	"time"
)

// remoteTimeoutFactor stretches the timeout of broadcasters owned by another
// instance so the owner's own liveEnded normally arrives first.
const remoteTimeoutFactor = 2

// Candidate identifies a connection asking for live authority.
type Candidate struct {
	ClientID string
	UserID   string
	Name     string
}

// Broadcast is a snapshot of a room's live authority. Board is shared with the
// arbiter and must be treated as read-only.
type Broadcast struct {
	PuzzleID  string
	ClientID  string
	UserID    string
	Name      string
	StartedAt time.Time
	LastSeen  time.Time
	Updates   int
	Board     [][]int
	Remote    bool
	Origin    string
}

// Decision is the result of a Claim.
type Decision struct {
	Granted bool
	// Started is set when this claim made the candidate the broadcaster.
	Started bool
	Current Broadcast
}

// ExpireFunc is called, outside the arbiter lock, when a broadcaster misses
// its heartbeat window.
type ExpireFunc func(Broadcast)

type entry struct {
	Broadcast
	gen   uint64
	timer *time.Timer
}

// Arbiter tracks at most one broadcaster per room.
type Arbiter struct {
	mu       sync.Mutex
	rooms    map[string]*entry
	timeout  time.Duration
	onExpire ExpireFunc
	gen      uint64
	now      func() time.Time
}

// NewArbiter creates an arbiter. A zero timeout disables expiry.
func NewArbiter(timeout time.Duration, onExpire ExpireFunc) *Arbiter {
	return &Arbiter{
		rooms:    make(map[string]*entry),
		timeout:  timeout,
		onExpire: onExpire,
		now:      time.Now,
	}
}

// Claim asks for live authority over a room on behalf of a board update. The
// current broadcaster is re-granted, which also refreshes its timer. A
// refused candidate gets the current holder back.
func (a *Arbiter) Claim(puzzleID string, c Candidate, board [][]int) Decision {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	e, ok := a.rooms[puzzleID]
	if ok && (e.ClientID != c.ClientID || e.Remote) {
		return Decision{Current: e.Broadcast}
	}

	started := !ok
	if started {
		e = &entry{Broadcast: Broadcast{
			PuzzleID:  puzzleID,
			ClientID:  c.ClientID,
			UserID:    c.UserID,
			Name:      c.Name,
			StartedAt: now,
		}}
		a.rooms[puzzleID] = e
	}
	e.LastSeen = now
	e.Updates++
	if board != nil {
		e.Board = board
	}
	a.armLocked(e, a.timeout)

	return Decision{Granted: true, Started: started, Current: e.Broadcast}
}

// Heartbeat refreshes the broadcaster's timer without a board change. It
// returns false if clientID is not the room's local broadcaster.
func (a *Arbiter) Heartbeat(puzzleID, clientID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.rooms[puzzleID]
	if !ok || e.Remote || e.ClientID != clientID {
		return false
	}
	e.LastSeen = a.now()
	a.armLocked(e, a.timeout)
	return true
}

// Release ends live authority if clientID holds it.
func (a *Arbiter) Release(puzzleID, clientID string) (Broadcast, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.rooms[puzzleID]
	if !ok || e.Remote || e.ClientID != clientID {
		return Broadcast{}, false
	}
	a.dropLocked(puzzleID, e)
	return e.Broadcast, true
}

// IsBroadcaster reports whether clientID is the local broadcaster of the room.
func (a *Arbiter) IsBroadcaster(puzzleID, clientID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.rooms[puzzleID]
	return ok && !e.Remote && e.ClientID == clientID
}

// Current returns the room's broadcaster, local or remote.
func (a *Arbiter) Current(puzzleID string) (Broadcast, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.rooms[puzzleID]
	if !ok {
		return Broadcast{}, false
	}
	return e.Broadcast, true
}

// Live returns every room with a broadcaster, ordered by puzzle id.
func (a *Arbiter) Live() []Broadcast {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Broadcast, 0, len(a.rooms))
	for _, e := range a.rooms {
		out = append(out, e.Broadcast)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PuzzleID < out[j].PuzzleID })
	return out
}

// ObserveRemote records or refreshes a broadcaster owned by another instance.
// It returns true when the room had no broadcaster before. A local
// broadcaster is never displaced.
func (a *Arbiter) ObserveRemote(puzzleID, origin string, c Candidate, board [][]int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	e, ok := a.rooms[puzzleID]
	if ok && (!e.Remote || e.ClientID != c.ClientID) {
		return false
	}
	if !ok {
		e = &entry{Broadcast: Broadcast{
			PuzzleID:  puzzleID,
			ClientID:  c.ClientID,
			UserID:    c.UserID,
			Name:      c.Name,
			StartedAt: now,
			Remote:    true,
			Origin:    origin,
		}}
		a.rooms[puzzleID] = e
	}
	if c.Name != "" {
		e.Name = c.Name
	}
	e.LastSeen = now
	if board != nil {
		e.Board = board
		e.Updates++
	}
	a.armLocked(e, a.timeout*remoteTimeoutFactor)
	return !ok
}

// ForgetRemote drops a remote broadcaster after its owner announced the end.
func (a *Arbiter) ForgetRemote(puzzleID, clientID string) (Broadcast, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.rooms[puzzleID]
	if !ok || !e.Remote || e.ClientID != clientID {
		return Broadcast{}, false
	}
	a.dropLocked(puzzleID, e)
	return e.Broadcast, true
}

// Stop cancels every timer and forgets all broadcasters.
func (a *Arbiter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, e := range a.rooms {
		a.dropLocked(id, e)
	}
}

func (a *Arbiter) armLocked(e *entry, timeout time.Duration) {
	if e.timer != nil {
		e.timer.Stop()
	}
	a.gen++
	e.gen = a.gen
	if timeout <= 0 {
		e.timer = nil
		return
	}
	gen, puzzleID := e.gen, e.PuzzleID
	e.timer = time.AfterFunc(timeout, func() { a.expire(puzzleID, gen) })
}

func (a *Arbiter) dropLocked(puzzleID string, e *entry) {
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(a.rooms, puzzleID)
}

// expire ignores timers that were re-armed or whose entry is gone.
func (a *Arbiter) expire(puzzleID string, gen uint64) {
	a.mu.Lock()
	e, ok := a.rooms[puzzleID]
	if !ok || e.gen != gen {
		a.mu.Unlock()
		return
	}
	delete(a.rooms, puzzleID)
	b := e.Broadcast
	a.mu.Unlock()

	if a.onExpire != nil {
		a.onExpire(b)
	}
}
