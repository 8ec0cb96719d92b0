package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/afikyefet/sudoku-live/internal/domain"
	"github.com/afikyefet/sudoku-live/internal/hub"
	"github.com/afikyefet/sudoku-live/internal/kafka"
	"github.com/afikyefet/sudoku-live/internal/metrics"
	"github.com/stretchr/testify/require"
)

type publishedEvent struct {
	puzzleID  string
	eventType string
	payload   interface{}
}

type fakeRelay struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (r *fakeRelay) Publish(puzzleID, eventType string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, publishedEvent{puzzleID, eventType, payload})
}

func (r *fakeRelay) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.eventType
	}
	return out
}

type fakeProducer struct {
	mu     sync.Mutex
	events []kafka.LiveEvent
}

func (p *fakeProducer) ProduceLiveStarted(ctx context.Context, event *kafka.LiveEvent) error {
	return p.add(kafka.EventLiveStarted, event)
}

func (p *fakeProducer) ProduceLiveEnded(ctx context.Context, event *kafka.LiveEvent) error {
	return p.add(kafka.EventLiveEnded, event)
}

func (p *fakeProducer) add(eventType string, event *kafka.LiveEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := *event
	e.Type = eventType
	p.events = append(p.events, e)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func (p *fakeProducer) snapshot() []kafka.LiveEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]kafka.LiveEvent(nil), p.events...)
}

// fakeStore keeps the shared presence state in memory.
type fakeStore struct {
	mu      sync.Mutex
	counts  map[string]map[string]int // puzzleID -> instance -> count
	live    map[string]domain.LiveStatus
	cleared bool
	id      string
}

func newFakeStore(instanceID string) *fakeStore {
	return &fakeStore{
		counts: make(map[string]map[string]int),
		live:   make(map[string]domain.LiveStatus),
		id:     instanceID,
	}
}

func (f *fakeStore) SetRoomCount(ctx context.Context, puzzleID string, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[puzzleID] == nil {
		f.counts[puzzleID] = make(map[string]int)
	}
	if count == 0 {
		delete(f.counts[puzzleID], f.id)
	} else {
		f.counts[puzzleID][f.id] = count
	}
	return nil
}

func (f *fakeStore) GetClusterCount(ctx context.Context, puzzleID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.counts[puzzleID] {
		total += n
	}
	return total, nil
}

func (f *fakeStore) SetRoomLive(ctx context.Context, status domain.LiveStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	status.IsLive = true
	f.live[status.PuzzleID] = status
	return nil
}

func (f *fakeStore) SetRoomOffline(ctx context.Context, puzzleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, puzzleID)
	return nil
}

func (f *fakeStore) GetRoomLiveStatus(ctx context.Context, puzzleID string) (*domain.LiveStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.live[puzzleID]; ok {
		return &s, nil
	}
	return &domain.LiveStatus{PuzzleID: puzzleID}, nil
}

func (f *fakeStore) GetAllLiveRooms(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.live {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) ClearInstance(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, byInstance := range f.counts {
		delete(byInstance, f.id)
	}
	f.cleared = true
	return nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) localCount(puzzleID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[puzzleID][f.id]
}

func (f *fakeStore) isLive(puzzleID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.live[puzzleID]
	return ok
}

type testEnv struct {
	svc      *puzzleService
	hub      *hub.Hub
	relay    *fakeRelay
	producer *fakeProducer
	metrics  *metrics.Metrics
}

func newTestEnv(t *testing.T, mutate func(o *Options)) *testEnv {
	t.Helper()
	m := metrics.New()
	var mirror *PresenceMirror
	h := hub.NewHub(hub.Config{SendBuffer: 64}, m, func(puzzleID string, count int) {
		mirror.ObserveCount(puzzleID, count)
	})
	env := &testEnv{
		hub:      h,
		relay:    &fakeRelay{},
		producer: &fakeProducer{},
		metrics:  m,
	}
	opts := Options{
		Hub:           h,
		Relay:         env.relay,
		LiveProducer:  env.producer,
		Metrics:       m,
		InstanceID:    "node-1",
		ChatMaxLength: 20,
	}
	if mutate != nil {
		mutate(&opts)
	}
	mirror = opts.Mirror
	env.svc = newPuzzleService(opts)
	t.Cleanup(func() { env.svc.arbiter.Stop() })
	return env
}

// connect registers a client the way the websocket handler does.
func (e *testEnv) connect(id, name string) *hub.Client {
	c := hub.NewClient(id, e.hub, nil, domain.NewSession(id, name))
	e.hub.Register(c)
	return c
}

// disconnect runs the same sequence as the read pump's exit path.
func (e *testEnv) disconnect(c *hub.Client) {
	e.svc.HandleDisconnect(context.Background(), c)
	e.hub.Unregister(c)
}

func (e *testEnv) join(t *testing.T, c *hub.Client, puzzleID string) {
	t.Helper()
	require.NoError(t, e.svc.HandleJoin(context.Background(), c, puzzleID))
}

var fixedTime = time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

type frame map[string]interface{}

// drain returns every frame queued for c without blocking.
func drain(t *testing.T, c *hub.Client) []frame {
	t.Helper()
	var out []frame
	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				return out
			}
			var f frame
			require.NoError(t, json.Unmarshal(data, &f))
			out = append(out, f)
		default:
			return out
		}
	}
}

func ofType(frames []frame, msgType string) []frame {
	var out []frame
	for _, f := range frames {
		if f["type"] == msgType {
			out = append(out, f)
		}
	}
	return out
}

func types(frames []frame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f["type"].(string)
	}
	return out
}

func board(n int) [][]int {
	return [][]int{{n, 0, 0}, {0, n, 0}, {0, 0, n}}
}
