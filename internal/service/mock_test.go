package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/freeeve/hexwar/internal/model"
)

type mockMatchRepo struct {
	mu      sync.Mutex
	matches map[string]*model.Match
	actions map[string][]model.ActionRecord
	failOn  string
}

func newMockMatchRepo() *mockMatchRepo {
	return &mockMatchRepo{
		matches: make(map[string]*model.Match),
		actions: make(map[string][]model.ActionRecord),
	}
}

func (m *mockMatchRepo) fail(op string) error {
	if m.failOn == op {
		return fmt.Errorf("mock %s failure", op)
	}
	return nil
}

func (m *mockMatchRepo) Create(_ context.Context, rec *model.Match) error {
	if err := m.fail("create"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.matches[rec.ID]; ok {
		return fmt.Errorf("duplicate match %s", rec.ID)
	}
	cp := *rec
	cp.CreatedAt = time.Now()
	m.matches[rec.ID] = &cp
	return nil
}

func (m *mockMatchRepo) FindByID(_ context.Context, id string) (*model.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.matches[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *mockMatchRepo) ListRecent(_ context.Context, limit int) ([]model.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Match
	for _, rec := range m.matches {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockMatchRepo) ListActive(_ context.Context) ([]model.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Match
	for _, rec := range m.matches {
		if rec.Status == model.MatchActive {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockMatchRepo) SetFinished(_ context.Context, id string, winner, turn int, finalState json.RawMessage) error {
	if err := m.fail("finish"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.matches[id]
	if !ok {
		return fmt.Errorf("no match %s", id)
	}
	now := time.Now()
	rec.Status = model.MatchFinished
	rec.Winner = winner
	rec.Turn = turn
	rec.FinalState = finalState
	rec.FinishedAt = &now
	return nil
}

func (m *mockMatchRepo) SaveActions(_ context.Context, actions []model.ActionRecord) error {
	if err := m.fail("actions"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range actions {
		m.actions[a.MatchID] = append(m.actions[a.MatchID], a)
	}
	return nil
}

func (m *mockMatchRepo) ActionsByMatch(_ context.Context, matchID string) ([]model.ActionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ActionRecord(nil), m.actions[matchID]...), nil
}

type mockCache struct {
	mu     sync.Mutex
	states map[string]json.RawMessage
	events map[string][]json.RawMessage
	timers map[string]time.Time
}

func newMockCache() *mockCache {
	return &mockCache{
		states: make(map[string]json.RawMessage),
		events: make(map[string][]json.RawMessage),
		timers: make(map[string]time.Time),
	}
}

func (c *mockCache) SetMatchState(_ context.Context, id string, state json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[id] = state
	return nil
}

func (c *mockCache) GetMatchState(_ context.Context, id string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[id], nil
}

func (c *mockCache) PushEvent(_ context.Context, id string, event json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[id] = append(c.events[id], event)
	return nil
}

func (c *mockCache) RecentEvents(_ context.Context, id string, n int64) ([]json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	evs := c.events[id]
	if int64(len(evs)) > n {
		evs = evs[int64(len(evs))-n:]
	}
	return append([]json.RawMessage(nil), evs...), nil
}

func (c *mockCache) SetTickTimer(_ context.Context, id string, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers[id] = deadline
	return nil
}

func (c *mockCache) ClearTickTimer(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.timers, id)
	return nil
}

func (c *mockCache) DeleteMatchData(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, id)
	delete(c.events, id)
	delete(c.timers, id)
	return nil
}

type broadcastEvent struct {
	matchID   string
	eventType string
	data      any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (b *recordingBroadcaster) BroadcastMatchEvent(matchID, eventType string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastEvent{matchID, eventType, data})
}

func (b *recordingBroadcaster) count(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.eventType == eventType {
			n++
		}
	}
	return n
}
