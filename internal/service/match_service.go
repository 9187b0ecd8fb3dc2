package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/hexwar/internal/bot"
	"github.com/freeeve/hexwar/internal/model"
	"github.com/freeeve/hexwar/internal/repository"
	"github.com/freeeve/hexwar/pkg/tactics"
)

var (
	ErrMatchNotFound = errors.New("match not found")
	ErrMatchFinished = errors.New("match is finished")
	ErrNoUnitAt      = errors.New("no unit at position")
	ErrBadRequest    = errors.New("bad request")
)

// maxTicksPerRequest caps how far one Tick call may advance a match.
const maxTicksPerRequest = 200

// maxTicksPerTurn bounds an autoplay step, which plays one player's turn.
const maxTicksPerTurn = 500

// timerSlack absorbs clock drift between Redis key expiry and this process.
const timerSlack = 50 * time.Millisecond

// CreateMatchInput describes a new bot match.
type CreateMatchInput struct {
	Name     string `json:"name"`
	Cols     int    `json:"cols"`
	Rows     int    `json:"rows"`
	Players  int    `json:"players"`
	Towers   int    `json:"towers"`
	Seed     int64  `json:"seed"`
	Brains   string `json:"brains"` // e.g. "1=default,*=idle"
	Autoplay bool   `json:"autoplay"`
}

// MatchView is a match as returned to clients: its record plus, while it
// is live, the full board snapshot.
type MatchView struct {
	model.Match
	Current tactics.PlayerID         `json:"current,omitempty"`
	Towers  map[tactics.PlayerID]int `json:"towers,omitempty"`
	State   json.RawMessage          `json:"state,omitempty"`
}

// TickOutcome is the result of advancing a match.
type TickOutcome struct {
	Results []bot.TickResult `json:"results"`
	Match   *MatchView       `json:"match"`
}

// ReachTile is one tile of a reachability query.
type ReachTile struct {
	Pos  tactics.Position `json:"pos"`
	Dist int              `json:"dist"`
}

// ReachResult lists what the unit on a tile can reach this turn.
type ReachResult struct {
	Unit       *tactics.Unit      `json:"unit"`
	Reachable  []ReachTile        `json:"reachable"`
	Accessible []tactics.Position `json:"accessible"`
	Expansions int                `json:"expansions"`
}

// PathResult is a terrain-only route for a unit.
type PathResult struct {
	Unit       *tactics.Unit      `json:"unit"`
	Path       []tactics.Position `json:"path"`
	Cost       int                `json:"cost"`
	Turns      int                `json:"turns"`
	Expansions int                `json:"expansions"`
}

// SearchResult is the outcome of a condition search.
type SearchResult struct {
	Unit       *tactics.Unit      `json:"unit"`
	Kind       string             `json:"kind"`
	Found      bool               `json:"found"`
	End        *tactics.Position  `json:"end,omitempty"`
	Dist       int                `json:"dist,omitempty"`
	Turn       int                `json:"turn,omitempty"`
	Path       []tactics.Position `json:"path,omitempty"`
	Expansions int                `json:"expansions"`
}

type liveMatch struct {
	mu       sync.Mutex
	rec      model.Match
	match    *bot.Match
	nextTick time.Time // zero unless autoplay
}

// MatchService hosts live matches: it creates them, advances them one
// tick at a time, answers movement queries, mirrors their state to the
// cache and archives them when they end.
type MatchService struct {
	repo        repository.MatchRepository
	cache       repository.MatchCache
	broadcaster Broadcaster
	rules       *tactics.Rules
	interval    time.Duration

	mu   sync.RWMutex
	live map[string]*liveMatch
}

// NewMatchService creates a MatchService. interval is the delay between
// autoplay turns.
func NewMatchService(
	repo repository.MatchRepository,
	cache repository.MatchCache,
	broadcaster Broadcaster,
	rules *tactics.Rules,
	interval time.Duration,
) *MatchService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &MatchService{
		repo:        repo,
		cache:       cache,
		broadcaster: broadcaster,
		rules:       rules,
		interval:    interval,
		live:        make(map[string]*liveMatch),
	}
}

// CreateMatch generates a board, seats the brains and starts the match.
func (s *MatchService) CreateMatch(ctx context.Context, creatorID string, in CreateMatchInput) (*MatchView, error) {
	gen := tactics.DefaultGenConfig()
	if in.Cols != 0 {
		gen.Cols = in.Cols
	}
	if in.Rows != 0 {
		gen.Rows = in.Rows
	}
	if in.Players != 0 {
		gen.Players = in.Players
	}
	if in.Towers != 0 {
		gen.Towers = in.Towers
	}
	gen.Seed = in.Seed

	brains, err := bot.ParsePlayerConfig(in.Brains, gen.Players)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	board, seed, err := tactics.Generate(s.rules, gen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	id := uuid.NewString()
	m, err := bot.NewMatch(board, s.rules, brains, log.With().Str("matchId", id).Logger())
	if err != nil {
		return nil, err
	}

	name := in.Name
	if name == "" {
		name = "match " + id[:8]
	}
	rec := model.Match{
		ID:        id,
		Name:      name,
		CreatorID: creatorID,
		Status:    model.MatchActive,
		Cols:      gen.Cols,
		Rows:      gen.Rows,
		Seed:      seed,
		Turn:      m.Turn(),
		Autoplay:  in.Autoplay,
		CreatedAt: time.Now(),
	}
	for _, p := range m.Players() {
		rec.Players = append(rec.Players, model.MatchPlayer{MatchID: id, Player: int(p.ID), Brain: p.Brain.String()})
	}
	if err := s.repo.Create(ctx, &rec); err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}

	lm := &liveMatch{rec: rec, match: m}
	if err := s.snapshot(ctx, lm); err != nil {
		return nil, err
	}
	if in.Autoplay {
		s.arm(ctx, lm)
	}

	s.mu.Lock()
	s.live[id] = lm
	s.mu.Unlock()

	log.Info().Str("matchId", id).Int64("seed", seed).Int("players", gen.Players).Bool("autoplay", in.Autoplay).Msg("Match created")
	s.broadcaster.BroadcastMatchEvent(id, EventMatchCreated, map[string]any{
		"name":    name,
		"players": len(rec.Players),
	})
	return s.view(lm), nil
}

// GetMatch returns a live match, or the archived record of a finished one.
func (s *MatchService) GetMatch(ctx context.Context, id string) (*MatchView, error) {
	if lm := s.lookup(id); lm != nil {
		lm.mu.Lock()
		defer lm.mu.Unlock()
		return s.view(lm), nil
	}
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrMatchNotFound
	}
	return &MatchView{Match: *rec, State: rec.FinalState}, nil
}

// ListMatches returns the most recent matches, newest first.
func (s *MatchService) ListMatches(ctx context.Context, limit int) ([]model.Match, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListRecent(ctx, limit)
}

// Actions returns the archived action log of a match.
func (s *MatchService) Actions(ctx context.Context, id string) ([]model.ActionRecord, error) {
	return s.repo.ActionsByMatch(ctx, id)
}

// RecentEvents returns up to n cached events of a live match, oldest first.
func (s *MatchService) RecentEvents(ctx context.Context, id string, n int64) ([]json.RawMessage, error) {
	return s.cache.RecentEvents(ctx, id, n)
}

// Tick advances a live match by n brain ticks, stopping early if it ends.
func (s *MatchService) Tick(ctx context.Context, id string, n int) (*TickOutcome, error) {
	if n < 1 {
		n = 1
	}
	if n > maxTicksPerRequest {
		n = maxTicksPerRequest
	}
	lm := s.lookup(id)
	if lm == nil {
		return nil, s.notLive(ctx, id)
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.match.Finished() {
		return nil, ErrMatchFinished
	}
	results, err := s.advance(ctx, lm, func(i int, _ bot.TickResult) bool { return i < n })
	if err != nil {
		return nil, err
	}
	return &TickOutcome{Results: results, Match: s.view(lm)}, nil
}

// PlayTurn plays the current player's whole turn. The autoplay timer
// calls it; it does nothing for matches that are gone or not on autoplay.
func (s *MatchService) PlayTurn(ctx context.Context, id string) error {
	lm := s.lookup(id)
	if lm == nil {
		return nil
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if !lm.rec.Autoplay || lm.match.Finished() {
		return nil
	}
	// The keyspace listener and the poller can both fire for one deadline.
	if lm.nextTick.IsZero() || time.Now().Add(timerSlack).Before(lm.nextTick) {
		log.Debug().Str("matchId", id).Time("next", lm.nextTick).Msg("Autoplay turn not due yet, skipping")
		return nil
	}
	lm.nextTick = time.Time{}
	_, err := s.advance(ctx, lm, func(i int, last bot.TickResult) bool {
		return i == 0 || (!last.EndTurn && i < maxTicksPerTurn)
	})
	if err != nil {
		return err
	}
	if !lm.match.Finished() {
		s.arm(ctx, lm)
	}
	return nil
}

// DueMatches lists autoplay matches whose next turn is overdue.
func (s *MatchService) DueMatches(now time.Time) []string {
	s.mu.RLock()
	live := make(map[string]*liveMatch, len(s.live))
	for id, lm := range s.live {
		live[id] = lm
	}
	s.mu.RUnlock()

	var ids []string
	for id, lm := range live {
		lm.mu.Lock()
		due := !lm.nextTick.IsZero() && !now.Before(lm.nextTick)
		lm.mu.Unlock()
		if due {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// advance ticks lm while more(i, previous result) holds. lm.mu must be held.
func (s *MatchService) advance(ctx context.Context, lm *liveMatch, more func(int, bot.TickResult) bool) ([]bot.TickResult, error) {
	var (
		results []bot.TickResult
		last    bot.TickResult
	)
	for i := 0; more(i, last) && !lm.match.Finished(); i++ {
		if ctx.Err() != nil {
			break
		}
		res, err := lm.match.Tick()
		if err != nil {
			return nil, err
		}
		results = append(results, res)
		last = res
	}

	if err := s.record(ctx, lm); err != nil {
		return nil, err
	}
	if lm.match.Finished() {
		return results, s.finish(ctx, lm)
	}
	return results, s.snapshot(ctx, lm)
}

// record archives and broadcasts the actions logged since the last call.
func (s *MatchService) record(ctx context.Context, lm *liveMatch) error {
	actions := lm.match.DrainActions()
	if len(actions) == 0 {
		return nil
	}
	records := make([]model.ActionRecord, 0, len(actions))
	for _, a := range actions {
		detail, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal action: %w", err)
		}
		records = append(records, model.ActionRecord{
			MatchID:   lm.rec.ID,
			Seq:       a.Seq,
			Turn:      a.Turn,
			Player:    int(a.Player),
			Kind:      a.Kind,
			UnitID:    a.UnitID,
			Detail:    detail,
			CreatedAt: time.Now(),
		})

		eventType := actionEvent(a.Kind)
		s.broadcaster.BroadcastMatchEvent(lm.rec.ID, eventType, a)
		if err := s.pushEvent(ctx, lm.rec.ID, eventType, detail); err != nil {
			log.Warn().Err(err).Str("matchId", lm.rec.ID).Msg("Failed to cache match event")
		}
	}
	if err := s.repo.SaveActions(ctx, records); err != nil {
		return fmt.Errorf("save actions: %w", err)
	}
	lm.rec.Turn = lm.match.Turn()
	return nil
}

func (s *MatchService) pushEvent(ctx context.Context, id, eventType string, data json.RawMessage) error {
	ev, err := json.Marshal(map[string]any{"type": eventType, "data": data})
	if err != nil {
		return err
	}
	return s.cache.PushEvent(ctx, id, ev)
}

// snapshot writes the live state to the cache.
func (s *MatchService) snapshot(ctx context.Context, lm *liveMatch) error {
	state, err := json.Marshal(lm.match)
	if err != nil {
		return fmt.Errorf("marshal match state: %w", err)
	}
	if err := s.cache.SetMatchState(ctx, lm.rec.ID, state); err != nil {
		return fmt.Errorf("set match state: %w", err)
	}
	return nil
}

// finish archives a match that just ended and drops it from the registry.
func (s *MatchService) finish(ctx context.Context, lm *liveMatch) error {
	final, err := json.Marshal(lm.match)
	if err != nil {
		return fmt.Errorf("marshal final state: %w", err)
	}
	winner := int(lm.match.Winner())
	if err := s.repo.SetFinished(ctx, lm.rec.ID, winner, lm.match.Turn(), final); err != nil {
		return fmt.Errorf("set finished: %w", err)
	}
	now := time.Now()
	lm.rec.Status = model.MatchFinished
	lm.rec.Winner = winner
	lm.rec.FinishedAt = &now
	lm.rec.FinalState = final
	lm.nextTick = time.Time{}

	s.mu.Lock()
	delete(s.live, lm.rec.ID)
	s.mu.Unlock()

	log.Info().Str("matchId", lm.rec.ID).Int("winner", winner).Int("turn", lm.match.Turn()).Msg("Match won")
	s.broadcaster.BroadcastMatchEvent(lm.rec.ID, EventMatchEnded, map[string]any{
		"winner": winner,
		"turn":   lm.match.Turn(),
	})
	return s.cache.DeleteMatchData(ctx, lm.rec.ID)
}

// arm schedules the next autoplay turn.
func (s *MatchService) arm(ctx context.Context, lm *liveMatch) {
	lm.nextTick = time.Now().Add(s.interval)
	if err := s.cache.SetTickTimer(ctx, lm.rec.ID, lm.nextTick); err != nil {
		log.Warn().Err(err).Str("matchId", lm.rec.ID).Msg("Failed to set tick timer, poller will pick it up")
	}
}

// RecoverActiveMatches reloads live matches from their cached snapshots.
// Called on server startup. An active match without a snapshot cannot be
// resumed and is closed without a winner.
func (s *MatchService) RecoverActiveMatches(ctx context.Context) error {
	recs, err := s.repo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active matches: %w", err)
	}
	if len(recs) == 0 {
		log.Info().Msg("No active matches to recover")
		return nil
	}

	log.Info().Int("count", len(recs)).Msg("Recovering active matches after restart")
	for _, rec := range recs {
		state, err := s.cache.GetMatchState(ctx, rec.ID)
		if err != nil {
			log.Error().Err(err).Str("matchId", rec.ID).Msg("Failed to read cached match state")
			continue
		}
		if state == nil {
			log.Warn().Str("matchId", rec.ID).Msg("Active match has no cached state, closing it")
			if err := s.repo.SetFinished(ctx, rec.ID, int(tactics.Neutral), rec.Turn, nil); err != nil {
				log.Error().Err(err).Str("matchId", rec.ID).Msg("Failed to close unrecoverable match")
			}
			continue
		}
		m, err := bot.RestoreMatch(state, s.rules, log.With().Str("matchId", rec.ID).Logger())
		if err != nil {
			log.Error().Err(err).Str("matchId", rec.ID).Msg("Failed to restore match")
			continue
		}

		lm := &liveMatch{rec: rec, match: m}
		if rec.Autoplay {
			s.arm(ctx, lm)
		}
		s.mu.Lock()
		s.live[rec.ID] = lm
		s.mu.Unlock()
		log.Info().Str("matchId", rec.ID).Int("turn", m.Turn()).Msg("Recovered match")
	}
	return nil
}

// Reach returns what the unit on at can reach or attack this turn.
func (s *MatchService) Reach(ctx context.Context, id string, at tactics.Position) (*ReachResult, error) {
	var out *ReachResult
	err := s.withUnit(ctx, id, at, func(m *bot.Match, u *tactics.Unit) error {
		dm, err := m.Pathfinder().FullFill(m.Board(), u)
		if err != nil {
			return err
		}
		out = &ReachResult{Unit: u, Accessible: dm.AccessibleSet(), Expansions: dm.Expansions()}
		for _, p := range dm.Reachable() {
			out.Reachable = append(out.Reachable, ReachTile{Pos: p, Dist: dm.Dist(p)})
		}
		return nil
	})
	return out, err
}

// Path returns the cheapest terrain-only route from the unit on from to to.
// An unreachable destination yields an empty path, not an error.
func (s *MatchService) Path(ctx context.Context, id string, from, to tactics.Position) (*PathResult, error) {
	var out *PathResult
	err := s.withUnit(ctx, id, from, func(m *bot.Match, u *tactics.Unit) error {
		pf := m.Pathfinder()
		dm, err := pf.PointToPoint(m.Board(), u, to)
		if err != nil {
			if errors.Is(err, tactics.ErrInvalidPosition) {
				return fmt.Errorf("%w: %v", ErrBadRequest, err)
			}
			return err
		}
		out = &PathResult{Unit: u, Expansions: dm.Expansions()}
		if dm.Reached(to) {
			out.Path = pf.Retrace(m.Board(), dm, to)
			out.Cost = dm.Dist(to)
			out.Turns = tactics.TurnsAlong(m.Board(), pf.Rules(), u, out.Path)
		}
		return nil
	})
	return out, err
}

// Search runs a condition search for the unit on at.
func (s *MatchService) Search(ctx context.Context, id string, kind tactics.SearchKind, at tactics.Position) (*SearchResult, error) {
	var out *SearchResult
	err := s.withUnit(ctx, id, at, func(m *bot.Match, u *tactics.Unit) error {
		pf := m.Pathfinder()
		dm, err := pf.Search(m.Board(), u, kind)
		if err != nil {
			return err
		}
		out = &SearchResult{Unit: u, Kind: kind.String(), Found: dm.HasEnd, Expansions: dm.Expansions()}
		if dm.HasEnd {
			end := dm.End
			out.End = &end
			out.Dist = dm.Dist(end)
			out.Turn = dm.Turn(end)
			out.Path = pf.Retrace(m.Board(), dm, end)
		}
		return nil
	})
	return out, err
}

func (s *MatchService) withUnit(ctx context.Context, id string, at tactics.Position, fn func(*bot.Match, *tactics.Unit) error) error {
	lm := s.lookup(id)
	if lm == nil {
		return s.notLive(ctx, id)
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()

	b := lm.match.Board()
	if !b.IsValid(at) {
		return fmt.Errorf("%w: %s is off the board", ErrBadRequest, at)
	}
	u := b.UnitAt(at)
	if u == nil {
		return fmt.Errorf("%s: %w", at, ErrNoUnitAt)
	}
	return fn(lm.match, u)
}

func (s *MatchService) lookup(id string) *liveMatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live[id]
}

// notLive explains why id is not in the registry.
func (s *MatchService) notLive(ctx context.Context, id string) error {
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrMatchNotFound
	}
	return ErrMatchFinished
}

// view builds the client view of lm. lm.mu must be held.
func (s *MatchService) view(lm *liveMatch) *MatchView {
	v := &MatchView{Match: lm.rec}
	v.Turn = lm.match.Turn()
	if lm.match.Finished() {
		v.State = lm.rec.FinalState
		return v
	}
	v.Current = lm.match.CurrentPlayer()
	v.Towers = lm.match.TowerCounts()
	if state, err := json.Marshal(lm.match); err == nil {
		v.State = state
	}
	return v
}

// LiveCount is the number of matches in the registry.
func (s *MatchService) LiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.live)
}
