package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/hexwar/internal/bot"
	"github.com/freeeve/hexwar/internal/model"
	"github.com/freeeve/hexwar/pkg/tactics"
)

type testSvc struct {
	*MatchService
	repo  *mockMatchRepo
	cache *mockCache
	bc    *recordingBroadcaster
}

func newTestService(interval time.Duration) *testSvc {
	repo := newMockMatchRepo()
	cache := newMockCache()
	bc := &recordingBroadcaster{}
	return &testSvc{
		MatchService: NewMatchService(repo, cache, bc, tactics.DefaultRules(), interval),
		repo:         repo,
		cache:        cache,
		bc:           bc,
	}
}

// adoptDuel registers a hand-built match where player 1's lord finishes
// player 2's one-hit-point lord on its first move.
func adoptDuel(t *testing.T, s *testSvc, id string) {
	t.Helper()
	r := s.rules
	b := tactics.NewBoard(tactics.Bounds{Cols: 8, Rows: 8}, tactics.Plains)
	for _, spec := range []struct {
		owner tactics.PlayerID
		at    tactics.Position
		hp    int
	}{
		{1, tactics.Position{Col: 2, Row: 2}, 0},
		{2, tactics.Position{Col: 4, Row: 2}, 1},
	} {
		u, err := tactics.NewUnit(r, "lord", spec.owner, spec.at)
		if err != nil {
			t.Fatalf("NewUnit: %v", err)
		}
		if spec.hp > 0 {
			u.HP = spec.hp
		}
		if err := b.PlaceUnit(u); err != nil {
			t.Fatalf("PlaceUnit: %v", err)
		}
	}
	m, err := bot.NewMatch(b, r, map[tactics.PlayerID]bot.BrainKind{1: bot.BrainDefault, 2: bot.BrainIdle}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewMatch: %v", err)
	}
	rec := model.Match{ID: id, Name: "duel", Status: model.MatchActive, Cols: 8, Rows: 8, Turn: 1}
	if err := s.repo.Create(context.Background(), &rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.mu.Lock()
	s.live[id] = &liveMatch{rec: rec, match: m}
	s.mu.Unlock()
}

func TestCreateMatchDefaults(t *testing.T) {
	s := newTestService(time.Second)
	ctx := context.Background()

	v, err := s.CreateMatch(ctx, "user-1", CreateMatchInput{Seed: 11})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	if v.Status != model.MatchActive {
		t.Errorf("expected active, got %s", v.Status)
	}
	if v.Cols != 16 || v.Rows != 12 || v.Seed != 11 {
		t.Errorf("unexpected board %dx%d seed %d", v.Cols, v.Rows, v.Seed)
	}
	if len(v.Players) != 2 {
		t.Fatalf("expected 2 players, got %d", len(v.Players))
	}
	for _, p := range v.Players {
		if p.Brain != "default" {
			t.Errorf("player %d: expected default brain, got %s", p.Player, p.Brain)
		}
	}
	if v.Current != 1 || v.Turn != 1 {
		t.Errorf("expected player 1 on turn 1, got player %d turn %d", v.Current, v.Turn)
	}
	if len(v.State) == 0 {
		t.Error("expected a state snapshot")
	}

	if rec, _ := s.repo.FindByID(ctx, v.ID); rec == nil || rec.CreatorID != "user-1" {
		t.Fatalf("expected archived record with creator, got %+v", rec)
	}
	if st, _ := s.cache.GetMatchState(ctx, v.ID); len(st) == 0 {
		t.Error("expected cached state")
	}
	if n := s.bc.count(EventMatchCreated); n != 1 {
		t.Errorf("expected 1 match_created event, got %d", n)
	}
	if _, armed := s.cache.timers[v.ID]; armed {
		t.Error("timer armed for a manual match")
	}
}

func TestCreateMatchBadInput(t *testing.T) {
	s := newTestService(time.Second)
	tests := []struct {
		name string
		in   CreateMatchInput
	}{
		{"unknown brain", CreateMatchInput{Brains: "1=genius"}},
		{"player out of range", CreateMatchInput{Brains: "3=idle"}},
		{"too many players", CreateMatchInput{Players: 5}},
		{"board too small", CreateMatchInput{Cols: 4, Rows: 4}},
		{"board too large", CreateMatchInput{Cols: 100000, Rows: 100000}},
		{"board too wide", CreateMatchInput{Cols: tactics.MaxBoardSide + 1}},
		{"too many towers", CreateMatchInput{Towers: 2_000_000}},
		{"negative towers", CreateMatchInput{Towers: -3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateMatch(context.Background(), "", tt.in)
			if !errors.Is(err, ErrBadRequest) {
				t.Fatalf("expected ErrBadRequest, got %v", err)
			}
		})
	}
	if s.LiveCount() != 0 {
		t.Errorf("expected no live matches, got %d", s.LiveCount())
	}
}

func TestTickIdleMatch(t *testing.T) {
	s := newTestService(time.Second)
	ctx := context.Background()

	v, err := s.CreateMatch(ctx, "", CreateMatchInput{Brains: "*=idle", Seed: 3})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}

	out, err := s.Tick(ctx, v.ID, 4)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(out.Results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(out.Results))
	}
	for i, r := range out.Results {
		if !r.EndTurn {
			t.Errorf("result %d: expected end turn, got %+v", i, r)
		}
	}
	if out.Match.Turn != 3 {
		t.Errorf("expected turn 3 after four idle turns, got %d", out.Match.Turn)
	}
	if out.Match.Current != 1 {
		t.Errorf("expected player 1 to move, got %d", out.Match.Current)
	}

	actions, _ := s.Actions(ctx, v.ID)
	if len(actions) != 4 {
		t.Fatalf("expected 4 archived actions, got %d", len(actions))
	}
	for i, a := range actions {
		if a.Kind != "end_turn" || a.Seq != i+1 {
			t.Errorf("action %d: unexpected %+v", i, a)
		}
	}
	if n := s.bc.count(EventTurnEnded); n != 4 {
		t.Errorf("expected 4 turn_ended events, got %d", n)
	}
	evs, _ := s.cache.RecentEvents(ctx, v.ID, 10)
	if len(evs) != 4 {
		t.Errorf("expected 4 cached events, got %d", len(evs))
	}
}

func TestTickClampsCount(t *testing.T) {
	s := newTestService(time.Second)
	ctx := context.Background()
	v, err := s.CreateMatch(ctx, "", CreateMatchInput{Brains: "*=idle", Seed: 5})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}

	out, err := s.Tick(ctx, v.ID, 0)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(out.Results) != 1 {
		t.Errorf("expected n<1 to tick once, got %d", len(out.Results))
	}

	out, err = s.Tick(ctx, v.ID, 10*maxTicksPerRequest)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(out.Results) != maxTicksPerRequest {
		t.Errorf("expected %d results, got %d", maxTicksPerRequest, len(out.Results))
	}
}

func TestTickUnknownMatch(t *testing.T) {
	s := newTestService(time.Second)
	if _, err := s.Tick(context.Background(), "missing", 1); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("expected ErrMatchNotFound, got %v", err)
	}
}

func TestTickToVictory(t *testing.T) {
	s := newTestService(time.Second)
	ctx := context.Background()
	adoptDuel(t, s, "duel")

	out, err := s.Tick(ctx, "duel", 10)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(out.Results) != 1 || out.Results[0].Action != bot.ActionMove {
		t.Fatalf("expected a single winning move, got %+v", out.Results)
	}
	if out.Match.Status != model.MatchFinished || out.Match.Winner != 1 {
		t.Fatalf("expected player 1 to win, got status %s winner %d", out.Match.Status, out.Match.Winner)
	}
	if len(out.Match.State) == 0 {
		t.Error("expected final state on the finished view")
	}

	rec, _ := s.repo.FindByID(ctx, "duel")
	if rec.Status != model.MatchFinished || rec.Winner != 1 || rec.FinishedAt == nil {
		t.Fatalf("expected archived finish, got %+v", rec)
	}
	if s.LiveCount() != 0 {
		t.Error("finished match still live")
	}
	if st, _ := s.cache.GetMatchState(ctx, "duel"); st != nil {
		t.Error("expected cache cleared")
	}
	for _, ev := range []string{EventUnitMoved, EventUnitAttacked, EventPlayerEliminated, EventMatchEnded} {
		if s.bc.count(ev) != 1 {
			t.Errorf("expected one %s event, got %d", ev, s.bc.count(ev))
		}
	}

	if _, err := s.Tick(ctx, "duel", 1); !errors.Is(err, ErrMatchFinished) {
		t.Fatalf("expected ErrMatchFinished, got %v", err)
	}
	v, err := s.GetMatch(ctx, "duel")
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if v.Status != model.MatchFinished || len(v.State) == 0 {
		t.Fatalf("expected archived view with final state, got %+v", v.Match)
	}
}

func TestTickArchiveFailure(t *testing.T) {
	s := newTestService(time.Second)
	ctx := context.Background()
	v, err := s.CreateMatch(ctx, "", CreateMatchInput{Brains: "*=idle", Seed: 9})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	s.repo.failOn = "actions"
	if _, err := s.Tick(ctx, v.ID, 1); err == nil {
		t.Fatal("expected archive failure to surface")
	}
}

func TestGetMatchNotFound(t *testing.T) {
	s := newTestService(time.Second)
	if _, err := s.GetMatch(context.Background(), "nope"); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("expected ErrMatchNotFound, got %v", err)
	}
}

func TestListMatches(t *testing.T) {
	s := newTestService(time.Second)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := s.CreateMatch(ctx, "", CreateMatchInput{Brains: "*=idle", Seed: int64(i + 1)}); err != nil {
			t.Fatalf("CreateMatch: %v", err)
		}
	}
	got, err := s.ListMatches(ctx, 2)
	if err != nil {
		t.Fatalf("ListMatches: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2, got %d", len(got))
	}
	got, _ = s.ListMatches(ctx, 0)
	if len(got) != 3 {
		t.Errorf("expected default limit to return all 3, got %d", len(got))
	}
}

func TestQueries(t *testing.T) {
	s := newTestService(time.Second)
	ctx := context.Background()
	adoptDuel(t, s, "q")
	start := tactics.Position{Col: 2, Row: 2}

	reach, err := s.Reach(ctx, "q", start)
	if err != nil {
		t.Fatalf("Reach: %v", err)
	}
	if reach.Unit == nil || reach.Unit.Owner != 1 {
		t.Fatalf("expected player 1 lord, got %+v", reach.Unit)
	}
	foundStart := false
	for _, rt := range reach.Reachable {
		if rt.Pos == start {
			foundStart = rt.Dist == 0
		}
		if rt.Dist > 4 {
			t.Errorf("%s reached at %d, beyond 4 movement", rt.Pos, rt.Dist)
		}
	}
	if !foundStart {
		t.Error("expected start at distance 0")
	}
	enemyAccessible := false
	for _, p := range reach.Accessible {
		if p == (tactics.Position{Col: 4, Row: 2}) {
			enemyAccessible = true
		}
	}
	if !enemyAccessible {
		t.Error("expected enemy lord to be accessible")
	}

	path, err := s.Path(ctx, "q", start, tactics.Position{Col: 7, Row: 2})
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if len(path.Path) != 6 || path.Cost != 5 {
		t.Errorf("expected 6-tile path costing 5, got %d tiles cost %d", len(path.Path), path.Cost)
	}
	if path.Path[0] != start {
		t.Errorf("path should start at %s, got %s", start, path.Path[0])
	}
	if path.Turns != 2 {
		t.Errorf("5 plains steps at 4 movement: expected 2 turns, got %d", path.Turns)
	}

	search, err := s.Search(ctx, "q", tactics.SearchEnemyUnit, start)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !search.Found || search.End == nil || search.Dist != 1 {
		t.Fatalf("expected enemy found one step away, got %+v", search)
	}
	if len(search.Path) != 2 {
		t.Errorf("expected 2-tile path, got %v", search.Path)
	}

	tower, err := s.Search(ctx, "q", tactics.SearchTower, start)
	if err != nil {
		t.Fatalf("Search tower: %v", err)
	}
	if tower.Found {
		t.Error("found a tower on a board without any")
	}
}

func TestQueryErrors(t *testing.T) {
	s := newTestService(time.Second)
	ctx := context.Background()
	adoptDuel(t, s, "e")

	if _, err := s.Reach(ctx, "e", tactics.Position{Col: 0, Row: 0}); !errors.Is(err, ErrNoUnitAt) {
		t.Errorf("empty tile: expected ErrNoUnitAt, got %v", err)
	}
	if _, err := s.Reach(ctx, "e", tactics.Position{Col: 20, Row: 0}); !errors.Is(err, ErrBadRequest) {
		t.Errorf("off board: expected ErrBadRequest, got %v", err)
	}
	if _, err := s.Path(ctx, "e", tactics.Position{Col: 2, Row: 2}, tactics.Position{Col: -1, Row: 0}); !errors.Is(err, ErrBadRequest) {
		t.Errorf("bad destination: expected ErrBadRequest, got %v", err)
	}
	if _, err := s.Reach(ctx, "missing", tactics.Position{}); !errors.Is(err, ErrMatchNotFound) {
		t.Errorf("missing match: expected ErrMatchNotFound, got %v", err)
	}
}

func TestRecoverActiveMatches(t *testing.T) {
	first := newTestService(time.Second)
	ctx := context.Background()

	v, err := first.CreateMatch(ctx, "", CreateMatchInput{Brains: "*=idle", Seed: 21, Autoplay: true})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	if _, err := first.Tick(ctx, v.ID, 3); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	delete(first.cache.timers, v.ID)

	// An active record whose snapshot is gone cannot be resumed.
	orphan := model.Match{ID: "orphan", Name: "orphan", Status: model.MatchActive, Turn: 4}
	if err := first.repo.Create(ctx, &orphan); err != nil {
		t.Fatalf("Create: %v", err)
	}

	second := NewMatchService(first.repo, first.cache, nil, tactics.DefaultRules(), time.Second)
	if err := second.RecoverActiveMatches(ctx); err != nil {
		t.Fatalf("RecoverActiveMatches: %v", err)
	}
	if second.LiveCount() != 1 {
		t.Fatalf("expected 1 recovered match, got %d", second.LiveCount())
	}

	got, err := second.GetMatch(ctx, v.ID)
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if got.Turn != 2 || got.Current != 2 {
		t.Errorf("expected turn 2 with player 2 to move, got turn %d player %d", got.Turn, got.Current)
	}
	if _, armed := first.cache.timers[v.ID]; !armed {
		t.Error("expected autoplay timer re-armed")
	}

	rec, _ := first.repo.FindByID(ctx, "orphan")
	if rec.Status != model.MatchFinished || rec.Winner != 0 {
		t.Errorf("expected orphan closed without winner, got %+v", rec)
	}
}

func TestPlayTurn(t *testing.T) {
	s := newTestService(time.Hour)
	ctx := context.Background()

	v, err := s.CreateMatch(ctx, "", CreateMatchInput{Brains: "*=idle", Seed: 13, Autoplay: true})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	if _, armed := s.cache.timers[v.ID]; !armed {
		t.Fatal("expected tick timer on an autoplay match")
	}
	if due := s.DueMatches(time.Now()); len(due) != 0 {
		t.Fatalf("nothing should be due yet, got %v", due)
	}

	// Not due: skipped.
	if err := s.PlayTurn(ctx, v.ID); err != nil {
		t.Fatalf("PlayTurn: %v", err)
	}
	if n := s.bc.count(EventTurnEnded); n != 0 {
		t.Fatalf("expected no turn played before the deadline, got %d", n)
	}

	lm := s.lookup(v.ID)
	lm.mu.Lock()
	lm.nextTick = time.Now().Add(-time.Second)
	lm.mu.Unlock()

	if due := s.DueMatches(time.Now()); len(due) != 1 || due[0] != v.ID {
		t.Fatalf("expected %s due, got %v", v.ID, due)
	}
	if err := s.PlayTurn(ctx, v.ID); err != nil {
		t.Fatalf("PlayTurn: %v", err)
	}
	if n := s.bc.count(EventTurnEnded); n != 1 {
		t.Fatalf("expected one turn played, got %d", n)
	}
	if deadline := s.cache.timers[v.ID]; !deadline.After(time.Now()) {
		t.Error("expected timer re-armed into the future")
	}

	// A second expiry for the same deadline is ignored.
	if err := s.PlayTurn(ctx, v.ID); err != nil {
		t.Fatalf("PlayTurn: %v", err)
	}
	if n := s.bc.count(EventTurnEnded); n != 1 {
		t.Fatalf("expected duplicate trigger to be ignored, got %d turns", n)
	}
}

func TestPlayTurnManualMatch(t *testing.T) {
	s := newTestService(time.Hour)
	ctx := context.Background()
	v, err := s.CreateMatch(ctx, "", CreateMatchInput{Brains: "*=idle", Seed: 17})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	if err := s.PlayTurn(ctx, v.ID); err != nil {
		t.Fatalf("PlayTurn: %v", err)
	}
	if err := s.PlayTurn(ctx, "missing"); err != nil {
		t.Fatalf("PlayTurn on missing match: %v", err)
	}
	if n := s.bc.count(EventTurnEnded); n != 0 {
		t.Fatalf("manual match must not autoplay, got %d turns", n)
	}
}

func TestMatchViewJSON(t *testing.T) {
	s := newTestService(time.Second)
	v, err := s.CreateMatch(context.Background(), "", CreateMatchInput{Seed: 2})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"id", "status", "players", "state", "current"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("missing %q in %s", key, data)
		}
	}
}
