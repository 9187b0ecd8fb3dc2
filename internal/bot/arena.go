package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/hexwar/internal/model"
	"github.com/freeeve/hexwar/internal/repository"
	"github.com/freeeve/hexwar/pkg/tactics"
)

// ArenaConfig configures a single bot-vs-bot match.
type ArenaConfig struct {
	Name     string
	Gen      tactics.GenConfig
	Brains   map[tactics.PlayerID]BrainKind // player -> brain, missing players play default
	MaxTurns int                            // round cap before the match is a draw
	Seed     int64                          // 0 = random
	DryRun   bool                           // skip DB writes
}

// ArenaResult describes the outcome of a completed arena match.
type ArenaResult struct {
	MatchID string
	Seed    int64
	Winner  tactics.PlayerID // Neutral for a draw
	Turns   int
	Ticks   int
	Actions int
	Towers  map[tactics.PlayerID]int
}

// maxTicksPerTurn bounds a single player's turn. A default brain ends its
// turn after one tick per unit plus a summon, so hitting it means a brain
// stopped making progress.
const maxTicksPerTurn = 500

// RunMatch plays a full match between bots, saving it and its action log
// through repo. Pass a nil repo with DryRun set to play without storage.
func RunMatch(ctx context.Context, cfg ArenaConfig, rules *tactics.Rules, repo repository.MatchRepository) (*ArenaResult, error) {
	if cfg.MaxTurns == 0 {
		cfg.MaxTurns = 60
	}
	if cfg.Gen.Cols == 0 {
		gen := tactics.DefaultGenConfig()
		if cfg.Gen.Players != 0 {
			gen.Players = cfg.Gen.Players
		}
		cfg.Gen = gen
	}
	if cfg.Seed == 0 {
		cfg.Seed = botInt63()
	}
	cfg.Gen.Seed = cfg.Seed

	board, seed, err := tactics.Generate(rules, cfg.Gen)
	if err != nil {
		return nil, fmt.Errorf("generate board: %w", err)
	}

	matchID := uuid.NewString()
	mlog := log.With().Str("matchId", matchID).Logger()
	m, err := NewMatch(board, rules, cfg.Brains, mlog.Level(zerolog.WarnLevel))
	if err != nil {
		return nil, err
	}

	if !cfg.DryRun {
		if err := createArenaMatch(ctx, repo, cfg, matchID, m); err != nil {
			return nil, fmt.Errorf("create arena match: %w", err)
		}
	}

	result := &ArenaResult{MatchID: matchID, Seed: seed}
	var records []model.ActionRecord
	turnTicks := 0
	lastPlayer := m.CurrentPlayer()

	for !m.Finished() && m.Turn() <= cfg.MaxTurns {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res, err := m.Tick()
		if err != nil {
			return nil, fmt.Errorf("tick %d: %w", result.Ticks, err)
		}
		result.Ticks++

		if p := m.CurrentPlayer(); p != lastPlayer || res.EndTurn {
			lastPlayer, turnTicks = p, 0
		} else if turnTicks++; turnTicks > maxTicksPerTurn {
			return nil, fmt.Errorf("player %d made no progress in %d ticks", p, maxTicksPerTurn)
		}

		for _, a := range m.DrainActions() {
			rec, err := actionRecord(matchID, a)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
	}

	result.Winner = m.Winner()
	result.Turns = m.Turn()
	result.Actions = len(records)
	result.Towers = m.TowerCounts()

	if !cfg.DryRun {
		if err := repo.SaveActions(ctx, records); err != nil {
			return nil, fmt.Errorf("save actions: %w", err)
		}
		final, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("marshal final state: %w", err)
		}
		if err := repo.SetFinished(ctx, matchID, int(result.Winner), result.Turns, final); err != nil {
			return nil, fmt.Errorf("set finished: %w", err)
		}
	}

	if m.Finished() {
		mlog.Info().Int("winner", int(result.Winner)).Int("turn", result.Turns).Msg("Arena match won")
	} else {
		mlog.Info().Int("turn", result.Turns).Msg("Arena match ended as draw (turn limit)")
	}
	return result, nil
}

func createArenaMatch(ctx context.Context, repo repository.MatchRepository, cfg ArenaConfig, id string, m *Match) error {
	name := cfg.Name
	if name == "" {
		name = "botmatch"
	}
	rec := &model.Match{
		ID:     id,
		Name:   name,
		Status: model.MatchActive,
		Cols:   cfg.Gen.Cols,
		Rows:   cfg.Gen.Rows,
		Seed:   cfg.Seed,
		Turn:   m.Turn(),
	}
	for _, p := range m.Players() {
		rec.Players = append(rec.Players, model.MatchPlayer{MatchID: id, Player: int(p.ID), Brain: p.Brain.String()})
	}
	return repo.Create(ctx, rec)
}

// actionRecord converts a match log entry into its stored form.
func actionRecord(matchID string, a Action) (model.ActionRecord, error) {
	detail, err := json.Marshal(a)
	if err != nil {
		return model.ActionRecord{}, fmt.Errorf("marshal action %d: %w", a.Seq, err)
	}
	return model.ActionRecord{
		MatchID:   matchID,
		Seq:       a.Seq,
		Turn:      a.Turn,
		Player:    int(a.Player),
		Kind:      a.Kind,
		UnitID:    a.UnitID,
		Detail:    detail,
		CreatedAt: time.Now(),
	}, nil
}

// ParsePlayerConfig parses a brain assignment like "1=default,2=idle" or
// "1=default,*=idle" for players 1..players. "*" sets the brain of every
// player not named; unnamed players otherwise play default.
func ParsePlayerConfig(s string, players int) (map[tactics.PlayerID]BrainKind, error) {
	cfg := make(map[tactics.PlayerID]BrainKind)
	fallback := BrainDefault

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("bad player config %q: want player=brain", part)
		}
		kind, err := ParseBrainKind(strings.TrimSpace(val))
		if err != nil {
			return nil, err
		}
		key = strings.TrimSpace(key)
		if key == "*" {
			fallback = kind
			continue
		}
		n, err := strconv.Atoi(key)
		if err != nil || n < 1 || n > players {
			return nil, fmt.Errorf("bad player %q: want 1..%d", key, players)
		}
		cfg[tactics.PlayerID(n)] = kind
	}

	for p := 1; p <= players; p++ {
		if _, ok := cfg[tactics.PlayerID(p)]; !ok {
			cfg[tactics.PlayerID(p)] = fallback
		}
	}
	return cfg, nil
}

// FormatPlayerConfig is the inverse of ParsePlayerConfig.
func FormatPlayerConfig(cfg map[tactics.PlayerID]BrainKind) string {
	ids := make([]int, 0, len(cfg))
	for p := range cfg {
		ids = append(ids, int(p))
	}
	sort.Ints(ids)
	parts := make([]string, len(ids))
	for i, p := range ids {
		parts[i] = fmt.Sprintf("%d=%s", p, cfg[tactics.PlayerID(p)])
	}
	return strings.Join(parts, ",")
}
