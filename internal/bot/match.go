package bot

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/freeeve/hexwar/pkg/tactics"
)

var (
	ErrMatchFinished = errors.New("match is finished")
	ErrInvalidPath   = errors.New("invalid path")
	ErrNotYourTurn   = errors.New("not this player's turn")
	ErrInvalidSummon = errors.New("invalid summon")
)

// summonCosts is the mana price of each summonable kind. Lords cannot be
// summoned.
var summonCosts = map[string]int{
	"soldier": 2,
	"archer":  2,
	"rider":   3,
	"drake":   4,
}

// Player is one side of a match.
type Player struct {
	ID         tactics.PlayerID `json:"id"`
	Brain      BrainKind        `json:"brain"`
	Mana       int              `json:"mana"`
	Eliminated bool             `json:"eliminated,omitempty"`

	brain *PlayerBrain
}

// Action is one entry of the match log.
type Action struct {
	Seq    int                `json:"seq"`
	Turn   int                `json:"turn"`
	Player tactics.PlayerID   `json:"player"`
	Kind   string             `json:"kind"` // move, summon, attack, end_turn, eliminated
	UnitID int                `json:"unit_id,omitempty"`
	Path   []tactics.Position `json:"path,omitempty"`
	Target int                `json:"target,omitempty"`
	Damage int                `json:"damage,omitempty"`
	Summon *SummonOption      `json:"summon,omitempty"`
}

// Match owns a board and the players taking turns on it. It is the World
// the brains act against: it validates and executes their moves and
// summons, captures tiles, and resolves the skirmish that follows each
// move. A Match is not safe for concurrent use.
type Match struct {
	board   *tactics.Board
	rules   *tactics.Rules
	pf      *tactics.Pathfinder
	log     zerolog.Logger
	players []*Player
	current int
	turn    int
	winner  tactics.PlayerID
	done    bool
	seq     int
	pending []Action
}

// NewMatch starts a match on b. Every player fielding a lord takes part;
// brains default to BrainDefault.
func NewMatch(b *tactics.Board, r *tactics.Rules, brains map[tactics.PlayerID]BrainKind, log zerolog.Logger) (*Match, error) {
	m := &Match{
		board: b,
		rules: r,
		pf:    tactics.NewPathfinder(r, log),
		log:   log,
		turn:  1,
	}
	for _, lord := range b.Lords() {
		kind, ok := brains[lord.Owner]
		if !ok {
			kind = BrainDefault
		}
		m.players = append(m.players, &Player{ID: lord.Owner, Brain: kind, brain: NewPlayerBrain(kind, lord.Owner)})
	}
	sort.Slice(m.players, func(i, j int) bool { return m.players[i].ID < m.players[j].ID })
	if len(m.players) < 2 {
		return nil, fmt.Errorf("match needs at least 2 lords, board has %d", len(m.players))
	}
	m.startTurn()
	return m, nil
}

// World implementation.

func (m *Match) Board() *tactics.Board            { return m.board }
func (m *Match) Pathfinder() *tactics.Pathfinder { return m.pf }

// ExpectedDamage uses the defender's current tile for terrain defense.
func (m *Match) ExpectedDamage(attacker, defender *tactics.Unit, rng tactics.AttackRange) float64 {
	if defender == nil {
		return 0
	}
	return m.rules.ExpectedDamage(attacker, defender, rng, m.board.TerrainAt(defender.Pos))
}

// MoveUnit walks u along path. The path must start on the unit, step
// between adjacent passable tiles within its movement, never pass through
// an enemy or a tile next to one, and end on a free tile. A one-tile path
// holds position. The end tile is claimed for the owner and the unit then
// strikes the weakest adjacent enemy.
func (m *Match) MoveUnit(u *tactics.Unit, path []tactics.Position) error {
	if m.done {
		return ErrMatchFinished
	}
	if u == nil || m.board.Unit(u.ID) != u {
		return tactics.ErrNoUnit
	}
	if u.Owner != m.CurrentPlayer() {
		return ErrNotYourTurn
	}
	if u.Moved {
		return fmt.Errorf("%s already moved: %w", u, ErrInvalidPath)
	}
	if err := m.validatePath(u, path); err != nil {
		return err
	}

	end := path[len(path)-1]
	if err := m.board.MoveUnit(u.ID, end); err != nil {
		return err
	}
	u.Moved = true
	m.board.SetOwner(end, u.Owner)
	m.record(Action{Kind: "move", Player: u.Owner, UnitID: u.ID, Path: path})
	m.skirmish(u)
	m.checkWinner()
	return nil
}

func (m *Match) validatePath(u *tactics.Unit, path []tactics.Position) error {
	if len(path) == 0 || path[0] != u.Pos {
		return fmt.Errorf("path must start at %s: %w", u.Pos, ErrInvalidPath)
	}
	spent := 0
	for i := 1; i < len(path); i++ {
		prev, p := path[i-1], path[i]
		if !tactics.Adjacent(prev, p) || !m.board.IsValid(p) {
			return fmt.Errorf("step %s -> %s: %w", prev, p, ErrInvalidPath)
		}
		cost := m.rules.Cost(m.board.TerrainAt(p), u.Class)
		if cost >= tactics.ImpassableCost {
			return fmt.Errorf("step into %s %s: %w", m.board.TerrainAt(p), p, ErrInvalidPath)
		}
		if u.HostileTo(m.board.UnitAt(p)) {
			return fmt.Errorf("step onto enemy at %s: %w", p, ErrInvalidPath)
		}
		if i > 1 && len(m.board.AdjacentEnemies(prev, u.Owner)) > 0 {
			return fmt.Errorf("leaving zone of control at %s: %w", prev, ErrInvalidPath)
		}
		spent += cost
	}
	if spent > u.Movement {
		return fmt.Errorf("path costs %d, %s has %d: %w", spent, u, u.Movement, ErrInvalidPath)
	}
	if occ := m.board.UnitAt(path[len(path)-1]); occ != nil && occ != u {
		return fmt.Errorf("destination occupied by %s: %w", occ, ErrInvalidPath)
	}
	return nil
}

// skirmish has u strike the weakest adjacent enemy in melee.
func (m *Match) skirmish(u *tactics.Unit) {
	var victim *tactics.Unit
	for _, e := range m.board.AdjacentEnemies(u.Pos, u.Owner) {
		if victim == nil || e.HP < victim.HP || (e.HP == victim.HP && e.ID < victim.ID) {
			victim = e
		}
	}
	if victim == nil {
		return
	}
	dmg := int(m.ExpectedDamage(u, victim, tactics.Melee))
	if dmg <= 0 {
		return
	}
	victim.HP -= dmg
	m.record(Action{Kind: "attack", Player: u.Owner, UnitID: u.ID, Target: victim.ID, Damage: dmg})
	m.log.Debug().Str("attacker", u.String()).Str("defender", victim.String()).Int("damage", dmg).Msg("Skirmish")
	if victim.HP > 0 {
		return
	}
	m.board.RemoveUnit(victim.ID)
	if victim.Lord {
		m.eliminate(victim.Owner)
	}
}

// eliminate removes a player whose lord has fallen. Its remaining units
// leave the board; its tiles stay claimed until someone takes them.
func (m *Match) eliminate(p tactics.PlayerID) {
	pl := m.player(p)
	if pl == nil || pl.Eliminated {
		return
	}
	pl.Eliminated = true
	for _, u := range m.board.UnitsOf(p) {
		m.board.RemoveUnit(u.ID)
	}
	m.record(Action{Kind: "eliminated", Player: p})
	m.log.Info().Int("player", int(p)).Int("turn", m.turn).Msg("Player eliminated")
}

// checkWinner ends the match when one player remains or one player holds
// every tower.
func (m *Match) checkWinner() {
	var alive []tactics.PlayerID
	for _, p := range m.players {
		if !p.Eliminated {
			alive = append(alive, p.ID)
		}
	}
	switch {
	case len(alive) == 1:
		m.finish(alive[0])
		return
	case len(alive) == 0:
		m.finish(tactics.Neutral)
		return
	}
	towers := m.board.Towers()
	if len(towers) == 0 {
		return
	}
	owner := m.board.TileOwner(towers[0])
	if owner == tactics.Neutral {
		return
	}
	for _, t := range towers[1:] {
		if m.board.TileOwner(t) != owner {
			return
		}
	}
	m.finish(owner)
}

func (m *Match) finish(winner tactics.PlayerID) {
	m.done = true
	m.winner = winner
	m.log.Info().Int("winner", int(winner)).Int("turn", m.turn).Msg("Match finished")
}

// SummonOptions lists what p can summon now: any affordable kind, onto a
// free tile it can stand on, at or next to a tower p holds. One summon per
// turn.
func (m *Match) SummonOptions(p tactics.PlayerID) []SummonOption {
	pl := m.player(p)
	if m.done || pl == nil || pl.Eliminated || p != m.CurrentPlayer() {
		return nil
	}
	kinds := make([]string, 0, len(summonCosts))
	for kind, cost := range summonCosts {
		if _, ok := m.rules.UnitType(kind); ok && cost <= pl.Mana {
			kinds = append(kinds, kind)
		}
	}
	sort.Strings(kinds)

	var out []SummonOption
	seen := make(map[tactics.Position]bool)
	for _, t := range m.board.Towers() {
		if m.board.TileOwner(t) != p {
			continue
		}
		spots := append([]tactics.Position{t}, tactics.Neighbors(t, m.board.Bounds())...)
		for _, at := range spots {
			if seen[at] || m.board.UnitAt(at) != nil {
				continue
			}
			seen[at] = true
			for _, kind := range kinds {
				ut, _ := m.rules.UnitType(kind)
				if m.rules.Passable(m.board.TerrainAt(at), ut.Class) {
					out = append(out, SummonOption{Kind: kind, At: at, Cost: summonCosts[kind]})
				}
			}
		}
	}
	return out
}

// Summon places a new unit for p. Summoned units cannot act until p's next
// turn.
func (m *Match) Summon(p tactics.PlayerID, o SummonOption) error {
	valid := false
	for _, opt := range m.SummonOptions(p) {
		if opt == o {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%s at %s: %w", o.Kind, o.At, ErrInvalidSummon)
	}
	u, err := tactics.NewUnit(m.rules, o.Kind, p, o.At)
	if err != nil {
		return err
	}
	u.Moved = true
	if err := m.board.PlaceUnit(u); err != nil {
		return err
	}
	m.player(p).Mana -= o.Cost
	m.record(Action{Kind: "summon", Player: p, UnitID: u.ID, Summon: &o})
	return nil
}

// Tick asks the current player's brain for one action and rotates to the
// next player when it ends its turn.
func (m *Match) Tick() (TickResult, error) {
	if m.done {
		return TickResult{}, ErrMatchFinished
	}
	pl := m.players[m.current]
	res := pl.brain.Tick(m)
	if res.EndTurn && !m.done {
		m.record(Action{Kind: "end_turn", Player: pl.ID})
		m.advance()
	}
	return res, nil
}

// advance hands the turn to the next player still in the match.
func (m *Match) advance() {
	for range m.players {
		m.current++
		if m.current == len(m.players) {
			m.current = 0
			m.turn++
		}
		if !m.players[m.current].Eliminated {
			break
		}
	}
	m.startTurn()
}

// startTurn refreshes the current player's units and pays out one mana per
// tower held.
func (m *Match) startTurn() {
	pl := m.players[m.current]
	m.board.ResetMoved(pl.ID)
	pl.brain.BeginTurn()
	for _, t := range m.board.Towers() {
		if m.board.TileOwner(t) == pl.ID {
			pl.Mana++
		}
	}
}

func (m *Match) record(a Action) {
	m.seq++
	a.Seq = m.seq
	a.Turn = m.turn
	m.pending = append(m.pending, a)
}

// DrainActions returns the actions logged since the previous call.
func (m *Match) DrainActions() []Action {
	out := m.pending
	m.pending = nil
	return out
}

func (m *Match) player(p tactics.PlayerID) *Player {
	for _, pl := range m.players {
		if pl.ID == p {
			return pl
		}
	}
	return nil
}

// CurrentPlayer is the player whose turn it is.
func (m *Match) CurrentPlayer() tactics.PlayerID { return m.players[m.current].ID }

// Turn is the 1-based round number.
func (m *Match) Turn() int { return m.turn }

// Finished reports whether the match is over.
func (m *Match) Finished() bool { return m.done }

// Winner is the winning player, Neutral for none.
func (m *Match) Winner() tactics.PlayerID { return m.winner }

// Rules returns the rules the match is played under.
func (m *Match) Rules() *tactics.Rules { return m.rules }

// Players returns a copy of the player table.
func (m *Match) Players() []Player {
	out := make([]Player, len(m.players))
	for i, p := range m.players {
		out[i] = *p
	}
	return out
}

// TowerCounts returns how many towers each player holds.
func (m *Match) TowerCounts() map[tactics.PlayerID]int {
	out := make(map[tactics.PlayerID]int, len(m.players))
	for _, p := range m.players {
		out[p.ID] = 0
	}
	for _, t := range m.board.Towers() {
		if o := m.board.TileOwner(t); o != tactics.Neutral {
			out[o]++
		}
	}
	return out
}

type matchSnapshot struct {
	Board   *tactics.Board   `json:"board"`
	Players []*Player        `json:"players"`
	Current int              `json:"current"`
	Turn    int              `json:"turn"`
	Winner  tactics.PlayerID `json:"winner,omitempty"`
	Done    bool             `json:"done,omitempty"`
	Seq     int              `json:"seq"`
}

// MarshalJSON snapshots the match for the live-state cache.
func (m *Match) MarshalJSON() ([]byte, error) {
	return json.Marshal(matchSnapshot{
		Board:   m.board,
		Players: m.players,
		Current: m.current,
		Turn:    m.turn,
		Winner:  m.winner,
		Done:    m.done,
		Seq:     m.seq,
	})
}

// RestoreMatch rebuilds a match from a MarshalJSON snapshot. A turn
// interrupted mid-way resumes with the units that have not moved yet.
func RestoreMatch(data []byte, r *tactics.Rules, log zerolog.Logger) (*Match, error) {
	var snap matchSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("restore match: %w", err)
	}
	if snap.Board == nil || len(snap.Players) < 2 || snap.Current < 0 || snap.Current >= len(snap.Players) {
		return nil, fmt.Errorf("restore match: malformed snapshot")
	}
	for _, p := range snap.Players {
		p.brain = NewPlayerBrain(p.Brain, p.ID)
	}
	return &Match{
		board:   snap.Board,
		rules:   r,
		pf:      tactics.NewPathfinder(r, log),
		log:     log,
		players: snap.Players,
		current: snap.Current,
		turn:    snap.Turn,
		winner:  snap.Winner,
		done:    snap.Done,
		seq:     snap.Seq,
	}, nil
}
