package bot

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/hexwar/pkg/tactics"
)

// BrainKind selects the policy driving a player.
type BrainKind int

const (
	BrainIdle BrainKind = iota
	BrainDefault
)

func (k BrainKind) String() string {
	switch k {
	case BrainIdle:
		return "idle"
	case BrainDefault:
		return "default"
	}
	return fmt.Sprintf("brain(%d)", int(k))
}

// ParseBrainKind returns the brain with the given name.
func ParseBrainKind(s string) (BrainKind, error) {
	switch s {
	case "idle":
		return BrainIdle, nil
	case "default", "":
		return BrainDefault, nil
	}
	return 0, fmt.Errorf("unknown brain %q", s)
}

func (k BrainKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *BrainKind) UnmarshalText(b []byte) error {
	parsed, err := ParseBrainKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ActionKind is what one brain tick did.
type ActionKind int

const (
	ActionSkip ActionKind = iota
	ActionMove
	ActionSummon
	ActionEndTurn
)

func (a ActionKind) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionMove:
		return "move"
	case ActionSummon:
		return "summon"
	case ActionEndTurn:
		return "end_turn"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

func (a ActionKind) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *ActionKind) UnmarshalText(b []byte) error {
	for k := ActionSkip; k <= ActionEndTurn; k++ {
		if k.String() == string(b) {
			*a = k
			return nil
		}
	}
	return fmt.Errorf("unknown action %q", b)
}

// TickResult reports the single action a brain took on one tick.
type TickResult struct {
	Action       ActionKind         `json:"action"`
	UnitID       int                `json:"unit_id,omitempty"`
	Path         []tactics.Position `json:"path,omitempty"`
	Summon       *SummonOption      `json:"summon,omitempty"`
	Reason       string             `json:"reason,omitempty"`
	DidSomething bool               `json:"did_something"`
	EndTurn      bool               `json:"end_turn"`
}

// PlayerBrain drives one player, one action per Tick. A Default brain walks
// a cursor over the units that had not moved when its turn began, then
// summons once, then ends the turn.
type PlayerBrain struct {
	Kind   BrainKind
	Player tactics.PlayerID

	started  bool
	queue    []int
	summoned bool
}

// NewPlayerBrain returns a brain of the given kind for player p.
func NewPlayerBrain(kind BrainKind, p tactics.PlayerID) *PlayerBrain {
	return &PlayerBrain{Kind: kind, Player: p}
}

// BeginTurn resets the cursor. Call it whenever the player's turn starts.
func (b *PlayerBrain) BeginTurn() {
	b.started = false
	b.queue = nil
	b.summoned = false
}

// Tick performs at most one action against w.
func (b *PlayerBrain) Tick(w World) TickResult {
	switch b.Kind {
	case BrainDefault:
		return b.tickDefault(w)
	default:
		return TickResult{Action: ActionEndTurn, EndTurn: true}
	}
}

func (b *PlayerBrain) tickDefault(w World) TickResult {
	board := w.Board()
	if !b.started {
		b.started = true
		for _, u := range board.UnitsOf(b.Player) {
			if !u.Moved {
				b.queue = append(b.queue, u.ID)
			}
		}
	}

	for len(b.queue) > 0 {
		id := b.queue[0]
		b.queue = b.queue[1:]
		u := board.Unit(id)
		if u == nil || u.Moved {
			// Killed or moved since the turn began.
			continue
		}
		d, err := DoAction(w, u)
		if err != nil {
			log.Warn().Err(err).Int("player", int(b.Player)).Str("unit", u.String()).Msg("Unit action failed, skipping")
			return TickResult{Action: ActionSkip, UnitID: id, Reason: err.Error()}
		}
		return TickResult{
			Action:       d.Kind,
			UnitID:       id,
			Path:         d.Path,
			Reason:       d.Reason,
			DidSomething: d.Kind == ActionMove,
		}
	}

	if !b.summoned {
		b.summoned = true
		opts := w.SummonOptions(b.Player)
		if len(opts) > 0 {
			o := opts[botIntn(len(opts))]
			if err := w.Summon(b.Player, o); err != nil {
				log.Warn().Err(err).Int("player", int(b.Player)).Str("kind", o.Kind).Msg("Summon failed")
				return TickResult{Action: ActionSkip, Reason: err.Error()}
			}
			return TickResult{Action: ActionSummon, Summon: &o, DidSomething: true}
		}
	}

	return TickResult{Action: ActionEndTurn, EndTurn: true}
}
