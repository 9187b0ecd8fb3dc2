package bot

import "github.com/freeeve/hexwar/pkg/tactics"

// SummonOption is one unit a player may bring onto the board this turn.
type SummonOption struct {
	Kind string           `json:"kind"`
	At   tactics.Position `json:"at"`
	Cost int              `json:"cost"`
}

// World is everything a brain needs from the game around it. The brains
// only read the board; every mutation goes through MoveUnit or Summon.
type World interface {
	Board() *tactics.Board
	Pathfinder() *tactics.Pathfinder
	ExpectedDamage(attacker, defender *tactics.Unit, rng tactics.AttackRange) float64
	MoveUnit(u *tactics.Unit, path []tactics.Position) error
	SummonOptions(p tactics.PlayerID) []SummonOption
	Summon(p tactics.PlayerID, o SummonOption) error
}
