package tactics

import (
	"errors"
	"fmt"
)

// Terrain classifies a tile for movement cost and defense.
type Terrain uint8

const (
	Plains Terrain = iota
	Forest
	Hills
	Mountain
	Water
	Swamp
	Tower
	terrainCount
)

var terrainNames = [terrainCount]string{"plains", "forest", "hills", "mountain", "water", "swamp", "tower"}

func (t Terrain) String() string {
	if t < terrainCount {
		return terrainNames[t]
	}
	return fmt.Sprintf("terrain(%d)", uint8(t))
}

// MovementClass indexes a unit into the cost table.
type MovementClass uint8

const (
	Ground MovementClass = iota
	Mounted
	Flying
	classCount
)

var classNames = [classCount]string{"ground", "mounted", "flying"}

func (c MovementClass) String() string {
	if c < classCount {
		return classNames[c]
	}
	return fmt.Sprintf("class(%d)", uint8(c))
}

// ParseMovementClass returns the class with the given name.
func ParseMovementClass(s string) (MovementClass, error) {
	for i, n := range classNames {
		if n == s {
			return MovementClass(i), nil
		}
	}
	return 0, fmt.Errorf("unknown movement class %q", s)
}

// AttackRange selects which of a unit's two attacks is used.
type AttackRange uint8

const (
	Melee  AttackRange = 1
	Ranged AttackRange = 2
)

// AttackRanges lists the ranges in evaluation order.
var AttackRanges = [2]AttackRange{Melee, Ranged}

func (r AttackRange) String() string {
	switch r {
	case Melee:
		return "melee"
	case Ranged:
		return "ranged"
	}
	return fmt.Sprintf("range(%d)", uint8(r))
}

// ImpassableCost is the cost returned for terrain a class cannot enter.
// Anything at or above it is treated as a wall.
const ImpassableCost = 99

// Default search limits.
const (
	DefaultMaxExpansions   = 1000
	DefaultMaxVirtualTurns = 11
)

// UnitType holds the static stats for one kind of unit.
type UnitType struct {
	Name     string        `json:"name"`
	Class    MovementClass `json:"class"`
	Movement int           `json:"movement"`
	HP       int           `json:"hp"`
	Attack   [2]int        `json:"attack"` // melee, ranged
	Defense  int           `json:"defense"`
}

// RulesConfig is the raw material for Rules. Zero limits take defaults.
type RulesConfig struct {
	Costs           map[Terrain]map[MovementClass]int
	TerrainDefense  map[Terrain]int
	UnitTypes       []UnitType
	MaxExpansions   int
	MaxVirtualTurns int
}

// Rules is the immutable data table shared by the cost model, the
// processors and the AI layer. Build it once and pass it by pointer.
type Rules struct {
	costs           [terrainCount][classCount]int
	defense         [terrainCount]int
	unitTypes       map[string]UnitType
	maxExpansions   int
	maxVirtualTurns int
}

var errBadRules = errors.New("invalid rules")

// NewRules validates cfg and freezes it. Missing cost entries are
// impassable; every passable cost must be at least 1 so the hex distance
// heuristic stays admissible.
func NewRules(cfg RulesConfig) (*Rules, error) {
	r := &Rules{
		unitTypes:       make(map[string]UnitType, len(cfg.UnitTypes)),
		maxExpansions:   cfg.MaxExpansions,
		maxVirtualTurns: cfg.MaxVirtualTurns,
	}
	if r.maxExpansions <= 0 {
		r.maxExpansions = DefaultMaxExpansions
	}
	if r.maxVirtualTurns <= 0 {
		r.maxVirtualTurns = DefaultMaxVirtualTurns
	}
	for t := range terrainCount {
		for c := range classCount {
			r.costs[t][c] = ImpassableCost
		}
	}
	for t, row := range cfg.Costs {
		if t >= terrainCount {
			return nil, fmt.Errorf("%w: unknown terrain %d", errBadRules, t)
		}
		for c, cost := range row {
			if c >= classCount {
				return nil, fmt.Errorf("%w: unknown class %d", errBadRules, c)
			}
			if cost < 1 {
				return nil, fmt.Errorf("%w: %s cost for %s is %d, want >= 1", errBadRules, t, c, cost)
			}
			r.costs[t][c] = min(cost, ImpassableCost)
		}
	}
	for t, d := range cfg.TerrainDefense {
		if t < terrainCount {
			r.defense[t] = d
		}
	}
	for _, ut := range cfg.UnitTypes {
		if ut.Name == "" || ut.Movement <= 0 || ut.HP <= 0 {
			return nil, fmt.Errorf("%w: unit type %+v", errBadRules, ut)
		}
		r.unitTypes[ut.Name] = ut
	}
	return r, nil
}

// DefaultRules returns the stock cost table and unit roster.
func DefaultRules() *Rules {
	r, err := NewRules(DefaultRulesConfig())
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultRulesConfig is the stock configuration; callers may tweak the
// limits before passing it to NewRules.
func DefaultRulesConfig() RulesConfig {
	return RulesConfig{
		Costs: map[Terrain]map[MovementClass]int{
			Plains:   {Ground: 1, Mounted: 1, Flying: 1},
			Forest:   {Ground: 2, Mounted: 3, Flying: 1},
			Hills:    {Ground: 2, Mounted: 2, Flying: 1},
			Mountain: {Ground: 3, Flying: 1},
			Water:    {Flying: 1},
			Swamp:    {Ground: 3, Flying: 1},
			Tower:    {Ground: 1, Mounted: 1, Flying: 1},
		},
		TerrainDefense: map[Terrain]int{
			Forest:   1,
			Hills:    1,
			Mountain: 2,
			Tower:    2,
		},
		UnitTypes: []UnitType{
			{Name: "lord", Class: Ground, Movement: 4, HP: 20, Attack: [2]int{6, 0}, Defense: 3},
			{Name: "soldier", Class: Ground, Movement: 4, HP: 12, Attack: [2]int{5, 0}, Defense: 2},
			{Name: "archer", Class: Ground, Movement: 4, HP: 9, Attack: [2]int{2, 5}, Defense: 1},
			{Name: "rider", Class: Mounted, Movement: 6, HP: 12, Attack: [2]int{6, 0}, Defense: 1},
			{Name: "drake", Class: Flying, Movement: 5, HP: 14, Attack: [2]int{5, 3}, Defense: 2},
		},
	}
}

// Cost returns the movement cost for a class entering terrain t, or
// ImpassableCost.
func (r *Rules) Cost(t Terrain, c MovementClass) int {
	if t >= terrainCount || c >= classCount {
		return ImpassableCost
	}
	return r.costs[t][c]
}

// Passable reports whether the class can enter terrain t at all.
func (r *Rules) Passable(t Terrain, c MovementClass) bool {
	return r.Cost(t, c) < ImpassableCost
}

// TerrainDefense returns the defense bonus granted by terrain t.
func (r *Rules) TerrainDefense(t Terrain) int {
	if t >= terrainCount {
		return 0
	}
	return r.defense[t]
}

// UnitType looks up a unit kind.
func (r *Rules) UnitType(name string) (UnitType, bool) {
	ut, ok := r.unitTypes[name]
	return ut, ok
}

// MaxExpansions is the per-pass tile expansion cap.
func (r *Rules) MaxExpansions() int { return r.maxExpansions }

// MaxVirtualTurns caps how many turns a condition search may span.
func (r *Rules) MaxVirtualTurns() int { return r.maxVirtualTurns }

// ExpectedDamage estimates the damage attacker deals to defender standing
// on terrain t when attacking at range rng. Zero when the attacker has no
// attack at that range.
func (r *Rules) ExpectedDamage(attacker, defender *Unit, rng AttackRange, t Terrain) float64 {
	if attacker == nil || defender == nil {
		return 0
	}
	at, ok := r.unitTypes[attacker.Kind]
	if !ok {
		return 0
	}
	var atk int
	switch rng {
	case Melee:
		atk = at.Attack[0]
	case Ranged:
		atk = at.Attack[1]
	}
	if atk <= 0 {
		return 0
	}
	def := 0
	if dt, ok := r.unitTypes[defender.Kind]; ok {
		def = dt.Defense
	}
	return float64(max(0, atk-def-r.TerrainDefense(t)))
}
