package tactics

import "fmt"

// PlayerID identifies a side. Neutral owns nothing and fields no units.
type PlayerID int

const Neutral PlayerID = 0

// Unit is a piece on the board. The engine reads units but never moves
// them; that is the movement executor's job.
type Unit struct {
	ID       int           `json:"id"`
	Kind     string        `json:"kind"`
	Owner    PlayerID      `json:"owner"`
	Pos      Position      `json:"pos"`
	Class    MovementClass `json:"class"`
	Movement int           `json:"movement"`
	HP       int           `json:"hp"`
	Lord     bool          `json:"lord,omitempty"`
	Moved    bool          `json:"moved,omitempty"`
}

// NewUnit builds a unit of the given kind from the rules roster.
func NewUnit(r *Rules, kind string, owner PlayerID, pos Position) (*Unit, error) {
	ut, ok := r.UnitType(kind)
	if !ok {
		return nil, fmt.Errorf("unknown unit kind %q", kind)
	}
	return &Unit{
		Kind:     kind,
		Owner:    owner,
		Pos:      pos,
		Class:    ut.Class,
		Movement: ut.Movement,
		HP:       ut.HP,
		Lord:     kind == "lord",
	}, nil
}

// HostileTo reports whether other belongs to a different, non-neutral side.
func (u *Unit) HostileTo(other *Unit) bool {
	return other != nil && other.Owner != Neutral && other.Owner != u.Owner
}

func (u *Unit) String() string {
	return fmt.Sprintf("%s#%d(p%d@%s)", u.Kind, u.ID, u.Owner, u.Pos)
}
