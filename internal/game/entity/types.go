// Package entity holds the typed records of a match (players, units, bases and
// resource nodes) together with the factory that builds them from templates.
package entity

import (
	"fmt"
	"sort"
)

// UnitType names a unit template.
type UnitType string

const (
	UnitWorker   UnitType = "worker"
	UnitScout    UnitType = "scout"
	UnitInfantry UnitType = "infantry"
	UnitHeavy    UnitType = "heavy"
)

// UnitTemplate holds the fixed statistics of a unit type.
type UnitTemplate struct {
	Type          UnitType
	Cost          int
	MaxHealth     int
	Attack        int
	Defense       int
	MovementRange int
	MaxActions    int
	CarryCapacity int
}

// CanGather reports whether units of this template transport resources.
func (t UnitTemplate) CanGather() bool {
	return t.CarryCapacity > 0
}

// WorkerCarryCapacity is the amount a worker moves per gathering trip.
const WorkerCarryCapacity = 10

var unitTemplates = map[UnitType]UnitTemplate{
	UnitWorker: {
		Type: UnitWorker, Cost: 10, MaxHealth: 50, Attack: 5, Defense: 1,
		MovementRange: 2, MaxActions: 2, CarryCapacity: WorkerCarryCapacity,
	},
	UnitScout: {
		Type: UnitScout, Cost: 15, MaxHealth: 40, Attack: 8, Defense: 1,
		MovementRange: 4, MaxActions: 2,
	},
	UnitInfantry: {
		Type: UnitInfantry, Cost: 25, MaxHealth: 80, Attack: 15, Defense: 4,
		MovementRange: 2, MaxActions: 2,
	},
	UnitHeavy: {
		Type: UnitHeavy, Cost: 40, MaxHealth: 120, Attack: 25, Defense: 8,
		MovementRange: 1, MaxActions: 1,
	},
}

// Template returns the template for t.
func Template(t UnitType) (UnitTemplate, bool) {
	tpl, ok := unitTemplates[t]
	return tpl, ok
}

// UnitTypes returns all known unit types ordered by cost.
func UnitTypes() []UnitType {
	types := make([]UnitType, 0, len(unitTemplates))
	for t := range unitTemplates {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		return unitTemplates[types[i]].Cost < unitTemplates[types[j]].Cost
	})
	return types
}

// CheapestUnitCost returns the lowest build cost of any unit type.
func CheapestUnitCost() int {
	cheapest := 0
	for _, tpl := range unitTemplates {
		if cheapest == 0 || tpl.Cost < cheapest {
			cheapest = tpl.Cost
		}
	}
	return cheapest
}

// IDSet is a sorted set of entity ids. Keeping it sorted makes snapshots canonical.
type IDSet []string

// Add inserts id, keeping the set sorted. Adding an existing id is a no-op.
func (s *IDSet) Add(id string) {
	i := sort.SearchStrings(*s, id)
	if i < len(*s) && (*s)[i] == id {
		return
	}
	*s = append(*s, "")
	copy((*s)[i+1:], (*s)[i:])
	(*s)[i] = id
}

// Remove deletes id from the set and reports whether it was present.
func (s *IDSet) Remove(id string) bool {
	i := sort.SearchStrings(*s, id)
	if i >= len(*s) || (*s)[i] != id {
		return false
	}
	*s = append((*s)[:i], (*s)[i+1:]...)
	return true
}

// Has reports whether id is in the set.
func (s IDSet) Has(id string) bool {
	i := sort.SearchStrings(s, id)
	return i < len(s) && s[i] == id
}

// Clone returns an independent copy.
func (s IDSet) Clone() IDSet {
	out := make(IDSet, len(s))
	copy(out, s)
	return out
}

// Player is one of the two participants.
type Player struct {
	ID                int   `json:"id"`
	Energy            int   `json:"energy"`
	MaxEnergy         int   `json:"maxEnergy"`
	ActionsRemaining  int   `json:"actionsRemaining"`
	MaxActions        int   `json:"maxActions"`
	UnitIDs           IDSet `json:"unitIds"`
	BaseIDs           IDSet `json:"baseIds"`
	ResourcesGathered int   `json:"resourcesGathered"`
	Score             int   `json:"score"`
	Active            bool  `json:"active"`
}

// Clone returns a deep copy.
func (p *Player) Clone() *Player {
	c := *p
	c.UnitIDs = p.UnitIDs.Clone()
	c.BaseIDs = p.BaseIDs.Clone()
	return &c
}

// Unit is a mobile piece on the board.
type Unit struct {
	ID            string   `json:"id"`
	Type          UnitType `json:"type"`
	OwnerID       int      `json:"ownerId"`
	Position      Position `json:"position"`
	Health        int      `json:"health"`
	MaxHealth     int      `json:"maxHealth"`
	Attack        int      `json:"attack"`
	Defense       int      `json:"defense"`
	MovementRange int      `json:"movementRange"`
	MaxActions    int      `json:"maxActions"`
	ActionsUsed   int      `json:"actionsUsed"`
	CarryCapacity int      `json:"carryCapacity"`
	Carried       int      `json:"carried"`
	Alive         bool     `json:"alive"`
}

// Clone returns a copy.
func (u *Unit) Clone() *Unit {
	c := *u
	return &c
}

// ActionsLeft returns how many actions the unit may still take this turn.
func (u *Unit) ActionsLeft() int {
	if left := u.MaxActions - u.ActionsUsed; left > 0 {
		return left
	}
	return 0
}

// CanGather reports whether the unit transports resources.
func (u *Unit) CanGather() bool {
	return u.CarryCapacity > 0
}

// SetHealth clamps health to [0, MaxHealth] and keeps Alive consistent with it.
func (u *Unit) SetHealth(h int) {
	if h < 0 {
		h = 0
	}
	if h > u.MaxHealth {
		h = u.MaxHealth
	}
	u.Health = h
	u.Alive = h > 0
}

func (u *Unit) String() string {
	return fmt.Sprintf("%s %s (player %d) at %s", u.Type, u.ID, u.OwnerID, u.Position)
}

// Base is a player's headquarters. Losing it loses the match.
type Base struct {
	ID        string   `json:"id"`
	OwnerID   int      `json:"ownerId"`
	Position  Position `json:"position"`
	Health    int      `json:"health"`
	MaxHealth int      `json:"maxHealth"`
	Defense   int      `json:"defense"`
	Destroyed bool     `json:"destroyed"`
}

// Clone returns a copy.
func (b *Base) Clone() *Base {
	c := *b
	return &c
}

// SetHealth clamps health to [0, MaxHealth]; a base at 0 is destroyed.
func (b *Base) SetHealth(h int) {
	if h < 0 {
		h = 0
	}
	if h > b.MaxHealth {
		h = b.MaxHealth
	}
	b.Health = h
	b.Destroyed = h == 0
}

// ResourceNode is a finite, regenerating energy deposit.
type ResourceNode struct {
	ID               string   `json:"id"`
	Position         Position `json:"position"`
	Value            int      `json:"value"`
	MaxValue         int      `json:"maxValue"`
	RegenerationRate int      `json:"regenerationRate"`
}

// Clone returns a copy.
func (n *ResourceNode) Clone() *ResourceNode {
	c := *n
	return &c
}

// Depleted reports whether the node has nothing left to gather.
func (n *ResourceNode) Depleted() bool {
	return n.Value == 0
}

// SetValue clamps the value to [0, MaxValue].
func (n *ResourceNode) SetValue(v int) {
	if v < 0 {
		v = 0
	}
	if v > n.MaxValue {
		v = n.MaxValue
	}
	n.Value = v
}
