package game

import (
	"fmt"
	"sort"

	"github.com/thraizz/skirmish-server-go/internal/game/entity"
)

// EndReason explains how a match finished.
type EndReason string

const (
	ReasonBaseDestroyed     EndReason = "base_destroyed"
	ReasonMutualDestruction EndReason = "mutual_destruction"
	ReasonElimination       EndReason = "elimination"
	ReasonResourceThreshold EndReason = "resource_threshold"
	ReasonSurrender         EndReason = "surrender"
	ReasonTurnLimit         EndReason = "turn_limit"
)

// Result is the outcome of a finished match. WinnerID is nil for a draw.
type Result struct {
	WinnerID *int      `json:"winnerId"`
	Reason   EndReason `json:"reason"`
	Turn     int       `json:"turn"`
}

// Draw reports whether the match ended without a winner.
func (r *Result) Draw() bool {
	return r.WinnerID == nil
}

// Clone returns a deep copy.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	if r.WinnerID != nil {
		w := *r.WinnerID
		c.WinnerID = &w
	}
	return &c
}

func win(playerID int, reason EndReason, turn int) *Result {
	return &Result{WinnerID: &playerID, Reason: reason, Turn: turn}
}

func draw(reason EndReason, turn int) *Result {
	return &Result{Reason: reason, Turn: turn}
}

// State holds the entity tables of one match. Occupancy is derived from the
// tables on demand so it cannot drift from them.
type State struct {
	Players map[int]*entity.Player
	Units   map[string]*entity.Unit
	Bases   map[string]*entity.Base
	Nodes   map[string]*entity.ResourceNode
	// NextID is the last entity sequence number handed out.
	NextID int
	Result *Result
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		Players: make(map[int]*entity.Player),
		Units:   make(map[string]*entity.Unit),
		Bases:   make(map[string]*entity.Base),
		Nodes:   make(map[string]*entity.ResourceNode),
	}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := &State{
		Players: make(map[int]*entity.Player, len(s.Players)),
		Units:   make(map[string]*entity.Unit, len(s.Units)),
		Bases:   make(map[string]*entity.Base, len(s.Bases)),
		Nodes:   make(map[string]*entity.ResourceNode, len(s.Nodes)),
		NextID:  s.NextID,
		Result:  s.Result.Clone(),
	}
	for k, v := range s.Players {
		c.Players[k] = v.Clone()
	}
	for k, v := range s.Units {
		c.Units[k] = v.Clone()
	}
	for k, v := range s.Bases {
		c.Bases[k] = v.Clone()
	}
	for k, v := range s.Nodes {
		c.Nodes[k] = v.Clone()
	}
	return c
}

// allocateID returns the next entity id with the given prefix.
func (s *State) allocateID(prefix string) string {
	s.NextID++
	return fmt.Sprintf("%s-%d", prefix, s.NextID)
}

// occupantAt finds the alive unit, standing base or node at pos.
func (s *State) occupantAt(pos entity.Position) (entity.Occupant, bool) {
	for _, u := range s.Units {
		if u.Alive && u.Position == pos {
			return entity.Occupant{Kind: entity.OccupantUnit, ID: u.ID}, true
		}
	}
	for _, b := range s.Bases {
		if !b.Destroyed && b.Position == pos {
			return entity.Occupant{Kind: entity.OccupantBase, ID: b.ID}, true
		}
	}
	for _, n := range s.Nodes {
		if n.Position == pos {
			return entity.Occupant{Kind: entity.OccupantNode, ID: n.ID}, true
		}
	}
	return entity.Occupant{}, false
}

// grid materializes occupancy, failing if two occupants share a cell.
func (s *State) grid() (*entity.Grid, error) {
	g := entity.NewGrid()
	for _, u := range s.sortedUnits() {
		if !u.Alive {
			continue
		}
		if err := g.Place(u.Position, entity.Occupant{Kind: entity.OccupantUnit, ID: u.ID}); err != nil {
			return nil, err
		}
	}
	for _, b := range s.sortedBases() {
		if b.Destroyed {
			continue
		}
		if err := g.Place(b.Position, entity.Occupant{Kind: entity.OccupantBase, ID: b.ID}); err != nil {
			return nil, err
		}
	}
	for _, n := range s.sortedNodes() {
		if err := g.Place(n.Position, entity.Occupant{Kind: entity.OccupantNode, ID: n.ID}); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (s *State) sortedPlayers() []*entity.Player {
	out := make([]*entity.Player, 0, len(s.Players))
	for _, p := range s.Players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *State) sortedUnits() []*entity.Unit {
	out := make([]*entity.Unit, 0, len(s.Units))
	for _, u := range s.Units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *State) sortedBases() []*entity.Base {
	out := make([]*entity.Base, 0, len(s.Bases))
	for _, b := range s.Bases {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *State) sortedNodes() []*entity.ResourceNode {
	out := make([]*entity.ResourceNode, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// playerBases returns every base owned by playerID, destroyed or not.
func (s *State) playerBases(playerID int) []*entity.Base {
	var out []*entity.Base
	for _, b := range s.sortedBases() {
		if b.OwnerID == playerID {
			out = append(out, b)
		}
	}
	return out
}

// livingUnits returns playerID's alive units.
func (s *State) livingUnits(playerID int) []*entity.Unit {
	var out []*entity.Unit
	for _, u := range s.sortedUnits() {
		if u.OwnerID == playerID && u.Alive {
			out = append(out, u)
		}
	}
	return out
}

func opponent(playerID int) int {
	if playerID == 1 {
		return 2
	}
	return 1
}
