package game

import (
	"github.com/thraizz/skirmish-server-go/internal/game/combat"
	"github.com/thraizz/skirmish-server-go/internal/game/entity"
	"github.com/thraizz/skirmish-server-go/internal/game/resources"
	"github.com/thraizz/skirmish-server-go/internal/game/rules"
)

// world exposes the aggregate's mutable tables to commands and subsystems.
// It always reads through g.state, so it stays valid when the state is
// replaced by a restore.
type world struct {
	g *Game
}

func (w world) Phase() rules.Phase  { return w.g.turns.CurrentPhase() }
func (w world) ActivePlayerID() int { return w.g.turns.ActivePlayer() }
func (w world) GameOver() bool      { return w.g.state.Result != nil }

func (w world) Player(id int) (*entity.Player, bool) {
	p, ok := w.g.state.Players[id]
	return p, ok
}

func (w world) Unit(id string) (*entity.Unit, bool) {
	u, ok := w.g.state.Units[id]
	return u, ok
}

func (w world) Base(id string) (*entity.Base, bool) {
	b, ok := w.g.state.Bases[id]
	return b, ok
}

func (w world) Node(id string) (*entity.ResourceNode, bool) {
	n, ok := w.g.state.Nodes[id]
	return n, ok
}

func (w world) PlayerBases(playerID int) []*entity.Base {
	return w.g.state.playerBases(playerID)
}

func (w world) OccupantAt(pos entity.Position) (entity.Occupant, bool) {
	return w.g.state.occupantAt(pos)
}

func (w world) AddUnit(u *entity.Unit) { w.g.state.Units[u.ID] = u }
func (w world) RemoveUnit(id string)   { delete(w.g.state.Units, id) }

func (w world) Factory() *entity.Factory      { return w.g.factory }
func (w world) Resources() *resources.Service { return w.g.resources }
func (w world) Combat() *combat.Resolver      { return w.g.combat }

func (w world) IDCounter() int     { return w.g.state.NextID }
func (w world) SetIDCounter(n int) { w.g.state.NextID = n }

// NextID implements entity.IDGenerator.
func (w world) NextID(prefix string) string { return w.g.state.allocateID(prefix) }

func (w world) Bookmark() any { return w.g.state.Clone() }

func (w world) Restore(bookmark any) {
	if s, ok := bookmark.(*State); ok {
		w.g.state = s
	}
}
