// Package resources models the gathering economy: workers carry energy from
// finite, regenerating nodes back to their base.
package resources

import (
	"github.com/thraizz/skirmish-server-go/internal/game/entity"
	"github.com/thraizz/skirmish-server-go/internal/game/violation"
)

// GatherRange is the Chebyshev distance at which a unit can work a node.
const GatherRange = 1

// Service applies gather, deposit and regeneration rules.
type Service struct{}

// NewService creates a resource service.
func NewService() *Service {
	return &Service{}
}

// CheckGather validates a gather without applying it.
func (s *Service) CheckGather(node *entity.ResourceNode, unit *entity.Unit) error {
	if !unit.CanGather() {
		return violation.Newf(violation.CodeCannotGather, "%s units cannot gather", unit.Type)
	}
	if unit.Position.ChebyshevDistance(node.Position) > GatherRange {
		return violation.Newf(violation.CodeNotAdjacent, "unit %s at %s is not adjacent to node %s at %s",
			unit.ID, unit.Position, node.ID, node.Position)
	}
	if unit.ActionsLeft() == 0 {
		return violation.Newf(violation.CodeActionExhausted, "unit %s has no actions remaining", unit.ID)
	}
	return nil
}

// Gather moves energy from node into the unit's cargo and uses one unit action.
// An empty node yields 0 without error.
func (s *Service) Gather(node *entity.ResourceNode, unit *entity.Unit) (int, error) {
	if err := s.CheckGather(node, unit); err != nil {
		return 0, err
	}

	amount := min(node.Value, unit.CarryCapacity-unit.Carried)
	if amount < 0 {
		amount = 0
	}
	node.SetValue(node.Value - amount)
	unit.Carried += amount
	unit.ActionsUsed++
	return amount, nil
}

// CheckDeposit validates a deposit without applying it.
func (s *Service) CheckDeposit(unit *entity.Unit, player *entity.Player, bases []*entity.Base) error {
	if unit.OwnerID != player.ID {
		return violation.Newf(violation.CodeNotOwner, "unit %s does not belong to player %d", unit.ID, player.ID)
	}
	for _, b := range bases {
		if b.OwnerID == player.ID && !b.Destroyed && unit.Position.Adjacent(b.Position) {
			return nil
		}
	}
	return violation.Newf(violation.CodeNotAtBase, "unit %s at %s is not adjacent to an owned base", unit.ID, unit.Position)
}

// Deposit transfers the unit's cargo into the player's energy pool up to
// MaxEnergy. Whatever does not fit stays in the cargo. Returns the amount moved.
func (s *Service) Deposit(unit *entity.Unit, player *entity.Player, bases []*entity.Base) (int, error) {
	if err := s.CheckDeposit(unit, player, bases); err != nil {
		return 0, err
	}

	amount := min(unit.Carried, player.MaxEnergy-player.Energy)
	if amount < 0 {
		amount = 0
	}
	player.Energy += amount
	unit.Carried -= amount
	return amount, nil
}

// RegenerateAll adds each node's regeneration rate, capped at its maximum.
// It returns the total amount restored across all nodes.
func (s *Service) RegenerateAll(nodes []*entity.ResourceNode) int {
	total := 0
	for _, n := range nodes {
		before := n.Value
		n.SetValue(n.Value + n.RegenerationRate)
		total += n.Value - before
	}
	return total
}
