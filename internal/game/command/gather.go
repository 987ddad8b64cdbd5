package command

import (
	"fmt"

	"github.com/thraizz/skirmish-server-go/internal/game/rules"
	"github.com/thraizz/skirmish-server-go/internal/game/violation"
)

// Gather harvests an adjacent resource node into a worker's cargo during the resource phase.
type Gather struct {
	PlayerID int
	UnitID   string
	NodeID   string

	amount int
	before gatherBefore
	events []rules.Event
}

type gatherBefore struct {
	nodeValue         int
	carried           int
	unitActionsUsed   int
	actionsRemaining  int
	resourcesGathered int
	score             int
}

// NewGather creates a gather command.
func NewGather(playerID int, unitID, nodeID string) *Gather {
	return &Gather{PlayerID: playerID, UnitID: unitID, NodeID: nodeID}
}

func (c *Gather) Kind() Kind { return KindGather }
func (c *Gather) Actor() int { return c.PlayerID }

func (c *Gather) Description() string {
	return fmt.Sprintf("%s gathers %d from %s", c.UnitID, c.amount, c.NodeID)
}

func (c *Gather) Events() []rules.Event { return c.events }

// Amount returns the energy harvested by the last Execute.
func (c *Gather) Amount() int { return c.amount }

func (c *Gather) Validate(w World) error {
	if _, err := checkTurn(w, c.PlayerID, rules.PhaseResource, true); err != nil {
		return err
	}
	unit, err := ownedUnit(w, c.PlayerID, c.UnitID)
	if err != nil {
		return err
	}
	node, ok := w.Node(c.NodeID)
	if !ok {
		return violation.Newf(violation.CodeNotFound, "resource node %s not found", c.NodeID)
	}
	return w.Resources().CheckGather(node, unit)
}

func (c *Gather) Execute(w World) error {
	player, _ := w.Player(c.PlayerID)
	unit, err := ownedUnit(w, c.PlayerID, c.UnitID)
	if err != nil {
		return err
	}
	node, ok := w.Node(c.NodeID)
	if !ok {
		return violation.Newf(violation.CodeNotFound, "resource node %s not found", c.NodeID)
	}

	c.before = gatherBefore{
		nodeValue:         node.Value,
		carried:           unit.Carried,
		unitActionsUsed:   unit.ActionsUsed,
		actionsRemaining:  player.ActionsRemaining,
		resourcesGathered: player.ResourcesGathered,
		score:             player.Score,
	}

	amount, err := w.Resources().Gather(node, unit)
	if err != nil {
		return err
	}
	c.amount = amount
	player.ActionsRemaining--
	player.ResourcesGathered += amount
	player.Score += amount

	payloads := []rules.Payload{rules.ResourcesGathered{
		UnitID: unit.ID, NodeID: node.ID, PlayerID: c.PlayerID, Amount: amount, NodeRemaining: node.Value,
	}}
	if amount > 0 && node.Depleted() {
		payloads = append(payloads, rules.ResourceNodeDepleted{NodeID: node.ID, Position: node.Position})
	}
	c.events = stamp(payloads...)
	return nil
}

func (c *Gather) Undo(w World) error {
	player, ok := w.Player(c.PlayerID)
	if !ok {
		return violation.Newf(violation.CodeNotFound, "player %d not found", c.PlayerID)
	}
	unit, ok := w.Unit(c.UnitID)
	if !ok {
		return violation.Newf(violation.CodeNotFound, "unit %s not found", c.UnitID)
	}
	node, ok := w.Node(c.NodeID)
	if !ok {
		return violation.Newf(violation.CodeNotFound, "resource node %s not found", c.NodeID)
	}
	node.Value = c.before.nodeValue
	unit.Carried = c.before.carried
	unit.ActionsUsed = c.before.unitActionsUsed
	player.ActionsRemaining = c.before.actionsRemaining
	player.ResourcesGathered = c.before.resourcesGathered
	player.Score = c.before.score
	return nil
}

// Deposit unloads a worker's cargo into its owner's energy pool while standing
// next to a friendly base. It costs no actions.
type Deposit struct {
	PlayerID int
	UnitID   string

	amount int
	before depositBefore
	events []rules.Event
}

type depositBefore struct {
	carried int
	energy  int
}

// NewDeposit creates a deposit command.
func NewDeposit(playerID int, unitID string) *Deposit {
	return &Deposit{PlayerID: playerID, UnitID: unitID}
}

func (c *Deposit) Kind() Kind { return KindDeposit }
func (c *Deposit) Actor() int { return c.PlayerID }

func (c *Deposit) Description() string {
	return fmt.Sprintf("%s deposits %d energy", c.UnitID, c.amount)
}

func (c *Deposit) Events() []rules.Event { return c.events }

// Amount returns the energy transferred by the last Execute.
func (c *Deposit) Amount() int { return c.amount }

func (c *Deposit) Validate(w World) error {
	player, err := checkTurn(w, c.PlayerID, rules.PhaseResource, false)
	if err != nil {
		return err
	}
	unit, err := ownedUnit(w, c.PlayerID, c.UnitID)
	if err != nil {
		return err
	}
	if unit.Carried == 0 {
		return violation.Newf(violation.CodeCannotGather, "unit %s carries nothing", unit.ID)
	}
	if err := w.Resources().CheckDeposit(unit, player, w.PlayerBases(c.PlayerID)); err != nil {
		return err
	}
	if player.Energy >= player.MaxEnergy {
		return violation.Newf(violation.CodeCannotGather, "player %d energy is full at %d", c.PlayerID, player.MaxEnergy)
	}
	return nil
}

func (c *Deposit) Execute(w World) error {
	player, _ := w.Player(c.PlayerID)
	unit, err := ownedUnit(w, c.PlayerID, c.UnitID)
	if err != nil {
		return err
	}

	c.before = depositBefore{carried: unit.Carried, energy: player.Energy}

	amount, err := w.Resources().Deposit(unit, player, w.PlayerBases(c.PlayerID))
	if err != nil {
		return err
	}
	c.amount = amount
	c.events = stamp(rules.ResourcesDeposited{UnitID: unit.ID, PlayerID: c.PlayerID, Amount: amount, Energy: player.Energy})
	return nil
}

func (c *Deposit) Undo(w World) error {
	player, ok := w.Player(c.PlayerID)
	if !ok {
		return violation.Newf(violation.CodeNotFound, "player %d not found", c.PlayerID)
	}
	unit, ok := w.Unit(c.UnitID)
	if !ok {
		return violation.Newf(violation.CodeNotFound, "unit %s not found", c.UnitID)
	}
	unit.Carried = c.before.carried
	player.Energy = c.before.energy
	return nil
}
