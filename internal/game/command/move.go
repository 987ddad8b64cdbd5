package command

import (
	"fmt"

	"github.com/thraizz/skirmish-server-go/internal/game/entity"
	"github.com/thraizz/skirmish-server-go/internal/game/rules"
	"github.com/thraizz/skirmish-server-go/internal/game/violation"
)

// Move relocates a unit within its movement range during the action phase.
type Move struct {
	PlayerID int
	UnitID   string
	To       entity.Position

	before moveBefore
	events []rules.Event
}

type moveBefore struct {
	from             entity.Position
	unitActionsUsed  int
	actionsRemaining int
}

// NewMove creates a move command.
func NewMove(playerID int, unitID string, to entity.Position) *Move {
	return &Move{PlayerID: playerID, UnitID: unitID, To: to}
}

func (c *Move) Kind() Kind { return KindMove }
func (c *Move) Actor() int { return c.PlayerID }

func (c *Move) Description() string {
	return fmt.Sprintf("move %s from %s to %s", c.UnitID, c.before.from, c.To)
}

func (c *Move) Events() []rules.Event { return c.events }

func (c *Move) Validate(w World) error {
	if _, err := checkTurn(w, c.PlayerID, rules.PhaseAction, true); err != nil {
		return err
	}
	unit, err := ownedUnit(w, c.PlayerID, c.UnitID)
	if err != nil {
		return err
	}
	if unit.ActionsLeft() == 0 {
		return violation.Newf(violation.CodeActionExhausted, "unit %s has no actions remaining", unit.ID)
	}
	if !c.To.InBounds() {
		return violation.Newf(violation.CodeOutOfBounds, "position %s is outside the grid", c.To)
	}
	if d := unit.Position.ManhattanDistance(c.To); d > unit.MovementRange {
		return violation.WithMetadata(violation.CodeOutOfRange,
			fmt.Sprintf("%s is %d cells from %s; %s moves at most %d", c.To, d, unit.Position, unit.ID, unit.MovementRange),
			map[string]string{"distance": fmt.Sprint(d), "range": fmt.Sprint(unit.MovementRange)})
	}
	if occ, taken := w.OccupantAt(c.To); taken {
		return violation.Newf(violation.CodeOccupiedCell, "cell %s is occupied by %s %s", c.To, occ.Kind, occ.ID)
	}
	return nil
}

func (c *Move) Execute(w World) error {
	player, _ := w.Player(c.PlayerID)
	unit, err := ownedUnit(w, c.PlayerID, c.UnitID)
	if err != nil {
		return err
	}

	c.before = moveBefore{
		from:             unit.Position,
		unitActionsUsed:  unit.ActionsUsed,
		actionsRemaining: player.ActionsRemaining,
	}

	unit.Position = c.To
	unit.ActionsUsed++
	player.ActionsRemaining--

	c.events = stamp(rules.UnitMoved{UnitID: unit.ID, PlayerID: c.PlayerID, From: c.before.from, To: c.To})
	return nil
}

func (c *Move) Undo(w World) error {
	player, ok := w.Player(c.PlayerID)
	if !ok {
		return violation.Newf(violation.CodeNotFound, "player %d not found", c.PlayerID)
	}
	unit, ok := w.Unit(c.UnitID)
	if !ok {
		return violation.Newf(violation.CodeNotFound, "unit %s not found", c.UnitID)
	}
	unit.Position = c.before.from
	unit.ActionsUsed = c.before.unitActionsUsed
	player.ActionsRemaining = c.before.actionsRemaining
	return nil
}
