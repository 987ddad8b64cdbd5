package command

import (
	"fmt"

	"github.com/thraizz/skirmish-server-go/internal/game/entity"
	"github.com/thraizz/skirmish-server-go/internal/game/rules"
	"github.com/thraizz/skirmish-server-go/internal/game/violation"
)

// Build recruits a unit next to one of the player's bases during the build phase.
type Build struct {
	PlayerID int
	UnitType entity.UnitType
	At       entity.Position

	unitID string
	before buildBefore
	events []rules.Event
}

type buildBefore struct {
	energy           int
	actionsRemaining int
	unitIDs          entity.IDSet
	idCounter        int
}

// NewBuild creates a build command.
func NewBuild(playerID int, unitType entity.UnitType, at entity.Position) *Build {
	return &Build{PlayerID: playerID, UnitType: unitType, At: at}
}

func (c *Build) Kind() Kind { return KindBuild }
func (c *Build) Actor() int { return c.PlayerID }

func (c *Build) Description() string {
	return fmt.Sprintf("build %s at %s", c.UnitType, c.At)
}

func (c *Build) Events() []rules.Event { return c.events }

// UnitID returns the id assigned by the last Execute.
func (c *Build) UnitID() string { return c.unitID }

func (c *Build) Validate(w World) error {
	player, err := checkTurn(w, c.PlayerID, rules.PhaseBuild, true)
	if err != nil {
		return err
	}
	tpl, ok := entity.Template(c.UnitType)
	if !ok {
		return violation.Newf(violation.CodeUnknownUnitType, "unknown unit type %q", c.UnitType)
	}
	if player.Energy < tpl.Cost {
		return violation.WithMetadata(violation.CodeInsufficientEnergy,
			fmt.Sprintf("%s costs %d energy, player %d has %d", c.UnitType, tpl.Cost, c.PlayerID, player.Energy),
			map[string]string{"cost": fmt.Sprint(tpl.Cost), "energy": fmt.Sprint(player.Energy)})
	}
	if !c.At.InBounds() {
		return violation.Newf(violation.CodeOutOfBounds, "position %s is outside the grid", c.At)
	}
	if occ, taken := w.OccupantAt(c.At); taken {
		return violation.Newf(violation.CodeOccupiedCell, "cell %s is occupied by %s %s", c.At, occ.Kind, occ.ID)
	}
	for _, b := range w.PlayerBases(c.PlayerID) {
		if !b.Destroyed && b.Position.Adjacent(c.At) {
			return nil
		}
	}
	return violation.Newf(violation.CodeNotAdjacent, "%s is not adjacent to a base of player %d", c.At, c.PlayerID)
}

func (c *Build) Execute(w World) error {
	player, ok := w.Player(c.PlayerID)
	if !ok {
		return violation.Newf(violation.CodeNotFound, "player %d not found", c.PlayerID)
	}
	tpl, ok := entity.Template(c.UnitType)
	if !ok {
		return violation.Newf(violation.CodeUnknownUnitType, "unknown unit type %q", c.UnitType)
	}

	c.before = buildBefore{
		energy:           player.Energy,
		actionsRemaining: player.ActionsRemaining,
		unitIDs:          player.UnitIDs.Clone(),
		idCounter:        w.IDCounter(),
	}

	unit, err := w.Factory().CreateUnit(c.UnitType, c.PlayerID, c.At)
	if err != nil {
		return err
	}
	w.AddUnit(unit)
	player.UnitIDs.Add(unit.ID)
	player.Energy -= tpl.Cost
	player.ActionsRemaining--
	c.unitID = unit.ID

	c.events = stamp(rules.UnitCreated{UnitID: unit.ID, UnitType: unit.Type, PlayerID: c.PlayerID, Position: c.At, Cost: tpl.Cost})
	return nil
}

func (c *Build) Undo(w World) error {
	player, ok := w.Player(c.PlayerID)
	if !ok {
		return violation.Newf(violation.CodeNotFound, "player %d not found", c.PlayerID)
	}
	w.RemoveUnit(c.unitID)
	player.UnitIDs = c.before.unitIDs.Clone()
	player.Energy = c.before.energy
	player.ActionsRemaining = c.before.actionsRemaining
	w.SetIDCounter(c.before.idCounter)
	return nil
}
