// Package command implements the player actions as reversible commands.
// Each command records exactly the values it overwrites so Undo restores
// the prior state without replaying history.
package command

import (
	"github.com/thraizz/skirmish-server-go/internal/game/combat"
	"github.com/thraizz/skirmish-server-go/internal/game/entity"
	"github.com/thraizz/skirmish-server-go/internal/game/resources"
	"github.com/thraizz/skirmish-server-go/internal/game/rules"
	"github.com/thraizz/skirmish-server-go/internal/game/violation"
)

// Kind identifies a command variant.
type Kind string

const (
	KindMove    Kind = "move"
	KindAttack  Kind = "attack"
	KindBuild   Kind = "build"
	KindGather  Kind = "gather"
	KindDeposit Kind = "deposit"
)

// Command is a validated, undoable player action.
type Command interface {
	Kind() Kind
	// Actor returns the player issuing the command.
	Actor() int
	// Validate checks the command against the current world without mutating it.
	Validate(w World) error
	// Execute applies the command. It records whatever Undo needs.
	Execute(w World) error
	// Undo restores the values Execute overwrote.
	Undo(w World) error
	Description() string
	// Events returns the events produced by the last Execute.
	Events() []rules.Event
}

// World is the mutable game state a command operates on.
type World interface {
	Phase() rules.Phase
	ActivePlayerID() int
	GameOver() bool

	Player(id int) (*entity.Player, bool)
	Unit(id string) (*entity.Unit, bool)
	Base(id string) (*entity.Base, bool)
	Node(id string) (*entity.ResourceNode, bool)
	PlayerBases(playerID int) []*entity.Base
	OccupantAt(pos entity.Position) (entity.Occupant, bool)

	AddUnit(u *entity.Unit)
	RemoveUnit(id string)

	Factory() *entity.Factory
	Resources() *resources.Service
	Combat() *combat.Resolver

	// IDCounter exposes the entity id counter so creation can be reverted.
	IDCounter() int
	SetIDCounter(n int)

	// Bookmark captures the full world; Restore rolls back to it.
	Bookmark() any
	Restore(bookmark any)
}

// checkTurn applies the validation shared by every command: the match is
// running, the phase allows the command, the actor holds the turn and, when
// the command costs an action, the actor still has one.
func checkTurn(w World, playerID int, phase rules.Phase, costsAction bool) (*entity.Player, error) {
	if w.GameOver() {
		return nil, violation.New(violation.CodeGameOver, "match has ended")
	}
	if current := w.Phase(); current != phase {
		return nil, violation.WithMetadata(violation.CodeWrongPhase,
			"command requires "+phase.String()+" phase, current phase is "+current.String(),
			map[string]string{"required": phase.String(), "current": current.String()})
	}
	if active := w.ActivePlayerID(); playerID != active {
		return nil, violation.Newf(violation.CodeNotOwner, "it is player %d's turn, not player %d's", active, playerID)
	}
	player, ok := w.Player(playerID)
	if !ok {
		return nil, violation.Newf(violation.CodeNotFound, "player %d not found", playerID)
	}
	if costsAction && player.ActionsRemaining <= 0 {
		return nil, violation.Newf(violation.CodeActionExhausted, "player %d has no actions remaining this turn", playerID)
	}
	return player, nil
}

// ownedUnit resolves a living unit that belongs to playerID.
func ownedUnit(w World, playerID int, unitID string) (*entity.Unit, error) {
	unit, ok := w.Unit(unitID)
	if !ok || !unit.Alive {
		return nil, violation.Newf(violation.CodeNotFound, "unit %s not found", unitID)
	}
	if unit.OwnerID != playerID {
		return nil, violation.Newf(violation.CodeNotOwner, "unit %s belongs to player %d", unitID, unit.OwnerID)
	}
	return unit, nil
}

func stamp(payloads ...rules.Payload) []rules.Event {
	events := make([]rules.Event, 0, len(payloads))
	for _, p := range payloads {
		events = append(events, rules.NewEvent(p))
	}
	return events
}
