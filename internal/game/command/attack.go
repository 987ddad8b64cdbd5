package command

import (
	"fmt"

	"github.com/thraizz/skirmish-server-go/internal/game/combat"
	"github.com/thraizz/skirmish-server-go/internal/game/entity"
	"github.com/thraizz/skirmish-server-go/internal/game/rules"
	"github.com/thraizz/skirmish-server-go/internal/game/violation"
)

// BaseDestroyedScore is awarded for destroying the opposing base. Unit kills
// score the victim's recruitment cost.
const BaseDestroyedScore = 100

// Attack strikes an adjacent enemy unit or base during the action phase.
type Attack struct {
	PlayerID   int
	AttackerID string
	TargetID   string

	before  attackBefore
	outcome combat.Outcome
	events  []rules.Event
}

type attackBefore struct {
	attackerActionsUsed int
	actionsRemaining    int
	score               int
	unit                entity.Unit
	base                entity.Base
	ownerIDs            entity.IDSet
}

// NewAttack creates an attack command. targetID may name a unit or a base.
func NewAttack(playerID int, attackerID, targetID string) *Attack {
	return &Attack{PlayerID: playerID, AttackerID: attackerID, TargetID: targetID}
}

func (c *Attack) Kind() Kind { return KindAttack }
func (c *Attack) Actor() int { return c.PlayerID }

func (c *Attack) Description() string {
	return fmt.Sprintf("%s attacks %s", c.AttackerID, c.TargetID)
}

func (c *Attack) Events() []rules.Event { return c.events }

// Outcome returns the result of the last Execute.
func (c *Attack) Outcome() combat.Outcome { return c.outcome }

func (c *Attack) target(w World) (combat.Target, error) {
	if u, ok := w.Unit(c.TargetID); ok {
		return combat.UnitTarget(u), nil
	}
	if b, ok := w.Base(c.TargetID); ok {
		return combat.BaseTarget(b), nil
	}
	return combat.Target{}, violation.Newf(violation.CodeNotFound, "target %s not found", c.TargetID)
}

func (c *Attack) Validate(w World) error {
	if _, err := checkTurn(w, c.PlayerID, rules.PhaseAction, true); err != nil {
		return err
	}
	attacker, err := ownedUnit(w, c.PlayerID, c.AttackerID)
	if err != nil {
		return err
	}
	target, err := c.target(w)
	if err != nil {
		return err
	}
	return w.Combat().Validate(attacker, target)
}

func (c *Attack) Execute(w World) error {
	player, _ := w.Player(c.PlayerID)
	attacker, err := ownedUnit(w, c.PlayerID, c.AttackerID)
	if err != nil {
		return err
	}
	target, err := c.target(w)
	if err != nil {
		return err
	}
	owner, ok := w.Player(target.OwnerID())
	if !ok {
		return violation.Newf(violation.CodeNotFound, "player %d not found", target.OwnerID())
	}

	c.before = attackBefore{
		attackerActionsUsed: attacker.ActionsUsed,
		actionsRemaining:    player.ActionsRemaining,
		score:               player.Score,
	}
	if target.IsBase() {
		c.before.base = *target.Base
		c.before.ownerIDs = owner.BaseIDs.Clone()
	} else {
		c.before.unit = *target.Unit
		c.before.ownerIDs = owner.UnitIDs.Clone()
	}

	out, err := w.Combat().Attack(attacker, target)
	if err != nil {
		return err
	}
	c.outcome = out
	player.ActionsRemaining--

	var payloads []rules.Payload
	if out.TargetIsBase {
		payloads = append(payloads, rules.BaseAttacked{
			AttackerID: attacker.ID, PlayerID: c.PlayerID, BaseID: out.TargetID,
			OwnerID: out.TargetOwnerID, Damage: out.Damage, RemainingHealth: out.HealthAfter,
		})
		if out.Destroyed {
			player.Score += BaseDestroyedScore
			payloads = append(payloads, rules.BaseDestroyed{BaseID: out.TargetID, OwnerID: out.TargetOwnerID, Position: target.Position()})
		}
	} else {
		payloads = append(payloads, rules.UnitAttacked{
			AttackerID: attacker.ID, PlayerID: c.PlayerID, TargetID: out.TargetID,
			TargetOwnerID: out.TargetOwnerID, Damage: out.Damage, RemainingHealth: out.HealthAfter,
		})
		if out.Destroyed {
			if tpl, ok := entity.Template(target.Unit.Type); ok {
				player.Score += tpl.Cost
			}
			payloads = append(payloads, rules.UnitDestroyed{UnitID: out.TargetID, PlayerID: out.TargetOwnerID, Position: target.Position()})
		}
	}
	c.events = stamp(payloads...)
	return nil
}

func (c *Attack) Undo(w World) error {
	player, ok := w.Player(c.PlayerID)
	if !ok {
		return violation.Newf(violation.CodeNotFound, "player %d not found", c.PlayerID)
	}
	attacker, ok := w.Unit(c.AttackerID)
	if !ok {
		return violation.Newf(violation.CodeNotFound, "unit %s not found", c.AttackerID)
	}
	owner, ok := w.Player(c.outcome.TargetOwnerID)
	if !ok {
		return violation.Newf(violation.CodeNotFound, "player %d not found", c.outcome.TargetOwnerID)
	}

	if c.outcome.TargetIsBase {
		base, ok := w.Base(c.TargetID)
		if !ok {
			return violation.Newf(violation.CodeNotFound, "base %s not found", c.TargetID)
		}
		*base = c.before.base
		owner.BaseIDs = c.before.ownerIDs.Clone()
	} else {
		unit, ok := w.Unit(c.TargetID)
		if !ok {
			return violation.Newf(violation.CodeNotFound, "unit %s not found", c.TargetID)
		}
		*unit = c.before.unit
		owner.UnitIDs = c.before.ownerIDs.Clone()
	}
	attacker.ActionsUsed = c.before.attackerActionsUsed
	player.ActionsRemaining = c.before.actionsRemaining
	player.Score = c.before.score
	return nil
}
