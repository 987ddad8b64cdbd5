// Package combat resolves melee attacks deterministically. There is no
// randomness: the same attacker and defender always produce the same outcome.
package combat

import (
	"github.com/thraizz/skirmish-server-go/internal/game/entity"
	"github.com/thraizz/skirmish-server-go/internal/game/violation"
)

// MinimumDamage is applied even when defense outclasses attack, so no target is invulnerable.
const MinimumDamage = 1

// Roster gives the resolver access to the players whose active sets it updates.
type Roster interface {
	Player(id int) (*entity.Player, bool)
}

// Target is either a unit or a base. Exactly one field is set.
type Target struct {
	Unit *entity.Unit
	Base *entity.Base
}

// UnitTarget wraps a unit.
func UnitTarget(u *entity.Unit) Target { return Target{Unit: u} }

// BaseTarget wraps a base.
func BaseTarget(b *entity.Base) Target { return Target{Base: b} }

// ID returns the target's entity id.
func (t Target) ID() string {
	if t.Base != nil {
		return t.Base.ID
	}
	return t.Unit.ID
}

// OwnerID returns the owning player.
func (t Target) OwnerID() int {
	if t.Base != nil {
		return t.Base.OwnerID
	}
	return t.Unit.OwnerID
}

// Position returns the target's cell.
func (t Target) Position() entity.Position {
	if t.Base != nil {
		return t.Base.Position
	}
	return t.Unit.Position
}

// Health returns the target's current health.
func (t Target) Health() int {
	if t.Base != nil {
		return t.Base.Health
	}
	return t.Unit.Health
}

// IsBase reports whether the target is a base.
func (t Target) IsBase() bool {
	return t.Base != nil
}

func (t Target) defense() int {
	if t.Base != nil {
		return t.Base.Defense
	}
	return t.Unit.Defense
}

func (t Target) standing() bool {
	if t.Base != nil {
		return !t.Base.Destroyed
	}
	return t.Unit != nil && t.Unit.Alive
}

// Outcome describes the effect of one attack.
type Outcome struct {
	AttackerID    string
	TargetID      string
	TargetOwnerID int
	TargetIsBase  bool
	Damage        int
	HealthBefore  int
	HealthAfter   int
	Destroyed     bool
	BaseDestroyed bool
}

// Damage returns max(MinimumDamage, attack-defense).
func Damage(attack, defense int) int {
	if d := attack - defense; d > MinimumDamage {
		return d
	}
	return MinimumDamage
}

// Resolver applies attacks.
type Resolver struct {
	roster Roster
}

// NewResolver creates a resolver that updates players through roster.
func NewResolver(roster Roster) *Resolver {
	return &Resolver{roster: roster}
}

// Validate checks an attack without applying it.
func (r *Resolver) Validate(attacker *entity.Unit, target Target) error {
	if attacker == nil || !attacker.Alive {
		return violation.New(violation.CodeInvalidTarget, "attacker is not alive")
	}
	if target.Unit == nil && target.Base == nil {
		return violation.New(violation.CodeInvalidTarget, "no target")
	}
	if !target.standing() {
		return violation.Newf(violation.CodeInvalidTarget, "target %s is already destroyed", target.ID())
	}
	if !attacker.Position.Adjacent(target.Position()) {
		return violation.Newf(violation.CodeOutOfRange, "target %s at %s is not adjacent to %s at %s",
			target.ID(), target.Position(), attacker.ID, attacker.Position)
	}
	if attacker.ActionsLeft() == 0 {
		return violation.Newf(violation.CodeActionExhausted, "unit %s has no actions remaining", attacker.ID)
	}
	if target.OwnerID() == attacker.OwnerID {
		return violation.Newf(violation.CodeFriendlyFire, "target %s belongs to player %d", target.ID(), attacker.OwnerID)
	}
	return nil
}

// Attack applies one melee attack. Destroyed targets are removed from their
// owner's active set; BaseDestroyed tells the caller to evaluate victory.
func (r *Resolver) Attack(attacker *entity.Unit, target Target) (Outcome, error) {
	if err := r.Validate(attacker, target); err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		AttackerID:    attacker.ID,
		TargetID:      target.ID(),
		TargetOwnerID: target.OwnerID(),
		TargetIsBase:  target.IsBase(),
		Damage:        Damage(attacker.Attack, target.defense()),
		HealthBefore:  target.Health(),
	}

	if target.Base != nil {
		target.Base.SetHealth(target.Base.Health - out.Damage)
		out.HealthAfter = target.Base.Health
		out.Destroyed = target.Base.Destroyed
		out.BaseDestroyed = out.Destroyed
	} else {
		target.Unit.SetHealth(target.Unit.Health - out.Damage)
		out.HealthAfter = target.Unit.Health
		out.Destroyed = !target.Unit.Alive
	}
	attacker.ActionsUsed++

	if out.Destroyed {
		if owner, ok := r.roster.Player(out.TargetOwnerID); ok {
			if out.TargetIsBase {
				owner.BaseIDs.Remove(out.TargetID)
			} else {
				owner.UnitIDs.Remove(out.TargetID)
			}
		}
	}

	return out, nil
}
