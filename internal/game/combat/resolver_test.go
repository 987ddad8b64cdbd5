package combat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thraizz/skirmish-server-go/internal/game/entity"
	"github.com/thraizz/skirmish-server-go/internal/game/violation"
)

type mapRoster map[int]*entity.Player

func (m mapRoster) Player(id int) (*entity.Player, bool) {
	p, ok := m[id]
	return p, ok
}

func setup() (*Resolver, mapRoster) {
	roster := mapRoster{
		1: {ID: 1, UnitIDs: entity.IDSet{"unit-1"}, BaseIDs: entity.IDSet{"base-1"}},
		2: {ID: 2, UnitIDs: entity.IDSet{"unit-2"}, BaseIDs: entity.IDSet{"base-2"}},
	}
	return NewResolver(roster), roster
}

func unit(id string, owner, x, y, attack, defense, health int) *entity.Unit {
	return &entity.Unit{
		ID: id, Type: entity.UnitInfantry, OwnerID: owner, Position: entity.Pos(x, y),
		Health: health, MaxHealth: health, Attack: attack, Defense: defense, MaxActions: 2, Alive: true,
	}
}

func TestDamageFormula(t *testing.T) {
	assert.Equal(t, 10, Damage(12, 2))
	assert.Equal(t, 1, Damage(3, 8), "never less than one")
	assert.Equal(t, 1, Damage(5, 5))
}

func TestAttackUnit(t *testing.T) {
	r, _ := setup()
	attacker := unit("unit-1", 1, 5, 5, 15, 4, 80)
	defender := unit("unit-2", 2, 6, 5, 15, 4, 80)

	out, err := r.Attack(attacker, UnitTarget(defender))
	require.NoError(t, err)
	assert.Equal(t, 11, out.Damage)
	assert.Equal(t, 80, out.HealthBefore)
	assert.Equal(t, 69, out.HealthAfter)
	assert.False(t, out.Destroyed)
	assert.Equal(t, 1, attacker.ActionsUsed)
}

func TestAttackDestroysUnitAndRemovesFromRoster(t *testing.T) {
	r, roster := setup()
	attacker := unit("unit-1", 1, 5, 5, 25, 8, 120)
	defender := unit("unit-2", 2, 5, 6, 5, 1, 10)

	out, err := r.Attack(attacker, UnitTarget(defender))
	require.NoError(t, err)
	assert.True(t, out.Destroyed)
	assert.False(t, out.BaseDestroyed)
	assert.Equal(t, 0, defender.Health, "health is floored at zero")
	assert.False(t, defender.Alive)
	assert.False(t, roster[2].UnitIDs.Has("unit-2"))
}

func TestAttackBaseDestroyedAfterFirstHit(t *testing.T) {
	r, roster := setup()
	attacker := unit("unit-1", 1, 22, 22, 12, 1, 50)
	base := &entity.Base{ID: "base-2", OwnerID: 2, Position: entity.Pos(23, 23), Health: 10, MaxHealth: 10, Defense: 2}

	out, err := r.Attack(attacker, BaseTarget(base))
	require.NoError(t, err)
	assert.Equal(t, 10, out.Damage)
	assert.True(t, out.BaseDestroyed)
	assert.True(t, base.Destroyed)
	assert.Equal(t, 0, base.Health)
	assert.Empty(t, roster[2].BaseIDs)

	_, err = r.Attack(attacker, BaseTarget(base))
	assert.True(t, errors.Is(err, violation.ErrInvalidTarget), "a destroyed base cannot be hit again")
}

func TestAttackRejections(t *testing.T) {
	r, _ := setup()

	far := unit("unit-2", 2, 9, 9, 5, 1, 50)
	_, err := r.Attack(unit("unit-1", 1, 5, 5, 15, 4, 80), UnitTarget(far))
	assert.True(t, errors.Is(err, violation.ErrOutOfRange))

	tired := unit("unit-1", 1, 5, 5, 15, 4, 80)
	tired.ActionsUsed = tired.MaxActions
	_, err = r.Attack(tired, UnitTarget(unit("unit-2", 2, 5, 6, 5, 1, 50)))
	assert.True(t, errors.Is(err, violation.ErrActionExhausted))

	_, err = r.Attack(unit("unit-1", 1, 5, 5, 15, 4, 80), UnitTarget(unit("unit-3", 1, 5, 6, 5, 1, 50)))
	assert.True(t, errors.Is(err, violation.ErrFriendlyFire))
}

func TestAttackIsDeterministic(t *testing.T) {
	for i := 0; i < 20; i++ {
		r, _ := setup()
		attacker := unit("unit-1", 1, 5, 5, 15, 4, 80)
		defender := unit("unit-2", 2, 6, 6, 15, 4, 80)
		out, err := r.Attack(attacker, UnitTarget(defender))
		require.NoError(t, err)
		assert.Equal(t, 11, out.Damage)
		assert.Equal(t, 69, defender.Health)
	}
}
