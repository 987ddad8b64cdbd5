package resources

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thraizz/skirmish-server-go/internal/game/entity"
	"github.com/thraizz/skirmish-server-go/internal/game/violation"
)

func worker(x, y int) *entity.Unit {
	return &entity.Unit{
		ID: "unit-1", Type: entity.UnitWorker, OwnerID: 1, Position: entity.Pos(x, y),
		Health: 50, MaxHealth: 50, MaxActions: 2, CarryCapacity: entity.WorkerCarryCapacity, Alive: true,
	}
}

func node(x, y, value int) *entity.ResourceNode {
	return &entity.ResourceNode{ID: "node-1", Position: entity.Pos(x, y), Value: value, MaxValue: 100, RegenerationRate: 5}
}

func TestGatherDepletesNode(t *testing.T) {
	svc := NewService()
	n := node(6, 6, 8)
	u := worker(5, 5)

	amount, err := svc.Gather(n, u)
	require.NoError(t, err)
	assert.Equal(t, 8, amount)
	assert.Equal(t, 0, n.Value)
	assert.Equal(t, 8, u.Carried)
	assert.Equal(t, 1, u.ActionsUsed)

	amount, err = svc.Gather(n, u)
	require.NoError(t, err)
	assert.Equal(t, 0, amount, "empty node yields zero without error")
	assert.Equal(t, 0, n.Value)
}

func TestGatherLimitedByCarryCapacity(t *testing.T) {
	svc := NewService()
	n := node(6, 6, 100)
	u := worker(5, 5)

	amount, err := svc.Gather(n, u)
	require.NoError(t, err)
	assert.Equal(t, 10, amount)
	assert.Equal(t, 90, n.Value)

	amount, err = svc.Gather(n, u)
	require.NoError(t, err)
	assert.Equal(t, 0, amount, "full cargo takes nothing more")
	assert.Equal(t, 90, n.Value)
}

func TestGatherRejections(t *testing.T) {
	svc := NewService()

	_, err := svc.Gather(node(9, 9, 50), worker(5, 5))
	assert.True(t, errors.Is(err, violation.ErrNotAdjacent))

	tired := worker(5, 5)
	tired.ActionsUsed = tired.MaxActions
	_, err = svc.Gather(node(5, 6, 50), tired)
	assert.True(t, errors.Is(err, violation.ErrActionExhausted))

	scout := worker(5, 5)
	scout.Type = entity.UnitScout
	scout.CarryCapacity = 0
	_, err = svc.Gather(node(5, 6, 50), scout)
	assert.True(t, errors.Is(err, violation.ErrCannotGather))
}

func TestDeposit(t *testing.T) {
	svc := NewService()
	player := &entity.Player{ID: 1, Energy: 20, MaxEnergy: 100}
	bases := []*entity.Base{{ID: "base-1", OwnerID: 1, Position: entity.Pos(1, 1), Health: 200, MaxHealth: 200}}

	u := worker(2, 2)
	u.Carried = 10
	amount, err := svc.Deposit(u, player, bases)
	require.NoError(t, err)
	assert.Equal(t, 10, amount)
	assert.Equal(t, 30, player.Energy)
	assert.Equal(t, 0, u.Carried)

	far := worker(5, 5)
	far.Carried = 10
	_, err = svc.Deposit(far, player, bases)
	assert.True(t, errors.Is(err, violation.ErrNotAtBase))
}

func TestDepositCapsAtMaxEnergy(t *testing.T) {
	svc := NewService()
	player := &entity.Player{ID: 1, Energy: 95, MaxEnergy: 100}
	bases := []*entity.Base{{ID: "base-1", OwnerID: 1, Position: entity.Pos(1, 1), Health: 200, MaxHealth: 200}}

	u := worker(1, 2)
	u.Carried = 10
	amount, err := svc.Deposit(u, player, bases)
	require.NoError(t, err)
	assert.Equal(t, 5, amount)
	assert.Equal(t, 100, player.Energy)
	assert.Equal(t, 5, u.Carried)
}

func TestDepositIgnoresDestroyedAndEnemyBases(t *testing.T) {
	svc := NewService()
	player := &entity.Player{ID: 1, Energy: 0, MaxEnergy: 100}
	bases := []*entity.Base{
		{ID: "base-1", OwnerID: 1, Position: entity.Pos(1, 1), Destroyed: true},
		{ID: "base-2", OwnerID: 2, Position: entity.Pos(3, 3), Health: 200, MaxHealth: 200},
	}

	u := worker(2, 2)
	u.Carried = 4
	_, err := svc.Deposit(u, player, bases)
	assert.True(t, errors.Is(err, violation.ErrNotAtBase))
}

func TestRegenerateAllCapsAtMax(t *testing.T) {
	svc := NewService()
	nodes := []*entity.ResourceNode{node(1, 1, 0), node(2, 2, 98), node(3, 3, 100)}

	restored := svc.RegenerateAll(nodes)
	assert.Equal(t, 7, restored)
	assert.Equal(t, 5, nodes[0].Value)
	assert.Equal(t, 100, nodes[1].Value)
	assert.Equal(t, 100, nodes[2].Value)
}
