package command

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thraizz/skirmish-server-go/internal/game/combat"
	"github.com/thraizz/skirmish-server-go/internal/game/entity"
	"github.com/thraizz/skirmish-server-go/internal/game/resources"
	"github.com/thraizz/skirmish-server-go/internal/game/rules"
	"github.com/thraizz/skirmish-server-go/internal/game/violation"
	"go.uber.org/zap/zaptest"
)

// testWorld is a minimal in-memory World.
type testWorld struct {
	phase  rules.Phase
	active int
	over   bool

	tables   tables
	factory  *entity.Factory
	res      *resources.Service
	resolver *combat.Resolver
}

type tables struct {
	Players map[int]*entity.Player
	Units   map[string]*entity.Unit
	Bases   map[string]*entity.Base
	Nodes   map[string]*entity.ResourceNode
	NextID  int
}

func (t tables) clone() tables {
	c := tables{
		Players: make(map[int]*entity.Player, len(t.Players)),
		Units:   make(map[string]*entity.Unit, len(t.Units)),
		Bases:   make(map[string]*entity.Base, len(t.Bases)),
		Nodes:   make(map[string]*entity.ResourceNode, len(t.Nodes)),
		NextID:  t.NextID,
	}
	for k, v := range t.Players {
		c.Players[k] = v.Clone()
	}
	for k, v := range t.Units {
		c.Units[k] = v.Clone()
	}
	for k, v := range t.Bases {
		c.Bases[k] = v.Clone()
	}
	for k, v := range t.Nodes {
		c.Nodes[k] = v.Clone()
	}
	return c
}

func (w *testWorld) NextID(prefix string) string {
	w.tables.NextID++
	return fmt.Sprintf("%s-%d", prefix, w.tables.NextID)
}

func (w *testWorld) Phase() rules.Phase  { return w.phase }
func (w *testWorld) ActivePlayerID() int { return w.active }
func (w *testWorld) GameOver() bool      { return w.over }

func (w *testWorld) Player(id int) (*entity.Player, bool) {
	p, ok := w.tables.Players[id]
	return p, ok
}

func (w *testWorld) Unit(id string) (*entity.Unit, bool) {
	u, ok := w.tables.Units[id]
	return u, ok
}

func (w *testWorld) Base(id string) (*entity.Base, bool) {
	b, ok := w.tables.Bases[id]
	return b, ok
}

func (w *testWorld) Node(id string) (*entity.ResourceNode, bool) {
	n, ok := w.tables.Nodes[id]
	return n, ok
}

func (w *testWorld) PlayerBases(playerID int) []*entity.Base {
	var out []*entity.Base
	for _, b := range w.tables.Bases {
		if b.OwnerID == playerID {
			out = append(out, b)
		}
	}
	return out
}

func (w *testWorld) OccupantAt(pos entity.Position) (entity.Occupant, bool) {
	for _, u := range w.tables.Units {
		if u.Alive && u.Position == pos {
			return entity.Occupant{Kind: entity.OccupantUnit, ID: u.ID}, true
		}
	}
	for _, b := range w.tables.Bases {
		if !b.Destroyed && b.Position == pos {
			return entity.Occupant{Kind: entity.OccupantBase, ID: b.ID}, true
		}
	}
	for _, n := range w.tables.Nodes {
		if n.Position == pos {
			return entity.Occupant{Kind: entity.OccupantNode, ID: n.ID}, true
		}
	}
	return entity.Occupant{}, false
}

func (w *testWorld) AddUnit(u *entity.Unit)        { w.tables.Units[u.ID] = u }
func (w *testWorld) RemoveUnit(id string)          { delete(w.tables.Units, id) }
func (w *testWorld) Factory() *entity.Factory      { return w.factory }
func (w *testWorld) Resources() *resources.Service { return w.res }
func (w *testWorld) Combat() *combat.Resolver      { return w.resolver }
func (w *testWorld) IDCounter() int                { return w.tables.NextID }
func (w *testWorld) SetIDCounter(n int)            { w.tables.NextID = n }
func (w *testWorld) Bookmark() any                 { return w.tables.clone() }
func (w *testWorld) Restore(b any)                 { w.tables = b.(tables).clone() }

type fixture struct {
	world  *testWorld
	mgr    *Manager
	base1  *entity.Base
	base2  *entity.Base
	worker *entity.Unit
	enemy  *entity.Unit
	node   *entity.ResourceNode
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	w := &testWorld{
		phase:  rules.PhaseAction,
		active: 1,
		tables: tables{
			Players: map[int]*entity.Player{},
			Units:   map[string]*entity.Unit{},
			Bases:   map[string]*entity.Base{},
			Nodes:   map[string]*entity.ResourceNode{},
		},
		res: resources.NewService(),
	}
	w.factory = entity.NewFactory(entity.DefaultFactoryConfig(), w)
	w.resolver = combat.NewResolver(w)

	for _, id := range []int{1, 2} {
		p, err := w.factory.CreatePlayer(id)
		require.NoError(t, err)
		w.tables.Players[id] = p
	}

	f := &fixture{world: w, mgr: NewManager(w, zaptest.NewLogger(t))}
	var err error
	f.base1, err = w.factory.CreateBase(1, entity.Pos(1, 1))
	require.NoError(t, err)
	f.base2, err = w.factory.CreateBase(2, entity.Pos(23, 23))
	require.NoError(t, err)
	for _, b := range []*entity.Base{f.base1, f.base2} {
		w.tables.Bases[b.ID] = b
		w.tables.Players[b.OwnerID].BaseIDs.Add(b.ID)
	}

	f.worker = f.addUnit(t, entity.UnitWorker, 1, entity.Pos(5, 5))
	f.enemy = f.addUnit(t, entity.UnitInfantry, 2, entity.Pos(15, 15))

	f.node, err = w.factory.CreateResourceNode(entity.Pos(12, 12), 8)
	require.NoError(t, err)
	w.tables.Nodes[f.node.ID] = f.node
	return f
}

func (f *fixture) addUnit(t *testing.T, typ entity.UnitType, owner int, pos entity.Position) *entity.Unit {
	t.Helper()
	u, err := f.world.factory.CreateUnit(typ, owner, pos)
	require.NoError(t, err)
	f.world.tables.Units[u.ID] = u
	f.world.tables.Players[owner].UnitIDs.Add(u.ID)
	return u
}

func (f *fixture) snapshot() tables {
	return f.world.tables.clone()
}

func (f *fixture) player(id int) *entity.Player {
	return f.world.tables.Players[id]
}

func (f *fixture) unit(id string) *entity.Unit {
	return f.world.tables.Units[id]
}

func TestMoveScenario(t *testing.T) {
	f := newFixture(t)
	before := f.snapshot()

	require.NoError(t, f.mgr.ExecuteCommand(NewMove(1, f.worker.ID, entity.Pos(6, 6))))

	moved := f.unit(f.worker.ID)
	assert.Equal(t, entity.Pos(6, 6), moved.Position)
	assert.Equal(t, 1, moved.ActionsUsed)
	assert.Equal(t, 2, f.player(1).ActionsRemaining)
	assert.True(t, f.mgr.CanUndo())

	_, err := f.mgr.Undo()
	require.NoError(t, err)
	assert.Equal(t, before, f.snapshot(), "undo restores the exact prior state")
	assert.True(t, f.mgr.CanRedo())

	_, err = f.mgr.Redo()
	require.NoError(t, err)
	assert.Equal(t, entity.Pos(6, 6), f.unit(f.worker.ID).Position)
	assert.Equal(t, 1, f.mgr.UndoDepth())
	assert.Equal(t, 0, f.mgr.RedoDepth())
}

func TestMoveRejections(t *testing.T) {
	f := newFixture(t)
	before := f.snapshot()

	cases := []struct {
		name string
		cmd  Command
		want *violation.Error
	}{
		{"out of range", NewMove(1, f.worker.ID, entity.Pos(8, 8)), violation.ErrOutOfRange},
		{"out of bounds", NewMove(1, f.worker.ID, entity.Pos(5, -1)), violation.ErrOutOfBounds},
		{"not owner", NewMove(1, f.enemy.ID, entity.Pos(15, 16)), violation.ErrNotOwner},
		{"not active player", NewMove(2, f.enemy.ID, entity.Pos(15, 16)), violation.ErrNotOwner},
		{"unknown unit", NewMove(1, "unit-99", entity.Pos(6, 6)), violation.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.mgr.ExecuteCommand(tc.cmd)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
			assert.Equal(t, before, f.snapshot())
			assert.False(t, f.mgr.CanUndo())
		})
	}

	blocker := f.addUnit(t, entity.UnitScout, 2, entity.Pos(6, 6))
	err := f.mgr.ExecuteCommand(NewMove(1, f.worker.ID, blocker.Position))
	assert.True(t, errors.Is(err, violation.ErrOccupiedCell))
}

func TestPhaseGating(t *testing.T) {
	f := newFixture(t)
	f.worker.Position = entity.Pos(11, 11)

	err := f.mgr.ExecuteCommand(NewGather(1, f.worker.ID, f.node.ID))
	assert.True(t, errors.Is(err, violation.ErrWrongPhase), "gather is resource-phase only")
	assert.Equal(t, violation.CodeWrongPhase, violation.CodeOf(err))

	err = f.mgr.ExecuteCommand(NewBuild(1, entity.UnitWorker, entity.Pos(2, 2)))
	assert.True(t, errors.Is(err, violation.ErrWrongPhase), "build is build-phase only")

	f.world.phase = rules.PhaseBuild
	err = f.mgr.ExecuteCommand(NewMove(1, f.worker.ID, entity.Pos(11, 12)))
	assert.True(t, errors.Is(err, violation.ErrWrongPhase), "move is action-phase only")
	err = f.mgr.ExecuteCommand(NewAttack(1, f.worker.ID, f.enemy.ID))
	assert.True(t, errors.Is(err, violation.ErrWrongPhase), "attack is action-phase only")
}

func TestPlayerActionBudget(t *testing.T) {
	f := newFixture(t)
	f.player(1).ActionsRemaining = 0

	err := f.mgr.ExecuteCommand(NewMove(1, f.worker.ID, entity.Pos(6, 6)))
	assert.True(t, errors.Is(err, violation.ErrActionExhausted))
}

func TestGameOverRefusesCommands(t *testing.T) {
	f := newFixture(t)
	f.world.over = true

	err := f.mgr.ExecuteCommand(NewMove(1, f.worker.ID, entity.Pos(6, 6)))
	assert.True(t, errors.Is(err, violation.ErrGameOver))
}

func TestBuildRejectedForInsufficientEnergy(t *testing.T) {
	f := newFixture(t)
	f.world.phase = rules.PhaseBuild
	f.player(1).Energy = 5
	before := f.snapshot()

	err := f.mgr.ExecuteCommand(NewBuild(1, entity.UnitWorker, entity.Pos(2, 2)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, violation.ErrInsufficientEnergy))
	assert.Equal(t, before, f.snapshot())
	assert.False(t, f.mgr.CanUndo())
}

func TestBuildUndoRedoKeepsIDs(t *testing.T) {
	f := newFixture(t)
	f.world.phase = rules.PhaseBuild
	before := f.snapshot()

	build := NewBuild(1, entity.UnitScout, entity.Pos(2, 1))
	require.NoError(t, f.mgr.ExecuteCommand(build))

	created := f.unit(build.UnitID())
	require.NotNil(t, created)
	assert.Equal(t, entity.UnitScout, created.Type)
	assert.Equal(t, 40, created.Health)
	assert.True(t, f.player(1).UnitIDs.Has(created.ID))
	assert.Equal(t, 5, f.player(1).Energy)
	assert.Equal(t, 2, f.player(1).ActionsRemaining)
	require.Len(t, build.Events(), 1)
	assert.Equal(t, rules.EventUnitCreated, build.Events()[0].Type)

	id := build.UnitID()
	_, err := f.mgr.Undo()
	require.NoError(t, err)
	assert.Equal(t, before, f.snapshot())

	_, err = f.mgr.Redo()
	require.NoError(t, err)
	assert.Equal(t, id, build.UnitID(), "redo recreates the same id")
	assert.NotNil(t, f.unit(id))
}

func TestBuildRequiresAdjacentFreeCell(t *testing.T) {
	f := newFixture(t)
	f.world.phase = rules.PhaseBuild

	err := f.mgr.ExecuteCommand(NewBuild(1, entity.UnitWorker, entity.Pos(4, 4)))
	assert.True(t, errors.Is(err, violation.ErrNotAdjacent))

	err = f.mgr.ExecuteCommand(NewBuild(1, entity.UnitWorker, f.base1.Position))
	assert.True(t, errors.Is(err, violation.ErrOccupiedCell))

	err = f.mgr.ExecuteCommand(NewBuild(1, entity.UnitType("dragon"), entity.Pos(2, 2)))
	assert.True(t, errors.Is(err, violation.ErrUnknownUnitType))
}

func TestGatherDepletesNodeThenYieldsZero(t *testing.T) {
	f := newFixture(t)
	f.world.phase = rules.PhaseResource
	f.worker.Position = entity.Pos(11, 11)

	first := NewGather(1, f.worker.ID, f.node.ID)
	require.NoError(t, f.mgr.ExecuteCommand(first))
	assert.Equal(t, 8, first.Amount())
	assert.Equal(t, 0, f.node.Value)
	assert.Equal(t, 8, f.unit(f.worker.ID).Carried)
	assert.Equal(t, 8, f.player(1).ResourcesGathered)
	require.Len(t, first.Events(), 2)
	assert.Equal(t, rules.EventResourceNodeDepleted, first.Events()[1].Type)

	second := NewGather(1, f.worker.ID, f.node.ID)
	require.NoError(t, f.mgr.ExecuteCommand(second))
	assert.Equal(t, 0, second.Amount())
	assert.Len(t, second.Events(), 1)
}

func TestGatherUndoRestoresNode(t *testing.T) {
	f := newFixture(t)
	f.world.phase = rules.PhaseResource
	f.worker.Position = entity.Pos(11, 11)
	before := f.snapshot()

	require.NoError(t, f.mgr.ExecuteCommand(NewGather(1, f.worker.ID, f.node.ID)))
	_, err := f.mgr.Undo()
	require.NoError(t, err)

	assert.Equal(t, 8, f.world.tables.Nodes[f.node.ID].Value)
	assert.Equal(t, before, f.snapshot())
}

func TestGatherRejections(t *testing.T) {
	f := newFixture(t)
	f.world.phase = rules.PhaseResource

	err := f.mgr.ExecuteCommand(NewGather(1, f.worker.ID, f.node.ID))
	assert.True(t, errors.Is(err, violation.ErrNotAdjacent))

	scout := f.addUnit(t, entity.UnitScout, 1, entity.Pos(13, 13))
	err = f.mgr.ExecuteCommand(NewGather(1, scout.ID, f.node.ID))
	assert.True(t, errors.Is(err, violation.ErrCannotGather))

	err = f.mgr.ExecuteCommand(NewGather(1, f.worker.ID, "node-99"))
	assert.True(t, errors.Is(err, violation.ErrNotFound))
}

func TestDepositRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.world.phase = rules.PhaseResource
	f.worker.Position = entity.Pos(2, 2)
	f.worker.Carried = 8
	before := f.snapshot()

	dep := NewDeposit(1, f.worker.ID)
	require.NoError(t, f.mgr.ExecuteCommand(dep))
	assert.Equal(t, 8, dep.Amount())
	assert.Equal(t, 28, f.player(1).Energy)
	assert.Equal(t, 0, f.unit(f.worker.ID).Carried)
	assert.Equal(t, 3, f.player(1).ActionsRemaining, "deposit is free")

	_, err := f.mgr.Undo()
	require.NoError(t, err)
	assert.Equal(t, before, f.snapshot())
}

func TestDepositCapsAtMaxEnergy(t *testing.T) {
	f := newFixture(t)
	f.world.phase = rules.PhaseResource
	f.worker.Position = entity.Pos(2, 2)
	f.worker.Carried = 10
	f.player(1).Energy = 95

	require.NoError(t, f.mgr.ExecuteCommand(NewDeposit(1, f.worker.ID)))
	assert.Equal(t, 100, f.player(1).Energy)
	assert.Equal(t, 5, f.unit(f.worker.ID).Carried)

	// With a full pool nothing can move, so the deposit is refused and
	// leaves no history entry.
	err := f.mgr.ExecuteCommand(NewDeposit(1, f.worker.ID))
	assert.True(t, errors.Is(err, violation.ErrCannotGather))
	assert.Len(t, f.mgr.History(), 1)
	assert.Equal(t, 5, f.unit(f.worker.ID).Carried)
}

func TestDepositRequiresBase(t *testing.T) {
	f := newFixture(t)
	f.world.phase = rules.PhaseResource
	f.worker.Carried = 4

	err := f.mgr.ExecuteCommand(NewDeposit(1, f.worker.ID))
	assert.True(t, errors.Is(err, violation.ErrNotAtBase))
}

func TestAttackKillAndUndo(t *testing.T) {
	f := newFixture(t)
	heavy := f.addUnit(t, entity.UnitHeavy, 1, entity.Pos(14, 15))
	f.enemy.Health = 20
	before := f.snapshot()

	attack := NewAttack(1, heavy.ID, f.enemy.ID)
	require.NoError(t, f.mgr.ExecuteCommand(attack))

	target := f.unit(f.enemy.ID)
	assert.Equal(t, 0, target.Health)
	assert.False(t, target.Alive)
	assert.False(t, f.player(2).UnitIDs.Has(f.enemy.ID))
	assert.Equal(t, 25, f.player(1).Score, "kill scores the victim's cost")
	assert.True(t, attack.Outcome().Destroyed)

	types := make([]rules.EventType, 0, 2)
	for _, e := range attack.Events() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []rules.EventType{rules.EventUnitAttacked, rules.EventUnitDestroyed}, types)

	_, err := f.mgr.Undo()
	require.NoError(t, err)
	assert.Equal(t, before, f.snapshot())
	assert.True(t, f.unit(f.enemy.ID).Alive)
}

func TestAttackDestroysBase(t *testing.T) {
	f := newFixture(t)
	attacker := f.addUnit(t, entity.UnitInfantry, 1, entity.Pos(22, 22))
	f.base2.MaxHealth = 10
	f.base2.Health = 10
	f.base2.Defense = 2
	attacker.Attack = 12

	attack := NewAttack(1, attacker.ID, f.base2.ID)
	require.NoError(t, f.mgr.ExecuteCommand(attack))
	assert.Equal(t, 10, attack.Outcome().Damage)
	assert.True(t, attack.Outcome().BaseDestroyed)
	assert.True(t, f.base2.Destroyed)
	assert.Empty(t, f.player(2).BaseIDs)
	assert.Equal(t, BaseDestroyedScore, f.player(1).Score)
}

func TestAttackRejectsFriendlyFire(t *testing.T) {
	f := newFixture(t)
	ally := f.addUnit(t, entity.UnitScout, 1, entity.Pos(5, 6))

	err := f.mgr.ExecuteCommand(NewAttack(1, f.worker.ID, ally.ID))
	assert.True(t, errors.Is(err, violation.ErrFriendlyFire))

	err = f.mgr.ExecuteCommand(NewAttack(1, f.worker.ID, f.enemy.ID))
	assert.True(t, errors.Is(err, violation.ErrOutOfRange))
}

func TestUndoRedoOnEmptyStacks(t *testing.T) {
	f := newFixture(t)

	_, err := f.mgr.Undo()
	assert.True(t, errors.Is(err, violation.ErrNothingToUndo))
	_, err = f.mgr.Redo()
	assert.True(t, errors.Is(err, violation.ErrNothingToRedo))
}

func TestNewCommandClearsRedo(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.mgr.ExecuteCommand(NewMove(1, f.worker.ID, entity.Pos(6, 6))))
	_, err := f.mgr.Undo()
	require.NoError(t, err)
	require.True(t, f.mgr.CanRedo())

	require.NoError(t, f.mgr.ExecuteCommand(NewMove(1, f.worker.ID, entity.Pos(5, 6))))
	assert.False(t, f.mgr.CanRedo())

	history := f.mgr.History()
	require.Len(t, history, 1)
	assert.Equal(t, KindMove, history[0].Kind)
	assert.Equal(t, 1, history[0].PlayerID)
}

func TestUndoRefusedAfterGameOver(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mgr.ExecuteCommand(NewMove(1, f.worker.ID, entity.Pos(6, 6))))
	f.world.over = true

	_, err := f.mgr.Undo()
	assert.True(t, errors.Is(err, violation.ErrGameOver))
}

// panicCommand spends energy and then panics mid-execution.
type panicCommand struct{}

func (panicCommand) Kind() Kind            { return "panic" }
func (panicCommand) Actor() int            { return 1 }
func (panicCommand) Validate(World) error  { return nil }
func (panicCommand) Undo(World) error      { return nil }
func (panicCommand) Description() string   { return "panics" }
func (panicCommand) Events() []rules.Event { return nil }
func (panicCommand) Execute(w World) error {
	p, _ := w.Player(1)
	p.Energy = 0
	panic("boom")
}

func TestExecutePanicRestoresWorld(t *testing.T) {
	f := newFixture(t)
	before := f.snapshot()

	err := f.mgr.ExecuteCommand(panicCommand{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, violation.ErrExecutionFailed))
	assert.Equal(t, before, f.snapshot())
	assert.Equal(t, 20, f.player(1).Energy)
	assert.False(t, f.mgr.CanUndo())
}

func TestRequestBuild(t *testing.T) {
	cmd, err := Request{Kind: KindMove, PlayerID: 1, UnitID: "unit-3", X: 6, Y: 6}.Build()
	require.NoError(t, err)
	move, ok := cmd.(*Move)
	require.True(t, ok)
	assert.Equal(t, entity.Pos(6, 6), move.To)

	cmd, err = Request{Kind: KindAttack, PlayerID: 2, UnitID: "unit-4", TargetID: "base-1"}.Build()
	require.NoError(t, err)
	assert.Equal(t, KindAttack, cmd.Kind())
	assert.Equal(t, 2, cmd.Actor())

	_, err = Request{Kind: KindGather, PlayerID: 1, UnitID: "unit-3"}.Build()
	assert.Error(t, err, "gather needs a node")

	_, err = Request{Kind: "teleport"}.Build()
	assert.Error(t, err)
}

func TestRequestBuildReportsEveryField(t *testing.T) {
	cmd, err := Request{Kind: KindBuild, PlayerID: 1, UnitType: entity.UnitWorker, X: 2, Y: 1}.Build()
	require.NoError(t, err)
	assert.Equal(t, KindBuild, cmd.Kind())

	_, err = Request{Kind: KindBuild, PlayerID: 1, UnitType: "dragon", X: 30, Y: -1}.Build()
	require.Error(t, err)
	assert.Equal(t, violation.CodeUnknownUnitType, violation.CodeOf(err))

	var v *violation.Error
	require.True(t, errors.As(err, &v))
	assert.Equal(t, "unit_type", v.Metadata["field"])
	assert.Equal(t, "unit_type,x,y", v.Metadata["fields"])

	_, err = Request{Kind: KindBuild, PlayerID: 3, UnitType: entity.UnitScout, X: 2, Y: 1}.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner id")
}
