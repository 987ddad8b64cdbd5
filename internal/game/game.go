// Package game composes entities, the turn machine and the command layer into
// one match aggregate, and manages many matches for the server.
package game

import (
	"fmt"

	"github.com/thraizz/skirmish-server-go/internal/game/combat"
	"github.com/thraizz/skirmish-server-go/internal/game/command"
	"github.com/thraizz/skirmish-server-go/internal/game/entity"
	"github.com/thraizz/skirmish-server-go/internal/game/resources"
	"github.com/thraizz/skirmish-server-go/internal/game/rules"
	"github.com/thraizz/skirmish-server-go/internal/game/violation"
	"github.com/thraizz/skirmish-server-go/internal/game/watchers"
	"go.uber.org/zap"
)

// Config controls match setup and optional rules.
type Config struct {
	Factory entity.FactoryConfig
	// BasePositions holds the base cell for player 1 and player 2.
	BasePositions [2]entity.Position
	NodePositions []entity.Position
	// NodeInitialValue of 0 starts nodes full.
	NodeInitialValue int
	StartingWorkers  int
	// MaxTurns of 0 disables the turn limit.
	MaxTurns int
	// ResourceVictoryThreshold of 0 disables the resource win.
	ResourceVictoryThreshold int
}

// DefaultConfig returns the standard 25x25 layout.
func DefaultConfig() Config {
	return Config{
		Factory:       entity.DefaultFactoryConfig(),
		BasePositions: [2]entity.Position{entity.Pos(1, 1), entity.Pos(23, 23)},
		NodePositions: []entity.Position{
			entity.Pos(12, 12),
			entity.Pos(6, 6), entity.Pos(18, 18), entity.Pos(6, 18), entity.Pos(18, 6),
			entity.Pos(12, 5), entity.Pos(12, 19), entity.Pos(5, 12), entity.Pos(19, 12),
		},
		StartingWorkers: 1,
	}
}

// Game is one match. It is not safe for concurrent use; Manager serializes access.
type Game struct {
	id     string
	cfg    Config
	logger *zap.Logger

	state     *State
	turns     *rules.TurnManager
	bus       *rules.EventBus
	watchers  *rules.WatcherRegistry
	commands  *command.Manager
	factory   *entity.Factory
	resources *resources.Service
	combat    *combat.Resolver
}

// newGame wires the collaborators around an empty state.
func newGame(id string, cfg Config, logger *zap.Logger) *Game {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Game{
		id:        id,
		cfg:       cfg,
		logger:    logger.With(zap.String("game_id", id)),
		state:     NewState(),
		turns:     rules.NewTurnManager(1),
		bus:       rules.NewEventBus(),
		watchers:  rules.NewWatcherRegistry(),
		resources: resources.NewService(),
	}
	w := world{g: g}
	g.factory = entity.NewFactory(cfg.Factory, w)
	g.combat = combat.NewResolver(w)
	g.commands = command.NewManager(w, g.logger)

	watchers.RegisterDefaults(g.watchers)
	g.watchers.Attach(g.bus)
	return g
}

// New sets up a fresh match: two players, their bases and starting workers,
// and the resource node layout. Player 1 opens in the resource phase.
func New(id string, cfg Config, logger *zap.Logger) (*Game, error) {
	g := newGame(id, cfg, logger)
	if err := g.setup(); err != nil {
		return nil, fmt.Errorf("setup game: %w", err)
	}

	g.logger.Info("game created",
		zap.Int("nodes", len(g.state.Nodes)),
		zap.Int("starting_workers", cfg.StartingWorkers),
	)
	g.publish(rules.TurnStarted{Turn: 1, PlayerID: 1})
	return g, nil
}

func (g *Game) setup() error {
	for i, id := range []int{1, 2} {
		p, err := g.factory.CreatePlayer(id)
		if err != nil {
			return err
		}
		g.state.Players[id] = p

		base, err := g.factory.CreateBase(id, g.cfg.BasePositions[i])
		if err != nil {
			return err
		}
		g.state.Bases[base.ID] = base
		p.BaseIDs.Add(base.ID)
	}

	initial := g.cfg.NodeInitialValue
	if initial == 0 {
		initial = g.cfg.Factory.NodeMaxValue
	}
	for _, pos := range g.cfg.NodePositions {
		if _, taken := g.state.occupantAt(pos); taken {
			return violation.Newf(violation.CodeOccupiedCell, "node position %s is occupied", pos)
		}
		node, err := g.factory.CreateResourceNode(pos, initial)
		if err != nil {
			return err
		}
		g.state.Nodes[node.ID] = node
	}

	for i, id := range []int{1, 2} {
		basePos := g.cfg.BasePositions[i]
		placed := 0
		for _, pos := range towardCenter(basePos) {
			if placed == g.cfg.StartingWorkers {
				break
			}
			if !pos.InBounds() {
				continue
			}
			if _, taken := g.state.occupantAt(pos); taken {
				continue
			}
			u, err := g.factory.CreateUnit(entity.UnitWorker, id, pos)
			if err != nil {
				return err
			}
			g.state.Units[u.ID] = u
			g.state.Players[id].UnitIDs.Add(u.ID)
			placed++
		}
	}
	return nil
}

// towardCenter orders a base's neighbours so the diagonal toward the board
// centre comes first, which keeps the layout point-symmetric.
func towardCenter(base entity.Position) []entity.Position {
	dx, dy := 1, 1
	if base.X > entity.GridWidth/2 {
		dx = -1
	}
	if base.Y > entity.GridHeight/2 {
		dy = -1
	}
	return []entity.Position{
		entity.Pos(base.X+dx, base.Y+dy),
		entity.Pos(base.X+dx, base.Y),
		entity.Pos(base.X, base.Y+dy),
		entity.Pos(base.X-dx, base.Y+dy),
		entity.Pos(base.X+dx, base.Y-dy),
		entity.Pos(base.X-dx, base.Y),
		entity.Pos(base.X, base.Y-dy),
		entity.Pos(base.X-dx, base.Y-dy),
	}
}

// ID returns the match identifier.
func (g *Game) ID() string { return g.id }

// Config returns the match configuration.
func (g *Game) Config() Config { return g.cfg }

// Bus returns the event bus. Subscribers are invoked synchronously.
func (g *Game) Bus() *rules.EventBus { return g.bus }

// Watchers returns the analytics watcher registry.
func (g *Game) Watchers() *rules.WatcherRegistry { return g.watchers }

func (g *Game) publish(payloads ...rules.Payload) {
	for _, p := range payloads {
		g.emit(rules.NewEvent(p))
	}
}

func (g *Game) emit(evt rules.Event) {
	evt.GameID = g.id
	evt.Turn = g.turns.TurnNumber()
	g.bus.Publish(evt)
}

// ExecuteCommand validates and applies cmd, publishes its events and
// re-evaluates victory.
func (g *Game) ExecuteCommand(cmd command.Command) error {
	if err := g.commands.ExecuteCommand(cmd); err != nil {
		return err
	}
	for _, evt := range cmd.Events() {
		g.emit(evt)
	}
	g.CheckVictory()
	return nil
}

// Undo reverts the last command of the current turn.
func (g *Game) Undo() error {
	cmd, err := g.commands.Undo()
	if err != nil {
		return err
	}
	g.publish(rules.CommandUndone{Kind: string(cmd.Kind()), Description: cmd.Description()})
	return nil
}

// Redo re-applies the last undone command.
func (g *Game) Redo() error {
	cmd, err := g.commands.Redo()
	if err != nil {
		return err
	}
	for _, evt := range cmd.Events() {
		g.emit(evt)
	}
	g.publish(rules.CommandRedone{Kind: string(cmd.Kind()), Description: cmd.Description()})
	g.CheckVictory()
	return nil
}

// CanUndo reports whether Undo would succeed.
func (g *Game) CanUndo() bool { return g.state.Result == nil && g.commands.CanUndo() }

// CanRedo reports whether Redo has a command to apply.
func (g *Game) CanRedo() bool { return g.state.Result == nil && g.commands.CanRedo() }

// History lists the commands that can be undone, oldest first.
func (g *Game) History() []command.Entry { return g.commands.History() }

// SelectUnit announces a UI selection. It does not change state.
func (g *Game) SelectUnit(playerID int, unitID string) error {
	u, ok := g.state.Units[unitID]
	if !ok || !u.Alive {
		return violation.Newf(violation.CodeNotFound, "unit %s not found", unitID)
	}
	g.publish(rules.UnitSelected{UnitID: unitID, PlayerID: playerID})
	return nil
}

// DeselectUnit announces that a UI selection was cleared.
func (g *Game) DeselectUnit(playerID int, unitID string) {
	g.publish(rules.UnitDeselected{UnitID: unitID, PlayerID: playerID})
}

// Surrender ends the match in the opponent's favour.
func (g *Game) Surrender(playerID int) error {
	if g.state.Result != nil {
		return violation.New(violation.CodeGameOver, "match has ended")
	}
	p, ok := g.state.Players[playerID]
	if !ok {
		return violation.Newf(violation.CodeNotFound, "player %d not found", playerID)
	}
	p.Active = false
	g.publish(rules.PlayerSurrendered{PlayerID: playerID})
	g.finish(win(opponent(playerID), ReasonSurrender, g.turns.TurnNumber()))
	return nil
}

// finish records the result, stops the turn machine and drops history.
func (g *Game) finish(result *Result) {
	g.state.Result = result
	g.turns.Stop()
	g.commands.Clear()

	if result.Draw() {
		g.publish(rules.DrawDeclared{Reason: string(result.Reason)})
		g.logger.Info("match drawn", zap.String("reason", string(result.Reason)), zap.Int("turn", result.Turn))
		return
	}
	g.publish(rules.VictoryAchieved{WinnerID: *result.WinnerID, Reason: string(result.Reason)})
	g.logger.Info("match won",
		zap.Int("winner_id", *result.WinnerID),
		zap.String("reason", string(result.Reason)),
		zap.Int("turn", result.Turn),
	)
}

// Read-only projections. Returned values are copies.

// CurrentPlayer returns the player holding the turn.
func (g *Game) CurrentPlayer() entity.Player {
	return *g.state.Players[g.turns.ActivePlayer()].Clone()
}

// AllPlayers returns both players ordered by id.
func (g *Game) AllPlayers() []entity.Player {
	out := make([]entity.Player, 0, len(g.state.Players))
	for _, p := range g.state.sortedPlayers() {
		out = append(out, *p.Clone())
	}
	return out
}

// PlayerUnits returns the living units of a player.
func (g *Game) PlayerUnits(playerID int) []entity.Unit {
	var out []entity.Unit
	for _, u := range g.state.livingUnits(playerID) {
		out = append(out, *u)
	}
	return out
}

// UnitsLost counts the player's dead units. Kills that were undone are not
// counted.
func (g *Game) UnitsLost(playerID int) int {
	lost := 0
	for _, u := range g.state.Units {
		if u.OwnerID == playerID && !u.Alive {
			lost++
		}
	}
	return lost
}

// PlayerBase returns the player's base, standing or destroyed.
func (g *Game) PlayerBase(playerID int) (entity.Base, bool) {
	bases := g.state.playerBases(playerID)
	if len(bases) == 0 {
		return entity.Base{}, false
	}
	return *bases[0], true
}

// Unit returns a unit by id, including dead ones.
func (g *Game) Unit(id string) (entity.Unit, bool) {
	u, ok := g.state.Units[id]
	if !ok {
		return entity.Unit{}, false
	}
	return *u, true
}

// Nodes returns all resource nodes ordered by id.
func (g *Game) Nodes() []entity.ResourceNode {
	out := make([]entity.ResourceNode, 0, len(g.state.Nodes))
	for _, n := range g.state.sortedNodes() {
		out = append(out, *n)
	}
	return out
}

// Phase returns the current phase.
func (g *Game) Phase() rules.Phase { return g.turns.CurrentPhase() }

// Turn returns the current turn number.
func (g *Game) Turn() int { return g.turns.TurnNumber() }

// Result returns the match outcome, or nil while the match is running.
func (g *Game) Result() *Result { return g.state.Result.Clone() }

// Activity returns the analytics tallies for a player.
func (g *Game) Activity(playerID int) watchers.Activity {
	return watchers.Summarize(g.watchers, playerID)
}
