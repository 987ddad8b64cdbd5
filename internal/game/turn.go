package game

import (
	"github.com/thraizz/skirmish-server-go/internal/game/rules"
	"github.com/thraizz/skirmish-server-go/internal/game/violation"
	"go.uber.org/zap"
)

// NextPhase advances the turn machine. Leaving the build phase ends the turn:
// the turn counter increments, the opponent becomes active with a fresh action
// budget, every node regenerates once and the undo history is dropped.
func (g *Game) NextPhase() (rules.Phase, error) {
	if g.state.Result != nil {
		return g.turns.CurrentPhase(), violation.New(violation.CodeGameOver, "match has ended")
	}

	wrapping := g.turns.WrapsOnAdvance()
	outgoing := g.turns.ActivePlayer()
	turn := g.turns.TurnNumber()

	if wrapping && g.cfg.MaxTurns > 0 && turn >= g.cfg.MaxTurns {
		g.publish(rules.TurnEnded{Turn: turn, PlayerID: outgoing})
		g.finish(draw(ReasonTurnLimit, turn))
		return g.turns.CurrentPhase(), nil
	}

	from := g.turns.CurrentPhase()
	to, wrapped, err := g.turns.Advance(opponent(outgoing))
	if err != nil {
		return from, err
	}

	if !wrapped {
		g.publish(rules.PhaseChanged{Turn: turn, PlayerID: outgoing, From: from, To: to})
		return to, nil
	}

	g.emitAt(turn, rules.TurnEnded{Turn: turn, PlayerID: outgoing})
	incoming := g.turns.ActivePlayer()
	g.startTurn(incoming)
	g.publish(rules.PhaseChanged{Turn: g.turns.TurnNumber(), PlayerID: incoming, From: from, To: to})
	return to, nil
}

// startTurn applies the turn-wrap side effects for the incoming player.
func (g *Game) startTurn(playerID int) {
	if p, ok := g.state.Players[playerID]; ok {
		p.ActionsRemaining = p.MaxActions
	}
	for _, u := range g.state.Units {
		if u.OwnerID == playerID {
			u.ActionsUsed = 0
		}
	}

	restored := g.resources.RegenerateAll(g.state.sortedNodes())
	g.commands.Clear()

	g.logger.Debug("turn started",
		zap.Int("turn", g.turns.TurnNumber()),
		zap.Int("player_id", playerID),
		zap.Int("regenerated", restored),
	)
	g.publish(
		rules.ResourcesRegenerated{Turn: g.turns.TurnNumber(), Amount: restored},
		rules.TurnStarted{Turn: g.turns.TurnNumber(), PlayerID: playerID},
	)
}

func (g *Game) emitAt(turn int, p rules.Payload) {
	evt := rules.NewEvent(p)
	evt.GameID = g.id
	evt.Turn = turn
	g.bus.Publish(evt)
}

// EndTurn advances through the remaining phases until the turn passes to the
// opponent or the match ends.
func (g *Game) EndTurn() error {
	turn := g.turns.TurnNumber()
	for g.state.Result == nil && g.turns.TurnNumber() == turn {
		if _, err := g.NextPhase(); err != nil {
			return err
		}
	}
	return nil
}
