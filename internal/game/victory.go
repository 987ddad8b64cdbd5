package game

import (
	"github.com/thraizz/skirmish-server-go/internal/game/entity"
)

// CheckVictory evaluates the end conditions in priority order and finishes the
// match when one holds:
//  1. a base destroyed: the opponent wins (both at once is a draw)
//  2. elimination: no living units, no standing base and not enough energy
//     to recruit
//  3. resource threshold, when configured
//
// It returns the result, or nil while the match continues.
func (g *Game) CheckVictory() *Result {
	if g.state.Result != nil {
		return g.state.Result.Clone()
	}
	turn := g.turns.TurnNumber()

	lost1 := g.baseLost(1)
	lost2 := g.baseLost(2)
	switch {
	case lost1 && lost2:
		g.finish(draw(ReasonMutualDestruction, turn))
	case lost1:
		g.finish(win(2, ReasonBaseDestroyed, turn))
	case lost2:
		g.finish(win(1, ReasonBaseDestroyed, turn))
	}
	if g.state.Result != nil {
		return g.state.Result.Clone()
	}

	out1 := g.eliminated(1)
	out2 := g.eliminated(2)
	switch {
	case out1 && out2:
		g.state.Players[1].Active = false
		g.state.Players[2].Active = false
		g.finish(draw(ReasonElimination, turn))
	case out1:
		g.state.Players[1].Active = false
		g.finish(win(2, ReasonElimination, turn))
	case out2:
		g.state.Players[2].Active = false
		g.finish(win(1, ReasonElimination, turn))
	}
	if g.state.Result != nil {
		return g.state.Result.Clone()
	}

	if threshold := g.cfg.ResourceVictoryThreshold; threshold > 0 {
		r1 := g.state.Players[1].ResourcesGathered >= threshold
		r2 := g.state.Players[2].ResourcesGathered >= threshold
		switch {
		case r1 && r2:
			g.finish(draw(ReasonResourceThreshold, turn))
		case r1:
			g.finish(win(1, ReasonResourceThreshold, turn))
		case r2:
			g.finish(win(2, ReasonResourceThreshold, turn))
		}
	}
	return g.state.Result.Clone()
}

// baseLost reports whether the player has no standing base left.
func (g *Game) baseLost(playerID int) bool {
	p, ok := g.state.Players[playerID]
	return ok && len(p.BaseIDs) == 0
}

// eliminated reports whether the player has no living units, no standing base
// and cannot recruit another unit.
func (g *Game) eliminated(playerID int) bool {
	p, ok := g.state.Players[playerID]
	if !ok {
		return false
	}
	if len(p.BaseIDs) > 0 || len(g.state.livingUnits(playerID)) > 0 {
		return false
	}
	return p.Energy < entity.CheapestUnitCost()
}
