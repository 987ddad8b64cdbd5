package rules

import (
	"fmt"
	"strings"

	"github.com/thraizz/skirmish-server-go/internal/game/violation"
)

// Phase is a sub-stage of a player's turn gating which commands are legal.
type Phase int

const (
	PhaseResource Phase = iota
	PhaseAction
	PhaseBuild
)

var phaseNames = map[Phase]string{
	PhaseResource: "RESOURCE",
	PhaseAction:   "ACTION",
	PhaseBuild:    "BUILD",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PHASE_%d", int(p))
}

// ParsePhase converts a phase name back to a Phase.
func ParsePhase(s string) (Phase, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for p, name := range phaseNames {
		if name == want {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", s)
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	if _, ok := phaseNames[p]; !ok {
		return nil, fmt.Errorf("unknown phase %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// turnSequence is the fixed order of phases within a turn.
var turnSequence = []Phase{PhaseResource, PhaseAction, PhaseBuild}

// TurnManager tracks the active player, the turn counter and the current phase.
// Transitions are one-directional and cyclic until Stop is called.
type TurnManager struct {
	orderIndex   int
	turnNumber   int
	activePlayer int
	stopped      bool
}

// NewTurnManager creates a turn manager at turn 1, resource phase.
func NewTurnManager(activePlayer int) *TurnManager {
	return &TurnManager{
		orderIndex:   0,
		turnNumber:   1,
		activePlayer: activePlayer,
	}
}

// RestoreTurnManager rebuilds a turn manager from persisted counters.
func RestoreTurnManager(turnNumber int, phase Phase, activePlayer int, stopped bool) (*TurnManager, error) {
	if turnNumber < 1 {
		return nil, fmt.Errorf("turn number must be positive, got %d", turnNumber)
	}
	idx := -1
	for i, p := range turnSequence {
		if p == phase {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("unknown phase %d", int(phase))
	}
	return &TurnManager{
		orderIndex:   idx,
		turnNumber:   turnNumber,
		activePlayer: activePlayer,
		stopped:      stopped,
	}, nil
}

// CurrentPhase returns the phase currently in progress.
func (tm *TurnManager) CurrentPhase() Phase {
	return turnSequence[tm.orderIndex]
}

// TurnNumber returns the current turn number (1-based).
func (tm *TurnManager) TurnNumber() int {
	return tm.turnNumber
}

// ActivePlayer returns the player who currently has the turn.
func (tm *TurnManager) ActivePlayer() int {
	return tm.activePlayer
}

// Stopped reports whether the match has ended.
func (tm *TurnManager) Stopped() bool {
	return tm.stopped
}

// Stop freezes the machine; later transitions are refused.
func (tm *TurnManager) Stop() {
	tm.stopped = true
}

// WrapsOnAdvance reports whether the next Advance ends the current turn.
func (tm *TurnManager) WrapsOnAdvance() bool {
	return tm.orderIndex == len(turnSequence)-1
}

// Advance moves to the next phase. When the last phase is left, the turn number
// is incremented and nextActivePlayer takes the turn. wrapped reports that case.
func (tm *TurnManager) Advance(nextActivePlayer int) (phase Phase, wrapped bool, err error) {
	if tm.stopped {
		return tm.CurrentPhase(), false, violation.New(violation.CodeGameOver, "match has ended; no further transitions")
	}

	tm.orderIndex++
	if tm.orderIndex >= len(turnSequence) {
		tm.orderIndex = 0
		tm.turnNumber++
		tm.activePlayer = nextActivePlayer
		wrapped = true
	}

	return tm.CurrentPhase(), wrapped, nil
}
