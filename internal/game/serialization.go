package game

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/thraizz/skirmish-server-go/internal/game/command"
	"github.com/thraizz/skirmish-server-go/internal/game/entity"
	"github.com/thraizz/skirmish-server-go/internal/game/rules"
	"github.com/thraizz/skirmish-server-go/internal/game/violation"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// SnapshotVersion is the serialized document format version.
const SnapshotVersion = 1

// HistoryMeta describes the command stacks at snapshot time. The commands
// themselves are not persisted; a restored match starts with empty history.
type HistoryMeta struct {
	UndoDepth int            `json:"undoDepth"`
	RedoDepth int            `json:"redoDepth"`
	Last      *command.Entry `json:"last,omitempty"`
}

// Snapshot is the complete, self-contained serialized match. Entity lists are
// ordered by id so equal states encode to equal bytes.
type Snapshot struct {
	Version         int                    `json:"version"`
	GameID          string                 `json:"gameId"`
	TurnNumber      int                    `json:"turnNumber"`
	CurrentPhase    rules.Phase            `json:"currentPhase"`
	CurrentPlayerID int                    `json:"currentPlayerId"`
	NextID          int                    `json:"nextId"`
	Players         []*entity.Player       `json:"players"`
	Units           []*entity.Unit         `json:"units"`
	Bases           []*entity.Base         `json:"bases"`
	ResourceNodes   []*entity.ResourceNode `json:"resourceNodes"`
	Result          *Result                `json:"result,omitempty"`
	History         HistoryMeta            `json:"history"`
}

// Snapshot captures the current match as a detached document.
func (g *Game) Snapshot() *Snapshot {
	s := g.state.Clone()
	snap := &Snapshot{
		Version:         SnapshotVersion,
		GameID:          g.id,
		TurnNumber:      g.turns.TurnNumber(),
		CurrentPhase:    g.turns.CurrentPhase(),
		CurrentPlayerID: g.turns.ActivePlayer(),
		NextID:          s.NextID,
		Players:         s.sortedPlayers(),
		Units:           s.sortedUnits(),
		Bases:           s.sortedBases(),
		ResourceNodes:   s.sortedNodes(),
		Result:          s.Result,
		History: HistoryMeta{
			UndoDepth: g.commands.UndoDepth(),
			RedoDepth: g.commands.RedoDepth(),
		},
	}
	if last, ok := g.commands.Last(); ok {
		snap.History.Last = &last
	}
	return snap
}

// Serialize encodes the match as JSON.
func (g *Game) Serialize() ([]byte, error) {
	data, err := json.Marshal(g.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// Checksum returns the hex blake2b-256 digest of the match state. Command
// history and the game id are excluded, so two matches in the same position
// share a checksum.
func (g *Game) Checksum() (string, error) {
	return g.Snapshot().Checksum()
}

// Checksum returns the hex blake2b-256 digest of the snapshot's state fields.
func (s *Snapshot) Checksum() (string, error) {
	canonical := *s
	canonical.GameID = ""
	canonical.History = HistoryMeta{}
	data, err := json.Marshal(&canonical)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Deserialize rebuilds a match from Serialize output. The document is fully
// validated; any inconsistency yields an INVALID_SNAPSHOT violation.
func Deserialize(data []byte, cfg Config, logger *zap.Logger) (*Game, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, violation.Newf(violation.CodeInvalidSnapshot, "decode snapshot: %v", err)
	}
	return Restore(&snap, cfg, logger)
}

// Restore rebuilds a match from a decoded snapshot.
func Restore(snap *Snapshot, cfg Config, logger *zap.Logger) (*Game, error) {
	if snap.Version != SnapshotVersion {
		return nil, violation.Newf(violation.CodeInvalidSnapshot, "unsupported snapshot version %d", snap.Version)
	}
	if snap.CurrentPlayerID != 1 && snap.CurrentPlayerID != 2 {
		return nil, violation.Newf(violation.CodeInvalidSnapshot, "current player must be 1 or 2, got %d", snap.CurrentPlayerID)
	}

	state, err := stateFromSnapshot(snap)
	if err != nil {
		return nil, err
	}

	turns, err := rules.RestoreTurnManager(snap.TurnNumber, snap.CurrentPhase, snap.CurrentPlayerID, state.Result != nil)
	if err != nil {
		return nil, violation.Newf(violation.CodeInvalidSnapshot, "%v", err)
	}

	g := newGame(snap.GameID, cfg, logger)
	g.state = state
	g.turns = turns
	g.logger.Info("game restored",
		zap.Int("turn", snap.TurnNumber),
		zap.Stringer("phase", snap.CurrentPhase),
	)
	return g, nil
}

func stateFromSnapshot(snap *Snapshot) (*State, error) {
	invalid := func(format string, args ...any) error {
		return violation.Newf(violation.CodeInvalidSnapshot, format, args...)
	}

	s := NewState()
	s.NextID = snap.NextID
	s.Result = snap.Result.Clone()

	for _, p := range snap.Players {
		if p == nil || (p.ID != 1 && p.ID != 2) {
			return nil, invalid("invalid player record")
		}
		if _, dup := s.Players[p.ID]; dup {
			return nil, invalid("duplicate player %d", p.ID)
		}
		if p.Energy < 0 || p.Energy > p.MaxEnergy {
			return nil, invalid("player %d energy %d outside [0,%d]", p.ID, p.Energy, p.MaxEnergy)
		}
		c := p.Clone()
		if c.UnitIDs == nil {
			c.UnitIDs = entity.IDSet{}
		}
		if c.BaseIDs == nil {
			c.BaseIDs = entity.IDSet{}
		}
		s.Players[p.ID] = c
	}
	if len(s.Players) != 2 {
		return nil, invalid("expected 2 players, got %d", len(s.Players))
	}

	for _, u := range snap.Units {
		if u == nil || u.ID == "" {
			return nil, invalid("invalid unit record")
		}
		if _, dup := s.Units[u.ID]; dup {
			return nil, invalid("duplicate unit %s", u.ID)
		}
		if _, ok := entity.Template(u.Type); !ok {
			return nil, invalid("unit %s has unknown type %q", u.ID, u.Type)
		}
		if _, ok := s.Players[u.OwnerID]; !ok {
			return nil, invalid("unit %s has unknown owner %d", u.ID, u.OwnerID)
		}
		if u.Health < 0 || u.Health > u.MaxHealth || u.Alive != (u.Health > 0) {
			return nil, invalid("unit %s health %d/%d inconsistent with alive=%t", u.ID, u.Health, u.MaxHealth, u.Alive)
		}
		if !u.Position.InBounds() {
			return nil, invalid("unit %s at %s is outside the grid", u.ID, u.Position)
		}
		s.Units[u.ID] = u.Clone()
	}

	for _, b := range snap.Bases {
		if b == nil || b.ID == "" {
			return nil, invalid("invalid base record")
		}
		if _, dup := s.Bases[b.ID]; dup {
			return nil, invalid("duplicate base %s", b.ID)
		}
		if _, ok := s.Players[b.OwnerID]; !ok {
			return nil, invalid("base %s has unknown owner %d", b.ID, b.OwnerID)
		}
		if b.Health < 0 || b.Health > b.MaxHealth || b.Destroyed != (b.Health == 0) {
			return nil, invalid("base %s health %d/%d inconsistent with destroyed=%t", b.ID, b.Health, b.MaxHealth, b.Destroyed)
		}
		if !b.Position.InBounds() {
			return nil, invalid("base %s at %s is outside the grid", b.ID, b.Position)
		}
		s.Bases[b.ID] = b.Clone()
	}

	for _, n := range snap.ResourceNodes {
		if n == nil || n.ID == "" {
			return nil, invalid("invalid resource node record")
		}
		if _, dup := s.Nodes[n.ID]; dup {
			return nil, invalid("duplicate resource node %s", n.ID)
		}
		if n.Value < 0 || n.Value > n.MaxValue {
			return nil, invalid("resource node %s value %d outside [0,%d]", n.ID, n.Value, n.MaxValue)
		}
		if !n.Position.InBounds() {
			return nil, invalid("resource node %s at %s is outside the grid", n.ID, n.Position)
		}
		s.Nodes[n.ID] = n.Clone()
	}

	for _, p := range s.Players {
		for _, id := range p.UnitIDs {
			u, ok := s.Units[id]
			if !ok || u.OwnerID != p.ID || !u.Alive {
				return nil, invalid("player %d lists unit %s which it does not own alive", p.ID, id)
			}
		}
		for _, id := range p.BaseIDs {
			b, ok := s.Bases[id]
			if !ok || b.OwnerID != p.ID || b.Destroyed {
				return nil, invalid("player %d lists base %s which it does not own standing", p.ID, id)
			}
		}
	}

	if _, err := s.grid(); err != nil {
		return nil, invalid("overlapping occupants: %v", err)
	}
	return s, nil
}
