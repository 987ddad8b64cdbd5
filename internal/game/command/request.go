package command

import (
	"github.com/thraizz/skirmish-server-go/internal/game/entity"
	"github.com/thraizz/skirmish-server-go/internal/game/violation"
)

// Request is the transport form of a command.
type Request struct {
	Kind     Kind            `json:"kind"`
	PlayerID int             `json:"playerId"`
	UnitID   string          `json:"unitId,omitempty"`
	TargetID string          `json:"targetId,omitempty"`
	NodeID   string          `json:"nodeId,omitempty"`
	UnitType entity.UnitType `json:"unitType,omitempty"`
	X        int             `json:"x"`
	Y        int             `json:"y"`
}

// Build turns the request into a command. Only structural problems are
// reported here; rule checks happen in Validate.
func (r Request) Build() (Command, error) {
	need := func(field, value string) error {
		if value == "" {
			return violation.Newf(violation.CodeInvalidTarget, "%s command requires %s", r.Kind, field)
		}
		return nil
	}

	switch r.Kind {
	case KindMove:
		if err := need("unitId", r.UnitID); err != nil {
			return nil, err
		}
		return NewMove(r.PlayerID, r.UnitID, entity.Pos(r.X, r.Y)), nil
	case KindAttack:
		if err := need("unitId", r.UnitID); err != nil {
			return nil, err
		}
		if err := need("targetId", r.TargetID); err != nil {
			return nil, err
		}
		return NewAttack(r.PlayerID, r.UnitID, r.TargetID), nil
	case KindBuild:
		x, y := r.X, r.Y
		check := entity.ValidateCreation(entity.CreationRequest{
			Kind:     entity.KindUnit,
			UnitType: r.UnitType,
			OwnerID:  r.PlayerID,
			X:        &x,
			Y:        &y,
		})
		if err := check.Err(); err != nil {
			return nil, err
		}
		return NewBuild(r.PlayerID, r.UnitType, entity.Pos(r.X, r.Y)), nil
	case KindGather:
		if err := need("unitId", r.UnitID); err != nil {
			return nil, err
		}
		if err := need("nodeId", r.NodeID); err != nil {
			return nil, err
		}
		return NewGather(r.PlayerID, r.UnitID, r.NodeID), nil
	case KindDeposit:
		if err := need("unitId", r.UnitID); err != nil {
			return nil, err
		}
		return NewDeposit(r.PlayerID, r.UnitID), nil
	default:
		return nil, violation.Newf(violation.CodeInvalidTarget, "unknown command kind %q", r.Kind)
	}
}
