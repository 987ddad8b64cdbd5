package entity

import (
	"fmt"
	"strings"

	"github.com/thraizz/skirmish-server-go/internal/game/violation"
)

// IDGenerator hands out unique entity ids.
type IDGenerator interface {
	NextID(prefix string) string
}

// FactoryConfig holds the tunable starting values for non-unit entities.
type FactoryConfig struct {
	StartingEnergy   int
	MaxEnergy        int
	ActionsPerTurn   int
	BaseMaxHealth    int
	BaseDefense      int
	NodeMaxValue     int
	RegenerationRate int
}

// DefaultFactoryConfig returns the product defaults.
func DefaultFactoryConfig() FactoryConfig {
	return FactoryConfig{
		StartingEnergy:   20,
		MaxEnergy:        100,
		ActionsPerTurn:   3,
		BaseMaxHealth:    200,
		BaseDefense:      5,
		NodeMaxValue:     100,
		RegenerationRate: 5,
	}
}

// UnitOverrides replaces individual template stats. Zero fields keep the template value.
type UnitOverrides struct {
	MaxHealth     int
	Attack        int
	Defense       int
	MovementRange int
	MaxActions    int
}

// BaseOverrides replaces base defaults. Zero fields keep the configured value.
type BaseOverrides struct {
	MaxHealth int
	Defense   int
}

// Factory constructs well-formed entities. It is the single source of unit stats.
type Factory struct {
	cfg FactoryConfig
	ids IDGenerator
}

// NewFactory creates a factory drawing ids from ids.
func NewFactory(cfg FactoryConfig, ids IDGenerator) *Factory {
	return &Factory{cfg: cfg, ids: ids}
}

// Config returns the factory configuration.
func (f *Factory) Config() FactoryConfig {
	return f.cfg
}

// CreatePlayer builds a player with starting energy and a full action budget.
func (f *Factory) CreatePlayer(id int) (*Player, error) {
	if id != 1 && id != 2 {
		return nil, violation.Newf(violation.CodeNotFound, "player id must be 1 or 2, got %d", id)
	}
	return &Player{
		ID:               id,
		Energy:           f.cfg.StartingEnergy,
		MaxEnergy:        f.cfg.MaxEnergy,
		ActionsRemaining: f.cfg.ActionsPerTurn,
		MaxActions:       f.cfg.ActionsPerTurn,
		UnitIDs:          IDSet{},
		BaseIDs:          IDSet{},
		Active:           true,
	}, nil
}

// CreateUnit builds a unit of type t from its template.
func (f *Factory) CreateUnit(t UnitType, ownerID int, pos Position) (*Unit, error) {
	return f.CreateUnitWith(t, ownerID, pos, UnitOverrides{})
}

// CreateUnitWith builds a unit of type t, replacing the stats set in ov.
func (f *Factory) CreateUnitWith(t UnitType, ownerID int, pos Position, ov UnitOverrides) (*Unit, error) {
	tpl, ok := Template(t)
	if !ok {
		return nil, violation.Newf(violation.CodeUnknownUnitType, "unknown unit type %q", t)
	}
	if !pos.InBounds() {
		return nil, violation.Newf(violation.CodeOutOfBounds, "position %s is outside the grid", pos)
	}
	u := &Unit{
		Type:          t,
		OwnerID:       ownerID,
		Position:      pos,
		MaxHealth:     pick(ov.MaxHealth, tpl.MaxHealth),
		Attack:        pick(ov.Attack, tpl.Attack),
		Defense:       pick(ov.Defense, tpl.Defense),
		MovementRange: pick(ov.MovementRange, tpl.MovementRange),
		MaxActions:    pick(ov.MaxActions, tpl.MaxActions),
		CarryCapacity: tpl.CarryCapacity,
	}
	u.SetHealth(u.MaxHealth)
	u.ID = f.ids.NextID("unit")
	return u, nil
}

// CreateBase builds a base with the configured health and defense.
func (f *Factory) CreateBase(ownerID int, pos Position) (*Base, error) {
	return f.CreateBaseWith(ownerID, pos, BaseOverrides{})
}

// CreateBaseWith builds a base, replacing the values set in ov.
func (f *Factory) CreateBaseWith(ownerID int, pos Position, ov BaseOverrides) (*Base, error) {
	if !pos.InBounds() {
		return nil, violation.Newf(violation.CodeOutOfBounds, "position %s is outside the grid", pos)
	}
	b := &Base{
		OwnerID:   ownerID,
		Position:  pos,
		MaxHealth: pick(ov.MaxHealth, f.cfg.BaseMaxHealth),
		Defense:   pick(ov.Defense, f.cfg.BaseDefense),
	}
	b.SetHealth(b.MaxHealth)
	b.ID = f.ids.NextID("base")
	return b, nil
}

// CreateResourceNode builds a node holding initialValue (clamped to the node maximum).
func (f *Factory) CreateResourceNode(pos Position, initialValue int) (*ResourceNode, error) {
	if !pos.InBounds() {
		return nil, violation.Newf(violation.CodeOutOfBounds, "position %s is outside the grid", pos)
	}
	n := &ResourceNode{
		Position:         pos,
		MaxValue:         f.cfg.NodeMaxValue,
		RegenerationRate: f.cfg.RegenerationRate,
	}
	n.SetValue(initialValue)
	n.ID = f.ids.NextID("node")
	return n, nil
}

func pick(override, fallback int) int {
	if override != 0 {
		return override
	}
	return fallback
}

// EntityKind names the record a CreationRequest describes.
type EntityKind string

const (
	KindUnit         EntityKind = "unit"
	KindBase         EntityKind = "base"
	KindResourceNode EntityKind = "resource_node"
	KindPlayer       EntityKind = "player"
)

// CreationRequest is an untrusted description of an entity to create, typically
// decoded from a transport payload before it reaches the factory.
type CreationRequest struct {
	Kind     EntityKind
	UnitType UnitType
	OwnerID  int
	X        *int
	Y        *int
}

// FieldError describes one problem with a CreationRequest.
type FieldError struct {
	Field   string
	Code    violation.Code
	Message string
}

// ValidationResult captures every problem found, not just the first one.
type ValidationResult struct {
	OK     bool
	Errors []FieldError
}

// Err folds every problem into one violation coded after the first. The
// metadata names the first field and lists all of them.
func (r ValidationResult) Err() error {
	if r.OK || len(r.Errors) == 0 {
		return nil
	}
	fields := make([]string, 0, len(r.Errors))
	messages := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		fields = append(fields, e.Field)
		messages = append(messages, e.Message)
	}
	first := r.Errors[0]
	return violation.WithMetadata(first.Code, strings.Join(messages, "; "), map[string]string{
		"field":  first.Field,
		"fields": strings.Join(fields, ","),
	})
}

func (r *ValidationResult) add(field string, code violation.Code, format string, args ...any) {
	r.OK = false
	r.Errors = append(r.Errors, FieldError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
}

// ValidateCreation checks a request without constructing anything.
func ValidateCreation(req CreationRequest) ValidationResult {
	result := ValidationResult{OK: true}

	switch req.Kind {
	case KindUnit, KindBase, KindResourceNode, KindPlayer:
	case "":
		result.add("kind", violation.CodeNotFound, "kind is required")
	default:
		result.add("kind", violation.CodeNotFound, "unknown entity kind %q", req.Kind)
	}

	if req.Kind == KindUnit {
		if req.UnitType == "" {
			result.add("unit_type", violation.CodeUnknownUnitType, "unit type is required")
		} else if _, ok := Template(req.UnitType); !ok {
			result.add("unit_type", violation.CodeUnknownUnitType, "unknown unit type %q", req.UnitType)
		}
	}

	if req.Kind == KindUnit || req.Kind == KindBase || req.Kind == KindPlayer {
		if req.OwnerID != 1 && req.OwnerID != 2 {
			result.add("owner_id", violation.CodeNotFound, "owner id must be 1 or 2, got %d", req.OwnerID)
		}
	}

	if req.Kind == KindPlayer {
		return result
	}
	if req.X == nil {
		result.add("x", violation.CodeOutOfBounds, "x is required")
	} else if *req.X < 0 || *req.X >= GridWidth {
		result.add("x", violation.CodeOutOfBounds, "x=%d is outside [0,%d)", *req.X, GridWidth)
	}
	if req.Y == nil {
		result.add("y", violation.CodeOutOfBounds, "y is required")
	} else if *req.Y < 0 || *req.Y >= GridHeight {
		result.add("y", violation.CodeOutOfBounds, "y=%d is outside [0,%d)", *req.Y, GridHeight)
	}

	return result
}
