package command

import (
	"fmt"

	"github.com/thraizz/skirmish-server-go/internal/game/violation"
	"go.uber.org/zap"
)

// Entry describes one command on the history stacks.
type Entry struct {
	Kind        Kind   `json:"kind"`
	PlayerID    int    `json:"playerId"`
	Description string `json:"description"`
}

// Manager executes commands against a world and keeps the undo and redo stacks.
// It is not safe for concurrent use.
type Manager struct {
	world  World
	logger *zap.Logger
	undo   []Command
	redo   []Command
}

// NewManager creates a command manager for world.
func NewManager(world World, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{world: world, logger: logger}
}

// ExecuteCommand validates and applies cmd. On success the command is pushed
// to the undo stack and the redo stack is cleared. On failure the world and
// both stacks are left untouched.
func (m *Manager) ExecuteCommand(cmd Command) error {
	if cmd == nil {
		return violation.New(violation.CodeExecutionFailed, "nil command")
	}
	if err := cmd.Validate(m.world); err != nil {
		m.logger.Debug("command rejected",
			zap.String("kind", string(cmd.Kind())),
			zap.Int("player_id", cmd.Actor()),
			zap.Error(err),
		)
		return err
	}
	if err := m.guard(cmd, cmd.Execute); err != nil {
		return err
	}

	m.undo = append(m.undo, cmd)
	m.redo = nil
	m.logger.Debug("command executed",
		zap.String("kind", string(cmd.Kind())),
		zap.Int("player_id", cmd.Actor()),
		zap.String("description", cmd.Description()),
	)
	return nil
}

// Undo reverts the most recent command and moves it to the redo stack.
func (m *Manager) Undo() (Command, error) {
	if m.world.GameOver() {
		return nil, violation.New(violation.CodeGameOver, "match has ended")
	}
	if len(m.undo) == 0 {
		return nil, violation.New(violation.CodeNothingToUndo, "nothing to undo")
	}
	cmd := m.undo[len(m.undo)-1]
	if err := m.guard(cmd, cmd.Undo); err != nil {
		return nil, err
	}
	m.undo = m.undo[:len(m.undo)-1]
	m.redo = append(m.redo, cmd)
	return cmd, nil
}

// Redo re-applies the most recently undone command.
func (m *Manager) Redo() (Command, error) {
	if len(m.redo) == 0 {
		return nil, violation.New(violation.CodeNothingToRedo, "nothing to redo")
	}
	cmd := m.redo[len(m.redo)-1]
	if err := cmd.Validate(m.world); err != nil {
		return nil, err
	}
	if err := m.guard(cmd, cmd.Execute); err != nil {
		return nil, err
	}
	m.redo = m.redo[:len(m.redo)-1]
	m.undo = append(m.undo, cmd)
	return cmd, nil
}

// guard runs fn with a bookmark taken beforehand. Any error or panic rolls the
// world back to the bookmark.
func (m *Manager) guard(cmd Command, fn func(World) error) (err error) {
	bookmark := m.world.Bookmark()
	defer func() {
		if r := recover(); r != nil {
			m.world.Restore(bookmark)
			m.logger.Error("command panicked; state restored",
				zap.String("kind", string(cmd.Kind())),
				zap.Any("panic", r),
			)
			err = violation.WithMetadata(violation.CodeExecutionFailed,
				fmt.Sprintf("%s failed: %v", cmd.Kind(), r),
				map[string]string{"kind": string(cmd.Kind())})
		}
	}()

	if err = fn(m.world); err != nil {
		m.world.Restore(bookmark)
		if !violation.IsViolation(err) {
			err = violation.Newf(violation.CodeExecutionFailed, "%s failed: %v", cmd.Kind(), err)
		}
		return err
	}
	return nil
}

// CanUndo reports whether there is a command to undo.
func (m *Manager) CanUndo() bool { return len(m.undo) > 0 }

// CanRedo reports whether there is a command to redo.
func (m *Manager) CanRedo() bool { return len(m.redo) > 0 }

// UndoDepth returns the size of the undo stack.
func (m *Manager) UndoDepth() int { return len(m.undo) }

// RedoDepth returns the size of the redo stack.
func (m *Manager) RedoDepth() int { return len(m.redo) }

// Clear drops both stacks.
func (m *Manager) Clear() {
	m.undo = nil
	m.redo = nil
}

// History returns the undo stack, oldest first.
func (m *Manager) History() []Entry {
	entries := make([]Entry, 0, len(m.undo))
	for _, cmd := range m.undo {
		entries = append(entries, Entry{Kind: cmd.Kind(), PlayerID: cmd.Actor(), Description: cmd.Description()})
	}
	return entries
}

// Last returns the most recent command on the undo stack.
func (m *Manager) Last() (Entry, bool) {
	if len(m.undo) == 0 {
		return Entry{}, false
	}
	cmd := m.undo[len(m.undo)-1]
	return Entry{Kind: cmd.Kind(), PlayerID: cmd.Actor(), Description: cmd.Description()}, true
}
