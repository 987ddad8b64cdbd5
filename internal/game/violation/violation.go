// Package violation defines the recoverable rule-violation errors returned by
// command validation. None of them are fatal: a violation means the request was
// declined and the game state was left untouched.
package violation

import (
	"errors"
	"fmt"
)

// Code is a machine-readable violation code.
type Code string

const (
	CodeUnknownUnitType    Code = "UNKNOWN_UNIT_TYPE"
	CodeOutOfBounds        Code = "OUT_OF_BOUNDS"
	CodeOccupiedCell       Code = "OCCUPIED_CELL"
	CodeNotAdjacent        Code = "NOT_ADJACENT"
	CodeOutOfRange         Code = "OUT_OF_RANGE"
	CodeActionExhausted    Code = "ACTION_EXHAUSTED"
	CodeWrongPhase         Code = "WRONG_PHASE"
	CodeInsufficientEnergy Code = "INSUFFICIENT_ENERGY"
	CodeFriendlyFire       Code = "FRIENDLY_FIRE"
	CodeNotAtBase          Code = "NOT_AT_BASE"
	CodeCannotGather       Code = "CANNOT_GATHER"
	CodeNotFound           Code = "NOT_FOUND"
	CodeNotOwner           Code = "NOT_OWNER"
	CodeInvalidTarget      Code = "INVALID_TARGET"
	CodeGameOver           Code = "GAME_OVER"
	CodeNothingToUndo      Code = "NOTHING_TO_UNDO"
	CodeNothingToRedo      Code = "NOTHING_TO_REDO"
	CodeExecutionFailed    Code = "EXECUTION_FAILED"
	CodeInvalidSnapshot    Code = "INVALID_SNAPSHOT"
)

// Sentinels for errors.Is comparisons. Matching is by code only.
var (
	ErrUnknownUnitType    = &Error{Code: CodeUnknownUnitType, Message: "unknown unit type"}
	ErrOutOfBounds        = &Error{Code: CodeOutOfBounds, Message: "position is outside the grid"}
	ErrOccupiedCell       = &Error{Code: CodeOccupiedCell, Message: "cell is occupied"}
	ErrNotAdjacent        = &Error{Code: CodeNotAdjacent, Message: "not adjacent"}
	ErrOutOfRange         = &Error{Code: CodeOutOfRange, Message: "target out of range"}
	ErrActionExhausted    = &Error{Code: CodeActionExhausted, Message: "no actions remaining"}
	ErrWrongPhase         = &Error{Code: CodeWrongPhase, Message: "not allowed in this phase"}
	ErrInsufficientEnergy = &Error{Code: CodeInsufficientEnergy, Message: "insufficient energy"}
	ErrFriendlyFire       = &Error{Code: CodeFriendlyFire, Message: "cannot attack own forces"}
	ErrNotAtBase          = &Error{Code: CodeNotAtBase, Message: "unit is not at an owned base"}
	ErrCannotGather       = &Error{Code: CodeCannotGather, Message: "unit cannot gather"}
	ErrNotFound           = &Error{Code: CodeNotFound, Message: "entity not found"}
	ErrNotOwner           = &Error{Code: CodeNotOwner, Message: "entity belongs to another player"}
	ErrInvalidTarget      = &Error{Code: CodeInvalidTarget, Message: "invalid target"}
	ErrGameOver           = &Error{Code: CodeGameOver, Message: "game is over"}
	ErrNothingToUndo      = &Error{Code: CodeNothingToUndo, Message: "nothing to undo"}
	ErrNothingToRedo      = &Error{Code: CodeNothingToRedo, Message: "nothing to redo"}
	ErrExecutionFailed    = &Error{Code: CodeExecutionFailed, Message: "command execution failed"}
	ErrInvalidSnapshot    = &Error{Code: CodeInvalidSnapshot, Message: "invalid snapshot"}
)

// Error is a rule violation with a code and a human-readable message.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

// Is reports whether target is a violation with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a violation with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a violation with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithMetadata creates a violation carrying extra context for the UI.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// CodeOf returns the violation code carried by err, or "" when err is not a violation.
func CodeOf(err error) Code {
	var v *Error
	if errors.As(err, &v) {
		return v.Code
	}
	return ""
}

// IsViolation reports whether err is (or wraps) a rule violation.
func IsViolation(err error) bool {
	return CodeOf(err) != ""
}
