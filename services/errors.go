package services

import (
	"errors"
	"fmt"
)

// ErrContractViolation is the root of every error that signals a caller or
// implementation bug. These are never recovered; the game must stop.
var ErrContractViolation = errors.New("contract violation")

// Contract violations.
var (
	ErrUnknownAction     = fmt.Errorf("%w: unknown action", ErrContractViolation)
	ErrUnknownAbility    = fmt.Errorf("%w: unknown ability", ErrContractViolation)
	ErrUnknownPhase      = fmt.Errorf("%w: unknown phase", ErrContractViolation)
	ErrUnknownRequest    = fmt.Errorf("%w: unknown request", ErrContractViolation)
	ErrUnknownPlayer     = fmt.Errorf("%w: unknown player", ErrContractViolation)
	ErrInvalidDefinition = fmt.Errorf("%w: invalid game definition", ErrContractViolation)
)

// Errors a caller can correct.
var (
	ErrGameFinished   = errors.New("game already finished")
	ErrInvalidPlayers = errors.New("invalid player list")
	ErrUnknownMode    = errors.New("unknown game mode")
	ErrNoArchive      = errors.New("game archive is not configured")
)
