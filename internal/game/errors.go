package game

import (
	"errors"
	"fmt"
)

// Error kinds. Every rule violation below wraps exactly one of them.
var (
	ErrValidation         = errors.New("invalid input")
	ErrRoomNotFound       = errors.New("room not found")
	ErrPreconditionFailed = errors.New("precondition failed")
)

var (
	ErrEmptyName     = fmt.Errorf("%w: name is required", ErrValidation)
	ErrNameTooLong   = fmt.Errorf("%w: name must be at most %d characters", ErrValidation, MaxNameLength)
	ErrEmptyRoomCode = fmt.Errorf("%w: room code is required", ErrValidation)
	ErrInvalidEmoji  = fmt.Errorf("%w: emoji must be a single emoji", ErrValidation)

	ErrNotInRoom        = fmt.Errorf("%w: player is not in this room", ErrPreconditionFailed)
	ErrAlreadyJoined    = fmt.Errorf("%w: player already joined", ErrPreconditionFailed)
	ErrGameInProgress   = fmt.Errorf("%w: game already started", ErrPreconditionFailed)
	ErrNotHost          = fmt.Errorf("%w: only the host can start the game", ErrPreconditionFailed)
	ErrNotEnoughPlayers = fmt.Errorf("%w: at least %d players are needed", ErrPreconditionFailed, MinPlayers)
	ErrWrongPhase       = fmt.Errorf("%w: not allowed in this phase", ErrPreconditionFailed)
	ErrWrongTurn        = fmt.Errorf("%w: not your turn", ErrPreconditionFailed)

	ErrUnsupportedCommand = fmt.Errorf("%w: unsupported command", ErrPreconditionFailed)
)
