package session

import (
	"errors"

	"github.com/DoyleJ11/emoji-relay-backend/internal/game"
)

var (
	ErrStore = errors.New("store error")
	ErrSync  = errors.New("sync error")
)

type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindRoomNotFound ErrorKind = "room_not_found"
	KindPrecondition ErrorKind = "precondition_failed"
	KindStore        ErrorKind = "store"
	KindSync         ErrorKind = "sync"
	KindUnknown      ErrorKind = "unknown"
)

func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, game.ErrValidation):
		return KindValidation
	case errors.Is(err, game.ErrRoomNotFound):
		return KindRoomNotFound
	case errors.Is(err, game.ErrPreconditionFailed):
		return KindPrecondition
	case errors.Is(err, ErrSync):
		return KindSync
	case errors.Is(err, ErrStore):
		return KindStore
	default:
		return KindUnknown
	}
}

// Message is the single line shown to a player for err. Rule violations are
// shown as is; infrastructure failures are not.
func Message(err error) string {
	switch Classify(err) {
	case "":
		return ""
	case KindValidation, KindPrecondition:
		return err.Error()
	case KindRoomNotFound:
		return "No game found with that room code."
	case KindSync:
		return "Lost touch with the game. Showing the last known state."
	default:
		return "Something went wrong. Please try again."
	}
}
