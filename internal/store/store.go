// Package store defines the Session Store contract: one record per room, one
// per player, and a change stream scoped by room code.
package store

import (
	"context"
	"errors"

	"github.com/DoyleJ11/emoji-relay-backend/internal/game"
)

var (
	ErrNotFound  = errors.New("game not found")
	ErrConflict  = errors.New("game was modified concurrently")
	ErrCodeTaken = errors.New("room code already in use")
)

type Table string

const (
	TableGames   Table = "games"
	TablePlayers Table = "players"
)

type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
	// OpResync asks subscribers to reload after notifications may have been lost.
	OpResync Op = "RESYNC"
)

// Change only tells a subscriber that something moved. Subscribers re-fetch
// the whole room instead of applying it.
type Change struct {
	RoomCode string `json:"room_code"`
	Table    Table  `json:"table"`
	Op       Op     `json:"op"`
	Revision int64  `json:"revision"`
}

type Subscription interface {
	// Changes is closed when the subscription ends.
	Changes() <-chan Change
	Close()
}

type Store interface {
	// CreateGame persists a new room. It fails with ErrCodeTaken when the room
	// code is already used.
	CreateGame(ctx context.Context, s game.Session) (game.Session, error)

	// LoadGame returns the room with its players sorted by order.
	LoadGame(ctx context.Context, roomCode string) (game.Session, error)

	// SwapGame replaces prev with next only if the stored revision still
	// equals prev.Revision, otherwise it fails with ErrConflict. Players in
	// next beyond those in prev are inserted in the same write.
	SwapGame(ctx context.Context, prev, next game.Session) (game.Session, error)

	Subscribe(ctx context.Context, roomCode, subscriberID string) (Subscription, error)
}
