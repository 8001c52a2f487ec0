// Package memory is an in-process Session Store. Writes are serialized by a
// single mutex and change notices go out through the hub.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DoyleJ11/emoji-relay-backend/internal/game"
	"github.com/DoyleJ11/emoji-relay-backend/internal/hub"
	"github.com/DoyleJ11/emoji-relay-backend/internal/store"
)

type Store struct {
	mu    sync.Mutex
	games map[string]game.Session // keyed by room code
	hub   *hub.Hub
	now   func() time.Time
}

func New(h *hub.Hub) *Store {
	return &Store{
		games: make(map[string]game.Session),
		hub:   h,
		now:   time.Now,
	}
}

func (s *Store) CreateGame(ctx context.Context, g game.Session) (game.Session, error) {
	if err := ctx.Err(); err != nil {
		return game.Session{}, err
	}
	code := game.NormalizeCode(g.RoomCode)

	s.mu.Lock()
	if _, ok := s.games[code]; ok {
		s.mu.Unlock()
		return game.Session{}, store.ErrCodeTaken
	}
	rec := g.Clone()
	rec.ID = uuid.NewString()
	rec.RoomCode = code
	rec.Revision = 1
	rec.Touch(s.now())
	s.games[code] = rec
	s.mu.Unlock()

	s.hub.Publish(store.Change{RoomCode: code, Table: store.TableGames, Op: store.OpInsert, Revision: rec.Revision})
	for range rec.Players {
		s.hub.Publish(store.Change{RoomCode: code, Table: store.TablePlayers, Op: store.OpInsert, Revision: rec.Revision})
	}
	return rec.Clone(), nil
}

func (s *Store) LoadGame(ctx context.Context, roomCode string) (game.Session, error) {
	if err := ctx.Err(); err != nil {
		return game.Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.games[game.NormalizeCode(roomCode)]
	if !ok {
		return game.Session{}, store.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *Store) SwapGame(ctx context.Context, prev, next game.Session) (game.Session, error) {
	if err := ctx.Err(); err != nil {
		return game.Session{}, err
	}
	code := game.NormalizeCode(prev.RoomCode)

	s.mu.Lock()
	cur, ok := s.games[code]
	if !ok {
		s.mu.Unlock()
		return game.Session{}, store.ErrNotFound
	}
	if cur.Revision != prev.Revision {
		s.mu.Unlock()
		return game.Session{}, store.ErrConflict
	}
	rec := next.Clone()
	rec.ID = cur.ID
	rec.RoomCode = code
	rec.CreatedAt = cur.CreatedAt
	rec.Revision = cur.Revision + 1
	game.SortPlayers(rec.Players)
	rec.Touch(s.now())
	s.games[code] = rec
	added := len(rec.Players) - len(cur.Players)
	s.mu.Unlock()

	s.hub.Publish(store.Change{RoomCode: code, Table: store.TableGames, Op: store.OpUpdate, Revision: rec.Revision})
	for i := 0; i < added; i++ {
		s.hub.Publish(store.Change{RoomCode: code, Table: store.TablePlayers, Op: store.OpInsert, Revision: rec.Revision})
	}
	return rec.Clone(), nil
}

func (s *Store) Subscribe(ctx context.Context, roomCode, subscriberID string) (store.Subscription, error) {
	sub, err := s.hub.Subscribe(ctx, game.NormalizeCode(roomCode), subscriberID)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
