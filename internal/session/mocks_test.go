package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/DoyleJ11/emoji-relay-backend/internal/game"
	"github.com/DoyleJ11/emoji-relay-backend/internal/store"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateGame(ctx context.Context, g game.Session) (game.Session, error) {
	args := m.Called(ctx, g)
	return args.Get(0).(game.Session), args.Error(1)
}

func (m *MockStore) LoadGame(ctx context.Context, roomCode string) (game.Session, error) {
	args := m.Called(ctx, roomCode)
	return args.Get(0).(game.Session), args.Error(1)
}

func (m *MockStore) SwapGame(ctx context.Context, prev, next game.Session) (game.Session, error) {
	args := m.Called(ctx, prev, next)
	return args.Get(0).(game.Session), args.Error(1)
}

func (m *MockStore) Subscribe(ctx context.Context, roomCode, subscriberID string) (store.Subscription, error) {
	args := m.Called(ctx, roomCode, subscriberID)
	sub, _ := args.Get(0).(store.Subscription)
	return sub, args.Error(1)
}

// flakyStore fails reloads on demand while writes keep going through.
type flakyStore struct {
	store.Store
	failLoads atomic.Bool
}

func (f *flakyStore) LoadGame(ctx context.Context, roomCode string) (game.Session, error) {
	if f.failLoads.Load() {
		return game.Session{}, errBoom
	}
	return f.Store.LoadGame(ctx, roomCode)
}

// slowStore adds latency to every load, like a real database would.
type slowStore struct {
	store.Store
	loadDelay time.Duration
}

func (s *slowStore) LoadGame(ctx context.Context, roomCode string) (game.Session, error) {
	g, err := s.Store.LoadGame(ctx, roomCode)
	time.Sleep(s.loadDelay)
	return g, err
}
