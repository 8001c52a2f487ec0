// Package session is the per-client Session Service. Mutations are written
// to the store with compare-and-swap and never touch the local mirror; the
// mirror only changes when a change notice triggers a full reload.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/emoji-relay-backend/internal/game"
	"github.com/DoyleJ11/emoji-relay-backend/internal/store"
)

const (
	maxCodeAttempts    = 8
	defaultSyncTimeout = 5 * time.Second
)

type Options struct {
	// OnChange runs with the service lock held after every change to the
	// mirror, the in-progress flag or the last error. It must not block or
	// call back into the Service.
	OnChange    func(AppState)
	NewRoomCode func() (string, error)
	PlayerID    string
	SyncTimeout time.Duration
}

type Service struct {
	store       store.Store
	log         *zap.Logger
	playerID    string
	onChange    func(AppState)
	newCode     func() (string, error)
	syncTimeout time.Duration

	mu         sync.Mutex
	state      AppState
	room       string
	sub        store.Subscription
	gen        uint64 // bumped whenever the client leaves or enters a room
	pending    int
	syncFailed bool
}

func New(st store.Store, log *zap.Logger, opts Options) *Service {
	id := opts.PlayerID
	if id == "" {
		id = uuid.NewString()
	}
	newCode := opts.NewRoomCode
	if newCode == nil {
		newCode = game.GenerateCode
	}
	syncTimeout := opts.SyncTimeout
	if syncTimeout <= 0 {
		syncTimeout = defaultSyncTimeout
	}
	return &Service{
		store:       st,
		log:         log.Named("session").With(zap.String("player_id", id)),
		playerID:    id,
		onChange:    opts.OnChange,
		newCode:     newCode,
		syncTimeout: syncTimeout,
		state:       AppState{PlayerID: id},
	}
}

func (s *Service) PlayerID() string { return s.playerID }

func (s *Service) State() AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Service) CreateGame(ctx context.Context, name string) (string, error) {
	var code string
	err := s.run("create", func() error {
		n, err := game.ValidateName(name)
		if err != nil {
			return err
		}
		gen := s.begin(n)

		for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
			c, err := s.newCode()
			if err != nil {
				return storeError(err)
			}
			g, err := game.NewSession(c, s.playerID, n)
			if err != nil {
				return err
			}
			rec, err := s.store.CreateGame(ctx, g)
			if errors.Is(err, store.ErrCodeTaken) {
				s.log.Debug("collision on room code, regenerating", zap.String("room_code", g.RoomCode))
				continue
			}
			if err != nil {
				return storeError(err)
			}
			code = rec.RoomCode
			s.log.Info("game created", zap.String("room_code", code))
			return s.enter(ctx, code, gen)
		}
		return fmt.Errorf("%w: no free room code after %d attempts", ErrStore, maxCodeAttempts)
	})
	return code, err
}

// JoinGame adds the client to a waiting room. Joining a room the client is
// already part of just re-subscribes, whatever the phase.
func (s *Service) JoinGame(ctx context.Context, roomCode, name string) error {
	return s.run("join", func() error {
		n, err := game.ValidateName(name)
		if err != nil {
			return err
		}
		code, err := game.ValidateRoomCode(roomCode)
		if err != nil {
			return err
		}
		gen := s.begin(n)

		err = s.mutate(ctx, code, game.Command{Type: game.CmdJoin, PlayerID: s.playerID, PlayerName: n})
		if errors.Is(err, game.ErrAlreadyJoined) {
			s.log.Debug("already on the roster, resubscribing", zap.String("room_code", code))
			err = nil
		}
		if err != nil {
			return err
		}
		return s.enter(ctx, code, gen)
	})
}

func (s *Service) StartGame(ctx context.Context) error {
	return s.run("start", func() error {
		code, err := s.currentRoom()
		if err != nil {
			return err
		}
		return s.mutate(ctx, code, game.Command{Type: game.CmdStart, PlayerID: s.playerID})
	})
}

func (s *Service) AddEmoji(ctx context.Context, emoji string) error {
	return s.run("add_emoji", func() error {
		e, err := game.ValidateEmoji(emoji)
		if err != nil {
			return err
		}
		code, err := s.currentRoom()
		if err != nil {
			return err
		}
		return s.mutate(ctx, code, game.Command{Type: game.CmdAddEmoji, PlayerID: s.playerID, Emoji: e})
	})
}

func (s *Service) PlayAgain(ctx context.Context) error {
	return s.run("play_again", func() error {
		code, err := s.currentRoom()
		if err != nil {
			return err
		}
		return s.mutate(ctx, code, game.Command{Type: game.CmdPlayAgain, PlayerID: s.playerID})
	})
}

// NavigateHome drops the mirror and the subscription. The shared room is left
// untouched and any in-flight operation result is discarded.
func (s *Service) NavigateHome() {
	s.mu.Lock()
	s.gen++
	sub := s.sub
	s.sub = nil
	s.room = ""
	s.state.CurrentGame = nil
	s.state.LastError = ""
	s.syncFailed = false
	s.publishLocked()
	s.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

// Close releases the subscription when the client goes away.
func (s *Service) Close() {
	s.NavigateHome()
}

// mutate loads the room, applies cmd and writes it back keyed on the loaded
// revision. A lost race reloads and re-checks the rules from scratch, so a
// stale turn owner ends up with ErrWrongTurn rather than a second emoji.
// Lost races are retried with jittered backoff until ctx is done.
func (s *Service) mutate(ctx context.Context, code string, cmd game.Command) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		cur, err := s.store.LoadGame(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			return struct{}{}, backoff.Permanent(game.ErrRoomNotFound)
		}
		if err != nil {
			return struct{}{}, backoff.Permanent(storeError(err))
		}

		events, next, err := game.Apply(cur, cmd)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}

		if _, err := s.store.SwapGame(ctx, cur, next); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return struct{}{}, err
			}
			if errors.Is(err, store.ErrNotFound) {
				return struct{}{}, backoff.Permanent(game.ErrRoomNotFound)
			}
			return struct{}{}, backoff.Permanent(storeError(err))
		}

		for _, e := range events {
			s.log.Debug("event", zap.String("room_code", code), zap.String("type", string(e.Type)))
		}
		if game.ContainsEvent(events, game.EvtStoryCompleted) {
			s.log.Info("story completed", zap.String("room_code", code))
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(conflictBackOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			s.log.Debug("write conflict, retrying",
				zap.String("room_code", code),
				zap.String("cmd", string(cmd.Type)),
				zap.Duration("wait", wait),
			)
		}),
	)

	switch {
	case err == nil, errors.Is(err, ErrStore):
		return err
	case errors.Is(err, store.ErrConflict), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return storeError(err)
	default:
		return err
	}
}

// conflictBackOff spreads out writers that keep colliding on one room.
func conflictBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Millisecond
	b.RandomizationFactor = 0.5
	b.Multiplier = 1.5
	b.MaxInterval = 100 * time.Millisecond
	return b
}

// enter switches the client to code: the previous subscription is closed
// before the new one opens, then the mirror is loaded once.
func (s *Service) enter(ctx context.Context, code string, gen uint64) error {
	s.mu.Lock()
	if s.gen != gen {
		// Navigated away while the write was in flight.
		s.mu.Unlock()
		return nil
	}
	s.gen++
	gen = s.gen
	old := s.sub
	s.sub = nil
	s.room = ""
	s.state.CurrentGame = nil
	s.syncFailed = false
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}

	sub, err := s.store.Subscribe(ctx, code, fmt.Sprintf("%s/%d", s.playerID, gen))
	if err != nil {
		return storeError(err)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		sub.Close()
		return nil
	}
	s.sub = sub
	s.room = code
	s.mu.Unlock()

	go s.follow(sub, code, gen)
	return s.sync(ctx, code, gen)
}

func (s *Service) follow(sub store.Subscription, code string, gen uint64) {
	for range sub.Changes() {
		ctx, cancel := context.WithTimeout(context.Background(), s.syncTimeout)
		_ = s.sync(ctx, code, gen)
		cancel()
	}
}

// sync reloads the whole room and replaces the mirror. Reloads for a room the
// client already left, or older than what is mirrored, are dropped. A failed
// reload keeps the last known state.
func (s *Service) sync(ctx context.Context, code string, gen uint64) error {
	g, err := s.store.LoadGame(ctx, code)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return nil
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSync, err)
		s.syncFailed = true
		s.state.LastError = Message(err)
		s.publishLocked()
		s.log.Warn("reload failed, keeping last known state", zap.String("room_code", code), zap.Error(err))
		return err
	}
	if cur := s.state.CurrentGame; cur != nil && g.Revision < cur.Revision {
		return nil
	}

	s.state.CurrentGame = &g
	if s.syncFailed {
		s.syncFailed = false
		s.state.LastError = ""
	}
	s.publishLocked()
	return nil
}

func (s *Service) run(op string, fn func() error) error {
	s.mu.Lock()
	s.pending++
	s.state.LastError = ""
	s.publishLocked()
	s.mu.Unlock()

	err := fn()

	s.mu.Lock()
	s.pending--
	if err != nil {
		s.state.LastError = Message(err)
	}
	s.publishLocked()
	s.mu.Unlock()

	if err != nil {
		s.log.Info("operation failed",
			zap.String("op", op),
			zap.String("kind", string(Classify(err))),
			zap.Error(err),
		)
	}
	return err
}

func (s *Service) begin(name string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.PlayerName = name
	return s.gen
}

func (s *Service) currentRoom() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == "" {
		return "", game.ErrNotInRoom
	}
	return s.room, nil
}

func (s *Service) snapshotLocked() AppState {
	st := s.state.clone()
	st.InProgress = s.pending > 0
	return st
}

func (s *Service) publishLocked() {
	if s.onChange != nil {
		s.onChange(s.snapshotLocked())
	}
}

func storeError(err error) error {
	return fmt.Errorf("%w: %w", ErrStore, err)
}
