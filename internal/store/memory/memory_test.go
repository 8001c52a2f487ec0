package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/emoji-relay-backend/internal/game"
	"github.com/DoyleJ11/emoji-relay-backend/internal/hub"
	"github.com/DoyleJ11/emoji-relay-backend/internal/store"
)

func newStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(hub.NewHub(ctx, 0, zaptest.NewLogger(t))), ctx
}

func created(t *testing.T, s *Store, ctx context.Context, code string) game.Session {
	t.Helper()
	g, err := game.NewSession(code, "host", "Ann")
	require.NoError(t, err)
	rec, err := s.CreateGame(ctx, g)
	require.NoError(t, err)
	return rec
}

func TestStore_CreateAndLoad(t *testing.T) {
	s, ctx := newStore(t)

	rec := created(t, s, ctx, "abc123")
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "ABC123", rec.RoomCode)
	assert.Equal(t, int64(1), rec.Revision)
	assert.False(t, rec.CreatedAt.IsZero())

	loaded, err := s.LoadGame(ctx, "Abc123")
	require.NoError(t, err)
	assert.Equal(t, rec, loaded)

	_, err = s.LoadGame(ctx, "NOPE00")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_CreateGame_CodeTaken(t *testing.T) {
	s, ctx := newStore(t)
	created(t, s, ctx, "ABC123")

	g, err := game.NewSession("abc123", "other", "Ben")
	require.NoError(t, err)
	_, err = s.CreateGame(ctx, g)
	assert.ErrorIs(t, err, store.ErrCodeTaken)
}

func TestStore_SwapGame_CompareAndSwap(t *testing.T) {
	s, ctx := newStore(t)
	rec := created(t, s, ctx, "ABC123")

	_, joined, err := game.Apply(rec, game.Command{Type: game.CmdJoin, PlayerID: "p1", PlayerName: "Ben"})
	require.NoError(t, err)

	swapped, err := s.SwapGame(ctx, rec, joined)
	require.NoError(t, err)
	assert.Equal(t, int64(2), swapped.Revision)
	assert.Len(t, swapped.Players, 2)

	// A writer still holding revision 1 loses.
	_, stale, err := game.Apply(rec, game.Command{Type: game.CmdJoin, PlayerID: "p2", PlayerName: "Cat"})
	require.NoError(t, err)
	_, err = s.SwapGame(ctx, rec, stale)
	assert.ErrorIs(t, err, store.ErrConflict)

	loaded, err := s.LoadGame(ctx, "ABC123")
	require.NoError(t, err)
	assert.Len(t, loaded.Players, 2)
	assert.Equal(t, "Ben", loaded.Players[1].Name)

	_, err = s.SwapGame(ctx, game.Session{RoomCode: "NOPE00"}, game.Session{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_PublishesChanges(t *testing.T) {
	s, ctx := newStore(t)
	rec := created(t, s, ctx, "ABC123")

	sub, err := s.Subscribe(ctx, "abc123", "watcher")
	require.NoError(t, err)
	defer sub.Close()

	_, joined, err := game.Apply(rec, game.Command{Type: game.CmdJoin, PlayerID: "p1", PlayerName: "Ben"})
	require.NoError(t, err)
	_, err = s.SwapGame(ctx, rec, joined)
	require.NoError(t, err)

	select {
	case c := <-sub.Changes():
		assert.Equal(t, "ABC123", c.RoomCode)
		assert.Equal(t, store.TableGames, c.Table)
		assert.Equal(t, int64(2), c.Revision)
	case <-time.After(time.Second):
		t.Fatalf("no change notice after swap")
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	s, ctx := newStore(t)
	created(t, s, ctx, "ABC123")

	a, err := s.LoadGame(ctx, "ABC123")
	require.NoError(t, err)
	a.Players[0].Name = "Mallory"
	a.EmojiStory = append(a.EmojiStory, "😈")

	b, err := s.LoadGame(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, "Ann", b.Players[0].Name)
	assert.Empty(t, b.EmojiStory)
}
