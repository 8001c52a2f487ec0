package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/emoji-relay-backend/internal/game"
	"github.com/DoyleJ11/emoji-relay-backend/internal/hub"
	"github.com/DoyleJ11/emoji-relay-backend/internal/store/memory"
	"github.com/DoyleJ11/emoji-relay-backend/internal/types"
	"github.com/DoyleJ11/emoji-relay-backend/internal/ws"
)

func newRouter(t *testing.T) (http.Handler, *memory.Store) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	log := zaptest.NewLogger(t)
	st := memory.New(hub.NewHub(ctx, 0, log))
	return SetupRoutes(st, ws.Config{}, log), st
}

func TestHealthz(t *testing.T) {
	r, _ := newRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetGame(t *testing.T) {
	r, st := newRouter(t)
	g, err := game.NewSession("ABC123", "host", "Ann")
	require.NoError(t, err)
	_, err = st.CreateGame(context.Background(), g)
	require.NoError(t, err)

	cases := []struct {
		name   string
		path   string
		status int
	}{
		{"found", "/games/ABC123", http.StatusOK},
		{"case insensitive", "/games/abc123", http.StatusOK},
		{"missing", "/games/NOPE42", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			require.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if tc.status != http.StatusOK {
				return
			}

			var v types.GameView
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
			assert.Equal(t, "ABC123", v.RoomCode)
			assert.Equal(t, "waiting", v.GamePhase)
			assert.Equal(t, int64(1), v.Revision)
			assert.Equal(t, []string{}, v.EmojiStory)
			require.Len(t, v.Players, 1)
			assert.True(t, v.Players[0].IsHost)
		})
	}
}
