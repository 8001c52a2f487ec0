package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/emoji-relay-backend/internal/session"
	"github.com/DoyleJ11/emoji-relay-backend/internal/store"
	"github.com/DoyleJ11/emoji-relay-backend/internal/types"
)

const writeTimeout = 3 * time.Second

type Config struct {
	OriginPatterns []string
	// Timeout bounds each store round trip made on behalf of the client.
	Timeout time.Duration
	// IdleTimeout closes connections that send nothing for that long. Zero
	// keeps them open.
	IdleTimeout time.Duration
}

// Handler gives every connection its own session.Service. The connection is
// the client: it sees a StateSnapshot each time its mirror changes and a
// Result or Error for every request.
func Handler(st store.Store, cfg Config, log *zap.Logger) http.HandlerFunc {
	log = log.Named("ws")
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.OriginPatterns,
		})
		if err != nil {
			log.Debug("accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		connLog := log.With(zap.String("conn_id", uuid.NewString()))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Latest wins: only the newest mirror is worth sending.
		snaps := make(chan session.AppState, 1)
		replies := make(chan types.ServerMessage, 16)

		svc := session.New(st, connLog, session.Options{
			SyncTimeout: cfg.Timeout,
			OnChange: func(a session.AppState) {
				select {
				case <-snaps:
				default:
				}
				snaps <- a
			},
		})
		defer svc.Close()
		connLog.Info("client connected", zap.String("player_id", svc.PlayerID()))

		snaps <- svc.State()

		// Writer goroutine
		go func() {
			version := 0
			for {
				var msg types.ServerMessage
				select {
				case <-ctx.Done():
					return
				case a := <-snaps:
					version++
					msg = types.ServerMessage{Type: types.MsgStateSnapshot, Version: version, State: types.NewAppStateView(a)}
				case msg = <-replies:
				}
				payload, err := json.Marshal(msg)
				if err != nil {
					connLog.Error("encode message", zap.Error(err))
					continue
				}
				wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
				err = conn.Write(wctx, websocket.MessageText, payload)
				wcancel()
				if err != nil {
					connLog.Debug("write failed", zap.Error(err))
					cancel()
					return
				}
			}
		}()

		reply := func(m types.ServerMessage) {
			select {
			case replies <- m:
			case <-ctx.Done():
			}
		}

		var inflight sync.WaitGroup
		defer inflight.Wait()

		// Reader loop
		for {
			readCtx, readCancel := readContext(ctx, cfg.IdleTimeout)
			_, data, err := conn.Read(readCtx)
			readCancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					connLog.Info("client disconnected")
				default:
					connLog.Debug("read failed", zap.Error(err))
				}
				cancel()
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				reply(badRequest("", "bad json"))
				continue
			}

			// Requests run concurrently so NavigateHome can cut a slow join short.
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				reply(dispatch(ctx, svc, cm, cfg.Timeout))
			}()
		}
	}
}

func dispatch(ctx context.Context, svc *session.Service, cm types.ClientMessage, timeout time.Duration) types.ServerMessage {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res := types.ServerMessage{Type: types.MsgResult, RequestID: cm.RequestID}
	var err error
	switch cm.Type {
	case types.MsgCreateGame:
		res.RoomCode, err = svc.CreateGame(ctx, cm.Name)
	case types.MsgJoinGame:
		err = svc.JoinGame(ctx, cm.RoomCode, cm.Name)
	case types.MsgStartGame:
		err = svc.StartGame(ctx)
	case types.MsgAddEmoji:
		err = svc.AddEmoji(ctx, cm.Emoji)
	case types.MsgPlayAgain:
		err = svc.PlayAgain(ctx)
	case types.MsgNavigateHome:
		svc.NavigateHome()
	default:
		return badRequest(cm.RequestID, "unknown type")
	}
	if err != nil {
		return types.ServerMessage{
			Type:      types.MsgError,
			RequestID: cm.RequestID,
			Code:      string(session.Classify(err)),
			Error:     session.Message(err),
		}
	}
	return res
}

func readContext(ctx context.Context, idle time.Duration) (context.Context, context.CancelFunc) {
	if idle <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, idle)
}

func badRequest(requestID, msg string) types.ServerMessage {
	return types.ServerMessage{Type: types.MsgError, RequestID: requestID, Code: types.CodeBadRequest, Error: msg}
}
