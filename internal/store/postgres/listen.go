package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/emoji-relay-backend/internal/store"
)

var triggerStatements = []string{
	`CREATE OR REPLACE FUNCTION emoji_relay_notify() RETURNS trigger AS $$
DECLARE
	rec RECORD;
	code TEXT;
	rev BIGINT;
BEGIN
	IF TG_OP = 'DELETE' THEN
		rec := OLD;
	ELSE
		rec := NEW;
	END IF;
	IF TG_TABLE_NAME = 'games' THEN
		code := rec.room_code;
		rev := rec.revision;
	ELSE
		SELECT g.room_code, g.revision INTO code, rev FROM games g WHERE g.id = rec.game_id;
	END IF;
	IF code IS NOT NULL THEN
		PERFORM pg_notify('` + changeChannel + `', json_build_object(
			'room_code', code,
			'table', TG_TABLE_NAME,
			'op', TG_OP,
			'revision', rev
		)::text);
	END IF;
	RETURN rec;
END;
$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS games_notify ON games`,
	`CREATE TRIGGER games_notify AFTER INSERT OR UPDATE OR DELETE ON games
	FOR EACH ROW EXECUTE FUNCTION emoji_relay_notify()`,
	`DROP TRIGGER IF EXISTS players_notify ON players`,
	`CREATE TRIGGER players_notify AFTER INSERT OR UPDATE OR DELETE ON players
	FOR EACH ROW EXECUTE FUNCTION emoji_relay_notify()`,
}

// Listen relays database change notices into the hub until ctx is done.
// After a dropped connection every live feed gets a resync notice, since
// anything sent while disconnected is gone.
func (s *Store) Listen(ctx context.Context) error {
	first := true
	for {
		err := s.listenOnce(ctx, func() {
			if !first {
				s.hub.ResyncAll()
			}
			first = false
		})
		if ctx.Err() != nil {
			return nil
		}
		s.log.Warn("change listener dropped, reconnecting", zap.Error(err))

		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Store) listenOnce(ctx context.Context, onListening func()) (err error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+changeChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer func() {
		// Don't hand a listening connection back to the pool.
		unlistenCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, uerr := conn.Exec(unlistenCtx, "UNLISTEN "+changeChannel); uerr != nil {
			err = multierr.Append(err, fmt.Errorf("unlisten: %w", uerr))
			conn.Conn().Close(unlistenCtx)
		}
	}()

	s.log.Info("listening for changes", zap.String("channel", changeChannel))
	onListening()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		var c store.Change
		if err := json.Unmarshal([]byte(n.Payload), &c); err != nil {
			s.log.Warn("bad change payload", zap.String("payload", n.Payload), zap.Error(err))
			continue
		}
		s.hub.Publish(c)
	}
}
