// Package postgres is the durable Session Store. Compare-and-swap writes are a
// conditional UPDATE on the games revision inside a transaction, and change
// notices come from pg_notify triggers relayed by Listen.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DoyleJ11/emoji-relay-backend/internal/game"
	"github.com/DoyleJ11/emoji-relay-backend/internal/hub"
	"github.com/DoyleJ11/emoji-relay-backend/internal/store"
)

const (
	changeChannel  = "emoji_relay_changes"
	uniqueViolated = "23505" // PostgreSQL unique_violation
	reconnectDelay = time.Second
)

var ErrUnexpectedDatabase = errors.New("unexpected database error")

type Store struct {
	pool  *pgxpool.Pool
	sqlDB *sql.DB
	db    *gorm.DB
	hub   *hub.Hub
	log   *zap.Logger
}

// Open connects, migrates the schema and installs the notify triggers.
func Open(ctx context.Context, connString string, h *hub.Hub, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	db, err := gorm.Open(gormpg.New(gormpg.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		_ = sqlDB.Close()
		pool.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}

	s := &Store{pool: pool, sqlDB: sqlDB, db: db, hub: h, log: log.Named("postgres")}
	if err := s.migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&gameRecord{}, &playerRecord{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, stmt := range triggerStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("install triggers: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	err := s.sqlDB.Close()
	s.pool.Close()
	return err
}

func (s *Store) CreateGame(ctx context.Context, g game.Session) (game.Session, error) {
	now := time.Now().UTC()
	g = g.Clone()
	g.ID = uuid.NewString()
	g.RoomCode = game.NormalizeCode(g.RoomCode)
	g.Revision = 1
	g.Touch(now)

	rec, err := toRecord(g)
	if err != nil {
		return game.Session{}, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Players").Create(&rec).Error; err != nil {
			return err
		}
		return insertPlayers(tx, g.ID, g.Players, now)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return game.Session{}, store.ErrCodeTaken
		}
		return game.Session{}, wrap(err)
	}
	return g, nil
}

func (s *Store) LoadGame(ctx context.Context, roomCode string) (game.Session, error) {
	var out game.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec gameRecord
		if err := tx.Where("room_code = ?", game.NormalizeCode(roomCode)).First(&rec).Error; err != nil {
			return err
		}
		var players []playerRecord
		if err := tx.Where("game_id = ?", rec.ID).Order("player_order").Find(&players).Error; err != nil {
			return err
		}
		var err error
		out, err = fromRecord(rec, players)
		return err
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return game.Session{}, store.ErrNotFound
		}
		return game.Session{}, wrap(err)
	}
	return out, nil
}

func (s *Store) SwapGame(ctx context.Context, prev, next game.Session) (game.Session, error) {
	now := time.Now().UTC()
	story, err := json.Marshal(next.EmojiStory)
	if err != nil {
		return game.Session{}, err
	}
	if next.EmojiStory == nil {
		story = []byte("[]")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&gameRecord{}).
			Where("id = ? AND revision = ?", prev.ID, prev.Revision).
			Updates(map[string]any{
				"current_player_index": next.CurrentPlayerIndex,
				"emoji_story":          datatypes.JSON(story),
				"game_phase":           string(next.Phase),
				"revision":             gorm.Expr("revision + 1"),
				"updated_at":           now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&gameRecord{}).Where("id = ?", prev.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return store.ErrNotFound
			}
			return store.ErrConflict
		}
		if len(next.Players) > len(prev.Players) {
			return insertPlayers(tx, prev.ID, next.Players[len(prev.Players):], now)
		}
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrNotFound):
		return game.Session{}, err
	case isUniqueViolation(err):
		// Another join claimed the same player_order first.
		return game.Session{}, store.ErrConflict
	default:
		return game.Session{}, wrap(err)
	}

	out := next.Clone()
	out.ID = prev.ID
	out.RoomCode = prev.RoomCode
	out.Revision = prev.Revision + 1
	out.CreatedAt = prev.CreatedAt
	out.UpdatedAt = now
	return out, nil
}

func (s *Store) Subscribe(ctx context.Context, roomCode, subscriberID string) (store.Subscription, error) {
	sub, err := s.hub.Subscribe(ctx, game.NormalizeCode(roomCode), subscriberID)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func insertPlayers(tx *gorm.DB, gameID string, players []game.Player, now time.Time) error {
	if len(players) == 0 {
		return nil
	}
	recs := make([]playerRecord, 0, len(players))
	for _, p := range players {
		recs = append(recs, toPlayerRecord(gameID, p, now))
	}
	return tx.Create(&recs).Error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolated
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func wrap(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnexpectedDatabase, err)
}
