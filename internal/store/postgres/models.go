package postgres

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/DoyleJ11/emoji-relay-backend/internal/game"
)

type gameRecord struct {
	ID                 string         `gorm:"type:uuid;primaryKey"`
	RoomCode           string         `gorm:"size:6;uniqueIndex;not null"`
	CurrentPlayerIndex int            `gorm:"not null;default:0"`
	EmojiStory         datatypes.JSON `gorm:"type:jsonb;not null"`
	GamePhase          string         `gorm:"size:16;not null;default:'waiting'"`
	Revision           int64          `gorm:"not null;default:1"`
	CreatedAt          time.Time      `gorm:"not null"`
	UpdatedAt          time.Time      `gorm:"not null"`
	Players            []playerRecord `gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE"`
}

func (gameRecord) TableName() string { return "games" }

// Player ids are per client, so the same id may sit in several rooms.
type playerRecord struct {
	GameID      string    `gorm:"type:uuid;primaryKey;uniqueIndex:idx_players_game_order"`
	ID          string    `gorm:"size:64;primaryKey"`
	Name        string    `gorm:"size:20;not null"`
	IsHost      bool      `gorm:"not null;default:false"`
	IsReady     bool      `gorm:"not null;default:false"`
	PlayerOrder int       `gorm:"not null;uniqueIndex:idx_players_game_order"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (playerRecord) TableName() string { return "players" }

func toRecord(s game.Session) (gameRecord, error) {
	story := s.EmojiStory
	if story == nil {
		story = []string{}
	}
	raw, err := json.Marshal(story)
	if err != nil {
		return gameRecord{}, err
	}
	return gameRecord{
		ID:                 s.ID,
		RoomCode:           s.RoomCode,
		CurrentPlayerIndex: s.CurrentPlayerIndex,
		EmojiStory:         datatypes.JSON(raw),
		GamePhase:          string(s.Phase),
		Revision:           s.Revision,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}, nil
}

func toPlayerRecord(gameID string, p game.Player, now time.Time) playerRecord {
	return playerRecord{
		GameID:      gameID,
		ID:          p.ID,
		Name:        p.Name,
		IsHost:      p.IsHost,
		IsReady:     p.IsReady,
		PlayerOrder: p.Order,
		CreatedAt:   now,
	}
}

func fromRecord(rec gameRecord, players []playerRecord) (game.Session, error) {
	story := []string{}
	if len(rec.EmojiStory) > 0 {
		if err := json.Unmarshal(rec.EmojiStory, &story); err != nil {
			return game.Session{}, err
		}
	}
	s := game.Session{
		ID:                 rec.ID,
		RoomCode:           rec.RoomCode,
		CurrentPlayerIndex: rec.CurrentPlayerIndex,
		EmojiStory:         story,
		Phase:              game.Phase(rec.GamePhase),
		Revision:           rec.Revision,
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
		Players:            make([]game.Player, 0, len(players)),
	}
	for _, p := range players {
		s.Players = append(s.Players, game.Player{
			ID:      p.ID,
			Name:    p.Name,
			IsHost:  p.IsHost,
			IsReady: p.IsReady,
			Order:   p.PlayerOrder,
		})
	}
	game.SortPlayers(s.Players)
	return s, nil
}
