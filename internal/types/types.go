package types

import (
	"github.com/DoyleJ11/emoji-relay-backend/internal/game"
	"github.com/DoyleJ11/emoji-relay-backend/internal/session"
)

// Client -> Server
// CreateGame:  request_id, name
// JoinGame:    request_id, room_code, name
// StartGame:   request_id
// AddEmoji:    request_id, emoji
// PlayAgain:   request_id
// NavigateHome: request_id
//
// Server -> Client
// StateSnapshot: version, state (AppStateView), sent whenever the mirror changes
// Result:        request_id, room_code (CreateGame only)
// Error:         request_id, code ("validation" | "room_not_found" |
//                "precondition_failed" | "store" | "sync" | "bad_request"), error

const (
	MsgCreateGame   = "CreateGame"
	MsgJoinGame     = "JoinGame"
	MsgStartGame    = "StartGame"
	MsgAddEmoji     = "AddEmoji"
	MsgPlayAgain    = "PlayAgain"
	MsgNavigateHome = "NavigateHome"

	MsgStateSnapshot = "StateSnapshot"
	MsgResult        = "Result"
	MsgError         = "Error"

	CodeBadRequest = "bad_request"
)

type ClientMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Name      string `json:"name,omitempty"`
	RoomCode  string `json:"room_code,omitempty"`
	Emoji     string `json:"emoji,omitempty"`
}

type ServerMessage struct {
	Type      string        `json:"type"`
	RequestID string        `json:"request_id,omitempty"`
	Version   int           `json:"version,omitempty"`
	State     *AppStateView `json:"state,omitempty"`
	RoomCode  string        `json:"room_code,omitempty"`
	Code      string        `json:"code,omitempty"`
	Error     string        `json:"error,omitempty"`
}

type PlayerView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsHost  bool   `json:"is_host"`
	IsReady bool   `json:"is_ready"`
	Order   int    `json:"player_order"`
}

type GameView struct {
	ID                 string       `json:"id"`
	RoomCode           string       `json:"room_code"`
	Players            []PlayerView `json:"players"`
	CurrentPlayerIndex int          `json:"current_player_index"`
	EmojiStory         []string     `json:"emoji_story"`
	GamePhase          string       `json:"game_phase"`
	Revision           int64        `json:"revision"`
}

type AppStateView struct {
	PlayerName  string    `json:"player_name"`
	PlayerID    string    `json:"player_id"`
	CurrentGame *GameView `json:"current_game"`
	CurrentPage string    `json:"current_page"`
	IsMyTurn    bool      `json:"is_my_turn"`
	InProgress  bool      `json:"in_progress"`
	Error       string    `json:"error,omitempty"`
}

func NewGameView(g game.Session) GameView {
	players := make([]PlayerView, 0, len(g.Players))
	for _, p := range g.Players {
		players = append(players, PlayerView{ID: p.ID, Name: p.Name, IsHost: p.IsHost, IsReady: p.IsReady, Order: p.Order})
	}
	story := g.EmojiStory
	if story == nil {
		story = []string{}
	}
	return GameView{
		ID:                 g.ID,
		RoomCode:           g.RoomCode,
		Players:            players,
		CurrentPlayerIndex: g.CurrentPlayerIndex,
		EmojiStory:         story,
		GamePhase:          string(g.Phase),
		Revision:           g.Revision,
	}
}

func NewAppStateView(st session.AppState) *AppStateView {
	v := &AppStateView{
		PlayerName:  st.PlayerName,
		PlayerID:    st.PlayerID,
		CurrentPage: string(st.CurrentPage()),
		IsMyTurn:    st.IsMyTurn(),
		InProgress:  st.InProgress,
		Error:       st.LastError,
	}
	if st.CurrentGame != nil {
		g := NewGameView(*st.CurrentGame)
		v.CurrentGame = &g
	}
	return v
}
