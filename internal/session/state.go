package session

import "github.com/DoyleJ11/emoji-relay-backend/internal/game"

type Page string

const (
	PageHome  Page = "home"
	PageLobby Page = "lobby"
	PageGame  Page = "game"
	PageStory Page = "story"
)

// AppState is one client's local mirror. CurrentGame is only ever replaced
// as a whole by a reload, never patched.
type AppState struct {
	PlayerName  string
	PlayerID    string
	CurrentGame *game.Session
	InProgress  bool
	LastError   string
}

func (a AppState) CurrentPage() Page {
	if a.CurrentGame == nil {
		return PageHome
	}
	switch a.CurrentGame.Phase {
	case game.PhaseWaiting:
		return PageLobby
	case game.PhasePlaying:
		return PageGame
	case game.PhaseFinished:
		return PageStory
	default:
		return PageHome
	}
}

// IsMyTurn reports whether the mirrored turn pointer is on this client.
func (a AppState) IsMyTurn() bool {
	if a.CurrentGame == nil || a.CurrentGame.Phase != game.PhasePlaying {
		return false
	}
	p, ok := a.CurrentGame.CurrentPlayer()
	return ok && p.ID == a.PlayerID
}

func (a AppState) clone() AppState {
	c := a
	if a.CurrentGame != nil {
		g := a.CurrentGame.Clone()
		c.CurrentGame = &g
	}
	return c
}
