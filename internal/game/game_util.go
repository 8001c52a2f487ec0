package game

import (
	"slices"
	"time"
)

// NewSession builds the waiting room a host creates. The store assigns ID,
// Revision and timestamps when it persists it.
func NewSession(roomCode, hostID, hostName string) (Session, error) {
	name, err := ValidateName(hostName)
	if err != nil {
		return Session{}, err
	}
	return Session{
		RoomCode: NormalizeCode(roomCode),
		Players: []Player{{
			ID:      hostID,
			Name:    name,
			IsHost:  true,
			IsReady: true,
			Order:   0,
		}},
		CurrentPlayerIndex: 0,
		EmojiStory:         []string{},
		Phase:              PhaseWaiting,
	}, nil
}

func (s Session) Clone() Session {
	c := s
	c.Players = slices.Clone(s.Players)
	c.EmojiStory = slices.Clone(s.EmojiStory)
	if c.EmojiStory == nil {
		c.EmojiStory = []string{}
	}
	return c
}

func (s Session) PlayerIndex(playerID string) (int, bool) {
	for i, p := range s.Players {
		if p.ID == playerID {
			return i, true
		}
	}
	return -1, false
}

func (s Session) CurrentPlayer() (Player, bool) {
	if s.CurrentPlayerIndex < 0 || s.CurrentPlayerIndex >= len(s.Players) {
		return Player{}, false
	}
	return s.Players[s.CurrentPlayerIndex], true
}

// SortPlayers orders the roster by Order, which is also turn order.
func SortPlayers(players []Player) {
	slices.SortFunc(players, func(a, b Player) int { return a.Order - b.Order })
}

// Touch is used by stores to stamp a write.
func (s *Session) Touch(now time.Time) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
}

// ContainsEvent reports whether Apply emitted an event of the given type.
func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
