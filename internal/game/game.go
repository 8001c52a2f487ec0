package game

import (
	"time"
)

const (
	StoryLength   = 10
	MinPlayers    = 2
	MaxNameLength = 20
)

type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

type Player struct {
	ID      string
	Name    string
	IsHost  bool
	IsReady bool
	Order   int
}

// Session is the shared state of one room. Revision is bumped by the store on
// every accepted write and is what compare-and-swap writes are keyed on.
type Session struct {
	ID                 string
	RoomCode           string
	Players            []Player
	CurrentPlayerIndex int
	EmojiStory         []string
	Phase              Phase
	Revision           int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type CommandType string

const (
	CmdJoin      CommandType = "Join"
	CmdStart     CommandType = "Start"
	CmdAddEmoji  CommandType = "AddEmoji"
	CmdPlayAgain CommandType = "PlayAgain"
)

/*
	CmdJoin      -> EvtPlayerJoined
	CmdStart     -> EvtGameStarted
	CmdAddEmoji  -> EvtEmojiAdded -> EvtTurnAdvanced (-> EvtStoryCompleted on the last emoji)
	CmdPlayAgain -> EvtGameReset
*/

type Command struct {
	Type       CommandType
	PlayerID   string
	PlayerName string
	Emoji      string
}

type EventType string

const (
	EvtPlayerJoined   EventType = "PlayerJoined"
	EvtGameStarted    EventType = "GameStarted"
	EvtEmojiAdded     EventType = "EmojiAdded"
	EvtTurnAdvanced   EventType = "TurnAdvanced"
	EvtStoryCompleted EventType = "StoryCompleted"
	EvtGameReset      EventType = "GameReset"
)

type Event struct {
	Type     EventType
	PlayerID string
	Emoji    string
	Index    int
}

// Apply validates cmd against s and returns the resulting session. s is never
// modified; on error the returned session is s unchanged.
func Apply(s Session, cmd Command) ([]Event, Session, error) {
	switch cmd.Type {
	case CmdJoin:
		return join(s, cmd)
	case CmdStart:
		return start(s, cmd)
	case CmdAddEmoji:
		return addEmoji(s, cmd)
	case CmdPlayAgain:
		return playAgain(s, cmd)
	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func join(s Session, cmd Command) ([]Event, Session, error) {
	name, err := ValidateName(cmd.PlayerName)
	if err != nil {
		return nil, s, err
	}
	// Membership is checked before the phase so a known player can resume.
	if _, ok := s.PlayerIndex(cmd.PlayerID); ok {
		return nil, s, ErrAlreadyJoined
	}
	if s.Phase != PhaseWaiting {
		return nil, s, ErrGameInProgress
	}

	newState := s.Clone()
	p := Player{
		ID:    cmd.PlayerID,
		Name:  name,
		Order: nextOrder(s.Players),
	}
	newState.Players = append(newState.Players, p)

	return []Event{{Type: EvtPlayerJoined, PlayerID: p.ID, Index: p.Order}}, newState, nil
}

func start(s Session, cmd Command) ([]Event, Session, error) {
	i, ok := s.PlayerIndex(cmd.PlayerID)
	if !ok {
		return nil, s, ErrNotInRoom
	}
	if !s.Players[i].IsHost {
		return nil, s, ErrNotHost
	}
	if s.Phase != PhaseWaiting {
		return nil, s, ErrWrongPhase
	}
	if len(s.Players) < MinPlayers {
		return nil, s, ErrNotEnoughPlayers
	}

	newState := s.Clone()
	newState.Phase = PhasePlaying
	newState.CurrentPlayerIndex = 0
	return []Event{{Type: EvtGameStarted, PlayerID: cmd.PlayerID}}, newState, nil
}

func addEmoji(s Session, cmd Command) ([]Event, Session, error) {
	emoji, err := ValidateEmoji(cmd.Emoji)
	if err != nil {
		return nil, s, err
	}
	if _, ok := s.PlayerIndex(cmd.PlayerID); !ok {
		return nil, s, ErrNotInRoom
	}
	if s.Phase != PhasePlaying || len(s.EmojiStory) >= StoryLength {
		return nil, s, ErrWrongPhase
	}
	current, ok := s.CurrentPlayer()
	if !ok || current.ID != cmd.PlayerID {
		return nil, s, ErrWrongTurn
	}

	newState := s.Clone()
	newState.EmojiStory = append(newState.EmojiStory, emoji)
	newState.CurrentPlayerIndex = (s.CurrentPlayerIndex + 1) % len(s.Players)

	events := []Event{
		{Type: EvtEmojiAdded, PlayerID: cmd.PlayerID, Emoji: emoji, Index: len(newState.EmojiStory) - 1},
		{Type: EvtTurnAdvanced, Index: newState.CurrentPlayerIndex},
	}

	if len(newState.EmojiStory) == StoryLength {
		newState.Phase = PhaseFinished
		events = append(events, Event{Type: EvtStoryCompleted})
	}
	return events, newState, nil
}

func playAgain(s Session, cmd Command) ([]Event, Session, error) {
	if _, ok := s.PlayerIndex(cmd.PlayerID); !ok {
		return nil, s, ErrNotInRoom
	}
	if s.Phase != PhaseFinished {
		return nil, s, ErrWrongPhase
	}

	newState := s.Clone()
	newState.EmojiStory = []string{}
	newState.CurrentPlayerIndex = 0
	newState.Phase = PhasePlaying
	return []Event{{Type: EvtGameReset, PlayerID: cmd.PlayerID}}, newState, nil
}

func nextOrder(players []Player) int {
	next := 0
	for _, p := range players {
		if p.Order >= next {
			next = p.Order + 1
		}
	}
	return next
}
