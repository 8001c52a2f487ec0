package feed

import (
	"context"

	"github.com/DoyleJ11/emoji-relay-backend/internal/store"
)

type Msg interface{ isFeedMsg() }

type Publish struct {
	Change store.Change
}

func (Publish) isFeedMsg() {}

type Join struct {
	ClientID string
	Outbox   chan store.Change // where this client wants to receive change notices
}

func (Join) isFeedMsg() {}

type Leave struct{ ClientID string }

func (Leave) isFeedMsg() {}

type Shutdown struct{}

func (Shutdown) isFeedMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isFeedMsg() {}

type View struct {
	RoomCode     string
	NumClients   int
	Published    int
	LastRevision int64
}

// Feed fans change notices for one room out to its subscribers.
type Feed struct {
	code         string
	inbox        chan Msg
	published    int
	lastRevision int64
	clients      map[string]chan store.Change
	ctx          context.Context
	cancel       context.CancelFunc
}

func NewFeed(parent context.Context, code string) *Feed {
	ctx, cancel := context.WithCancel(parent)

	f := &Feed{
		code:    code,
		inbox:   make(chan Msg, 64),
		clients: make(map[string]chan store.Change),
		ctx:     ctx,
		cancel:  cancel,
	}

	go f.loop()
	return f
}

func (f *Feed) loop() {
	for {
		select {
		case <-f.ctx.Done():
			f.shutdown()
			return

		case m := <-f.inbox:
			switch msg := m.(type) {
			case Join:
				if old, ok := f.clients[msg.ClientID]; ok && old != msg.Outbox {
					close(old)
				}
				f.clients[msg.ClientID] = msg.Outbox

			case Leave:
				if ch, ok := f.clients[msg.ClientID]; ok {
					close(ch) // Tell client no more notices
					delete(f.clients, msg.ClientID)
				}

			case Publish:
				f.published++
				if msg.Change.Revision > f.lastRevision {
					f.lastRevision = msg.Change.Revision
				}
				f.broadcast(msg.Change)

			case GetState:
				msg.Reply <- View{
					RoomCode:     f.code,
					NumClients:   len(f.clients),
					Published:    f.published,
					LastRevision: f.lastRevision,
				}

			case Shutdown:
				f.shutdown()
				return
			}
		}
	}
}

func (f *Feed) shutdown() {
	for id, ch := range f.clients {
		close(ch)
		delete(f.clients, id)
	}
	f.cancel()
}

func (f *Feed) broadcast(c store.Change) {
	for _, ch := range f.clients {
		select {
		case ch <- c:
			//ok
		default:
			// A notice is already queued for this client; the re-fetch it
			// triggers will observe this change too.
		}
	}
}

// Send delivers m unless the feed has already shut down.
func (f *Feed) Send(m Msg) bool {
	select {
	case f.inbox <- m:
		return true
	case <-f.ctx.Done():
		return false
	}
}

func (f *Feed) Done() <-chan struct{} { return f.ctx.Done() }

func (f *Feed) Code() string { return f.code }
