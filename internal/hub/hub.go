package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/emoji-relay-backend/internal/feed"
	"github.com/DoyleJ11/emoji-relay-backend/internal/store"
)

var ErrClosed = errors.New("hub is shut down")

type HubMsg interface{ isHubMsg() }

type Subscribe struct {
	Code     string
	ClientID string
	Outbox   chan store.Change
	Reply    chan *feed.Feed
}

type Publish struct {
	Change store.Change
}

// Resync sends an OpResync notice to every live feed.
type Resync struct{}

type GetFeed struct {
	Code  string
	Reply chan *feed.Feed
}

type RemoveFeed struct {
	Code string
}

type ShutdownHub struct{}

func (Subscribe) isHubMsg()   {}
func (Publish) isHubMsg()     {}
func (Resync) isHubMsg()      {}
func (GetFeed) isHubMsg()     {}
func (RemoveFeed) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

// Hub owns one feed per room code. Only the hub loop creates or removes
// feeds, so a subscribe can never race an idle sweep.
type Hub struct {
	inbox      chan HubMsg
	feeds      map[string]*feed.Feed
	sweepEvery time.Duration
	log        *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewHub starts the hub loop. A zero sweepEvery keeps idle feeds forever.
func NewHub(parent context.Context, sweepEvery time.Duration, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:      make(chan HubMsg, 64),
		feeds:      make(map[string]*feed.Feed),
		sweepEvery: sweepEvery,
		log:        log.Named("hub"),
		ctx:        ctx,
		cancel:     cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	var sweep <-chan time.Time
	if h.sweepEvery > 0 {
		t := time.NewTicker(h.sweepEvery)
		defer t.Stop()
		sweep = t.C
	}

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case <-sweep:
			h.sweepIdle()

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Subscribe:
				f := h.ensure(msg.Code)
				// The hub is the only sender of Join, so joins stay ordered with removals.
				f.Send(feed.Join{ClientID: msg.ClientID, Outbox: msg.Outbox})
				msg.Reply <- f

			case Publish:
				if f := h.feeds[msg.Change.RoomCode]; f != nil {
					f.Send(feed.Publish{Change: msg.Change})
				}

			case Resync:
				for code, f := range h.feeds {
					f.Send(feed.Publish{Change: store.Change{RoomCode: code, Op: store.OpResync}})
				}

			case GetFeed:
				msg.Reply <- h.feeds[msg.Code] // May be nil

			case RemoveFeed:
				if f := h.feeds[msg.Code]; f != nil {
					f.Send(feed.Shutdown{})
					delete(h.feeds, msg.Code)
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) ensure(code string) *feed.Feed {
	if f := h.feeds[code]; f != nil {
		return f
	}
	f := feed.NewFeed(h.ctx, code)
	h.feeds[code] = f
	return f
}

func (h *Hub) sweepIdle() {
	for code, f := range h.feeds {
		reply := make(chan feed.View, 1)
		if !f.Send(feed.GetState{Reply: reply}) {
			delete(h.feeds, code)
			continue
		}
		select {
		case v := <-reply:
			if v.NumClients == 0 {
				f.Send(feed.Shutdown{})
				delete(h.feeds, code)
				h.log.Debug("removed idle feed", zap.String("room_code", code))
			}
		case <-f.Done():
			delete(h.feeds, code)
		}
	}
}

func (h *Hub) shutdown() {
	for _, f := range h.feeds {
		f.Send(feed.Shutdown{})
	}
	clear(h.feeds)
	h.cancel()
}

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish is fire-and-forget; a change for a room nobody follows is dropped.
func (h *Hub) Publish(c store.Change) {
	_ = h.send(context.Background(), Publish{Change: c})
}

func (h *Hub) ResyncAll() {
	_ = h.send(context.Background(), Resync{})
}

func (h *Hub) Shutdown() {
	_ = h.send(context.Background(), ShutdownHub{})
}

// Subscribe registers clientID on the room's feed. The returned subscription
// receives at most one pending notice at a time; see feed.broadcast.
func (h *Hub) Subscribe(ctx context.Context, code, clientID string) (*Subscription, error) {
	out := make(chan store.Change, 1)
	reply := make(chan *feed.Feed, 1)
	if err := h.send(ctx, Subscribe{Code: code, ClientID: clientID, Outbox: out, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case f := <-reply:
		return &Subscription{id: clientID, feed: f, changes: out}, nil
	case <-h.ctx.Done():
		return nil, ErrClosed
	}
}

type Subscription struct {
	id      string
	feed    *feed.Feed
	changes chan store.Change
	once    sync.Once
}

func (s *Subscription) Changes() <-chan store.Change { return s.changes }

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.feed.Send(feed.Leave{ClientID: s.id})
	})
}
