package feed

import (
	"context"
	"testing"
	"time"

	"github.com/DoyleJ11/emoji-relay-backend/internal/store"
)

// helper: receive one notice with a timeout so tests never hang
func recvChange(t *testing.T, ch <-chan store.Change, within time.Duration) store.Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return c
	case <-time.After(within):
		t.Fatalf("timed out waiting for change")
		return store.Change{} // unreachable
	}
}

func recvNoChange(t *testing.T, ch <-chan store.Change, within time.Duration) {
	t.Helper()
	select {
	case c, ok := <-ch:
		if !ok {
			// channel closed → that's fine; no further notices possible
			return
		}
		t.Fatalf("expected no change within %v, but got: %+v", within, c)
	case <-time.After(within):
		// good: no change
	}
}

func recvView(t *testing.T, f *Feed, within time.Duration) View {
	t.Helper()
	reply := make(chan View, 1)
	if !f.Send(GetState{Reply: reply}) {
		t.Fatalf("feed is shut down")
	}
	select {
	case v := <-reply:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func TestFeed_Publish_ReachesEverySubscriber(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := NewFeed(ctx, "ABC123")

	a := make(chan store.Change, 1)
	b := make(chan store.Change, 1)
	f.Send(Join{ClientID: "a", Outbox: a})
	f.Send(Join{ClientID: "b", Outbox: b})

	change := store.Change{RoomCode: "ABC123", Table: store.TableGames, Op: store.OpUpdate, Revision: 3}
	f.Send(Publish{Change: change})

	if got := recvChange(t, a, 100*time.Millisecond); got != change {
		t.Fatalf("a: want %+v, got %+v", change, got)
	}
	if got := recvChange(t, b, 100*time.Millisecond); got != change {
		t.Fatalf("b: want %+v, got %+v", change, got)
	}

	v := recvView(t, f, 100*time.Millisecond)
	if v.NumClients != 2 || v.Published != 1 || v.LastRevision != 3 {
		t.Fatalf("unexpected view %+v", v)
	}
}

func TestFeed_FullOutboxCoalescesInsteadOfDropping(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := NewFeed(ctx, "ABC123")

	out := make(chan store.Change, 1)
	f.Send(Join{ClientID: "slow", Outbox: out})

	for rev := int64(1); rev <= 3; rev++ {
		f.Send(Publish{Change: store.Change{RoomCode: "ABC123", Op: store.OpUpdate, Revision: rev}})
	}

	v := recvView(t, f, 100*time.Millisecond)
	if v.NumClients != 1 {
		t.Fatalf("slow client must stay subscribed; NumClients=%d", v.NumClients)
	}
	if v.Published != 3 {
		t.Fatalf("want 3 published, got %d", v.Published)
	}

	first := recvChange(t, out, 100*time.Millisecond)
	if first.Revision != 1 {
		t.Fatalf("want the queued notice (rev 1), got %+v", first)
	}
	recvNoChange(t, out, 50*time.Millisecond)
}

func TestFeed_LeaveClosesOutbox(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := NewFeed(ctx, "ABC123")

	out := make(chan store.Change, 1)
	f.Send(Join{ClientID: "c1", Outbox: out})
	f.Send(Leave{ClientID: "c1"})

	select {
	case _, ok := <-out:
		if ok {
			t.Fatalf("expected closed outbox, got a notice")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("outbox was not closed on leave")
	}

	if v := recvView(t, f, 100*time.Millisecond); v.NumClients != 0 {
		t.Fatalf("want 0 clients, got %d", v.NumClients)
	}
}

func TestFeed_Shutdown_ClosesClientsAndRejectsSends(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := NewFeed(ctx, "ABC123")

	out := make(chan store.Change, 1)
	f.Send(Join{ClientID: "c1", Outbox: out})
	f.Send(Shutdown{})

	select {
	case <-f.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("feed did not stop")
	}
	recvNoChange(t, out, 50*time.Millisecond)

	if f.Send(Publish{Change: store.Change{RoomCode: "ABC123"}}) {
		t.Fatalf("send after shutdown should report false")
	}
}
