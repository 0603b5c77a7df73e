package channel

import "testing"

func TestEventQueueFirstUserEventAndResolve(t *testing.T) {
	q := newEventQueue()
	e1 := &Event{Kind: EventConsistencyCheck, RemainingUsers: remainingUsersOf([]string{"alice", "bob"})}
	e2 := &Event{Kind: EventChannelStatus, RemainingUsers: remainingUsersOf([]string{"bob"})}
	q.Push(e1)
	q.Push(e2)

	el := q.FirstUserEvent("alice")
	if el == nil || el.Value.(*Event) != e1 {
		t.Fatalf("FirstUserEvent(alice) did not return e1")
	}
	// resolving alice against e1 leaves bob still owed, so e1 must survive.
	q.Resolve(el, "alice")
	if len(q.List()) != 2 {
		t.Fatalf("resolving one of two remaining users should not drop the event")
	}

	// bob is named in both events; the oldest (e1) must be found first.
	el = q.FirstUserEvent("bob")
	if el == nil || el.Value.(*Event) != e1 {
		t.Fatalf("FirstUserEvent(bob) should return the oldest matching event")
	}
	q.Resolve(el, "bob")
	if len(q.List()) != 1 {
		t.Fatalf("resolving bob's last remaining user on e1 should drop it, len=%d", len(q.List()))
	}
	if q.List()[0] != e2 {
		t.Fatalf("e2 should be the only event left")
	}

	if el := q.FirstUserEvent("carol"); el != nil {
		t.Fatalf("FirstUserEvent(carol) should be nil, nobody owes carol anything")
	}
}

func TestEventQueuePurgeUser(t *testing.T) {
	q := newEventQueue()
	q.Push(&Event{Kind: EventKeyEvent, RemainingUsers: remainingUsersOf([]string{"alice"})})
	q.Push(&Event{Kind: EventKeyEvent, RemainingUsers: remainingUsersOf([]string{"alice", "bob"})})

	q.PurgeUser("alice")
	remaining := q.List()
	if len(remaining) != 1 {
		t.Fatalf("PurgeUser(alice) should drop the event only alice was named in, got %d left", len(remaining))
	}
	if remaining[0].RemainingUsers["alice"] {
		t.Fatalf("PurgeUser(alice) left alice in a surviving event's remaining set")
	}
	if !remaining[0].RemainingUsers["bob"] {
		t.Fatalf("PurgeUser(alice) should not touch bob's entry")
	}
}

func TestSortedKeysIsDeterministic(t *testing.T) {
	m := map[string]bool{"carol": true, "alice": true, "bob": true}
	want := []string{"alice", "bob", "carol"}
	for i := 0; i < 10; i++ {
		got := sortedKeys(m)
		if len(got) != len(want) {
			t.Fatalf("sortedKeys length = %d, want %d", len(got), len(want))
		}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("sortedKeys = %v, want %v", got, want)
			}
		}
	}
}
