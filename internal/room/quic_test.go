package room

import (
	"testing"
	"time"
)

func TestQUICRoomBroadcastReachesEveryMember(t *testing.T) {
	hub, err := ListenHub("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenHub: %v", err)
	}
	defer hub.Close()

	aliceIdentity, err := NewIdentity("alice")
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	bobIdentity, err := NewIdentity("bob")
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}

	type received struct {
		sender  string
		payload string
	}
	aliceCh := make(chan received, 4)
	bobCh := make(chan received, 4)

	alice, err := DialQUICRoom(hub.Addr(), aliceIdentity, func(sender string, payload []byte) {
		aliceCh <- received{sender, string(payload)}
	})
	if err != nil {
		t.Fatalf("DialQUICRoom(alice): %v", err)
	}
	defer alice.Close()

	bob, err := DialQUICRoom(hub.Addr(), bobIdentity, func(sender string, payload []byte) {
		bobCh <- received{sender, string(payload)}
	})
	if err != nil {
		t.Fatalf("DialQUICRoom(bob): %v", err)
	}
	defer bob.Close()

	if err := alice.SendMessage([]byte("hello from alice")); err != nil {
		t.Fatalf("alice.SendMessage: %v", err)
	}

	want := received{"alice", "hello from alice"}
	for _, ch := range []chan received{aliceCh, bobCh} {
		select {
		case got := <-ch:
			if got != want {
				t.Fatalf("got %+v, want %+v", got, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for broadcast delivery")
		}
	}
}
