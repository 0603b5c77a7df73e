package room

import "testing"

func TestLocalBroadcastReachesEveryMemberIncludingSender(t *testing.T) {
	bus := NewLocalBus()

	type received struct {
		sender  string
		payload string
	}
	var aliceSeen, bobSeen []received

	aliceIdentity, err := NewIdentity("alice")
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	bobIdentity, err := NewIdentity("bob")
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}

	alice, err := JoinLocal(bus, aliceIdentity, func(sender string, payload []byte) {
		aliceSeen = append(aliceSeen, received{sender, string(payload)})
	})
	if err != nil {
		t.Fatalf("JoinLocal(alice): %v", err)
	}
	bob, err := JoinLocal(bus, bobIdentity, func(sender string, payload []byte) {
		bobSeen = append(bobSeen, received{sender, string(payload)})
	})
	if err != nil {
		t.Fatalf("JoinLocal(bob): %v", err)
	}

	if err := alice.SendMessage([]byte("hi from alice")); err != nil {
		t.Fatalf("alice.SendMessage: %v", err)
	}
	if err := bob.SendMessage([]byte("hi from bob")); err != nil {
		t.Fatalf("bob.SendMessage: %v", err)
	}

	want := []received{{"alice", "hi from alice"}, {"bob", "hi from bob"}}
	if len(aliceSeen) != 2 || aliceSeen[0] != want[0] || aliceSeen[1] != want[1] {
		t.Fatalf("alice saw %+v, want %+v", aliceSeen, want)
	}
	if len(bobSeen) != 2 || bobSeen[0] != want[0] || bobSeen[1] != want[1] {
		t.Fatalf("bob saw %+v, want %+v (alice's and bob's views must match)", bobSeen, want)
	}
}

func TestJoinLocalRejectsDuplicateUsername(t *testing.T) {
	bus := NewLocalBus()
	identity, err := NewIdentity("alice")
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	if _, err := JoinLocal(bus, identity, func(string, []byte) {}); err != nil {
		t.Fatalf("first JoinLocal: %v", err)
	}
	if _, err := JoinLocal(bus, identity, func(string, []byte) {}); err == nil {
		t.Fatalf("expected an error joining with a username already on the bus")
	}
}

func TestLocalLeaveStopsDelivery(t *testing.T) {
	bus := NewLocalBus()
	aliceIdentity, _ := NewIdentity("alice")
	bobIdentity, _ := NewIdentity("bob")

	var bobSeen int
	alice, _ := JoinLocal(bus, aliceIdentity, func(string, []byte) {})
	bob, _ := JoinLocal(bus, bobIdentity, func(string, []byte) { bobSeen++ })

	bob.Leave()
	if err := alice.SendMessage([]byte("x")); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if bobSeen != 0 {
		t.Fatalf("expected no deliveries after Leave, got %d", bobSeen)
	}
}
