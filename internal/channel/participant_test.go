package channel

import "testing"

func TestParticipantTableInsertGetRemove(t *testing.T) {
	tbl := newParticipantTable()
	alice := newParticipant("alice", []byte("lt"), []byte("eph"), []byte("sign"), []byte("nonce"))
	if err := tbl.Insert(alice); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tbl.Insert(alice); err != ErrDuplicateUsername {
		t.Fatalf("Insert duplicate: got %v, want ErrDuplicateUsername", err)
	}

	got, ok := tbl.Get("alice")
	if !ok || got != alice {
		t.Fatalf("Get(alice): got (%v, %v)", got, ok)
	}
	if !tbl.Has("alice") {
		t.Fatalf("Has(alice) = false")
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tbl.Len())
	}

	removed, ok := tbl.Remove("alice")
	if !ok || removed != alice {
		t.Fatalf("Remove(alice): got (%v, %v)", removed, ok)
	}
	if tbl.Has("alice") {
		t.Fatalf("Has(alice) = true after removal")
	}
	if _, ok := tbl.Remove("alice"); ok {
		t.Fatalf("Remove(alice) twice should report ok=false")
	}
}

func TestParticipantTableListOrderAndAuthorizedUsernames(t *testing.T) {
	tbl := newParticipantTable()
	names := []string{"carol", "alice", "bob"}
	for _, n := range names {
		if err := tbl.Insert(newParticipant(n, nil, nil, nil, nil)); err != nil {
			t.Fatalf("Insert(%s): %v", n, err)
		}
	}
	list := tbl.List()
	if len(list) != 3 {
		t.Fatalf("List() len = %d, want 3", len(list))
	}
	for i, n := range names {
		if list[i].Username != n {
			t.Fatalf("List()[%d] = %s, want %s (insertion order)", i, list[i].Username, n)
		}
	}

	alice, _ := tbl.Get("alice")
	bob, _ := tbl.Get("bob")
	alice.Authorized = true
	bob.Authorized = true
	authed := tbl.AuthorizedUsernames()
	if len(authed) != 2 || authed[0] != "alice" || authed[1] != "bob" {
		t.Fatalf("AuthorizedUsernames() = %v, want [alice bob] in insertion order", authed)
	}
}

func TestParticipantTablePurgeUser(t *testing.T) {
	tbl := newParticipantTable()
	alice := newParticipant("alice", nil, nil, nil, nil)
	bob := newParticipant("bob", nil, nil, nil, nil)
	_ = tbl.Insert(alice)
	_ = tbl.Insert(bob)

	alice.AuthorizedBy["bob"] = true
	alice.AuthorizedPeers["bob"] = true
	bob.AuthorizedBy["alice"] = true
	bob.AuthorizedPeers["alice"] = true

	tbl.PurgeUser("bob")
	if alice.AuthorizedBy["bob"] || alice.AuthorizedPeers["bob"] {
		t.Fatalf("PurgeUser(bob) left witness entries on alice: %+v", alice)
	}
	// purging bob must not touch witness entries naming someone else.
	if !bob.AuthorizedBy["alice"] || !bob.AuthorizedPeers["alice"] {
		t.Fatalf("PurgeUser(bob) incorrectly purged bob's own witness entries")
	}
}

// TestQuorumSatisfiedIsSymmetricAndComplete exercises spec's symmetric
// double-witness quorum rule directly: a participant is promotable only
// once every other authorized peer has BOTH vouched for them and been
// vouched for by them.
func TestQuorumSatisfiedIsSymmetricAndComplete(t *testing.T) {
	bob := newParticipant("bob", nil, nil, nil, nil)
	authorized := []string{"alice", "carol"}

	if bob.quorumSatisfied(authorized) {
		t.Fatalf("empty witness sets should never satisfy quorum")
	}

	bob.AuthorizedBy["alice"] = true
	if bob.quorumSatisfied(authorized) {
		t.Fatalf("one-directional witness for one peer should not satisfy quorum")
	}

	bob.AuthorizedPeers["alice"] = true
	if bob.quorumSatisfied(authorized) {
		t.Fatalf("quorum satisfied against alice alone but carol is also authorized and unwitnessed")
	}

	bob.AuthorizedBy["carol"] = true
	bob.AuthorizedPeers["carol"] = true
	if !bob.quorumSatisfied(authorized) {
		t.Fatalf("quorum should be satisfied once every authorized peer double-witnessed")
	}

	// a participant never needs to witness itself.
	self := newParticipant("alice", nil, nil, nil, nil)
	if !self.quorumSatisfied([]string{"alice"}) {
		t.Fatalf("quorumSatisfied should skip the participant's own name in authorizedUsernames")
	}
}
