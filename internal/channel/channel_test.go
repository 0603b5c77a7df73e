package channel

import (
	"bytes"
	"testing"

	"n1sec/internal/crypto"
	"n1sec/internal/room"
	"n1sec/internal/wire"
)

// stubRoom wraps a real room.Identity (real X25519/RSA-PSS key material)
// with a no-op transport: these tests drive the Channel core directly
// through MessageReceived rather than through a live broadcast bus, so
// SendMessage only needs to record what was sent for inspection.
type stubRoom struct {
	room.Identity
	sent [][]byte
}

func newStubRoom(t *testing.T, username string) *stubRoom {
	t.Helper()
	id, err := room.NewIdentity(username)
	if err != nil {
		t.Fatalf("room.NewIdentity(%s): %v", username, err)
	}
	return &stubRoom{Identity: id}
}

func (r *stubRoom) SendMessage(payload []byte) error {
	r.sent = append(r.sent, payload)
	return nil
}

func (r *stubRoom) lastSent() []byte {
	if len(r.sent) == 0 {
		return nil
	}
	return r.sent[len(r.sent)-1]
}

// stubChat is a minimal EncryptedChat: enough for the participant/auth/
// authorize machinery under test, with no real key exchange. Key-exchange
// round handlers are exercised instead against the real implementation in
// internal/encryptedchat, from the external scenarios in
// scenarios_test.go — a white-box unit here has no use for a real DH
// exchange, only for the Channel-core bookkeeping around it.
type stubChat struct {
	addedUsers []string
	removed    []string
}

func (s *stubChat) CreateSoloSession() error { return nil }
func (s *stubChat) DoAddUser(username string, _ []byte) (*KeyExchangeOutbound, error) {
	s.addedUsers = append(s.addedUsers, username)
	return nil, nil
}
func (s *stubChat) AddUser(username string, _ []byte) (*KeyExchangeOutbound, error) {
	s.addedUsers = append(s.addedUsers, username)
	return nil, nil
}
func (s *stubChat) RemoveUsers(usernames []string) error {
	s.removed = append(s.removed, usernames...)
	return nil
}
func (s *stubChat) HaveKeyExchange(string) bool                                     { return false }
func (s *stubChat) HaveSession(string) bool                                         { return false }
func (s *stubChat) UnserializeKeyExchange([]byte) (string, error)                    { return "", nil }
func (s *stubChat) EncodeKeyExchanges() ([]KeyExchangeState, error)                  { return nil, nil }
func (s *stubChat) HandlePublicKey(string, string, []byte) (*KeyExchangeOutbound, error)  { return nil, nil }
func (s *stubChat) HandleSecretShare(string, string, []byte) (*KeyExchangeOutbound, error) { return nil, nil }
func (s *stubChat) HandleAcceptance(string, string, []byte) (*KeyExchangeOutbound, error)  { return nil, nil }
func (s *stubChat) HandleReveal(string, string, []byte) (*KeyExchangeOutbound, error)      { return nil, nil }
func (s *stubChat) HandleActivation(string, string) error                            { return nil }
func (s *stubChat) DecryptMessage(_ string, ciphertext []byte) ([]byte, error)       { return ciphertext, nil }
func (s *stubChat) SendMessage(plaintext []byte) ([]byte, error)                     { return plaintext, nil }

// recordingInterface captures every Interface callback for assertion.
type recordingInterface struct {
	joined, authorized bool
	userJoined         []string
	authenticated      []string
	authFailed         []string
	authorizedBy       [][2]string
	promoted           []string
	left               []string
	chat               [][2][]byte
}

func (r *recordingInterface) Joined()     { r.joined = true }
func (r *recordingInterface) Authorized() { r.authorized = true }
func (r *recordingInterface) UserJoined(u string) {
	r.userJoined = append(r.userJoined, u)
}
func (r *recordingInterface) UserAuthenticated(u string, _ []byte) {
	r.authenticated = append(r.authenticated, u)
}
func (r *recordingInterface) UserAuthenticationFailed(u string) {
	r.authFailed = append(r.authFailed, u)
}
func (r *recordingInterface) UserAuthorizedBy(authorizer, subject string) {
	r.authorizedBy = append(r.authorizedBy, [2]string{authorizer, subject})
}
func (r *recordingInterface) UserPromoted(u string) {
	r.promoted = append(r.promoted, u)
}
func (r *recordingInterface) UserLeft(u string) {
	r.left = append(r.left, u)
}
func (r *recordingInterface) ChatReceived(sender string, plaintext []byte) {
	r.chat = append(r.chat, [2][]byte{[]byte(sender), plaintext})
}

func TestStatusHashFoldingIsDeterministic(t *testing.T) {
	mkBare := func(t *testing.T, username string) *Channel {
		c, err := newBareChannel(newStubRoom(t, username), &stubChat{}, Options{})
		if err != nil {
			t.Fatalf("newBareChannel: %v", err)
		}
		return c
	}
	a := mkBare(t, "alice")
	b := mkBare(t, "bob")

	start := bytes.Repeat([]byte{0x42}, 32)
	copy(a.statusHash[:], start)
	copy(b.statusHash[:], start)

	a.updateStatusHash("carol", hashTypeChat, []byte("hello"))
	b.updateStatusHash("carol", hashTypeChat, []byte("hello"))
	if a.statusHash != b.statusHash {
		t.Fatalf("two channels folding the identical (sender,type,payload) from the identical starting state diverged")
	}

	// a different payload must fold to a different hash.
	copy(a.statusHash[:], start)
	a.updateStatusHash("carol", hashTypeChat, []byte("goodbye"))
	if a.statusHash == b.statusHash {
		t.Fatalf("folding a different payload produced the same hash")
	}
}

func TestAuthenticationTokenIsSymmetric(t *testing.T) {
	alice, err := newBareChannel(newStubRoom(t, "alice"), &stubChat{}, Options{})
	if err != nil {
		t.Fatalf("newBareChannel(alice): %v", err)
	}
	bob, err := newBareChannel(newStubRoom(t, "bob"), &stubChat{}, Options{})
	if err != nil {
		t.Fatalf("newBareChannel(bob): %v", err)
	}

	nonce := []byte("shared-nonce-for-test")
	aliceLTPub := alice.room.LongTermPublicKey()
	aliceEphPub := alice.ephemeralPublicKey()
	bobLTPub := bob.room.LongTermPublicKey()
	bobEphPub := bob.ephemeralPublicKey()

	// alice proves her own identity to bob (forPeer=false, "I am telling
	// you who I am").
	aliceToken, err := alice.authenticationToken("bob", bobLTPub, bobEphPub, nonce, false)
	if err != nil {
		t.Fatalf("alice.authenticationToken: %v", err)
	}
	// bob confirms the claim alice just made (forPeer=true, "binding the
	// peer's own identity back at them").
	bobToken, err := bob.authenticationToken("alice", aliceLTPub, aliceEphPub, nonce, true)
	if err != nil {
		t.Fatalf("bob.authenticationToken: %v", err)
	}
	if !bytes.Equal(aliceToken, bobToken) {
		t.Fatalf("authenticationToken is not symmetric: alice=%x bob=%x", aliceToken, bobToken)
	}

	// the reverse direction (bob proving himself, alice confirming) must
	// also agree, and must differ from the first pair since the bound
	// identity changed.
	bobToken2, err := bob.authenticationToken("alice", aliceLTPub, aliceEphPub, nonce, false)
	if err != nil {
		t.Fatalf("bob.authenticationToken (forPeer=false): %v", err)
	}
	aliceToken2, err := alice.authenticationToken("bob", bobLTPub, bobEphPub, nonce, true)
	if err != nil {
		t.Fatalf("alice.authenticationToken (forPeer=true): %v", err)
	}
	if !bytes.Equal(bobToken2, aliceToken2) {
		t.Fatalf("reverse-direction authenticationToken is not symmetric")
	}
	if bytes.Equal(aliceToken, bobToken2) {
		t.Fatalf("tokens for the two distinct directions should not collide")
	}
}

// newSoloTestChannel builds a NewSolo channel over stubs, for tests that
// need a Channel with a real self-participant already inserted.
func newSoloTestChannel(t *testing.T, username string) (*Channel, *stubRoom, *stubChat, *recordingInterface) {
	t.Helper()
	r := newStubRoom(t, username)
	ec := &stubChat{}
	iface := &recordingInterface{}
	c, err := NewSolo(r, ec, Options{Interface: iface})
	if err != nil {
		t.Fatalf("NewSolo(%s): %v", username, err)
	}
	return c, r, ec, iface
}

// signedAuthorization builds a validly-signed AuthorizationMsg asserting
// that signerLTPriv/signerSignPriv vouches for (username, ltpk, ephpk,
// nonce), exactly as Channel.sendAuthorization would produce it.
func signedAuthorization(t *testing.T, signerSignPriv []byte, username string, ltpk, ephpk, nonce []byte) []byte {
	t.Helper()
	signBytes := wire.AuthorizationSignBytes(username, ltpk, ephpk, nonce)
	sig, err := crypto.SignDigest(signerSignPriv, crypto.SHA3_256(signBytes))
	if err != nil {
		t.Fatalf("crypto.SignDigest: %v", err)
	}
	payload, err := wire.EncodeAuthorization(wire.AuthorizationMsg{
		Username:           username,
		LongTermPubKey:     hexEnc(ltpk),
		EphemeralPubKey:    hexEnc(ephpk),
		AuthorizationNonce: hexEnc(nonce),
		Sig:                hexEnc(sig),
	})
	if err != nil {
		t.Fatalf("wire.EncodeAuthorization: %v", err)
	}
	return payload
}

// TestAuthorizationIsMutualAndPromotes drives both halves of the
// symmetric double-witness quorum directly: alice vouches for bob, then
// bob vouches for alice back, and only the second message should
// complete bob's quorum and promote him.
func TestAuthorizationIsMutualAndPromotes(t *testing.T) {
	alice, aliceRoom, aliceEC, iface := newSoloTestChannel(t, "alice")

	bobIdentity, err := room.NewIdentity("bob")
	if err != nil {
		t.Fatalf("room.NewIdentity(bob): %v", err)
	}
	bobNonce := []byte("bobs-authorization-nonce")
	bobP := newParticipant("bob", bobIdentity.LongTermPublicKey(), []byte("bob-ephemeral"), bobIdentity.SigningPublicKey(), bobNonce)
	if err := alice.participants.Insert(bobP); err != nil {
		t.Fatalf("insert bob: %v", err)
	}

	// alice vouches for bob: broadcasts a signed Authorization, which
	// (looped back, as every broadcast would be over a real Room) alice
	// dispatches to herself.
	if err := alice.Authorize("bob"); err != nil {
		t.Fatalf("alice.Authorize(bob): %v", err)
	}
	aliceVouch := aliceRoom.lastSent()
	if aliceVouch == nil {
		t.Fatalf("alice.Authorize(bob) did not broadcast anything")
	}
	if err := alice.MessageReceived("alice", aliceVouch); err != nil {
		t.Fatalf("MessageReceived(alice's own authorization): %v", err)
	}
	if !bobP.AuthorizedBy["alice"] {
		t.Fatalf("bob should now be witnessed by alice")
	}
	if bobP.Authorized {
		t.Fatalf("bob should not be promoted yet, he has not vouched for alice")
	}
	if len(aliceEC.addedUsers) != 0 {
		t.Fatalf("no promotion should have happened yet, but EncryptedChat.AddUser was called")
	}

	// bob vouches for alice back, completing the mutual quorum.
	aliceSelf, _ := alice.participants.Get("alice")
	bobVouch := signedAuthorization(t, bobIdentity.SigningPrivateKey(), "alice", aliceSelf.LongTermPubKey, aliceSelf.EphemeralPubKey, aliceSelf.AuthorizationNonce)
	if err := alice.MessageReceived("bob", bobVouch); err != nil {
		t.Fatalf("MessageReceived(bob's authorization): %v", err)
	}

	if !bobP.Authorized {
		t.Fatalf("bob should be promoted once the mutual quorum is satisfied")
	}
	if len(iface.promoted) != 1 || iface.promoted[0] != "bob" {
		t.Fatalf("UserPromoted(bob) callback did not fire, got %v", iface.promoted)
	}
	if len(aliceEC.addedUsers) != 1 || aliceEC.addedUsers[0] != "bob" {
		t.Fatalf("EncryptedChat.AddUser(bob) should have been called exactly once, got %v", aliceEC.addedUsers)
	}
	if len(iface.authorizedBy) != 2 {
		t.Fatalf("expected two UserAuthorizedBy notifications (one per direction), got %v", iface.authorizedBy)
	}
}

// TestBadSignatureTriggersRemoval exercises the "protocol violation"
// behavior shared by every signed message handler: a signature that
// fails to verify removes the sender outright, regardless of what the
// message otherwise claims.
func TestBadSignatureTriggersRemoval(t *testing.T) {
	alice, _, _, iface := newSoloTestChannel(t, "alice")

	bobIdentity, err := room.NewIdentity("bob")
	if err != nil {
		t.Fatalf("room.NewIdentity(bob): %v", err)
	}
	bobP := newParticipant("bob", bobIdentity.LongTermPublicKey(), []byte("bob-ephemeral"), bobIdentity.SigningPublicKey(), nil)
	if err := alice.participants.Insert(bobP); err != nil {
		t.Fatalf("insert bob: %v", err)
	}

	forgedHash := bytes.Repeat([]byte{0x01}, 32)
	payload, err := wire.EncodeConsistencyCheck(wire.ConsistencyCheckMsg{
		ChannelStatusHash: hexEnc(forgedHash),
		Sig:               hexEnc([]byte("not a real signature")),
	})
	if err != nil {
		t.Fatalf("wire.EncodeConsistencyCheck: %v", err)
	}

	if err := alice.MessageReceived("bob", payload); err != nil {
		t.Fatalf("MessageReceived(forged ConsistencyCheck): %v", err)
	}

	if alice.participants.Has("bob") {
		t.Fatalf("bob should have been removed after sending a badly-signed message")
	}
	if len(iface.left) != 1 || iface.left[0] != "bob" {
		t.Fatalf("UserLeft(bob) callback did not fire, got %v", iface.left)
	}
}
