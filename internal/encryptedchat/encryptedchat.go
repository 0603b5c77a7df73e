// Package encryptedchat implements the EncryptedChat group-key collaborator
// that internal/channel depends on but never implements itself: a real,
// exercised N-party Diffie-Hellman key exchange and the symmetric chat
// encryption that rides on top of its result, built from internal/crypto's
// 2-party X25519 shared-secret helper (Ephemeral.Shared), generalized from
// a pair to an arbitrary membership set.
package encryptedchat

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sort"

	"n1sec/internal/channel"
	"n1sec/internal/crypto"
)

// Chat implements channel.EncryptedChat. It tracks, per key id, either a
// live session this instance actually participated in (sessions) or a mere
// record of one learned secondhand from a peer's channel-status snapshot
// (stubs) — the latter carries no private material and can never produce a
// usable group key locally, matching the fact that the snapshot itself
// never carries any.
type Chat struct {
	self    string
	members map[string]bool

	sessions map[string]*session
	stubs    map[string][]string // keyID -> member list

	activeKeyID    string
	activeGroupKey []byte
}

// New returns a Chat for self with no members but itself.
func New(self string) *Chat {
	return &Chat{
		self:     self,
		members:  map[string]bool{self: true},
		sessions: make(map[string]*session),
		stubs:    make(map[string][]string),
	}
}

// CreateSoloSession gives the local user a usable group key of one before
// anybody else has joined, so SendMessage/DecryptMessage work from the
// start (spec §2 "Solo construction").
func (c *Chat) CreateSoloSession() error {
	s, err := newSession(c.self, []string{c.self})
	if err != nil {
		return err
	}
	secret := make([]byte, crypto.XKeySize)
	if _, err := rand.Read(secret); err != nil {
		return err
	}
	s.groupSecret = secret
	s.groupKey = crypto.KDF("n1sec:v0:group-key|"+s.keyID, secret)
	s.accepts[c.self] = true
	s.activated[c.self] = true
	c.sessions[s.keyID] = s
	c.activeKeyID = s.keyID
	c.activeGroupKey = s.groupKey
	return nil
}

// DoAddUser silently admits username with no key exchange: membership
// grows but the active group key, if any, is untouched (spec's "silent
// add" entry point, triggered by a forced promotion rather than a signed
// Authorization).
func (c *Chat) DoAddUser(username string, longTermPubKey []byte) (*channel.KeyExchangeOutbound, error) {
	c.members[username] = true
	return nil, nil
}

// AddUser admits username and starts a fresh key exchange over the whole
// resulting membership (spec's "add + schedule key exchange" entry point,
// triggered by a received Authorization).
func (c *Chat) AddUser(username string, longTermPubKey []byte) (*channel.KeyExchangeOutbound, error) {
	c.members[username] = true
	s, err := newSession(c.self, c.memberList())
	if err != nil {
		return nil, err
	}
	c.sessions[s.keyID] = s
	return s.startOutbound()
}

func (c *Chat) memberList() []string {
	list := make([]string, 0, len(c.members))
	for m := range c.members {
		list = append(list, m)
	}
	sort.Strings(list)
	return list
}

// RemoveUsers drops the named users from membership. It does not start a
// rekey: the spec leaves the departing member still able to decrypt any
// message sent before its removal lands everywhere, and rekeying on every
// departure would need its own quorum rule this codebase's Channel core
// does not impose (removal is a single-promoter event, not a consensus
// one).
func (c *Chat) RemoveUsers(usernames []string) error {
	for _, u := range usernames {
		delete(c.members, u)
	}
	return nil
}

func (c *Chat) HaveKeyExchange(keyID string) bool {
	if _, ok := c.sessions[keyID]; ok {
		return true
	}
	_, ok := c.stubs[keyID]
	return ok
}

func (c *Chat) HaveSession(keyID string) bool {
	s, ok := c.sessions[keyID]
	return ok && s.groupKey != nil
}

func (c *Chat) HandlePublicKey(sender, keyID string, payload []byte) (*channel.KeyExchangeOutbound, error) {
	s, ok := c.sessions[keyID]
	if !ok {
		return nil, nil
	}
	return s.handlePublicKey(sender, payload)
}

func (c *Chat) HandleSecretShare(sender, keyID string, payload []byte) (*channel.KeyExchangeOutbound, error) {
	s, ok := c.sessions[keyID]
	if !ok {
		return nil, nil
	}
	return s.handleSecretShare(sender, payload)
}

func (c *Chat) HandleAcceptance(sender, keyID string, payload []byte) (*channel.KeyExchangeOutbound, error) {
	s, ok := c.sessions[keyID]
	if !ok {
		return nil, nil
	}
	return s.handleAcceptance(sender, payload)
}

func (c *Chat) HandleReveal(sender, keyID string, payload []byte) (*channel.KeyExchangeOutbound, error) {
	s, ok := c.sessions[keyID]
	if !ok {
		return nil, nil
	}
	return s.handleReveal(sender, payload)
}

// HandleActivation marks sender's activation of keyID and, once every
// member of that exchange has activated, promotes it to the chat's active
// group key.
func (c *Chat) HandleActivation(sender, keyID string) error {
	s, ok := c.sessions[keyID]
	if !ok {
		// A key exchange we only know from a stub never reaches a group
		// key locally, so activation of it cannot change what we decrypt
		// with. Record nothing; our own membership's next AddUser will
		// start a session we do participate in.
		return nil
	}
	if err := s.handleActivation(sender); err != nil {
		return err
	}
	if s.fullyActivated() {
		c.activeKeyID = keyID
		c.activeGroupKey = s.groupKey
	}
	return nil
}

type serializedSession struct {
	KeyID   string   `json:"key_id"`
	Members []string `json:"members"`
}

// EncodeKeyExchanges returns the public bookkeeping for every key exchange
// this instance knows about. The payload is deliberately limited to key id
// and membership: it rides inside a ChannelStatus snapshot broadcast in
// plaintext to the whole room, including non-members of the exchange, so
// it must never carry key material.
func (c *Chat) EncodeKeyExchanges() ([]channel.KeyExchangeState, error) {
	keyIDs := make([]string, 0, len(c.sessions)+len(c.stubs))
	seen := make(map[string]bool)
	for id := range c.sessions {
		keyIDs = append(keyIDs, id)
		seen[id] = true
	}
	for id := range c.stubs {
		if !seen[id] {
			keyIDs = append(keyIDs, id)
		}
	}
	sort.Strings(keyIDs)

	out := make([]channel.KeyExchangeState, 0, len(keyIDs))
	for _, id := range keyIDs {
		var members []string
		if s, ok := c.sessions[id]; ok {
			members = s.members
		} else {
			members = c.stubs[id]
		}
		payload, err := json.Marshal(serializedSession{KeyID: id, Members: members})
		if err != nil {
			return nil, err
		}
		out = append(out, channel.KeyExchangeState{KeyID: id, State: payload})
	}
	return out, nil
}

// UnserializeKeyExchange records a key exchange learned from a peer's
// snapshot as a stub: enough to answer HaveKeyExchange truthfully, never
// enough to derive a group key, since the snapshot never carried one.
func (c *Chat) UnserializeKeyExchange(state []byte) (string, error) {
	var s serializedSession
	if err := json.Unmarshal(state, &s); err != nil {
		return "", fmt.Errorf("encryptedchat: unserialize key exchange: %w", err)
	}
	if s.KeyID == "" {
		return "", fmt.Errorf("encryptedchat: unserialize key exchange: empty key id")
	}
	if _, ok := c.sessions[s.KeyID]; !ok {
		c.stubs[s.KeyID] = s.Members
	}
	return s.KeyID, nil
}

// DecryptMessage opens ciphertext under the active group key, binding the
// sender's username as associated data so a ciphertext cannot be replayed
// under a different claimed sender.
func (c *Chat) DecryptMessage(sender string, ciphertext []byte) ([]byte, error) {
	if c.activeGroupKey == nil {
		return nil, fmt.Errorf("encryptedchat: no active group key")
	}
	if len(ciphertext) < 24 {
		return nil, fmt.Errorf("encryptedchat: ciphertext too short")
	}
	nonce, ct := ciphertext[:24], ciphertext[24:]
	return crypto.XOpen(c.activeGroupKey, nonce, ct, []byte(sender))
}

// SendMessage seals plaintext under the active group key, binding the
// local username as associated data so DecryptMessage's AAD (the claimed
// sender) matches on every honest recipient: from the author's own
// perspective sender == c.self.
func (c *Chat) SendMessage(plaintext []byte) ([]byte, error) {
	if c.activeGroupKey == nil {
		return nil, fmt.Errorf("encryptedchat: no active group key")
	}
	nonce, ct, err := crypto.XSeal(c.activeGroupKey, plaintext, []byte(c.self))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(ct))
	out = append(out, nonce...)
	out = append(out, ct...)
	return out, nil
}
