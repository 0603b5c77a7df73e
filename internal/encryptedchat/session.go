package encryptedchat

import (
	"bytes"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"n1sec/internal/channel"
	"n1sec/internal/crypto"
	"n1sec/internal/wire"
)

type publicKeyPayload struct {
	EphPub string `json:"eph_pub"`
}

type wrappedShare struct {
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

type secretSharePayload struct {
	Wrapped map[string]wrappedShare `json:"wrapped"`
}

type acceptancePayload struct {
	Confirm string `json:"confirm"`
}

type revealPayload struct {
	EphPriv string `json:"eph_priv"`
}

// session drives one pairwise-Diffie-Hellman group key exchange among a
// fixed member set, named deterministically by deriveKeyID so that every
// member's independently-triggered AddUser call converges on the same
// exchange without a separate negotiation message. The member sorted
// first acts as coordinator: once every member's session-ephemeral public
// key is in, the coordinator alone generates the actual group secret and
// fans it out, wrapped once per recipient under a pairwise X25519 key
// derived from that recipient's public key and the coordinator's own
// ephemeral private key. Every recipient recovers the identical wrap key
// from the same two public values using its own private half (ECDH is
// symmetric), unwraps its entry, and the group key is never itself
// transmitted in the clear.
//
// The trailing Reveal round publishes every member's session-ephemeral
// private key once every Acceptance has matched, so that a transcript of
// this exchange can later be audited or repudiated. It deliberately
// trades forward secrecy of the PublicKey round's ephemeral keys for that
// property: anyone who recorded the broadcast traffic and later collects
// every Reveal can reconstruct the group secret in hindsight. The group
// secret itself is never part of what gets revealed.
type session struct {
	keyID   string
	members []string // sorted, fixed for the life of this exchange
	self    string

	selfEph *crypto.Ephemeral

	pubKeys   map[string][]byte // username -> session ephemeral pubkey
	accepts   map[string]bool
	reveals   map[string][]byte // username -> revealed ephemeral private key
	activated map[string]bool

	groupSecret []byte // the coordinator's random contribution, once unwrapped
	groupKey    []byte // crypto.KDF("n1sec:v0:group-key|"+keyID, groupSecret); nil until the SecretShare round resolves
}

func newSession(self string, members []string) (*session, error) {
	eph, err := crypto.GenerateEphemeral()
	if err != nil {
		return nil, err
	}
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)
	return &session{
		keyID:     deriveKeyID(sorted),
		members:   sorted,
		self:      self,
		selfEph:   eph,
		pubKeys:   make(map[string][]byte),
		accepts:   make(map[string]bool),
		reveals:   make(map[string][]byte),
		activated: make(map[string]bool),
	}, nil
}

func (s *session) coordinator() string { return s.members[0] }

func (s *session) startOutbound() (*channel.KeyExchangeOutbound, error) {
	pub, err := s.selfEph.Public()
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(publicKeyPayload{EphPub: hex.EncodeToString(pub)})
	if err != nil {
		return nil, err
	}
	return &channel.KeyExchangeOutbound{Kind: wire.TypeKeyExchangePublicKey, KeyID: s.keyID, Payload: payload}, nil
}

func (s *session) handlePublicKey(sender string, payload []byte) (*channel.KeyExchangeOutbound, error) {
	var p publicKeyPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("encryptedchat: bad public key payload: %w", err)
	}
	pub, err := hex.DecodeString(p.EphPub)
	if err != nil {
		return nil, fmt.Errorf("encryptedchat: bad public key hex: %w", err)
	}
	s.pubKeys[sender] = pub
	if !allIn(s.pubKeys, s.members) {
		return nil, nil
	}
	return s.secretShareOutbound()
}

// secretShareOutbound runs once every member's public key has arrived. Only
// the coordinator emits anything; everyone else has nothing to broadcast
// here and instead waits to unwrap the coordinator's fan-out in
// handleSecretShare.
func (s *session) secretShareOutbound() (*channel.KeyExchangeOutbound, error) {
	if s.self != s.coordinator() {
		return nil, nil
	}
	secret := make([]byte, crypto.XKeySize)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}

	wrapped := make(map[string]wrappedShare, len(s.members))
	for _, m := range s.members {
		wrapKey, err := s.pairwiseWrapKey(m)
		if err != nil {
			return nil, err
		}
		nonce, ct, err := crypto.XSeal(wrapKey, secret, []byte(s.keyID))
		if err != nil {
			return nil, err
		}
		wrapped[m] = wrappedShare{Nonce: hex.EncodeToString(nonce), Ciphertext: hex.EncodeToString(ct)}
	}
	payload, err := json.Marshal(secretSharePayload{Wrapped: wrapped})
	if err != nil {
		return nil, err
	}
	return &channel.KeyExchangeOutbound{Kind: wire.TypeKeyExchangeSecretShare, KeyID: s.keyID, Payload: payload}, nil
}

// pairwiseWrapKey derives the key that wraps (or, from the recipient's
// side, unwraps) the group secret addressed to member, from the DH value
// between the coordinator's session-ephemeral key and member's. ECDH is
// symmetric, so the coordinator computing Shared(pubKeys[member]) and
// member computing Shared(pubKeys[coordinator]) land on the same value.
func (s *session) pairwiseWrapKey(member string) ([]byte, error) {
	shared, err := s.selfEph.Shared(s.pubKeys[member])
	if err != nil {
		return nil, err
	}
	return crypto.KDF("n1sec:v0:key-exchange-wrap|"+s.keyID, shared), nil
}

func (s *session) handleSecretShare(sender string, payload []byte) (*channel.KeyExchangeOutbound, error) {
	if sender != s.coordinator() {
		return nil, nil
	}
	var p secretSharePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("encryptedchat: bad secret share payload: %w", err)
	}
	entry, ok := p.Wrapped[s.self]
	if !ok {
		return nil, fmt.Errorf("encryptedchat: secret share carries no entry for %q", s.self)
	}
	nonce, err := hex.DecodeString(entry.Nonce)
	if err != nil {
		return nil, err
	}
	ct, err := hex.DecodeString(entry.Ciphertext)
	if err != nil {
		return nil, err
	}
	wrapKey, err := s.pairwiseWrapKey(s.coordinator())
	if err != nil {
		return nil, err
	}
	secret, err := crypto.XOpen(wrapKey, nonce, ct, []byte(s.keyID))
	if err != nil {
		return nil, fmt.Errorf("encryptedchat: unwrap secret share: %w", err)
	}
	s.groupSecret = secret
	s.groupKey = crypto.KDF("n1sec:v0:group-key|"+s.keyID, secret)

	payloadOut, err := json.Marshal(acceptancePayload{Confirm: hex.EncodeToString(s.acceptanceConfirm())})
	if err != nil {
		return nil, err
	}
	return &channel.KeyExchangeOutbound{Kind: wire.TypeKeyExchangeAcceptance, KeyID: s.keyID, Payload: payloadOut}, nil
}

func (s *session) acceptanceConfirm() []byte {
	return crypto.SHA3_256(append(append([]byte{}, s.groupKey...), []byte("accept")...))
}

func (s *session) handleAcceptance(sender string, payload []byte) (*channel.KeyExchangeOutbound, error) {
	if s.groupKey == nil {
		// Our own SecretShare processing hasn't landed yet; the total
		// broadcast order guarantees it will before any honest Acceptance
		// does, so this should not happen in practice. Ignore rather than
		// fail the whole exchange over a reorder we cannot have caused.
		return nil, nil
	}
	var p acceptancePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("encryptedchat: bad acceptance payload: %w", err)
	}
	if p.Confirm != hex.EncodeToString(s.acceptanceConfirm()) {
		return nil, fmt.Errorf("encryptedchat: acceptance mismatch from %q", sender)
	}
	s.accepts[sender] = true
	for _, m := range s.members {
		if !s.accepts[m] {
			return nil, nil
		}
	}
	return s.revealOutbound()
}

func (s *session) revealOutbound() (*channel.KeyExchangeOutbound, error) {
	priv := s.selfEph.PrivateBytesForTripleDH()
	payload, err := json.Marshal(revealPayload{EphPriv: hex.EncodeToString(priv)})
	if err != nil {
		return nil, err
	}
	return &channel.KeyExchangeOutbound{Kind: wire.TypeKeyExchangeReveal, KeyID: s.keyID, Payload: payload}, nil
}

func (s *session) handleReveal(sender string, payload []byte) (*channel.KeyExchangeOutbound, error) {
	var p revealPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("encryptedchat: bad reveal payload: %w", err)
	}
	priv, err := hex.DecodeString(p.EphPriv)
	if err != nil {
		return nil, err
	}
	pub, err := derivePublic(priv)
	if err != nil {
		return nil, fmt.Errorf("encryptedchat: bad revealed private key: %w", err)
	}
	if !bytes.Equal(pub, s.pubKeys[sender]) {
		return nil, fmt.Errorf("encryptedchat: reveal from %q does not match its published key", sender)
	}
	s.reveals[sender] = priv
	if len(s.reveals) != len(s.members) {
		return nil, nil
	}
	return &channel.KeyExchangeOutbound{Kind: wire.TypeKeyActivation, KeyID: s.keyID}, nil
}

func (s *session) handleActivation(sender string) error {
	if s.groupKey == nil {
		return fmt.Errorf("encryptedchat: activation for %q before group key derived", s.keyID)
	}
	s.activated[sender] = true
	return nil
}

func (s *session) fullyActivated() bool {
	for _, m := range s.members {
		if !s.activated[m] {
			return false
		}
	}
	return true
}

func allIn(have map[string][]byte, members []string) bool {
	for _, m := range members {
		if _, ok := have[m]; !ok {
			return false
		}
	}
	return true
}

func derivePublic(priv []byte) ([]byte, error) {
	key, err := ecdh.X25519().NewPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return key.PublicKey().Bytes(), nil
}
