// Package room supplies the concrete Room transports that the Channel
// core depends on but never implements itself: an in-memory broadcast
// bus for tests (Local), and a QUIC-backed broadcast
// room for running the module across real processes (QUICRoom).
package room

import "n1sec/internal/crypto"

// Identity bundles the key material every Room implementation exposes
// through channel.Room's accessor methods: an X25519 long-term pair for
// TripleDH and an RSA-PSS pair for signing, kept distinct exactly as
// internal/channel documents (spec §4.2).
type Identity struct {
	username string

	longTermPub  []byte
	longTermPriv []byte
	signPub      []byte
	signPriv     []byte
}

// NewIdentity generates a fresh long-term DH pair and signing pair for
// username.
func NewIdentity(username string) (Identity, error) {
	ltPub, ltPriv, err := crypto.GenerateLongTermDH()
	if err != nil {
		return Identity{}, err
	}
	signPub, signPriv, err := crypto.GenKeypair()
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		username:     username,
		longTermPub:  ltPub,
		longTermPriv: ltPriv,
		signPub:      signPub,
		signPriv:     signPriv,
	}, nil
}

func (id Identity) Username() string          { return id.username }
func (id Identity) LongTermPublicKey() []byte  { return id.longTermPub }
func (id Identity) LongTermPrivateKey() []byte { return id.longTermPriv }
func (id Identity) SigningPublicKey() []byte   { return id.signPub }
func (id Identity) SigningPrivateKey() []byte  { return id.signPriv }
