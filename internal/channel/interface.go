package channel

import "time"

// Interface is the optional UI/observer capability a Channel is
// parameterized over (spec §6, §9 "Observer callbacks"). The Channel never
// blocks on it and never treats a missing Interface as an error: every
// call site nil-checks before firing.
type Interface interface {
	Joined()
	Authorized()
	UserJoined(username string)
	UserAuthenticated(username string, longTermPubKey []byte)
	UserAuthenticationFailed(username string)
	UserAuthorizedBy(authorizer, subject string)
	UserPromoted(username string)
	UserLeft(username string)
	ChatReceived(sender string, plaintext []byte)
}

func (c *Channel) notifyJoined() {
	if c.iface != nil {
		c.iface.Joined()
	}
}

func (c *Channel) notifyAuthorized() {
	if c.iface != nil {
		c.iface.Authorized()
	}
}

func (c *Channel) notifyUserJoined(username string) {
	if c.iface != nil {
		c.iface.UserJoined(username)
	}
}

func (c *Channel) notifyUserAuthenticated(username string, ltpk []byte) {
	if c.iface != nil {
		c.iface.UserAuthenticated(username, ltpk)
	}
}

func (c *Channel) notifyUserAuthenticationFailed(username string) {
	if c.iface != nil {
		c.iface.UserAuthenticationFailed(username)
	}
}

func (c *Channel) notifyUserAuthorizedBy(authorizer, subject string) {
	if c.iface != nil {
		c.iface.UserAuthorizedBy(authorizer, subject)
	}
}

func (c *Channel) notifyUserPromoted(username string) {
	if c.iface != nil {
		c.iface.UserPromoted(username)
	}
}

func (c *Channel) notifyUserLeft(username string) {
	if c.iface != nil {
		c.iface.UserLeft(username)
	}
}

func (c *Channel) notifyChatReceived(sender string, plaintext []byte) {
	if c.iface != nil {
		c.iface.ChatReceived(sender, plaintext)
	}
}

// Room is the broadcast transport boundary (spec §6). The Channel calls
// SendMessage to broadcast and reads identity accessors from it; Room
// implementations hand every received broadcast to an onMessage callback,
// which the caller wires to the Channel's MessageReceived. None of
// internal/room's implementations reports departures, so UserLeft is
// called by the embedding code only.
// It is satisfied structurally by internal/room's implementations without
// either package importing the other.
type Room interface {
	SendMessage(payload []byte) error
	Username() string

	// LongTermPublicKey/LongTermPrivateKey are the X25519 identity pair
	// TripleDH runs over.
	LongTermPublicKey() []byte
	LongTermPrivateKey() []byte

	// SigningPublicKey/SigningPrivateKey are the RSA-PSS identity pair
	// Authorization, ConsistencyCheck, KeyExchange* and KeyActivation
	// messages are signed with — kept distinct from the X25519 pair above,
	// mirroring the teacher's own dual-primitive key split (spec §4.2).
	SigningPublicKey() []byte
	SigningPrivateKey() []byte
}

// EncryptedChat is the DH group key-agreement collaborator (spec §6,
// deliberately out of Channel-core scope but implemented in this
// repository by internal/encryptedchat). The Channel holds it
// exclusively and forwards key/chat events to it; it never reaches back
// into Channel state. Round handlers return the next outbound message of
// the exchange, if any, for the Channel to sign and broadcast — the
// EncryptedChat collaborator never broadcasts on its own.
type EncryptedChat interface {
	CreateSoloSession() error
	DoAddUser(username string, longTermPubKey []byte) (*KeyExchangeOutbound, error)
	AddUser(username string, longTermPubKey []byte) (*KeyExchangeOutbound, error)
	RemoveUsers(usernames []string) error

	HaveKeyExchange(keyID string) bool
	HaveSession(keyID string) bool
	UnserializeKeyExchange(state []byte) (keyID string, err error)
	EncodeKeyExchanges() ([]KeyExchangeState, error)

	HandlePublicKey(sender, keyID string, payload []byte) (*KeyExchangeOutbound, error)
	HandleSecretShare(sender, keyID string, payload []byte) (*KeyExchangeOutbound, error)
	HandleAcceptance(sender, keyID string, payload []byte) (*KeyExchangeOutbound, error)
	HandleReveal(sender, keyID string, payload []byte) (*KeyExchangeOutbound, error)
	HandleActivation(sender, keyID string) error

	DecryptMessage(sender string, ciphertext []byte) ([]byte, error)
	SendMessage(plaintext []byte) ([]byte, error)
}

// KeyExchangeState is an opaque, serialized EncryptedChat session as
// carried in a channel-status snapshot.
type KeyExchangeState struct {
	KeyID string
	State []byte
}

// KeyExchangeOutbound is the next round of an in-progress key exchange,
// as produced by an EncryptedChat handler. Kind is one of the
// wire.TypeKeyExchange* / wire.TypeKeyActivation constants; the Channel
// signs it with the local signing key and broadcasts it unmodified.
type KeyExchangeOutbound struct {
	Kind    string
	KeyID   string
	Payload []byte // empty for a key activation
}

// Timer is the capability that schedules a one-shot callback after a
// delay and can be dropped to cancel it (spec §5, §9 "Timer"). It is the
// shape of time.AfterFunc's return value, abstracted so tests can supply
// a deterministic fake.
type Timer interface {
	Stop() bool
}

// TimerFactory schedules fn to run after d and returns a handle that
// cancels it.
type TimerFactory func(d time.Duration, fn func()) Timer
