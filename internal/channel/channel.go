// Package channel implements the (n+1)sec Channel core: participant
// tracking, authentication, authorization, the causal-consistency event
// queue, the channel-status hash chain, and dispatch of every protocol
// message type. It depends on, but never implements, the EncryptedChat
// group-key collaborator, the Room broadcast transport, and low-level
// crypto primitives (internal/crypto) — each is a capability passed into
// the constructors below.
package channel

import (
	"crypto/rand"
	"fmt"

	"n1sec/internal/crypto"
	"n1sec/internal/metrics"
)

// Options configures a Channel at construction. Zero-value fields resolve
// to sensible defaults, in the shape of the Options structs used
// elsewhere in this codebase's constructors.
type Options struct {
	Interface Interface
	NewTimer  TimerFactory // defaults to a real time.AfterFunc-backed timer
	Metrics   *metrics.Metrics
}

func (o Options) resolve() Options {
	if o.NewTimer == nil {
		o.NewTimer = realTimerFactory
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New()
	}
	return o
}

// Channel is a single-threaded cooperative state machine (spec §5): every
// exported method runs to completion before the next is dispatched, and
// nothing here spawns a goroutine on its own besides the status timer's
// callback, which only ever touches Channel state from within that same
// run-to-completion discipline.
type Channel struct {
	room Room
	ec   EncryptedChat

	iface    Interface
	newTimer TimerFactory

	statusTimer Timer
	metrics     *metrics.Metrics

	ephemeral           *crypto.Ephemeral
	authenticationNonce []byte // random, used while not yet a full member

	statusHash [32]byte

	joined     bool
	active     bool
	authorized bool

	participants *participantTable
	events       *eventQueue
}

func randomNonce() ([]byte, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *Channel) username() string { return c.room.Username() }

func (c *Channel) ephemeralPublicKey() []byte {
	pub, err := c.ephemeral.Public()
	if err != nil {
		return nil
	}
	return pub
}

func newBareChannel(room Room, ec EncryptedChat, opts Options) (*Channel, error) {
	if room == nil {
		return nil, fmt.Errorf("channel: nil room")
	}
	if ec == nil {
		return nil, fmt.Errorf("channel: nil encrypted chat collaborator")
	}
	opts = opts.resolve()
	ephemeral, err := crypto.GenerateEphemeral()
	if err != nil {
		return nil, fmt.Errorf("channel: generate ephemeral key: %w", err)
	}
	authNonce, err := randomNonce()
	if err != nil {
		return nil, fmt.Errorf("channel: generate authentication nonce: %w", err)
	}
	return &Channel{
		room:                room,
		ec:                  ec,
		iface:               opts.Interface,
		newTimer:            opts.NewTimer,
		metrics:             opts.Metrics,
		ephemeral:           ephemeral,
		authenticationNonce: authNonce,
		participants:        newParticipantTable(),
		events:              newEventQueue(),
	}, nil
}

// ConfirmParticipant prompts an as-yet-unauthenticated participant to
// authenticate back to us, by sending them our m_authentication_nonce
// (spec §4.2, channel.cc confirm_participant).
func (c *Channel) ConfirmParticipant(username string) error {
	p, ok := c.participants.Get(username)
	if !ok || p.AuthStatus != Unauthenticated {
		return nil
	}
	p.AuthStatus = AuthenticatingWithNonce
	return c.sendAuthenticationRequest(username, p.LongTermPubKey, p.EphemeralPubKey, c.authenticationNonce)
}

// NewSolo constructs a brand-new channel in which the local user is its
// only, self-authorized participant (spec §2 "Solo construction").
func NewSolo(room Room, ec EncryptedChat, opts Options) (*Channel, error) {
	c, err := newBareChannel(room, ec, opts)
	if err != nil {
		return nil, err
	}
	nonce, err := randomNonce()
	if err != nil {
		return nil, fmt.Errorf("channel: generate status hash seed: %w", err)
	}
	copy(c.statusHash[:], nonce)
	c.joined = true
	c.active = false
	c.authorized = true

	self := newParticipant(c.username(), c.room.LongTermPublicKey(), c.ephemeralPublicKey(), c.room.SigningPublicKey(), c.statusHash[:])
	self.Authorized = true
	self.AuthStatus = Authenticated
	if err := c.participants.Insert(self); err != nil {
		return nil, &FormatError{Err: err}
	}

	if err := c.ec.CreateSoloSession(); err != nil {
		return nil, fmt.Errorf("channel: create solo session: %w", err)
	}
	c.metrics.ChannelsConstructed.Add(1)
	return c, nil
}

// SendChat hands plaintext to EncryptedChat for encryption and broadcasts
// the result (spec §6 send_chat).
func (c *Channel) SendChat(plaintext []byte) error {
	ciphertext, err := c.ec.SendMessage(plaintext)
	if err != nil {
		return fmt.Errorf("channel: encrypt chat: %w", err)
	}
	return c.sendChatCiphertext(ciphertext)
}

// Join broadcasts a JoinRequest naming every participant currently known
// locally, so a receiver can tell whether the request is meant for their
// channel instance.
func (c *Channel) Join() error {
	usernames := make([]string, 0, c.participants.Len())
	for _, p := range c.participants.List() {
		usernames = append(usernames, p.Username)
	}
	return c.sendJoinRequest(c.room.LongTermPublicKey(), c.ephemeralPublicKey(), c.room.SigningPublicKey(), usernames)
}

// Activate marks the local user as an active participant in channel-status
// replies and the periodic consistency timer, and arms that timer.
func (c *Channel) Activate() {
	c.active = true
	c.armStatusTimer()
}

// Announce broadcasts a minimal self-introduction (spec §6 announce).
func (c *Channel) Announce() error {
	return c.sendChannelAnnouncement(c.room.LongTermPublicKey(), c.ephemeralPublicKey(), c.room.SigningPublicKey(), c.statusHash[:])
}

// Authorize is a no-op if the symmetric obligation between the local user
// and target is already discharged; otherwise it broadcasts a signed
// Authorization for target (spec §4.3).
func (c *Channel) Authorize(username string) error {
	target, ok := c.participants.Get(username)
	if !ok || username == c.username() {
		return nil
	}
	self, ok := c.participants.Get(c.username())
	if !ok {
		return nil
	}

	if self.Authorized {
		if target.Authorized {
			return nil
		}
		if target.AuthorizedBy[c.username()] {
			return nil
		}
	} else {
		if !target.Authorized {
			return nil
		}
		if self.AuthorizedPeers[username] {
			return nil
		}
	}

	return c.sendAuthorization(target.Username, target.LongTermPubKey, target.EphemeralPubKey, target.AuthorizationNonce)
}

// UserLeft folds a local transport-level departure into the status hash
// and removes the departing user exactly as a protocol-level removal
// would (spec §4.7, §6 user_left).
func (c *Channel) UserLeft(username string) {
	c.foldUserLeft(username)
	c.removeUser(username)
}

func (c *Channel) selfJoined() {
	c.joined = true
	self := c.username()
	for _, p := range c.participants.List() {
		if p.Username == self {
			continue
		}
		_ = c.authenticateTo(p.Username, p.LongTermPubKey, p.EphemeralPubKey, c.statusHash[:])
	}
	c.notifyJoined()
}
