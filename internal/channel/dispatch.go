package channel

import (
	"bytes"
	"container/list"
	"fmt"

	"n1sec/internal/crypto"
	"n1sec/internal/wire"
)

func hashTypeForWireType(t string) byte {
	switch t {
	case wire.TypeChannelSearch:
		return hashTypeChannelSearch
	case wire.TypeChannelStatus:
		return hashTypeChannelStatus
	case wire.TypeChannelAnnouncement:
		return hashTypeChannelAnnouncement
	case wire.TypeJoinRequest:
		return hashTypeJoinRequest
	case wire.TypeAuthenticationRequest:
		return hashTypeAuthenticationRequest
	case wire.TypeAuthentication:
		return hashTypeAuthentication
	case wire.TypeAuthorization:
		return hashTypeAuthorization
	case wire.TypeConsistencyStatus:
		return hashTypeConsistencyStatus
	case wire.TypeConsistencyCheck:
		return hashTypeConsistencyCheck
	case wire.TypeKeyExchangePublicKey:
		return hashTypeKeyExchangePublicKey
	case wire.TypeKeyExchangeSecretShare:
		return hashTypeKeyExchangeSecretShare
	case wire.TypeKeyExchangeAcceptance:
		return hashTypeKeyExchangeAcceptance
	case wire.TypeKeyExchangeReveal:
		return hashTypeKeyExchangeReveal
	case wire.TypeKeyActivation:
		return hashTypeKeyActivation
	case wire.TypeChat:
		return hashTypeChat
	default:
		return 0xff
	}
}

// MessageReceived is the single entry point the Room calls with every
// broadcast it delivers, this Channel's own included (spec §4.6,
// channel.cc message_received). Every observed message is folded into the
// status-hash chain unconditionally, before and regardless of whether its
// contents validate.
func (c *Channel) MessageReceived(sender string, raw []byte) error {
	msgType, err := wire.MessageType(raw)
	if err != nil {
		c.metrics.FormatErrors.Add(1)
		return &FormatError{Err: err}
	}
	if max := wire.MaxSizeFor(msgType); max == 0 || len(raw) > max {
		c.metrics.FormatErrors.Add(1)
		return &FormatError{Err: fmt.Errorf("unrecognized or oversized message type %q", msgType)}
	}

	c.updateStatusHash(sender, hashTypeForWireType(msgType), raw)
	c.metrics.MessagesDispatched.Add(1)

	switch msgType {
	case wire.TypeChannelSearch:
		return c.handleChannelSearch(sender, raw)
	case wire.TypeChannelStatus:
		return c.handleChannelStatus(sender, raw)
	case wire.TypeChannelAnnouncement:
		return c.handleChannelAnnouncement(sender, raw)
	case wire.TypeJoinRequest:
		return c.handleJoinRequest(sender, raw)
	case wire.TypeAuthenticationRequest:
		return c.handleAuthenticationRequest(sender, raw)
	case wire.TypeAuthentication:
		return c.handleAuthentication(sender, raw)
	case wire.TypeAuthorization:
		return c.handleAuthorization(sender, raw)
	case wire.TypeConsistencyStatus:
		return c.handleConsistencyStatus(sender, raw)
	case wire.TypeConsistencyCheck:
		return c.handleConsistencyCheck(sender, raw)
	case wire.TypeKeyExchangePublicKey:
		return c.handleKeyExchangePublicKey(sender, raw)
	case wire.TypeKeyExchangeSecretShare:
		return c.handleKeyExchangeSecretShare(sender, raw)
	case wire.TypeKeyExchangeAcceptance:
		return c.handleKeyExchangeAcceptance(sender, raw)
	case wire.TypeKeyExchangeReveal:
		return c.handleKeyExchangeReveal(sender, raw)
	case wire.TypeKeyActivation:
		return c.handleKeyActivation(sender, raw)
	case wire.TypeChat:
		return c.handleChat(sender, raw)
	default:
		return &FormatError{Err: fmt.Errorf("unhandled message type %q", msgType)}
	}
}

func (c *Channel) allUsernames() []string {
	out := make([]string, 0, c.participants.Len())
	for _, p := range c.participants.List() {
		out = append(out, p.Username)
	}
	return out
}

func (c *Channel) handleChannelSearch(sender string, raw []byte) error {
	msg, err := wire.DecodeChannelSearch(raw)
	if err != nil {
		return &FormatError{Err: err}
	}
	nonce, err := hexDec(msg.Nonce)
	if err != nil {
		return &FormatError{Err: err}
	}

	c.events.Push(&Event{
		Kind:              EventConsistencyCheck,
		RemainingUsers:    remainingUsersOf(c.allUsernames()),
		ChannelStatusHash: append([]byte(nil), c.statusHash[:]...),
	})
	if c.active {
		if err := c.broadcastConsistencyCheck(); err != nil {
			return err
		}
	}

	reply, err := c.channelStatusSnapshot(sender, nonce)
	if err != nil {
		return err
	}
	replyPayload, err := wire.EncodeChannelStatus(reply)
	if err != nil {
		return err
	}
	c.events.Push(&Event{
		Kind:              EventChannelStatus,
		RemainingUsers:    remainingUsersOf(c.allUsernames()),
		SearcherUsername:  sender,
		SearcherNonce:     nonce,
		StatusMessageHash: crypto.SHA3_256(replyPayload),
	})
	if c.active {
		return c.room.SendMessage(replyPayload)
	}
	return nil
}

func (c *Channel) handleChannelStatus(sender string, raw []byte) error {
	msg, err := wire.DecodeChannelStatus(raw)
	if err != nil {
		return &FormatError{Err: err}
	}
	searcherNonce, err := hexDec(msg.SearcherNonce)
	if err != nil {
		return &FormatError{Err: err}
	}

	el := c.events.FirstUserEvent(sender)
	matched := false
	if el != nil {
		e := el.Value.(*Event)
		matched = e.Kind == EventChannelStatus &&
			e.SearcherUsername == msg.SearcherUsername &&
			bytes.Equal(e.SearcherNonce, searcherNonce) &&
			bytes.Equal(e.StatusMessageHash, crypto.SHA3_256(raw))
	}
	if !matched {
		c.removeUser(sender)
		return nil
	}
	c.events.Resolve(el, sender)
	return nil
}

func (c *Channel) handleChannelAnnouncement(sender string, raw []byte) error {
	if _, err := wire.DecodeChannelAnnouncement(raw); err != nil {
		return &FormatError{Err: err}
	}
	if c.participants.Has(sender) {
		c.removeUser(sender)
	}
	return nil
}

func (c *Channel) handleJoinRequest(sender string, raw []byte) error {
	msg, err := wire.DecodeJoinRequest(raw)
	if err != nil {
		return &FormatError{Err: err}
	}
	ltpk, err := hexDec(msg.LongTermPubKey)
	if err != nil {
		return &FormatError{Err: err}
	}
	ephpk, err := hexDec(msg.EphemeralPubKey)
	if err != nil {
		return &FormatError{Err: err}
	}
	signingpk, err := hexDec(msg.SigningPubKey)
	if err != nil {
		return &FormatError{Err: err}
	}

	c.removeUser(sender)

	known := false
	for _, u := range msg.PeerUsernames {
		if c.participants.Has(u) {
			known = true
			break
		}
	}
	if !known {
		return nil
	}

	p := newParticipant(sender, ltpk, ephpk, signingpk, append([]byte(nil), c.statusHash[:]...))
	switch {
	case sender == c.username():
		p.AuthStatus = Authenticated
		if err := c.participants.Insert(p); err != nil {
			return &FormatError{Err: err}
		}
		c.selfJoined()
	case !c.active:
		p.AuthStatus = AuthenticatingWithNonce
		if err := c.participants.Insert(p); err != nil {
			return &FormatError{Err: err}
		}
		if err := c.sendAuthenticationRequest(sender, ltpk, ephpk, c.authenticationNonce); err != nil {
			return err
		}
	default:
		p.AuthStatus = Authenticating
		if err := c.participants.Insert(p); err != nil {
			return &FormatError{Err: err}
		}
	}
	c.notifyUserJoined(sender)
	return nil
}

func (c *Channel) handleAuthenticationRequest(sender string, raw []byte) error {
	msg, err := wire.DecodeAuthenticationRequest(raw)
	if err != nil {
		return &FormatError{Err: err}
	}
	if !c.active || msg.PeerUsername != c.username() {
		return nil
	}
	peerLT, err := hexDec(msg.PeerLTPubKey)
	if err != nil {
		return &FormatError{Err: err}
	}
	peerEph, err := hexDec(msg.PeerEphPubKey)
	if err != nil {
		return &FormatError{Err: err}
	}
	if !bytes.Equal(peerLT, c.room.LongTermPublicKey()) || !bytes.Equal(peerEph, c.ephemeralPublicKey()) {
		return nil
	}
	senderLT, err := hexDec(msg.SenderLTPubKey)
	if err != nil {
		return &FormatError{Err: err}
	}
	senderEph, err := hexDec(msg.SenderEphPubKey)
	if err != nil {
		return &FormatError{Err: err}
	}
	nonce, err := hexDec(msg.Nonce)
	if err != nil {
		return &FormatError{Err: err}
	}
	return c.authenticateTo(sender, senderLT, senderEph, nonce)
}

func (c *Channel) handleAuthentication(sender string, raw []byte) error {
	msg, err := wire.DecodeAuthentication(raw)
	if err != nil {
		return &FormatError{Err: err}
	}
	if msg.PeerUsername != c.username() {
		return nil
	}
	peerLT, err := hexDec(msg.PeerLTPubKey)
	if err != nil {
		return &FormatError{Err: err}
	}
	peerEph, err := hexDec(msg.PeerEphPubKey)
	if err != nil {
		return &FormatError{Err: err}
	}
	if !bytes.Equal(peerLT, c.room.LongTermPublicKey()) || !bytes.Equal(peerEph, c.ephemeralPublicKey()) {
		return nil
	}
	p, ok := c.participants.Get(sender)
	if !ok {
		return nil
	}
	senderLT, err := hexDec(msg.SenderLTPubKey)
	if err != nil {
		return &FormatError{Err: err}
	}
	senderEph, err := hexDec(msg.SenderEphPubKey)
	if err != nil {
		return &FormatError{Err: err}
	}
	if !bytes.Equal(senderLT, p.LongTermPubKey) || !bytes.Equal(senderEph, p.EphemeralPubKey) {
		return nil
	}
	nonce, err := hexDec(msg.Nonce)
	if err != nil {
		return &FormatError{Err: err}
	}

	var acceptedNonce bool
	switch p.AuthStatus {
	case Authenticating:
		acceptedNonce = bytes.Equal(nonce, p.AuthorizationNonce)
	case AuthenticatingWithNonce:
		acceptedNonce = bytes.Equal(nonce, p.AuthorizationNonce) || bytes.Equal(nonce, c.authenticationNonce)
	default:
		return nil
	}
	if !acceptedNonce {
		return nil
	}

	correctToken, err := c.authenticationToken(sender, p.LongTermPubKey, p.EphemeralPubKey, nonce, true)
	if err != nil {
		return err
	}
	token, err := hexDec(msg.Token)
	if err == nil && bytes.Equal(token, correctToken) {
		p.AuthStatus = Authenticated
		c.notifyUserAuthenticated(sender, p.LongTermPubKey)
	} else {
		p.AuthStatus = AuthenticationFailed
		c.notifyUserAuthenticationFailed(sender)
	}
	return nil
}

func (c *Channel) handleAuthorization(sender string, raw []byte) error {
	msg, err := wire.DecodeAuthorization(raw)
	if err != nil {
		return &FormatError{Err: err}
	}
	signer, ok := c.participants.Get(sender)
	if !ok {
		return nil
	}
	ltpk, err := hexDec(msg.LongTermPubKey)
	if err != nil {
		return &FormatError{Err: err}
	}
	ephpk, err := hexDec(msg.EphemeralPubKey)
	if err != nil {
		return &FormatError{Err: err}
	}
	nonce, err := hexDec(msg.AuthorizationNonce)
	if err != nil {
		return &FormatError{Err: err}
	}

	if !verify(signer.SigningPubKey, wire.AuthorizationSignBytes(msg.Username, ltpk, ephpk, nonce), msg.Sig) {
		c.removeUser(sender)
		return nil
	}

	subject, ok := c.participants.Get(msg.Username)
	if !ok {
		return nil
	}
	if !bytes.Equal(ltpk, subject.LongTermPubKey) || !bytes.Equal(ephpk, subject.EphemeralPubKey) || !bytes.Equal(nonce, subject.AuthorizationNonce) {
		return nil
	}

	switch {
	case signer.Authorized && !subject.Authorized:
		subject.AuthorizedBy[sender] = true
		c.notifyUserAuthorizedBy(sender, msg.Username)
		c.tryPromoteAndAddUser(subject)
	case !signer.Authorized && subject.Authorized:
		signer.AuthorizedPeers[msg.Username] = true
		c.notifyUserAuthorizedBy(sender, msg.Username)
		c.tryPromoteAndAddUser(signer)
	}
	return nil
}

// tryPromoteAndAddUser promotes p if its quorum is now satisfied and
// informs EncryptedChat via AddUser (as opposed to the DoAddUser called
// from removeUsers' forced single promotion, spec §4.7).
func (c *Channel) tryPromoteAndAddUser(p *Participant) {
	if !c.tryPromoteUnauthorizedParticipant(p) {
		return
	}
	out, err := c.ec.AddUser(p.Username, p.LongTermPubKey)
	if err != nil {
		c.metrics.EncryptedChatErrors.Add(1)
		return
	}
	if out != nil {
		_ = c.broadcastKeyExchangeOutbound(out)
	}
}

func (c *Channel) handleConsistencyStatus(sender string, raw []byte) error {
	if _, err := wire.DecodeConsistencyStatus(raw); err != nil {
		return &FormatError{Err: err}
	}
	if !c.participants.Has(sender) {
		return nil
	}
	if c.active && sender == c.username() {
		if err := c.broadcastConsistencyCheck(); err != nil {
			return err
		}
	}
	c.events.Push(&Event{
		Kind:              EventConsistencyCheck,
		RemainingUsers:    remainingUsersOf([]string{sender}),
		ChannelStatusHash: append([]byte(nil), c.statusHash[:]...),
	})
	return nil
}

func (c *Channel) handleConsistencyCheck(sender string, raw []byte) error {
	msg, err := wire.DecodeConsistencyCheck(raw)
	if err != nil {
		return &FormatError{Err: err}
	}
	signer, ok := c.participants.Get(sender)
	if !ok {
		return nil
	}
	hash, err := hexDec(msg.ChannelStatusHash)
	if err != nil {
		return &FormatError{Err: err}
	}
	if !verify(signer.SigningPubKey, wire.ConsistencyCheckSignBytes(hash), msg.Sig) {
		c.removeUser(sender)
		return nil
	}

	el := c.events.FirstUserEvent(sender)
	matched := false
	if el != nil {
		e := el.Value.(*Event)
		matched = e.Kind == EventConsistencyCheck && bytes.Equal(e.ChannelStatusHash, hash)
	}
	if !matched {
		c.removeUser(sender)
		return nil
	}
	c.events.Resolve(el, sender)
	return nil
}

// matchKeyEvent looks up the oldest pending key-family event naming sender
// with the given key id and activation-ness, matching channel.cc's
// first_user_event(sender) + type/key_id check ahead of every key-exchange
// round and KeyActivation.
func (c *Channel) matchKeyEvent(sender, keyID string, isActivation bool) (*list.Element, bool) {
	el := c.events.FirstUserEvent(sender)
	if el == nil {
		return nil, false
	}
	e := el.Value.(*Event)
	if e.Kind != EventKeyEvent || e.KeyID != keyID || e.IsKeyActivation != isActivation {
		return nil, false
	}
	return el, true
}

func (c *Channel) handleKeyExchangePublicKey(sender string, raw []byte) error {
	msg, err := wire.DecodeKeyExchangePublicKey(raw)
	if err != nil {
		return &FormatError{Err: err}
	}
	signer, ok := c.participants.Get(sender)
	if !ok {
		return nil
	}
	payload, err := hexDec(msg.Payload)
	if err != nil {
		return &FormatError{Err: err}
	}
	if !verify(signer.SigningPubKey, wire.KeyExchangeSignBytes(msg.KeyID, payload), msg.Sig) {
		c.removeUser(sender)
		return nil
	}
	el, ok := c.matchKeyEvent(sender, msg.KeyID, false)
	if !ok {
		c.removeUser(sender)
		return nil
	}
	c.events.Resolve(el, sender)

	out, err := c.ec.HandlePublicKey(sender, msg.KeyID, payload)
	if err != nil {
		c.metrics.EncryptedChatErrors.Add(1)
		return nil
	}
	if out != nil {
		return c.broadcastKeyExchangeOutbound(out)
	}
	return nil
}

func (c *Channel) handleKeyExchangeSecretShare(sender string, raw []byte) error {
	msg, err := wire.DecodeKeyExchangeSecretShare(raw)
	if err != nil {
		return &FormatError{Err: err}
	}
	signer, ok := c.participants.Get(sender)
	if !ok {
		return nil
	}
	payload, err := hexDec(msg.Payload)
	if err != nil {
		return &FormatError{Err: err}
	}
	if !verify(signer.SigningPubKey, wire.KeyExchangeSignBytes(msg.KeyID, payload), msg.Sig) {
		c.removeUser(sender)
		return nil
	}
	el, ok := c.matchKeyEvent(sender, msg.KeyID, false)
	if !ok {
		c.removeUser(sender)
		return nil
	}
	c.events.Resolve(el, sender)

	if !c.ec.HaveKeyExchange(msg.KeyID) {
		return nil
	}
	out, err := c.ec.HandleSecretShare(sender, msg.KeyID, payload)
	if err != nil {
		c.metrics.EncryptedChatErrors.Add(1)
		return nil
	}
	if out != nil {
		return c.broadcastKeyExchangeOutbound(out)
	}
	return nil
}

func (c *Channel) handleKeyExchangeAcceptance(sender string, raw []byte) error {
	msg, err := wire.DecodeKeyExchangeAcceptance(raw)
	if err != nil {
		return &FormatError{Err: err}
	}
	signer, ok := c.participants.Get(sender)
	if !ok {
		return nil
	}
	payload, err := hexDec(msg.Payload)
	if err != nil {
		return &FormatError{Err: err}
	}
	if !verify(signer.SigningPubKey, wire.KeyExchangeSignBytes(msg.KeyID, payload), msg.Sig) {
		c.removeUser(sender)
		return nil
	}
	el, ok := c.matchKeyEvent(sender, msg.KeyID, false)
	if !ok {
		c.removeUser(sender)
		return nil
	}
	c.events.Resolve(el, sender)

	if !c.ec.HaveKeyExchange(msg.KeyID) {
		return nil
	}
	out, err := c.ec.HandleAcceptance(sender, msg.KeyID, payload)
	if err != nil {
		c.metrics.EncryptedChatErrors.Add(1)
		return nil
	}
	if out != nil {
		return c.broadcastKeyExchangeOutbound(out)
	}
	return nil
}

func (c *Channel) handleKeyExchangeReveal(sender string, raw []byte) error {
	msg, err := wire.DecodeKeyExchangeReveal(raw)
	if err != nil {
		return &FormatError{Err: err}
	}
	signer, ok := c.participants.Get(sender)
	if !ok {
		return nil
	}
	payload, err := hexDec(msg.Payload)
	if err != nil {
		return &FormatError{Err: err}
	}
	if !verify(signer.SigningPubKey, wire.KeyExchangeSignBytes(msg.KeyID, payload), msg.Sig) {
		c.removeUser(sender)
		return nil
	}
	el, ok := c.matchKeyEvent(sender, msg.KeyID, false)
	if !ok {
		c.removeUser(sender)
		return nil
	}
	c.events.Resolve(el, sender)

	if !c.ec.HaveKeyExchange(msg.KeyID) {
		return nil
	}
	out, err := c.ec.HandleReveal(sender, msg.KeyID, payload)
	if err != nil {
		c.metrics.EncryptedChatErrors.Add(1)
		return nil
	}
	if out != nil {
		return c.broadcastKeyExchangeOutbound(out)
	}
	return nil
}

func (c *Channel) handleKeyActivation(sender string, raw []byte) error {
	msg, err := wire.DecodeKeyActivation(raw)
	if err != nil {
		return &FormatError{Err: err}
	}
	signer, ok := c.participants.Get(sender)
	if !ok {
		return nil
	}
	if !verify(signer.SigningPubKey, wire.KeyActivationSignBytes(msg.KeyID), msg.Sig) {
		c.removeUser(sender)
		return nil
	}
	el, ok := c.matchKeyEvent(sender, msg.KeyID, true)
	if !ok {
		c.removeUser(sender)
		return nil
	}
	c.events.Resolve(el, sender)

	if c.ec.HaveSession(msg.KeyID) {
		if err := c.ec.HandleActivation(sender, msg.KeyID); err != nil {
			c.metrics.EncryptedChatErrors.Add(1)
		}
	}
	return nil
}

func (c *Channel) handleChat(sender string, raw []byte) error {
	msg, err := wire.DecodeChat(raw)
	if err != nil {
		return &FormatError{Err: err}
	}
	ciphertext, err := hexDec(msg.Ciphertext)
	if err != nil {
		return &FormatError{Err: err}
	}
	plaintext, err := c.ec.DecryptMessage(sender, ciphertext)
	if err != nil {
		c.metrics.EncryptedChatErrors.Add(1)
		return nil
	}
	c.notifyChatReceived(sender, plaintext)
	return nil
}

// addKeyExchangeEvent records that remainingUsernames still owe a matching
// round reply for keyID, mirroring the ChannelStatus/ConsistencyCheck event
// bookkeeping pattern for key-exchange rounds (channel.cc
// add_key_exchange_event).
func (c *Channel) addKeyExchangeEvent(keyID string, remainingUsernames []string) {
	c.events.Push(&Event{
		Kind:           EventKeyEvent,
		KeyID:          keyID,
		RemainingUsers: remainingUsersOf(remainingUsernames),
	})
}

// addKeyActivationEvent is the KeyActivation analogue of
// addKeyExchangeEvent.
func (c *Channel) addKeyActivationEvent(keyID string, remainingUsernames []string) {
	c.events.Push(&Event{
		Kind:            EventKeyEvent,
		KeyID:           keyID,
		IsKeyActivation: true,
		RemainingUsers:  remainingUsersOf(remainingUsernames),
	})
}
