package channel

import "n1sec/internal/wire"

// NewFromStatus constructs a Channel from a ChannelStatus snapshot received
// in answer to a ChannelSearch (spec §2 "Status construction", channel.cc's
// Channel(Room*, ChannelStatusMessage, Message) constructor). The new
// Channel starts unjoined, inactive and unauthorized. Its channel-status
// hash is adopted directly from status.ChannelStatusHash (already the
// sender's post-fold value for this exact snapshot) rather than folded a
// second time locally.
func NewFromStatus(room Room, ec EncryptedChat, status wire.ChannelStatusMsg, opts Options) (*Channel, error) {
	c, err := newBareChannel(room, ec, opts)
	if err != nil {
		return nil, err
	}
	c.joined = false
	c.active = false
	c.authorized = false

	hash, err := hexDec(status.ChannelStatusHash)
	if err != nil {
		return nil, &FormatError{Err: err}
	}
	copy(c.statusHash[:], hash)

	seen := make(map[string]bool)
	for _, snap := range status.Participants {
		if seen[snap.Username] {
			return nil, &FormatError{Err: ErrDuplicateUsername}
		}
		seen[snap.Username] = true
		p, err := participantFromSnapshot(snap)
		if err != nil {
			return nil, &FormatError{Err: err}
		}
		p.Authorized = true
		p.AuthStatus = Unauthenticated
		if err := c.participants.Insert(p); err != nil {
			return nil, &FormatError{Err: err}
		}
	}
	for _, snap := range status.UnauthorizedParticipants {
		if seen[snap.Username] {
			return nil, &FormatError{Err: ErrDuplicateUsername}
		}
		seen[snap.Username] = true
		p, err := participantFromSnapshot(snap.ParticipantSnapshot)
		if err != nil {
			return nil, &FormatError{Err: err}
		}
		p.Authorized = false
		p.AuthStatus = Unauthenticated
		// A witness only counts if the witness itself is already in our
		// table: an unauthorized participant's authorized_by/authorized_peers
		// may name peers this snapshot never introduced.
		for _, w := range snap.AuthorizedBy {
			if seen[w] {
				p.AuthorizedBy[w] = true
			}
		}
		for _, w := range snap.AuthorizedPeers {
			if seen[w] {
				p.AuthorizedPeers[w] = true
			}
		}
		if err := c.participants.Insert(p); err != nil {
			return nil, &FormatError{Err: err}
		}
	}

	carriedKeyExchangeIDs := make(map[string]bool)
	for _, ke := range status.KeyExchanges {
		state, err := hexDec(ke.State)
		if err != nil {
			return nil, &FormatError{Err: err}
		}
		keyID, err := c.ec.UnserializeKeyExchange(state)
		if err != nil {
			return nil, &FormatError{Err: err}
		}
		carriedKeyExchangeIDs[keyID] = true
	}

	liveKeyExchangeIDs := make(map[string]bool)
	for _, ev := range status.Events {
		switch ev.Kind {
		case "channel_status":
			nonce, err := hexDec(ev.SearcherNonce)
			if err != nil {
				return nil, &FormatError{Err: err}
			}
			smHash, err := hexDec(ev.StatusMessageHash)
			if err != nil {
				return nil, &FormatError{Err: err}
			}
			if !eventRemainingKnown(ev.RemainingUsers, seen) {
				return nil, &FormatError{Err: ErrUnknownUser}
			}
			c.events.Push(&Event{
				Kind:              EventChannelStatus,
				RemainingUsers:    remainingUsersOf(ev.RemainingUsers),
				SearcherUsername:  ev.SearcherUsername,
				SearcherNonce:     nonce,
				StatusMessageHash: smHash,
			})
		case "consistency_check":
			hash, err := hexDec(ev.ChannelStatusHash)
			if err != nil {
				return nil, &FormatError{Err: err}
			}
			if !eventRemainingKnown(ev.RemainingUsers, seen) {
				return nil, &FormatError{Err: ErrUnknownUser}
			}
			c.events.Push(&Event{
				Kind:              EventConsistencyCheck,
				RemainingUsers:    remainingUsersOf(ev.RemainingUsers),
				ChannelStatusHash: hash,
			})
		case "key_exchange":
			if !ev.Cancelled {
				liveKeyExchangeIDs[ev.KeyID] = true
				c.events.Push(&Event{Kind: EventKeyEvent, KeyID: ev.KeyID, RemainingUsers: map[string]bool{}})
				continue
			}
			if !eventRemainingKnown(ev.RemainingUsers, seen) {
				return nil, &FormatError{Err: ErrUnknownUser}
			}
			c.events.Push(&Event{Kind: EventKeyEvent, KeyID: ev.KeyID, Cancelled: true, RemainingUsers: remainingUsersOf(ev.RemainingUsers)})
		case "key_activation":
			if !eventRemainingKnown(ev.RemainingUsers, seen) {
				return nil, &FormatError{Err: ErrUnknownUser}
			}
			c.events.Push(&Event{Kind: EventKeyEvent, KeyID: ev.KeyID, IsKeyActivation: true, RemainingUsers: remainingUsersOf(ev.RemainingUsers)})
		}
	}
	// Every live (non-cancelled) key-exchange event must name a key
	// exchange this snapshot actually carried, and vice versa: the two
	// counts must agree exactly.
	if len(liveKeyExchangeIDs) != len(status.KeyExchanges) {
		return nil, &FormatError{Err: ErrEventCountMismatch}
	}
	for id := range liveKeyExchangeIDs {
		if !carriedKeyExchangeIDs[id] {
			return nil, &FormatError{Err: ErrDanglingKeyExchange}
		}
	}

	return c, nil
}

// NewFromAnnouncement constructs a Channel from a ChannelAnnouncement
// broadcast by an outsider who has heard of this channel (spec §2
// "Announcement construction", channel.cc's Channel(Room*,
// ChannelAnnouncementMessage, sender) constructor). Only the announcer
// itself is inserted, as an unauthorized, unauthenticated participant.
func NewFromAnnouncement(room Room, ec EncryptedChat, sender string, ann wire.ChannelAnnouncementMsg, opts Options) (*Channel, error) {
	c, err := newBareChannel(room, ec, opts)
	if err != nil {
		return nil, err
	}
	c.joined = false
	c.active = false
	c.authorized = false

	hash, err := hexDec(ann.ChannelStatusHash)
	if err != nil {
		return nil, &FormatError{Err: err}
	}
	copy(c.statusHash[:], hash)

	ltpk, err := hexDec(ann.LongTermPubKey)
	if err != nil {
		return nil, &FormatError{Err: err}
	}
	ephpk, err := hexDec(ann.EphemeralPubKey)
	if err != nil {
		return nil, &FormatError{Err: err}
	}
	signingpk, err := hexDec(ann.SigningPubKey)
	if err != nil {
		return nil, &FormatError{Err: err}
	}

	p := newParticipant(sender, ltpk, ephpk, signingpk, c.statusHash[:])
	if err := c.participants.Insert(p); err != nil {
		return nil, &FormatError{Err: err}
	}

	return c, nil
}

func participantFromSnapshot(snap wire.ParticipantSnapshot) (*Participant, error) {
	ltpk, err := hexDec(snap.LongTermPubKey)
	if err != nil {
		return nil, err
	}
	ephpk, err := hexDec(snap.EphemeralPubKey)
	if err != nil {
		return nil, err
	}
	signingpk, err := hexDec(snap.SigningPubKey)
	if err != nil {
		return nil, err
	}
	nonce, err := hexDec(snap.AuthorizationNon)
	if err != nil {
		return nil, err
	}
	return newParticipant(snap.Username, ltpk, ephpk, signingpk, nonce), nil
}

func eventRemainingKnown(usernames []string, known map[string]bool) bool {
	for _, u := range usernames {
		if !known[u] {
			return false
		}
	}
	return true
}
