package channel

import (
	"encoding/hex"

	"n1sec/internal/wire"
)

func hexEnc(b []byte) string { return hex.EncodeToString(b) }

func hexDec(s string) ([]byte, error) { return hex.DecodeString(s) }

// channelStatusSnapshot builds the ChannelStatus reply payload directed at
// searcherUsername/searcherNonce (empty/nil for the hash-chain snapshot,
// see encodeStatusSnapshotForHashing). It mirrors channel_status(): every
// known participant is split into authorized/unauthorized, EncryptedChat
// contributes its encoded key exchanges, and every pending event is encoded
// by kind — a pending key exchange event is marked cancelled (and keeps its
// remaining_users) once EncryptedChat no longer recognizes the exchange,
// otherwise it is encoded live with no remaining_users attached.
func (c *Channel) channelStatusSnapshot(searcherUsername string, searcherNonce []byte) (wire.ChannelStatusMsg, error) {
	msg := wire.ChannelStatusMsg{
		SearcherUsername:  searcherUsername,
		SearcherNonce:     hexEnc(searcherNonce),
		ChannelStatusHash: hexEnc(c.statusHash[:]),
	}

	for _, p := range c.participants.List() {
		snap := wire.ParticipantSnapshot{
			Username:         p.Username,
			LongTermPubKey:   hexEnc(p.LongTermPubKey),
			EphemeralPubKey:  hexEnc(p.EphemeralPubKey),
			SigningPubKey:    hexEnc(p.SigningPubKey),
			AuthorizationNon: hexEnc(p.AuthorizationNonce),
		}
		if p.Authorized {
			msg.Participants = append(msg.Participants, snap)
			continue
		}
		msg.UnauthorizedParticipants = append(msg.UnauthorizedParticipants, wire.UnauthorizedParticipantSnapshot{
			ParticipantSnapshot: snap,
			AuthStatus:          p.AuthStatus.String(),
			AuthorizedBy:        sortedKeys(p.AuthorizedBy),
			AuthorizedPeers:     sortedKeys(p.AuthorizedPeers),
		})
	}

	keyExchanges, err := c.ec.EncodeKeyExchanges()
	if err != nil {
		return wire.ChannelStatusMsg{}, err
	}
	for _, ke := range keyExchanges {
		msg.KeyExchanges = append(msg.KeyExchanges, wire.KeyExchangeSnapshot{KeyID: ke.KeyID, State: hexEnc(ke.State)})
	}

	for _, e := range c.events.List() {
		switch e.Kind {
		case EventChannelStatus:
			msg.Events = append(msg.Events, wire.EventSnapshot{
				Kind:              "channel_status",
				RemainingUsers:    sortedKeys(e.RemainingUsers),
				SearcherUsername:  e.SearcherUsername,
				SearcherNonce:     hexEnc(e.SearcherNonce),
				StatusMessageHash: hexEnc(e.StatusMessageHash),
			})
		case EventConsistencyCheck:
			msg.Events = append(msg.Events, wire.EventSnapshot{
				Kind:              "consistency_check",
				RemainingUsers:    sortedKeys(e.RemainingUsers),
				ChannelStatusHash: hexEnc(e.ChannelStatusHash),
			})
		case EventKeyEvent:
			if e.IsKeyActivation {
				// key activation events carry no cancelled concept and are
				// always encoded live (channel_status()'s unconditional branch).
				msg.Events = append(msg.Events, wire.EventSnapshot{
					Kind:           "key_activation",
					KeyID:          e.KeyID,
					RemainingUsers: sortedKeys(e.RemainingUsers),
				})
				continue
			}
			if c.ec.HaveKeyExchange(e.KeyID) {
				msg.Events = append(msg.Events, wire.EventSnapshot{
					Kind:      "key_exchange",
					KeyID:     e.KeyID,
					Cancelled: false,
				})
			} else {
				msg.Events = append(msg.Events, wire.EventSnapshot{
					Kind:           "key_exchange",
					KeyID:          e.KeyID,
					Cancelled:      true,
					RemainingUsers: sortedKeys(e.RemainingUsers),
				})
			}
		}
	}

	return msg, nil
}

// encodeStatusSnapshotForHashing returns the byte encoding folded into the
// status-hash chain for every observed message. It is exactly
// channelStatusSnapshot("", nil): only the searcher fields are emptied,
// and the snapshot's own channel_status_hash field carries the CURRENT
// (pre-update) hash. Folding the current hash into itself is what makes
// the chain a chain.
func (c *Channel) encodeStatusSnapshotForHashing() ([]byte, error) {
	msg, err := c.channelStatusSnapshot("", nil)
	if err != nil {
		return nil, err
	}
	return wire.EncodeChannelStatus(msg)
}
