package wire

import (
	"encoding/json"
	"fmt"
)

// ChannelAnnouncementMsg is a minimal, unsigned self-introduction: "I am
// this channel, reachable through this identity." Valid only from an
// outsider — if the sender is already a known participant, receiving one
// is itself grounds for removal (see the dispatcher).
type ChannelAnnouncementMsg struct {
	Type              string `json:"type"`
	LongTermPubKey    string `json:"long_term_pk"`
	EphemeralPubKey   string `json:"ephemeral_pk"`
	SigningPubKey     string `json:"signing_pk"`
	ChannelStatusHash string `json:"channel_status_hash"`
}

func EncodeChannelAnnouncement(m ChannelAnnouncementMsg) ([]byte, error) {
	m.Type = TypeChannelAnnouncement
	return json.Marshal(m)
}

func DecodeChannelAnnouncement(data []byte) (ChannelAnnouncementMsg, error) {
	var m ChannelAnnouncementMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return ChannelAnnouncementMsg{}, err
	}
	if m.Type != TypeChannelAnnouncement {
		return ChannelAnnouncementMsg{}, fmt.Errorf("wire: unexpected type %q", m.Type)
	}
	if m.LongTermPubKey == "" || m.EphemeralPubKey == "" || m.SigningPubKey == "" {
		return ChannelAnnouncementMsg{}, fmt.Errorf("wire: missing identity fields")
	}
	return m, nil
}

// JoinRequestMsg is broadcast by a prospective member. peer_usernames
// names the participants the sender believes are already in the channel
// (learned out of band); a receiver ignores the request entirely if none
// of those names match its own participant table.
type JoinRequestMsg struct {
	Type            string   `json:"type"`
	LongTermPubKey  string   `json:"long_term_pk"`
	EphemeralPubKey string   `json:"ephemeral_pk"`
	SigningPubKey   string   `json:"signing_pk"`
	PeerUsernames   []string `json:"peer_usernames"`
}

func EncodeJoinRequest(m JoinRequestMsg) ([]byte, error) {
	m.Type = TypeJoinRequest
	return json.Marshal(m)
}

func DecodeJoinRequest(data []byte) (JoinRequestMsg, error) {
	var m JoinRequestMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return JoinRequestMsg{}, err
	}
	if m.Type != TypeJoinRequest {
		return JoinRequestMsg{}, fmt.Errorf("wire: unexpected type %q", m.Type)
	}
	if m.LongTermPubKey == "" || m.EphemeralPubKey == "" || m.SigningPubKey == "" {
		return JoinRequestMsg{}, fmt.Errorf("wire: missing identity fields")
	}
	return m, nil
}
