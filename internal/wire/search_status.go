package wire

import (
	"encoding/json"
	"fmt"
)

// ChannelSearchMsg is an unsigned broadcast by anyone looking for a
// channel: "is anyone here, and if so, authenticate a reply to this
// nonce."
type ChannelSearchMsg struct {
	Type  string `json:"type"`
	Nonce string `json:"nonce"`
}

func EncodeChannelSearch(m ChannelSearchMsg) ([]byte, error) {
	m.Type = TypeChannelSearch
	return json.Marshal(m)
}

func DecodeChannelSearch(data []byte) (ChannelSearchMsg, error) {
	var m ChannelSearchMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return ChannelSearchMsg{}, err
	}
	if m.Type != TypeChannelSearch {
		return ChannelSearchMsg{}, fmt.Errorf("wire: unexpected type %q", m.Type)
	}
	if m.Nonce == "" {
		return ChannelSearchMsg{}, fmt.Errorf("wire: missing nonce")
	}
	return m, nil
}

// ParticipantSnapshot is one authorized participant as carried in a
// ChannelStatus snapshot.
type ParticipantSnapshot struct {
	Username         string `json:"username"`
	LongTermPubKey   string `json:"long_term_pk"`
	EphemeralPubKey  string `json:"ephemeral_pk"`
	SigningPubKey    string `json:"signing_pk"`
	AuthorizationNon string `json:"authorization_nonce"`
}

// UnauthorizedParticipantSnapshot additionally carries the witness sets
// that track progress toward the symmetric authorization quorum.
type UnauthorizedParticipantSnapshot struct {
	ParticipantSnapshot
	AuthStatus      string   `json:"auth_status"`
	AuthorizedBy    []string `json:"authorized_by,omitempty"`
	AuthorizedPeers []string `json:"authorized_peers,omitempty"`
}

// KeyExchangeSnapshot carries an EncryptedChat key-exchange session's
// serialized state, opaque to the Channel core.
type KeyExchangeSnapshot struct {
	KeyID string `json:"key_id"`
	State string `json:"state"`
}

// EventSnapshot mirrors one pending event for inclusion in a
// ChannelStatus snapshot. Exactly one of the type-specific fields is
// populated, matching Kind.
type EventSnapshot struct {
	Kind              string   `json:"kind"` // "channel_status" | "consistency_check" | "key_exchange" | "key_activation"
	RemainingUsers    []string `json:"remaining_users"`
	SearcherUsername  string   `json:"searcher_username,omitempty"`
	SearcherNonce     string   `json:"searcher_nonce,omitempty"`
	StatusMessageHash string   `json:"status_message_hash,omitempty"`
	ChannelStatusHash string   `json:"channel_status_hash,omitempty"`
	KeyID             string   `json:"key_id,omitempty"`
	Cancelled         bool     `json:"cancelled,omitempty"`
}

// ChannelStatusMsg is the full snapshot message: an answer to a
// ChannelSearch, and the payload fed into the status-hash computation.
type ChannelStatusMsg struct {
	Type                   string                            `json:"type"`
	SearcherUsername       string                            `json:"searcher_username,omitempty"`
	SearcherNonce          string                            `json:"searcher_nonce,omitempty"`
	ChannelStatusHash      string                            `json:"channel_status_hash"`
	Participants           []ParticipantSnapshot             `json:"participants"`
	UnauthorizedParticipants []UnauthorizedParticipantSnapshot `json:"unauthorized_participants"`
	KeyExchanges           []KeyExchangeSnapshot             `json:"key_exchanges"`
	Events                 []EventSnapshot                   `json:"events"`
}

func EncodeChannelStatus(m ChannelStatusMsg) ([]byte, error) {
	m.Type = TypeChannelStatus
	return json.Marshal(m)
}

func DecodeChannelStatus(data []byte) (ChannelStatusMsg, error) {
	var m ChannelStatusMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return ChannelStatusMsg{}, err
	}
	if m.Type != TypeChannelStatus {
		return ChannelStatusMsg{}, fmt.Errorf("wire: unexpected type %q", m.Type)
	}
	if m.ChannelStatusHash == "" {
		return ChannelStatusMsg{}, fmt.Errorf("wire: missing channel_status_hash")
	}
	return m, nil
}
