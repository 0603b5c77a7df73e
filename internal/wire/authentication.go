package wire

import (
	"encoding/json"
	"fmt"
)

// AuthenticationRequestMsg asks its target to authenticate back to the
// sender using the carried nonce. Unsigned: the subsequent Authentication
// token is what actually proves key ownership.
type AuthenticationRequestMsg struct {
	Type            string `json:"type"`
	SenderLTPubKey  string `json:"sender_lt_pk"`
	SenderEphPubKey string `json:"sender_eph_pk"`
	PeerUsername    string `json:"peer_username"`
	PeerLTPubKey    string `json:"peer_lt_pk"`
	PeerEphPubKey   string `json:"peer_eph_pk"`
	Nonce           string `json:"nonce"`
}

func EncodeAuthenticationRequest(m AuthenticationRequestMsg) ([]byte, error) {
	m.Type = TypeAuthenticationRequest
	return json.Marshal(m)
}

func DecodeAuthenticationRequest(data []byte) (AuthenticationRequestMsg, error) {
	var m AuthenticationRequestMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return AuthenticationRequestMsg{}, err
	}
	if m.Type != TypeAuthenticationRequest {
		return AuthenticationRequestMsg{}, fmt.Errorf("wire: unexpected type %q", m.Type)
	}
	return m, nil
}

// AuthenticationMsg carries the TripleDH-derived token proving that the
// sender controls (sender_lt_pk, sender_eph_pk). AuthenticationConfirmation
// is an optional wire field; the Channel core never sets it, so a reply to
// an AuthenticationRequest and the unprompted Authentication sent by a
// newly active member look the same on the wire.
type AuthenticationMsg struct {
	Type                      string `json:"type"`
	SenderLTPubKey            string `json:"sender_lt_pk"`
	SenderEphPubKey           string `json:"sender_eph_pk"`
	PeerUsername              string `json:"peer_username"`
	PeerLTPubKey              string `json:"peer_lt_pk"`
	PeerEphPubKey             string `json:"peer_eph_pk"`
	Nonce                     string `json:"nonce"`
	Token                     string `json:"token"`
	AuthenticationConfirmation bool  `json:"authentication_confirmation,omitempty"`
}

func EncodeAuthentication(m AuthenticationMsg) ([]byte, error) {
	m.Type = TypeAuthentication
	return json.Marshal(m)
}

func DecodeAuthentication(data []byte) (AuthenticationMsg, error) {
	var m AuthenticationMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return AuthenticationMsg{}, err
	}
	if m.Type != TypeAuthentication {
		return AuthenticationMsg{}, fmt.Errorf("wire: unexpected type %q", m.Type)
	}
	if m.Token == "" || m.Nonce == "" {
		return AuthenticationMsg{}, fmt.Errorf("wire: missing token/nonce")
	}
	return m, nil
}
