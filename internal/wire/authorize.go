package wire

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// AuthorizationMsg is signed by the sender (with their RSA-PSS signing
// key) over AuthorizationSignBytes. It asserts that the sender vouches for
// the named participant's recorded identity as of authorization_nonce.
type AuthorizationMsg struct {
	Type               string `json:"type"`
	Username           string `json:"username"`
	LongTermPubKey     string `json:"long_term_pk"`
	EphemeralPubKey    string `json:"ephemeral_pk"`
	AuthorizationNonce string `json:"authorization_nonce"`
	Sig                string `json:"sig"`
}

func EncodeAuthorization(m AuthorizationMsg) ([]byte, error) {
	m.Type = TypeAuthorization
	return json.Marshal(m)
}

func DecodeAuthorization(data []byte) (AuthorizationMsg, error) {
	var m AuthorizationMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return AuthorizationMsg{}, err
	}
	if m.Type != TypeAuthorization {
		return AuthorizationMsg{}, fmt.Errorf("wire: unexpected type %q", m.Type)
	}
	if m.Username == "" || m.Sig == "" {
		return AuthorizationMsg{}, fmt.Errorf("wire: missing username/sig")
	}
	return m, nil
}

// AuthorizationSignBytes builds the length-prefixed encoding an
// AuthorizationMsg's signature covers: a fixed version prefix followed by
// each variable-length field prefixed with its own 4-byte big-endian
// length, so there is no ambiguity about where one field ends and the
// next begins.
func AuthorizationSignBytes(username string, longTermPK, ephemeralPK, authorizationNonce []byte) []byte {
	buf := make([]byte, 0, 32+len(username)+len(longTermPK)+len(ephemeralPK)+len(authorizationNonce))
	buf = append(buf, []byte("n1sec:v0:authorization|")...)
	buf = lenPrefixed(buf, []byte(username))
	buf = lenPrefixed(buf, longTermPK)
	buf = lenPrefixed(buf, ephemeralPK)
	buf = lenPrefixed(buf, authorizationNonce)
	return buf
}

// DecodeHexField decodes a hex-encoded wire field, rejecting the empty
// string so a zero-valued struct field doesn't silently decode to an
// empty byte slice.
func DecodeHexField(name, s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("wire: missing %s", name)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("wire: bad %s hex", name)
	}
	return b, nil
}
