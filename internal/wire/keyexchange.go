package wire

import (
	"encoding/json"
	"fmt"
)

// The four key-exchange rounds share a shape: a key_id naming the
// EncryptedChat session, an opaque payload meaningful only to
// EncryptedChat, and a signature over both. The Channel core never
// inspects the payload beyond forwarding it.

type KeyExchangePublicKeyMsg struct {
	Type    string `json:"type"`
	KeyID   string `json:"key_id"`
	Payload string `json:"payload"`
	Sig     string `json:"sig"`
}

type KeyExchangeSecretShareMsg struct {
	Type    string `json:"type"`
	KeyID   string `json:"key_id"`
	Payload string `json:"payload"`
	Sig     string `json:"sig"`
}

type KeyExchangeAcceptanceMsg struct {
	Type    string `json:"type"`
	KeyID   string `json:"key_id"`
	Payload string `json:"payload"`
	Sig     string `json:"sig"`
}

type KeyExchangeRevealMsg struct {
	Type    string `json:"type"`
	KeyID   string `json:"key_id"`
	Payload string `json:"payload"`
	Sig     string `json:"sig"`
}

type KeyActivationMsg struct {
	Type  string `json:"type"`
	KeyID string `json:"key_id"`
	Sig   string `json:"sig"`
}

func EncodeKeyExchangePublicKey(m KeyExchangePublicKeyMsg) ([]byte, error) {
	m.Type = TypeKeyExchangePublicKey
	return json.Marshal(m)
}
func DecodeKeyExchangePublicKey(data []byte) (KeyExchangePublicKeyMsg, error) {
	var m KeyExchangePublicKeyMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return m, err
	}
	if m.Type != TypeKeyExchangePublicKey {
		return m, fmt.Errorf("wire: unexpected type %q", m.Type)
	}
	return m, validateKeyExchange(m.KeyID, m.Sig)
}

func EncodeKeyExchangeSecretShare(m KeyExchangeSecretShareMsg) ([]byte, error) {
	m.Type = TypeKeyExchangeSecretShare
	return json.Marshal(m)
}
func DecodeKeyExchangeSecretShare(data []byte) (KeyExchangeSecretShareMsg, error) {
	var m KeyExchangeSecretShareMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return m, err
	}
	if m.Type != TypeKeyExchangeSecretShare {
		return m, fmt.Errorf("wire: unexpected type %q", m.Type)
	}
	return m, validateKeyExchange(m.KeyID, m.Sig)
}

func EncodeKeyExchangeAcceptance(m KeyExchangeAcceptanceMsg) ([]byte, error) {
	m.Type = TypeKeyExchangeAcceptance
	return json.Marshal(m)
}
func DecodeKeyExchangeAcceptance(data []byte) (KeyExchangeAcceptanceMsg, error) {
	var m KeyExchangeAcceptanceMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return m, err
	}
	if m.Type != TypeKeyExchangeAcceptance {
		return m, fmt.Errorf("wire: unexpected type %q", m.Type)
	}
	return m, validateKeyExchange(m.KeyID, m.Sig)
}

func EncodeKeyExchangeReveal(m KeyExchangeRevealMsg) ([]byte, error) {
	m.Type = TypeKeyExchangeReveal
	return json.Marshal(m)
}
func DecodeKeyExchangeReveal(data []byte) (KeyExchangeRevealMsg, error) {
	var m KeyExchangeRevealMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return m, err
	}
	if m.Type != TypeKeyExchangeReveal {
		return m, fmt.Errorf("wire: unexpected type %q", m.Type)
	}
	return m, validateKeyExchange(m.KeyID, m.Sig)
}

func EncodeKeyActivation(m KeyActivationMsg) ([]byte, error) {
	m.Type = TypeKeyActivation
	return json.Marshal(m)
}
func DecodeKeyActivation(data []byte) (KeyActivationMsg, error) {
	var m KeyActivationMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return m, err
	}
	if m.Type != TypeKeyActivation {
		return m, fmt.Errorf("wire: unexpected type %q", m.Type)
	}
	return m, validateKeyExchange(m.KeyID, m.Sig)
}

func validateKeyExchange(keyID, sig string) error {
	if keyID == "" || sig == "" {
		return fmt.Errorf("wire: missing key_id/sig")
	}
	return nil
}

// KeyExchangeSignBytes builds the length-prefixed encoding signed by the
// four key-exchange round messages: key_id and the opaque payload bytes.
func KeyExchangeSignBytes(keyID string, payload []byte) []byte {
	buf := make([]byte, 0, 24+len(keyID)+len(payload))
	buf = append(buf, []byte("n1sec:v0:key-exchange|")...)
	buf = lenPrefixed(buf, []byte(keyID))
	buf = lenPrefixed(buf, payload)
	return buf
}

// KeyActivationSignBytes builds the encoding signed by KeyActivation,
// which carries no payload beyond the key_id itself.
func KeyActivationSignBytes(keyID string) []byte {
	buf := make([]byte, 0, 24+len(keyID))
	buf = append(buf, []byte("n1sec:v0:key-activation|")...)
	buf = lenPrefixed(buf, []byte(keyID))
	return buf
}
