package wire

import (
	"encoding/json"
	"fmt"
)

// ChatMsg carries EncryptedChat's ciphertext; the Channel core never sees
// plaintext and applies no signature of its own (the group cipher is
// already authenticated).
type ChatMsg struct {
	Type       string `json:"type"`
	Ciphertext string `json:"ciphertext"`
}

func EncodeChat(m ChatMsg) ([]byte, error) {
	m.Type = TypeChat
	return json.Marshal(m)
}

func DecodeChat(data []byte) (ChatMsg, error) {
	var m ChatMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return ChatMsg{}, err
	}
	if m.Type != TypeChat {
		return ChatMsg{}, fmt.Errorf("wire: unexpected type %q", m.Type)
	}
	if m.Ciphertext == "" {
		return ChatMsg{}, fmt.Errorf("wire: missing ciphertext")
	}
	return m, nil
}
