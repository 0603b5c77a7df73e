// Package wire defines the JSON envelopes exchanged over the Room
// broadcast transport. Every message carries a "type" discriminator field;
// callers peek it with MessageType before decoding into the concrete
// struct. Byte fields (keys, hashes, nonces, signatures, ciphertext) are
// hex-encoded, matching the teacher codebase's wire convention.
package wire

import (
	"encoding/json"
	"fmt"
)

const (
	TypeChannelSearch          = "channel_search"
	TypeChannelStatus          = "channel_status"
	TypeChannelAnnouncement    = "channel_announcement"
	TypeJoinRequest            = "join_request"
	TypeAuthenticationRequest  = "authentication_request"
	TypeAuthentication         = "authentication"
	TypeAuthorization          = "authorization"
	TypeConsistencyStatus      = "consistency_status"
	TypeConsistencyCheck       = "consistency_check"
	TypeKeyExchangePublicKey   = "key_exchange_public_key"
	TypeKeyExchangeSecretShare = "key_exchange_secret_share"
	TypeKeyExchangeAcceptance  = "key_exchange_acceptance"
	TypeKeyExchangeReveal      = "key_exchange_reveal"
	TypeKeyActivation          = "key_activation"
	TypeChat                   = "chat"
)

// Per-type ceilings enforced by the dispatcher before JSON decode, so a
// malicious Room cannot force unbounded allocation.
const (
	MaxChannelSearchSize         = 1 << 10
	MaxChannelStatusSize         = 512 << 10
	MaxChannelAnnouncementSize   = 2 << 10
	MaxJoinRequestSize           = 4 << 10
	MaxAuthenticationRequestSize = 2 << 10
	MaxAuthenticationSize        = 4 << 10
	MaxAuthorizationSize         = 4 << 10
	MaxConsistencyStatusSize     = 1 << 10
	MaxConsistencyCheckSize      = 2 << 10
	MaxKeyExchangeSize           = 64 << 10
	MaxKeyActivationSize         = 2 << 10
	MaxChatSize                  = 64 << 10
)

type envelope struct {
	Type string `json:"type"`
}

// MessageType reports the "type" discriminator of a raw message without
// decoding the rest of it.
func MessageType(data []byte) (string, error) {
	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return "", err
	}
	if e.Type == "" {
		return "", fmt.Errorf("wire: missing type field")
	}
	return e.Type, nil
}

// MaxSizeFor returns the per-type size ceiling, or 0 if the type is
// unrecognized (callers should treat 0 as "reject").
func MaxSizeFor(msgType string) int {
	switch msgType {
	case TypeChannelSearch:
		return MaxChannelSearchSize
	case TypeChannelStatus:
		return MaxChannelStatusSize
	case TypeChannelAnnouncement:
		return MaxChannelAnnouncementSize
	case TypeJoinRequest:
		return MaxJoinRequestSize
	case TypeAuthenticationRequest:
		return MaxAuthenticationRequestSize
	case TypeAuthentication:
		return MaxAuthenticationSize
	case TypeAuthorization:
		return MaxAuthorizationSize
	case TypeConsistencyStatus:
		return MaxConsistencyStatusSize
	case TypeConsistencyCheck:
		return MaxConsistencyCheckSize
	case TypeKeyExchangePublicKey, TypeKeyExchangeSecretShare, TypeKeyExchangeAcceptance, TypeKeyExchangeReveal:
		return MaxKeyExchangeSize
	case TypeKeyActivation:
		return MaxKeyActivationSize
	case TypeChat:
		return MaxChatSize
	default:
		return 0
	}
}

func lenPrefixed(buf []byte, field []byte) []byte {
	n := len(field)
	buf = append(buf, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	return append(buf, field...)
}
