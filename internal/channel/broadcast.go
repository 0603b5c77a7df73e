package channel

import (
	"fmt"

	"n1sec/internal/crypto"
	"n1sec/internal/wire"
)

// sign computes the RSA-PSS signature over the SHA3-256 digest of
// signBytes, using the local signing identity (spec §4.3).
func (c *Channel) sign(signBytes []byte) (string, error) {
	digest := crypto.SHA3_256(signBytes)
	sig, err := crypto.SignDigest(c.room.SigningPrivateKey(), digest)
	if err != nil {
		return "", fmt.Errorf("channel: sign: %w", err)
	}
	return hexEnc(sig), nil
}

// verify checks sig (hex) against signBytes using signerPubKey (RSA-PSS
// DER), returning false on any malformed input rather than erroring: an
// unverifiable signature is handled identically to an invalid one by every
// call site (spec §4.6, channel.cc: invalid signature -> remove_user).
func verify(signerPubKey []byte, signBytes []byte, sigHex string) bool {
	sig, err := hexDec(sigHex)
	if err != nil {
		return false
	}
	return crypto.VerifyDigest(signerPubKey, crypto.SHA3_256(signBytes), sig)
}

func (c *Channel) sendChatCiphertext(ciphertext []byte) error {
	payload, err := wire.EncodeChat(wire.ChatMsg{Ciphertext: hexEnc(ciphertext)})
	if err != nil {
		return err
	}
	return c.room.SendMessage(payload)
}

func (c *Channel) sendJoinRequest(ltpk, ephpk, signingpk []byte, peerUsernames []string) error {
	payload, err := wire.EncodeJoinRequest(wire.JoinRequestMsg{
		LongTermPubKey:  hexEnc(ltpk),
		EphemeralPubKey: hexEnc(ephpk),
		SigningPubKey:   hexEnc(signingpk),
		PeerUsernames:   peerUsernames,
	})
	if err != nil {
		return err
	}
	return c.room.SendMessage(payload)
}

func (c *Channel) sendChannelAnnouncement(ltpk, ephpk, signingpk, statusHash []byte) error {
	payload, err := wire.EncodeChannelAnnouncement(wire.ChannelAnnouncementMsg{
		LongTermPubKey:    hexEnc(ltpk),
		EphemeralPubKey:   hexEnc(ephpk),
		SigningPubKey:     hexEnc(signingpk),
		ChannelStatusHash: hexEnc(statusHash),
	})
	if err != nil {
		return err
	}
	return c.room.SendMessage(payload)
}

func (c *Channel) sendAuthenticationRequest(username string, peerLT, peerEph, nonce []byte) error {
	payload, err := wire.EncodeAuthenticationRequest(wire.AuthenticationRequestMsg{
		SenderLTPubKey:  hexEnc(c.room.LongTermPublicKey()),
		SenderEphPubKey: hexEnc(c.ephemeralPublicKey()),
		PeerUsername:    username,
		PeerLTPubKey:    hexEnc(peerLT),
		PeerEphPubKey:   hexEnc(peerEph),
		Nonce:           hexEnc(nonce),
	})
	if err != nil {
		return err
	}
	return c.room.SendMessage(payload)
}

func (c *Channel) broadcastAuthentication(msg wire.AuthenticationMsg) error {
	payload, err := wire.EncodeAuthentication(msg)
	if err != nil {
		return err
	}
	return c.room.SendMessage(payload)
}

// sendAuthorization signs and broadcasts a vouching Authorization for
// (username, ltpk, ephpk, nonce) as recorded locally (spec §4.3).
func (c *Channel) sendAuthorization(username string, ltpk, ephpk, nonce []byte) error {
	sig, err := c.sign(wire.AuthorizationSignBytes(username, ltpk, ephpk, nonce))
	if err != nil {
		return err
	}
	payload, err := wire.EncodeAuthorization(wire.AuthorizationMsg{
		Username:           username,
		LongTermPubKey:     hexEnc(ltpk),
		EphemeralPubKey:    hexEnc(ephpk),
		AuthorizationNonce: hexEnc(nonce),
		Sig:                sig,
	})
	if err != nil {
		return err
	}
	return c.room.SendMessage(payload)
}

// broadcastConsistencyCheck signs and broadcasts a commitment to the
// current channel-status hash; it is sent in direct reply to this
// channel's own ConsistencyStatus (which the status timer in timer.go
// broadcasts) and to a ChannelSearch (dispatch.go).
func (c *Channel) broadcastConsistencyCheck() error {
	sig, err := c.sign(wire.ConsistencyCheckSignBytes(c.statusHash[:]))
	if err != nil {
		return err
	}
	payload, err := wire.EncodeConsistencyCheck(wire.ConsistencyCheckMsg{
		ChannelStatusHash: hexEnc(c.statusHash[:]),
		Sig:               sig,
	})
	if err != nil {
		return err
	}
	if err := c.room.SendMessage(payload); err != nil {
		return err
	}
	c.metrics.ConsistencyChecksSent.Add(1)
	return nil
}

// broadcastKeyExchangeOutbound signs and broadcasts one round of an
// EncryptedChat key exchange, as produced by DoAddUser/AddUser or one of
// the Handle* round functions.
func (c *Channel) broadcastKeyExchangeOutbound(out *KeyExchangeOutbound) error {
	// Everyone else in the channel owes a matching round reply (or, for an
	// activation, an activation ack) before this broadcast resolves.
	others := make([]string, 0, c.participants.Len())
	for _, u := range c.allUsernames() {
		if u != c.username() {
			others = append(others, u)
		}
	}

	switch out.Kind {
	case wire.TypeKeyExchangePublicKey:
		sig, err := c.sign(wire.KeyExchangeSignBytes(out.KeyID, out.Payload))
		if err != nil {
			return err
		}
		payload, err := wire.EncodeKeyExchangePublicKey(wire.KeyExchangePublicKeyMsg{KeyID: out.KeyID, Payload: hexEnc(out.Payload), Sig: sig})
		if err != nil {
			return err
		}
		c.addKeyExchangeEvent(out.KeyID, others)
		return c.room.SendMessage(payload)
	case wire.TypeKeyExchangeSecretShare:
		sig, err := c.sign(wire.KeyExchangeSignBytes(out.KeyID, out.Payload))
		if err != nil {
			return err
		}
		payload, err := wire.EncodeKeyExchangeSecretShare(wire.KeyExchangeSecretShareMsg{KeyID: out.KeyID, Payload: hexEnc(out.Payload), Sig: sig})
		if err != nil {
			return err
		}
		c.addKeyExchangeEvent(out.KeyID, others)
		return c.room.SendMessage(payload)
	case wire.TypeKeyExchangeAcceptance:
		sig, err := c.sign(wire.KeyExchangeSignBytes(out.KeyID, out.Payload))
		if err != nil {
			return err
		}
		payload, err := wire.EncodeKeyExchangeAcceptance(wire.KeyExchangeAcceptanceMsg{KeyID: out.KeyID, Payload: hexEnc(out.Payload), Sig: sig})
		if err != nil {
			return err
		}
		c.addKeyExchangeEvent(out.KeyID, others)
		return c.room.SendMessage(payload)
	case wire.TypeKeyExchangeReveal:
		sig, err := c.sign(wire.KeyExchangeSignBytes(out.KeyID, out.Payload))
		if err != nil {
			return err
		}
		payload, err := wire.EncodeKeyExchangeReveal(wire.KeyExchangeRevealMsg{KeyID: out.KeyID, Payload: hexEnc(out.Payload), Sig: sig})
		if err != nil {
			return err
		}
		c.addKeyExchangeEvent(out.KeyID, others)
		return c.room.SendMessage(payload)
	case wire.TypeKeyActivation:
		sig, err := c.sign(wire.KeyActivationSignBytes(out.KeyID))
		if err != nil {
			return err
		}
		payload, err := wire.EncodeKeyActivation(wire.KeyActivationMsg{KeyID: out.KeyID, Sig: sig})
		if err != nil {
			return err
		}
		c.addKeyActivationEvent(out.KeyID, others)
		return c.room.SendMessage(payload)
	default:
		return fmt.Errorf("channel: unknown key exchange outbound kind %q", out.Kind)
	}
}
