package channel

import (
	"n1sec/internal/crypto"
	"n1sec/internal/wire"
)

// authenticationToken computes the token proving that this Channel
// controls its own (long-term, ephemeral) key pair, directed either
// toward peerUsername (forPeer=false, "I am telling you who I am") or
// binding the peer's own identity back at them (forPeer=true, "confirming
// who you told me you are"). TripleDH is symmetric between the two
// endpoints, so token(A->B, forPeer=false) computed by A always equals
// token(B->A, forPeer=true) computed by B (spec §4.2, §8).
func (c *Channel) authenticationToken(peerUsername string, peerLTPub, peerEphPub, nonce []byte, forPeer bool) ([]byte, error) {
	triple, err := crypto.TripleDH(c.room.LongTermPrivateKey(), c.ephemeralPrivBytes(), peerLTPub, peerEphPub)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(triple)+len(nonce)+64+32)
	buf = append(buf, triple...)
	buf = append(buf, nonce...)
	if forPeer {
		buf = append(buf, peerLTPub...)
		buf = append(buf, []byte(peerUsername)...)
	} else {
		buf = append(buf, c.room.LongTermPublicKey()...)
		buf = append(buf, []byte(c.username())...)
	}
	return crypto.SHA3_256(buf), nil
}

// authenticateTo broadcasts an Authentication message proving our own
// identity to username, with the given nonce (either their
// authorization_nonce or our own m_authentication_nonce, depending on
// caller).
func (c *Channel) authenticateTo(username string, peerLTPub, peerEphPub, nonce []byte) error {
	token, err := c.authenticationToken(username, peerLTPub, peerEphPub, nonce, false)
	if err != nil {
		return err
	}
	msg := wire.AuthenticationMsg{
		SenderLTPubKey:  hexEnc(c.room.LongTermPublicKey()),
		SenderEphPubKey: hexEnc(c.ephemeralPublicKey()),
		PeerUsername:    username,
		PeerLTPubKey:    hexEnc(peerLTPub),
		PeerEphPubKey:   hexEnc(peerEphPub),
		Nonce:           hexEnc(nonce),
		Token:           hexEnc(token),
	}
	return c.broadcastAuthentication(msg)
}

// ephemeralPrivBytes exposes the channel's ephemeral private key bytes for
// use in TripleDH, through crypto.Ephemeral.PrivateBytesForTripleDH; it
// returns nil once the ephemeral key has been destroyed.
func (c *Channel) ephemeralPrivBytes() []byte {
	return c.ephemeral.PrivateBytesForTripleDH()
}
