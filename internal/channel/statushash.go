package channel

import "n1sec/internal/crypto"

// Type bytes folded into the status-hash chain alongside sender and
// payload, one per wire message kind plus the synthetic "user left" kind
// (spec §4.1). Values are arbitrary but must stay stable: they are part of
// what every honest peer hashes, and a chain computed with one set of
// values will never agree with a chain computed with another.
const (
	hashTypeLeft                   byte = 0
	hashTypeChannelSearch          byte = 1
	hashTypeChannelStatus          byte = 2
	hashTypeChannelAnnouncement    byte = 3
	hashTypeJoinRequest            byte = 4
	hashTypeAuthenticationRequest  byte = 5
	hashTypeAuthentication         byte = 6
	hashTypeAuthorization          byte = 7
	hashTypeConsistencyStatus      byte = 8
	hashTypeConsistencyCheck       byte = 9
	hashTypeKeyExchangePublicKey   byte = 10
	hashTypeKeyExchangeSecretShare byte = 11
	hashTypeKeyExchangeAcceptance  byte = 12
	hashTypeKeyExchangeReveal      byte = 13
	hashTypeKeyActivation          byte = 14
	hashTypeChat                   byte = 15
)

// updateStatusHash folds one more observed broadcast into the running
// channel-status hash, regardless of whether that broadcast later turns
// out to validate. The snapshot fed into the hash has its searcher fields
// emptied but carries the CURRENT (pre-update) channel_status_hash as-is —
// that is what makes this a chain rather than a set of independent digests
// — so the update is a pure function of (everything hashed so far, sender,
// type, payload).
func (c *Channel) updateStatusHash(sender string, typeByte byte, payload []byte) {
	snapshot, err := c.encodeStatusSnapshotForHashing()
	if err != nil {
		// EncryptedChat or wire encoding rejected the current local state;
		// fold the observation without the snapshot rather than leave the
		// chain stuck, since the next snapshot will pick up the same state.
		snapshot = nil
	}
	buf := make([]byte, 0, len(snapshot)+len(sender)+1+len(payload))
	buf = append(buf, snapshot...)
	buf = append(buf, []byte(sender)...)
	buf = append(buf, typeByte)
	buf = append(buf, payload...)
	sum := crypto.SHA3_256(buf)
	copy(c.statusHash[:], sum)
}

// foldUserLeft folds a local departure into the hash chain: type byte 0, the
// literal payload "left".
func (c *Channel) foldUserLeft(username string) {
	c.updateStatusHash(username, hashTypeLeft, []byte("left"))
}
