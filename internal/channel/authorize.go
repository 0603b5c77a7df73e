package channel

// tryPromoteUnauthorizedParticipant promotes participant to authorized if
// the symmetric quorum against every already-authorized peer is met
// (spec §4.3). Returns true iff the promotion happened.
func (c *Channel) tryPromoteUnauthorizedParticipant(p *Participant) bool {
	if p.Authorized {
		return false
	}
	if !p.quorumSatisfied(c.participants.AuthorizedUsernames()) {
		return false
	}
	p.Authorized = true
	p.AuthorizedBy = make(map[string]bool)
	p.AuthorizedPeers = make(map[string]bool)

	if p.Username == c.username() {
		c.authorized = true
	}
	c.notifyUserPromoted(p.Username)
	if p.Username == c.username() {
		c.notifyAuthorized()
	}
	return true
}

// removeUser removes a single participant; see removeUsers.
func (c *Channel) removeUser(username string) {
	c.removeUsers([]string{username})
}

// removeUsers removes a set of participants from the table, purges them
// from every witness set and event, notifies the interface, then makes
// one promotion attempt across the remaining unauthorized participants:
// removing a blocking peer can itself satisfy someone else's quorum. Only
// the first such promotion is taken (spec §4.7): it alone triggers
// EncryptedChat.do_add_user. EncryptedChat is informed of the removal
// last, after that promotion attempt.
func (c *Channel) removeUsers(usernames []string) {
	removedAny := false
	for _, username := range usernames {
		if c.participants.Has(username) {
			c.doRemoveUser(username)
			removedAny = true
		}
	}

	for _, p := range c.participants.List() {
		if p.Authorized {
			continue
		}
		if c.tryPromoteUnauthorizedParticipant(p) {
			out, err := c.ec.DoAddUser(p.Username, p.LongTermPubKey)
			if err != nil {
				c.metrics.EncryptedChatErrors.Add(1)
			} else if out != nil {
				_ = c.broadcastKeyExchangeOutbound(out)
			}
			break
		}
	}

	if removedAny {
		if err := c.ec.RemoveUsers(usernames); err != nil {
			c.metrics.EncryptedChatErrors.Add(1)
		}
	}
}

func (c *Channel) doRemoveUser(username string) {
	c.participants.Remove(username)
	c.participants.PurgeUser(username)
	c.events.PurgeUser(username)
	c.notifyUserLeft(username)
	c.metrics.ParticipantsRemoved.Add(1)
}
