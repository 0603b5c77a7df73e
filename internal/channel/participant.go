package channel

import "container/list"

// AuthStatus is a participant's position in the authentication state
// machine (spec §4.2).
type AuthStatus int

const (
	Unauthenticated AuthStatus = iota
	Authenticating
	AuthenticatingWithNonce
	Authenticated
	AuthenticationFailed
)

func (s AuthStatus) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case AuthenticatingWithNonce:
		return "authenticating_with_nonce"
	case Authenticated:
		return "authenticated"
	case AuthenticationFailed:
		return "authentication_failed"
	default:
		return "unknown"
	}
}

// Participant is one member of a Channel's participant table (spec §3).
type Participant struct {
	Username           string
	LongTermPubKey     []byte // X25519, TripleDH
	EphemeralPubKey    []byte // X25519, per-channel
	SigningPubKey      []byte // RSA-PSS DER, verifies this participant's signatures
	AuthorizationNonce []byte
	Authorized         bool
	AuthStatus         AuthStatus
	AuthorizedBy       map[string]bool // already-authorized peers who vouched for this one
	AuthorizedPeers    map[string]bool // already-authorized peers this one has vouched for
}

func newParticipant(username string, ltpk, ephpk, signingpk, nonce []byte) *Participant {
	return &Participant{
		Username:           username,
		LongTermPubKey:     append([]byte(nil), ltpk...),
		EphemeralPubKey:    append([]byte(nil), ephpk...),
		SigningPubKey:      append([]byte(nil), signingpk...),
		AuthorizationNonce: append([]byte(nil), nonce...),
		AuthorizedBy:       make(map[string]bool),
		AuthorizedPeers:    make(map[string]bool),
	}
}

// quorumSatisfied reports whether p meets the symmetric authorization
// quorum against the given set of already-authorized usernames.
func (p *Participant) quorumSatisfied(authorizedUsernames []string) bool {
	for _, a := range authorizedUsernames {
		if a == p.Username {
			continue
		}
		if !p.AuthorizedBy[a] || !p.AuthorizedPeers[a] {
			return false
		}
	}
	return true
}

// participantTable holds every known participant, keyed by username, in
// insertion order — so that channel-status snapshots (which must hash
// identically across honest peers) never depend on Go's randomized map
// iteration order. This is the same hot-map/ordered-list shape used
// elsewhere in this codebase for bounded peer stores, stripped of the TTL
// and eviction machinery a Channel's participant table doesn't need: a
// participant leaves only through an explicit removal, never by aging out.
type participantTable struct {
	order *list.List
	hot   map[string]*list.Element
}

func newParticipantTable() *participantTable {
	return &participantTable{order: list.New(), hot: make(map[string]*list.Element)}
}

func (t *participantTable) Insert(p *Participant) error {
	if _, exists := t.hot[p.Username]; exists {
		return ErrDuplicateUsername
	}
	el := t.order.PushBack(p)
	t.hot[p.Username] = el
	return nil
}

func (t *participantTable) Get(username string) (*Participant, bool) {
	el, ok := t.hot[username]
	if !ok {
		return nil, false
	}
	return el.Value.(*Participant), true
}

func (t *participantTable) Has(username string) bool {
	_, ok := t.hot[username]
	return ok
}

func (t *participantTable) Remove(username string) (*Participant, bool) {
	el, ok := t.hot[username]
	if !ok {
		return nil, false
	}
	delete(t.hot, username)
	t.order.Remove(el)
	return el.Value.(*Participant), true
}

// List returns every participant in insertion order.
func (t *participantTable) List() []*Participant {
	out := make([]*Participant, 0, len(t.hot))
	for el := t.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*Participant))
	}
	return out
}

func (t *participantTable) Len() int { return len(t.hot) }

// AuthorizedUsernames returns the usernames of every authorized
// participant, in insertion order.
func (t *participantTable) AuthorizedUsernames() []string {
	out := make([]string, 0, len(t.hot))
	for el := t.order.Front(); el != nil; el = el.Next() {
		p := el.Value.(*Participant)
		if p.Authorized {
			out = append(out, p.Username)
		}
	}
	return out
}

// PurgeUser removes username from every other participant's witness sets.
// Used by remove_user (spec §4.7).
func (t *participantTable) PurgeUser(username string) {
	for el := t.order.Front(); el != nil; el = el.Next() {
		p := el.Value.(*Participant)
		delete(p.AuthorizedBy, username)
		delete(p.AuthorizedPeers, username)
	}
}
