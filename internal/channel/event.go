package channel

import (
	"container/list"
	"sort"
)

// EventKind tags which obligation an Event represents (spec §3).
type EventKind int

const (
	EventChannelStatus EventKind = iota
	EventConsistencyCheck
	EventKeyEvent
)

// Event is an outstanding per-peer obligation: a set of usernames ("the
// remaining ones") from whom a matching reply is still owed, in the order
// the original message was sent or observed.
type Event struct {
	Kind           EventKind
	RemainingUsers map[string]bool

	// ChannelStatus fields
	SearcherUsername  string
	SearcherNonce     []byte
	StatusMessageHash []byte

	// ConsistencyCheck fields
	ChannelStatusHash []byte

	// KeyEvent fields
	KeyID           string
	IsKeyActivation bool // true for a pending KeyActivation ack, false for a key-exchange round
	Cancelled       bool
}

func (e *Event) hasUser(username string) bool { return e.RemainingUsers[username] }

// eventQueue is the single FIFO queue described in spec §3/§4.4. It is a
// plain container/list: events are pushed at the back and the dispatcher
// always looks for the oldest (front-most) event still naming a given
// user, so no secondary index is needed — the queue is expected to stay
// short (bounded by the number of outstanding broadcasts, not by channel
// size).
type eventQueue struct {
	order *list.List
}

func newEventQueue() *eventQueue {
	return &eventQueue{order: list.New()}
}

func (q *eventQueue) Push(e *Event) *list.Element {
	return q.order.PushBack(e)
}

// FirstUserEvent returns the oldest event that still lists username among
// its remaining users, or nil if there is none.
func (q *eventQueue) FirstUserEvent(username string) *list.Element {
	for el := q.order.Front(); el != nil; el = el.Next() {
		if el.Value.(*Event).hasUser(username) {
			return el
		}
	}
	return nil
}

// Resolve erases username from el's remaining users, dropping the event
// entirely once its remaining set is empty.
func (q *eventQueue) Resolve(el *list.Element, username string) {
	e := el.Value.(*Event)
	delete(e.RemainingUsers, username)
	if len(e.RemainingUsers) == 0 {
		q.order.Remove(el)
	}
}

// PurgeUser removes username from every event's remaining users (called
// from remove_user), deleting any event this empties.
func (q *eventQueue) PurgeUser(username string) {
	for el := q.order.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*Event)
		delete(e.RemainingUsers, username)
		if len(e.RemainingUsers) == 0 {
			q.order.Remove(el)
		}
		el = next
	}
}

// List returns every pending event in FIFO order, for channel-status
// snapshot encoding.
func (q *eventQueue) List() []*Event {
	out := make([]*Event, 0, q.order.Len())
	for el := q.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*Event))
	}
	return out
}

func remainingUsersOf(usernames []string) map[string]bool {
	out := make(map[string]bool, len(usernames))
	for _, u := range usernames {
		out[u] = true
	}
	return out
}

// sortedKeys returns m's keys in sorted order, so anything hashed or
// encoded from a map never depends on Go's randomized iteration order.
func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
