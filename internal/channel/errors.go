package channel

import "errors"

// FormatError wraps a malformed-message error, whether encountered while
// constructing a Channel from a ChannelStatus/ChannelAnnouncement snapshot
// (duplicate usernames, dangling key-exchange ids, conflicting event
// counts) or while dispatching an incoming broadcast (spec §7).
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string { return "channel: message format: " + e.Err.Error() }
func (e *FormatError) Unwrap() error { return e.Err }

func formatErrorf(msg string) error {
	return &FormatError{Err: errors.New(msg)}
}

var (
	ErrDuplicateUsername   = errors.New("duplicate username")
	ErrDanglingKeyExchange = errors.New("event references a key exchange with no matching session")
	ErrEventCountMismatch  = errors.New("conflicting event counts")
	ErrUnknownUser         = errors.New("unknown user")
)
