package mailpeek

import "errors"

// Error kinds returned by Manager. Each is wrapped with context, so match
// them with errors.Is.
var (
	ErrConnection = errors.New("connection failed")
	ErrAuth       = errors.New("authentication failed")
	ErrMailbox    = errors.New("mailbox selection failed")
	ErrSearch     = errors.New("search failed")
	ErrFetch      = errors.New("fetch failed")
	ErrLogout     = errors.New("logout failed")
	ErrInternal   = errors.New("internal session error")
	ErrLoggedOut  = errors.New("session already logged out")
)
