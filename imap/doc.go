// Package imap is the small IMAP4rev1 client mailpeek talks to.
//
// It covers exactly what a search-then-fetch run needs:
//
//   - Connecting over implicit TLS
//   - Authenticating with LOGIN or XOAUTH2
//   - Selecting or examining a mailbox
//   - UID SEARCH and UID FETCH of ENVELOPE and BODY[]
//   - LOGOUT
//
// Commands are tagged, written, and read back synchronously on the caller's
// goroutine. A Dialer is not safe for concurrent use.
package imap
