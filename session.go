package mailpeek

import (
	"fmt"
	"strconv"

	"github.com/mailpeek/mailpeek/imap"
)

// Mailbox is the mailbox every session selects.
const Mailbox = "INBOX"

// Config holds what a Manager needs to reach and log in to the server.
type Config struct {
	Host     string
	Port     uint16
	Username string
	Password string
	// AccessToken switches authentication to XOAUTH2 when set.
	AccessToken string
	// ReadOnly opens the mailbox with EXAMINE so fetching does not set \Seen.
	ReadOnly bool
}

// Conn is the protocol client a Manager drives. *imap.Dialer implements it.
type Conn interface {
	Login(username, password string) error
	Authenticate(username, accessToken string) error
	SelectFolder(folder string) error
	ExamineFolder(folder string) error
	UIDSearch(query string) ([]string, error)
	UIDFetch(uids []string) ([]*imap.FetchRecord, error)
	Logout() error
	Close() error
}

// DialFunc opens an encrypted, unauthenticated connection. Errors should
// name the address that could not be reached.
type DialFunc func(host string, port uint16) (Conn, error)

// DialTLS is the default DialFunc, backed by imap.Dial.
func DialTLS(host string, port uint16) (Conn, error) {
	d, err := imap.Dial(host, int(port))
	if err != nil {
		return nil, err
	}
	return d, nil
}

// State is the lifecycle stage of a Manager's session.
type State int

const (
	Unconnected State = iota
	Connected
	LoggedOut
)

func (s State) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Connected:
		return "connected"
	case LoggedOut:
		return "logged out"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// sessionState is one of unconnected, connected or loggedOut.
type sessionState interface {
	state() State
}

type unconnected struct{}

type connected struct {
	conn Conn
}

type loggedOut struct{}

func (unconnected) state() State { return Unconnected }
func (connected) state() State   { return Connected }
func (loggedOut) state() State   { return LoggedOut }

// Option configures a Manager.
type Option func(*Manager)

// WithDialer replaces the transport used to reach the server.
func WithDialer(dial DialFunc) Option {
	return func(m *Manager) {
		m.dial = dial
	}
}

// WithLogger sets the logger; the default is imap.CurrentLogger().
func WithLogger(l imap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// Manager owns at most one authenticated session with Mailbox selected. It
// is not safe for concurrent use.
type Manager struct {
	cfg  Config
	dial DialFunc
	log  imap.Logger
	st   sessionState
}

// New returns a Manager in the Unconnected state. No I/O happens until the
// first operation that needs the server.
func New(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:  cfg,
		dial: DialTLS,
		st:   unconnected{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = imap.CurrentLogger()
	}
	m.log = m.log.WithAttrs("host", cfg.Host, "user", cfg.Username)
	return m
}

// State reports the session lifecycle stage.
func (m *Manager) State() State {
	return m.st.state()
}

// Session returns the live connection, establishing it on first use:
// dial, authenticate, then select Mailbox. A failed step closes whatever was
// opened and leaves the manager Unconnected.
func (m *Manager) Session() (Conn, error) {
	switch s := m.st.(type) {
	case connected:
		if s.conn == nil {
			return nil, fmt.Errorf("%w: connected without a connection", ErrInternal)
		}
		return s.conn, nil
	case loggedOut:
		return nil, ErrLoggedOut
	case unconnected:
	default:
		return nil, fmt.Errorf("%w: unknown state %T", ErrInternal, m.st)
	}

	m.log.Debug("create client", "port", m.cfg.Port)
	conn, err := m.dial(m.cfg.Host, m.cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	if conn == nil {
		return nil, fmt.Errorf("%w: dialer returned no connection", ErrInternal)
	}

	m.log.Debug("create session")
	if m.cfg.AccessToken != "" {
		err = conn.Authenticate(m.cfg.Username, m.cfg.AccessToken)
	} else {
		err = conn.Login(m.cfg.Username, m.cfg.Password)
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrAuth, err)
	}

	if m.cfg.ReadOnly {
		err = conn.ExamineFolder(Mailbox)
	} else {
		err = conn.SelectFolder(Mailbox)
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrMailbox, Mailbox, err)
	}

	m.st = connected{conn: conn}
	return conn, nil
}

// Search returns the UIDs matching query, which uses the server's search
// grammar ("SINCE 01-Jan-2024", "UNSEEN FROM alice").
func (m *Manager) Search(query string) ([]string, error) {
	conn, err := m.Session()
	if err != nil {
		return nil, err
	}
	uids, err := conn.UIDSearch(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrSearch, query, err)
	}
	m.log.Debug("found messages", "count", len(uids))
	return uids, nil
}

// Fetch retrieves the envelope and full body of each UID. An empty uids
// returns an empty result without contacting the server.
func (m *Manager) Fetch(uids []string) ([]*imap.FetchRecord, error) {
	conn, err := m.Session()
	if err != nil {
		return nil, err
	}
	if len(uids) == 0 {
		m.log.Debug("nothing to fetch")
		return []*imap.FetchRecord{}, nil
	}
	records, err := conn.UIDFetch(uids)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return records, nil
}

// SearchAndFetch is Search followed by Fetch of its results.
func (m *Manager) SearchAndFetch(query string) ([]*imap.FetchRecord, error) {
	uids, err := m.Search(query)
	if err != nil {
		return nil, err
	}
	return m.Fetch(uids)
}

// Logout ends a live session and always releases its transport. Without a
// live session it does nothing.
func (m *Manager) Logout() error {
	s, ok := m.st.(connected)
	if !ok {
		return nil
	}
	m.st = loggedOut{}
	if s.conn == nil {
		return nil
	}

	m.log.Debug("logout from IMAP server")
	err := s.conn.Logout()
	_ = s.conn.Close()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLogout, err)
	}
	return nil
}

// Close releases the transport without LOGOUT. It is safe to call at any
// time, including after Logout.
func (m *Manager) Close() error {
	s, ok := m.st.(connected)
	if !ok {
		return nil
	}
	m.st = loggedOut{}
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
