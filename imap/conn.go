package imap

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"

	retry "github.com/StirlingMarketingGroup/go-retry"
)

var nextConnNum atomic.Int32

// Dialer represents an IMAP connection
type Dialer struct {
	conn      *tls.Conn
	r         *bufio.Reader
	Folder    string
	ReadOnly  bool
	Exists    int
	Username  string
	Host      string
	Port      int
	Connected bool
	ConnNum   int

	// secret is masked out of verbose command traces.
	secret string
}

// dialHost establishes a TLS connection to the IMAP server
func dialHost(host string, port int) (*tls.Conn, error) {
	dialer := &net.Dialer{Timeout: DialTimeout}
	var cfg *tls.Config
	if TLSSkipVerify {
		cfg = &tls.Config{InsecureSkipVerify: true}
	}
	return tls.DialWithDialer(dialer, "tcp", net.JoinHostPort(host, strconv.Itoa(port)), cfg)
}

// Dial opens a TLS connection to host:port. The connection is not yet
// authenticated; call Login or Authenticate next. Transport failures are
// retried DialRetries times.
func Dial(host string, port int) (d *Dialer, err error) {
	connNum := int(nextConnNum.Add(1)) - 1

	var conn *tls.Conn
	err = retry.Retry(func() error {
		CurrentLogger().Debug("establishing connection", "conn", connNum, "host", host, "port", port)
		conn, err = dialHost(host, port)
		return err
	}, DialRetries, func(err error) error {
		CurrentLogger().Warn("failed to connect, retrying shortly", "conn", connNum, "error", err)
		return nil
	}, func() error {
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("imap dial: %w", err)
	}

	return &Dialer{
		conn:      conn,
		r:         bufio.NewReader(conn),
		Host:      host,
		Port:      port,
		Connected: true,
		ConnNum:   connNum,
	}, nil
}

// Close closes the IMAP connection. It is safe to call more than once.
func (d *Dialer) Close() (err error) {
	if d.Connected {
		d.trace("closing connection")
		d.Connected = false
		err = d.conn.Close()
		if err != nil {
			return fmt.Errorf("imap close: %w", err)
		}
	}
	return err
}

// Logout ends the session with LOGOUT and closes the connection, even when
// the server rejects the command.
func (d *Dialer) Logout() (err error) {
	if !d.Connected {
		return nil
	}
	_, err = d.Exec("LOGOUT", false, nil)
	if cerr := d.Close(); err == nil {
		err = cerr
	}
	return err
}
