package imap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"
)

// literalSuffix matches a line that announces a {n} literal.
var literalSuffix = regexp.MustCompile(`{\d+}$`)

// ErrNotConnected is returned by Exec once the connection has been closed.
var ErrNotConnected = errors.New("imap: not connected")

// CommandError is a tagged NO or BAD completion from the server.
type CommandError struct {
	Status string // "NO" or "BAD"
	Text   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("imap command failed: %s %s", e.Status, e.Text)
}

// newTag returns a fresh command tag. XID tags are 20 uppercase base32hex
// characters (0-9, A-V).
func newTag() []byte {
	return []byte(strings.ToUpper(xid.New().String()))
}

// Exec sends one command and reads lines until its tagged completion.
// Untagged lines are handed to processLine and, when buildResponse is set,
// collected into the returned response. A literal announced with {n} is read
// in full and joined to the line that carried it.
func (d *Dialer) Exec(command string, buildResponse bool, processLine func(line []byte) error) (response string, err error) {
	if !d.Connected {
		return "", ErrNotConnected
	}

	tag := newTag()

	if CommandTimeout != 0 {
		_ = d.conn.SetDeadline(time.Now().Add(CommandTimeout))
		defer func() { _ = d.conn.SetDeadline(time.Time{}) }()
	}

	c := fmt.Sprintf("%s %s\r\n", tag, command)

	if Verbose {
		sanitized := strings.TrimSpace(c)
		if d.secret != "" {
			sanitized = strings.ReplaceAll(sanitized, d.secret, `"****"`)
		}
		d.trace("sending command", "command", sanitized)
	}

	if _, err = d.conn.Write([]byte(c)); err != nil {
		return "", fmt.Errorf("imap write: %w", err)
	}

	var resp strings.Builder
	for {
		var line []byte
		line, err = d.readLine()
		if err != nil {
			d.log().Error("reading response failed", "error", err)
			return "", err
		}

		if Verbose {
			d.trace("server response", "response", string(dropNl(line)))
		}

		if line[0] == '+' {
			// A continuation during AUTHENTICATE carries the server's SASL
			// error; an empty response makes it send the tagged NO.
			if !strings.HasPrefix(command, "AUTHENTICATE ") {
				return "", fmt.Errorf("imap: unexpected continuation %q", dropNl(line))
			}
			d.trace("answering continuation", "continuation", string(dropNl(line)))
			if _, err = d.conn.Write([]byte(nl)); err != nil {
				return "", fmt.Errorf("imap write: %w", err)
			}
			continue
		}

		taglen := len(tag)
		if len(line) > taglen && bytes.Equal(line[:taglen], tag) && line[taglen] == ' ' {
			status, text, _ := strings.Cut(string(dropNl(line[taglen+1:])), " ")
			if status != "OK" {
				return "", &CommandError{Status: status, Text: text}
			}
			break
		}

		if processLine != nil {
			if err = processLine(line); err != nil {
				return "", err
			}
		}
		if buildResponse {
			resp.Write(line)
		}
	}

	return resp.String(), nil
}

// readLine reads one response line, pulling in any literals it announces.
func (d *Dialer) readLine() ([]byte, error) {
	line, err := d.r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("imap read: %w", err)
	}
	for {
		a := literalSuffix.Find(dropNl(line))
		if a == nil {
			return line, nil
		}
		n, err := strconv.Atoi(string(a[1 : len(a)-1]))
		if err != nil {
			return nil, err
		}

		buf := make([]byte, n)
		if _, err = io.ReadFull(d.r, buf); err != nil {
			return nil, fmt.Errorf("imap read literal: %w", err)
		}
		line = append(line, buf...)

		buf, err = d.r.ReadBytes('\n')
		if err != nil {
			return nil, fmt.Errorf("imap read: %w", err)
		}
		line = append(line, buf...)
	}
}
