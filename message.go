package mailpeek

import (
	"bytes"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	humanize "github.com/dustin/go-humanize"
	"github.com/jhillyerd/enmime/v2"

	"github.com/mailpeek/mailpeek/imap"
)

// PreviewLength is the default body preview length, in characters.
const PreviewLength = 150

// Message is the parsed view of one fetched record.
type Message struct {
	record *imap.FetchRecord
	env    *enmime.Envelope
}

// UID returns the server UID of the record the message came from.
func (m *Message) UID() string {
	return m.record.UID
}

// Subject returns the decoded Subject header and whether it was present.
func (m *Message) Subject() (string, bool) {
	if len(m.env.GetHeaderValues("Subject")) == 0 {
		return "", false
	}
	return m.env.GetHeader("Subject"), true
}

// Date returns the message's Date header. ok is false when the header is
// missing or not a valid RFC 5322 date.
func (m *Message) Date() (t time.Time, ok bool) {
	raw := m.env.GetHeader("Date")
	if raw == "" {
		return time.Time{}, false
	}
	t, err := mail.ParseDate(raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// From returns the decoded From header.
func (m *Message) From() string {
	return m.env.GetHeader("From")
}

// BodyPreview returns at most n characters of the text body, without its
// final line break. HTML-only messages are previewed from their text
// rendering.
func (m *Message) BodyPreview(n int) string {
	text := strings.TrimRight(m.env.Text, "\r\n")
	if n < 0 {
		n = 0
	}
	return truncate(text, n)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// ParseRecord parses the body of rec. ok is false when the record carried no
// body or the body is not a message: such records are meant to be skipped.
func (m *Manager) ParseRecord(rec *imap.FetchRecord) (msg *Message, ok bool) {
	if rec == nil || len(rec.Body) == 0 {
		m.log.Debug("record has no body", "uid", recordUID(rec))
		return nil, false
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(rec.Body))
	if err == nil && len(env.Root.Header) == 0 {
		err = errNoHeaders
	}
	if err != nil {
		m.log.Debug("email body could not be parsed, skipping",
			"uid", rec.UID, "size", humanize.Bytes(uint64(len(rec.Body))), "error", err)
		if imap.Verbose {
			m.log.Debug("unparseable record", "uid", rec.UID, "dump", spew.Sdump(rec.Envelope, string(rec.Body)))
		}
		return nil, false
	}

	return &Message{record: rec, env: env}, true
}

var errNoHeaders = errors.New("message has no header fields")

func recordUID(rec *imap.FetchRecord) string {
	if rec == nil {
		return ""
	}
	return rec.UID
}
