package imap

import (
	"fmt"
	"io"
	"mime"
	"net/mail"
	"strconv"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	"golang.org/x/net/html/charset"
)

// FetchItems are the data items UIDFetch requests for every message.
const FetchItems = "(UID ENVELOPE BODY[])"

// Envelope positions within an ENVELOPE fetch item
const (
	EDate uint8 = iota
	ESubject
	EFrom
	ESender
	EReplyTo
	ETo
	ECC
	EBCC
	EInReplyTo
	EMessageID
)

// Address positions within an ENVELOPE address structure
const (
	EEName uint8 = iota
	EESR
	EEMailbox
	EEHost
)

// Envelope holds the decoded ENVELOPE fetch item.
type Envelope struct {
	Date      time.Time
	Subject   string
	From      []string
	MessageID string
}

// FetchRecord is one message returned by UIDFetch.
type FetchRecord struct {
	SeqNum   int
	UID      string
	Envelope *Envelope
	// Body is the raw RFC 5322 message, or nil when the server sent none.
	Body []byte
}

var wordDecoder = mime.WordDecoder{
	CharsetReader: func(label string, input io.Reader) (io.Reader, error) {
		label = strings.Replace(label, "windows-", "cp", -1)
		encoding, _ := charset.Lookup(label)
		if encoding == nil {
			return nil, fmt.Errorf("unknown charset %q", label)
		}
		return encoding.NewDecoder().Reader(input), nil
	},
}

// decodeHeader decodes RFC 2047 encoded words, falling back to the raw text.
func decodeHeader(s string) string {
	dec, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return dec
}

// UIDSearch runs UID SEARCH with a protocol-native query such as
// "SINCE 01-Jan-2024" and returns the matching UIDs in server order.
func (d *Dialer) UIDSearch(query string) (uids []string, err error) {
	r, err := d.Exec("UID SEARCH "+query, true, nil)
	if err != nil {
		return nil, err
	}
	uids, err = parseUIDSearchResponse(r)
	if err != nil {
		return nil, err
	}
	d.trace("search complete", "query", query, "matches", len(uids))
	return uids, nil
}

// UIDFetch fetches the envelope and full body of the given UIDs.
func (d *Dialer) UIDFetch(uids []string) (records []*FetchRecord, err error) {
	records = make([]*FetchRecord, 0, len(uids))
	var size uint64
	_, err = d.Exec("UID FETCH "+JoinUIDs(uids)+" "+FetchItems, false, func(line []byte) error {
		seq, tks, ok, err := parseFetchLine(string(line))
		if err != nil || !ok {
			return err
		}
		rec, err := fetchRecord(seq, tks)
		if err != nil {
			return fmt.Errorf("FETCH %d: %w", seq, err)
		}
		size += uint64(len(rec.Body))
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.trace("fetch complete", "messages", len(records), "size", humanize.Bytes(size))
	return records, nil
}

// fetchRecord maps the name/value token pairs of one FETCH response.
// Items other than UID, ENVELOPE and BODY[] are ignored.
func fetchRecord(seq int, tks []*Token) (*FetchRecord, error) {
	rec := &FetchRecord{SeqNum: seq}
	for i := 0; i+1 < len(tks); i += 2 {
		name, value := tks[i], tks[i+1]
		if err := checkType(name, []TType{TLiteral}, "as item name"); err != nil {
			return nil, err
		}
		switch strings.ToUpper(name.Str) {
		case "UID":
			if err := checkType(value, []TType{TNumber}, "after UID"); err != nil {
				return nil, err
			}
			rec.UID = strconv.Itoa(value.Num)
		case "ENVELOPE":
			if err := checkType(value, []TType{TContainer}, "after ENVELOPE"); err != nil {
				return nil, err
			}
			env, err := parseEnvelope(value.Tokens)
			if err != nil {
				return nil, err
			}
			rec.Envelope = env
		case "BODY[]":
			if err := checkType(value, []TType{TAtom, TQuoted, TNil}, "after BODY[]"); err != nil {
				return nil, err
			}
			if value.Type != TNil {
				rec.Body = []byte(value.Str)
			}
		}
	}
	return rec, nil
}

// nstring returns the text of a string-or-NIL token.
func nstring(t *Token) string {
	switch t.Type {
	case TQuoted, TAtom, TLiteral:
		return t.Str
	case TNumber:
		return strconv.Itoa(t.Num)
	}
	return ""
}

func parseEnvelope(tks []*Token) (*Envelope, error) {
	if len(tks) <= int(EMessageID) {
		return nil, fmt.Errorf("ENVELOPE has %d fields, want %d", len(tks), EMessageID+1)
	}
	env := &Envelope{
		Subject:   decodeHeader(nstring(tks[ESubject])),
		MessageID: nstring(tks[EMessageID]),
	}
	if raw := nstring(tks[EDate]); raw != "" {
		// An unparseable date leaves Date zero.
		if t, err := mail.ParseDate(raw); err == nil {
			env.Date = t
		}
	}
	if tks[EFrom].Type == TContainer {
		for _, a := range tks[EFrom].Tokens {
			if a.Type != TContainer || len(a.Tokens) <= int(EEHost) {
				continue
			}
			addr := nstring(a.Tokens[EEMailbox]) + "@" + nstring(a.Tokens[EEHost])
			if name := decodeHeader(nstring(a.Tokens[EEName])); name != "" {
				addr = (&mail.Address{Name: name, Address: addr}).String()
			}
			env.From = append(env.From, addr)
		}
	}
	return env, nil
}
