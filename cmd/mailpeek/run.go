package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mailpeek/mailpeek"
	"github.com/mailpeek/mailpeek/config"
	"github.com/mailpeek/mailpeek/imap"
)

var errNoDate = errors.New("message has no date")

// runner performs one search, fetch, print, logout pass.
type runner struct {
	settings *config.Settings
	out      io.Writer
	log      imap.Logger
	opts     []mailpeek.Option
}

func (r *runner) run() error {
	opts := append([]mailpeek.Option{mailpeek.WithLogger(r.log)}, r.opts...)
	m := mailpeek.New(r.settings.IMAP, opts...)
	defer m.Close()

	records, err := m.SearchAndFetch(r.settings.Query)
	if err != nil {
		return err
	}

	for _, rec := range records {
		msg, ok := m.ParseRecord(rec)
		if !ok {
			continue
		}
		err := r.print(msg)
		if errors.Is(err, errNoDate) && r.settings.MissingDate == config.MissingDateSkip {
			r.log.Warn("skipping message without date", "uid", msg.UID())
			continue
		}
		if err != nil {
			return err
		}
	}

	if err := m.Logout(); err != nil {
		return err
	}
	r.log.Debug("DONE")
	return nil
}

// print writes the four-line block for msg. Nothing is written when the
// message has no date.
func (r *runner) print(msg *mailpeek.Message) error {
	date, ok := msg.Date()
	if !ok {
		return fmt.Errorf("UID %s: %w", msg.UID(), errNoDate)
	}

	subject := "<none>"
	if s, ok := msg.Subject(); ok {
		subject = fmt.Sprintf("%q", s)
	}

	_, err := fmt.Fprintf(r.out, "%s\n%s\n%q\n---\n",
		subject,
		date.Format(time.RFC3339),
		msg.BodyPreview(r.settings.PreviewLength),
	)
	return err
}
