package imap

import (
	"regexp"
	"strconv"
)

var existsRE = regexp.MustCompile(`(?m)^\* (\d+) EXISTS`)

// ExamineFolder selects a folder in read-only mode
func (d *Dialer) ExamineFolder(folder string) (err error) {
	return d.openFolder("EXAMINE", folder, true)
}

// SelectFolder selects a folder in read-write mode
func (d *Dialer) SelectFolder(folder string) (err error) {
	return d.openFolder("SELECT", folder, false)
}

func (d *Dialer) openFolder(verb, folder string, readOnly bool) error {
	r, err := d.Exec(verb+" "+quote(folder), true, nil)
	if err != nil {
		return err
	}
	d.Folder = folder
	d.ReadOnly = readOnly
	d.Exists = 0
	if m := existsRE.FindStringSubmatch(r); m != nil {
		d.Exists, _ = strconv.Atoi(m[1])
	}
	d.trace("mailbox opened", "readonly", readOnly, "exists", d.Exists)
	return nil
}
