// Package mailpeek searches an IMAP mailbox and parses what it finds.
//
// A Manager owns one lazily established session: the first operation that
// needs the server dials over TLS, authenticates and selects INBOX, and every
// later operation reuses that connection until Logout. The manager never
// exits the process; every failure comes back as an error that can be
// matched with errors.Is against the Err* values of this package.
//
//	m := mailpeek.New(cfg)
//	defer m.Close()
//
//	records, err := m.SearchAndFetch("SINCE 01-Jan-2024")
//	if err != nil {
//		return err
//	}
//	for _, rec := range records {
//		if msg, ok := m.ParseRecord(rec); ok {
//			fmt.Println(msg.Subject())
//		}
//	}
//	return m.Logout()
package mailpeek
