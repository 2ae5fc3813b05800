package imap

import (
	"encoding/base64"

	"github.com/sqs/go-xoauth2"
)

// xoauth2Response is the base64 initial response for AUTHENTICATE XOAUTH2.
// xoauth2.XOAuth2String reads its buffer before the encoder flushes, dropping
// the final partial block, so the encoding happens here.
func xoauth2Response(user, accessToken string) string {
	return base64.StdEncoding.EncodeToString([]byte(xoauth2.OAuth2String(user, accessToken)))
}

// Authenticate performs XOAUTH2 authentication using an access token
func (d *Dialer) Authenticate(user string, accessToken string) (err error) {
	b64 := xoauth2Response(user, accessToken)
	d.secret = b64
	_, err = d.Exec("AUTHENTICATE XOAUTH2 "+b64, false, nil)
	if err == nil {
		d.Username = user
	}
	return err
}

// Login performs LOGIN authentication using username and password
func (d *Dialer) Login(username string, password string) (err error) {
	d.secret = quote(password)
	_, err = d.Exec("LOGIN "+quote(username)+" "+d.secret, false, nil)
	if err == nil {
		d.Username = username
	}
	return err
}
