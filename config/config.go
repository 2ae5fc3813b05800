// Package config builds mailpeek's settings from the environment.
//
// Values come from IMAP_* environment variables. A .env file, when present,
// pre-populates the environment without overriding what is already set, and
// an optional settings file (yaml, toml, json or env) supplies values for
// anything the environment leaves empty.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/mailpeek/mailpeek"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "IMAP"

var (
	// ErrMissing reports a required value that is absent.
	ErrMissing = errors.New("missing required setting")
	// ErrInvalid reports a value that is present but unusable.
	ErrInvalid = errors.New("invalid setting")
)

// MissingDatePolicy decides what the driver does with a message that has no
// usable Date header.
type MissingDatePolicy string

const (
	MissingDateAbort MissingDatePolicy = "abort"
	MissingDateSkip  MissingDatePolicy = "skip"
)

// ParseMissingDatePolicy validates s.
func ParseMissingDatePolicy(s string) (MissingDatePolicy, error) {
	switch p := MissingDatePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case MissingDateAbort, MissingDateSkip:
		return p, nil
	}
	return "", fmt.Errorf("%w: %s_MISSING_DATE=%q (want abort or skip)", ErrInvalid, EnvPrefix, s)
}

// Settings is everything one run needs. It is built once and not modified.
type Settings struct {
	IMAP  mailpeek.Config
	Query string

	MissingDate   MissingDatePolicy
	PreviewLength int

	DialRetries    int
	DialTimeout    time.Duration
	CommandTimeout time.Duration
	TLSSkipVerify  bool
}

// Options controls where Load looks for values.
type Options struct {
	// EnvFile is loaded into the process environment first. A missing file
	// is ignored unless EnvFileRequired is set.
	EnvFile         string
	EnvFileRequired bool
	// ConfigFile is an optional settings file read by viper.
	ConfigFile string
	// Secrets looks up the password when IMAP_PASSWORD is empty and
	// IMAP_KEYRING_SERVICE is set. Nil means the OS keyring.
	Secrets Secrets
}

// Load resolves Settings. Every returned error wraps ErrMissing or
// ErrInvalid, or describes a file that could not be read.
func Load(ctx context.Context, opts Options) (*Settings, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			if opts.EnvFileRequired || !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("loading %s: %w", opts.EnvFile, err)
			}
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetDefault("missing_date", string(MissingDateAbort))
	v.SetDefault("preview_length", mailpeek.PreviewLength)
	v.SetDefault("dial_retries", 0)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", opts.ConfigFile, err)
		}
	}

	s := &Settings{
		IMAP: mailpeek.Config{
			Host:        v.GetString("host"),
			Username:    v.GetString("username"),
			Password:    v.GetString("password"),
			AccessToken: v.GetString("access_token"),
		},
		Query: v.GetString("search"),
	}

	for _, req := range []struct {
		key, val string
	}{
		{"host", s.IMAP.Host},
		{"port", v.GetString("port")},
		{"username", s.IMAP.Username},
		{"search", s.Query},
	} {
		if req.val == "" {
			return nil, missing(req.key)
		}
	}

	p := parser{v: v}
	s.IMAP.ReadOnly = p.boolValue("readonly")
	s.TLSSkipVerify = p.boolValue("tls_skip_verify")
	s.PreviewLength = p.intValue("preview_length")
	s.DialRetries = p.intValue("dial_retries")
	s.DialTimeout = p.durationValue("dial_timeout")
	s.CommandTimeout = p.durationValue("command_timeout")
	if p.err != nil {
		return nil, p.err
	}

	port, err := strconv.ParseUint(strings.TrimSpace(v.GetString("port")), 10, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: %s_PORT=%q is not a port number", ErrInvalid, EnvPrefix, v.GetString("port"))
	}
	s.IMAP.Port = uint16(port)

	if s.MissingDate, err = ParseMissingDatePolicy(v.GetString("missing_date")); err != nil {
		return nil, err
	}
	if s.PreviewLength < 0 {
		return nil, fmt.Errorf("%w: %s_PREVIEW_LENGTH=%d is negative", ErrInvalid, EnvPrefix, s.PreviewLength)
	}
	if s.DialRetries < 0 {
		return nil, fmt.Errorf("%w: %s_DIAL_RETRIES=%d is negative", ErrInvalid, EnvPrefix, s.DialRetries)
	}

	if err := resolveCredentials(ctx, v, s, opts.Secrets); err != nil {
		return nil, err
	}
	return s, nil
}

// resolveCredentials fills in the password from the keyring, or the access
// token from an OAuth refresh token, when the environment did not provide
// one directly.
func resolveCredentials(ctx context.Context, v *viper.Viper, s *Settings, secrets Secrets) error {
	if s.IMAP.Password != "" || s.IMAP.AccessToken != "" {
		return nil
	}

	if service := v.GetString("keyring_service"); service != "" {
		if secrets == nil {
			secrets = OSKeyring{}
		}
		pw, err := secrets.Get(service, s.IMAP.Username)
		if err != nil {
			return fmt.Errorf("%w: %s_PASSWORD (keyring %q: %w)", ErrMissing, EnvPrefix, service, err)
		}
		s.IMAP.Password = pw
		return nil
	}

	if v.GetString("oauth_refresh_token") != "" {
		token, err := refreshAccessToken(ctx, OAuth{
			ClientID:     v.GetString("oauth_client_id"),
			ClientSecret: v.GetString("oauth_client_secret"),
			RefreshToken: v.GetString("oauth_refresh_token"),
			TokenURL:     v.GetString("oauth_token_url"),
		})
		if err != nil {
			return err
		}
		s.IMAP.AccessToken = token
		return nil
	}

	return missing("password")
}

func missing(key string) error {
	return fmt.Errorf("%w: %s_%s", ErrMissing, EnvPrefix, strings.ToUpper(key))
}

// parser reads optional typed values, keeping the first failure. An empty
// value yields the zero value.
type parser struct {
	v   *viper.Viper
	err error
}

func (p *parser) raw(key string) string {
	if p.err != nil {
		return ""
	}
	return strings.TrimSpace(p.v.GetString(key))
}

func (p *parser) fail(key, val, want string) {
	p.err = fmt.Errorf("%w: %s_%s=%q is not %s", ErrInvalid, EnvPrefix, strings.ToUpper(key), val, want)
}

func (p *parser) intValue(key string) int {
	val := p.raw(key)
	if val == "" {
		return 0
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		p.fail(key, val, "an integer")
	}
	return n
}

func (p *parser) boolValue(key string) bool {
	val := p.raw(key)
	if val == "" {
		return false
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		p.fail(key, val, "a boolean")
	}
	return b
}

func (p *parser) durationValue(key string) time.Duration {
	val := p.raw(key)
	if val == "" {
		return 0
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		p.fail(key, val, "a duration")
	}
	return d
}
