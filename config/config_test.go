package config

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"HOST", "PORT", "USERNAME", "PASSWORD", "SEARCH", "ACCESS_TOKEN",
	"KEYRING_SERVICE", "OAUTH_CLIENT_ID", "OAUTH_CLIENT_SECRET",
	"OAUTH_REFRESH_TOKEN", "OAUTH_TOKEN_URL", "READONLY", "TLS_SKIP_VERIFY",
	"DIAL_TIMEOUT", "COMMAND_TIMEOUT", "DIAL_RETRIES", "MISSING_DATE",
	"PREVIEW_LENGTH",
}

// clearEnv unsets every variable Load reads and restores them after t.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		name := EnvPrefix + "_" + k
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func setEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for k, v := range vars {
		t.Setenv(EnvPrefix+"_"+k, v)
	}
}

func baseEnv() map[string]string {
	return map[string]string{
		"HOST":     "mail.example.com",
		"PORT":     "993",
		"USERNAME": "u",
		"PASSWORD": "p",
		"SEARCH":   "SINCE 01-Jan-2024",
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	setEnv(t, baseEnv())

	s, err := Load(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if s.IMAP.Host != "mail.example.com" || s.IMAP.Port != 993 {
		t.Errorf("server = %s:%d", s.IMAP.Host, s.IMAP.Port)
	}
	if s.IMAP.Username != "u" || s.IMAP.Password != "p" {
		t.Errorf("credentials = %q/%q", s.IMAP.Username, s.IMAP.Password)
	}
	if s.Query != "SINCE 01-Jan-2024" {
		t.Errorf("Query = %q", s.Query)
	}
	if s.MissingDate != MissingDateAbort {
		t.Errorf("MissingDate = %q, want abort", s.MissingDate)
	}
	if s.PreviewLength != 150 {
		t.Errorf("PreviewLength = %d, want 150", s.PreviewLength)
	}
	if s.DialRetries != 0 || s.IMAP.ReadOnly || s.TLSSkipVerify {
		t.Errorf("unexpected non-default settings: %+v", s)
	}
}

func TestLoadOptional(t *testing.T) {
	clearEnv(t)
	env := baseEnv()
	env["READONLY"] = "true"
	env["DIAL_RETRIES"] = "3"
	env["DIAL_TIMEOUT"] = "5s"
	env["MISSING_DATE"] = "Skip"
	env["PREVIEW_LENGTH"] = "20"
	env["COMMAND_TIMEOUT"] = "30s"
	env["TLS_SKIP_VERIFY"] = "1"
	setEnv(t, env)

	s, err := Load(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !s.IMAP.ReadOnly {
		t.Error("ReadOnly = false")
	}
	if s.DialRetries != 3 {
		t.Errorf("DialRetries = %d, want 3", s.DialRetries)
	}
	if s.DialTimeout.String() != "5s" {
		t.Errorf("DialTimeout = %v, want 5s", s.DialTimeout)
	}
	if s.MissingDate != MissingDateSkip {
		t.Errorf("MissingDate = %q, want skip", s.MissingDate)
	}
	if s.PreviewLength != 20 {
		t.Errorf("PreviewLength = %d, want 20", s.PreviewLength)
	}
	if s.CommandTimeout != 30*time.Second {
		t.Errorf("CommandTimeout = %v, want 30s", s.CommandTimeout)
	}
	if !s.TLSSkipVerify {
		t.Error("TLSSkipVerify = false")
	}
}

func TestLoadMissing(t *testing.T) {
	for _, key := range []string{"HOST", "PORT", "USERNAME", "PASSWORD", "SEARCH"} {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			env := baseEnv()
			delete(env, key)
			setEnv(t, env)

			_, err := Load(context.Background(), Options{})
			if !errors.Is(err, ErrMissing) {
				t.Fatalf("Load() error = %v, want ErrMissing", err)
			}
		})
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		key, val string
	}{
		{"PORT", "70000"},
		{"PORT", "abc"},
		{"PORT", "-1"},
		{"MISSING_DATE", "ignore"},
		{"PREVIEW_LENGTH", "-5"},
		{"PREVIEW_LENGTH", "abc"},
		{"DIAL_RETRIES", "three"},
		{"DIAL_RETRIES", "-1"},
		{"DIAL_TIMEOUT", "5"},
		{"COMMAND_TIMEOUT", "thirty"},
		{"READONLY", "yes please"},
		{"TLS_SKIP_VERIFY", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.val, func(t *testing.T) {
			clearEnv(t)
			env := baseEnv()
			env[tt.key] = tt.val
			setEnv(t, env)

			_, err := Load(context.Background(), Options{})
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("Load() error = %v, want ErrInvalid", err)
			}
			if !strings.Contains(err.Error(), EnvPrefix+"_"+tt.key) {
				t.Errorf("Load() error = %v, want it to name %s_%s", err, EnvPrefix, tt.key)
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("IMAP_HOST", "from-env.example.com")

	path := filepath.Join(t.TempDir(), ".env")
	content := "IMAP_HOST=from-file.example.com\n" +
		"IMAP_PORT=993\n" +
		"IMAP_USERNAME=u\n" +
		"IMAP_PASSWORD=p\n" +
		"IMAP_SEARCH=\"UNSEEN\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Load(context.Background(), Options{EnvFile: path})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if s.IMAP.Host != "from-env.example.com" {
		t.Errorf("Host = %q, want the environment to win over the file", s.IMAP.Host)
	}
	if s.Query != "UNSEEN" {
		t.Errorf("Query = %q, want value from file", s.Query)
	}
}

func TestLoadEnvFileMissing(t *testing.T) {
	clearEnv(t)
	setEnv(t, baseEnv())
	path := filepath.Join(t.TempDir(), "nope.env")

	if _, err := Load(context.Background(), Options{EnvFile: path}); err != nil {
		t.Errorf("Load() with absent optional env file error: %v", err)
	}
	if _, err := Load(context.Background(), Options{EnvFile: path, EnvFileRequired: true}); err == nil {
		t.Error("Load() with absent required env file error = nil")
	}
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	env := baseEnv()
	delete(env, "SEARCH")
	setEnv(t, env)

	path := filepath.Join(t.TempDir(), "mailpeek.yaml")
	if err := os.WriteFile(path, []byte("search: FROM \"bob\"\npreview_length: 40\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := Load(context.Background(), Options{ConfigFile: path})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if s.Query != `FROM "bob"` {
		t.Errorf("Query = %q", s.Query)
	}
	if s.PreviewLength != 40 {
		t.Errorf("PreviewLength = %d, want 40", s.PreviewLength)
	}
}

type fakeSecrets map[string]string

func (f fakeSecrets) Get(service, key string) (string, error) {
	v, ok := f[service+"/"+key]
	if !ok {
		return "", fmt.Errorf("no item %s/%s", service, key)
	}
	return v, nil
}

func TestLoadKeyring(t *testing.T) {
	secrets := fakeSecrets{"mailpeek/u": "from-keyring"}

	t.Run("found", func(t *testing.T) {
		clearEnv(t)
		env := baseEnv()
		delete(env, "PASSWORD")
		env["KEYRING_SERVICE"] = "mailpeek"
		setEnv(t, env)

		s, err := Load(context.Background(), Options{Secrets: secrets})
		if err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		if s.IMAP.Password != "from-keyring" {
			t.Errorf("Password = %q, want keyring value", s.IMAP.Password)
		}
	})

	t.Run("not found", func(t *testing.T) {
		clearEnv(t)
		env := baseEnv()
		delete(env, "PASSWORD")
		env["KEYRING_SERVICE"] = "other"
		setEnv(t, env)

		if _, err := Load(context.Background(), Options{Secrets: secrets}); !errors.Is(err, ErrMissing) {
			t.Fatalf("Load() error = %v, want ErrMissing", err)
		}
	})

	t.Run("environment wins", func(t *testing.T) {
		clearEnv(t)
		env := baseEnv()
		env["KEYRING_SERVICE"] = "mailpeek"
		setEnv(t, env)

		s, err := Load(context.Background(), Options{Secrets: secrets})
		if err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		if s.IMAP.Password != "p" {
			t.Errorf("Password = %q, want environment value", s.IMAP.Password)
		}
	})
}

func TestLoadOAuthRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "rt" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"abc","token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	oauthEnv := func(refresh string) map[string]string {
		env := baseEnv()
		delete(env, "PASSWORD")
		env["OAUTH_CLIENT_ID"] = "client"
		env["OAUTH_CLIENT_SECRET"] = "secret"
		env["OAUTH_REFRESH_TOKEN"] = refresh
		env["OAUTH_TOKEN_URL"] = srv.URL
		return env
	}

	t.Run("exchanged", func(t *testing.T) {
		clearEnv(t)
		setEnv(t, oauthEnv("rt"))

		s, err := Load(context.Background(), Options{})
		if err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		if s.IMAP.AccessToken != "abc" {
			t.Errorf("AccessToken = %q, want abc", s.IMAP.AccessToken)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		clearEnv(t)
		setEnv(t, oauthEnv("bad"))

		if _, err := Load(context.Background(), Options{}); !errors.Is(err, ErrInvalid) {
			t.Fatalf("Load() error = %v, want ErrInvalid", err)
		}
	})

	t.Run("no token url", func(t *testing.T) {
		clearEnv(t)
		env := oauthEnv("rt")
		delete(env, "OAUTH_TOKEN_URL")
		setEnv(t, env)

		if _, err := Load(context.Background(), Options{}); !errors.Is(err, ErrMissing) {
			t.Fatalf("Load() error = %v, want ErrMissing", err)
		}
	})
}

func TestParseMissingDatePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    MissingDatePolicy
		wantErr bool
	}{
		{"abort", MissingDateAbort, false},
		{" SKIP ", MissingDateSkip, false},
		{"", "", true},
		{"drop", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMissingDatePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMissingDatePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMissingDatePolicy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
