package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDevProvider(t *testing.T) {
	p := NewDevProvider("dev-user", "Developer")

	u, err := url.Parse(p.AuthCodeURL("abc"))
	if err != nil {
		t.Fatalf("AuthCodeURL() not a URL: %v", err)
	}
	if u.Path != "/auth/callback" || u.Query().Get("state") != "abc" {
		t.Errorf("AuthCodeURL() = %s", u)
	}

	got, err := p.Exchange(context.Background(), u.Query().Get("code"))
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if got != (Principal{UID: "dev-user", DisplayName: "Developer"}) {
		t.Errorf("Exchange() = %+v", got)
	}

	if _, err := p.Exchange(context.Background(), "forged"); !errors.Is(err, ErrExchange) {
		t.Errorf("Exchange(forged) error = %v, want ErrExchange", err)
	}
}

func TestLoadClientCredentials(t *testing.T) {
	file := filepath.Join(t.TempDir(), "client.json")
	if err := os.WriteFile(file, []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		inline  string
		file    string
		want    string
		wantErr error
	}{
		{name: "inline wins", inline: `{"from":"inline"}`, file: file, want: `{"from":"inline"}`},
		{name: "file", file: file, want: `{"from":"file"}`},
		{name: "missing", wantErr: ErrMissingCreds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadClientCredentials(tt.inline, tt.file)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || string(got) != tt.want {
				t.Errorf("LoadClientCredentials() = %q, %v; want %q", got, err, tt.want)
			}
		})
	}

	if _, err := LoadClientCredentials("", filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for unreadable file")
	}
}

func clientJSON(tokenURL string) []byte {
	return []byte(`{"web":{"client_id":"cid","client_secret":"secret",` +
		`"auth_uri":"https://accounts.example.com/auth","token_uri":"` + tokenURL + `",` +
		`"redirect_uris":["http://localhost:8081/auth/callback"]}}`)
}

func TestGoogleProvider_AuthCodeURL(t *testing.T) {
	p, err := NewGoogleProvider(clientJSON("https://accounts.example.com/token"), "")
	if err != nil {
		t.Fatalf("NewGoogleProvider() error = %v", err)
	}
	u, err := url.Parse(p.AuthCodeURL("xyz"))
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if q.Get("state") != "xyz" || q.Get("client_id") != "cid" {
		t.Errorf("AuthCodeURL() query = %v", q)
	}
	if q.Get("redirect_uri") != "http://localhost:8081/auth/callback" {
		t.Errorf("redirect_uri = %q", q.Get("redirect_uri"))
	}
	if !strings.Contains(q.Get("scope"), "openid") {
		t.Errorf("scope = %q, want openid", q.Get("scope"))
	}
}

func TestGoogleProvider_Exchange(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/oauth2/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"g-123","email":"ada@example.com","name":"Ada"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, err := NewGoogleProvider(clientJSON(srv.URL+"/token"), "http://localhost:8081/auth/callback")
	if err != nil {
		t.Fatalf("NewGoogleProvider() error = %v", err)
	}
	p.httpClient = srv.Client()
	p.apiEndpoint = srv.URL + "/"

	got, err := p.Exchange(context.Background(), "good")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	want := Principal{UID: "g-123", DisplayName: "Ada", Email: "ada@example.com"}
	if got != want {
		t.Errorf("Exchange() = %+v, want %+v", got, want)
	}

	if _, err := p.Exchange(context.Background(), "bad"); !errors.Is(err, ErrExchange) {
		t.Errorf("Exchange(bad) error = %v, want ErrExchange", err)
	}
	if _, err := p.Exchange(context.Background(), ""); !errors.Is(err, ErrExchange) {
		t.Errorf("Exchange(empty) error = %v, want ErrExchange", err)
	}
}

func TestNewGoogleProvider_InvalidJSON(t *testing.T) {
	if _, err := NewGoogleProvider([]byte("not json"), "http://x/cb"); err == nil {
		t.Error("expected error for invalid client JSON")
	}
}
