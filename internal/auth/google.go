package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	goauth2 "google.golang.org/api/oauth2/v2"
	goption "google.golang.org/api/option"
)

// GoogleProvider signs users in with Google OAuth2 and reads their profile
// from the userinfo endpoint.
type GoogleProvider struct {
	cfg        *oauth2.Config
	httpClient *http.Client
	// apiEndpoint overrides the userinfo base URL in tests.
	apiEndpoint string
}

var _ Provider = (*GoogleProvider)(nil)

// LoadClientCredentials returns the OAuth client JSON from inline or from
// file, preferring inline.
func LoadClientCredentials(inline, file string) ([]byte, error) {
	inline = strings.TrimSpace(inline)
	file = strings.TrimSpace(file)
	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read client file: %w", err)
		}
		return b, nil
	default:
		return nil, ErrMissingCreds
	}
}

// NewGoogleProvider parses clientJSON as downloaded from the Google Cloud
// console. redirectURL overrides the first redirect URI in the file.
func NewGoogleProvider(clientJSON []byte, redirectURL string) (*GoogleProvider, error) {
	cfg, err := google.ConfigFromJSON(clientJSON,
		goauth2.OpenIDScope,
		goauth2.UserinfoEmailScope,
		goauth2.UserinfoProfileScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("oauth config: missing redirect URL")
	}
	return &GoogleProvider{cfg: cfg, httpClient: newHTTPClient()}, nil
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

func (p *GoogleProvider) Exchange(ctx context.Context, code string) (Principal, error) {
	if code == "" {
		return Principal{}, ErrExchange
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	tok, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: token exchange: %v", ErrExchange, err)
	}

	opts := []goption.ClientOption{goption.WithHTTPClient(p.cfg.Client(ctx, tok))}
	if p.apiEndpoint != "" {
		opts = append(opts, goption.WithEndpoint(p.apiEndpoint))
	}
	svc, err := goauth2.NewService(ctx, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: userinfo service: %v", ErrExchange, err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return Principal{}, fmt.Errorf("%w: userinfo: %v", ErrExchange, err)
	}
	if info.Id == "" {
		return Principal{}, fmt.Errorf("%w: userinfo returned no id", ErrExchange)
	}

	name := info.Name
	if name == "" {
		name = info.Email
	}
	slog.DebugContext(ctx, "Google sign-in resolved", "owner_id", info.Id)
	return Principal{UID: info.Id, DisplayName: name, Email: info.Email}, nil
}

// newHTTPClient returns a client with bounded dial, TLS and response
// timeouts for the token and userinfo endpoints.
func newHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}
}
