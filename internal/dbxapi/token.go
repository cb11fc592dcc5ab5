package dbxapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// expirySkew refreshes tokens this long before they actually expire.
const expirySkew = 60 * time.Second

// StaticTokenProvider returns a fixed token. Used for personal access
// tokens and in tests.
type StaticTokenProvider string

func (t StaticTokenProvider) AccessToken(context.Context) (string, error) {
	return string(t), nil
}

// OAuthTokenSource performs the client-credentials exchange against the
// account token endpoint and caches the token until near expiry.
// Concurrent refreshes are collapsed into one exchange.
type OAuthTokenSource struct {
	client       *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
	logger       *slog.Logger
	now          func() time.Time

	sf singleflight.Group

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewOAuthTokenSource creates a token source for the given account.
func NewOAuthTokenSource(accountHost, accountID, clientID, clientSecret string, logger *slog.Logger) *OAuthTokenSource {
	return &OAuthTokenSource{
		client:       &http.Client{Timeout: 15 * time.Second},
		tokenURL:     strings.TrimRight(accountHost, "/") + "/oidc/accounts/" + accountID + "/v1/token",
		clientID:     clientID,
		clientSecret: clientSecret,
		logger:       logger.With("component", "token"),
		now:          time.Now,
	}
}

// AccessToken returns the cached token, refreshing it when near expiry.
func (s *OAuthTokenSource) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.token != "" && s.now().Before(s.expiresAt) {
		token := s.token
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Unlock()

	v, err, _ := s.sf.Do("token", func() (interface{}, error) {
		return s.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *OAuthTokenSource) refresh(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type": {"client_credentials"},
		"scope":      {"all-apis"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(s.clientID, s.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange failed: %d: %s", resp.StatusCode, string(raw))
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	expiresAt := s.expiry(body.AccessToken, body.ExpiresIn)

	s.mu.Lock()
	s.token = body.AccessToken
	s.expiresAt = expiresAt
	s.mu.Unlock()

	s.logger.Debug("access token refreshed", "expires_at", expiresAt)
	return body.AccessToken, nil
}

// expiry derives the refresh deadline from expires_in, falling back to the
// token's exp claim, then to a one hour default.
func (s *OAuthTokenSource) expiry(token string, expiresIn int) time.Time {
	if expiresIn > 0 {
		return s.now().Add(time.Duration(expiresIn)*time.Second - expirySkew)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Add(-expirySkew)
		}
	}
	return s.now().Add(time.Hour - expirySkew)
}
