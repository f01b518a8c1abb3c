package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// refreshThreshold is how much remaining validity a cached token must have
// to be handed out without a refresh.
const refreshThreshold = 5 * time.Minute

// TokenClient obtains and caches a bearer token for the upstream feed using
// the OAuth2 client-credentials grant. Refreshes are single-flight: callers
// arriving while a refresh is in flight wait for it and share its outcome.
// The token is held in memory only and never persisted.
type TokenClient struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	group singleflight.Group

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewTokenClient creates a TokenClient for the given token endpoint.
func NewTokenClient(tokenURL, clientID, clientSecret string, timeout time.Duration) *TokenClient {
	return &TokenClient{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// Token returns a bearer token with at least refreshThreshold of validity
// remaining, refreshing it first if necessary. A failed refresh leaves any
// previously cached token untouched.
func (c *TokenClient) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && time.Until(c.expiry) > refreshThreshold {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	value, err, _ := c.group.Do("token", func() (interface{}, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// Invalidate discards the cached token so the next Token call refreshes.
// Called when the upstream rejects a token that looked valid locally.
func (c *TokenClient) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiry = time.Time{}
	c.mu.Unlock()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *TokenClient) refresh(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("failed to unmarshal token response: %w", err)
	}
	if tr.AccessToken == "" || tr.ExpiresIn <= 0 {
		return "", fmt.Errorf("token response missing access_token or expires_in")
	}

	c.mu.Lock()
	c.token = tr.AccessToken
	c.expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	c.mu.Unlock()

	return tr.AccessToken, nil
}
