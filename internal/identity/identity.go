package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

var ErrUpstreamRejected = errors.New("upstream_rejected")

type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Timeout      time.Duration
}

// Profile is what the provider's people/me endpoint says about the
// caller. Raw keeps the full payload so the authorize response can echo
// the provider's profile fields the way the frontend expects.
type Profile struct {
	Email        string
	Affiliations []string
	Raw          map[string]interface{}
}

type Client struct {
	baseURL string
	http    *http.Client
	oauth   *oauth2.Config
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
		},
	}
}

// Profile exchanges an upstream bearer credential for the caller's
// verified identity. Any non-success status collapses into
// ErrUpstreamRejected: the caller never learns why the provider said no.
func (c *Client) Profile(ctx context.Context, bearer string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/people/me", nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("identity provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return Profile{}, ErrUpstreamRejected
	}
	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("identity provider status %d", resp.StatusCode)
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Profile{}, fmt.Errorf("identity provider payload: %w", err)
	}

	profile := Profile{Raw: raw}
	if email, ok := raw["mail"].(string); ok {
		profile.Email = email
	}
	if values, ok := raw["affiliations"].([]interface{}); ok {
		for _, value := range values {
			if affiliation, ok := value.(string); ok {
				profile.Affiliations = append(profile.Affiliations, affiliation)
			}
		}
	}
	if profile.Email == "" {
		return Profile{}, errors.New("identity provider payload missing mail")
	}
	return profile, nil
}

// Exchange trades an authorization code for the provider's token
// payload. The code is bound to the configured redirect URI.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange: %w", err)
	}
	return token, nil
}
