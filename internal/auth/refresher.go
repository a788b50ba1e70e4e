package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPRefresher exchanges refresh tokens at an OAuth2 token endpoint.
type HTTPRefresher struct {
	tokenURL     string
	clientID     string
	clientSecret string
	client       *http.Client
}

var _ TokenRefresher = (*HTTPRefresher)(nil)

// NewHTTPRefresher constructs a refresher against the provider's token
// endpoint.
func NewHTTPRefresher(tokenURL, clientID, clientSecret string) *HTTPRefresher {
	return &HTTPRefresher{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       &http.Client{Timeout: 10 * time.Second},
	}
}

type tokenEndpointResponse struct {
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Refresh performs the refresh_token grant. Some providers rotate the
// refresh token on every exchange; when the response omits one, the old
// token stays valid and is reused.
func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (ProviderTokens, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {r.clientID},
		"client_secret": {r.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return ProviderTokens{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return ProviderTokens{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ProviderTokens{}, fmt.Errorf("auth: token endpoint returned %d", resp.StatusCode)
	}
	var body tokenEndpointResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ProviderTokens{}, err
	}
	if body.ExpiresIn <= 0 {
		return ProviderTokens{}, fmt.Errorf("auth: token endpoint returned no expiry")
	}
	tokens := ProviderTokens{
		RefreshToken: body.RefreshToken,
		ExpiresAt:    time.Now().UTC().Add(time.Duration(body.ExpiresIn) * time.Second),
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	return tokens, nil
}
