package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GitHubUser is the slice of GET /user we keep. Email is filled from
// /user/emails when the profile hides it.
type GitHubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// GitHubProvider runs the OAuth authorization code flow against GitHub.
//
// OAUTH FLOW:
//  1. AuthURL sends the browser to GitHub with our client id, scopes and a
//     random state that is also stored in a cookie.
//  2. GitHub redirects to the callback with ?code=...&state=...
//  3. Exchange trades the code for an access token (server to server, using
//     the client secret) and loads the profile with that token.
//
// The access token is returned to the caller because DevStats keeps it: the
// metrics fetcher calls GitHub on the user's behalf later.
type GitHubProvider struct {
	config *oauth2.Config
	apiURL string
}

// Scopes requested at login. "repo" is needed for commit history of private
// repositories; "read:user" and "user:email" cover the profile.
var GitHubScopes = []string{"read:user", "user:email", "repo"}

// NewGitHubProvider builds a provider. apiURL is the REST base
// (https://api.github.com in production, an httptest server in tests).
func NewGitHubProvider(clientID, clientSecret, callbackURL, apiURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       GitHubScopes,
			Endpoint:     github.Endpoint,
		},
		apiURL: strings.TrimRight(apiURL, "/"),
	}
}

// WithOAuthURL points the authorize and token endpoints at another GitHub
// host, e.g. a GitHub Enterprise Server (https://ghe.example.com).
func (p *GitHubProvider) WithOAuthURL(baseURL string) *GitHubProvider {
	baseURL = strings.TrimRight(baseURL, "/")
	p.config.Endpoint = oauth2.Endpoint{
		AuthURL:  baseURL + "/login/oauth/authorize",
		TokenURL: baseURL + "/login/oauth/access_token",
	}
	return p
}

func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange completes the flow and returns the GitHub profile plus the token
// that authorized it.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*GitHubUser, *oauth2.Token, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// The returned client injects "Authorization: Bearer <token>".
	client := p.config.Client(ctx, tok)

	var u GitHubUser
	if err := p.getJSON(ctx, client, "/user", &u); err != nil {
		return nil, nil, err
	}
	if u.ID == 0 {
		return nil, nil, errors.New("auth: GitHub returned an invalid user (ID = 0)")
	}

	if u.Email == "" {
		// Best effort: users with a private email still log in, just
		// without one on file.
		if email, err := p.primaryEmail(ctx, client); err == nil {
			u.Email = email
		}
	}
	return &u, tok, nil
}

func (p *GitHubProvider) primaryEmail(ctx context.Context, client *http.Client) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := p.getJSON(ctx, client, "/user/emails", &emails); err != nil {
		return "", err
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", errors.New("auth: no verified primary email")
}

func (p *GitHubProvider) getJSON(ctx context.Context, client *http.Client, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+path, nil)
	if err != nil {
		return fmt.Errorf("auth: building GitHub %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("auth: calling GitHub %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: GitHub %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("auth: decoding GitHub %s response: %w", path, err)
	}
	return nil
}
