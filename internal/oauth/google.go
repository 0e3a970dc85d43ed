// Package oauth wraps the Google authorization-code flow used for
// federated sign-in.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

const userinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

var googleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

// Profile is the subset of the Google userinfo payload the service
// consumes.
type Profile struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

type GoogleClient struct {
	cfg *oauth2.Config
}

func NewGoogleClient(clientID, clientSecret, callbackURL string) *GoogleClient {
	return &GoogleClient{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  callbackURL,
		Endpoint:     googleEndpoint,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
	}}
}

func (g *GoogleClient) Configured() bool {
	return g.cfg.ClientID != "" && g.cfg.ClientSecret != ""
}

// AuthURL builds the consent-screen redirect for the given CSRF state.
func (g *GoogleClient) AuthURL(state string) string {
	return g.cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange trades the authorization code for tokens and fetches the
// user's profile.
func (g *GoogleClient) Exchange(ctx context.Context, code string) (Profile, error) {
	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return Profile{}, fmt.Errorf("exchange code: %w", err)
	}

	client := g.cfg.Client(ctx, tok)
	resp, err := client.Get(userinfoURL)
	if err != nil {
		return Profile{}, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Profile{}, fmt.Errorf("userinfo status %d: %s", resp.StatusCode, body)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return Profile{}, fmt.Errorf("decode userinfo: %w", err)
	}
	return profile, nil
}
