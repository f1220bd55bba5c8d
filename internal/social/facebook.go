package social

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"

	"github.com/chroniclehq/chronicle/internal/accounts"
	"github.com/chroniclehq/chronicle/internal/errs"
)

const (
	facebookDebugTokenURL = "https://graph.facebook.com/debug_token"
	facebookProfileURL    = "https://graph.facebook.com/v19.0/me"
)

// FacebookVerifier verifies Facebook access tokens through the Graph
// API's debug_token endpoint, which confirms the token belongs to our
// app and is still live, before fetching the subject's profile.
type FacebookVerifier struct {
	cfg        *oauth2.Config
	debugURL   string
	profileURL string
}

func NewFacebookVerifier(pc ProviderConfig) *FacebookVerifier {
	return &FacebookVerifier{
		cfg: &oauth2.Config{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			RedirectURL:  pc.RedirectURL,
			Scopes:       []string{"email", "public_profile"},
			Endpoint:     facebook.Endpoint,
		},
		debugURL:   facebookDebugTokenURL,
		profileURL: facebookProfileURL,
	}
}

func (v *FacebookVerifier) Provider() accounts.Provider { return accounts.ProviderFacebook }

func (v *FacebookVerifier) AuthCodeURL(state string) string {
	return v.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (v *FacebookVerifier) Exchange(ctx context.Context, code string) (string, error) {
	return exchange(ctx, v.cfg, code)
}

func (v *FacebookVerifier) VerifyAssertion(ctx context.Context, accessToken string) (accounts.Assertion, error) {
	// debug_token is authenticated with the app token, not the user token.
	q := url.Values{}
	q.Set("input_token", accessToken)
	q.Set("access_token", v.cfg.ClientID+"|"+v.cfg.ClientSecret)

	body, err := apiGet(ctx, v.debugURL+"?"+q.Encode(), "")
	if err != nil {
		return accounts.Assertion{}, errs.Wrap(errs.CodeProviderAssertion, "facebook token verification failed", err)
	}
	var debug struct {
		Data struct {
			AppID   string `json:"app_id"`
			IsValid bool   `json:"is_valid"`
			UserID  string `json:"user_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &debug); err != nil {
		return accounts.Assertion{}, errs.Wrap(errs.CodeProviderAssertion, "malformed facebook debug_token response", err)
	}
	if !debug.Data.IsValid || debug.Data.AppID != v.cfg.ClientID {
		return accounts.Assertion{}, errs.New(errs.CodeProviderAssertion, "facebook token is invalid or belongs to another application")
	}

	body, err = apiGet(ctx, v.profileURL+"?fields=id,name,email", accessToken)
	if err != nil {
		return accounts.Assertion{}, errs.Wrap(errs.CodeProviderAssertion, "facebook profile fetch failed", err)
	}
	var profile struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &profile); err != nil {
		return accounts.Assertion{}, errs.Wrap(errs.CodeProviderAssertion, "malformed facebook profile response", err)
	}
	if profile.ID == "" || profile.ID != debug.Data.UserID {
		return accounts.Assertion{}, errs.New(errs.CodeProviderAssertion, "facebook profile subject does not match the verified token")
	}
	// Facebook only returns emails it has itself verified.
	return accounts.Assertion{
		Provider:      accounts.ProviderFacebook,
		SubjectID:     profile.ID,
		Email:         strings.ToLower(profile.Email),
		EmailVerified: profile.Email != "",
		Name:          profile.Name,
	}, nil
}
