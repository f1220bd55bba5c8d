package social

import (
	"context"
	"encoding/json"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/chroniclehq/chronicle/internal/accounts"
	"github.com/chroniclehq/chronicle/internal/errs"
)

const (
	googleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"
	googleUserInfoURL  = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// GoogleVerifier verifies Google access tokens. The token's audience is
// checked against our client ID via the tokeninfo endpoint before the
// profile is fetched, so tokens minted for other applications are
// rejected.
type GoogleVerifier struct {
	cfg          *oauth2.Config
	tokenInfoURL string
	userInfoURL  string
}

func NewGoogleVerifier(pc ProviderConfig) *GoogleVerifier {
	return &GoogleVerifier{
		cfg: &oauth2.Config{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			RedirectURL:  pc.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		tokenInfoURL: googleTokenInfoURL,
		userInfoURL:  googleUserInfoURL,
	}
}

func (v *GoogleVerifier) Provider() accounts.Provider { return accounts.ProviderGoogle }

func (v *GoogleVerifier) AuthCodeURL(state string) string {
	return v.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (v *GoogleVerifier) Exchange(ctx context.Context, code string) (string, error) {
	return exchange(ctx, v.cfg, code)
}

func (v *GoogleVerifier) VerifyAssertion(ctx context.Context, accessToken string) (accounts.Assertion, error) {
	body, err := apiGet(ctx, v.tokenInfoURL+"?access_token="+accessToken, "")
	if err != nil {
		return accounts.Assertion{}, errs.Wrap(errs.CodeProviderAssertion, "google token verification failed", err)
	}
	var info struct {
		Audience string `json:"aud"`
		Subject  string `json:"sub"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return accounts.Assertion{}, errs.Wrap(errs.CodeProviderAssertion, "malformed google tokeninfo response", err)
	}
	if info.Audience != v.cfg.ClientID {
		return accounts.Assertion{}, errs.New(errs.CodeProviderAssertion, "google token was issued for a different application")
	}

	body, err = apiGet(ctx, v.userInfoURL, accessToken)
	if err != nil {
		return accounts.Assertion{}, errs.Wrap(errs.CodeProviderAssertion, "google userinfo fetch failed", err)
	}
	var profile struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		Name          string `json:"name"`
	}
	if err := json.Unmarshal(body, &profile); err != nil {
		return accounts.Assertion{}, errs.Wrap(errs.CodeProviderAssertion, "malformed google userinfo response", err)
	}
	if profile.ID == "" {
		return accounts.Assertion{}, errs.New(errs.CodeProviderAssertion, "google userinfo missing subject id")
	}
	if info.Subject != "" && info.Subject != profile.ID {
		return accounts.Assertion{}, errs.New(errs.CodeProviderAssertion, "google tokeninfo and userinfo subjects disagree")
	}
	return accounts.Assertion{
		Provider:      accounts.ProviderGoogle,
		SubjectID:     profile.ID,
		Email:         strings.ToLower(profile.Email),
		EmailVerified: profile.VerifiedEmail,
		Name:          profile.Name,
	}, nil
}
