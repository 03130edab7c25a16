package provider

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	uferrors "github.com/Aman-CERP/unifind/internal/errors"
)

// OAuthRefresher exchanges refresh tokens at an OAuth2 token endpoint.
type OAuthRefresher struct {
	config     oauth2.Config
	httpClient *http.Client
}

// Verify interface implementation at compile time
var _ TokenRefresher = (*OAuthRefresher)(nil)

// NewGoogleRefresher creates a refresher for Google accounts. An empty
// tokenURL uses Google's endpoint.
func NewGoogleRefresher(clientID, clientSecret, tokenURL string, httpClient *http.Client) *OAuthRefresher {
	endpoint := google.Endpoint
	if tokenURL != "" {
		endpoint.TokenURL = tokenURL
	}
	return &OAuthRefresher{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     endpoint,
		},
		httpClient: httpClient,
	}
}

// DropboxTokenURL is Dropbox's OAuth2 token endpoint.
const DropboxTokenURL = "https://api.dropboxapi.com/oauth2/token"

// NewDropboxRefresher creates a refresher for Dropbox accounts using the
// app key and secret as client credentials.
func NewDropboxRefresher(appKey, appSecret string, httpClient *http.Client) *OAuthRefresher {
	return &OAuthRefresher{
		config: oauth2.Config{
			ClientID:     appKey,
			ClientSecret: appSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   "https://www.dropbox.com/oauth2/authorize",
				TokenURL:  DropboxTokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}
}

// Refresh returns a new access token. The refresh token is carried over
// when the endpoint does not rotate it.
func (r *OAuthRefresher) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	if refreshToken == "" {
		return Token{}, uferrors.New(uferrors.ErrCodeTokenInvalid, "account has no refresh token", nil)
	}
	if r.config.ClientID == "" {
		return Token{}, uferrors.ConfigError("OAuth client id is not configured", nil).
			WithSuggestion("Set the provider client credentials in the config or environment")
	}

	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}

	tok, err := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return Token{}, uferrors.New(uferrors.ErrCodeTokenInvalid, "token refresh failed", err)
	}

	out := Token{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if out.RefreshToken == "" {
		out.RefreshToken = refreshToken
	}
	return out, nil
}
