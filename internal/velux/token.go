package velux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/tonimelisma/velux-go/internal/session"
)

// GrantType selects how a token is obtained.
type GrantType string

const (
	// GrantPassword authenticates with the stored username and password.
	GrantPassword GrantType = "password"
	// GrantRefreshToken exchanges the current refresh token.
	GrantRefreshToken GrantType = "refresh_token"
)

// ParseGrantType accepts "password", "refresh_token" and "refresh".
func ParseGrantType(s string) (GrantType, error) {
	switch s {
	case string(GrantPassword):
		return GrantPassword, nil
	case string(GrantRefreshToken), "refresh":
		return GrantRefreshToken, nil
	default:
		return "", fmt.Errorf("velux: unknown grant type %q (want password or refresh_token)", s)
	}
}

// TokenSaver persists a freshly issued token. Implemented by
// *credstore.Store.
type TokenSaver interface {
	SaveToken(ctx context.Context, sess *session.Session, tok *oauth2.Token) error
}

// tokenResponse is the authorization endpoint's success body.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// TokenManager issues grants against the authorization endpoint. Grants of
// the same type for the same session are coalesced: concurrent callers
// share one request and its result.
type TokenManager struct {
	transport *Transport
	saver     TokenSaver
	metrics   Metrics
	logger    *slog.Logger
	group     singleflight.Group

	// nowFunc returns the current time. Tests override it to pin Expiry.
	nowFunc func() time.Time
}

// NewTokenManager creates a token manager. A nil metrics discards counts.
func NewTokenManager(transport *Transport, saver TokenSaver, metrics Metrics, logger *slog.Logger) *TokenManager {
	if metrics == nil {
		metrics = nopMetrics{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &TokenManager{
		transport: transport,
		saver:     saver,
		metrics:   metrics,
		logger:    logger,
		nowFunc:   time.Now,
	}
}

// RequestToken performs grant for sess. On success the token is persisted
// first and then cached on the session. Any failure is an *AuthRequestError
// and leaves the session token untouched.
//
// The shared grant is detached from the cancellation of whichever caller
// started it. Each caller stops waiting when its own ctx is done.
func (m *TokenManager) RequestToken(ctx context.Context, sess *session.Session, grant GrantType) (*oauth2.Token, error) {
	key := fmt.Sprintf("%p/%s", sess, grant)
	grantCtx := context.WithoutCancel(ctx)

	ch := m.group.DoChan(key, func() (any, error) {
		return m.requestToken(grantCtx, sess, grant)
	})

	var res singleflight.Result

	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, &AuthRequestError{Grant: grant, Err: ctx.Err()}
	}

	if res.Err != nil {
		return nil, res.Err
	}

	if res.Shared {
		m.logger.Debug("joined in-flight grant", slog.String("grant", string(grant)))
	}

	tok := *res.Val.(*oauth2.Token)

	return &tok, nil
}

func (m *TokenManager) requestToken(ctx context.Context, sess *session.Session, grant GrantType) (*oauth2.Token, error) {
	tok, err := m.grant(ctx, sess, grant)
	m.metrics.ObserveGrant(string(grant), resultLabel(err))

	if err != nil {
		m.logger.Warn("token grant failed",
			slog.String("grant", string(grant)),
			slog.String("error", err.Error()),
		)

		return nil, &AuthRequestError{Grant: grant, Err: err}
	}

	return tok, nil
}

func (m *TokenManager) grant(ctx context.Context, sess *session.Session, grant GrantType) (*oauth2.Token, error) {
	settings, ok := sess.Settings()
	if !ok {
		return nil, &IncompleteSessionError{Missing: []string{"settings"}}
	}

	form, err := m.grantForm(sess, settings, grant)
	if err != nil {
		return nil, err
	}

	m.logger.Info("requesting token", slog.String("grant", string(grant)))

	header := http.Header{}
	header.Set("Authorization", settings.Authorization)

	resp, err := m.transport.PostForm(ctx, settings.BaseURL+settings.TokenURL, form, header)
	if err != nil {
		return nil, err
	}

	var body tokenResponse
	if err := resp.Decode(&body); err != nil {
		return nil, err
	}

	if body.AccessToken == "" {
		return nil, errors.New("velux: token response carries no access token")
	}

	tok := &oauth2.Token{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		TokenType:    body.TokenType,
	}

	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}

	if body.ExpiresIn > 0 {
		tok.Expiry = m.nowFunc().Add(time.Duration(body.ExpiresIn) * time.Second)
	}

	// A refresh response may omit the refresh token; the old one stays valid.
	if tok.RefreshToken == "" && grant == GrantRefreshToken {
		tok.RefreshToken = form.Get("refresh_token")
	}

	if err := m.saver.SaveToken(ctx, sess, tok); err != nil {
		return nil, err
	}

	if err := sess.SetToken(tok); err != nil {
		return nil, err
	}

	m.logger.Info("token issued",
		slog.String("grant", string(grant)),
		slog.Time("expiry", tok.Expiry),
	)

	return tok, nil
}

// grantForm builds the endpoint-encoded body for grant.
func (m *TokenManager) grantForm(sess *session.Session, settings session.Settings, grant GrantType) (url.Values, error) {
	form := url.Values{}
	form.Set("grant_type", string(grant))

	switch grant {
	case GrantPassword:
		creds, ok := sess.Credentials()
		if !ok {
			return nil, &IncompleteSessionError{Missing: []string{"credentials"}}
		}

		form.Set("app_identifier", settings.AppIdentifier)
		form.Set("device_model", settings.DeviceModel)
		form.Set("device_name", settings.DeviceName)
		form.Set("scope", settings.Scope)
		form.Set("user_prefix", settings.UserPrefix)
		form.Set("username", creds.Username)
		form.Set("password", creds.Password)
	case GrantRefreshToken:
		tok := sess.Token()
		if tok == nil || tok.RefreshToken == "" {
			return nil, &IncompleteSessionError{Missing: []string{"refresh token"}}
		}

		form.Set("refresh_token", tok.RefreshToken)
	default:
		return nil, fmt.Errorf("velux: unknown grant type %q", grant)
	}

	return form, nil
}
