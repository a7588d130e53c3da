package velux

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/velux-go/internal/credstore"
	"github.com/tonimelisma/velux-go/internal/session"
	"github.com/tonimelisma/velux-go/internal/store"
)

// Options configures a Client.
type Options struct {
	Backend    store.Store
	HTTPClient HTTPDoer
	UserAgent  string
	Metrics    Metrics
	Logger     *slog.Logger
}

// Client wires the credential store, token manager, executor and
// orchestrator over one backend and one HTTP client.
type Client struct {
	Store        *credstore.Store
	Tokens       *TokenManager
	Executor     *Executor
	Orchestrator *Orchestrator

	logger *slog.Logger
}

// NewClient builds a Client from opts.
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	creds := credstore.New(opts.Backend, logger)
	transport := NewTransport(opts.HTTPClient, opts.UserAgent, logger)
	tokens := NewTokenManager(transport, creds, opts.Metrics, logger)
	executor := NewExecutor(transport, logger)

	return &Client{
		Store:        creds,
		Tokens:       tokens,
		Executor:     executor,
		Orchestrator: NewOrchestrator(executor, tokens, opts.Metrics, logger),
		logger:       logger,
	}
}

// WarmUp fills the session cache: settings, then credentials, then a token.
//
// Missing settings abort with ErrConfigurationMissing before anything else
// is looked up. Missing credentials end warm-up without error and without a
// token; requests then fail with an *IncompleteSessionError. A missing token
// triggers a password grant whose failure is returned.
func (c *Client) WarmUp(ctx context.Context, sess *session.Session) error {
	if _, err := c.Store.LoadSettings(ctx, sess); err != nil {
		return err
	}

	if _, err := c.Store.LoadCredentials(ctx, sess); err != nil {
		if errors.Is(err, credstore.ErrCredentialsMissing) {
			c.logger.Warn("warm-up finished without credentials",
				slog.String("user_id", sess.UserID()),
				slog.String("skill", sess.Skill().String()),
			)

			return nil
		}

		return err
	}

	_, err := c.Store.LoadToken(ctx, sess)
	if err == nil {
		return nil
	}

	if !errors.Is(err, credstore.ErrTokenMissing) {
		return err
	}

	c.logger.Info("no stored token, requesting one")

	if _, err := c.Tokens.RequestToken(ctx, sess, GrantPassword); err != nil {
		return err
	}

	return nil
}

// Do sends action with token recovery.
func (c *Client) Do(ctx context.Context, sess *session.Session, action Action) (*Response, error) {
	return c.Orchestrator.Do(ctx, sess, action)
}

// RequestToken forces a grant.
func (c *Client) RequestToken(ctx context.Context, sess *session.Session, grant GrantType) (*oauth2.Token, error) {
	return c.Tokens.RequestToken(ctx, sess, grant)
}
