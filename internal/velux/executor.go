package velux

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/velux-go/internal/session"
)

// Executor sends one authenticated domain request from the session's
// current state. It never repairs the session.
type Executor struct {
	transport *Transport
	logger    *slog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(transport *Transport, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{transport: transport, logger: logger}
}

// Execute sends action. Settings, credentials and a token must already be
// cached on sess; otherwise it returns an *IncompleteSessionError without
// contacting the backend.
func (e *Executor) Execute(ctx context.Context, sess *session.Session, action Action) (*Response, error) {
	resp, _, err := e.execute(ctx, sess, action)
	return resp, err
}

// execute is Execute that also reports the access token the request carried.
func (e *Executor) execute(ctx context.Context, sess *session.Session, action Action) (*Response, string, error) {
	st, hasSettings := sess.Settings()
	creds, hasCreds := sess.Credentials()
	accessToken := sess.AccessToken()

	var missing []string
	if !hasSettings {
		missing = append(missing, "settings")
	}

	if !hasCreds {
		missing = append(missing, "credentials")
	}

	if accessToken == "" {
		missing = append(missing, "token")
	}

	if len(missing) > 0 {
		return nil, "", &IncompleteSessionError{Missing: missing}
	}

	req, err := buildRequest(action, st, creds)
	if err != nil {
		return nil, "", err
	}

	e.logger.Info("sending request",
		slog.String("action", action.Name()),
		slog.String("path", req.path),
	)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+accessToken)

	resp, err := e.transport.PostJSON(ctx, st.BaseURL+req.path, req.body, header)

	return resp, accessToken, err
}
