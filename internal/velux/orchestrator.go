package velux

import (
	"context"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/velux-go/internal/session"
)

// TokenRequester issues grants. Implemented by *TokenManager.
type TokenRequester interface {
	RequestToken(ctx context.Context, sess *session.Session, grant GrantType) (*oauth2.Token, error)
}

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeRecoverable
	outcomeTerminal
)

// outcome is the result of one attempt. A recoverable outcome names the
// grant that should fix it and the token the attempt used.
type outcome struct {
	kind    outcomeKind
	resp    *Response
	err     error
	failure Failure
	grant   GrantType
	token   string
}

func newOutcome(resp *Response, token string, err error) outcome {
	if err == nil {
		return outcome{kind: outcomeSuccess, resp: resp, token: token}
	}

	failure := Classify(err)

	grant, ok := failure.Grant()
	if !ok {
		return outcome{kind: outcomeTerminal, err: err, failure: failure, token: token}
	}

	return outcome{kind: outcomeRecoverable, err: err, failure: failure, grant: grant, token: token}
}

// Orchestrator wraps the Executor with token recovery. A request is
// attempted, and if it failed with an expired or invalid token, the matching
// grant is issued and the request is replayed exactly once. The replay's
// result is final.
type Orchestrator struct {
	executor *Executor
	tokens   TokenRequester
	metrics  Metrics
	logger   *slog.Logger
}

// NewOrchestrator creates an orchestrator. A nil metrics discards counts.
func NewOrchestrator(executor *Executor, tokens TokenRequester, metrics Metrics, logger *slog.Logger) *Orchestrator {
	if metrics == nil {
		metrics = nopMetrics{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{executor: executor, tokens: tokens, metrics: metrics, logger: logger}
}

// Do sends action, recovering once from a token failure. A failed grant is
// returned in place of the original error.
func (o *Orchestrator) Do(ctx context.Context, sess *session.Session, action Action) (*Response, error) {
	resp, err := o.do(ctx, sess, action)
	o.metrics.ObserveRequest(action.Name(), resultLabel(err))

	return resp, err
}

func (o *Orchestrator) do(ctx context.Context, sess *session.Session, action Action) (*Response, error) {
	first := o.attempt(ctx, sess, action)

	switch first.kind {
	case outcomeSuccess:
		return first.resp, nil
	case outcomeTerminal:
		return nil, first.err
	}

	// A concurrent caller may already have replaced the token this attempt
	// was rejected with. Replaying with the new token is enough.
	if current := sess.AccessToken(); current != "" && current != first.token {
		o.logger.Info("token changed since attempt, skipping grant",
			slog.String("action", action.Name()),
			slog.String("failure", first.failure.String()),
		)
	} else {
		o.logger.Info("recovering from token failure",
			slog.String("action", action.Name()),
			slog.String("failure", first.failure.String()),
			slog.String("grant", string(first.grant)),
		)

		if _, err := o.tokens.RequestToken(ctx, sess, first.grant); err != nil {
			return nil, err
		}
	}

	o.metrics.ObserveRetry(first.failure.String())

	second := o.attempt(ctx, sess, action)
	if second.kind != outcomeSuccess {
		o.logger.Warn("request failed after token recovery",
			slog.String("action", action.Name()),
			slog.String("error", second.err.Error()),
		)

		return nil, second.err
	}

	return second.resp, nil
}

func (o *Orchestrator) attempt(ctx context.Context, sess *session.Session, action Action) outcome {
	resp, token, err := o.executor.execute(ctx, sess, action)
	return newOutcome(resp, token, err)
}
