package velux

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const (
	// DefaultUserAgent identifies the client when config sets none.
	DefaultUserAgent = "velux-go/0.1"

	// maxBodySize bounds how much of any response is read into memory.
	maxBodySize = 4 << 20
)

// HTTPDoer is the subset of *http.Client the transport needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Response is a successful backend response. Payloads are not modelled.
type Response struct {
	StatusCode int
	Body       []byte
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("velux: decoding response: %w", err)
	}

	return nil
}

// Transport sends single POST requests. It never retries; recovery from
// token failures lives in the Orchestrator, and anything else is reported
// to the caller as is.
type Transport struct {
	httpClient HTTPDoer
	userAgent  string
	logger     *slog.Logger
}

// NewTransport creates a transport. A nil httpClient uses
// http.DefaultClient; an empty userAgent uses DefaultUserAgent.
func NewTransport(httpClient HTTPDoer, userAgent string, logger *slog.Logger) *Transport {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Transport{httpClient: httpClient, userAgent: userAgent, logger: logger}
}

// PostForm posts a form-encoded body.
func (t *Transport) PostForm(ctx context.Context, endpoint string, form url.Values, header http.Header) (*Response, error) {
	return t.post(ctx, endpoint, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), header)
}

// PostJSON posts body encoded as JSON.
func (t *Transport) PostJSON(ctx context.Context, endpoint string, body any, header http.Header) (*Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("velux: encoding request body: %w", err)
	}

	return t.post(ctx, endpoint, "application/json", bytes.NewReader(data), header)
}

func (t *Transport) post(
	ctx context.Context,
	endpoint, contentType string,
	body io.Reader,
	header http.Header,
) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("velux: creating request: %w", err)
	}

	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.userAgent)

	path := req.URL.Path

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("velux: request canceled: %w", ctx.Err())
		}

		return nil, fmt.Errorf("velux: POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("velux: reading response from %s: %w", path, err)
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		t.logger.Debug("request succeeded",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)

		return &Response{StatusCode: resp.StatusCode, Body: data}, nil
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-Id"),
		Body:       string(data),
		Err:        classifyStatus(resp.StatusCode),
	}
	apiErr.Code, apiErr.Message = parseErrorEnvelope(data)

	t.logger.Debug("request failed",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Int("code", apiErr.Code),
	)

	return nil, apiErr
}

// parseErrorEnvelope extracts code and message from either the domain
// envelope {"error":{"code":3,"message":"..."}} or the OAuth form
// {"error":"invalid_grant","error_description":"..."}.
func parseErrorEnvelope(data []byte) (int, string) {
	var envelope struct {
		Error       json.RawMessage `json:"error"`
		Description string          `json:"error_description"`
	}

	if err := json.Unmarshal(data, &envelope); err != nil || len(envelope.Error) == 0 {
		return 0, ""
	}

	var domain struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &domain); err == nil {
		return domain.Code, domain.Message
	}

	var oauthCode string
	if err := json.Unmarshal(envelope.Error, &oauthCode); err == nil {
		if envelope.Description != "" {
			return 0, oauthCode + ": " + envelope.Description
		}

		return 0, oauthCode
	}

	return 0, ""
}
