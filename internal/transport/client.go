// Package transport is the authenticated HTTP pipeline to the platform API.
// Every outgoing request picks up the current bearer credential, every
// response is inspected for authorization failures, and a small set of
// mutating operations can be issued through an ordered fallback of candidate
// request shapes.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/agriview/console-gateway/internal/credstore"
	"github.com/agriview/console-gateway/internal/session"
)

const tracerName = "console-gateway/transport"

// Request describes one upstream call. The boolean markers replace URL
// substring sniffing: a request states what it is instead of being guessed
// at from its path.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any

	// CredentialIssuing marks login and other token-granting operations.
	// A 401 on such a request never terminates the session.
	CredentialIssuing bool

	// ConfigurationClass marks settings endpoints where a 403 is an
	// expected restriction for lower-privileged roles, not an incident.
	ConfigurationClass bool

	// SourceRoute is the console route on whose behalf the call is made,
	// taken from the X-Console-Route header when present. A 401 observed
	// while the console already sits on the sign-in route does not trigger
	// another forced sign-out.
	SourceRoute string
}

// Response is a completed upstream response with its body drained.
type Response struct {
	StatusCode int
	Body       []byte
}

// DecodeJSON unmarshals the response body.
func (r *Response) DecodeJSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// StatusError is a non-2xx upstream response.
type StatusError struct {
	StatusCode int
	Body       []byte

	// SessionEnded is set when this failure forced the session closed; the
	// HTTP surface turns it into a sign-in redirect. The error itself still
	// propagates so caller-side handling fires exactly once.
	SessionEnded bool
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream responded %d: %s", e.StatusCode, truncate(e.Body, 200))
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n] + "..."
	}
	return strings.TrimSpace(s)
}

// Client issues authenticated requests against the platform API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      credstore.Store
	sessions   *session.Manager
	signInPath string
	log        *zap.Logger
}

// NewClient creates a transport over the given credential store and session
// manager. Timeouts belong to httpClient; the transport imposes none of its
// own.
func NewClient(baseURL string, httpClient *http.Client, store credstore.Store, sessions *session.Manager, signInPath string, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		store:      store,
		sessions:   sessions,
		signInPath: signInPath,
		log:        log,
	}
}

// Do executes one upstream request. A missing credential is not an error
// here; public endpoints proceed unauthenticated. Non-2xx statuses come back
// as *StatusError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, fmt.Sprintf("%s %s", req.Method, req.Path),
		oteltrace.WithSpanKind(oteltrace.SpanKindClient),
		oteltrace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", c.baseURL+req.Path),
		),
	)
	defer span.End()

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	token, tokenAttached := c.store.Token()
	if tokenAttached {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		span.SetStatus(codes.Ok, "")
		return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
	}

	span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", resp.StatusCode))
	statusErr := &StatusError{StatusCode: resp.StatusCode, Body: respBody}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if c.shouldForceExpiry(tokenAttached, req) {
			c.sessions.ForceExpire()
			statusErr.SessionEnded = true
			c.log.Info("upstream rejected credential, session closed",
				zap.String("method", req.Method),
				zap.String("path", req.Path))
		}
	case http.StatusForbidden:
		if req.ConfigurationClass {
			// Lower-privileged roles probing admin-only settings is
			// expected; the session stays.
			c.log.Warn("configuration endpoint denied for current role",
				zap.String("method", req.Method),
				zap.String("path", req.Path))
		}
	}

	return nil, statusErr
}

// shouldForceExpiry is the three-condition test for terminating the session
// on a 401: the request carried a token, it was not itself credential
// issuing, and the console is not already on the sign-in route.
func (c *Client) shouldForceExpiry(tokenAttached bool, req Request) bool {
	if !tokenAttached {
		return false
	}
	if req.CredentialIssuing {
		return false
	}
	if req.SourceRoute != "" && req.SourceRoute == c.signInPath {
		return false
	}
	return true
}
