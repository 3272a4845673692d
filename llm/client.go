// Package llm talks to the model host. Client performs exactly one upstream
// attempt per call and normalizes the result; Rotator retries a request across
// the credential pool.
package llm

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/c360studio/coursegen/content"
	"github.com/c360studio/coursegen/model"
)

// maxResponseSize caps a reply body; generated images and clips are the
// large case.
const maxResponseSize = 32 << 20

// DefaultTimeout bounds a single upstream attempt.
const DefaultTimeout = 60 * time.Second

// Invoker performs a single generation attempt with one credential.
type Invoker interface {
	Invoke(ctx context.Context, cred model.Candidate, req content.Request) (*content.Output, error)
}

// HostConfig describes the model host a Client talks to.
type HostConfig struct {
	// Provider is the registered provider name (huggingface, openai, ollama, anthropic).
	Provider string

	// URL is the API base URL. Empty uses the provider default.
	URL string

	// Models maps a category to the model id used for it.
	Models map[model.Category]string

	// Timeout bounds one attempt. Zero uses DefaultTimeout.
	Timeout time.Duration

	// MinContentLength is the shortest accepted text output. Zero uses DefaultMinContentLength.
	MinContentLength int

	Options Options
}

// Client is the single-attempt capability invoker.
type Client struct {
	host       HostConfig
	httpClient *http.Client
	logger     *slog.Logger
	normalizer *normalizer
}

type ClientOption func(*Client)

// WithHTTPClient replaces the default client. Timeouts still come from the
// host configuration.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient creates a client for the given host.
func NewClient(host HostConfig, opts ...ClientOption) *Client {
	if host.Timeout <= 0 {
		host.Timeout = DefaultTimeout
	}
	c := &Client{
		host: host,
		// Attempts are bounded by host.Timeout through the request context.
		httpClient: &http.Client{},
		logger:     slog.Default(),
		normalizer: newNormalizer(host.MinContentLength),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Invoke makes exactly one upstream call for req using cred. It never
// retries. Failures are *Failure with ReasonTimeout or ReasonUpstream.
func (c *Client) Invoke(ctx context.Context, cred model.Candidate, req content.Request) (*content.Output, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.host.Timeout)
	defer cancel()

	started := time.Now()
	out, err := c.doRequest(attemptCtx, cred, req)
	if err != nil {
		reason := ReasonUpstream
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			reason = ReasonTimeout
		}
		c.logger.Debug("Upstream attempt failed",
			"kind", req.Kind,
			"credential_index", cred.Index,
			"reason", reason,
			"fatal", IsFatal(err),
			"duration", time.Since(started),
			"error", err)
		return nil, &Failure{Reason: reason, Attempts: 1, Err: err}
	}

	out.CredentialIndex = cred.Index
	c.logger.Debug("Upstream attempt succeeded",
		"kind", req.Kind,
		"credential_index", cred.Index,
		"model", out.Model,
		"duration", time.Since(started))
	return out, nil
}

// doRequest builds the provider request, sends it, and normalizes the reply.
func (c *Client) doRequest(ctx context.Context, cred model.Candidate, req content.Request) (*content.Output, error) {
	provider := GetProvider(c.host.Provider)
	switch {
	case provider == nil:
		return nil, NewFatalError(fmt.Errorf("unknown provider: %s", c.host.Provider))
	case !provider.Supports(req.Kind):
		return nil, NewFatalError(fmt.Errorf("%w: %s cannot produce %s", ErrUnsupportedKind, provider.Name(), req.Kind))
	}

	modelID := c.host.Models[req.Category()]
	body, err := provider.BuildRequestBody(modelID, req.Kind, BuildPrompt(req), c.host.Options)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("encode %s request: %w", req.Kind, err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		provider.BuildURL(c.host.URL, modelID, req.Kind), bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq, cred.Key)

	status, contentType, respBody, err := c.send(httpReq)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, classifyHTTPError(status, respBody)
	}

	payload, err := provider.ParseResponse(respBody, contentType, req.Kind)
	if err != nil {
		return nil, err
	}
	payload.Model = cmp.Or(payload.Model, modelID)
	return c.normalizer.normalize(req, payload)
}

// send performs the round trip and reads at most maxResponseSize bytes.
// Transport and read errors are transient.
func (c *Client) send(httpReq *http.Request) (int, string, []byte, error) {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, "", nil, NewTransientError(fmt.Errorf("send to model host: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, "", nil, NewTransientError(fmt.Errorf("read model host reply: %w", err))
	}
	return resp.StatusCode, resp.Header.Get("Content-Type"), body, nil
}

// classifyHTTPError marks 408, 429 and 5xx (a hosted model still loading
// answers 503) as transient and everything else as fatal. The rotator moves
// to the next credential either way.
func classifyHTTPError(statusCode int, body []byte) error {
	excerpt := []rune(strings.TrimSpace(string(body)))
	if len(excerpt) > 200 {
		excerpt = append(excerpt[:200], []rune("...")...)
	}
	err := fmt.Errorf("model host returned %d: %s", statusCode, string(excerpt))

	if statusCode == http.StatusRequestTimeout || statusCode == http.StatusTooManyRequests || statusCode >= 500 {
		return NewTransientError(err)
	}
	return NewFatalError(err)
}
