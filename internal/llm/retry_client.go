package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"triad/internal/agent/ports"
	"triad/internal/shared/errors"
	"triad/internal/shared/logging"
)

// HTTPStatusError is a non-2xx response from a model endpoint.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("model endpoint returned HTTP %d: %s", e.StatusCode, body)
}

func mapHTTPError(status int, body []byte) error {
	base := &HTTPStatusError{StatusCode: status, Body: string(body)}
	switch {
	case status == http.StatusTooManyRequests:
		return &errors.TransientError{Err: base, StatusCode: status, Message: "Rate limit reached. Retrying shortly."}
	case status >= http.StatusInternalServerError:
		return &errors.TransientError{Err: base, StatusCode: status, Message: "Model endpoint is temporarily unavailable."}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &errors.PermanentError{Err: base, StatusCode: status, Message: "Model endpoint rejected the credentials. Check the API key."}
	default:
		return &errors.PermanentError{Err: base, StatusCode: status, Message: fmt.Sprintf("Model request rejected (HTTP %d).", status)}
	}
}

// retryClient retries transient failures of the wrapped client with
// exponential backoff.
type retryClient struct {
	underlying ports.LLMClient
	config     errors.RetryConfig
	logger     logging.Logger
}

// NewRetryClient wraps client with retry handling.
func NewRetryClient(client ports.LLMClient, config errors.RetryConfig, logger logging.Logger) ports.LLMClient {
	return &retryClient{underlying: client, config: config, logger: logging.OrNop(logger)}
}

func (c *retryClient) Model() string {
	return c.underlying.Model()
}

func (c *retryClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	resp, err := errors.RetryWithResult(ctx, c.config, func(ctx context.Context) (*ports.CompletionResponse, error) {
		resp, err := c.underlying.Complete(ctx, req)
		if err != nil {
			return nil, classifyLLMError(err)
		}
		return resp, nil
	}, c.logger)
	if err != nil {
		return nil, formatRetryError(err)
	}
	return resp, nil
}

// classifyLLMError tags errors the underlying client left untyped.
func classifyLLMError(err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewTransientError(err, "Model request timed out. Retrying.")
	}
	var transient *errors.TransientError
	var permanent *errors.PermanentError
	if stderrors.As(err, &transient) || stderrors.As(err, &permanent) {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "timeout"), strings.Contains(msg, "eof"):
		return errors.NewTransientError(err, "Network error talking to the model endpoint. Retrying.")
	}
	if errors.IsTransient(err) {
		return errors.NewTransientError(err, "Model endpoint error. Retrying.")
	}
	return errors.NewPermanentError(err, "Model request failed.")
}

func formatRetryError(err error) error {
	if errors.IsPermanent(err) {
		return err
	}
	return fmt.Errorf("model call failed after retries: %w", err)
}
