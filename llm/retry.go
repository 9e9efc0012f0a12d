package llm

import (
	"context"
	"errors"
	"time"

	"github.com/m4xw311/hearth/session"
	"github.com/m4xw311/hearth/tools"
)

const defaultRetryBaseDelay = 500 * time.Millisecond

// RetryClient wraps another client with bounded exponential backoff for
// rate-limited requests. Only ErrRateLimited is retried; upstream failures
// and everything else pass straight through.
type RetryClient struct {
	inner      LLMClient
	maxRetries int
	baseDelay  time.Duration
}

// NewRetryClient decorates inner with up to maxRetries additional attempts
// on rate limits.
func NewRetryClient(inner LLMClient, maxRetries int) *RetryClient {
	return &RetryClient{inner: inner, maxRetries: maxRetries, baseDelay: defaultRetryBaseDelay}
}

func (r *RetryClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := r.baseDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		resp, err := r.inner.Chat(ctx, messages, availableTools)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, ErrRateLimited) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
