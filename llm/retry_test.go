package llm

import (
	"context"
	"errors"
	"testing"

	hearth "github.com/m4xw311/hearth/errors"
	"github.com/m4xw311/hearth/session"
	"github.com/m4xw311/hearth/tools"
)

// scriptedClient returns canned results in order, recording call counts.
type scriptedClient struct {
	errs  []error
	calls int
}

func (s *scriptedClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	return &session.Message{Role: "assistant", Content: "ok"}, nil
}

func TestRetryClientRetriesRateLimits(t *testing.T) {
	inner := &scriptedClient{errs: []error{
		hearth.Kindf(ErrRateLimited, nil, "test"),
		hearth.Kindf(ErrRateLimited, nil, "test"),
		nil,
	}}
	client := NewRetryClient(inner, 3)
	client.baseDelay = 0

	resp, err := client.Chat(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("Unexpected response: %+v", resp)
	}
	if inner.calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", inner.calls)
	}
}

func TestRetryClientDoesNotRetryUpstreamErrors(t *testing.T) {
	inner := &scriptedClient{errs: []error{
		hearth.Kindf(ErrUpstream, nil, "test"),
		nil,
	}}
	client := NewRetryClient(inner, 3)
	client.baseDelay = 0

	if _, err := client.Chat(context.Background(), nil, nil); !errors.Is(err, ErrUpstream) {
		t.Fatalf("Expected ErrUpstream, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("Expected 1 attempt, got %d", inner.calls)
	}
}

func TestRetryClientBounded(t *testing.T) {
	rateLimited := hearth.Kindf(ErrRateLimited, nil, "test")
	inner := &scriptedClient{errs: []error{rateLimited, rateLimited, rateLimited, rateLimited, rateLimited}}
	client := NewRetryClient(inner, 2)
	client.baseDelay = 0

	if _, err := client.Chat(context.Background(), nil, nil); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Expected ErrRateLimited after exhausting retries, got %v", err)
	}
	if inner.calls != 3 { // initial attempt + 2 retries
		t.Errorf("Expected 3 attempts, got %d", inner.calls)
	}
}
