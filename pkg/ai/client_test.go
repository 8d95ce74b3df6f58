package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func TestClientComplete(t *testing.T) {
	httpClient := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/openai/v1/chat/completions", req.URL.Path)
		assert.Equal(t, "Bearer key", req.Header.Get("Authorization"))

		var in chatCompletionRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&in))
		assert.Equal(t, "llama3-8b-8192", in.Model)
		assert.Equal(t, 150, in.MaxTokens)
		assert.Equal(t, "json_object", in.ResponseFormat["type"])
		require.Len(t, in.Messages, 2)

		return jsonResponse(http.StatusOK, `{"choices":[{"message":{"content":"  {\"ok\":true} "}}]}`), nil
	})}

	client := NewWithHTTPClient(Config{BaseURL: "http://upstream/openai/v1/", APIKey: "key", DefaultModel: "default"}, httpClient)
	out, err := client.Complete(context.Background(), ChatRequest{
		Model:     "llama3-8b-8192",
		Messages:  []Message{System("sys"), User("hi")},
		MaxTokens: 150,
		JSONMode:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
}

func TestClientCompleteHTTPError(t *testing.T) {
	httpClient := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusTooManyRequests, `{"error":"rate limited"}`), nil
	})}
	client := NewWithHTTPClient(Config{BaseURL: "http://upstream", APIKey: "key"}, httpClient)

	_, err := client.Complete(context.Background(), ChatRequest{Messages: []Message{User("hi")}})
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
}

func TestClientCompleteWithoutKey(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://upstream"})
	_, err := client.Complete(context.Background(), ChatRequest{})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	out, err := Retry(context.Background(), 3, time.Millisecond, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("boom")
		}
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, 3, calls)
}

func TestRetryReturnsLastError(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), 3, time.Millisecond, func(context.Context) (string, error) {
		calls++
		return "", errors.New("still failing")
	})
	require.EqualError(t, err, "still failing")
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Retry(ctx, 3, time.Hour, func(context.Context) (string, error) {
		calls++
		cancel()
		return "", errors.New("boom")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
