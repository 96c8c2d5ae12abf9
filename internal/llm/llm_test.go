package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/askdb/askdb/internal/config"
)

type recordedRequest struct {
	Path   string
	Header http.Header
	Body   map[string]any
}

func newRecordingServer(t *testing.T, status int, response string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		requests = append(requests, recordedRequest{Path: r.URL.Path, Header: r.Header.Clone(), Body: body})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

const chatCompletionResponse = `{"id":"chatcmpl-1","object":"chat.completion","created":0,"model":"gemini-2.5-flash","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"SELECT 1;"}}]}`

func TestOpenAIClientSendsSinglePrompt(t *testing.T) {
	srv, requests := newRecordingServer(t, http.StatusOK, chatCompletionResponse)
	client := NewOpenAIClient("gemini", srv.URL+"/", "key-1", "gemini-2.5-flash", 0)

	text, err := client.Complete(context.Background(), Request{Prompt: "How many orders?"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "SELECT 1;" {
		t.Fatalf("Complete() = %q", text)
	}
	if len(*requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(*requests))
	}
	got := (*requests)[0]
	if got.Path != "/chat/completions" {
		t.Fatalf("path = %q", got.Path)
	}
	if got.Header.Get("Authorization") != "Bearer key-1" {
		t.Fatalf("Authorization = %q", got.Header.Get("Authorization"))
	}
	if got.Body["model"] != "gemini-2.5-flash" {
		t.Fatalf("model = %v", got.Body["model"])
	}
	if _, ok := got.Body["temperature"]; ok {
		t.Fatal("temperature must not be sent")
	}
	messages, _ := got.Body["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("messages = %#v", got.Body["messages"])
	}
	message, _ := messages[0].(map[string]any)
	if message["role"] != "user" || message["content"] != "How many orders?" {
		t.Fatalf("message = %#v", message)
	}
}

func TestOpenAIClientRequestModelOverridesDefault(t *testing.T) {
	srv, requests := newRecordingServer(t, http.StatusOK, chatCompletionResponse)
	client := NewOpenAIClient("openai", srv.URL+"/", "key-1", "gpt-4o-mini", 0)
	if _, err := client.Complete(context.Background(), Request{Model: "gpt-4.1", Prompt: "x"}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if (*requests)[0].Body["model"] != "gpt-4.1" {
		t.Fatalf("model = %v", (*requests)[0].Body["model"])
	}
}

func TestOpenAIClientSurfacesAPIErrorsWithoutRetry(t *testing.T) {
	srv, requests := newRecordingServer(t, http.StatusInternalServerError, `{"error":{"message":"backend exploded","type":"server_error"}}`)
	client := NewOpenAIClient("gemini", srv.URL+"/", "key-1", "gemini-2.5-flash", 0)

	_, err := client.Complete(context.Background(), Request{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.HasPrefix(err.Error(), "gemini chat completion:") {
		t.Fatalf("error = %v", err)
	}
	if len(*requests) != 1 {
		t.Fatalf("requests = %d, want exactly one attempt", len(*requests))
	}
}

func TestOpenAIClientRejectsEmptyContent(t *testing.T) {
	srv, _ := newRecordingServer(t, http.StatusOK, `{"id":"x","object":"chat.completion","created":0,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  "}}]}`)
	client := NewOpenAIClient("openai", srv.URL+"/", "key-1", "m", 0)
	if _, err := client.Complete(context.Background(), Request{Prompt: "x"}); !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("Complete() error = %v, want ErrEmptyCompletion", err)
	}
}

func TestOpenAIClientHonorsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	client := NewOpenAIClient("openai", srv.URL+"/", "key-1", "m", 50*time.Millisecond)
	start := time.Now()
	if _, err := client.Complete(context.Background(), Request{Prompt: "x"}); err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Complete() took %s, timeout not applied", elapsed)
	}
}

func TestAnthropicClientSendsMaxTokensAndJoinsText(t *testing.T) {
	srv, requests := newRecordingServer(t, http.StatusOK, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5","content":[{"type":"text","text":"There are "},{"type":"text","text":"42 orders."}],"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":5}}`)
	client := NewAnthropicClient(srv.URL+"/", "key-1", "claude-sonnet-4-5", 0, 0)

	text, err := client.Complete(context.Background(), Request{Prompt: "Summarize"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "There are 42 orders." {
		t.Fatalf("Complete() = %q", text)
	}
	got := (*requests)[0]
	if got.Path != "/v1/messages" {
		t.Fatalf("path = %q", got.Path)
	}
	if got.Header.Get("X-Api-Key") != "key-1" {
		t.Fatalf("X-Api-Key = %q", got.Header.Get("X-Api-Key"))
	}
	if got.Body["max_tokens"] != float64(defaultAnthropicMaxTokens) {
		t.Fatalf("max_tokens = %v", got.Body["max_tokens"])
	}
	if got.Body["model"] != "claude-sonnet-4-5" {
		t.Fatalf("model = %v", got.Body["model"])
	}
}

func TestAnthropicClientRejectsEmptyText(t *testing.T) {
	srv, _ := newRecordingServer(t, http.StatusOK, `{"id":"msg_1","type":"message","role":"assistant","model":"m","content":[],"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":1,"output_tokens":0}}`)
	client := NewAnthropicClient(srv.URL+"/", "key-1", "m", 256, 0)
	if _, err := client.Complete(context.Background(), Request{Prompt: "x"}); !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("Complete() error = %v, want ErrEmptyCompletion", err)
	}
}

func TestNewSelectsProvider(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"gemini", "gemini"},
		{"OpenAI", "openai"},
		{"anthropic", "anthropic"},
	}
	for _, tc := range tests {
		client, err := New(config.AIConfig{Provider: tc.provider, APIKey: "key-1", Model: "m"})
		if err != nil {
			t.Fatalf("New(%s) error = %v", tc.provider, err)
		}
		if client.Provider() != tc.want || client.DefaultModel() != "m" {
			t.Fatalf("New(%s) = %s/%s", tc.provider, client.Provider(), client.DefaultModel())
		}
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(config.AIConfig{Provider: "gemini"}); !errors.Is(err, config.ErrMissingAPIKey) {
		t.Fatalf("New() error = %v, want ErrMissingAPIKey", err)
	}
	if _, err := New(config.AIConfig{Provider: "cohere", APIKey: "k"}); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}
