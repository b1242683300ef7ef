package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hourwatch/hourwatch/internal/config"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		apiKey   string
		wantErr  bool
	}{
		{"openai", "openai", "sk-test", false},
		{"default provider is openai", "", "sk-test", false},
		{"anthropic", "anthropic", "sk-ant-test", false},
		{"missing key", "openai", "", true},
		{"unknown provider", "parrot", "key", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(config.LLMConfig{
				Provider: tt.provider,
				APIKey:   tt.apiKey,
			})
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Category: Shady\nEmail Body: Dear Raj,"}}]}`))
	}))
	defer srv.Close()

	client := newOpenAIClient("test-key", "test-model", srv.URL)
	got, err := client.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	want := "Category: Shady\nEmail Body: Dear Raj,"
	if got != want {
		t.Errorf("Complete = %q, want %q", got, want)
	}
}

func TestOpenAICompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit exceeded"}}`))
	}))
	defer srv.Close()

	client := newOpenAIClient("test-key", "test-model", srv.URL)
	if _, err := client.Complete(context.Background(), "prompt"); err == nil {
		t.Fatal("expected error for API failure")
	}
}

func TestOpenAICompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := newOpenAIClient("test-key", "test-model", srv.URL)
	if _, err := client.Complete(context.Background(), "prompt"); err == nil {
		t.Fatal("expected error for empty choices")
	}
}
