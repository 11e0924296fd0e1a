package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brandpulse/brandpulse/pkg/config"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain json", `{"a":1}`, `{"a":1}`},
		{"fenced", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced with json tag", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"leading whitespace", "  \n```json\n{\"a\":1}\n```  ", `{"a":1}`},
		{"unterminated fence", "```json\n{\"a\":1}", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stripCodeFence(tt.input)
			if got != tt.want {
				t.Errorf("stripCodeFence(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := NewClient(config.ClassifierConfig{
		Endpoint:   serverURL,
		Deployment: "test-deploy",
		APIVersion: "2025-01-01-preview",
		APIKey:     "test-key",
		Timeout:    5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestClassify(t *testing.T) {
	var gotRequest map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") != "test-key" {
			t.Errorf("missing api-key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotRequest); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}

		reply := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{
					"content": "```json\n{\"is_spam\":false,\"spam_reason\":null,\"category\":\"Complaint\",\"product\":\"Checkout\",\"sentiment_score\":2,\"urgency_score\":8,\"impact_score\":7,\"summary\":\"Payment failed at checkout\",\"key_issues\":[\"payment failure\"],\"suggested_action\":\"Escalate to payments team\"}\n```",
				}},
			},
			"usage": map[string]interface{}{
				"prompt_tokens":     120,
				"completion_tokens": 80,
				"total_tokens":      200,
			},
		}
		json.NewEncoder(w).Encode(reply)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.Classify(context.Background(), "my payment failed", "https://img.example/shot.png")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	j := result.Judgment
	if j.IsSpam {
		t.Error("expected is_spam=false")
	}
	if j.Category != "Complaint" {
		t.Errorf("category = %q, want Complaint", j.Category)
	}
	if j.Product == nil || *j.Product != "Checkout" {
		t.Errorf("product = %v, want Checkout", j.Product)
	}
	if j.UrgencyScore == nil || *j.UrgencyScore != 8 {
		t.Errorf("urgency = %v, want 8", j.UrgencyScore)
	}
	if len(j.KeyIssues) != 1 || j.KeyIssues[0] != "payment failure" {
		t.Errorf("key issues = %v", j.KeyIssues)
	}
	if result.Usage.TotalTokens != 200 {
		t.Errorf("total tokens = %d, want 200", result.Usage.TotalTokens)
	}

	// The image must ride along as a second content part
	messages := gotRequest["messages"].([]interface{})
	user := messages[1].(map[string]interface{})
	parts := user["content"].([]interface{})
	if len(parts) != 2 {
		t.Fatalf("got %d content parts, want text + image", len(parts))
	}
}

func TestClassifyHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.Classify(context.Background(), "text", ""); err == nil {
		t.Error("expected error for HTTP 429")
	}
}

func TestClassifyMalformedReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": "sorry, I cannot help with that"}},
			},
		}
		json.NewEncoder(w).Encode(reply)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.Classify(context.Background(), "text", ""); err == nil {
		t.Error("expected error for non-JSON reply")
	}
}

func newReplyServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": content}},
			},
		}
		json.NewEncoder(w).Encode(reply)
	}))
}

func TestClassifyRejectsUnknownCategory(t *testing.T) {
	server := newReplyServer(t,
		`{"is_spam":false,"category":"Question","sentiment_score":5,"urgency_score":5,"impact_score":5,"summary":"s"}`)
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.Classify(context.Background(), "text", ""); err == nil {
		t.Error("expected error for a category outside the contract")
	}
}

func TestClassifyRejectsOutOfRangeScore(t *testing.T) {
	server := newReplyServer(t,
		`{"is_spam":false,"category":"Complaint","sentiment_score":2,"urgency_score":15,"impact_score":5,"summary":"s"}`)
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.Classify(context.Background(), "text", ""); err == nil {
		t.Error("expected error for a score outside 1-10")
	}
}

func TestClassifyAcceptsSpamWithoutCategory(t *testing.T) {
	server := newReplyServer(t,
		`{"is_spam":true,"spam_reason":"giveaway","summary":"spam"}`)
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.Classify(context.Background(), "text", "")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if !result.Judgment.IsSpam {
		t.Error("expected is_spam=true")
	}
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(config.ClassifierConfig{Endpoint: "https://x", Deployment: "", APIKey: "k"})
	if err == nil {
		t.Error("expected error for missing deployment")
	}
}
