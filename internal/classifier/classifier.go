// Package classifier wraps the hosted language-model endpoint that judges
// scraped posts. The remote call is treated as a black box: any transport,
// HTTP, or parse failure is surfaced as a single error kind so the caller
// retries the post on its next pass.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brandpulse/brandpulse/internal/models"
	"github.com/brandpulse/brandpulse/pkg/config"
	"github.com/brandpulse/brandpulse/pkg/logging"
	"github.com/brandpulse/brandpulse/pkg/telemetry"
)

const systemPrompt = `You are a social media analyst for a consumer technology company.

Your task is to analyze social posts mentioning the company and classify them according to the following criteria:

## 1. SPAM DETECTION
Determine if the post is spam or legitimate.
- is_spam: true/false
- spam_reason: (if spam, explain why; otherwise null)

## 2. CATEGORY CLASSIFICATION
Classify the post into ONE of these categories:
- "Praise" - Positive feedback, appreciation, or compliments
- "Complaint" - Negative feedback, dissatisfaction, or grievances (but service is working)
- "Experience Breakage" - Technical issues, bugs, service outages, or broken functionality
- "Feature Request" - Suggestions for new features or improvements

## 3. PRODUCT IDENTIFICATION
Identify which product or surface the post relates to. If the post doesn't mention or relate to any specific product, set to null.

## 4. SCORING
Provide scores on a scale of 1-10:
- sentiment_score: Overall sentiment (1=very negative, 5=neutral, 10=very positive)
- urgency_score: How urgent is this to address (1=not urgent, 10=critical)
- impact_score: Potential business/reputation impact (1=low, 10=high)

## 5. ADDITIONAL ANALYSIS
- summary: A brief one-line summary of the post
- key_issues: List any specific issues or topics mentioned
- suggested_action: What action should be taken (if any)

IMPORTANT:
- If an image is attached, analyze it carefully as it may contain screenshots of errors or other relevant information.
- Be objective and accurate in your classification.

Respond ONLY with valid JSON in this exact format:
{
    "is_spam": boolean,
    "spam_reason": string or null,
    "category": "Praise" | "Complaint" | "Experience Breakage" | "Feature Request",
    "product": string or null,
    "sentiment_score": number (1-10),
    "urgency_score": number (1-10),
    "impact_score": number (1-10),
    "summary": string,
    "key_issues": [string],
    "suggested_action": string
}`

// Judgment is the structured verdict for one post.
type Judgment struct {
	IsSpam          bool     `json:"is_spam"`
	SpamReason      *string  `json:"spam_reason"`
	Category        string   `json:"category"`
	Product         *string  `json:"product"`
	SentimentScore  *int     `json:"sentiment_score"`
	UrgencyScore    *int     `json:"urgency_score"`
	ImpactScore     *int     `json:"impact_score"`
	Summary         string   `json:"summary"`
	KeyIssues       []string `json:"key_issues"`
	SuggestedAction string   `json:"suggested_action"`
}

var validCategories = map[string]bool{
	models.CategoryPraise:             true,
	models.CategoryComplaint:          true,
	models.CategoryExperienceBreakage: true,
	models.CategoryFeatureRequest:     true,
}

// validate rejects replies that parse as JSON but break the judgment
// contract, so the caller skips the post and retries it like any other
// malformed reply. Spam judgments carry no category requirement; the category
// is dropped downstream.
func (j *Judgment) validate() error {
	if !j.IsSpam && !validCategories[j.Category] {
		return fmt.Errorf("unknown category %q", j.Category)
	}
	for name, score := range map[string]*int{
		"sentiment_score": j.SentimentScore,
		"urgency_score":   j.UrgencyScore,
		"impact_score":    j.ImpactScore,
	} {
		if score != nil && (*score < 1 || *score > 10) {
			return fmt.Errorf("%s %d out of range", name, *score)
		}
	}
	return nil
}

// Usage carries the endpoint's token accounting for cost tracking.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Result bundles a successful judgment with its token usage.
type Result struct {
	Judgment Judgment
	Usage    Usage
}

// Client calls an Azure-OpenAI style chat-completions deployment.
type Client struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
	logger     *zap.Logger
}

// NewClient builds a classifier client. Endpoint, deployment and key are all
// required; the request timeout is enforced at the HTTP layer because the
// remote call has no cancellation of its own.
func NewClient(cfg config.ClassifierConfig) (*Client, error) {
	if cfg.Endpoint == "" || cfg.Deployment == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("classifier endpoint, deployment and api key are required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	apiURL := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimRight(cfg.Endpoint, "/"), cfg.Deployment, cfg.APIVersion)

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     apiURL,
		apiKey:     cfg.APIKey,
		logger:     logging.GetLogger().With(zap.String("component", "classifier")),
	}, nil
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type chatRequest struct {
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Classify sends one post's text (and optional first image) to the model and
// parses the structured judgment out of the reply.
func (c *Client) Classify(ctx context.Context, text, imageURL string) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "classifier.classify")
	defer span.End()

	userContent := []map[string]interface{}{
		{
			"type": "text",
			"text": fmt.Sprintf("Analyze and classify this post:\n\n%q", text),
		},
	}
	if imageURL != "" {
		userContent = append(userContent, map[string]interface{}{
			"type":      "image_url",
			"image_url": map[string]string{"url": imageURL},
		})
	}

	reqBody := chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
		MaxTokens:   500,
		Temperature: 0.3,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read classifier response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, fmt.Errorf("failed to parse classifier response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("classifier response has no choices")
	}

	content := stripCodeFence(chat.Choices[0].Message.Content)

	var judgment Judgment
	if err := json.Unmarshal([]byte(content), &judgment); err != nil {
		return nil, fmt.Errorf("classifier reply is not valid JSON: %w", err)
	}
	if err := judgment.validate(); err != nil {
		return nil, fmt.Errorf("classifier reply violates the judgment contract: %w", err)
	}

	return &Result{Judgment: judgment, Usage: chat.Usage}, nil
}

// stripCodeFence unwraps a JSON object from an optional markdown code block.
// Defensive unwrapping, not a protocol guarantee.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	content = strings.TrimPrefix(content, "```")
	if idx := strings.Index(content, "```"); idx >= 0 {
		content = content[:idx]
	}
	content = strings.TrimPrefix(content, "json")
	return strings.TrimSpace(content)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
