package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/citelinker/resolver/internal/core/domain"
)

const systemPrompt = `You extract bibliographic metadata from article text.
Respond with a single JSON object and nothing else, with these keys:
"title" (string), "creators" (array of "Family, Given" strings),
"date" (ISO 8601 string, empty if unknown), "item_type" (one of
"journalArticle", "preprint", "blogPost", "webpage", "report").
Do not invent values; leave fields empty when the text does not state them.`

const maxPromptChars = 24000

// Client extracts citation metadata through an OpenAI-compatible chat
// completions endpoint.
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an extraction client for the given endpoint and model.
func NewClient(endpoint, model, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type extractedFields struct {
	Title    string   `json:"title"`
	Creators []string `json:"creators"`
	Date     string   `json:"date"`
	ItemType string   `json:"item_type"`
}

// ExtractCitation asks the model for citation fields of the given article
// text. The page URL is included for context only.
func (c *Client) ExtractCitation(ctx context.Context, markdown, pageURL string) (*domain.Citation, error) {
	markdown = truncateToRune(markdown, maxPromptChars)

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("URL: %s\n\n%s", pageURL, markdown)},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("chat endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("chat response contained no choices")
	}

	return parseCitation(chat.Choices[0].Message.Content)
}

// truncateToRune cuts s to at most n bytes, backing up so the cut never
// splits a multi-byte rune.
func truncateToRune(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// parseCitation reads the model's JSON answer, tolerating a markdown
// code fence around it.
func parseCitation(content string) (*domain.Citation, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var fields extractedFields
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return nil, fmt.Errorf("failed to parse extraction output: %w", err)
	}
	if strings.TrimSpace(fields.Title) == "" {
		return nil, fmt.Errorf("extraction output has no title")
	}

	itemType := fields.ItemType
	if itemType == "" {
		itemType = "webpage"
	}
	return &domain.Citation{
		Title:    strings.TrimSpace(fields.Title),
		Creators: fields.Creators,
		Date:     strings.TrimSpace(fields.Date),
		ItemType: itemType,
	}, nil
}
