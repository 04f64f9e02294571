package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Client calls a Gemini-style generateContent API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a translation client against the given API base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError is a failed backend call. It keeps the HTTP status and raw body
// so the classifier can probe the provider's error envelope.
type APIError struct {
	Status int
	Body   []byte
	Op     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.Status, string(e.Body))
}

func (e *APIError) HTTPStatus() int { return e.Status }

func (e *APIError) ResponseBody() []byte { return e.Body }

// TranslateOne translates a single text with surrounding context lines.
func (c *Client) TranslateOne(ctx context.Context, req SingleRequest) (string, error) {
	var prompt strings.Builder
	if len(req.Preceding) > 0 {
		prompt.WriteString("PREVIOUS CONTEXT:\n")
		prompt.WriteString(strings.Join(req.Preceding, "\n"))
		prompt.WriteString("\n")
	}
	prompt.WriteString("---\n")
	prompt.WriteString(fmt.Sprintf("TEXT TO TRANSLATE: %q\n", req.Text))
	prompt.WriteString("---\n")
	if len(req.Following) > 0 {
		prompt.WriteString("NEXT CONTEXT:\n")
		prompt.WriteString(strings.Join(req.Following, "\n"))
		prompt.WriteString("\n")
	}
	prompt.WriteString("Translate ONLY the TEXT TO TRANSLATE section. Return the translation and nothing else.\n")

	text, err := c.generate(ctx, req.Options, prompt.String(), "text/plain")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// TranslateBatch translates several texts in one call using a JSON-array
// output contract. The caller is responsible for rejecting length mismatches.
func (c *Client) TranslateBatch(ctx context.Context, req BatchRequest) ([]string, error) {
	var prompt strings.Builder
	prompt.WriteString("Translate the following subtitle cues. Return ONLY a JSON array with the translated text for each cue, maintaining the same order and count.\n\n")
	prompt.WriteString("Input cues:\n")
	for i, text := range req.Texts {
		prompt.WriteString(fmt.Sprintf("[%d] %s\n", i+1, text))
	}
	prompt.WriteString(fmt.Sprintf("\nReturn exactly %d translations as a JSON array of strings.", len(req.Texts)))

	raw, err := c.generate(ctx, req.Options, prompt.String(), "application/json")
	if err != nil {
		return nil, err
	}

	var translations []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &translations); err != nil {
		return nil, fmt.Errorf("failed to parse batch response: %w", err)
	}
	return translations, nil
}

// geminiResponse is the subset of the generateContent response we consume.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (c *Client) generate(ctx context.Context, opts Options, userPrompt string, mimeType string) (string, error) {
	reqBody := map[string]interface{}{
		"system_instruction": map[string]interface{}{
			"parts": []map[string]string{
				{"text": systemPrompt(opts)},
			},
		},
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]string{
					{"text": userPrompt},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"temperature":      0.3,
			"responseMimeType": mimeType,
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent", c.baseURL, opts.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", opts.Credential)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{Status: resp.StatusCode, Body: responseBody, Op: "generateContent"}
	}

	var parsed geminiResponse
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("prompt blocked: %s", parsed.PromptFeedback.BlockReason)
	}
	if len(parsed.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	candidate := parsed.Candidates[0]
	if candidate.FinishReason != "" && candidate.FinishReason != "STOP" {
		return "", fmt.Errorf("generation stopped, finishReason %s", candidate.FinishReason)
	}
	if len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("empty candidate content")
	}
	return candidate.Content.Parts[0].Text, nil
}

func systemPrompt(opts Options) string {
	var prompt strings.Builder

	prompt.WriteString("You are a professional subtitle translator. Translate into " + opts.TargetLanguage + ".\n")
	if opts.Style != "" {
		prompt.WriteString("Register: " + opts.Style + ".\n")
	}
	if opts.ProjectContext != "" {
		prompt.WriteString("\n=== PROJECT CONTEXT ===\n")
		prompt.WriteString(opts.ProjectContext)
		prompt.WriteString("\n")
	}
	if len(opts.Glossary) > 0 {
		prompt.WriteString("\n=== GLOSSARY (always use these mappings) ===\n")
		terms := make([]string, 0, len(opts.Glossary))
		for term := range opts.Glossary {
			terms = append(terms, term)
		}
		sort.Strings(terms)
		for _, term := range terms {
			prompt.WriteString(fmt.Sprintf("%s => %s\n", term, opts.Glossary[term]))
		}
	}
	if opts.StyleGuide != "" {
		prompt.WriteString("\n=== STYLE GUIDE ===\n")
		prompt.WriteString(opts.StyleGuide)
		prompt.WriteString("\n")
	}
	prompt.WriteString("\nKeep subtitle length appropriate for screen reading. Preserve line breaks within a cue.\n")

	return prompt.String()
}
