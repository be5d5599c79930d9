package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultOpenAIModel = "gpt-4o-mini"
const defaultAnthropicModel = "claude-sonnet-4-5-20250929"
const defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"

// Preset fixes the determinism knobs for one kind of call. These are
// enumerated, not freeform: translation wants faithful output, enrichment
// wants varied but grounded findings.
type Preset struct {
	Name        string
	System      string
	Temperature float64
	MaxTokens   int
}

var translationPreset = Preset{
	Name:        "translation",
	System:      "Ты профессиональный переводчик научных текстов с английского на русский язык. Переводи точно, сохраняя научную терминологию и стиль. Не добавляй пояснений или комментариев, возвращай только переведённый текст.",
	Temperature: 0.3,
	MaxTokens:   2000,
}

var enrichmentPreset = Preset{
	Name:        "enrichment",
	System:      "Ты эксперт по научным исследованиям. Твоя задача - анализировать научные статьи и генерировать содержательные ключевые выводы на русском языке. Выводы должны быть точными, конкретными и научно обоснованными на основе содержания статьи.",
	Temperature: 0.7,
	MaxTokens:   1000,
}

// Completer is the slice of the LLM client the repairer depends on. Tests
// substitute a scripted fake.
type Completer interface {
	Complete(ctx context.Context, preset Preset, userPrompt string) (string, error)
}

// LLMClient calls a chat-completion endpoint with bounded retries and
// exponential backoff. One client is shared by all presets.
type LLMClient struct {
	provider string
	model    string
	apiKey   string
	endpoint string
	retries  int
	backoff  time.Duration
	client   *http.Client
}

func NewLLMClient(cfg Config) (*LLMClient, error) {
	if cfg.LLMKey() == "" {
		return nil, errKind(ErrKindMisconfigured, "no API key for llm_provider=%s", cfg.LLMProvider)
	}
	model := cfg.Model
	if model == "" {
		if cfg.LLMProvider == "anthropic" {
			model = defaultAnthropicModel
		} else {
			model = defaultOpenAIModel
		}
	}
	return &LLMClient{
		provider: cfg.LLMProvider,
		model:    model,
		apiKey:   cfg.LLMKey(),
		endpoint: defaultOpenAIEndpoint,
		retries:  cfg.MaxRetries,
		backoff:  time.Duration(cfg.BaseBackoffMS) * time.Millisecond,
		client:   llmHTTPClient,
	}, nil
}

// Complete returns the assistant message for one prompt. Each failed attempt
// waits backoff*2^(attempt-1) before the next; when all attempts fail the
// error kind is llm_unavailable so the repairer can fall back.
func (c *LLMClient) Complete(ctx context.Context, preset Preset, userPrompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		text, err := c.call(ctx, preset, userPrompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		log.Printf("llm %s provider=%s attempt=%d/%d error: %v", preset.Name, c.provider, attempt, c.retries, err)
		if attempt == c.retries {
			break
		}
		wait := c.backoff << (attempt - 1)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
	return "", errKind(ErrKindLLMUnavailable, "llm %s: %d attempts failed: %v", preset.Name, c.retries, lastErr)
}

func (c *LLMClient) call(ctx context.Context, preset Preset, userPrompt string) (string, error) {
	switch c.provider {
	case "anthropic":
		return c.callAnthropic(ctx, preset, userPrompt)
	default:
		return c.callOpenAI(ctx, preset, userPrompt)
	}
}

// --- OpenAI-compatible chat completions ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
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
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *LLMClient) callOpenAI(ctx context.Context, preset Preset, userPrompt string) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: preset.System},
			{Role: "user", Content: userPrompt},
		},
		Temperature: preset.Temperature,
		MaxTokens:   preset.MaxTokens,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat API error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("chat API returned %d: %s", resp.StatusCode, truncateForLog(string(respBody), 512))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parsing chat response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no choices in chat response")
	}

	content := parsed.Choices[0].Message.Content
	log.Printf("llm %s provider=openai model=%s response_size=%d", preset.Name, c.model, len(content))
	return content, nil
}

// --- Anthropic ---

func (c *LLMClient) callAnthropic(ctx context.Context, preset Preset, userPrompt string) (string, error) {
	client := anthropic.NewClient(option.WithAPIKey(c.apiKey))

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(preset.MaxTokens),
		Temperature: anthropic.Float(preset.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: preset.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("llm %s provider=anthropic model=%s response_size=%d", preset.Name, c.model, len(block.Text))
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in Anthropic response")
}

// ParseStringArray strips an optional surrounding code fence and parses the
// response as a JSON array of strings. Anything else is llm_malformed.
func ParseStringArray(responseText string) ([]string, error) {
	responseText = strings.TrimSpace(responseText)
	responseText = strings.TrimPrefix(responseText, "```json")
	responseText = strings.TrimPrefix(responseText, "```")
	responseText = strings.TrimSuffix(responseText, "```")
	responseText = strings.TrimSpace(responseText)

	var out []string
	if err := json.Unmarshal([]byte(responseText), &out); err != nil {
		return nil, errKind(ErrKindLLMMalformed, "parsing llm array response: %v (response: %s)", err, truncateForLog(responseText, 512))
	}
	return out, nil
}

func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + fmt.Sprintf("... [truncated, total_length=%d]", len(s))
}
