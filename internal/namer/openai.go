package namer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrNoAPIKey is returned when no OpenAI key can be resolved.
var ErrNoAPIKey = errors.New("OpenAI API key not found")

const (
	defaultBaseURL = "https://api.openai.com"
	defaultModel   = "gpt-4o"

	essenceSystem = "Extract the main topic and intent from this development request in 5-10 words. Focus on the key feature, component, or goal being worked on."

	branchSystem = `Generate a concise git branch name (2-4 words, hyphenated, lowercase). Focus on the main feature/component. Examples:
- "implement multi-user chats" -> group-chats
- "event-driven architecture refactor" -> event-architecture
- "fix authentication bug" -> fix-auth
- "add dark mode toggle" -> dark-mode
- "database migration system" -> db-migration
- "api rate limiting" -> rate-limiting
Return only the branch name, no quotes or explanations.`
)

// OpenAI synthesizes branch names via two chat-completion calls: one to
// distill the prompt's essence, one to name a branch from it.
type OpenAI struct {
	APIKey  string
	BaseURL string
	Model   string
	Client  *http.Client
}

// NewOpenAI resolves an API key from VIBE_OPENAI_KEY, falling back to
// the 1Password CLI item op://cli/openai/configs. Returns ErrNoAPIKey
// when neither yields a key.
func NewOpenAI() (*OpenAI, error) {
	key := os.Getenv("VIBE_OPENAI_KEY")
	if key == "" {
		out, err := exec.Command("op", "read", "op://cli/openai/configs").Output()
		if err == nil {
			key = strings.TrimSpace(string(out))
		}
	}
	if key == "" {
		return nil, fmt.Errorf("%w in VIBE_OPENAI_KEY or 1Password (op://cli/openai/configs)", ErrNoAPIKey)
	}

	base := os.Getenv("VIBE_OPENAI_API_BASE")
	if base == "" {
		base = defaultBaseURL
	}

	return &OpenAI{
		APIKey:  key,
		BaseURL: base,
		Model:   defaultModel,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// BranchName implements Namer.
func (n *OpenAI) BranchName(ctx context.Context, prompt string) (string, error) {
	essence, err := n.chat(ctx, essenceSystem, prompt, 30)
	if err != nil {
		return "", err
	}
	raw, err := n.chat(ctx, branchSystem, essence, 10)
	if err != nil {
		return "", err
	}
	sanitized := Sanitize(raw)
	if sanitized == "" {
		return "", fmt.Errorf("generated invalid branch name from %q", raw)
	}
	return sanitized, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (n *OpenAI) chat(ctx context.Context, system, user string, maxTokens int) (string, error) {
	payload := chatRequest{
		Model: n.model(),
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: 0,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := strings.TrimRight(n.BaseURL, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.APIKey)

	resp, err := n.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("OpenAI request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("OpenAI request failed with status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("unexpected response from OpenAI: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("unexpected response from OpenAI: no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func (n *OpenAI) model() string {
	if n.Model != "" {
		return n.Model
	}
	return defaultModel
}

func (n *OpenAI) client() *http.Client {
	if n.Client != nil {
		return n.Client
	}
	return http.DefaultClient
}
