package integrations

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat is a chat-completion provider. Replies are free text and never parsed.
type Chat interface {
	Chat(ctx context.Context, messages []Message, systemPrompt string) (string, error)
}

type cannedReply struct {
	keywords []string
	text     string
}

// Checked in order against the last message; first match wins.
var cannedReplies = []cannedReply{
	{
		keywords: []string{"vpn"},
		text:     "To set up VPN access, please follow these steps:\n1. Open the SAGA VPN client\n2. Enter your corporate credentials\n3. Select the nearest gateway\n4. Click Connect\n\nIf you need VPN access granted, I can submit a request to add you to the SG-VPN-Users group.",
	},
	{
		keywords: []string{"password", "reset"},
		text:     "I can help with password resets. For security, I'll need to verify your identity first. Please confirm your employee email address, and I'll initiate the reset process through Azure AD.",
	},
	{
		keywords: []string{"license", "software"},
		text:     "I can help you request software licenses. Available licenses include:\n- Microsoft 365 E3\n- Adobe Creative Cloud\n- JetBrains All Products\n- Slack Pro\n\nWhich software would you like to request?",
	},
	{
		keywords: []string{"onboard", "new employee"},
		text:     "I'll help with onboarding! I can provision the standard software stack and group memberships for new employees. Please provide the new employee's name, email, department, and start date.",
	},
}

// DefaultReply introduces the bot when nothing more specific applies.
const DefaultReply = "I'm Qyburn, the SAGA Diagnostics IT assistant. I can help you with:\n- Software license requests\n- VPN and access setup\n- Password resets\n- Group membership requests\n- General IT questions\n\nHow can I help you today?"

// CannedReply returns the scripted answer for a message.
func CannedReply(message string) string {
	query := strings.ToLower(message)
	for _, r := range cannedReplies {
		for _, kw := range r.keywords {
			if strings.Contains(query, kw) {
				return r.text
			}
		}
	}
	return DefaultReply
}

// StubChat answers from the canned reply table.
type StubChat struct{}

var _ Chat = StubChat{}

func (StubChat) Chat(_ context.Context, messages []Message, systemPrompt string) (string, error) {
	var last string
	if len(messages) > 0 {
		last = messages[len(messages)-1].Content
	}

	log.Debug().Str("query", last).Int("system_prompt_len", len(systemPrompt)).Msg("stub chat processing query")

	return CannedReply(last), nil
}

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-sonnet-4-20250514"
	anthropicVersion        = "2023-06-01"
	defaultMaxTokens        = 1024
)

// AnthropicConfig configures the Messages API client.
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	HTTPClient *http.Client
	Retry      RetryConfig
}

// Anthropic is a Chat backed by the Anthropic Messages API.
type Anthropic struct {
	baseURL   string
	model     string
	maxTokens int
	caller    *jsonCaller
}

var _ Chat = (*Anthropic)(nil)

func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	a := &Anthropic{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
	if a.baseURL == "" {
		a.baseURL = defaultAnthropicBaseURL
	}
	if a.model == "" {
		a.model = defaultAnthropicModel
	}
	if a.maxTokens == 0 {
		a.maxTokens = defaultMaxTokens
	}

	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	a.caller = &jsonCaller{
		service: "anthropic",
		client:  client,
		retry:   cfg.Retry.withDefaults(),
		header: http.Header{
			"X-Api-Key":         []string{cfg.APIKey},
			"Anthropic-Version": []string{anthropicVersion},
		},
	}
	return a
}

type anthropicRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (a *Anthropic) Chat(ctx context.Context, messages []Message, systemPrompt string) (string, error) {
	req := anthropicRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    systemPrompt,
		Messages:  messages,
	}

	var resp anthropicResponse
	status, err := a.caller.call(ctx, http.MethodPost, a.baseURL+"/v1/messages", req, &resp)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", &StatusError{Service: "anthropic", Method: http.MethodPost, Path: "/v1/messages", Status: status}
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("anthropic response contained no text")
	}
	return sb.String(), nil
}
