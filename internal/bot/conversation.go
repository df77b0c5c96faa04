package bot

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/saga-it/qyburn/internal/audit"
	"github.com/saga-it/qyburn/internal/classifier"
	"github.com/saga-it/qyburn/internal/integrations"
	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/telemetry"
	"github.com/saga-it/qyburn/internal/util"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SystemPrompt is prepended to every chat completion.
const SystemPrompt = `You are Qyburn, an AI-powered IT self-service bot for SAGA Diagnostics.
Your job is to help employees with:
1. Software license requests — check availability and auto-provision if possible
2. Azure AD group access requests — submit for approval when needed
3. Password resets — guide users to the self-service portal
4. VPN and network setup — provide step-by-step instructions
5. General IT questions — answer from the knowledge base
6. New employee onboarding — trigger onboarding templates

Be concise, professional, and helpful. If you can't resolve something, escalate to IT admin.
Always confirm actions before executing them.
Format responses for Slack (use *bold*, _italic_, and bullet points).`

const maxLoggedQuery = 200

// Message is a free-text message addressed to the bot.
type Message struct {
	UserEmail string `json:"userEmail"`
	Text      string `json:"text"`
	Channel   string `json:"channel"`
}

// Reply is the bot's answer to a Message.
type Reply struct {
	Response string            `json:"response"`
	Intent   classifier.Intent `json:"intent"`
	Resolved bool              `json:"resolved"`
}

// Conversation answers free-text messages through the chat provider.
type Conversation struct {
	directory integrations.Directory
	chat      integrations.Chat
	ledger    *audit.Ledger
	limiter   *Limiter
}

// NewConversation creates a Conversation. A nil limiter disables rate limiting.
func NewConversation(directory integrations.Directory, chat integrations.Chat, ledger *audit.Ledger, limiter *Limiter) *Conversation {
	return &Conversation{
		directory: directory,
		chat:      chat,
		ledger:    ledger,
		limiter:   limiter,
	}
}

// Handle classifies msg, asks the chat provider for an answer and records a kb.query audit entry.
// When the provider fails the reply falls back to scripted text and Resolved is false.
func (c *Conversation) Handle(ctx context.Context, msg Message) *Reply {
	intent := classifier.Classify(msg.Text)

	telemetry.GetMetrics().MessagesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("intent", string(intent))))

	if !c.limiter.Allow(msg.UserEmail) {
		telemetry.GetMetrics().RateLimitedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("surface", "message")))
		return &Reply{Response: rateLimitedText, Intent: intent}
	}

	prompt := SystemPrompt + c.userContext(ctx, msg.UserEmail)

	reply := &Reply{Intent: intent, Resolved: true}
	response, err := c.chat.Chat(ctx, []integrations.Message{{Role: "user", Content: msg.Text}}, prompt)
	if err != nil {
		log.Warn().Err(err).Str("intent", string(intent)).Msg("Chat provider failed, using scripted reply")
		response = integrations.CannedReply(msg.Text)
		reply.Resolved = false
	}
	reply.Response = response

	if _, err := c.ledger.Append(ctx, audit.Entry{
		Actor:  models.BotActor,
		Action: models.ActionKBQuery,
		Target: string(intent),
		Details: map[string]any{
			"user":     msg.UserEmail,
			"query":    util.Truncate(msg.Text, maxLoggedQuery),
			"intent":   intent,
			"resolved": reply.Resolved,
		},
		Channel: msg.Channel,
	}); err != nil {
		log.Error().Err(err).Msg("Failed to audit knowledge base query")
	}

	return reply
}

func (c *Conversation) userContext(ctx context.Context, email string) string {
	user, err := c.directory.GetUserByEmail(ctx, email)
	if err != nil {
		log.Warn().Err(err).Str("email", email).Msg("Directory lookup failed")
	}
	if user == nil {
		return "\nUser: " + email
	}

	role := "Unknown role"
	if user.JobTitle != nil {
		role = *user.JobTitle
	}
	dept := "Unknown dept"
	if user.Department != nil {
		dept = *user.Department
	}
	return fmt.Sprintf("\nUser: %s (%s), %s, %s", user.DisplayName, user.Mail, role, dept)
}
