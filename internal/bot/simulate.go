package bot

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/saga-it/qyburn/internal/integrations"
)

// SupportChannel is where simulated answers are posted.
const SupportChannel = "#it-support"

// DemoMessages is the scripted conversation replayed by Simulate.
var DemoMessages = []Message{
	{UserEmail: "anna.lindberg@saga.com", Text: "How do I set up VPN?", Channel: SupportChannel},
	{UserEmail: "erik.svensson@saga.com", Text: "I need a JetBrains license", Channel: SupportChannel},
	{UserEmail: "maria.chen@saga.com", Text: "Help me onboard a new team member", Channel: SupportChannel},
}

// Exchange pairs a message with the bot's reply.
type Exchange struct {
	Message Message `json:"message"`
	Reply   *Reply  `json:"reply"`
}

// Simulate answers each message and posts the reply to its channel.
// Posting is fire-and-forget: failures are logged and the replay continues.
func Simulate(ctx context.Context, conv *Conversation, messaging integrations.Messaging, messages []Message) []Exchange {
	exchanges := make([]Exchange, 0, len(messages))
	for _, msg := range messages {
		if ctx.Err() != nil {
			break
		}

		reply := conv.Handle(ctx, msg)
		exchanges = append(exchanges, Exchange{Message: msg, Reply: reply})

		channel := msg.Channel
		if channel == "" {
			channel = SupportChannel
		}
		if err := messaging.PostMessage(ctx, channel, reply.Response); err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("Failed to post reply")
		}
	}
	return exchanges
}
