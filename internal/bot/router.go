// Package bot turns slash commands and free-text messages into workflow calls
// and renders every outcome, including failures, as chat text.
package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/saga-it/qyburn/internal/telemetry"
	"github.com/saga-it/qyburn/internal/workflow"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Slash command names.
const (
	CommandHelp    = "/qyburn-help"
	CommandLicense = "/qyburn-license"
	CommandGroups  = "/qyburn-groups"
	CommandStatus  = "/qyburn-status"
)

const (
	rateLimitedText = "You're sending requests faster than I can keep up. :turtle: Please wait a moment and try again."
	failureText     = "Something went wrong while handling your request. :warning: IT has been notified, please try again shortly."
)

// HelpText lists the commands and capabilities of the bot.
var HelpText = strings.Join([]string{
	"*Qyburn IT Self-Service Bot*",
	"",
	"I can help you with:",
	"",
	"*Slash Commands:*",
	"• `/qyburn-help` — Show this help message",
	"• `/qyburn-license <software>` — Request a software license",
	"• `/qyburn-groups` — List restricted groups and request access",
	"• `/qyburn-status` — Check the status of your pending requests",
	"",
	"*Natural Language:*",
	"Just DM me or mention @Qyburn with your request. I can help with:",
	"• Software license requests and questions",
	"• Azure AD group access requests",
	"• VPN setup and network questions",
	"• Password resets and account issues",
	"• General IT questions (powered by knowledge base)",
	"• New employee onboarding",
	"",
	"_Powered by SAGA Diagnostics IT_",
}, "\n")

// Command is a parsed slash command.
type Command struct {
	Name        string `json:"name"`
	Args        string `json:"args"`
	CallerEmail string `json:"callerEmail"`
	Channel     string `json:"channel"`
}

// Router dispatches slash commands to the workflow engine.
type Router struct {
	engine  *workflow.Engine
	limiter *Limiter
}

// NewRouter creates a Router. A nil limiter disables rate limiting.
func NewRouter(engine *workflow.Engine, limiter *Limiter) *Router {
	return &Router{engine: engine, limiter: limiter}
}

// Route runs cmd and returns the reply text. It never returns raw errors.
func (r *Router) Route(ctx context.Context, cmd Command) string {
	name := strings.ToLower(strings.TrimSpace(cmd.Name))
	caller := workflow.Caller{Email: cmd.CallerEmail, Channel: cmd.Channel}

	telemetry.GetMetrics().CommandsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("command", name)))

	if name != CommandHelp && !r.limiter.Allow(cmd.CallerEmail) {
		telemetry.GetMetrics().RateLimitedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("surface", "command")))
		return rateLimitedText
	}

	text, err := r.dispatch(ctx, name, caller, cmd.Args)
	if err != nil {
		log.Error().Err(err).Str("command", name).Str("caller", cmd.CallerEmail).Msg("Command failed")
		return failureText
	}
	return text
}

func (r *Router) dispatch(ctx context.Context, name string, caller workflow.Caller, args string) (string, error) {
	switch name {
	case CommandHelp:
		return HelpText, nil

	case CommandLicense:
		res, err := r.engine.RequestLicense(ctx, caller, args)
		if err != nil {
			return "", err
		}
		return res.Text, nil

	case CommandGroups:
		res, err := r.engine.RequestGroupAccess(ctx, caller, args, "")
		if err != nil {
			return "", err
		}
		return res.Text, nil

	case CommandStatus:
		return r.engine.Status(ctx, caller.Email)
	}

	return fmt.Sprintf("Sorry, I don't recognize the command `%s`. Use `%s` to see what I can do.", name, CommandHelp), nil
}

// ParseCommand splits "/name args..." into a Command.
func ParseCommand(line, callerEmail, channel string) Command {
	line = strings.TrimSpace(line)
	name, args, _ := strings.Cut(line, " ")
	return Command{
		Name:        name,
		Args:        strings.TrimSpace(args),
		CallerEmail: callerEmail,
		Channel:     channel,
	}
}
