package commands

import (
	"context"
	"fmt"
	"strings"

	"connectrpc.com/connect"
	botv1 "github.com/saga-it/qyburn/api/bot/v1"
	"github.com/saga-it/qyburn/internal/bot"
	"github.com/saga-it/qyburn/internal/classifier"
	"github.com/saga-it/qyburn/internal/models"
)

type CommandCmd struct {
	Target  `embed:""`
	Command string   `arg:"" help:"Slash command, e.g. /qyburn-license"`
	Args    []string `arg:"" optional:"" help:"Command arguments"`
	As      string   `help:"Caller email" default:"anna.lindberg@saga.com" env:"QYBURN_CALLER"`
	Channel string   `help:"Channel the command is issued from" default:"#it-support"`
}

func (c *CommandCmd) Run(ctx context.Context, globals *Globals) error {
	svc, err := c.dial(ctx, globals)
	if err != nil {
		return err
	}

	command := c.Command
	if !strings.HasPrefix(command, "/") {
		command = "/" + command
	}

	resp, err := svc.RunCommand(ctx, connect.NewRequest(&botv1.RunCommandRequest{
		Command:     command,
		Args:        strings.Join(c.Args, " "),
		CallerEmail: c.As,
		Channel:     c.Channel,
	}))
	if err != nil {
		return fmt.Errorf("failed to run %s: %w", command, err)
	}

	fmt.Fprintln(stdout, resp.Msg.Text)
	return nil
}

type MessageCmd struct {
	Target  `embed:""`
	Text    []string `arg:"" help:"Message text"`
	As      string   `help:"Sender email" default:"anna.lindberg@saga.com" env:"QYBURN_CALLER"`
	Channel string   `help:"Channel the message is posted in" default:"#it-support"`
}

func (m *MessageCmd) Run(ctx context.Context, globals *Globals) error {
	svc, err := m.dial(ctx, globals)
	if err != nil {
		return err
	}

	msg := bot.Message{UserEmail: m.As, Text: strings.Join(m.Text, " "), Channel: m.Channel}
	resp, err := svc.SendMessage(ctx, connect.NewRequest(&botv1.SendMessageRequest{
		UserEmail: msg.UserEmail,
		Text:      msg.Text,
		Channel:   msg.Channel,
	}))
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	printExchange(bot.Exchange{Message: msg, Reply: &bot.Reply{
		Response: resp.Msg.Response,
		Resolved: resp.Msg.Resolved,
		Intent:   classifier.Intent(resp.Msg.Intent),
	}})
	return nil
}

type ReviewCmd struct {
	Target    `embed:""`
	RequestID string `arg:"" help:"Request ID, e.g. gar-001"`
	Decision  string `arg:"" enum:"approve,deny" help:"approve or deny"`
	Reviewer  string `help:"Reviewer email" required:"" env:"QYBURN_REVIEWER"`
}

func (r *ReviewCmd) Run(ctx context.Context, globals *Globals) error {
	svc, err := r.dial(ctx, globals)
	if err != nil {
		return err
	}

	decision := models.RequestStatusApproved
	if r.Decision == "deny" {
		decision = models.RequestStatusDenied
	}

	resp, err := svc.ReviewRequest(ctx, connect.NewRequest(&botv1.ReviewRequestRequest{
		RequestID: r.RequestID,
		Decision:  decision,
		Reviewer:  r.Reviewer,
	}))
	if err != nil {
		return fmt.Errorf("failed to review %s: %w", r.RequestID, err)
	}

	req := resp.Msg.Request
	fmt.Fprintf(stdout, "Request %s for %s on %s is now %s\n", req.ID, req.RequesterEmail, req.GroupID, req.Status)
	return nil
}

type OnboardCmd struct {
	Target     `embed:""`
	TemplateID string `arg:"" help:"Onboarding template ID, e.g. ot-001"`
	Employee   string `arg:"" help:"New employee email"`
	Actor      string `help:"Who is starting the onboarding" default:"qyburn-bot" env:"QYBURN_CALLER"`
}

func (o *OnboardCmd) Run(ctx context.Context, globals *Globals) error {
	svc, err := o.dial(ctx, globals)
	if err != nil {
		return err
	}

	resp, err := svc.StartOnboarding(ctx, connect.NewRequest(&botv1.StartOnboardingRequest{
		TemplateID:    o.TemplateID,
		EmployeeEmail: o.Employee,
		Actor:         o.Actor,
	}))
	if err != nil {
		return fmt.Errorf("failed to start onboarding: %w", err)
	}

	fmt.Fprintf(stdout, "Onboarding %s with %s\n", resp.Msg.EmployeeEmail, resp.Msg.TemplateName)
	for i, step := range resp.Msg.Steps {
		fmt.Fprintf(stdout, "%2d. [%-9s] %s (%s)", i+1, step.Status, step.Title, step.Type)
		if step.Detail != "" {
			fmt.Fprintf(stdout, ": %s", step.Detail)
		}
		fmt.Fprintln(stdout)
	}
	return nil
}
