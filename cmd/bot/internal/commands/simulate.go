package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"connectrpc.com/connect"
	botv1 "github.com/saga-it/qyburn/api/bot/v1"
	"github.com/saga-it/qyburn/internal/bot"
	"github.com/saga-it/qyburn/internal/classifier"
	"gopkg.in/yaml.v3"
)

var stdout io.Writer = os.Stdout

// Script is a YAML list of messages to replay.
type Script struct {
	Messages []ScriptMessage `yaml:"messages"`
}

type ScriptMessage struct {
	UserEmail string `yaml:"userEmail"`
	Text      string `yaml:"text"`
	Channel   string `yaml:"channel"`
}

type SimulateCmd struct {
	Target `embed:""`
	Script string `help:"YAML script of messages, the built-in demo conversation when empty"`
	JSON   bool   `help:"Print exchanges as JSON" default:"false"`
}

func (s *SimulateCmd) Run(ctx context.Context, globals *Globals) error {
	messages := bot.DemoMessages
	if s.Script != "" {
		script, err := loadScript(s.Script)
		if err != nil {
			return fmt.Errorf("failed to load script: %w", err)
		}
		messages = script.messages()
	}

	var (
		exchanges []bot.Exchange
		err       error
	)
	if s.Server == "" {
		exchanges, err = s.simulateLocal(ctx, globals, messages)
	} else {
		exchanges, err = s.simulateRemote(ctx, globals, messages)
	}
	if err != nil {
		return err
	}

	if s.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(exchanges)
	}
	for _, ex := range exchanges {
		printExchange(ex)
	}
	return nil
}

func (s *SimulateCmd) simulateLocal(ctx context.Context, globals *Globals, messages []bot.Message) ([]bot.Exchange, error) {
	if !globals.Debug {
		quietLogs()
	}
	l, err := newLocal(ctx)
	if err != nil {
		return nil, err
	}
	return bot.Simulate(ctx, l.conversation, l.messaging, messages), nil
}

// simulateRemote sends each message to the server. Replies are posted to
// Slack by the server, not here.
func (s *SimulateCmd) simulateRemote(ctx context.Context, globals *Globals, messages []bot.Message) ([]bot.Exchange, error) {
	svc, err := s.dial(ctx, globals)
	if err != nil {
		return nil, err
	}

	exchanges := make([]bot.Exchange, 0, len(messages))
	for _, msg := range messages {
		resp, err := svc.SendMessage(ctx, connect.NewRequest(&botv1.SendMessageRequest{
			UserEmail: msg.UserEmail,
			Text:      msg.Text,
			Channel:   msg.Channel,
		}))
		if err != nil {
			return nil, fmt.Errorf("failed to send message from %s: %w", msg.UserEmail, err)
		}
		exchanges = append(exchanges, bot.Exchange{Message: msg, Reply: &bot.Reply{
			Response: resp.Msg.Response,
			Intent:   classifier.Intent(resp.Msg.Intent),
			Resolved: resp.Msg.Resolved,
		}})
	}
	return exchanges, nil
}

func loadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, err
	}
	if len(script.Messages) == 0 {
		return nil, fmt.Errorf("%s has no messages", path)
	}
	for i, msg := range script.Messages {
		if msg.UserEmail == "" || msg.Text == "" {
			return nil, fmt.Errorf("message %d needs userEmail and text", i+1)
		}
		if msg.Channel == "" {
			script.Messages[i].Channel = bot.SupportChannel
		}
	}
	return &script, nil
}

func (s *Script) messages() []bot.Message {
	messages := make([]bot.Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		messages = append(messages, bot.Message{UserEmail: m.UserEmail, Text: m.Text, Channel: m.Channel})
	}
	return messages
}

func printExchange(ex bot.Exchange) {
	fmt.Fprintf(stdout, "%s %s: %s\n", ex.Message.Channel, ex.Message.UserEmail, ex.Message.Text)
	if ex.Reply == nil {
		fmt.Fprintln(stdout, "  (no reply)")
		return
	}
	fmt.Fprintf(stdout, "  qyburn [%s, resolved=%t]: %s\n\n", ex.Reply.Intent, ex.Reply.Resolved, ex.Reply.Response)
}
