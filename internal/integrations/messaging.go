package integrations

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// BotUser is the author recorded for messages posted by the bot.
const BotUser = "qyburn-bot"

// Messaging posts text to a chat channel.
type Messaging interface {
	PostMessage(ctx context.Context, channel, text string) error
}

// PostedMessage is an entry in the stub message log.
type PostedMessage struct {
	Channel string `json:"channel"`
	User    string `json:"user"`
	Text    string `json:"text"`
	TS      string `json:"ts"`
}

// StubMessaging records posted messages in memory.
type StubMessaging struct {
	mu  sync.Mutex
	log []PostedMessage
	now func() time.Time
}

var _ Messaging = (*StubMessaging)(nil)

func NewStubMessaging() *StubMessaging {
	return &StubMessaging{now: time.Now}
}

func (s *StubMessaging) PostMessage(_ context.Context, channel, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log = append(s.log, PostedMessage{
		Channel: channel,
		User:    BotUser,
		Text:    text,
		TS:      strconv.FormatInt(s.now().UnixMilli(), 10),
	})

	log.Debug().Str("channel", channel).Int("len", len(text)).Msg("stub messaging posted message")
	return nil
}

// Messages returns a copy of everything posted so far.
func (s *StubMessaging) Messages() []PostedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.log)
}

const defaultSlackBaseURL = "https://slack.com/api"

// SlackConfig configures the Slack Web API client.
type SlackConfig struct {
	BotToken   string
	BaseURL    string
	HTTPClient *http.Client
	Retry      RetryConfig
}

// Slack posts messages with the chat.postMessage Web API method.
type Slack struct {
	baseURL string
	caller  *jsonCaller
}

var _ Messaging = (*Slack)(nil)

func NewSlack(cfg SlackConfig) *Slack {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultSlackBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	return &Slack{
		baseURL: baseURL,
		caller: &jsonCaller{
			service: "slack",
			client:  client,
			retry:   cfg.Retry.withDefaults(),
			header:  http.Header{"Authorization": []string{"Bearer " + cfg.BotToken}},
		},
	}
}

type slackPostMessage struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (s *Slack) PostMessage(ctx context.Context, channel, text string) error {
	var resp slackResponse
	status, err := s.caller.call(ctx, http.MethodPost, s.baseURL+"/chat.postMessage", slackPostMessage{Channel: channel, Text: text}, &resp)
	if err != nil {
		return fmt.Errorf("failed to post to %s: %w", channel, err)
	}
	if status == http.StatusNotFound {
		return &StatusError{Service: "slack", Method: http.MethodPost, Path: "/chat.postMessage", Status: status}
	}
	if !resp.OK {
		return fmt.Errorf("failed to post to %s: slack error %q", channel, resp.Error)
	}
	return nil
}
