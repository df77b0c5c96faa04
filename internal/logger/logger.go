package logger

import (
	"context"
	"os"
	"time"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
	botv1 "github.com/saga-it/qyburn/api/bot/v1"
)

// Setup builds the process logger. dev switches to console output at debug level.
func Setup(dev bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()
	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Stack().Logger()
	}
	return logger
}

var _ connect.Interceptor = (*ConnectRequests)(nil)

// ConnectRequests logs every BotService call with the caller and channel it
// came from, and attaches that request logger to the context.
type ConnectRequests struct {
	logger zerolog.Logger
}

func NewConnectRequests(logger zerolog.Logger) *ConnectRequests {
	return &ConnectRequests{logger: logger}
}

// botFields adds the identifying fields of a BotService request.
func botFields(logCtx zerolog.Context, msg any) zerolog.Context {
	switch m := msg.(type) {
	case *botv1.RunCommandRequest:
		return logCtx.Str("caller", m.CallerEmail).Str("channel", m.Channel).Str("command", m.Command)
	case *botv1.SendMessageRequest:
		return logCtx.Str("caller", m.UserEmail).Str("channel", m.Channel)
	case *botv1.ReviewRequestRequest:
		return logCtx.Str("caller", m.Reviewer).Str("request_id", m.RequestID).Str("decision", string(m.Decision))
	case *botv1.StartOnboardingRequest:
		return logCtx.Str("caller", m.Actor).Str("template_id", m.TemplateID).Str("employee", m.EmployeeEmail)
	}
	return logCtx
}

func (c *ConnectRequests) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		started := time.Now()

		logCtx := c.logger.With().
			Str("procedure", req.Spec().Procedure).
			Str("protocol", req.Peer().Protocol)
		ctx = botFields(logCtx, req.Any()).Logger().WithContext(ctx)

		resp, err := next(ctx, req)
		log := zerolog.Ctx(ctx)
		if err != nil {
			log.Error().Err(err).
				Str("code", connect.CodeOf(err).String()).
				Dur("duration", time.Since(started)).
				Msg("bot call failed")
			return resp, err
		}

		evt := log.Info().Dur("duration", time.Since(started))
		if msg, ok := resp.Any().(*botv1.SendMessageResponse); ok {
			evt = evt.Str("intent", msg.Intent).Bool("resolved", msg.Resolved)
		}
		evt.Msg("bot call")
		return resp, nil
	}
}

// BotService has no streaming methods; streams pass through untouched.
func (c *ConnectRequests) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (c *ConnectRequests) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}
