package server

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
	botv1 "github.com/saga-it/qyburn/api/bot/v1"
	"github.com/saga-it/qyburn/api/bot/v1/botv1connect"
	"github.com/saga-it/qyburn/internal/bot"
	"github.com/saga-it/qyburn/internal/store"
	"github.com/saga-it/qyburn/internal/workflow"
)

// Verify BotServer implements the handler interface
var _ botv1connect.BotServiceHandler = &BotServer{}

// BotServer exposes the bot surface over RPC so a separate bot process can
// drive the workflow engine of this server.
type BotServer struct {
	engine       *workflow.Engine
	router       *bot.Router
	conversation *bot.Conversation
}

func NewBotServer(engine *workflow.Engine, router *bot.Router, conversation *bot.Conversation) *BotServer {
	return &BotServer{
		engine:       engine,
		router:       router,
		conversation: conversation,
	}
}

// RunCommand executes a slash command. Failures are already rendered as text
// by the router, so only malformed requests return an error.
func (s *BotServer) RunCommand(
	ctx context.Context,
	req *connect.Request[botv1.RunCommandRequest],
) (*connect.Response[botv1.RunCommandResponse], error) {
	if req.Msg.Command == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("command is required"))
	}
	if req.Msg.CallerEmail == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("caller email is required"))
	}

	text := s.router.Route(ctx, bot.Command{
		Name:        req.Msg.Command,
		Args:        req.Msg.Args,
		CallerEmail: req.Msg.CallerEmail,
		Channel:     req.Msg.Channel,
	})

	return connect.NewResponse(&botv1.RunCommandResponse{Text: text}), nil
}

func (s *BotServer) SendMessage(
	ctx context.Context,
	req *connect.Request[botv1.SendMessageRequest],
) (*connect.Response[botv1.SendMessageResponse], error) {
	if req.Msg.Text == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("text is required"))
	}

	reply := s.conversation.Handle(ctx, bot.Message{
		UserEmail: req.Msg.UserEmail,
		Text:      req.Msg.Text,
		Channel:   req.Msg.Channel,
	})

	return connect.NewResponse(&botv1.SendMessageResponse{
		Response: reply.Response,
		Intent:   string(reply.Intent),
		Resolved: reply.Resolved,
	}), nil
}

func (s *BotServer) ReviewRequest(
	ctx context.Context,
	req *connect.Request[botv1.ReviewRequestRequest],
) (*connect.Response[botv1.ReviewRequestResponse], error) {
	reviewed, err := s.engine.ReviewRequest(ctx, req.Msg.RequestID, req.Msg.Decision, req.Msg.Reviewer)
	if err != nil {
		return nil, connectError(ctx, err)
	}
	return connect.NewResponse(&botv1.ReviewRequestResponse{Request: reviewed}), nil
}

func (s *BotServer) StartOnboarding(
	ctx context.Context,
	req *connect.Request[botv1.StartOnboardingRequest],
) (*connect.Response[botv1.StartOnboardingResponse], error) {
	report, err := s.engine.StartOnboarding(ctx, req.Msg.TemplateID, req.Msg.EmployeeEmail, req.Msg.Actor)
	if err != nil {
		return nil, connectError(ctx, err)
	}

	resp := &botv1.StartOnboardingResponse{
		TemplateID:    report.TemplateID,
		TemplateName:  report.TemplateName,
		EmployeeEmail: report.EmployeeEmail,
		Steps:         make([]botv1.OnboardingStep, 0, len(report.Steps)),
	}
	for _, step := range report.Steps {
		resp.Steps = append(resp.Steps, botv1.OnboardingStep{
			Title:  step.Title,
			Type:   string(step.Type),
			Status: string(step.Status),
			Detail: step.Detail,
		})
	}
	return connect.NewResponse(resp), nil
}

// connectError maps store and workflow errors to connect codes.
func connectError(ctx context.Context, err error) error {
	switch {
	case store.IsNotFound(err):
		return connect.NewError(connect.CodeNotFound, err)
	case store.IsValidation(err):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, store.ErrRequestReviewed),
		errors.Is(err, store.ErrRequestPending):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, workflow.ErrUpstreamUnavailable):
		return connect.NewError(connect.CodeUnavailable, err)
	}

	zerolog.Ctx(ctx).Error().Err(err).Msg("Bot service call failed")
	return connect.NewError(connect.CodeInternal, err)
}
