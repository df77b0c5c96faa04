package server

import (
	"context"
	"net/http"
	"testing"

	"connectrpc.com/connect"
	botv1 "github.com/saga-it/qyburn/api/bot/v1"
	"github.com/saga-it/qyburn/api/bot/v1/botv1connect"
	"github.com/saga-it/qyburn/internal/models"
	"github.com/stretchr/testify/require"
)

func newBotClient(t *testing.T) botv1connect.BotServiceClient {
	t.Helper()
	env := newTestEnv(t, StreamConfig{})
	return botv1connect.NewBotServiceClient(http.DefaultClient, env.url)
}

func TestBotService_RunCommand(t *testing.T) {
	client := newBotClient(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		req      *botv1.RunCommandRequest
		contains string
	}{
		{"help", &botv1.RunCommandRequest{Command: "/qyburn-help", CallerEmail: "anna.lindberg@saga.com"}, "*Qyburn IT Self-Service Bot*"},
		{"license", &botv1.RunCommandRequest{Command: "/qyburn-license", Args: "JetBrains", CallerEmail: "maria.chen@saga.com", Channel: "#it-support"}, "SKU: JB-ALL"},
		{"status", &botv1.RunCommandRequest{Command: "/qyburn-status", CallerEmail: "james.patel@saga.com"}, "SG-Engineering-Admin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.RunCommand(ctx, connect.NewRequest(tt.req))
			require.NoError(t, err)
			require.Contains(t, resp.Msg.Text, tt.contains)
		})
	}

	_, err := client.RunCommand(ctx, connect.NewRequest(&botv1.RunCommandRequest{Command: "/qyburn-help"}))
	require.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestBotService_SendMessage(t *testing.T) {
	client := newBotClient(t)

	resp, err := client.SendMessage(context.Background(), connect.NewRequest(&botv1.SendMessageRequest{
		UserEmail: "anna.lindberg@saga.com",
		Text:      "How do I set up VPN?",
		Channel:   "#it-support",
	}))
	require.NoError(t, err)
	require.Equal(t, "network", resp.Msg.Intent)
	require.True(t, resp.Msg.Resolved)
	require.NotEmpty(t, resp.Msg.Response)

	_, err = client.SendMessage(context.Background(), connect.NewRequest(&botv1.SendMessageRequest{UserEmail: "anna.lindberg@saga.com"}))
	require.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestBotService_ReviewRequest(t *testing.T) {
	client := newBotClient(t)
	ctx := context.Background()

	approve := &botv1.ReviewRequestRequest{RequestID: "gar-001", Decision: models.RequestStatusApproved, Reviewer: "eng.lead@saga.com"}

	resp, err := client.ReviewRequest(ctx, connect.NewRequest(approve))
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusApproved, resp.Msg.Request.Status)

	_, err = client.ReviewRequest(ctx, connect.NewRequest(approve))
	require.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	_, err = client.ReviewRequest(ctx, connect.NewRequest(&botv1.ReviewRequestRequest{RequestID: "gar-404", Decision: models.RequestStatusDenied, Reviewer: "eng.lead@saga.com"}))
	require.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	_, err = client.ReviewRequest(ctx, connect.NewRequest(&botv1.ReviewRequestRequest{RequestID: "gar-001", Decision: "maybe", Reviewer: "eng.lead@saga.com"}))
	require.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestBotService_StartOnboarding(t *testing.T) {
	client := newBotClient(t)

	resp, err := client.StartOnboarding(context.Background(), connect.NewRequest(&botv1.StartOnboardingRequest{
		TemplateID:    "ot-001",
		EmployeeEmail: "maria.chen@saga.com",
		Actor:         "admin@saga.com",
	}))
	require.NoError(t, err)
	require.Equal(t, "Engineering New Hire", resp.Msg.TemplateName)
	require.Len(t, resp.Msg.Steps, 4)

	_, err = client.StartOnboarding(context.Background(), connect.NewRequest(&botv1.StartOnboardingRequest{TemplateID: "ot-001", Actor: "admin@saga.com"}))
	require.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}
