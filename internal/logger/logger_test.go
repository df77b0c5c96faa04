package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
	botv1 "github.com/saga-it/qyburn/api/bot/v1"
	"github.com/saga-it/qyburn/internal/models"
	"github.com/stretchr/testify/require"
)

func TestConnectRequests_BotFields(t *testing.T) {
	tests := []struct {
		name string
		req  connect.AnyRequest
		want []string
	}{
		{
			name: "slash command",
			req:  connect.NewRequest(&botv1.RunCommandRequest{Command: "/qyburn-licenses", CallerEmail: "anna.lindberg@saga.com", Channel: "C-IT"}),
			want: []string{`"caller":"anna.lindberg@saga.com"`, `"channel":"C-IT"`, `"command":"/qyburn-licenses"`},
		},
		{
			name: "direct message",
			req:  connect.NewRequest(&botv1.SendMessageRequest{UserEmail: "erik.svensson@saga.com", Channel: "D-42", Text: "vpn?"}),
			want: []string{`"caller":"erik.svensson@saga.com"`, `"channel":"D-42"`},
		},
		{
			name: "review",
			req:  connect.NewRequest(&botv1.ReviewRequestRequest{RequestID: "gar-001", Decision: models.RequestStatusApproved, Reviewer: "vp@saga.com"}),
			want: []string{`"caller":"vp@saga.com"`, `"request_id":"gar-001"`, `"decision":"approved"`},
		},
		{
			name: "onboarding",
			req:  connect.NewRequest(&botv1.StartOnboardingRequest{TemplateID: "tpl-001", EmployeeEmail: "new@saga.com", Actor: "hr@saga.com"}),
			want: []string{`"caller":"hr@saga.com"`, `"template_id":"tpl-001"`, `"employee":"new@saga.com"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			var inner bytes.Buffer
			interceptor := NewConnectRequests(zerolog.New(&buf))

			next := func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
				l := zerolog.Ctx(ctx).Output(&inner)
				l.Info().Msg("handled")
				return connect.NewResponse(&botv1.RunCommandResponse{Text: "ok"}), nil
			}

			_, err := interceptor.WrapUnary(next)(context.Background(), tt.req)
			require.NoError(t, err)
			for _, field := range tt.want {
				require.Contains(t, buf.String(), field)
				require.Contains(t, inner.String(), field)
			}
			require.Contains(t, buf.String(), `"message":"bot call"`)
		})
	}
}

func TestConnectRequests_LogsIntent(t *testing.T) {
	var buf bytes.Buffer
	interceptor := NewConnectRequests(zerolog.New(&buf))

	next := func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		return connect.NewResponse(&botv1.SendMessageResponse{Intent: "kb_query", Resolved: true}), nil
	}

	_, err := interceptor.WrapUnary(next)(context.Background(), connect.NewRequest(&botv1.SendMessageRequest{UserEmail: "anna.lindberg@saga.com"}))
	require.NoError(t, err)
	require.Contains(t, buf.String(), `"intent":"kb_query"`)
	require.Contains(t, buf.String(), `"resolved":true`)
}

func TestConnectRequests_LogsErrorCode(t *testing.T) {
	var buf bytes.Buffer
	interceptor := NewConnectRequests(zerolog.New(&buf))

	next := func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("text is required"))
	}

	_, err := interceptor.WrapUnary(next)(context.Background(), connect.NewRequest(&botv1.SendMessageRequest{UserEmail: "anna.lindberg@saga.com"}))
	require.Error(t, err)
	require.Contains(t, buf.String(), `"code":"invalid_argument"`)
	require.Contains(t, buf.String(), `"level":"error"`)
}
