// Package botv1connect wires the qyburn.v1.BotService procedures to connect
// handlers and clients using the botv1 JSON codec.
package botv1connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	botv1 "github.com/saga-it/qyburn/api/bot/v1"
)

// BotServiceName is the fully-qualified name of the BotService service.
const BotServiceName = "qyburn.v1.BotService"

// Procedure paths, used for routing and for interceptors keyed on the procedure.
const (
	BotServiceRunCommandProcedure      = "/qyburn.v1.BotService/RunCommand"
	BotServiceSendMessageProcedure     = "/qyburn.v1.BotService/SendMessage"
	BotServiceReviewRequestProcedure   = "/qyburn.v1.BotService/ReviewRequest"
	BotServiceStartOnboardingProcedure = "/qyburn.v1.BotService/StartOnboarding"
)

// BotServiceClient is a client for the qyburn.v1.BotService service.
type BotServiceClient interface {
	RunCommand(context.Context, *connect.Request[botv1.RunCommandRequest]) (*connect.Response[botv1.RunCommandResponse], error)
	SendMessage(context.Context, *connect.Request[botv1.SendMessageRequest]) (*connect.Response[botv1.SendMessageResponse], error)
	ReviewRequest(context.Context, *connect.Request[botv1.ReviewRequestRequest]) (*connect.Response[botv1.ReviewRequestResponse], error)
	StartOnboarding(context.Context, *connect.Request[botv1.StartOnboardingRequest]) (*connect.Response[botv1.StartOnboardingResponse], error)
}

// NewBotServiceClient constructs a client for the qyburn.v1.BotService service.
// baseURL is the server root, e.g. http://localhost:8080.
func NewBotServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) BotServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(botv1.Codec{})}, opts...)
	return &botServiceClient{
		runCommand:      connect.NewClient[botv1.RunCommandRequest, botv1.RunCommandResponse](httpClient, baseURL+BotServiceRunCommandProcedure, opts...),
		sendMessage:     connect.NewClient[botv1.SendMessageRequest, botv1.SendMessageResponse](httpClient, baseURL+BotServiceSendMessageProcedure, opts...),
		reviewRequest:   connect.NewClient[botv1.ReviewRequestRequest, botv1.ReviewRequestResponse](httpClient, baseURL+BotServiceReviewRequestProcedure, opts...),
		startOnboarding: connect.NewClient[botv1.StartOnboardingRequest, botv1.StartOnboardingResponse](httpClient, baseURL+BotServiceStartOnboardingProcedure, opts...),
	}
}

type botServiceClient struct {
	runCommand      *connect.Client[botv1.RunCommandRequest, botv1.RunCommandResponse]
	sendMessage     *connect.Client[botv1.SendMessageRequest, botv1.SendMessageResponse]
	reviewRequest   *connect.Client[botv1.ReviewRequestRequest, botv1.ReviewRequestResponse]
	startOnboarding *connect.Client[botv1.StartOnboardingRequest, botv1.StartOnboardingResponse]
}

func (c *botServiceClient) RunCommand(ctx context.Context, req *connect.Request[botv1.RunCommandRequest]) (*connect.Response[botv1.RunCommandResponse], error) {
	return c.runCommand.CallUnary(ctx, req)
}

func (c *botServiceClient) SendMessage(ctx context.Context, req *connect.Request[botv1.SendMessageRequest]) (*connect.Response[botv1.SendMessageResponse], error) {
	return c.sendMessage.CallUnary(ctx, req)
}

func (c *botServiceClient) ReviewRequest(ctx context.Context, req *connect.Request[botv1.ReviewRequestRequest]) (*connect.Response[botv1.ReviewRequestResponse], error) {
	return c.reviewRequest.CallUnary(ctx, req)
}

func (c *botServiceClient) StartOnboarding(ctx context.Context, req *connect.Request[botv1.StartOnboardingRequest]) (*connect.Response[botv1.StartOnboardingResponse], error) {
	return c.startOnboarding.CallUnary(ctx, req)
}

// BotServiceHandler is implemented by the server side of qyburn.v1.BotService.
type BotServiceHandler interface {
	RunCommand(context.Context, *connect.Request[botv1.RunCommandRequest]) (*connect.Response[botv1.RunCommandResponse], error)
	SendMessage(context.Context, *connect.Request[botv1.SendMessageRequest]) (*connect.Response[botv1.SendMessageResponse], error)
	ReviewRequest(context.Context, *connect.Request[botv1.ReviewRequestRequest]) (*connect.Response[botv1.ReviewRequestResponse], error)
	StartOnboarding(context.Context, *connect.Request[botv1.StartOnboardingRequest]) (*connect.Response[botv1.StartOnboardingResponse], error)
}

// NewBotServiceHandler builds an HTTP handler from the service implementation.
// It returns the path on which to mount the handler and the handler itself.
func NewBotServiceHandler(svc BotServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(botv1.Codec{})}, opts...)

	runCommand := connect.NewUnaryHandler(BotServiceRunCommandProcedure, svc.RunCommand, opts...)
	sendMessage := connect.NewUnaryHandler(BotServiceSendMessageProcedure, svc.SendMessage, opts...)
	reviewRequest := connect.NewUnaryHandler(BotServiceReviewRequestProcedure, svc.ReviewRequest, opts...)
	startOnboarding := connect.NewUnaryHandler(BotServiceStartOnboardingProcedure, svc.StartOnboarding, opts...)

	return "/" + BotServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case BotServiceRunCommandProcedure:
			runCommand.ServeHTTP(w, r)
		case BotServiceSendMessageProcedure:
			sendMessage.ServeHTTP(w, r)
		case BotServiceReviewRequestProcedure:
			reviewRequest.ServeHTTP(w, r)
		case BotServiceStartOnboardingProcedure:
			startOnboarding.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
