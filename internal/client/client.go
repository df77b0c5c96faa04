// Package client builds the HTTP clients used to reach the Qyburn server and
// the upstream directory.
package client

import (
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/saga-it/qyburn/api/bot/v1/botv1connect"
)

// Config holds common client configuration
type Config struct {
	ServerURL string
	Timeout   time.Duration
}

// Clients holds the RPC clients
type Clients struct {
	Bot botv1connect.BotServiceClient
}

// NewClients creates RPC clients for the given configuration.
func NewClients(config Config, opts ...connect.ClientOption) *Clients {
	httpClient := &http.Client{
		Timeout: config.Timeout,
	}

	return &Clients{
		Bot: botv1connect.NewBotServiceClient(httpClient, config.ServerURL, opts...),
	}
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		ServerURL: "http://localhost:8080",
		Timeout:   30 * time.Second,
	}
}
