package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fastRetry = RetryConfig{MaxTries: 3, InitialInterval: time.Millisecond}

func TestStubDirectory(t *testing.T) {
	ctx := context.Background()
	dir := NewStubDirectory()

	user, err := dir.GetUserByEmail(ctx, "Anna.Lindberg@saga.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	require.Equal(t, "user-001", user.ID)
	require.Equal(t, "Diagnostics", *user.Department)

	user, err = dir.GetUserByEmail(ctx, "nobody@saga.com")
	require.NoError(t, err)
	require.Nil(t, user)

	require.NoError(t, dir.AssignLicense(ctx, "user-001", "M365-E3"))
	require.NoError(t, dir.RevokeLicense(ctx, "user-001", "M365-E3"))

	require.NoError(t, dir.AddUserToGroup(ctx, "group-003", "user-004"))
	require.NoError(t, dir.AddUserToGroup(ctx, "group-003", "user-004"))
	require.Equal(t, []string{"user-002", "user-003", "user-004"}, dir.GroupMembers("group-003"))

	err = dir.AddUserToGroup(ctx, "group-404", "user-004")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCannedReply(t *testing.T) {
	tests := []struct {
		message string
		prefix  string
	}{
		{"How do I set up VPN?", "To set up VPN access"},
		{"I forgot my password", "I can help with password resets"},
		{"I need a JetBrains license", "I can help you request software licenses"},
		{"Help me onboard a new team member", "I'll help with onboarding!"},
		{"We have a new employee starting", "I'll help with onboarding!"},
		{"hello there", "I'm Qyburn"},
		// vpn is checked before password
		{"reset my vpn", "To set up VPN access"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			reply, err := StubChat{}.Chat(context.Background(), []Message{{Role: "user", Content: tt.message}}, "system")
			require.NoError(t, err)
			require.Contains(t, reply, tt.prefix)
		})
	}
}

func TestStubChat_NoMessages(t *testing.T) {
	reply, err := StubChat{}.Chat(context.Background(), nil, "")
	require.NoError(t, err)
	require.Equal(t, DefaultReply, reply)
}

func TestStubMessaging(t *testing.T) {
	m := NewStubMessaging()
	require.NoError(t, m.PostMessage(context.Background(), "#it-support", "hello"))
	require.NoError(t, m.PostMessage(context.Background(), "#it-support", "again"))

	msgs := m.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "#it-support", msgs[0].Channel)
	require.Equal(t, BotUser, msgs[0].User)
	require.Equal(t, "again", msgs[1].Text)
	require.NotEmpty(t, msgs[0].TS)
}

func newGraphServer(t *testing.T, handler http.HandlerFunc) *Graph {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"graph-token","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1.0/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer graph-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		handler(w, r)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	g := NewGraph(context.Background(), GraphConfig{
		TenantID:     "tenant",
		ClientID:     "client",
		ClientSecret: "secret",
		BaseURL:      srv.URL + "/v1.0",
		TokenURL:     srv.URL + "/token",
		HTTPClient:   srv.Client(),
		Retry:        fastRetry,
	})
	return g
}

func TestGraph_GetUserByEmail(t *testing.T) {
	g := newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1.0/users/erik.svensson@saga.com":
			require.Equal(t, "id,displayName,mail,jobTitle,department", r.URL.Query().Get("$select"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"user-002","displayName":"Erik Svensson","mail":"erik.svensson@saga.com","jobTitle":"Software Engineer","department":null}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	user, err := g.GetUserByEmail(context.Background(), "erik.svensson@saga.com")
	require.NoError(t, err)
	require.Equal(t, "user-002", user.ID)
	require.Equal(t, "Software Engineer", *user.JobTitle)
	require.Nil(t, user.Department)

	user, err = g.GetUserByEmail(context.Background(), "ghost@saga.com")
	require.NoError(t, err)
	require.Nil(t, user)
}

const e3SkuID = "6fd2c87f-b296-42f0-b197-1e91e994b900"

func writeSubscribedSkus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"value":[
		{"skuId":"` + e3SkuID + `","skuPartNumber":"ENTERPRISEPACK"},
		{"skuId":"f30db892-07e9-47e9-837c-80727f46fd3d","skuPartNumber":"FLOW_FREE"}
	]}`))
}

func TestGraph_AssignLicenseRetries(t *testing.T) {
	var calls atomic.Int32
	g := newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1.0/subscribedSkus" {
			writeSubscribedSkus(w)
			return
		}
		require.Equal(t, "/v1.0/users/user-001/assignLicense", r.URL.Path)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		var body graphAssignLicense
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.AddLicenses, 1)
		require.Equal(t, e3SkuID, body.AddLicenses[0].SkuID)
		require.Empty(t, body.RemoveLicenses)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"user-001"}`))
	})

	require.NoError(t, g.AssignLicense(context.Background(), "user-001", "ENTERPRISEPACK"))
	require.Equal(t, int32(2), calls.Load())
}

func TestGraph_ResolvesSkuPartNumber(t *testing.T) {
	var lookups atomic.Int32
	var mu sync.Mutex
	var removed []string
	g := newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1.0/subscribedSkus":
			lookups.Add(1)
			require.Equal(t, "skuId,skuPartNumber", r.URL.Query().Get("$select"))
			writeSubscribedSkus(w)
		case "/v1.0/users/user-001/assignLicense":
			var body graphAssignLicense
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			mu.Lock()
			removed = append(removed, body.RemoveLicenses...)
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	require.NoError(t, g.RevokeLicense(ctx, "user-001", "enterprisepack"))
	require.NoError(t, g.RevokeLicense(ctx, "user-001", "ENTERPRISEPACK"))
	require.Equal(t, int32(1), lookups.Load())

	// GUIDs skip the lookup
	require.NoError(t, g.RevokeLicense(ctx, "user-001", e3SkuID))
	require.Equal(t, int32(1), lookups.Load())
	mu.Lock()
	require.Equal(t, []string{e3SkuID, e3SkuID, e3SkuID}, removed)
	mu.Unlock()

	err := g.AssignLicense(ctx, "user-001", "M365-E3")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, int32(2), lookups.Load())
}

func TestGraph_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	g := newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	err := g.RevokeLicense(context.Background(), "user-001", e3SkuID)
	require.Error(t, err)

	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	require.Equal(t, http.StatusBadRequest, serr.Status)
	require.Equal(t, int32(1), calls.Load())
}

func TestGraph_ServerErrorExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	g := newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	err := g.AssignLicense(context.Background(), "user-001", e3SkuID)
	require.Error(t, err)
	require.Equal(t, int32(fastRetry.MaxTries), calls.Load())
}

func TestGraph_AddUserToGroup(t *testing.T) {
	g := newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1.0/groups/group-001/members/$ref" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Contains(t, body["@odata.id"], "/directoryObjects/user-003")
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, g.AddUserToGroup(context.Background(), "group-001", "user-003"))

	err := g.AddUserToGroup(context.Background(), "group-999", "user-003")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSlack_PostMessage(t *testing.T) {
	var got slackPostMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat.postMessage", r.URL.Path)
		require.Equal(t, "Bearer xoxb-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		if got.Channel == "#missing" {
			_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewSlack(SlackConfig{BotToken: "xoxb-test", BaseURL: srv.URL + "/api", HTTPClient: srv.Client(), Retry: fastRetry})

	require.NoError(t, s.PostMessage(context.Background(), "#it-support", "hello"))
	require.Equal(t, "hello", got.Text)

	err := s.PostMessage(context.Background(), "#missing", "hello")
	require.ErrorContains(t, err, "channel_not_found")
}

func TestAnthropic_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "sk-test", r.Header.Get("X-Api-Key"))
		require.Equal(t, anthropicVersion, r.Header.Get("Anthropic-Version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "You are Qyburn", req.System)
		require.Equal(t, defaultAnthropicModel, req.Model)
		require.Len(t, req.Messages, 1)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Hello "},{"type":"text","text":"Anna"}]}`))
	}))
	defer srv.Close()

	a := NewAnthropic(AnthropicConfig{APIKey: "sk-test", BaseURL: srv.URL, HTTPClient: srv.Client(), Retry: fastRetry})
	reply, err := a.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, "You are Qyburn")
	require.NoError(t, err)
	require.Equal(t, "Hello Anna", reply)
}
