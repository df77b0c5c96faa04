package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/saga-it/qyburn/internal/bot"
	"github.com/stretchr/testify/require"
)

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

func TestCommandCmd_local(t *testing.T) {
	tests := []struct {
		name     string
		cmd      CommandCmd
		contains string
	}{
		{
			name:     "help",
			cmd:      CommandCmd{Command: "/qyburn-help", As: "anna.lindberg@saga.com"},
			contains: "*Qyburn IT Self-Service Bot*",
		},
		{
			name:     "slash is optional",
			cmd:      CommandCmd{Command: "qyburn-license", Args: []string{"JetBrains"}, As: "maria.chen@saga.com"},
			contains: "SKU: JB-ALL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := captureStdout(t)
			require.NoError(t, tt.cmd.Run(context.Background(), &Globals{}))
			require.Contains(t, out.String(), tt.contains)
		})
	}
}

func TestMessageCmd_local(t *testing.T) {
	out := captureStdout(t)

	cmd := MessageCmd{Text: []string{"How", "do", "I", "set", "up", "VPN?"}, As: "anna.lindberg@saga.com", Channel: "#it-support"}
	require.NoError(t, cmd.Run(context.Background(), &Globals{}))

	require.Contains(t, out.String(), "#it-support anna.lindberg@saga.com: How do I set up VPN?")
	require.Contains(t, out.String(), "qyburn [network, resolved=true]")
}

func TestReviewCmd_local(t *testing.T) {
	out := captureStdout(t)

	cmd := ReviewCmd{RequestID: "gar-001", Decision: "approve", Reviewer: "eng.lead@saga.com"}
	require.NoError(t, cmd.Run(context.Background(), &Globals{}))
	require.Contains(t, out.String(), "Request gar-001 for james.patel@saga.com on rg-001 is now approved")

	cmd = ReviewCmd{RequestID: "gar-404", Decision: "deny", Reviewer: "eng.lead@saga.com"}
	require.ErrorContains(t, cmd.Run(context.Background(), &Globals{}), "failed to review gar-404")
}

func TestOnboardCmd_local(t *testing.T) {
	out := captureStdout(t)

	cmd := OnboardCmd{TemplateID: "ot-001", Employee: "new.hire@saga.com", Actor: "admin@saga.com"}
	require.NoError(t, cmd.Run(context.Background(), &Globals{}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Equal(t, "Onboarding new.hire@saga.com with Engineering New Hire", lines[0])
	require.Len(t, lines, 5)
}

func TestSimulateCmd_local(t *testing.T) {
	out := captureStdout(t)

	cmd := SimulateCmd{JSON: true}
	require.NoError(t, cmd.Run(context.Background(), &Globals{}))

	var exchanges []bot.Exchange
	require.NoError(t, json.Unmarshal(out.Bytes(), &exchanges))
	require.Len(t, exchanges, len(bot.DemoMessages))
	for i, ex := range exchanges {
		require.Equal(t, bot.DemoMessages[i].Text, ex.Message.Text)
		require.NotNil(t, ex.Reply)
		require.NotEmpty(t, ex.Reply.Response)
	}
}

func TestLoadScript(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(`messages:
  - userEmail: erik.svensson@saga.com
    text: I need a JetBrains license
  - userEmail: anna.lindberg@saga.com
    text: My password expired
    channel: "#helpdesk"
`), 0o600))

	script, err := loadScript(valid)
	require.NoError(t, err)
	messages := script.messages()
	require.Len(t, messages, 2)
	require.Equal(t, bot.SupportChannel, messages[0].Channel)
	require.Equal(t, "#helpdesk", messages[1].Channel)

	missingText := filepath.Join(dir, "missing.yaml")
	require.NoError(t, os.WriteFile(missingText, []byte("messages:\n  - userEmail: erik.svensson@saga.com\n"), 0o600))
	_, err = loadScript(missingText)
	require.ErrorContains(t, err, "message 1 needs userEmail and text")

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("messages: []\n"), 0o600))
	_, err = loadScript(empty)
	require.ErrorContains(t, err, "has no messages")
}
