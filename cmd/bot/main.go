package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/saga-it/qyburn/cmd/bot/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Simulate commands.SimulateCmd `cmd:"" help:"Replay a scripted conversation through the bot"`
		Command  commands.CommandCmd  `cmd:"" help:"Run a slash command such as /qyburn-license"`
		Message  commands.MessageCmd  `cmd:"" help:"Ask the bot a free-text question"`
		Review   commands.ReviewCmd   `cmd:"" help:"Approve or deny a group access request"`
		Onboard  commands.OnboardCmd  `cmd:"" help:"Start an onboarding template for an employee"`
		Debug    bool                 `help:"Enable debug mode."`
		Version  kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Description("Talk to the Qyburn bot, against a server or fully in process."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
