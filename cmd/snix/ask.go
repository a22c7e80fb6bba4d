package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/starford/snix/internal"
)

func askCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask a local ollama model about a snippet",
		ArgsUsage: "<snippet-id> [question...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "Model name (default: assist.model or the first installed)"},
			&cli.StringFlag{Name: "host", Usage: "Ollama URL (default: assist.host or OLLAMA_HOST)"},
		},
		Action: withConfiguredApp(
			func(cmd *cli.Command, cfg *internal.Config) {
				cfg.Assist.Enabled = true
				if m := cmd.String("model"); m != "" {
					cfg.Assist.Model = m
				}
				if h := cmd.String("host"); h != "" {
					cfg.Assist.Host = h
				}
			},
			func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
				id, err := arg(cmd, 0, "snippet-id")
				if err != nil {
					return err
				}
				ans, err := a.Assist.Ask(ctx, id, rest(cmd, 1))
				if err != nil {
					return err
				}
				fmt.Fprintln(out, ans.Text)
				return nil
			},
		),
	}
}
