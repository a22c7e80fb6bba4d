package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/starford/snix/internal"
)

// out is where command output goes.
var out io.Writer = os.Stdout

type appAction func(ctx context.Context, cmd *cli.Command, a *internal.App) error

// withApp opens the store for the duration of one command. The store lock
// is held until the action returns, so commands fail with a locked-store
// error while a server owns the same directory.
func withApp(fn appAction) cli.ActionFunc {
	return withConfiguredApp(nil, fn)
}

func withConfiguredApp(configure func(*cli.Command, *internal.Config), fn appAction) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if configure != nil {
			configure(cmd, cfg)
		}

		level := cfg.App.LogLevel
		if !cmd.Bool("verbose") && level < slog.LevelWarn {
			level = slog.LevelWarn
		}
		logger := internal.NewLogger(os.Stderr, level)

		a, err := internal.Open(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, cmd, a)
	}
}

// arg returns the i-th positional argument or fails with a usage error.
func arg(cmd *cli.Command, i int, name string) (string, error) {
	v := strings.TrimSpace(cmd.Args().Get(i))
	if v == "" {
		return "", fmt.Errorf("missing argument <%s>", name)
	}
	return v, nil
}

// rest joins the positional arguments from i on.
func rest(cmd *cli.Command, i int) string {
	args := cmd.Args().Slice()
	if i >= len(args) {
		return ""
	}
	return strings.Join(args[i:], " ")
}
