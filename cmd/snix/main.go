package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/snix/internal"
	"github.com/starford/snix/internal/mcpserver"
	pkgconfig "github.com/starford/snix/pkg/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadIfExists(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	// The flag wins over the file.
	if store := cmd.String("store"); store != "" {
		cfg.Store.Path = store
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port := cmd.Int("port"); port > 0 {
		cfg.App.HTTP.Port = int(port)
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command, a *internal.App) error {
	// stdout belongs to the protocol; logs go to stderr.
	a.Logger.Info("MCP server starting", slog.String("store", a.Service.Location()))
	return mcpserver.New(a.Service, version).ServeStdio()
}

func main() {
	cmd := &cli.Command{
		Name:    "snix",
		Usage:   "Personal snippet store with notebooks, fuzzy search, backups and an MCP bridge",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "store",
				Usage:   "Store directory (overrides store.path)",
				Sources: cli.EnvVars("SNIX_STORE"),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log at the configured level instead of warnings only",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API with live events, metrics and automatic backups",
				Action: serve,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "port", Usage: "HTTP port (overrides app.http.port)"},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve read-only MCP tools on stdin/stdout",
				Action: withApp(serveMCP),
			},
			treeCommand(),
			searchCommand(),
			showCommand(),
			favoritesCommand(),
			recentsCommand(),
			tagsCommand(),
			notebookCommand(),
			snippetCommand(),
			exportCommand(),
			importCommand(),
			backupCommand(),
			askCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
