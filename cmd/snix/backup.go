package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/starford/snix/internal"
)

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Create, list, restore and prune backups",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Back up the whole store",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
					info, err := a.Backups.Create(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s  (%d notebook(s), %d snippet(s), %d bytes)\n",
						info.Name, info.Notebooks, info.Snippets, info.Size)
					return nil
				}),
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List backups, newest first",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
					infos, err := a.Backups.List(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, a.Backups.Location())
					tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "NAME\tCREATED\tNOTEBOOKS\tSNIPPETS\tSIZE\t")
					for _, b := range infos {
						if b.Err != "" {
							fmt.Fprintf(tw, "%s\t%s\t-\t-\t%d\tunreadable: %s\n",
								b.Name, b.CreatedAt.Local().Format("2006-01-02 15:04:05"), b.Size, b.Err)
							continue
						}
						fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t\n",
							b.Name, b.CreatedAt.Local().Format("2006-01-02 15:04:05"), b.Notebooks, b.Snippets, b.Size)
					}
					return tw.Flush()
				}),
			},
			{
				Name:      "restore",
				Usage:     "Replace the store contents with a backup",
				ArgsUsage: "<name>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
					name, err := arg(cmd, 0, "name")
					if err != nil {
						return err
					}
					if err := a.Backups.Restore(ctx, name); err != nil {
						return err
					}
					st := a.Service.Stats()
					fmt.Fprintf(out, "restored %s: %d notebook(s), %d snippet(s)\n", name, st.Notebooks, st.Snippets)
					return nil
				}),
			},
			{
				Name:  "prune",
				Usage: "Delete all but the newest backups",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "keep", Aliases: []string{"k"}, Value: 10, Usage: "Backups to keep"},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
					removed, err := a.Backups.Prune(ctx, int(cmd.Int("keep")))
					if err != nil {
						return err
					}
					for _, name := range removed {
						fmt.Fprintln(out, "removed "+name)
					}
					return nil
				}),
			},
		},
	}
}
