package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/starford/snix/internal"
	"github.com/starford/snix/internal/snippetservice"
)

func notebookCommand() *cli.Command {
	return &cli.Command{
		Name:    "notebook",
		Aliases: []string{"nb"},
		Usage:   "Create, rename, move and delete notebooks",
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a notebook",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "parent", Aliases: []string{"p"}, Usage: "Parent notebook id (root when empty)"},
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
					name := rest(cmd, 0)
					n, err := a.Service.CreateNotebook(ctx, snippetservice.NotebookInput{
						Name:        name,
						Description: cmd.String("description"),
						ParentID:    cmd.String("parent"),
					})
					if err != nil {
						return err
					}
					fmt.Fprintln(out, n.ID)
					return nil
				}),
			},
			{
				Name:      "rename",
				Usage:     "Rename a notebook",
				ArgsUsage: "<notebook-id> <name>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
					id, err := arg(cmd, 0, "notebook-id")
					if err != nil {
						return err
					}
					_, err = a.Service.RenameNotebook(ctx, id, rest(cmd, 1))
					return err
				}),
			},
			{
				Name:      "move",
				Usage:     "Move a notebook under another one, or to the root when no parent is given",
				ArgsUsage: "<notebook-id> [parent-id]",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
					id, err := arg(cmd, 0, "notebook-id")
					if err != nil {
						return err
					}
					_, err = a.Service.MoveNotebook(ctx, id, cmd.Args().Get(1))
					return err
				}),
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete a notebook; non-empty notebooks need --cascade",
				ArgsUsage: "<notebook-id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "cascade", Usage: "Also delete everything inside"},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
					id, err := arg(cmd, 0, "notebook-id")
					if err != nil {
						return err
					}
					policy := snippetservice.Reject
					if cmd.Bool("cascade") {
						policy = snippetservice.Cascade
					}
					res, err := a.Service.DeleteNotebook(ctx, id, policy)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "deleted %d notebook(s), %d snippet(s)\n", res.Notebooks, res.Snippets)
					return nil
				}),
			},
		},
	}
}

var snippetFlags = []cli.Flag{
	&cli.StringFlag{Name: "title", Aliases: []string{"t"}},
	&cli.StringFlag{Name: "description", Aliases: []string{"d"}},
	&cli.StringFlag{Name: "language", Aliases: []string{"l"}},
	&cli.StringSliceFlag{Name: "tag", Usage: "Tag (repeatable)"},
	&cli.StringFlag{Name: "body", Usage: "Snippet body"},
	&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: `Read the body from a file ("-" for stdin)`},
}

// body returns the body from --body or --file, and whether either was given.
func body(cmd *cli.Command) (string, bool, error) {
	if cmd.IsSet("body") {
		return cmd.String("body"), true, nil
	}
	path := cmd.String("file")
	if path == "" {
		return "", false, nil
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", false, fmt.Errorf("read body: %w", err)
	}
	return string(data), true, nil
}

func snippetCommand() *cli.Command {
	return &cli.Command{
		Name:    "snippet",
		Aliases: []string{"sn"},
		Usage:   "Add, edit, move, favorite and remove snippets",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Add a snippet to a notebook",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "notebook", Aliases: []string{"n"}, Required: true},
					&cli.BoolFlag{Name: "favorite"},
				}, snippetFlags...),
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
					text, _, err := body(cmd)
					if err != nil {
						return err
					}
					s, err := a.Service.CreateSnippet(ctx, snippetservice.SnippetInput{
						NotebookID:  cmd.String("notebook"),
						Title:       cmd.String("title"),
						Description: cmd.String("description"),
						Body:        text,
						Language:    cmd.String("language"),
						Tags:        cmd.StringSlice("tag"),
						IsFavorite:  cmd.Bool("favorite"),
					})
					if err != nil {
						return err
					}
					fmt.Fprintln(out, s.ID)
					return nil
				}),
			},
			{
				Name:      "edit",
				Usage:     "Change the given fields of a snippet",
				ArgsUsage: "<snippet-id>",
				Flags:     snippetFlags,
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
					id, err := arg(cmd, 0, "snippet-id")
					if err != nil {
						return err
					}
					var patch snippetservice.SnippetPatch
					for name, field := range map[string]**string{
						"title":       &patch.Title,
						"description": &patch.Description,
						"language":    &patch.Language,
					} {
						if cmd.IsSet(name) {
							v := cmd.String(name)
							*field = &v
						}
					}
					if cmd.IsSet("tag") {
						tags := cmd.StringSlice("tag")
						patch.Tags = &tags
					}
					text, ok, err := body(cmd)
					if err != nil {
						return err
					}
					if ok {
						patch.Body = &text
					}
					s, err := a.Service.UpdateSnippet(ctx, id, patch)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s  v%d\n", s.ID, s.Version)
					return nil
				}),
			},
			{
				Name:      "rm",
				Usage:     "Delete a snippet",
				ArgsUsage: "<snippet-id>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
					id, err := arg(cmd, 0, "snippet-id")
					if err != nil {
						return err
					}
					return a.Service.DeleteSnippet(ctx, id)
				}),
			},
			{
				Name:      "mv",
				Usage:     "Move a snippet to another notebook",
				ArgsUsage: "<snippet-id> <notebook-id>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
					id, err := arg(cmd, 0, "snippet-id")
					if err != nil {
						return err
					}
					target, err := arg(cmd, 1, "notebook-id")
					if err != nil {
						return err
					}
					_, err = a.Service.MoveSnippet(ctx, id, target)
					return err
				}),
			},
			{
				Name:      "fav",
				Usage:     "Toggle the favorite flag",
				ArgsUsage: "<snippet-id>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
					id, err := arg(cmd, 0, "snippet-id")
					if err != nil {
						return err
					}
					s, err := a.Service.ToggleFavorite(ctx, id)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s  favorite=%t\n", s.ID, s.IsFavorite)
					return nil
				}),
			},
		},
	}
}
