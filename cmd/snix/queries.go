package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/starford/snix/internal"
	"github.com/starford/snix/internal/models"
	"github.com/starford/snix/internal/parser"
	"github.com/starford/snix/internal/snippetservice"
)

func treeCommand() *cli.Command {
	return &cli.Command{
		Name:      "tree",
		Usage:     "Print the notebook tree",
		ArgsUsage: "[notebook-id]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "notebooks-only", Aliases: []string{"n"}, Usage: "Hide snippets"},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
			root := cmd.Args().First()
			if root != "" {
				path, err := a.Service.Path(root)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, breadcrumb(path))
			}
			return printTree(out, a.Service, root, 0, !cmd.Bool("notebooks-only"))
		}),
	}
}

func printTree(w io.Writer, svc *snippetservice.Service, id string, depth int, snippets bool) error {
	l, err := svc.List(id)
	if err != nil {
		return err
	}
	indent := strings.Repeat("  ", depth)
	for _, n := range l.Notebooks {
		fmt.Fprintf(w, "%s%s/  [%s]\n", indent, n.Name, n.ID)
		if err := printTree(w, svc, n.ID, depth+1, snippets); err != nil {
			return err
		}
	}
	if snippets {
		for _, s := range l.Snippets {
			fmt.Fprintf(w, "%s%s\n", indent, snippetLine(s))
		}
	}
	return nil
}

func snippetLine(s models.Snippet) string {
	line := fmt.Sprintf("%s  [%s]", s.Title, s.ID)
	if s.Language != "" {
		line += "  " + s.Language
	}
	if len(s.Tags) > 0 {
		line += "  #" + strings.Join(s.Tags, " #")
	}
	if s.IsFavorite {
		line += "  *"
	}
	return line
}

func breadcrumb(path []models.Notebook) string {
	names := make([]string, len(path))
	for i, n := range path {
		names[i] = n.Name
	}
	return strings.Join(names, " / ")
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Ranked fuzzy search; #tag words filter by tag",
		ArgsUsage: "<query...>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Maximum results (0 for all)"},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
			hits := a.Service.Search(rest(cmd, 0), int(cmd.Int("limit")))
			if len(hits) == 0 {
				fmt.Fprintln(out, "no matches")
				return nil
			}
			for _, h := range hits {
				fmt.Fprintf(out, "%4d  %s\n", h.Score, snippetLine(h.Snippet))
				if ex := firstLine(h.Excerpt); ex != "" {
					fmt.Fprintf(out, "      %s\n", ex)
				}
			}
			return nil
		}),
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print a snippet and record the access",
		ArgsUsage: "<snippet-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "raw", Usage: "Print the body only"},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
			id, err := arg(cmd, 0, "snippet-id")
			if err != nil {
				return err
			}
			s, err := a.Service.RecordAccess(ctx, id)
			if err != nil {
				return err
			}
			if cmd.Bool("raw") {
				_, err = io.WriteString(out, s.Body)
				return err
			}
			data, err := parser.RenderSnippet(s)
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		}),
	}
}

func favoritesCommand() *cli.Command {
	return &cli.Command{
		Name:  "favorites",
		Usage: "List favorite snippets",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
			for _, s := range a.Service.ListFavorites() {
				fmt.Fprintln(out, snippetLine(s))
			}
			return nil
		}),
	}
}

func recentsCommand() *cli.Command {
	return &cli.Command{
		Name:  "recents",
		Usage: "List recently opened snippets, most recent first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Maximum entries (0 for all)"},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
			for _, r := range a.Service.ListRecents(int(cmd.Int("limit"))) {
				fmt.Fprintf(out, "%s  %s\n", r.AccessedAt.Local().Format("2006-01-02 15:04"), snippetLine(r.Snippet))
			}
			return nil
		}),
	}
}

func tagsCommand() *cli.Command {
	return &cli.Command{
		Name:  "tags",
		Usage: "List tags with snippet counts",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
			for _, t := range a.Service.Tags() {
				fmt.Fprintf(out, "%5d  #%s\n", t.Count, t.Tag)
			}
			return nil
		}),
	}
}
