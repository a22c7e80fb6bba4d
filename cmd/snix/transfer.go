package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/starford/snix/internal"
	"github.com/starford/snix/internal/transfer"
)

const formatMarkdown = "markdown"

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export notebooks and snippets as JSON, YAML or a Markdown directory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: `Output file or directory ("-" for stdout)`, Value: "-"},
			&cli.StringFlag{Name: "format", Usage: "json, yaml or markdown (default from the file extension)"},
			&cli.StringSliceFlag{Name: "notebook", Usage: "Notebook id, with descendants (repeatable)"},
			&cli.StringSliceFlag{Name: "tag", Usage: "Keep snippets with this tag (repeatable)"},
			&cli.BoolFlag{Name: "favorites", Usage: "Favorites only"},
			&cli.BoolFlag{Name: "no-bodies", Usage: "Leave snippet bodies out"},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
			dest := cmd.String("out")
			format := cmd.String("format")
			if format == "" && dest != "-" {
				format = filepath.Ext(dest)
			}

			doc, err := a.Service.Export(transfer.Selection{
				NotebookIDs:   cmd.StringSlice("notebook"),
				FavoritesOnly: cmd.Bool("favorites"),
				Tags:          cmd.StringSlice("tag"),
				OmitBodies:    cmd.Bool("no-bodies"),
			})
			if err != nil {
				return err
			}

			if strings.EqualFold(format, formatMarkdown) {
				if dest == "-" {
					return errors.New("markdown export needs --out <dir>")
				}
				if err := transfer.WriteMarkdown(dest, doc); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "exported %d snippet(s) to %s\n", len(doc.Snippets), dest)
				return nil
			}

			enc, err := transfer.ParseEncoding(format)
			if err != nil {
				return err
			}
			data, err := transfer.Marshal(doc, enc)
			if err != nil {
				return err
			}
			if dest == "-" {
				_, err = out.Write(data)
				return err
			}
			if err := os.WriteFile(dest, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "exported %d snippet(s) to %s\n", len(doc.Snippets), dest)
			return nil
		}),
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Merge a JSON or YAML document, or a Markdown directory, into the store",
		ArgsUsage: `<file|dir|->`,
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
			src, err := arg(cmd, 0, "file|dir|-")
			if err != nil {
				return err
			}
			doc, err := readDocument(src)
			if err != nil {
				return err
			}
			rep, err := a.Service.Import(ctx, doc)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "created %d notebook(s), %d snippet(s); renamed %d, skipped %d\n",
				rep.NotebooksCreated, rep.SnippetsCreated, rep.Renamed, rep.Skipped)
			for _, msg := range rep.Messages() {
				fmt.Fprintln(out, "  "+msg)
			}
			return nil
		}),
	}
}

func readDocument(src string) (*transfer.Document, error) {
	if src == "-" {
		return transfer.Decode(os.Stdin)
	}
	info, err := os.Stat(src)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return transfer.ReadMarkdown(src, uuid.NewString, time.Now().UTC())
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, err
	}
	return transfer.Unmarshal(data)
}
