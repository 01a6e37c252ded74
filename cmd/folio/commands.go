package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/starford/folio/internal"
	"github.com/starford/folio/internal/publish"
	"github.com/starford/folio/internal/vault"
	pkgconfig "github.com/starford/folio/pkg/config"
)

func profileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "profile",
		Aliases:  []string{"p"},
		Usage:    "Profile id",
		Required: true,
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func arg(cmd *cli.Command, i int, name string) (string, error) {
	v := cmd.Args().Get(i)
	if v == "" {
		return "", fmt.Errorf("missing argument: %s", name)
	}
	return v, nil
}

func publishCommand() *cli.Command {
	run := func(mode publish.Mode, needsPath bool) cli.ActionFunc {
		return withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
			req := publish.Request{ProfileID: cmd.String("profile"), Mode: mode}
			if needsPath {
				p, err := arg(cmd, 0, "note path")
				if err != nil {
					return err
				}
				req.Path = p
			}
			rep, err := app.Publisher.Publish(ctx, req)
			if rep != nil {
				if perr := printJSON(rep); perr != nil {
					return perr
				}
			}
			return err
		})
	}
	return &cli.Command{
		Name:  "publish",
		Usage: "Publish notes to a profile",
		Flags: []cli.Flag{profileFlag()},
		Commands: []*cli.Command{
			{Name: "note", Usage: "Publish one note", ArgsUsage: "<path>", Action: run(publish.ModeIndividual, true)},
			{Name: "connected", Usage: "Publish a note and the notes it is linked with", ArgsUsage: "<path>", Action: run(publish.ModeConnected, true)},
			{Name: "updates", Usage: "Publish notes changed since the last full publish", Action: run(publish.ModeSinceLast, false)},
			{Name: "all", Usage: "Publish every note in the profile", Action: run(publish.ModeAll, false)},
		},
	}
}

func profilesCommand() *cli.Command {
	return &cli.Command{
		Name:  "profiles",
		Usage: "Inspect publish profiles",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List profiles",
				Action: withApp(func(_ context.Context, _ *cli.Command, app *internal.App) error {
					return printJSON(app.Profiles.List())
				}),
			},
			{
				Name:      "show",
				Usage:     "Show one profile",
				ArgsUsage: "<id>",
				Action: withApp(func(_ context.Context, cmd *cli.Command, app *internal.App) error {
					id, err := arg(cmd, 0, "profile id")
					if err != nil {
						return err
					}
					p, err := app.Profiles.Get(id)
					if err != nil {
						return err
					}
					return printJSON(p)
				}),
			},
		},
	}
}

func contextsCommand() *cli.Command {
	return &cli.Command{
		Name:  "contexts",
		Usage: "Check and edit publish contexts in note frontmatter",
		Commands: []*cli.Command{
			{
				Name:  "check",
				Usage: "List notes whose publish contexts need correction",
				Action: withApp(func(ctx context.Context, _ *cli.Command, app *internal.App) error {
					corr, err := app.Vault.Corrections(ctx)
					if err != nil {
						return err
					}
					return printJSON(corr)
				}),
			},
			{
				Name:  "fix",
				Usage: "Rewrite publish contexts into list form",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "apply", Usage: "Write changes instead of previewing them"}},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
					fixed, err := app.Vault.FixContexts(ctx, cmd.Bool("apply"))
					if err != nil {
						return err
					}
					return printJSON(fixed)
				}),
			},
			{
				Name:      "toggle",
				Usage:     "Add or remove a profile in a note's publish contexts",
				ArgsUsage: "<path> <profile>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
					path, err := arg(cmd, 0, "note path")
					if err != nil {
						return err
					}
					id, err := arg(cmd, 1, "profile id")
					if err != nil {
						return err
					}
					if _, err := app.Profiles.Get(id); err != nil {
						return err
					}
					member, err := app.Vault.ToggleContext(ctx, path, id)
					if err != nil {
						return err
					}
					return printJSON(map[string]any{"path": path, "profile": id, "member": member})
				}),
			},
			{
				Name:      "bulk",
				Usage:     "Add or remove contexts for whole directories",
				ArgsUsage: "<rules.yaml>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "apply", Usage: "Write changes instead of previewing them"},
					&cli.BoolFlag{Name: "csv", Usage: "Print the result as CSV"},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
					file, err := arg(cmd, 0, "rules file")
					if err != nil {
						return err
					}
					var req vault.BulkRequest
					if err := pkgconfig.Load(file, &req); err != nil {
						return err
					}
					req.Apply = req.Apply || cmd.Bool("apply")
					changes, err := app.Vault.BulkContexts(ctx, req)
					if err != nil {
						return err
					}
					if cmd.Bool("csv") {
						return vault.WriteBulkCSV(os.Stdout, changes)
					}
					return printJSON(changes)
				}),
			},
		},
	}
}

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "Maintain the vault and content indexes",
		Commands: []*cli.Command{
			{
				Name:  "sync",
				Usage: "Reconcile the vault index with the disk",
				Action: withApp(func(_ context.Context, _ *cli.Command, app *internal.App) error {
					return app.Vault.Sync()
				}),
			},
			{
				Name:  "rebuild-content",
				Usage: "Rebuild a profile's content index from every published note",
				Flags: []cli.Flag{profileFlag()},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
					n, err := app.Publisher.RebuildContentIndex(ctx, cmd.String("profile"))
					if err != nil {
						return err
					}
					return printJSON(map[string]int{"entries": n})
				}),
			},
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the notes published to a profile",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			profileFlag(),
			&cli.IntFlag{Name: "limit", Usage: "Maximum number of hits", Value: 20},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
			q, err := arg(cmd, 0, "query")
			if err != nil {
				return err
			}
			hits, err := app.Publisher.Search(ctx, cmd.String("profile"), q, int(cmd.Int("limit")))
			if err != nil {
				return err
			}
			return printJSON(hits)
		}),
	}
}

func urlCommand() *cli.Command {
	return &cli.Command{
		Name:      "url",
		Usage:     "Print the published URL of a note",
		ArgsUsage: "<path>",
		Flags:     []cli.Flag{profileFlag()},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
			path, err := arg(cmd, 0, "note path")
			if err != nil {
				return err
			}
			u, err := app.Publisher.NoteURL(ctx, cmd.String("profile"), path)
			if err != nil {
				return err
			}
			fmt.Println(u)
			return nil
		}),
	}
}
