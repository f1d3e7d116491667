package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/feedvault/internal/app"
	"github.com/hpungsan/feedvault/internal/command"
	"github.com/hpungsan/feedvault/internal/errors"
	"github.com/hpungsan/feedvault/internal/ingest"
	"github.com/hpungsan/feedvault/internal/logging"
	"github.com/hpungsan/feedvault/internal/settings"
	"github.com/hpungsan/feedvault/internal/store"
	"github.com/hpungsan/feedvault/internal/web"
)

// newCLIApp creates the CLI application with all commands.
// a may be nil when only help or version output is needed.
func newCLIApp(a *app.App) *cli.App {
	cliApp := &cli.App{
		Name:    "feedvault",
		Usage:   "Local feed record vault",
		Version: Version,
		Commands: []*cli.Command{
			ingestCmd(a),
			getCmd(a),
			queryCmd(a),
			searchCmd(a),
			deleteCmd(a),
			statsCmd(a),
			settingsCmd(a),
			exportCmd(a),
			importCmd(a),
			cleanupCmd(a),
			optimizeCmd(a),
			clearAllCmd(a),
			quotaCmd(a),
			eventsCmd(a),
			serveCmd(a),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	cliApp.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return cliApp
}

// filterFlags are shared by query and search.
func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "author", Aliases: []string{"a"}, Usage: "Author name substring"},
		&cli.StringFlag{Name: "from", Usage: "Earliest record date (RFC 3339 or YYYY-MM-DD)"},
		&cli.StringFlag{Name: "to", Usage: "Latest record date (RFC 3339 or YYYY-MM-DD)"},
		&cli.BoolFlag{Name: "has-media", Usage: "Only records with media"},
	}
}

func parseFilterFlags(c *cli.Context) (store.Filters, error) {
	return command.ParseFilters(c.String("author"), c.String("from"), c.String("to"), c.Bool("has-media"))
}

// ingestCmd creates the ingest command.
func ingestCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Ingest raw records as JSON lines or a JSON array (reads stdin unless --file is set)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Read records from this file"},
			&cli.BoolFlag{Name: "no-wait", Usage: "Exit without waiting for queued records (they are discarded)"},
		},
		Action: func(c *cli.Context) error {
			var r io.Reader
			if path := c.String("file"); path != "" {
				f, err := os.Open(path)
				if err != nil {
					if os.IsNotExist(err) {
						return outputError(errors.NewFileNotFound(path))
					}
					return outputError(errors.NewInternal(err))
				}
				defer f.Close()
				r = f
			} else {
				if !readerHasData(c.App.Reader) {
					return outputError(errors.NewInvalidRequest("records must be piped via stdin or given with --file"))
				}
				r = c.App.Reader
			}

			totals, err := a.Pipeline.IngestAll(c.Context, ingest.Detect(r))
			if err != nil {
				return outputError(err)
			}
			if totals.Queued > 0 && !c.Bool("no-wait") {
				if err := a.Pipeline.Wait(c.Context); err != nil {
					return outputError(err)
				}
			}
			return outputJSON(c.App.Writer, totals)
		},
	}
}

// getCmd creates the get command.
func getCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Fetch a record by ID",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("id is required"))
			}
			return dispatch(c, a, command.Get{ID: c.Args().First()})
		},
	}
}

// queryCmd creates the query command.
func queryCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "query",
		Usage: "List records newest first",
		Flags: append(filterFlags(),
			&cli.IntFlag{Name: "page", Aliases: []string{"p"}, Value: 1, Usage: "Page number (1-based)"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: store.DefaultQueryLimit, Usage: "Records per page"},
		),
		Action: func(c *cli.Context) error {
			f, err := parseFilterFlags(c)
			if err != nil {
				return outputError(err)
			}
			return dispatch(c, a, command.Query{QueryInput: store.QueryInput{
				Filters: f,
				Page:    c.Int("page"),
				Limit:   c.Int("limit"),
			}})
		},
	}
}

// searchCmd creates the search command.
func searchCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search records by text, author or hashtag",
		ArgsUsage: "<query>",
		Flags:     filterFlags(),
		Action: func(c *cli.Context) error {
			f, err := parseFilterFlags(c)
			if err != nil {
				return outputError(err)
			}
			return dispatch(c, a, command.Search{SearchInput: store.SearchInput{
				Query:   strings.Join(c.Args().Slice(), " "),
				Filters: f,
			}})
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a record by ID",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("id is required"))
			}
			return dispatch(c, a, command.Delete{ID: c.Args().First()})
		},
	}
}

// statsCmd creates the stats command.
func statsCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show record count, date range and storage size",
		Action: func(c *cli.Context) error {
			return dispatch(c, a, command.Stats{})
		},
	}
}

// settingsCmd creates the settings command.
func settingsCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Show settings, or update them with --set key=value",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "set", Aliases: []string{"s"}, Usage: "Setting to change, e.g. maxRecords=500 (repeatable)"},
		},
		Action: func(c *cli.Context) error {
			assignments := c.StringSlice("set")
			if len(assignments) == 0 {
				return dispatch(c, a, command.GetSettings{})
			}
			var d settings.Delta
			for _, kv := range assignments {
				if err := settings.ParseAssignment(&d, kv); err != nil {
					return outputError(err)
				}
			}
			return dispatch(c, a, command.UpdateSettings{Delta: d})
		},
	}
}

// exportCmd creates the export command.
func exportCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export all records to a JSON envelope file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.feedvault/exports/feedvault-export-<timestamp>.json)"},
			&cli.BoolFlag{Name: "stdout", Usage: "Print the envelope instead of writing a file"},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("stdout") {
				out, err := command.Do[*command.ExportOutput](c.Context, a.Dispatcher, command.Export{Inline: true})
				if err != nil {
					return outputError(err)
				}
				return outputJSON(c.App.Writer, out.Envelope)
			}
			return dispatch(c, a, command.Export{Path: c.String("path")})
		},
	}
}

// importCmd creates the import command.
func importCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Merge records from an export envelope (reads stdin unless --path is set)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Import file path"},
		},
		Action: func(c *cli.Context) error {
			if path := c.String("path"); path != "" {
				return dispatch(c, a, command.Import{Path: path})
			}
			if !readerHasData(c.App.Reader) {
				return outputError(errors.NewInvalidRequest("envelope must be piped via stdin or given with --path"))
			}
			data, err := io.ReadAll(io.LimitReader(c.App.Reader, store.MaxImportBytes+1))
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			return dispatch(c, a, command.Import{Data: data})
		},
	}
}

// cleanupCmd creates the cleanup command.
func cleanupCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "Remove records with a cleanup strategy",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "strategy", Value: "moderate", Usage: "Strategy: moderate|aggressive|age"},
			&cli.StringFlag{Name: "older-than", Usage: "Age cutoff for the age strategy (e.g., 30d); implies --strategy age"},
		},
		Action: func(c *cli.Context) error {
			cmd := command.Cleanup{Strategy: c.String("strategy")}
			if olderThan := c.String("older-than"); olderThan != "" {
				days, err := parseDuration(olderThan)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				cmd.Strategy = "age"
				cmd.Days = days
			}
			return dispatch(c, a, cmd)
		},
	}
}

// optimizeCmd creates the optimize command.
func optimizeCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "optimize",
		Usage: "Shrink stored records (truncate long text, cap media)",
		Action: func(c *cli.Context) error {
			return dispatch(c, a, command.Optimize{})
		},
	}
}

// clearAllCmd creates the clear-all command.
func clearAllCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "clear-all",
		Usage: "Delete every record and reset settings",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Confirm deletion"},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("yes") {
				return outputError(errors.NewInvalidRequest("clear-all deletes every record; pass --yes to confirm"))
			}
			return dispatch(c, a, command.ClearAll{})
		},
	}
}

// quotaCmd creates the quota command.
func quotaCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "quota",
		Usage: "Show storage quota status",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "refresh", Aliases: []string{"r"}, Usage: "Run a check now instead of reporting the last one"},
		},
		Action: func(c *cli.Context) error {
			return dispatch(c, a, command.QuotaStatus{Refresh: c.Bool("refresh")})
		},
	}
}

// eventsCmd creates the events command.
func eventsCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "List tracked events, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 50, Usage: "Maximum events to return (0 for all)"},
		},
		Action: func(c *cli.Context) error {
			return dispatch(c, a, command.Events{Limit: c.Int("limit")})
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Address to bind (default from config)"},
			&cli.IntFlag{Name: "port", Usage: "Port to listen on (default from config)"},
		},
		Action: func(c *cli.Context) error {
			bind, port := a.Config.HTTPBind, a.Config.HTTPPort
			if c.IsSet("bind") {
				bind = c.String("bind")
			}
			if c.IsSet("port") {
				port = c.Int("port")
			}

			log := logging.Component("web")
			srv := web.NewServer(a.Dispatcher, a.Metrics, log, bind, port)
			err := a.Run(c.Context, func(ctx context.Context) error {
				return web.Run(ctx, srv, log)
			})
			if err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// Helper functions

// dispatch runs cmd and writes its output as JSON.
func dispatch(c *cli.Context, a *app.App, cmd command.Command) error {
	out, err := a.Dispatcher.Dispatch(c.Context, cmd)
	if err != nil {
		return outputError(err)
	}
	return outputJSON(c.App.Writer, out)
}

// outputJSON writes v to w as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if vErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", vErr.Code, vErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// readerHasData reports whether r can supply input: stdin only when piped,
// any other reader always.
func readerHasData(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return r != nil
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
