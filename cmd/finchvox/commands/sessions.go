// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/finchvox/finchvox/cmd/finchvox/cli"
	"github.com/finchvox/finchvox/lib/session"
	"github.com/finchvox/finchvox/lib/storage"
)

const bytesPerMiB = 1024 * 1024

func listCommand(streams Streams) *cli.Command {
	var params struct {
		configParams
		cli.JSONOutput
		Limit int `flag:"limit,n" desc:"maximum sessions to list" default:"20"`
	}
	return &cli.Command{
		Name:    "list",
		Summary: "List recorded sessions, newest first",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("list", &params)
		},
		Run: func(ctx context.Context, _ []string) error {
			cfg, logger, err := params.load(streams.Err)
			if err != nil {
				return err
			}
			svc, err := buildServices(ctx, cfg, logger, streams.Err, true)
			if err != nil {
				return err
			}
			manifests, err := svc.backend.ListSessions(ctx, params.Limit)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(streams.Out, manifests); done {
				return err
			}
			if len(manifests) == 0 {
				fmt.Fprintln(streams.Out, "no sessions")
				return nil
			}

			table := tabwriter.NewWriter(streams.Out, 2, 0, 2, ' ', 0)
			fmt.Fprintln(table, "SESSION\tSERVICE\tSTARTED\tDURATION\tTURNS\tLOGS\tAUDIO")
			for _, manifest := range manifests {
				fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					manifest.SessionID,
					valueOr(manifest.ServiceName, "-"),
					startedColumn(manifest.StartTime),
					durationColumn(manifest.DurationMS),
					manifest.Trace.TurnCount,
					manifest.LogCount,
					audioColumn(manifest.AudioSizeMB))
			}
			return table.Flush()
		},
	}
}

func valueOr(value *string, fallback string) string {
	if value == nil || *value == "" {
		return fallback
	}
	return *value
}

func startedColumn(seconds *float64) string {
	if seconds == nil {
		return "-"
	}
	return humanize.Time(time.Unix(0, int64(*seconds*1e9)))
}

func durationColumn(milliseconds *float64) string {
	if milliseconds == nil {
		return "-"
	}
	return (time.Duration(*milliseconds) * time.Millisecond).Round(time.Second).String()
}

func audioColumn(megabytes *int64) string {
	if megabytes == nil {
		return "-"
	}
	return humanize.IBytes(uint64(*megabytes) * bytesPerMiB)
}

func exportCommand(streams Streams) *cli.Command {
	var params struct {
		configParams
		Output string `flag:"output,o" desc:"archive path (default <session-id>.zip)"`
	}
	return &cli.Command{
		Name:    "export",
		Summary: "Write a session to a zip archive",
		Usage:   "finchvox export <session-id> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("export", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return errors.New("usage: finchvox export <session-id>")
			}
			id := args[0]
			if err := session.ValidateID(id); err != nil {
				return err
			}
			cfg, logger, err := params.load(streams.Err)
			if err != nil {
				return err
			}

			dir := session.Open(cfg.SessionsDir(), id)
			if !dir.Exists() {
				svc, err := buildServices(ctx, cfg, logger, streams.Err, true)
				if err != nil {
					return err
				}
				downloaded, cleanup, err := download(ctx, svc.backend, id)
				if err != nil {
					return err
				}
				defer cleanup()
				dir = downloaded
			}

			var archive bytes.Buffer
			digest, err := session.Export(&archive, dir)
			if err != nil {
				return err
			}
			output := params.Output
			if output == "" {
				output = id + ".zip"
			}
			if err := os.WriteFile(output, archive.Bytes(), 0o644); err != nil {
				return fmt.Errorf("writing archive: %w", err)
			}
			fmt.Fprintf(streams.Out, "exported %s to %s (%s, blake3 %s)\n",
				id, output, humanize.IBytes(uint64(archive.Len())), digest)
			return nil
		},
	}
}

// download materializes a session stored only in backend.
func download(ctx context.Context, backend storage.Backend, id string) (session.Dir, func(), error) {
	noop := func() {}
	downloader, ok := backend.(storage.Downloader)
	if !ok {
		return session.Dir{}, noop, fmt.Errorf("session %s not found", id)
	}
	temporary, err := os.MkdirTemp("", "finchvox-export-")
	if err != nil {
		return session.Dir{}, noop, err
	}
	cleanup := func() { os.RemoveAll(temporary) }
	dir := session.Open(temporary, id)
	found, err := downloader.DownloadSession(ctx, id, dir.Path)
	if err != nil {
		cleanup()
		return session.Dir{}, noop, err
	}
	if !found {
		cleanup()
		return session.Dir{}, noop, fmt.Errorf("session %s not found", id)
	}
	return dir, cleanup, nil
}

func importCommand(streams Streams) *cli.Command {
	var params struct {
		configParams
	}
	return &cli.Command{
		Name:    "import",
		Summary: "Restore a session from a zip archive",
		Usage:   "finchvox import <archive.zip> [flags]",
		Description: `Restore a session exported by "finchvox export".

The archive must contain at least one .jsonl file and every .jsonl line
must be valid JSON. An existing session with the same ID is replaced.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("import", &params)
		},
		Run: func(_ context.Context, args []string) error {
			if len(args) != 1 {
				return errors.New("usage: finchvox import <archive.zip>")
			}
			cfg, logger, err := params.load(streams.Err)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			dir, err := session.Import(data, cfg.SessionsDir())
			if err != nil {
				var archiveErr *session.ArchiveError
				if errors.As(err, &archiveErr) {
					fmt.Fprintf(streams.Err, "cannot import %s: %s\n", filepath.Base(args[0]), archiveErr.Reason)
					return &cli.ExitError{Code: 1}
				}
				return err
			}
			logger.Debug("session imported", "path", dir.Path)
			fmt.Fprintf(streams.Out, "imported %s\n", dir.ID)
			return nil
		},
	}
}
