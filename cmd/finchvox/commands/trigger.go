// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/finchvox/finchvox/cmd/finchvox/cli"
	"github.com/finchvox/finchvox/lib/config"
	"github.com/finchvox/finchvox/lib/control"
	"github.com/finchvox/finchvox/lib/session"
)

type finalizeParams struct {
	configParams
	cli.JSONOutput
	Offline bool `flag:"offline" desc:"finalize in this process even if finchvox is running"`
}

type finalizeOutcome struct {
	SessionID string `json:"session_id"`
	Finalized bool   `json:"finalized"`
}

type finalizeResult struct {
	Mode     string            `json:"mode"`
	Sessions []finalizeOutcome `json:"sessions,omitempty"`
	Pass     *int              `json:"pass_finalized,omitempty"`
}

func finalizeCommand(streams Streams) *cli.Command {
	var params finalizeParams
	return &cli.Command{
		Name:    "finalize",
		Summary: "Finalize sessions now",
		Usage:   "finchvox finalize [session-id...] [flags]",
		Description: `Finalize sessions on demand.

With session IDs, each session is finalized regardless of how
recently it was active. Without IDs, one finalization pass runs over
every eligible session. The request goes to the running finchvox
process over its control socket so it never overlaps a scheduled
pass; when nothing is running the work happens in this process.`,
		Examples: []cli.Example{
			{Description: "Finalize one session", Command: "finchvox finalize 4bf92f3577b34da6a3ce929d0e0e4736"},
			{Description: "Run a pass immediately", Command: "finchvox finalize"},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("finalize", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			return runFinalize(ctx, &params, args, streams)
		},
	}
}

func runFinalize(ctx context.Context, params *finalizeParams, ids []string, streams Streams) error {
	for _, id := range ids {
		if err := session.ValidateID(id); err != nil {
			return err
		}
	}
	cfg, logger, err := params.load(streams.Err)
	if err != nil {
		return err
	}

	result := finalizeResult{Mode: "socket"}
	if params.Offline {
		err = control.ErrNotRunning
	} else {
		err = finalizeRemote(ctx, cfg, ids, &result)
	}
	if errors.Is(err, control.ErrNotRunning) {
		logger.Debug("control socket unavailable, finalizing in process", "socket", cfg.ControlSocketPath())
		result = finalizeResult{Mode: "local"}
		err = finalizeLocal(ctx, cfg, logger, streams, ids, &result)
	}
	if err != nil {
		return err
	}

	if done, err := params.EmitJSON(streams.Out, result); done {
		return err
	}
	failed := 0
	for _, outcome := range result.Sessions {
		if outcome.Finalized {
			fmt.Fprintf(streams.Out, "finalized %s\n", outcome.SessionID)
		} else {
			failed++
			fmt.Fprintf(streams.Out, "failed    %s (see logs)\n", outcome.SessionID)
		}
	}
	if result.Pass != nil {
		fmt.Fprintf(streams.Out, "finalization pass finalized %d session(s)\n", *result.Pass)
	}
	if failed > 0 {
		return &cli.ExitError{Code: 1}
	}
	return nil
}

func finalizeRemote(ctx context.Context, cfg *config.Config, ids []string, result *finalizeResult) error {
	client := control.NewClient(cfg.ControlSocketPath())
	if len(ids) == 0 {
		count, err := client.RunPass(ctx)
		if err != nil {
			return err
		}
		result.Pass = &count
		return nil
	}
	for _, id := range ids {
		finalized, err := client.Finalize(ctx, id)
		if err != nil {
			return err
		}
		result.Sessions = append(result.Sessions, finalizeOutcome{SessionID: id, Finalized: finalized})
	}
	return nil
}

func finalizeLocal(ctx context.Context, cfg *config.Config, logger *slog.Logger, streams Streams, ids []string, result *finalizeResult) error {
	svc, err := buildServices(ctx, cfg, logger, streams.Err, true)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		count := svc.runner.RunFinalizationPass(ctx)
		result.Pass = &count
		return nil
	}
	for _, id := range ids {
		result.Sessions = append(result.Sessions, finalizeOutcome{
			SessionID: id,
			Finalized: svc.runner.FinalizeSession(ctx, id),
		})
	}
	return nil
}

type pendingParams struct {
	configParams
	cli.JSONOutput
	All bool `flag:"all,a" desc:"show every session with the reason it is or is not eligible"`
}

type pendingSession struct {
	SessionID       string    `json:"session_id"`
	State           string    `json:"state"`
	Eligible        bool      `json:"eligible"`
	LastActivity    time.Time `json:"last_activity"`
	InactiveSeconds float64   `json:"inactive_seconds"`
	Reason          string    `json:"reason,omitempty"`
}

func pendingCommand(streams Streams) *cli.Command {
	var params pendingParams
	return &cli.Command{
		Name:    "pending",
		Summary: "List sessions eligible for finalization",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("pending", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			return runPending(ctx, &params, streams)
		},
	}
}

func runPending(ctx context.Context, params *pendingParams, streams Streams) error {
	cfg, logger, err := params.load(streams.Err)
	if err != nil {
		return err
	}

	var sessions []pendingSession
	response, err := control.NewClient(cfg.ControlSocketPath()).Pending(ctx, params.All)
	switch {
	case err == nil:
		for _, entry := range response.Sessions {
			sessions = append(sessions, pendingSession(entry))
		}
	case errors.Is(err, control.ErrNotRunning):
		svc, err := buildServices(ctx, cfg, logger, streams.Err, false)
		if err != nil {
			return err
		}
		decisions, err := svc.runner.Evaluate()
		if err != nil {
			return err
		}
		for _, decision := range decisions {
			if !params.All && !decision.State.Eligible() {
				continue
			}
			sessions = append(sessions, pendingSession{
				SessionID:       decision.SessionID,
				State:           decision.State.String(),
				Eligible:        decision.State.Eligible(),
				LastActivity:    decision.LastActivity,
				InactiveSeconds: decision.Inactive.Seconds(),
				Reason:          decision.Reason,
			})
		}
	default:
		return err
	}

	if done, err := params.EmitJSON(streams.Out, sessions); done {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(streams.Out, "no sessions pending finalization")
		return nil
	}
	table := tabwriter.NewWriter(streams.Out, 2, 0, 2, ' ', 0)
	fmt.Fprintln(table, "SESSION\tSTATE\tLAST ACTIVITY\tREASON")
	for _, entry := range sessions {
		activity := "never"
		if !entry.LastActivity.IsZero() && entry.LastActivity.Unix() > 0 {
			activity = humanize.Time(entry.LastActivity)
		}
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\n", entry.SessionID, entry.State, activity, entry.Reason)
	}
	return table.Flush()
}

type statusOutput struct {
	Running   bool      `json:"running"`
	Passes    uint64    `json:"passes"`
	Finalized uint64    `json:"finalized"`
	Failed    uint64    `json:"failed"`
	LastPass  time.Time `json:"last_pass"`
}

func statusCommand(streams Streams) *cli.Command {
	var params struct {
		configParams
		cli.JSONOutput
	}
	return &cli.Command{
		Name:    "status",
		Summary: "Show the running scheduler's state",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("status", &params)
		},
		Run: func(ctx context.Context, _ []string) error {
			cfg, _, err := params.load(streams.Err)
			if err != nil {
				return err
			}
			status, err := control.NewClient(cfg.ControlSocketPath()).Status(ctx)
			if errors.Is(err, control.ErrNotRunning) {
				fmt.Fprintf(streams.Out, "finchvox is not running (no control socket at %s)\n", cfg.ControlSocketPath())
				return &cli.ExitError{Code: 1}
			}
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(streams.Out, statusOutput(status)); done {
				return err
			}

			state := "stopped"
			if status.Running {
				state = "running"
			}
			lastPass := "never"
			if !status.LastPass.IsZero() {
				lastPass = humanize.Time(status.LastPass)
			}
			table := tabwriter.NewWriter(streams.Out, 2, 0, 2, ' ', 0)
			fmt.Fprintf(table, "Scheduler\t%s\n", state)
			fmt.Fprintf(table, "Passes\t%s\n", humanize.Comma(int64(status.Passes)))
			fmt.Fprintf(table, "Finalized\t%s\n", humanize.Comma(int64(status.Finalized)))
			fmt.Fprintf(table, "Failed\t%s\n", humanize.Comma(int64(status.Failed)))
			fmt.Fprintf(table, "Last pass\t%s\n", lastPass)
			return table.Flush()
		},
	}
}
