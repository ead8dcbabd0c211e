/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/friendsincode/signsync/internal/engine"
	"github.com/friendsincode/signsync/internal/server"
)

var (
	opsDryRun bool
)

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Reconcile every linked screen once",
	Args:  cobra.NoArgs,
	RunE: withEngine(func(ctx context.Context, e *engine.Engine, args []string) (any, engine.Result, error) {
		res, err := e.RepairAllScreens(ctx)
		return res, res.Result, err
	}),
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <screen-id>",
	Short: "Drive one screen to its canonical playlist",
	Args:  cobra.ExactArgs(1),
	RunE: withEngine(func(ctx context.Context, e *engine.Engine, args []string) (any, engine.Result, error) {
		res, err := e.EnsureCanonicalScreenPlayback(ctx, args[0])
		return res, res.Result, err
	}),
}

var nowPlayingCmd = &cobra.Command{
	Use:   "now-playing <screen-id>",
	Short: "Show what a screen is playing according to the remote platform",
	Args:  cobra.ExactArgs(1),
	RunE: withEngine(func(ctx context.Context, e *engine.Engine, args []string) (any, engine.Result, error) {
		res, err := e.GetScreenNowPlaying(ctx, args[0])
		return res, res.Result, err
	}),
}

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Rewrite every screen playlist as baseline followed by its ads",
	Args:  cobra.NoArgs,
	RunE: withEngine(func(ctx context.Context, e *engine.Engine, args []string) (any, engine.Result, error) {
		res, err := e.PublishBaseline(ctx)
		return res, res.Result, err
	}),
}

var quarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "Rename unreferenced legacy and duplicate playlists and layouts",
	Args:  cobra.NoArgs,
	RunE: withEngine(func(ctx context.Context, e *engine.Engine, args []string) (any, engine.Result, error) {
		res, err := e.QuarantineLegacy(ctx, opsDryRun)
		return res, res.Result, err
	}),
}

var targetingCmd = &cobra.Command{
	Use:   "targeting <advertiser-id>",
	Short: "Score the screen inventory for an advertiser",
	Args:  cobra.ExactArgs(1),
	RunE: withEngine(func(ctx context.Context, e *engine.Engine, args []string) (any, engine.Result, error) {
		res, err := e.ResolveTargetingWithDiagnostics(ctx, args[0])
		return res, res.Result, err
	}),
}

var publishAdCmd = &cobra.Command{
	Use:   "publish-ad <advertiser-id> <media-id>",
	Short: "Place an ad on the targeted screens and remove it elsewhere",
	Args:  cobra.ExactArgs(2),
	RunE: withEngine(func(ctx context.Context, e *engine.Engine, args []string) (any, engine.Result, error) {
		mediaID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || mediaID <= 0 {
			return nil, engine.Result{}, fmt.Errorf("invalid media id %q", args[1])
		}
		res, err := e.PublishAdToScreens(ctx, args[0], mediaID, opsDryRun)
		return res, res.Result, err
	}),
}

var locationPlaylistCmd = &cobra.Command{
	Use:   "location-playlist <location-id>",
	Short: "Ensure the shared playlist of a location",
	Args:  cobra.ExactArgs(1),
	RunE: withEngine(func(ctx context.Context, e *engine.Engine, args []string) (any, engine.Result, error) {
		res, err := e.EnsureLocationPlaylist(ctx, args[0])
		return res, res.Result, err
	}),
}

var deleteLegacyCmd = &cobra.Command{
	Use:   "delete-legacy <playlist-id>",
	Short: "Delete a quarantined playlist nothing references",
	Args:  cobra.ExactArgs(1),
	RunE: withEngine(func(ctx context.Context, e *engine.Engine, args []string) (any, engine.Result, error) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return nil, engine.Result{}, fmt.Errorf("invalid playlist id %q", args[0])
		}
		res, err := e.DeleteLegacyPlaylist(ctx, id)
		return res, res.Result, err
	}),
}

func init() {
	quarantineCmd.Flags().BoolVar(&opsDryRun, "dry-run", false, "Report renames without writing")
	publishAdCmd.Flags().BoolVar(&opsDryRun, "dry-run", false, "Report placements without writing")

	rootCmd.AddCommand(repairCmd, reconcileCmd, nowPlayingCmd, baselineCmd,
		quarantineCmd, targetingCmd, publishAdCmd, locationPlaylistCmd, deleteLegacyCmd)
}

type engineOp func(ctx context.Context, e *engine.Engine, args []string) (any, engine.Result, error)

// withEngine wires the engine, runs op and prints its result as JSON. A
// result that is not OK turns into a non-zero exit.
func withEngine(op engineOp) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		comps, err := server.Wire(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := comps.Close(); err != nil {
				logger.Error().Err(err).Msg("cleanup failed")
			}
		}()

		out, res, opErr := op(ctx, comps.Engine, args)
		if out != nil {
			if err := printJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
		}
		if opErr != nil {
			return opErr
		}
		if !res.OK {
			return fmt.Errorf("finished with code %s", res.Code)
		}
		return nil
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
