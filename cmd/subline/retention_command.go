package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"subline/internal/authz"
	"subline/internal/lane"
	"subline/internal/logging"
	"subline/internal/retention"
)

func newRetentionCommand(ctx *commandContext) *cobra.Command {
	retentionCmd := &cobra.Command{
		Use:   "retention",
		Short: "Storage reclamation",
	}
	retentionCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Reclaim storage of removed and archived topics now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(svc *localServices) error {
				runCtx := operatorContext(cmd.Context())
				if err := authz.Check(runCtx, authz.ActionRunRetention); err != nil {
					return err
				}
				l := retention.New(svc.cfg, svc.store, svc.files, logging.NewNop())
				var report retention.Report
				err := svc.recorder.Run(runCtx, string(authz.ActionRunRetention), func(c context.Context) error {
					var runErr error
					report, runErr = l.Run(c)
					return runErr
				})
				out := cmd.OutOrStdout()
				if ctx.jsonOutput() {
					failed := make(map[int64]string, len(report.Failed))
					for id, ferr := range report.Failed {
						failed[id] = ferr.Error()
					}
					if werr := writeJSON(out, map[string]any{
						"lane":       lane.Retention,
						"candidates": report.Candidates,
						"reclaimed":  report.Reclaimed,
						"skipped":    report.Skipped,
						"failed":     failed,
					}); werr != nil {
						return werr
					}
					return err
				}
				colorize := shouldColorize(out)
				fmt.Fprintln(out, renderStatusLine("Candidates", statusInfo, itoa(report.Candidates), colorize))
				fmt.Fprintln(out, renderStatusLine("Reclaimed", statusOK, fmt.Sprint(report.Reclaimed), colorize))
				if len(report.Skipped) > 0 {
					fmt.Fprintln(out, renderStatusLine("Skipped", statusWarn, fmt.Sprint(report.Skipped), colorize))
				}
				ids := make([]int64, 0, len(report.Failed))
				for id := range report.Failed {
					ids = append(ids, id)
				}
				slices.Sort(ids)
				for _, id := range ids {
					fmt.Fprintln(out, renderStatusLine(fmt.Sprintf("Topic %d", id), statusError, report.Failed[id].Error(), colorize))
				}
				return err
			})
		},
	})
	return retentionCmd
}
