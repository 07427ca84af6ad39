package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"subline/internal/api"
	"subline/internal/lifecycle"
)

type batchAction struct {
	use   string
	short string
	run   func(svc *lifecycle.Service, ctx context.Context, ids []int64) []lifecycle.Result
}

var batchActions = []batchAction{
	{"pause", "Pause topics so the lanes skip them", (*lifecycle.Service).Pause},
	{"resume", "Resume paused topics", (*lifecycle.Service).Resume},
	{"set-normal", "Force topics back to normal from any status", (*lifecycle.Service).SetNormal},
	{"archive", "Archive topics", (*lifecycle.Service).Archive},
	{"remove", "Mark topics removed; storage is reclaimed after the grace period", (*lifecycle.Service).Remove},
	{"recover", "Restore the original subtitle lines", (*lifecycle.Service).RecoverToOriginal},
	{"reproduce", "Re-derive subtitle lines from the stored transcript", (*lifecycle.Service).ReproduceSubtitle},
}

func newActionCommands(ctx *commandContext) []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(batchActions)+2)
	for _, action := range batchActions {
		cmds = append(cmds, &cobra.Command{
			Use:   action.use + " <id>...",
			Short: action.short,
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ids, err := parseTopicIDs(args)
				if err != nil {
					return err
				}
				return ctx.withServices(func(svc *localServices) error {
					results := action.run(svc.lifecycle, operatorContext(cmd.Context()), ids)
					return reportResults(cmd, ctx, action.use, api.FromResults(results))
				})
			},
		})
	}
	cmds = append(cmds, newReExecuteCommand(ctx), newConfigureCommand(ctx))
	return cmds
}

func newReExecuteCommand(ctx *commandContext) *cobra.Command {
	var targets lifecycle.Targets

	cmd := &cobra.Command{
		Use:     "reexecute <id>...",
		Aliases: []string{"re-execute", "retry"},
		Short:   "Reset branches to pending and return topics to normal",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseTopicIDs(args)
			if err != nil {
				return err
			}
			return ctx.withServices(func(svc *localServices) error {
				results := svc.lifecycle.ReExecute(operatorContext(cmd.Context()), ids, targets)
				return reportResults(cmd, ctx, "reexecute", api.FromResults(results))
			})
		},
	}

	cmd.Flags().BoolVar(&targets.Asr, "asr", false, "Reset only the transcription branch")
	cmd.Flags().BoolVar(&targets.Convert, "convert", false, "Reset only the transcoding branch")
	return cmd
}

func newConfigureCommand(ctx *commandContext) *cobra.Command {
	var settings lifecycle.Settings

	cmd := &cobra.Command{
		Use:   "configure <id>...",
		Short: "Set subtitle timing overrides and re-derive lines",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseTopicIDs(args)
			if err != nil {
				return err
			}
			return ctx.withServices(func(svc *localServices) error {
				results := svc.lifecycle.Configure(operatorContext(cmd.Context()), ids, settings)
				return reportResults(cmd, ctx, "configure", api.FromResults(results))
			})
		},
	}

	cmd.Flags().Float64Var(&settings.FrameRate, "frame-rate", 0, "Frame rate override (0 clears)")
	cmd.Flags().IntVar(&settings.WordLimit, "word-limit", 0, "Words per line override (0 clears)")
	return cmd
}

// reportResults prints one line per id and fails the command when any id failed.
func reportResults(cmd *cobra.Command, ctx *commandContext, action string, results []api.ActionResult) error {
	out := cmd.OutOrStdout()
	failed := 0
	for _, r := range results {
		if !r.OK {
			failed++
		}
	}
	if ctx.jsonOutput() {
		if err := writeJSON(out, api.ActionResponse{Action: action, Results: results}); err != nil {
			return err
		}
	} else {
		colorize := shouldColorize(out)
		for _, r := range results {
			label := fmt.Sprintf("Topic %d", r.ID)
			if r.OK {
				fmt.Fprintln(out, renderStatusLine(label, statusOK, action, colorize))
				continue
			}
			msg := r.Error
			if r.Hint != "" {
				msg += " (" + r.Hint + ")"
			}
			fmt.Fprintln(out, renderStatusLine(label, statusError, msg, colorize))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%s: %d of %d topics failed", action, failed, len(results))
	}
	return nil
}
