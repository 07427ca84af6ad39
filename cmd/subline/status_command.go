package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"subline/internal/api"
	"subline/internal/config"
	"subline/internal/deps"
	"subline/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, lane, and storage status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			status, remoteErr := fetchDaemonStatus(cmd.Context(), cfg)
			if remoteErr != nil {
				status, err = offlineStatus(cmd.Context(), ctx)
				if err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			if ctx.jsonOutput() {
				return writeJSON(out, status)
			}
			renderDaemonStatus(out, status, remoteErr, shouldColorize(out))
			return nil
		},
	}
}

// fetchDaemonStatus asks a running daemon over its HTTP API.
func fetchDaemonStatus(ctx context.Context, cfg *config.Config) (api.DaemonStatus, error) {
	var status api.DaemonStatus
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return status, fmt.Errorf("api disabled (paths.api_bind is empty)")
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return status, fmt.Errorf("parse api_bind: %w", err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, "http://"+net.JoinHostPort(host, port)+"/api/status", nil)
	if err != nil {
		return status, err
	}
	if token := strings.TrimSpace(cfg.Paths.APIToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return status, fmt.Errorf("connect to daemon: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return status, fmt.Errorf("daemon status: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("decode daemon status: %w", err)
	}
	return status, nil
}

// offlineStatus builds what can be known without a running daemon.
func offlineStatus(ctx context.Context, cmdCtx *commandContext) (api.DaemonStatus, error) {
	var status api.DaemonStatus
	err := cmdCtx.withServices(func(svc *localServices) error {
		status.DatabasePath = svc.store.Path()
		status.Dependencies = api.FromDependencies(deps.CheckBinaries(deps.TranscoderRequirements(svc.cfg)))
		status.Checks = api.FromChecks(preflight.RunAll(ctx, svc.cfg, nil))
		health, err := svc.store.Health(ctx)
		if err != nil {
			return err
		}
		status.Topics = api.FromHealth(health)
		if usage, err := svc.files.Usage(ctx); err == nil {
			status.Storage = api.FromUsage(usage)
		} else {
			status.Errors = append(status.Errors, err.Error())
		}
		return nil
	})
	return status, err
}

func renderDaemonStatus(out io.Writer, status api.DaemonStatus, remoteErr error, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	if status.Running {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, "running (pid "+strconv.Itoa(status.PID)+")", colorize))
	} else {
		msg := "not running"
		if remoteErr != nil {
			msg += "; " + remoteErr.Error()
		}
		fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, msg, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))

	if len(status.Lanes) > 0 {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Lanes", colorize) {
			fmt.Fprintln(out, line)
		}
		for _, l := range status.Lanes {
			kind := statusOK
			msg := fmt.Sprintf("%s, %d runs, %d failures", l.State, l.Runs, l.Failures)
			if !l.Ready {
				kind = statusWarn
				msg += "; " + l.Detail
			}
			if l.LastError != "" {
				kind = statusError
				msg += "; last error: " + l.LastError
			}
			fmt.Fprintln(out, renderStatusLine(l.Name, kind, msg, colorize))
		}
	}

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, dep := range status.Dependencies {
		switch {
		case dep.Available:
			fmt.Fprintln(out, renderStatusLine(dep.Name, statusOK, dep.Command, colorize))
		case dep.Optional:
			fmt.Fprintln(out, renderStatusLine(dep.Name, statusWarn, dep.Detail, colorize))
		default:
			fmt.Fprintln(out, renderStatusLine(dep.Name, statusError, dep.Detail, colorize))
		}
	}

	if len(status.Checks) > 0 {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Checks", colorize) {
			fmt.Fprintln(out, line)
		}
		for _, check := range status.Checks {
			kind := statusOK
			if !check.Passed {
				kind = statusError
			}
			fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
		}
	}

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Topics", colorize) {
		fmt.Fprintln(out, line)
	}
	t := status.Topics
	fmt.Fprintln(out, renderTable(
		[]string{"Total", "Normal", "Paused", "Archived", "Removed"},
		[][]string{{itoa(t.Total), itoa(t.Normal), itoa(t.Paused), itoa(t.Archived), itoa(t.Removed)}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
	))
	fmt.Fprintln(out, renderTable(
		[]string{"Branch", "Pending", "In flight", "Failed"},
		[][]string{
			{"transcription", itoa(t.AsrPending), itoa(t.AsrInFlight), itoa(t.AsrFailed)},
			{"transcoding", itoa(t.ConvertPending), itoa(t.Converting), itoa(t.ConvertFailed)},
		},
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
	))

	if s := status.Storage; s != nil {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Storage", colorize) {
			fmt.Fprintln(out, line)
		}
		fmt.Fprintln(out, renderStatusLine("Raw", statusInfo, formatBytes(s.RawBytes), colorize))
		fmt.Fprintln(out, renderStatusLine("Streams", statusInfo, formatBytes(s.StreamBytes), colorize))
		fmt.Fprintln(out, renderStatusLine("Free", statusInfo, fmt.Sprintf("%s of %s", formatBytes(int64(s.FreeBytes)), formatBytes(int64(s.TotalBytes))), colorize))
	}
	for _, msg := range status.Errors {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, msg, colorize))
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
