package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"subline/internal/api"
	"subline/internal/ingest"
	"subline/internal/topic"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var opts ingest.Options
	var option string

	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Ingest a media file as a new topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			created, ok := topic.ParseCreatedOption(option)
			if !ok {
				return fmt.Errorf("invalid --option %q (expected upload, import, or record)", option)
			}
			opts.Option = created
			return ctx.withServices(func(svc *localServices) error {
				t, err := svc.ingest.Ingest(operatorContext(cmd.Context()), args[0], opts)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if ctx.jsonOutput() {
					return writeJSON(out, api.FromTopic(t))
				}
				fmt.Fprintf(out, "Added topic %d (%s)\n", t.ID, t.Name)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "Display name (defaults to the file name)")
	cmd.Flags().StringVar(&opts.Creator, "creator", "", "Creator recorded on the topic")
	cmd.Flags().StringVar(&opts.Model, "model", "", "Recognition model (defaults to provider.default_model)")
	cmd.Flags().Float64Var(&opts.FrameRate, "frame-rate", 0, "Frame rate override for subtitle timing")
	cmd.Flags().IntVar(&opts.WordLimit, "word-limit", 0, "Maximum words per subtitle line")
	cmd.Flags().StringVar(&option, "option", "upload", "How the topic was created: upload, import, or record")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses []string
		sortKey  string
		desc     bool
		name     string
		limit    int
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := topic.Filter{NameContains: name, Desc: desc, Limit: limit}
			key, ok := topic.ParseSortKey(sortKey)
			if !ok {
				return fmt.Errorf("invalid --sort %q (expected created, updated, name, size, or duration)", sortKey)
			}
			filter.Sort = key
			for _, value := range statuses {
				status, ok := topic.ParseStatus(value)
				if !ok {
					return fmt.Errorf("invalid --status %q", value)
				}
				filter.Statuses = append(filter.Statuses, status)
			}
			return ctx.withServices(func(svc *localServices) error {
				topics, err := svc.store.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if ctx.jsonOutput() {
					return writeJSON(out, api.TopicListResponse{Items: api.FromTopics(topics)})
				}
				if len(topics) == 0 {
					fmt.Fprintln(out, "No topics")
					return nil
				}
				fmt.Fprintln(out, renderTopicTable(topics, shouldColorize(out)))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (normal, paused, archived, removed)")
	cmd.Flags().StringVar(&sortKey, "sort", "created", "Sort by created, updated, name, size, or duration")
	cmd.Flags().BoolVar(&desc, "desc", false, "Sort descending")
	cmd.Flags().StringVar(&name, "name", "", "Only topics whose name contains this text")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of topics to show")
	return cmd
}

func renderTopicTable(topics []*topic.Topic, colorize bool) string {
	rows := make([][]string, 0, len(topics))
	for _, t := range topics {
		rows = append(rows, []string{
			strconv.FormatInt(t.ID, 10),
			t.Name,
			colorizeState(string(t.Status), colorize),
			colorizeState(string(t.Media.AsrStatus), colorize),
			colorizeState(string(t.Media.ConvertStatus), colorize),
			formatDuration(t.Media.Length),
			formatBytes(t.Media.Size),
			t.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return renderTable(
		[]string{"ID", "Name", "Status", "ASR", "Convert", "Length", "Size", "Created"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var showLines bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show topic details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTopicID(args[0])
			if err != nil {
				return err
			}
			return ctx.withServices(func(svc *localServices) error {
				c := cmd.Context()
				t, err := svc.store.MustGet(c, id)
				if err != nil {
					return err
				}
				lines, err := svc.store.Lines(c, id, topic.LinesCurrent)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if ctx.jsonOutput() {
					dto := api.FromTopic(t)
					dto.Lines = api.FromLines(lines)
					return writeJSON(out, api.TopicResponse{Item: dto})
				}
				renderTopicDetail(out, t, len(lines), shouldColorize(out))
				if showLines && len(lines) > 0 {
					fmt.Fprintln(out, renderLinesTable(lines))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&showLines, "lines", false, "Print the current subtitle lines")
	return cmd
}

func renderTopicDetail(out io.Writer, t *topic.Topic, lineCount int, colorize bool) {
	for _, line := range renderSectionHeader(fmt.Sprintf("Topic %d", t.ID), colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Name", statusInfo, t.Name, colorize))
	fmt.Fprintln(out, renderStatusLine("Status", topicStatusKind(string(t.Status)), string(t.Status), colorize))
	fmt.Fprintln(out, renderStatusLine("Transcription", topicStatusKind(string(t.Media.AsrStatus)), branchMessage(string(t.Media.AsrStatus), t.Media.AsrError), colorize))
	fmt.Fprintln(out, renderStatusLine("Transcoding", topicStatusKind(string(t.Media.ConvertStatus)), branchMessage(string(t.Media.ConvertStatus), t.Media.ConvertError), colorize))
	fmt.Fprintln(out, renderStatusLine("Model", statusInfo, t.ModelName, colorize))
	if t.AsrTaskID != "" {
		fmt.Fprintln(out, renderStatusLine("Provider task", statusInfo, t.AsrTaskID, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Raw object", statusInfo, t.RawObject, colorize))
	fmt.Fprintln(out, renderStatusLine("Size", statusInfo, fmt.Sprintf("%s (original %s)", formatBytes(t.Media.Size), formatBytes(t.Media.OriginalSize)), colorize))
	fmt.Fprintln(out, renderStatusLine("Length", statusInfo, formatDuration(t.Media.Length), colorize))
	fmt.Fprintln(out, renderStatusLine("Process time", statusInfo, t.Media.ProcessTime.Round(time.Millisecond).String(), colorize))
	fmt.Fprintln(out, renderStatusLine("Subtitle lines", statusInfo, strconv.Itoa(lineCount), colorize))
	fmt.Fprintln(out, renderStatusLine("Created", statusInfo, t.CreatedAt.Local().Format(time.RFC3339), colorize))
	fmt.Fprintln(out, renderStatusLine("Updated", statusInfo, t.UpdatedAt.Local().Format(time.RFC3339), colorize))
}

func branchMessage(status, errMsg string) string {
	if errMsg == "" {
		return status
	}
	return status + ": " + errMsg
}

func renderLinesTable(lines []topic.SubtitleLine) string {
	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, []string{
			strconv.Itoa(line.Index),
			formatClock(line.Start),
			formatClock(line.End),
			strings.ReplaceAll(line.Text, "\n", " / "),
		})
	}
	return renderTable([]string{"#", "Start", "End", "Text"}, rows, []columnAlignment{alignRight, alignRight, alignRight, alignLeft})
}

func newReloadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reload <id> <file>",
		Short: "Replace a topic's current subtitle lines from an SRT or WebVTT file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTopicID(args[0])
			if err != nil {
				return err
			}
			return ctx.withServices(func(svc *localServices) error {
				result := svc.lifecycle.ReloadSubtitle(operatorContext(cmd.Context()), id, args[1])
				return reportResults(cmd, ctx, "reload", []api.ActionResult{api.FromResult(result)})
			})
		},
	}
}

func parseTopicID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid topic id %q", value)
	}
	return id, nil
}

func parseTopicIDs(values []string) ([]int64, error) {
	ids := make([]int64, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			id, err := parseTopicID(part)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("at least one topic id is required")
	}
	return ids, nil
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}

func formatClock(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3_600_000, (ms/60_000)%60, (ms/1000)%60, ms%1000)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
