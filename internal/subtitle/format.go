package subtitle

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Parse decodes SRT or WebVTT content, choosing by file extension and falling
// back to sniffing the WEBVTT header.
func Parse(name string, data []byte) ([]Line, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".vtt":
		return ParseVTT(data)
	case ".srt":
		return ParseSRT(data)
	}
	if bytes.HasPrefix(bytes.TrimPrefix(bytes.TrimSpace(data), []byte("\uFEFF")), []byte("WEBVTT")) {
		return ParseVTT(data)
	}
	return ParseSRT(data)
}

// ParseSRT decodes SubRip content.
func ParseSRT(data []byte) ([]Line, error) {
	return parseCues(data, false)
}

// ParseVTT decodes WebVTT content. NOTE, STYLE, and REGION blocks are skipped.
func ParseVTT(data []byte) ([]Line, error) {
	return parseCues(data, true)
}

func parseCues(data []byte, vtt bool) ([]Line, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimPrefix(text, "\uFEFF")
	var lines []Line
	for blockNum, block := range strings.Split(strings.TrimSpace(text), "\n\n") {
		rows := strings.Split(strings.Trim(block, "\n"), "\n")
		if len(rows) == 0 || strings.TrimSpace(rows[0]) == "" {
			continue
		}
		if vtt && blockNum == 0 && strings.HasPrefix(rows[0], "WEBVTT") {
			continue
		}
		if vtt && (strings.HasPrefix(rows[0], "NOTE") || rows[0] == "STYLE" || rows[0] == "REGION") {
			continue
		}
		timing := -1
		for i, row := range rows {
			if strings.Contains(row, "-->") {
				timing = i
				break
			}
		}
		if timing < 0 {
			return nil, fmt.Errorf("cue %d: missing timing line", blockNum+1)
		}
		parts := strings.SplitN(rows[timing], "-->", 2)
		start, err := parseTimestamp(parts[0])
		if err != nil {
			return nil, fmt.Errorf("cue %d: %w", blockNum+1, err)
		}
		endField := strings.Fields(parts[1])
		if len(endField) == 0 {
			return nil, fmt.Errorf("cue %d: missing end timestamp", blockNum+1)
		}
		end, err := parseTimestamp(endField[0])
		if err != nil {
			return nil, fmt.Errorf("cue %d: %w", blockNum+1, err)
		}
		if end < start {
			return nil, fmt.Errorf("cue %d: end %s precedes start %s", blockNum+1, end, start)
		}
		body := strings.TrimSpace(strings.Join(rows[timing+1:], "\n"))
		lines = append(lines, Line{Start: start, End: end, Text: body})
	}
	return Renumber(lines), nil
}

// parseTimestamp accepts HH:MM:SS,mmm, HH:MM:SS.mmm, and MM:SS.mmm.
func parseTimestamp(value string) (time.Duration, error) {
	value = strings.TrimSpace(strings.ReplaceAll(value, ",", "."))
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	clock, fraction, _ := strings.Cut(value, ".")
	parts := strings.Split(clock, ":")
	if len(parts) == 2 {
		parts = append([]string{"0"}, parts...)
	}
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", value)
		}
		nums[i] = n
	}
	millis := 0
	if fraction != "" {
		for len(fraction) < 3 {
			fraction += "0"
		}
		n, err := strconv.Atoi(fraction[:3])
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", value)
		}
		millis = n
	}
	return time.Duration(nums[0])*time.Hour +
		time.Duration(nums[1])*time.Minute +
		time.Duration(nums[2])*time.Second +
		time.Duration(millis)*time.Millisecond, nil
}

func formatTimestamp(d time.Duration, sep byte) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	m := (ms / 60_000) % 60
	s := (ms / 1000) % 60
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms%1000)
}

// RenderSRT encodes lines as SubRip, renumbering cues from 1.
func RenderSRT(lines []Line) []byte {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	for i, line := range lines {
		if i > 0 {
			w.WriteByte('\n')
		}
		fmt.Fprintf(w, "%d\n%s --> %s\n%s\n", i+1, formatTimestamp(line.Start, ','), formatTimestamp(line.End, ','), line.Text)
	}
	_ = w.Flush()
	return buf.Bytes()
}

// RenderVTT encodes lines as WebVTT.
func RenderVTT(lines []Line) []byte {
	var buf bytes.Buffer
	buf.WriteString("WEBVTT\n")
	for _, line := range lines {
		fmt.Fprintf(&buf, "\n%s --> %s\n%s\n", formatTimestamp(line.Start, '.'), formatTimestamp(line.End, '.'), line.Text)
	}
	return buf.Bytes()
}
