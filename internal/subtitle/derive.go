package subtitle

import (
	"strings"
	"sync"
	"time"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

var (
	tokenizerOnce sync.Once
	tokenizer     *sentences.DefaultSentenceTokenizer
	tokenizerErr  error
)

func sentenceTokenizer() (*sentences.DefaultSentenceTokenizer, error) {
	tokenizerOnce.Do(func() {
		tokenizer, tokenizerErr = english.NewSentenceTokenizer(nil)
	})
	return tokenizer, tokenizerErr
}

// SplitSentences splits text into trimmed sentences. Without a tokenizer the
// whole text is returned as one sentence.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	tok, err := sentenceTokenizer()
	if err != nil {
		return []string{text}
	}
	var out []string
	for _, s := range tok.Tokenize(text) {
		if trimmed := strings.TrimSpace(s.Text); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{text}
	}
	return out
}

// sentenceEnds marks which words close a sentence.
func sentenceEnds(words []Word) []bool {
	ends := make([]bool, len(words))
	if len(words) == 0 {
		return ends
	}
	ends[len(words)-1] = true

	var b strings.Builder
	wordEnd := make([]int, len(words))
	for i, w := range words {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strings.TrimSpace(w.Text))
		wordEnd[i] = b.Len()
	}
	text := b.String()

	tok, err := sentenceTokenizer()
	if err != nil {
		for i, w := range words {
			ends[i] = ends[i] || endsWithTerminal(w.Text)
		}
		return ends
	}
	cursor := 0
	for _, s := range tok.Tokenize(text) {
		end := strings.Index(text[cursor:], strings.TrimSpace(s.Text))
		if end < 0 {
			continue
		}
		end += cursor + len(strings.TrimSpace(s.Text))
		cursor = end
		for i, we := range wordEnd {
			if we == end {
				ends[i] = true
				break
			}
		}
	}
	return ends
}

func endsWithTerminal(word string) bool {
	word = strings.TrimRight(strings.TrimSpace(word), `"')]`)
	return strings.HasSuffix(word, ".") || strings.HasSuffix(word, "?") || strings.HasSuffix(word, "!")
}

// Derive groups word segments into cues. A cue closes at a sentence boundary or
// once it holds opts.WordLimit words. Cue edges are snapped to the frame grid and
// never overlap.
func Derive(words []Word, opts Options) []Line {
	opts = opts.normalized()
	filtered := make([]Word, 0, len(words))
	for _, w := range words {
		if strings.TrimSpace(w.Text) == "" {
			continue
		}
		filtered = append(filtered, w)
	}
	if len(filtered) == 0 {
		return nil
	}

	ends := sentenceEnds(filtered)
	frame := opts.frame()
	var (
		lines   []Line
		current []Word
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		texts := make([]string, len(current))
		for i, w := range current {
			texts[i] = strings.TrimSpace(w.Text)
		}
		start := snap(current[0].Start, frame)
		end := snap(current[len(current)-1].End, frame)
		lines = appendCue(lines, start, end, strings.Join(texts, " "), frame)
		current = current[:0]
	}
	for i, w := range filtered {
		current = append(current, w)
		if ends[i] || len(current) >= opts.WordLimit {
			flush()
		}
	}
	flush()
	return Renumber(lines)
}

// FromText spreads plain text over duration, one cue per sentence chunk,
// allotting time in proportion to character count.
func FromText(text string, duration time.Duration, opts Options) []Line {
	opts = opts.normalized()
	var chunks []string
	for _, sentence := range SplitSentences(text) {
		fields := strings.Fields(sentence)
		for start := 0; start < len(fields); start += opts.WordLimit {
			end := min(start+opts.WordLimit, len(fields))
			chunks = append(chunks, strings.Join(fields[start:end], " "))
		}
	}
	if len(chunks) == 0 {
		return nil
	}
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	if duration <= 0 {
		duration = time.Duration(len(chunks)) * 2 * time.Second
	}

	frame := opts.frame()
	var (
		lines  []Line
		offset time.Duration
	)
	for _, c := range chunks {
		span := time.Duration(float64(duration) * float64(len(c)) / float64(total))
		lines = appendCue(lines, snap(offset, frame), snap(offset+span, frame), c, frame)
		offset += span
	}
	return Renumber(lines)
}

func appendCue(lines []Line, start, end time.Duration, text string, frame time.Duration) []Line {
	if n := len(lines); n > 0 && start < lines[n-1].End {
		start = lines[n-1].End
	}
	if end <= start {
		end = start + frame
	}
	return append(lines, Line{Start: start, End: end, Text: text})
}
