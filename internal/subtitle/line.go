package subtitle

import (
	"time"
)

// Line is a single timed cue.
type Line struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// Word is a timed token reported by the transcription provider.
type Word struct {
	Text  string        `json:"text"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Options controls cue derivation.
type Options struct {
	FrameRate float64
	WordLimit int
}

const (
	defaultFrameRate = 25.0
	defaultWordLimit = 12
)

func (o Options) normalized() Options {
	if o.FrameRate <= 0 {
		o.FrameRate = defaultFrameRate
	}
	if o.WordLimit <= 0 {
		o.WordLimit = defaultWordLimit
	}
	return o
}

func (o Options) frame() time.Duration {
	return time.Duration(float64(time.Second) / o.FrameRate)
}

// snap rounds d to the nearest frame boundary.
func snap(d time.Duration, frame time.Duration) time.Duration {
	if frame <= 0 || d <= 0 {
		if d < 0 {
			return 0
		}
		return d
	}
	frames := (d + frame/2) / frame
	return frames * frame
}

// Renumber assigns 1-based indexes in slice order.
func Renumber(lines []Line) []Line {
	for i := range lines {
		lines[i].Index = i + 1
	}
	return lines
}
