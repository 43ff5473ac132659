package render

import (
	"fmt"
	"sort"
	"strings"

	"video-agent/types"
)

// Cue is a caption shown on the half-open interval [Start, End).
type Cue struct {
	Start float64
	End   float64
	Text  string
}

// Visible reports whether the cue is on screen at t.
func (c Cue) Visible(t float64) bool {
	return t >= c.Start && t < c.End
}

// CaptionTrack is an ordered list of cues. Overlapping cues keep list order,
// so later cues are drawn on top.
type CaptionTrack struct {
	cues []Cue
}

// NewCaptionTrack builds a track from transcript segments, dropping empty or
// inverted segments and clipping cues to limit seconds when limit > 0.
func NewCaptionTrack(segments []types.TranscriptSegment, limit float64) CaptionTrack {
	cues := make([]Cue, 0, len(segments))
	for _, s := range segments {
		text := strings.TrimSpace(s.Text)
		if text == "" || s.End <= s.Start {
			continue
		}
		end := s.End
		if limit > 0 {
			if s.Start >= limit {
				continue
			}
			if end > limit {
				end = limit
			}
		}
		cues = append(cues, Cue{Start: s.Start, End: end, Text: text})
	}
	sort.SliceStable(cues, func(i, j int) bool { return cues[i].Start < cues[j].Start })
	return CaptionTrack{cues: cues}
}

// Cues returns the cues in draw order.
func (t CaptionTrack) Cues() []Cue {
	return t.cues
}

// ActiveAt returns the cues visible at t in draw order.
func (t CaptionTrack) ActiveAt(at float64) []Cue {
	var out []Cue
	for _, c := range t.cues {
		if c.Start > at {
			break
		}
		if c.Visible(at) {
			out = append(out, c)
		}
	}
	return out
}

// Wrap breaks text into lines of at most maxChars runes, splitting on spaces.
// A single word longer than maxChars gets its own line.
func Wrap(text string, maxChars int) []string {
	words := strings.Fields(text)
	if maxChars <= 0 || len(words) == 0 {
		return []string{strings.Join(words, " ")}
	}
	var lines []string
	var cur strings.Builder
	curLen := 0
	for _, w := range words {
		wl := len([]rune(w))
		if curLen > 0 && curLen+1+wl > maxChars {
			lines = append(lines, cur.String())
			cur.Reset()
			curLen = 0
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(w)
		curLen += wl
	}
	if curLen > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}

// CharsPerLine estimates how many glyphs fit in ratio*width at fontSize.
func CharsPerLine(width int, ratio float64, fontSize int) int {
	if fontSize <= 0 {
		return 0
	}
	// average glyph advance for sans fonts is about 0.55em
	n := int(float64(width) * ratio / (float64(fontSize) * 0.55))
	if n < 8 {
		n = 8
	}
	return n
}

// enableExpr is the drawtext timeline expression for [start, end).
func enableExpr(c Cue) string {
	return fmt.Sprintf("gte(t,%.3f)*lt(t,%.3f)", c.Start, c.End)
}

// drawtext renders one cue from a text file at bottom centre with a box.
func drawtext(c Cue, textFile string, style types.CaptionStyle) string {
	opts := []string{
		"textfile='" + escapeFilterPath(textFile) + "'",
	}
	if style.FontFile != "" {
		opts = append(opts, "fontfile='"+escapeFilterPath(style.FontFile)+"'")
	}
	opts = append(opts,
		fmt.Sprintf("fontsize=%d", style.FontSize),
		"fontcolor="+style.FontColor,
		"box=1",
		"boxcolor="+style.BoxColor,
		fmt.Sprintf("boxborderw=%d", style.BoxBorder),
		"line_spacing=8",
		"x=(w-text_w)/2",
		fmt.Sprintf("y=h-text_h-%d", style.MarginBottom),
		"enable='"+enableExpr(c)+"'",
	)
	return "drawtext=" + strings.Join(opts, ":")
}

// escapeFilterPath escapes a path for use inside a quoted filter option.
func escapeFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "'\\''")
	return path
}
