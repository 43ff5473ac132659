package subtitles

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/google/renameio/v2"

	"video-agent/types"
)

// FormatSRTTime converts seconds to HH:MM:SS,mmm.
func FormatSRTTime(seconds float64) string {
	ms := int64(math.Round(math.Abs(seconds) * 1000))
	h := ms / 3_600_000
	ms %= 3_600_000
	m := ms / 60_000
	ms %= 60_000
	s := ms / 1000
	ms %= 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// WriteSRT writes segments as numbered SRT cues
func WriteSRT(w io.Writer, segs []types.TranscriptSegment) error {
	bw := bufio.NewWriter(w)
	for i, s := range segs {
		fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n", i+1, FormatSRTTime(s.Start), FormatSRTTime(s.End), strings.TrimSpace(s.Text))
	}
	return bw.Flush()
}

// SaveSRT atomically writes transcript segments to path
func SaveSRT(path string, t *types.Transcript) error {
	var sb strings.Builder
	if err := WriteSRT(&sb, t.Segments); err != nil {
		return err
	}
	return renameio.WriteFile(path, []byte(sb.String()), 0o644)
}

// ValidateSRT checks that the SRT file holds at least one cue
func ValidateSRT(srtFile string) error {
	f, err := os.Open(srtFile)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineCount := 0
	for scanner.Scan() {
		lineCount++
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if lineCount < 3 {
		return fmt.Errorf("SRT file appears empty or malformed (%d lines)", lineCount)
	}
	return nil
}
