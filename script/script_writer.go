package script

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"video-agent/config"
	"video-agent/llm"
	"video-agent/logging"
	"video-agent/types"
)

const systemPrompt = `You are a professional video script writer for faceless narrated videos.

Write only the words the narrator speaks. No scene headings, no camera directions,
no speaker labels, no markdown. Open with a hook in the first sentence and end
with a question to the viewer.`

// Writer generates narration scripts with an LLM
type Writer struct {
	llm llm.Completer
	cfg config.ScriptConfig
}

// New creates a new script Writer
func New(completer llm.Completer, cfg config.ScriptConfig) *Writer {
	return &Writer{llm: completer, cfg: cfg}
}

// Generate writes a script of roughly minutes length. Title and description
// are derived from the topic; publish metadata refines them later.
func (w *Writer) Generate(ctx context.Context, topic, formatType string, minutes int) (*types.ScriptResult, error) {
	logger := logging.FromContext(ctx, "script")

	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, errors.New("script: empty topic")
	}
	if formatType == "" {
		formatType = w.cfg.DefaultFormat
	}

	logger.Info().Str("topic", topic).Str("format", formatType).Int("minutes", minutes).Msg("generating script")

	text, err := w.llm.Complete(ctx, systemPrompt, buildUserPrompt(topic, formatType, minutes, w.wpm()))
	if err != nil {
		return nil, fmt.Errorf("generate script: %w", err)
	}

	body := CleanNarration(text)
	if body == "" {
		return nil, errors.New("script: model returned no narration")
	}

	result := &types.ScriptResult{
		Title:       topic,
		Description: fmt.Sprintf("%s video about %s", formatType, topic),
		Body:        body,
	}

	logger.Info().
		Int("words", len(strings.Fields(body))).
		Float64("estimated_sec", EstimateSeconds(body, w.wpm())).
		Msg("script ready")
	return result, nil
}

func (w *Writer) wpm() int {
	if w.cfg.WordsPerMinute > 0 {
		return w.cfg.WordsPerMinute
	}
	return 150
}

func buildUserPrompt(topic, formatType string, minutes, wpm int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write a %d minute %s video script about %s\n\n", minutes, formatType, topic)
	fmt.Fprintf(&sb, "Target about %d words (spoken at ~%d words per minute).\n", minutes*wpm, wpm)
	sb.WriteString("Respond with the narration text only.")
	return sb.String()
}

// EstimateSeconds estimates the spoken duration of text
func EstimateSeconds(text string, wordsPerMinute int) float64 {
	if wordsPerMinute <= 0 {
		return 0
	}
	return float64(len(strings.Fields(text))) / float64(wordsPerMinute) * 60.0
}

var (
	bracketed  = regexp.MustCompile(`\[[^\]]*\]`)
	speakerTag = regexp.MustCompile(`^(?i)(narrator|host|voice ?over|vo)\s*:\s*`)
	heading    = regexp.MustCompile(`^(#+\s.*|\*\*[^*]+\*\*:?)$`)
)

// CleanNarration strips stage directions, speaker labels and markdown that
// models add despite instructions, leaving only speakable text.
func CleanNarration(s string) string {
	var paragraphs []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(bracketed.ReplaceAllString(line, ""))
		if line == "" || heading.MatchString(line) {
			continue
		}
		line = speakerTag.ReplaceAllString(line, "")
		line = strings.NewReplacer("**", "", "__", "", "*", "").Replace(line)
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			paragraphs = append(paragraphs, line)
		}
	}
	return strings.Join(paragraphs, "\n\n")
}
