// Package visuals derives image prompts from the narration and renders them
// to still images.
package visuals

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"video-agent/llm"
	"video-agent/logging"
)

const promptSystem = "Create detailed image generation prompts based on this transcript. " +
	"Write one prompt per line, in story order, with no numbering, titles or commentary. " +
	"Describe the scene, subject, lighting and composition of a vertical 9:16 frame."

// PromptDeriver asks an LLM for one image prompt per scene
type PromptDeriver struct {
	llm   llm.Completer
	style string
}

// NewPromptDeriver creates a deriver. style is appended to every prompt.
func NewPromptDeriver(completer llm.Completer, style string) *PromptDeriver {
	return &PromptDeriver{llm: completer, style: style}
}

// DerivePrompts returns at most count prompts for transcript, in order
func (d *PromptDeriver) DerivePrompts(ctx context.Context, transcript string, count int) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("invalid prompt count %d", count)
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, errors.New("empty transcript")
	}

	user := fmt.Sprintf("Create %d detailed image prompts for this transcript: %s", count, transcript)
	text, err := d.llm.Complete(ctx, promptSystem, user)
	if err != nil {
		return nil, fmt.Errorf("derive prompts: %w", err)
	}

	prompts := ParsePromptList(text)
	if len(prompts) == 0 {
		return nil, errors.New("model returned no image prompts")
	}
	if len(prompts) > count {
		prompts = prompts[:count]
	}
	for i := range prompts {
		prompts[i] = Enhance(prompts[i], d.style)
	}

	logging.FromContext(ctx, "visuals").Info().Int("requested", count).Int("prompts", len(prompts)).Msg("image prompts ready")
	return prompts, nil
}

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]\s*|\d+\s*[.):-]\s*|(?i:prompt|scene|image)\s*\d*\s*[:.-]\s*)+`)

// ParsePromptList splits model output into one prompt per non-empty line,
// dropping list markers, labels and surrounding quotes.
func ParsePromptList(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.ReplaceAll(line, "**", "")
		line = listMarker.ReplaceAllString(line, "")
		line = strings.Trim(strings.TrimSpace(line), `"'`)
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// Enhance appends style modifiers to a base prompt
func Enhance(base, style string) string {
	base = strings.TrimRight(strings.TrimSpace(base), ".,; ")
	if style == "" {
		return base
	}
	return base + ", " + style
}
