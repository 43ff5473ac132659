package metadata

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"video-agent/config"
	"video-agent/llm"
	"video-agent/logging"
	"video-agent/types"
)

const metadataSystemPrompt = `You are an expert YouTube SEO strategist.
Generate metadata that maximizes click-through rate and search ranking without misleading viewers.

You MUST respond with ONLY valid JSON, no markdown, no explanation, no preamble.

The JSON must have exactly these fields:
- "title": string (max 70 chars, a hook that is honest about the content)
- "description": string (2-3 short paragraphs, SEO-rich, ends with a comment question)
- "tags": array of strings (mix of broad and specific tags)`

// Generator creates publish metadata for a finished script
type Generator struct {
	llm    llm.Completer
	cfg    config.MetadataConfig
	upload config.UploadConfig
}

// New creates a new metadata Generator
func New(completer llm.Completer, cfg config.MetadataConfig, upload config.UploadConfig) *Generator {
	return &Generator{llm: completer, cfg: cfg, upload: upload}
}

type metadataJSON struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Generate asks the model for title, description and tags. When the model
// call fails or is disabled, the script's own title and description are used
// so publishing never depends on it.
func (g *Generator) Generate(ctx context.Context, script *types.ScriptResult) *types.VideoMetadata {
	logger := logging.FromContext(ctx, "metadata")

	meta := g.fallback(script)
	if !g.cfg.Enabled || g.llm == nil {
		return meta
	}

	var raw metadataJSON
	if err := llm.CompleteJSON(ctx, g.llm, metadataSystemPrompt, buildMetadataPrompt(script, g.cfg.TagsCount), &raw); err != nil {
		logger.Warn().Err(err).Msg("metadata generation failed, using script title")
		return meta
	}

	if t := strings.TrimSpace(raw.Title); t != "" {
		meta.Title = TruncateTitle(t, g.titleMax())
	}
	if d := strings.TrimSpace(raw.Description); d != "" {
		meta.Description = d
	}
	if tags := cleanTags(raw.Tags, g.cfg.TagsCount); len(tags) > 0 {
		meta.Tags = tags
	}

	logger.Info().Str("title", meta.Title).Int("tags", len(meta.Tags)).Msg("metadata ready")
	return meta
}

func (g *Generator) fallback(script *types.ScriptResult) *types.VideoMetadata {
	return &types.VideoMetadata{
		Title:       TruncateTitle(script.Title, g.titleMax()),
		Description: script.Description,
		Tags:        cleanTags(script.Tags, g.cfg.TagsCount),
		CategoryID:  g.upload.CategoryID,
		Visibility:  g.upload.Visibility,
	}
}

func (g *Generator) titleMax() int {
	if g.cfg.TitleMaxChars > 3 {
		return g.cfg.TitleMaxChars
	}
	return 100
}

func buildMetadataPrompt(script *types.ScriptResult, tags int) string {
	var sb strings.Builder
	sb.WriteString("Generate YouTube metadata for this video.\n\n")
	fmt.Fprintf(&sb, "WORKING TITLE: %s\n\n", script.Title)
	fmt.Fprintf(&sb, "SCRIPT:\n%s\n\n", truncate(script.Body, 3000))
	if tags > 0 {
		fmt.Fprintf(&sb, "Return at most %d tags.\n", tags)
	}
	sb.WriteString("Respond ONLY with valid JSON.")
	return sb.String()
}

// TruncateTitle shortens title to at most limit runes, ending in "..."
func TruncateTitle(title string, limit int) string {
	if utf8.RuneCountInString(title) <= limit {
		return title
	}
	runes := []rune(title)
	return string(runes[:limit-3]) + "..."
}

func cleanTags(tags []string, limit int) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#"))
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
