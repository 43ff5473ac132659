package metadata

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"video-agent/config"
	"video-agent/types"
)

type fakeLLM struct {
	reply string
	err   error
}

func (f fakeLLM) Complete(context.Context, string, string) (string, error) {
	return f.reply, f.err
}

var script = &types.ScriptResult{
	Title:       "owls",
	Description: "educational video about owls",
	Body:        "Owls can rotate their heads.",
}

func TestGenerateUsesModelOutput(t *testing.T) {
	reply := "```json\n" + `{"title":"Why Owls Turn Their Heads","description":"They cannot move their eyes.","tags":["owls","#birds","Owls",""," nature "]}` + "\n```"
	g := New(fakeLLM{reply: reply},
		config.MetadataConfig{Enabled: true, TitleMaxChars: 100, TagsCount: 15},
		config.UploadConfig{CategoryID: "22", Visibility: "private"})

	meta := g.Generate(context.Background(), script)
	assert.Equal(t, "Why Owls Turn Their Heads", meta.Title)
	assert.Equal(t, "They cannot move their eyes.", meta.Description)
	assert.Equal(t, []string{"owls", "birds", "nature"}, meta.Tags)
	assert.Equal(t, "22", meta.CategoryID)
	assert.Equal(t, "private", meta.Visibility)
}

func TestGenerateFallsBackToScript(t *testing.T) {
	g := New(fakeLLM{err: errors.New("down")}, config.MetadataConfig{Enabled: true}, config.UploadConfig{})
	meta := g.Generate(context.Background(), script)
	assert.Equal(t, "owls", meta.Title)
	assert.Equal(t, "educational video about owls", meta.Description)

	g = New(fakeLLM{reply: `{"title":"ignored"}`}, config.MetadataConfig{Enabled: false}, config.UploadConfig{})
	assert.Equal(t, "owls", g.Generate(context.Background(), script).Title)
}

func TestTruncateTitle(t *testing.T) {
	long := strings.Repeat("ä", 120)
	got := TruncateTitle(long, 100)
	assert.Equal(t, 100, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, "short", TruncateTitle("short", 100))
}
