// Package script turns a topic into a multi-speaker dialogue using two
// sequential chat completions: an overview pass (title, tags, briefing)
// followed by a script pass that must yield a JSON object of dialogue lines.
package script

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nadzzz/podcastd/internal/llm"
	"github.com/nadzzz/podcastd/internal/podcast"
	"github.com/nadzzz/podcastd/internal/tts"
)

// Defaults for optional prompt directives.
const (
	DefaultOutputLanguage = "Make sure the input language is set as the output language."
	DefaultDuration       = "5-6 minutes"
	DefaultTurnPattern    = "random"
)

const (
	customBegin = "```custom-begin"
	customEnd   = "```custom-end"
)

var (
	//go:embed prompts/overview.txt
	overviewPrompt string

	//go:embed prompts/podscript.txt
	scriptPrompt string
)

// ErrUnknownVoice is returned when a roster entry names a voice the provider does not list.
var ErrUnknownVoice = errors.New("speaker voice not found in provider roster")

// Request is the input of one script generation.
type Request struct {
	// Input is the raw topic text. It may carry a custom instruction block
	// fenced by ```custom-begin and ```custom-end.
	Input string

	Speakers []podcast.Speaker
	Voices   []tts.Voice

	OutputLanguage string
	Duration       string
	TurnPattern    string
}

// Output is a generated script together with its overview metadata.
type Output struct {
	Title    string
	Tags     string
	Overview string
	Script   podcast.Script
}

// Pipeline runs the overview and script passes against a Completer.
type Pipeline struct {
	llm llm.Completer
}

// New creates a Pipeline.
func New(c llm.Completer) *Pipeline {
	return &Pipeline{llm: c}
}

// Generate produces the overview and the dialogue script for req.
func (p *Pipeline) Generate(ctx context.Context, req Request) (*Output, error) {
	roster, err := RosterText(req.Speakers, req.Voices)
	if err != nil {
		return nil, err
	}
	custom, topic := SplitCustom(req.Input)

	lang := orDefault(req.OutputLanguage, DefaultOutputLanguage)

	start := time.Now()
	raw, err := p.llm.Complete(ctx, strings.ReplaceAll(overviewPrompt, "{{outlang}}", lang), topic)
	if err != nil {
		return nil, fmt.Errorf("generating overview: %w", err)
	}
	title, tags, overview := ParseOverview(raw)
	slog.Info("overview generated", "title", title, "tags", tags, "chars", len(overview), "duration", time.Since(start))

	system := renderScriptPrompt(roster, custom, len(req.Speakers), req)

	start = time.Now()
	raw, err = p.llm.Complete(ctx, system, overview)
	if err != nil {
		return nil, fmt.Errorf("generating script: %w", err)
	}
	s, err := Extract(raw)
	if err != nil {
		return nil, err
	}
	for i := range s.Lines {
		s.Lines[i].Dialog = Sanitize(s.Lines[i].Dialog)
	}
	slog.Info("script generated", "lines", len(s.Lines), "duration", time.Since(start))

	return &Output{Title: title, Tags: tags, Overview: overview, Script: *s}, nil
}

func renderScriptPrompt(roster, custom string, speakers int, req Request) string {
	body := strings.NewReplacer(
		"{{numSpeakers}}", strconv.Itoa(speakers),
		"{{turnPattern}}", orDefault(req.TurnPattern, DefaultTurnPattern),
		"{{usetime}}", orDefault(req.Duration, DefaultDuration),
		"{{outlang}}", orDefault(req.OutputLanguage, DefaultOutputLanguage),
	).Replace(scriptPrompt)
	return roster + "\n\n" + custom + "\n\n" + body
}

// SplitCustom separates a fenced custom instruction block from the topic.
// Text before the block is dropped along with it.
func SplitCustom(input string) (custom, topic string) {
	begin := strings.Index(input, customBegin)
	if begin < 0 {
		return "", input
	}
	rest := input[begin+len(customBegin):]
	end := strings.Index(rest, customEnd)
	if end < 0 {
		return "", input
	}
	return strings.TrimSpace(rest[:end]), strings.TrimSpace(rest[end+len(customEnd):])
}

// ParseOverview splits the overview reply into title (first line), tags
// (first non-empty line among the next three) and the remaining body.
func ParseOverview(text string) (title, tags, overview string) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	title = strings.TrimSpace(lines[0])

	for i := 1; i < len(lines) && i < 4; i++ {
		if candidate := strings.TrimSpace(lines[i]); candidate != "" {
			return title, candidate, strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
		}
	}
	if len(lines) > 1 {
		overview = strings.TrimSpace(strings.Join(lines[1:], "\n"))
	}
	return title, "", overview
}

// RosterText introduces each speaker by id, display name and role.
func RosterText(speakers []podcast.Speaker, voices []tts.Voice) (string, error) {
	byCode := make(map[string]tts.Voice, len(voices))
	for _, v := range voices {
		if v.Code != "" {
			byCode[v.Code] = v
		}
	}

	parts := make([]string, 0, len(speakers))
	for id, sp := range speakers {
		v, ok := byCode[sp.Code]
		if !ok || v.DisplayName() == "" {
			return "", fmt.Errorf("%w: speaker_id=%d code %q", ErrUnknownVoice, id, sp.Code)
		}
		clause := fmt.Sprintf("speaker_id=%d is named %s", id, v.DisplayName())
		if sp.Role != "" {
			clause += ", a " + sp.Role
		}
		parts = append(parts, clause)
	}
	return strings.Join(parts, ". ") + ".", nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
