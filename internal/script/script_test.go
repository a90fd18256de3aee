package script

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/podcastd/internal/podcast"
	"github.com/nadzzz/podcastd/internal/tts"
)

type completion struct {
	system, user string
}

// stubCompleter returns canned replies in order and records the prompts.
type stubCompleter struct {
	replies []string
	err     error
	calls   []completion
}

func (s *stubCompleter) Complete(_ context.Context, system, user string) (string, error) {
	s.calls = append(s.calls, completion{system, user})
	if s.err != nil {
		return "", s.err
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

var testVoices = []tts.Voice{
	{Code: "v-ann", Name: "Ann"},
	{Code: "v-bob", Name: "Robert", UsedName: "Bob"},
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	llm := &stubCompleter{replies: []string{
		"Title\nTagA,TagB\nOverview body",
		`Sure! Here is the script:
{"dialogue_lines":[{"speaker_id":0,"dialog":"Hello 👋"},{"speaker_id":1,"dialog":"Hi there"}]}
Enjoy.`,
	}}
	p := New(llm)

	out, err := p.Generate(context.Background(), Request{
		Input:    "```custom-begin\nMention the sponsor.\n```custom-end\ntopic X",
		Speakers: []podcast.Speaker{{Code: "v-ann", Role: "host"}, {Code: "v-bob"}},
		Voices:   testVoices,
		Duration: "3 minutes",
	})
	require.NoError(t, err)

	assert.Equal(t, "Title", out.Title)
	assert.Equal(t, "TagA,TagB", out.Tags)
	assert.Equal(t, "Overview body", out.Overview)
	assert.Equal(t, []podcast.DialogueLine{
		{SpeakerID: 0, Dialog: "Hello "},
		{SpeakerID: 1, Dialog: "Hi there"},
	}, out.Script.Lines)

	require.Len(t, llm.calls, 2)
	assert.Equal(t, "topic X", llm.calls[0].user)
	assert.Contains(t, llm.calls[0].system, DefaultOutputLanguage)
	assert.NotContains(t, llm.calls[0].system, "{{")

	system := llm.calls[1].system
	assert.Equal(t, "Overview body", llm.calls[1].user)
	assert.True(t, strings.HasPrefix(system, "speaker_id=0 is named Ann, a host. speaker_id=1 is named Bob.\n\nMention the sponsor.\n\n"))
	assert.Contains(t, system, "2 speakers")
	assert.Contains(t, system, "3 minutes")
	assert.Contains(t, system, "random")
	assert.NotContains(t, system, "{{")
}

func TestGenerate_Errors(t *testing.T) {
	t.Parallel()

	speakers := []podcast.Speaker{{Code: "v-ann"}}

	_, err := New(&stubCompleter{}).Generate(context.Background(), Request{
		Speakers: []podcast.Speaker{{Code: "nope"}},
		Voices:   testVoices,
	})
	assert.ErrorIs(t, err, ErrUnknownVoice)

	boom := errors.New("upstream down")
	_, err = New(&stubCompleter{err: boom}).Generate(context.Background(), Request{Speakers: speakers, Voices: testVoices})
	assert.ErrorIs(t, err, boom)

	_, err = New(&stubCompleter{replies: []string{"T\nx\nbody", "I cannot help with that."}}).
		Generate(context.Background(), Request{Speakers: speakers, Voices: testVoices})
	assert.ErrorIs(t, err, ErrNoScript)

	_, err = New(&stubCompleter{replies: []string{"T\nx\nbody", `{"dialogue_lines": []}`}}).
		Generate(context.Background(), Request{Speakers: speakers, Voices: testVoices})
	assert.ErrorIs(t, err, ErrEmptyScript)
}

func TestParseOverview(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                  string
		in                    string
		title, tags, overview string
	}{
		{"tags on second line", "Title\nA,B\nBody one\nBody two", "Title", "A,B", "Body one\nBody two"},
		{"blank lines before tags", "Title\n\n\nA,B\nBody", "Title", "A,B", "Body"},
		{"no tags within window", "Title\n\n\n\nBody", "Title", "", "Body"},
		{"title only", "  Title  \n", "Title", "", ""},
		{"surrounding whitespace", "\n\nTitle\nTags\n\nBody\n", "Title", "Tags", "Body"},
	}
	for _, tt := range tests {
		title, tags, overview := ParseOverview(tt.in)
		assert.Equal(t, tt.title, title, tt.name)
		assert.Equal(t, tt.tags, tags, tt.name)
		assert.Equal(t, tt.overview, overview, tt.name)
	}
}

func TestSplitCustom(t *testing.T) {
	t.Parallel()

	custom, topic := SplitCustom("intro\n```custom-begin\n be brief \n```custom-end\n the topic ")
	assert.Equal(t, "be brief", custom)
	assert.Equal(t, "the topic", topic)

	custom, topic = SplitCustom("```custom-begin unterminated")
	assert.Empty(t, custom)
	assert.Equal(t, "```custom-begin unterminated", topic)

	custom, topic = SplitCustom("plain")
	assert.Empty(t, custom)
	assert.Equal(t, "plain", topic)
}

func TestRosterText(t *testing.T) {
	t.Parallel()

	text, err := RosterText([]podcast.Speaker{{Code: "v-bob", Role: "guest"}}, testVoices)
	require.NoError(t, err)
	assert.Equal(t, "speaker_id=0 is named Bob, a guest.", text)

	_, err = RosterText([]podcast.Speaker{{Code: "v-ann"}, {Code: "missing"}}, testVoices)
	require.ErrorIs(t, err, ErrUnknownVoice)
	assert.Contains(t, err.Error(), "speaker_id=1")
}

func TestExtract(t *testing.T) {
	t.Parallel()

	t.Run("leading and trailing prose", func(t *testing.T) {
		s, err := Extract(`Here you go: {"dialogue_lines":[{"speaker_id":1,"dialog":"x"}]} -- done {"dialogue_lines":[]}`)
		require.NoError(t, err)
		assert.Equal(t, []podcast.DialogueLine{{SpeakerID: 1, Dialog: "x"}}, s.Lines)
	})

	t.Run("skips objects without the key", func(t *testing.T) {
		s, err := Extract(`{"note":"draft"} then {"dialogue_lines":[{"speaker_id":0,"dialog":"y"}]}`)
		require.NoError(t, err)
		assert.Len(t, s.Lines, 1)
	})

	t.Run("skips broken json", func(t *testing.T) {
		s, err := Extract("```json\n{\"dialogue_lines\": [oops\n```\n{\"dialogue_lines\":[{\"speaker_id\":0,\"dialog\":\"z\"}]}")
		require.NoError(t, err)
		assert.Equal(t, "z", s.Lines[0].Dialog)
	})

	t.Run("legacy key", func(t *testing.T) {
		s, err := Extract(`{"podcast_transcripts":[{"speaker_id":0,"dialog":"old"}]}`)
		require.NoError(t, err)
		assert.Equal(t, "old", s.Lines[0].Dialog)
	})

	t.Run("no object", func(t *testing.T) {
		_, err := Extract("no json at all")
		assert.ErrorIs(t, err, ErrNoScript)
		_, err = Extract(`{"other": 1}`)
		assert.ErrorIs(t, err, ErrNoScript)
	})

	t.Run("empty lines", func(t *testing.T) {
		_, err := Extract(`{"dialogue_lines": []}`)
		assert.ErrorIs(t, err, ErrEmptyScript)
	})
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Hello, world! Its 2024. ", Sanitize("Hello, world! It's 2024. 🎉"))
	assert.Equal(t, "你好，世界。真的吗？", Sanitize("你好，世界。「真的吗？」"))
	assert.Equal(t, "a-b_c", Sanitize("a-b_c*#@"))
}
