package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/nadzzz/podcastd/internal/podcast"
)

var (
	// ErrNoScript is returned when the reply holds no JSON object with dialogue lines.
	ErrNoScript = errors.New("no script object found in llm reply")

	// ErrEmptyScript is returned when the script object has no lines.
	ErrEmptyScript = errors.New("script has no dialogue lines")
)

// scriptKeys are the accepted names of the lines array, in priority order.
var scriptKeys = []string{"dialogue_lines", "podcast_transcripts"}

// Extract finds the first JSON object in raw that carries a dialogue lines
// array. Decoding is attempted at each '{' in turn, so prose before, between
// or after objects is ignored.
func Extract(raw string) (*podcast.Script, error) {
	idx := strings.IndexByte(raw, '{')
	for idx >= 0 && idx < len(raw) {
		dec := json.NewDecoder(strings.NewReader(raw[idx:]))
		var obj map[string]json.RawMessage
		if err := dec.Decode(&obj); err != nil {
			next := strings.IndexByte(raw[idx+1:], '{')
			if next < 0 {
				break
			}
			idx += 1 + next
			continue
		}

		for _, key := range scriptKeys {
			lines, ok := obj[key]
			if !ok {
				continue
			}
			var s podcast.Script
			if err := json.Unmarshal(lines, &s.Lines); err != nil {
				return nil, fmt.Errorf("%w: %q is not a list of lines: %v", ErrNoScript, key, err)
			}
			if len(s.Lines) == 0 {
				return nil, ErrEmptyScript
			}
			return &s, nil
		}

		consumed := int(dec.InputOffset())
		next := strings.IndexByte(raw[idx+consumed:], '{')
		if next < 0 {
			break
		}
		idx += consumed + next
	}
	return nil, fmt.Errorf("%w: %s", ErrNoScript, abbreviate(raw, 200))
}

// Sanitize drops characters TTS engines tend to read aloud or choke on,
// keeping letters, digits, whitespace, '-', '_' and basic sentence punctuation.
func Sanitize(dialog string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
			return r
		case strings.ContainsRune("-_,，.。?？!！", r):
			return r
		default:
			return -1
		}
	}, dialog)
}

func abbreviate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
