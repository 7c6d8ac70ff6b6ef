/*
Copyright 2025 DuoTale Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package duotale

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/duotale/duotale/model"
)

// fakeChat is a scripted ChatClient. respond gets the prompt and the 0-based
// call index; calls records every prompt in arrival order. Safe for the
// translator's concurrent paragraph fan-out.
type fakeChat struct {
	mu      sync.Mutex
	calls   []Prompt
	respond func(prompt Prompt, call int) (string, error)
}

func (f *fakeChat) Complete(_ context.Context, prompt Prompt) (string, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, prompt)
	f.mu.Unlock()
	return f.respond(prompt, call)
}

func (f *fakeChat) Raw(_ context.Context, _ ChatRequest) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (f *fakeChat) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// translateAligned is the scripted translator response: one placeholder
// sentence per source sentence, so alignment checks pass and nothing looks
// like untranslated carryover.
func translateAligned(paragraph string) string {
	sentences := model.SplitSentences(paragraph)
	out := make([]string, len(sentences))
	for i := range sentences {
		out[i] = fmt.Sprintf("Übersetzter Satz Nummer %d.", i+1)
	}
	return strings.Join(out, " ")
}

func TestParseLessonText(t *testing.T) {
	text, err := ParseLessonText("The Lighthouse\n\nMira walked to the pier. The sea was calm.\n\nBy night the wind turned")
	assert.NoError(t, err)
	assert.Equal(t, "The Lighthouse", text.Title)
	assert.Equal(t, 2, len(text.Paragraphs()))
	assert.Equal(t, "By night the wind turned.", text.Paragraphs()[1], "paragraphs get terminal punctuation")
}

func TestParseLessonText_CleansDecoratedTitles(t *testing.T) {
	cases := map[string]string{
		"# The Lighthouse\n\nBody.":      "The Lighthouse",
		"\"The Lighthouse\"\n\nBody.":    "The Lighthouse",
		"Title: The Lighthouse\n\nBody.": "The Lighthouse",
		"“The Lighthouse”\n\nBody.":      "The Lighthouse",
		"##  The Lighthouse  \n\nBody.":  "The Lighthouse",
	}
	for raw, want := range cases {
		text, err := ParseLessonText(raw)
		assert.NoError(t, err)
		assert.Equal(t, want, text.Title)
	}
}

func TestParseLessonText_RejectsEmptyAndBodylessStories(t *testing.T) {
	_, err := ParseLessonText("   \n\n  ")
	assert.Error(t, err)

	_, err = ParseLessonText("A Title Without A Story")
	assert.Error(t, err)
}

func TestSplitIntoParts(t *testing.T) {
	paragraphs := []string{"One.", "Two.", "Three.", "Four.", "Five.", "Six.", "Seven."}
	body := model.JoinParagraphs(paragraphs)

	parts := SplitIntoParts(body, 3)
	assert.Equal(t, 3, len(parts))
	assert.Equal(t, "One.\n\nTwo.", parts[0])
	assert.Equal(t, "Three.\n\nFour.", parts[1])
	assert.Equal(t, "Five.\n\nSix.\n\nSeven.", parts[2], "the final part absorbs the remainder")

	// Rejoining the parts reconstructs the original body.
	assert.Equal(t, body, model.JoinParagraphs(parts))
}

func TestSplitIntoParts_CapsAtParagraphCount(t *testing.T) {
	body := "One.\n\nTwo."
	parts := SplitIntoParts(body, 5)
	assert.Equal(t, 2, len(parts))
	for _, part := range parts {
		assert.NotEmpty(t, part)
	}

	assert.Nil(t, SplitIntoParts("", 3))
}

func TestGenerate_ParsesCompletion(t *testing.T) {
	chat := &fakeChat{respond: func(_ Prompt, _ int) (string, error) {
		return "Der Leuchtturm\n\nMira ging zum Hafen. Sie sah das Meer.\n\nDer Wind wurde stark", nil
	}}
	g := NewNarrativeGenerator(chat)

	text, err := g.Generate(context.Background(), model.Brief{Text: "brief"})
	assert.NoError(t, err)
	assert.Equal(t, "Der Leuchtturm", text.Title)
	assert.Equal(t, "Der Wind wurde stark.", text.Paragraphs()[1])

	assert.Equal(t, 1, chat.callCount())
	assert.Equal(t, narrativeTemperature, chat.calls[0].Temperature)
	assert.Equal(t, "brief", chat.calls[0].User)
}

func TestGenerate_PropagatesUpstreamFailure(t *testing.T) {
	chat := &fakeChat{respond: func(_ Prompt, _ int) (string, error) {
		return "", errors.New("provider down")
	}}
	g := NewNarrativeGenerator(chat)

	_, err := g.Generate(context.Background(), model.Brief{Text: "brief"})
	assert.Error(t, err)
}

func TestGenerateIteratively_ChainsPassages(t *testing.T) {
	chat := &fakeChat{respond: func(prompt Prompt, call int) (string, error) {
		switch call {
		case 0:
			return "Die Reise\n\nAnfang eins. Anfang zwei.", nil
		default:
			if strings.Contains(prompt.System, "final paragraphs") {
				return "Das Ende kam schnell.", nil
			}
			return fmt.Sprintf("Fortsetzung Nummer %d.", call), nil
		}
	}}
	g := NewNarrativeGenerator(chat)

	story, err := g.GenerateIteratively(context.Background(), model.Brief{Text: "brief"}, 400, 4)
	assert.NoError(t, err)
	assert.Equal(t, "Die Reise", story.Title)

	// One opening, partCount-2 extensions, one finalization.
	assert.Equal(t, 4, chat.callCount())
	assert.Contains(t, chat.calls[1].System, "continuing a story")
	assert.Contains(t, chat.calls[2].System, "continuing a story")
	assert.Contains(t, chat.calls[3].System, "final paragraphs")

	// Every continuation call sees the full story so far.
	assert.Contains(t, chat.calls[3].User, "Fortsetzung Nummer 2.")

	paragraphs := story.Paragraphs()
	assert.Equal(t, 4, len(paragraphs))
	assert.Equal(t, "Das Ende kam schnell.", paragraphs[len(paragraphs)-1])
}

func TestGenerateIteratively_OpeningTargetsPassageShare(t *testing.T) {
	chat := &fakeChat{respond: func(prompt Prompt, call int) (string, error) {
		if call == 0 {
			return "Die Reise\n\nAnfang eins.", nil
		}
		if strings.Contains(prompt.System, "final paragraphs") {
			return "Das Ende.", nil
		}
		return "Weiter.", nil
	}}
	g := NewNarrativeGenerator(chat)

	brief := ElevatePrompt(model.BriefRequest{
		Topic:          "a lighthouse keeper",
		TargetLanguage: "German",
		WordCount:      900,
		Level:          model.LevelB1,
	})
	assert.Contains(t, brief.Text, "about 900 words")

	_, err := g.GenerateIteratively(context.Background(), brief, 900, 3)
	assert.NoError(t, err)
	assert.Equal(t, 3, chat.callCount())

	// The opening is prompted at its share of the total, not the whole
	// story length.
	assert.Contains(t, chat.calls[0].User, "about 300 words")
	assert.NotContains(t, chat.calls[0].User, "about 900 words")
	assert.Contains(t, chat.calls[1].User, "about 300 words")
}

func TestGenerateIteratively_SinglePartIsOneShot(t *testing.T) {
	chat := &fakeChat{respond: func(_ Prompt, _ int) (string, error) {
		return "Titel\n\nKurze Geschichte.", nil
	}}
	g := NewNarrativeGenerator(chat)

	story, err := g.GenerateIteratively(context.Background(), model.Brief{Text: "brief"}, 100, 1)
	assert.NoError(t, err)
	assert.Equal(t, "Titel", story.Title)
	assert.Equal(t, 1, chat.callCount())
}

func TestGenerateIteratively_RejectsEmptyContinuation(t *testing.T) {
	chat := &fakeChat{respond: func(_ Prompt, call int) (string, error) {
		if call == 0 {
			return "Titel\n\nEin Anfang.", nil
		}
		return "   ", nil
	}}
	g := NewNarrativeGenerator(chat)

	_, err := g.GenerateIteratively(context.Background(), model.Brief{Text: "brief"}, 300, 3)
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	chat := &fakeChat{respond: func(prompt Prompt, _ int) (string, error) {
		assert.Equal(t, summaryTemperature, prompt.Temperature)
		return "  Mira fand den Schlüssel.  ", nil
	}}
	g := NewNarrativeGenerator(chat)

	summary, err := g.Summarize(context.Background(), model.LessonText{Title: "Titel", Body: "Körper."})
	assert.NoError(t, err)
	assert.Equal(t, "Mira fand den Schlüssel.", summary)
}
