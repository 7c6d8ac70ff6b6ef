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
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/duotale/duotale/model"
)

const (
	// narrativeTemperature favors invention; the same stories re-requested
	// should not come out identical.
	narrativeTemperature = 0.9

	// summaryTemperature keeps part summaries factual.
	summaryTemperature = 0.2
)

const narrativeSystemPrompt = `You are a writer of short stories for language learners.
Output format, exactly:
- The first line is the bare story title. No quotes, no markdown, no "Title:" prefix.
- Then one blank line.
- Then the story body. Separate paragraphs with one blank line. Never break a line inside a paragraph.
Every sentence ends with terminal punctuation. When a sentence ends inside closing quotes or brackets, put the terminal mark before the closer: "He left." not "He left".`

const extendSystemPrompt = `You are continuing a story in progress. Output only the new paragraphs, separated by blank lines. No title, no preamble, no commentary.
Rules:
- Do not conclude the story. End at a moment that invites continuation.
- Do not repeat or paraphrase sentences that already appear in the story.
- Do not use ellipses.
- Keep the same language, register and difficulty as the story so far.`

const finalizeSystemPrompt = `You are writing the final paragraphs of a story in progress. Output only the new paragraphs, separated by blank lines. No title, no preamble, no commentary.
Rules:
- Bring the story to a conclusive, satisfying ending.
- Do not repeat or paraphrase sentences that already appear in the story.
- Keep the same language, register and difficulty as the story so far.`

// NarrativeGenerator produces lesson text from an elevated brief. One-shot
// lessons are a single model call; series use the iterative extender so every
// part is a literal slice of one continuous generation.
type NarrativeGenerator struct {
	chat ChatClient
}

// NewNarrativeGenerator builds a generator on the given chat client.
func NewNarrativeGenerator(chat ChatClient) *NarrativeGenerator {
	return &NarrativeGenerator{chat: chat}
}

// Generate produces one lesson's title and body from a brief in a single
// model call. The raw completion is parsed as title / blank line / body and
// the body's paragraphs get their terminal punctuation normalized.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - brief model.Brief: The elevated writing brief.
//
// Returns:
// - model.LessonText: The parsed and normalized lesson text.
// - error: An error if the model call failed or returned an empty story.
func (g *NarrativeGenerator) Generate(ctx context.Context, brief model.Brief) (model.LessonText, error) {
	raw, err := g.chat.Complete(ctx, Prompt{
		System:      narrativeSystemPrompt,
		User:        brief.Text,
		Temperature: narrativeTemperature,
	})
	if err != nil {
		return model.LessonText{}, errors.Wrap(err, "narrative generation failed")
	}
	return ParseLessonText(raw)
}

// GenerateIteratively builds one long story for a series: an initial passage
// of roughly totalWords/partCount words, then partCount-2 extensions each
// seeing the entire story so far, then one finalization for a conclusive
// ending. The whole story comes from one chain of generations, which is what
// keeps later parts consistent with earlier ones.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - brief model.Brief: The elevated brief for the opening passage.
// - totalWords int: The target length of the full story.
// - partCount int: How many parts the story will later be split into.
//
// Returns:
// - model.LessonText: The full normalized story.
// - error: An error if any generation step failed.
func (g *NarrativeGenerator) GenerateIteratively(ctx context.Context, brief model.Brief, totalWords, partCount int) (model.LessonText, error) {
	if partCount < 2 {
		return g.Generate(ctx, brief)
	}
	passageWords := totalWords / partCount
	if passageWords < 1 {
		passageWords = totalWords
	}

	// The opening passage targets its share of the total, so the brief is
	// re-elevated at the passage length rather than the full story length.
	if brief.Request.Topic != "" && brief.Request.WordCount != passageWords {
		req := brief.Request
		req.WordCount = passageWords
		brief = ElevatePrompt(req)
	}

	story, err := g.Generate(ctx, brief)
	if err != nil {
		return model.LessonText{}, err
	}

	for i := 0; i < partCount-2; i++ {
		if err := ctx.Err(); err != nil {
			return model.LessonText{}, err
		}
		extension, err := g.continueStory(ctx, extendSystemPrompt, story, passageWords)
		if err != nil {
			return model.LessonText{}, errors.Wrapf(err, "extending story (pass %d)", i+1)
		}
		story.Body = model.JoinParagraphs(append(story.Paragraphs(), model.SplitParagraphs(extension)...))
	}

	ending, err := g.continueStory(ctx, finalizeSystemPrompt, story, passageWords)
	if err != nil {
		return model.LessonText{}, errors.Wrap(err, "finalizing story")
	}
	story.Body = model.JoinParagraphs(append(story.Paragraphs(), model.SplitParagraphs(ending)...))
	return normalizeLessonText(story), nil
}

// continueStory asks for the next passage with the entire story so far as
// context.
func (g *NarrativeGenerator) continueStory(ctx context.Context, system string, story model.LessonText, words int) (string, error) {
	user := fmt.Sprintf("The story so far:\n\n%s\n\n%s\n\nWrite the next passage, about %d words.", story.Title, story.Body, words)
	extension, err := g.chat.Complete(ctx, Prompt{
		System:      system,
		User:        user,
		Temperature: narrativeTemperature,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(extension) == "" {
		return "", &model.UpstreamError{Endpoint: "chat", Message: "empty story continuation"}
	}
	return extension, nil
}

// Summarize produces the short continuation summary stored after each part of
// a per-part series. The summary feeds the next part's brief.
func (g *NarrativeGenerator) Summarize(ctx context.Context, text model.LessonText) (string, error) {
	summary, err := g.chat.Complete(ctx, Prompt{
		System:      "Summarize the story below in 2-3 plain sentences, in the story's own language: who did what, and where things stand at the end. Output only the summary.",
		User:        text.Title + "\n\n" + text.Body,
		Temperature: summaryTemperature,
	})
	if err != nil {
		return "", errors.Wrap(err, "summarizing story part")
	}
	return strings.TrimSpace(summary), nil
}

// SplitIntoParts partitions a story body into partCount contiguous,
// non-overlapping paragraph groups, in order, the final group absorbing any
// remainder. For a story with at least partCount paragraphs every group is
// non-empty, and rejoining the groups with paragraph breaks reconstructs the
// original body.
func SplitIntoParts(body string, partCount int) []string {
	paragraphs := model.SplitParagraphs(body)
	if partCount < 1 {
		partCount = 1
	}
	if partCount > len(paragraphs) {
		partCount = len(paragraphs)
	}
	if partCount == 0 {
		return nil
	}

	perPart := len(paragraphs) / partCount
	parts := make([]string, 0, partCount)
	for i := 0; i < partCount; i++ {
		start := i * perPart
		end := start + perPart
		if i == partCount-1 {
			end = len(paragraphs)
		}
		parts = append(parts, model.JoinParagraphs(paragraphs[start:end]))
	}
	return parts
}

// ParseLessonText parses a raw completion into title and body: first
// non-empty line is the bare title, everything after the following blank line
// is the body. Markdown heading markers and wrapping quotes around the title
// are stripped, paragraph terminal punctuation is normalized.
func ParseLessonText(raw string) (model.LessonText, error) {
	blocks := model.SplitParagraphs(raw)
	if len(blocks) == 0 {
		return model.LessonText{}, &model.UpstreamError{Endpoint: "chat", Message: "empty story"}
	}

	title := cleanTitle(blocks[0])
	body := blocks[1:]
	if len(body) == 0 {
		return model.LessonText{}, &model.UpstreamError{Endpoint: "chat", Message: "story carried a title but no body"}
	}

	return normalizeLessonText(model.LessonText{
		Title: title,
		Body:  model.JoinParagraphs(body),
	}), nil
}

func cleanTitle(line string) string {
	title := strings.TrimSpace(line)
	title = strings.TrimLeft(title, "# ")
	title = strings.TrimPrefix(title, "Title:")
	title = strings.Trim(title, "\"“”'")
	return strings.TrimSpace(title)
}

// normalizeLessonText guarantees every paragraph ends with terminal
// punctuation, with closers kept after the period.
func normalizeLessonText(text model.LessonText) model.LessonText {
	paragraphs := text.Paragraphs()
	for i, p := range paragraphs {
		paragraphs[i] = model.EnsureTerminalPunctuation(p)
	}
	text.Body = model.JoinParagraphs(paragraphs)
	return text
}
