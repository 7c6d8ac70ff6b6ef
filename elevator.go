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
	"fmt"
	"strings"

	"github.com/duotale/duotale/model"
)

// logographicLanguages are the target languages where European
// frequency-list heuristics do not apply and level guidance switches to
// script-aware wording. Matched as substrings of the normalized language
// name, so "Mandarin Chinese" and "Chinese (Simplified)" both qualify.
var logographicLanguages = []string{
	"chinese", "mandarin", "cantonese", "japanese", "korean",
}

// cefrGuidance is the level ladder for alphabetic target languages. Lower
// tiers lean on word-frequency restrictions; upper tiers progressively lift
// them and ask for natural register instead.
var cefrGuidance = map[model.CEFRLevel]string{
	model.LevelA1: "Use only the most common everyday words (roughly the 500 most frequent). Short main clauses, present tense where possible, no idioms. One idea per sentence.",
	model.LevelA2: "Stay within roughly the 1000 most frequent words. Simple past and future are fine; avoid subordinate clause chains and figurative language.",
	model.LevelB1: "Common vocabulary (roughly the 2000 most frequent words) with occasional topic-specific terms, each made clear from context. Mix simple and compound sentences.",
	model.LevelB2: "Natural vocabulary with some abstract terms. Varied sentence structure, light idioms where they read naturally.",
	model.LevelC1: "Full native register. Nuanced word choice, complex sentences, idiomatic phrasing welcome.",
	model.LevelC2: "Write as for an educated native reader. No simplification of any kind; precision beats accessibility.",
}

// cefrGuidanceCJK is the ladder for logographic targets: no frequency-list
// wording, level expressed through structure and script conventions instead.
var cefrGuidanceCJK = map[model.CEFRLevel]string{
	model.LevelA1: "Use basic everyday expressions and short clauses. Prefer high-frequency characters a first-year learner meets; avoid literary or formal register entirely.",
	model.LevelA2: "Everyday conversational language, short sentences, no formal written style. Introduce at most a handful of less common characters, always in transparent context.",
	model.LevelB1: "Conversational to neutral register. Straightforward clause structure; topic-specific terms allowed when the surrounding text explains them.",
	model.LevelB2: "Neutral register with some written-style constructions. Varied sentence rhythm is welcome.",
	model.LevelC1: "Natural native text including written-register constructions and common four-character expressions.",
	model.LevelC2: "Fully native prose, literary devices welcome; no concessions to learners.",
}

// chineseAspectNote is appended for Chinese targets at the lower levels,
// where aspect particles are the usual stumbling block.
const chineseAspectNote = "Mark aspect explicitly and consistently: use 了 for completed actions, 过 for past experience, and 在/正在 for ongoing ones, so learners can follow the timeline without guessing."

// ElevatePrompt turns a raw topic into a structured writing brief: purpose,
// audience and voice, a paragraph plan, must-cover points, explicit level
// guidance, and series continuity when the request is one part of a series.
// Pure function of its inputs.
//
// Parameters:
// - req model.BriefRequest: The topic, language pair, length, level and series context.
//
// Returns:
// - model.Brief: The elevated brief with the request that shaped it.
func ElevatePrompt(req model.BriefRequest) model.Brief {
	var b strings.Builder

	b.WriteString("Write a short story for adult language learners.\n\n")

	fmt.Fprintf(&b, "Purpose: a listening-and-reading lesson in %s. The text will be read aloud sentence by sentence, so every sentence must stand on its own when heard in isolation.\n", req.TargetLanguage)
	b.WriteString("Audience and voice: curious adults. Warm, concrete, lightly narrative voice; no textbook tone, no addressing the reader.\n")
	fmt.Fprintf(&b, "Topic: %s\n", strings.TrimSpace(req.Topic))

	paragraphs := suggestedParagraphs(req.WordCount)
	fmt.Fprintf(&b, "Length: about %d words in %d paragraphs.\n", req.WordCount, paragraphs)
	fmt.Fprintf(&b, "Paragraph plan: open with a scene the reader can picture, develop the topic through %d middle paragraphs each built around one concrete moment or detail, and close with a short resolution.\n", maxInt(paragraphs-2, 1))
	b.WriteString("Must cover: stay specific to the topic; include at least three concrete, sensory details; give any person who appears a name.\n")

	b.WriteString(levelGuidance(req.TargetLanguage, req.Level))
	b.WriteString("\n")

	if req.PartNumber > 0 && req.TotalParts > 1 {
		fmt.Fprintf(&b, "Series continuity: this is part %d of %d of one continuous story.\n", req.PartNumber, req.TotalParts)
		if req.Outline != "" {
			fmt.Fprintf(&b, "Overall outline: %s\n", req.Outline)
		}
		if req.PreviousSummary != "" {
			fmt.Fprintf(&b, "The story so far: %s\n", req.PreviousSummary)
			b.WriteString("Continue directly from there. Do not re-introduce characters or re-tell earlier events.\n")
		}
		if req.PartNumber < req.TotalParts {
			b.WriteString("Do not conclude the story in this part; end at a natural pause that invites continuation.\n")
		} else {
			b.WriteString("This is the final part: bring the story to a satisfying close.\n")
		}
	}

	return model.Brief{
		Text:    strings.TrimSpace(b.String()),
		Request: req,
	}
}

// levelGuidance returns the explicit CEFR instruction block, branching on
// whether the target language is logographic.
func levelGuidance(language string, level model.CEFRLevel) string {
	if !level.Valid() {
		level = model.LevelB1
	}

	if isLogographic(language) {
		guidance := cefrGuidanceCJK[level]
		if isChinese(language) && level.Beginner() {
			guidance = guidance + " " + chineseAspectNote
		}
		return fmt.Sprintf("Level guidance (%s): %s", level, guidance)
	}
	return fmt.Sprintf("Level guidance (%s): %s", level, cefrGuidance[level])
}

func isLogographic(language string) bool {
	normalized := strings.ToLower(language)
	for _, name := range logographicLanguages {
		if strings.Contains(normalized, name) {
			return true
		}
	}
	return false
}

func isChinese(language string) bool {
	normalized := strings.ToLower(language)
	return strings.Contains(normalized, "chinese") ||
		strings.Contains(normalized, "mandarin") ||
		strings.Contains(normalized, "cantonese")
}

// suggestedParagraphs sizes the paragraph plan to the requested length,
// aiming for roughly 120 words per paragraph with a floor of two.
func suggestedParagraphs(wordCount int) int {
	if wordCount <= 0 {
		return 3
	}
	paragraphs := wordCount / 120
	if paragraphs < 2 {
		return 2
	}
	if paragraphs > 8 {
		return 8
	}
	return paragraphs
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
