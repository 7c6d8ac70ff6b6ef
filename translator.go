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
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/texttheater/golang-levenshtein/levenshtein"
	"golang.org/x/sync/errgroup"

	"github.com/duotale/duotale/model"
)

// translationTemperature keeps translations literal enough that sentence
// boundaries survive the round trip.
const translationTemperature = 0.2

// leakSimilarityThreshold is the normalized levenshtein similarity above
// which a translated sentence is treated as untranslated carryover from the
// source. Short sentences of shared proper nouns land below it.
const leakSimilarityThreshold = 0.85

// AlignedTranslator translates lesson text while preserving the exact
// sentence count and order of the source, paragraph by paragraph. Paragraphs
// are translated concurrently and reassembled in original order; each one
// independently goes through the align-count-repair-scrub sequence.
type AlignedTranslator struct {
	chat ChatClient
}

// NewAlignedTranslator builds a translator on the given chat client.
func NewAlignedTranslator(chat ChatClient) *AlignedTranslator {
	return &AlignedTranslator{chat: chat}
}

// Translation is the outcome of an aligned translation: the translated text
// plus warnings for any paragraph whose sentence count could not be repaired.
// A warning means the mismatched draft was kept, not that the job failed.
type Translation struct {
	Text     string
	Warnings []string
}

// Translate translates text into targetLanguage with 1:1 sentence alignment.
// Each paragraph is translated as its own concurrent sub-task; inside a
// paragraph the algorithm is first pass → sentence-count check → numbered
// repair pass when counts differ → source-language leak scrub. A paragraph
// whose count still disagrees after repair is used as-is and reported as a
// warning.
//
// Parameters:
// - ctx context.Context: The context for the operation; cancelling it aborts all paragraph sub-tasks.
// - text string: The source text, blank-line paragraph separators.
// - targetLanguage string: The language to translate into.
//
// Returns:
// - *Translation: The translated text in original paragraph order, with alignment warnings.
// - error: An error if any paragraph's translation failed outright.
func (t *AlignedTranslator) Translate(ctx context.Context, text, targetLanguage string) (*Translation, error) {
	paragraphs := model.SplitParagraphs(text)
	if len(paragraphs) == 0 {
		return &Translation{}, nil
	}

	translated := make([]string, len(paragraphs))
	var mu sync.Mutex
	var warnings []string

	group, groupCtx := errgroup.WithContext(ctx)
	for i, paragraph := range paragraphs {
		group.Go(func() error {
			result, warning, err := t.translateParagraph(groupCtx, paragraph, targetLanguage, i)
			if err != nil {
				return err
			}
			translated[i] = result
			if warning != "" {
				mu.Lock()
				warnings = append(warnings, warning)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return &Translation{
		Text:     model.JoinParagraphs(translated),
		Warnings: warnings,
	}, nil
}

// translateParagraph runs the full align-and-repair sequence for one
// paragraph. The returned warning is non-empty when the sentence count could
// not be made to match and the mismatched draft was kept.
func (t *AlignedTranslator) translateParagraph(ctx context.Context, paragraph, targetLanguage string, index int) (string, string, error) {
	expected := model.CountSentences(paragraph)

	draft, err := t.firstPass(ctx, paragraph, targetLanguage, expected)
	if err != nil {
		return "", "", errors.Wrapf(err, "translating paragraph %d", index)
	}

	if model.CountSentences(draft) != expected {
		repaired, err := t.repairPass(ctx, paragraph, draft, targetLanguage, expected)
		if err != nil {
			return "", "", errors.Wrapf(err, "repairing paragraph %d", index)
		}
		if model.CountSentences(repaired) == expected {
			draft = repaired
		} else {
			// Known limitation: the mismatched draft is used as-is rather
			// than failing the lesson.
			alignErr := &model.AlignmentError{Paragraph: index, Expected: expected, Got: model.CountSentences(repaired)}
			logrus.Warn(alignErr)
			if betterDraft(repaired, draft, expected) {
				draft = repaired
			}
			return draft, alignErr.Error(), nil
		}
	}

	scrubbed, err := t.scrubLeaks(ctx, paragraph, draft, targetLanguage, expected)
	if err != nil {
		// The draft is already aligned; a failed scrub pass degrades quality,
		// not correctness.
		logrus.Warnf("leak scrub failed for paragraph %d: %v", index, err)
		return draft, "", nil
	}
	return scrubbed, "", nil
}

func (t *AlignedTranslator) firstPass(ctx context.Context, paragraph, targetLanguage string, expected int) (string, error) {
	system := fmt.Sprintf(`You are a professional translator. Translate the user's text into %s.
Alignment rule, absolute: the source has exactly %d sentences; your translation must have exactly %d sentences, in the same order, one translated sentence per source sentence. Never merge sentences, never split one.
Output only the translation.`, targetLanguage, expected, expected)

	return t.chat.Complete(ctx, Prompt{
		System:      system,
		User:        paragraph,
		Temperature: translationTemperature,
	})
}

// repairPass numbers each source sentence and asks for a corrected draft with
// the exact expected count.
func (t *AlignedTranslator) repairPass(ctx context.Context, paragraph, draft, targetLanguage string, expected int) (string, error) {
	var numbered strings.Builder
	for i, sentence := range model.SplitSentences(paragraph) {
		fmt.Fprintf(&numbered, "%d. %s\n", i+1, sentence)
	}

	system := fmt.Sprintf(`A translation into %s has the wrong number of sentences. The source sentences are numbered below. Produce a corrected translation with exactly %d sentences: sentence N of your output translates source sentence N. Output only the corrected translation as plain text, without the numbers.`, targetLanguage, expected)
	user := fmt.Sprintf("Source sentences:\n%s\nDraft to correct:\n%s", numbered.String(), draft)

	return t.chat.Complete(ctx, Prompt{
		System:      system,
		User:        user,
		Temperature: translationTemperature,
	})
}

// scrubLeaks detects sentences that came back essentially untranslated and
// runs a verification pass to replace the stray source-language tokens. The
// verification is forbidden from changing the sentence count, and its output
// is dropped if it does so anyway.
func (t *AlignedTranslator) scrubLeaks(ctx context.Context, paragraph, draft, targetLanguage string, expected int) (string, error) {
	if !hasSourceLeak(paragraph, draft) {
		return draft, nil
	}

	system := fmt.Sprintf(`The text below is a translation into %s, but some sentences or phrases were left in the source language. Replace every untranslated remnant with proper %s. Keep everything already translated exactly as it is. The output must have exactly %d sentences; never merge or split sentences.
Output only the corrected text.`, targetLanguage, targetLanguage, expected)

	verified, err := t.chat.Complete(ctx, Prompt{
		System:      system,
		User:        draft,
		Temperature: translationTemperature,
	})
	if err != nil {
		return "", err
	}
	if model.CountSentences(verified) != expected {
		return draft, nil
	}
	return verified, nil
}

// hasSourceLeak reports whether any translated sentence is nearly identical
// to a source sentence, which on a real translation should never happen.
func hasSourceLeak(source, draft string) bool {
	sourceSentences := model.SplitSentences(source)
	for _, translated := range model.SplitSentences(draft) {
		for _, original := range sourceSentences {
			if sentenceSimilarity(original, translated) >= leakSimilarityThreshold {
				return true
			}
		}
	}
	return false
}

// sentenceSimilarity returns a 0..1 levenshtein similarity between two
// sentences, case-insensitive.
func sentenceSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1
	}
	distance := levenshtein.DistanceForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
	return 1 - float64(distance)/float64(longest)
}

// betterDraft reports whether candidate is closer to the expected sentence
// count than current. Used only when both drafts are misaligned.
func betterDraft(candidate, current string, expected int) bool {
	candidateDelta := model.CountSentences(candidate) - expected
	currentDelta := model.CountSentences(current) - expected
	if candidateDelta < 0 {
		candidateDelta = -candidateDelta
	}
	if currentDelta < 0 {
		currentDelta = -currentDelta
	}
	return candidateDelta < currentDelta
}
