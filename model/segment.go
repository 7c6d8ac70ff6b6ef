package model

import (
	"strings"
)

// BuildSegments pairs a primary body with its translation into ordered
// segments. Both bodies are split into paragraphs first; paragraph i of the
// primary pairs with paragraph i of the secondary. In sentence mode each
// paragraph is further split into sentences and paired positionally. The
// segment count on every level is the minimum of the two sides, truncating
// the longer side rather than failing the lesson on imperfect alignment.
func BuildSegments(primaryBody, secondaryBody string, mode SegmentationMode) []Segment {
	primaryParas := SplitParagraphs(primaryBody)
	secondaryParas := SplitParagraphs(secondaryBody)

	paraCount := len(primaryParas)
	if len(secondaryParas) < paraCount {
		paraCount = len(secondaryParas)
	}

	var segments []Segment
	id := 1
	for p := 0; p < paraCount; p++ {
		if mode == SegmentByParagraph {
			segments = append(segments, Segment{
				ID:             id,
				PrimaryText:    EnsureTerminalPunctuation(primaryParas[p]),
				SecondaryText:  EnsureTerminalPunctuation(secondaryParas[p]),
				ParagraphIndex: p,
			})
			id++
			continue
		}

		primarySentences := SplitSentences(primaryParas[p])
		secondarySentences := SplitSentences(secondaryParas[p])
		n := len(primarySentences)
		if len(secondarySentences) < n {
			n = len(secondarySentences)
		}
		for s := 0; s < n; s++ {
			segments = append(segments, Segment{
				ID:             id,
				PrimaryText:    primarySentences[s],
				SecondaryText:  secondarySentences[s],
				ParagraphIndex: p,
			})
			id++
		}
	}
	return segments
}

// JoinSegments reassembles the primary lane of a segment list back into a
// body with blank-line paragraph breaks. Round-tripping through
// BuildSegments and JoinSegments recovers the original body modulo
// whitespace normalization.
func JoinSegments(segments []Segment) string {
	var paragraphs []string
	var current []string
	lastPara := -1
	for _, seg := range segments {
		if seg.ParagraphIndex != lastPara && len(current) > 0 {
			paragraphs = append(paragraphs, strings.Join(current, " "))
			current = current[:0]
		}
		lastPara = seg.ParagraphIndex
		current = append(current, seg.PrimaryText)
	}
	if len(current) > 0 {
		paragraphs = append(paragraphs, strings.Join(current, " "))
	}
	return JoinParagraphs(paragraphs)
}
