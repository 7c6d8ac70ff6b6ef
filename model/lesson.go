package model

import (
	"time"
)

// SegmentationMode selects the playback unit a lesson is cut into.
type SegmentationMode string

const (
	SegmentBySentence  SegmentationMode = "sentence"
	SegmentByParagraph SegmentationMode = "paragraph"
)

// Valid reports whether the mode is one of the supported segmentations.
func (m SegmentationMode) Valid() bool {
	return m == SegmentBySentence || m == SegmentByParagraph
}

// LessonText is a generated lesson: a bare title and a plain-text body with
// blank-line paragraph separators and normalized terminal punctuation.
type LessonText struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Paragraphs returns the body's paragraphs.
func (t LessonText) Paragraphs() []string {
	return SplitParagraphs(t.Body)
}

// Segment is one playable unit of a lesson, paired across the two language
// lanes. IDs are 1-based and contiguous within a lesson. ParagraphIndex
// groups segments of the same source paragraph for display, not playback.
type Segment struct {
	ID             int    `json:"id"`
	PrimaryText    string `json:"primary_text"`
	SecondaryText  string `json:"secondary_text"`
	PrimaryAudio   string `json:"primary_audio,omitempty"`
	SecondaryAudio string `json:"secondary_audio,omitempty"`
	ParagraphIndex int    `json:"paragraph_index"`
}

// LessonMetadata is the per-lesson metadata artifact.
type LessonMetadata struct {
	LessonID          string           `json:"lesson_id"`
	Title             string           `json:"title"`
	PrimaryLanguage   string           `json:"primary_language"`
	SecondaryLanguage string           `json:"secondary_language"`
	SegmentationMode  SegmentationMode `json:"segmentation_mode"`
	SpeechSpeed       float64          `json:"speech_speed"`
	Level             CEFRLevel        `json:"level"`
	CreatedAt         time.Time        `json:"created_at"`
}

// LessonRequest describes one lesson generation job: what to write, in which
// language pair, at what level, and how to cut and voice it.
type LessonRequest struct {
	DeviceID          string           `json:"device_id"`
	Topic             string           `json:"topic"`
	PrimaryLanguage   string           `json:"primary_language"`
	SecondaryLanguage string           `json:"secondary_language"`
	WordCount         int              `json:"word_count"`
	Level             CEFRLevel        `json:"level"`
	Mode              SegmentationMode `json:"mode"`
	SpeechSpeed       float64          `json:"speech_speed"`

	// Folder groups lessons in the manifest; series put their parts in one
	// folder named after the series.
	Folder string `json:"folder,omitempty"`

	// HoldID, when set, is an already reserved hold the job settles against
	// instead of opening its own. Series jobs share one hold this way.
	HoldID string `json:"hold_id,omitempty"`

	// Series carries continuation context when this request is one part of
	// a multi-part series.
	Series *SeriesContext `json:"series,omitempty"`
}

// SeriesContext is the continuation context a series part feeds into its
// brief: where the part sits in the series and what happened so far.
type SeriesContext struct {
	PartNumber      int    `json:"part_number"`
	TotalParts      int    `json:"total_parts"`
	PreviousSummary string `json:"previous_summary,omitempty"`
	Outline         string `json:"outline,omitempty"`
}

// LessonResult is the terminal outcome of a successful generation job.
type LessonResult struct {
	LessonID     string   `json:"lesson_id"`
	Title        string   `json:"title"`
	Folder       string   `json:"folder"`
	SegmentCount int      `json:"segment_count"`
	Warnings     []string `json:"warnings,omitempty"`
}

// LessonEntry is one row of the flat lesson manifest. Entries are written
// once on pipeline success and never mutated except on deletion.
type LessonEntry struct {
	LessonID          string    `json:"lesson_id"`
	Title             string    `json:"title"`
	Folder            string    `json:"folder,omitempty"`
	PrimaryLanguage   string    `json:"primary_language"`
	SecondaryLanguage string    `json:"secondary_language"`
	LanguageCodes     []string  `json:"language_codes"`
	CreatedAt         time.Time `json:"created_at"`
}
