package model

// CEFRLevel is a language-proficiency tier controlling generation complexity.
type CEFRLevel string

const (
	LevelA1 CEFRLevel = "A1"
	LevelA2 CEFRLevel = "A2"
	LevelB1 CEFRLevel = "B1"
	LevelB2 CEFRLevel = "B2"
	LevelC1 CEFRLevel = "C1"
	LevelC2 CEFRLevel = "C2"
)

// Valid reports whether the level is a known CEFR tier.
func (l CEFRLevel) Valid() bool {
	switch l {
	case LevelA1, LevelA2, LevelB1, LevelB2, LevelC1, LevelC2:
		return true
	}
	return false
}

// Beginner reports whether the level sits in the range where vocabulary
// restriction guidance applies.
func (l CEFRLevel) Beginner() bool {
	return l == LevelA1 || l == LevelA2 || l == LevelB1
}

// BriefRequest carries everything the prompt elevator needs to turn a raw
// topic into a structured writing brief.
type BriefRequest struct {
	Topic             string    `json:"topic"`
	TargetLanguage    string    `json:"target_language"`
	SecondaryLanguage string    `json:"secondary_language"`
	WordCount         int       `json:"word_count"`
	Level             CEFRLevel `json:"level"`

	// Series fields. PreviousSummary carries the running summary into the
	// brief of every part after the first.
	PartNumber      int    `json:"part_number,omitempty"`
	TotalParts      int    `json:"total_parts,omitempty"`
	PreviousSummary string `json:"previous_summary,omitempty"`
	Outline         string `json:"outline,omitempty"`
}

// Brief is an elevated writing prompt. Ephemeral: it exists only for the
// duration of a generation job and is never persisted.
type Brief struct {
	Text    string       `json:"text"`
	Request BriefRequest `json:"request"`
}
