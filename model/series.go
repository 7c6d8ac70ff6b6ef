package model

import (
	"time"
)

// SeriesPartState is the queue state of one part of a series.
type SeriesPartState string

const (
	PartPending    SeriesPartState = "PENDING"
	PartGenerating SeriesPartState = "GENERATING"
	PartCompleted  SeriesPartState = "COMPLETED"
	PartFailed     SeriesPartState = "FAILED"
	PartCancelled  SeriesPartState = "CANCELLED"
)

// SeriesPart tracks one lesson of a series through the generation queue.
type SeriesPart struct {
	PartNumber int             `json:"part_number"`
	State      SeriesPartState `json:"state"`
	LessonID   string          `json:"lesson_id,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// SeriesStrategy selects how a multi-part series is produced.
type SeriesStrategy string

const (
	// SeriesPerPart generates each part as its own job, feeding a running
	// summary forward so the story continues coherently.
	SeriesPerPart SeriesStrategy = "per_part"
	// SeriesIterative generates one long story up front, splits it into
	// aligned slices, and settles everything under a single shared hold.
	SeriesIterative SeriesStrategy = "iterative"
)

// Valid reports whether the strategy is a supported production mode.
func (s SeriesStrategy) Valid() bool {
	return s == SeriesPerPart || s == SeriesIterative
}

// SeriesMetadata accumulates the progress of a multi-part series. The
// orchestrator mutates it after every part; LastSummary feeds the brief of
// the next part.
type SeriesMetadata struct {
	SeriesID       string         `json:"series_id"`
	DeviceID       string         `json:"device_id"`
	Title          string         `json:"title"`
	Strategy       SeriesStrategy `json:"strategy"`
	Request        LessonRequest  `json:"request"`
	TotalParts     int            `json:"total_parts"`
	CompletedParts int            `json:"completed_parts"`
	LastSummary    string         `json:"last_summary,omitempty"`
	Outline        string         `json:"outline,omitempty"`
	Parts          []SeriesPart   `json:"parts"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewSeriesMetadata initializes series tracking with every part pending.
func NewSeriesMetadata(title string, totalParts int) *SeriesMetadata {
	parts := make([]SeriesPart, totalParts)
	for i := range parts {
		parts[i] = SeriesPart{PartNumber: i + 1, State: PartPending}
	}
	now := time.Now()
	return &SeriesMetadata{
		SeriesID:   GenerateUUIDWithSuffix("ser"),
		Title:      title,
		TotalParts: totalParts,
		Parts:      parts,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Part returns the part with the given 1-based number, or nil.
func (s *SeriesMetadata) Part(number int) *SeriesPart {
	for i := range s.Parts {
		if s.Parts[i].PartNumber == number {
			return &s.Parts[i]
		}
	}
	return nil
}

// NextPending returns the lowest-numbered pending part, or nil when the
// queue is drained.
func (s *SeriesMetadata) NextPending() *SeriesPart {
	for i := range s.Parts {
		if s.Parts[i].State == PartPending {
			return &s.Parts[i]
		}
	}
	return nil
}

// MarkGenerating moves a part into the generating state.
func (s *SeriesMetadata) MarkGenerating(number int) {
	if part := s.Part(number); part != nil {
		part.State = PartGenerating
		part.Error = ""
		s.UpdatedAt = time.Now()
	}
}

// MarkCompleted records a part's lesson and advances the completed count.
func (s *SeriesMetadata) MarkCompleted(number int, lessonID string) {
	if part := s.Part(number); part != nil {
		part.State = PartCompleted
		part.LessonID = lessonID
		s.CompletedParts++
		s.UpdatedAt = time.Now()
	}
}

// MarkFailed records a part failure with its message.
func (s *SeriesMetadata) MarkFailed(number int, message string) {
	if part := s.Part(number); part != nil {
		part.State = PartFailed
		part.Error = message
		s.UpdatedAt = time.Now()
	}
}

// MarkCancelled moves a part into the cancelled state.
func (s *SeriesMetadata) MarkCancelled(number int) {
	if part := s.Part(number); part != nil {
		part.State = PartCancelled
		s.UpdatedAt = time.Now()
	}
}

// ResetPart puts a failed or cancelled part back in the queue.
func (s *SeriesMetadata) ResetPart(number int) bool {
	part := s.Part(number)
	if part == nil || (part.State != PartFailed && part.State != PartCancelled) {
		return false
	}
	part.State = PartPending
	part.Error = ""
	s.UpdatedAt = time.Now()
	return true
}

// Done reports whether every part reached a terminal state.
func (s *SeriesMetadata) Done() bool {
	for i := range s.Parts {
		switch s.Parts[i].State {
		case PartPending, PartGenerating:
			return false
		}
	}
	return true
}
