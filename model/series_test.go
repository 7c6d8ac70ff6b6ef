package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSeriesMetadata(t *testing.T) {
	series := NewSeriesMetadata("The Long Voyage", 3)
	assert.Contains(t, series.SeriesID, "ser_")
	assert.Equal(t, 3, series.TotalParts)
	assert.Equal(t, 0, series.CompletedParts)
	assert.Len(t, series.Parts, 3)
	for i, part := range series.Parts {
		assert.Equal(t, i+1, part.PartNumber)
		assert.Equal(t, PartPending, part.State)
	}
}

func TestSeriesMetadata_NextPending(t *testing.T) {
	series := NewSeriesMetadata("Voyage", 3)
	next := series.NextPending()
	assert.NotNil(t, next)
	assert.Equal(t, 1, next.PartNumber)

	series.MarkGenerating(1)
	series.MarkCompleted(1, "lsn_1")
	next = series.NextPending()
	assert.Equal(t, 2, next.PartNumber)

	series.MarkCompleted(2, "lsn_2")
	series.MarkFailed(3, "upstream timeout")
	assert.Nil(t, series.NextPending())
}

func TestSeriesMetadata_MarkCompleted(t *testing.T) {
	series := NewSeriesMetadata("Voyage", 2)
	series.MarkCompleted(1, "lsn_abc")
	part := series.Part(1)
	assert.Equal(t, PartCompleted, part.State)
	assert.Equal(t, "lsn_abc", part.LessonID)
	assert.Equal(t, 1, series.CompletedParts)
}

func TestSeriesMetadata_ResetPart(t *testing.T) {
	series := NewSeriesMetadata("Voyage", 2)
	series.MarkFailed(2, "synthesis failed")

	assert.True(t, series.ResetPart(2))
	part := series.Part(2)
	assert.Equal(t, PartPending, part.State)
	assert.Empty(t, part.Error)

	// Completed and pending parts cannot be reset.
	series.MarkCompleted(1, "lsn_1")
	assert.False(t, series.ResetPart(1))
	assert.False(t, series.ResetPart(2))
}

func TestSeriesMetadata_Done(t *testing.T) {
	series := NewSeriesMetadata("Voyage", 2)
	assert.False(t, series.Done())

	series.MarkCompleted(1, "lsn_1")
	assert.False(t, series.Done())

	series.MarkCancelled(2)
	assert.True(t, series.Done())
}

func TestSeriesMetadata_PartMissing(t *testing.T) {
	series := NewSeriesMetadata("Voyage", 1)
	assert.Nil(t, series.Part(9))
	series.MarkCompleted(9, "lsn_x")
	assert.Equal(t, 0, series.CompletedParts)
}
