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
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/duotale/duotale/internal/apierror"
	"github.com/duotale/duotale/internal/notification"
	"github.com/duotale/duotale/model"
)

// SeriesOrchestrator sequences multi-part lesson jobs. Two strategies:
// per-part continuation feeds a running summary from each finished part into
// the next part's brief; iterative whole-story generates one long story up
// front, splits it into aligned slices, and settles everything under a single
// shared hold. Queue items run strictly in order: the next part is enqueued
// only after the previous one settles.
type SeriesOrchestrator struct {
	duotale  *Duotale
	pipeline *GenerationPipeline

	// running maps series IDs to the cancel funcs of their in-flight parts,
	// so a cancel request reaches the generating pipeline cooperatively.
	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewSeriesOrchestrator builds an orchestrator sharing the given pipeline.
func NewSeriesOrchestrator(d *Duotale, pipeline *GenerationPipeline) *SeriesOrchestrator {
	return &SeriesOrchestrator{
		duotale:  d,
		pipeline: pipeline,
		running:  make(map[string]context.CancelFunc),
	}
}

// StartSeries registers a new series and enqueues its first work item.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - req model.LessonRequest: The per-lesson request template; in iterative mode WordCount is the whole story's length.
// - totalParts int: How many lessons the series produces, at least 2.
// - strategy model.SeriesStrategy: Per-part continuation or iterative whole-story.
// - outline string: Optional overall story outline fed into every brief.
//
// Returns:
// - *model.SeriesMetadata: The persisted series with every part pending.
// - error: An error if the inputs were invalid or persistence failed.
func (o *SeriesOrchestrator) StartSeries(ctx context.Context, req model.LessonRequest, totalParts int, strategy model.SeriesStrategy, outline string) (*model.SeriesMetadata, error) {
	if totalParts < 2 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "A series needs at least 2 parts", fmt.Errorf("got %d", totalParts))
	}
	if strategy == "" {
		strategy = model.SeriesPerPart
	}
	if !strategy.Valid() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Unknown series strategy", fmt.Errorf("got %q", strategy))
	}

	series := model.NewSeriesMetadata(req.Topic, totalParts)
	series.DeviceID = req.DeviceID
	series.Strategy = strategy
	series.Request = req
	series.Outline = outline

	if err := o.duotale.datastore.SaveSeries(series); err != nil {
		return nil, err
	}
	if err := o.duotale.queue.EnqueueSeriesPart(ctx, series, 1); err != nil {
		return nil, err
	}
	return series, nil
}

// GetSeries reports a series' current metadata.
func (o *SeriesOrchestrator) GetSeries(seriesID string) (*model.SeriesMetadata, error) {
	return o.duotale.datastore.GetSeries(seriesID)
}

// RetryPart puts a failed or cancelled part back in the queue.
func (o *SeriesOrchestrator) RetryPart(ctx context.Context, seriesID string, partNumber int) (*model.SeriesMetadata, error) {
	series, err := o.duotale.datastore.GetSeries(seriesID)
	if err != nil {
		return nil, err
	}
	if series == nil {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Unknown series", fmt.Errorf("series %s", seriesID))
	}
	if !series.ResetPart(partNumber) {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Part is not in a retryable state", fmt.Errorf("series %s part %d", seriesID, partNumber))
	}
	if err := o.duotale.datastore.SaveSeries(series); err != nil {
		return nil, err
	}
	if err := o.duotale.queue.EnqueueSeriesPart(ctx, series, partNumber); err != nil {
		return nil, err
	}
	return series, nil
}

// Cancel requests cancellation of a series' in-flight work. The generating
// pipeline unwinds at its next cancellation check and releases its hold;
// parts still pending are marked cancelled immediately.
func (o *SeriesOrchestrator) Cancel(seriesID string) (*model.SeriesMetadata, error) {
	o.mu.Lock()
	if cancel, ok := o.running[seriesID]; ok {
		cancel()
	}
	o.mu.Unlock()

	series, err := o.duotale.datastore.GetSeries(seriesID)
	if err != nil {
		return nil, err
	}
	if series == nil {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Unknown series", fmt.Errorf("series %s", seriesID))
	}
	for i := range series.Parts {
		if series.Parts[i].State == model.PartPending {
			series.MarkCancelled(series.Parts[i].PartNumber)
		}
	}
	if err := o.duotale.datastore.SaveSeries(series); err != nil {
		return nil, err
	}
	return series, nil
}

// ProcessSeriesPart is the asynq handler for series work items. Per-part
// series process exactly the part named in the payload; iterative series run
// the whole story off their first work item.
func (o *SeriesOrchestrator) ProcessSeriesPart(ctx context.Context, task *asynq.Task) error {
	var payload SeriesPartPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logrus.Errorf("Error unmarshaling series task payload: %v", err)
		return err
	}

	series, err := o.duotale.datastore.GetSeries(payload.SeriesID)
	if err != nil {
		return err
	}
	if series == nil {
		logrus.Warnf("series %s no longer exists, dropping task", payload.SeriesID)
		return nil
	}

	partCtx, cancel := context.WithCancel(ctx)
	o.register(series.SeriesID, cancel)
	defer o.unregister(series.SeriesID, cancel)

	if series.Strategy == model.SeriesIterative {
		return o.runIterative(partCtx, series)
	}
	return o.runPart(partCtx, series, payload.PartNumber)
}

// runPart generates one lesson of a per-part series: refresh the brief with
// the running summary, run a full pipeline job under its own hold, then
// summarize the result for the next part and enqueue it.
func (o *SeriesOrchestrator) runPart(ctx context.Context, series *model.SeriesMetadata, partNumber int) error {
	part := series.Part(partNumber)
	if part == nil {
		return errors.Errorf("series %s has no part %d", series.SeriesID, partNumber)
	}
	switch part.State {
	case model.PartCompleted, model.PartCancelled:
		// Redelivered task for a settled part.
		return nil
	}

	o.markPart(series, partNumber, model.PartGenerating, "")

	req := series.Request
	req.Folder = series.Title
	req.Series = &model.SeriesContext{
		PartNumber:      partNumber,
		TotalParts:      series.TotalParts,
		PreviousSummary: series.LastSummary,
		Outline:         series.Outline,
	}

	result, err := o.pipeline.Run(ctx, req)
	if err != nil {
		return o.partFailed(ctx, series, partNumber, err)
	}

	summary, err := o.summarizeLesson(ctx, result)
	if err != nil {
		// A missing summary degrades the next part's continuity, it does not
		// undo this part.
		logrus.Warnf("summarizing series %s part %d: %v", series.SeriesID, partNumber, err)
	} else {
		series.LastSummary = summary
	}

	series.MarkCompleted(partNumber, result.LessonID)
	if err := o.duotale.datastore.SaveSeries(series); err != nil {
		return err
	}
	o.notifyPart(series, partNumber)

	if next := series.NextPending(); next != nil {
		return o.duotale.queue.EnqueueSeriesPart(ctx, series, next.PartNumber)
	}
	o.notifySeriesDone(series)
	return nil
}

// runIterative produces the whole series from one long generation: one story,
// one aligned translation, both split into the same number of paragraph
// slices, each slice materialized as a lesson under one shared hold. The hold
// covers every part and is committed only after the last part is persisted.
func (o *SeriesOrchestrator) runIterative(ctx context.Context, series *model.SeriesMetadata) error {
	if series.NextPending() == nil {
		return nil
	}

	req := withRequestDefaults(series.Request)
	req.Folder = series.Title

	hold, err := o.duotale.StartHold(ctx, req.DeviceID, int64(series.TotalParts)*CreditsPerLesson, "", 0)
	if err != nil {
		return o.partFailed(ctx, series, o.firstOpenPart(series), err)
	}
	req.HoldID = hold.HoldID

	if err := o.produceIterative(ctx, series, req); err != nil {
		o.pipeline.releaseHold(req.DeviceID, hold.HoldID)
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return nil
		}
		return err
	}

	if _, err := o.duotale.CommitHold(ctx, req.DeviceID, hold.HoldID); err != nil {
		logrus.Errorf("committing series hold %s: %v", hold.HoldID, err)
		notification.NotifyError(err)
	}
	o.notifySeriesDone(series)
	return nil
}

// produceIterative is the failable body of runIterative: generate, translate,
// split, then materialize every slice. Failures are recorded on the part that
// was in flight before the raw error is returned.
func (o *SeriesOrchestrator) produceIterative(ctx context.Context, series *model.SeriesMetadata, req model.LessonRequest) error {
	current := o.firstOpenPart(series)
	o.markPart(series, current, model.PartGenerating, "")

	brief := ElevatePrompt(model.BriefRequest{
		Topic:             req.Topic,
		TargetLanguage:    req.PrimaryLanguage,
		SecondaryLanguage: req.SecondaryLanguage,
		WordCount:         req.WordCount,
		Level:             req.Level,
		Outline:           series.Outline,
	})

	story, err := o.pipeline.generator.GenerateIteratively(ctx, brief, req.WordCount, series.TotalParts)
	if err != nil {
		o.recordFailure(ctx, series, current, err)
		return err
	}

	translation, err := o.pipeline.translator.Translate(ctx, story.Body, req.SecondaryLanguage)
	if err != nil {
		o.recordFailure(ctx, series, current, err)
		return err
	}

	// The translator preserves paragraph count, so splitting both sides by
	// paragraphs yields aligned slices.
	storyParts := SplitIntoParts(story.Body, series.TotalParts)
	translationParts := SplitIntoParts(translation.Text, series.TotalParts)
	if len(storyParts) != series.TotalParts || len(translationParts) != series.TotalParts {
		err := errors.Errorf("story split into %d parts, translation into %d, wanted %d",
			len(storyParts), len(translationParts), series.TotalParts)
		o.recordFailure(ctx, series, current, err)
		return err
	}

	series.Title = story.Title

	for i := 0; i < series.TotalParts; i++ {
		partNumber := i + 1
		o.markPart(series, partNumber, model.PartGenerating, "")

		partReq := req
		partReq.Folder = story.Title
		primary := model.LessonText{
			Title: fmt.Sprintf("%s, Part %d of %d", story.Title, partNumber, series.TotalParts),
			Body:  storyParts[i],
		}
		var warnings []string
		if i == 0 {
			warnings = translation.Warnings
		}

		result, err := o.pipeline.Materialize(ctx, partReq, primary, translationParts[i], warnings)
		if err != nil {
			o.recordFailure(ctx, series, partNumber, err)
			return err
		}
		series.MarkCompleted(partNumber, result.LessonID)
		if err := o.duotale.datastore.SaveSeries(series); err != nil {
			return err
		}
		o.notifyPart(series, partNumber)
	}
	return nil
}

// summarizeLesson reloads the persisted lesson text and produces the running
// summary for the next part.
func (o *SeriesOrchestrator) summarizeLesson(ctx context.Context, result *model.LessonResult) (string, error) {
	segments, err := o.duotale.datastore.ReadSegments(result.LessonID)
	if err != nil {
		return "", err
	}
	return o.pipeline.generator.Summarize(ctx, model.LessonText{
		Title: result.Title,
		Body:  model.JoinSegments(segments),
	})
}

// recordFailure marks a part cancelled when the stop was a cancellation and
// failed otherwise.
func (o *SeriesOrchestrator) recordFailure(ctx context.Context, series *model.SeriesMetadata, partNumber int, cause error) {
	if errors.Is(cause, context.Canceled) || ctx.Err() != nil {
		o.markPart(series, partNumber, model.PartCancelled, "")
		return
	}
	o.markPart(series, partNumber, model.PartFailed, cause.Error())
}

// partFailed records the failure and hands the error back to the queue for
// redelivery, unless it was a cancellation, which is terminal and clean.
func (o *SeriesOrchestrator) partFailed(ctx context.Context, series *model.SeriesMetadata, partNumber int, cause error) error {
	o.recordFailure(ctx, series, partNumber, cause)
	if errors.Is(cause, context.Canceled) || ctx.Err() != nil {
		return nil
	}
	return cause
}

// markPart transitions one part's state, persists the series and fires the
// matching webhook event.
func (o *SeriesOrchestrator) markPart(series *model.SeriesMetadata, partNumber int, state model.SeriesPartState, message string) {
	switch state {
	case model.PartGenerating:
		series.MarkGenerating(partNumber)
	case model.PartFailed:
		series.MarkFailed(partNumber, message)
	case model.PartCancelled:
		series.MarkCancelled(partNumber)
	}
	if err := o.duotale.datastore.SaveSeries(series); err != nil {
		logrus.Errorf("saving series %s: %v", series.SeriesID, err)
	}
	o.notifyPart(series, partNumber)
}

func (o *SeriesOrchestrator) notifyPart(series *model.SeriesMetadata, partNumber int) {
	part := series.Part(partNumber)
	if part == nil {
		return
	}
	event := getEventFromPartState(part.State)
	payload := map[string]interface{}{
		"series_id":   series.SeriesID,
		"part_number": part.PartNumber,
		"state":       part.State,
		"lesson_id":   part.LessonID,
	}
	go func() {
		if err := SendWebhook(NewWebhook{Event: event, Payload: payload}); err != nil {
			notification.NotifyError(err)
		}
	}()
}

func (o *SeriesOrchestrator) notifySeriesDone(series *model.SeriesMetadata) {
	go func() {
		if err := SendWebhook(NewWebhook{Event: "series.completed", Payload: series}); err != nil {
			notification.NotifyError(err)
		}
	}()
}

// firstOpenPart returns the lowest part number not yet settled, defaulting to
// the last part when everything settled.
func (o *SeriesOrchestrator) firstOpenPart(series *model.SeriesMetadata) int {
	if next := series.NextPending(); next != nil {
		return next.PartNumber
	}
	return series.TotalParts
}

func (o *SeriesOrchestrator) register(seriesID string, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running[seriesID] = cancel
}

func (o *SeriesOrchestrator) unregister(seriesID string, cancel context.CancelFunc) {
	cancel()
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, seriesID)
}

// waitSettled blocks until the series' in-flight part finishes, used by tests
// and the CLI runner. Polling keeps it free of extra synchronization on the
// hot path.
func (o *SeriesOrchestrator) waitSettled(seriesID string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		o.mu.Lock()
		_, busy := o.running[seriesID]
		o.mu.Unlock()
		if !busy {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}
