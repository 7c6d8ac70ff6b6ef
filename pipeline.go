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
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/duotale/duotale/config"
	"github.com/duotale/duotale/internal/notification"
	"github.com/duotale/duotale/model"
)

// CreditsPerLesson is the ledger cost of one generated lesson. A series of N
// parts costs N, reserved up front under one shared hold in iterative mode or
// one hold per part otherwise.
const CreditsPerLesson int64 = 1

// Stage names one step of the generation pipeline, in execution order.
type Stage string

const (
	StageElevate    Stage = "elevate"
	StageGenerate   Stage = "generate"
	StageTranslate  Stage = "translate"
	StageSegment    Stage = "segment"
	StageSynthesize Stage = "synthesize"
	StagePersist    Stage = "persist"
)

// StageUpdate is one progress notice from a running job: which stage is
// active and a short human-readable status line.
type StageUpdate struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// HoldLedger is the credit surface the pipeline meters itself through. The
// in-process ledger implements it for the server; deployments that meter
// through an edge service wrap CreditClient in the same shape.
type HoldLedger interface {
	StartHold(ctx context.Context, deviceID string, amount int64, holdID string, ttl time.Duration) (*model.Hold, error)
	CommitHold(ctx context.Context, deviceID string, holdID string) (*model.Balance, error)
	CancelHold(ctx context.Context, deviceID string, holdID string) (*model.Balance, error)
}

// GenerationPipeline composes the generation stages into one billable job:
// elevate → generate → translate → segment → synthesize → persist, under one
// reserve/commit hold. Any failure anywhere cancels the hold before the error
// propagates, so credits are never consumed for incomplete work.
type GenerationPipeline struct {
	ledger     HoldLedger
	generator  *NarrativeGenerator
	translator *AlignedTranslator
	speech     SpeechClient
	datastore  pipelineStore
	queue      *Queue

	// progress is the single-consumer channel stage updates land on. Sends
	// never block: when nobody is draining, updates are dropped, not queued.
	progress chan StageUpdate
}

// pipelineStore is the slice of the datastore the pipeline writes artifacts
// through.
type pipelineStore interface {
	WriteSegments(lessonID string, segments []model.Segment) error
	WriteLessonMetadata(lessonID string, meta *model.LessonMetadata) error
	WriteAudio(lessonID string, fileName string, clip []byte) (string, error)
	AppendManifest(entry model.LessonEntry) error
}

// NewGenerationPipeline wires a pipeline onto a Duotale instance: its ledger,
// chat and speech clients, datastore and queue.
//
// Parameters:
// - d *Duotale: The backing service instance.
//
// Returns:
// - *GenerationPipeline: The assembled pipeline.
func NewGenerationPipeline(d *Duotale) *GenerationPipeline {
	return &GenerationPipeline{
		ledger:     d,
		generator:  NewNarrativeGenerator(d.chat),
		translator: NewAlignedTranslator(d.chat),
		speech:     d.speech,
		datastore:  d.datastore,
		queue:      d.queue,
		progress:   make(chan StageUpdate, 16),
	}
}

// Progress returns the pipeline's stage-update channel. Single consumer; the
// pipeline never closes it, so ranging callers select against their own done
// signal.
func (p *GenerationPipeline) Progress() <-chan StageUpdate {
	return p.progress
}

func (p *GenerationPipeline) report(stage Stage, format string, args ...interface{}) {
	update := StageUpdate{Stage: stage, Message: fmt.Sprintf(format, args...)}
	select {
	case p.progress <- update:
	default:
	}
}

// Run executes one full generation job. When the request carries no hold ID
// the pipeline opens its own hold and settles it: commit strictly after all
// artifacts are durably saved, cancel on any error or cancellation. A request
// carrying a hold ID (a series part under a shared hold) leaves settlement to
// its orchestrator.
//
// Parameters:
// - ctx context.Context: The job context; cancelling it stops the job between stages and segments.
// - req model.LessonRequest: What to generate and how to cut and voice it.
//
// Returns:
// - *model.LessonResult: The lesson ID, title and any alignment warnings on success.
// - error: The first stage error, after the job's hold has been cancelled.
func (p *GenerationPipeline) Run(ctx context.Context, req model.LessonRequest) (*model.LessonResult, error) {
	ctx, span := tracer.Start(ctx, "Running generation pipeline")
	defer span.End()

	req = withRequestDefaults(req)

	ownsHold := req.HoldID == ""
	if ownsHold {
		hold, err := p.ledger.StartHold(ctx, req.DeviceID, CreditsPerLesson, "", 0)
		if err != nil {
			return nil, err
		}
		req.HoldID = hold.HoldID
	}

	result, err := p.produce(ctx, req)
	if err != nil {
		if ownsHold {
			p.releaseHold(req.DeviceID, req.HoldID)
		}
		span.RecordError(err)
		return nil, err
	}

	if ownsHold {
		if _, err := p.ledger.CommitHold(ctx, req.DeviceID, req.HoldID); err != nil {
			// The lesson is persisted; a failed commit must not orphan the
			// reservation on top of it. The expiry worker returns it.
			logrus.Errorf("committing hold %s after lesson %s: %v", req.HoldID, result.LessonID, err)
			notification.NotifyError(err)
		}
	}
	return result, nil
}

// produce runs the text stages and hands off to Materialize. Split out so the
// iterative series orchestrator can reuse the back half on pre-generated text.
func (p *GenerationPipeline) produce(ctx context.Context, req model.LessonRequest) (*model.LessonResult, error) {
	p.report(StageElevate, "Shaping the writing brief")
	briefReq := model.BriefRequest{
		Topic:             req.Topic,
		TargetLanguage:    req.PrimaryLanguage,
		SecondaryLanguage: req.SecondaryLanguage,
		WordCount:         req.WordCount,
		Level:             req.Level,
	}
	if req.Series != nil {
		briefReq.PartNumber = req.Series.PartNumber
		briefReq.TotalParts = req.Series.TotalParts
		briefReq.PreviousSummary = req.Series.PreviousSummary
		briefReq.Outline = req.Series.Outline
	}
	brief := ElevatePrompt(briefReq)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.report(StageGenerate, "Writing the story")
	lesson, err := p.generator.Generate(ctx, brief)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.report(StageTranslate, "Translating into %s", req.SecondaryLanguage)
	translation, err := p.translator.Translate(ctx, lesson.Body, req.SecondaryLanguage)
	if err != nil {
		return nil, err
	}

	return p.Materialize(ctx, req, lesson, translation.Text, translation.Warnings)
}

// Materialize turns finished text into a persisted lesson: segment both
// lanes, synthesize audio segment by segment, then write all artifacts with
// the manifest entry strictly last. Everything written before a failure is
// orphaned, never registered.
//
// Parameters:
// - ctx context.Context: The job context, checked between segment iterations.
// - req model.LessonRequest: The originating request.
// - primary model.LessonText: The generated lesson in the primary language.
// - secondaryBody string: The aligned translation of the body.
// - warnings []string: Alignment warnings to carry into the result.
//
// Returns:
// - *model.LessonResult: The persisted lesson on success.
// - error: An error if segmentation produced nothing, any synthesis call failed, or a write failed.
func (p *GenerationPipeline) Materialize(ctx context.Context, req model.LessonRequest, primary model.LessonText, secondaryBody string, warnings []string) (*model.LessonResult, error) {
	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	p.report(StageSegment, "Cutting the lesson into segments")
	segments := model.BuildSegments(primary.Body, secondaryBody, req.Mode)
	if len(segments) == 0 {
		return nil, errors.New("segmentation produced no segments")
	}

	lessonID := model.GenerateUUIDWithSuffix("lsn")

	// One lane per language per segment, strictly sequential: bounds the
	// concurrent load on the speech provider and keeps file naming
	// deterministic.
	for i := range segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.report(StageSynthesize, "Synthesizing segment %d of %d", i+1, len(segments))

		ref, err := p.synthesizeLane(ctx, lessonID, req.PrimaryLanguage, conf.Speech.PrimaryVoice, req.SpeechSpeed, segments[i].PrimaryText, segments[i].ID)
		if err != nil {
			return nil, err
		}
		segments[i].PrimaryAudio = ref

		ref, err = p.synthesizeLane(ctx, lessonID, req.SecondaryLanguage, conf.Speech.SecondaryVoice, req.SpeechSpeed, segments[i].SecondaryText, segments[i].ID)
		if err != nil {
			return nil, err
		}
		segments[i].SecondaryAudio = ref
	}

	p.report(StagePersist, "Saving the lesson")
	if err := p.datastore.WriteSegments(lessonID, segments); err != nil {
		return nil, err
	}
	if err := p.datastore.WriteLessonMetadata(lessonID, &model.LessonMetadata{
		LessonID:          lessonID,
		Title:             primary.Title,
		PrimaryLanguage:   req.PrimaryLanguage,
		SecondaryLanguage: req.SecondaryLanguage,
		SegmentationMode:  req.Mode,
		SpeechSpeed:       req.SpeechSpeed,
		Level:             req.Level,
		CreatedAt:         time.Now(),
	}); err != nil {
		return nil, err
	}

	entry := model.LessonEntry{
		LessonID:          lessonID,
		Title:             primary.Title,
		Folder:            req.Folder,
		PrimaryLanguage:   req.PrimaryLanguage,
		SecondaryLanguage: req.SecondaryLanguage,
		LanguageCodes:     []string{model.LanguageSlug(req.PrimaryLanguage), model.LanguageSlug(req.SecondaryLanguage)},
		CreatedAt:         time.Now(),
	}
	if err := p.datastore.AppendManifest(entry); err != nil {
		return nil, err
	}

	p.postLessonActions(lessonID, entry)

	return &model.LessonResult{
		LessonID:     lessonID,
		Title:        primary.Title,
		Folder:       req.Folder,
		SegmentCount: len(segments),
		Warnings:     warnings,
	}, nil
}

func (p *GenerationPipeline) synthesizeLane(ctx context.Context, lessonID, language, voice string, speed float64, text string, index int) (string, error) {
	clip, err := p.speech.Synthesize(ctx, SpeechRequest{
		Text:     text,
		Language: language,
		Speed:    speed,
		Voice:    voice,
	})
	if err != nil {
		return "", errors.Wrapf(err, "synthesizing %s segment %d", language, index)
	}
	return p.datastore.WriteAudio(lessonID, model.AudioFileName(language, lessonID, index), clip)
}

// releaseHold cancels a job's hold on a fresh context: the job's own context
// is usually the reason the job is unwinding.
func (p *GenerationPipeline) releaseHold(deviceID, holdID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := p.ledger.CancelHold(ctx, deviceID, holdID); err != nil {
		logrus.Errorf("cancelling hold %s: %v", holdID, err)
		notification.NotifyError(err)
	}
}

// postLessonActions indexes the new lesson for search and fires the creation
// webhook. Both are best effort; the lesson is already durable.
func (p *GenerationPipeline) postLessonActions(lessonID string, entry model.LessonEntry) {
	if p.queue != nil {
		if err := p.queue.queueIndexData(lessonID, "lessons", entry); err != nil {
			logrus.Errorf("queueing lesson index: %v", err)
		}
	}
	go func() {
		if err := SendWebhook(NewWebhook{Event: "lesson.created", Payload: entry}); err != nil {
			notification.NotifyError(err)
		}
	}()
}

// withRequestDefaults fills the optional knobs of a lesson request.
func withRequestDefaults(req model.LessonRequest) model.LessonRequest {
	if !req.Mode.Valid() {
		req.Mode = model.SegmentBySentence
	}
	if !req.Level.Valid() {
		req.Level = model.LevelB1
	}
	if req.WordCount <= 0 {
		req.WordCount = 300
	}
	if req.SpeechSpeed <= 0 {
		req.SpeechSpeed = 1.0
	}
	return req
}
