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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/duotale/duotale/model"
)

// fakeLedger records hold traffic so tests can observe settlement order.
type fakeLedger struct {
	mu        sync.Mutex
	started   []string
	committed []string
	cancelled []string
	commitErr error

	// onCommit runs inside CommitHold, letting a test inspect the world at
	// the moment of settlement.
	onCommit func()
}

func (f *fakeLedger) StartHold(_ context.Context, deviceID string, amount int64, holdID string, _ time.Duration) (*model.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if holdID == "" {
		holdID = model.GenerateUUIDWithSuffix("hold")
	}
	f.started = append(f.started, holdID)
	return &model.Hold{HoldID: holdID, DeviceID: deviceID, Amount: amount, State: model.HoldPending}, nil
}

func (f *fakeLedger) CommitHold(_ context.Context, _ string, holdID string) (*model.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	if f.onCommit != nil {
		f.onCommit()
	}
	f.committed = append(f.committed, holdID)
	return &model.Balance{}, nil
}

func (f *fakeLedger) CancelHold(_ context.Context, _ string, holdID string) (*model.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, holdID)
	return &model.Balance{}, nil
}

func (f *fakeLedger) snapshot() (started, committed, cancelled []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.started...), append([]string{}, f.committed...), append([]string{}, f.cancelled...)
}

// fakeSpeech returns a fixed clip and records every request.
type fakeSpeech struct {
	mu    sync.Mutex
	calls []SpeechRequest
	err   error
}

func (f *fakeSpeech) Synthesize(_ context.Context, req SpeechRequest) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []byte("clip:" + req.Text), nil
}

func (f *fakeSpeech) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// lessonChatScript routes prompts by stage: the narrative prompt returns the
// given story, translation prompts return aligned placeholders.
func lessonChatScript(story string) func(Prompt, int) (string, error) {
	return func(prompt Prompt, _ int) (string, error) {
		switch {
		case strings.Contains(prompt.System, "professional translator"):
			return translateAligned(prompt.User), nil
		case strings.Contains(prompt.System, "Summarize"):
			return "Die Geschichte ging weiter.", nil
		case strings.Contains(prompt.System, "continuing a story"),
			strings.Contains(prompt.System, "final paragraphs"):
			return "Die Reise ging weiter und weiter.", nil
		default:
			return story, nil
		}
	}
}

const testStory = "Der Leuchtturm\n\nMira ging zum Hafen. Sie sah das Meer.\n\nDer Wind wurde stark."

func newTestPipeline(t *testing.T, chat ChatClient, speech SpeechClient) (*GenerationPipeline, *fakeLedger, *Duotale) {
	t.Helper()
	d := newTestDuotale(t)
	ledger := &fakeLedger{}
	return &GenerationPipeline{
		ledger:     ledger,
		generator:  NewNarrativeGenerator(chat),
		translator: NewAlignedTranslator(chat),
		speech:     speech,
		datastore:  d.datastore,
		queue:      d.queue,
		progress:   make(chan StageUpdate, 16),
	}, ledger, d
}

func testLessonRequest() model.LessonRequest {
	return model.LessonRequest{
		DeviceID:          gofakeit.UUID(),
		Topic:             "a lighthouse keeper",
		PrimaryLanguage:   "German",
		SecondaryLanguage: "English",
	}
}

func TestPipelineRun_PersistsAndCommits(t *testing.T) {
	chat := &fakeChat{respond: lessonChatScript(testStory)}
	speech := &fakeSpeech{}
	p, ledger, d := newTestPipeline(t, chat, speech)

	result, err := p.Run(context.Background(), testLessonRequest())
	assert.NoError(t, err)
	assert.Equal(t, "Der Leuchtturm", result.Title)
	assert.Equal(t, 3, result.SegmentCount, "two paragraphs with three sentences total in sentence mode")
	assert.Empty(t, result.Warnings)

	started, committed, cancelled := ledger.snapshot()
	assert.Equal(t, 1, len(started))
	assert.Equal(t, started, committed)
	assert.Empty(t, cancelled)

	// Both language lanes synthesized per segment.
	assert.Equal(t, 2*result.SegmentCount, speech.callCount())

	segments, err := d.datastore.ReadSegments(result.LessonID)
	assert.NoError(t, err)
	assert.Equal(t, result.SegmentCount, len(segments))
	for _, seg := range segments {
		assert.NotEmpty(t, seg.PrimaryAudio)
		assert.NotEmpty(t, seg.SecondaryAudio)
	}

	meta, err := d.datastore.ReadLessonMetadata(result.LessonID)
	assert.NoError(t, err)
	assert.Equal(t, "Der Leuchtturm", meta.Title)
	assert.Equal(t, model.SegmentBySentence, meta.SegmentationMode, "defaults applied")

	manifest, err := d.datastore.Manifest()
	assert.NoError(t, err)
	assert.Equal(t, 1, len(manifest))
	assert.Equal(t, result.LessonID, manifest[0].LessonID)
}

func TestPipelineRun_CommitsOnlyAfterManifest(t *testing.T) {
	chat := &fakeChat{respond: lessonChatScript(testStory)}
	p, ledger, d := newTestPipeline(t, chat, &fakeSpeech{})

	manifestRowsAtCommit := -1
	ledger.onCommit = func() {
		manifest, err := d.datastore.Manifest()
		assert.NoError(t, err)
		manifestRowsAtCommit = len(manifest)
	}

	_, err := p.Run(context.Background(), testLessonRequest())
	assert.NoError(t, err)
	assert.Equal(t, 1, manifestRowsAtCommit, "the lesson must be registered before its hold settles")
}

func TestPipelineRun_CancelsHoldOnGenerationFailure(t *testing.T) {
	chat := &fakeChat{respond: func(_ Prompt, _ int) (string, error) {
		return "", errors.New("provider down")
	}}
	p, ledger, d := newTestPipeline(t, chat, &fakeSpeech{})

	_, err := p.Run(context.Background(), testLessonRequest())
	assert.Error(t, err)

	started, committed, cancelled := ledger.snapshot()
	assert.Equal(t, 1, len(started))
	assert.Empty(t, committed)
	assert.Equal(t, started, cancelled, "a failed job returns its reservation")

	manifest, err := d.datastore.Manifest()
	assert.NoError(t, err)
	assert.Empty(t, manifest)
}

func TestPipelineRun_CancelsHoldOnSynthesisFailure(t *testing.T) {
	chat := &fakeChat{respond: lessonChatScript(testStory)}
	speech := &fakeSpeech{err: errors.New("speech down")}
	p, ledger, d := newTestPipeline(t, chat, speech)

	_, err := p.Run(context.Background(), testLessonRequest())
	assert.Error(t, err)

	_, committed, cancelled := ledger.snapshot()
	assert.Empty(t, committed)
	assert.Equal(t, 1, len(cancelled))

	// Nothing registered: the manifest write is strictly last.
	manifest, err := d.datastore.Manifest()
	assert.NoError(t, err)
	assert.Empty(t, manifest)
}

func TestPipelineRun_SharedHoldLeftToCaller(t *testing.T) {
	chat := &fakeChat{respond: lessonChatScript(testStory)}
	speech := &fakeSpeech{err: errors.New("speech down")}
	p, ledger, _ := newTestPipeline(t, chat, speech)

	req := testLessonRequest()
	req.HoldID = model.GenerateUUIDWithSuffix("hold")

	_, err := p.Run(context.Background(), req)
	assert.Error(t, err)

	started, committed, cancelled := ledger.snapshot()
	assert.Empty(t, started, "a request carrying a hold never opens one")
	assert.Empty(t, committed)
	assert.Empty(t, cancelled, "settlement of a shared hold belongs to the orchestrator")
}

func TestPipelineRun_FailedCommitDoesNotUnwindLesson(t *testing.T) {
	chat := &fakeChat{respond: lessonChatScript(testStory)}
	p, ledger, d := newTestPipeline(t, chat, &fakeSpeech{})
	ledger.commitErr = errors.New("redis down")

	result, err := p.Run(context.Background(), testLessonRequest())
	assert.NoError(t, err, "the lesson is durable; the expiry worker returns the hold")
	assert.NotEmpty(t, result.LessonID)

	manifest, err := d.datastore.Manifest()
	assert.NoError(t, err)
	assert.Equal(t, 1, len(manifest))
}

func TestPipelineRun_EmptySegmentationFails(t *testing.T) {
	chat := &fakeChat{respond: func(prompt Prompt, _ int) (string, error) {
		if strings.Contains(prompt.System, "translator") || strings.Contains(prompt.System, "wrong number") {
			return "", nil
		}
		return testStory, nil
	}}
	p, ledger, _ := newTestPipeline(t, chat, &fakeSpeech{})

	_, err := p.Run(context.Background(), testLessonRequest())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no segments")

	_, _, cancelled := ledger.snapshot()
	assert.Equal(t, 1, len(cancelled))
}

func TestPipelineRun_ReportsProgress(t *testing.T) {
	chat := &fakeChat{respond: lessonChatScript(testStory)}
	p, _, _ := newTestPipeline(t, chat, &fakeSpeech{})

	_, err := p.Run(context.Background(), testLessonRequest())
	assert.NoError(t, err)

	seen := map[Stage]bool{}
	for {
		select {
		case update := <-p.Progress():
			seen[update.Stage] = true
			continue
		default:
		}
		break
	}
	for _, stage := range []Stage{StageElevate, StageGenerate, StageTranslate, StageSegment, StageSynthesize, StagePersist} {
		assert.True(t, seen[stage], "missing %s update", stage)
	}
}

func TestWithRequestDefaults(t *testing.T) {
	req := withRequestDefaults(model.LessonRequest{})
	assert.Equal(t, model.SegmentBySentence, req.Mode)
	assert.Equal(t, model.LevelB1, req.Level)
	assert.Equal(t, 300, req.WordCount)
	assert.Equal(t, 1.0, req.SpeechSpeed)

	custom := withRequestDefaults(model.LessonRequest{
		Mode:        model.SegmentByParagraph,
		Level:       model.LevelC1,
		WordCount:   750,
		SpeechSpeed: 0.8,
	})
	assert.Equal(t, model.SegmentByParagraph, custom.Mode)
	assert.Equal(t, model.LevelC1, custom.Level)
	assert.Equal(t, 750, custom.WordCount)
	assert.Equal(t, 0.8, custom.SpeechSpeed)
}
