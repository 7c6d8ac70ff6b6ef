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
package model

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/duotale/duotale/model"
)

// StartJob is the request body of POST /jobs/start: reserve credits for one
// billable job. JobID makes retried requests idempotent; TTLSeconds overrides
// the server's default hold lifetime.
type StartJob struct {
	Amount     int64  `json:"amount"`
	JobID      string `json:"job_id,omitempty"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

func (j *StartJob) ValidateStartJob() error {
	return validation.ValidateStruct(j,
		validation.Field(&j.Amount, validation.Required, validation.Min(1)),
		validation.Field(&j.TTLSeconds, validation.Min(0)),
	)
}

// ResolveJob is the request body of POST /jobs/commit and /jobs/cancel.
type ResolveJob struct {
	JobID string `json:"job_id"`
}

func (j *ResolveJob) ValidateResolveJob() error {
	return validation.ValidateStruct(j,
		validation.Field(&j.JobID, validation.Required),
	)
}

// RedeemCredits is the request body of POST /credits/redeem: a purchase proof
// exchanged for a credit grant.
type RedeemCredits struct {
	Receipt   string `json:"receipt"`
	ProductID string `json:"product_id"`
	Signature string `json:"signature"`
}

func (r *RedeemCredits) ValidateRedeemCredits() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Receipt, validation.Required),
		validation.Field(&r.ProductID, validation.Required),
		validation.Field(&r.Signature, validation.Required),
	)
}

// CreateLesson is the request body of POST /lessons: one full generation job.
type CreateLesson struct {
	Topic             string  `json:"topic"`
	PrimaryLanguage   string  `json:"primary_language"`
	SecondaryLanguage string  `json:"secondary_language"`
	WordCount         int     `json:"word_count,omitempty"`
	Level             string  `json:"level,omitempty"`
	Mode              string  `json:"mode,omitempty"`
	SpeechSpeed       float64 `json:"speech_speed,omitempty"`
	Folder            string  `json:"folder,omitempty"`
}

func (l *CreateLesson) ValidateCreateLesson() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.Topic, validation.Required),
		validation.Field(&l.PrimaryLanguage, validation.Required),
		validation.Field(&l.SecondaryLanguage, validation.Required),
		validation.Field(&l.WordCount, validation.Min(0)),
		validation.Field(&l.Level, validation.In("", "A1", "A2", "B1", "B2", "C1", "C2")),
		validation.Field(&l.Mode, validation.In("", string(model.SegmentBySentence), string(model.SegmentByParagraph))),
		validation.Field(&l.SpeechSpeed, validation.Min(0.0), validation.Max(4.0)),
	)
}

// ToLessonRequest binds the request to the authenticated device.
func (l *CreateLesson) ToLessonRequest(deviceID string) model.LessonRequest {
	return model.LessonRequest{
		DeviceID:          deviceID,
		Topic:             l.Topic,
		PrimaryLanguage:   l.PrimaryLanguage,
		SecondaryLanguage: l.SecondaryLanguage,
		WordCount:         l.WordCount,
		Level:             model.CEFRLevel(l.Level),
		Mode:              model.SegmentationMode(l.Mode),
		SpeechSpeed:       l.SpeechSpeed,
		Folder:            l.Folder,
	}
}

// CreateSeries is the request body of POST /series: a multi-part lesson job.
// In iterative strategy WordCount is the whole story's target length.
type CreateSeries struct {
	CreateLesson
	TotalParts int    `json:"total_parts"`
	Strategy   string `json:"strategy,omitempty"`
	Outline    string `json:"outline,omitempty"`
}

func (s *CreateSeries) ValidateCreateSeries() error {
	if err := s.ValidateCreateLesson(); err != nil {
		return err
	}
	return validation.ValidateStruct(s,
		validation.Field(&s.TotalParts, validation.Required, validation.Min(2), validation.Max(20)),
		validation.Field(&s.Strategy, validation.In("", string(model.SeriesPerPart), string(model.SeriesIterative))),
	)
}

// Synthesize is the request body of POST /tts.
type Synthesize struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Speed    float64 `json:"speed,omitempty"`
	Voice    string  `json:"voice,omitempty"`
	Format   string  `json:"format,omitempty"`
}

func (s *Synthesize) ValidateSynthesize() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Text, validation.Required, validation.Length(1, 4096)),
		validation.Field(&s.Language, validation.Required),
		validation.Field(&s.Speed, validation.Min(0.0), validation.Max(4.0)),
		validation.Field(&s.Format, validation.In("", "mp3", "opus", "aac", "flac", "wav")),
	)
}
