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

package search

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/duotale/duotale/model"
	"github.com/duotale/duotale/store"
	"github.com/sirupsen/logrus"
)

// ReindexProgress tracks the progress of a reindex operation.
type ReindexProgress struct {
	Status           string     `json:"status"` // "in_progress", "completed", "failed"
	Phase            string     `json:"phase"`  // "drop_collections", "indexing_lessons", etc.
	TotalRecords     int64      `json:"total_records"`
	ProcessedRecords int64      `json:"processed_records"`
	Errors           []string   `json:"errors,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// ReindexConfig holds configuration for reindexing.
type ReindexConfig struct {
	BatchSize int
}

// ReindexService handles reindexing operations.
type ReindexService struct {
	client    *TypesenseClient
	datastore store.IDataStore
	config    ReindexConfig
	progress  *ReindexProgress
	mu        sync.RWMutex
}

// NewReindexService creates a new ReindexService instance.
func NewReindexService(client *TypesenseClient, datastore store.IDataStore, config ReindexConfig) *ReindexService {
	if config.BatchSize <= 0 {
		config.BatchSize = 1000
	}
	return &ReindexService{
		client:    client,
		datastore: datastore,
		config:    config,
		progress: &ReindexProgress{
			Status: "pending",
		},
	}
}

// GetProgress returns the current progress of the reindex operation.
func (r *ReindexService) GetProgress() ReindexProgress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *r.progress
}

func (r *ReindexService) updateProgress(phase string, processed int64, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Phase = phase
	r.progress.ProcessedRecords = processed
	r.progress.TotalRecords = total
}

func (r *ReindexService) addError(err string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Errors = append(r.progress.Errors, err)
}

// StartReindex performs a complete reindex of all data.
// It drops all collections, recreates them, and indexes data in order:
// lessons -> series
func (r *ReindexService) StartReindex(ctx context.Context) (*ReindexProgress, error) {
	r.mu.Lock()
	r.progress = &ReindexProgress{
		Status:    "in_progress",
		Phase:     "starting",
		StartedAt: time.Now(),
	}
	r.mu.Unlock()

	logrus.Info("Starting reindex operation")

	if err := r.dropCollections(ctx); err != nil {
		return r.failWithError(err, "drop_collections")
	}

	if err := r.createCollections(ctx); err != nil {
		return r.failWithError(err, "create_collections")
	}

	if err := r.indexLessons(ctx); err != nil {
		return r.failWithError(err, "indexing_lessons")
	}

	if err := r.indexSeries(ctx); err != nil {
		return r.failWithError(err, "indexing_series")
	}

	r.mu.Lock()
	now := time.Now()
	r.progress.Status = "completed"
	r.progress.Phase = "done"
	r.progress.CompletedAt = &now
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"total_records":     r.progress.TotalRecords,
		"processed_records": r.progress.ProcessedRecords,
		"duration":          time.Since(r.progress.StartedAt).String(),
	}).Info("Reindex operation completed")

	return r.GetProgressPtr(), nil
}

// GetProgressPtr returns a pointer to the current progress.
func (r *ReindexService) GetProgressPtr() *ReindexProgress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	progress := *r.progress
	return &progress
}

func (r *ReindexService) failWithError(err error, phase string) (*ReindexProgress, error) {
	r.mu.Lock()
	now := time.Now()
	r.progress.Status = "failed"
	r.progress.Phase = phase
	r.progress.CompletedAt = &now
	r.progress.Errors = append(r.progress.Errors, err.Error())
	r.mu.Unlock()

	logrus.WithError(err).WithField("phase", phase).Error("Reindex operation failed")
	return r.GetProgressPtr(), err
}

func (r *ReindexService) dropCollections(ctx context.Context) error {
	r.updateProgress("drop_collections", 0, 0)
	logrus.Info("Dropping all collections")

	if err := r.client.DropAllCollections(ctx); err != nil {
		return err
	}

	logrus.Info("All collections dropped successfully")
	return nil
}

func (r *ReindexService) createCollections(ctx context.Context) error {
	r.updateProgress("create_collections", 0, 0)
	logrus.Info("Creating collections")

	if err := r.client.EnsureCollectionsExist(ctx); err != nil {
		return err
	}

	logrus.Info("All collections created successfully")
	return nil
}

func (r *ReindexService) indexLessons(ctx context.Context) error {
	r.updateProgress("indexing_lessons", 0, 0)
	logrus.Info("Starting to index lessons")

	entries, err := r.datastore.Manifest()
	if err != nil {
		return err
	}

	var totalIndexed int64
	for i, entry := range entries {
		data, err := r.lessonDocument(entry)
		if err != nil {
			r.addError("lesson " + entry.LessonID + ": " + err.Error())
			continue
		}

		if err := r.client.HandleNotification(ctx, CollectionLessons, data); err != nil {
			r.addError("lesson " + entry.LessonID + ": " + err.Error())
			continue
		}
		totalIndexed++

		if (i+1)%r.config.BatchSize == 0 {
			r.updateProgress("indexing_lessons", totalIndexed, int64(len(entries)))
			logrus.WithFields(logrus.Fields{
				"indexed": totalIndexed,
				"total":   len(entries),
			}).Info("Lesson indexing progress")
		}
	}

	r.updateProgress("indexing_lessons", totalIndexed, int64(len(entries)))
	logrus.WithField("total", totalIndexed).Info("Lesson indexing completed")
	return nil
}

// lessonDocument assembles the index document for one manifest row from the
// artifacts on disk. Fields only known at generation time, like the owning
// device, are absent after a reindex; the live indexing path carries them.
func (r *ReindexService) lessonDocument(entry model.LessonEntry) (map[string]interface{}, error) {
	meta, err := r.datastore.ReadLessonMetadata(entry.LessonID)
	if err != nil {
		return nil, err
	}
	segments, err := r.datastore.ReadSegments(entry.LessonID)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"lesson_id":          entry.LessonID,
		"title":              entry.Title,
		"primary_language":   meta.PrimaryLanguage,
		"secondary_language": meta.SecondaryLanguage,
		"language_codes":     entry.LanguageCodes,
		"level":              string(meta.Level),
		"segmentation_mode":  string(meta.SegmentationMode),
		"segment_count":      len(segments),
		"speech_speed":       meta.SpeechSpeed,
		"created_at":         meta.CreatedAt,
	}, nil
}

func (r *ReindexService) indexSeries(ctx context.Context) error {
	r.mu.RLock()
	processed := r.progress.ProcessedRecords
	r.mu.RUnlock()
	r.updateProgress("indexing_series", processed, processed)
	logrus.Info("Starting to index series")

	allSeries, err := r.datastore.ListSeries()
	if err != nil {
		return err
	}

	var totalIndexed int64
	for _, series := range allSeries {
		data, err := toMap(series)
		if err != nil {
			r.addError("series " + series.SeriesID + ": " + err.Error())
			continue
		}

		if err := r.client.HandleNotification(ctx, CollectionSeries, data); err != nil {
			r.addError("series " + series.SeriesID + ": " + err.Error())
			continue
		}
		totalIndexed++
	}

	r.mu.Lock()
	r.progress.ProcessedRecords += totalIndexed
	r.progress.TotalRecords = r.progress.ProcessedRecords
	r.mu.Unlock()

	logrus.WithField("total", totalIndexed).Info("Series indexing completed")
	return nil
}

// toMap converts a struct to the map form the index document API expects.
func toMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	data := make(map[string]interface{})
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// DropCollection deletes a collection from Typesense.
func (t *TypesenseClient) DropCollection(ctx context.Context, collectionName string) error {
	_, err := t.Client.Collection(collectionName).Delete(ctx)
	if err != nil && !strings.Contains(err.Error(), "not found") && !strings.Contains(err.Error(), "Not Found") {
		return err
	}
	return nil
}

// DropAllCollections drops all known collections from Typesense.
func (t *TypesenseClient) DropAllCollections(ctx context.Context) error {
	collections := []string{
		CollectionLessons,
		CollectionSeries,
	}

	for _, c := range collections {
		logrus.WithField("collection", c).Debug("Dropping collection")
		if err := t.DropCollection(ctx, c); err != nil {
			return err
		}
	}

	return nil
}
