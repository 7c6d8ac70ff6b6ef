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

package store

import (
	"context"
	"time"

	"github.com/duotale/duotale/model"
)

// IDataStore defines the interface for persistence operations, grouping related functionalities.
type IDataStore interface {
	keyValue    // Interface for raw key-value operations
	ledgerStore // Interface for balance and hold persistence
	lessonStore // Interface for lesson artifact persistence
	seriesStore // Interface for series metadata persistence
}

// keyValue defines the raw shared-store surface the credit ledger runs on:
// read, write with TTL, delete. Values are JSON-encoded by the implementation.
// Mutating a record is read-modify-write; callers that need exclusion take a
// lock around the sequence.
type keyValue interface {
	Put(ctx context.Context, key string, value interface{}, ttl time.Duration) error // Writes a value; zero TTL means no expiry
	Get(ctx context.Context, key string, dest interface{}) (bool, error)             // Reads a value into dest; false when the key is absent
	Delete(ctx context.Context, key string) error                                    // Removes a key; missing keys are not an error
}

// ledgerStore defines methods for persisting credit balances and holds.
type ledgerStore interface {
	SaveBalance(ctx context.Context, balance *model.Balance) error           // Persists a device balance record
	GetBalance(ctx context.Context, deviceID string) (*model.Balance, error) // Retrieves a device balance, nil when absent
	SaveHold(ctx context.Context, hold *model.Hold, ttl time.Duration) error // Persists a hold with a retention TTL
	GetHold(ctx context.Context, holdID string) (*model.Hold, error)         // Retrieves a hold by ID, nil when absent
	DeleteHold(ctx context.Context, holdID string) error                     // Removes a hold record
}

// lessonStore defines methods for persisting lesson artifacts on disk.
type lessonStore interface {
	WriteSegments(lessonID string, segments []model.Segment) error            // Writes the ordered segment list file
	ReadSegments(lessonID string) ([]model.Segment, error)                    // Reads the segment list file
	WriteLessonMetadata(lessonID string, meta *model.LessonMetadata) error    // Writes the lesson metadata file
	ReadLessonMetadata(lessonID string) (*model.LessonMetadata, error)        // Reads the lesson metadata file
	WriteAudio(lessonID string, fileName string, clip []byte) (string, error) // Writes one audio clip, returns its lesson-relative ref
	AppendManifest(entry model.LessonEntry) error                             // Appends one lesson row to the flat manifest
	Manifest() ([]model.LessonEntry, error)                                   // Reads all manifest rows
	DeleteLesson(lessonID string) error                                       // Removes a lesson folder and its manifest row
	LessonDir(lessonID string) string                                         // Returns the absolute lesson folder path
}

// seriesStore defines methods for persisting series metadata.
type seriesStore interface {
	SaveSeries(series *model.SeriesMetadata) error            // Persists series metadata
	GetSeries(seriesID string) (*model.SeriesMetadata, error) // Retrieves series metadata by ID
	ListSeries() ([]*model.SeriesMetadata, error)             // Retrieves all series metadata
}
