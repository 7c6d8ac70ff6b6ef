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
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/duotale/duotale/internal/apierror"
	"github.com/duotale/duotale/model"
)

const (
	segmentsFileName = "segments.json"
	lessonFileName   = "lesson.json"
	manifestFileName = "manifest.json"
	audioDirName     = "audio"
)

// manifestMu serializes manifest read-modify-write within the process. The
// manifest is a single flat file; concurrent appends would drop rows.
var manifestMu sync.Mutex

// LessonDir returns the absolute folder a lesson's artifacts live in.
func (d Datastore) LessonDir(lessonID string) string {
	return filepath.Join(d.DataDir, "lessons", lessonID)
}

func (d Datastore) manifestPath() string {
	return filepath.Join(d.DataDir, "lessons", manifestFileName)
}

// writeJSONFile renames a fully written temp file over the target so readers
// never observe a partial artifact.
func writeJSONFile(path string, value interface{}) error {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readJSONFile(path string, dest interface{}) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, dest)
}

// WriteSegments writes the ordered segment list file for a lesson.
func (d Datastore) WriteSegments(lessonID string, segments []model.Segment) error {
	path := filepath.Join(d.LessonDir(lessonID), segmentsFileName)
	if err := writeJSONFile(path, segments); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to write segment list", err)
	}
	return nil
}

// ReadSegments reads a lesson's segment list file.
func (d Datastore) ReadSegments(lessonID string) ([]model.Segment, error) {
	segments := []model.Segment{}
	err := readJSONFile(filepath.Join(d.LessonDir(lessonID), segmentsFileName), &segments)
	if os.IsNotExist(err) {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Lesson not found", err)
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read segment list", err)
	}
	return segments, nil
}

// WriteLessonMetadata writes the per-lesson metadata file.
func (d Datastore) WriteLessonMetadata(lessonID string, meta *model.LessonMetadata) error {
	path := filepath.Join(d.LessonDir(lessonID), lessonFileName)
	if err := writeJSONFile(path, meta); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to write lesson metadata", err)
	}
	return nil
}

// ReadLessonMetadata reads the per-lesson metadata file.
func (d Datastore) ReadLessonMetadata(lessonID string) (*model.LessonMetadata, error) {
	meta := model.LessonMetadata{}
	err := readJSONFile(filepath.Join(d.LessonDir(lessonID), lessonFileName), &meta)
	if os.IsNotExist(err) {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Lesson not found", err)
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read lesson metadata", err)
	}
	return &meta, nil
}

// WriteAudio writes one synthesized clip into the lesson's audio folder and
// returns the lesson-relative ref stored on the segment.
func (d Datastore) WriteAudio(lessonID string, fileName string, clip []byte) (string, error) {
	dir := filepath.Join(d.LessonDir(lessonID), audioDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create audio folder", err)
	}
	if err := os.WriteFile(filepath.Join(dir, fileName), clip, 0o644); err != nil {
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to write audio clip", err)
	}
	return filepath.Join(audioDirName, fileName), nil
}

// AppendManifest appends one lesson row to the flat manifest. The manifest is
// the registry the lesson browser reads; a lesson only becomes visible once
// its row lands here.
func (d Datastore) AppendManifest(entry model.LessonEntry) error {
	manifestMu.Lock()
	defer manifestMu.Unlock()

	entries, err := d.readManifest()
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	if err := writeJSONFile(d.manifestPath(), entries); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to write manifest", err)
	}
	return nil
}

// Manifest reads all manifest rows. A store that has never persisted a
// lesson returns an empty slice.
func (d Datastore) Manifest() ([]model.LessonEntry, error) {
	manifestMu.Lock()
	defer manifestMu.Unlock()
	return d.readManifest()
}

func (d Datastore) readManifest() ([]model.LessonEntry, error) {
	entries := []model.LessonEntry{}
	err := readJSONFile(d.manifestPath(), &entries)
	if os.IsNotExist(err) {
		return entries, nil
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read manifest", err)
	}
	return entries, nil
}

// DeleteLesson removes a lesson folder and its manifest row.
func (d Datastore) DeleteLesson(lessonID string) error {
	manifestMu.Lock()
	defer manifestMu.Unlock()

	entries, err := d.readManifest()
	if err != nil {
		return err
	}
	kept := make([]model.LessonEntry, 0, len(entries))
	removed := false
	for _, entry := range entries {
		if entry.LessonID == lessonID {
			removed = true
			continue
		}
		kept = append(kept, entry)
	}

	if _, err := os.Stat(d.LessonDir(lessonID)); os.IsNotExist(err) && !removed {
		return apierror.NewAPIError(apierror.ErrNotFound, "Lesson not found", nil)
	}
	if err := os.RemoveAll(d.LessonDir(lessonID)); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to remove lesson folder", err)
	}
	if removed {
		if err := writeJSONFile(d.manifestPath(), kept); err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to write manifest", err)
		}
	}
	return nil
}
