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
	"os"
	"path/filepath"

	"github.com/duotale/duotale/internal/apierror"
	"github.com/duotale/duotale/model"
)

func (d Datastore) seriesPath(seriesID string) string {
	return filepath.Join(d.DataDir, "series", seriesID+".json")
}

// SaveSeries persists series metadata. The file is rewritten after every
// part-state change, so it always reflects the worker's latest progress.
func (d Datastore) SaveSeries(series *model.SeriesMetadata) error {
	if err := writeJSONFile(d.seriesPath(series.SeriesID), series); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to write series metadata", err)
	}
	return nil
}

// GetSeries retrieves series metadata by ID.
func (d Datastore) GetSeries(seriesID string) (*model.SeriesMetadata, error) {
	series := model.SeriesMetadata{}
	err := readJSONFile(d.seriesPath(seriesID), &series)
	if os.IsNotExist(err) {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Series not found", err)
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read series metadata", err)
	}
	return &series, nil
}

// ListSeries retrieves every persisted series. Files that fail to parse are
// skipped rather than aborting the listing.
func (d Datastore) ListSeries() ([]*model.SeriesMetadata, error) {
	entries, err := os.ReadDir(filepath.Join(d.DataDir, "series"))
	if os.IsNotExist(err) {
		return []*model.SeriesMetadata{}, nil
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list series", err)
	}

	series := make([]*model.SeriesMetadata, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		item := model.SeriesMetadata{}
		if err := readJSONFile(filepath.Join(d.DataDir, "series", entry.Name()), &item); err != nil {
			continue
		}
		series = append(series, &item)
	}
	return series, nil
}
