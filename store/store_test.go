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
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"

	"github.com/duotale/duotale/config"
)

func storeConfig(t *testing.T, mr *miniredis.Miniredis) *config.Configuration {
	t.Helper()
	return &config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
		Data:  config.DataConfig{Dir: t.TempDir()},
	}
}

// Every NewDataStore call must honor its own configuration; an earlier store
// pointing at a redis that has since gone away must not leak into later ones.
func TestNewDataStore_FreshConnectionPerCall(t *testing.T) {
	ctx := context.Background()

	first := miniredis.RunT(t)
	firstStore, err := NewDataStore(storeConfig(t, first))
	assert.NoError(t, err)
	assert.NoError(t, firstStore.Put(ctx, "store:marker", "one", 0))
	first.Close()

	second := miniredis.RunT(t)
	secondStore, err := NewDataStore(storeConfig(t, second))
	assert.NoError(t, err)

	assert.NoError(t, secondStore.Put(ctx, "store:marker", "two", 0))

	var value string
	found, err := secondStore.Get(ctx, "store:marker", &value)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "two", value, "the second store owns its own redis")
}

func TestNewDataStore_CreatesArtifactLayout(t *testing.T) {
	mr := miniredis.RunT(t)
	cnf := storeConfig(t, mr)

	ds, err := NewDataStore(cnf)
	assert.NoError(t, err)
	assert.NotNil(t, ds)

	assert.DirExists(t, filepath.Join(cnf.Data.Dir, "lessons"))
	assert.DirExists(t, filepath.Join(cnf.Data.Dir, "series"))
}
