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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

// testDatastore wires a Datastore to miniredis and a temp artifact dir.
func testDatastore(t *testing.T) (Datastore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	dataDir := t.TempDir()
	assert.NoError(t, ensureLayout(dataDir))
	return Datastore{Redis: client, DataDir: dataDir}, mr
}

func TestPutGet_RoundTrip(t *testing.T) {
	ds, _ := testDatastore(t)
	ctx := context.Background()

	type record struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	err := ds.Put(ctx, "test:record", record{Name: "alpha", Count: 3}, 0)
	assert.NoError(t, err)

	got := record{}
	found, err := ds.Get(ctx, "test:record", &got)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, record{Name: "alpha", Count: 3}, got)
}

func TestGet_AbsentKey(t *testing.T) {
	ds, _ := testDatastore(t)

	got := map[string]string{}
	found, err := ds.Get(context.Background(), "test:missing", &got)
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestPut_TTLExpires(t *testing.T) {
	ds, mr := testDatastore(t)
	ctx := context.Background()

	err := ds.Put(ctx, "test:expiring", "soon gone", 30*time.Second)
	assert.NoError(t, err)

	var got string
	found, err := ds.Get(ctx, "test:expiring", &got)
	assert.NoError(t, err)
	assert.True(t, found)

	mr.FastForward(31 * time.Second)

	found, err = ds.Get(ctx, "test:expiring", &got)
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestDelete_RemovesKey(t *testing.T) {
	ds, _ := testDatastore(t)
	ctx := context.Background()

	assert.NoError(t, ds.Put(ctx, "test:doomed", 42, 0))
	assert.NoError(t, ds.Delete(ctx, "test:doomed"))

	var got int
	found, err := ds.Get(ctx, "test:doomed", &got)
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestDelete_AbsentKeyIsNoError(t *testing.T) {
	ds, _ := testDatastore(t)
	assert.NoError(t, ds.Delete(context.Background(), "test:never-existed"))
}
