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
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/duotale/duotale/internal/apierror"
)

// Put writes a JSON-encoded value under key. A zero ttl stores the key
// without expiry.
func (d Datastore) Put(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to encode record", err)
	}
	if err := d.Redis.Set(ctx, key, payload, ttl).Err(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to write record", err)
	}
	return nil
}

// Get reads the value stored under key into dest. It returns false with a
// nil error when the key does not exist, so callers can tell "absent" from
// "store unreachable".
func (d Datastore) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	payload, err := d.Redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read record", err)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to decode record", err)
	}
	return true, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (d Datastore) Delete(ctx context.Context, key string) error {
	if err := d.Redis.Del(ctx, key).Err(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete record", err)
	}
	return nil
}
