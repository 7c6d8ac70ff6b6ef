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
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"time"

	"github.com/duotale/duotale/config"
	redis_db "github.com/duotale/duotale/internal/redis-db"

	"github.com/duotale/duotale/model"
	"github.com/hibiken/asynq"
)

// Queue represents a queue for handling various tasks.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// SeriesPartPayload is the task payload for generating one part of a series.
// The part reads everything else it needs from the persisted series metadata.
type SeriesPartPayload struct {
	SeriesID   string `json:"series_id"`
	PartNumber int    `json:"part_number"`
}

// NewQueue initializes a new Queue instance with the provided configuration.
//
// Parameters:
// - conf *config.Configuration: The configuration for the queue.
//
// Returns:
// - *Queue: A pointer to the newly created Queue instance.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// queueHoldExpiry enqueues a task to release a hold when its TTL elapses.
//
// Parameters:
// - holdID string: The ID of the hold.
// - expiresAt time.Time: The expiration time of the hold.
//
// Returns:
// - error: An error if the task could not be enqueued.
func (q *Queue) queueHoldExpiry(holdID string, expiresAt time.Time) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	IPayload, err := json.Marshal(holdID)
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.TaskID(holdID),
		asynq.Queue(cfg.Queue.HoldExpiryQueue),
		asynq.ProcessIn(time.Until(expiresAt)),
	}
	task := asynq.NewTask(cfg.Queue.HoldExpiryQueue, IPayload, taskOptions...)
	info, err := q.Client.Enqueue(task)
	if err != nil {
		// The expiry task for a hold is already scheduled; rescheduling the
		// same hold is a no-op, not a failure.
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued hold expiry: %+v", holdID)
	return nil
}

// queueIndexData enqueues a task to index data in a specified collection.
//
// Parameters:
// - id string: The ID of the data to index.
// - collection string: The name of the collection to index the data in.
// - data interface{}: The data to be indexed.
//
// Returns:
// - error: An error if the task could not be enqueued.
func (q *Queue) queueIndexData(id string, collection string, data interface{}) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	if cfg.TypeSense.Dns == "" {
		return nil
	}

	payload := map[string]interface{}{
		"collection": collection,
		"payload":    data,
	}

	IPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{asynq.Queue(cfg.Queue.IndexQueue)}
	task := asynq.NewTask(cfg.Queue.IndexQueue, IPayload, taskOptions...)
	info, err := q.Client.Enqueue(task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued index data: %+v", id)
	return nil
}

// EnqueueSeriesPart enqueues the generation task for one part of a series.
// Parts of the same series are chained: the worker enqueues part k+1 only
// after part k settles, so order within a series is strict.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - series *model.SeriesMetadata: The series the part belongs to.
// - partNumber int: The 1-based part to generate.
//
// Returns:
// - error: An error if the task could not be enqueued.
func (q *Queue) EnqueueSeriesPart(ctx context.Context, series *model.SeriesMetadata, partNumber int) error {
	ctx, span := tracer.Start(ctx, "Adding series part to redis queue")
	defer span.End()

	payload, err := json.Marshal(SeriesPartPayload{SeriesID: series.SeriesID, PartNumber: partNumber})
	if err != nil {
		return err
	}
	task, err := q.seriesTask(series, partNumber, payload)
	if err != nil {
		return err
	}
	info, err := q.Client.EnqueueContext(ctx, task, asynq.MaxRetry(5))
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued series part: %s part %d", series.SeriesID, partNumber)

	return nil
}

// QueueHoldExpiry schedules the expiry task for a hold. This is separate from
// the commit/cancel paths so the reservation is returned even when a job dies
// without resolving its hold.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - hold *model.Hold: The hold to schedule expiry for.
//
// Returns:
// - error: An error if the expiry could not be queued.
func (q *Queue) QueueHoldExpiry(_ context.Context, hold *model.Hold) error {
	if !hold.ExpiresAt.IsZero() {
		return q.queueHoldExpiry(hold.HoldID, hold.ExpiresAt)
	}
	return nil
}

// seriesTask builds the task for a series part and assigns it to a queue shard
// based on the owning device. All series of one device land in the same shard,
// so their parts are processed serially and never race on the device's credits.
//
// Parameters:
// - series *model.SeriesMetadata: The series the part belongs to.
// - partNumber int: The part number used in the task ID.
// - payload []byte: The serialized task payload.
//
// Returns:
// - *asynq.Task: The generated task ready to be enqueued.
// - error: An error if the configuration could not be fetched.
func (q *Queue) seriesTask(series *model.SeriesMetadata, partNumber int, payload []byte) (*asynq.Task, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	queueIndex := hashDeviceID(series.DeviceID) % cnf.Queue.NumberOfQueues
	queueName := fmt.Sprintf("%s_%d", cnf.Queue.SeriesQueue, queueIndex+1)

	taskID := fmt.Sprintf("%s_part_%d", series.SeriesID, partNumber)
	taskOptions := []asynq.Option{asynq.TaskID(taskID), asynq.Queue(queueName)}

	return asynq.NewTask(queueName, payload, taskOptions...), nil
}

// hashDeviceID returns a consistent hash value for a device identifier.
//
// Parameters:
// - deviceID string: The device ID to hash.
//
// Returns:
// - int: The hash value of the device ID.
func hashDeviceID(deviceID string) int {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(deviceID))
	return int(hasher.Sum32())
}

// GetSeriesPartFromQueue retrieves a queued series part task by series and part.
//
// Parameters:
// - seriesID string: The ID of the series.
// - partNumber int: The part number.
//
// Returns:
// - *SeriesPartPayload: A pointer to the payload if the task is queued.
// - error: An error if the lookup fails.
func (q *Queue) GetSeriesPartFromQueue(seriesID string, partNumber int) (*SeriesPartPayload, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	taskID := fmt.Sprintf("%s_part_%d", seriesID, partNumber)
	// Iterate over all series queue shards
	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.SeriesQueue, i)
		task, err := q.Inspector.GetTaskInfo(queueName, taskID)
		if err == nil && task != nil {
			var payload SeriesPartPayload
			if err := json.Unmarshal(task.Payload, &payload); err != nil {
				return nil, err
			}
			return &payload, nil
		}
	}
	return nil, nil // Return nil if the part is not queued in any shard
}
